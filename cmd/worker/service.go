package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-pos/pkg/config"
	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/outbox"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultHandlerTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*outbox.ResolvedEvent, error)
}

type deliveryGuard interface {
	Claim(ctx context.Context, handler, eventID string) (bool, error)
	Release(ctx context.Context, handler, eventID string) error
}

type relayRecorder interface {
	ObserveDuration(eventType string, d time.Duration)
	IncPublished(eventType string)
	IncFailed(eventType string, terminal bool)
	SetUndelivered(n int64)
}

type backlogCounter interface {
	CountPending() (int64, error)
}

// Handler delivers one decoded outbox row to the system that acts on it.
type Handler interface {
	Handle(ctx context.Context, event models.OutboxEvent, resolved *outbox.ResolvedEvent) error
}

type HandlerFunc func(ctx context.Context, event models.OutboxEvent, resolved *outbox.ResolvedEvent) error

func (f HandlerFunc) Handle(ctx context.Context, event models.OutboxEvent, resolved *outbox.ResolvedEvent) error {
	return f(ctx, event, resolved)
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	Repository outboxRepository
	Registry   registryResolver
	Handlers   map[enums.OutboxEventType]Handler
	Metrics    relayRecorder
	Guard      deliveryGuard
	Backlog    backlogCounter
	Timeout    time.Duration
}

type Service struct {
	cfg          *config.Config
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	registry     registryResolver
	handlers     map[enums.OutboxEventType]Handler
	metrics      relayRecorder
	guard        deliveryGuard
	backlog      backlogCounter
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	timeout      time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Registry == nil {
		return nil, errors.New("event registry is required")
	}
	if len(params.Handlers) == 0 {
		return nil, errors.New("at least one event handler is required")
	}

	batch := params.Config.Outbox.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.Outbox.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := params.Config.Outbox.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultHandlerTimeout
	}

	return &Service{
		cfg:          params.Config,
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		registry:     params.Registry,
		handlers:     params.Handlers,
		metrics:      params.Metrics,
		guard:        params.Guard,
		backlog:      params.Backlog,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
		timeout:      timeout,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping failed: %w", err)
	}

	interval := s.pollInterval
	if interval <= 0 {
		interval = time.Duration(defaultPollMs) * time.Millisecond
	}
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox relay context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox relay batch error", err)
			backoff = nextBackoff(backoff, interval, maxBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval
		s.reportBacklog(ctx)

		if processed {
			continue
		}

		if err := s.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

// processBatch locks a batch of pending rows and delivers each one. A failed
// row is marked and skipped so it cannot stall the rows behind it.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		processed = true
		for _, event := range events {
			resolved, err := s.registry.Resolve(event)
			if err != nil {
				if markErr := s.handleTerminal(ctx, tx, event, err, "decode", nil); markErr != nil {
					return markErr
				}
				continue
			}

			fields := s.eventFields(event, resolved.Envelope)
			if err := s.deliver(ctx, event, resolved); err != nil {
				var nonRetry outbox.NonRetryableError
				if errors.As(err, &nonRetry) {
					if markErr := s.handleTerminal(ctx, tx, event, err, "non_retryable", fields); markErr != nil {
						return markErr
					}
					continue
				}

				nextAttempt := event.AttemptCount + 1
				fields["attempt_count"] = nextAttempt

				if nextAttempt >= s.maxAttempts {
					terminalErr := fmt.Errorf("max delivery attempts reached: %w", err)
					if markErr := s.handleTerminal(ctx, tx, event, terminalErr, "max_attempts", fields); markErr != nil {
						return markErr
					}
					continue
				}

				s.recordFailure(event.EventType, false)
				ctxWithFields := s.logg.WithFields(ctx, fields)
				ctxWithFields = s.logg.WithField(ctxWithFields, "error", err.Error())
				s.logg.Warn(ctxWithFields, "outbox delivery failed")
				if markErr := s.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
					return fmt.Errorf("mark failure %s: %w", event.ID, markErr)
				}
				continue
			}

			if markErr := s.repo.MarkPublishedTx(tx, event.ID); markErr != nil {
				return fmt.Errorf("mark published %s: %w", event.ID, markErr)
			}
			if s.metrics != nil {
				s.metrics.IncPublished(string(event.EventType))
			}
			s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event delivered")
		}
		return nil
	})
	return processed, err
}

// deliver runs the handler for the row. With a guard configured, an event
// already delivered by an earlier pass is acknowledged without running again.
func (s *Service) deliver(ctx context.Context, event models.OutboxEvent, resolved *outbox.ResolvedEvent) error {
	handler, ok := s.handlers[event.EventType]
	if !ok {
		return outbox.NonRetryableError{Err: fmt.Errorf("no handler for %s", event.EventType)}
	}

	guarded := s.guard != nil && resolved.Envelope.EventID != ""
	if guarded {
		claimed, err := s.guard.Claim(ctx, string(event.EventType), resolved.Envelope.EventID)
		if err != nil {
			return fmt.Errorf("claim event: %w", err)
		}
		if !claimed {
			s.logg.Info(s.logg.WithField(ctx, "event_id", resolved.Envelope.EventID), "outbox event already delivered")
			return nil
		}
	}

	handleCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	err := handler.Handle(handleCtx, event, resolved)
	if s.metrics != nil {
		s.metrics.ObserveDuration(string(event.EventType), time.Since(start))
	}
	if err != nil && guarded {
		var nonRetry outbox.NonRetryableError
		if !errors.As(err, &nonRetry) {
			if relErr := s.guard.Release(context.WithoutCancel(ctx), string(event.EventType), resolved.Envelope.EventID); relErr != nil {
				s.logg.Error(ctx, "failed to release delivery claim", relErr)
			}
		}
	}
	return err
}

// handleTerminal parks a row for good. The row keeps its last error for
// whoever reconciles it by hand.
func (s *Service) handleTerminal(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, err error, reason string, fields map[string]any) error {
	if fields == nil {
		fields = s.eventFields(event, outbox.PayloadEnvelope{})
	}
	fields["terminal_reason"] = reason
	ctxWithFields := s.logg.WithFields(ctx, fields)
	ctxWithFields = s.logg.WithField(ctxWithFields, "error", err.Error())
	s.logg.Warn(ctxWithFields, "outbox event will not be retried")

	s.recordFailure(event.EventType, true)
	if markErr := s.repo.MarkTerminalTx(tx, event.ID, err, s.maxAttempts); markErr != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, markErr)
	}
	return nil
}

func (s *Service) reportBacklog(ctx context.Context) {
	if s.backlog == nil || s.metrics == nil {
		return
	}
	n, err := s.backlog.CountPending()
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to count undelivered outbox rows")
		return
	}
	s.metrics.SetUndelivered(n)
}

func (s *Service) recordFailure(eventType enums.OutboxEventType, terminal bool) {
	if s.metrics != nil {
		s.metrics.IncFailed(string(eventType), terminal)
	}
}

func (s *Service) eventFields(event models.OutboxEvent, envelope outbox.PayloadEnvelope) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"batch_size":     s.batchSize,
		"attempt_count":  event.AttemptCount,
	}
	if envelope.EventID != "" {
		fields["event_id"] = envelope.EventID
		fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if envelope.TerminalID != "" {
		fields["terminal_id"] = envelope.TerminalID
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}
