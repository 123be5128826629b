package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-pos/internal/receipts"
	"github.com/angelmondragon/packfinderz-pos/pkg/backoffice"
	"github.com/angelmondragon/packfinderz-pos/pkg/config"
	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/outbox"
)

func TestProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			debitRow(t, "sale-1", 500),
			debitRow(t, "sale-2", 1000),
		},
	}
	points := &fakePoints{errs: []error{errors.New("connection reset"), nil}}
	stats := &fakeRelayMetrics{}
	service := newTestService(t, repo, points, &fakeRenderer{}, stats, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != repo.events[0].ID {
		t.Fatalf("expected first row marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != repo.events[1].ID {
		t.Fatalf("expected second row marked delivered, got %v", repo.published)
	}
	if stats.published != 1 || stats.retryable != 1 {
		t.Fatalf("unexpected metrics %+v", stats)
	}
}

func TestLoyaltyDebitUsesSaleAsReference(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{debitRow(t, "sale-9", 500)}}
	points := &fakePoints{}
	service := newTestService(t, repo, points, &fakeRenderer{}, nil, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(points.calls) != 1 {
		t.Fatalf("expected one debit, got %d", len(points.calls))
	}
	call := points.calls[0]
	if call.customerID != "cust-1" || call.req.Points != 500 || call.req.Reference != "sale-9" {
		t.Fatalf("unexpected debit %+v", call)
	}
	if call.req.DiscountValue.StringFixed(2) != "5.00" {
		t.Fatalf("unexpected discount value %s", call.req.DiscountValue)
	}
}

func TestReceiptRenderDeliversSingleFormat(t *testing.T) {
	row := envelopeRow(t, enums.EventReceiptRender, "sale-3:thermal", outbox.ReceiptRenderEvent{
		SaleID:     "sale-3",
		Format:     "thermal",
		TerminalID: "lane-1",
	})
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	renderer := &fakeRenderer{}
	service := newTestService(t, repo, &fakePoints{}, renderer, nil, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(renderer.formats) != 1 || renderer.formats[0] != enums.ReceiptFormatThermal {
		t.Fatalf("unexpected rendered formats %v", renderer.formats)
	}
	if renderer.jobs[0].TerminalID != "lane-1" {
		t.Fatalf("expected terminal id to be carried")
	}
	if len(repo.published) != 1 {
		t.Fatalf("expected row delivered")
	}
}

func TestRejectedDebitIsNotRetried(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{debitRow(t, "sale-4", 500)}}
	points := &fakePoints{errs: []error{pkgerrors.New(pkgerrors.CodeConflict, "insufficient points")}}
	stats := &fakeRelayMetrics{}
	service := newTestService(t, repo, points, &fakeRenderer{}, stats, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected terminal row, got %d", len(repo.terminal))
	}
	if len(repo.failed) != 0 {
		t.Fatalf("expected no retryable failure")
	}
	if stats.terminal != 1 {
		t.Fatalf("expected terminal failure metric")
	}
}

func TestUndecodableRowIsParked(t *testing.T) {
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventReceiptRender,
		AggregateType: enums.AggregateSale,
		AggregateID:   "sale-5:standard",
		Payload:       "{not json",
	}
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	renderer := &fakeRenderer{}
	service := newTestService(t, repo, &fakePoints{}, renderer, nil, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected undecodable row parked")
	}
	if len(renderer.jobs) != 0 {
		t.Fatalf("renderer should not be called")
	}
}

func TestMaxAttemptsParksRow(t *testing.T) {
	row := debitRow(t, "sale-6", 500)
	row.AttemptCount = 1
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	points := &fakePoints{errs: []error{errors.New("timeout")}}
	service := newTestService(t, repo, points, &fakeRenderer{}, nil, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected row parked after max attempts")
	}
	if repo.terminalAttempts != 2 {
		t.Fatalf("expected attempt ceiling 2, got %d", repo.terminalAttempts)
	}
}

func TestEmptyBatchReportsIdle(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePoints{}, &fakeRenderer{}, nil, nil)
	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if processed {
		t.Fatalf("expected idle batch")
	}
}

func TestNextBackoffCaps(t *testing.T) {
	if got := nextBackoff(time.Second, time.Second, 3*time.Second); got != 2*time.Second {
		t.Fatalf("expected 2s got %s", got)
	}
	if got := nextBackoff(2*time.Second, time.Second, 3*time.Second); got != 3*time.Second {
		t.Fatalf("expected cap 3s got %s", got)
	}
}

func newTestService(t *testing.T, repo outboxRepository, points pointsDebiter, renderer receipts.Renderer, stats relayRecorder, outboxCfgOverride *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	service, err := NewService(ServiceParams{
		Config:     &config.Config{Outbox: outboxCfg},
		Logger:     logger.Nop(),
		DB:         &fakeDB{},
		Repository: repo,
		Registry:   outbox.NewDefaultRegistry(),
		Handlers: map[enums.OutboxEventType]Handler{
			enums.EventLoyaltyPointsDebit: loyaltyDebitHandler(points),
			enums.EventReceiptRender:      receiptRenderHandler(renderer),
		},
		Metrics: stats,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func debitRow(t *testing.T, saleID string, points int64) models.OutboxEvent {
	t.Helper()
	return envelopeRow(t, enums.EventLoyaltyPointsDebit, saleID, outbox.LoyaltyPointsDebitEvent{
		SaleID:        saleID,
		CustomerID:    "cust-1",
		Points:        points,
		RewardType:    "predefined",
		DiscountValue: "5.00",
	})
}

func envelopeRow(t *testing.T, eventType enums.OutboxEventType, aggregateID string, data any) models.OutboxEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       raw,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateSale,
		AggregateID:   aggregateID,
		Payload:       string(payload),
	}
}

type fakeRepo struct {
	events           []models.OutboxEvent
	published        []uuid.UUID
	failed           []uuid.UUID
	terminal         []uuid.UUID
	terminalAttempts int
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	f.terminalAttempts = terminalAttempts
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type debitCall struct {
	customerID string
	req        backoffice.RedeemRequest
}

type fakePoints struct {
	errs  []error
	calls []debitCall
}

func (f *fakePoints) RedeemPoints(_ context.Context, customerID string, req backoffice.RedeemRequest) (*backoffice.RedeemResult, error) {
	f.calls = append(f.calls, debitCall{customerID: customerID, req: req})
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	if err != nil {
		return nil, err
	}
	return &backoffice.RedeemResult{TransactionID: "tx-1"}, nil
}

type fakeRenderer struct {
	jobs    []receipts.Job
	formats []enums.ReceiptFormat
}

func (f *fakeRenderer) Render(_ context.Context, job receipts.Job, format enums.ReceiptFormat) error {
	f.jobs = append(f.jobs, job)
	f.formats = append(f.formats, format)
	return nil
}

type fakeRelayMetrics struct {
	published   int
	retryable   int
	terminal    int
	undelivered int64
}

func (f *fakeRelayMetrics) ObserveDuration(string, time.Duration) {}

func (f *fakeRelayMetrics) IncPublished(string) { f.published++ }

func (f *fakeRelayMetrics) SetUndelivered(n int64) { f.undelivered = n }

func (f *fakeRelayMetrics) IncFailed(_ string, terminal bool) {
	if terminal {
		f.terminal++
		return
	}
	f.retryable++
}

type fakeGuard struct {
	claimed  map[string]bool
	released []string
}

func (f *fakeGuard) Claim(_ context.Context, handler, eventID string) (bool, error) {
	key := handler + ":" + eventID
	if f.claimed[key] {
		return false, nil
	}
	f.claimed[key] = true
	return true, nil
}

func (f *fakeGuard) Release(_ context.Context, handler, eventID string) error {
	key := handler + ":" + eventID
	delete(f.claimed, key)
	f.released = append(f.released, key)
	return nil
}

func TestGuardSkipsRedeliveredEvent(t *testing.T) {
	row := debitRow(t, "sale-7", 500)
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	points := &fakePoints{}
	service := newTestService(t, repo, points, &fakeRenderer{}, nil, nil)
	guard := &fakeGuard{claimed: map[string]bool{}}
	service.guard = guard

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	// The row is fetched again, as if the acknowledgement had been lost.
	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(points.calls) != 1 {
		t.Fatalf("expected a single debit, got %d", len(points.calls))
	}
	if len(repo.published) != 2 {
		t.Fatalf("expected both passes to acknowledge the row, got %d", len(repo.published))
	}
}

func TestGuardReleasedOnRetryableFailure(t *testing.T) {
	row := debitRow(t, "sale-8", 500)
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	points := &fakePoints{errs: []error{errors.New("timeout")}}
	service := newTestService(t, repo, points, &fakeRenderer{}, nil, nil)
	guard := &fakeGuard{claimed: map[string]bool{}}
	service.guard = guard

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if len(guard.released) != 1 {
		t.Fatalf("expected claim released for retry")
	}
	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("retry pass: %v", err)
	}
	if len(points.calls) != 2 {
		t.Fatalf("expected retry to debit again, got %d calls", len(points.calls))
	}
}

type countFunc func() (int64, error)

func (f countFunc) CountPending() (int64, error) { return f() }

func TestReportBacklogSetsGauge(t *testing.T) {
	stats := &fakeRelayMetrics{undelivered: -1}
	service := newTestService(t, &fakeRepo{}, &fakePoints{}, &fakeRenderer{}, stats, nil)

	service.reportBacklog(context.Background())
	if stats.undelivered != -1 {
		t.Fatalf("no counter configured, gauge should be untouched")
	}

	service.backlog = countFunc(func() (int64, error) { return 7, nil })
	service.reportBacklog(context.Background())
	if stats.undelivered != 7 {
		t.Fatalf("expected 7 undelivered, got %d", stats.undelivered)
	}

	service.backlog = countFunc(func() (int64, error) { return 0, errors.New("db down") })
	service.reportBacklog(context.Background())
	if stats.undelivered != 7 {
		t.Fatalf("count errors should leave the gauge alone, got %d", stats.undelivered)
	}
}
