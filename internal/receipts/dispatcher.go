// Package receipts prints receipts for committed sales off the checkout path.
// Rendering failures are logged and counted; they never affect a sale.
package receipts

import (
	"context"
	"errors"
	"sync"

	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
)

const defaultQueueSize = 64

var (
	// ErrQueueFull is returned when the dispatcher cannot take another job.
	ErrQueueFull = errors.New("receipt queue full")
	// ErrDispatcherClosed is returned once Run has started its final drain.
	ErrDispatcherClosed = errors.New("receipt dispatcher closed")
)

type failureRecorder interface {
	IncReceiptFailure(format string)
}

type DispatcherParams struct {
	Renderer  Renderer
	Logger    *logger.Logger
	Metrics   failureRecorder
	QueueSize int
}

// Dispatcher hands jobs to a single background goroutine.
type Dispatcher struct {
	renderer Renderer
	logg     *logger.Logger
	metrics  failureRecorder
	queue    chan Job
	mu       sync.RWMutex
	closed   bool
	once     sync.Once
	done     chan struct{}
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Renderer == nil {
		return nil, errors.New("renderer required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	size := params.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Dispatcher{
		renderer: params.Renderer,
		logg:     params.Logger,
		metrics:  params.Metrics,
		queue:    make(chan Job, size),
		done:     make(chan struct{}),
	}, nil
}

// Enqueue schedules a job without blocking.
func (d *Dispatcher) Enqueue(job Job) error {
	if len(job.Formats) == 0 {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run consumes jobs until ctx is canceled, then refuses new jobs and drains
// what is already queued.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.once.Do(func() { close(d.done) })
	for {
		select {
		case <-ctx.Done():
			d.mu.Lock()
			d.closed = true
			d.mu.Unlock()
			d.drain(context.WithoutCancel(ctx))
			return nil
		case job := <-d.queue:
			d.process(ctx, job)
		}
	}
}

// Done is closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case job := <-d.queue:
			d.process(ctx, job)
		default:
			return
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, job Job) {
	for _, format := range job.Formats {
		if err := d.renderer.Render(ctx, job, format); err != nil {
			if d.metrics != nil {
				d.metrics.IncReceiptFailure(format.String())
			}
			logCtx := d.logg.WithFields(ctx, map[string]any{
				"sale_id":     job.SaleID,
				"terminal_id": job.TerminalID,
				"format":      format,
			})
			d.logg.Error(logCtx, "receipt render failed", err)
			continue
		}
		d.logg.Debug(d.logg.WithField(ctx, "sale_id", job.SaleID), "receipt rendered")
	}
}
