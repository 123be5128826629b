package receipts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-pos/pkg/backoffice"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	"github.com/angelmondragon/packfinderz-pos/pkg/outbox"
)

const defaultPublishTimeout = 15 * time.Second

// Job is one committed sale whose receipts need printing.
type Job struct {
	SaleID        string                `json:"saleId"`
	ReceiptNumber string                `json:"receiptNumber,omitempty"`
	TerminalID    string                `json:"terminalId,omitempty"`
	Formats       []enums.ReceiptFormat `json:"formats"`
}

// Renderer produces a single receipt format for a sale.
type Renderer interface {
	Render(ctx context.Context, job Job, format enums.ReceiptFormat) error
}

type receiptAPI interface {
	RenderReceipt(ctx context.Context, saleID string, req backoffice.RenderReceiptRequest) error
}

// HTTPRenderer asks the backoffice to render and print.
type HTTPRenderer struct {
	api receiptAPI
}

func NewHTTPRenderer(api receiptAPI) (*HTTPRenderer, error) {
	if api == nil {
		return nil, errors.New("receipt api required")
	}
	return &HTTPRenderer{api: api}, nil
}

func (r *HTTPRenderer) Render(ctx context.Context, job Job, format enums.ReceiptFormat) error {
	return r.api.RenderReceipt(ctx, job.SaleID, backoffice.RenderReceiptRequest{
		Format:     format.String(),
		TerminalID: job.TerminalID,
	})
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// PubSubRenderer publishes a print job for the print service to pick up.
type PubSubRenderer struct {
	pub publisher
}

func NewPubSubRenderer(p *gcppubsub.Publisher) (*PubSubRenderer, error) {
	if p == nil {
		return nil, errors.New("receipt publisher required")
	}
	return &PubSubRenderer{pub: &gcpPublisher{Publisher: p}}, nil
}

func (r *PubSubRenderer) Render(ctx context.Context, job Job, format enums.ReceiptFormat) error {
	body, err := json.Marshal(outbox.ReceiptRenderEvent{
		SaleID:        job.SaleID,
		ReceiptNumber: job.ReceiptNumber,
		Format:        format.String(),
		TerminalID:    job.TerminalID,
	})
	if err != nil {
		return err
	}
	msg := &gcppubsub.Message{
		Data: body,
		Attributes: map[string]string{
			"sale_id":     job.SaleID,
			"format":      format.String(),
			"terminal_id": job.TerminalID,
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := r.pub.Publish(publishCtx, msg)
	if result == nil {
		return fmt.Errorf("publisher returned nil for sale %s", job.SaleID)
	}
	_, err = result.Get(publishCtx)
	return err
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return p.Publisher.Publish(ctx, msg)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type emitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OutboxRenderer queues the render request durably; the worker delivers it.
type OutboxRenderer struct {
	db     txRunner
	outbox emitter
}

func NewOutboxRenderer(db txRunner, ob emitter) (*OutboxRenderer, error) {
	if db == nil {
		return nil, errors.New("database required")
	}
	if ob == nil {
		return nil, errors.New("outbox service required")
	}
	return &OutboxRenderer{db: db, outbox: ob}, nil
}

func (r *OutboxRenderer) Render(ctx context.Context, job Job, format enums.ReceiptFormat) error {
	return r.db.WithTx(ctx, func(tx *gorm.DB) error {
		return r.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReceiptRender,
			AggregateType: enums.AggregateSale,
			AggregateID:   job.SaleID + ":" + format.String(),
			TerminalID:    job.TerminalID,
			Data: outbox.ReceiptRenderEvent{
				SaleID:        job.SaleID,
				ReceiptNumber: job.ReceiptNumber,
				Format:        format.String(),
				TerminalID:    job.TerminalID,
			},
		})
	})
}
