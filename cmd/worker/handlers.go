package main

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-pos/internal/receipts"
	"github.com/angelmondragon/packfinderz-pos/pkg/backoffice"
	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/outbox"
)

type pointsDebiter interface {
	RedeemPoints(ctx context.Context, customerID string, req backoffice.RedeemRequest) (*backoffice.RedeemResult, error)
}

// loyaltyDebitHandler debits points for a committed sale. The sale id is sent
// as the reference so the loyalty API can drop a repeated delivery.
func loyaltyDebitHandler(api pointsDebiter) Handler {
	return HandlerFunc(func(ctx context.Context, event models.OutboxEvent, resolved *outbox.ResolvedEvent) error {
		payload, ok := resolved.Payload.(*outbox.LoyaltyPointsDebitEvent)
		if !ok {
			return outbox.NonRetryableError{Err: fmt.Errorf("unexpected payload %T for %s", resolved.Payload, event.EventType)}
		}
		if payload.CustomerID == "" || payload.Points <= 0 {
			return outbox.NonRetryableError{Err: fmt.Errorf("loyalty debit for sale %s is incomplete", payload.SaleID)}
		}
		value, err := decimal.NewFromString(payload.DiscountValue)
		if err != nil {
			return outbox.NonRetryableError{Err: fmt.Errorf("discount value %q: %w", payload.DiscountValue, err)}
		}
		_, err = api.RedeemPoints(ctx, payload.CustomerID, backoffice.RedeemRequest{
			Points:        payload.Points,
			RewardType:    payload.RewardType,
			DiscountValue: value,
			Description:   payload.Description,
			Reference:     payload.SaleID,
		})
		return classify(err)
	})
}

func receiptRenderHandler(renderer receipts.Renderer) Handler {
	return HandlerFunc(func(ctx context.Context, event models.OutboxEvent, resolved *outbox.ResolvedEvent) error {
		payload, ok := resolved.Payload.(*outbox.ReceiptRenderEvent)
		if !ok {
			return outbox.NonRetryableError{Err: fmt.Errorf("unexpected payload %T for %s", resolved.Payload, event.EventType)}
		}
		format := enums.ReceiptFormat(payload.Format)
		if format != enums.ReceiptFormatStandard && format != enums.ReceiptFormatThermal {
			return outbox.NonRetryableError{Err: fmt.Errorf("unknown receipt format %q", payload.Format)}
		}
		job := receipts.Job{
			SaleID:        payload.SaleID,
			ReceiptNumber: payload.ReceiptNumber,
			TerminalID:    payload.TerminalID,
			Formats:       []enums.ReceiptFormat{format},
		}
		return classify(renderer.Render(ctx, job, format))
	})
}

// classify marks errors that will fail the same way on every retry.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeValidation, pkgerrors.CodeNotFound, pkgerrors.CodeConflict:
		return outbox.NonRetryableError{Err: err}
	}
	return err
}
