// Package checkout commits a cart as a sale. An Attempt moves
// idle -> submitting -> committed|failed exactly once; everything that
// happens after the backoffice accepts the sale is reported, never undone.
package checkout

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-pos/internal/cart"
	"github.com/angelmondragon/packfinderz-pos/internal/payment"
	"github.com/angelmondragon/packfinderz-pos/internal/receipts"
	"github.com/angelmondragon/packfinderz-pos/pkg/backoffice"
	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/money"
	"github.com/angelmondragon/packfinderz-pos/pkg/outbox"
)

const defaultSubmitTimeout = 15 * time.Second

// SalesAPI creates sales.
type SalesAPI interface {
	CreateSale(ctx context.Context, req backoffice.CreateSaleRequest) (*backoffice.Sale, error)
}

// DebitAPI debits loyalty points directly. Used when the debit cannot be
// queued.
type DebitAPI interface {
	RedeemPoints(ctx context.Context, customerID string, req backoffice.RedeemRequest) (*backoffice.RedeemResult, error)
}

// Journal records attempts and queues post-commit events.
type Journal interface {
	Open(ctx context.Context, rec *models.CheckoutAttempt) error
	Transition(ctx context.Context, id uuid.UUID, upd StateUpdate) error
	Commit(ctx context.Context, id uuid.UUID, upd StateUpdate, events []outbox.DomainEvent) error
}

type receiptQueue interface {
	Enqueue(job receipts.Job) error
}

type metricsRecorder interface {
	IncCheckoutAttempt(state string)
	ObserveSubmit(d time.Duration)
}

// Attempt is one single-use pass through the checkout state machine.
type Attempt struct {
	ID         uuid.UUID
	TerminalID string
	state      enums.CheckoutState
	payment    payment.Payment
	totals     cart.Totals
	lines      []cart.LineItem
	customerID *string
	redemption *cart.Redemption
	sale       *backoffice.Sale
	err        error
}

func (a *Attempt) State() enums.CheckoutState { return a.state }
func (a *Attempt) Sale() *backoffice.Sale     { return a.sale }
func (a *Attempt) Err() error                 { return a.err }

// Result describes a committed sale. PostCommitErr holds follow-up failures
// that did not affect the sale.
type Result struct {
	AttemptID     uuid.UUID           `json:"attemptId"`
	Sale          backoffice.Sale     `json:"sale"`
	Payment       payment.Payment     `json:"payment"`
	Totals        cart.Totals         `json:"totals"`
	State         enums.CheckoutState `json:"state"`
	PostCommitErr error               `json:"-"`
}

type FinalizerParams struct {
	Sales         SalesAPI
	Debits        DebitAPI
	Journal       Journal
	Receipts      receiptQueue
	Metrics       metricsRecorder
	Logger        *logger.Logger
	PrintMode     enums.PrintMode
	SubmitTimeout time.Duration
}

type Finalizer struct {
	sales     SalesAPI
	debits    DebitAPI
	journal   Journal
	receipts  receiptQueue
	metrics   metricsRecorder
	logg      *logger.Logger
	printMode enums.PrintMode
	timeout   time.Duration
}

func NewFinalizer(params FinalizerParams) (*Finalizer, error) {
	if params.Sales == nil {
		return nil, errors.New("sales api required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	mode := params.PrintMode
	if mode == "" {
		mode = enums.PrintModeStandard
	}
	if !mode.IsValid() {
		return nil, errors.New("invalid print mode " + string(mode))
	}
	timeout := params.SubmitTimeout
	if timeout <= 0 {
		timeout = defaultSubmitTimeout
	}
	return &Finalizer{
		sales:     params.Sales,
		debits:    params.Debits,
		journal:   params.Journal,
		receipts:  params.Receipts,
		metrics:   params.Metrics,
		logg:      params.Logger,
		printMode: mode,
		timeout:   timeout,
	}, nil
}

// Begin opens an attempt for the current cart. The payment must match the
// cart's final amount.
func (f *Finalizer) Begin(ctx context.Context, session *cart.Session, p payment.Payment) (*Attempt, error) {
	if session.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	totals := session.Totals()
	if !p.Covers(totals) {
		return nil, pkgerrors.New(pkgerrors.CodeInvariant, "payment does not match the cart total").
			WithDetails(map[string]any{
				"total":   totals.FinalAmount.StringFixed(money.Places),
				"payment": p.FinalAmount.StringFixed(money.Places),
			})
	}

	a := &Attempt{
		ID:         uuid.New(),
		TerminalID: session.TerminalID(),
		state:      enums.CheckoutStateIdle,
		payment:    p,
		totals:     totals,
		lines:      session.Lines(),
		customerID: session.CustomerID(),
		redemption: session.Redemption(),
	}
	if f.journal != nil {
		rec := &models.CheckoutAttempt{
			ID:             a.ID,
			TerminalID:     a.TerminalID,
			State:          a.state,
			CustomerID:     a.customerID,
			PaymentMethod:  p.Method,
			Subtotal:       totals.Subtotal,
			TaxAmount:      totals.TaxAmount,
			DiscountAmount: totals.DiscountAmount(),
			FinalAmount:    totals.FinalAmount,
			LineCount:      len(a.lines),
		}
		if err := f.journal.Open(ctx, rec); err != nil {
			f.logg.Error(f.attemptCtx(ctx, a), "failed to journal checkout attempt", err)
		}
	}
	return a, nil
}

// Submit sends the sale. On success the cart is cleared and post-commit
// effects run; on failure the cart is left as it was.
func (f *Finalizer) Submit(ctx context.Context, session *cart.Session, a *Attempt) (*Result, error) {
	if a == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no checkout attempt")
	}
	if a.state != enums.CheckoutStateIdle {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout attempt already "+a.state.String())
	}
	if !a.payment.Covers(session.Totals()) {
		return nil, pkgerrors.New(pkgerrors.CodeInvariant, "cart changed since the payment was settled")
	}

	a.state = enums.CheckoutStateSubmitting
	f.transition(ctx, a, StateUpdate{State: a.state})
	f.incAttempt(a.state)

	submitCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	started := time.Now()
	sale, err := f.sales.CreateSale(submitCtx, f.saleRequest(a))
	if f.metrics != nil {
		f.metrics.ObserveSubmit(time.Since(started))
	}
	if err != nil {
		return nil, f.fail(ctx, a, submitCtx, err)
	}

	a.state = enums.CheckoutStateCommitted
	a.sale = sale
	f.incAttempt(a.state)
	session.Clear()

	logCtx := f.logg.WithSaleID(f.attemptCtx(ctx, a), sale.ID)
	f.logg.Info(logCtx, "sale committed")

	// The sale exists upstream now; its bookkeeping must outlive the caller.
	postCtx, cancelPost := context.WithTimeout(context.WithoutCancel(logCtx), f.timeout)
	defer cancelPost()
	postErr := f.afterCommit(postCtx, a)
	if postErr != nil {
		f.logg.Error(logCtx, "post-commit effects failed", postErr)
	}
	return &Result{
		AttemptID:     a.ID,
		Sale:          *sale,
		Payment:       a.payment,
		Totals:        a.totals,
		State:         a.state,
		PostCommitErr: postErr,
	}, nil
}

func (f *Finalizer) fail(ctx context.Context, a *Attempt, submitCtx context.Context, cause error) error {
	err := cause
	switch {
	case errors.Is(submitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		err = pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "sale submission timed out")
	case pkgerrors.As(cause) == nil:
		err = pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "sale submission failed")
	}

	a.state = enums.CheckoutStateFailed
	a.err = err
	msg := err.Error()
	f.transition(context.WithoutCancel(ctx), a, StateUpdate{State: a.state, LastError: &msg})
	f.incAttempt(a.state)
	f.logg.Warn(f.logg.WithField(f.attemptCtx(ctx, a), "error", msg), "sale submission failed")
	return err
}

func (f *Finalizer) saleRequest(a *Attempt) backoffice.CreateSaleRequest {
	items := make([]backoffice.SaleItem, 0, len(a.lines))
	for _, line := range a.lines {
		items = append(items, backoffice.SaleItem{
			ProductID:        line.ProductID,
			ProductVariantID: line.VariantID,
			Quantity:         line.Quantity,
			UnitPrice:        line.UnitPrice,
			TaxRate:          line.TaxRate,
			Subtotal:         money.Round(line.Subtotal()),
		})
	}
	payments := make([]backoffice.SalePayment, 0, len(a.payment.Splits))
	for _, sp := range a.payment.Splits {
		payments = append(payments, backoffice.SalePayment{Method: sp.Method.String(), Amount: sp.Amount})
	}
	req := backoffice.CreateSaleRequest{
		TerminalID:      a.TerminalID,
		CustomerID:      a.customerID,
		Items:           items,
		Subtotal:        a.totals.Subtotal,
		TaxAmount:       a.totals.TaxAmount,
		DiscountAmount:  a.totals.ManualDiscount,
		LoyaltyDiscount: a.totals.LoyaltyDiscount,
		TotalAmount:     a.totals.FinalAmount,
		PaymentMethod:   a.payment.Method.String(),
		Payments:        payments,
		AmountPaid:      a.payment.Tendered,
		ChangeAmount:    a.payment.Change,
	}
	if a.redemption != nil {
		req.LoyaltyPointsRedeemed = a.redemption.Points
	}
	return req
}

// afterCommit journals the commit with the deferred loyalty debit and
// schedules receipts. Errors are collected, not returned early.
func (f *Finalizer) afterCommit(ctx context.Context, a *Attempt) error {
	var errs error
	var events []outbox.DomainEvent
	pendingDebit := a.redemption != nil && !a.redemption.Debited
	if pendingDebit {
		events = append(events, debitEvent(a))
	}

	upd := StateUpdate{State: a.state, SaleID: &a.sale.ID}
	if a.sale.ReceiptNumber != "" {
		upd.ReceiptNumber = &a.sale.ReceiptNumber
	}

	queued := false
	if f.journal != nil {
		if err := f.journal.Commit(ctx, a.ID, upd, events); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			queued = true
		}
	}
	if pendingDebit && !queued {
		errs = multierr.Append(errs, f.debitNow(ctx, a))
	}

	if f.receipts != nil {
		formats := f.printMode.Formats()
		if len(formats) > 0 {
			errs = multierr.Append(errs, f.receipts.Enqueue(receipts.Job{
				SaleID:        a.sale.ID,
				ReceiptNumber: a.sale.ReceiptNumber,
				TerminalID:    a.TerminalID,
				Formats:       formats,
			}))
		}
	}
	return errs
}

func debitEvent(a *Attempt) outbox.DomainEvent {
	r := a.redemption
	return outbox.DomainEvent{
		EventType:     enums.EventLoyaltyPointsDebit,
		AggregateType: enums.AggregateSale,
		AggregateID:   a.sale.ID,
		TerminalID:    a.TerminalID,
		Data: outbox.LoyaltyPointsDebitEvent{
			SaleID:        a.sale.ID,
			CustomerID:    r.CustomerID,
			Points:        r.Points,
			RewardType:    r.RewardType.String(),
			DiscountValue: r.Value.StringFixed(money.Places),
			Description:   r.Description,
		},
	}
}

func (f *Finalizer) debitNow(ctx context.Context, a *Attempt) error {
	if f.debits == nil {
		return errors.New("loyalty debit for sale " + a.sale.ID + " could not be queued")
	}
	r := a.redemption
	_, err := f.debits.RedeemPoints(ctx, r.CustomerID, backoffice.RedeemRequest{
		Points:        r.Points,
		RewardType:    r.RewardType.String(),
		DiscountValue: r.Value,
		Description:   r.Description,
		Reference:     a.sale.ID,
	})
	return err
}

func (f *Finalizer) transition(ctx context.Context, a *Attempt, upd StateUpdate) {
	if f.journal == nil {
		return
	}
	if err := f.journal.Transition(ctx, a.ID, upd); err != nil {
		f.logg.Error(f.attemptCtx(ctx, a), "failed to journal checkout transition", err)
	}
}

func (f *Finalizer) incAttempt(state enums.CheckoutState) {
	if f.metrics != nil {
		f.metrics.IncCheckoutAttempt(state.String())
	}
}

func (f *Finalizer) attemptCtx(ctx context.Context, a *Attempt) context.Context {
	fields := map[string]any{
		"attempt_id":  a.ID.String(),
		"terminal_id": a.TerminalID,
		"state":       a.state,
	}
	if a.payment.Method != "" {
		fields["payment_method"] = strings.ToLower(a.payment.Method.String())
	}
	return f.logg.WithFields(ctx, fields)
}
