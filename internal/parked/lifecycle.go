// Package parked suspends carts to the backoffice and brings them back.
package parked

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/packfinderz-pos/internal/cart"
	"github.com/angelmondragon/packfinderz-pos/pkg/backoffice"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
)

// Store persists parked sales.
type Store interface {
	CreateParkedSale(ctx context.Context, parked backoffice.ParkedSale) (*backoffice.ParkedSale, error)
	GetParkedSale(ctx context.Context, parkedSaleID string) (*backoffice.ParkedSale, error)
	DeleteParkedSale(ctx context.Context, parkedSaleID string) error
}

type Lifecycle struct {
	store Store
	logg  *logger.Logger
}

func NewLifecycle(store Store, logg *logger.Logger) (*Lifecycle, error) {
	if store == nil {
		return nil, errors.New("parked sale store required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Lifecycle{store: store, logg: logg}, nil
}

// Park submits a denormalized snapshot of the cart and clears it on success.
// An undebited loyalty redemption is not carried over; a debited one blocks
// parking because the points could not be restored on resume.
func (l *Lifecycle) Park(ctx context.Context, session *cart.Session, notes string) (*backoffice.ParkedSale, error) {
	if session.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot park an empty cart")
	}
	if r := session.Redemption(); r != nil && r.Debited {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cart has redeemed loyalty points; check it out or clear it")
	}

	totals := session.Totals()
	lines := session.Lines()
	items := make([]backoffice.ParkedSaleItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, backoffice.ParkedSaleItem{
			ProductID:        line.ProductID,
			ProductVariantID: line.VariantID,
			ProductName:      line.Name,
			ProductSKU:       line.SKU,
			Quantity:         line.Quantity,
			Price:            line.UnitPrice,
			TaxRate:          line.TaxRate,
			CategoryID:       line.CategoryID,
		})
	}

	created, err := l.store.CreateParkedSale(ctx, backoffice.ParkedSale{
		TerminalID:     session.TerminalID(),
		CustomerID:     session.CustomerID(),
		Items:          items,
		Subtotal:       totals.Subtotal,
		TaxAmount:      totals.TaxAmount,
		DiscountAmount: totals.ManualDiscount,
		Notes:          strings.TrimSpace(notes),
	})
	if err != nil {
		return nil, err
	}

	session.Clear()
	l.logg.Info(l.logg.WithFields(ctx, map[string]any{
		"parked_sale_id": created.ID,
		"line_count":     len(items),
	}), "cart parked")
	return created, nil
}

// Resume replaces the cart with a parked sale. A non-empty cart is only
// overwritten when force is set. The parked sale is deleted before the cart
// is touched so it cannot be resumed twice.
func (l *Lifecycle) Resume(ctx context.Context, session *cart.Session, parkedSaleID string, force bool) (*backoffice.ParkedSale, error) {
	id := strings.TrimSpace(parkedSaleID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "parked sale id is required")
	}
	if !session.IsEmpty() && !force {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cart is not empty; park or clear it first")
	}
	if r := session.Redemption(); r != nil && r.Debited {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cart has redeemed loyalty points; check it out or clear it")
	}

	parked, err := l.store.GetParkedSale(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := l.store.DeleteParkedSale(ctx, id); err != nil {
		return nil, err
	}

	lines := make([]cart.LineItem, 0, len(parked.Items))
	for _, item := range parked.Items {
		lines = append(lines, cart.LineItem{
			ProductID:  item.ProductID,
			VariantID:  item.ProductVariantID,
			Name:       item.ProductName,
			SKU:        item.ProductSKU,
			CategoryID: item.CategoryID,
			Quantity:   item.Quantity,
			UnitPrice:  item.Price,
			TaxRate:    item.TaxRate,
			Stock:      cart.PlaceholderStock,
		})
	}
	session.Replace(lines, parked.CustomerID)
	if parked.DiscountAmount.IsPositive() {
		if err := session.SetManualDiscount(parked.DiscountAmount); err != nil {
			l.logg.Warn(l.logg.WithField(ctx, "parked_sale_id", id), "parked discount no longer fits the cart; dropped")
		}
	}

	l.logg.Info(l.logg.WithFields(ctx, map[string]any{
		"parked_sale_id": id,
		"line_count":     len(lines),
		"forced":         force,
	}), "parked sale resumed")
	return parked, nil
}
