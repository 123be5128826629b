package terminal

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-pos/internal/cart"
	"github.com/angelmondragon/packfinderz-pos/internal/catalog"
	"github.com/angelmondragon/packfinderz-pos/internal/checkout"
	"github.com/angelmondragon/packfinderz-pos/internal/loyalty"
	"github.com/angelmondragon/packfinderz-pos/internal/payment"
	"github.com/angelmondragon/packfinderz-pos/pkg/backoffice"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
)

type resolver interface {
	Resolve(ctx context.Context, raw string) (*catalog.Resolution, error)
}

type productSource interface {
	GetProduct(ctx context.Context, productID string) (*backoffice.Product, error)
	ListVariants(ctx context.Context, productID string) ([]backoffice.Variant, error)
}

type parker interface {
	Park(ctx context.Context, session *cart.Session, notes string) (*backoffice.ParkedSale, error)
	Resume(ctx context.Context, session *cart.Session, parkedSaleID string, force bool) (*backoffice.ParkedSale, error)
}

type negotiator interface {
	Quote(ctx context.Context, customerID string) (*loyalty.Quote, error)
	Redeem(ctx context.Context, session *cart.Session, customerID string, req loyalty.Request) (*cart.Redemption, error)
}

type finalizer interface {
	Begin(ctx context.Context, session *cart.Session, p payment.Payment) (*checkout.Attempt, error)
	Submit(ctx context.Context, session *cart.Session, a *checkout.Attempt) (*checkout.Result, error)
}

type stockRecorder interface {
	IncStockDenied(operation string)
}

// ServiceParams groups dependencies for the terminal service.
type ServiceParams struct {
	Registry  *Registry
	Resolver  resolver
	Products  productSource
	Parking   parker
	Loyalty   negotiator
	Finalizer finalizer
	Metrics   stockRecorder
	Logger    *logger.Logger
}

// Service is the command surface a terminal UI drives.
type Service interface {
	Cart(ctx context.Context, terminalID string) (CartView, error)
	Scan(ctx context.Context, terminalID, raw string, qty int) (*ScanResult, error)
	AddItem(ctx context.Context, terminalID, productID string, variantID *string, qty int) (CartView, error)
	SetQuantity(ctx context.Context, terminalID, productID string, variantID *string, qty int) (CartView, error)
	RemoveItem(ctx context.Context, terminalID, productID string, variantID *string) (CartView, error)
	Clear(ctx context.Context, terminalID string) (CartView, error)
	LinkCustomer(ctx context.Context, terminalID string, customerID *string) (CartView, error)
	SetManualDiscount(ctx context.Context, terminalID string, amount decimal.Decimal) (CartView, error)
	Park(ctx context.Context, terminalID, notes string) (*backoffice.ParkedSale, error)
	Resume(ctx context.Context, terminalID, parkedSaleID string, force bool) (CartView, error)
	QuoteLoyalty(ctx context.Context, terminalID, customerID string) (*loyalty.Quote, error)
	Redeem(ctx context.Context, terminalID, customerID string, req loyalty.Request) (CartView, error)
	Checkout(ctx context.Context, terminalID string, req CheckoutRequest) (*checkout.Result, error)
}

type service struct {
	registry  *Registry
	resolver  resolver
	products  productSource
	parking   parker
	loyalty   negotiator
	finalizer finalizer
	metrics   stockRecorder
	logg      *logger.Logger
}

// NewService builds the terminal service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Registry == nil:
		return nil, errors.New("terminal registry required")
	case params.Resolver == nil:
		return nil, errors.New("resolver required")
	case params.Products == nil:
		return nil, errors.New("product source required")
	case params.Parking == nil:
		return nil, errors.New("parked sale lifecycle required")
	case params.Loyalty == nil:
		return nil, errors.New("loyalty negotiator required")
	case params.Finalizer == nil:
		return nil, errors.New("checkout finalizer required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		registry:  params.Registry,
		resolver:  params.Resolver,
		products:  params.Products,
		parking:   params.Parking,
		loyalty:   params.Loyalty,
		finalizer: params.Finalizer,
		metrics:   params.Metrics,
		logg:      logg,
	}, nil
}

func (s *service) Cart(ctx context.Context, terminalID string) (CartView, error) {
	if err := requireTerminal(terminalID); err != nil {
		return CartView{}, err
	}
	var view CartView
	err := s.registry.View(ctx, terminalID, func(session *cart.Session) error {
		view = viewOf(session)
		return nil
	})
	return view, err
}

// Scan resolves raw input and adds one match to the cart. A product that has
// variants is returned for selection without touching the cart.
func (s *service) Scan(ctx context.Context, terminalID, raw string, qty int) (*ScanResult, error) {
	if err := requireTerminal(terminalID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "scan input is required")
	}
	var out *ScanResult
	err := s.registry.Do(ctx, terminalID, func(session *cart.Session) error {
		res, err := s.resolver.Resolve(ctx, raw)
		if err != nil {
			return err
		}
		out = &ScanResult{Resolution: res}
		if !res.NeedsVariant {
			line, err := session.Add(res.Product, res.Variant, qty)
			if err != nil {
				return s.observeStock("scan", err)
			}
			out.Added = &line
		}
		out.Cart = viewOf(session)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddItem adds a product picked from the UI. Stock is read fresh from the catalog.
func (s *service) AddItem(ctx context.Context, terminalID, productID string, variantID *string, qty int) (CartView, error) {
	if err := requireTerminal(terminalID); err != nil {
		return CartView{}, err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return CartView{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	return s.mutate(ctx, terminalID, func(session *cart.Session) error {
		product, err := s.products.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		var variant *backoffice.Variant
		if id := trimmed(variantID); id != nil {
			variant, err = s.findVariant(ctx, product, *id)
			if err != nil {
				return err
			}
		}
		_, err = session.Add(*product, variant, qty)
		return s.observeStock("add", err)
	})
}

func (s *service) findVariant(ctx context.Context, product *backoffice.Product, variantID string) (*backoffice.Variant, error) {
	variants := product.Variants
	if len(variants) == 0 {
		var err error
		variants, err = s.products.ListVariants(ctx, product.ID)
		if err != nil {
			return nil, err
		}
	}
	for i := range variants {
		if variants[i].ID == variantID {
			v := variants[i]
			return &v, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found").
		WithDetails(map[string]any{"productId": product.ID, "variantId": variantID})
}

func (s *service) SetQuantity(ctx context.Context, terminalID, productID string, variantID *string, qty int) (CartView, error) {
	if err := requireTerminal(terminalID); err != nil {
		return CartView{}, err
	}
	return s.mutate(ctx, terminalID, func(session *cart.Session) error {
		return s.observeStock("set_quantity", session.SetQuantity(productID, trimmed(variantID), qty))
	})
}

func (s *service) RemoveItem(ctx context.Context, terminalID, productID string, variantID *string) (CartView, error) {
	if err := requireTerminal(terminalID); err != nil {
		return CartView{}, err
	}
	return s.mutate(ctx, terminalID, func(session *cart.Session) error {
		session.Remove(productID, trimmed(variantID))
		return nil
	})
}

func (s *service) Clear(ctx context.Context, terminalID string) (CartView, error) {
	if err := requireTerminal(terminalID); err != nil {
		return CartView{}, err
	}
	return s.mutate(ctx, terminalID, func(session *cart.Session) error {
		if r := session.Redemption(); r != nil && r.Debited {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"terminal_id": terminalID,
				"customer_id": r.CustomerID,
				"points":      r.Points,
			}), "clearing cart with debited loyalty points")
		}
		session.Clear()
		return nil
	})
}

func (s *service) LinkCustomer(ctx context.Context, terminalID string, customerID *string) (CartView, error) {
	if err := requireTerminal(terminalID); err != nil {
		return CartView{}, err
	}
	return s.mutate(ctx, terminalID, func(session *cart.Session) error {
		if r := session.Redemption(); r != nil && r.Debited {
			next := trimmed(customerID)
			if next == nil || *next != r.CustomerID {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "loyalty points were already redeemed for the linked customer")
			}
		}
		session.LinkCustomer(customerID)
		return nil
	})
}

func (s *service) SetManualDiscount(ctx context.Context, terminalID string, amount decimal.Decimal) (CartView, error) {
	if err := requireTerminal(terminalID); err != nil {
		return CartView{}, err
	}
	return s.mutate(ctx, terminalID, func(session *cart.Session) error {
		return session.SetManualDiscount(amount)
	})
}

func (s *service) Park(ctx context.Context, terminalID, notes string) (*backoffice.ParkedSale, error) {
	if err := requireTerminal(terminalID); err != nil {
		return nil, err
	}
	var parked *backoffice.ParkedSale
	err := s.registry.Do(ctx, terminalID, func(session *cart.Session) error {
		var err error
		parked, err = s.parking.Park(ctx, session, notes)
		return err
	})
	if err != nil {
		return nil, err
	}
	return parked, nil
}

func (s *service) Resume(ctx context.Context, terminalID, parkedSaleID string, force bool) (CartView, error) {
	if err := requireTerminal(terminalID); err != nil {
		return CartView{}, err
	}
	return s.mutate(ctx, terminalID, func(session *cart.Session) error {
		_, err := s.parking.Resume(ctx, session, parkedSaleID, force)
		return err
	})
}

func (s *service) QuoteLoyalty(ctx context.Context, terminalID, customerID string) (*loyalty.Quote, error) {
	if err := requireTerminal(terminalID); err != nil {
		return nil, err
	}
	return s.loyalty.Quote(ctx, customerID)
}

func (s *service) Redeem(ctx context.Context, terminalID, customerID string, req loyalty.Request) (CartView, error) {
	if err := requireTerminal(terminalID); err != nil {
		return CartView{}, err
	}
	return s.mutate(ctx, terminalID, func(session *cart.Session) error {
		_, err := s.loyalty.Redeem(ctx, session, customerID, req)
		return err
	})
}

// Checkout settles and commits the cart as one serialized command.
func (s *service) Checkout(ctx context.Context, terminalID string, req CheckoutRequest) (*checkout.Result, error) {
	if err := requireTerminal(terminalID); err != nil {
		return nil, err
	}
	var result *checkout.Result
	err := s.registry.Do(ctx, terminalID, func(session *cart.Session) error {
		p, err := settle(session.Totals(), req)
		if err != nil {
			return err
		}
		attempt, err := s.finalizer.Begin(ctx, session, p)
		if err != nil {
			return err
		}
		result, err = s.finalizer.Submit(ctx, session, attempt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func settle(totals cart.Totals, req CheckoutRequest) (payment.Payment, error) {
	if len(req.Splits) > 0 {
		if req.Tendered != nil {
			return payment.Payment{}, pkgerrors.New(pkgerrors.CodeValidation, "tendered amount applies to single cash payments only")
		}
		return payment.SettleSplit(req.Splits, totals)
	}
	method, err := enums.ParsePaymentMethod(req.Method)
	if err != nil {
		return payment.Payment{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method")
	}
	return payment.SettleSingle(method, totals, req.Tendered)
}

func (s *service) mutate(ctx context.Context, terminalID string, fn func(*cart.Session) error) (CartView, error) {
	var view CartView
	err := s.registry.Do(ctx, terminalID, func(session *cart.Session) error {
		if err := fn(session); err != nil {
			return err
		}
		view = viewOf(session)
		return nil
	})
	if err != nil {
		return CartView{}, err
	}
	return view, nil
}

func (s *service) observeStock(operation string, err error) error {
	if err != nil && s.metrics != nil && pkgerrors.IsCode(err, pkgerrors.CodeStockDenied) {
		s.metrics.IncStockDenied(operation)
	}
	return err
}

func requireTerminal(terminalID string) error {
	if strings.TrimSpace(terminalID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "terminal id is required")
	}
	return nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
