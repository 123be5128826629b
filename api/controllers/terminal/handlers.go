package terminal

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-pos/api/middleware"
	"github.com/angelmondragon/packfinderz-pos/api/responses"
	"github.com/angelmondragon/packfinderz-pos/api/validators"
	terminalsvc "github.com/angelmondragon/packfinderz-pos/internal/terminal"
	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/pagination"
)

const timeLayout = time.RFC3339

// AttemptLister reads the checkout journal.
type AttemptLister interface {
	ListByTerminal(ctx context.Context, terminalID string, params pagination.Params) ([]models.CheckoutAttempt, string, error)
}

// CartFetch returns the terminal's open cart.
func CartFetch(svc terminalsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.Cart(r.Context(), middleware.TerminalIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartScan resolves scanner or keyboard input and adds the match.
func CartScan(svc terminalsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload scanRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Scan(r.Context(), middleware.TerminalIDFromContext(r.Context()), payload.Input, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func CartAddItem(svc terminalsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.AddItem(r.Context(), middleware.TerminalIDFromContext(r.Context()), payload.ProductID, payload.VariantID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartUpdateItem sets an absolute quantity. Zero removes the line.
func CartUpdateItem(svc terminalsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload updateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.SetQuantity(r.Context(), middleware.TerminalIDFromContext(r.Context()), chi.URLParam(r, "productId"), variantParam(r), payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func CartRemoveItem(svc terminalsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.RemoveItem(r.Context(), middleware.TerminalIDFromContext(r.Context()), chi.URLParam(r, "productId"), variantParam(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func CartClear(svc terminalsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.Clear(r.Context(), middleware.TerminalIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartLinkCustomer links a customer, or unlinks with a null customerId.
func CartLinkCustomer(svc terminalsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload customerRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.LinkCustomer(r.Context(), middleware.TerminalIDFromContext(r.Context()), payload.CustomerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func CartSetDiscount(svc terminalsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload discountRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := parseAmount(payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.SetManualDiscount(r.Context(), middleware.TerminalIDFromContext(r.Context()), amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func CartPark(svc terminalsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload parkRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		parked, err := svc.Park(r.Context(), middleware.TerminalIDFromContext(r.Context()), validators.SanitizeString(payload.Notes, 500))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, parked)
	}
}

// ParkedResume replaces the cart with a parked sale. ?force=true discards a
// non-empty cart.
func ParkedResume(svc terminalsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		force := false
		if raw := strings.TrimSpace(r.URL.Query().Get("force")); raw != "" {
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "force must be a boolean").WithDetails(map[string]any{"field": "force"}))
				return
			}
			force = parsed
		}
		view, err := svc.Resume(r.Context(), middleware.TerminalIDFromContext(r.Context()), chi.URLParam(r, "parkedSaleId"), force)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func LoyaltyQuote(svc terminalsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quote, err := svc.QuoteLoyalty(r.Context(), middleware.TerminalIDFromContext(r.Context()), chi.URLParam(r, "customerId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

func LoyaltyRedeem(svc terminalsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload redeemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Redeem(r.Context(), middleware.TerminalIDFromContext(r.Context()), payload.CustomerID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// Checkout settles and commits the cart. A committed sale answers 201 even
// when follow-up effects failed; those are listed as warnings.
func Checkout(svc terminalsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Checkout(r.Context(), middleware.TerminalIDFromContext(r.Context()), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newCheckoutResponse(result))
	}
}

// CheckoutAttempts pages through the terminal's checkout attempts, newest first.
func CheckoutAttempts(journal AttemptLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if journal == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout journal unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")}
		rows, next, err := journal.ListByTerminal(r.Context(), middleware.TerminalIDFromContext(r.Context()), params)
		if err != nil {
			if pkgerrors.As(err) == nil {
				err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list checkout attempts")
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, attemptPageResponse{
			Attempts:   newAttemptResponses(rows),
			NextCursor: next,
		})
	}
}

func variantParam(r *http.Request) *string {
	raw := strings.TrimSpace(r.URL.Query().Get("variantId"))
	if raw == "" {
		return nil
	}
	return &raw
}
