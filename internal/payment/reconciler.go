// Package payment reconciles tendered payments against the cart total. It
// never mutates the cart and never talks to the network.
package payment

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-pos/internal/cart"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/money"
)

// Split is one tender of a split payment.
type Split struct {
	Method enums.PaymentMethod `json:"method"`
	Amount decimal.Decimal     `json:"amount"`
}

// Payment is a settlement that exactly covers FinalAmount. Method is
// PaymentMethodSplit when more than one tender was used.
type Payment struct {
	Method      enums.PaymentMethod `json:"method"`
	Splits      []Split             `json:"splits"`
	FinalAmount decimal.Decimal     `json:"finalAmount"`
	Tendered    decimal.Decimal     `json:"tendered"`
	Change      decimal.Decimal     `json:"change"`
}

// Covers reports whether the payment still matches the given totals.
func (p Payment) Covers(t cart.Totals) bool {
	return money.Equal(p.FinalAmount, t.FinalAmount)
}

// SettleSingle pays the full amount with one method. A tendered amount is
// only meaningful for cash; it must cover the total and the difference is
// returned as change.
func SettleSingle(method enums.PaymentMethod, totals cart.Totals, tendered *decimal.Decimal) (Payment, error) {
	if !method.IsValid() || method == enums.PaymentMethodSplit {
		return Payment{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported payment method %q", method))
	}
	final := money.Round(totals.FinalAmount)
	p := Payment{
		Method:      method,
		Splits:      []Split{{Method: method, Amount: final}},
		FinalAmount: final,
		Tendered:    final,
		Change:      decimal.Zero,
	}
	if tendered == nil {
		return p, nil
	}
	if method != enums.PaymentMethodCash {
		return Payment{}, pkgerrors.New(pkgerrors.CodeValidation, "tendered amount is only accepted for cash")
	}
	if !money.IsCents(*tendered) {
		return Payment{}, pkgerrors.New(pkgerrors.CodeValidation, "tendered amount has fractional cents").
			WithDetails(map[string]any{"tendered": tendered.String()})
	}
	paid := *tendered
	if paid.LessThan(final) {
		return Payment{}, pkgerrors.New(pkgerrors.CodeValidation, "tendered amount is less than the total").
			WithDetails(map[string]any{"total": final.StringFixed(money.Places), "tendered": paid.StringFixed(money.Places)})
	}
	p.Tendered = paid
	p.Change = paid.Sub(final)
	return p, nil
}

// SettleSplit pays with several tenders whose sum must equal the final amount
// exactly. Tenders are whole cents; nothing is rounded into agreement.
func SettleSplit(splits []Split, totals cart.Totals) (Payment, error) {
	if len(splits) == 0 {
		return Payment{}, pkgerrors.New(pkgerrors.CodeValidation, "at least one payment split is required")
	}
	final := money.Round(totals.FinalAmount)
	sum := decimal.Zero
	out := make([]Split, 0, len(splits))
	for i, sp := range splits {
		if !sp.Method.IsValid() || sp.Method == enums.PaymentMethodSplit {
			return Payment{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("split %d: unsupported payment method %q", i+1, sp.Method))
		}
		if !sp.Amount.IsPositive() {
			return Payment{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("split %d: amount must be positive", i+1))
		}
		if !money.IsCents(sp.Amount) {
			return Payment{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("split %d: amount has fractional cents", i+1)).
				WithDetails(map[string]any{"amount": sp.Amount.String()})
		}
		sum = sum.Add(sp.Amount)
		out = append(out, Split{Method: sp.Method, Amount: sp.Amount})
	}
	if !sum.Equal(final) {
		return Payment{}, pkgerrors.New(pkgerrors.CodeInvariant, "payment splits must add up to the total").
			WithDetails(map[string]any{"total": final.StringFixed(money.Places), "splits": sum.StringFixed(money.Places)})
	}

	method := enums.PaymentMethodSplit
	if len(out) == 1 {
		method = out[0].Method
	}
	return Payment{
		Method:      method,
		Splits:      out,
		FinalAmount: final,
		Tendered:    final,
		Change:      decimal.Zero,
	}, nil
}
