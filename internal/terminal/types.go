package terminal

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-pos/internal/cart"
	"github.com/angelmondragon/packfinderz-pos/internal/catalog"
	"github.com/angelmondragon/packfinderz-pos/internal/payment"
)

// CartView is the read model returned by every cart command.
type CartView struct {
	TerminalID string           `json:"terminalId"`
	Lines      []cart.LineItem  `json:"lines"`
	CustomerID *string          `json:"customerId,omitempty"`
	Redemption *cart.Redemption `json:"redemption,omitempty"`
	Totals     cart.Totals      `json:"totals"`
}

func viewOf(s *cart.Session) CartView {
	lines := s.Lines()
	if lines == nil {
		lines = []cart.LineItem{}
	}
	return CartView{
		TerminalID: s.TerminalID(),
		Lines:      lines,
		CustomerID: s.CustomerID(),
		Redemption: s.Redemption(),
		Totals:     s.Totals(),
	}
}

// ScanResult reports what a scan matched. Added is nil when the match needs a
// variant selection first.
type ScanResult struct {
	Resolution *catalog.Resolution `json:"resolution"`
	Added      *cart.LineItem      `json:"added,omitempty"`
	Cart       CartView            `json:"cart"`
}

// CheckoutRequest settles the cart with one tender or a list of splits.
type CheckoutRequest struct {
	Method   string
	Tendered *decimal.Decimal
	Splits   []payment.Split
}
