// Package cart holds the in-memory cart of a single terminal. A Session is
// not safe for concurrent use; callers serialize access per terminal.
package cart

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-pos/pkg/backoffice"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/money"
)

// Redemption is a loyalty discount applied to the cart. Debited is set when
// the points were already taken from the customer's balance.
type Redemption struct {
	CustomerID    string           `json:"customerId"`
	Points        int64            `json:"points"`
	RewardType    enums.RewardType `json:"rewardType"`
	Value         decimal.Decimal  `json:"value"`
	Description   string           `json:"description,omitempty"`
	Debited       bool             `json:"debited"`
	TransactionID string           `json:"transactionId,omitempty"`
}

// Totals are the derived cart amounts, rounded to cents.
type Totals struct {
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxAmount       decimal.Decimal `json:"taxAmount"`
	LoyaltyDiscount decimal.Decimal `json:"loyaltyDiscount"`
	ManualDiscount  decimal.Decimal `json:"manualDiscount"`
	FinalAmount     decimal.Decimal `json:"finalAmount"`
	ItemCount       int             `json:"itemCount"`
}

// Gross is subtotal plus tax, before any discount.
func (t Totals) Gross() decimal.Decimal {
	return t.Subtotal.Add(t.TaxAmount)
}

// DiscountAmount is the sum of every discount applied.
func (t Totals) DiscountAmount() decimal.Decimal {
	return t.LoyaltyDiscount.Add(t.ManualDiscount)
}

type Session struct {
	terminalID     string
	lines          []LineItem
	customerID     *string
	manualDiscount decimal.Decimal
	redemption     *Redemption
	guard          StockGuard
}

func NewSession(terminalID string) *Session {
	return &Session{terminalID: terminalID}
}

func (s *Session) TerminalID() string { return s.terminalID }

// Lines returns a copy of the cart lines in insertion order.
func (s *Session) Lines() []LineItem {
	out := make([]LineItem, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *Session) IsEmpty() bool { return len(s.lines) == 0 }

func (s *Session) CustomerID() *string {
	if s.customerID == nil {
		return nil
	}
	id := *s.customerID
	return &id
}

// Redemption returns a copy of the applied loyalty redemption, if any.
func (s *Session) Redemption() *Redemption {
	if s.redemption == nil {
		return nil
	}
	r := *s.redemption
	return &r
}

func (s *Session) ManualDiscount() decimal.Decimal { return s.manualDiscount }

// Add puts one or more units of a product, or of one of its variants, in the
// cart. A product with variants must be added through a variant.
func (s *Session) Add(product backoffice.Product, variant *backoffice.Variant, qty int) (LineItem, error) {
	if qty <= 0 {
		qty = 1
	}
	if strings.TrimSpace(product.ID) == "" {
		return LineItem{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if variant == nil && product.RequiresVariant() {
		return LineItem{}, pkgerrors.New(pkgerrors.CodeVariantRequired, "select a variant for "+product.Name).
			WithDetails(map[string]any{"productId": product.ID})
	}

	candidate := lineFromCatalog(product, variant)
	if candidate.UnitPrice.IsNegative() {
		return LineItem{}, pkgerrors.New(pkgerrors.CodeValidation, "product price must be non-negative")
	}

	key := candidate.Key()
	idx := s.indexOf(key)
	requested := qty
	if idx >= 0 {
		requested += s.lines[idx].Quantity
	}
	if err := s.guard.CheckAvailable(key, requested, candidate.Stock); err != nil {
		return LineItem{}, err
	}

	if idx >= 0 {
		s.lines[idx].Quantity = requested
		s.lines[idx].Stock = candidate.Stock
		return s.lines[idx], nil
	}
	candidate.Quantity = qty
	s.lines = append(s.lines, candidate)
	return candidate, nil
}

func lineFromCatalog(product backoffice.Product, variant *backoffice.Variant) LineItem {
	line := LineItem{
		ProductID:  product.ID,
		Name:       product.Name,
		SKU:        product.SKU,
		CategoryID: product.CategoryID,
		UnitPrice:  product.Price,
		TaxRate:    product.TaxRate,
		Stock:      product.StockQuantity,
	}
	if variant == nil {
		return line
	}
	id := variant.ID
	line.VariantID = &id
	line.Stock = variant.StockQuantity
	if variant.Name != "" {
		line.Name = product.Name + " - " + variant.Name
	}
	if variant.SKU != "" {
		line.SKU = variant.SKU
	}
	if variant.SellingPrice != nil {
		line.UnitPrice = *variant.SellingPrice
	}
	return line
}

// SetQuantity sets a line to an absolute quantity. Zero or less removes it.
func (s *Session) SetQuantity(productID string, variantID *string, qty int) error {
	key := newKey(productID, variantID)
	idx := s.indexOf(key)
	if idx < 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "item not in cart").
			WithDetails(map[string]any{"item": key.String()})
	}
	if qty <= 0 {
		s.removeAt(idx)
		return nil
	}
	if qty > s.lines[idx].Quantity {
		if err := s.guard.CheckAvailable(key, qty, s.lines[idx].Stock); err != nil {
			return err
		}
	}
	s.lines[idx].Quantity = qty
	s.reconcileDiscounts()
	return nil
}

// Remove drops a line. Removing a line that is not in the cart is a no-op.
func (s *Session) Remove(productID string, variantID *string) {
	if idx := s.indexOf(newKey(productID, variantID)); idx >= 0 {
		s.removeAt(idx)
	}
}

func (s *Session) removeAt(idx int) {
	s.lines = append(s.lines[:idx], s.lines[idx+1:]...)
	s.reconcileDiscounts()
}

// Clear resets the cart to its initial state.
func (s *Session) Clear() {
	s.lines = nil
	s.customerID = nil
	s.manualDiscount = decimal.Zero
	s.redemption = nil
}

// Replace swaps the cart contents wholesale, discarding discounts.
func (s *Session) Replace(lines []LineItem, customerID *string) {
	s.Clear()
	s.lines = make([]LineItem, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		if idx := s.indexOf(line.Key()); idx >= 0 {
			s.lines[idx].Quantity += line.Quantity
			continue
		}
		s.lines = append(s.lines, line)
	}
	if customerID != nil && strings.TrimSpace(*customerID) != "" {
		id := strings.TrimSpace(*customerID)
		s.customerID = &id
	}
}

// LinkCustomer sets or clears the customer. An undebited redemption belongs
// to the previous customer and is dropped.
func (s *Session) LinkCustomer(customerID *string) {
	var next *string
	if customerID != nil && strings.TrimSpace(*customerID) != "" {
		id := strings.TrimSpace(*customerID)
		next = &id
	}
	if s.redemption != nil && !s.redemption.Debited {
		if next == nil || *next != s.redemption.CustomerID {
			s.redemption = nil
		}
	}
	s.customerID = next
}

// SetManualDiscount applies a flat discount. It may not push the final amount below zero.
func (s *Session) SetManualDiscount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount must be non-negative")
	}
	amount = money.Round(amount)
	t := s.Totals()
	room := t.Gross().Sub(t.LoyaltyDiscount)
	if amount.GreaterThan(room) {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds cart total").
			WithDetails(map[string]any{"maxDiscount": room.StringFixed(money.Places)})
	}
	s.manualDiscount = amount
	return nil
}

// ApplyRedemption sets the loyalty discount. The value may not exceed the
// final amount before loyalty.
func (s *Session) ApplyRedemption(r Redemption) error {
	if r.Points <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "points must be positive")
	}
	if r.Value.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount value must be non-negative")
	}
	if s.redemption != nil && s.redemption.Debited {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "loyalty points were already redeemed for this cart")
	}
	r.Value = money.Round(r.Value)
	if limit := s.FinalBeforeLoyalty(); r.Value.GreaterThan(limit) {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds cart total").
			WithDetails(map[string]any{"maxDiscount": limit.StringFixed(money.Places)})
	}
	s.redemption = &r
	return nil
}

// DropRedemption removes an undebited redemption.
func (s *Session) DropRedemption() bool {
	if s.redemption == nil || s.redemption.Debited {
		return false
	}
	s.redemption = nil
	return true
}

// FinalBeforeLoyalty is subtotal + tax - manual discount.
func (s *Session) FinalBeforeLoyalty() decimal.Decimal {
	t := s.rawTotals()
	return money.NonNegative(t.Gross().Sub(s.manualDiscount))
}

// reconcileDiscounts keeps discounts within the gross after the cart shrinks.
// An undebited redemption that no longer fits is dropped; a debited one is
// capped. The manual discount absorbs whatever room remains.
func (s *Session) reconcileDiscounts() {
	gross := s.rawTotals().Gross()
	if s.redemption != nil && s.redemption.Value.GreaterThan(gross) && !s.redemption.Debited {
		s.redemption = nil
	}
	loyalty := s.loyaltyDiscount(gross)
	if room := gross.Sub(loyalty); s.manualDiscount.GreaterThan(room) {
		s.manualDiscount = money.NonNegative(room)
	}
}

func (s *Session) loyaltyDiscount(gross decimal.Decimal) decimal.Decimal {
	if s.redemption == nil {
		return decimal.Zero
	}
	return money.Min(s.redemption.Value, money.NonNegative(gross))
}

func (s *Session) rawTotals() Totals {
	subtotal := decimal.Zero
	tax := decimal.Zero
	count := 0
	for _, line := range s.lines {
		subtotal = subtotal.Add(line.Subtotal())
		tax = tax.Add(line.Tax())
		count += line.Quantity
	}
	return Totals{
		Subtotal:  money.Round(subtotal),
		TaxAmount: money.Round(tax),
		ItemCount: count,
	}
}

// Totals derives the cart amounts from the current lines and discounts.
func (s *Session) Totals() Totals {
	t := s.rawTotals()
	gross := t.Gross()
	t.LoyaltyDiscount = s.loyaltyDiscount(gross)
	t.ManualDiscount = money.Min(s.manualDiscount, money.NonNegative(gross.Sub(t.LoyaltyDiscount)))
	t.FinalAmount = money.NonNegative(gross.Sub(t.LoyaltyDiscount).Sub(t.ManualDiscount))
	return t
}

func (s *Session) indexOf(key Key) int {
	for i, line := range s.lines {
		if line.Key() == key {
			return i
		}
	}
	return -1
}
