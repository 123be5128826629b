package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-pos/pkg/backoffice"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/money"
)

func product(id, price, tax string, stock int) backoffice.Product {
	return backoffice.Product{
		ID:            id,
		Name:          "Product " + id,
		SKU:           "SKU-" + id,
		Price:         money.MustParse(price),
		TaxRate:       money.MustParse(tax),
		StockQuantity: stock,
		IsActive:      true,
	}
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, pkgerrors.CodeOf(err), "error: %v", err)
}

func TestAddMergesSameKey(t *testing.T) {
	s := NewSession("t1")
	p := product("p1", "4.00", "10", 10)

	_, err := s.Add(p, nil, 1)
	require.NoError(t, err)
	_, err = s.Add(p, nil, 2)
	require.NoError(t, err)

	lines := s.Lines()
	require.Len(t, lines, 1)
	require.Equal(t, 3, lines[0].Quantity)

	totals := s.Totals()
	assert.Equal(t, "12.00", totals.Subtotal.StringFixed(2))
	assert.Equal(t, "1.20", totals.TaxAmount.StringFixed(2))
	assert.Equal(t, "13.20", totals.FinalAmount.StringFixed(2))
	assert.Equal(t, 3, totals.ItemCount)
}

func TestVariantsAreSeparateLines(t *testing.T) {
	s := NewSession("t1")
	p := product("p1", "4.00", "0", 10)
	p.HasVariants = true
	price := money.MustParse("5.50")
	large := backoffice.Variant{ID: "v1", ProductID: "p1", Name: "Large", SellingPrice: &price, StockQuantity: 5}
	small := backoffice.Variant{ID: "v2", ProductID: "p1", Name: "Small", StockQuantity: 5}

	_, err := s.Add(p, &large, 1)
	require.NoError(t, err)
	line, err := s.Add(p, &small, 1)
	require.NoError(t, err)

	require.Len(t, s.Lines(), 2)
	assert.Equal(t, "Product p1 - Small", line.Name)
	assert.True(t, line.UnitPrice.Equal(money.MustParse("4.00")), "variant without selling price uses product price")
	assert.Equal(t, "9.50", s.Totals().Subtotal.StringFixed(2))
}

func TestAddRequiresVariant(t *testing.T) {
	s := NewSession("t1")
	p := product("p1", "4.00", "0", 10)
	p.Variants = []backoffice.Variant{{ID: "v1"}}

	_, err := s.Add(p, nil, 1)
	requireCode(t, err, pkgerrors.CodeVariantRequired)
	require.True(t, s.IsEmpty())
}

func TestStockDenialLeavesCartUnchanged(t *testing.T) {
	s := NewSession("t1")
	p := product("p1", "1.00", "0", 2)

	_, err := s.Add(p, nil, 2)
	require.NoError(t, err)
	_, err = s.Add(p, nil, 1)
	requireCode(t, err, pkgerrors.CodeStockDenied)
	require.Equal(t, 2, s.Lines()[0].Quantity)

	err = s.SetQuantity("p1", nil, 3)
	requireCode(t, err, pkgerrors.CodeStockDenied)
	require.Equal(t, 2, s.Lines()[0].Quantity)

	_, err = s.Add(product("p2", "1.00", "0", 0), nil, 1)
	requireCode(t, err, pkgerrors.CodeStockDenied)
	require.Len(t, s.Lines(), 1)
}

func TestSetQuantityZeroRemoves(t *testing.T) {
	s := NewSession("t1")
	_, err := s.Add(product("p1", "1.00", "0", 5), nil, 3)
	require.NoError(t, err)

	require.NoError(t, s.SetQuantity("p1", nil, 0))
	require.True(t, s.IsEmpty())

	requireCode(t, s.SetQuantity("p1", nil, 1), pkgerrors.CodeNotFound)
}

func TestUnitPriceCapturedAtAdd(t *testing.T) {
	s := NewSession("t1")
	p := product("p1", "2.00", "0", 5)
	_, err := s.Add(p, nil, 1)
	require.NoError(t, err)

	p.Price = money.MustParse("9.99")
	_, err = s.Add(p, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "2.00", s.Lines()[0].UnitPrice.StringFixed(2))
}

func TestManualDiscountBounds(t *testing.T) {
	s := NewSession("t1")
	_, err := s.Add(product("p1", "10.00", "0", 5), nil, 1)
	require.NoError(t, err)

	requireCode(t, s.SetManualDiscount(money.MustParse("-1")), pkgerrors.CodeValidation)
	requireCode(t, s.SetManualDiscount(money.MustParse("10.01")), pkgerrors.CodeValidation)
	require.NoError(t, s.SetManualDiscount(money.MustParse("10.00")))
	assert.True(t, s.Totals().FinalAmount.IsZero())
}

func TestRedemptionBoundAndShrink(t *testing.T) {
	s := NewSession("t1")
	_, err := s.Add(product("p1", "4.00", "10", 10), nil, 3)
	require.NoError(t, err)

	over := Redemption{CustomerID: "c1", Points: 2000, RewardType: enums.RewardTypeCustom, Value: money.MustParse("13.21")}
	requireCode(t, s.ApplyRedemption(over), pkgerrors.CodeValidation)

	ok := Redemption{CustomerID: "c1", Points: 500, RewardType: enums.RewardTypePredefined, Value: money.MustParse("5.00")}
	require.NoError(t, s.ApplyRedemption(ok))
	assert.Equal(t, "8.20", s.Totals().FinalAmount.StringFixed(2))

	require.NoError(t, s.SetQuantity("p1", nil, 1))
	assert.Nil(t, s.Redemption(), "undebited redemption larger than gross is dropped")
	assert.Equal(t, "4.40", s.Totals().FinalAmount.StringFixed(2))
}

func TestDebitedRedemptionIsCapped(t *testing.T) {
	s := NewSession("t1")
	_, err := s.Add(product("p1", "4.00", "10", 10), nil, 3)
	require.NoError(t, err)
	require.NoError(t, s.ApplyRedemption(Redemption{CustomerID: "c1", Points: 500, Value: money.MustParse("5.00"), Debited: true}))

	require.NoError(t, s.SetQuantity("p1", nil, 1))
	totals := s.Totals()
	require.NotNil(t, s.Redemption())
	assert.Equal(t, "4.40", totals.LoyaltyDiscount.StringFixed(2))
	assert.True(t, totals.FinalAmount.IsZero())
	assert.True(t, totals.LoyaltyDiscount.LessThanOrEqual(totals.Gross()))

	requireCode(t, s.ApplyRedemption(Redemption{CustomerID: "c1", Points: 100, Value: decimal.NewFromInt(1)}), pkgerrors.CodeStateConflict)
}

func TestManualDiscountShrinksWithCart(t *testing.T) {
	s := NewSession("t1")
	_, err := s.Add(product("p1", "5.00", "0", 10), nil, 2)
	require.NoError(t, err)
	require.NoError(t, s.SetManualDiscount(money.MustParse("8.00")))

	require.NoError(t, s.SetQuantity("p1", nil, 1))
	totals := s.Totals()
	assert.Equal(t, "5.00", totals.ManualDiscount.StringFixed(2))
	assert.True(t, totals.FinalAmount.IsZero())
}

func TestLinkCustomerDropsForeignRedemption(t *testing.T) {
	s := NewSession("t1")
	_, err := s.Add(product("p1", "10.00", "0", 10), nil, 1)
	require.NoError(t, err)
	c1 := "c1"
	s.LinkCustomer(&c1)
	require.NoError(t, s.ApplyRedemption(Redemption{CustomerID: "c1", Points: 100, Value: decimal.NewFromInt(1)}))

	s.LinkCustomer(&c1)
	require.NotNil(t, s.Redemption())

	c2 := "c2"
	s.LinkCustomer(&c2)
	require.Nil(t, s.Redemption())
	require.Equal(t, "c2", *s.CustomerID())
}

func TestClearResetsEverything(t *testing.T) {
	s := NewSession("t1")
	_, err := s.Add(product("p1", "10.00", "0", 10), nil, 1)
	require.NoError(t, err)
	c1 := "c1"
	s.LinkCustomer(&c1)
	require.NoError(t, s.SetManualDiscount(decimal.NewFromInt(1)))

	s.Clear()
	require.True(t, s.IsEmpty())
	require.Nil(t, s.CustomerID())
	require.True(t, s.Totals().ManualDiscount.IsZero())
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := NewSession("t1")
	_, err := s.Add(product("p1", "5.00", "0", 10), nil, 2)
	require.NoError(t, err)
	_, err = s.Add(product("p2", "3.00", "0", 10), nil, 1)
	require.NoError(t, err)
	c1 := "c1"
	s.LinkCustomer(&c1)

	raw, err := s.Snapshot().Marshal()
	require.NoError(t, err)
	snap, err := UnmarshalSnapshot(raw)
	require.NoError(t, err)

	restored := Restore(snap)
	require.Equal(t, "t1", restored.TerminalID())
	require.Len(t, restored.Lines(), 2)
	require.Equal(t, "13.00", restored.Totals().Subtotal.StringFixed(2))
	require.Equal(t, "c1", *restored.CustomerID())
}

func TestStockGuard(t *testing.T) {
	var g StockGuard
	key := Key{ProductID: "p1"}
	require.NoError(t, g.CheckAvailable(key, 3, 3))
	requireCode(t, g.CheckAvailable(key, 4, 3), pkgerrors.CodeStockDenied)
	requireCode(t, g.CheckAvailable(key, 1, 0), pkgerrors.CodeStockDenied)
	require.NoError(t, g.CheckAvailable(key, 1000, PlaceholderStock))
}
