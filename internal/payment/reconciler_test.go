package payment

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/packfinderz-pos/internal/cart"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/money"
)

func totals(final string) cart.Totals {
	return cart.Totals{FinalAmount: money.MustParse(final)}
}

func TestSettleSplitExact(t *testing.T) {
	p, err := SettleSplit([]Split{
		{Method: enums.PaymentMethodCash, Amount: money.MustParse("5.00")},
		{Method: enums.PaymentMethodCard, Amount: money.MustParse("3.20")},
	}, totals("8.20"))
	require.NoError(t, err)
	require.Equal(t, enums.PaymentMethodSplit, p.Method)
	require.Len(t, p.Splits, 2)
	require.True(t, p.Covers(totals("8.20")))
	require.False(t, p.Covers(totals("8.21")))
}

func TestSettleSplitOffByACentRejects(t *testing.T) {
	for _, amount := range []string{"3.19", "3.21"} {
		_, err := SettleSplit([]Split{
			{Method: enums.PaymentMethodCash, Amount: money.MustParse("5.00")},
			{Method: enums.PaymentMethodCard, Amount: money.MustParse(amount)},
		}, totals("8.20"))
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvariant), "amount %s: %v", amount, err)
	}
}

func TestSettleSplitRejectsFractionalCents(t *testing.T) {
	_, err := SettleSplit([]Split{
		{Method: enums.PaymentMethodCash, Amount: money.MustParse("5.004")},
		{Method: enums.PaymentMethodCard, Amount: money.MustParse("3.204")},
	}, totals("8.20"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	p, err := SettleSplit([]Split{
		{Method: enums.PaymentMethodCash, Amount: money.MustParse("5.0")},
		{Method: enums.PaymentMethodCard, Amount: money.MustParse("3.200")},
	}, totals("8.20"))
	require.NoError(t, err)
	require.Equal(t, enums.PaymentMethodSplit, p.Method)
}

func TestSettleSingleRejectsFractionalTender(t *testing.T) {
	tendered := money.MustParse("10.005")
	_, err := SettleSingle(enums.PaymentMethodCash, totals("8.20"), &tendered)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
}

func TestSettleSplitValidatesEntries(t *testing.T) {
	_, err := SettleSplit(nil, totals("1.00"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = SettleSplit([]Split{{Method: "BITCOIN", Amount: money.MustParse("1.00")}}, totals("1.00"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = SettleSplit([]Split{
		{Method: enums.PaymentMethodCash, Amount: money.MustParse("2.00")},
		{Method: enums.PaymentMethodCard, Amount: money.MustParse("-1.00")},
	}, totals("1.00"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSettleSplitSingleEntryKeepsMethod(t *testing.T) {
	p, err := SettleSplit([]Split{{Method: enums.PaymentMethodMobile, Amount: money.MustParse("2.50")}}, totals("2.50"))
	require.NoError(t, err)
	require.Equal(t, enums.PaymentMethodMobile, p.Method)
}

func TestSettleSingleCashChange(t *testing.T) {
	tendered := money.MustParse("10.00")
	p, err := SettleSingle(enums.PaymentMethodCash, totals("8.20"), &tendered)
	require.NoError(t, err)
	require.Equal(t, "1.80", p.Change.StringFixed(2))
	require.Equal(t, "10.00", p.Tendered.StringFixed(2))

	short := money.MustParse("8.19")
	_, err = SettleSingle(enums.PaymentMethodCash, totals("8.20"), &short)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSettleSingleRejectsTenderedForCard(t *testing.T) {
	tendered := money.MustParse("10.00")
	_, err := SettleSingle(enums.PaymentMethodCard, totals("8.20"), &tendered)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	p, err := SettleSingle(enums.PaymentMethodCard, totals("8.20"), nil)
	require.NoError(t, err)
	require.True(t, p.Change.IsZero())

	_, err = SettleSingle(enums.PaymentMethodSplit, totals("8.20"), nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
