package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentAndRound(t *testing.T) {
	subtotal := Extend(MustParse("4.00"), 3)
	assert.True(t, subtotal.Equal(MustParse("12.00")))

	tax := Round(Percent(subtotal, decimal.NewFromInt(10)))
	assert.Equal(t, "1.20", tax.StringFixed(Places))

	// half away from zero
	assert.Equal(t, "0.13", Round(MustParse("0.125")).StringFixed(Places))
}

func TestEqualUsesCentPrecision(t *testing.T) {
	assert.True(t, Equal(MustParse("8.2"), MustParse("8.200")))
	assert.False(t, Equal(MustParse("8.20"), MustParse("8.21")))
}

func TestIsCents(t *testing.T) {
	assert.True(t, IsCents(MustParse("8.2")))
	assert.True(t, IsCents(MustParse("8.200")))
	assert.False(t, IsCents(MustParse("5.004")))
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("abc")
	require.Error(t, err)
	_, err = Parse("  ")
	require.Error(t, err)
}

func TestClampHelpers(t *testing.T) {
	assert.True(t, NonNegative(MustParse("-1")).IsZero())
	assert.True(t, Min(MustParse("5"), MustParse("3")).Equal(MustParse("3")))
	assert.True(t, Sum(MustParse("5.00"), MustParse("3.20")).Equal(MustParse("8.20")))
}
