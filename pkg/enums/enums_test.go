package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePaymentMethodIsCaseInsensitive(t *testing.T) {
	got, err := ParsePaymentMethod(" card ")
	require.NoError(t, err)
	assert.Equal(t, PaymentMethodCard, got)

	_, err = ParsePaymentMethod("cheque")
	assert.Error(t, err)
	assert.False(t, PaymentMethodSplit.IsValid(), "split is a summary marker, not a tender")
}

func TestPrintModeFormats(t *testing.T) {
	assert.Equal(t, []ReceiptFormat{ReceiptFormatStandard, ReceiptFormatThermal}, PrintModeBoth.Formats())
	assert.Equal(t, []ReceiptFormat{ReceiptFormatThermal}, PrintModeThermal.Formats())
	assert.Empty(t, PrintModeNone.Formats())
}

func TestCheckoutStateTerminal(t *testing.T) {
	assert.False(t, CheckoutStateIdle.IsTerminal())
	assert.False(t, CheckoutStateSubmitting.IsTerminal())
	assert.True(t, CheckoutStateCommitted.IsTerminal())
	assert.True(t, CheckoutStateFailed.IsTerminal())
}

func TestParseDebitMode(t *testing.T) {
	mode, err := ParseDebitMode("Immediate")
	require.NoError(t, err)
	assert.Equal(t, DebitModeImmediate, mode)
	_, err = ParseDebitMode("later")
	assert.Error(t, err)
}
