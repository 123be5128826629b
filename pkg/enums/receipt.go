package enums

import (
	"fmt"
	"strings"
)

// ReceiptFormat is a single printable layout.
type ReceiptFormat string

const (
	ReceiptFormatStandard ReceiptFormat = "standard"
	ReceiptFormatThermal  ReceiptFormat = "thermal"
)

// String implements fmt.Stringer.
func (f ReceiptFormat) String() string {
	return string(f)
}

// PrintMode selects which receipt formats are produced after a sale commits.
type PrintMode string

const (
	PrintModeStandard PrintMode = "standard"
	PrintModeThermal  PrintMode = "thermal"
	PrintModeBoth     PrintMode = "both"
	PrintModeNone     PrintMode = "none"
)

var validPrintModes = []PrintMode{
	PrintModeStandard,
	PrintModeThermal,
	PrintModeBoth,
	PrintModeNone,
}

// String implements fmt.Stringer.
func (m PrintMode) String() string {
	return string(m)
}

// IsValid reports whether the value is a known PrintMode.
func (m PrintMode) IsValid() bool {
	for _, candidate := range validPrintModes {
		if candidate == m {
			return true
		}
	}
	return false
}

// Formats expands the mode into the formats to render, in print order.
func (m PrintMode) Formats() []ReceiptFormat {
	switch m {
	case PrintModeStandard:
		return []ReceiptFormat{ReceiptFormatStandard}
	case PrintModeThermal:
		return []ReceiptFormat{ReceiptFormatThermal}
	case PrintModeBoth:
		return []ReceiptFormat{ReceiptFormatStandard, ReceiptFormatThermal}
	default:
		return nil
	}
}

// ParsePrintMode converts raw input into a PrintMode.
func ParsePrintMode(value string) (PrintMode, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validPrintModes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid print mode %q", value)
}

// ReceiptTransport selects how render requests leave the terminal service.
type ReceiptTransport string

const (
	ReceiptTransportHTTP   ReceiptTransport = "http"
	ReceiptTransportPubSub ReceiptTransport = "pubsub"
	ReceiptTransportOutbox ReceiptTransport = "outbox"
)

var validReceiptTransports = []ReceiptTransport{
	ReceiptTransportHTTP,
	ReceiptTransportPubSub,
	ReceiptTransportOutbox,
}

// ParseReceiptTransport converts raw input into a ReceiptTransport.
func ParseReceiptTransport(value string) (ReceiptTransport, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validReceiptTransports {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid receipt transport %q", value)
}
