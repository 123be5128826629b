package outbox

import (
	"encoding/json"
	"time"
)

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	TerminalID string          `json:"terminalId,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// LoyaltyPointsDebitEvent asks the worker to debit points that were applied
// as a discount on a committed sale.
type LoyaltyPointsDebitEvent struct {
	SaleID        string `json:"saleId"`
	CustomerID    string `json:"customerId"`
	Points        int64  `json:"points"`
	RewardType    string `json:"rewardType"`
	DiscountValue string `json:"discountValue"`
	Description   string `json:"description,omitempty"`
}

// ReceiptRenderEvent asks the worker to render one receipt format for a sale.
type ReceiptRenderEvent struct {
	SaleID        string `json:"saleId"`
	ReceiptNumber string `json:"receiptNumber,omitempty"`
	Format        string `json:"format"`
	TerminalID    string `json:"terminalId,omitempty"`
}
