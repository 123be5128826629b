package terminal

import (
	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-pos/internal/checkout"
	"github.com/angelmondragon/packfinderz-pos/pkg/db/models"
)

type checkoutResponse struct {
	*checkout.Result
	// Warnings lists follow-up effects that failed after the sale committed.
	Warnings []string `json:"warnings,omitempty"`
}

func newCheckoutResponse(res *checkout.Result) checkoutResponse {
	out := checkoutResponse{Result: res}
	for _, err := range multierr.Errors(res.PostCommitErr) {
		out.Warnings = append(out.Warnings, err.Error())
	}
	return out
}

type attemptResponse struct {
	ID            string  `json:"id"`
	State         string  `json:"state"`
	PaymentMethod string  `json:"paymentMethod"`
	FinalAmount   string  `json:"finalAmount"`
	SaleID        *string `json:"saleId,omitempty"`
	ReceiptNumber *string `json:"receiptNumber,omitempty"`
	LastError     *string `json:"lastError,omitempty"`
	CreatedAt     string  `json:"createdAt"`
	FinishedAt    *string `json:"finishedAt,omitempty"`
}

type attemptPageResponse struct {
	Attempts   []attemptResponse `json:"attempts"`
	NextCursor string            `json:"nextCursor,omitempty"`
}

func newAttemptResponses(rows []models.CheckoutAttempt) []attemptResponse {
	out := make([]attemptResponse, 0, len(rows))
	for _, row := range rows {
		item := attemptResponse{
			ID:            row.ID.String(),
			State:         row.State.String(),
			PaymentMethod: row.PaymentMethod.String(),
			FinalAmount:   row.FinalAmount.StringFixed(2),
			SaleID:        row.SaleID,
			ReceiptNumber: row.ReceiptNumber,
			LastError:     row.LastError,
			CreatedAt:     row.CreatedAt.UTC().Format(timeLayout),
		}
		if row.FinishedAt != nil {
			finished := row.FinishedAt.UTC().Format(timeLayout)
			item.FinishedAt = &finished
		}
		out = append(out, item)
	}
	return out
}
