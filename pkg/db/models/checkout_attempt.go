package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
)

// CheckoutAttempt journals one pass through the checkout state machine.
type CheckoutAttempt struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	TerminalID     string              `gorm:"column:terminal_id;not null;index"`
	State          enums.CheckoutState `gorm:"column:state;not null"`
	CustomerID     *string             `gorm:"column:customer_id"`
	PaymentMethod  enums.PaymentMethod `gorm:"column:payment_method;not null"`
	Subtotal       decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	TaxAmount      decimal.Decimal     `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	DiscountAmount decimal.Decimal     `gorm:"column:discount_amount;type:numeric(12,2);not null"`
	FinalAmount    decimal.Decimal     `gorm:"column:final_amount;type:numeric(12,2);not null"`
	LineCount      int                 `gorm:"column:line_count;not null"`
	SaleID         *string             `gorm:"column:sale_id"`
	ReceiptNumber  *string             `gorm:"column:receipt_number"`
	LastError      *string             `gorm:"column:last_error"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
	FinishedAt     *time.Time          `gorm:"column:finished_at"`
}

func (CheckoutAttempt) TableName() string { return "checkout_attempts" }

func (a *CheckoutAttempt) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
