package backoffice

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry as served by the backoffice.
type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	SKU           string          `json:"sku"`
	Barcode       string          `json:"barcode,omitempty"`
	Price         decimal.Decimal `json:"price"`
	TaxRate       decimal.Decimal `json:"taxRate"`
	StockQuantity int             `json:"stockQuantity"`
	CategoryID    string          `json:"categoryId,omitempty"`
	IsActive      bool            `json:"isActive"`
	HasVariants   bool            `json:"hasVariants"`
	Variants      []Variant       `json:"variants,omitempty"`
}

// UnmarshalJSON reads the catalog's sellingPrice, falling back to price.
func (p *Product) UnmarshalJSON(data []byte) error {
	type plain Product
	aux := struct {
		*plain
		SellingPrice *decimal.Decimal `json:"sellingPrice"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.SellingPrice != nil {
		p.Price = *aux.SellingPrice
	}
	return nil
}

// RequiresVariant reports whether a variant must be picked before the product can be sold.
func (p Product) RequiresVariant() bool {
	return p.HasVariants || len(p.Variants) > 0
}

// Variant is a sellable option of a product. SellingPrice overrides the
// product price when present.
type Variant struct {
	ID            string           `json:"id"`
	ProductID     string           `json:"productId"`
	Name          string           `json:"name"`
	SKU           string           `json:"sku"`
	Barcode       string           `json:"barcode,omitempty"`
	SellingPrice  *decimal.Decimal `json:"sellingPrice,omitempty"`
	StockQuantity int              `json:"stockQuantity"`
	IsActive      bool             `json:"isActive"`
	Product       *Product         `json:"product,omitempty"`
}

// SearchParams narrows a product search.
type SearchParams struct {
	Search   string
	IsActive *bool
	Limit    int
}

// CustomerPoints is a customer's loyalty balance.
type CustomerPoints struct {
	CustomerID      string `json:"customerId"`
	AvailablePoints int64  `json:"availablePoints"`
	LifetimePoints  int64  `json:"lifetimePoints,omitempty"`
}

// RedeemRequest debits points from a customer's balance.
type RedeemRequest struct {
	Points        int64           `json:"points"`
	RewardType    string          `json:"rewardType"`
	DiscountValue decimal.Decimal `json:"discountValue"`
	Description   string          `json:"description,omitempty"`
	Reference     string          `json:"reference,omitempty"`
}

// RedeemResult is the loyalty API's acknowledgement of a debit.
type RedeemResult struct {
	TransactionID   string `json:"transactionId"`
	RemainingPoints int64  `json:"remainingPoints"`
}

// SaleItem is one committed line.
type SaleItem struct {
	ProductID        string          `json:"productId"`
	ProductVariantID *string         `json:"productVariantId,omitempty"`
	Quantity         int             `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unitPrice"`
	TaxRate          decimal.Decimal `json:"taxRate"`
	Subtotal         decimal.Decimal `json:"subtotal"`
}

// SalePayment is one tender applied to a sale.
type SalePayment struct {
	Method string          `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}

// CreateSaleRequest is the payload that commits a sale and decrements stock.
type CreateSaleRequest struct {
	TerminalID            string          `json:"terminalId,omitempty"`
	CustomerID            *string         `json:"customerId,omitempty"`
	Items                 []SaleItem      `json:"items"`
	Subtotal              decimal.Decimal `json:"subtotal"`
	TaxAmount             decimal.Decimal `json:"taxAmount"`
	DiscountAmount        decimal.Decimal `json:"discountAmount"`
	LoyaltyDiscount       decimal.Decimal `json:"loyaltyDiscount"`
	LoyaltyPointsRedeemed int64           `json:"loyaltyPointsRedeemed,omitempty"`
	TotalAmount           decimal.Decimal `json:"totalAmount"`
	PaymentMethod         string          `json:"paymentMethod"`
	Payments              []SalePayment   `json:"payments,omitempty"`
	AmountPaid            decimal.Decimal `json:"amountPaid"`
	ChangeAmount          decimal.Decimal `json:"changeAmount"`
	Notes                 string          `json:"notes,omitempty"`
}

// Sale is the committed sale returned by the backoffice.
type Sale struct {
	ID            string          `json:"id"`
	ReceiptNumber string          `json:"receiptNumber,omitempty"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// ParkedSaleItem is a denormalized line so a parked sale can be resumed
// without catalog lookups.
type ParkedSaleItem struct {
	ProductID        string          `json:"productId"`
	ProductVariantID *string         `json:"productVariantId,omitempty"`
	ProductName      string          `json:"productName"`
	ProductSKU       string          `json:"productSku"`
	Quantity         int             `json:"quantity"`
	Price            decimal.Decimal `json:"price"`
	TaxRate          decimal.Decimal `json:"taxRate"`
	CategoryID       string          `json:"categoryId,omitempty"`
}

// ParkedSale is a suspended cart held by the backoffice.
type ParkedSale struct {
	ID             string           `json:"id,omitempty"`
	TerminalID     string           `json:"terminalId,omitempty"`
	CustomerID     *string          `json:"customerId,omitempty"`
	Items          []ParkedSaleItem `json:"items"`
	Subtotal       decimal.Decimal  `json:"subtotal"`
	TaxAmount      decimal.Decimal  `json:"taxAmount"`
	DiscountAmount decimal.Decimal  `json:"discountAmount"`
	Notes          string           `json:"notes,omitempty"`
	CreatedAt      time.Time        `json:"createdAt,omitempty"`
}

// RenderReceiptRequest asks the backoffice to render and print a receipt.
type RenderReceiptRequest struct {
	Format     string `json:"format"`
	TerminalID string `json:"terminalId,omitempty"`
}
