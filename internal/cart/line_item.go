package cart

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-pos/pkg/money"
)

// PlaceholderStock is the stock figure given to lines rebuilt from a parked
// sale. The backoffice stays the authority when the sale commits.
const PlaceholderStock = 1 << 30

// Key identifies a cart line. An empty VariantID means the base product.
type Key struct {
	ProductID string
	VariantID string
}

func (k Key) String() string {
	if k.VariantID == "" {
		return k.ProductID
	}
	return k.ProductID + "/" + k.VariantID
}

func newKey(productID string, variantID *string) Key {
	k := Key{ProductID: strings.TrimSpace(productID)}
	if variantID != nil {
		k.VariantID = strings.TrimSpace(*variantID)
	}
	return k
}

// LineItem is one product (or variant) in the cart. UnitPrice is captured
// when the line is created and never re-read from the catalog.
type LineItem struct {
	ProductID  string          `json:"productId"`
	VariantID  *string         `json:"variantId,omitempty"`
	Name       string          `json:"name"`
	SKU        string          `json:"sku"`
	CategoryID string          `json:"categoryId,omitempty"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	TaxRate    decimal.Decimal `json:"taxRate"`
	Stock      int             `json:"stock"`
}

func (l LineItem) Key() Key {
	return newKey(l.ProductID, l.VariantID)
}

// Subtotal is unitPrice * quantity.
func (l LineItem) Subtotal() decimal.Decimal {
	return money.Extend(l.UnitPrice, l.Quantity)
}

// Tax is the unrounded tax on the line subtotal.
func (l LineItem) Tax() decimal.Decimal {
	return money.Percent(l.Subtotal(), l.TaxRate)
}
