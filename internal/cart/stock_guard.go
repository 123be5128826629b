package cart

import (
	"fmt"

	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
)

// StockGuard checks a requested line quantity against the stock figure cached
// on the line. It is advisory: the backoffice re-checks when the sale commits.
type StockGuard struct{}

// CheckAvailable allows requested units of key when cachedStock covers them.
// requested is the total the line would hold after the mutation.
func (StockGuard) CheckAvailable(key Key, requested, cachedStock int) error {
	if cachedStock <= 0 {
		return pkgerrors.New(pkgerrors.CodeStockDenied, "product is out of stock").
			WithDetails(map[string]any{"item": key.String(), "available": 0})
	}
	if requested > cachedStock {
		return pkgerrors.New(pkgerrors.CodeStockDenied, fmt.Sprintf("only %d in stock", cachedStock)).
			WithDetails(map[string]any{"item": key.String(), "available": cachedStock, "requested": requested})
	}
	return nil
}
