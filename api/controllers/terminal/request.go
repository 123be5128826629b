package terminal

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-pos/internal/loyalty"
	"github.com/angelmondragon/packfinderz-pos/internal/payment"
	terminalsvc "github.com/angelmondragon/packfinderz-pos/internal/terminal"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/money"
)

type scanRequest struct {
	Input    string `json:"input" validate:"required,max=128"`
	Quantity int    `json:"quantity" validate:"omitempty,min=1,max=9999"`
}

type addItemRequest struct {
	ProductID string  `json:"productId" validate:"required,max=64"`
	VariantID *string `json:"variantId" validate:"omitempty,max=64"`
	Quantity  int     `json:"quantity" validate:"omitempty,min=1,max=9999"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity" validate:"min=0,max=9999"`
}

type customerRequest struct {
	CustomerID *string `json:"customerId" validate:"omitempty,max=64"`
}

type discountRequest struct {
	Amount string `json:"amount" validate:"required,money"`
}

type parkRequest struct {
	Notes string `json:"notes" validate:"max=500"`
}

type redeemRequest struct {
	CustomerID  string `json:"customerId" validate:"required,max=64"`
	Points      int64  `json:"points" validate:"gt=0"`
	RewardType  string `json:"rewardType" validate:"required,oneof=predefined custom"`
	Description string `json:"description" validate:"max=200"`
}

type splitRequest struct {
	Method string `json:"method" validate:"required"`
	Amount string `json:"amount" validate:"required,money"`
}

type checkoutRequest struct {
	Method   string         `json:"method" validate:"required_without=Splits,excluded_with=Splits"`
	Tendered *string        `json:"tendered" validate:"omitempty,money"`
	Splits   []splitRequest `json:"splits" validate:"omitempty,max=8,dive"`
}

func (r redeemRequest) toInput() (loyalty.Request, error) {
	rewardType, err := enums.ParseRewardType(r.RewardType)
	if err != nil {
		return loyalty.Request{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reward type")
	}
	return loyalty.Request{
		Points:      r.Points,
		RewardType:  rewardType,
		Description: r.Description,
	}, nil
}

func (r checkoutRequest) toInput() (terminalsvc.CheckoutRequest, error) {
	out := terminalsvc.CheckoutRequest{Method: r.Method}
	if r.Tendered != nil {
		tendered, err := money.Parse(*r.Tendered)
		if err != nil {
			return out, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid tendered amount")
		}
		out.Tendered = &tendered
	}
	for _, sp := range r.Splits {
		method, err := enums.ParsePaymentMethod(sp.Method)
		if err != nil {
			return out, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid split payment method")
		}
		amount, err := money.Parse(sp.Amount)
		if err != nil {
			return out, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid split amount")
		}
		out.Splits = append(out.Splits, payment.Split{Method: method, Amount: amount})
	}
	return out, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := money.Parse(raw)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount")
	}
	return amount, nil
}
