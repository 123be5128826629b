// Package loyalty quotes and applies point redemptions against a cart.
package loyalty

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-pos/internal/cart"
	"github.com/angelmondragon/packfinderz-pos/pkg/backoffice"
	"github.com/angelmondragon/packfinderz-pos/pkg/config"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/money"
)

const defaultPointsPerUnit = 100

// PointsAPI reads and debits loyalty balances.
type PointsAPI interface {
	GetCustomerPoints(ctx context.Context, customerID string) (*backoffice.CustomerPoints, error)
	RedeemPoints(ctx context.Context, customerID string, req backoffice.RedeemRequest) (*backoffice.RedeemResult, error)
}

// Reward is a predefined redemption tier.
type Reward struct {
	PointsRequired int64           `json:"pointsRequired"`
	Value          decimal.Decimal `json:"value"`
	Affordable     bool            `json:"affordable"`
}

// Quote is what a customer can redeem right now.
type Quote struct {
	CustomerID      string          `json:"customerId"`
	AvailablePoints int64           `json:"availablePoints"`
	PointsPerUnit   int64           `json:"pointsPerUnit"`
	MaxCustomValue  decimal.Decimal `json:"maxCustomValue"`
	Rewards         []Reward        `json:"rewards"`
}

// Request asks for a redemption. Predefined requests must match a tier's
// points exactly; custom requests are valued at Points / PointsPerUnit.
type Request struct {
	Points      int64
	RewardType  enums.RewardType
	Description string
}

type NegotiatorParams struct {
	API           PointsAPI
	Tiers         []config.RewardTier
	PointsPerUnit int64
	DebitMode     enums.DebitMode
	Logger        *logger.Logger
}

type Negotiator struct {
	api           PointsAPI
	tiers         []config.RewardTier
	pointsPerUnit int64
	mode          enums.DebitMode
	logg          *logger.Logger
}

func NewNegotiator(params NegotiatorParams) (*Negotiator, error) {
	if params.API == nil {
		return nil, errors.New("loyalty api required")
	}
	rate := params.PointsPerUnit
	if rate <= 0 {
		rate = defaultPointsPerUnit
	}
	mode := params.DebitMode
	if mode == "" {
		mode = enums.DebitModeDeferred
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	tiers := append([]config.RewardTier(nil), params.Tiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].PointsRequired < tiers[j].PointsRequired })
	return &Negotiator{api: params.API, tiers: tiers, pointsPerUnit: rate, mode: mode, logg: logg}, nil
}

func (n *Negotiator) DebitMode() enums.DebitMode { return n.mode }

// Quote returns the customer's balance and the rewards it can buy.
func (n *Negotiator) Quote(ctx context.Context, customerID string) (*Quote, error) {
	id := strings.TrimSpace(customerID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	points, err := n.api.GetCustomerPoints(ctx, id)
	if err != nil {
		return nil, err
	}
	q := &Quote{
		CustomerID:      id,
		AvailablePoints: points.AvailablePoints,
		PointsPerUnit:   n.pointsPerUnit,
		MaxCustomValue:  n.customValue(points.AvailablePoints),
		Rewards:         make([]Reward, 0, len(n.tiers)),
	}
	for _, tier := range n.tiers {
		q.Rewards = append(q.Rewards, Reward{
			PointsRequired: tier.PointsRequired,
			Value:          tier.Value,
			Affordable:     tier.PointsRequired <= points.AvailablePoints,
		})
	}
	return q, nil
}

// Redeem validates a redemption against the balance and the cart, then
// applies it. In immediate mode the points are debited before the discount
// is applied; in deferred mode the debit waits for the sale to commit.
func (n *Negotiator) Redeem(ctx context.Context, session *cart.Session, customerID string, req Request) (*cart.Redemption, error) {
	id := strings.TrimSpace(customerID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	if linked := session.CustomerID(); linked != nil && *linked != id {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer does not match the cart")
	}
	if req.Points <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "points must be positive")
	}
	if session.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if existing := session.Redemption(); existing != nil && existing.Debited {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "loyalty points were already redeemed for this cart")
	}

	value, err := n.value(req)
	if err != nil {
		return nil, err
	}

	balance, err := n.api.GetCustomerPoints(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Points > balance.AvailablePoints {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "insufficient loyalty points").
			WithDetails(map[string]any{"available": balance.AvailablePoints, "requested": req.Points})
	}
	if limit := session.FinalBeforeLoyalty(); value.GreaterThan(limit) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount exceeds cart total").
			WithDetails(map[string]any{"maxDiscount": limit.StringFixed(money.Places)})
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = fmt.Sprintf("Redeemed %d points for %s off", req.Points, value.StringFixed(money.Places))
	}
	redemption := cart.Redemption{
		CustomerID:  id,
		Points:      req.Points,
		RewardType:  req.RewardType,
		Value:       value,
		Description: description,
	}

	if n.mode == enums.DebitModeImmediate {
		result, err := n.api.RedeemPoints(ctx, id, backoffice.RedeemRequest{
			Points:        req.Points,
			RewardType:    string(req.RewardType),
			DiscountValue: value,
			Description:   description,
		})
		if err != nil {
			return nil, err
		}
		redemption.Debited = true
		redemption.TransactionID = result.TransactionID
	}

	if err := session.ApplyRedemption(redemption); err != nil {
		return nil, err
	}
	if session.CustomerID() == nil {
		session.LinkCustomer(&id)
	}

	logCtx := n.logg.WithFields(ctx, map[string]any{
		"customer_id": id,
		"points":      req.Points,
		"value":       value.StringFixed(money.Places),
		"debit_mode":  n.mode,
	})
	n.logg.Info(logCtx, "loyalty redemption applied")
	return session.Redemption(), nil
}

func (n *Negotiator) value(req Request) (decimal.Decimal, error) {
	switch req.RewardType {
	case enums.RewardTypePredefined:
		for _, tier := range n.tiers {
			if tier.PointsRequired == req.Points {
				return tier.Value, nil
			}
		}
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("no reward tier for %d points", req.Points))
	case enums.RewardTypeCustom:
		v := n.customValue(req.Points)
		if !v.IsPositive() {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "points are worth less than one cent")
		}
		return v, nil
	default:
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported reward type %q", req.RewardType))
	}
}

// customValue rounds down so a redemption never grants more than its points buy.
func (n *Negotiator) customValue(points int64) decimal.Decimal {
	if points <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(points).Div(decimal.NewFromInt(n.pointsPerUnit)).RoundDown(money.Places)
}
