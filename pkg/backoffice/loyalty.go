package backoffice

import "context"

// GetCustomerPoints returns the customer's available loyalty points.
func (c *Client) GetCustomerPoints(ctx context.Context, customerID string) (*CustomerPoints, error) {
	id, err := requireID(customerID, "customer id")
	if err != nil {
		return nil, err
	}
	var points CustomerPoints
	if err := c.getJSON(ctx, "/customers/"+id+"/loyalty", nil, "customer", &points); err != nil {
		return nil, err
	}
	if points.CustomerID == "" {
		points.CustomerID = customerID
	}
	return &points, nil
}

// RedeemPoints debits points from the customer's balance.
func (c *Client) RedeemPoints(ctx context.Context, customerID string, req RedeemRequest) (*RedeemResult, error) {
	id, err := requireID(customerID, "customer id")
	if err != nil {
		return nil, err
	}
	var result RedeemResult
	if err := c.postJSON(ctx, "/customers/"+id+"/loyalty/redeem", req, "customer", &result); err != nil {
		return nil, err
	}
	return &result, nil
}
