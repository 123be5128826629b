package backoffice

import (
	"context"
	"net/http"

	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
)

// CreateSale commits a sale. Stock is decremented by the backoffice.
func (c *Client) CreateSale(ctx context.Context, req CreateSaleRequest) (*Sale, error) {
	var sale Sale
	if err := c.postJSON(ctx, "/sales", req, "sale", &sale); err != nil {
		return nil, err
	}
	if sale.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "backoffice returned a sale without id")
	}
	return &sale, nil
}

// RenderReceipt asks the backoffice to render and print a receipt for a committed sale.
func (c *Client) RenderReceipt(ctx context.Context, saleID string, req RenderReceiptRequest) error {
	id, err := requireID(saleID, "sale id")
	if err != nil {
		return err
	}
	return c.postJSON(ctx, "/sales/"+id+"/receipt", req, "sale", nil)
}

// CreateParkedSale stores a suspended cart.
func (c *Client) CreateParkedSale(ctx context.Context, parked ParkedSale) (*ParkedSale, error) {
	var created ParkedSale
	if err := c.postJSON(ctx, "/parked-sales", parked, "parked sale", &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// GetParkedSale fetches a suspended cart by id.
func (c *Client) GetParkedSale(ctx context.Context, parkedSaleID string) (*ParkedSale, error) {
	id, err := requireID(parkedSaleID, "parked sale id")
	if err != nil {
		return nil, err
	}
	var parked ParkedSale
	if err := c.getJSON(ctx, "/parked-sales/"+id, nil, "parked sale", &parked); err != nil {
		return nil, err
	}
	return &parked, nil
}

// DeleteParkedSale removes a suspended cart.
func (c *Client) DeleteParkedSale(ctx context.Context, parkedSaleID string) error {
	id, err := requireID(parkedSaleID, "parked sale id")
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodDelete, "/parked-sales/"+id, nil, nil, "parked sale")
	return err
}
