package backoffice

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// GetProduct fetches a single product by id.
func (c *Client) GetProduct(ctx context.Context, productID string) (*Product, error) {
	id, err := requireID(productID, "product id")
	if err != nil {
		return nil, err
	}
	var product Product
	if err := c.getJSON(ctx, "/products/"+id, nil, "product", &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductByBarcode fetches the product whose barcode matches code exactly.
func (c *Client) GetProductByBarcode(ctx context.Context, code string) (*Product, error) {
	escaped, err := requireID(code, "barcode")
	if err != nil {
		return nil, err
	}
	var product Product
	if err := c.getJSON(ctx, "/products/barcode/"+escaped, nil, "product", &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// GetVariantByIdentifier looks a variant up by its numeric identifier, SKU or barcode.
func (c *Client) GetVariantByIdentifier(ctx context.Context, identifier string) (*Variant, error) {
	escaped, err := requireID(identifier, "variant identifier")
	if err != nil {
		return nil, err
	}
	var variant Variant
	if err := c.getJSON(ctx, "/product-variants/identifier/"+escaped, nil, "variant", &variant); err != nil {
		return nil, err
	}
	return &variant, nil
}

// ListVariants returns the variants of a product.
func (c *Client) ListVariants(ctx context.Context, productID string) ([]Variant, error) {
	id, err := requireID(productID, "product id")
	if err != nil {
		return nil, err
	}
	var variants []Variant
	if err := c.getJSON(ctx, "/products/"+id+"/variants", nil, "product", &variants); err != nil {
		return nil, err
	}
	return variants, nil
}

// SearchProducts runs a free-text product search.
func (c *Client) SearchProducts(ctx context.Context, params SearchParams) ([]Product, error) {
	query := url.Values{}
	if params.Search != "" {
		query.Set("search", params.Search)
	}
	if params.IsActive != nil {
		query.Set("isActive", strconv.FormatBool(*params.IsActive))
	}
	if params.Limit > 0 {
		query.Set("limit", strconv.Itoa(params.Limit))
	}

	raw, err := c.do(ctx, http.MethodGet, "/products", query, nil, "product")
	if err != nil {
		return nil, err
	}

	var products []Product
	if err := decodeData(raw, &products); err == nil {
		return products, nil
	}
	var paged struct {
		Items []Product `json:"items"`
	}
	if err := decodeData(raw, &paged); err != nil {
		return nil, err
	}
	return paged.Items, nil
}
