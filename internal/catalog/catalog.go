// Package catalog reads the browse-side backend resources: product
// listings, shipping methods, and the signed-in user's order history.
// All of it is display data owned server-side.
package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"shopgate/internal/model"
)

// Backend issues authenticated requests. Satisfied by api.Client.
type Backend interface {
	Do(ctx context.Context, method, url string, body, out interface{}) error
}

// Config holds the per-service base URLs.
type Config struct {
	ProductsURL string
	OrdersURL   string
	ShippingURL string
}

// Client reads catalog resources.
type Client struct {
	backend Backend
	cfg     Config
}

func NewClient(backend Backend, cfg Config) (*Client, error) {
	if backend == nil {
		return nil, fmt.Errorf("catalog: backend is required")
	}
	return &Client{backend: backend, cfg: cfg}, nil
}

// Products lists the catalog, optionally filtered by category.
func (c *Client) Products(ctx context.Context, category string) ([]model.Product, error) {
	u := c.cfg.ProductsURL + "/"
	if category != "" {
		u += "?category=" + url.QueryEscape(category)
	}
	var products []model.Product
	if err := c.backend.Do(ctx, http.MethodGet, u, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// Product fetches one product by slug.
func (c *Client) Product(ctx context.Context, slug string) (*model.Product, error) {
	var product model.Product
	u := c.cfg.ProductsURL + "/" + url.PathEscape(slug) + "/"
	if err := c.backend.Do(ctx, http.MethodGet, u, nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// ShippingMethods lists the methods the store offers. Checkout uses
// the listed prices for its local preview fallback.
func (c *Client) ShippingMethods(ctx context.Context) ([]model.ShippingMethod, error) {
	var methods []model.ShippingMethod
	if err := c.backend.Do(ctx, http.MethodGet, c.cfg.ShippingURL+"/methods/", nil, &methods); err != nil {
		return nil, err
	}
	return methods, nil
}

// Orders lists the signed-in user's order history, newest first as
// returned by the backend.
func (c *Client) Orders(ctx context.Context) ([]model.OrderSummary, error) {
	var orders []model.OrderSummary
	if err := c.backend.Do(ctx, http.MethodGet, c.cfg.OrdersURL+"/", nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Order fetches one order from the history with its line items.
func (c *Client) Order(ctx context.Context, id string) (*model.OrderDetail, error) {
	var order model.OrderDetail
	u := c.cfg.OrdersURL + "/" + url.PathEscape(id) + "/"
	if err := c.backend.Do(ctx, http.MethodGet, u, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}
