// Package client holds the gateway's typed clients for the inventory and
// pricing services. Every call goes through the downstream's breaker.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hellodd/orderflow/pkg/httpclient"
)

// Product mirrors the inventory service product representation.
type Product struct {
	ID            string `json:"id"`
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	PriceCents    int64  `json:"price_cents"`
	StockLevel    int    `json:"stock_level"`
	ReservedStock int    `json:"reserved_stock"`
	Active        bool   `json:"active"`
}

// Available returns the stock that can still be reserved.
func (p *Product) Available() int {
	return max(p.StockLevel-p.ReservedStock, 0)
}

// Reservation mirrors the inventory service reservation representation.
type Reservation struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Settlement is the result of releasing or confirming a reservation.
type Settlement struct {
	Reservation *Reservation `json:"reservation"`
	Changed     bool         `json:"changed"`
}

type productPage struct {
	Items      []Product `json:"items"`
	TotalCount int       `json:"total_count"`
}

// InventoryClient calls the inventory service.
type InventoryClient struct {
	http *httpclient.BreakerClient
}

// NewInventoryClient creates a client on top of a breaker-guarded HTTP client.
func NewInventoryClient(c *httpclient.BreakerClient) *InventoryClient {
	return &InventoryClient{http: c}
}

// ListProducts returns up to limit active products ordered by SKU.
func (c *InventoryClient) ListProducts(ctx context.Context, limit int) ([]Product, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	var page productPage
	if err := c.http.GetJSON(ctx, "/api/v1/products?"+q.Encode(), &page); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return page.Items, nil
}

// GetProduct returns one product by id.
func (c *InventoryClient) GetProduct(ctx context.Context, id string) (*Product, error) {
	var p Product
	if err := c.http.GetJSON(ctx, "/api/v1/products/"+url.PathEscape(id), &p); err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// Reserve holds quantity units of a product.
func (c *InventoryClient) Reserve(ctx context.Context, productID string, quantity int) (*Reservation, error) {
	body := map[string]any{"product_id": productID, "quantity": quantity}
	var res Reservation
	if err := c.http.SendJSON(ctx, http.MethodPost, "/api/v1/reservations", body, &res); err != nil {
		return nil, fmt.Errorf("reserve stock: %w", err)
	}
	return &res, nil
}

// Release returns a reservation's units to available stock. Releasing an
// already released reservation succeeds.
func (c *InventoryClient) Release(ctx context.Context, reservationID string) (*Settlement, error) {
	return c.settle(ctx, reservationID, "release")
}

// Confirm turns a reservation into a permanent stock deduction.
func (c *InventoryClient) Confirm(ctx context.Context, reservationID string) (*Settlement, error) {
	return c.settle(ctx, reservationID, "confirm")
}

func (c *InventoryClient) settle(ctx context.Context, reservationID, action string) (*Settlement, error) {
	var s Settlement
	path := "/api/v1/reservations/" + url.PathEscape(reservationID) + "/" + action
	if err := c.http.SendJSON(ctx, http.MethodPost, path, nil, &s); err != nil {
		return nil, fmt.Errorf("%s reservation: %w", action, err)
	}
	return &s, nil
}
