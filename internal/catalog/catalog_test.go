package catalog

import (
	"context"
	"encoding/json"
	"testing"

	"shopgate/internal/model"
)

// fakeBackend records the request and answers with canned JSON.
type fakeBackend struct {
	method string
	url    string
	reply  string
	err    error
}

func (f *fakeBackend) Do(ctx context.Context, method, url string, body, out interface{}) error {
	f.method = method
	f.url = url
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.reply), out)
}

func testClient(t *testing.T, backend *fakeBackend) *Client {
	t.Helper()
	c, err := NewClient(backend, Config{
		ProductsURL: "https://store.example/api/products",
		OrdersURL:   "https://store.example/api/orders",
		ShippingURL: "https://store.example/api/shipping",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClientRequiresBackend(t *testing.T) {
	if _, err := NewClient(nil, Config{}); err == nil {
		t.Fatal("expected error for nil backend")
	}
}

func TestProducts(t *testing.T) {
	backend := &fakeBackend{reply: `[
		{"id": 60, "name": "Mug", "slug": "mug", "price": "12.00", "stock": 8},
		{"id": 61, "name": "Plate", "slug": "plate", "price": "20.00", "stock": 3}
	]`}
	c := testClient(t, backend)

	products, err := c.Products(context.Background(), "")
	if err != nil {
		t.Fatalf("Products: %v", err)
	}
	if backend.url != "https://store.example/api/products/" {
		t.Errorf("url = %q", backend.url)
	}
	if len(products) != 2 || products[0].Slug != "mug" {
		t.Errorf("products = %+v", products)
	}
}

func TestProductsCategoryFilter(t *testing.T) {
	backend := &fakeBackend{reply: `[]`}
	c := testClient(t, backend)

	if _, err := c.Products(context.Background(), "kitchen & dining"); err != nil {
		t.Fatalf("Products: %v", err)
	}
	want := "https://store.example/api/products/?category=kitchen+%26+dining"
	if backend.url != want {
		t.Errorf("url = %q, want %q", backend.url, want)
	}
}

func TestProductBySlug(t *testing.T) {
	backend := &fakeBackend{reply: `{"id": 60, "name": "Mug", "slug": "mug", "price": "12.00", "stock": 8}`}
	c := testClient(t, backend)

	product, err := c.Product(context.Background(), "mug")
	if err != nil {
		t.Fatalf("Product: %v", err)
	}
	if backend.url != "https://store.example/api/products/mug/" {
		t.Errorf("url = %q", backend.url)
	}
	if product.ID != 60 || product.Name != "Mug" {
		t.Errorf("product = %+v", product)
	}
}

func TestShippingMethods(t *testing.T) {
	backend := &fakeBackend{reply: `[{"id": 1, "name": "Standard", "price": "15.00"}]`}
	c := testClient(t, backend)

	methods, err := c.ShippingMethods(context.Background())
	if err != nil {
		t.Fatalf("ShippingMethods: %v", err)
	}
	if backend.url != "https://store.example/api/shipping/methods/" {
		t.Errorf("url = %q", backend.url)
	}
	if len(methods) != 1 || methods[0].Price != "15.00" {
		t.Errorf("methods = %+v", methods)
	}
}

func TestOrders(t *testing.T) {
	backend := &fakeBackend{reply: `[
		{"id": 41, "status": "processing", "total_price": "65.00", "created_at": "2026-02-10T09:00:00Z"},
		{"id": "40", "status": "delivered", "total_price": "12.00", "created_at": "2026-01-03T14:30:00Z"}
	]`}
	c := testClient(t, backend)

	orders, err := c.Orders(context.Background())
	if err != nil {
		t.Fatalf("Orders: %v", err)
	}
	if backend.url != "https://store.example/api/orders/" {
		t.Errorf("url = %q", backend.url)
	}
	if len(orders) != 2 {
		t.Fatalf("got %d orders", len(orders))
	}
	// Backend sends IDs as both numbers and strings.
	if orders[0].ID.String() != "41" || orders[1].ID.String() != "40" {
		t.Errorf("ids = %v, %v", orders[0].ID, orders[1].ID)
	}
}

func TestOrderByID(t *testing.T) {
	backend := &fakeBackend{reply: `{
		"id": 41, "status": "processing", "total_price": "65.00",
		"created_at": "2026-02-10T09:00:00Z",
		"items": [{"product_name": "Mug", "quantity": 2, "price": "12.00"}]
	}`}
	c := testClient(t, backend)

	order, err := c.Order(context.Background(), "41")
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	if backend.url != "https://store.example/api/orders/41/" {
		t.Errorf("url = %q", backend.url)
	}
	if order.ID.String() != "41" || len(order.Items) != 1 || order.Items[0].ProductName != "Mug" {
		t.Errorf("order = %+v", order)
	}
}

func TestBackendErrorPropagates(t *testing.T) {
	backend := &fakeBackend{err: model.NewServerError(503, "unavailable")}
	c := testClient(t, backend)

	if _, err := c.Products(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
}
