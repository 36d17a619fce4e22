package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"shopgate/internal/cart"
	"shopgate/internal/checkout"
	"shopgate/internal/model"
)

// === Fakes ===

type fakeCart struct {
	items    []model.CartItem
	fetchErr error
	addErr   error
}

func (c *fakeCart) Fetch(ctx context.Context) error { return c.fetchErr }
func (c *fakeCart) Items() []model.CartItem         { return c.items }
func (c *fakeCart) Status() cart.Status             { return cart.StatusSucceeded }

func (c *fakeCart) Subtotal() int64 {
	var total int64
	for _, it := range c.items {
		total += int64(it.Quantity) * it.UnitPriceCents()
	}
	return total
}

func (c *fakeCart) Add(ctx context.Context, req cart.AddRequest) (model.CartItem, error) {
	if c.addErr != nil {
		return model.CartItem{}, c.addErr
	}
	item := model.CartItem{
		ID:       "10",
		Product:  model.ProductRef{ID: req.ProductID, Price: "10.00", Stock: 5},
		Quantity: req.Quantity,
	}
	c.items = append(c.items, item)
	return item, nil
}

func (c *fakeCart) UpdateQuantity(ctx context.Context, id string, qty int, action cart.ActionType) (model.CartItem, error) {
	for i, it := range c.items {
		if it.ID == id {
			c.items[i].Quantity = qty
			return c.items[i], nil
		}
	}
	return model.CartItem{}, model.NewDomainError(404, "cart item not found")
}

func (c *fakeCart) Remove(ctx context.Context, id string) error {
	for i, it := range c.items {
		if it.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return nil
		}
	}
	return model.NewDomainError(404, "cart item not found")
}

type fakeCheckout struct {
	preview    *model.CheckoutPreview
	previewErr error
	order      *model.Order
	submitErr  error
}

func (c *fakeCheckout) Preview(ctx context.Context, req checkout.PreviewRequest) (*model.CheckoutPreview, error) {
	return c.preview, c.previewErr
}

func (c *fakeCheckout) Submit(ctx context.Context, req checkout.SubmitRequest) (*model.Order, error) {
	if c.submitErr != nil {
		return nil, c.submitErr
	}
	return c.order, nil
}

type fakeCatalog struct {
	products []model.Product
	methods  []model.ShippingMethod
	orders   []model.OrderSummary
	err      error
}

func (c *fakeCatalog) Products(ctx context.Context, category string) ([]model.Product, error) {
	return c.products, c.err
}

func (c *fakeCatalog) Product(ctx context.Context, slug string) (*model.Product, error) {
	if c.err != nil {
		return nil, c.err
	}
	for i := range c.products {
		if c.products[i].Slug == slug {
			return &c.products[i], nil
		}
	}
	return nil, model.NewDomainError(404, "product not found")
}

func (c *fakeCatalog) ShippingMethods(ctx context.Context) ([]model.ShippingMethod, error) {
	return c.methods, c.err
}

func (c *fakeCatalog) Orders(ctx context.Context) ([]model.OrderSummary, error) {
	return c.orders, c.err
}

func (c *fakeCatalog) Order(ctx context.Context, id string) (*model.OrderDetail, error) {
	if c.err != nil {
		return nil, c.err
	}
	for _, o := range c.orders {
		if o.ID.String() == id {
			return &model.OrderDetail{OrderSummary: o}, nil
		}
	}
	return nil, model.NewDomainError(404, "order not found")
}

type fakeSession struct {
	user     *model.User
	loginErr error
}

func (s *fakeSession) Login(ctx context.Context, email, password string) error {
	if s.loginErr != nil {
		return s.loginErr
	}
	s.user = &model.User{ID: 1, Email: email}
	return nil
}

func (s *fakeSession) Logout(ctx context.Context) error {
	s.user = nil
	return nil
}

func (s *fakeSession) User() *model.User { return s.user }

func newTestHandler(cartSvc *fakeCart, checkoutSvc *fakeCheckout, catalogSvc *fakeCatalog, sessionSvc *fakeSession) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(cartSvc, checkoutSvc, catalogSvc, sessionSvc, logger)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// === Tests ===

func TestGetCart(t *testing.T) {
	cartSvc := &fakeCart{items: []model.CartItem{{
		ID:       "1",
		Product:  model.ProductRef{ID: 5, Price: "10.00"},
		Quantity: 2,
	}}}
	h := newTestHandler(cartSvc, &fakeCheckout{}, &fakeCatalog{}, &fakeSession{})

	w := doRequest(t, h, "GET", "/cart", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}

	var resp struct {
		Items    []model.CartItem `json:"items"`
		Subtotal string           `json:"subtotal"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Errorf("items = %d, want 1", len(resp.Items))
	}
	if resp.Subtotal != "20.00" {
		t.Errorf("subtotal = %s, want 20.00", resp.Subtotal)
	}
}

func TestGetCartSessionExpired(t *testing.T) {
	cartSvc := &fakeCart{fetchErr: model.NewSessionExpiredError()}
	h := newTestHandler(cartSvc, &fakeCheckout{}, &fakeCatalog{}, &fakeSession{})

	w := doRequest(t, h, "GET", "/cart", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Status = %d, want 401", w.Code)
	}

	var resp errorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != "SESSION_EXPIRED" {
		t.Errorf("code = %s", resp.Error.Code)
	}
}

func TestAddToCart(t *testing.T) {
	cartSvc := &fakeCart{}
	h := newTestHandler(cartSvc, &fakeCheckout{}, &fakeCatalog{}, &fakeSession{})

	w := doRequest(t, h, "POST", "/cart/items", `{"product_id": 5, "quantity": 2}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if len(cartSvc.items) != 1 {
		t.Errorf("items = %d, want 1", len(cartSvc.items))
	}
}

func TestAddToCartInvalidJSON(t *testing.T) {
	h := newTestHandler(&fakeCart{}, &fakeCheckout{}, &fakeCatalog{}, &fakeSession{})

	w := doRequest(t, h, "POST", "/cart/items", "{not json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Status = %d, want 400", w.Code)
	}
}

func TestUpdateCartItem(t *testing.T) {
	cartSvc := &fakeCart{items: []model.CartItem{{
		ID:       "1",
		Product:  model.ProductRef{ID: 5, Price: "10.00"},
		Quantity: 2,
	}}}
	h := newTestHandler(cartSvc, &fakeCheckout{}, &fakeCatalog{}, &fakeSession{})

	w := doRequest(t, h, "PATCH", "/cart/items/1", `{"quantity": 3}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d: %s", w.Code, w.Body.String())
	}
	if cartSvc.items[0].Quantity != 3 {
		t.Errorf("quantity = %d, want 3", cartSvc.items[0].Quantity)
	}
}

func TestRemoveCartItem(t *testing.T) {
	cartSvc := &fakeCart{items: []model.CartItem{{ID: "1", Quantity: 2}}}
	h := newTestHandler(cartSvc, &fakeCheckout{}, &fakeCatalog{}, &fakeSession{})

	w := doRequest(t, h, "DELETE", "/cart/items/1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}
	if len(cartSvc.items) != 0 {
		t.Error("item should be removed")
	}

	// Unknown item surfaces the backend 404
	w = doRequest(t, h, "DELETE", "/cart/items/99", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", w.Code)
	}
}

func TestPreview(t *testing.T) {
	checkoutSvc := &fakeCheckout{preview: &model.CheckoutPreview{
		Subtotal: 5000, ShippingCost: 500, DiscountAmount: 250, TotalPrice: 5250,
	}}
	h := newTestHandler(&fakeCart{}, checkoutSvc, &fakeCatalog{}, &fakeSession{})

	w := doRequest(t, h, "POST", "/checkout/preview",
		`{"payment_method": "card", "coupon": "SAVE10", "shipping_method_id": 2}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d: %s", w.Code, w.Body.String())
	}

	var resp previewResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.TotalPrice != "52.50" {
		t.Errorf("total = %s, want 52.50", resp.TotalPrice)
	}
	if resp.Approximate {
		t.Error("server preview must not be flagged approximate")
	}
}

func TestPreviewApproximate(t *testing.T) {
	checkoutSvc := &fakeCheckout{
		preview:    &model.CheckoutPreview{Subtotal: 5000, ShippingCost: 500, TotalPrice: 5500},
		previewErr: model.NewServerError(503, "preview unavailable"),
	}
	h := newTestHandler(&fakeCart{}, checkoutSvc, &fakeCatalog{}, &fakeSession{})

	w := doRequest(t, h, "POST", "/checkout/preview", `{"payment_method": "card"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, fallback preview should still serve", w.Code)
	}

	var resp previewResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Approximate {
		t.Error("fallback preview must be flagged approximate")
	}
	if resp.DiscountAmount != "0.00" {
		t.Errorf("discount = %s, want 0.00", resp.DiscountAmount)
	}
}

func TestSubmit(t *testing.T) {
	checkoutSvc := &fakeCheckout{order: &model.Order{OrderID: "41"}}
	h := newTestHandler(&fakeCart{}, checkoutSvc, &fakeCatalog{}, &fakeSession{})

	w := doRequest(t, h, "POST", "/checkout",
		`{"payment_method": "cod", "shipping": {"city": "Oslo", "postal_code": "0150", "country": "NO", "shipping_method_id": 1}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Status = %d: %s", w.Code, w.Body.String())
	}

	var resp model.Order
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.OrderID != "41" {
		t.Errorf("order_id = %s", resp.OrderID)
	}
}

func TestSubmitRequiresPaymentMethod(t *testing.T) {
	h := newTestHandler(&fakeCart{}, &fakeCheckout{}, &fakeCatalog{}, &fakeSession{})

	w := doRequest(t, h, "POST", "/checkout", `{"shipping": {}}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Status = %d, want 400", w.Code)
	}
}

func TestSubmitRejection(t *testing.T) {
	checkoutSvc := &fakeCheckout{submitErr: model.NewDomainError(400, "invalid coupon")}
	h := newTestHandler(&fakeCart{}, checkoutSvc, &fakeCatalog{}, &fakeSession{})

	w := doRequest(t, h, "POST", "/checkout", `{"payment_method": "cod"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Status = %d", w.Code)
	}

	var resp errorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Message != "invalid coupon" {
		t.Errorf("message = %s", resp.Error.Message)
	}
}

func TestProducts(t *testing.T) {
	catalogSvc := &fakeCatalog{products: []model.Product{
		{ID: 1, Name: "Mug", Slug: "mug", Price: "12.00"},
	}}
	h := newTestHandler(&fakeCart{}, &fakeCheckout{}, catalogSvc, &fakeSession{})

	w := doRequest(t, h, "GET", "/products", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}
	var products []model.Product
	json.Unmarshal(w.Body.Bytes(), &products)
	if len(products) != 1 || products[0].Slug != "mug" {
		t.Errorf("products = %v", products)
	}

	w = doRequest(t, h, "GET", "/products/mug", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}

	w = doRequest(t, h, "GET", "/products/unknown", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", w.Code)
	}
}

func TestShippingMethods(t *testing.T) {
	catalogSvc := &fakeCatalog{methods: []model.ShippingMethod{
		{ID: 1, Name: "Standard", Price: "5.00"},
	}}
	h := newTestHandler(&fakeCart{}, &fakeCheckout{}, catalogSvc, &fakeSession{})

	w := doRequest(t, h, "GET", "/shipping-methods", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}
	var methods []model.ShippingMethod
	json.Unmarshal(w.Body.Bytes(), &methods)
	if len(methods) != 1 {
		t.Errorf("methods = %v", methods)
	}
}

func TestOrderHistory(t *testing.T) {
	catalogSvc := &fakeCatalog{orders: []model.OrderSummary{
		{ID: json.Number("41"), Status: "processing", TotalPrice: "65.00"},
	}}
	h := newTestHandler(&fakeCart{}, &fakeCheckout{}, catalogSvc, &fakeSession{})

	w := doRequest(t, h, "GET", "/orders", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}
	var orders []model.OrderSummary
	json.Unmarshal(w.Body.Bytes(), &orders)
	if len(orders) != 1 || orders[0].Status != "processing" {
		t.Errorf("orders = %v", orders)
	}

	w = doRequest(t, h, "GET", "/orders/41", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}
	var order model.OrderDetail
	json.Unmarshal(w.Body.Bytes(), &order)
	if order.TotalPrice != "65.00" {
		t.Errorf("order = %+v", order)
	}

	w = doRequest(t, h, "GET", "/orders/999", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", w.Code)
	}
}

func TestLoginLogout(t *testing.T) {
	sessionSvc := &fakeSession{}
	h := newTestHandler(&fakeCart{}, &fakeCheckout{}, &fakeCatalog{}, sessionSvc)

	// Missing credentials rejected before the backend is involved
	w := doRequest(t, h, "POST", "/login", `{"email": ""}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Status = %d, want 400", w.Code)
	}

	w = doRequest(t, h, "POST", "/login", `{"email": "c@example.com", "password": "pw"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(t, h, "GET", "/me", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}

	w = doRequest(t, h, "POST", "/logout", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}

	w = doRequest(t, h, "GET", "/me", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401 after logout", w.Code)
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(&fakeCart{}, &fakeCheckout{}, &fakeCatalog{}, &fakeSession{})

	w := doRequest(t, h, "GET", "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestNetworkErrorMapsToBadGateway(t *testing.T) {
	cartSvc := &fakeCart{fetchErr: model.NewNetworkError(io.ErrUnexpectedEOF)}
	h := newTestHandler(cartSvc, &fakeCheckout{}, &fakeCatalog{}, &fakeSession{})

	w := doRequest(t, h, "GET", "/cart", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("Status = %d, want 502", w.Code)
	}
}
