package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"shopgate/internal/model"
)

type fakeCart struct {
	subtotal int64
	resets   int
	fetches  int
	fetchErr error
}

func (c *fakeCart) Subtotal() int64 { return c.subtotal }
func (c *fakeCart) Reset()          { c.resets++ }
func (c *fakeCart) Fetch(ctx context.Context) error {
	c.fetches++
	return c.fetchErr
}

type fakeMethods struct {
	methods []model.ShippingMethod
	err     error
	calls   int
}

func (m *fakeMethods) ShippingMethods(ctx context.Context) ([]model.ShippingMethod, error) {
	m.calls++
	return m.methods, m.err
}

type fakeConfirmer struct {
	err       error
	calls     int
	gotSecret string
	gotPM     string
}

func (c *fakeConfirmer) Confirm(ctx context.Context, clientSecret, paymentMethodID string) error {
	c.calls++
	c.gotSecret = clientSecret
	c.gotPM = paymentMethodID
	return c.err
}

type httpBackend struct {
	client *http.Client
}

func (b *httpBackend) Do(ctx context.Context, method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = strings.NewReader(string(data))
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return model.NewNetworkError(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		if resp.StatusCode >= 500 {
			return model.NewServerError(resp.StatusCode, "")
		}
		return model.NewDomainError(resp.StatusCode, "")
	}
	if out != nil && len(raw) > 0 {
		return json.Unmarshal(raw, out)
	}
	return nil
}

func testOrchestrator(t *testing.T, backend http.Handler, cart *fakeCart, methods *fakeMethods, confirmer *fakeConfirmer) (*Orchestrator, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	o, err := New(Config{
		OrdersURL: srv.URL,
		Backend:   &httpBackend{client: srv.Client()},
		Cart:      cart,
		Methods:   methods,
		Confirmer: confirmer,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o, srv
}

func TestPreviewServerComputed(t *testing.T) {
	cart := &fakeCart{subtotal: 5000}
	methods := &fakeMethods{}
	o, _ := testOrchestrator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/preview/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("paymentMethod") != "card" || q.Get("coupon") != "SAVE10" || q.Get("shipping_method_id") != "2" {
			t.Errorf("query = %v", q)
		}
		w.Write([]byte(`{"subtotal": "50.00", "shipping_cost": "5.00", "discount_amount": "5.00", "total_price": "50.00"}`))
	}), cart, methods, &fakeConfirmer{})

	preview, err := o.Preview(context.Background(), PreviewRequest{
		PaymentMethod:    "card",
		Coupon:           "SAVE10",
		ShippingMethodID: 2,
	})
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	want := model.CheckoutPreview{Subtotal: 5000, ShippingCost: 500, DiscountAmount: 500, TotalPrice: 5000}
	if *preview != want {
		t.Errorf("preview = %+v, want %+v", *preview, want)
	}
	if o.Phase() != PhasePreviewReady {
		t.Errorf("phase = %s", o.Phase())
	}
	if methods.calls != 0 {
		t.Error("server preview should not consult the method list")
	}
}

func TestPreviewFallsBackLocally(t *testing.T) {
	cart := &fakeCart{subtotal: 5000}
	methods := &fakeMethods{methods: []model.ShippingMethod{
		{ID: 1, Name: "Standard", Price: "5.00"},
		{ID: 2, Name: "Express", Price: "15.00"},
	}}
	o, _ := testOrchestrator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}), cart, methods, &fakeConfirmer{})

	preview, err := o.Preview(context.Background(), PreviewRequest{
		PaymentMethod:    "card",
		ShippingMethodID: 2,
	})
	if err == nil {
		t.Fatal("fallback must surface the causing error")
	}
	if preview == nil {
		t.Fatal("fallback preview must still be returned")
	}

	want := model.CheckoutPreview{Subtotal: 5000, ShippingCost: 1500, DiscountAmount: 0, TotalPrice: 6500}
	if *preview != want {
		t.Errorf("fallback = %+v, want %+v", *preview, want)
	}
	if o.Phase() != PhasePreviewReady {
		t.Errorf("phase = %s, flow must stay usable", o.Phase())
	}

	// Method prices are cached: a second fallback needs no listing.
	o.Preview(context.Background(), PreviewRequest{ShippingMethodID: 2})
	if methods.calls != 1 {
		t.Errorf("method listings = %d, want 1", methods.calls)
	}
}

func TestSubmitCODFinalizesImmediately(t *testing.T) {
	cart := &fakeCart{}
	confirmer := &fakeConfirmer{}
	o, _ := testOrchestrator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/checkout/" || r.Method != http.MethodPost {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["payment_method"] != "cod" {
			t.Errorf("payment_method = %v", body["payment_method"])
		}
		w.Write([]byte(`{"order_id": 41}`))
	}), cart, &fakeMethods{}, confirmer)

	order, err := o.Submit(context.Background(), SubmitRequest{
		PaymentMethod: MethodCOD,
		Shipping:      model.ShippingDetails{City: "Oslo", ShippingMethodID: 1},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if order.OrderID != "41" {
		t.Errorf("order id = %q", order.OrderID)
	}
	if confirmer.calls != 0 {
		t.Error("deferred payment must not run confirmation")
	}
	if o.Phase() != PhaseOrderPlaced {
		t.Errorf("phase = %s", o.Phase())
	}
	if cart.resets != 1 || cart.fetches != 1 {
		t.Errorf("cart resets = %d, fetches = %d, want 1 and 1", cart.resets, cart.fetches)
	}
}

func TestSubmitCardConfirmsBeforeFinalizing(t *testing.T) {
	cart := &fakeCart{}
	confirmer := &fakeConfirmer{}
	o, _ := testOrchestrator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"order_id": 42, "client_secret": "pi_1_secret_x"}`))
	}), cart, &fakeMethods{}, confirmer)

	order, err := o.Submit(context.Background(), SubmitRequest{
		PaymentMethod:   MethodCard,
		PaymentMethodID: "pm_123",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if order.ClientSecret != "pi_1_secret_x" {
		t.Errorf("client secret = %q", order.ClientSecret)
	}
	if confirmer.calls != 1 || confirmer.gotSecret != "pi_1_secret_x" || confirmer.gotPM != "pm_123" {
		t.Errorf("confirmer = %+v", confirmer)
	}
	if cart.resets != 1 {
		t.Error("cart should clear after confirmed card order")
	}
}

func TestSubmitCardConfirmFailureKeepsCart(t *testing.T) {
	cart := &fakeCart{}
	confirmer := &fakeConfirmer{err: model.NewDomainError(402, "card declined")}
	o, _ := testOrchestrator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"order_id": 43, "client_secret": "pi_2_secret_y"}`))
	}), cart, &fakeMethods{}, confirmer)

	_, err := o.Submit(context.Background(), SubmitRequest{PaymentMethod: MethodCard})
	if !errors.Is(err, model.ErrRejected) {
		t.Fatalf("err = %v", err)
	}
	if o.Phase() != PhaseOrderFailed {
		t.Errorf("phase = %s", o.Phase())
	}
	if cart.resets != 0 {
		t.Error("failed confirmation must leave the cart untouched")
	}
}

func TestSubmitCardMissingSecretFails(t *testing.T) {
	cart := &fakeCart{}
	o, _ := testOrchestrator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"order_id": 44}`))
	}), cart, &fakeMethods{}, &fakeConfirmer{})

	_, err := o.Submit(context.Background(), SubmitRequest{PaymentMethod: MethodCard})
	if !errors.Is(err, model.ErrServer) {
		t.Fatalf("err = %v", err)
	}
	if cart.resets != 0 {
		t.Error("cart untouched on failure")
	}
}

func TestSubmitBackendFailureKeepsCart(t *testing.T) {
	cart := &fakeCart{}
	o, _ := testOrchestrator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}), cart, &fakeMethods{}, &fakeConfirmer{})

	_, err := o.Submit(context.Background(), SubmitRequest{PaymentMethod: MethodCOD})
	if err == nil {
		t.Fatal("want error")
	}
	if o.Phase() != PhaseOrderFailed {
		t.Errorf("phase = %s", o.Phase())
	}
	if cart.resets != 0 || cart.fetches != 0 {
		t.Error("failed submit must not touch the cart")
	}
}
