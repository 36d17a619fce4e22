// Package checkout composes the price preview and drives order
// submission, including the third-party payment confirmation step for
// methods that require one.
package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"shopgate/internal/model"
	"shopgate/internal/payment"
)

// Phase is the orchestrator's position in the checkout flow.
type Phase string

const (
	PhaseEnteringDetails Phase = "entering_details"
	PhasePreviewLoading  Phase = "preview_loading"
	PhasePreviewReady    Phase = "preview_ready"
	PhaseSubmitting      Phase = "submitting"
	PhaseOrderPlaced     Phase = "order_placed"
	PhaseOrderFailed     Phase = "order_failed"
)

// Payment methods the storefront accepts.
const (
	MethodCard = "card"
	MethodCOD  = "cod"
)

// Backend issues authenticated requests. Satisfied by api.Client.
type Backend interface {
	Do(ctx context.Context, method, url string, body, out interface{}) error
}

// Cart is the slice of the cart store checkout needs: the known
// subtotal for the preview fallback, and clear-then-resync on a
// placed order.
type Cart interface {
	Subtotal() int64
	Reset()
	Fetch(ctx context.Context) error
}

// MethodLister supplies the shipping method list. Satisfied by
// catalog.Client.
type MethodLister interface {
	ShippingMethods(ctx context.Context) ([]model.ShippingMethod, error)
}

// PreviewRequest selects the inputs of a price preview.
type PreviewRequest struct {
	PaymentMethod    string
	Coupon           string
	ShippingMethodID int64
}

// SubmitRequest is a final order submission. PaymentMethodID is the
// tokenized card reference used to confirm the payment intent; unused
// for deferred methods.
type SubmitRequest struct {
	PaymentMethod   string                `json:"payment_method"`
	Coupon          string                `json:"coupon,omitempty"`
	Shipping        model.ShippingDetails `json:"shipping"`
	PaymentMethodID string                `json:"-"`
}

// Config configures an Orchestrator.
type Config struct {
	// OrdersURL is the orders API root.
	OrdersURL string

	Backend   Backend
	Cart      Cart
	Methods   MethodLister
	Confirmer payment.Confirmer
	Logger    *slog.Logger
}

// Orchestrator runs the checkout flow. Safe for concurrent use,
// though the flow itself is sequential: preview until the buyer is
// satisfied, then submit once.
type Orchestrator struct {
	ordersURL string
	backend   Backend
	cart      Cart
	methods   MethodLister
	confirmer payment.Confirmer
	logger    *slog.Logger

	mu           sync.RWMutex
	phase        Phase
	cachedPrices map[int64]int64 // shipping method id → price in cents
}

// New creates a checkout orchestrator in the EnteringDetails phase.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Backend == nil || cfg.Cart == nil || cfg.Methods == nil {
		return nil, fmt.Errorf("checkout: backend, cart and method lister are required")
	}
	if cfg.OrdersURL == "" {
		return nil, fmt.Errorf("checkout: orders URL is required")
	}
	confirmer := cfg.Confirmer
	if confirmer == nil {
		confirmer = payment.DeferredConfirmer{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		ordersURL:    cfg.OrdersURL,
		backend:      cfg.Backend,
		cart:         cfg.Cart,
		methods:      cfg.Methods,
		confirmer:    confirmer,
		logger:       logger,
		phase:        PhaseEnteringDetails,
		cachedPrices: make(map[int64]int64),
	}, nil
}

// Phase returns the orchestrator's current phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.phase
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
}

// Preview requests the server-computed price breakdown for the
// current coupon and shipping selection. Recomputed on every change
// to either input.
//
// When the preview endpoint is unavailable the breakdown is
// approximated locally from the known cart subtotal and the selected
// method's listed price, with the discount defaulting to zero. The
// approximation is returned together with the causing error so the
// caller can keep the flow usable while reporting the degradation.
func (o *Orchestrator) Preview(ctx context.Context, req PreviewRequest) (*model.CheckoutPreview, error) {
	o.setPhase(PhasePreviewLoading)

	q := url.Values{}
	q.Set("paymentMethod", req.PaymentMethod)
	if req.Coupon != "" {
		q.Set("coupon", req.Coupon)
	}
	if req.ShippingMethodID != 0 {
		q.Set("shipping_method_id", strconv.FormatInt(req.ShippingMethodID, 10))
	}

	var preview model.CheckoutPreview
	err := o.backend.Do(ctx, http.MethodGet, o.ordersURL+"/preview/?"+q.Encode(), nil, &preview)
	if err != nil {
		fallback := o.fallbackPreview(ctx, req.ShippingMethodID)
		o.setPhase(PhasePreviewReady)
		o.logger.Warn("preview unavailable, using local approximation",
			slog.String("error", err.Error()))
		return fallback, err
	}

	o.setPhase(PhasePreviewReady)
	return &preview, nil
}

// fallbackPreview approximates the breakdown from local knowledge:
// cart subtotal plus the selected shipping method's listed price,
// discount unknown and therefore zero.
func (o *Orchestrator) fallbackPreview(ctx context.Context, shippingMethodID int64) *model.CheckoutPreview {
	subtotal := o.cart.Subtotal()
	shipping := o.methodPrice(ctx, shippingMethodID)
	return &model.CheckoutPreview{
		Subtotal:       subtotal,
		ShippingCost:   shipping,
		DiscountAmount: 0,
		TotalPrice:     subtotal + shipping,
	}
}

// methodPrice returns the listed price of a shipping method, in
// cents. Prices are cached from the first successful listing so the
// fallback works even while the backend is unreachable.
func (o *Orchestrator) methodPrice(ctx context.Context, id int64) int64 {
	if id == 0 {
		return 0
	}
	o.mu.RLock()
	price, ok := o.cachedPrices[id]
	o.mu.RUnlock()
	if ok {
		return price
	}

	methods, err := o.methods.ShippingMethods(ctx)
	if err != nil {
		return 0
	}
	o.mu.Lock()
	for _, m := range methods {
		o.cachedPrices[m.ID] = model.ParseCents(m.Price)
	}
	price = o.cachedPrices[id]
	o.mu.Unlock()
	return price
}

// Submit posts the final order. Card payments are finalized only
// after the payment intent behind the returned client secret
// confirms; pay-on-delivery finalizes on the backend response alone.
// The cart is cleared exclusively on full success, then resynced.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*model.Order, error) {
	o.setPhase(PhaseSubmitting)

	var order model.Order
	if err := o.backend.Do(ctx, http.MethodPost, o.ordersURL+"/checkout/", req, &order); err != nil {
		o.setPhase(PhaseOrderFailed)
		return nil, err
	}
	order.PaymentMethod = req.PaymentMethod

	if req.PaymentMethod == MethodCard {
		if order.ClientSecret == "" {
			o.setPhase(PhaseOrderFailed)
			return nil, model.NewServerError(0, "card order missing payment client secret")
		}
		if err := o.confirmer.Confirm(ctx, order.ClientSecret, req.PaymentMethodID); err != nil {
			o.setPhase(PhaseOrderFailed)
			return nil, err
		}
	}

	o.setPhase(PhaseOrderPlaced)
	o.logger.Info("order placed",
		slog.String("order_id", order.OrderID),
		slog.String("payment_method", req.PaymentMethod))

	o.cart.Reset()
	if err := o.cart.Fetch(ctx); err != nil {
		// The order stands; the empty server cart arrives on the
		// next fetch.
		o.logger.Warn("cart resync after order", slog.String("error", err.Error()))
	}
	return &order, nil
}
