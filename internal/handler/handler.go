// Package handler provides HTTP handlers for the gateway API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"shopgate/internal/cart"
	"shopgate/internal/checkout"
	"shopgate/internal/model"
)

// CartService is the cart surface the handlers expose.
type CartService interface {
	Fetch(ctx context.Context) error
	Items() []model.CartItem
	Status() cart.Status
	Subtotal() int64
	Add(ctx context.Context, req cart.AddRequest) (model.CartItem, error)
	UpdateQuantity(ctx context.Context, cartItemID string, quantity int, action cart.ActionType) (model.CartItem, error)
	Remove(ctx context.Context, cartItemID string) error
}

// CheckoutService runs previews and order submission.
type CheckoutService interface {
	Preview(ctx context.Context, req checkout.PreviewRequest) (*model.CheckoutPreview, error)
	Submit(ctx context.Context, req checkout.SubmitRequest) (*model.Order, error)
}

// CatalogService reads browse-side resources.
type CatalogService interface {
	Products(ctx context.Context, category string) ([]model.Product, error)
	Product(ctx context.Context, slug string) (*model.Product, error)
	ShippingMethods(ctx context.Context) ([]model.ShippingMethod, error)
	Orders(ctx context.Context) ([]model.OrderSummary, error)
	Order(ctx context.Context, id string) (*model.OrderDetail, error)
}

// SessionService is the session surface the handlers expose.
type SessionService interface {
	Login(ctx context.Context, email, password string) error
	Logout(ctx context.Context) error
	User() *model.User
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	cart     CartService
	checkout CheckoutService
	catalog  CatalogService
	session  SessionService
	logger   *slog.Logger
}

// New creates a new Handler.
func New(cartSvc CartService, checkoutSvc CheckoutService, catalogSvc CatalogService, sessionSvc SessionService, logger *slog.Logger) *Handler {
	return &Handler{
		cart:     cartSvc,
		checkout: checkoutSvc,
		catalog:  catalogSvc,
		session:  sessionSvc,
		logger:   logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Session
	mux.HandleFunc("POST /login", h.handleLogin)
	mux.HandleFunc("POST /logout", h.handleLogout)
	mux.HandleFunc("GET /me", h.handleMe)

	// Cart
	mux.HandleFunc("GET /cart", h.handleGetCart)
	mux.HandleFunc("POST /cart/items", h.handleAddToCart)
	mux.HandleFunc("PATCH /cart/items/{id}", h.handleUpdateCartItem)
	mux.HandleFunc("DELETE /cart/items/{id}", h.handleRemoveCartItem)

	// Checkout
	mux.HandleFunc("POST /checkout/preview", h.handlePreview)
	mux.HandleFunc("POST /checkout", h.handleSubmit)

	// Catalog
	mux.HandleFunc("GET /products", h.handleProducts)
	mux.HandleFunc("GET /products/{slug}", h.handleProduct)
	mux.HandleFunc("GET /shipping-methods", h.handleShippingMethods)
	mux.HandleFunc("GET /orders", h.handleOrders)
	mux.HandleFunc("GET /orders/{id}", h.handleOrder)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// === Session ===

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		h.writeError(w, model.NewValidationError("credentials", "email and password are required"))
		return
	}
	if err := h.session.Login(r.Context(), req.Email, req.Password); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"user": h.session.User()})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user := h.session.User()
	if user == nil {
		h.writeError(w, model.NewUnauthorizedError("not signed in"))
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

// === Cart ===

// cartResponse is the cart state document served to clients.
type cartResponse struct {
	Items    []model.CartItem `json:"items"`
	Subtotal string           `json:"subtotal"`
	Status   cart.Status      `json:"status"`
}

func (h *Handler) cartState() cartResponse {
	items := h.cart.Items()
	if items == nil {
		items = []model.CartItem{}
	}
	return cartResponse{
		Items:    items,
		Subtotal: model.FormatCents(h.cart.Subtotal()),
		Status:   h.cart.Status(),
	}
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.Fetch(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartState())
}

func (h *Handler) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	var req cart.AddRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if _, err := h.cart.Add(r.Context(), req); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, h.cartState())
}

func (h *Handler) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int    `json:"quantity"`
		Action   string `json:"action,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	action := cart.ActionType(req.Action)
	if _, err := h.cart.UpdateQuantity(r.Context(), r.PathValue("id"), req.Quantity, action); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartState())
}

func (h *Handler) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.Remove(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cartState())
}

// === Checkout ===

type previewRequest struct {
	PaymentMethod    string `json:"payment_method"`
	Coupon           string `json:"coupon,omitempty"`
	ShippingMethodID int64  `json:"shipping_method_id,omitempty"`
}

// previewResponse carries the breakdown plus whether it was computed
// locally because the backend preview was unavailable.
type previewResponse struct {
	Subtotal       string `json:"subtotal"`
	ShippingCost   string `json:"shipping_cost"`
	DiscountAmount string `json:"discount_amount"`
	TotalPrice     string `json:"total_price"`
	Approximate    bool   `json:"approximate"`
}

func toPreviewResponse(p *model.CheckoutPreview, approximate bool) previewResponse {
	return previewResponse{
		Subtotal:       model.FormatCents(p.Subtotal),
		ShippingCost:   model.FormatCents(p.ShippingCost),
		DiscountAmount: model.FormatCents(p.DiscountAmount),
		TotalPrice:     model.FormatCents(p.TotalPrice),
		Approximate:    approximate,
	}
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	preview, err := h.checkout.Preview(r.Context(), checkout.PreviewRequest{
		PaymentMethod:    req.PaymentMethod,
		Coupon:           req.Coupon,
		ShippingMethodID: req.ShippingMethodID,
	})
	if preview == nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toPreviewResponse(preview, err != nil))
}

type submitRequest struct {
	PaymentMethod   string                `json:"payment_method"`
	Coupon          string                `json:"coupon,omitempty"`
	Shipping        model.ShippingDetails `json:"shipping"`
	PaymentMethodID string                `json:"payment_method_id,omitempty"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.PaymentMethod == "" {
		h.writeError(w, model.NewValidationError("payment_method", "required"))
		return
	}

	order, err := h.checkout.Submit(r.Context(), checkout.SubmitRequest{
		PaymentMethod:   req.PaymentMethod,
		Coupon:          req.Coupon,
		Shipping:        req.Shipping,
		PaymentMethodID: req.PaymentMethodID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, order)
}

// === Catalog ===

func (h *Handler) handleProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.Products(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if products == nil {
		products = []model.Product{}
	}
	h.writeJSON(w, http.StatusOK, products)
}

func (h *Handler) handleProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.Product(r.Context(), r.PathValue("slug"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, product)
}

func (h *Handler) handleShippingMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.catalog.ShippingMethods(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if methods == nil {
		methods = []model.ShippingMethod{}
	}
	h.writeJSON(w, http.StatusOK, methods)
}

func (h *Handler) handleOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.catalog.Orders(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if orders == nil {
		orders = []model.OrderSummary{}
	}
	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) handleOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.catalog.Order(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError

	if errors.As(err, &apiErr) {
		// Found APIError in error chain - use it
	} else {
		// Wrap unexpected errors
		apiErr = &model.APIError{
			Code:       "INTERNAL_ERROR",
			Message:    "an internal error occurred",
			StatusCode: http.StatusInternalServerError,
		}
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}

	status := apiErr.StatusCode
	if status == 0 {
		// Network failures have no upstream status; the backend was
		// unreachable from the gateway's point of view.
		status = http.StatusBadGateway
	}

	h.writeJSON(w, status, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
