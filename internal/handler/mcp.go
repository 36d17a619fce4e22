// MCP transport handler using the official MCP Go SDK.
// Exposes the storefront operations as MCP tools so agents can browse,
// manage the cart, and place orders over JSON-RPC.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"shopgate/internal/cart"
	"shopgate/internal/checkout"
	"shopgate/internal/model"
)

// === MCP Tool Input/Output Types ===

// GetCartInput is the input schema for the get_cart tool.
type GetCartInput struct{}

// CartOutput is the cart state document returned by cart tools.
type CartOutput struct {
	Items    []model.CartItem `json:"items" jsonschema:"cart line items"`
	Subtotal string           `json:"subtotal" jsonschema:"cart subtotal in major units"`
}

// AddToCartInput is the input schema for the add_to_cart tool.
type AddToCartInput struct {
	ProductID int64 `json:"product_id" jsonschema:"product ID,required"`
	VariantID int64 `json:"variant_id,omitempty" jsonschema:"variant ID when the product has variants"`
	Quantity  int   `json:"quantity" jsonschema:"units to add,required"`
}

// UpdateCartItemInput is the input schema for the update_cart_item tool.
type UpdateCartItemInput struct {
	CartItemID string `json:"cart_item_id" jsonschema:"line item ID,required"`
	Quantity   int    `json:"quantity" jsonschema:"new quantity (positive),required"`
}

// RemoveCartItemInput is the input schema for the remove_cart_item tool.
type RemoveCartItemInput struct {
	CartItemID string `json:"cart_item_id" jsonschema:"line item ID,required"`
}

// PreviewOrderInput is the input schema for the preview_order tool.
type PreviewOrderInput struct {
	PaymentMethod    string `json:"payment_method" jsonschema:"card or cod,required"`
	Coupon           string `json:"coupon,omitempty" jsonschema:"coupon code"`
	ShippingMethodID int64  `json:"shipping_method_id,omitempty" jsonschema:"selected shipping method"`
}

// PreviewOrderOutput is the price breakdown returned by preview_order.
type PreviewOrderOutput struct {
	Subtotal       string `json:"subtotal"`
	ShippingCost   string `json:"shipping_cost"`
	DiscountAmount string `json:"discount_amount"`
	TotalPrice     string `json:"total_price"`
	Approximate    bool   `json:"approximate" jsonschema:"true when computed locally because the backend preview was unavailable"`
}

// PlaceOrderInput is the input schema for the place_order tool.
type PlaceOrderInput struct {
	PaymentMethod   string                `json:"payment_method" jsonschema:"card or cod,required"`
	Coupon          string                `json:"coupon,omitempty" jsonschema:"coupon code"`
	Shipping        model.ShippingDetails `json:"shipping" jsonschema:"shipping address and method,required"`
	PaymentMethodID string                `json:"payment_method_id,omitempty" jsonschema:"tokenized card reference for card payments"`
}

// PlaceOrderOutput is the confirmation returned by place_order.
type PlaceOrderOutput struct {
	OrderID string `json:"order_id"`
}

// ListProductsInput is the input schema for the list_products tool.
type ListProductsInput struct {
	Category string `json:"category,omitempty" jsonschema:"filter by category"`
}

// ListProductsOutput wraps the product list (MCP outputs must be objects).
type ListProductsOutput struct {
	Products []model.Product `json:"products"`
}

// ListShippingMethodsInput is the input schema for list_shipping_methods.
type ListShippingMethodsInput struct{}

// ListShippingMethodsOutput wraps the method list.
type ListShippingMethodsOutput struct {
	Methods []model.ShippingMethod `json:"methods"`
}

// NewMCPServer creates an MCP server with the storefront tools
// registered. The server exposes the same operations as the REST API
// but via MCP protocol.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "shopgate",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Storefront gateway. Use these tools to browse products, " +
				"manage the cart, preview prices, and place orders.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart",
		Description: "Get the current cart: line items and subtotal.",
	}, h.mcpGetCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_cart",
		Description: "Add a product (optionally a specific variant) to the cart.",
	}, h.mcpAddToCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_cart_item",
		Description: "Set a cart line item's quantity. Use remove_cart_item to drop it.",
	}, h.mcpUpdateCartItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_cart_item",
		Description: "Remove a line item from the cart.",
	}, h.mcpRemoveCartItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "preview_order",
		Description: "Preview the order price breakdown for a coupon and shipping selection.",
	}, h.mcpPreviewOrder)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "place_order",
		Description: "Submit the order. Card payments are confirmed before the order finalizes; the cart empties on success.",
	}, h.mcpPlaceOrder)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_products",
		Description: "List catalog products, optionally filtered by category.",
	}, h.mcpListProducts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_shipping_methods",
		Description: "List the store's shipping methods and their prices.",
	}, h.mcpListShippingMethods)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) cartOutput() CartOutput {
	items := h.cart.Items()
	if items == nil {
		items = []model.CartItem{}
	}
	return CartOutput{
		Items:    items,
		Subtotal: model.FormatCents(h.cart.Subtotal()),
	}
}

func (h *Handler) mcpGetCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetCartInput,
) (*mcp.CallToolResult, CartOutput, error) {
	if err := h.cart.Fetch(ctx); err != nil {
		return nil, CartOutput{}, h.mcpError(err)
	}
	return nil, h.cartOutput(), nil
}

func (h *Handler) mcpAddToCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddToCartInput,
) (*mcp.CallToolResult, CartOutput, error) {
	_, err := h.cart.Add(ctx, cart.AddRequest{
		ProductID: input.ProductID,
		VariantID: input.VariantID,
		Quantity:  input.Quantity,
	})
	if err != nil {
		return nil, CartOutput{}, h.mcpError(err)
	}
	return nil, h.cartOutput(), nil
}

func (h *Handler) mcpUpdateCartItem(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input UpdateCartItemInput,
) (*mcp.CallToolResult, CartOutput, error) {
	_, err := h.cart.UpdateQuantity(ctx, input.CartItemID, input.Quantity, cart.ActionIncrease)
	if err != nil {
		return nil, CartOutput{}, h.mcpError(err)
	}
	return nil, h.cartOutput(), nil
}

func (h *Handler) mcpRemoveCartItem(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input RemoveCartItemInput,
) (*mcp.CallToolResult, CartOutput, error) {
	if err := h.cart.Remove(ctx, input.CartItemID); err != nil {
		return nil, CartOutput{}, h.mcpError(err)
	}
	return nil, h.cartOutput(), nil
}

func (h *Handler) mcpPreviewOrder(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input PreviewOrderInput,
) (*mcp.CallToolResult, PreviewOrderOutput, error) {
	preview, err := h.checkout.Preview(ctx, checkout.PreviewRequest{
		PaymentMethod:    input.PaymentMethod,
		Coupon:           input.Coupon,
		ShippingMethodID: input.ShippingMethodID,
	})
	if preview == nil {
		return nil, PreviewOrderOutput{}, h.mcpError(err)
	}
	return nil, PreviewOrderOutput{
		Subtotal:       model.FormatCents(preview.Subtotal),
		ShippingCost:   model.FormatCents(preview.ShippingCost),
		DiscountAmount: model.FormatCents(preview.DiscountAmount),
		TotalPrice:     model.FormatCents(preview.TotalPrice),
		Approximate:    err != nil,
	}, nil
}

func (h *Handler) mcpPlaceOrder(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input PlaceOrderInput,
) (*mcp.CallToolResult, PlaceOrderOutput, error) {
	order, err := h.checkout.Submit(ctx, checkout.SubmitRequest{
		PaymentMethod:   input.PaymentMethod,
		Coupon:          input.Coupon,
		Shipping:        input.Shipping,
		PaymentMethodID: input.PaymentMethodID,
	})
	if err != nil {
		return nil, PlaceOrderOutput{}, h.mcpError(err)
	}
	return nil, PlaceOrderOutput{OrderID: order.OrderID}, nil
}

func (h *Handler) mcpListProducts(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListProductsInput,
) (*mcp.CallToolResult, ListProductsOutput, error) {
	products, err := h.catalog.Products(ctx, input.Category)
	if err != nil {
		return nil, ListProductsOutput{}, h.mcpError(err)
	}
	if products == nil {
		products = []model.Product{}
	}
	return nil, ListProductsOutput{Products: products}, nil
}

func (h *Handler) mcpListShippingMethods(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListShippingMethodsInput,
) (*mcp.CallToolResult, ListShippingMethodsOutput, error) {
	methods, err := h.catalog.ShippingMethods(ctx)
	if err != nil {
		return nil, ListShippingMethodsOutput{}, h.mcpError(err)
	}
	if methods == nil {
		methods = []model.ShippingMethod{}
	}
	return nil, ListShippingMethodsOutput{Methods: methods}, nil
}

// mcpError converts internal errors to MCP tool errors with a stable
// code/message shape.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	return err
}
