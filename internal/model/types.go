// Package model defines the wire types shared between the storefront
// backend API and the client core, plus the error taxonomy and money
// helpers used across packages.
package model

import "encoding/json"

// ProductRef is the read-only product snapshot the backend attaches to
// cart line items at fetch/add time. Price is a decimal string in major
// currency units, as serialized by the backend.
type ProductRef struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug,omitempty"`
	Image string `json:"image,omitempty"`
	Price string `json:"price"`
	Stock int    `json:"stock"`
}

// VariantRef is the read-only variant snapshot on a cart line item.
// Nil on items without a variant selection.
type VariantRef struct {
	ID    int64  `json:"id"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
	Price string `json:"price"`
	Stock int    `json:"stock"`
}

// CartItem is one line item in the cart. At most one item per distinct
// (product, variant) pair is meaningful; the cart store's merge rules
// enforce that locally.
type CartItem struct {
	ID       string      `json:"id"`
	Product  ProductRef  `json:"product"`
	Variant  *VariantRef `json:"variant"`
	Quantity int         `json:"quantity"`
}

// UnmarshalJSON accepts both string and numeric line item IDs. The
// backend serializes primary keys as numbers; the client treats IDs as
// opaque strings.
func (ci *CartItem) UnmarshalJSON(data []byte) error {
	type alias struct {
		ID       json.Number `json:"id"`
		Product  ProductRef  `json:"product"`
		Variant  *VariantRef `json:"variant"`
		Quantity int         `json:"quantity"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	ci.ID = a.ID.String()
	ci.Product = a.Product
	ci.Variant = a.Variant
	ci.Quantity = a.Quantity
	return nil
}

// UnitPriceCents returns the effective per-unit price of the line item
// in cents: the variant price when a variant is selected, otherwise the
// product price.
func (ci *CartItem) UnitPriceCents() int64 {
	if ci.Variant != nil {
		return ParseCents(ci.Variant.Price)
	}
	return ParseCents(ci.Product.Price)
}

// EffectiveStock returns the stock that bounds quantity updates for
// this line item: variant stock when a variant is selected, otherwise
// product stock.
func (ci *CartItem) EffectiveStock() int {
	if ci.Variant != nil {
		return ci.Variant.Stock
	}
	return ci.Product.Stock
}

// CheckoutPreview is the non-committal price breakdown shown before
// order submission. All amounts are in cents.
type CheckoutPreview struct {
	Subtotal       int64 `json:"subtotal"`
	ShippingCost   int64 `json:"shipping_cost"`
	DiscountAmount int64 `json:"discount_amount"`
	TotalPrice     int64 `json:"total_price"`
}

// UnmarshalJSON parses the backend's decimal amounts (serialized as
// numbers or strings in major units) into cents.
func (p *CheckoutPreview) UnmarshalJSON(data []byte) error {
	type alias struct {
		Subtotal       json.Number `json:"subtotal"`
		ShippingCost   json.Number `json:"shipping_cost"`
		DiscountAmount json.Number `json:"discount_amount"`
		TotalPrice     json.Number `json:"total_price"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	p.Subtotal = ParseCents(a.Subtotal.String())
	p.ShippingCost = ParseCents(a.ShippingCost.String())
	p.DiscountAmount = ParseCents(a.DiscountAmount.String())
	p.TotalPrice = ParseCents(a.TotalPrice.String())
	return nil
}

// ShippingMethod is one entry from the backend's shipping method list.
// Price is a decimal string in major units (same format as product
// prices).
type ShippingMethod struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price"`
}

// ShippingDetails is the shipping block of an order submission.
type ShippingDetails struct {
	AddressLine1     string `json:"address_line_1"`
	AddressLine2     string `json:"address_line_2,omitempty"`
	City             string `json:"city"`
	State            string `json:"state,omitempty"`
	PostalCode       string `json:"postal_code"`
	Country          string `json:"country"`
	Phone            string `json:"phone,omitempty"`
	ShippingMethodID int64  `json:"shipping_method_id"`
}

// Order is the backend's response to a successful order submission.
// ClientSecret is only present for payment methods that require a
// third-party confirmation step; deferred methods (pay on delivery)
// finalize without it.
type Order struct {
	OrderID       string `json:"order_id"`
	ClientSecret  string `json:"client_secret,omitempty"`
	PaymentMethod string `json:"-"`
}

// UnmarshalJSON accepts numeric order IDs.
func (o *Order) UnmarshalJSON(data []byte) error {
	type alias struct {
		OrderID      json.Number `json:"order_id"`
		ClientSecret string      `json:"client_secret"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	o.OrderID = a.OrderID.String()
	o.ClientSecret = a.ClientSecret
	return nil
}

// OrderSummary is one row of the signed-in user's order history.
// Display-only: the order lifecycle is owned server-side.
type OrderSummary struct {
	ID         json.Number `json:"id"`
	Status     string      `json:"status"`
	TotalPrice string      `json:"total_price"`
	CreatedAt  string      `json:"created_at"`
}

// OrderDetail is one order from the history with its line items.
type OrderDetail struct {
	OrderSummary
	Items []OrderLine `json:"items,omitempty"`
}

// OrderLine is a purchased line item as the backend reports it.
type OrderLine struct {
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       string `json:"price"`
}

// Product is a catalog listing entry.
type Product struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	Price       string `json:"price"`
	Stock       int    `json:"stock"`
	Category    string `json:"category,omitempty"`
}

// User is the cached identity of the signed-in customer. Persisted
// alongside the token pair for session continuity; cleared with it.
type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}
