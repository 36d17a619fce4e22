// shopctl is a CLI for driving a shopgate gateway.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	shopctl login -gateway URL -email ADDR -password PW
//	shopctl cart -gateway URL
//	shopctl add -gateway URL -product ID [-variant ID] [-qty N]
//	shopctl update -gateway URL -item ID -qty N
//	shopctl remove -gateway URL -item ID
//	shopctl preview -gateway URL -payment METHOD [-coupon CODE] [-method ID]
//	shopctl checkout -gateway URL -payment METHOD [-coupon CODE] ...
//
// Examples:
//
//	shopctl login -gateway http://localhost:8080 -email c@example.com -password pw
//	shopctl add -gateway http://localhost:8080 -product 60 -qty 2
//	shopctl preview -gateway http://localhost:8080 -payment cod -method 1
//	shopctl checkout -gateway http://localhost:8080 -payment cod -method 1 -city Oslo -postal 0150 -country NO
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	gatewayURL string
	quiet      bool
	noColor    bool
	verbose    bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorBlue, colorCyan, colorGray, colorBold = "", "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "login":
		runLogin(args)
	case "logout":
		runLogout(args)
	case "cart":
		runCart(args)
	case "add":
		runAdd(args)
	case "update":
		runUpdate(args)
	case "remove":
		runRemove(args)
	case "products":
		runProducts(args)
	case "methods":
		runMethods(args)
	case "orders":
		runOrders(args)
	case "preview":
		runPreview(args)
	case "checkout":
		runCheckout(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `shopctl - storefront gateway CLI

Usage:
  shopctl <command> [options]

Commands:
  login     Sign in and persist the session
  logout    Revoke the session
  cart      Show the current cart
  add       Add a product to the cart
  update    Change a cart line item's quantity
  remove    Remove a cart line item
  products  List catalog products
  methods   List shipping methods
  orders    List order history
  preview   Preview the order price breakdown
  checkout  Place the order

Examples:
  # Sign in once; later commands reuse the session
  shopctl login -gateway http://localhost:8080 -email c@example.com -password pw

  # Build a cart
  shopctl add -gateway http://localhost:8080 -product 60 -qty 2
  shopctl cart -gateway http://localhost:8080

  # Price and place the order
  shopctl preview -gateway http://localhost:8080 -payment cod -method 1
  shopctl checkout -gateway http://localhost:8080 -payment cod -method 1 \
      -address "Main St 1" -city Oslo -postal 0150 -country NO

Run 'shopctl <command> -h' for command-specific options.
`)
}

// =============================================================================
// COMMANDS
// =============================================================================

func runLogin(args []string) {
	fs := newFlagSet("login")
	email := fs.String("email", "", "Account email (required)")
	password := fs.String("password", "", "Account password (required)")
	fs.Parse(args)
	requireGateway()
	if *email == "" || *password == "" {
		fatal("login requires -email and -password")
	}

	resp, err := doRequest(http.MethodPost, "/login", map[string]string{
		"email":    *email,
		"password": *password,
	})
	if err != nil {
		fatal("login failed: %v", err)
	}
	printSuccess("signed in")
	if user, ok := resp["user"].(map[string]interface{}); ok {
		printInfo("user: %v", user["email"])
	}
}

func runLogout(args []string) {
	fs := newFlagSet("logout")
	fs.Parse(args)
	requireGateway()

	if _, err := doRequest(http.MethodPost, "/logout", nil); err != nil {
		fatal("logout failed: %v", err)
	}
	printSuccess("signed out")
}

func runCart(args []string) {
	fs := newFlagSet("cart")
	fs.Parse(args)
	requireGateway()

	resp, err := doRequest(http.MethodGet, "/cart", nil)
	if err != nil {
		fatal("fetching cart: %v", err)
	}
	printCart(resp)
}

func runAdd(args []string) {
	fs := newFlagSet("add")
	product := fs.Int64("product", 0, "Product ID (required)")
	variant := fs.Int64("variant", 0, "Variant ID")
	qty := fs.Int("qty", 1, "Quantity")
	fs.Parse(args)
	requireGateway()
	if *product == 0 {
		fatal("add requires -product")
	}

	body := map[string]interface{}{
		"product_id": *product,
		"quantity":   *qty,
	}
	if *variant != 0 {
		body["variant_id"] = *variant
	}

	resp, err := doRequest(http.MethodPost, "/cart/items", body)
	if err != nil {
		fatal("adding to cart: %v", err)
	}
	printSuccess("added product %d", *product)
	printCart(resp)
}

func runUpdate(args []string) {
	fs := newFlagSet("update")
	item := fs.String("item", "", "Cart item ID (required)")
	qty := fs.Int("qty", 0, "New quantity (required, positive)")
	fs.Parse(args)
	requireGateway()
	if *item == "" || *qty < 1 {
		fatal("update requires -item and a positive -qty")
	}

	resp, err := doRequest(http.MethodPatch, "/cart/items/"+*item, map[string]int{"quantity": *qty})
	if err != nil {
		fatal("updating cart item: %v", err)
	}
	printSuccess("item %s set to %d", *item, *qty)
	printCart(resp)
}

func runRemove(args []string) {
	fs := newFlagSet("remove")
	item := fs.String("item", "", "Cart item ID (required)")
	fs.Parse(args)
	requireGateway()
	if *item == "" {
		fatal("remove requires -item")
	}

	resp, err := doRequest(http.MethodDelete, "/cart/items/"+*item, nil)
	if err != nil {
		fatal("removing cart item: %v", err)
	}
	printSuccess("removed item %s", *item)
	printCart(resp)
}

func runProducts(args []string) {
	fs := newFlagSet("products")
	category := fs.String("category", "", "Filter by category")
	fs.Parse(args)
	requireGateway()

	path := "/products"
	if *category != "" {
		path += "?category=" + *category
	}
	list, err := doRequestList(http.MethodGet, path)
	if err != nil {
		fatal("listing products: %v", err)
	}
	for _, p := range list {
		fmt.Printf("  %s%v%s  %v  %s%v%s\n",
			colorCyan, p["id"], colorReset, p["name"], colorGreen, p["price"], colorReset)
	}
}

func runMethods(args []string) {
	fs := newFlagSet("methods")
	fs.Parse(args)
	requireGateway()

	list, err := doRequestList(http.MethodGet, "/shipping-methods")
	if err != nil {
		fatal("listing shipping methods: %v", err)
	}
	for _, m := range list {
		fmt.Printf("  %s%v%s  %v  %s%v%s\n",
			colorCyan, m["id"], colorReset, m["name"], colorGreen, m["price"], colorReset)
	}
}

func runOrders(args []string) {
	fs := newFlagSet("orders")
	id := fs.String("id", "", "Show one order's detail instead of the list")
	fs.Parse(args)
	requireGateway()

	if *id != "" {
		resp, err := doRequest(http.MethodGet, "/orders/"+*id, nil)
		if err != nil {
			fatal("fetching order: %v", err)
		}
		fmt.Printf("  %s#%v%s  %v  %s%v%s\n", colorCyan, resp["id"], colorReset,
			resp["status"], colorGreen, resp["total_price"], colorReset)
		items, _ := resp["items"].([]interface{})
		for _, raw := range items {
			item, _ := raw.(map[string]interface{})
			if item == nil {
				continue
			}
			fmt.Printf("    %v × %v  %v\n", item["quantity"], item["product_name"], item["price"])
		}
		return
	}

	list, err := doRequestList(http.MethodGet, "/orders")
	if err != nil {
		fatal("listing orders: %v", err)
	}
	for _, o := range list {
		fmt.Printf("  %s#%v%s  %v  %s%v%s  %s%v%s\n",
			colorCyan, o["id"], colorReset, o["status"],
			colorGreen, o["total_price"], colorReset,
			colorGray, o["created_at"], colorReset)
	}
}

func runPreview(args []string) {
	fs := newFlagSet("preview")
	paymentMethod := fs.String("payment", "cod", "Payment method (card or cod)")
	coupon := fs.String("coupon", "", "Coupon code")
	methodID := fs.Int64("method", 0, "Shipping method ID")
	fs.Parse(args)
	requireGateway()

	body := map[string]interface{}{"payment_method": *paymentMethod}
	if *coupon != "" {
		body["coupon"] = *coupon
	}
	if *methodID != 0 {
		body["shipping_method_id"] = *methodID
	}

	resp, err := doRequest(http.MethodPost, "/checkout/preview", body)
	if err != nil {
		fatal("preview failed: %v", err)
	}

	if approx, _ := resp["approximate"].(bool); approx {
		printWarning("backend preview unavailable, showing local approximation")
	}
	fmt.Printf("  Subtotal:  %v\n", resp["subtotal"])
	fmt.Printf("  Shipping:  %v\n", resp["shipping_cost"])
	fmt.Printf("  Discount:  -%v\n", resp["discount_amount"])
	fmt.Printf("  Total:     %s%v%s\n", colorGreen, resp["total_price"], colorReset)
}

func runCheckout(args []string) {
	fs := newFlagSet("checkout")
	paymentMethod := fs.String("payment", "", "Payment method: card or cod (required)")
	paymentMethodID := fs.String("pm", "", "Tokenized card reference (card payments)")
	coupon := fs.String("coupon", "", "Coupon code")
	methodID := fs.Int64("method", 0, "Shipping method ID (required)")
	address := fs.String("address", "", "Address line 1")
	city := fs.String("city", "", "City")
	postal := fs.String("postal", "", "Postal code")
	country := fs.String("country", "", "Country code")
	phone := fs.String("phone", "", "Phone number")
	fs.Parse(args)
	requireGateway()
	if *paymentMethod == "" {
		fatal("checkout requires -payment")
	}
	if *methodID == 0 {
		fatal("checkout requires -method")
	}

	body := map[string]interface{}{
		"payment_method": *paymentMethod,
		"shipping": map[string]interface{}{
			"address_line_1":     *address,
			"city":               *city,
			"postal_code":        *postal,
			"country":            *country,
			"phone":              *phone,
			"shipping_method_id": *methodID,
		},
	}
	if *coupon != "" {
		body["coupon"] = *coupon
	}
	if *paymentMethodID != "" {
		body["payment_method_id"] = *paymentMethodID
	}

	resp, err := doRequest(http.MethodPost, "/checkout", body)
	if err != nil {
		fatal("checkout failed: %v", err)
	}

	printSuccess("order placed")
	if quiet {
		// Bare ID on stdout for scripts
		fmt.Println(resp["order_id"])
		return
	}
	fmt.Printf("  Order ID: %s%v%s\n", colorGreen, resp["order_id"], colorReset)
}

// =============================================================================
// HTTP + OUTPUT HELPERS
// =============================================================================

func newFlagSet(name string) *cmdFlags {
	fs := &cmdFlags{flag.NewFlagSet(name, flag.ExitOnError)}
	fs.StringVar(&gatewayURL, "gateway", envOr("SHOPGATE_URL", "http://localhost:8080"), "Gateway base URL")
	fs.BoolVar(&quiet, "q", false, "Quiet mode: minimal output")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose: print requests and responses")
	return fs
}

type cmdFlags struct{ *flag.FlagSet }

func (fs *cmdFlags) Parse(args []string) {
	fs.FlagSet.Parse(args)
	if noColor {
		disableColors()
	}
}

func requireGateway() {
	if gatewayURL == "" {
		fatal("gateway URL required (-gateway or SHOPGATE_URL)")
	}
	gatewayURL = strings.TrimSuffix(gatewayURL, "/")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// doRequest issues a request against the gateway and decodes the JSON
// object response. Error responses use the gateway's {error: {code,
// message}} shape.
func doRequest(method, path string, body interface{}) (map[string]interface{}, error) {
	raw, err := doRaw(method, path, body)
	if err != nil {
		return nil, err
	}
	var resp map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}
	}
	return resp, nil
}

// doRequestList is doRequest for endpoints returning JSON arrays.
func doRequestList(method, path string) ([]map[string]interface{}, error) {
	raw, err := doRaw(method, path, nil)
	if err != nil {
		return nil, err
	}
	var list []map[string]interface{}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return list, nil
}

func doRaw(method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	url := gatewayURL + path
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if verbose {
		printRequest(method, path, encoded)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if verbose {
		printResponse(resp.StatusCode, raw, time.Since(start))
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("%s (%s)", errResp.Error.Message, errResp.Error.Code)
		}
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return raw, nil
}

func printCart(resp map[string]interface{}) {
	if quiet {
		return
	}
	items, _ := resp["items"].([]interface{})
	if len(items) == 0 {
		printInfo("cart is empty")
		return
	}
	for _, raw := range items {
		item, _ := raw.(map[string]interface{})
		if item == nil {
			continue
		}
		product, _ := item["product"].(map[string]interface{})
		name := "?"
		if product != nil {
			name, _ = product["name"].(string)
		}
		fmt.Printf("  %s%v%s  %v × %s\n", colorCyan, item["id"], colorReset, item["quantity"], name)
	}
	fmt.Printf("  Subtotal: %s%v%s\n", colorGreen, resp["subtotal"], colorReset)
}

func printRequest(method, path string, body []byte) {
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if len(body) > 0 {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	printJSON(body, "  ")
}

func printJSON(data []byte, prefix string) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, data)
		return
	}
	lines := strings.Split(buf.String(), "\n")
	if !verbose && len(lines) > 25 {
		lines = append(lines[:25], fmt.Sprintf("%s  %s(%d more lines, use -v for full output)%s",
			prefix, colorGray, len(lines)-25, colorReset))
	}
	fmt.Printf("%s%s\n", prefix, strings.Join(lines, "\n"))
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printWarning(format string, args ...interface{}) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Printf("%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
