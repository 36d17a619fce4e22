// Package cart holds the client-side cart state and keeps it
// synchronized with the backend. All mutations round-trip through the
// backend; local state is only updated from server responses.
package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"shopgate/internal/model"
)

// Status is the cart's async-operation state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ActionType names the mutation a pending Action describes.
type ActionType string

const (
	ActionAdd      ActionType = "add"
	ActionIncrease ActionType = "increase"
	ActionDecrease ActionType = "decrease"
	ActionRemove   ActionType = "remove"
)

// Action records the in-flight mutation so consumers can disable only
// the affected row's controls rather than the whole cart.
type Action struct {
	Type       ActionType `json:"type"`
	CartItemID string     `json:"cart_item_id,omitempty"`
}

// Backend issues authenticated requests. Satisfied by api.Client.
type Backend interface {
	Do(ctx context.Context, method, url string, body, out interface{}) error
}

// AddRequest is the input to Add.
type AddRequest struct {
	ProductID int64 `json:"product_id"`
	VariantID int64 `json:"variant_id,omitempty"`
	Quantity  int   `json:"quantity"`
}

// Config configures a Store.
type Config struct {
	// BaseURL is the cart API root, e.g. "https://api.shop.example/api/orders".
	BaseURL string

	Backend Backend

	// SnapshotDir, when set, enables persisting the item list to disk
	// so the cart survives restarts until the next fetch reconciles it.
	SnapshotDir string

	Logger *slog.Logger
}

// Store is the cart state container. Safe for concurrent use.
//
// Mutations for the same line item are serialized through a per-item
// lock, so rapid increment/decrement sequences apply in issue order
// rather than whichever response happens to arrive last. Mutations on
// different items still proceed in parallel.
type Store struct {
	backend  Backend
	baseURL  string
	snapshot string
	logger   *slog.Logger

	fetchGroup singleflight.Group

	itemMu sync.Mutex
	locks  map[string]*sync.Mutex

	mu         sync.RWMutex
	items      []model.CartItem
	status     Status
	lastErr    error
	lastAction *Action
}

// NewStore creates a cart store. When a snapshot file exists from a
// previous run its items seed the initial state; the first Fetch
// replaces them with the backend's list.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("cart: backend is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("cart: base URL is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		backend: cfg.Backend,
		baseURL: cfg.BaseURL,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
		status:  StatusIdle,
	}
	if cfg.SnapshotDir != "" {
		s.snapshot = filepath.Join(cfg.SnapshotDir, "cart.json")
		if items, err := readSnapshot(s.snapshot); err != nil {
			logger.Warn("loading cart snapshot", slog.String("error", err.Error()))
		} else if items != nil {
			s.items = items
		}
	}
	return s, nil
}

// === State accessors ===

// Items returns a copy of the current line items.
func (s *Store) Items() []model.CartItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.CartItem, len(s.items))
	copy(out, s.items)
	return out
}

// Item returns the line item with the given ID.
func (s *Store) Item(id string) (model.CartItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return model.CartItem{}, false
}

func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Err returns the error from the most recent failed operation, nil
// after a success.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// LastAction returns the in-flight mutation, nil when none is pending.
func (s *Store) LastAction() *Action {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastAction == nil {
		return nil
	}
	a := *s.lastAction
	return &a
}

// Subtotal returns the cart total before shipping and discounts, in
// cents.
func (s *Store) Subtotal() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Subtotal(s.items)
}

// Count returns the total unit count across line items.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, item := range s.items {
		n += item.Quantity
	}
	return n
}

// === Operations ===

// Fetch retrieves the authoritative item list from the backend and
// merges it into local state. Concurrent calls share one request.
func (s *Store) Fetch(ctx context.Context) error {
	s.begin(nil)

	_, err, _ := s.fetchGroup.Do("fetch", func() (interface{}, error) {
		var server []model.CartItem
		if err := s.backend.Do(ctx, http.MethodGet, s.baseURL+"/cart/", nil, &server); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.items = MergeFetch(s.items, server)
		s.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		s.fail(err)
		return err
	}
	s.succeed()
	s.writeSnapshot()
	return nil
}

// Add posts a new-or-incremented line item and merges the server's
// response by (product, variant) pair.
func (s *Store) Add(ctx context.Context, req AddRequest) (model.CartItem, error) {
	if req.Quantity < 1 {
		return model.CartItem{}, model.NewValidationError("quantity", "must be a positive integer")
	}

	key := fmt.Sprintf("p%d/v%d", req.ProductID, req.VariantID)
	unlock := s.lockItem(key)
	defer unlock()

	s.begin(&Action{Type: ActionAdd})

	var added model.CartItem
	if err := s.backend.Do(ctx, http.MethodPost, s.baseURL+"/cart/", req, &added); err != nil {
		s.fail(err)
		return model.CartItem{}, err
	}

	s.mu.Lock()
	s.items = MergeAdd(s.items, added)
	s.mu.Unlock()
	s.succeed()
	s.writeSnapshot()
	return added, nil
}

// UpdateQuantity changes a line item's quantity. quantity must be a
// positive integer; decreasing to zero is Remove's job. The action
// type distinguishes increment from decrement for row-level pending
// indicators.
func (s *Store) UpdateQuantity(ctx context.Context, cartItemID string, quantity int, action ActionType) (model.CartItem, error) {
	if quantity < 1 {
		return model.CartItem{}, model.NewValidationError("quantity", "must be a positive integer")
	}
	if item, ok := s.Item(cartItemID); ok {
		if stock := item.EffectiveStock(); stock > 0 && quantity > stock {
			return model.CartItem{}, model.NewValidationError("quantity",
				fmt.Sprintf("only %d in stock", stock))
		}
	}
	if action != ActionIncrease && action != ActionDecrease {
		action = ActionIncrease
	}

	unlock := s.lockItem(cartItemID)
	defer unlock()

	s.begin(&Action{Type: action, CartItemID: cartItemID})

	var updated model.CartItem
	url := s.baseURL + "/cart/" + cartItemID + "/"
	if err := s.backend.Do(ctx, http.MethodPatch, url, map[string]int{"quantity": quantity}, &updated); err != nil {
		s.fail(err)
		return model.CartItem{}, err
	}

	s.mu.Lock()
	s.items = ApplyUpdate(s.items, updated)
	s.mu.Unlock()
	s.succeed()
	s.writeSnapshot()
	return updated, nil
}

// Remove deletes a line item. Local state changes only after the
// backend confirms.
func (s *Store) Remove(ctx context.Context, cartItemID string) error {
	unlock := s.lockItem(cartItemID)
	defer unlock()

	s.begin(&Action{Type: ActionRemove, CartItemID: cartItemID})

	url := s.baseURL + "/cart/" + cartItemID + "/"
	if err := s.backend.Do(ctx, http.MethodDelete, url, nil, nil); err != nil {
		s.fail(err)
		return err
	}

	s.mu.Lock()
	s.items = ApplyRemove(s.items, cartItemID)
	s.mu.Unlock()
	s.succeed()
	s.writeSnapshot()
	return nil
}

// Reset drops all local cart state. Registered as a session clear
// hook so logout and expiration empty the cart.
func (s *Store) Reset() {
	s.mu.Lock()
	s.items = nil
	s.status = StatusIdle
	s.lastErr = nil
	s.lastAction = nil
	s.mu.Unlock()

	if s.snapshot != "" {
		if err := os.Remove(s.snapshot); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("removing cart snapshot", slog.String("error", err.Error()))
		}
	}
}

// === Internals ===

// lockItem serializes mutations per line item so responses apply in
// issue order. Different items mutate in parallel.
func (s *Store) lockItem(id string) func() {
	s.itemMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.itemMu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Store) begin(action *Action) {
	s.mu.Lock()
	s.status = StatusLoading
	s.lastAction = action
	s.mu.Unlock()
}

func (s *Store) succeed() {
	s.mu.Lock()
	s.status = StatusSucceeded
	s.lastErr = nil
	s.lastAction = nil
	s.mu.Unlock()
}

func (s *Store) fail(err error) {
	s.mu.Lock()
	s.status = StatusFailed
	s.lastErr = err
	s.lastAction = nil
	s.mu.Unlock()
}

func (s *Store) writeSnapshot() {
	if s.snapshot == "" {
		return
	}
	data, err := json.Marshal(s.Items())
	if err != nil {
		return
	}
	if err := os.WriteFile(s.snapshot, data, 0o600); err != nil {
		s.logger.Warn("writing cart snapshot", slog.String("error", err.Error()))
	}
}

func readSnapshot(path string) ([]model.CartItem, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var items []model.CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	return items, nil
}
