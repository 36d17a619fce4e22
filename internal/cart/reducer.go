package cart

import "shopgate/internal/model"

// Pure merge functions over cart line item lists. Kept free of I/O so
// the merge semantics can be tested in isolation from the store.

// lineKey identifies a (product, variant) pair. At most one line item
// per key is meaningful in a cart.
func lineKey(item model.CartItem) [2]int64 {
	var variantID int64
	if item.Variant != nil {
		variantID = item.Variant.ID
	}
	return [2]int64{item.Product.ID, variantID}
}

// MergeFetch reconciles local state with the server's authoritative
// item list. Items present on both sides are replaced in place
// (preserving local ordering), new server items are appended, and
// local items the server no longer knows about are dropped.
func MergeFetch(local, server []model.CartItem) []model.CartItem {
	byID := make(map[string]model.CartItem, len(server))
	for _, item := range server {
		byID[item.ID] = item
	}

	merged := make([]model.CartItem, 0, len(server))
	seen := make(map[string]bool, len(server))
	for _, item := range local {
		srv, ok := byID[item.ID]
		if !ok {
			// Removed out of band (another device, server-side
			// expiry). The server list is authoritative.
			continue
		}
		merged = append(merged, srv)
		seen[item.ID] = true
	}
	for _, item := range server {
		if !seen[item.ID] {
			merged = append(merged, item)
		}
	}
	return merged
}

// MergeAdd folds the server's response to an add into local state.
// Matching is by (product, variant) pair, not line item ID: the
// backend increments an existing row rather than creating a duplicate,
// so a match replaces the local item with the server's copy (whose
// quantity is authoritative, avoiding a double count). No match
// appends.
func MergeAdd(items []model.CartItem, added model.CartItem) []model.CartItem {
	key := lineKey(added)
	for i, item := range items {
		if lineKey(item) == key {
			out := make([]model.CartItem, len(items))
			copy(out, items)
			out[i] = added
			return out
		}
	}
	out := make([]model.CartItem, 0, len(items)+1)
	out = append(out, items...)
	return append(out, added)
}

// ApplyUpdate replaces the item with updated's ID. Unknown IDs leave
// the list unchanged.
func ApplyUpdate(items []model.CartItem, updated model.CartItem) []model.CartItem {
	out := make([]model.CartItem, len(items))
	copy(out, items)
	for i, item := range out {
		if item.ID == updated.ID {
			out[i] = updated
			break
		}
	}
	return out
}

// ApplyRemove drops the item with the given ID.
func ApplyRemove(items []model.CartItem, id string) []model.CartItem {
	out := make([]model.CartItem, 0, len(items))
	for _, item := range items {
		if item.ID != id {
			out = append(out, item)
		}
	}
	return out
}

// Subtotal sums quantity × unit price across items, in cents.
func Subtotal(items []model.CartItem) int64 {
	var total int64
	for _, item := range items {
		total += int64(item.Quantity) * item.UnitPriceCents()
	}
	return total
}
