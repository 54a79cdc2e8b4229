package collection

import "strings"

// Item is a cart or wishlist entry as returned by the shop API.
type Item struct {
	ID         string `json:"id"`
	ProductRef string `json:"productRef"`
	Variant    string `json:"variant,omitempty"`
	Quantity   int    `json:"quantity,omitempty"`
	Price      int64  `json:"price,omitempty"` // minor currency units
}

// CartKey identifies a cart line: one entry per product variant.
func CartKey(it Item) string {
	if it.Variant == "" {
		return it.ProductRef
	}
	return it.ProductRef + "#" + it.Variant
}

// WishlistKey identifies a wishlist entry: membership is per product.
func WishlistKey(it Item) string {
	return it.ProductRef
}

// Totals sums quantities and line prices of items.
func Totals(items []Item) (count int, subtotal int64) {
	for _, it := range items {
		count += it.Quantity
		subtotal += int64(it.Quantity) * it.Price
	}
	return count, subtotal
}

// CartPolicy merges repeated adds of the same variant by summing quantity.
func CartPolicy() Policy[Item] {
	return Policy[Item]{
		Name: "cart",
		Key:  CartKey,
		ID:   func(it Item) string { return it.ID },
		Ref:  func(it Item) string { return it.ProductRef },
		Prepare: func(it Item) (Item, error) {
			if strings.TrimSpace(it.ProductRef) == "" {
				return it, validationError("product reference is required")
			}
			if it.Quantity < 0 {
				return it, validationError("quantity must not be negative")
			}
			if it.Quantity == 0 {
				it.Quantity = 1
			}
			return it, nil
		},
		Merge: func(existing, added Item) (Item, bool) {
			existing.Quantity += added.Quantity
			if added.Price != 0 {
				existing.Price = added.Price
			}
			return existing, true
		},
		SetQuantity: func(it Item, qty int) Item {
			it.Quantity = qty
			return it
		},
	}
}

// WishlistPolicy treats membership as boolean: adding an existing product is a no-op.
func WishlistPolicy() Policy[Item] {
	return Policy[Item]{
		Name: "wishlist",
		Key:  WishlistKey,
		ID:   func(it Item) string { return it.ID },
		Ref:  func(it Item) string { return it.ProductRef },
		Prepare: func(it Item) (Item, error) {
			if strings.TrimSpace(it.ProductRef) == "" {
				return it, validationError("product reference is required")
			}
			it.Quantity = 0
			it.Variant = ""
			return it, nil
		},
		Merge: func(existing, _ Item) (Item, bool) {
			return existing, false
		},
	}
}
