package domain

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// SelectedFragrance binds one fragrance to one slot. The name is captured at
// selection time so a later rename does not alter the cart or order history.
// The zero value marks an unfilled slot.
type SelectedFragrance struct {
	FragranceID   string `json:"fragranceId,omitempty"`
	FragranceName string `json:"fragranceName,omitempty"`
	Size          string `json:"size,omitempty"`
	Label         string `json:"label,omitempty"`
}

// IsSet reports whether the slot holds a fragrance.
func (s SelectedFragrance) IsSet() bool {
	return s.FragranceID != ""
}

// CartItem is a product snapshot plus the shopper's configuration. CartID
// identifies one add-to-cart event, not the product.
type CartItem struct {
	Product
	CartID             string              `json:"cartId"`
	Quantity           int                 `json:"quantity"`
	SelectedFragrances []SelectedFragrance `json:"selectedFragrances"`
	CustomMessage      string              `json:"customMessage,omitempty"`
}

// LineTotal is price × quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// MergeKey identifies identical additions: the product id plus the sorted
// size:fragrance pairs of every filled slot.
func MergeKey(productID string, selections []SelectedFragrance) string {
	pairs := make([]string, 0, len(selections))
	for _, s := range selections {
		if s.IsSet() {
			pairs = append(pairs, s.Size+":"+s.FragranceID)
		}
	}
	slices.Sort(pairs)
	return productID + "|" + strings.Join(pairs, ",")
}

// MergeKey returns the item's merge key.
func (i CartItem) MergeKey() string {
	return MergeKey(i.ID, i.SelectedFragrances)
}

// Cart is an ordered list of items; order is display order.
type Cart []CartItem

// Total is Σ price × quantity.
func (c Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c {
		total = total.Add(item.LineTotal())
	}
	return total
}

// Count is Σ quantity.
func (c Cart) Count() int {
	n := 0
	for _, item := range c {
		n += item.Quantity
	}
	return n
}

// IndexOf returns the position of cartID, or -1.
func (c Cart) IndexOf(cartID string) int {
	for i := range c {
		if c[i].CartID == cartID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy safe to hand outside the store.
func (c Cart) Clone() Cart {
	if c == nil {
		return Cart{}
	}
	out := make(Cart, len(c))
	for i, item := range c {
		item.SelectedFragrances = slices.Clone(item.SelectedFragrances)
		out[i] = item
	}
	return out
}
