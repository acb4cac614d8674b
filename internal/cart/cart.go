package cart

import (
	"strings"
)

// GuestKey is the identity key used when nobody is signed in.
const GuestKey = "guest"

// Item is one cart line.
type Item struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
	ImageRef       string `json:"image_ref,omitempty"`
	// KnownAvailable is the stock figure from the product listing, when the UI had one.
	KnownAvailable *int `json:"known_available,omitempty"`
}

// Key identifies the line. Products without an id fall back to their name.
func (i Item) Key() string {
	if id := strings.TrimSpace(i.ProductID); id != "" {
		return id
	}
	if name := strings.TrimSpace(i.Name); name != "" {
		return "name:" + name
	}
	return ""
}

// LineTotal is unit price times quantity.
func (i Item) LineTotal() int64 {
	return i.UnitPriceCents * int64(i.Quantity)
}

// Cart is an immutable view of one identity's lines.
type Cart struct {
	IdentityKey string `json:"identity_key"`
	Items       []Item `json:"items"`
}

// Subtotal sums every line total.
func (c Cart) Subtotal() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.LineTotal()
	}
	return total
}

// Total adds the shipping fee to the subtotal.
func (c Cart) Total(shippingFeeCents int64) int64 {
	return c.Subtotal() + shippingFeeCents
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Units counts every unit across lines.
func (c Cart) Units() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

// Find returns the line with key.
func (c Cart) Find(key string) (Item, bool) {
	for _, item := range c.Items {
		if item.Key() == key {
			return item, true
		}
	}
	return Item{}, false
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return []Item{}
	}
	out := make([]Item, len(items))
	for i, item := range items {
		out[i] = item
		if item.KnownAvailable != nil {
			v := *item.KnownAvailable
			out[i].KnownAvailable = &v
		}
	}
	return out
}

func normalizeIdentity(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return GuestKey
	}
	return key
}
