package cart

import (
	"time"

	"github.com/example/anon-cart/internal/domain/product"
)

const (
	MinQuantity = 1
	MaxQuantity = 99
)

type Cart struct {
	ID        string     `json:"id"`
	OwnerID   *string    `json:"ownerId"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// CartItem is one line in a cart. Price is the unit price captured when the
// line was added and does not follow later catalog price changes.
type CartItem struct {
	ID        string           `json:"id"`
	CartID    string           `json:"cartId"`
	ProductID string           `json:"productId"`
	Quantity  int              `json:"quantity"`
	Price     int64            `json:"price"`
	Product   *product.Product `json:"product,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Subtotal returns quantity times the snapshotted unit price.
func (i CartItem) Subtotal() int64 {
	return int64(i.Quantity) * i.Price
}

// Total sums the subtotals of all loaded items.
func (c Cart) Total() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.Subtotal()
	}
	return total
}

func (c Cart) IsAnonymous() bool {
	return c.OwnerID == nil
}
