package query

import "github.com/example/anon-cart/internal/domain/cart"

// CartReadModel is a cart as served to clients, with derived totals.
type CartReadModel struct {
	cart.Cart
	ItemCount  int   `json:"itemCount"`
	TotalPrice int64 `json:"total"`
}

func NewCartReadModel(c *cart.Cart) *CartReadModel {
	if c == nil {
		return nil
	}
	rm := &CartReadModel{Cart: *c, TotalPrice: c.Total()}
	for _, item := range c.Items {
		rm.ItemCount += item.Quantity
	}
	return rm
}
