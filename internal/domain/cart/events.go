package cart

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventCartCreated         = "CartCreated"
	EventItemAdded           = "CartItemAdded"
	EventItemQuantityUpdated = "CartItemQuantityUpdated"
	EventItemRemoved         = "CartItemRemoved"
)

// Event is the envelope published after every committed cart write.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	CartID     string          `json:"cartId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

type CartCreated struct {
	CartID  string  `json:"cartId"`
	OwnerID *string `json:"ownerId,omitempty"`
}

type ItemAdded struct {
	ItemID    string `json:"itemId"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

type ItemQuantityUpdated struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

type ItemRemoved struct {
	ItemID    string `json:"itemId"`
	ProductID string `json:"productId"`
}

// NewEvent wraps payload in an envelope for cartID.
func NewEvent(eventType, cartID string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		CartID:     cartID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}, nil
}
