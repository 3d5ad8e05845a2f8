package cart

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const maxOwnerIDLength = 128

// Candidate is an unvalidated payload as decoded from a request body (with
// json.Decoder.UseNumber) or assembled by an internal caller.
type Candidate map[string]any

// NewCart is a validated cart creation request. It can only be built by
// ValidateNewCart.
type NewCart struct {
	id      string
	ownerID string
}

func (n NewCart) ID() string      { return n.id }
func (n NewCart) OwnerID() string { return n.ownerID }
func (n NewCart) HasOwner() bool  { return n.ownerID != "" }

// WithOwner returns a copy owned by ownerID. ownerID must already be trusted
// (taken from a verified token).
func (n NewCart) WithOwner(ownerID string) NewCart {
	n.ownerID = ownerID
	return n
}

// NewItem is a validated add-to-cart request. It can only be built by
// ValidateNewItem.
type NewItem struct {
	cartID    string
	productID string
	quantity  int
}

func (n NewItem) CartID() string    { return n.cartID }
func (n NewItem) ProductID() string { return n.productID }
func (n NewItem) Quantity() int     { return n.quantity }

// QuantityUpdate is a validated request to change the quantity of one item.
type QuantityUpdate struct {
	itemID   string
	quantity int
}

func (q QuantityUpdate) ItemID() string { return q.itemID }
func (q QuantityUpdate) Quantity() int  { return q.quantity }

func ValidateNewCart(c Candidate) (NewCart, error) {
	verr := &ValidationError{}
	var out NewCart

	if raw, ok := present(c, "id"); ok {
		if id, msg := identifier(raw); msg != "" {
			verr.add("id", msg)
		} else {
			out.id = id
		}
	}
	if raw, ok := present(c, "ownerId"); ok {
		s, isString := raw.(string)
		s = strings.TrimSpace(s)
		switch {
		case !isString:
			verr.add("ownerId", "must be a string")
		case s == "":
			verr.add("ownerId", "must not be empty")
		case len(s) > maxOwnerIDLength:
			verr.add("ownerId", fmt.Sprintf("must be at most %d characters", maxOwnerIDLength))
		default:
			out.ownerID = s
		}
	}

	if err := verr.orNil(); err != nil {
		return NewCart{}, err
	}
	return out, nil
}

func ValidateNewItem(c Candidate) (NewItem, error) {
	verr := &ValidationError{}
	var out NewItem

	out.cartID = requiredIdentifier(verr, c, "cartId")
	out.productID = requiredIdentifier(verr, c, "productId")
	out.quantity = requiredQuantity(verr, c, "quantity")

	if err := verr.orNil(); err != nil {
		return NewItem{}, err
	}
	return out, nil
}

func ValidateQuantityUpdate(c Candidate) (QuantityUpdate, error) {
	verr := &ValidationError{}
	var out QuantityUpdate

	out.itemID = requiredIdentifier(verr, c, "itemId")
	out.quantity = requiredQuantity(verr, c, "quantity")

	if err := verr.orNil(); err != nil {
		return QuantityUpdate{}, err
	}
	return out, nil
}

// ValidateID checks a single identifier, e.g. a path parameter.
func ValidateID(field, id string) (string, error) {
	verr := &ValidationError{}
	out := requiredIdentifier(verr, Candidate{field: id}, field)
	if err := verr.orNil(); err != nil {
		return "", err
	}
	return out, nil
}

// ValidatePrice checks a unit price in minor currency units.
func ValidatePrice(v any) (int64, error) {
	n, msg := integer(v)
	if msg == "" && n < 0 {
		msg = "must not be negative"
	}
	if msg != "" {
		return 0, &ValidationError{Fields: []FieldError{{Field: "price", Message: msg}}}
	}
	return n, nil
}

func present(c Candidate, field string) (any, bool) {
	v, ok := c[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func requiredIdentifier(verr *ValidationError, c Candidate, field string) string {
	raw, ok := present(c, field)
	if !ok {
		verr.add(field, "is required")
		return ""
	}
	id, msg := identifier(raw)
	if msg != "" {
		verr.add(field, msg)
		return ""
	}
	return id
}

func identifier(raw any) (string, string) {
	s, ok := raw.(string)
	if !ok {
		return "", "must be a string"
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "is required"
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return "", "must be a valid identifier"
	}
	return id.String(), ""
}

func requiredQuantity(verr *ValidationError, c Candidate, field string) int {
	raw, ok := present(c, field)
	if !ok {
		verr.add(field, "is required")
		return 0
	}
	n, msg := integer(raw)
	if msg == "" && (n < MinQuantity || n > MaxQuantity) {
		msg = fmt.Sprintf("must be between %d and %d", MinQuantity, MaxQuantity)
	}
	if msg != "" {
		verr.add(field, msg)
		return 0
	}
	return int(n)
}

// integer accepts the shapes a JSON number can take once decoded, and numeric
// strings. Fractions are rejected rather than truncated.
func integer(raw any) (int64, string) {
	const notWhole = "must be a whole number"

	switch v := raw.(type) {
	case int:
		return int64(v), ""
	case int32:
		return int64(v), ""
	case int64:
		return v, ""
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return 0, notWhole
		}
		// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold
		if v >= math.MaxInt64 || v < math.MinInt64 {
			return 0, "is out of range"
		}
		return int64(v), ""
	case json.Number:
		return parseInteger(v.String())
	case string:
		return parseInteger(strings.TrimSpace(v))
	default:
		return 0, "must be a number"
	}
}

func parseInteger(s string) (int64, string) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, ""
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, "must be a number"
	}
	return integer(f)
}
