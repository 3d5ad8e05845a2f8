package product

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidPrice    = errors.New("price must not be negative")
	ErrInvalidName     = errors.New("name is required")
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// Product is owned by the catalog. The cart subsystem only reads it.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Price       int64     `json:"price"`
	ImageURL    *string   `json:"imageUrl"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Catalog is the read-only product collaborator.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	ListProducts(ctx context.Context, limit int) ([]Product, error)
}

// New builds a catalog entry for seeding. Empty description and image are
// stored as null.
func New(name, description string, price int64, imageURL string) (*Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if price < 0 {
		return nil, ErrInvalidPrice
	}

	p := &Product{
		ID:        uuid.New().String(),
		Name:      name,
		Price:     price,
		CreatedAt: time.Now().UTC(),
	}
	if d := strings.TrimSpace(description); d != "" {
		p.Description = &d
	}
	if u := strings.TrimSpace(imageURL); u != "" {
		p.ImageURL = &u
	}
	return p, nil
}

// ClampLimit maps a requested page size onto [1, MaxListLimit], using
// DefaultListLimit when none was given.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
