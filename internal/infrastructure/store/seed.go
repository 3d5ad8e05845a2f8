package store

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/example/anon-cart/internal/domain/product"
)

// seedNamespace keeps seeded product ids stable across runs so re-seeding
// updates rows instead of duplicating them.
var seedNamespace = uuid.MustParse("6f0d3c1e-2b7a-4f55-9a43-5c8e1d2b7f10")

type seedFile struct {
	Products []seedProduct `yaml:"products"`
}

type seedProduct struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Price       int64  `yaml:"price"`
	ImageURL    string `yaml:"imageUrl"`
}

// ProductWriter is implemented by catalogs that can be seeded.
type ProductWriter interface {
	UpsertProducts(ctx context.Context, products []product.Product) error
}

// LoadSeed parses a YAML product list. Prices are in minor currency units.
func LoadSeed(r io.Reader) ([]product.Product, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}

	products := make([]product.Product, 0, len(f.Products))
	for i, sp := range f.Products {
		p, err := product.New(sp.Name, sp.Description, sp.Price, sp.ImageURL)
		if err != nil {
			return nil, fmt.Errorf("seed product %d (%q): %w", i, sp.Name, err)
		}
		if id := strings.TrimSpace(sp.ID); id != "" {
			parsed, err := uuid.Parse(id)
			if err != nil {
				return nil, fmt.Errorf("seed product %d (%q): invalid id: %w", i, sp.Name, err)
			}
			p.ID = parsed.String()
		} else {
			p.ID = uuid.NewSHA1(seedNamespace, []byte(p.Name)).String()
		}
		products = append(products, *p)
	}
	return products, nil
}

// Seed loads products from r and writes them to w.
func Seed(ctx context.Context, w ProductWriter, r io.Reader) (int, error) {
	products, err := LoadSeed(r)
	if err != nil {
		return 0, err
	}
	if err := w.UpsertProducts(ctx, products); err != nil {
		return 0, err
	}
	return len(products), nil
}
