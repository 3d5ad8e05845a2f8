package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/example/anon-cart/internal/client/cartsync"
	"github.com/example/anon-cart/internal/domain/cart"
	"github.com/example/anon-cart/internal/domain/product"
)

// OutputFormatter writes command results as text or JSON.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

func newFormatter(opts *RootOptions, w io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: w}
}

func (f *OutputFormatter) writeJSON(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type cartOutput struct {
	Cart  *cart.Cart      `json:"cart"`
	Items []cart.CartItem `json:"items"`
	Total int64           `json:"total"`
}

func (f *OutputFormatter) Snapshot(snap *cartsync.Snapshot) error {
	if f.Format == "json" {
		return f.writeJSON(cartOutput{Cart: snap.Cart, Items: snap.Items, Total: snap.Total()})
	}
	fmt.Fprintf(f.Writer, "Cart %s\n", snap.Cart.ID)
	if snap.Cart.OwnerID != nil {
		fmt.Fprintf(f.Writer, "Owner %s\n", *snap.Cart.OwnerID)
	}
	if len(snap.Items) == 0 {
		fmt.Fprintln(f.Writer, "(empty)")
		return nil
	}
	f.itemTable(snap.Items)
	fmt.Fprintf(f.Writer, "Total %s\n", formatMoney(snap.Total()))
	return nil
}

func (f *OutputFormatter) Items(items []cart.CartItem) error {
	if f.Format == "json" {
		return f.writeJSON(items)
	}
	if len(items) == 0 {
		fmt.Fprintln(f.Writer, "(empty)")
		return nil
	}
	f.itemTable(items)
	return nil
}

func (f *OutputFormatter) Item(verb string, item *cart.CartItem) error {
	if f.Format == "json" {
		return f.writeJSON(item)
	}
	fmt.Fprintf(f.Writer, "%s item %s (product %s, qty %d, %s)\n",
		verb, item.ID, item.ProductID, item.Quantity, formatMoney(item.Subtotal()))
	return nil
}

func (f *OutputFormatter) Products(products []product.Product) error {
	if f.Format == "json" {
		return f.writeJSON(products)
	}
	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE")
	for _, p := range products {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, formatMoney(p.Price))
	}
	return tw.Flush()
}

func (f *OutputFormatter) Value(label, value string) error {
	if f.Format == "json" {
		return f.writeJSON(map[string]string{label: value})
	}
	fmt.Fprintln(f.Writer, value)
	return nil
}

func (f *OutputFormatter) itemTable(items []cart.CartItem) {
	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tPRODUCT\tQTY\tPRICE\tSUBTOTAL")
	for _, item := range items {
		name := item.ProductID
		if item.Product != nil {
			name = item.Product.Name
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			item.ID, name, item.Quantity, formatMoney(item.Price), formatMoney(item.Subtotal()))
	}
	tw.Flush()
}

// formatMoney renders minor currency units as a decimal amount.
func formatMoney(minor int64) string {
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
