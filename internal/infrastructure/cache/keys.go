package cache

import (
	"context"
	"errors"
	"fmt"
)

// LatestCartKey caches the response of GET /cart.
const LatestCartKey = "cart:latest"

// LatestVersionKey counts writes to any cart. LatestCartKey entries are
// stored under its current value.
const LatestVersionKey = "cart-version:latest"

func CartKey(id string) string        { return "cart:" + id }
func CartItemsKey(id string) string   { return "cart-items:" + id }
func CartVersionKey(id string) string { return "cart-version:" + id }
func ProductKey(id string) string     { return "product:" + id }

func ProductListKey(limit int) string { return fmt.Sprintf("products:%d", limit) }

// Versioned names the entry for key as of version v. Bumping the version
// orphans every entry stored under an older one, including entries written
// by reads that started before the bump and finish after it.
func Versioned(key string, v int64) string { return fmt.Sprintf("%s@%d", key, v) }

// CartVersionKeys lists the counters that version reads depending on the
// contents of cart id.
func CartVersionKeys(id string) []string {
	return []string{CartVersionKey(id), LatestVersionKey}
}

// InvalidateCart bumps every version counter covering cart id. Call it after
// the write is committed.
func InvalidateCart(ctx context.Context, c Cache, id string) error {
	var errs []error
	for _, key := range CartVersionKeys(id) {
		if _, err := c.Incr(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
