package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/example/anon-cart/internal/domain/cart"
	"github.com/example/anon-cart/internal/domain/product"
	"github.com/example/anon-cart/internal/platform/logger"
)

const (
	uniqueViolation     = "23505"
	cartsPrimaryKey     = "carts_pkey"
	cartsOwnerUniqueKey = "carts_owner_id_key"
)

const cartColumns = `id, owner_id, created_at, updated_at`

const itemJoinSelect = `
	SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.price, ci.created_at, ci.updated_at,
	       p.id, p.name, p.description, p.price, p.image_url, p.created_at
	FROM cart_items ci
	JOIN products p ON p.id = ci.product_id`

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresCartStore implements CartRepository on PostgreSQL
type PostgresCartStore struct {
	db  *sql.DB
	log *logger.Logger
}

func NewPostgresCartStore(db *sql.DB, log *logger.Logger) *PostgresCartStore {
	return &PostgresCartStore{db: db, log: log.With("component", "PostgresCartStore")}
}

// CreateCart creates a cart. Owned carts are fetch-or-create by owner and
// rely on the unique owner constraint when two creations race. An anonymous
// cart with a client-chosen id is fetch-or-create by id. Otherwise a fresh
// cart is inserted.
func (s *PostgresCartStore) CreateCart(ctx context.Context, in cart.NewCart) (*cart.Cart, bool, error) {
	switch {
	case in.HasOwner():
		return s.createForOwner(ctx, in)
	case in.ID() != "":
		return s.createWithID(ctx, in.ID())
	default:
		c, err := s.insertCart(ctx, uuid.New().String(), nil)
		if err != nil {
			return nil, false, s.fail("create cart", err)
		}
		return c, true, nil
	}
}

func (s *PostgresCartStore) createForOwner(ctx context.Context, in cart.NewCart) (*cart.Cart, bool, error) {
	owner := in.OwnerID()

	existing, err := s.cartByOwner(ctx, owner)
	if err != nil {
		return nil, false, s.fail("create cart: lookup owner", err, "owner_id", owner)
	}
	if existing != nil {
		return existing, false, nil
	}

	id := in.ID()
	if id == "" {
		id = uuid.New().String()
	}

	created, err := s.insertCart(ctx, id, &owner)
	if err == nil {
		return created, true, nil
	}

	constraint, ok := uniqueViolationOn(err)
	if !ok {
		return nil, false, s.fail("create cart", err, "owner_id", owner)
	}

	switch constraint {
	case cartsOwnerUniqueKey:
		// Lost the race against a concurrent creation for the same owner.
		existing, err = s.cartByOwner(ctx, owner)
		if err != nil {
			return nil, false, s.fail("create cart: refetch owner", err, "owner_id", owner)
		}
		if existing == nil {
			return nil, false, s.fail("create cart: refetch owner", errors.New("owned cart vanished after conflict"), "owner_id", owner)
		}
		return existing, false, nil
	case cartsPrimaryKey:
		return s.adoptAnonymous(ctx, id, owner)
	default:
		return nil, false, s.fail("create cart", err, "owner_id", owner)
	}
}

// adoptAnonymous assigns an existing anonymous cart to owner, so a visitor
// who signs in keeps the cart their identity token points at.
func (s *PostgresCartStore) adoptAnonymous(ctx context.Context, id, owner string) (*cart.Cart, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE carts SET owner_id = $2, updated_at = $3
		 WHERE id = $1 AND owner_id IS NULL
		 RETURNING `+cartColumns,
		id, owner, time.Now().UTC(),
	)
	c, err := scanCart(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, cart.ErrOwnerMismatch
	}
	if err != nil {
		if _, ok := uniqueViolationOn(err); ok {
			existing, ferr := s.cartByOwner(ctx, owner)
			if ferr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, s.fail("create cart: adopt", err, "cart_id", id, "owner_id", owner)
	}
	return c, false, nil
}

func (s *PostgresCartStore) createWithID(ctx context.Context, id string) (*cart.Cart, bool, error) {
	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO carts (id, owner_id, created_at, updated_at)
		 VALUES ($1, NULL, $2, $2)
		 ON CONFLICT (id) DO NOTHING
		 RETURNING `+cartColumns,
		id, now,
	)
	c, err := scanCart(row)
	if err == nil {
		return c, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, s.fail("create cart", err, "cart_id", id)
	}

	// Already created by an earlier call with the same identity.
	existing, err := s.GetCart(ctx, id, false)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *PostgresCartStore) insertCart(ctx context.Context, id string, owner *string) (*cart.Cart, error) {
	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO carts (id, owner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)
		 RETURNING `+cartColumns,
		id, owner, now,
	)
	return scanCart(row)
}

func (s *PostgresCartStore) cartByOwner(ctx context.Context, owner string) (*cart.Cart, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE owner_id = $1`, owner)
	c, err := scanCart(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *PostgresCartStore) GetCart(ctx context.Context, id string, withItems bool) (*cart.Cart, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+cartColumns+` FROM carts WHERE id = $1`, id)
	c, err := scanCart(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cart.CartNotFound(id)
	}
	if err != nil {
		return nil, s.fail("get cart", err, "cart_id", id)
	}

	if withItems {
		items, err := listItems(ctx, s.db, id)
		if err != nil {
			return nil, s.fail("get cart: items", err, "cart_id", id)
		}
		c.Items = items
	}
	return c, nil
}

func (s *PostgresCartStore) LatestCart(ctx context.Context) (*cart.Cart, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+cartColumns+` FROM carts ORDER BY updated_at DESC LIMIT 1`)
	c, err := scanCart(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.fail("latest cart", err)
	}

	items, err := listItems(ctx, s.db, c.ID)
	if err != nil {
		return nil, s.fail("latest cart: items", err, "cart_id", c.ID)
	}
	c.Items = items
	return c, nil
}

func (s *PostgresCartStore) GetCartItems(ctx context.Context, cartID string) ([]cart.CartItem, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM carts WHERE id = $1)`, cartID,
	).Scan(&exists)
	if err != nil {
		return nil, s.fail("get cart items", err, "cart_id", cartID)
	}
	if !exists {
		return nil, cart.CartNotFound(cartID)
	}

	items, err := listItems(ctx, s.db, cartID)
	if err != nil {
		return nil, s.fail("get cart items", err, "cart_id", cartID)
	}
	return items, nil
}

// AddItem inserts a new line priced at the product's current price.
func (s *PostgresCartStore) AddItem(ctx context.Context, in cart.NewItem) (*cart.CartItem, error) {
	const op = "add item"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, s.fail(op, err, "cart_id", in.CartID())
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if err := touchCart(ctx, tx, in.CartID(), now); err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return nil, err
		}
		return nil, s.fail(op, err, "cart_id", in.CartID())
	}

	p, err := scanProduct(tx.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, in.ProductID()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cart.ProductNotFound(in.ProductID())
	}
	if err != nil {
		return nil, s.fail(op, err, "product_id", in.ProductID())
	}

	price, err := cart.ValidatePrice(p.Price)
	if err != nil {
		return nil, err
	}

	item := &cart.CartItem{
		ID:        uuid.New().String(),
		CartID:    in.CartID(),
		ProductID: in.ProductID(),
		Quantity:  in.Quantity(),
		Price:     price,
		Product:   p,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO cart_items (id, cart_id, product_id, quantity, price, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		item.ID, item.CartID, item.ProductID, item.Quantity, item.Price, now,
	)
	if err != nil {
		return nil, s.fail(op, err, "cart_id", in.CartID(), "product_id", in.ProductID())
	}

	if err := tx.Commit(); err != nil {
		return nil, s.fail(op, err, "cart_id", in.CartID())
	}
	return item, nil
}

func (s *PostgresCartStore) UpdateItemQuantity(ctx context.Context, in cart.QuantityUpdate) (*cart.CartItem, error) {
	const op = "update item quantity"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, s.fail(op, err, "item_id", in.ItemID())
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var cartID string
	err = tx.QueryRowContext(ctx,
		`UPDATE cart_items SET quantity = $2, updated_at = $3 WHERE id = $1 RETURNING cart_id`,
		in.ItemID(), in.Quantity(), now,
	).Scan(&cartID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cart.ItemNotFound(in.ItemID())
	}
	if err != nil {
		return nil, s.fail(op, err, "item_id", in.ItemID())
	}

	if err := touchCart(ctx, tx, cartID, now); err != nil {
		return nil, s.fail(op, err, "cart_id", cartID)
	}

	item, err := scanJoinedItem(tx.QueryRowContext(ctx, itemJoinSelect+` WHERE ci.id = $1`, in.ItemID()))
	if err != nil {
		return nil, s.fail(op, err, "item_id", in.ItemID())
	}

	if err := tx.Commit(); err != nil {
		return nil, s.fail(op, err, "item_id", in.ItemID())
	}
	return item, nil
}

func (s *PostgresCartStore) RemoveItem(ctx context.Context, itemID string) (*cart.CartItem, error) {
	const op = "remove item"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, s.fail(op, err, "item_id", itemID)
	}
	defer tx.Rollback()

	var item cart.CartItem
	err = tx.QueryRowContext(ctx,
		`DELETE FROM cart_items WHERE id = $1
		 RETURNING id, cart_id, product_id, quantity, price, created_at, updated_at`,
		itemID,
	).Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.Price, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cart.ItemNotFound(itemID)
	}
	if err != nil {
		return nil, s.fail(op, err, "item_id", itemID)
	}

	if err := touchCart(ctx, tx, item.CartID, time.Now().UTC()); err != nil {
		return nil, s.fail(op, err, "cart_id", item.CartID)
	}

	if err := tx.Commit(); err != nil {
		return nil, s.fail(op, err, "item_id", itemID)
	}
	return &item, nil
}

// fail logs a storage error with its context and converts it to the
// persistence error kind.
func (s *PostgresCartStore) fail(op string, err error, keysAndValues ...interface{}) error {
	s.log.Error("cart persistence failure", append([]interface{}{"op", op, "error", err}, keysAndValues...)...)
	return cart.Persistence(op, err)
}

func touchCart(ctx context.Context, q queryer, cartID string, now time.Time) error {
	res, err := q.ExecContext(ctx, `UPDATE carts SET updated_at = $2 WHERE id = $1`, cartID, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return cart.CartNotFound(cartID)
	}
	return nil
}

func listItems(ctx context.Context, q queryer, cartID string) ([]cart.CartItem, error) {
	rows, err := q.QueryContext(ctx, itemJoinSelect+` WHERE ci.cart_id = $1 ORDER BY ci.seq ASC`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]cart.CartItem, 0)
	for rows.Next() {
		item, err := scanJoinedItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func scanCart(row rowScanner) (*cart.Cart, error) {
	var (
		c     cart.Cart
		owner sql.NullString
	)
	if err := row.Scan(&c.ID, &owner, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if owner.Valid {
		c.OwnerID = &owner.String
	}
	c.Items = []cart.CartItem{}
	return &c, nil
}

func scanJoinedItem(row rowScanner) (*cart.CartItem, error) {
	var (
		item        cart.CartItem
		p           product.Product
		description sql.NullString
		imageURL    sql.NullString
	)
	err := row.Scan(
		&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.Price, &item.CreatedAt, &item.UpdatedAt,
		&p.ID, &p.Name, &description, &p.Price, &imageURL, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Description = nullableString(description)
	p.ImageURL = nullableString(imageURL)
	item.Product = &p
	return &item, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// uniqueViolationOn reports whether err is a unique violation and on which
// constraint.
func uniqueViolationOn(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}
