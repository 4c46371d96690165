package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"garan24-bridge/internal/model"
)

// Postgres is the OrderStore backed by the tables in migrations/.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const orderColumns = `id, status, currency, payment_method, payment_method_title,
	customer_id, customer_email, customer_note, billing, shipping, items, fees,
	shipping_lines, coupons, total, total_tax, shipping_total, shipping_tax,
	discount_total, discount_tax, store_credit, refunded_total, created_at, updated_at, paid_at`

type jsonColumns struct {
	billing, shipping, items, fees, shippingLines, coupons []byte
}

func encodeColumns(o *model.Order) (*jsonColumns, error) {
	var (
		c   jsonColumns
		err error
	)
	if c.billing, err = json.Marshal(o.Billing); err != nil {
		return nil, fmt.Errorf("encoding billing: %w", err)
	}
	if c.shipping, err = json.Marshal(o.Shipping); err != nil {
		return nil, fmt.Errorf("encoding shipping: %w", err)
	}
	if c.items, err = jsonArray(o.Items); err != nil {
		return nil, fmt.Errorf("encoding items: %w", err)
	}
	if c.fees, err = jsonArray(o.Fees); err != nil {
		return nil, fmt.Errorf("encoding fees: %w", err)
	}
	if c.shippingLines, err = jsonArray(o.ShippingLines); err != nil {
		return nil, fmt.Errorf("encoding shipping lines: %w", err)
	}
	if c.coupons, err = jsonArray(o.Coupons); err != nil {
		return nil, fmt.Errorf("encoding coupons: %w", err)
	}
	return &c, nil
}

func jsonArray[T any](v []T) ([]byte, error) {
	if v == nil {
		v = []T{}
	}
	return json.Marshal(v)
}

// Create inserts the order, its meta and assigns the id.
func (p *Postgres) Create(ctx context.Context, o *model.Order) error {
	cols, err := encodeColumns(o)
	if err != nil {
		return err
	}
	if o.Status == "" {
		o.Status = model.StatusPending
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var created sql.NullTime
	if !o.CreatedAt.IsZero() {
		created = sql.NullTime{Time: o.CreatedAt, Valid: true}
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (status, currency, payment_method, payment_method_title,
			customer_id, customer_email, customer_note, billing, shipping, items, fees,
			shipping_lines, coupons, total, total_tax, shipping_total, shipping_tax,
			discount_total, discount_tax, store_credit, refunded_total, created_at, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, COALESCE($22, NOW()), $23)
		RETURNING id, created_at, updated_at
	`, o.Status, o.Currency, o.PaymentMethod, o.PaymentMethodTitle,
		o.CustomerID, o.CustomerEmail, o.CustomerNote, cols.billing, cols.shipping, cols.items, cols.fees,
		cols.shippingLines, cols.coupons, o.Total, o.TotalTax, o.ShippingTotal, o.ShippingTax,
		o.DiscountTotal, o.DiscountTax, o.StoreCredit, o.RefundedTotal, created, o.PaidAt,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return err
	}

	if err := upsertMeta(ctx, tx, o.ID, o.Meta); err != nil {
		return err
	}

	return tx.Commit()
}

// Get loads an order with its meta and notes.
func (p *Postgres) Get(ctx context.Context, id int64) (*model.Order, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, orderNotFound()
	}
	if err != nil {
		return nil, err
	}

	if err := p.loadMeta(ctx, o); err != nil {
		return nil, err
	}
	if err := p.loadNotes(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var (
		o      model.Order
		c      jsonColumns
		paidAt sql.NullTime
	)
	err := row.Scan(&o.ID, &o.Status, &o.Currency, &o.PaymentMethod, &o.PaymentMethodTitle,
		&o.CustomerID, &o.CustomerEmail, &o.CustomerNote, &c.billing, &c.shipping, &c.items, &c.fees,
		&c.shippingLines, &c.coupons, &o.Total, &o.TotalTax, &o.ShippingTotal, &o.ShippingTax,
		&o.DiscountTotal, &o.DiscountTax, &o.StoreCredit, &o.RefundedTotal, &o.CreatedAt, &o.UpdatedAt, &paidAt)
	if err != nil {
		return nil, err
	}
	if paidAt.Valid {
		o.PaidAt = &paidAt.Time
	}

	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{c.billing, &o.Billing},
		{c.shipping, &o.Shipping},
		{c.items, &o.Items},
		{c.fees, &o.Fees},
		{c.shippingLines, &o.ShippingLines},
		{c.coupons, &o.Coupons},
	} {
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("decoding order %d: %w", o.ID, err)
		}
	}
	return &o, nil
}

func (p *Postgres) loadMeta(ctx context.Context, o *model.Order) error {
	rows, err := p.db.QueryContext(ctx, `SELECT meta_key, value FROM order_meta WHERE order_id = $1`, o.ID)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	o.Meta = make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		o.Meta[k] = v
	}
	return rows.Err()
}

func (p *Postgres) loadNotes(ctx context.Context, o *model.Order) error {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, content, created_at FROM order_notes
		WHERE order_id = $1 ORDER BY id
	`, o.ID)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var n model.Note
		if err := rows.Scan(&n.ID, &n.Content, &n.CreatedAt); err != nil {
			return err
		}
		o.Notes = append(o.Notes, n)
	}
	return rows.Err()
}

// Save updates the order row and upserts its meta.
func (p *Postgres) Save(ctx context.Context, o *model.Order) error {
	cols, err := encodeColumns(o)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		UPDATE orders SET status = $2, currency = $3, payment_method = $4,
			payment_method_title = $5, customer_id = $6, customer_email = $7,
			customer_note = $8, billing = $9, shipping = $10, items = $11, fees = $12,
			shipping_lines = $13, coupons = $14, total = $15, total_tax = $16,
			shipping_total = $17, shipping_tax = $18, discount_total = $19,
			discount_tax = $20, store_credit = $21, refunded_total = $22, paid_at = $23,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, o.ID, o.Status, o.Currency, o.PaymentMethod,
		o.PaymentMethodTitle, o.CustomerID, o.CustomerEmail,
		o.CustomerNote, cols.billing, cols.shipping, cols.items, cols.fees,
		cols.shippingLines, cols.coupons, o.Total, o.TotalTax,
		o.ShippingTotal, o.ShippingTax, o.DiscountTotal,
		o.DiscountTax, o.StoreCredit, o.RefundedTotal, o.PaidAt,
	).Scan(&o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return orderNotFound()
	}
	if err != nil {
		return err
	}

	if err := upsertMeta(ctx, tx, o.ID, o.Meta); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertMeta(ctx context.Context, tx *sql.Tx, id int64, meta map[string]string) error {
	for k, v := range meta {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_meta (order_id, meta_key, value) VALUES ($1, $2, $3)
			ON CONFLICT (order_id, meta_key) DO UPDATE SET value = EXCLUDED.value
		`, id, k, v)
		if err != nil {
			return fmt.Errorf("saving meta %s: %w", k, err)
		}
	}
	return nil
}

// Delete removes an order. Meta, notes and pending checks cascade.
func (p *Postgres) Delete(ctx context.Context, id int64) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return orderNotFound()
	}
	return nil
}

// GetMeta returns a meta value, "" when unset.
func (p *Postgres) GetMeta(ctx context.Context, id int64, key string) (string, error) {
	var v string
	err := p.db.QueryRowContext(ctx,
		`SELECT value FROM order_meta WHERE order_id = $1 AND meta_key = $2`, id, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

// SetMeta sets a meta value.
func (p *Postgres) SetMeta(ctx context.Context, id int64, key, value string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO order_meta (order_id, meta_key, value) VALUES ($1, $2, $3)
		ON CONFLICT (order_id, meta_key) DO UPDATE SET value = EXCLUDED.value
	`, id, key, value)
	return mapForeignKey(err)
}

// AddMeta inserts key only when it is absent and reports whether it did.
func (p *Postgres) AddMeta(ctx context.Context, id int64, key, value string) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO order_meta (order_id, meta_key, value) VALUES ($1, $2, $3)
		ON CONFLICT (order_id, meta_key) DO NOTHING
	`, id, key, value)
	if err != nil {
		return false, mapForeignKey(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteMeta removes a meta key.
func (p *Postgres) DeleteMeta(ctx context.Context, id int64, key string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM order_meta WHERE order_id = $1 AND meta_key = $2`, id, key)
	return err
}

// AddNote appends an order note.
func (p *Postgres) AddNote(ctx context.Context, id int64, content string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO order_notes (order_id, content) VALUES ($1, $2)`, id, content)
	return mapForeignKey(err)
}

// ListByStatus returns orders in status created before createdBefore,
// oldest first. Notes are not loaded.
func (p *Postgres) ListByStatus(ctx context.Context, status model.Status, createdBefore time.Time) ([]*model.Order, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at, id
	`, status, createdBefore)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var (
		orders []*model.Order
		ids    []int64
	)
	byID := make(map[int64]*model.Order)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		o.Meta = make(map[string]string)
		orders = append(orders, o)
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return orders, nil
	}

	metaRows, err := p.db.QueryContext(ctx, `
		SELECT order_id, meta_key, value FROM order_meta WHERE order_id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer func() { _ = metaRows.Close() }()

	for metaRows.Next() {
		var (
			id   int64
			k, v string
		)
		if err := metaRows.Scan(&id, &k, &v); err != nil {
			return nil, err
		}
		byID[id].Meta[k] = v
	}
	if err := metaRows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

// SchedulePendingCheck sets or moves the order's next status check.
func (p *Postgres) SchedulePendingCheck(ctx context.Context, id int64, at time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO pending_checks (order_id, due_at) VALUES ($1, $2)
		ON CONFLICT (order_id) DO UPDATE SET due_at = EXCLUDED.due_at
	`, id, at)
	return mapForeignKey(err)
}

// DuePendingChecks returns the orders whose check is due at now.
func (p *Postgres) DuePendingChecks(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT order_id FROM pending_checks WHERE due_at <= $1 ORDER BY due_at`, now)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClearPendingCheck removes the order's scheduled check.
func (p *Postgres) ClearPendingCheck(ctx context.Context, id int64) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM pending_checks WHERE order_id = $1`, id)
	return err
}

// mapForeignKey turns a missing parent order into a not-found error.
func mapForeignKey(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return orderNotFound()
	}
	return err
}

var _ OrderStore = (*Postgres)(nil)
