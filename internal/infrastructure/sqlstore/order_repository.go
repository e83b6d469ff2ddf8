package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Zhima-Mochi/freshcut/internal/domain/cart"
	domain "github.com/Zhima-Mochi/freshcut/internal/domain/order"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
	orderSequence    = "order_number"
)

type OrderRepository struct{ s *Store }

const orderColumns = `id, number, lines, customer_name, customer_phone, customer_email, status,
fulfilled, payment_ref, billing_artifact_ref, cancel_reason, created_at, updated_at`

// Insert draws the next order number and stores the order in one transaction.
func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("sqlstore: order id is required")
	}
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("sqlstore: encode order lines: %w", err)
	}

	var number int64
	err = r.s.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.s.queryRow(ctx, tx,
			"UPDATE sequences SET value = value + 1 WHERE name = ? RETURNING value", orderSequence,
		).Scan(&number); err != nil {
			return fmt.Errorf("next order number: %w", err)
		}
		_, err := r.s.exec(ctx, tx, "INSERT INTO orders ("+orderColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			o.ID, number, string(lines), o.Customer.Name, o.Customer.Phone, o.Customer.Email, string(o.Status),
			boolToInt(o.Fulfilled), o.PaymentRef, o.BillingArtifactRef, o.CancelReason,
			formatTime(o.CreatedAt), formatTime(o.UpdatedAt),
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("sqlstore: insert order %s: %w", o.ID, err)
	}
	o.Number = number
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	row := r.s.queryRow(ctx, r.s.db, "SELECT "+orderColumns+" FROM orders WHERE id = ?", id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get order %s: %w", id, err)
	}
	return o, nil
}

func (r *OrderRepository) MarkPaid(ctx context.Context, id, paymentRef string, at time.Time) error {
	return r.conditional(ctx, id,
		"UPDATE orders SET status = ?, payment_ref = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(domain.StatusPaid), paymentRef, formatTime(at), id, string(domain.StatusPending),
	)
}

func (r *OrderRepository) MarkCancelled(ctx context.Context, id, reason string, at time.Time) error {
	return r.conditional(ctx, id,
		"UPDATE orders SET status = ?, cancel_reason = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(domain.StatusCancelled), reason, formatTime(at), id, string(domain.StatusPending),
	)
}

func (r *OrderRepository) SetFulfilled(ctx context.Context, id string, value bool, at time.Time) error {
	return r.conditional(ctx, id,
		"UPDATE orders SET fulfilled = ?, updated_at = ? WHERE id = ?",
		boolToInt(value), formatTime(at), id,
	)
}

func (r *OrderRepository) SetBillingArtifact(ctx context.Context, id, ref string, at time.Time) error {
	return r.conditional(ctx, id,
		"UPDATE orders SET billing_artifact_ref = ?, updated_at = ? WHERE id = ?",
		ref, formatTime(at), id,
	)
}

func (r *OrderRepository) List(ctx context.Context, f domain.Filter) ([]*domain.Order, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Fulfilled != nil {
		where = append(where, "fulfilled = ?")
		args = append(args, boolToInt(*f.Fulfilled))
	}
	if !f.CreatedBefore.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, formatTime(f.CreatedBefore))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	q := "SELECT " + orderColumns + " FROM orders"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, number DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.s.query(ctx, r.s.db, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list orders: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// conditional runs an UPDATE and maps "no row changed" to ErrNotFound or ErrConflict.
func (r *OrderRepository) conditional(ctx context.Context, id, query string, args ...any) error {
	res, err := r.s.exec(ctx, r.s.db, query, args...)
	if err != nil {
		return fmt.Errorf("sqlstore: update order %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: update order %s: %w", id, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return domain.ErrConflict
}

func scanOrder(sc scanner) (*domain.Order, error) {
	var (
		o                domain.Order
		lines, status    string
		fulfilled        int64
		created, updated string
	)
	if err := sc.Scan(&o.ID, &o.Number, &lines, &o.Customer.Name, &o.Customer.Phone, &o.Customer.Email, &status,
		&fulfilled, &o.PaymentRef, &o.BillingArtifactRef, &o.CancelReason, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(lines), &o.Lines); err != nil {
		return nil, fmt.Errorf("decode lines: %w", err)
	}
	if o.Lines == nil {
		o.Lines = []cart.Line{}
	}
	o.Status = domain.Status(status)
	o.Fulfilled = fulfilled != 0
	var err error
	if o.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if o.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &o, nil
}
