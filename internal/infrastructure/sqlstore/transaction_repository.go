package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/freshcut/internal/domain/transaction"
)

type TransactionRepository struct{ s *Store }

const transactionColumns = "id, order_id, payment_ref, amount, currency, status, customer, created_at"

func (r *TransactionRepository) Insert(ctx context.Context, t *transaction.Transaction) error {
	if t == nil || t.OrderID == "" {
		return fmt.Errorf("sqlstore: transaction order id is required")
	}
	customer, err := json.Marshal(t.Customer)
	if err != nil {
		return fmt.Errorf("sqlstore: encode customer: %w", err)
	}
	_, err = r.s.exec(ctx, r.s.db, "INSERT INTO transactions ("+transactionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		t.ID, t.OrderID, t.PaymentRef, t.Amount, t.Currency, string(t.Status), string(customer), formatTime(t.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return transaction.ErrDuplicate
		}
		return fmt.Errorf("sqlstore: insert transaction for %s: %w", t.OrderID, err)
	}
	return nil
}

func (r *TransactionRepository) GetByOrder(ctx context.Context, orderID string) (*transaction.Transaction, error) {
	row := r.s.queryRow(ctx, r.s.db, "SELECT "+transactionColumns+" FROM transactions WHERE order_id = ?", orderID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, transaction.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get transaction for %s: %w", orderID, err)
	}
	return t, nil
}

func (r *TransactionRepository) List(ctx context.Context, limit int) ([]*transaction.Transaction, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.s.query(ctx, r.s.db,
		"SELECT "+transactionColumns+" FROM transactions ORDER BY created_at DESC, id DESC LIMIT ?", min(limit, maxListLimit))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]*transaction.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(sc scanner) (*transaction.Transaction, error) {
	var (
		t                         transaction.Transaction
		status, customer, created string
	)
	if err := sc.Scan(&t.ID, &t.OrderID, &t.PaymentRef, &t.Amount, &t.Currency, &status, &customer, &created); err != nil {
		return nil, err
	}
	t.Status = transaction.Status(status)
	if err := json.Unmarshal([]byte(customer), &t.Customer); err != nil {
		return nil, fmt.Errorf("decode customer: %w", err)
	}
	var err error
	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &t, nil
}
