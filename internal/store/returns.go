package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/devxankit/neargud-sub001/internal/database"
	"github.com/devxankit/neargud-sub001/internal/order"
)

// Return requests live in their own table with a back-reference to the
// order, so support staff can query them independently and the order row
// does not grow without bound.

func (s *Store) CreateReturnRequest(ctx context.Context, r *order.ReturnRequest) error {
	items, err := json.Marshal(r.Items)
	if err != nil {
		return fmt.Errorf("marshal return items: %w", err)
	}

	err = database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO return_requests (id, return_code, order_id, vendor_id, items, reason,
			                              refund_amount, status, rejection_reason, requested_at, resolved_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			r.ID, r.ReturnCode, r.OrderID, r.VendorID, items, r.Reason,
			r.RefundAmount, r.Status, r.RejectionReason, r.RequestedAt, r.ResolvedAt)
		return err
	})
	if err != nil {
		// The partial unique index on active returns makes the
		// one-active-return-per-order rule hold under concurrent requests.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: order %s already has an active return", order.ErrDuplicateRequest, r.OrderID)
		}
		return fmt.Errorf("create return request: %w", err)
	}
	return nil
}

const returnColumns = `id, return_code, order_id, vendor_id, items, reason,
	refund_amount, status, rejection_reason, requested_at, resolved_at`

func scanReturn(row interface{ Scan(...any) error }) (*order.ReturnRequest, error) {
	r := &order.ReturnRequest{}
	var items []byte
	var rejection sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(
		&r.ID,
		&r.ReturnCode,
		&r.OrderID,
		&r.VendorID,
		&items,
		&r.Reason,
		&r.RefundAmount,
		&r.Status,
		&rejection,
		&r.RequestedAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(items, &r.Items); err != nil {
		return nil, fmt.Errorf("unmarshal return items: %w", err)
	}
	r.RejectionReason = rejection.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		r.ResolvedAt = &t
	}
	return r, nil
}

func (s *Store) GetReturnRequest(ctx context.Context, id string) (*order.ReturnRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+returnColumns+` FROM return_requests WHERE id = $1`, id)

	r, err := scanReturn(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: return request %s", order.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get return request: %w", err)
	}
	return r, nil
}

// UpdateReturnRequest persists a return mutation, guarded by the status the
// caller read. A racing resolver that already moved the row on wins; the
// loser gets order.ErrRequestAlreadyResolved instead of silently
// overwriting, which keeps refund initiation single-shot.
func (s *Store) UpdateReturnRequest(ctx context.Context, r *order.ReturnRequest, expectedStatus order.ReturnStatus) error {
	return database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE return_requests
			 SET status = $1, rejection_reason = $2, resolved_at = $3
			 WHERE id = $4
			   AND status = $5`,
			r.Status, r.RejectionReason, r.ResolvedAt, r.ID, expectedStatus)
		if err != nil {
			return fmt.Errorf("update return request: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			var exists bool
			err := tx.QueryRowContext(ctx,
				"SELECT EXISTS(SELECT 1 FROM return_requests WHERE id = $1)", r.ID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("check return request exists: %w", err)
			}
			if !exists {
				return fmt.Errorf("%w: return request %s", order.ErrNotFound, r.ID)
			}
			return fmt.Errorf("%w: return %s was no longer %s", order.ErrRequestAlreadyResolved, r.ReturnCode, expectedStatus)
		}
		return nil
	})
}

func (s *Store) ListReturnsByOrder(ctx context.Context, orderID string) ([]order.ReturnRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+returnColumns+` FROM return_requests WHERE order_id = $1 ORDER BY requested_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list returns: %w", err)
	}
	defer rows.Close()

	var returns []order.ReturnRequest
	for rows.Next() {
		r, err := scanReturn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan return request: %w", err)
		}
		returns = append(returns, *r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return returns, nil
}
