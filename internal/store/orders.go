package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/devxankit/neargud-sub001/internal/database"
	"github.com/devxankit/neargud-sub001/internal/order"
)

// Store persists order documents and return requests in Postgres.
//
// An order row embeds its vendor slices, status history, and cancellation
// request as JSONB documents next to the scalar columns used for filtering.
// Every write goes through an optimistic version check, so a read-modify-
// write race loses with order.ErrConflict instead of overwriting history.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func vendorIDs(o *order.Order) pq.StringArray {
	ids := make(pq.StringArray, len(o.VendorItems))
	for i, s := range o.VendorItems {
		ids[i] = s.VendorID
	}
	return ids
}

type orderDocs struct {
	address      []byte
	vendorItems  []byte
	history      []byte
	cancellation []byte
}

func marshalOrderDocs(o *order.Order) (orderDocs, error) {
	var d orderDocs
	var err error

	if d.address, err = json.Marshal(o.ShippingAddress); err != nil {
		return d, fmt.Errorf("marshal shipping address: %w", err)
	}
	if d.vendorItems, err = json.Marshal(o.VendorItems); err != nil {
		return d, fmt.Errorf("marshal vendor items: %w", err)
	}
	if d.history, err = json.Marshal(o.StatusHistory); err != nil {
		return d, fmt.Errorf("marshal status history: %w", err)
	}
	if o.CancellationRequest != nil {
		if d.cancellation, err = json.Marshal(o.CancellationRequest); err != nil {
			return d, fmt.Errorf("marshal cancellation request: %w", err)
		}
	}
	return d, nil
}

func (s *Store) CreateOrder(ctx context.Context, o *order.Order) error {
	if err := o.CheckInvariants(); err != nil {
		return err
	}
	docs, err := marshalOrderDocs(o)
	if err != nil {
		return err
	}

	err = database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO orders (id, order_code, customer_id, vendor_ids, status, payment_status, payment_method,
			                     subtotal, shipping, tax, discount, total,
			                     shipping_address, vendor_items, status_history, cancellation_request,
			                     created_at, updated_at, version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
			o.ID, o.OrderCode, o.CustomerID, vendorIDs(o), o.Status, o.PaymentStatus, o.PaymentMethod,
			o.Subtotal, o.Shipping, o.Tax, o.Discount, o.Total,
			docs.address, docs.vendorItems, docs.history, nullableJSON(docs.cancellation),
			o.CreatedAt, o.UpdatedAt, o.Version)
		return err
	})
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

const orderColumns = `id, order_code, customer_id, status, payment_status, payment_method,
	subtotal, shipping, tax, discount, total,
	shipping_address, vendor_items, status_history, cancellation_request,
	created_at, updated_at, version`

func scanOrder(row interface{ Scan(...any) error }) (*order.Order, error) {
	o := &order.Order{}
	var address, vendorItems, history []byte
	var cancellation sql.Null[[]byte]

	err := row.Scan(
		&o.ID,
		&o.OrderCode,
		&o.CustomerID,
		&o.Status,
		&o.PaymentStatus,
		&o.PaymentMethod,
		&o.Subtotal,
		&o.Shipping,
		&o.Tax,
		&o.Discount,
		&o.Total,
		&address,
		&vendorItems,
		&history,
		&cancellation,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.Version,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	if err := json.Unmarshal(vendorItems, &o.VendorItems); err != nil {
		return nil, fmt.Errorf("unmarshal vendor items: %w", err)
	}
	if err := json.Unmarshal(history, &o.StatusHistory); err != nil {
		return nil, fmt.Errorf("unmarshal status history: %w", err)
	}
	if cancellation.Valid && len(cancellation.V) > 0 {
		o.CancellationRequest = &order.CancellationRequest{}
		if err := json.Unmarshal(cancellation.V, o.CancellationRequest); err != nil {
			return nil, fmt.Errorf("unmarshal cancellation request: %w", err)
		}
	}
	return o, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: order %s", order.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// UpdateOrder writes the mutated order back, guarded by the version the
// caller read. A version mismatch means a concurrent writer won; the caller
// gets order.ErrConflict and must re-read before retrying. On success the
// in-memory version is bumped to match the row.
func (s *Store) UpdateOrder(ctx context.Context, o *order.Order, expectedVersion int) error {
	if err := o.CheckInvariants(); err != nil {
		return err
	}
	docs, err := marshalOrderDocs(o)
	if err != nil {
		return err
	}

	// The version probe runs in the same transaction as the update so a
	// zero-row result is reliably distinguished as missing vs stale.
	err = database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE orders
			 SET status = $1,
			     payment_status = $2,
			     vendor_items = $3,
			     status_history = $4,
			     cancellation_request = $5,
			     updated_at = $6,
			     version = version + 1
			 WHERE id = $7
			   AND version = $8`,
			o.Status, o.PaymentStatus, docs.vendorItems, docs.history, nullableJSON(docs.cancellation),
			o.UpdatedAt, o.ID, expectedVersion)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			var exists bool
			err := tx.QueryRowContext(ctx,
				"SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)", o.ID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("check order exists: %w", err)
			}
			if !exists {
				return fmt.Errorf("%w: order %s", order.ErrNotFound, o.ID)
			}
			return fmt.Errorf("%w: order %s version %d is stale", order.ErrConflict, o.ID, expectedVersion)
		}
		return nil
	})
	if err != nil {
		return err
	}

	o.Version = expectedVersion + 1
	return nil
}

// ListOrdersFilter narrows a vendor's order listing.
type ListOrdersFilter struct {
	Status order.Status
	From   sql.NullTime
	To     sql.NullTime
	Cursor string
	Limit  int
}

func (s *Store) ListOrdersByVendor(ctx context.Context, vendorID string, filter ListOrdersFilter) (*CursorPage, error) {
	cursorData, err := DecodeCursor(filter.Cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	limit := filter.Limit
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE $1 = ANY(vendor_ids)
		  AND (created_at, id) < ($2, $3)
		  AND ($4 = '' OR status = $4)
		  AND ($5::timestamptz IS NULL OR created_at >= $5)
		  AND ($6::timestamptz IS NULL OR created_at <= $6)
		ORDER BY created_at DESC, id DESC
		LIMIT $7`

	rows, err := s.db.QueryContext(ctx, query,
		vendorID, cursorData.CreatedAt, cursorData.ID,
		string(filter.Status), filter.From, filter.To, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}
