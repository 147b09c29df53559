package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/buildtall-systems/vinopack/internal/fsm"
)

var orderSM = fsm.NewOrderStateMachine()

// ErrOrderNotFound indicates order does not exist.
var ErrOrderNotFound = errors.New("order not found")

// ErrInvalidItem indicates an order item violates its constraints.
var ErrInvalidItem = errors.New("invalid order item")

// ErrInvalidStateTransition indicates an invalid order state transition was attempted.
var ErrInvalidStateTransition = errors.New("invalid order state transition")

// Order represents a wine order.
type Order struct {
	ID        int64
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID       int64
	OrderID  int64
	WineType string
	Quantity int
}

// NewItem is an order line to be inserted.
type NewItem struct {
	WineType string
	Quantity int
}

// OrderWithItems is an order together with its lines (for listing).
type OrderWithItems struct {
	Order
	Items []OrderItem
}

// CreateOrder inserts an order and all of its items in one transaction.
// Labels are stored exactly as given, blank ones included. Any item failing
// its constraints rolls back the whole order.
func (db *DB) CreateOrder(ctx context.Context, items []NewItem) (*Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: order has no items", ErrInvalidItem)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `INSERT INTO orders DEFAULT VALUES`)
	if err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}

	orderID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting order id: %w", err)
	}

	for i, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, wine_type, quantity) VALUES (?, ?, ?)
		`, orderID, item.WineType, item.Quantity)
		if err != nil {
			if isConstraintViolation(err) {
				return nil, fmt.Errorf("%w: item %d (%s x%d): %v", ErrInvalidItem, i, item.WineType, item.Quantity, err)
			}
			return nil, fmt.Errorf("inserting item %d: %w", i, err)
		}
	}

	var o Order
	err = tx.QueryRowContext(ctx, `
		SELECT id, status, created_at, updated_at FROM orders WHERE id = ?
	`, orderID).Scan(&o.ID, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("reading created order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return &o, nil
}

// GetOrderByID returns an order by its ID.
func (db *DB) GetOrderByID(ctx context.Context, orderID int64) (*Order, error) {
	var o Order
	err := db.QueryRowContext(ctx, `
		SELECT id, status, created_at, updated_at FROM orders WHERE id = ?
	`, orderID).Scan(&o.ID, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying order: %w", err)
	}
	return &o, nil
}

// GetOrderItems returns the lines of an order in insertion order.
func (db *DB) GetOrderItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, order_id, wine_type, quantity
		FROM order_items WHERE order_id = ? ORDER BY id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("querying order items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.WineType, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating order items: %w", err)
	}
	return items, nil
}

// UpdateOrderStatus moves an order to newStatus with FSM validation.
// Setting the status an order already has is a no-op, so repeated calls are
// safe. Backward moves return ErrInvalidStateTransition.
func (db *DB) UpdateOrderStatus(ctx context.Context, orderID int64, newStatus string) error {
	if !fsm.IsOrderState(newStatus) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidStateTransition, newStatus)
	}

	order, err := db.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}

	if order.Status == newStatus {
		return nil
	}

	event := fsm.EventFor(order.Status, newStatus)
	if event == "" || !orderSM.CanTransition(order.Status, event) {
		return fmt.Errorf("%w: %s -> %s (allowed from %s: %v)",
			ErrInvalidStateTransition, order.Status, newStatus, order.Status, orderSM.AvailableEvents(order.Status))
	}

	result, err := db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, newStatus, orderID, order.Status)
	if err != nil {
		return fmt.Errorf("updating order status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		current, err := db.GetOrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if current.Status == newStatus {
			return nil
		}
		return fmt.Errorf("%w: order state changed concurrently", ErrInvalidStateTransition)
	}
	return nil
}

// ListOrdersWithItems returns every order with its items. Unfinished orders
// come first, then finished ones; each group is newest first.
func (db *DB) ListOrdersWithItems(ctx context.Context) ([]OrderWithItems, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT o.id, o.status, o.created_at, o.updated_at, oi.id, oi.wine_type, oi.quantity
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		ORDER BY
			CASE WHEN o.status = 'finished' THEN 1 ELSE 0 END,
			o.created_at DESC,
			o.id DESC,
			oi.id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orders []OrderWithItems
	for rows.Next() {
		var o Order
		var it OrderItem
		if err := rows.Scan(&o.ID, &o.Status, &o.CreatedAt, &o.UpdatedAt, &it.ID, &it.WineType, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scanning order row: %w", err)
		}
		it.OrderID = o.ID

		// Rows arrive grouped by order, so a change of id starts a new order.
		if n := len(orders); n == 0 || orders[n-1].ID != o.ID {
			orders = append(orders, OrderWithItems{Order: o})
		}
		last := &orders[len(orders)-1]
		last.Items = append(last.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating orders: %w", err)
	}
	return orders, nil
}

// DeleteOrder removes an order; its items go with it.
func (db *DB) DeleteOrder(ctx context.Context, orderID int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, orderID)
	if err != nil {
		return fmt.Errorf("deleting order: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// isConstraintViolation checks if the error is a SQLite constraint failure.
func isConstraintViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
