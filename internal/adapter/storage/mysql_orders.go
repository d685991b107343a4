package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const orderColumns = `id, customer_name, customer_email, status, subtotal_cents, discount_cents,
	shipping_cents, total_cents, board_rank, version, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.CustomerName, &o.CustomerEmail, &o.Status, &o.SubtotalCents, &o.DiscountCents,
		&o.ShippingCents, &o.TotalCents, &o.Rank, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// CreateOrder inserts the order with its lines and takes the ordered
// quantities from product stock in one transaction.
func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	return m.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			order.ID, order.CustomerName, order.CustomerEmail, order.Status, order.SubtotalCents, order.DiscountCents,
			order.ShippingCents, order.TotalCents, order.Rank, order.Version, order.CreatedAt, order.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i, l := range order.Lines {
			labels, err := json.Marshal(l.OptionLabels)
			if err != nil {
				return fmt.Errorf("encode option labels: %w", err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO order_lines (id, order_id, position, product_id, name, unit_price_cents,
					options_delta_cents, option_labels, quantity, discount_cents, discount_pinned)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				l.ID, order.ID, i, l.ProductID, l.Name, l.UnitPriceCents,
				l.OptionsDeltaCents, string(labels), l.Quantity, l.DiscountCents, l.DiscountPinned,
			)
			if err != nil {
				return fmt.Errorf("insert order line: %w", err)
			}
			if err := takeStock(ctx, tx, l.ProductID, l.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
}

func takeStock(ctx context.Context, tx *sql.Tx, productID string, quantity int) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE products SET stock = stock - ?
		WHERE id = ? AND stock >= ?`,
		quantity, productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("product %s: %w", productID, domain.ErrInsufficientStock)
	}
	return nil
}

func returnStock(ctx context.Context, tx *sql.Tx, productID string, quantity int) error {
	if _, err := tx.ExecContext(ctx, `UPDATE products SET stock = stock + ? WHERE id = ?`, quantity, productID); err != nil {
		return fmt.Errorf("return stock: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	o, err := scanOrder(m.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order: %w", notFound(err))
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, name, unit_price_cents, options_delta_cents,
			option_labels, quantity, discount_cents, discount_pinned
		FROM order_lines WHERE order_id = ? ORDER BY position`, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l domain.OrderedProduct
		var labels string
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Name, &l.UnitPriceCents, &l.OptionsDeltaCents,
			&labels, &l.Quantity, &l.DiscountCents, &l.DiscountPinned); err != nil {
			return domain.Order{}, fmt.Errorf("scan order line: %w", err)
		}
		if err := json.Unmarshal([]byte(labels), &l.OptionLabels); err != nil {
			return domain.Order{}, fmt.Errorf("decode option labels: %w", err)
		}
		o.Lines = append(o.Lines, l)
	}
	return o, rows.Err()
}

func (m *MySQLAdapter) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return m.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY status, board_rank`)
}

func (m *MySQLAdapter) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	return m.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE status = ? ORDER BY board_rank`, status)
}

func (m *MySQLAdapter) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) SaveOrderPricing(ctx context.Context, order domain.Order, expectedVersion int, stockDelta map[string]int) error {
	return m.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET subtotal_cents = ?, discount_cents = ?, total_cents = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`,
			order.SubtotalCents, order.DiscountCents, order.TotalCents, order.UpdatedAt, order.ID, expectedVersion,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if err := affected(res); err != nil {
			return err
		}

		for _, l := range order.Lines {
			_, err := tx.ExecContext(ctx, `
				UPDATE order_lines
				SET unit_price_cents = ?, quantity = ?, discount_cents = ?, discount_pinned = ?
				WHERE id = ? AND order_id = ?`,
				l.UnitPriceCents, l.Quantity, l.DiscountCents, l.DiscountPinned, l.ID, order.ID,
			)
			if err != nil {
				return fmt.Errorf("update order line: %w", err)
			}
		}

		for _, productID := range sortedKeys(stockDelta) {
			d := stockDelta[productID]
			switch {
			case d > 0:
				err = takeStock(ctx, tx, productID, d)
			case d < 0:
				err = returnStock(ctx, tx, productID, -d)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *MySQLAdapter) UpdateOrderStatus(ctx context.Context, u port.StatusUpdate) error {
	return m.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET status = ?, board_rank = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`,
			u.To, u.Rank, u.At, u.ID, u.ExpectedVersion,
		)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		if err := affected(res); err != nil {
			return err
		}

		if u.Restock {
			_, err := tx.ExecContext(ctx, `
				UPDATE products p
				JOIN (SELECT product_id, SUM(quantity) AS qty FROM order_lines WHERE order_id = ? GROUP BY product_id) l
					ON p.id = l.product_id
				SET p.stock = p.stock + l.qty`, u.ID)
			if err != nil {
				return fmt.Errorf("restock: %w", err)
			}
		}

		if u.From == u.To {
			return nil
		}
		return insertHistory(ctx, tx, domain.BoardKindOrders, u.ID, u.From, u.To, u.Actor, u.At)
	})
}

func (m *MySQLAdapter) UpdateOrderRanks(ctx context.Context, ranks map[string]int64) error {
	return m.updateRanks(ctx, "orders", ranks)
}

func (m *MySQLAdapter) OrderHistory(ctx context.Context, orderID string) ([]domain.StatusChange, error) {
	return m.history(ctx, domain.BoardKindOrders, orderID)
}
