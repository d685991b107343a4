package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rl1809/storefront/internal/core/domain"
)

const productColumns = `id, sku, name, description, price_cents, stock, active, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.PriceCents, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (m *MySQLAdapter) CreateProduct(ctx context.Context, p domain.Product) error {
	return m.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO products (`+productColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.SKU, p.Name, p.Description, p.PriceCents, p.Stock, p.Active, p.CreatedAt, p.UpdatedAt,
		)
		if isDuplicate(err) {
			return domain.ErrDuplicateSKU
		}
		if err != nil {
			return fmt.Errorf("insert product: %w", err)
		}
		for _, opt := range p.Options {
			opt.ProductID = p.ID
			if err := insertOption(ctx, tx, opt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *MySQLAdapter) UpdateProduct(ctx context.Context, p domain.Product) error {
	res, err := m.db.ExecContext(ctx, `
		UPDATE products
		SET sku = ?, name = ?, description = ?, price_cents = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		p.SKU, p.Name, p.Description, p.PriceCents, p.Active, p.UpdatedAt, p.ID,
	)
	if isDuplicate(err) {
		return domain.ErrDuplicateSKU
	}
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return touched(ctx, m.db, res, "products", p.ID)
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := scanProduct(m.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id))
	if err != nil {
		return domain.Product{}, fmt.Errorf("query product: %w", notFound(err))
	}
	opts, err := m.options(ctx, []string{id})
	if err != nil {
		return domain.Product{}, err
	}
	p.Options = opts[id]
	return p, nil
}

func (m *MySQLAdapter) GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	products, err := m.queryProducts(ctx, `SELECT `+productColumns+` FROM products WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (m *MySQLAdapter) ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	if activeOnly {
		query += ` WHERE active = TRUE`
	}
	return m.queryProducts(ctx, query+` ORDER BY name, id`)
}

func (m *MySQLAdapter) queryProducts(ctx context.Context, query string, args ...any) ([]domain.Product, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	var ids []string
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	opts, err := m.options(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range products {
		products[i].Options = opts[products[i].ID]
	}
	return products, nil
}

func (m *MySQLAdapter) options(ctx context.Context, productIDs []string) (map[string][]domain.CustomizationOption, error) {
	out := make(map[string][]domain.CustomizationOption)
	if len(productIDs) == 0 {
		return out, nil
	}
	args := make([]any, len(productIDs))
	for i, id := range productIDs {
		args[i] = id
	}
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, product_id, option_group, label, price_delta_cents
		FROM customization_options WHERE product_id IN (`+placeholders(len(args))+`)
		ORDER BY option_group, label`, args...)
	if err != nil {
		return nil, fmt.Errorf("query options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o domain.CustomizationOption
		if err := rows.Scan(&o.ID, &o.ProductID, &o.Group, &o.Label, &o.PriceDeltaCents); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		out[o.ProductID] = append(out[o.ProductID], o)
	}
	return out, rows.Err()
}

func insertOption(ctx context.Context, q queryer, opt domain.CustomizationOption) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO customization_options (id, product_id, option_group, label, price_delta_cents)
		VALUES (?, ?, ?, ?, ?)`,
		opt.ID, opt.ProductID, opt.Group, opt.Label, opt.PriceDeltaCents,
	)
	switch {
	case isDuplicate(err):
		return fmt.Errorf("%w: option %s/%s already exists", domain.ErrValidation, opt.Group, opt.Label)
	case mysqlErrorIs(err, errNoReferenced):
		return fmt.Errorf("product %s: %w", opt.ProductID, domain.ErrNotFound)
	case err != nil:
		return fmt.Errorf("insert option: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) AddOption(ctx context.Context, opt domain.CustomizationOption) error {
	return insertOption(ctx, m.db, opt)
}

func (m *MySQLAdapter) RemoveOption(ctx context.Context, optionID string) error {
	res, err := m.db.ExecContext(ctx, `DELETE FROM customization_options WHERE id = ?`, optionID)
	if err != nil {
		return fmt.Errorf("delete option: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (m *MySQLAdapter) SetStock(ctx context.Context, productID string, stock int) error {
	res, err := m.db.ExecContext(ctx, `UPDATE products SET stock = ? WHERE id = ?`, stock, productID)
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	return touched(ctx, m.db, res, "products", productID)
}
