package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
)

const reviewColumns = `id, product_id, author_name, email, rating, title, body, status, created_at`

func (m *MySQLAdapter) CreateReview(ctx context.Context, r domain.Review) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO reviews (`+reviewColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProductID, r.AuthorName, r.Email, r.Rating, r.Title, r.Body, r.Status, r.CreatedAt,
	)
	switch {
	case isDuplicate(err):
		return domain.ErrDuplicateReview
	case mysqlErrorIs(err, errNoReferenced):
		return fmt.Errorf("product %s: %w", r.ProductID, domain.ErrNotFound)
	case err != nil:
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func scanReview(row interface{ Scan(...any) error }) (domain.Review, error) {
	var r domain.Review
	err := row.Scan(&r.ID, &r.ProductID, &r.AuthorName, &r.Email, &r.Rating, &r.Title, &r.Body, &r.Status, &r.CreatedAt)
	return r, err
}

func (m *MySQLAdapter) GetReview(ctx context.Context, id string) (domain.Review, error) {
	r, err := scanReview(m.db.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = ?`, id))
	if err != nil {
		return domain.Review{}, fmt.Errorf("query review: %w", notFound(err))
	}
	return r, nil
}

func (m *MySQLAdapter) SetReviewStatus(ctx context.Context, id string, status domain.ReviewStatus) error {
	res, err := m.db.ExecContext(ctx, `UPDATE reviews SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	return touched(ctx, m.db, res, "reviews", id)
}

func (m *MySQLAdapter) ListReviews(ctx context.Context, productID string, status domain.ReviewStatus) ([]domain.Review, error) {
	var where []string
	var args []any
	if productID != "" {
		where = append(where, "product_id = ?")
		args = append(args, productID)
	}
	if status != "" {
		where = append(where, "status = ?")
		args = append(args, status)
	}
	query := `SELECT ` + reviewColumns + ` FROM reviews`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}

	rows, err := m.db.QueryContext(ctx, query+` ORDER BY created_at DESC, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) RatingHistogram(ctx context.Context, productID string) ([5]int, error) {
	var hist [5]int
	rows, err := m.db.QueryContext(ctx, `
		SELECT rating, COUNT(*) FROM reviews
		WHERE product_id = ? AND status = ?
		GROUP BY rating`, productID, domain.ReviewStatusApproved)
	if err != nil {
		return hist, fmt.Errorf("query ratings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rating, count int
		if err := rows.Scan(&rating, &count); err != nil {
			return hist, fmt.Errorf("scan rating: %w", err)
		}
		if rating >= 1 && rating <= 5 {
			hist[rating-1] = count
		}
	}
	return hist, rows.Err()
}

const pageColumns = `id, slug, title, body, published, version, updated_at, published_at`

func scanPage(row interface{ Scan(...any) error }) (domain.ContentPage, error) {
	var p domain.ContentPage
	var publishedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.Slug, &p.Title, &p.Body, &p.Published, &p.Version, &p.UpdatedAt, &publishedAt); err != nil {
		return domain.ContentPage{}, err
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		p.PublishedAt = &t
	}
	return p, nil
}

func (m *MySQLAdapter) CreatePage(ctx context.Context, p domain.ContentPage) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO content_pages (`+pageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Slug, p.Title, p.Body, p.Published, p.Version, p.UpdatedAt, p.PublishedAt,
	)
	if isDuplicate(err) {
		return domain.ErrDuplicateSlug
	}
	if err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) UpdatePage(ctx context.Context, p domain.ContentPage, expectedVersion int) error {
	res, err := m.db.ExecContext(ctx, `
		UPDATE content_pages
		SET title = ?, body = ?, version = version + 1, updated_at = ?
		WHERE slug = ? AND version = ?`,
		p.Title, p.Body, p.UpdatedAt, p.Slug, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update page: %w", err)
	}
	return affected(res)
}

func (m *MySQLAdapter) GetPageBySlug(ctx context.Context, slug string) (domain.ContentPage, error) {
	p, err := scanPage(m.db.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM content_pages WHERE slug = ?`, slug))
	if err != nil {
		return domain.ContentPage{}, fmt.Errorf("query page: %w", notFound(err))
	}
	return p, nil
}

func (m *MySQLAdapter) ListPages(ctx context.Context) ([]domain.ContentPage, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT `+pageColumns+` FROM content_pages ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	defer rows.Close()

	var out []domain.ContentPage
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetPublished flips visibility. Unpublishing keeps published_at; publishing
// again overwrites it.
func (m *MySQLAdapter) SetPublished(ctx context.Context, slug string, published bool, at time.Time) error {
	query := `UPDATE content_pages SET published = FALSE WHERE slug = ?`
	args := []any{slug}
	if published {
		query = `UPDATE content_pages SET published = TRUE, published_at = ? WHERE slug = ?`
		args = []any{at, slug}
	}
	res, err := m.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("set published: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := m.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM content_pages WHERE slug = ?)`, slug).Scan(&exists); err != nil {
			return fmt.Errorf("check page: %w", err)
		}
		if !exists {
			return domain.ErrNotFound
		}
	}
	return nil
}
