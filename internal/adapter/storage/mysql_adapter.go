package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/storefront/internal/core/domain"
)

// MySQL server error numbers mapped to domain errors.
const (
	errDupEntry     = 1062
	errNoReferenced = 1452
)

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (m *MySQLAdapter) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func mysqlErrorIs(err error, number uint16) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == number
}

func isDuplicate(err error) bool {
	return mysqlErrorIs(err, errDupEntry)
}

// affected returns ErrVersionConflict when an optimistic update matched no
// row.
func affected(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

// touched reports ErrNotFound when an unversioned update hit no row. MySQL
// reports zero affected rows for an unchanged row, so existence is checked
// before giving up.
func touched(ctx context.Context, q queryer, res sql.Result, table, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}
	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = ?)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check %s: %w", table, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func insertHistory(ctx context.Context, q queryer, kind domain.BoardKind, entityID, from, to, actor string, at any) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO status_history (kind, entity_id, from_status, to_status, actor, changed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(kind), entityID, from, to, actor, at,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) history(ctx context.Context, kind domain.BoardKind, entityID string) ([]domain.StatusChange, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT entity_id, from_status, to_status, actor, changed_at
		FROM status_history WHERE kind = ? AND entity_id = ? ORDER BY id`,
		string(kind), entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []domain.StatusChange
	for rows.Next() {
		c := domain.StatusChange{Kind: kind}
		if err := rows.Scan(&c.EntityID, &c.From, &c.To, &c.Actor, &c.At); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// updateRanks writes board positions in id order so concurrent rebalances
// lock rows in the same sequence.
func (m *MySQLAdapter) updateRanks(ctx context.Context, table string, ranks map[string]int64) error {
	if len(ranks) == 0 {
		return nil
	}
	return m.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range sortedKeys(ranks) {
			if _, err := tx.ExecContext(ctx, `UPDATE `+table+` SET board_rank = ? WHERE id = ?`, ranks[id], id); err != nil {
				return fmt.Errorf("update rank %s: %w", id, err)
			}
		}
		return nil
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
