package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const eventColumns = `id, slug, title, starts_at, capacity, price_cents, published, created_at, updated_at`

func scanEvent(row interface{ Scan(...any) error }) (domain.Event, error) {
	var e domain.Event
	err := row.Scan(&e.ID, &e.Slug, &e.Title, &e.StartsAt, &e.Capacity, &e.PriceCents, &e.Published, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (m *MySQLAdapter) CreateEvent(ctx context.Context, e domain.Event) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Slug, e.Title, e.StartsAt, e.Capacity, e.PriceCents, e.Published, e.CreatedAt, e.UpdatedAt,
	)
	if isDuplicate(err) {
		return domain.ErrDuplicateSlug
	}
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) UpdateEvent(ctx context.Context, e domain.Event) error {
	res, err := m.db.ExecContext(ctx, `
		UPDATE events
		SET slug = ?, title = ?, starts_at = ?, capacity = ?, price_cents = ?, published = ?, updated_at = ?
		WHERE id = ?`,
		e.Slug, e.Title, e.StartsAt, e.Capacity, e.PriceCents, e.Published, e.UpdatedAt, e.ID,
	)
	if isDuplicate(err) {
		return domain.ErrDuplicateSlug
	}
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return touched(ctx, m.db, res, "events", e.ID)
}

func (m *MySQLAdapter) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	e, err := scanEvent(m.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if err != nil {
		return domain.Event{}, fmt.Errorf("query event: %w", notFound(err))
	}
	return e, nil
}

func (m *MySQLAdapter) ListEvents(ctx context.Context, publishedOnly bool) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events`
	if publishedOnly {
		query += ` WHERE published = TRUE`
	}
	rows, err := m.db.QueryContext(ctx, query+` ORDER BY starts_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) HeldSeats(ctx context.Context, eventID string) (int, error) {
	var held int
	err := m.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(seats), 0) FROM event_registrations
		WHERE event_id = ? AND status IN (?, ?, ?)`,
		eventID, domain.RegistrationStatusPending, domain.RegistrationStatusConfirmed, domain.RegistrationStatusCheckedIn,
	).Scan(&held)
	if err != nil {
		return 0, fmt.Errorf("sum held seats: %w", err)
	}
	return held, nil
}

const registrationColumns = `id, event_id, attendee_name, email, seats, status, board_rank, version, created_at, updated_at`

func scanRegistration(row interface{ Scan(...any) error }) (domain.EventRegistration, error) {
	var r domain.EventRegistration
	err := row.Scan(&r.ID, &r.EventID, &r.AttendeeName, &r.Email, &r.Seats, &r.Status, &r.Rank, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// CreateRegistration locks the event row so two sign-ups with the same
// email cannot both pass the duplicate check.
func (m *MySQLAdapter) CreateRegistration(ctx context.Context, r domain.EventRegistration) error {
	return m.withTx(ctx, func(tx *sql.Tx) error {
		var id string
		if err := tx.QueryRowContext(ctx, `SELECT id FROM events WHERE id = ? FOR UPDATE`, r.EventID).Scan(&id); err != nil {
			return fmt.Errorf("lock event: %w", notFound(err))
		}

		var active int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM event_registrations
			WHERE event_id = ? AND email = ? AND status <> ?`,
			r.EventID, r.Email, domain.RegistrationStatusCancelled,
		).Scan(&active)
		if err != nil {
			return fmt.Errorf("check duplicate registration: %w", err)
		}
		if active > 0 {
			return domain.ErrDuplicateRegistration
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO event_registrations (`+registrationColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.EventID, r.AttendeeName, r.Email, r.Seats, r.Status, r.Rank, r.Version, r.CreatedAt, r.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert registration: %w", err)
		}
		return nil
	})
}

func (m *MySQLAdapter) GetRegistration(ctx context.Context, id string) (domain.EventRegistration, error) {
	r, err := scanRegistration(m.db.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM event_registrations WHERE id = ?`, id))
	if err != nil {
		return domain.EventRegistration{}, fmt.Errorf("query registration: %w", notFound(err))
	}
	return r, nil
}

func (m *MySQLAdapter) ListRegistrations(ctx context.Context, eventID string) ([]domain.EventRegistration, error) {
	return m.queryRegistrations(ctx, `
		SELECT `+registrationColumns+` FROM event_registrations
		WHERE event_id = ? ORDER BY status, board_rank`, eventID)
}

func (m *MySQLAdapter) ListRegistrationsByStatus(ctx context.Context, eventID string, status domain.RegistrationStatus) ([]domain.EventRegistration, error) {
	return m.queryRegistrations(ctx, `
		SELECT `+registrationColumns+` FROM event_registrations
		WHERE event_id = ? AND status = ? ORDER BY board_rank`, eventID, status)
}

func (m *MySQLAdapter) ListExpiredPending(ctx context.Context, createdBefore time.Time) ([]domain.EventRegistration, error) {
	return m.queryRegistrations(ctx, `
		SELECT `+registrationColumns+` FROM event_registrations
		WHERE status = ? AND created_at < ? ORDER BY created_at`,
		domain.RegistrationStatusPending, createdBefore)
}

func (m *MySQLAdapter) queryRegistrations(ctx context.Context, query string, args ...any) ([]domain.EventRegistration, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query registrations: %w", err)
	}
	defer rows.Close()

	var out []domain.EventRegistration
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) UpdateRegistrationStatus(ctx context.Context, u port.StatusUpdate) error {
	return m.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE event_registrations
			SET status = ?, board_rank = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`,
			u.To, u.Rank, u.At, u.ID, u.ExpectedVersion,
		)
		if err != nil {
			return fmt.Errorf("update registration status: %w", err)
		}
		if err := affected(res); err != nil {
			return err
		}
		if u.From == u.To {
			return nil
		}
		return insertHistory(ctx, tx, domain.BoardKindRegistrations, u.ID, u.From, u.To, u.Actor, u.At)
	})
}

func (m *MySQLAdapter) UpdateRegistrationRanks(ctx context.Context, ranks map[string]int64) error {
	return m.updateRanks(ctx, "event_registrations", ranks)
}
