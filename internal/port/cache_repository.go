package port

import (
	"context"
	"time"
)

type CacheRepository interface {
	// DecrementStock atomically decreases product stock, returns false if insufficient
	DecrementStock(ctx context.Context, productID string, quantity int) (bool, error)

	// IncrementStock restores stock (rollback or cancellation)
	IncrementStock(ctx context.Context, productID string, quantity int) error

	// SetStock overwrites the cached stock level
	SetStock(ctx context.Context, productID string, quantity int) error

	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReserveSeats atomically takes seats from an event, returns false if not enough remain
	ReserveSeats(ctx context.Context, eventID string, seats int) (bool, error)

	// ReleaseSeats gives seats back to an event
	ReleaseSeats(ctx context.Context, eventID string, seats int) error

	// SetSeats overwrites the number of seats still available
	SetSeats(ctx context.Context, eventID string, available int) error

	// GetBoard returns a cached board snapshot; ok is false on a miss
	GetBoard(ctx context.Context, key string) (data []byte, ok bool, err error)

	// BoardGeneration returns the invalidation counter of a board; read it
	// before loading the rows a snapshot is built from
	BoardGeneration(ctx context.Context, key string) (int64, error)

	// PutBoard stores a snapshot only if the board's generation still equals
	// generation; stored is false when an invalidation happened in between
	PutBoard(ctx context.Context, key string, data []byte, ttl time.Duration, generation int64) (stored bool, err error)

	// InvalidateBoard bumps the generation and drops the snapshot so the next
	// read rebuilds it from the database
	InvalidateBoard(ctx context.Context, key string) error
}
