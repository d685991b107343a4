package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/storefront/internal/core/board"
	"github.com/rl1809/storefront/internal/port"
)

const ordersBoardKey = "orders"

func registrationsBoardKey(eventID string) string {
	return "registrations:" + eventID
}

// boardCache keeps rendered boards in the cache between writes. Every write
// to a board invalidates its snapshot so the next read revalidates against
// the database. Snapshots are stored against the generation read before the
// rows were loaded, so a read racing a write cannot put back a board the
// write already invalidated. Cache failures are logged and otherwise ignored.
type boardCache struct {
	cache port.CacheRepository
	ttl   time.Duration
	log   logrus.FieldLogger
}

func newBoardCache(d Deps) *boardCache {
	return &boardCache{cache: d.Cache, ttl: d.BoardCacheTTL, log: d.logger()}
}

func (b *boardCache) enabled() bool {
	return b.cache != nil && b.ttl > 0
}

// load returns the snapshot under key or builds the board and stores it.
func (b *boardCache) load(ctx context.Context, key string, build func(context.Context) (board.Board, error)) (board.Board, error) {
	if !b.enabled() {
		return build(ctx)
	}
	if bd, ok := b.get(ctx, key); ok {
		return bd, nil
	}
	gen, err := b.cache.BoardGeneration(ctx, key)
	if err != nil {
		b.log.WithError(err).WithField("board", key).Warn("board generation read failed")
		return build(ctx)
	}
	bd, err := build(ctx)
	if err != nil {
		return board.Board{}, err
	}
	b.put(ctx, key, bd, gen)
	return bd, nil
}

func (b *boardCache) get(ctx context.Context, key string) (board.Board, bool) {
	data, ok, err := b.cache.GetBoard(ctx, key)
	if err != nil {
		b.log.WithError(err).WithField("board", key).Warn("board cache read failed")
		return board.Board{}, false
	}
	if !ok {
		return board.Board{}, false
	}
	var bd board.Board
	if err := json.Unmarshal(data, &bd); err != nil {
		b.log.WithError(err).WithField("board", key).Warn("board cache entry unreadable")
		return board.Board{}, false
	}
	return bd, true
}

func (b *boardCache) put(ctx context.Context, key string, bd board.Board, gen int64) {
	data, err := json.Marshal(bd)
	if err != nil {
		b.log.WithError(err).WithField("board", key).Warn("board encode failed")
		return
	}
	stored, err := b.cache.PutBoard(ctx, key, data, b.ttl, gen)
	if err != nil {
		b.log.WithError(err).WithField("board", key).Warn("board cache write failed")
		return
	}
	if !stored {
		b.log.WithFields(logrus.Fields{"board": key, "generation": gen}).Debug("board snapshot superseded")
	}
}

func (b *boardCache) invalidate(ctx context.Context, key string) {
	if b.cache == nil {
		return
	}
	if err := b.cache.InvalidateBoard(ctx, key); err != nil {
		b.log.WithError(err).WithField("board", key).Warn("board cache invalidation failed")
	}
}

// MoveInput is a drag-and-drop request against a board.
type MoveInput struct {
	ID              string
	ExpectedVersion int
	ToStatus        string
	ToIndex         int
	Actor           string
}

// MoveResult carries the moved card and the board as stored after the move.
// On ErrVersionConflict only Board is set, read straight from the database.
type MoveResult struct {
	Card  board.Card
	Board board.Board
}

func (in MoveInput) actor() string {
	if in.Actor == "" {
		return "admin"
	}
	return in.Actor
}

// rankFor picks the rank for inserting at index into column, rebalancing
// the stored column through rerank when neighbours are packed.
func rankFor(ctx context.Context, column []board.Card, index int, rerank func(context.Context, map[string]int64) error) (int64, error) {
	board.Sort(column)
	rank, err := board.RankAt(column, index)
	if !errors.Is(err, board.ErrNoGap) {
		return rank, err
	}
	board.Rebalance(column)
	ranks := make(map[string]int64, len(column))
	for _, c := range column {
		ranks[c.ID] = c.Rank
	}
	if err := rerank(ctx, ranks); err != nil {
		return 0, err
	}
	return board.RankAt(column, index)
}

// newCardRank places fresh records at the bottom of their column.
func newCardRank(t time.Time) int64 {
	return t.UnixMilli()
}
