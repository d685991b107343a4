package board

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/core/domain"
)

var statuses = []string{"pending", "paid", "shipped"}

func sampleBoard() Board {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return Build(domain.BoardKindOrders, statuses, []Card{
		{ID: "b", Status: "pending", Rank: 2048, Version: 1, CreatedAt: now},
		{ID: "a", Status: "pending", Rank: 1024, Version: 1, CreatedAt: now},
		{ID: "c", Status: "paid", Rank: 1024, Version: 3, CreatedAt: now},
		{ID: "x", Status: "archived", Rank: 1, CreatedAt: now},
	})
}

func ids(col Column) []string {
	out := make([]string, len(col.Cards))
	for i, c := range col.Cards {
		out[i] = c.ID
	}
	return out
}

func TestBuild_GroupsAndSorts(t *testing.T) {
	b := sampleBoard()
	require.Len(t, b.Columns, 3)
	assert.Equal(t, []string{"a", "b"}, ids(b.Columns[0]))
	assert.Equal(t, []string{"c"}, ids(b.Columns[1]))
	assert.Empty(t, b.Columns[2].Cards)
	assert.Equal(t, 3, b.Count(), "cards in unknown columns are dropped")
}

func TestSort_TieBreaks(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cards := []Card{
		{ID: "z", Rank: 5, CreatedAt: t0},
		{ID: "y", Rank: 5, CreatedAt: t0.Add(-time.Minute)},
		{ID: "a", Rank: 5, CreatedAt: t0},
	}
	Sort(cards)
	assert.Equal(t, "y", cards[0].ID)
	assert.Equal(t, "a", cards[1].ID)
	assert.Equal(t, "z", cards[2].ID)
}

func TestRankAt(t *testing.T) {
	cards := []Card{{Rank: 1024}, {Rank: 2048}, {Rank: 2049}}

	r, err := RankAt(nil, 3)
	require.NoError(t, err)
	assert.Equal(t, RankStep, r)

	r, err = RankAt(cards, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(512), r)

	r, err = RankAt(cards, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1536), r)

	r, err = RankAt(cards, 99)
	require.NoError(t, err)
	assert.Equal(t, int64(2049)+RankStep, r)

	_, err = RankAt(cards, 2)
	assert.ErrorIs(t, err, ErrNoGap)

	_, err = RankAt([]Card{{Rank: 1}}, 0)
	assert.ErrorIs(t, err, ErrNoGap)
}

func TestApply_MovesAcrossColumns(t *testing.T) {
	b := sampleBoard()

	next, err := b.Apply(Move{CardID: "a", ExpectedVersion: 1, ToStatus: "paid", ToIndex: 0})
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, ids(next.Columns[0]))
	assert.Equal(t, []string{"a", "c"}, ids(next.Columns[1]))
	moved, _, ok := next.Find("a")
	require.True(t, ok)
	assert.Equal(t, "paid", moved.Status)
	assert.Equal(t, 2, moved.Version)
	assert.Less(t, moved.Rank, int64(1024))

	assert.Equal(t, []string{"a", "b"}, ids(b.Columns[0]), "original board must not change")
}

func TestApply_ReordersWithinColumn(t *testing.T) {
	b := sampleBoard()
	next, err := b.Apply(Move{CardID: "a", ExpectedVersion: 1, ToStatus: "pending", ToIndex: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(next.Columns[0]))
}

func TestApply_RebalancesWhenNoGap(t *testing.T) {
	b := Build(domain.BoardKindOrders, statuses, []Card{
		{ID: "a", Status: "pending", Rank: 10},
		{ID: "b", Status: "pending", Rank: 11},
		{ID: "m", Status: "paid", Rank: 1024, Version: 0},
	})
	next, err := b.Apply(Move{CardID: "m", ExpectedVersion: 0, ToStatus: "pending", ToIndex: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "m", "b"}, ids(next.Columns[0]))
	ranks := []int64{}
	for _, c := range next.Columns[0].Cards {
		ranks = append(ranks, c.Rank)
	}
	assert.IsIncreasing(t, ranks)
}

func TestApply_Errors(t *testing.T) {
	b := sampleBoard()

	_, err := b.Apply(Move{CardID: "nope", ToStatus: "paid"})
	assert.ErrorIs(t, err, ErrCardNotFound)

	_, err = b.Apply(Move{CardID: "c", ExpectedVersion: 2, ToStatus: "shipped"})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	_, err = b.Apply(Move{CardID: "c", ExpectedVersion: 3, ToStatus: "lost"})
	assert.ErrorIs(t, err, ErrUnknownColumn)
}
