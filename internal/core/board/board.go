// Package board arranges workflow records into Kanban columns and computes
// card positions for drag-and-drop moves.
package board

import (
	"errors"
	"sort"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
)

// RankStep is the spacing between cards after a rebalance and at column ends.
const RankStep int64 = 1024

var (
	ErrNoGap         = errors.New("no rank gap between neighbours")
	ErrCardNotFound  = errors.New("card not found")
	ErrUnknownColumn = errors.New("unknown column")
)

type Card struct {
	ID          string
	Status      string
	Rank        int64
	Version     int
	Title       string
	Subtitle    string
	AmountCents int64
	CreatedAt   time.Time
}

type Column struct {
	Status string
	Cards  []Card
}

type Board struct {
	Kind    domain.BoardKind
	Columns []Column
}

// Move is a drag-and-drop request: put card ID into column ToStatus at
// position ToIndex, provided its version still equals ExpectedVersion.
type Move struct {
	CardID          string
	ExpectedVersion int
	ToStatus        string
	ToIndex         int
}

// Build groups cards into one column per status, in the order given.
// Cards whose status is not listed are dropped.
func Build(kind domain.BoardKind, statuses []string, cards []Card) Board {
	b := Board{Kind: kind, Columns: make([]Column, len(statuses))}
	idx := make(map[string]int, len(statuses))
	for i, s := range statuses {
		b.Columns[i] = Column{Status: s, Cards: []Card{}}
		idx[s] = i
	}
	for _, c := range cards {
		i, ok := idx[c.Status]
		if !ok {
			continue
		}
		b.Columns[i].Cards = append(b.Columns[i].Cards, c)
	}
	for i := range b.Columns {
		Sort(b.Columns[i].Cards)
	}
	return b
}

// Sort orders cards by rank, then creation time, then id.
func Sort(cards []Card) {
	sort.SliceStable(cards, func(a, b int) bool {
		ca, cb := cards[a], cards[b]
		if ca.Rank != cb.Rank {
			return ca.Rank < cb.Rank
		}
		if !ca.CreatedAt.Equal(cb.CreatedAt) {
			return ca.CreatedAt.Before(cb.CreatedAt)
		}
		return ca.ID < cb.ID
	})
}

// Find returns the card with the given id and the index of its column.
func (b Board) Find(id string) (Card, int, bool) {
	for ci, col := range b.Columns {
		for _, c := range col.Cards {
			if c.ID == id {
				return c, ci, true
			}
		}
	}
	return Card{}, -1, false
}

func (b Board) Column(status string) (Column, bool) {
	for _, col := range b.Columns {
		if col.Status == status {
			return col, true
		}
	}
	return Column{}, false
}

// Count returns the total number of cards.
func (b Board) Count() int {
	n := 0
	for _, col := range b.Columns {
		n += len(col.Cards)
	}
	return n
}

// Apply returns a copy of b with the move performed and the card's rank
// and version updated, leaving b untouched. It is the optimistic preview of
// a move; the server remains the judge of whether it sticks.
func (b Board) Apply(m Move) (Board, error) {
	card, _, ok := b.Find(m.CardID)
	if !ok {
		return Board{}, ErrCardNotFound
	}
	if card.Version != m.ExpectedVersion {
		return Board{}, domain.ErrVersionConflict
	}
	if _, ok := b.Column(m.ToStatus); !ok {
		return Board{}, ErrUnknownColumn
	}

	out := Board{Kind: b.Kind, Columns: make([]Column, len(b.Columns))}
	for i, col := range b.Columns {
		cards := make([]Card, 0, len(col.Cards))
		for _, c := range col.Cards {
			if c.ID != m.CardID {
				cards = append(cards, c)
			}
		}
		out.Columns[i] = Column{Status: col.Status, Cards: cards}
	}

	for i := range out.Columns {
		if out.Columns[i].Status != m.ToStatus {
			continue
		}
		target := out.Columns[i].Cards
		rank, err := RankAt(target, m.ToIndex)
		if errors.Is(err, ErrNoGap) {
			Rebalance(target)
			rank, err = RankAt(target, m.ToIndex)
		}
		if err != nil {
			return Board{}, err
		}
		card.Status = m.ToStatus
		card.Rank = rank
		card.Version++

		pos := clampIndex(m.ToIndex, len(target))
		target = append(target, Card{})
		copy(target[pos+1:], target[pos:])
		target[pos] = card
		out.Columns[i].Cards = target
	}
	return out, nil
}

// RankAt returns the rank for a card inserted at index into cards, which
// must already be sorted and must not contain the moving card. Indexes past
// either end are clamped.
func RankAt(cards []Card, index int) (int64, error) {
	if len(cards) == 0 {
		return RankStep, nil
	}
	index = clampIndex(index, len(cards))
	switch index {
	case 0:
		first := cards[0].Rank
		if first <= 1 {
			return 0, ErrNoGap
		}
		if first > RankStep {
			return first - RankStep, nil
		}
		return first / 2, nil
	case len(cards):
		return cards[len(cards)-1].Rank + RankStep, nil
	}
	prev, next := cards[index-1].Rank, cards[index].Rank
	if next-prev < 2 {
		return 0, ErrNoGap
	}
	return prev + (next-prev)/2, nil
}

// Rebalance reassigns evenly spaced ranks to cards in their current order.
func Rebalance(cards []Card) {
	for i := range cards {
		cards[i].Rank = RankStep * int64(i+1)
	}
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
