package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/storefront/internal/core/board"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

func orderStatusNames() []string {
	out := make([]string, len(domain.OrderStatuses))
	for i, s := range domain.OrderStatuses {
		out[i] = string(s)
	}
	return out
}

func orderCard(o domain.Order) board.Card {
	return board.Card{
		ID:          o.ID,
		Status:      string(o.Status),
		Rank:        o.Rank,
		Version:     o.Version,
		Title:       o.CustomerName,
		Subtitle:    o.CustomerEmail,
		AmountCents: o.TotalCents,
		CreatedAt:   o.CreatedAt,
	}
}

// OrderBoard returns the order workflow board, served from the snapshot
// cache when fresh.
func (s *OrderService) OrderBoard(ctx context.Context) (board.Board, error) {
	return s.boards.load(ctx, ordersBoardKey, s.buildOrderBoard)
}

func (s *OrderService) buildOrderBoard(ctx context.Context) (board.Board, error) {
	orders, err := s.orders.ListOrders(ctx)
	if err != nil {
		return board.Board{}, fmt.Errorf("list orders: %w", err)
	}
	cards := make([]board.Card, len(orders))
	for i, o := range orders {
		cards[i] = orderCard(o)
	}
	return board.Build(domain.BoardKindOrders, orderStatusNames(), cards), nil
}

// MoveOrder drops an order card into a column at a position. The move only
// lands if the caller saw the latest version of the order; otherwise
// ErrVersionConflict is returned together with the board as stored, so the
// caller can redraw without another round trip.
func (s *OrderService) MoveOrder(ctx context.Context, in MoveInput) (MoveResult, error) {
	result, err := s.moveOrder(ctx, in)
	metrics.RecordBoardMove(string(domain.BoardKindOrders), moveOutcome(err))
	if errors.Is(err, domain.ErrVersionConflict) {
		fresh, ferr := s.buildOrderBoard(ctx)
		if ferr != nil {
			s.log.WithError(ferr).Warn("reload board after conflict")
			return MoveResult{}, err
		}
		return MoveResult{Board: fresh}, err
	}
	return result, err
}

func (s *OrderService) moveOrder(ctx context.Context, in MoveInput) (MoveResult, error) {
	order, err := s.orders.GetOrder(ctx, in.ID)
	if err != nil {
		return MoveResult{}, err
	}
	if order.Version != in.ExpectedVersion {
		return MoveResult{}, domain.ErrVersionConflict
	}
	to := domain.OrderStatus(in.ToStatus)
	if !order.Status.CanTransition(to) {
		return MoveResult{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, to)
	}

	siblings, err := s.orders.ListOrdersByStatus(ctx, to)
	if err != nil {
		return MoveResult{}, fmt.Errorf("list column: %w", err)
	}
	column := make([]board.Card, 0, len(siblings))
	for _, o := range siblings {
		if o.ID != order.ID {
			column = append(column, orderCard(o))
		}
	}
	rank, err := rankFor(ctx, column, in.ToIndex, s.orders.UpdateOrderRanks)
	if err != nil {
		return MoveResult{}, fmt.Errorf("rank card: %w", err)
	}

	now := s.clock.Now()
	restock := to == domain.OrderStatusCancelled && order.Status.RestocksOnCancel()
	err = s.orders.UpdateOrderStatus(ctx, port.StatusUpdate{
		ID:              order.ID,
		ExpectedVersion: in.ExpectedVersion,
		From:            string(order.Status),
		To:              string(to),
		Rank:            rank,
		Actor:           in.actor(),
		At:              now,
		Restock:         restock,
	})
	if err != nil {
		return MoveResult{}, err
	}
	if restock {
		s.restoreStock(ctx, order.Lines)
	}

	from := order.Status
	order.Status = to
	order.Rank = rank
	order.Version = in.ExpectedVersion + 1
	order.UpdatedAt = now

	s.boards.invalidate(ctx, ordersBoardKey)
	log := s.log.WithFields(logrus.Fields{"order_id": order.ID, "from": from, "to": to, "actor": in.actor()})
	if from != to {
		log.Info("order status changed")
		publish(ctx, s.publisher, log, RoutingOrderStatusChanged, StatusChangedEvent{
			Kind:    string(domain.BoardKindOrders),
			ID:      order.ID,
			From:    string(from),
			To:      string(to),
			Actor:   in.actor(),
			Version: order.Version,
			At:      now,
		})
	}

	b, err := s.OrderBoard(ctx)
	if err != nil {
		return MoveResult{}, err
	}
	return MoveResult{Card: orderCard(order), Board: b}, nil
}

func moveOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrVersionConflict):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid"
	case errors.Is(err, domain.ErrEventFull):
		return "full"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
