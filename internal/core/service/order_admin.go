package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/pricing"
)

func (s *OrderService) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return s.orders.GetOrder(ctx, id)
}

func (s *OrderService) History(ctx context.Context, id string) ([]domain.StatusChange, error) {
	if _, err := s.orders.GetOrder(ctx, id); err != nil {
		return nil, err
	}
	return s.orders.OrderHistory(ctx, id)
}

type UpdateLineInput struct {
	OrderID         string
	LineID          string
	ExpectedVersion int
	UnitPriceCents  int64
	Quantity        int
}

// UpdateLine applies an inline price/quantity edit. A quantity change takes
// or returns the difference from product stock.
func (s *OrderService) UpdateLine(ctx context.Context, in UpdateLineInput) (domain.Order, error) {
	order, err := s.editableOrder(ctx, in.OrderID, in.ExpectedVersion)
	if err != nil {
		return domain.Order{}, err
	}
	i, ok := order.Line(in.LineID)
	if !ok {
		return domain.Order{}, fmt.Errorf("line %s: %w", in.LineID, domain.ErrNotFound)
	}

	lines, _, err := pricing.UpdateLine(order.Lines, i, in.UnitPriceCents, in.Quantity, order.DiscountCents)
	if err != nil {
		return domain.Order{}, err
	}

	productID := order.Lines[i].ProductID
	delta := in.Quantity - order.Lines[i].Quantity
	var stockDelta map[string]int
	if delta != 0 {
		stockDelta = map[string]int{productID: delta}
	}
	if delta > 0 {
		ok, err := s.cache.DecrementStock(ctx, productID, delta)
		if err != nil {
			return domain.Order{}, fmt.Errorf("stock decrement failed: %w", err)
		}
		if !ok {
			return domain.Order{}, domain.ErrInsufficientStock
		}
	}

	pricing.Apply(&order, lines)
	if err := s.savePricing(ctx, &order, in.ExpectedVersion, stockDelta); err != nil {
		if delta > 0 {
			s.restoreStock(ctx, []domain.OrderedProduct{{ProductID: productID, Quantity: delta}})
		}
		return domain.Order{}, err
	}
	if delta < 0 {
		s.restoreStock(ctx, []domain.OrderedProduct{{ProductID: productID, Quantity: -delta}})
	}
	return order, nil
}

// SetDiscount changes the order-level discount and spreads it over the lines.
func (s *OrderService) SetDiscount(ctx context.Context, orderID string, expectedVersion int, discountCents int64) (domain.Order, error) {
	order, err := s.editableOrder(ctx, orderID, expectedVersion)
	if err != nil {
		return domain.Order{}, err
	}
	lines, err := pricing.Distribute(order.Lines, discountCents)
	if err != nil {
		return domain.Order{}, err
	}
	pricing.Apply(&order, lines)
	if err := s.savePricing(ctx, &order, expectedVersion, nil); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// SetLineDiscount pins one line's discount and rebalances the others so the
// order discount stays the same.
func (s *OrderService) SetLineDiscount(ctx context.Context, orderID, lineID string, expectedVersion int, amountCents int64) (domain.Order, error) {
	order, err := s.editableOrder(ctx, orderID, expectedVersion)
	if err != nil {
		return domain.Order{}, err
	}
	i, ok := order.Line(lineID)
	if !ok {
		return domain.Order{}, fmt.Errorf("line %s: %w", lineID, domain.ErrNotFound)
	}
	lines, err := pricing.SetLineDiscount(order.Lines, i, amountCents, order.DiscountCents)
	if err != nil {
		return domain.Order{}, err
	}
	pricing.Apply(&order, lines)
	if err := s.savePricing(ctx, &order, expectedVersion, nil); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (s *OrderService) editableOrder(ctx context.Context, id string, expectedVersion int) (domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Version != expectedVersion {
		return domain.Order{}, domain.ErrVersionConflict
	}
	if !order.Status.Editable() {
		return domain.Order{}, fmt.Errorf("%w: order is %s", domain.ErrValidation, order.Status)
	}
	return order, nil
}

func (s *OrderService) savePricing(ctx context.Context, order *domain.Order, expectedVersion int, stockDelta map[string]int) error {
	order.UpdatedAt = s.clock.Now()
	if err := s.orders.SaveOrderPricing(ctx, *order, expectedVersion, stockDelta); err != nil {
		return err
	}
	order.Version = expectedVersion + 1
	s.boards.invalidate(ctx, ordersBoardKey)
	s.log.WithFields(logrus.Fields{
		"order_id":       order.ID,
		"version":        order.Version,
		"discount_cents": order.DiscountCents,
		"total_cents":    order.TotalCents,
	}).Info("order pricing updated")
	return nil
}
