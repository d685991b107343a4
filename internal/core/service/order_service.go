package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/storefront/internal/clock"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/pricing"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

type OrderService struct {
	cache      port.CacheRepository
	catalog    port.CatalogRepository
	orders     port.OrderRepository
	publisher  port.EventPublisher
	boards     *boardCache
	clock      clock.Clock
	log        logrus.FieldLogger
	orderQueue chan domain.Order

	// mu guards closed; senders hold the read lock so Close never closes
	// orderQueue under an in-flight send.
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

func NewOrderService(d Deps, queueSize int) *OrderService {
	return &OrderService{
		cache:      d.Cache,
		catalog:    d.Catalog,
		orders:     d.Orders,
		publisher:  d.Publisher,
		boards:     newBoardCache(d),
		clock:      d.clock(),
		log:        d.logger(),
		orderQueue: make(chan domain.Order, queueSize),
		done:       make(chan struct{}),
	}
}

type OrderItem struct {
	ProductID string
	Quantity  int
	OptionIDs []string
}

type PlaceOrderInput struct {
	RequestID     string
	CustomerName  string
	CustomerEmail string
	Items         []OrderItem
	ShippingCents int64
}

// PlaceOrder reserves stock in the cache and hands the order to the
// persistence workers. The returned order is pending and not yet stored.
func (s *OrderService) PlaceOrder(ctx context.Context, in PlaceOrderInput) (domain.Order, error) {
	if err := validatePlaceOrder(in); err != nil {
		metrics.RecordOrderPlaced("invalid")
		return domain.Order{}, err
	}

	ok, err := s.cache.SetIdempotency(ctx, "order:req:"+in.RequestID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		metrics.RecordOrderPlaced("duplicate")
		return domain.Order{}, domain.ErrDuplicateRequest
	}

	ids := make([]string, 0, len(in.Items))
	for _, it := range in.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load products: %w", err)
	}

	now := s.clock.Now()
	order := domain.Order{
		ID:            newID(),
		CustomerName:  strings.TrimSpace(in.CustomerName),
		CustomerEmail: strings.TrimSpace(in.CustomerEmail),
		Status:        domain.OrderStatusPending,
		ShippingCents: in.ShippingCents,
		Rank:          newCardRank(now),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	lines := make([]domain.OrderedProduct, 0, len(in.Items))
	for _, it := range in.Items {
		p, found := products[it.ProductID]
		if !found || !p.Active {
			return domain.Order{}, fmt.Errorf("product %s: %w", it.ProductID, domain.ErrNotFound)
		}
		opts, err := p.ResolveOptions(it.OptionIDs)
		if err != nil {
			return domain.Order{}, fmt.Errorf("product %s: %w", it.ProductID, err)
		}
		line := domain.OrderedProduct{
			ID:             newID(),
			OrderID:        order.ID,
			ProductID:      p.ID,
			Name:           p.Name,
			UnitPriceCents: p.PriceCents,
			Quantity:       it.Quantity,
		}
		for _, o := range opts {
			line.OptionsDeltaCents += o.PriceDeltaCents
			line.OptionLabels = append(line.OptionLabels, o.Group+": "+o.Label)
		}
		lines = append(lines, line)
	}

	reserved := make([]domain.OrderedProduct, 0, len(lines))
	for _, l := range lines {
		ok, err := s.cache.DecrementStock(ctx, l.ProductID, l.Quantity)
		if err != nil {
			s.restoreStock(ctx, reserved)
			return domain.Order{}, fmt.Errorf("stock decrement failed: %w", err)
		}
		if !ok {
			s.restoreStock(ctx, reserved)
			metrics.RecordOrderPlaced("sold_out")
			return domain.Order{}, domain.ErrInsufficientStock
		}
		reserved = append(reserved, l)
	}

	pricing.Apply(&order, lines)

	if err := s.enqueue(ctx, order); err != nil {
		s.restoreStock(ctx, reserved)
		return domain.Order{}, err
	}

	metrics.RecordOrderPlaced("ok")
	s.log.WithFields(logrus.Fields{"order_id": order.ID, "lines": len(lines), "total_cents": order.TotalCents}).Info("order queued")
	return order, nil
}

func (s *OrderService) restoreStock(ctx context.Context, lines []domain.OrderedProduct) {
	for _, l := range lines {
		if err := s.cache.IncrementStock(context.WithoutCancel(ctx), l.ProductID, l.Quantity); err != nil {
			s.log.WithError(err).WithField("product_id", l.ProductID).Error("CRITICAL stock restore failed")
		}
	}
}

func (s *OrderService) GetOrderQueue() <-chan domain.Order {
	return s.orderQueue
}

func (s *OrderService) enqueue(ctx context.Context, order domain.Order) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrShuttingDown
	}
	select {
	case s.orderQueue <- order:
		return nil
	case <-s.done:
		return domain.ErrShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting orders and closes the queue once no PlaceOrder is
// mid-send. Later calls to PlaceOrder fail with ErrShuttingDown.
func (s *OrderService) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.orderQueue)
		s.mu.Unlock()
	})
}

func validatePlaceOrder(in PlaceOrderInput) error {
	switch {
	case strings.TrimSpace(in.RequestID) == "":
		return fmt.Errorf("%w: request id is required", domain.ErrValidation)
	case strings.TrimSpace(in.CustomerName) == "":
		return fmt.Errorf("%w: customer name is required", domain.ErrValidation)
	case !validEmail(in.CustomerEmail):
		return fmt.Errorf("%w: a valid email is required", domain.ErrValidation)
	case len(in.Items) == 0:
		return fmt.Errorf("%w: at least one item is required", domain.ErrValidation)
	case in.ShippingCents < 0:
		return domain.ErrInvalidAmount
	}
	for _, it := range in.Items {
		if it.ProductID == "" {
			return fmt.Errorf("%w: product id is required", domain.ErrValidation)
		}
		if it.Quantity < 1 {
			return domain.ErrInvalidQuantity
		}
	}
	return nil
}

func validEmail(s string) bool {
	s = strings.TrimSpace(s)
	at := strings.IndexByte(s, '@')
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t")
}
