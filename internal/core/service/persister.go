package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

const persistTimeout = 5 * time.Second

// Persister drains the checkout queue into the database. When a write
// fails the stock reserved in the cache is given back.
type Persister struct {
	orders    port.OrderRepository
	cache     port.CacheRepository
	publisher port.EventPublisher
	boards    *boardCache
	log       logrus.FieldLogger
}

func NewPersister(d Deps) *Persister {
	return &Persister{
		orders:    d.Orders,
		cache:     d.Cache,
		publisher: d.Publisher,
		boards:    newBoardCache(d),
		log:       d.logger(),
	}
}

// Start launches count workers on queue. The returned WaitGroup is done once
// the queue is closed and drained.
func (p *Persister) Start(count int, queue <-chan domain.Order) *sync.WaitGroup {
	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.Run(id, queue)
		}(i)
	}
	return &wg
}

func (p *Persister) Run(id int, queue <-chan domain.Order) {
	for order := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		p.persist(ctx, id, order)
		cancel()
	}
}

func (p *Persister) persist(ctx context.Context, worker int, order domain.Order) {
	log := p.log.WithFields(logrus.Fields{"worker": worker, "order_id": order.ID})

	if err := p.orders.CreateOrder(ctx, order); err != nil {
		metrics.RecordOrderPersisted(false)
		log.WithError(err).Error("failed to save order")

		for _, l := range order.Lines {
			if rbErr := p.cache.IncrementStock(ctx, l.ProductID, l.Quantity); rbErr != nil {
				log.WithError(rbErr).WithField("product_id", l.ProductID).Error("CRITICAL rollback failed")
			}
		}
		log.Info("rolled back stock")
		return
	}

	metrics.RecordOrderPersisted(true)
	log.Info("saved order")
	p.boards.invalidate(ctx, ordersBoardKey)
	publish(ctx, p.publisher, log, RoutingOrderPlaced, OrderPlacedEvent{
		OrderID:    order.ID,
		Customer:   order.CustomerName,
		Email:      order.CustomerEmail,
		TotalCents: order.TotalCents,
		PlacedAt:   order.CreatedAt,
	})
}
