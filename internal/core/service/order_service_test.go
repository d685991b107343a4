package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/core/domain"
)

func validOrderInput(requestID string, items ...OrderItem) PlaceOrderInput {
	return PlaceOrderInput{
		RequestID:     requestID,
		CustomerName:  "Ada Lovelace",
		CustomerEmail: "ada@example.com",
		Items:         items,
		ShippingCents: 500,
	}
}

func TestPlaceOrder_Success(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", 1000, 5, domain.CustomizationOption{ID: "xl", ProductID: "p1", Group: "size", Label: "XL", PriceDeltaCents: 300})
	svc := NewOrderService(f.deps, 10)

	order, err := svc.PlaceOrder(context.Background(), validOrderInput("req-1", OrderItem{ProductID: "p1", Quantity: 2, OptionIDs: []string{"xl"}}))
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, int64(2600), order.SubtotalCents)
	assert.Equal(t, int64(3100), order.TotalCents)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, []string{"size: XL"}, order.Lines[0].OptionLabels)
	assert.Equal(t, order.ID, order.Lines[0].OrderID)
	assert.Equal(t, testNow.UnixMilli(), order.Rank)
	assert.Equal(t, 3, f.cache.stockOf("p1"))

	select {
	case queued := <-svc.GetOrderQueue():
		assert.Equal(t, order.ID, queued.ID)
	default:
		t.Fatal("order was not queued")
	}
}

func TestPlaceOrder_DuplicateRequest(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", 1000, 5)
	svc := NewOrderService(f.deps, 10)
	in := validOrderInput("req-1", OrderItem{ProductID: "p1", Quantity: 1})

	_, err := svc.PlaceOrder(context.Background(), in)
	require.NoError(t, err)
	_, err = svc.PlaceOrder(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)
	assert.Equal(t, 4, f.cache.stockOf("p1"))
}

func TestPlaceOrder_InsufficientStockRollsBack(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", 1000, 5)
	f.addProduct("p2", 700, 1)
	svc := NewOrderService(f.deps, 10)

	_, err := svc.PlaceOrder(context.Background(), validOrderInput("req-1",
		OrderItem{ProductID: "p1", Quantity: 2},
		OrderItem{ProductID: "p2", Quantity: 3},
	))
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 5, f.cache.stockOf("p1"))
	assert.Equal(t, 1, f.cache.stockOf("p2"))
	assert.Empty(t, svc.GetOrderQueue())
}

func TestPlaceOrder_InactiveProduct(t *testing.T) {
	f := newFixture()
	p := f.addProduct("p1", 1000, 5)
	p.Active = false
	f.store.products["p1"] = p
	svc := NewOrderService(f.deps, 10)

	_, err := svc.PlaceOrder(context.Background(), validOrderInput("req-1", OrderItem{ProductID: "p1", Quantity: 1}))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 5, f.cache.stockOf("p1"))
}

func TestPlaceOrder_UnknownOption(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", 1000, 5)
	svc := NewOrderService(f.deps, 10)

	_, err := svc.PlaceOrder(context.Background(), validOrderInput("req-1", OrderItem{ProductID: "p1", Quantity: 1, OptionIDs: []string{"nope"}}))
	assert.ErrorIs(t, err, domain.ErrInvalidOption)
}

func TestPlaceOrder_OptionsBelowZeroRejected(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", 500, 5, domain.CustomizationOption{ID: "clear", ProductID: "p1", Group: "promo", Label: "Clearance", PriceDeltaCents: -700})
	f.addProduct("p2", 1000, 5)
	svc := NewOrderService(f.deps, 10)

	_, err := svc.PlaceOrder(context.Background(), validOrderInput("req-1",
		OrderItem{ProductID: "p1", Quantity: 1, OptionIDs: []string{"clear"}},
		OrderItem{ProductID: "p2", Quantity: 1},
	))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Equal(t, 5, f.cache.stockOf("p1"))
	assert.Equal(t, 5, f.cache.stockOf("p2"))
	assert.Empty(t, svc.GetOrderQueue())
}

func TestPlaceOrder_Validation(t *testing.T) {
	item := OrderItem{ProductID: "p1", Quantity: 1}
	tests := []struct {
		name   string
		mutate func(*PlaceOrderInput)
		want   error
	}{
		{"missing request id", func(in *PlaceOrderInput) { in.RequestID = " " }, domain.ErrValidation},
		{"missing name", func(in *PlaceOrderInput) { in.CustomerName = "" }, domain.ErrValidation},
		{"bad email", func(in *PlaceOrderInput) { in.CustomerEmail = "ada.example.com" }, domain.ErrValidation},
		{"no items", func(in *PlaceOrderInput) { in.Items = nil }, domain.ErrValidation},
		{"zero quantity", func(in *PlaceOrderInput) { in.Items = []OrderItem{{ProductID: "p1"}} }, domain.ErrInvalidQuantity},
		{"negative shipping", func(in *PlaceOrderInput) { in.ShippingCents = -1 }, domain.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.addProduct("p1", 1000, 5)
			svc := NewOrderService(f.deps, 10)
			in := validOrderInput("req-1", item)
			tt.mutate(&in)

			_, err := svc.PlaceOrder(context.Background(), in)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 5, f.cache.stockOf("p1"))
		})
	}
}

func TestPlaceOrder_CancelledWhileQueueFull(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", 1000, 5)
	svc := NewOrderService(f.deps, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.PlaceOrder(ctx, validOrderInput("req-1", OrderItem{ProductID: "p1", Quantity: 2}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, f.cache.stockOf("p1"))
}

func TestPlaceOrder_AfterClose(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", 1000, 5)
	svc := NewOrderService(f.deps, 10)
	svc.Close()
	svc.Close()

	_, err := svc.PlaceOrder(context.Background(), validOrderInput("req-1", OrderItem{ProductID: "p1", Quantity: 2}))
	assert.ErrorIs(t, err, domain.ErrShuttingDown)
	assert.Equal(t, 5, f.cache.stockOf("p1"))
}

func TestPlaceOrder_CloseWhileSendBlocked(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", 1000, 5)
	svc := NewOrderService(f.deps, 0)

	errs := make(chan error, 3)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.PlaceOrder(context.Background(), validOrderInput(fmt.Sprintf("req-%d", i), OrderItem{ProductID: "p1", Quantity: 1}))
			errs <- err
		}(i)
	}

	require.Eventually(t, func() bool { return f.cache.stockOf("p1") < 5 }, time.Second, time.Millisecond)
	assert.NotPanics(t, svc.Close)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, domain.ErrShuttingDown)
	}
	assert.Equal(t, 5, f.cache.stockOf("p1"))
	_, open := <-svc.GetOrderQueue()
	assert.False(t, open)
}

func TestPlaceOrder_ConcurrentBuyersNeverOversell(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", 1000, 10)
	svc := NewOrderService(f.deps, 200)

	var wg sync.WaitGroup
	var successCount, soldOutCount int32
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			in := validOrderInput(fmt.Sprintf("req-%d", n), OrderItem{ProductID: "p1", Quantity: 1})
			_, err := svc.PlaceOrder(context.Background(), in)
			switch err {
			case nil:
				atomic.AddInt32(&successCount, 1)
			case domain.ErrInsufficientStock:
				atomic.AddInt32(&soldOutCount, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(10), successCount)
	assert.Equal(t, int32(90), soldOutCount)
	assert.Equal(t, 0, f.cache.stockOf("p1"))
	assert.Len(t, svc.GetOrderQueue(), 10)
}
