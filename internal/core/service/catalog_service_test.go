package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/core/domain"
)

func TestCatalog_CreateProductMirrorsStock(t *testing.T) {
	f := newFixture()
	svc := NewCatalogService(f.deps)

	p, err := svc.CreateProduct(context.Background(), ProductInput{SKU: " MUG-1 ", Name: "Mug", PriceCents: 1200, Stock: 40, Active: true})
	require.NoError(t, err)

	assert.Equal(t, "MUG-1", p.SKU)
	assert.Equal(t, 40, f.cache.stockOf(p.ID))
	assert.Equal(t, testNow, p.CreatedAt)

	_, err = svc.CreateProduct(context.Background(), ProductInput{SKU: "MUG-1", Name: "Other", PriceCents: 1})
	assert.ErrorIs(t, err, domain.ErrDuplicateSKU)
}

func TestCatalog_UpdateProductKeepsStock(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", 1000, 7)
	svc := NewCatalogService(f.deps)

	p, err := svc.UpdateProduct(context.Background(), "p1", ProductInput{SKU: "sku-p1", Name: "Renamed", PriceCents: 900, Stock: 999})
	require.NoError(t, err)
	assert.Equal(t, 7, p.Stock)
	assert.False(t, p.Active)
	assert.Equal(t, "Renamed", f.store.products["p1"].Name)

	_, err = svc.UpdateProduct(context.Background(), "p1", ProductInput{SKU: "sku-p1", Name: "Renamed", PriceCents: -5})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestCatalog_Options(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", 1000, 7)
	svc := NewCatalogService(f.deps)
	ctx := context.Background()

	opt, err := svc.AddOption(ctx, "p1", "colour", "Red", 150)
	require.NoError(t, err)
	_, err = svc.AddOption(ctx, "p1", "Colour", "red", 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.AddOption(ctx, "missing", "colour", "Blue", 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.AddOption(ctx, "p1", "promo", "Clearance", -1001)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	p, err := svc.GetProduct(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, p.Options, 1)

	require.NoError(t, svc.RemoveOption(ctx, opt.ID))
	assert.ErrorIs(t, svc.RemoveOption(ctx, opt.ID), domain.ErrNotFound)
}

func TestCatalog_SetAndSyncStock(t *testing.T) {
	f := newFixture()
	f.addProduct("p1", 1000, 7)
	f.addProduct("p2", 1000, 3)
	svc := NewCatalogService(f.deps)
	ctx := context.Background()

	require.NoError(t, svc.SetStock(ctx, "p1", 12))
	assert.Equal(t, 12, f.cache.stockOf("p1"))
	assert.ErrorIs(t, svc.SetStock(ctx, "p1", -1), domain.ErrInvalidQuantity)

	f.cache.stock = map[string]int{}
	n, err := svc.SyncStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 12, f.cache.stockOf("p1"))
	assert.Equal(t, 3, f.cache.stockOf("p2"))
}

func TestEvents_CapacityTracksHeldSeats(t *testing.T) {
	f := newFixture()
	events := NewEventService(f.deps)
	regs := NewRegistrationService(f.deps, time.Hour)
	ctx := context.Background()
	in := EventInput{Slug: "go-meetup", Title: "Go meetup", StartsAt: testNow.Add(24 * time.Hour), Capacity: 4, PriceCents: 0, Published: true}

	e, err := events.CreateEvent(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 4, f.cache.seatsOf(e.ID))

	_, err = regs.Register(ctx, registerInput(e.ID, "a@example.com", 3))
	require.NoError(t, err)

	in.Capacity = 2
	_, err = events.UpdateEvent(ctx, e.ID, in)
	assert.ErrorIs(t, err, domain.ErrCapacityBelowHeld)

	in.Capacity = 10
	_, err = events.UpdateEvent(ctx, e.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 7, f.cache.seatsOf(e.ID))

	f.cache.seats = map[string]int{}
	n, err := events.SyncSeats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 7, f.cache.seatsOf(e.ID))
}

func TestEvents_Validation(t *testing.T) {
	f := newFixture()
	svc := NewEventService(f.deps)
	base := EventInput{Slug: "ok", Title: "t", StartsAt: testNow, Capacity: 1}

	bad := base
	bad.Slug = "Not A Slug"
	_, err := svc.CreateEvent(context.Background(), bad)
	assert.ErrorIs(t, err, domain.ErrInvalidSlug)

	bad = base
	bad.Capacity = 0
	_, err = svc.CreateEvent(context.Background(), bad)
	assert.ErrorIs(t, err, domain.ErrValidation)

	bad = base
	bad.StartsAt = time.Time{}
	_, err = svc.CreateEvent(context.Background(), bad)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
