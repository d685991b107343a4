package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/storefront/internal/clock"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/logger"
	"github.com/rl1809/storefront/internal/port"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Mock CacheRepository
type mockCache struct {
	mu             sync.Mutex
	stock          map[string]int
	seats          map[string]int
	idempotencySet map[string]bool
	boards         map[string][]byte
	generations    map[string]int64
	invalidations  int
	staleWrites    int
	err            error
}

func newMockCache() *mockCache {
	return &mockCache{
		stock:          make(map[string]int),
		seats:          make(map[string]int),
		idempotencySet: make(map[string]bool),
		boards:         make(map[string][]byte),
		generations:    make(map[string]int64),
	}
}

func (m *mockCache) DecrementStock(ctx context.Context, productID string, quantity int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.stock[productID] >= quantity {
		m.stock[productID] -= quantity
		return true, nil
	}
	return false, nil
}

func (m *mockCache) IncrementStock(ctx context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[productID] += quantity
	return nil
}

func (m *mockCache) SetStock(ctx context.Context, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[productID] = quantity
	return nil
}

func (m *mockCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCache) ReserveSeats(ctx context.Context, eventID string, seats int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seats[eventID] >= seats {
		m.seats[eventID] -= seats
		return true, nil
	}
	return false, nil
}

func (m *mockCache) ReleaseSeats(ctx context.Context, eventID string, seats int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seats[eventID] += seats
	return nil
}

func (m *mockCache) SetSeats(ctx context.Context, eventID string, available int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seats[eventID] = available
	return nil
}

func (m *mockCache) GetBoard(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.boards[key]
	return data, ok, nil
}

func (m *mockCache) BoardGeneration(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generations[key], nil
}

func (m *mockCache) PutBoard(ctx context.Context, key string, data []byte, ttl time.Duration, generation int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generations[key] != generation {
		m.staleWrites++
		return false, nil
	}
	m.boards[key] = data
	return true, nil
}

func (m *mockCache) InvalidateBoard(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generations[key]++
	delete(m.boards, key)
	m.invalidations++
	return nil
}

func (m *mockCache) boardCached(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.boards[key]
	return ok
}

func (m *mockCache) stockOf(productID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[productID]
}

func (m *mockCache) seatsOf(eventID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seats[eventID]
}

// memStore is an in-memory stand-in for every database repository.
type memStore struct {
	mu             sync.Mutex
	products       map[string]domain.Product
	orders         map[string]domain.Order
	history        []domain.StatusChange
	events         map[string]domain.Event
	registrations  map[string]domain.EventRegistration
	reviews        map[string]domain.Review
	pages          map[string]domain.ContentPage
	createOrderErr error
	rerankCalls    int
	// afterListOrders runs once ListOrders has read its rows
	afterListOrders func()
}

func newMemStore() *memStore {
	return &memStore{
		products:      make(map[string]domain.Product),
		orders:        make(map[string]domain.Order),
		events:        make(map[string]domain.Event),
		registrations: make(map[string]domain.EventRegistration),
		reviews:       make(map[string]domain.Review),
		pages:         make(map[string]domain.ContentPage),
	}
}

// catalog

func (m *memStore) CreateProduct(ctx context.Context, p domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.products {
		if existing.SKU == p.SKU {
			return domain.ErrDuplicateSKU
		}
	}
	m.products[p.ID] = p
	return nil
}

func (m *memStore) UpdateProduct(ctx context.Context, p domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; !ok {
		return domain.ErrNotFound
	}
	m.products[p.ID] = p
	return nil
}

func (m *memStore) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return domain.Product{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memStore) GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.Product)
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *memStore) ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Product
	for _, p := range m.products {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) AddOption(ctx context.Context, opt domain.CustomizationOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[opt.ProductID]
	if !ok {
		return domain.ErrNotFound
	}
	p.Options = append(p.Options, opt)
	m.products[p.ID] = p
	return nil
}

func (m *memStore) RemoveOption(ctx context.Context, optionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.products {
		for i, o := range p.Options {
			if o.ID == optionID {
				p.Options = append(p.Options[:i:i], p.Options[i+1:]...)
				m.products[id] = p
				return nil
			}
		}
	}
	return domain.ErrNotFound
}

func (m *memStore) SetStock(ctx context.Context, productID string, stock int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return domain.ErrNotFound
	}
	p.Stock = stock
	m.products[productID] = p
	return nil
}

// orders

func (m *memStore) CreateOrder(ctx context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createOrderErr != nil {
		return m.createOrderErr
	}
	m.orders[order.ID] = order
	return nil
}

func (m *memStore) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	o.Lines = append([]domain.OrderedProduct(nil), o.Lines...)
	return o, nil
}

func (m *memStore) ListOrders(ctx context.Context) ([]domain.Order, error) {
	m.mu.Lock()
	var out []domain.Order
	for _, o := range m.orders {
		o.Lines = nil
		out = append(out, o)
	}
	hook := m.afterListOrders
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return out, nil
}

func (m *memStore) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	all, _ := m.ListOrders(ctx)
	var out []domain.Order
	for _, o := range all {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) SaveOrderPricing(ctx context.Context, order domain.Order, expectedVersion int, stockDelta map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[order.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	for id, d := range stockDelta {
		p := m.products[id]
		if p.Stock < d {
			return domain.ErrInsufficientStock
		}
		p.Stock -= d
		m.products[id] = p
	}
	order.Version = expectedVersion + 1
	order.Status = cur.Status
	order.Rank = cur.Rank
	m.orders[order.ID] = order
	return nil
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, u port.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[u.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if o.Version != u.ExpectedVersion {
		return domain.ErrVersionConflict
	}
	if u.Restock {
		for _, l := range o.Lines {
			p := m.products[l.ProductID]
			p.Stock += l.Quantity
			m.products[l.ProductID] = p
		}
	}
	o.Status = domain.OrderStatus(u.To)
	o.Rank = u.Rank
	o.Version++
	m.orders[u.ID] = o
	m.history = append(m.history, domain.StatusChange{EntityID: u.ID, Kind: domain.BoardKindOrders, From: u.From, To: u.To, Actor: u.Actor, At: u.At})
	return nil
}

func (m *memStore) UpdateOrderRanks(ctx context.Context, ranks map[string]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rerankCalls++
	for id, r := range ranks {
		o := m.orders[id]
		o.Rank = r
		m.orders[id] = o
	}
	return nil
}

func (m *memStore) OrderHistory(ctx context.Context, orderID string) ([]domain.StatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StatusChange
	for _, h := range m.history {
		if h.EntityID == orderID {
			out = append(out, h)
		}
	}
	return out, nil
}

// events

func (m *memStore) CreateEvent(ctx context.Context, e domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = e
	return nil
}

func (m *memStore) UpdateEvent(ctx context.Context, e domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.ID]; !ok {
		return domain.ErrNotFound
	}
	m.events[e.ID] = e
	return nil
}

func (m *memStore) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return domain.Event{}, domain.ErrNotFound
	}
	return e, nil
}

func (m *memStore) ListEvents(ctx context.Context, publishedOnly bool) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for _, e := range m.events {
		if publishedOnly && !e.Published {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memStore) HeldSeats(ctx context.Context, eventID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	held := 0
	for _, r := range m.registrations {
		if r.EventID == eventID && r.Status.HoldsSeats() {
			held += r.Seats
		}
	}
	return held, nil
}

// registrations

func (m *memStore) CreateRegistration(ctx context.Context, r domain.EventRegistration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.registrations {
		if existing.EventID == r.EventID && existing.Email == r.Email && existing.Status != domain.RegistrationStatusCancelled {
			return domain.ErrDuplicateRegistration
		}
	}
	m.registrations[r.ID] = r
	return nil
}

func (m *memStore) GetRegistration(ctx context.Context, id string) (domain.EventRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.registrations[id]
	if !ok {
		return domain.EventRegistration{}, domain.ErrNotFound
	}
	return r, nil
}

func (m *memStore) ListRegistrations(ctx context.Context, eventID string) ([]domain.EventRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EventRegistration
	for _, r := range m.registrations {
		if r.EventID == eventID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ListRegistrationsByStatus(ctx context.Context, eventID string, status domain.RegistrationStatus) ([]domain.EventRegistration, error) {
	all, _ := m.ListRegistrations(ctx, eventID)
	var out []domain.EventRegistration
	for _, r := range all {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) ListExpiredPending(ctx context.Context, createdBefore time.Time) ([]domain.EventRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EventRegistration
	for _, r := range m.registrations {
		if r.Status == domain.RegistrationStatusPending && r.CreatedAt.Before(createdBefore) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) UpdateRegistrationStatus(ctx context.Context, u port.StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.registrations[u.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if r.Version != u.ExpectedVersion {
		return domain.ErrVersionConflict
	}
	r.Status = domain.RegistrationStatus(u.To)
	r.Rank = u.Rank
	r.Version++
	m.registrations[u.ID] = r
	return nil
}

func (m *memStore) UpdateRegistrationRanks(ctx context.Context, ranks map[string]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rerankCalls++
	for id, rank := range ranks {
		r := m.registrations[id]
		r.Rank = rank
		m.registrations[id] = r
	}
	return nil
}

// reviews

func (m *memStore) CreateReview(ctx context.Context, r domain.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.reviews {
		if existing.ProductID == r.ProductID && existing.Email == r.Email {
			return domain.ErrDuplicateReview
		}
	}
	m.reviews[r.ID] = r
	return nil
}

func (m *memStore) GetReview(ctx context.Context, id string) (domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[id]
	if !ok {
		return domain.Review{}, domain.ErrNotFound
	}
	return r, nil
}

func (m *memStore) SetReviewStatus(ctx context.Context, id string, status domain.ReviewStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reviews[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Status = status
	m.reviews[id] = r
	return nil
}

func (m *memStore) ListReviews(ctx context.Context, productID string, status domain.ReviewStatus) ([]domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Review
	for _, r := range m.reviews {
		if (productID == "" || r.ProductID == productID) && (status == "" || r.Status == status) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) RatingHistogram(ctx context.Context, productID string) ([5]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hist [5]int
	for _, r := range m.reviews {
		if r.ProductID == productID && r.Status == domain.ReviewStatusApproved {
			hist[r.Rating-1]++
		}
	}
	return hist, nil
}

// pages

func (m *memStore) CreatePage(ctx context.Context, p domain.ContentPage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pages[p.Slug]; ok {
		return domain.ErrDuplicateSlug
	}
	m.pages[p.Slug] = p
	return nil
}

func (m *memStore) UpdatePage(ctx context.Context, p domain.ContentPage, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.pages[p.Slug]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	p.Version = expectedVersion + 1
	m.pages[p.Slug] = p
	return nil
}

func (m *memStore) GetPageBySlug(ctx context.Context, slug string) (domain.ContentPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[slug]
	if !ok {
		return domain.ContentPage{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memStore) ListPages(ctx context.Context) ([]domain.ContentPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ContentPage
	for _, p := range m.pages {
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) SetPublished(ctx context.Context, slug string, published bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pages[slug]
	if !ok {
		return domain.ErrNotFound
	}
	p.Published = published
	if published {
		p.PublishedAt = &at
	}
	m.pages[slug] = p
	return nil
}

// Mock EventPublisher
type mockPublisher struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (m *mockPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, routingKey)
	return m.err
}

func (m *mockPublisher) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

type fixture struct {
	cache *mockCache
	store *memStore
	pub   *mockPublisher
	deps  Deps
}

func newFixture() *fixture {
	f := &fixture{cache: newMockCache(), store: newMemStore(), pub: &mockPublisher{}}
	f.deps = Deps{
		Cache:         f.cache,
		Catalog:       f.store,
		Orders:        f.store,
		Events:        f.store,
		Registrations: f.store,
		Reviews:       f.store,
		Pages:         f.store,
		Publisher:     f.pub,
		Clock:         clock.NewFixed(testNow),
		Log:           logger.Discard(),
		BoardCacheTTL: time.Minute,
	}
	return f
}

func (f *fixture) addProduct(id string, price int64, stock int, opts ...domain.CustomizationOption) domain.Product {
	p := domain.Product{ID: id, SKU: "sku-" + id, Name: "Product " + id, PriceCents: price, Stock: stock, Active: true, Options: opts}
	f.store.products[id] = p
	f.cache.stock[id] = stock
	return p
}

var errBoom = errors.New("boom")
