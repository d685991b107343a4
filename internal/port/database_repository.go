package port

import (
	"context"
	"time"

	"github.com/rl1809/storefront/internal/core/domain"
)

// StatusUpdate moves a workflow record to a new status and board position.
// It only applies while the stored version still equals ExpectedVersion.
type StatusUpdate struct {
	ID              string
	ExpectedVersion int
	From            string
	To              string
	Rank            int64
	Actor           string
	At              time.Time
	// Restock returns the order's quantities to product stock in the same transaction.
	Restock bool
}

type CatalogRepository interface {
	CreateProduct(ctx context.Context, p domain.Product) error
	UpdateProduct(ctx context.Context, p domain.Product) error
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)
	ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error)
	AddOption(ctx context.Context, opt domain.CustomizationOption) error
	RemoveOption(ctx context.Context, optionID string) error
	SetStock(ctx context.Context, productID string, stock int) error
}

type OrderRepository interface {
	// CreateOrder persists an order with its lines and decrements product stock
	CreateOrder(ctx context.Context, order domain.Order) error

	GetOrder(ctx context.Context, id string) (domain.Order, error)

	// ListOrders returns orders without lines, for board columns
	ListOrders(ctx context.Context) ([]domain.Order, error)
	ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)

	// SaveOrderPricing writes edited lines and totals with version check for optimistic locking.
	// stockDelta holds extra units taken from (positive) or returned to (negative) product stock.
	SaveOrderPricing(ctx context.Context, order domain.Order, expectedVersion int, stockDelta map[string]int) error

	UpdateOrderStatus(ctx context.Context, u StatusUpdate) error
	UpdateOrderRanks(ctx context.Context, ranks map[string]int64) error
	OrderHistory(ctx context.Context, orderID string) ([]domain.StatusChange, error)
}

type EventRepository interface {
	CreateEvent(ctx context.Context, e domain.Event) error
	UpdateEvent(ctx context.Context, e domain.Event) error
	GetEvent(ctx context.Context, id string) (domain.Event, error)
	ListEvents(ctx context.Context, publishedOnly bool) ([]domain.Event, error)

	// HeldSeats sums seats of registrations in seat-holding statuses
	HeldSeats(ctx context.Context, eventID string) (int, error)
}

type RegistrationRepository interface {
	// CreateRegistration fails with ErrDuplicateRegistration when the email
	// already has a non-cancelled registration for the event
	CreateRegistration(ctx context.Context, r domain.EventRegistration) error

	GetRegistration(ctx context.Context, id string) (domain.EventRegistration, error)
	ListRegistrations(ctx context.Context, eventID string) ([]domain.EventRegistration, error)
	ListRegistrationsByStatus(ctx context.Context, eventID string, status domain.RegistrationStatus) ([]domain.EventRegistration, error)
	ListExpiredPending(ctx context.Context, createdBefore time.Time) ([]domain.EventRegistration, error)
	UpdateRegistrationStatus(ctx context.Context, u StatusUpdate) error
	UpdateRegistrationRanks(ctx context.Context, ranks map[string]int64) error
}

type ReviewRepository interface {
	CreateReview(ctx context.Context, r domain.Review) error
	GetReview(ctx context.Context, id string) (domain.Review, error)
	SetReviewStatus(ctx context.Context, id string, status domain.ReviewStatus) error

	// ListReviews filters by product and status; empty values match everything
	ListReviews(ctx context.Context, productID string, status domain.ReviewStatus) ([]domain.Review, error)

	// RatingHistogram counts approved reviews per rating, index 0 is one star
	RatingHistogram(ctx context.Context, productID string) ([5]int, error)
}

type PageRepository interface {
	CreatePage(ctx context.Context, p domain.ContentPage) error
	UpdatePage(ctx context.Context, p domain.ContentPage, expectedVersion int) error
	GetPageBySlug(ctx context.Context, slug string) (domain.ContentPage, error)
	ListPages(ctx context.Context) ([]domain.ContentPage, error)
	SetPublished(ctx context.Context, slug string, published bool, at time.Time) error
}
