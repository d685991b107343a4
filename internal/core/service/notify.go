package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/storefront/internal/port"
)

const (
	RoutingOrderPlaced               = "order.placed"
	RoutingOrderStatusChanged        = "order.status_changed"
	RoutingRegistrationCreated       = "registration.created"
	RoutingRegistrationStatusChanged = "registration.status_changed"
	RoutingReviewSubmitted           = "review.submitted"
	RoutingPagePublished             = "page.published"
)

type OrderPlacedEvent struct {
	OrderID    string    `json:"order_id"`
	Customer   string    `json:"customer"`
	Email      string    `json:"email"`
	TotalCents int64     `json:"total_cents"`
	PlacedAt   time.Time `json:"placed_at"`
}

type StatusChangedEvent struct {
	Kind    string    `json:"kind"`
	ID      string    `json:"id"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Actor   string    `json:"actor"`
	Version int       `json:"version"`
	At      time.Time `json:"at"`
}

type RegistrationCreatedEvent struct {
	RegistrationID string    `json:"registration_id"`
	EventID        string    `json:"event_id"`
	Email          string    `json:"email"`
	Seats          int       `json:"seats"`
	Status         string    `json:"status"`
	At             time.Time `json:"at"`
}

type ReviewSubmittedEvent struct {
	ReviewID  string `json:"review_id"`
	ProductID string `json:"product_id"`
	Rating    int    `json:"rating"`
}

type PagePublishedEvent struct {
	Slug string    `json:"slug"`
	At   time.Time `json:"at"`
}

// publish is fire-and-forget: the database already holds the change, so a
// broker failure is logged rather than surfaced to the caller.
func publish(ctx context.Context, pub port.EventPublisher, log logrus.FieldLogger, key string, payload any) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, key, payload); err != nil {
		log.WithError(err).WithField("routing_key", key).Warn("publish failed")
	}
}
