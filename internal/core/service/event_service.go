package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/storefront/internal/clock"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type EventService struct {
	events port.EventRepository
	cache  port.CacheRepository
	clock  clock.Clock
	log    logrus.FieldLogger
}

func NewEventService(d Deps) *EventService {
	return &EventService{events: d.Events, cache: d.Cache, clock: d.clock(), log: d.logger()}
}

type EventInput struct {
	Slug       string
	Title      string
	StartsAt   time.Time
	Capacity   int
	PriceCents int64
	Published  bool
}

func (in EventInput) validate() error {
	switch {
	case !domain.ValidSlug(in.Slug):
		return domain.ErrInvalidSlug
	case strings.TrimSpace(in.Title) == "":
		return fmt.Errorf("%w: title is required", domain.ErrValidation)
	case in.StartsAt.IsZero():
		return fmt.Errorf("%w: start time is required", domain.ErrValidation)
	case in.Capacity < 1:
		return fmt.Errorf("%w: capacity must be positive", domain.ErrValidation)
	case in.PriceCents < 0:
		return domain.ErrInvalidAmount
	}
	return nil
}

func (s *EventService) CreateEvent(ctx context.Context, in EventInput) (domain.Event, error) {
	if err := in.validate(); err != nil {
		return domain.Event{}, err
	}
	now := s.clock.Now()
	e := domain.Event{
		ID:         newID(),
		Slug:       in.Slug,
		Title:      strings.TrimSpace(in.Title),
		StartsAt:   in.StartsAt.UTC(),
		Capacity:   in.Capacity,
		PriceCents: in.PriceCents,
		Published:  in.Published,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.events.CreateEvent(ctx, e); err != nil {
		return domain.Event{}, err
	}
	if err := s.cache.SetSeats(ctx, e.ID, e.Capacity); err != nil {
		return domain.Event{}, fmt.Errorf("mirror seats: %w", err)
	}
	s.log.WithFields(logrus.Fields{"event_id": e.ID, "capacity": e.Capacity}).Info("event created")
	return e, nil
}

// UpdateEvent edits an event. Capacity may not drop below the seats already
// held by registrations.
func (s *EventService) UpdateEvent(ctx context.Context, id string, in EventInput) (domain.Event, error) {
	if err := in.validate(); err != nil {
		return domain.Event{}, err
	}
	e, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return domain.Event{}, err
	}
	held, err := s.events.HeldSeats(ctx, id)
	if err != nil {
		return domain.Event{}, fmt.Errorf("held seats: %w", err)
	}
	if in.Capacity < held {
		return domain.Event{}, fmt.Errorf("%w: %d seats held", domain.ErrCapacityBelowHeld, held)
	}

	e.Slug = in.Slug
	e.Title = strings.TrimSpace(in.Title)
	e.StartsAt = in.StartsAt.UTC()
	e.Capacity = in.Capacity
	e.PriceCents = in.PriceCents
	e.Published = in.Published
	e.UpdatedAt = s.clock.Now()
	if err := s.events.UpdateEvent(ctx, e); err != nil {
		return domain.Event{}, err
	}
	if err := s.cache.SetSeats(ctx, e.ID, e.Capacity-held); err != nil {
		return domain.Event{}, fmt.Errorf("mirror seats: %w", err)
	}
	return e, nil
}

func (s *EventService) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	return s.events.GetEvent(ctx, id)
}

func (s *EventService) ListEvents(ctx context.Context, publishedOnly bool) ([]domain.Event, error) {
	return s.events.ListEvents(ctx, publishedOnly)
}

// SyncSeats recomputes every event's free seats into the cache.
func (s *EventService) SyncSeats(ctx context.Context) (int, error) {
	events, err := s.events.ListEvents(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("list events: %w", err)
	}
	for _, e := range events {
		held, err := s.events.HeldSeats(ctx, e.ID)
		if err != nil {
			return 0, fmt.Errorf("held seats %s: %w", e.ID, err)
		}
		free := e.Capacity - held
		if free < 0 {
			free = 0
		}
		if err := s.cache.SetSeats(ctx, e.ID, free); err != nil {
			return 0, fmt.Errorf("set seats %s: %w", e.ID, err)
		}
	}
	return len(events), nil
}
