package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/storefront/internal/clock"
	"github.com/rl1809/storefront/internal/core/board"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

const MaxSeatsPerRegistration = 10

const systemActor = "system"

type RegistrationService struct {
	events        port.EventRepository
	registrations port.RegistrationRepository
	cache         port.CacheRepository
	publisher     port.EventPublisher
	boards        *boardCache
	clock         clock.Clock
	log           logrus.FieldLogger
	pendingTTL    time.Duration
}

// NewRegistrationService builds the service. Pending registrations older
// than pendingTTL are cancelled by ExpirePending.
func NewRegistrationService(d Deps, pendingTTL time.Duration) *RegistrationService {
	return &RegistrationService{
		events:        d.Events,
		registrations: d.Registrations,
		cache:         d.Cache,
		publisher:     d.Publisher,
		boards:        newBoardCache(d),
		clock:         d.clock(),
		log:           d.logger(),
		pendingTTL:    pendingTTL,
	}
}

type RegisterInput struct {
	RequestID    string
	EventID      string
	AttendeeName string
	Email        string
	Seats        int
}

// Register signs an attendee up for a published, upcoming event. Seats are
// taken from the cache counter; when the event is full the registration is
// waitlisted instead of rejected.
func (s *RegistrationService) Register(ctx context.Context, in RegisterInput) (domain.EventRegistration, error) {
	switch {
	case strings.TrimSpace(in.AttendeeName) == "":
		return domain.EventRegistration{}, fmt.Errorf("%w: attendee name is required", domain.ErrValidation)
	case !validEmail(in.Email):
		return domain.EventRegistration{}, fmt.Errorf("%w: a valid email is required", domain.ErrValidation)
	case in.Seats < 1 || in.Seats > MaxSeatsPerRegistration:
		return domain.EventRegistration{}, domain.ErrInvalidQuantity
	}

	if in.RequestID != "" {
		ok, err := s.cache.SetIdempotency(ctx, "registration:req:"+in.RequestID)
		if err != nil {
			return domain.EventRegistration{}, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return domain.EventRegistration{}, domain.ErrDuplicateRequest
		}
	}

	event, err := s.events.GetEvent(ctx, in.EventID)
	if err != nil {
		return domain.EventRegistration{}, err
	}
	now := s.clock.Now()
	if !event.Published || !event.StartsAt.After(now) {
		return domain.EventRegistration{}, domain.ErrEventNotOpen
	}

	reserved, err := s.cache.ReserveSeats(ctx, event.ID, in.Seats)
	if err != nil {
		return domain.EventRegistration{}, fmt.Errorf("reserve seats: %w", err)
	}
	status := domain.RegistrationStatusWaitlisted
	if reserved {
		status = domain.RegistrationStatusPending
	}

	reg := domain.EventRegistration{
		ID:           newID(),
		EventID:      event.ID,
		AttendeeName: strings.TrimSpace(in.AttendeeName),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Seats:        in.Seats,
		Status:       status,
		Rank:         newCardRank(now),
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.registrations.CreateRegistration(ctx, reg); err != nil {
		if reserved {
			s.releaseSeats(ctx, event.ID, in.Seats)
		}
		return domain.EventRegistration{}, err
	}

	metrics.RecordRegistration(string(status))
	s.boards.invalidate(ctx, registrationsBoardKey(event.ID))
	log := s.log.WithFields(logrus.Fields{"registration_id": reg.ID, "event_id": event.ID, "status": status})
	log.Info("registration created")
	publish(ctx, s.publisher, log, RoutingRegistrationCreated, RegistrationCreatedEvent{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		Email:          reg.Email,
		Seats:          reg.Seats,
		Status:         string(reg.Status),
		At:             now,
	})
	return reg, nil
}

func (s *RegistrationService) GetRegistration(ctx context.Context, id string) (domain.EventRegistration, error) {
	return s.registrations.GetRegistration(ctx, id)
}

// CancelRegistration cancels at the current version, releasing held seats.
func (s *RegistrationService) CancelRegistration(ctx context.Context, id, actor string) (domain.EventRegistration, error) {
	reg, err := s.registrations.GetRegistration(ctx, id)
	if err != nil {
		return domain.EventRegistration{}, err
	}
	if reg.Status == domain.RegistrationStatusCancelled {
		return reg, nil
	}
	res, err := s.MoveRegistration(ctx, MoveInput{
		ID:              id,
		ExpectedVersion: reg.Version,
		ToStatus:        string(domain.RegistrationStatusCancelled),
		ToIndex:         math.MaxInt32,
		Actor:           actor,
	})
	if err != nil {
		return domain.EventRegistration{}, err
	}
	reg.Status = domain.RegistrationStatusCancelled
	reg.Rank = res.Card.Rank
	reg.Version = res.Card.Version
	return reg, nil
}

func registrationStatusNames() []string {
	out := make([]string, len(domain.RegistrationStatuses))
	for i, s := range domain.RegistrationStatuses {
		out[i] = string(s)
	}
	return out
}

func registrationCard(r domain.EventRegistration, priceCents int64) board.Card {
	return board.Card{
		ID:          r.ID,
		Status:      string(r.Status),
		Rank:        r.Rank,
		Version:     r.Version,
		Title:       r.AttendeeName,
		Subtitle:    fmt.Sprintf("%s, %d seats", r.Email, r.Seats),
		AmountCents: priceCents * int64(r.Seats),
		CreatedAt:   r.CreatedAt,
	}
}

// RegistrationBoard returns the workflow board of one event.
func (s *RegistrationService) RegistrationBoard(ctx context.Context, eventID string) (board.Board, error) {
	return s.boards.load(ctx, registrationsBoardKey(eventID), func(ctx context.Context) (board.Board, error) {
		return s.buildRegistrationBoard(ctx, eventID)
	})
}

func (s *RegistrationService) buildRegistrationBoard(ctx context.Context, eventID string) (board.Board, error) {
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return board.Board{}, err
	}
	regs, err := s.registrations.ListRegistrations(ctx, eventID)
	if err != nil {
		return board.Board{}, fmt.Errorf("list registrations: %w", err)
	}
	cards := make([]board.Card, len(regs))
	for i, r := range regs {
		cards[i] = registrationCard(r, event.PriceCents)
	}
	return board.Build(domain.BoardKindRegistrations, registrationStatusNames(), cards), nil
}

// MoveRegistration moves a registration card with the same optimistic rules
// as order cards. Entering a seat-holding status takes seats from the event
// (ErrEventFull when none are left); leaving one gives them back. A version
// conflict comes back with the event's board as stored.
func (s *RegistrationService) MoveRegistration(ctx context.Context, in MoveInput) (MoveResult, error) {
	result, err := s.moveRegistration(ctx, in)
	metrics.RecordBoardMove(string(domain.BoardKindRegistrations), moveOutcome(err))
	if errors.Is(err, domain.ErrVersionConflict) {
		return s.conflictResult(ctx, in.ID), err
	}
	return result, err
}

func (s *RegistrationService) conflictResult(ctx context.Context, id string) MoveResult {
	reg, err := s.registrations.GetRegistration(ctx, id)
	if err != nil {
		s.log.WithError(err).WithField("registration_id", id).Warn("reload board after conflict")
		return MoveResult{}
	}
	fresh, err := s.buildRegistrationBoard(ctx, reg.EventID)
	if err != nil {
		s.log.WithError(err).WithField("event_id", reg.EventID).Warn("reload board after conflict")
		return MoveResult{}
	}
	return MoveResult{Board: fresh}
}

func (s *RegistrationService) moveRegistration(ctx context.Context, in MoveInput) (MoveResult, error) {
	reg, err := s.registrations.GetRegistration(ctx, in.ID)
	if err != nil {
		return MoveResult{}, err
	}
	if reg.Version != in.ExpectedVersion {
		return MoveResult{}, domain.ErrVersionConflict
	}
	to := domain.RegistrationStatus(in.ToStatus)
	if !reg.Status.CanTransition(to) {
		return MoveResult{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, reg.Status, to)
	}
	event, err := s.events.GetEvent(ctx, reg.EventID)
	if err != nil {
		return MoveResult{}, err
	}

	siblings, err := s.registrations.ListRegistrationsByStatus(ctx, reg.EventID, to)
	if err != nil {
		return MoveResult{}, fmt.Errorf("list column: %w", err)
	}
	column := make([]board.Card, 0, len(siblings))
	for _, r := range siblings {
		if r.ID != reg.ID {
			column = append(column, registrationCard(r, event.PriceCents))
		}
	}
	rank, err := rankFor(ctx, column, in.ToIndex, s.registrations.UpdateRegistrationRanks)
	if err != nil {
		return MoveResult{}, fmt.Errorf("rank card: %w", err)
	}

	takeSeats := !reg.Status.HoldsSeats() && to.HoldsSeats()
	giveSeats := reg.Status.HoldsSeats() && !to.HoldsSeats()
	if takeSeats {
		ok, err := s.cache.ReserveSeats(ctx, reg.EventID, reg.Seats)
		if err != nil {
			return MoveResult{}, fmt.Errorf("reserve seats: %w", err)
		}
		if !ok {
			return MoveResult{}, domain.ErrEventFull
		}
	}

	now := s.clock.Now()
	err = s.registrations.UpdateRegistrationStatus(ctx, port.StatusUpdate{
		ID:              reg.ID,
		ExpectedVersion: in.ExpectedVersion,
		From:            string(reg.Status),
		To:              string(to),
		Rank:            rank,
		Actor:           in.actor(),
		At:              now,
	})
	if err != nil {
		if takeSeats {
			s.releaseSeats(ctx, reg.EventID, reg.Seats)
		}
		return MoveResult{}, err
	}
	if giveSeats {
		s.releaseSeats(ctx, reg.EventID, reg.Seats)
	}

	from := reg.Status
	reg.Status = to
	reg.Rank = rank
	reg.Version = in.ExpectedVersion + 1
	reg.UpdatedAt = now

	s.boards.invalidate(ctx, registrationsBoardKey(reg.EventID))
	log := s.log.WithFields(logrus.Fields{"registration_id": reg.ID, "from": from, "to": to, "actor": in.actor()})
	if from != to {
		metrics.RecordRegistration(string(to))
		log.Info("registration status changed")
		publish(ctx, s.publisher, log, RoutingRegistrationStatusChanged, StatusChangedEvent{
			Kind:    string(domain.BoardKindRegistrations),
			ID:      reg.ID,
			From:    string(from),
			To:      string(to),
			Actor:   in.actor(),
			Version: reg.Version,
			At:      now,
		})
	}

	b, err := s.RegistrationBoard(ctx, reg.EventID)
	if err != nil {
		return MoveResult{}, err
	}
	return MoveResult{Card: registrationCard(reg, event.PriceCents), Board: b}, nil
}

// ExpirePending cancels pending registrations older than the TTL and
// returns how many were cancelled. Registrations touched concurrently are
// skipped and retried on the next sweep. A registration that fails for any
// other reason does not stop the sweep; the failures are joined into the
// returned error.
func (s *RegistrationService) ExpirePending(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.pendingTTL)
	stale, err := s.registrations.ListExpiredPending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired: %w", err)
	}
	expired := 0
	var failed []error
	for _, r := range stale {
		if ctx.Err() != nil {
			failed = append(failed, ctx.Err())
			break
		}
		_, err := s.moveRegistration(ctx, MoveInput{
			ID:              r.ID,
			ExpectedVersion: r.Version,
			ToStatus:        string(domain.RegistrationStatusCancelled),
			ToIndex:         math.MaxInt32,
			Actor:           systemActor,
		})
		metrics.RecordBoardMove(string(domain.BoardKindRegistrations), moveOutcome(err))
		if errors.Is(err, domain.ErrVersionConflict) {
			continue
		}
		if err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"registration_id": r.ID, "event_id": r.EventID}).Warn("expire pending registration")
			failed = append(failed, fmt.Errorf("expire %s: %w", r.ID, err))
			continue
		}
		expired++
	}
	if expired > 0 {
		s.log.WithField("count", expired).Info("expired pending registrations")
	}
	return expired, errors.Join(failed...)
}

func (s *RegistrationService) releaseSeats(ctx context.Context, eventID string, seats int) {
	if err := s.cache.ReleaseSeats(context.WithoutCancel(ctx), eventID, seats); err != nil {
		s.log.WithError(err).WithField("event_id", eventID).Error("CRITICAL seat release failed")
	}
}
