package domain

import "time"

// Event is a registrable happening with a fixed seat capacity.
type Event struct {
	ID         string
	Slug       string
	Title      string
	StartsAt   time.Time
	Capacity   int
	PriceCents int64
	Published  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type RegistrationStatus string

const (
	RegistrationStatusPending    RegistrationStatus = "pending"
	RegistrationStatusWaitlisted RegistrationStatus = "waitlisted"
	RegistrationStatusConfirmed  RegistrationStatus = "confirmed"
	RegistrationStatusCheckedIn  RegistrationStatus = "checked_in"
	RegistrationStatusCancelled  RegistrationStatus = "cancelled"
)

var RegistrationStatuses = []RegistrationStatus{
	RegistrationStatusPending,
	RegistrationStatusWaitlisted,
	RegistrationStatusConfirmed,
	RegistrationStatusCheckedIn,
	RegistrationStatusCancelled,
}

var registrationTransitions = map[RegistrationStatus][]RegistrationStatus{
	RegistrationStatusPending:    {RegistrationStatusConfirmed, RegistrationStatusWaitlisted, RegistrationStatusCancelled},
	RegistrationStatusWaitlisted: {RegistrationStatusPending, RegistrationStatusConfirmed, RegistrationStatusCancelled},
	RegistrationStatusConfirmed:  {RegistrationStatusCheckedIn, RegistrationStatusWaitlisted, RegistrationStatusCancelled},
	RegistrationStatusCheckedIn:  {RegistrationStatusConfirmed},
}

func (s RegistrationStatus) Valid() bool {
	for _, st := range RegistrationStatuses {
		if st == s {
			return true
		}
	}
	return false
}

func (s RegistrationStatus) CanTransition(next RegistrationStatus) bool {
	if s == next {
		return s.Valid()
	}
	for _, allowed := range registrationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// HoldsSeats reports whether a registration in status s occupies capacity.
func (s RegistrationStatus) HoldsSeats() bool {
	switch s {
	case RegistrationStatusPending, RegistrationStatusConfirmed, RegistrationStatusCheckedIn:
		return true
	}
	return false
}

type EventRegistration struct {
	ID           string
	EventID      string
	AttendeeName string
	Email        string
	Seats        int
	Status       RegistrationStatus
	Rank         int64
	Version      int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
