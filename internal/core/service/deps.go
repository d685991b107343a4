package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/storefront/internal/clock"
	"github.com/rl1809/storefront/internal/port"
)

// Deps bundles the adapters the services are built from. Services only use
// the fields they need.
type Deps struct {
	Cache         port.CacheRepository
	Catalog       port.CatalogRepository
	Orders        port.OrderRepository
	Events        port.EventRepository
	Registrations port.RegistrationRepository
	Reviews       port.ReviewRepository
	Pages         port.PageRepository
	Publisher     port.EventPublisher
	Clock         clock.Clock
	Log           logrus.FieldLogger

	// BoardCacheTTL of zero disables board snapshots.
	BoardCacheTTL time.Duration
}

func (d Deps) clock() clock.Clock {
	if d.Clock == nil {
		return clock.NewSystem()
	}
	return d.Clock
}

func (d Deps) logger() logrus.FieldLogger {
	if d.Log == nil {
		return logrus.StandardLogger()
	}
	return d.Log
}

func newID() string {
	return uuid.NewString()
}
