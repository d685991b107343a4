// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// PendingSweeper cancels registrations that stayed pending too long.
type PendingSweeper interface {
	ExpirePending(ctx context.Context) (int, error)
}

type Scheduler struct {
	cron    *cron.Cron
	sweeper PendingSweeper
	timeout time.Duration
	log     logrus.FieldLogger
}

// New registers the pending-registration sweep on schedule, which accepts
// standard cron expressions and descriptors such as "@every 1m". Overlapping
// runs are skipped.
func New(schedule string, sweeper PendingSweeper, log *logrus.Logger) (*Scheduler, error) {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.PrintfLogger(log)),
		cron.SkipIfStillRunning(cron.PrintfLogger(log)),
	))
	s := &Scheduler{cron: c, sweeper: sweeper, timeout: time.Minute, log: log.WithField("component", "scheduler")}

	if _, err := c.AddFunc(schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule sweep %q: %w", schedule, err)
	}
	return s, nil
}

// RunOnce performs a single sweep and returns the number of expired
// registrations.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.sweeper.ExpirePending(ctx)
	entry := s.log.WithFields(logrus.Fields{"expired": n, "took": time.Since(start).String()})
	if err != nil {
		entry.WithError(err).Error("pending sweep failed")
		return n
	}
	entry.Debug("pending sweep done")
	return n
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for a running sweep to finish or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
