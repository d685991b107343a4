package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	calls atomic.Int32
	n     int
	err   error
}

func (f *fakeSweeper) ExpirePending(ctx context.Context) (int, error) {
	f.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("sweep called without deadline")
	}
	return f.n, f.err
}

func TestNew_InvalidSchedule(t *testing.T) {
	log, _ := test.NewNullLogger()
	_, err := New("not a schedule", &fakeSweeper{}, log)
	assert.Error(t, err)
}

func TestRunOnce(t *testing.T) {
	log, hook := test.NewNullLogger()
	sw := &fakeSweeper{n: 3}
	s, err := New("@every 1h", sw, log)
	require.NoError(t, err)

	assert.Equal(t, 3, s.RunOnce(context.Background()))
	assert.EqualValues(t, 1, sw.calls.Load())
	for _, e := range hook.AllEntries() {
		assert.NotEqual(t, logrus.ErrorLevel, e.Level)
	}
}

func TestRunOnce_LogsFailure(t *testing.T) {
	log, hook := test.NewNullLogger()
	s, err := New("@every 1h", &fakeSweeper{n: 1, err: errors.New("db down")}, log)
	require.NoError(t, err)

	assert.Equal(t, 1, s.RunOnce(context.Background()))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestStartStop(t *testing.T) {
	log, _ := test.NewNullLogger()
	s, err := New("@every 1h", &fakeSweeper{}, log)
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.NoError(t, ctx.Err())
}
