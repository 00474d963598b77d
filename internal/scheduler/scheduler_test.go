package scheduler

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler() *Scheduler {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return New(l)
}

func TestScheduler_AddJob(t *testing.T) {
	s := newTestScheduler()

	require.NoError(t, s.AddJob("prematch_refresh", "0 3 * * *", "Pre-match refresh", func(context.Context, string) error { return nil }))
	assert.Error(t, s.AddJob("prematch_refresh", "0 3 * * *", "again", nil))
	assert.Error(t, s.AddJob("broken", "not a schedule", "Broken", nil))

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "scheduled", jobs["prematch_refresh"].Status)
	assert.True(t, jobs["prematch_refresh"].IsEnabled)
}

func TestScheduler_RunNow(t *testing.T) {
	s := newTestScheduler()
	var runIDs []string
	require.NoError(t, s.AddJob("ok", "@hourly", "OK", func(_ context.Context, runID string) error {
		runIDs = append(runIDs, runID)
		return nil
	}))

	require.NoError(t, s.RunNow("ok"))
	require.NoError(t, s.RunNow("ok"))

	info := s.Jobs()["ok"]
	assert.Equal(t, 2, info.RunCount)
	assert.Equal(t, "completed", info.Status)
	assert.Zero(t, info.ErrorCount)
	require.Len(t, runIDs, 2)
	assert.NotEqual(t, runIDs[0], runIDs[1])

	assert.Error(t, s.RunNow("missing"))
}

func TestScheduler_FailuresAreRecorded(t *testing.T) {
	s := newTestScheduler()
	boom := errors.New("engine unavailable")
	require.NoError(t, s.AddJob("fails", "@hourly", "Fails", func(context.Context, string) error { return boom }))
	require.NoError(t, s.AddJob("panics", "@hourly", "Panics", func(context.Context, string) error { panic("bad table") }))

	assert.ErrorIs(t, s.RunNow("fails"), boom)
	assert.Error(t, s.RunNow("panics"))

	jobs := s.Jobs()
	assert.Equal(t, "failed", jobs["fails"].Status)
	assert.Equal(t, 1, jobs["fails"].ErrorCount)
	assert.Equal(t, boom.Error(), jobs["fails"].LastError)
	assert.Equal(t, "failed", jobs["panics"].Status)
	assert.Contains(t, jobs["panics"].LastError, "bad table")
}

func TestScheduler_DisabledJobSkips(t *testing.T) {
	s := newTestScheduler()
	runs := 0
	require.NoError(t, s.AddJob("quiet", "@hourly", "Quiet", func(context.Context, string) error {
		runs++
		return nil
	}))
	require.NoError(t, s.SetEnabled("quiet", false))

	require.NoError(t, s.RunNow("quiet"))
	assert.Zero(t, runs)
	assert.Error(t, s.SetEnabled("missing", true))
}

func TestScheduler_StartStop(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.Start())
	assert.Error(t, s.Start())
	s.Stop(time.Second)
	s.Stop(time.Second)
}

func TestScheduler_StopWaitsForRunningJob(t *testing.T) {
	s := newTestScheduler()
	started := make(chan struct{}, 1)
	require.NoError(t, s.AddJob("slow", "@every 1s", "Slow", func(ctx context.Context, _ string) error {
		select {
		case started <- struct{}{}:
		default:
		}
		time.Sleep(200 * time.Millisecond)
		return ctx.Err()
	}))
	require.NoError(t, s.Start())

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}

	begin := time.Now()
	s.Stop(3 * time.Second)
	assert.Less(t, time.Since(begin), 2*time.Second)

	info := s.Jobs()["slow"]
	assert.Equal(t, "completed", info.Status)
	assert.GreaterOrEqual(t, info.RunCount, 1)
}
