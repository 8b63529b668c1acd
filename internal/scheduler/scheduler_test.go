package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/dbtflow/internal/config"
	"github.com/fyrsmithlabs/dbtflow/internal/dbt"
	"github.com/fyrsmithlabs/dbtflow/internal/logging"
)

type fakeStarter struct {
	mu      sync.Mutex
	targets []dbt.Target
	err     error
	fired   chan struct{}
}

func newFakeStarter(err error) *fakeStarter {
	return &fakeStarter{err: err, fired: make(chan struct{}, 16)}
}

func (f *fakeStarter) Start(_ context.Context, target dbt.Target) (string, error) {
	f.mu.Lock()
	f.targets = append(f.targets, target)
	f.mu.Unlock()
	f.fired <- struct{}{}
	if f.err != nil {
		return "", f.err
	}
	return "dbt-refresh-" + dbt.Stem(target.ProjectLocation), nil
}

func (f *fakeStarter) wait(t *testing.T) {
	t.Helper()
	select {
	case <-f.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled run was not started")
	}
}

var target = dbt.Target{Environment: "dev", ProjectLocation: "/dbt/warehouse"}

func TestScheduler_Add(t *testing.T) {
	t.Run("returns job id for valid target", func(t *testing.T) {
		s, err := New(newFakeStarter(nil), nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Stop(context.Background()) })

		id, err := s.Add(context.Background(), target, time.Hour)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	})

	t.Run("rejects non-positive interval", func(t *testing.T) {
		s, err := New(newFakeStarter(nil), nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Stop(context.Background()) })

		_, err = s.Add(context.Background(), target, 0)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("rejects invalid target", func(t *testing.T) {
		s, err := New(newFakeStarter(nil), nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Stop(context.Background()) })

		_, err = s.Add(context.Background(), dbt.Target{ProjectLocation: "/dbt/warehouse"}, time.Hour)
		assert.ErrorIs(t, err, dbt.ErrEmptyField)
	})
}

func TestScheduler_FiresImmediately(t *testing.T) {
	starter := newFakeStarter(nil)
	tl := logging.NewTestLogger()
	s, err := New(starter, tl.Logger)
	require.NoError(t, err)

	require.NoError(t, s.AddAll(context.Background(), config.ScheduleConfig{
		Targets: []config.ScheduledTarget{{
			Env:             "dev",
			ProjectLocation: "/dbt/warehouse",
			ProfileLocation: "/dbt/profiles",
			Every:           config.Duration(time.Hour),
		}},
	}))
	s.Start(context.Background())
	starter.wait(t)
	require.NoError(t, s.Stop(context.Background()))

	starter.mu.Lock()
	defer starter.mu.Unlock()
	require.Len(t, starter.targets, 1)
	assert.Equal(t, dbt.Target{Environment: "dev", ProjectLocation: "/dbt/warehouse", ProfileLocation: "/dbt/profiles"}, starter.targets[0])
	tl.AssertLogged(t, zapcore.InfoLevel, "started scheduled pipeline run")
	tl.AssertField(t, "started scheduled pipeline run", "run_id", "dbt-refresh-warehouse")
}

func TestScheduler_StartFailureIsLogged(t *testing.T) {
	starter := newFakeStarter(errors.New("temporal unavailable"))
	tl := logging.NewTestLogger()
	s, err := New(starter, tl.Logger)
	require.NoError(t, err)

	_, err = s.Add(context.Background(), target, time.Hour)
	require.NoError(t, err)
	s.Start(context.Background())
	starter.wait(t)
	require.NoError(t, s.Stop(context.Background()))

	tl.AssertLogged(t, zapcore.ErrorLevel, "failed to start scheduled pipeline run")
}

func TestScheduler_AddAllRejectsBadTarget(t *testing.T) {
	s, err := New(newFakeStarter(nil), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	err = s.AddAll(context.Background(), config.ScheduleConfig{
		Targets: []config.ScheduledTarget{{Env: "dev", ProjectLocation: "/dbt/warehouse"}},
	})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
