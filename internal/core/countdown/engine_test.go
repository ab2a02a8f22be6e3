package countdown

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tock/internal/core/schedule"
)

var epoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type memoryStore struct {
	saved []Duration
	err   error
}

func (store *memoryStore) SaveDuration(duration Duration) error {
	if store.err != nil {
		return store.err
	}
	store.saved = append(store.saved, duration)
	return nil
}

func newEngine(t *testing.T) (*Engine, *schedule.Manual, *memoryStore) {
	t.Helper()
	clock := schedule.NewManual(epoch)
	store := &memoryStore{}
	return New(clock, Config{Store: store}), clock, store
}

func TestStartThenTickShowsConfiguredDuration(t *testing.T) {
	for _, seconds := range []int{1, 5, 59, 60, 61, 599, 3600} {
		engine, _, _ := newEngine(t)
		require.NoError(t, engine.Configure(0, seconds))
		require.NoError(t, engine.Start())

		snapshot := engine.Tick()
		assert.Equal(t, StatusRunning, snapshot.Status)
		assert.Equal(t, seconds, snapshot.Remaining.Total(), "duration %ds", seconds)
	}
}

func TestFinishScenario(t *testing.T) {
	engine, clock, _ := newEngine(t)
	require.NoError(t, engine.Configure(0, 5))
	require.NoError(t, engine.Start())

	clock.Advance(4999 * time.Millisecond)
	snapshot := engine.Tick()
	assert.Equal(t, StatusRunning, snapshot.Status)
	assert.Equal(t, "00:01", snapshot.Remaining.String())

	clock.Advance(time.Millisecond)
	snapshot = engine.Tick()
	assert.Equal(t, StatusFinished, snapshot.Status)
	assert.Equal(t, "00:00", snapshot.Remaining.String())
	assert.True(t, snapshot.Deadline.IsZero())

	clock.Advance(time.Minute)
	assert.Equal(t, StatusFinished, engine.Tick().Status)
}

func TestStartRejectedForZeroDuration(t *testing.T) {
	engine, _, _ := newEngine(t)
	require.NoError(t, engine.Configure(0, 0))

	err := engine.Start()
	assert.ErrorIs(t, err, ErrStartRejected)
	assert.Equal(t, StatusIdle, engine.Snapshot().Status)
}

func TestStartRejectedWhileRunningOrFinished(t *testing.T) {
	engine, clock, _ := newEngine(t)
	require.NoError(t, engine.Configure(0, 1))
	require.NoError(t, engine.Start())
	assert.ErrorIs(t, engine.Start(), ErrStartRejected)

	clock.Advance(time.Second)
	engine.Tick()
	assert.ErrorIs(t, engine.Start(), ErrStartRejected)
	assert.Equal(t, StatusFinished, engine.Snapshot().Status)
}

func TestPauseResumeRoundTripPreservesRemaining(t *testing.T) {
	offsets := []time.Duration{0, 1, 250 * time.Millisecond, 999 * time.Millisecond, 3*time.Second + 400*time.Millisecond}
	for _, offset := range offsets {
		engine, clock, _ := newEngine(t)
		require.NoError(t, engine.Configure(1, 30))
		require.NoError(t, engine.Start())
		clock.Advance(offset)

		before := engine.Tick().Remaining
		require.NoError(t, engine.Pause())
		paused := engine.Snapshot()
		assert.Equal(t, StatusPaused, paused.Status)
		assert.Equal(t, before, paused.Remaining)
		assert.True(t, paused.Deadline.IsZero())

		require.NoError(t, engine.Start())
		after := engine.Tick()
		assert.Equal(t, before, after.Remaining, "offset %s", offset)
	}
}

func TestPausedTimeDoesNotElapse(t *testing.T) {
	engine, clock, _ := newEngine(t)
	require.NoError(t, engine.Configure(0, 10))
	require.NoError(t, engine.Start())
	clock.Advance(3 * time.Second)
	require.NoError(t, engine.Pause())

	clock.Advance(time.Hour)
	assert.Equal(t, 7, engine.Tick().Remaining.Total())

	require.NoError(t, engine.Start())
	clock.Advance(2 * time.Second)
	assert.Equal(t, 5, engine.Tick().Remaining.Total())
}

func TestPauseOutsideRunning(t *testing.T) {
	engine, _, _ := newEngine(t)
	assert.ErrorIs(t, engine.Pause(), ErrNotRunning)
	assert.Equal(t, StatusIdle, engine.Snapshot().Status)
}

func TestAdjust(t *testing.T) {
	t.Run("running shifts the deadline", func(t *testing.T) {
		engine, _, store := newEngine(t)
		require.NoError(t, engine.Configure(0, 10))
		require.NoError(t, engine.Start())
		deadline := engine.Snapshot().Deadline
		saves := len(store.saved)

		require.NoError(t, engine.Adjust(-5))
		snapshot := engine.Snapshot()
		assert.Equal(t, StatusRunning, snapshot.Status)
		assert.Equal(t, "00:05", snapshot.Remaining.String())
		assert.Equal(t, deadline.Add(-5000*time.Millisecond), snapshot.Deadline)
		assert.Equal(t, "00:10", snapshot.Initial.String())
		assert.Len(t, store.saved, saves)
	})

	t.Run("running shift is relative to the deadline not now", func(t *testing.T) {
		engine, clock, _ := newEngine(t)
		require.NoError(t, engine.Configure(0, 30))
		require.NoError(t, engine.Start())
		clock.Advance(10*time.Second + 300*time.Millisecond)

		require.NoError(t, engine.Adjust(5))
		clock.Advance(700 * time.Millisecond)
		assert.Equal(t, 24, engine.Tick().Remaining.Total())
	})

	t.Run("idle updates and persists the configured duration", func(t *testing.T) {
		engine, _, store := newEngine(t)
		require.NoError(t, engine.Configure(0, 30))
		require.NoError(t, engine.Adjust(5))

		snapshot := engine.Snapshot()
		assert.Equal(t, "00:35", snapshot.Remaining.String())
		assert.Equal(t, "00:35", snapshot.Initial.String())
		require.NotEmpty(t, store.saved)
		assert.Equal(t, Duration{Minutes: 0, Seconds: 35}, store.saved[len(store.saved)-1])
	})

	t.Run("paused changes the snapshot only", func(t *testing.T) {
		engine, _, store := newEngine(t)
		require.NoError(t, engine.Configure(0, 30))
		require.NoError(t, engine.Start())
		require.NoError(t, engine.Pause())
		saves := len(store.saved)

		require.NoError(t, engine.Adjust(15))
		snapshot := engine.Snapshot()
		assert.Equal(t, 45, snapshot.Remaining.Total())
		assert.Equal(t, 30, snapshot.Initial.Total())
		assert.Len(t, store.saved, saves)
	})

	t.Run("finished is rejected", func(t *testing.T) {
		engine, clock, _ := newEngine(t)
		require.NoError(t, engine.Configure(0, 1))
		require.NoError(t, engine.Start())
		clock.Advance(time.Second)
		engine.Tick()

		assert.ErrorIs(t, engine.Adjust(5), ErrConfigurationRejected)
		assert.Equal(t, 0, engine.Snapshot().Remaining.Total())
	})
}

func TestAdjustClampsAtZero(t *testing.T) {
	const huge = -1_000_000

	t.Run("idle", func(t *testing.T) {
		engine, _, _ := newEngine(t)
		require.NoError(t, engine.Configure(2, 0))
		require.NoError(t, engine.Adjust(huge))
		assert.Equal(t, 0, engine.Snapshot().Remaining.Total())
		assert.ErrorIs(t, engine.Start(), ErrStartRejected)
	})

	t.Run("paused", func(t *testing.T) {
		engine, _, _ := newEngine(t)
		require.NoError(t, engine.Configure(2, 0))
		require.NoError(t, engine.Start())
		require.NoError(t, engine.Pause())
		require.NoError(t, engine.Adjust(huge))
		assert.Equal(t, 0, engine.Snapshot().Remaining.Total())
		assert.ErrorIs(t, engine.Start(), ErrStartRejected)
		assert.Equal(t, StatusPaused, engine.Snapshot().Status)
	})

	t.Run("running finishes on the next tick", func(t *testing.T) {
		engine, clock, _ := newEngine(t)
		require.NoError(t, engine.Configure(2, 0))
		require.NoError(t, engine.Start())
		require.NoError(t, engine.Adjust(huge))

		snapshot := engine.Snapshot()
		assert.Equal(t, StatusRunning, snapshot.Status)
		assert.Equal(t, 0, snapshot.Remaining.Total())
		assert.Equal(t, clock.Now(), snapshot.Deadline)
		assert.Equal(t, StatusFinished, engine.Tick().Status)
	})
}

func TestDriftCorrection(t *testing.T) {
	delays := []time.Duration{
		0,
		100 * time.Millisecond,
		1500 * time.Millisecond,
		17*time.Second + 250*time.Millisecond,
		59 * time.Second,
		2 * time.Minute,
	}
	for _, delay := range delays {
		engine, clock, _ := newEngine(t)
		require.NoError(t, engine.Configure(1, 0))
		require.NoError(t, engine.Start())
		clock.Advance(300 * time.Millisecond)
		engine.Tick()

		clock.Advance(delay)
		snapshot := engine.Tick()

		elapsed := 300*time.Millisecond + delay
		want := time.Minute - elapsed
		if want <= 0 {
			assert.Equal(t, StatusFinished, snapshot.Status)
			assert.Equal(t, 0, snapshot.Remaining.Total())
			continue
		}
		assert.Equal(t, ceilSeconds(want), snapshot.Remaining.Total(), "delay %s", delay)
	}
}

func TestReset(t *testing.T) {
	engine, clock, _ := newEngine(t)
	require.NoError(t, engine.Configure(0, 20))
	require.NoError(t, engine.Start())
	clock.Advance(5 * time.Second)
	require.NoError(t, engine.Pause())

	engine.Reset()
	snapshot := engine.Snapshot()
	assert.Equal(t, StatusIdle, snapshot.Status)
	assert.Equal(t, "00:20", snapshot.Remaining.String())
	assert.True(t, snapshot.Deadline.IsZero())

	engine.Reset()
	assert.Equal(t, StatusIdle, engine.Snapshot().Status)
}

func TestConfigure(t *testing.T) {
	t.Run("rejected outside idle", func(t *testing.T) {
		engine, _, store := newEngine(t)
		require.NoError(t, engine.Configure(0, 10))
		require.NoError(t, engine.Start())
		saves := len(store.saved)

		assert.ErrorIs(t, engine.Configure(5, 0), ErrConfigurationRejected)
		assert.Equal(t, 10, engine.Snapshot().Initial.Total())
		assert.Len(t, store.saved, saves)
	})

	t.Run("rejects negative values", func(t *testing.T) {
		engine, _, _ := newEngine(t)
		assert.ErrorIs(t, engine.Configure(-1, 0), ErrConfigurationRejected)
		assert.ErrorIs(t, engine.Configure(0, -1), ErrConfigurationRejected)
	})

	t.Run("normalizes seconds overflow", func(t *testing.T) {
		engine, _, _ := newEngine(t)
		require.NoError(t, engine.Configure(1, 75))
		assert.Equal(t, Duration{Minutes: 2, Seconds: 15}, engine.Snapshot().Initial)
	})

	t.Run("persistence failure is not fatal", func(t *testing.T) {
		clock := schedule.NewManual(epoch)
		engine := New(clock, Config{Store: &memoryStore{err: errors.New("disk full")}})
		require.NoError(t, engine.Configure(0, 45))
		assert.Equal(t, 45, engine.Snapshot().Initial.Total())
	})
}

func TestRestore(t *testing.T) {
	engine, _, store := newEngine(t)
	events := engine.Subscribe(4)
	assert.True(t, engine.Restore(Duration{Minutes: 3, Seconds: 5}))
	assert.Equal(t, "03:05", engine.Snapshot().Remaining.String())
	assert.Empty(t, store.saved)
	require.Len(t, events, 1)
	assert.Equal(t, EventProgress, (<-events).Type)

	assert.False(t, engine.Restore(Duration{Minutes: 3, Seconds: 5}))

	require.NoError(t, engine.Start())
	assert.False(t, engine.Restore(Duration{Minutes: 9}))
	assert.Equal(t, "03:05", engine.Snapshot().Initial.String())
}

func TestSubscribe(t *testing.T) {
	engine, clock, _ := newEngine(t)
	events := engine.Subscribe(16)
	require.NoError(t, engine.Configure(0, 3))
	require.NoError(t, engine.Start())

	clock.Advance(500 * time.Millisecond)
	engine.Tick()
	clock.Advance(600 * time.Millisecond)
	engine.Tick()
	clock.Advance(1900 * time.Millisecond)
	engine.Tick()
	engine.Close()

	var got []Event
	for event := range events {
		got = append(got, event)
	}
	require.Len(t, got, 4)
	assert.Equal(t, EventProgress, got[0].Type)
	assert.Equal(t, EventStateChange, got[1].Type)
	assert.Equal(t, StatusRunning, got[1].Status)
	assert.Equal(t, EventProgress, got[2].Type)
	assert.Equal(t, "00:03", got[1].Remaining.String())
	assert.Equal(t, "00:02", got[2].Remaining.String())
	assert.Equal(t, StatusFinished, got[3].Status)
	assert.Equal(t, StatusRunning, got[3].Previous)
}

func TestDurationString(t *testing.T) {
	assert.Equal(t, "00:00", DurationOf(-4).String())
	assert.Equal(t, "01:05", DurationOf(65).String())
	assert.Equal(t, "120:00", DurationOf(7200).String())
}
