package countdown

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"tock/internal/core/schedule"
)

var (
	// ErrConfigurationRejected is returned when the duration cannot be changed
	// in the current state or the requested value is negative.
	ErrConfigurationRejected = errors.New("configuration rejected")
	// ErrStartRejected is returned when there is nothing to count down or the
	// countdown is already running or finished.
	ErrStartRejected = errors.New("start rejected")
	// ErrNotRunning is returned by Pause outside of a running countdown.
	ErrNotRunning = errors.New("countdown not running")
)

// DurationStore persists the configured duration.
type DurationStore interface {
	SaveDuration(Duration) error
}

// Config contains runtime options for Engine.
type Config struct {
	Initial Duration
	Store   DurationStore
	Logger  *slog.Logger
}

// Engine is a deadline-based countdown state machine. Remaining time while
// running is always recomputed from the deadline and the clock, so missed or
// late ticks converge on the next Tick.
type Engine struct {
	mu     sync.Mutex
	clock  schedule.Clock
	store  DurationStore
	logger *slog.Logger

	status          Status
	initial         int
	pausedRemaining int
	deadline        time.Time
	shown           int

	events []chan Event
}

// New creates an idle Engine.
func New(clock schedule.Clock, config Config) *Engine {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		clock:   clock,
		store:   config.Store,
		logger:  logger,
		status:  StatusIdle,
		initial: clampSeconds(config.Initial.Total()),
	}
}

// Subscribe registers a new observer channel.
func (engine *Engine) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	engine.mu.Lock()
	engine.events = append(engine.events, ch)
	engine.mu.Unlock()
	return ch
}

// Close closes all observer channels.
func (engine *Engine) Close() {
	engine.mu.Lock()
	events := engine.events
	engine.events = nil
	engine.mu.Unlock()

	for _, ch := range events {
		close(ch)
	}
}

// Snapshot returns the current state with remaining time derived from now.
func (engine *Engine) Snapshot() Snapshot {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	return engine.snapshotLocked(engine.clock.Now())
}

// Restore seeds the configured duration from storage without writing it
// back. It is ignored unless idle and reports whether the duration changed.
func (engine *Engine) Restore(duration Duration) bool {
	engine.mu.Lock()
	defer engine.mu.Unlock()
	seconds := clampSeconds(duration.Total())
	if engine.status != StatusIdle || seconds == engine.initial {
		return false
	}
	engine.initial = seconds
	engine.emitLocked(Event{
		Type:      EventProgress,
		Status:    engine.status,
		Previous:  engine.status,
		Remaining: DurationOf(engine.initial),
		At:        engine.clock.Now(),
	})
	return true
}

// Configure sets the duration restored on reset. Only valid while idle.
func (engine *Engine) Configure(minutes, seconds int) error {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	if engine.status != StatusIdle || minutes < 0 || seconds < 0 {
		engine.logger.Debug("configure rejected", "status", engine.status, "minutes", minutes, "seconds", seconds)
		return ErrConfigurationRejected
	}
	engine.initial = minutes*60 + seconds
	engine.persistLocked()

	now := engine.clock.Now()
	engine.emitLocked(Event{
		Type:      EventProgress,
		Status:    engine.status,
		Previous:  engine.status,
		Remaining: DurationOf(engine.initial),
		At:        now,
	})
	return nil
}

// Start begins or resumes the countdown.
func (engine *Engine) Start() error {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	var seconds int
	switch engine.status {
	case StatusIdle:
		seconds = engine.initial
	case StatusPaused:
		seconds = engine.pausedRemaining
	default:
		return ErrStartRejected
	}
	if seconds <= 0 {
		engine.logger.Debug("start rejected", "status", engine.status)
		return ErrStartRejected
	}

	now := engine.clock.Now()
	previous := engine.status
	engine.status = StatusRunning
	engine.deadline = now.Add(time.Duration(seconds) * time.Second)
	engine.pausedRemaining = 0
	engine.shown = seconds

	engine.logger.Debug("countdown started", "from", previous, "seconds", seconds, "deadline", engine.deadline)
	engine.emitStateLocked(previous, now)
	return nil
}

// Pause freezes the countdown, snapshotting the remaining time.
func (engine *Engine) Pause() error {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	if engine.status != StatusRunning {
		return ErrNotRunning
	}
	now := engine.clock.Now()
	engine.pausedRemaining = ceilSeconds(engine.deadline.Sub(now))
	engine.deadline = time.Time{}
	engine.status = StatusPaused

	engine.logger.Debug("countdown paused", "remaining", engine.pausedRemaining)
	engine.emitStateLocked(StatusRunning, now)
	return nil
}

// Reset returns to idle with the configured duration. Valid in every state.
func (engine *Engine) Reset() {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	previous := engine.status
	engine.status = StatusIdle
	engine.deadline = time.Time{}
	engine.pausedRemaining = 0
	engine.shown = 0

	if previous != StatusIdle {
		engine.logger.Debug("countdown reset", "from", previous)
	}
	engine.emitStateLocked(previous, engine.clock.Now())
}

// Adjust adds deltaSeconds to the remaining time, clamped at zero. A running
// countdown has its deadline shifted rather than recomputed from now.
func (engine *Engine) Adjust(deltaSeconds int) error {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	now := engine.clock.Now()
	switch engine.status {
	case StatusIdle:
		engine.initial = clampSeconds(engine.initial + deltaSeconds)
		engine.persistLocked()
	case StatusPaused:
		engine.pausedRemaining = clampSeconds(engine.pausedRemaining + deltaSeconds)
	case StatusRunning:
		deadline := engine.deadline.Add(time.Duration(deltaSeconds) * time.Second)
		if deadline.Before(now) {
			deadline = now
		}
		engine.deadline = deadline
		engine.shown = ceilSeconds(deadline.Sub(now))
	default:
		return ErrConfigurationRejected
	}

	snapshot := engine.snapshotLocked(now)
	engine.emitLocked(Event{
		Type:      EventProgress,
		Status:    engine.status,
		Previous:  engine.status,
		Remaining: snapshot.Remaining,
		Deadline:  snapshot.Deadline,
		At:        now,
	})
	return nil
}

// Tick recomputes the remaining time from the deadline. It is a no-op unless
// the countdown is running, and finishes it once the deadline has passed.
func (engine *Engine) Tick() Snapshot {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	now := engine.clock.Now()
	if engine.status != StatusRunning {
		return engine.snapshotLocked(now)
	}

	remaining := engine.deadline.Sub(now)
	if remaining <= 0 {
		engine.status = StatusFinished
		engine.deadline = time.Time{}
		engine.shown = 0
		engine.logger.Info("countdown finished", "late_by", -remaining)
		engine.emitStateLocked(StatusRunning, now)
		return engine.snapshotLocked(now)
	}

	seconds := ceilSeconds(remaining)
	if seconds != engine.shown {
		engine.shown = seconds
		engine.emitLocked(Event{
			Type:      EventProgress,
			Status:    StatusRunning,
			Previous:  StatusRunning,
			Remaining: DurationOf(seconds),
			Deadline:  engine.deadline,
			At:        now,
		})
	}
	return engine.snapshotLocked(now)
}

func (engine *Engine) remainingLocked(now time.Time) int {
	switch engine.status {
	case StatusIdle:
		return engine.initial
	case StatusPaused:
		return engine.pausedRemaining
	case StatusRunning:
		return ceilSeconds(engine.deadline.Sub(now))
	default:
		return 0
	}
}

func (engine *Engine) snapshotLocked(now time.Time) Snapshot {
	return Snapshot{
		Status:    engine.status,
		Remaining: DurationOf(engine.remainingLocked(now)),
		Initial:   DurationOf(engine.initial),
		Deadline:  engine.deadline,
	}
}

func (engine *Engine) persistLocked() {
	if engine.store == nil {
		return
	}
	if err := engine.store.SaveDuration(DurationOf(engine.initial)); err != nil {
		engine.logger.Warn("persist duration failed", "error", err)
	}
}

func (engine *Engine) emitStateLocked(previous Status, now time.Time) {
	engine.emitLocked(Event{
		Type:      EventStateChange,
		Status:    engine.status,
		Previous:  previous,
		Remaining: DurationOf(engine.remainingLocked(now)),
		Deadline:  engine.deadline,
		At:        now,
	})
}

func (engine *Engine) emitLocked(event Event) {
	for _, ch := range engine.events {
		select {
		case ch <- event:
		default:
		}
	}
}

func ceilSeconds(remaining time.Duration) int {
	if remaining <= 0 {
		return 0
	}
	return int((remaining + time.Second - 1) / time.Second)
}

func clampSeconds(seconds int) int {
	if seconds < 0 {
		return 0
	}
	return seconds
}
