package countdown

import (
	"fmt"
	"time"
)

// Status represents the current countdown mode.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
)

// EventType defines the type of countdown event.
type EventType string

const (
	EventStateChange EventType = "state_change"
	EventProgress    EventType = "progress"
)

// Duration is the displayed minutes/seconds pair.
type Duration struct {
	Minutes int
	Seconds int
}

// DurationOf splits whole seconds into a display pair. Negative input is
// clamped to zero.
func DurationOf(totalSeconds int) Duration {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	return Duration{Minutes: totalSeconds / 60, Seconds: totalSeconds % 60}
}

// Total returns the duration in whole seconds.
func (duration Duration) Total() int {
	return duration.Minutes*60 + duration.Seconds
}

// String renders mm:ss, zero-padded.
func (duration Duration) String() string {
	return fmt.Sprintf("%02d:%02d", duration.Minutes, duration.Seconds)
}

// Snapshot is a read-only view of the engine.
type Snapshot struct {
	Status    Status
	Remaining Duration
	Initial   Duration
	// Deadline is zero unless Status is StatusRunning.
	Deadline time.Time
}

// Event represents a countdown update for observers.
type Event struct {
	Type      EventType
	Status    Status
	Previous  Status
	Remaining Duration
	Deadline  time.Time
	At        time.Time
}
