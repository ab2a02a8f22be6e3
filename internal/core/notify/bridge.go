package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"tock/internal/core/countdown"
)

// ErrPermissionDenied is returned by hosts that may not post notifications.
var ErrPermissionDenied = errors.New("notification permission denied")

// Kind distinguishes the two tickets the bridge manages.
type Kind string

const (
	KindSticky        Kind = "sticky"
	KindFallbackAlarm Kind = "fallback_alarm"
)

// TicketID is an opaque host handle.
type TicketID string

// Ticket is a live notification owned by the bridge.
type Ticket struct {
	ID   TicketID
	Kind Kind
	// At is the fire time for alarms and the post time for sticky tickets.
	At time.Time
}

// Content is what the host displays.
type Content struct {
	Kind  Kind
	Title string
	Body  string
	// Persistent asks the host to keep the notification until dismissed.
	Persistent bool
	// Urgent asks for the most attention-grabbing presentation available.
	Urgent bool
}

// Host is the notification scheduling capability.
type Host interface {
	Present(ctx context.Context, content Content) (TicketID, error)
	Schedule(ctx context.Context, content Content, at time.Time) (TicketID, error)
	Cancel(ctx context.Context, id TicketID) error
	Dismiss(ctx context.Context, id TicketID) error
}

// Texts holds the fixed notification strings.
type Texts struct {
	StickyTitle string
	AlarmTitle  string
	AlarmBody   string
}

// DefaultTexts returns the stock notification strings.
func DefaultTexts() Texts {
	return Texts{
		StickyTitle: "Timer running",
		AlarmTitle:  "Time's up!",
		AlarmBody:   "Your countdown has finished.",
	}
}

// Bridge mirrors a running countdown into a sticky ticket and keeps one
// fallback alarm scheduled for the deadline.
type Bridge struct {
	mu     sync.Mutex
	host   Host
	texts  Texts
	logger *slog.Logger

	sticky     *Ticket
	stickyText string
	alarm      *Ticket
	disabled   bool
}

// NewBridge creates a bridge. A nil host disables notifications.
func NewBridge(host Host, texts Texts, logger *slog.Logger) *Bridge {
	defaults := DefaultTexts()
	if texts.StickyTitle == "" {
		texts.StickyTitle = defaults.StickyTitle
	}
	if texts.AlarmTitle == "" {
		texts.AlarmTitle = defaults.AlarmTitle
	}
	if texts.AlarmBody == "" {
		texts.AlarmBody = defaults.AlarmBody
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bridge{
		host:     host,
		texts:    texts,
		logger:   logger,
		disabled: host == nil,
	}
}

// OnRunningTick refreshes the sticky ticket when the displayed time changed
// and makes sure exactly one alarm is scheduled for deadline.
func (bridge *Bridge) OnRunningTick(remaining countdown.Duration, deadline time.Time) {
	bridge.mu.Lock()
	defer bridge.mu.Unlock()
	if bridge.disabled {
		return
	}
	ctx := context.Background()

	text := remaining.String()
	if bridge.sticky == nil || bridge.stickyText != text {
		bridge.dismissStickyLocked(ctx)
		if bridge.disabled {
			return
		}
		id, err := bridge.host.Present(ctx, Content{
			Kind:       KindSticky,
			Title:      bridge.texts.StickyTitle,
			Body:       text,
			Persistent: true,
		})
		if bridge.handleErrorLocked("present sticky", err) {
			bridge.sticky = &Ticket{ID: id, Kind: KindSticky}
			bridge.stickyText = text
		}
	}

	if deadline.IsZero() || bridge.disabled {
		return
	}
	if bridge.alarm != nil && bridge.alarm.At.Equal(deadline) {
		return
	}
	bridge.cancelAlarmLocked(ctx)
	if bridge.disabled {
		return
	}
	id, err := bridge.host.Schedule(ctx, Content{
		Kind:   KindFallbackAlarm,
		Title:  bridge.texts.AlarmTitle,
		Body:   bridge.texts.AlarmBody,
		Urgent: true,
	}, deadline)
	if bridge.handleErrorLocked("schedule alarm", err) {
		bridge.alarm = &Ticket{ID: id, Kind: KindFallbackAlarm, At: deadline}
		bridge.logger.Debug("fallback alarm scheduled", "id", id, "at", deadline)
	}
}

// OnLeaveRunning cancels the pending alarm and dismisses the sticky ticket.
// Safe to call when neither exists.
func (bridge *Bridge) OnLeaveRunning() {
	bridge.mu.Lock()
	defer bridge.mu.Unlock()
	bridge.releaseLocked()
}

// OnFinishedInForeground releases both tickets; the in-process audio is the
// signal when the process is alive to see the deadline.
func (bridge *Bridge) OnFinishedInForeground() {
	bridge.mu.Lock()
	defer bridge.mu.Unlock()
	bridge.releaseLocked()
}

// Tickets returns the live tickets.
func (bridge *Bridge) Tickets() []Ticket {
	bridge.mu.Lock()
	defer bridge.mu.Unlock()
	var tickets []Ticket
	if bridge.sticky != nil {
		tickets = append(tickets, *bridge.sticky)
	}
	if bridge.alarm != nil {
		tickets = append(tickets, *bridge.alarm)
	}
	return tickets
}

// Disabled reports whether the host refused permission.
func (bridge *Bridge) Disabled() bool {
	bridge.mu.Lock()
	defer bridge.mu.Unlock()
	return bridge.disabled
}

func (bridge *Bridge) releaseLocked() {
	if bridge.disabled {
		return
	}
	ctx := context.Background()
	bridge.cancelAlarmLocked(ctx)
	bridge.dismissStickyLocked(ctx)
}

func (bridge *Bridge) cancelAlarmLocked(ctx context.Context) {
	if bridge.alarm == nil {
		return
	}
	id := bridge.alarm.ID
	bridge.alarm = nil
	if bridge.handleErrorLocked("cancel alarm", bridge.host.Cancel(ctx, id)) {
		bridge.logger.Debug("fallback alarm cancelled", "id", id)
	}
}

func (bridge *Bridge) dismissStickyLocked(ctx context.Context) {
	if bridge.sticky == nil {
		return
	}
	id := bridge.sticky.ID
	bridge.sticky = nil
	bridge.stickyText = ""
	bridge.handleErrorLocked("dismiss sticky", bridge.host.Dismiss(ctx, id))
}

// handleErrorLocked reports whether the host call succeeded. Permission
// denial is logged once and disables the bridge.
func (bridge *Bridge) handleErrorLocked(operation string, err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, ErrPermissionDenied) {
		if !bridge.disabled {
			bridge.disabled = true
			bridge.logger.Warn("notifications disabled", "operation", operation, "error", err)
			bridge.abandonLocked()
		}
		return false
	}
	bridge.logger.Warn("notification host error", "operation", operation, "error", err)
	return false
}

// abandonLocked withdraws whatever is still live after the bridge was
// disabled. The alarm cancel does not depend on notification permission, so a
// scheduled OS timer never outlives the running countdown.
func (bridge *Bridge) abandonLocked() {
	ctx := context.Background()
	if bridge.alarm != nil {
		id := bridge.alarm.ID
		bridge.alarm = nil
		if err := bridge.host.Cancel(ctx, id); err != nil {
			bridge.logger.Warn("cancel alarm after permission loss", "id", id, "error", err)
		}
	}
	if bridge.sticky != nil {
		id := bridge.sticky.ID
		bridge.sticky = nil
		bridge.stickyText = ""
		if err := bridge.host.Dismiss(ctx, id); err != nil {
			bridge.logger.Debug("dismiss sticky after permission loss", "id", id, "error", err)
		}
	}
}
