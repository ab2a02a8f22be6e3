package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"tock/internal/core/notify"
	"tock/internal/core/schedule"
)

// ErrNotifierUnavailable indicates no notification service could be reached.
var ErrNotifierUnavailable = errors.New("notifier unavailable")

// systemdGrace delays the OS timer slightly so a live process cancels it
// before it fires on the same deadline.
const systemdGrace = time.Second

// CommandRunner runs an external program to completion.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	output, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, output)
	}
	return nil
}

// SystemdAvailable reports whether transient user timers can be created.
func SystemdAvailable() bool {
	for _, tool := range []string{"systemd-run", "systemctl", "notify-send"} {
		if _, err := exec.LookPath(tool); err != nil {
			return false
		}
	}
	return true
}

// AlarmOptions configures how fallback alarms are scheduled.
//
// With Systemd set, the OS timer fires one second (systemdGrace) after the
// requested deadline, rounded up to whole seconds. A live process finishes
// in-process at the deadline and cancels the unit inside that second, so the
// user never sees a duplicate alert. A frozen or killed process is alerted up
// to about two seconds late. The in-process fallback fires at the deadline.
type AlarmOptions struct {
	// Systemd schedules through transient `systemd --user` timers so the
	// alarm fires even if this process is frozen or killed.
	Systemd bool
	Runner  CommandRunner
	AppName string
	Logger  *slog.Logger
}

type pendingAlarm struct {
	task schedule.Task
	unit string
}

// alarmBook schedules fallback alarms and remembers how to cancel them.
type alarmBook struct {
	mu        sync.Mutex
	scheduler schedule.Scheduler
	options   AlarmOptions
	logger    *slog.Logger
	pending   map[notify.TicketID]pendingAlarm
}

func newAlarmBook(scheduler schedule.Scheduler, options AlarmOptions) *alarmBook {
	if options.Runner == nil {
		options.Runner = execRunner{}
	}
	if options.AppName == "" {
		options.AppName = "tock"
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &alarmBook{
		scheduler: scheduler,
		options:   options,
		logger:    logger,
		pending:   map[notify.TicketID]pendingAlarm{},
	}
}

// schedule arranges for content to be shown at at. fire delivers it when
// the in-process fallback is used.
func (book *alarmBook) schedule(ctx context.Context, content notify.Content, at time.Time, fire func(notify.Content)) (notify.TicketID, error) {
	id := notify.TicketID(uuid.NewString())
	delay := at.Sub(book.scheduler.Now())
	if delay < 0 {
		delay = 0
	}

	if book.options.Systemd {
		unit := "tock-alarm-" + string(id)
		err := book.startUnit(ctx, unit, content, delay+systemdGrace)
		if err == nil {
			book.mu.Lock()
			book.pending[id] = pendingAlarm{unit: unit}
			book.mu.Unlock()
			return id, nil
		}
		book.logger.Warn("systemd timer unavailable, using in-process alarm", "error", err)
	}

	// Registered before scheduling so a zero delay cannot fire unseen.
	book.mu.Lock()
	book.pending[id] = pendingAlarm{}
	book.mu.Unlock()

	task := book.scheduler.After(delay, func() {
		book.mu.Lock()
		_, live := book.pending[id]
		delete(book.pending, id)
		book.mu.Unlock()
		if live {
			fire(content)
		}
	})

	book.mu.Lock()
	if alarm, live := book.pending[id]; live {
		alarm.task = task
		book.pending[id] = alarm
	}
	book.mu.Unlock()
	return id, nil
}

// cancel reports whether id was an alarm owned by the book.
func (book *alarmBook) cancel(ctx context.Context, id notify.TicketID) (bool, error) {
	book.mu.Lock()
	alarm, ok := book.pending[id]
	delete(book.pending, id)
	book.mu.Unlock()
	if !ok {
		return false, nil
	}
	if alarm.task != nil {
		alarm.task.Cancel()
	}
	if alarm.unit != "" {
		if err := book.options.Runner.Run(ctx, "systemctl", "--user", "stop", alarm.unit+".timer"); err != nil {
			return true, fmt.Errorf("stop alarm timer: %w", err)
		}
	}
	return true, nil
}

func (book *alarmBook) pendingCount() int {
	book.mu.Lock()
	defer book.mu.Unlock()
	return len(book.pending)
}

func (book *alarmBook) startUnit(ctx context.Context, unit string, content notify.Content, delay time.Duration) error {
	seconds := int(math.Ceil(delay.Seconds()))
	urgency := "normal"
	if content.Urgent {
		urgency = "critical"
	}
	return book.options.Runner.Run(ctx, "systemd-run",
		"--user",
		"--unit="+unit,
		"--collect",
		fmt.Sprintf("--on-active=%ds", seconds),
		"--timer-property=AccuracySec=1s",
		"notify-send",
		"--app-name="+book.options.AppName,
		"--urgency="+urgency,
		content.Title,
		content.Body,
	)
}
