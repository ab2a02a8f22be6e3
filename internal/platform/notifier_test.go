package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"fyne.io/fyne/v2"
	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tock/internal/core/notify"
	"tock/internal/core/schedule"
)

var epoch = time.Date(2026, 7, 4, 18, 0, 0, 0, time.UTC)

type fakeBus struct {
	mu       sync.Mutex
	next     uint32
	open     map[uint32]notify.Content
	replaced []uint32
	closed   []uint32
	err      error
}

func newFakeBus() *fakeBus {
	return &fakeBus{open: map[uint32]notify.Content{}}
}

func (bus *fakeBus) Notify(_ context.Context, replaces uint32, content notify.Content) (uint32, error) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	if bus.err != nil {
		return 0, bus.err
	}
	if replaces != 0 {
		bus.replaced = append(bus.replaced, replaces)
		bus.open[replaces] = content
		return replaces, nil
	}
	bus.next++
	bus.open[bus.next] = content
	return bus.next, nil
}

func (bus *fakeBus) CloseNotification(_ context.Context, id uint32) error {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.closed = append(bus.closed, id)
	delete(bus.open, id)
	return nil
}

func (bus *fakeBus) Close() error { return nil }

func (bus *fakeBus) openCount() int {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return len(bus.open)
}

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (runner *fakeRunner) Run(_ context.Context, name string, args ...string) error {
	runner.mu.Lock()
	defer runner.mu.Unlock()
	runner.calls = append(runner.calls, append([]string{name}, args...))
	return runner.err
}

func sticky(body string) notify.Content {
	return notify.Content{Kind: notify.KindSticky, Title: "Timer running", Body: body, Persistent: true}
}

func alarm() notify.Content {
	return notify.Content{Kind: notify.KindFallbackAlarm, Title: "Time's up!", Body: "Your countdown has finished.", Urgent: true}
}

func TestDBusStickyReplacedInPlace(t *testing.T) {
	bus := newFakeBus()
	clock := schedule.NewManual(epoch)
	notifier := newDBusNotifier(bus, clock, AlarmOptions{})
	ctx := context.Background()

	first, err := notifier.Present(ctx, sticky("00:10"))
	require.NoError(t, err)
	require.NoError(t, notifier.Dismiss(ctx, first))

	_, err = notifier.Present(ctx, sticky("00:09"))
	require.NoError(t, err)

	assert.Equal(t, []uint32{1}, bus.replaced)
	assert.Empty(t, bus.closed)
	assert.Equal(t, "00:09", bus.open[1].Body)
}

func TestDBusStickyClosedAfterWindow(t *testing.T) {
	bus := newFakeBus()
	clock := schedule.NewManual(epoch)
	notifier := newDBusNotifier(bus, clock, AlarmOptions{})
	ctx := context.Background()

	id, err := notifier.Present(ctx, sticky("00:10"))
	require.NoError(t, err)
	require.NoError(t, notifier.Dismiss(ctx, id))
	assert.Equal(t, 1, bus.openCount())

	clock.Advance(stickyReplaceWindow)
	assert.Equal(t, 0, bus.openCount())
	assert.Equal(t, []uint32{1}, bus.closed)

	require.NoError(t, notifier.Dismiss(ctx, id))
	assert.Len(t, bus.closed, 1)
}

func TestDBusInProcessAlarm(t *testing.T) {
	bus := newFakeBus()
	clock := schedule.NewManual(epoch)
	notifier := newDBusNotifier(bus, clock, AlarmOptions{})
	ctx := context.Background()

	_, err := notifier.Schedule(ctx, alarm(), epoch.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, notifier.alarms.pendingCount())

	clock.Advance(29 * time.Second)
	assert.Equal(t, 0, bus.openCount())

	clock.Advance(time.Second)
	require.Equal(t, 1, bus.openCount())
	assert.True(t, bus.open[1].Urgent)
	assert.Equal(t, 0, notifier.alarms.pendingCount())
}

func TestDBusCancelInProcessAlarm(t *testing.T) {
	bus := newFakeBus()
	clock := schedule.NewManual(epoch)
	notifier := newDBusNotifier(bus, clock, AlarmOptions{})
	ctx := context.Background()

	id, err := notifier.Schedule(ctx, alarm(), epoch.Add(time.Second))
	require.NoError(t, err)
	require.NoError(t, notifier.Cancel(ctx, id))

	clock.Advance(time.Minute)
	assert.Equal(t, 0, bus.openCount())
	assert.Equal(t, 0, clock.Pending())
}

func TestSystemdAlarm(t *testing.T) {
	bus := newFakeBus()
	clock := schedule.NewManual(epoch)
	runner := &fakeRunner{}
	notifier := newDBusNotifier(bus, clock, AlarmOptions{Systemd: true, Runner: runner})
	ctx := context.Background()

	id, err := notifier.Schedule(ctx, alarm(), epoch.Add(90*time.Second+200*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 0, clock.Pending())

	require.Len(t, runner.calls, 1)
	call := strings.Join(runner.calls[0], " ")
	assert.True(t, strings.HasPrefix(call, "systemd-run --user --unit=tock-alarm-"+string(id)))
	assert.Contains(t, call, "--on-active=92s")
	assert.Contains(t, call, "notify-send --app-name=tock --urgency=critical Time's up! Your countdown has finished.")

	require.NoError(t, notifier.Cancel(ctx, id))
	require.Len(t, runner.calls, 2)
	assert.Equal(t, []string{"systemctl", "--user", "stop", "tock-alarm-" + string(id) + ".timer"}, runner.calls[1])

	require.NoError(t, notifier.Cancel(ctx, id))
	assert.Len(t, runner.calls, 2)
}

func TestSystemdAlarmFiresAfterGrace(t *testing.T) {
	clock := schedule.NewManual(epoch)
	runner := &fakeRunner{}
	notifier := newDBusNotifier(newFakeBus(), clock, AlarmOptions{Systemd: true, Runner: runner})

	_, err := notifier.Schedule(context.Background(), alarm(), epoch.Add(30*time.Second))
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	call := strings.Join(runner.calls[0], " ")
	assert.Contains(t, call, fmt.Sprintf("--on-active=%ds", 30+int(systemdGrace/time.Second)))
	assert.NotContains(t, call, "--on-active=30s")
}

func TestSystemdFailureFallsBack(t *testing.T) {
	bus := newFakeBus()
	clock := schedule.NewManual(epoch)
	runner := &fakeRunner{err: errors.New("no user manager")}
	notifier := newDBusNotifier(bus, clock, AlarmOptions{Systemd: true, Runner: runner})

	_, err := notifier.Schedule(context.Background(), alarm(), epoch.Add(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, clock.Pending())

	clock.Advance(5 * time.Second)
	assert.Equal(t, 1, bus.openCount())
}

func TestMapBusError(t *testing.T) {
	denied := mapBusError("notify", dbus.Error{Name: "org.freedesktop.DBus.Error.AccessDenied"})
	assert.ErrorIs(t, denied, notify.ErrPermissionDenied)

	pointer := mapBusError("notify", &dbus.Error{Name: "org.freedesktop.DBus.Error.ServiceUnknown"})
	assert.ErrorIs(t, pointer, ErrNotifierUnavailable)

	other := mapBusError("notify", errors.New("timeout"))
	assert.NotErrorIs(t, other, notify.ErrPermissionDenied)
	assert.EqualError(t, other, "notify: timeout")
}

type recordingMirror struct {
	mu    sync.Mutex
	shown []string
	clear int
}

func (mirror *recordingMirror) ShowSticky(_ string, body string) {
	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	mirror.shown = append(mirror.shown, body)
}

func (mirror *recordingMirror) ClearSticky() {
	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	mirror.clear++
}

func TestFyneNotifier(t *testing.T) {
	var sent []*fyne.Notification
	mirror := &recordingMirror{}
	clock := schedule.NewManual(epoch)
	notifier := newFyneNotifier(func(n *fyne.Notification) { sent = append(sent, n) }, mirror, clock, AlarmOptions{})
	ctx := context.Background()

	first, err := notifier.Present(ctx, sticky("00:03"))
	require.NoError(t, err)
	require.NoError(t, notifier.Dismiss(ctx, first))
	second, err := notifier.Present(ctx, sticky("00:02"))
	require.NoError(t, err)

	require.NoError(t, notifier.Dismiss(ctx, first))
	assert.Equal(t, []string{"00:03", "00:02"}, mirror.shown)
	assert.Equal(t, 1, mirror.clear)

	id, err := notifier.Schedule(ctx, alarm(), epoch.Add(2*time.Second))
	require.NoError(t, err)
	clock.Advance(2 * time.Second)
	require.Len(t, sent, 1)
	assert.Equal(t, "Time's up!", sent[0].Title)

	require.NoError(t, notifier.Cancel(ctx, id))
	require.NoError(t, notifier.Cancel(ctx, second))
	assert.Equal(t, 2, mirror.clear)
}
