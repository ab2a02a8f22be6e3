package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"tock/internal/core/notify"
	"tock/internal/core/schedule"
)

const (
	notificationsName = "org.freedesktop.Notifications"
	notificationsPath = dbus.ObjectPath("/org/freedesktop/Notifications")

	// stickyReplaceWindow keeps a dismissed sticky on screen briefly so the
	// next Present can update it in place instead of flashing a new popup.
	stickyReplaceWindow = 250 * time.Millisecond
)

// notificationBus is the subset of the freedesktop notification API in use.
type notificationBus interface {
	Notify(ctx context.Context, replaces uint32, content notify.Content) (uint32, error)
	CloseNotification(ctx context.Context, id uint32) error
	Close() error
}

type dbusBus struct {
	conn    *dbus.Conn
	object  dbus.BusObject
	appName string
	icon    string
}

func connectNotificationBus(appName, icon string) (*dbusBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("%w: connect session bus: %v", ErrNotifierUnavailable, err)
	}
	bus := &dbusBus{
		conn:    conn,
		object:  conn.Object(notificationsName, notificationsPath),
		appName: appName,
		icon:    icon,
	}
	var name, vendor, version, specVersion string
	call := bus.object.Call(notificationsName+".GetServerInformation", 0)
	if err := call.Store(&name, &vendor, &version, &specVersion); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: query notification server: %v", ErrNotifierUnavailable, err)
	}
	return bus, nil
}

func (bus *dbusBus) Notify(ctx context.Context, replaces uint32, content notify.Content) (uint32, error) {
	urgency := byte(1)
	if content.Urgent {
		urgency = 2
	}
	hints := map[string]dbus.Variant{
		"urgency":  dbus.MakeVariant(urgency),
		"category": dbus.MakeVariant("x-tock.timer"),
	}
	expire := int32(-1)
	if content.Persistent {
		hints["resident"] = dbus.MakeVariant(true)
		hints["transient"] = dbus.MakeVariant(false)
		expire = 0
	}

	var id uint32
	call := bus.object.CallWithContext(ctx, notificationsName+".Notify", 0,
		bus.appName, replaces, bus.icon, content.Title, content.Body, []string{}, hints, expire)
	if err := call.Store(&id); err != nil {
		return 0, mapBusError("notify", err)
	}
	return id, nil
}

func (bus *dbusBus) CloseNotification(ctx context.Context, id uint32) error {
	call := bus.object.CallWithContext(ctx, notificationsName+".CloseNotification", 0, id)
	if call.Err != nil {
		return mapBusError("close notification", call.Err)
	}
	return nil
}

func (bus *dbusBus) Close() error {
	return bus.conn.Close()
}

func mapBusError(operation string, err error) error {
	var name string
	var valueErr dbus.Error
	var pointerErr *dbus.Error
	switch {
	case errors.As(err, &valueErr):
		name = valueErr.Name
	case errors.As(err, &pointerErr):
		name = pointerErr.Name
	}
	switch name {
	case "org.freedesktop.DBus.Error.AccessDenied", "org.freedesktop.DBus.Error.AuthFailed":
		return fmt.Errorf("%s: %w: %v", operation, notify.ErrPermissionDenied, err)
	case "org.freedesktop.DBus.Error.ServiceUnknown", "org.freedesktop.DBus.Error.NameHasNoOwner":
		return fmt.Errorf("%s: %w: %v", operation, ErrNotifierUnavailable, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

type shownNotification struct {
	busID uint32
	kind  notify.Kind
}

type pendingClose struct {
	busID uint32
	task  schedule.Task
}

// DBusNotifier posts notifications through org.freedesktop.Notifications.
// Sticky tickets are resident and never expire; fallback alarms are handed
// to systemd when possible.
type DBusNotifier struct {
	mu        sync.Mutex
	bus       notificationBus
	scheduler schedule.Scheduler
	alarms    *alarmBook
	logger    *slog.Logger

	shown   map[notify.TicketID]shownNotification
	closing *pendingClose
}

// NewDBusNotifier connects to the session bus.
func NewDBusNotifier(scheduler schedule.Scheduler, icon string, options AlarmOptions) (*DBusNotifier, error) {
	appName := options.AppName
	if appName == "" {
		appName = "tock"
	}
	bus, err := connectNotificationBus(appName, icon)
	if err != nil {
		return nil, err
	}
	return newDBusNotifier(bus, scheduler, options), nil
}

func newDBusNotifier(bus notificationBus, scheduler schedule.Scheduler, options AlarmOptions) *DBusNotifier {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DBusNotifier{
		bus:       bus,
		scheduler: scheduler,
		alarms:    newAlarmBook(scheduler, options),
		logger:    logger,
		shown:     map[notify.TicketID]shownNotification{},
	}
}

// Present shows content now.
func (notifier *DBusNotifier) Present(ctx context.Context, content notify.Content) (notify.TicketID, error) {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()

	var replaces uint32
	if content.Kind == notify.KindSticky && notifier.closing != nil {
		notifier.closing.task.Cancel()
		replaces = notifier.closing.busID
		notifier.closing = nil
	}

	busID, err := notifier.bus.Notify(ctx, replaces, content)
	if err != nil {
		if replaces != 0 {
			notifier.closeQuietly(ctx, replaces)
		}
		return "", err
	}
	id := notify.TicketID(uuid.NewString())
	notifier.shown[id] = shownNotification{busID: busID, kind: content.Kind}
	return id, nil
}

// Schedule arranges for content to appear at at.
func (notifier *DBusNotifier) Schedule(ctx context.Context, content notify.Content, at time.Time) (notify.TicketID, error) {
	return notifier.alarms.schedule(ctx, content, at, notifier.deliver)
}

// Cancel withdraws a scheduled alarm, or dismisses a shown ticket.
func (notifier *DBusNotifier) Cancel(ctx context.Context, id notify.TicketID) error {
	handled, err := notifier.alarms.cancel(ctx, id)
	if handled {
		return err
	}
	return notifier.Dismiss(ctx, id)
}

// Dismiss removes a shown ticket. Unknown tickets are ignored.
func (notifier *DBusNotifier) Dismiss(ctx context.Context, id notify.TicketID) error {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()

	shown, ok := notifier.shown[id]
	if !ok {
		return nil
	}
	delete(notifier.shown, id)

	if shown.kind != notify.KindSticky {
		return notifier.bus.CloseNotification(ctx, shown.busID)
	}

	notifier.flushClosingLocked(ctx)
	closing := &pendingClose{busID: shown.busID}
	closing.task = notifier.scheduler.After(stickyReplaceWindow, func() {
		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		if notifier.closing != closing {
			return
		}
		notifier.closing = nil
		notifier.closeQuietly(context.Background(), closing.busID)
	})
	notifier.closing = closing
	return nil
}

// Close withdraws everything still on screen and releases the bus.
func (notifier *DBusNotifier) Close() error {
	notifier.mu.Lock()
	ctx := context.Background()
	notifier.flushClosingLocked(ctx)
	for id, shown := range notifier.shown {
		notifier.closeQuietly(ctx, shown.busID)
		delete(notifier.shown, id)
	}
	notifier.mu.Unlock()
	return notifier.bus.Close()
}

func (notifier *DBusNotifier) deliver(content notify.Content) {
	if _, err := notifier.bus.Notify(context.Background(), 0, content); err != nil {
		notifier.logger.Warn("deliver alarm failed", "error", err)
	}
}

func (notifier *DBusNotifier) flushClosingLocked(ctx context.Context) {
	if notifier.closing == nil {
		return
	}
	notifier.closing.task.Cancel()
	notifier.closeQuietly(ctx, notifier.closing.busID)
	notifier.closing = nil
}

func (notifier *DBusNotifier) closeQuietly(ctx context.Context, busID uint32) {
	if err := notifier.bus.CloseNotification(ctx, busID); err != nil {
		notifier.logger.Debug("close notification failed", "id", busID, "error", err)
	}
}
