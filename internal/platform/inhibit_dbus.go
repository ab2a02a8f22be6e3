package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	screenSaverName = "org.freedesktop.ScreenSaver"
	screenSaverPath = dbus.ObjectPath("/org/freedesktop/ScreenSaver")

	inhibitTimeout = 2 * time.Second
)

// ErrInhibitUnavailable is returned when no screensaver service owns the bus name.
var ErrInhibitUnavailable = errors.New("keep awake unavailable")

type inhibitBus interface {
	Inhibit(ctx context.Context, appName, reason string) (uint32, error)
	UnInhibit(ctx context.Context, cookie uint32) error
	Close() error
}

type screenSaverBus struct {
	conn   *dbus.Conn
	object dbus.BusObject
}

func connectScreenSaver() (*screenSaverBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("%w: connect session bus: %v", ErrInhibitUnavailable, err)
	}
	var owned bool
	call := conn.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, screenSaverName)
	if err := call.Store(&owned); err != nil || !owned {
		conn.Close()
		if err == nil {
			err = errors.New("no owner for " + screenSaverName)
		}
		return nil, fmt.Errorf("%w: %v", ErrInhibitUnavailable, err)
	}
	return &screenSaverBus{conn: conn, object: conn.Object(screenSaverName, screenSaverPath)}, nil
}

func (bus *screenSaverBus) Inhibit(ctx context.Context, appName, reason string) (uint32, error) {
	var cookie uint32
	call := bus.object.CallWithContext(ctx, screenSaverName+".Inhibit", 0, appName, reason)
	if err := call.Store(&cookie); err != nil {
		return 0, fmt.Errorf("inhibit screensaver: %w", err)
	}
	return cookie, nil
}

func (bus *screenSaverBus) UnInhibit(ctx context.Context, cookie uint32) error {
	call := bus.object.CallWithContext(ctx, screenSaverName+".UnInhibit", 0, cookie)
	if call.Err != nil {
		return fmt.Errorf("uninhibit screensaver: %w", call.Err)
	}
	return nil
}

func (bus *screenSaverBus) Close() error {
	return bus.conn.Close()
}

// ScreenSaverInhibitor keeps the session from idling through the
// org.freedesktop.ScreenSaver interface while a countdown runs.
type ScreenSaverInhibitor struct {
	mu      sync.Mutex
	bus     inhibitBus
	appName string
	logger  *slog.Logger
	cookies map[uint32]struct{}
}

// NewScreenSaverInhibitor connects to the session bus.
func NewScreenSaverInhibitor(appName string, logger *slog.Logger) (*ScreenSaverInhibitor, error) {
	bus, err := connectScreenSaver()
	if err != nil {
		return nil, err
	}
	return newScreenSaverInhibitor(bus, appName, logger), nil
}

func newScreenSaverInhibitor(bus inhibitBus, appName string, logger *slog.Logger) *ScreenSaverInhibitor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ScreenSaverInhibitor{
		bus:     bus,
		appName: appName,
		logger:  logger,
		cookies: map[uint32]struct{}{},
	}
}

// Inhibit takes a cookie. The returned release is safe to call more than once.
func (inhibitor *ScreenSaverInhibitor) Inhibit(reason string) (func() error, error) {
	ctx, cancel := context.WithTimeout(context.Background(), inhibitTimeout)
	defer cancel()
	cookie, err := inhibitor.bus.Inhibit(ctx, inhibitor.appName, reason)
	if err != nil {
		return nil, err
	}

	inhibitor.mu.Lock()
	inhibitor.cookies[cookie] = struct{}{}
	inhibitor.mu.Unlock()
	inhibitor.logger.Debug("screensaver inhibited", "cookie", cookie)

	return sync.OnceValue(func() error {
		return inhibitor.release(cookie)
	}), nil
}

func (inhibitor *ScreenSaverInhibitor) release(cookie uint32) error {
	inhibitor.mu.Lock()
	_, held := inhibitor.cookies[cookie]
	delete(inhibitor.cookies, cookie)
	inhibitor.mu.Unlock()
	if !held {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), inhibitTimeout)
	defer cancel()
	if err := inhibitor.bus.UnInhibit(ctx, cookie); err != nil {
		return err
	}
	inhibitor.logger.Debug("screensaver released", "cookie", cookie)
	return nil
}

// Close releases outstanding cookies and disconnects.
func (inhibitor *ScreenSaverInhibitor) Close() error {
	inhibitor.mu.Lock()
	cookies := make([]uint32, 0, len(inhibitor.cookies))
	for cookie := range inhibitor.cookies {
		cookies = append(cookies, cookie)
	}
	inhibitor.mu.Unlock()

	var err error
	for _, cookie := range cookies {
		err = errors.Join(err, inhibitor.release(cookie))
	}
	return errors.Join(err, inhibitor.bus.Close())
}
