package app

import (
	"log/slog"

	"fyne.io/fyne/v2"

	"tock/internal/config"
	"tock/internal/core/notify"
	"tock/internal/core/schedule"
	"tock/internal/platform"
)

// HostOptions describes what the shell can offer for notifications.
type HostOptions struct {
	Config    config.NotificationConfig
	Scheduler schedule.Scheduler
	Logger    *slog.Logger
	// FyneApp and Mirror are set by the desktop shell only.
	FyneApp fyne.App
	Mirror  platform.StickyMirror
	Icon    string
}

// NewHost picks the notification backend. It returns a nil host when
// notifications are off or nothing is reachable, plus a release function
// that is always safe to call.
func NewHost(options HostOptions) (notify.Host, func()) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	alarms := platform.AlarmOptions{
		Systemd: options.Config.SystemdTimer && platform.SystemdAvailable(),
		AppName: "tock",
		Logger:  logger.With("component", "alarm"),
	}

	dbusHost := func() (notify.Host, func(), bool) {
		notifier, err := platform.NewDBusNotifier(options.Scheduler, options.Icon, alarms)
		if err != nil {
			logger.Info("desktop notifications unavailable", "error", err)
			return nil, func() {}, false
		}
		return notifier, func() {
			if err := notifier.Close(); err != nil {
				logger.Debug("close notifier", "error", err)
			}
		}, true
	}
	fyneHost := func() (notify.Host, func(), bool) {
		if options.FyneApp == nil {
			return nil, func() {}, false
		}
		return platform.NewFyneNotifier(options.FyneApp, options.Mirror, options.Scheduler, alarms), func() {}, true
	}

	switch options.Config.Backend {
	case config.BackendNone:
		return nil, func() {}
	case config.BackendDBus:
		host, release, _ := dbusHost()
		return host, release
	case config.BackendFyne:
		host, release, _ := fyneHost()
		return host, release
	}

	if host, release, ok := dbusHost(); ok {
		return host, release
	}
	host, release, _ := fyneHost()
	return host, release
}
