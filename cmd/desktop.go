package main

import (
	"errors"
	"fmt"

	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/driver/desktop"
	"github.com/spf13/cobra"

	tockapp "tock/internal/app"
	"tock/internal/core/countdown"
	"tock/internal/core/finish"
	"tock/internal/core/schedule"
	"tock/internal/platform"
	"tock/internal/ui/tray"
	"tock/internal/ui/window"
	"tock/resources"
)

const notificationIcon = "alarm-symbolic"

func runDesktop(cmd *cobra.Command, _ []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer env.close()
	logger := env.logger
	cfg := env.config

	guard, err := platform.AcquireSingleInstance(appName)
	if errors.Is(err, platform.ErrAlreadyRunning) {
		logger.Info("tock is already running, activated the existing instance")
		return nil
	}
	if err != nil {
		return fmt.Errorf("single instance: %w", err)
	}
	defer func() {
		_ = guard.Release()
	}()

	fyneApp := fyneapp.NewWithID(appID)
	fyneApp.SetIcon(resources.MustIcon())
	desktopApp, ok := fyneApp.(desktop.App)
	if !ok {
		return errors.New("system tray unsupported on this platform")
	}

	scheduler := schedule.NewSystem()
	audio, closeAudio := env.newAudio()
	defer closeAudio()
	inhibitor, closeInhibitor := env.newInhibitor()
	defer closeInhibitor()

	presets := make([]countdown.Duration, 0, len(cfg.Timer.PresetSeconds))
	for _, seconds := range cfg.Timer.PresetSeconds {
		presets = append(presets, countdown.DurationOf(seconds))
	}

	var core *tockapp.Core
	var view *window.Window
	var trayManager *tray.Manager
	trayManager = tray.New(desktopApp, tray.Config{
		AdjustStep: cfg.Timer.AdjustStep,
		Presets:    presets,
	}, tray.Callbacks{
		OnShow: func() {
			view.Show()
			core.Orchestrator.Refresh()
		},
		OnToggle: func() { logFailure(logger, "toggle", core.Orchestrator.Toggle()) },
		OnReset:  func() { core.Orchestrator.Reset() },
		OnAdjust: func(delta int) { logFailure(logger, "adjust", core.Orchestrator.Adjust(delta)) },
		OnPreset: func(duration countdown.Duration) {
			logFailure(logger, "configure", core.Orchestrator.Configure(duration.Minutes, duration.Seconds))
		},
		OnVariant: func(variant finish.Variant) {
			if err := core.Preferences.SetVariant(variant); err != nil {
				logger.Warn("save voice variant", "error", err)
				return
			}
			trayManager.SetVariant(variant)
		},
		OnQuit: fyneApp.Quit,
	})
	desktopApp.SetSystemTrayIcon(resources.MustIcon())

	host, releaseHost := tockapp.NewHost(tockapp.HostOptions{
		Config:    cfg.Notification,
		Scheduler: scheduler,
		Logger:    logger,
		FyneApp:   fyneApp,
		Mirror:    trayManager,
		Icon:      notificationIcon,
	})
	defer releaseHost()

	core, err = tockapp.NewCore(tockapp.Options{
		Config:    cfg,
		Logger:    logger,
		Scheduler: scheduler,
		Host:      host,
		Audio:     audio,
		Inhibitor: inhibitor,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := core.Close(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()
	trayManager.SetVariant(core.Preferences.Variant())

	view = window.New(fyneApp, window.Config{Title: appName, AdjustStep: cfg.Timer.AdjustStep}, window.Callbacks{
		OnToggle: func() { logFailure(logger, "toggle", core.Orchestrator.Toggle()) },
		OnReset:  func() { core.Orchestrator.Reset() },
		OnAdjust: func(delta int) { logFailure(logger, "adjust", core.Orchestrator.Adjust(delta)) },
	})

	render := func() {
		snapshot := core.Orchestrator.Snapshot()
		view.Render(snapshot)
		trayManager.SetSnapshot(snapshot)
	}
	events := core.Orchestrator.Subscribe(8)
	go func() {
		for range events {
			render()
		}
	}()
	render()

	fyneApp.Lifecycle().SetOnEnteredForeground(func() {
		core.Orchestrator.Refresh()
	})
	guard.Serve(func() {
		view.Show()
		core.Orchestrator.Refresh()
	})
	core.WatchStore(func() {
		trayManager.SetVariant(core.Preferences.Variant())
	})

	logger.Info("tock started", "duration", core.Orchestrator.Snapshot().Initial.String())
	view.Show()
	fyneApp.Run()
	return nil
}
