// Package app assembles the countdown stack shared by the desktop and
// terminal shells.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"tock/internal/config"
	"tock/internal/core/countdown"
	"tock/internal/core/finish"
	"tock/internal/core/notify"
	"tock/internal/core/orchestrator"
	"tock/internal/core/schedule"
	"tock/internal/platform"
	"tock/internal/storage"
	"tock/resources"
)

// Options are the host capabilities a shell hands to NewCore.
type Options struct {
	Config    *config.Config
	Logger    *slog.Logger
	Scheduler schedule.Scheduler
	// Host posts notifications; nil disables them.
	Host notify.Host
	// Audio plays the finish signal; nil finishes silently.
	Audio finish.Backend
	// Inhibitor keeps the session awake while running; nil skips it.
	Inhibitor orchestrator.Inhibitor
}

// Core owns the orchestrator and its persistent collaborators.
type Core struct {
	Orchestrator *orchestrator.Orchestrator
	Preferences  *storage.Preferences

	store     *storage.FileStore
	history   *storage.History
	sequencer *finish.Sequencer
	logger    *slog.Logger

	watchCtx  context.Context
	stopWatch context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewCore builds the stack. Storage failures degrade to in-memory defaults
// and are logged rather than returned.
func NewCore(options Options) (*Core, error) {
	if options.Config == nil {
		return nil, errors.New("new core: config is required")
	}
	if options.Scheduler == nil {
		options.Scheduler = schedule.NewSystem()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg := options.Config

	store, err := storage.OpenFileStore(storage.StorePath(cfg.Storage.Dir), logger.With("component", "store"))
	if err != nil {
		logger.Warn("preferences unreadable, using defaults", "error", err)
	}
	prefs := storage.NewPreferences(store, logger.With("component", "preferences"))

	var recorder orchestrator.HistoryRecorder
	history, err := storage.OpenHistory(storage.HistoryPath(cfg.Storage.Dir))
	if err != nil {
		logger.Warn("finish history disabled", "error", err)
	} else {
		recorder = history
	}

	engine := countdown.New(options.Scheduler, countdown.Config{
		Initial: prefs.LoadDuration(),
		Store:   prefs,
		Logger:  logger.With("component", "countdown"),
	})

	sequencer := finish.New(options.Audio, options.Scheduler, finish.Config{
		Lookahead:    cfg.Audio.Lookahead,
		PollInterval: cfg.Audio.PollInterval,
		ReleaseDelay: cfg.Audio.ReleaseDelay,
		Logger:       logger.With("component", "finish"),
	})
	if options.Audio != nil {
		if err := sequencer.Preload(); err != nil {
			logger.Warn("finish audio unavailable, finishing silently", "error", err)
		}
	}

	bridge := notify.NewBridge(options.Host, notify.Texts{
		StickyTitle: cfg.Notification.StickyTitle,
		AlarmTitle:  cfg.Notification.AlarmTitle,
		AlarmBody:   cfg.Notification.AlarmBody,
	}, logger.With("component", "notify"))

	orch := orchestrator.New(engine, sequencer, bridge, options.Scheduler, orchestrator.Config{
		TickInterval: cfg.Timer.TickInterval,
		Variants:     prefs,
		History:      recorder,
		Inhibitor:    options.Inhibitor,
		Logger:       logger.With("component", "orchestrator"),
	})
	diagnostics := orch.Diagnostics()
	logger.Info("countdown ready",
		"audio", diagnostics.AudioLoaded,
		"notifications", !diagnostics.NotificationsDisabled,
		"keep_awake", options.Inhibitor != nil)

	watchCtx, stopWatch := context.WithCancel(context.Background())
	return &Core{
		watchCtx:     watchCtx,
		stopWatch:    stopWatch,
		Orchestrator: orch,
		Preferences:  prefs,
		store:        store,
		history:      history,
		sequencer:    sequencer,
		logger:       logger,
	}, nil
}

// WatchStore applies external edits of the preference file until Close.
// onChange runs after a reload has been applied.
func (core *Core) WatchStore(onChange func()) {
	if core.store == nil {
		return
	}
	core.wg.Add(1)
	go func() {
		defer core.wg.Done()
		err := core.store.Watch(core.watchCtx, func() {
			if core.Orchestrator.Restore(core.Preferences.LoadDuration()) {
				core.logger.Info("duration reloaded from store")
			}
			if onChange != nil {
				onChange()
			}
		})
		if err != nil {
			core.logger.Warn("store watch stopped", "error", err)
		}
	}()
}

// Close stops the countdown and releases storage and audio.
func (core *Core) Close() error {
	var err error
	core.closeOnce.Do(func() {
		core.stopWatch()
		core.wg.Wait()
		core.Orchestrator.Close()
		if live := core.Orchestrator.Diagnostics().LiveTickets; live > 0 {
			core.logger.Warn("notifications left behind at shutdown", "tickets", live)
		}
		err = errors.Join(err, core.sequencer.Close())
		if core.history != nil {
			err = errors.Join(err, core.history.Close())
		}
	})
	return err
}

// AudioSources maps each clip to its configured override or the bundled WAV.
func AudioSources(cfg config.AudioConfig) map[finish.ClipID]platform.ClipSource {
	pick := func(override, bundled string) platform.ClipSource {
		if override != "" {
			return func() (io.ReadCloser, error) {
				file, err := os.Open(override)
				if err != nil {
					return nil, fmt.Errorf("open clip override: %w", err)
				}
				return file, nil
			}
		}
		return func() (io.ReadCloser, error) {
			return resources.Clip(bundled)
		}
	}
	return map[finish.ClipID]platform.ClipSource{
		finish.ClipCue:    pick(cfg.CuePath, resources.ClipCue),
		finish.ClipVoiceA: pick(cfg.VoiceAPath, resources.ClipVoiceA),
		finish.ClipVoiceB: pick(cfg.VoiceBPath, resources.ClipVoiceB),
	}
}
