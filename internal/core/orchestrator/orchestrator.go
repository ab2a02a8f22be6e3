package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tock/internal/core/countdown"
	"tock/internal/core/finish"
	"tock/internal/core/notify"
	"tock/internal/core/schedule"
)

// VariantSource supplies the preferred voice variant at finish time.
type VariantSource interface {
	Variant() finish.Variant
}

// FinishRecord describes one resolved finish episode.
type FinishRecord struct {
	Duration   countdown.Duration
	Variant    finish.Variant
	Outcome    finish.Outcome
	FinishedAt time.Time
}

// HistoryRecorder stores resolved finish episodes.
type HistoryRecorder interface {
	RecordFinish(ctx context.Context, record FinishRecord) error
}

// Inhibitor keeps the session from idling or sleeping. Release undoes one
// successful Inhibit.
type Inhibitor interface {
	Inhibit(reason string) (release func() error, err error)
}

// Config contains runtime options for Orchestrator.
type Config struct {
	TickInterval time.Duration
	Variants     VariantSource
	History      HistoryRecorder
	// Inhibitor holds the session awake while Running; nil skips it.
	Inhibitor Inhibitor
	Logger    *slog.Logger
}

// Diagnostics summarizes which signals are available.
type Diagnostics struct {
	AudioLoaded           bool
	NotificationsDisabled bool
	LiveTickets           int
	KeepingAwake          bool
}

const awakeReason = "countdown running"

// Orchestrator wires the countdown engine to the finish sequencer and the
// notification bridge. Every operation runs under one lock, so user actions
// never interleave with an in-flight tick.
type Orchestrator struct {
	mu        sync.Mutex
	engine    *countdown.Engine
	sequencer *finish.Sequencer
	bridge    *notify.Bridge
	scheduler schedule.Scheduler
	config    Config
	logger    *slog.Logger

	ticking     schedule.Task
	release     func() error
	episode     *finish.Episode
	episodeFrom countdown.Duration
	closed      bool
}

// New creates an Orchestrator around already constructed components.
func New(engine *countdown.Engine, sequencer *finish.Sequencer, bridge *notify.Bridge, scheduler schedule.Scheduler, config Config) *Orchestrator {
	if config.TickInterval <= 0 {
		config.TickInterval = 100 * time.Millisecond
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		engine:    engine,
		sequencer: sequencer,
		bridge:    bridge,
		scheduler: scheduler,
		config:    config,
		logger:    logger,
	}
}

// Subscribe forwards to the engine's observer channels.
func (orch *Orchestrator) Subscribe(buffer int) <-chan countdown.Event {
	return orch.engine.Subscribe(buffer)
}

// Snapshot returns the engine state.
func (orch *Orchestrator) Snapshot() countdown.Snapshot {
	return orch.engine.Snapshot()
}

// Diagnostics reports audio, notification and keep-awake state.
func (orch *Orchestrator) Diagnostics() Diagnostics {
	orch.mu.Lock()
	defer orch.mu.Unlock()
	return Diagnostics{
		AudioLoaded:           orch.sequencer.Loaded(),
		NotificationsDisabled: orch.bridge.Disabled(),
		LiveTickets:           len(orch.bridge.Tickets()),
		KeepingAwake:          orch.release != nil,
	}
}

// Episode returns the finish episode in progress, if any.
func (orch *Orchestrator) Episode() *finish.Episode {
	orch.mu.Lock()
	defer orch.mu.Unlock()
	return orch.episode
}

// Configure sets the countdown duration while idle.
func (orch *Orchestrator) Configure(minutes, seconds int) error {
	orch.mu.Lock()
	defer orch.mu.Unlock()
	return orch.engine.Configure(minutes, seconds)
}

// Restore applies a duration loaded from storage while idle.
func (orch *Orchestrator) Restore(duration countdown.Duration) bool {
	orch.mu.Lock()
	defer orch.mu.Unlock()
	return orch.engine.Restore(duration)
}

// Start begins or resumes the countdown.
func (orch *Orchestrator) Start() error {
	orch.mu.Lock()
	defer orch.mu.Unlock()
	return orch.startLocked()
}

func (orch *Orchestrator) startLocked() error {
	if err := orch.engine.Start(); err != nil {
		return err
	}
	snapshot := orch.engine.Snapshot()
	orch.bridge.OnRunningTick(snapshot.Remaining, snapshot.Deadline)
	orch.startTickingLocked()
	orch.keepAwakeLocked()
	return nil
}

// Pause freezes the countdown and releases the running notifications.
func (orch *Orchestrator) Pause() error {
	orch.mu.Lock()
	defer orch.mu.Unlock()
	return orch.pauseLocked()
}

func (orch *Orchestrator) pauseLocked() error {
	if err := orch.engine.Pause(); err != nil {
		return err
	}
	orch.stopTickingLocked()
	orch.bridge.OnLeaveRunning()
	orch.allowSleepLocked()
	return nil
}

// Toggle starts when idle or paused and pauses when running. The branch is
// chosen under the lock, so a tick cannot finish the countdown in between.
func (orch *Orchestrator) Toggle() error {
	orch.mu.Lock()
	defer orch.mu.Unlock()
	if orch.engine.Snapshot().Status == countdown.StatusRunning {
		return orch.pauseLocked()
	}
	return orch.startLocked()
}

// Reset returns to idle from any state. A finish signal still playing is
// stopped, which counts as the user dismissing it.
func (orch *Orchestrator) Reset() {
	orch.mu.Lock()
	defer orch.mu.Unlock()

	previous := orch.engine.Snapshot().Status
	orch.engine.Reset()
	orch.stopTickingLocked()
	if previous == countdown.StatusRunning {
		orch.bridge.OnLeaveRunning()
	}
	orch.allowSleepLocked()
	if orch.episode != nil {
		orch.sequencer.Stop()
		orch.recordLocked(orch.episode)
		orch.episode = nil
	}
}

// Adjust shifts the remaining time by deltaSeconds.
func (orch *Orchestrator) Adjust(deltaSeconds int) error {
	orch.mu.Lock()
	defer orch.mu.Unlock()

	if err := orch.engine.Adjust(deltaSeconds); err != nil {
		return err
	}
	snapshot := orch.engine.Snapshot()
	if snapshot.Status == countdown.StatusRunning {
		orch.bridge.OnRunningTick(snapshot.Remaining, snapshot.Deadline)
	}
	return nil
}

// Refresh runs a tick immediately. Hosts call it when the process returns to
// the foreground so the display converges without waiting for the cadence.
func (orch *Orchestrator) Refresh() countdown.Snapshot {
	orch.mu.Lock()
	defer orch.mu.Unlock()
	return orch.tickLocked()
}

// Close stops ticking, silences any finish signal and releases notifications.
func (orch *Orchestrator) Close() {
	orch.mu.Lock()
	if orch.closed {
		orch.mu.Unlock()
		return
	}
	orch.closed = true
	orch.stopTickingLocked()
	orch.bridge.OnLeaveRunning()
	orch.allowSleepLocked()
	if orch.episode != nil {
		orch.sequencer.Stop()
		orch.episode = nil
	}
	orch.mu.Unlock()

	orch.engine.Close()
}

func (orch *Orchestrator) tick() {
	orch.mu.Lock()
	defer orch.mu.Unlock()
	orch.tickLocked()
}

func (orch *Orchestrator) tickLocked() countdown.Snapshot {
	before := orch.engine.Snapshot().Status
	snapshot := orch.engine.Tick()

	switch {
	case snapshot.Status == countdown.StatusRunning:
		orch.bridge.OnRunningTick(snapshot.Remaining, snapshot.Deadline)
	case before == countdown.StatusRunning && snapshot.Status == countdown.StatusFinished:
		orch.stopTickingLocked()
		orch.bridge.OnFinishedInForeground()
		orch.allowSleepLocked()
		orch.beginFinishLocked(snapshot)
		return orch.engine.Snapshot()
	}
	return snapshot
}

func (orch *Orchestrator) beginFinishLocked(snapshot countdown.Snapshot) {
	if orch.episode != nil {
		orch.sequencer.Stop()
		orch.episode = nil
	}

	variant := finish.VariantA
	if orch.config.Variants != nil {
		variant = orch.config.Variants.Variant()
	}
	episode := orch.sequencer.Play(variant, nil)
	orch.episode = episode
	orch.episodeFrom = snapshot.Initial

	if episode.Resolved() {
		orch.completeFinishLocked(episode)
		return
	}
	go orch.awaitFinish(episode)
}

func (orch *Orchestrator) awaitFinish(episode *finish.Episode) {
	<-episode.Done()

	orch.mu.Lock()
	defer orch.mu.Unlock()
	if orch.episode != episode {
		return
	}
	orch.completeFinishLocked(episode)
}

func (orch *Orchestrator) completeFinishLocked(episode *finish.Episode) {
	orch.episode = nil
	orch.recordLocked(episode)
	if orch.engine.Snapshot().Status == countdown.StatusFinished {
		orch.engine.Reset()
	}
	orch.logger.Info("finish episode complete", "outcome", episode.Outcome(), "variant", episode.Variant())
}

func (orch *Orchestrator) recordLocked(episode *finish.Episode) {
	if orch.config.History == nil {
		return
	}
	record := FinishRecord{
		Duration:   orch.episodeFrom,
		Variant:    episode.Variant(),
		Outcome:    episode.Outcome(),
		FinishedAt: orch.scheduler.Now(),
	}
	if err := orch.config.History.RecordFinish(context.Background(), record); err != nil {
		orch.logger.Warn("record finish failed", "error", err)
	}
}

func (orch *Orchestrator) startTickingLocked() {
	orch.stopTickingLocked()
	orch.ticking = orch.scheduler.Every(orch.config.TickInterval, orch.tick)
}

func (orch *Orchestrator) stopTickingLocked() {
	if orch.ticking != nil {
		orch.ticking.Cancel()
		orch.ticking = nil
	}
}

func (orch *Orchestrator) keepAwakeLocked() {
	if orch.config.Inhibitor == nil || orch.release != nil {
		return
	}
	release, err := orch.config.Inhibitor.Inhibit(awakeReason)
	if err != nil {
		orch.logger.Warn("keep awake failed", "error", err)
		return
	}
	orch.release = release
}

func (orch *Orchestrator) allowSleepLocked() {
	if orch.release == nil {
		return
	}
	release := orch.release
	orch.release = nil
	if err := release(); err != nil {
		orch.logger.Warn("release keep awake", "error", err)
	}
}
