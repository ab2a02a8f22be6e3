package finish

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tock/internal/core/schedule"
)

var (
	// ErrNotLoaded indicates the clips were never preloaded or failed to load.
	ErrNotLoaded = errors.New("audio clips not loaded")
	// ErrDuckingUnsupported is returned by backends that cannot lower other audio.
	ErrDuckingUnsupported = errors.New("audio ducking unsupported")
)

// ClipID names one of the preloaded clips.
type ClipID string

const (
	ClipCue    ClipID = "cue"
	ClipVoiceA ClipID = "voice_a"
	ClipVoiceB ClipID = "voice_b"
)

// Clip is a loaded, replayable sound.
type Clip interface {
	// Play starts the clip from position zero. onFinished is invoked
	// asynchronously when the clip plays to its end, never after Stop.
	Play(onFinished func()) error
	Stop() error
	Position() time.Duration
	Length() time.Duration
	Close() error
}

// Backend is the host audio capability.
type Backend interface {
	Load(id ClipID) (Clip, error)
	SetDucking(enabled bool) error
	SetEnabled(enabled bool) error
}

// Config tunes the finish sequence.
type Config struct {
	// Lookahead is how close to the end of the cue the voice line starts.
	Lookahead time.Duration
	// PollInterval is the cue position monitor cadence.
	PollInterval time.Duration
	// ReleaseDelay separates the end of the voice line from releasing ducking.
	ReleaseDelay time.Duration
	Logger       *slog.Logger
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		Lookahead:    800 * time.Millisecond,
		PollInterval: 50 * time.Millisecond,
		ReleaseDelay: 300 * time.Millisecond,
	}
}

// Sequencer plays the two-stage finish signal: a short cue, then a voice line
// started slightly before the cue ends.
type Sequencer struct {
	mu        sync.Mutex
	backend   Backend
	scheduler schedule.Scheduler
	config    Config
	logger    *slog.Logger

	clips  map[ClipID]Clip
	loaded bool

	active  *Episode
	monitor schedule.Task
	release schedule.Task

	duckingReported bool
}

// New creates a Sequencer. A nil backend keeps the sequencer silent.
func New(backend Backend, scheduler schedule.Scheduler, config Config) *Sequencer {
	defaults := DefaultConfig()
	if config.Lookahead <= 0 {
		config.Lookahead = defaults.Lookahead
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.ReleaseDelay < 0 {
		config.ReleaseDelay = defaults.ReleaseDelay
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sequencer{
		backend:   backend,
		scheduler: scheduler,
		config:    config,
		logger:    logger,
	}
}

// Preload loads the cue and both voice lines. On failure everything already
// loaded is released and Play degrades to a silent, immediately complete
// episode. The error is informational.
func (sequencer *Sequencer) Preload() error {
	sequencer.mu.Lock()
	defer sequencer.mu.Unlock()

	if sequencer.loaded {
		return nil
	}
	if sequencer.backend == nil {
		sequencer.logger.Warn("no audio backend, finish signal will be silent")
		return ErrNotLoaded
	}

	clips := make(map[ClipID]Clip, 3)
	for _, id := range []ClipID{ClipCue, ClipVoiceA, ClipVoiceB} {
		clip, err := sequencer.backend.Load(id)
		if err != nil {
			closeClips(clips)
			sequencer.logger.Warn("audio preload failed, finish signal will be silent", "clip", id, "error", err)
			return fmt.Errorf("load clip %s: %w", id, err)
		}
		clips[id] = clip
	}

	sequencer.clips = clips
	sequencer.loaded = true
	sequencer.logger.Debug("audio clips preloaded")
	return nil
}

// Loaded reports whether Play will produce sound.
func (sequencer *Sequencer) Loaded() bool {
	sequencer.mu.Lock()
	defer sequencer.mu.Unlock()
	return sequencer.loaded
}

// activeEpisode returns the unresolved episode, if any.
func (sequencer *Sequencer) activeEpisode() *Episode {
	sequencer.mu.Lock()
	defer sequencer.mu.Unlock()
	return sequencer.active
}

// Play starts a finish episode. Any episode still active is stopped first.
// When the clips are not loaded the returned episode is already resolved as
// OutcomeSilent and onComplete has run. onComplete may be nil.
func (sequencer *Sequencer) Play(variant Variant, onComplete func()) *Episode {
	episode := newEpisode(variant, onComplete)

	sequencer.mu.Lock()
	sequencer.stopLocked()

	if !sequencer.loaded {
		sequencer.mu.Unlock()
		sequencer.logger.Debug("finish signal skipped, audio not loaded")
		episode.complete(OutcomeSilent)
		return episode
	}

	cue := sequencer.clips[ClipCue]
	sequencer.active = episode
	episode.setStage(StageCuePlaying)
	sequencer.duckLocked(true)

	if err := cue.Play(func() { sequencer.onCueFinished(episode) }); err != nil {
		sequencer.logger.Warn("cue playback failed", "error", err)
		sequencer.active = nil
		sequencer.duckLocked(false)
		sequencer.mu.Unlock()
		episode.complete(OutcomeSilent)
		return episode
	}

	sequencer.monitor = sequencer.scheduler.Every(sequencer.config.PollInterval, func() {
		sequencer.checkLookahead(episode)
	})
	sequencer.mu.Unlock()

	sequencer.logger.Debug("finish signal started", "variant", variant)
	return episode
}

// Stop halts both clips and resolves the active episode as OutcomeStopped
// without calling its onComplete. Safe to call when nothing is playing.
func (sequencer *Sequencer) Stop() {
	sequencer.mu.Lock()
	defer sequencer.mu.Unlock()
	sequencer.stopLocked()
}

// Close stops playback and releases the loaded clips.
func (sequencer *Sequencer) Close() error {
	sequencer.mu.Lock()
	defer sequencer.mu.Unlock()

	sequencer.stopLocked()
	err := closeClips(sequencer.clips)
	sequencer.clips = nil
	sequencer.loaded = false
	return err
}

func (sequencer *Sequencer) checkLookahead(episode *Episode) {
	sequencer.mu.Lock()
	defer sequencer.mu.Unlock()

	if sequencer.active != episode || episode.Stage() != StageCuePlaying {
		return
	}
	cue := sequencer.clips[ClipCue]
	if cue.Length()-cue.Position() < sequencer.config.Lookahead {
		sequencer.startVoiceLocked(episode)
	}
}

func (sequencer *Sequencer) onCueFinished(episode *Episode) {
	sequencer.mu.Lock()
	defer sequencer.mu.Unlock()

	if sequencer.active != episode || episode.Stage() != StageCuePlaying {
		return
	}
	sequencer.startVoiceLocked(episode)
}

func (sequencer *Sequencer) startVoiceLocked(episode *Episode) {
	sequencer.cancelMonitorLocked()
	episode.setStage(StageVoicePlaying)

	voice := sequencer.clips[episode.Variant().Clip()]
	if err := voice.Play(func() { sequencer.onVoiceFinished(episode) }); err != nil {
		sequencer.logger.Warn("voice playback failed", "variant", episode.Variant(), "error", err)
		sequencer.beginReleaseLocked(episode)
	}
}

func (sequencer *Sequencer) onVoiceFinished(episode *Episode) {
	sequencer.mu.Lock()
	defer sequencer.mu.Unlock()

	if sequencer.active != episode || episode.Stage() != StageVoicePlaying {
		return
	}
	sequencer.beginReleaseLocked(episode)
}

func (sequencer *Sequencer) beginReleaseLocked(episode *Episode) {
	if !episode.markReleasing() {
		return
	}
	sequencer.release = sequencer.scheduler.After(sequencer.config.ReleaseDelay, func() {
		sequencer.finishRelease(episode)
	})
}

// finishRelease drops ducking and bounces the audio engine so the host hands
// audio focus back to other apps.
func (sequencer *Sequencer) finishRelease(episode *Episode) {
	sequencer.mu.Lock()
	if sequencer.active != episode {
		sequencer.mu.Unlock()
		return
	}
	sequencer.duckLocked(false)
	if err := sequencer.backend.SetEnabled(false); err != nil {
		sequencer.logger.Warn("disable audio engine failed", "error", err)
	}
	if err := sequencer.backend.SetEnabled(true); err != nil {
		sequencer.logger.Warn("enable audio engine failed", "error", err)
	}
	sequencer.active = nil
	sequencer.release = nil
	sequencer.mu.Unlock()

	sequencer.logger.Debug("finish signal complete", "variant", episode.Variant())
	episode.complete(OutcomeCompleted)
}

func (sequencer *Sequencer) stopLocked() {
	sequencer.cancelMonitorLocked()
	if sequencer.release != nil {
		sequencer.release.Cancel()
		sequencer.release = nil
	}

	episode := sequencer.active
	if episode == nil {
		return
	}
	sequencer.active = nil
	for _, clip := range sequencer.clips {
		if err := clip.Stop(); err != nil {
			sequencer.logger.Warn("stop clip failed", "error", err)
		}
	}
	sequencer.duckLocked(false)
	episode.resolve(OutcomeStopped)
	sequencer.logger.Debug("finish signal stopped", "variant", episode.Variant())
}

func (sequencer *Sequencer) cancelMonitorLocked() {
	if sequencer.monitor != nil {
		sequencer.monitor.Cancel()
		sequencer.monitor = nil
	}
}

func (sequencer *Sequencer) duckLocked(enabled bool) {
	err := sequencer.backend.SetDucking(enabled)
	switch {
	case err == nil:
	case errors.Is(err, ErrDuckingUnsupported):
		if !sequencer.duckingReported {
			sequencer.duckingReported = true
			sequencer.logger.Debug("audio ducking unsupported by backend")
		}
	default:
		sequencer.logger.Warn("set ducking failed", "enabled", enabled, "error", err)
	}
}

func closeClips(clips map[ClipID]Clip) error {
	var errs []error
	for id, clip := range clips {
		if err := clip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close clip %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
