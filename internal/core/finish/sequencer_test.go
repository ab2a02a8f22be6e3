package finish

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tock/internal/core/schedule"
)

var epoch = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

type fakeClip struct {
	mu         sync.Mutex
	id         ClipID
	length     time.Duration
	position   time.Duration
	playing    bool
	plays      int
	stops      int
	closed     bool
	playErr    error
	onFinished func()
}

func (clip *fakeClip) Play(onFinished func()) error {
	clip.mu.Lock()
	defer clip.mu.Unlock()
	if clip.playErr != nil {
		return clip.playErr
	}
	clip.playing = true
	clip.plays++
	clip.position = 0
	clip.onFinished = onFinished
	return nil
}

func (clip *fakeClip) Stop() error {
	clip.mu.Lock()
	defer clip.mu.Unlock()
	clip.playing = false
	clip.stops++
	return nil
}

func (clip *fakeClip) Position() time.Duration {
	clip.mu.Lock()
	defer clip.mu.Unlock()
	return clip.position
}

func (clip *fakeClip) Length() time.Duration {
	return clip.length
}

func (clip *fakeClip) Close() error {
	clip.mu.Lock()
	defer clip.mu.Unlock()
	clip.closed = true
	return nil
}

func (clip *fakeClip) seek(position time.Duration) {
	clip.mu.Lock()
	clip.position = position
	clip.mu.Unlock()
}

// finish simulates the played-to-completion event.
func (clip *fakeClip) finish() {
	clip.mu.Lock()
	if !clip.playing {
		clip.mu.Unlock()
		return
	}
	clip.playing = false
	clip.position = clip.length
	callback := clip.onFinished
	clip.mu.Unlock()
	callback()
}

func (clip *fakeClip) isPlaying() bool {
	clip.mu.Lock()
	defer clip.mu.Unlock()
	return clip.playing
}

func (clip *fakeClip) playCount() int {
	clip.mu.Lock()
	defer clip.mu.Unlock()
	return clip.plays
}

type fakeBackend struct {
	mu       sync.Mutex
	clips    map[ClipID]*fakeClip
	loadErr  map[ClipID]error
	duckErr  error
	ducking  []bool
	enabled  []bool
	duckedOn bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		clips: map[ClipID]*fakeClip{
			ClipCue:    {id: ClipCue, length: 2 * time.Second},
			ClipVoiceA: {id: ClipVoiceA, length: 3 * time.Second},
			ClipVoiceB: {id: ClipVoiceB, length: 4 * time.Second},
		},
		loadErr: map[ClipID]error{},
	}
}

func (backend *fakeBackend) Load(id ClipID) (Clip, error) {
	if err := backend.loadErr[id]; err != nil {
		return nil, err
	}
	return backend.clips[id], nil
}

func (backend *fakeBackend) SetDucking(enabled bool) error {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.ducking = append(backend.ducking, enabled)
	if backend.duckErr != nil {
		return backend.duckErr
	}
	backend.duckedOn = enabled
	return nil
}

func (backend *fakeBackend) SetEnabled(enabled bool) error {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	backend.enabled = append(backend.enabled, enabled)
	return nil
}

func (backend *fakeBackend) isDucked() bool {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	return backend.duckedOn
}

type counter struct {
	mu    sync.Mutex
	count int
}

func (c *counter) inc() {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

func (c *counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func newSequencer(t *testing.T, backend *fakeBackend) (*Sequencer, *schedule.Manual) {
	t.Helper()
	manual := schedule.NewManual(epoch)
	sequencer := New(backend, manual, DefaultConfig())
	require.NoError(t, sequencer.Preload())
	return sequencer, manual
}

func TestPlayFullSequence(t *testing.T) {
	backend := newFakeBackend()
	sequencer, manual := newSequencer(t, backend)
	cue, voice := backend.clips[ClipCue], backend.clips[ClipVoiceB]
	completions := &counter{}

	episode := sequencer.Play(VariantB, completions.inc)
	assert.Equal(t, StageCuePlaying, episode.Stage())
	assert.True(t, cue.isPlaying())
	assert.True(t, backend.isDucked())

	cue.seek(1100 * time.Millisecond)
	manual.Advance(50 * time.Millisecond)
	assert.Equal(t, StageCuePlaying, episode.Stage(), "900ms left is outside the lookahead")

	cue.seek(1250 * time.Millisecond)
	manual.Advance(50 * time.Millisecond)
	assert.Equal(t, StageVoicePlaying, episode.Stage())
	assert.True(t, voice.isPlaying())
	assert.True(t, cue.isPlaying(), "cue and voice overlap")
	assert.Equal(t, 0, backend.clips[ClipVoiceA].playCount())

	cue.finish()
	voice.finish()
	assert.False(t, episode.Resolved(), "ducking release waits for the delay")
	assert.Equal(t, 0, completions.get())

	manual.Advance(300 * time.Millisecond)
	assert.True(t, episode.Resolved())
	assert.Equal(t, OutcomeCompleted, episode.Outcome())
	assert.Equal(t, StageComplete, episode.Stage())
	assert.Equal(t, 1, completions.get())
	assert.False(t, backend.isDucked())
	assert.Equal(t, []bool{false, true}, backend.enabled)
	assert.Nil(t, sequencer.activeEpisode())
	assert.Equal(t, 0, manual.Pending())
}

func TestShortCueStartsVoiceOnFirstPoll(t *testing.T) {
	backend := newFakeBackend()
	backend.clips[ClipCue].length = 500 * time.Millisecond
	sequencer, manual := newSequencer(t, backend)

	episode := sequencer.Play(VariantA, nil)
	manual.Advance(50 * time.Millisecond)
	assert.Equal(t, StageVoicePlaying, episode.Stage())
	assert.True(t, backend.clips[ClipVoiceA].isPlaying())
}

func TestCueEndingBeforeMonitorStartsVoice(t *testing.T) {
	backend := newFakeBackend()
	sequencer, manual := newSequencer(t, backend)

	episode := sequencer.Play(VariantA, nil)
	backend.clips[ClipCue].finish()
	assert.Equal(t, StageVoicePlaying, episode.Stage())

	manual.Advance(time.Second)
	assert.Equal(t, 1, backend.clips[ClipVoiceA].playCount())
}

func TestCompletionExactlyOnceForEveryInterleaving(t *testing.T) {
	type step struct {
		name string
		run  func(backend *fakeBackend, manual *schedule.Manual)
	}
	steps := []step{
		{"lookahead", func(backend *fakeBackend, manual *schedule.Manual) {
			backend.clips[ClipCue].seek(1500 * time.Millisecond)
			manual.Advance(50 * time.Millisecond)
		}},
		{"cue-end", func(backend *fakeBackend, _ *schedule.Manual) { backend.clips[ClipCue].finish() }},
		{"voice-end", func(backend *fakeBackend, _ *schedule.Manual) { backend.clips[ClipVoiceA].finish() }},
		{"release", func(_ *fakeBackend, manual *schedule.Manual) { manual.Advance(time.Second) }},
	}

	for _, order := range permutations(len(steps)) {
		backend := newFakeBackend()
		sequencer, manual := newSequencer(t, backend)
		completions := &counter{}
		episode := sequencer.Play(VariantA, completions.inc)

		var names []string
		for _, index := range order {
			names = append(names, steps[index].name)
			steps[index].run(backend, manual)
			require.LessOrEqual(t, completions.get(), 1, "order %v", names)
		}

		// Drain whatever the interleaving left pending.
		for range 3 {
			backend.clips[ClipCue].finish()
			backend.clips[ClipVoiceA].finish()
			manual.Advance(time.Second)
		}

		assert.Equal(t, 1, completions.get(), "order %v", names)
		assert.Equal(t, OutcomeCompleted, episode.Outcome(), "order %v", names)
		assert.Equal(t, 1, backend.clips[ClipVoiceA].playCount(), "order %v", names)
	}
}

func TestConcurrentCueEndAndLookahead(t *testing.T) {
	for range 50 {
		backend := newFakeBackend()
		sequencer, manual := newSequencer(t, backend)
		completions := &counter{}
		sequencer.Play(VariantA, completions.inc)
		backend.clips[ClipCue].seek(1900 * time.Millisecond)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			backend.clips[ClipCue].finish()
		}()
		go func() {
			defer wg.Done()
			manual.Advance(50 * time.Millisecond)
		}()
		wg.Wait()

		assert.Equal(t, 1, backend.clips[ClipVoiceA].playCount())
		backend.clips[ClipVoiceA].finish()
		manual.Advance(time.Second)
		assert.Equal(t, 1, completions.get())
	}
}

func TestStop(t *testing.T) {
	t.Run("halts clips without completing", func(t *testing.T) {
		backend := newFakeBackend()
		sequencer, manual := newSequencer(t, backend)
		completions := &counter{}

		episode := sequencer.Play(VariantA, completions.inc)
		backend.clips[ClipCue].finish()
		sequencer.Stop()

		assert.True(t, episode.Resolved())
		assert.Equal(t, OutcomeStopped, episode.Outcome())
		assert.False(t, backend.clips[ClipVoiceA].isPlaying())
		assert.False(t, backend.isDucked())

		backend.clips[ClipVoiceA].finish()
		manual.Advance(time.Second)
		assert.Equal(t, 0, completions.get())
		assert.Equal(t, 0, manual.Pending())
	})

	t.Run("during release delay", func(t *testing.T) {
		backend := newFakeBackend()
		sequencer, manual := newSequencer(t, backend)
		completions := &counter{}

		episode := sequencer.Play(VariantA, completions.inc)
		backend.clips[ClipCue].finish()
		backend.clips[ClipVoiceA].finish()
		sequencer.Stop()
		manual.Advance(time.Second)

		assert.Equal(t, OutcomeStopped, episode.Outcome())
		assert.Equal(t, 0, completions.get())
	})

	t.Run("safe when idle", func(t *testing.T) {
		sequencer, _ := newSequencer(t, newFakeBackend())
		sequencer.Stop()
		sequencer.Stop()
		assert.Nil(t, sequencer.activeEpisode())
	})
}

func TestPlayStopsPreviousEpisode(t *testing.T) {
	backend := newFakeBackend()
	sequencer, _ := newSequencer(t, backend)

	first := sequencer.Play(VariantA, nil)
	second := sequencer.Play(VariantB, nil)

	assert.Equal(t, OutcomeStopped, first.Outcome())
	assert.False(t, second.Resolved())
	assert.Same(t, second, sequencer.activeEpisode())
}

func TestPreloadFailureDegradesToSilent(t *testing.T) {
	backend := newFakeBackend()
	backend.loadErr[ClipVoiceB] = errors.New("decode: bad header")
	manual := schedule.NewManual(epoch)
	sequencer := New(backend, manual, DefaultConfig())

	err := sequencer.Preload()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "voice_b")
	assert.False(t, sequencer.Loaded())
	assert.True(t, backend.clips[ClipCue].closed)

	completions := &counter{}
	episode := sequencer.Play(VariantA, completions.inc)
	assert.True(t, episode.Resolved())
	assert.Equal(t, OutcomeSilent, episode.Outcome())
	assert.Equal(t, 1, completions.get())
	assert.Equal(t, 0, backend.clips[ClipCue].playCount())
}

func TestNilBackendIsSilent(t *testing.T) {
	sequencer := New(nil, schedule.NewManual(epoch), DefaultConfig())
	assert.ErrorIs(t, sequencer.Preload(), ErrNotLoaded)

	episode := sequencer.Play(VariantB, nil)
	assert.Equal(t, OutcomeSilent, episode.Outcome())
	sequencer.Stop()
}

func TestCuePlayFailureCompletesSilently(t *testing.T) {
	backend := newFakeBackend()
	backend.clips[ClipCue].playErr = errors.New("device busy")
	sequencer, _ := newSequencer(t, backend)
	completions := &counter{}

	episode := sequencer.Play(VariantA, completions.inc)
	assert.Equal(t, OutcomeSilent, episode.Outcome())
	assert.Equal(t, 1, completions.get())
	assert.False(t, backend.isDucked())
}

func TestVoicePlayFailureStillCompletes(t *testing.T) {
	backend := newFakeBackend()
	backend.clips[ClipVoiceA].playErr = errors.New("device busy")
	sequencer, manual := newSequencer(t, backend)
	completions := &counter{}

	episode := sequencer.Play(VariantA, completions.inc)
	backend.clips[ClipCue].finish()
	manual.Advance(time.Second)

	assert.Equal(t, OutcomeCompleted, episode.Outcome())
	assert.Equal(t, 1, completions.get())
}

func TestDuckingUnsupportedIsIgnored(t *testing.T) {
	backend := newFakeBackend()
	backend.duckErr = ErrDuckingUnsupported
	sequencer, manual := newSequencer(t, backend)
	completions := &counter{}

	sequencer.Play(VariantA, completions.inc)
	backend.clips[ClipCue].finish()
	backend.clips[ClipVoiceA].finish()
	manual.Advance(time.Second)
	assert.Equal(t, 1, completions.get())
}

func TestClose(t *testing.T) {
	backend := newFakeBackend()
	sequencer, _ := newSequencer(t, backend)
	episode := sequencer.Play(VariantA, nil)

	require.NoError(t, sequencer.Close())
	assert.Equal(t, OutcomeStopped, episode.Outcome())
	assert.False(t, sequencer.Loaded())
	for _, clip := range backend.clips {
		assert.True(t, clip.closed, "clip %s", clip.id)
	}
}

func TestParseVariant(t *testing.T) {
	variant, ok := ParseVariant("b")
	require.True(t, ok)
	assert.Equal(t, VariantB, variant)
	assert.Equal(t, ClipVoiceB, variant.Clip())

	_, ok = ParseVariant("C")
	assert.False(t, ok)
	assert.Equal(t, ClipVoiceA, Variant("").Clip())
}

func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var out [][]int
	for _, rest := range permutations(n - 1) {
		for i := 0; i <= len(rest); i++ {
			perm := make([]int, 0, n)
			perm = append(perm, rest[:i]...)
			perm = append(perm, n-1)
			perm = append(perm, rest[i:]...)
			out = append(out, perm)
		}
	}
	return out
}
