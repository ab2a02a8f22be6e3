package platform

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"

	"tock/internal/core/finish"
)

// ClipSource opens the WAV data for one clip.
type ClipSource func() (io.ReadCloser, error)

// BeepBackend plays finish clips through the system speaker. Clips are
// decoded and resampled once at load time, so playback never touches disk.
type BeepBackend struct {
	mu         sync.Mutex
	sampleRate beep.SampleRate
	sources    map[finish.ClipID]ClipSource
	logger     *slog.Logger

	initialized bool
	suspended   bool
}

// NewBeepBackend creates a backend mixing at sampleRate.
func NewBeepBackend(sampleRate int, sources map[finish.ClipID]ClipSource, logger *slog.Logger) *BeepBackend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BeepBackend{
		sampleRate: beep.SampleRate(sampleRate),
		sources:    sources,
		logger:     logger,
	}
}

// Load decodes the clip and opens the speaker on first use.
func (backend *BeepBackend) Load(id finish.ClipID) (finish.Clip, error) {
	source, ok := backend.sources[id]
	if !ok {
		return nil, fmt.Errorf("load clip %s: no source", id)
	}
	if err := backend.ensureSpeaker(); err != nil {
		return nil, err
	}

	reader, err := source()
	if err != nil {
		return nil, fmt.Errorf("open clip %s: %w", id, err)
	}
	defer reader.Close()

	buffer, err := decodeClip(reader, backend.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("decode clip %s: %w", id, err)
	}
	backend.logger.Debug("clip loaded", "clip", id, "length", backend.sampleRate.D(buffer.Len()))
	return &beepClip{buffer: buffer}, nil
}

// SetDucking is not available through a plain output stream.
func (backend *BeepBackend) SetDucking(bool) error {
	return finish.ErrDuckingUnsupported
}

// SetEnabled suspends or resumes the output device.
func (backend *BeepBackend) SetEnabled(enabled bool) error {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if !backend.initialized || backend.suspended == !enabled {
		return nil
	}
	var err error
	if enabled {
		err = speaker.Resume()
	} else {
		err = speaker.Suspend()
	}
	if err != nil {
		return fmt.Errorf("set speaker enabled=%t: %w", enabled, err)
	}
	backend.suspended = !enabled
	return nil
}

// Close releases the output device.
func (backend *BeepBackend) Close() {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.initialized {
		speaker.Close()
		backend.initialized = false
	}
}

func (backend *BeepBackend) ensureSpeaker() error {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.initialized {
		return nil
	}
	if err := speaker.Init(backend.sampleRate, backend.sampleRate.N(50*time.Millisecond)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	backend.initialized = true
	return nil
}

func decodeClip(reader io.Reader, rate beep.SampleRate) (*beep.Buffer, error) {
	streamer, format, err := wav.Decode(reader)
	if err != nil {
		return nil, err
	}
	defer streamer.Close()

	var source beep.Streamer = streamer
	if format.SampleRate != rate {
		source = beep.Resample(4, format.SampleRate, rate, streamer)
	}
	format.SampleRate = rate

	buffer := beep.NewBuffer(format)
	buffer.Append(source)
	return buffer, nil
}

type beepPlayback struct {
	stream  beep.StreamSeeker
	ctrl    *beep.Ctrl
	stopped bool
}

type beepClip struct {
	mu      sync.Mutex
	buffer  *beep.Buffer
	current *beepPlayback
}

func (clip *beepClip) Play(onFinished func()) error {
	_ = clip.Stop()

	playback := &beepPlayback{stream: clip.buffer.Streamer(0, clip.buffer.Len())}
	// The callback runs on the mixer goroutine with the speaker locked.
	done := beep.Callback(func() {
		go clip.finished(playback, onFinished)
	})
	playback.ctrl = &beep.Ctrl{Streamer: beep.Seq(playback.stream, done)}

	clip.mu.Lock()
	clip.current = playback
	clip.mu.Unlock()

	speaker.Play(playback.ctrl)
	return nil
}

func (clip *beepClip) finished(playback *beepPlayback, onFinished func()) {
	clip.mu.Lock()
	if playback.stopped || clip.current != playback {
		clip.mu.Unlock()
		return
	}
	clip.current = nil
	clip.mu.Unlock()
	if onFinished != nil {
		onFinished()
	}
}

func (clip *beepClip) Stop() error {
	clip.mu.Lock()
	playback := clip.current
	clip.current = nil
	if playback != nil {
		playback.stopped = true
	}
	clip.mu.Unlock()
	if playback == nil {
		return nil
	}
	speaker.Lock()
	playback.ctrl.Streamer = nil
	speaker.Unlock()
	return nil
}

func (clip *beepClip) Position() time.Duration {
	clip.mu.Lock()
	playback := clip.current
	clip.mu.Unlock()
	if playback == nil {
		return 0
	}
	speaker.Lock()
	position := playback.stream.Position()
	speaker.Unlock()
	return clip.buffer.Format().SampleRate.D(position)
}

func (clip *beepClip) Length() time.Duration {
	return clip.buffer.Format().SampleRate.D(clip.buffer.Len())
}

func (clip *beepClip) Close() error {
	return clip.Stop()
}
