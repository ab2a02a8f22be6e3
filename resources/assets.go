package resources

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"sync"

	"fyne.io/fyne/v2"
)

const (
	audioDir = "audio/"
	iconPath = "icon/tock.png"
)

//go:embed audio/*.wav
var audioFS embed.FS

//go:embed icon/tock.png
var iconFS embed.FS

var iconCache sync.Map

// Clip names of the bundled finish-signal audio.
const (
	ClipCue    = "cue.wav"
	ClipVoiceA = "voice_a.wav"
	ClipVoiceB = "voice_b.wav"
)

// Clip opens a bundled WAV clip.
func Clip(fileName string) (io.ReadCloser, error) {
	data, err := audioFS.ReadFile(audioDir + fileName)
	if err != nil {
		return nil, fmt.Errorf("load clip %s: %w", fileName, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// IconBytes returns the raw PNG application icon.
func IconBytes() []byte {
	data, err := iconFS.ReadFile(iconPath)
	if err != nil {
		panic(err)
	}
	return data
}

// MustIcon returns the application icon as a Fyne resource.
func MustIcon() fyne.Resource {
	if cached, ok := iconCache.Load(iconPath); ok {
		return cached.(fyne.Resource)
	}
	resource := fyne.NewStaticResource("tock.png", IconBytes())
	iconCache.Store(iconPath, resource)
	return resource
}
