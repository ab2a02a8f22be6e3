package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrAutostartUnsupported is returned outside XDG desktops.
var ErrAutostartUnsupported = errors.New("autostart unsupported on this platform")

// Autostart manages the XDG autostart entry that launches the tray app at login.
type Autostart struct {
	appName string
	dir     string
}

// NewAutostart targets <configDir>/autostart. An empty configDir resolves
// to the user config directory, falling back to ~/.config.
func NewAutostart(appName, configDir string) (*Autostart, error) {
	if strings.TrimSpace(appName) == "" {
		return nil, errors.New("autostart: app name is empty")
	}
	if configDir == "" {
		dir, err := userConfigDir()
		if err != nil {
			return nil, fmt.Errorf("autostart: %w", err)
		}
		configDir = dir
	}
	return &Autostart{appName: appName, dir: filepath.Join(configDir, "autostart")}, nil
}

// Path is the desktop entry location.
func (autostart *Autostart) Path() string {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(autostart.appName)), " ", "-")
	return filepath.Join(autostart.dir, name+".desktop")
}

// Enable writes the entry so execPath runs at login.
func (autostart *Autostart) Enable(execPath string) error {
	if runtime.GOOS != "linux" {
		return ErrAutostartUnsupported
	}
	if execPath == "" {
		return errors.New("enable autostart: exec path is empty")
	}
	if err := os.MkdirAll(autostart.dir, 0o755); err != nil {
		return fmt.Errorf("enable autostart: create autostart dir: %w", err)
	}
	if err := os.WriteFile(autostart.Path(), []byte(autostart.desktopEntry(execPath)), 0o644); err != nil {
		return fmt.Errorf("enable autostart: write desktop entry: %w", err)
	}
	return nil
}

// Disable removes the entry. A missing entry is not an error.
func (autostart *Autostart) Disable() error {
	if err := os.Remove(autostart.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("disable autostart: remove desktop entry: %w", err)
	}
	return nil
}

// Enabled reports whether the entry exists.
func (autostart *Autostart) Enabled() bool {
	_, err := os.Stat(autostart.Path())
	return err == nil
}

func (autostart *Autostart) desktopEntry(execPath string) string {
	if strings.ContainsAny(execPath, " \t") && !strings.HasPrefix(execPath, `"`) {
		execPath = `"` + execPath + `"`
	}
	var entry strings.Builder
	entry.WriteString("[Desktop Entry]\n")
	entry.WriteString("Type=Application\n")
	fmt.Fprintf(&entry, "Name=%s\n", autostart.appName)
	entry.WriteString("Comment=Countdown timer\n")
	fmt.Fprintf(&entry, "Exec=%s\n", execPath)
	entry.WriteString("Icon=alarm-symbolic\n")
	entry.WriteString("Terminal=false\n")
	entry.WriteString("X-GNOME-Autostart-enabled=true\n")
	return entry.String()
}

func userConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err == nil && dir != "" {
		return dir, nil
	}
	home, homeErr := os.UserHomeDir()
	if homeErr != nil {
		if err != nil {
			return "", fmt.Errorf("get config dir: %w", err)
		}
		return "", fmt.Errorf("get config dir: %w", homeErr)
	}
	return filepath.Join(home, ".config"), nil
}
