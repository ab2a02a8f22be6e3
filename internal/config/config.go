// Package config loads tock's runtime configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const appDirName = "tock"

// Config is the complete runtime configuration.
type Config struct {
	Timer        TimerConfig        `mapstructure:"timer"`
	Audio        AudioConfig        `mapstructure:"audio"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Storage      StorageConfig      `mapstructure:"storage"`
}

// TimerConfig controls the countdown cadence and shell controls.
type TimerConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// AdjustStep is the seconds added or removed by the +/- controls.
	AdjustStep int `mapstructure:"adjust_step"`
	// PresetSeconds populates the duration menu.
	PresetSeconds []int `mapstructure:"preset_seconds"`
	// KeepAwake inhibits the screensaver while a countdown runs.
	KeepAwake bool `mapstructure:"keep_awake"`
}

// AudioConfig controls the finish signal.
type AudioConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Lookahead    time.Duration `mapstructure:"lookahead"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	ReleaseDelay time.Duration `mapstructure:"release_delay"`
	SampleRate   int           `mapstructure:"sample_rate"`
	// Clip overrides; empty means the embedded clip.
	CuePath    string `mapstructure:"cue_path"`
	VoiceAPath string `mapstructure:"voice_a_path"`
	VoiceBPath string `mapstructure:"voice_b_path"`
}

// NotificationConfig controls the sticky ticket and fallback alarm.
type NotificationConfig struct {
	// Backend is one of auto, dbus, fyne, none.
	Backend      string `mapstructure:"backend"`
	StickyTitle  string `mapstructure:"sticky_title"`
	AlarmTitle   string `mapstructure:"alarm_title"`
	AlarmBody    string `mapstructure:"alarm_body"`
	SystemdTimer bool   `mapstructure:"systemd_timer"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	// File is the JSON log path; empty logs text to stderr.
	File string `mapstructure:"file"`
}

// StorageConfig locates persisted state.
type StorageConfig struct {
	Dir string `mapstructure:"dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Timer: TimerConfig{
			TickInterval:  100 * time.Millisecond,
			AdjustStep:    5,
			PresetSeconds: []int{30, 60, 180, 300, 600, 1500},
			KeepAwake:     true,
		},
		Audio: AudioConfig{
			Enabled:      true,
			Lookahead:    800 * time.Millisecond,
			PollInterval: 50 * time.Millisecond,
			ReleaseDelay: 300 * time.Millisecond,
			SampleRate:   44100,
		},
		Notification: NotificationConfig{
			Backend:      BackendAuto,
			StickyTitle:  "Timer running",
			AlarmTitle:   "Time's up!",
			AlarmBody:    "Your countdown has finished.",
			SystemdTimer: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			Dir: Dir(),
		},
	}
}

// Notification backends.
const (
	BackendAuto = "auto"
	BackendDBus = "dbus"
	BackendFyne = "fyne"
	BackendNone = "none"
)

// Loader reads configuration from defaults, a YAML file, TOCK_ environment
// variables and bound command-line flags, in increasing precedence.
type Loader struct {
	v *viper.Viper
}

// NewLoader returns a loader with defaults registered.
func NewLoader() *Loader {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("TOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

func setDefaults(v *viper.Viper, defaults *Config) {
	v.SetDefault("timer.tick_interval", defaults.Timer.TickInterval)
	v.SetDefault("timer.adjust_step", defaults.Timer.AdjustStep)
	v.SetDefault("timer.preset_seconds", defaults.Timer.PresetSeconds)
	v.SetDefault("timer.keep_awake", defaults.Timer.KeepAwake)

	v.SetDefault("audio.enabled", defaults.Audio.Enabled)
	v.SetDefault("audio.lookahead", defaults.Audio.Lookahead)
	v.SetDefault("audio.poll_interval", defaults.Audio.PollInterval)
	v.SetDefault("audio.release_delay", defaults.Audio.ReleaseDelay)
	v.SetDefault("audio.sample_rate", defaults.Audio.SampleRate)
	v.SetDefault("audio.cue_path", defaults.Audio.CuePath)
	v.SetDefault("audio.voice_a_path", defaults.Audio.VoiceAPath)
	v.SetDefault("audio.voice_b_path", defaults.Audio.VoiceBPath)

	v.SetDefault("notification.backend", defaults.Notification.Backend)
	v.SetDefault("notification.sticky_title", defaults.Notification.StickyTitle)
	v.SetDefault("notification.alarm_title", defaults.Notification.AlarmTitle)
	v.SetDefault("notification.alarm_body", defaults.Notification.AlarmBody)
	v.SetDefault("notification.systemd_timer", defaults.Notification.SystemdTimer)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.file", defaults.Logging.File)

	v.SetDefault("storage.dir", defaults.Storage.Dir)
}

// BindFlag lets a command-line flag override key.
func (loader *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("bind %s: flag not defined", key)
	}
	if err := loader.v.BindPFlag(key, flag); err != nil {
		return fmt.Errorf("bind %s: %w", key, err)
	}
	return nil
}

// Load reads path, or File() when path is empty, and validates the result.
// A missing default file is not an error; a missing explicit path is.
func (loader *Loader) Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = File()
	}
	loader.v.SetConfigFile(path)
	loader.v.SetConfigType("yaml")

	if err := loader.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
		if explicit || !missing {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := loader.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return &cfg, nil
}

// Dir returns the per-user configuration directory for tock.
func Dir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "." + appDirName
	}
	return filepath.Join(base, appDirName)
}

// File returns the default config file path.
func File() string {
	return filepath.Join(Dir(), "config.yaml")
}
