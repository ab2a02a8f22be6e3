package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ValidationError is a single invalid setting.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects every invalid setting found by Validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels lists accepted logging.level values.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidBackends lists accepted notification.backend values.
func ValidBackends() []string {
	return []string{BackendAuto, BackendDBus, BackendFyne, BackendNone}
}

// Validate returns every invalid setting. A nil result means the config is usable.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	positive := func(field string, value time.Duration) {
		if value <= 0 {
			errs = append(errs, ValidationError{Field: field, Value: value, Message: "must be positive"})
		}
	}

	positive("timer.tick_interval", c.Timer.TickInterval)
	if c.Timer.TickInterval > time.Second {
		errs = append(errs, ValidationError{Field: "timer.tick_interval", Value: c.Timer.TickInterval, Message: "must be at most 1s"})
	}
	if c.Timer.AdjustStep <= 0 {
		errs = append(errs, ValidationError{Field: "timer.adjust_step", Value: c.Timer.AdjustStep, Message: "must be positive"})
	}
	for _, seconds := range c.Timer.PresetSeconds {
		if seconds <= 0 {
			errs = append(errs, ValidationError{Field: "timer.preset_seconds", Value: seconds, Message: "presets must be positive"})
			break
		}
	}

	positive("audio.lookahead", c.Audio.Lookahead)
	positive("audio.poll_interval", c.Audio.PollInterval)
	if c.Audio.ReleaseDelay < 0 {
		errs = append(errs, ValidationError{Field: "audio.release_delay", Value: c.Audio.ReleaseDelay, Message: "must not be negative"})
	}
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		errs = append(errs, ValidationError{Field: "audio.sample_rate", Value: c.Audio.SampleRate, Message: "must be between 8000 and 192000"})
	}

	if !slices.Contains(ValidBackends(), c.Notification.Backend) {
		errs = append(errs, ValidationError{
			Field:   "notification.backend",
			Value:   c.Notification.Backend,
			Message: "must be one of " + strings.Join(ValidBackends(), ", "),
		})
	}

	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: "must be one of " + strings.Join(ValidLogLevels(), ", "),
		})
	}

	if strings.TrimSpace(c.Storage.Dir) == "" {
		errs = append(errs, ValidationError{Field: "storage.dir", Value: c.Storage.Dir, Message: "must not be empty"})
	}

	return errs
}
