package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"tock/internal/core/countdown"
	"tock/internal/core/finish"
)

const (
	KeyDuration = "timer.duration"
	KeyVariant  = "audio.variant"
)

// DefaultDuration is used when nothing valid has been stored.
var DefaultDuration = countdown.Duration{Minutes: 0, Seconds: 30}

type durationValue struct {
	Minutes int `yaml:"minutes"`
	Seconds int `yaml:"seconds"`
}

// Preferences stores the user's duration and voice choice in a KV.
// Read failures fall back to defaults and are logged; they never surface.
type Preferences struct {
	kv     KV
	logger *slog.Logger
}

// NewPreferences wraps kv. A nil kv keeps everything in defaults.
func NewPreferences(kv KV, logger *slog.Logger) *Preferences {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Preferences{kv: kv, logger: logger}
}

// LoadDuration returns the stored duration or DefaultDuration.
func (prefs *Preferences) LoadDuration() countdown.Duration {
	if prefs.kv == nil {
		return DefaultDuration
	}
	raw, err := prefs.kv.Get(KeyDuration)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			prefs.logger.Warn("load duration failed", "error", err)
		}
		return DefaultDuration
	}
	duration, err := DecodeDuration(raw)
	if err != nil {
		prefs.logger.Warn("stored duration unreadable", "value", raw, "error", err)
		return DefaultDuration
	}
	return duration
}

// SaveDuration writes duration as a flow mapping.
func (prefs *Preferences) SaveDuration(duration countdown.Duration) error {
	if prefs.kv == nil {
		return nil
	}
	encoded, err := EncodeDuration(duration)
	if err != nil {
		return err
	}
	if err := prefs.kv.Set(KeyDuration, encoded); err != nil {
		return fmt.Errorf("save duration: %w", err)
	}
	return nil
}

// Variant returns the stored voice variant or A.
func (prefs *Preferences) Variant() finish.Variant {
	if prefs.kv == nil {
		return finish.VariantA
	}
	raw, err := prefs.kv.Get(KeyVariant)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			prefs.logger.Warn("load variant failed", "error", err)
		}
		return finish.VariantA
	}
	variant, ok := finish.ParseVariant(strings.TrimSpace(raw))
	if !ok {
		prefs.logger.Warn("stored variant unreadable", "value", raw)
		return finish.VariantA
	}
	return variant
}

// SetVariant stores the voice variant.
func (prefs *Preferences) SetVariant(variant finish.Variant) error {
	if _, ok := finish.ParseVariant(string(variant)); !ok {
		return fmt.Errorf("save variant %q: unknown variant", variant)
	}
	if prefs.kv == nil {
		return nil
	}
	if err := prefs.kv.Set(KeyVariant, string(variant)); err != nil {
		return fmt.Errorf("save variant: %w", err)
	}
	return nil
}

// EncodeDuration renders duration as `{minutes: M, seconds: S}`.
func EncodeDuration(duration countdown.Duration) (string, error) {
	var node yaml.Node
	if err := node.Encode(durationValue{Minutes: duration.Minutes, Seconds: duration.Seconds}); err != nil {
		return "", fmt.Errorf("encode duration: %w", err)
	}
	node.Style = yaml.FlowStyle
	serialized, err := yaml.Marshal(&node)
	if err != nil {
		return "", fmt.Errorf("marshal duration: %w", err)
	}
	return strings.TrimSpace(string(serialized)), nil
}

// DecodeDuration parses a stored duration. JSON objects written by older
// versions are valid YAML flow mappings and decode the same way.
func DecodeDuration(raw string) (countdown.Duration, error) {
	var value durationValue
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return countdown.Duration{}, fmt.Errorf("decode duration: %w", err)
	}
	if value.Minutes < 0 || value.Seconds < 0 {
		return countdown.Duration{}, fmt.Errorf("decode duration: negative component in %q", raw)
	}
	return countdown.DurationOf(value.Minutes*60 + value.Seconds), nil
}
