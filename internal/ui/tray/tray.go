package tray

import (
	"fmt"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/systray"

	"tock/internal/core/countdown"
	"tock/internal/core/finish"
)

const appTitle = "tock"

// Callbacks defines tray action handlers.
type Callbacks struct {
	OnShow    func()
	OnToggle  func()
	OnReset   func()
	OnAdjust  func(deltaSeconds int)
	OnPreset  func(countdown.Duration)
	OnVariant func(finish.Variant)
	OnQuit    func()
}

// Config controls the tray menu contents.
type Config struct {
	AdjustStep int
	Presets    []countdown.Duration
	Variant    finish.Variant
}

// Manager handles system tray state.
type Manager struct {
	mu        sync.Mutex
	app       desktop.App
	config    Config
	callbacks Callbacks
	snapshot  countdown.Snapshot
	variant   finish.Variant
	sticky    string
}

// New creates a tray manager with the provided callbacks.
func New(app desktop.App, config Config, callbacks Callbacks) *Manager {
	if config.AdjustStep <= 0 {
		config.AdjustStep = 5
	}
	if config.Variant == "" {
		config.Variant = finish.VariantA
	}
	manager := &Manager{
		app:       app,
		config:    config,
		callbacks: callbacks,
		variant:   config.Variant,
		snapshot:  countdown.Snapshot{Status: countdown.StatusIdle},
	}
	manager.refreshMenu()
	return manager
}

// SetSnapshot updates the status line and the start/pause item.
func (manager *Manager) SetSnapshot(snapshot countdown.Snapshot) {
	manager.mu.Lock()
	changed := manager.snapshot.Status != snapshot.Status || manager.snapshot.Initial != snapshot.Initial
	manager.snapshot = snapshot
	manager.mu.Unlock()

	// Rebuilding the menu every second makes some trays flicker, so the
	// running time is shown through the sticky mirror instead.
	if changed {
		manager.refreshMenu()
	}
}

// SetVariant marks the selected voice.
func (manager *Manager) SetVariant(variant finish.Variant) {
	manager.mu.Lock()
	manager.variant = variant
	manager.mu.Unlock()
	manager.refreshMenu()
}

// ShowSticky mirrors the running notification into the tray title.
func (manager *Manager) ShowSticky(title, body string) {
	manager.mu.Lock()
	manager.sticky = body
	manager.mu.Unlock()
	systray.SetTitle(body)
	systray.SetTooltip(fmt.Sprintf("%s: %s", title, body))
}

// ClearSticky removes the mirrored notification.
func (manager *Manager) ClearSticky() {
	manager.mu.Lock()
	manager.sticky = ""
	manager.mu.Unlock()
	systray.SetTitle("")
	systray.SetTooltip(appTitle)
}

func (manager *Manager) refreshMenu() {
	if manager.app == nil {
		return
	}
	menu := manager.buildMenu()
	fyne.Do(func() {
		manager.app.SetSystemTrayMenu(menu)
	})
}

func (manager *Manager) buildMenu() *fyne.Menu {
	manager.mu.Lock()
	snapshot := manager.snapshot
	variant := manager.variant
	manager.mu.Unlock()

	status := fyne.NewMenuItem(statusLabel(snapshot), nil)
	status.Disabled = true

	toggle := fyne.NewMenuItem(toggleLabel(snapshot.Status), manager.call(manager.callbacks.OnToggle))
	toggle.Disabled = snapshot.Status == countdown.StatusFinished

	step := manager.config.AdjustStep
	add := fyne.NewMenuItem(fmt.Sprintf("+%d seconds", step), func() {
		if manager.callbacks.OnAdjust != nil {
			manager.callbacks.OnAdjust(step)
		}
	})
	subtract := fyne.NewMenuItem(fmt.Sprintf("-%d seconds", step), func() {
		if manager.callbacks.OnAdjust != nil {
			manager.callbacks.OnAdjust(-step)
		}
	})
	add.Disabled = snapshot.Status == countdown.StatusFinished
	subtract.Disabled = add.Disabled

	presets := fyne.NewMenuItem("Duration", nil)
	var presetItems []*fyne.MenuItem
	for _, preset := range manager.config.Presets {
		item := fyne.NewMenuItem(preset.String(), func() {
			if manager.callbacks.OnPreset != nil {
				manager.callbacks.OnPreset(preset)
			}
		})
		item.Checked = preset == snapshot.Initial
		presetItems = append(presetItems, item)
	}
	presets.ChildMenu = fyne.NewMenu("", presetItems...)
	presets.Disabled = snapshot.Status != countdown.StatusIdle || len(presetItems) == 0

	voice := fyne.NewMenuItem("Voice", nil)
	var voiceItems []*fyne.MenuItem
	for _, option := range []finish.Variant{finish.VariantA, finish.VariantB} {
		item := fyne.NewMenuItem(fmt.Sprintf("Voice %s", option), func() {
			if manager.callbacks.OnVariant != nil {
				manager.callbacks.OnVariant(option)
			}
		})
		item.Checked = option == variant
		voiceItems = append(voiceItems, item)
	}
	voice.ChildMenu = fyne.NewMenu("", voiceItems...)

	return fyne.NewMenu(appTitle,
		status,
		fyne.NewMenuItem("Show timer", manager.call(manager.callbacks.OnShow)),
		fyne.NewMenuItemSeparator(),
		toggle,
		fyne.NewMenuItem("Reset", manager.call(manager.callbacks.OnReset)),
		add,
		subtract,
		fyne.NewMenuItemSeparator(),
		presets,
		voice,
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Quit", manager.call(manager.callbacks.OnQuit)),
	)
}

func (manager *Manager) call(handler func()) func() {
	return func() {
		if handler != nil {
			handler()
		}
	}
}

func statusLabel(snapshot countdown.Snapshot) string {
	switch snapshot.Status {
	case countdown.StatusRunning:
		return fmt.Sprintf("Status: running (%s)", snapshot.Initial)
	case countdown.StatusPaused:
		return fmt.Sprintf("Status: paused at %s", snapshot.Remaining)
	case countdown.StatusFinished:
		return "Status: time's up"
	default:
		return fmt.Sprintf("Status: ready (%s)", snapshot.Initial)
	}
}

func toggleLabel(status countdown.Status) string {
	switch status {
	case countdown.StatusRunning:
		return "Pause"
	case countdown.StatusPaused:
		return "Resume"
	default:
		return "Start"
	}
}
