package window

import (
	"fmt"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"tock/internal/core/countdown"
)

// Callbacks defines window action handlers.
type Callbacks struct {
	OnToggle func()
	OnReset  func()
	OnAdjust func(deltaSeconds int)
}

// Config defines window content.
type Config struct {
	Title      string
	AdjustStep int
}

var (
	runningColor  = color.NRGBA{R: 232, G: 190, B: 66, A: 255}
	idleColor     = color.NRGBA{R: 220, G: 220, B: 220, A: 255}
	finishedColor = color.NRGBA{R: 224, G: 90, B: 71, A: 255}
)

// Window shows the countdown with start/pause, reset and adjust controls.
type Window struct {
	window       fyne.Window
	config       Config
	callbacks    Callbacks
	timerLabel   *canvas.Text
	statusLabel  *canvas.Text
	toggleButton *widget.Button
	resetButton  *widget.Button
	addButton    *widget.Button
	subButton    *widget.Button
}

// New creates the countdown window. It starts hidden; closing it hides it.
func New(app fyne.App, config Config, callbacks Callbacks) *Window {
	if config.Title == "" {
		config.Title = "tock"
	}
	if config.AdjustStep <= 0 {
		config.AdjustStep = 5
	}

	window := app.NewWindow(config.Title)
	if app.Icon() != nil {
		window.SetIcon(app.Icon())
	}

	timerLabel := canvas.NewText("00:00", idleColor)
	timerLabel.Alignment = fyne.TextAlignCenter
	timerLabel.TextStyle = fyne.TextStyle{Bold: true, Monospace: true}
	timerLabel.TextSize = 64

	statusLabel := canvas.NewText("", idleColor)
	statusLabel.Alignment = fyne.TextAlignCenter
	statusLabel.TextSize = 14

	view := &Window{
		window:      window,
		config:      config,
		callbacks:   callbacks,
		timerLabel:  timerLabel,
		statusLabel: statusLabel,
	}

	view.toggleButton = widget.NewButton("Start", func() {
		if view.callbacks.OnToggle != nil {
			view.callbacks.OnToggle()
		}
	})
	view.toggleButton.Importance = widget.HighImportance
	view.resetButton = widget.NewButton("Reset", func() {
		if view.callbacks.OnReset != nil {
			view.callbacks.OnReset()
		}
	})
	view.subButton = widget.NewButton(fmt.Sprintf("-%ds", config.AdjustStep), func() {
		if view.callbacks.OnAdjust != nil {
			view.callbacks.OnAdjust(-view.config.AdjustStep)
		}
	})
	view.addButton = widget.NewButton(fmt.Sprintf("+%ds", config.AdjustStep), func() {
		if view.callbacks.OnAdjust != nil {
			view.callbacks.OnAdjust(view.config.AdjustStep)
		}
	})

	controls := container.NewGridWithColumns(4, view.subButton, view.toggleButton, view.resetButton, view.addButton)
	content := container.New(&timerLayout{}, timerLabel, statusLabel, controls)
	window.SetContent(content)
	window.Resize(fyne.NewSize(360, 220))
	window.SetCloseIntercept(func() {
		window.Hide()
	})

	view.render(countdown.Snapshot{Status: countdown.StatusIdle})
	return view
}

// Show brings the window to the front.
func (view *Window) Show() {
	fyne.Do(func() {
		view.window.Show()
		view.window.RequestFocus()
	})
}

// Hide hides the window.
func (view *Window) Hide() {
	fyne.Do(func() {
		view.window.Hide()
	})
}

// Render updates the window from snapshot. Safe from any goroutine.
func (view *Window) Render(snapshot countdown.Snapshot) {
	fyne.Do(func() {
		view.render(snapshot)
	})
}

func (view *Window) render(snapshot countdown.Snapshot) {
	tint := idleColor
	switch snapshot.Status {
	case countdown.StatusRunning:
		tint = runningColor
	case countdown.StatusFinished:
		tint = finishedColor
	}

	view.timerLabel.Text = snapshot.Remaining.String()
	view.timerLabel.Color = tint
	view.timerLabel.Refresh()

	view.statusLabel.Text = statusText(snapshot)
	view.statusLabel.Refresh()

	view.toggleButton.SetText(toggleText(snapshot.Status))
	if snapshot.Status == countdown.StatusFinished {
		view.toggleButton.Disable()
		view.addButton.Disable()
		view.subButton.Disable()
	} else {
		view.toggleButton.Enable()
		view.addButton.Enable()
		view.subButton.Enable()
	}
}

func statusText(snapshot countdown.Snapshot) string {
	switch snapshot.Status {
	case countdown.StatusRunning:
		return fmt.Sprintf("Running · %s timer", snapshot.Initial)
	case countdown.StatusPaused:
		return "Paused"
	case countdown.StatusFinished:
		return "Time's up!"
	default:
		return fmt.Sprintf("Ready · %s", snapshot.Initial)
	}
}

func toggleText(status countdown.Status) string {
	switch status {
	case countdown.StatusRunning:
		return "Pause"
	case countdown.StatusPaused:
		return "Resume"
	default:
		return "Start"
	}
}

// timerLayout stacks the time, the status line and the controls, giving the
// time all spare height.
type timerLayout struct{}

func (layout *timerLayout) Layout(objects []fyne.CanvasObject, size fyne.Size) {
	if len(objects) < 3 {
		return
	}
	timer, status, controls := objects[0], objects[1], objects[2]

	pad := size.Height * 0.05
	width := size.Width - pad*2
	if width < 0 {
		width = 0
	}

	controlsSize := controls.MinSize()
	controlsY := size.Height - pad - controlsSize.Height
	if controlsY < 0 {
		controlsY = 0
	}
	controls.Move(fyne.NewPos(pad, controlsY))
	controls.Resize(fyne.NewSize(width, controlsSize.Height))

	statusSize := status.MinSize()
	statusY := controlsY - 8 - statusSize.Height
	if statusY < 0 {
		statusY = 0
	}
	status.Move(fyne.NewPos(pad, statusY))
	status.Resize(fyne.NewSize(width, statusSize.Height))

	timerSize := timer.MinSize()
	timerY := (statusY - timerSize.Height) / 2
	if timerY < pad {
		timerY = pad
	}
	timer.Move(fyne.NewPos(pad, timerY))
	timer.Resize(fyne.NewSize(width, timerSize.Height))
}

func (layout *timerLayout) MinSize(objects []fyne.CanvasObject) fyne.Size {
	if len(objects) < 3 {
		return fyne.NewSize(0, 0)
	}
	width := float32(0)
	height := float32(0)
	for _, object := range objects {
		objectSize := object.MinSize()
		if objectSize.Width > width {
			width = objectSize.Width
		}
		height += objectSize.Height
	}
	return fyne.NewSize(width+20, height+32)
}
