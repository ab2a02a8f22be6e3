package schedule

import (
	"sync"
	"time"
)

// Clock reports the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// Task is a handle to scheduled work. Cancel is idempotent and never blocks.
type Task interface {
	Cancel()
}

// Scheduler runs work on an owned cadence or after a delay.
type Scheduler interface {
	Clock
	Every(interval time.Duration, run func()) Task
	After(delay time.Duration, run func()) Task
}

// System is the real-time Scheduler backed by time.Ticker and time.AfterFunc.
type System struct{}

// NewSystem returns the real-time scheduler.
func NewSystem() System {
	return System{}
}

// Now returns time.Now.
func (System) Now() time.Time {
	return time.Now()
}

// Every starts a repeating task. Ticks that arrive while run is still busy
// are dropped, like time.Ticker does.
func (System) Every(interval time.Duration, run func()) Task {
	if interval <= 0 {
		interval = time.Second
	}
	task := &tickerTask{stopCh: make(chan struct{})}
	go task.loop(interval, run)
	return task
}

// After runs fn once after delay unless cancelled first.
func (System) After(delay time.Duration, run func()) Task {
	return &timerTask{timer: time.AfterFunc(delay, run)}
}

type tickerTask struct {
	once   sync.Once
	stopCh chan struct{}
}

func (task *tickerTask) loop(interval time.Duration, run func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-task.stopCh:
			return
		case <-ticker.C:
			select {
			case <-task.stopCh:
				return
			default:
			}
			run()
		}
	}
}

func (task *tickerTask) Cancel() {
	task.once.Do(func() {
		close(task.stopCh)
	})
}

type timerTask struct {
	timer *time.Timer
}

func (task *timerTask) Cancel() {
	task.timer.Stop()
}
