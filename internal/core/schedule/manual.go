package schedule

import (
	"sync"
	"time"
)

// Manual is a Scheduler driven by a virtual clock. Nothing runs until the
// caller advances time, which makes it the synthetic clock for tests and for
// replaying suspended hosts.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*manualTask
}

type manualTask struct {
	owner    *Manual
	id       int
	due      time.Time
	interval time.Duration
	run      func()
	done     bool
}

// NewManual creates a manual scheduler whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the virtual time.
func (manual *Manual) Now() time.Time {
	manual.mu.Lock()
	defer manual.mu.Unlock()
	return manual.now
}

// Every registers a repeating task due one interval from now.
func (manual *Manual) Every(interval time.Duration, run func()) Task {
	if interval <= 0 {
		interval = time.Second
	}
	return manual.add(interval, interval, run)
}

// After registers a one-shot task.
func (manual *Manual) After(delay time.Duration, run func()) Task {
	if delay < 0 {
		delay = 0
	}
	return manual.add(delay, 0, run)
}

func (manual *Manual) add(delay, interval time.Duration, run func()) Task {
	manual.mu.Lock()
	defer manual.mu.Unlock()
	manual.seq++
	task := &manualTask{
		owner:    manual,
		id:       manual.seq,
		due:      manual.now.Add(delay),
		interval: interval,
		run:      run,
	}
	manual.tasks = append(manual.tasks, task)
	return task
}

// Set moves the clock to an absolute instant without running anything.
func (manual *Manual) Set(now time.Time) {
	manual.mu.Lock()
	manual.now = now
	manual.mu.Unlock()
}

// Advance moves the clock forward and runs everything that became due.
// A repeating task runs at most once per call no matter how many intervals
// elapsed, the same way a stalled time.Ticker collapses missed ticks.
func (manual *Manual) Advance(delta time.Duration) {
	manual.mu.Lock()
	manual.now = manual.now.Add(delta)
	manual.mu.Unlock()

	fired := make(map[int]bool)
	for {
		task := manual.popDue(fired)
		if task == nil {
			return
		}
		task.run()
	}
}

// Pending reports how many tasks are still live.
func (manual *Manual) Pending() int {
	manual.mu.Lock()
	defer manual.mu.Unlock()
	count := 0
	for _, task := range manual.tasks {
		if !task.done {
			count++
		}
	}
	return count
}

func (manual *Manual) popDue(fired map[int]bool) *manualTask {
	manual.mu.Lock()
	defer manual.mu.Unlock()

	var next *manualTask
	live := manual.tasks[:0]
	for _, task := range manual.tasks {
		if task.done {
			continue
		}
		live = append(live, task)
		if fired[task.id] || task.due.After(manual.now) {
			continue
		}
		if next == nil || task.due.Before(next.due) {
			next = task
		}
	}
	manual.tasks = live
	if next == nil {
		return nil
	}

	if next.interval == 0 {
		next.done = true
	} else {
		fired[next.id] = true
		for !next.due.After(manual.now) {
			next.due = next.due.Add(next.interval)
		}
	}
	return next
}

func (task *manualTask) Cancel() {
	task.owner.mu.Lock()
	task.done = true
	task.owner.mu.Unlock()
}
