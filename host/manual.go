package host

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven explicitly by the caller. Nothing runs until
// Advance or Idle is called, and callbacks run on the calling goroutine.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	timers  []manualTimer
	idle    []*task
	touches int
}

type manualTimer struct {
	at  time.Time
	seq int
	t   *task
}

// NewManual returns a Manual scheduler whose clock starts at the Unix epoch.
func NewManual() *Manual {
	return &Manual{now: time.Unix(0, 0)}
}

// Now returns the manual clock.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Touch records activity. Manual idle callbacks only run on Idle.
func (m *Manual) Touch() {
	m.mu.Lock()
	m.touches++
	m.mu.Unlock()
}

// Touches returns how many times Touch was called.
func (m *Manual) Touches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.touches
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Handle {
	t := &task{fn: fn}
	m.mu.Lock()
	m.addTimerLocked(d, t)
	m.mu.Unlock()
	return t
}

func (m *Manual) RequestIdle(fn func(), timeout time.Duration) Handle {
	t := &task{fn: fn}
	m.mu.Lock()
	m.idle = append(m.idle, t)
	if timeout > 0 {
		m.addTimerLocked(timeout, t)
	}
	m.mu.Unlock()
	return t
}

func (m *Manual) addTimerLocked(d time.Duration, t *task) {
	m.seq++
	m.timers = append(m.timers, manualTimer{at: m.now.Add(d), seq: m.seq, t: t})
}

// Advance moves the clock forward by d, running every timer that falls due in
// deadline order. Timers scheduled by callbacks run too if they fall within d.
// It returns the number of callbacks run.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	ran := 0
	for {
		m.mu.Lock()
		m.pruneLocked()
		sort.Slice(m.timers, func(i, j int) bool {
			if m.timers[i].at.Equal(m.timers[j].at) {
				return m.timers[i].seq < m.timers[j].seq
			}
			return m.timers[i].at.Before(m.timers[j].at)
		})
		if len(m.timers) == 0 || m.timers[0].at.After(target) {
			m.now = target
			m.mu.Unlock()
			return ran
		}
		next := m.timers[0]
		m.timers = m.timers[1:]
		m.now = next.at
		m.mu.Unlock()

		if m.run(next.t) {
			ran++
		}
	}
}

// Idle runs every pending idle callback, as if the host reported spare
// capacity. Callbacks registered while running wait for the next call.
func (m *Manual) Idle() int {
	m.mu.Lock()
	ready := m.idle
	m.idle = nil
	m.mu.Unlock()

	ran := 0
	for _, t := range ready {
		if m.run(t) {
			ran++
		}
	}
	return ran
}

// Pending returns the number of callbacks that have not run or been cancelled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[*task]struct{})
	for _, t := range m.idle {
		if t.pending() {
			seen[t] = struct{}{}
		}
	}
	for _, tm := range m.timers {
		if tm.t.pending() {
			seen[tm.t] = struct{}{}
		}
	}
	return len(seen)
}

func (m *Manual) pruneLocked() {
	kept := m.timers[:0]
	for _, tm := range m.timers {
		if tm.t.pending() {
			kept = append(kept, tm)
		}
	}
	m.timers = kept
}

func (m *Manual) run(t *task) bool {
	if !t.state.CompareAndSwap(taskPending, taskDone) {
		return false
	}
	t.fn()
	return true
}
