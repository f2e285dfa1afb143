package host

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Handle cancels a scheduled callback.
type Handle interface {
	// Cancel prevents the callback from running. It reports false when the
	// callback already ran or was already cancelled.
	Cancel() bool
}

// Scheduler is the pair of suspension points the state container relies on:
// a fixed-delay timer and an idle registration with a timeout ceiling.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Handle
	RequestIdle(fn func(), timeout time.Duration) Handle
}

// Activity is implemented by schedulers that need to know when the host is
// busy. Idle callbacks wait until no activity has been reported for a frame.
type Activity interface {
	Touch()
}

const (
	taskPending int32 = iota
	taskDone
	taskCancelled
)

type task struct {
	state   atomic.Int32
	fn      func()
	release func(*task)

	mu    sync.Mutex
	timer *time.Timer
}

func (t *task) Cancel() bool {
	if !t.state.CompareAndSwap(taskPending, taskCancelled) {
		return false
	}
	t.stop()
	return true
}

func (t *task) pending() bool {
	return t.state.Load() == taskPending
}

func (t *task) setTimer(timer *time.Timer) {
	t.mu.Lock()
	t.timer = timer
	t.mu.Unlock()
	if !t.pending() {
		timer.Stop()
	}
}

func (t *task) stop() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()
	if t.release != nil {
		t.release(t)
	}
}

const DefaultFrame = 16 * time.Millisecond

// Host is a real-time Scheduler. Scheduled callbacks run one at a time on
// timer goroutines. Idle callbacks run once no activity has been reported for
// a frame, or at their timeout ceiling if the host never goes quiet.
type Host struct {
	frame  time.Duration
	logger *slog.Logger

	exec sync.Mutex

	mu         sync.Mutex
	lastTouch  time.Time
	idle       []*task
	live       map[*task]struct{}
	frameTimer *time.Timer
	closed     bool
}

// Option configures a Host.
type Option func(*Host)

// WithFrame sets how long the host must stay quiet before idle callbacks run.
func WithFrame(d time.Duration) Option {
	return func(h *Host) {
		if d > 0 {
			h.frame = d
		}
	}
}

// WithLogger sets the logger used for scheduling diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// New creates a Host.
func New(opts ...Option) *Host {
	h := &Host{
		frame:  DefaultFrame,
		logger: slog.Default(),
		live:   make(map[*task]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Touch reports host activity, pushing pending idle callbacks back by a frame.
func (h *Host) Touch() {
	h.mu.Lock()
	h.lastTouch = time.Now()
	h.mu.Unlock()
}

// AfterFunc runs fn after d unless cancelled first.
func (h *Host) AfterFunc(d time.Duration, fn func()) Handle {
	t := h.track(fn)
	if !t.pending() {
		return t
	}
	t.setTimer(time.AfterFunc(d, func() { h.run(t) }))
	return t
}

// RequestIdle runs fn once the host has been quiet for a frame. A positive
// timeout bounds the wait.
func (h *Host) RequestIdle(fn func(), timeout time.Duration) Handle {
	t := h.track(fn)
	if !t.pending() {
		return t
	}

	h.mu.Lock()
	kept := h.idle[:0]
	for _, other := range h.idle {
		if other.pending() {
			kept = append(kept, other)
		}
	}
	h.idle = append(kept, t)
	h.armFrameLocked()
	h.mu.Unlock()

	if timeout > 0 {
		t.setTimer(time.AfterFunc(timeout, func() {
			h.logger.Debug("idle timeout reached", slog.Duration("timeout", timeout))
			h.run(t)
		}))
	}
	return t
}

// Pending returns the number of callbacks that have not run or been cancelled.
func (h *Host) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

// Close cancels every pending callback. Later registrations are returned
// already cancelled.
func (h *Host) Close() {
	h.mu.Lock()
	h.closed = true
	live := make([]*task, 0, len(h.live))
	for t := range h.live {
		live = append(live, t)
	}
	h.idle = nil
	if h.frameTimer != nil {
		h.frameTimer.Stop()
		h.frameTimer = nil
	}
	h.mu.Unlock()

	for _, t := range live {
		t.Cancel()
	}
}

func (h *Host) track(fn func()) *task {
	t := &task{fn: fn, release: h.release}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		t.state.Store(taskCancelled)
		return t
	}
	h.live[t] = struct{}{}
	return t
}

func (h *Host) release(t *task) {
	h.mu.Lock()
	delete(h.live, t)
	h.mu.Unlock()
}

func (h *Host) armFrameLocked() {
	if h.frameTimer != nil || h.closed {
		return
	}
	wait := h.frame - time.Since(h.lastTouch)
	if wait < 0 {
		wait = 0
	}
	h.frameTimer = time.AfterFunc(wait, h.onFrame)
}

func (h *Host) onFrame() {
	h.mu.Lock()
	h.frameTimer = nil
	if h.closed {
		h.mu.Unlock()
		return
	}
	if quiet := time.Since(h.lastTouch); quiet < h.frame {
		h.frameTimer = time.AfterFunc(h.frame-quiet, h.onFrame)
		h.mu.Unlock()
		return
	}
	ready := h.idle
	h.idle = nil
	h.mu.Unlock()

	for _, t := range ready {
		h.run(t)
	}
}

func (h *Host) run(t *task) {
	h.exec.Lock()
	defer h.exec.Unlock()
	if !t.state.CompareAndSwap(taskPending, taskDone) {
		return
	}
	t.stop()
	t.fn()
}
