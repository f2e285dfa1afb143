package state

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/five82/immersive/host"
	"github.com/five82/immersive/observability"
)

const (
	// DefaultIdleTimeout bounds how long an idle flush may wait.
	DefaultIdleTimeout = 100 * time.Millisecond
	// DefaultFlushDelay is the settle time of FlushDelay mode.
	DefaultFlushDelay = 100 * time.Millisecond
)

// FlushMode selects how a local overlay schedules its flush.
type FlushMode int

const (
	// FlushIdle flushes when the host reports idle time, or at IdleTimeout.
	FlushIdle FlushMode = iota
	// FlushDelay flushes a fixed delay after the last local change.
	FlushDelay
)

func (m FlushMode) String() string {
	switch m {
	case FlushIdle:
		return "idle"
	case FlushDelay:
		return "delay"
	default:
		return fmt.Sprintf("FlushMode(%d)", int(m))
	}
}

// ParseFlushMode accepts "idle" and "delay". Empty means idle.
func ParseFlushMode(s string) (FlushMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "idle":
		return FlushIdle, nil
	case "delay":
		return FlushDelay, nil
	}
	return FlushIdle, fmt.Errorf("unknown flush mode %q", s)
}

type settings struct {
	name        string
	selectDelay time.Duration
	idleTimeout time.Duration
	flushMode   FlushMode
	flushDelay  time.Duration
	sched       host.Scheduler
	obs         observability.Observer
	logger      *slog.Logger
}

func defaultSettings() settings {
	return settings{
		name:        "state",
		idleTimeout: DefaultIdleTimeout,
		flushDelay:  DefaultFlushDelay,
	}
}

func (s settings) observer() observability.Observer {
	var slogObs observability.Observer
	if s.logger != nil {
		slogObs = observability.NewSlogObserver(s.logger)
	}
	switch {
	case s.obs == nil && slogObs == nil:
		return observability.NoOpObserver{}
	case slogObs == nil:
		return s.obs
	case s.obs == nil:
		return slogObs
	}
	return observability.NewMultiObserver(s.obs, slogObs)
}

// Option configures a Context.
type Option func(*settings)

// WithName labels the Context in events and errors.
func WithName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.name = name
		}
	}
}

// WithSelectDelay debounces global selectors by d. Zero keeps them
// synchronous.
func WithSelectDelay(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.selectDelay = d
		}
	}
}

// WithIdleTimeout sets the ceiling on how long an idle flush waits.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithFlushMode selects idle or fixed-delay flushing.
func WithFlushMode(m FlushMode) Option {
	return func(s *settings) { s.flushMode = m }
}

// WithFlushDelay sets the settle time used by FlushDelay.
func WithFlushDelay(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.flushDelay = d
		}
	}
}

// WithScheduler sets the scheduler shared by every Provider of the Context.
// Without one each Provider runs its own host.Host.
func WithScheduler(sched host.Scheduler) Option {
	return func(s *settings) { s.sched = sched }
}

// WithObserver sets the observer for channel, selector and overlay events.
func WithObserver(obs observability.Observer) Option {
	return func(s *settings) { s.obs = obs }
}

// WithLogger logs every event through logger in addition to the observer.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// Config is the file form of the Context options.
type Config struct {
	Name          string `toml:"name"`
	SelectDelayMs int    `toml:"select_delay_ms"`
	IdleTimeoutMs int    `toml:"idle_timeout_ms"`
	FlushMode     string `toml:"flush_mode"`
	FlushDelayMs  int    `toml:"flush_delay_ms"`
}

// Options converts c to Context options. Zero fields keep the defaults.
func (c Config) Options() ([]Option, error) {
	mode, err := ParseFlushMode(c.FlushMode)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	opts := []Option{WithFlushMode(mode)}
	if c.Name != "" {
		opts = append(opts, WithName(c.Name))
	}
	if c.SelectDelayMs > 0 {
		opts = append(opts, WithSelectDelay(time.Duration(c.SelectDelayMs)*time.Millisecond))
	}
	if c.IdleTimeoutMs > 0 {
		opts = append(opts, WithIdleTimeout(time.Duration(c.IdleTimeoutMs)*time.Millisecond))
	}
	if c.FlushDelayMs > 0 {
		opts = append(opts, WithFlushDelay(time.Duration(c.FlushDelayMs)*time.Millisecond))
	}
	return opts, nil
}
