package state

import (
	"sync"

	"github.com/five82/immersive/channel"
	"github.com/five82/immersive/draft"
	"github.com/five82/immersive/host"
	"github.com/five82/immersive/observability"
)

// Status is the reconciliation state of a local overlay.
type Status int

const (
	// Synced means the overlay mirrors the global snapshot.
	Synced Status = iota
	// Diverged means the overlay holds changes that no flush covers yet.
	// A local change passes through it on the way to Flushing.
	Diverged
	// Flushing means a flush is scheduled, or running, and has not landed.
	Flushing
)

func (s Status) String() string {
	switch s {
	case Synced:
		return "synced"
	case Diverged:
		return "diverged"
	case Flushing:
		return "flushing"
	}
	return "unknown"
}

// Local is a staging copy of the global snapshot. Local actions change only
// the copy; the copy is written back to the global snapshot once the host is
// idle (or after a fixed delay). A global change made by anyone else
// discards local changes that have not been flushed yet.
type Local[T, A any] struct {
	p    *Provider[T, A]
	ch   *channel.Channel[T]
	name string

	actions      binding[T, A]
	cancelGlobal func()

	mu        sync.Mutex
	status    Status
	base      uint64
	echo      uint64
	gen       uint64
	pending   host.Handle
	episode   bool
	closed    bool
	selectors []closer
}

func newLocal[T, A any](p *Provider[T, A]) *Local[T, A] {
	snap, version := p.ch.Load()
	l := &Local[T, A]{
		p:    p,
		name: p.name + "/local",
		base: version,
	}
	l.ch = channel.New(snap, p.channelOptions(l.name)...)
	l.cancelGlobal = p.ch.Subscribe(l.onGlobal)
	if latest, v := p.ch.Load(); v != version {
		l.onGlobal(latest, v)
	}
	return l
}

// State returns the overlay snapshot.
func (l *Local[T, A]) State() T { return l.ch.Snapshot() }

// Status returns the overlay's reconciliation state.
func (l *Local[T, A]) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// Channel exposes the overlay channel.
func (l *Local[T, A]) Channel() *channel.Channel[T] { return l.ch }

// Actions returns the action set bound to the overlay. Every call returns
// the same set. After Close the actions do nothing.
func (l *Local[T, A]) Actions() A {
	return l.actions.get(l.p.ctx.define, l.modify)
}

// UseLocalState subscribes to a projection of the overlay snapshot. The
// selector is synchronous unless opts say otherwise; closing the overlay
// closes it.
func UseLocalState[T, A, R any](l *Local[T, A], project func(T) R, opts ...channel.SelectOption) *channel.Selector[T, R] {
	all := append([]channel.SelectOption{channel.WithSelectScheduler(l.p.sched)}, opts...)
	sel := channel.Select(l.ch, project, all...)

	l.mu.Lock()
	closed := l.closed
	if !closed {
		l.selectors = append(l.selectors, sel)
	}
	l.mu.Unlock()
	if closed {
		sel.Close()
	}
	return sel
}

func (l *Local[T, A]) modify(mutate func(d *draft.Draft[T])) {
	before := l.ch.Version()
	if after := l.ch.Write(mutate); after == before {
		return
	}
	l.diverge()
}

// diverge marks the overlay changed and restarts the flush window.
func (l *Local[T, A]) diverge() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	superseded := l.pending != nil
	if superseded {
		l.pending.Cancel()
	}
	opened := !l.episode
	l.episode = true
	l.status = Diverged
	l.gen++
	gen := l.gen
	l.pending = l.scheduleLocked(gen)
	if l.pending != nil {
		l.status = Flushing
	}
	l.mu.Unlock()

	if opened {
		l.emit(observability.EventLocalDiverge, observability.LevelInfo, map[string]any{"base": l.baseVersion()})
	}
	if superseded {
		l.emit(observability.EventLocalFlushCancel, observability.LevelVerbose, map[string]any{"reason": "superseded"})
	}
	l.emit(observability.EventLocalFlushSchedule, observability.LevelVerbose, map[string]any{
		"generation": gen,
		"mode":       l.p.ctx.settings.flushMode.String(),
	})
}

func (l *Local[T, A]) scheduleLocked(gen uint64) host.Handle {
	s := l.p.ctx.settings
	fn := func() { l.flush(gen) }
	if s.flushMode == FlushDelay {
		return l.p.sched.AfterFunc(s.flushDelay, fn)
	}
	return l.p.sched.RequestIdle(fn, s.idleTimeout)
}

// flush publishes the overlay snapshot globally if nothing superseded
// generation gen. The write only lands if the global version is still the one
// the overlay was based on.
func (l *Local[T, A]) flush(gen uint64) {
	l.mu.Lock()
	if l.closed || gen != l.gen || l.status != Flushing {
		l.mu.Unlock()
		return
	}
	l.pending = nil
	snap := l.ch.Snapshot()
	expected := l.base
	l.echo = expected + 1
	l.mu.Unlock()

	version, ok := l.p.ch.ReplaceIf(expected, snap)

	l.mu.Lock()
	l.echo = 0
	if !ok {
		// Someone else published since the overlay was based. Unless a newer
		// local change or upstream sync already took over, fall back to the
		// global snapshot.
		current := !l.closed && l.gen == gen
		var latest T
		if current {
			latest, version = l.p.ch.Load()
			l.gen++
			l.status = Synced
			l.episode = false
			l.base = version
		}
		l.mu.Unlock()

		l.emit(observability.EventLocalFlushAbandon, observability.LevelWarning, map[string]any{
			"expected": expected,
			"version":  version,
			"settled":  current,
		})
		if current {
			l.ch.Replace(latest)
			l.emit(observability.EventLocalResync, observability.LevelInfo, map[string]any{
				"version": version,
				"settled": false,
			})
		}
		return
	}
	if version > l.base {
		l.base = version
	}
	settled := l.status == Flushing && l.gen == gen
	if settled {
		l.status = Synced
		l.episode = false
	}
	l.mu.Unlock()

	l.emit(observability.EventLocalFlush, observability.LevelInfo, map[string]any{
		"version": version,
		"settled": settled,
	})
}

// onGlobal handles every global publish. The overlay's own flush is
// recognised by its version and only moves the base; anything else replaces
// the overlay and cancels a pending flush.
func (l *Local[T, A]) onGlobal(snap T, version uint64) {
	l.mu.Lock()
	if l.closed || version <= l.base {
		l.mu.Unlock()
		return
	}
	if l.echo != 0 && version == l.echo {
		l.base = version
		l.echo = 0
		l.mu.Unlock()
		return
	}
	cancelled := l.pending != nil
	if cancelled {
		l.pending.Cancel()
		l.pending = nil
	}
	settled := l.episode
	l.episode = false
	l.status = Synced
	l.gen++
	l.base = version
	l.echo = 0
	l.mu.Unlock()

	if cancelled {
		l.emit(observability.EventLocalFlushCancel, observability.LevelVerbose, map[string]any{"reason": "upstream"})
	}
	l.ch.Replace(snap)
	l.emit(observability.EventLocalResync, observability.LevelVerbose, map[string]any{
		"version": version,
		"settled": settled,
	})
}

// Close stops the overlay. A pending flush is cancelled and unflushed local
// changes are discarded.
func (l *Local[T, A]) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	cancelled := l.pending != nil
	if cancelled {
		l.pending.Cancel()
		l.pending = nil
	}
	settled := l.episode
	l.episode = false
	l.gen++
	selectors := l.selectors
	l.selectors = nil
	l.mu.Unlock()

	l.cancelGlobal()
	for _, sel := range selectors {
		sel.Close()
	}
	l.ch.Close()
	if cancelled || settled {
		l.emit(observability.EventLocalFlushCancel, observability.LevelVerbose, map[string]any{
			"reason":  "close",
			"settled": settled,
		})
	}
}

func (l *Local[T, A]) baseVersion() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.base
}

func (l *Local[T, A]) emit(typ observability.EventType, level observability.Level, data map[string]any) {
	observability.Emit(l.p.obs, typ, level, l.name, data)
}
