package state

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/five82/immersive/channel"
	"github.com/five82/immersive/draft"
	"github.com/five82/immersive/host"
	"github.com/five82/immersive/observability"
)

type todo struct {
	Task string
	Done bool
}

type todos struct {
	Tasks []todo
}

type actions struct {
	AddTask    func(task string)
	RemoveTask func(index int)
}

func initial() todos {
	return todos{Tasks: []todo{{Task: "hello"}}}
}

func define(calls *int) ActionsFactory[todos, actions] {
	return func(modify Modify[todos]) actions {
		if calls != nil {
			*calls++
		}
		return actions{
			AddTask: func(task string) {
				modify(func(d *draft.Draft[todos]) {
					d.Append(draft.P("Tasks"), todo{Task: task})
				})
			},
			RemoveTask: func(index int) {
				modify(func(d *draft.Draft[todos]) {
					d.Splice(draft.P("Tasks"), index, 1)
				})
			},
		}
	}
}

func tasksOf(s todos) []todo { return s.Tasks }

type recorder struct {
	mu    sync.Mutex
	types []observability.EventType
}

func (r *recorder) OnEvent(_ context.Context, ev observability.Event) {
	r.mu.Lock()
	r.types = append(r.types, ev.Type)
	r.mu.Unlock()
}

func (r *recorder) has(typ observability.EventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.types {
		if t == typ {
			return true
		}
	}
	return false
}

func (r *recorder) count(typ observability.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.types {
		if t == typ {
			n++
		}
	}
	return n
}

func hookErr(t *testing.T, fn func()) (err error) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")
		var ok bool
		err, ok = r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
	}()
	fn()
	return nil
}

func TestContext_TaskScenario(t *testing.T) {
	c := New(initial(), define(nil), WithScheduler(host.NewManual()))
	ctx, p := c.Provide(context.Background())
	defer p.Close()

	tasks := UseSelectState(ctx, c, tasksOf)
	acts := c.UseActions(ctx)
	require.Len(t, tasks.Value(), 1)

	acts.AddTask("New task")
	require.Len(t, tasks.Value(), 2)

	acts.RemoveTask(0)
	require.Equal(t, []todo{{Task: "New task"}}, tasks.Value())
	require.Equal(t, uint64(2), p.Version())
}

func TestContext_ReplayEquivalence(t *testing.T) {
	c := New(initial(), define(nil), WithScheduler(host.NewManual()))
	ctx, p := c.Provide(context.Background())
	defer p.Close()

	var folded todos = initial()
	record := define(nil)(func(mutate func(d *draft.Draft[todos])) {
		folded = draft.Apply(folded, mutate)
	})
	acts := c.UseActions(ctx)
	for _, step := range []func(a actions){
		func(a actions) { a.AddTask("a") },
		func(a actions) { a.AddTask("b") },
		func(a actions) { a.RemoveTask(1) },
		func(a actions) { a.AddTask("c") },
	} {
		step(acts)
		step(record)
	}
	require.Equal(t, folded, p.Snapshot())
}

func TestHooks_PanicOutsideProvider(t *testing.T) {
	c := New(initial(), define(nil), WithName("todos"))

	err := hookErr(t, func() { c.UseActions(context.Background()) })
	require.True(t, errors.Is(err, ErrNoProvider))
	require.Contains(t, err.Error(), "UseActions(todos)")

	err = hookErr(t, func() { UseSelectState(context.Background(), c, tasksOf) })
	require.True(t, errors.Is(err, ErrNoProvider))

	ctx, p := c.Provide(context.Background())
	p.Close()
	err = hookErr(t, func() { c.UseLocalUpdates(ctx) })
	require.True(t, errors.Is(err, ErrClosed))
	var he *HookError
	require.True(t, errors.As(err, &he))
	require.Equal(t, "UseLocalUpdates", he.Hook)
}

func TestActions_MemoizedPerSink(t *testing.T) {
	calls := 0
	c := New(initial(), define(&calls), WithScheduler(host.NewManual()))
	ctx, p := c.Provide(context.Background())
	defer p.Close()

	c.UseActions(ctx)
	c.UseActions(ctx)
	require.Equal(t, 1, calls)

	local := c.UseLocalUpdates(ctx)
	local.Actions()
	local.Actions()
	require.Equal(t, 2, calls)
}

func TestActions_InertAfterClose(t *testing.T) {
	rec := &recorder{}
	c := New(initial(), define(nil), WithScheduler(host.NewManual()), WithObserver(rec))
	ctx, p := c.Provide(context.Background())
	acts := c.UseActions(ctx)
	p.Close()

	acts.AddTask("late")
	require.Len(t, p.Snapshot().Tasks, 1)
	require.True(t, rec.has(observability.EventWriteDropped))
	require.True(t, rec.has(observability.EventProviderClose))
}

func TestLocal_DivergeThenFlushOnIdle(t *testing.T) {
	sched := host.NewManual()
	rec := &recorder{}
	c := New(initial(), define(nil), WithScheduler(sched), WithObserver(rec))
	ctx, p := c.Provide(context.Background())
	defer p.Close()

	global := UseSelectState(ctx, c, func(s todos) todos { return s })
	local := c.UseLocalUpdates(ctx)
	localView := UseLocalState(local, func(s todos) todos { return s })

	local.Actions().AddTask("New task")
	require.Len(t, localView.Value().Tasks, 2)
	require.Len(t, global.Value().Tasks, 1)
	require.NotEqual(t, global.Value(), localView.Value())
	require.Equal(t, Flushing, local.Status())
	require.Equal(t, 1, sched.Pending())

	require.Equal(t, 1, sched.Idle())
	require.Len(t, global.Value().Tasks, 2)
	require.Equal(t, localView.Value(), global.Value())
	require.Equal(t, Synced, local.Status())
	require.Zero(t, sched.Pending())

	// A local change after the flush opens a new window.
	local.Actions().AddTask("Another")
	require.Equal(t, Flushing, local.Status())
	require.Equal(t, 1, sched.Pending())
	require.Len(t, global.Value().Tasks, 2)
	require.Equal(t, 2, rec.count(observability.EventLocalDiverge))

	require.Equal(t, 1, sched.Idle())
	require.Equal(t, []todo{{Task: "hello"}, {Task: "New task"}, {Task: "Another"}}, p.Snapshot().Tasks)
	require.Equal(t, localView.Value(), global.Value())
	require.Equal(t, Synced, local.Status())
	require.Equal(t, 2, rec.count(observability.EventLocalFlush))
}

func TestLocal_IdleTimeoutCeiling(t *testing.T) {
	sched := host.NewManual()
	c := New(initial(), define(nil), WithScheduler(sched), WithIdleTimeout(100*time.Millisecond))
	ctx, p := c.Provide(context.Background())
	defer p.Close()

	local := c.UseLocalUpdates(ctx)
	local.Actions().AddTask("New task")

	sched.Advance(99 * time.Millisecond)
	require.Len(t, p.Snapshot().Tasks, 1)
	sched.Advance(time.Millisecond)
	require.Len(t, p.Snapshot().Tasks, 2)
	require.Equal(t, Synced, local.Status())
}

func TestLocal_DebounceFlushesOnce(t *testing.T) {
	sched := host.NewManual()
	c := New(initial(), define(nil),
		WithScheduler(sched),
		WithFlushMode(FlushDelay),
		WithFlushDelay(50*time.Millisecond),
	)
	ctx, p := c.Provide(context.Background())
	defer p.Close()

	local := c.UseLocalUpdates(ctx)
	local.Actions().AddTask("a")
	sched.Advance(30 * time.Millisecond)
	local.Actions().AddTask("b")
	sched.Advance(30 * time.Millisecond)
	require.Equal(t, uint64(0), p.Version(), "second change restarts the window")

	sched.Advance(20 * time.Millisecond)
	require.Equal(t, uint64(1), p.Version(), "one flush carries both changes")
	require.Equal(t, []todo{{Task: "hello"}, {Task: "a"}, {Task: "b"}}, p.Snapshot().Tasks)
}

func TestLocal_UpstreamChangeDiscardsLocal(t *testing.T) {
	sched := host.NewManual()
	rec := &recorder{}
	c := New(initial(), define(nil), WithScheduler(sched), WithObserver(rec))
	ctx, p := c.Provide(context.Background())
	defer p.Close()

	local := c.UseLocalUpdates(ctx)
	local.Actions().AddTask("local")
	c.UseActions(ctx).AddTask("upstream")

	require.Equal(t, []todo{{Task: "hello"}, {Task: "upstream"}}, local.State().Tasks)
	require.Equal(t, Synced, local.Status())
	require.Zero(t, sched.Pending())
	require.True(t, rec.has(observability.EventLocalFlushCancel))
	require.True(t, rec.has(observability.EventLocalResync))

	sched.Idle()
	sched.Advance(time.Second)
	require.Equal(t, uint64(1), p.Version())
}

func TestLocal_ChangeDuringFlushIsKept(t *testing.T) {
	sched := host.NewManual()
	c := New(initial(), define(nil), WithScheduler(sched))
	ctx, p := c.Provide(context.Background())
	defer p.Close()

	local := c.UseLocalUpdates(ctx)
	fired := false
	p.Channel().Subscribe(func(todos, uint64) {
		if !fired {
			fired = true
			local.Actions().AddTask("during")
		}
	})

	local.Actions().AddTask("first")
	sched.Idle()
	require.Equal(t, Flushing, local.Status())
	require.Equal(t, 1, sched.Pending())
	require.Len(t, p.Snapshot().Tasks, 2)

	sched.Idle()
	require.Equal(t, Synced, local.Status())
	require.Equal(t, []todo{{Task: "hello"}, {Task: "first"}, {Task: "during"}}, p.Snapshot().Tasks)
	require.Equal(t, p.Snapshot(), local.State())
}

func TestLocal_CloseCancelsFlush(t *testing.T) {
	sched := host.NewManual()
	c := New(initial(), define(nil), WithScheduler(sched))
	ctx, p := c.Provide(context.Background())
	defer p.Close()

	local := c.UseLocalUpdates(ctx)
	acts := local.Actions()
	acts.AddTask("unsaved")
	local.Close()

	require.Zero(t, sched.Pending())
	sched.Idle()
	acts.AddTask("late")
	require.Len(t, p.Snapshot().Tasks, 1)
	require.Len(t, local.State().Tasks, 2)
}

func TestProvider_CloseCancelsPendingCallbacks(t *testing.T) {
	sched := host.NewManual()
	c := New(initial(), define(nil), WithScheduler(sched), WithSelectDelay(20*time.Millisecond))
	ctx, p := c.Provide(context.Background())

	delivered := 0
	UseSelectState(ctx, c, tasksOf, channel.WithOnChange(func([]todo) { delivered++ }))
	local := c.UseLocalUpdates(ctx)
	local.Actions().AddTask("a")
	c.UseActions(ctx).AddTask("b")
	require.Equal(t, 1, sched.Pending(), "upstream write cancelled the flush, selector still pending")

	p.Close()
	require.Zero(t, sched.Pending())
	sched.Advance(time.Second)
	require.Zero(t, delivered)
}

func TestUseSelectState_Debounced(t *testing.T) {
	sched := host.NewManual()
	c := New(initial(), define(nil), WithScheduler(sched), WithSelectDelay(20*time.Millisecond))
	ctx, p := c.Provide(context.Background())
	defer p.Close()

	var got []int
	sel := UseSelectState(ctx, c, func(s todos) int { return len(s.Tasks) },
		channel.WithOnChange(func(n int) { got = append(got, n) }))
	acts := c.UseActions(ctx)
	acts.AddTask("a")
	acts.AddTask("b")
	require.Empty(t, got)
	require.Equal(t, 1, sel.Value())

	sched.Advance(20 * time.Millisecond)
	require.Equal(t, []int{3}, got)
	require.Equal(t, 3, sel.Value())
}

func TestClone_Independent(t *testing.T) {
	sched := host.NewManual()
	c := New(initial(), define(nil), WithScheduler(sched))
	clone := c.Clone(todos{Tasks: []todo{{Task: "world", Done: true}}})

	ctx, p := c.Provide(context.Background())
	defer p.Close()
	cctx, cp := clone.Provide(ctx)
	defer cp.Close()

	cloned := UseSelectState(cctx, clone, tasksOf)
	require.Equal(t, "world", cloned.Value()[0].Task)

	clone.UseActions(cctx).AddTask("more")
	require.Len(t, cloned.Value(), 2)
	require.Len(t, p.Snapshot().Tasks, 1)
	require.True(t, reflect.DeepEqual(initial(), p.Snapshot()))

	err := hookErr(t, func() { clone.UseActions(ctx) })
	require.True(t, errors.Is(err, ErrNoProvider))
}

func TestLocal_DivergedGaugeSettles(t *testing.T) {
	sched := host.NewManual()
	metrics := observability.NewMetricsObserver(prometheus.NewRegistry())
	c := New(initial(), define(nil), WithScheduler(sched), WithObserver(metrics), WithName("todos"))
	ctx, p := c.Provide(context.Background())
	defer p.Close()
	gauge := metrics.Diverged.WithLabelValues("todos/local")

	local := c.UseLocalUpdates(ctx)
	local.Actions().AddTask("a")
	local.Actions().AddTask("b")
	require.Equal(t, 1.0, testutil.ToFloat64(gauge))
	sched.Idle()
	require.Equal(t, 0.0, testutil.ToFloat64(gauge))

	local.Actions().AddTask("c")
	c.UseActions(ctx).AddTask("upstream")
	require.Equal(t, 0.0, testutil.ToFloat64(gauge))

	local.Actions().AddTask("d")
	local.Close()
	require.Equal(t, 0.0, testutil.ToFloat64(gauge))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Flushes.WithLabelValues("todos/local", "applied")))
}

func TestConfig_Options(t *testing.T) {
	var cfg Config
	err := toml.Unmarshal([]byte(`
name = "todos"
select_delay_ms = 15
idle_timeout_ms = 250
flush_mode = "delay"
flush_delay_ms = 40
`), &cfg)
	require.NoError(t, err)

	opts, err := cfg.Options()
	require.NoError(t, err)
	c := New(initial(), define(nil), opts...)
	require.Equal(t, "todos", c.Name())
	require.Equal(t, 15*time.Millisecond, c.settings.selectDelay)
	require.Equal(t, 250*time.Millisecond, c.settings.idleTimeout)
	require.Equal(t, FlushDelay, c.settings.flushMode)
	require.Equal(t, 40*time.Millisecond, c.settings.flushDelay)

	_, err = Config{FlushMode: "sometimes"}.Options()
	require.Error(t, err)

	defaults := New(initial(), define(nil))
	require.Equal(t, DefaultIdleTimeout, defaults.settings.idleTimeout)
	require.Equal(t, FlushIdle, defaults.settings.flushMode)
}
