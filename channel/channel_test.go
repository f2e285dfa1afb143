package channel

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/five82/immersive/draft"
	"github.com/five82/immersive/observability"
)

type task struct {
	Task string
	Done bool
}

type board struct {
	Tasks []task
	Owner string
}

type recorder struct {
	mu     sync.Mutex
	events []observability.Event
}

func (r *recorder) OnEvent(_ context.Context, ev observability.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) count(typ observability.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func addTask(name string) func(d *draft.Draft[board]) {
	return func(d *draft.Draft[board]) {
		d.Append(draft.P("Tasks"), task{Task: name})
	}
}

func TestChannel_WriteAndSubscribe(t *testing.T) {
	ch := New(board{Tasks: []task{{Task: "hello"}}})
	base := ch.Snapshot()

	var got []uint64
	cancel := ch.Subscribe(func(s board, v uint64) { got = append(got, v) })

	require.Equal(t, uint64(1), ch.Write(addTask("New task")))
	require.Equal(t, uint64(2), ch.Write(func(d *draft.Draft[board]) {
		d.Delete(draft.P("Tasks", 0))
	}))

	snap, version := ch.Load()
	require.Equal(t, uint64(2), version)
	require.Equal(t, []task{{Task: "New task"}}, snap.Tasks)
	require.Equal(t, []task{{Task: "hello"}}, base.Tasks, "previous snapshot untouched")
	require.Equal(t, []uint64{1, 2}, got)

	cancel()
	cancel()
	ch.Write(addTask("later"))
	require.Len(t, got, 2)
	require.Zero(t, ch.Subscribers())
}

func TestChannel_NoopWritePublishesNothing(t *testing.T) {
	ch := New(board{})
	calls := 0
	ch.Subscribe(func(board, uint64) { calls++ })

	require.Equal(t, uint64(0), ch.Write(func(d *draft.Draft[board]) {}))
	require.Zero(t, calls)
}

func TestChannel_ListenersRunInSubscriptionOrder(t *testing.T) {
	ch := New(0)
	var order []string
	ch.Subscribe(func(int, uint64) { order = append(order, "a") })
	ch.Subscribe(func(int, uint64) { order = append(order, "b") })
	ch.Subscribe(func(int, uint64) { order = append(order, "c") })

	ch.Replace(1)
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestChannel_ReentrantWritesAreCoalesced(t *testing.T) {
	ch := New(0)
	var seen []int
	ch.Subscribe(func(v int, _ uint64) {
		seen = append(seen, v)
		if v < 3 {
			ch.Replace(v + 1)
		}
	})
	var versions []uint64
	ch.Subscribe(func(_ int, version uint64) { versions = append(versions, version) })

	ch.Replace(1)
	require.Equal(t, 3, ch.Snapshot())
	require.Equal(t, []int{1, 2, 3}, seen)
	require.Equal(t, []uint64{1, 2, 3}, versions)
}

func TestChannel_ListenersNeverOverlap(t *testing.T) {
	ch := New(0)
	var mu sync.Mutex
	active, overlaps, last := 0, 0, uint64(0)
	monotonic := true
	ch.Subscribe(func(_ int, version uint64) {
		mu.Lock()
		active++
		if active > 1 {
			overlaps++
		}
		if version < last {
			monotonic = false
		}
		last = version
		mu.Unlock()

		mu.Lock()
		active--
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				ch.Write(func(d *draft.Draft[int]) { d.Replace(d.Current() + 1) })
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 400, ch.Snapshot())
	require.Zero(t, overlaps)
	require.True(t, monotonic)
	require.Equal(t, uint64(400), last)
}

func TestChannel_ReplaceIf(t *testing.T) {
	ch := New("a")
	v, ok := ch.ReplaceIf(0, "b")
	require.True(t, ok)
	require.Equal(t, uint64(1), v)

	v, ok = ch.ReplaceIf(0, "stale")
	require.False(t, ok)
	require.Equal(t, uint64(1), v)
	require.Equal(t, "b", ch.Snapshot())
}

func TestChannel_CloseDropsWrites(t *testing.T) {
	rec := &recorder{}
	ch := New(board{}, WithObserver(rec), WithName("todos"))
	calls := 0
	ch.Subscribe(func(board, uint64) { calls++ })

	ch.Close()
	require.True(t, ch.Closed())
	require.Equal(t, uint64(0), ch.Write(addTask("x")))
	require.Equal(t, uint64(0), ch.Replace(board{}))
	_, ok := ch.ReplaceIf(0, board{})
	require.False(t, ok)

	require.Zero(t, calls)
	require.Empty(t, ch.Snapshot().Tasks)
	require.Equal(t, 3, rec.count(observability.EventWriteDropped))
	for _, ev := range rec.events {
		require.Equal(t, "todos", ev.Source)
	}
}

func TestChannel_WritePanicReleasesLock(t *testing.T) {
	ch := New(board{})
	require.Panics(t, func() {
		ch.Write(func(d *draft.Draft[board]) { d.Set(draft.P("Missing"), 1) })
	})
	require.Equal(t, uint64(1), ch.Write(addTask("after")))
}

type touches struct{ n int }

func (t *touches) Touch() { t.n++ }

func TestChannel_ReportsActivityAndEvents(t *testing.T) {
	act := &touches{}
	rec := &recorder{}
	ch := New(0, WithActivity(act), WithObserver(rec))
	cancel := ch.Subscribe(func(int, uint64) {})
	ch.Replace(1)
	ch.Replace(2)
	cancel()

	require.Equal(t, 2, act.n)
	require.Equal(t, 2, rec.count(observability.EventPublish))
	require.Equal(t, 1, rec.count(observability.EventSubscribe))
	require.Equal(t, 1, rec.count(observability.EventUnsubscribe))
}
