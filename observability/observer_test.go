package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/five82/immersive/observability"
)

type captureObserver struct {
	events []observability.Event
}

func (c *captureObserver) OnEvent(_ context.Context, event observability.Event) {
	c.events = append(c.events, event)
}

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level observability.Level
		want  string
	}{
		{1, "TRACE"},
		{observability.LevelVerbose, "DEBUG"},
		{observability.LevelInfo, "INFO"},
		{observability.LevelWarning, "WARN"},
		{observability.LevelError, "ERROR"},
		{21, "FATAL"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, tt.level.String())
	}
}

func TestLevel_SlogLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, observability.LevelVerbose.SlogLevel())
	require.Equal(t, slog.LevelInfo, observability.LevelInfo.SlogLevel())
	require.Equal(t, slog.LevelWarn, observability.LevelWarning.SlogLevel())
	require.Equal(t, slog.LevelError, observability.LevelError.SlogLevel())
}

func TestEmit(t *testing.T) {
	obs := &captureObserver{}
	before := time.Now()
	observability.Emit(obs, observability.EventPublish, observability.LevelVerbose, "todos", map[string]any{"version": uint64(3)})
	observability.Emit(nil, observability.EventPublish, observability.LevelVerbose, "todos", nil)

	require.Len(t, obs.events, 1)
	ev := obs.events[0]
	require.Equal(t, observability.EventPublish, ev.Type)
	require.Equal(t, "todos", ev.Source)
	require.Equal(t, uint64(3), ev.Data["version"])
	require.False(t, ev.Timestamp.Before(before))
}

func TestMultiObserver_NilFiltering(t *testing.T) {
	a, b := &captureObserver{}, &captureObserver{}
	multi := observability.NewMultiObserver(nil, a, nil, b)
	multi.OnEvent(context.Background(), observability.Event{Type: "x"})

	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
	observability.NoOpObserver{}.OnEvent(context.Background(), observability.Event{Type: "x"})
}

func TestSlogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	obs := observability.NewSlogObserver(logger)

	obs.OnEvent(context.Background(), observability.Event{
		Type:   observability.EventPublish,
		Level:  observability.LevelVerbose,
		Source: "todos",
	})
	require.Zero(t, buf.Len(), "debug events are filtered at info")

	obs.OnEvent(context.Background(), observability.Event{
		Type:   observability.EventWriteDropped,
		Level:  observability.LevelWarning,
		Source: "todos",
		Data:   map[string]any{"version": 7},
	})
	out := buf.String()
	require.True(t, strings.Contains(out, "channel.write.dropped"), out)
	require.True(t, strings.Contains(out, "source=todos"), out)
	require.True(t, strings.Contains(out, "version=7"), out)
	require.True(t, strings.Contains(out, "level=WARN"), out)
}

func TestMetricsObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsObserver(reg)
	ctx := context.Background()

	send := func(typ observability.EventType, data map[string]any) {
		m.OnEvent(ctx, observability.Event{Type: typ, Source: "todos", Data: data})
	}
	send(observability.EventPublish, nil)
	send(observability.EventPublish, nil)
	send(observability.EventWriteDropped, nil)
	send(observability.EventLocalDiverge, nil)
	send(observability.EventLocalFlush, map[string]any{"settled": true})
	send(observability.EventLocalDiverge, nil)
	send(observability.EventLocalResync, map[string]any{"settled": true})
	send(observability.EventLocalDiverge, nil)

	require.Equal(t, 2.0, testutil.ToFloat64(m.Publishes.WithLabelValues("todos")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.DroppedTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Flushes.WithLabelValues("todos", "applied")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Diverged.WithLabelValues("todos")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("local.diverge", "todos")))
}
