// Package observability carries the events the state container emits while it
// publishes snapshots, delivers selections and reconciles local overlays.
//
// Level values follow OpenTelemetry SeverityNumbers so events can be
// forwarded to a collector without translation. Observers are plain
// interfaces: SlogObserver writes events to a log/slog logger,
// MetricsObserver counts them in Prometheus, MultiObserver fans out, and
// NoOpObserver discards.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// Level represents event severity aligned with OTel SeverityNumber ranges.
type Level int

const (
	LevelVerbose Level = 5  // OTel DEBUG (5-8)
	LevelInfo    Level = 9  // OTel INFO (9-12)
	LevelWarning Level = 13 // OTel WARN (13-16)
	LevelError   Level = 17 // OTel ERROR (17-20)
)

// String returns the OTel severity text for the level.
func (l Level) String() string {
	switch {
	case l <= 4:
		return "TRACE"
	case l <= 8:
		return "DEBUG"
	case l <= 12:
		return "INFO"
	case l <= 16:
		return "WARN"
	case l <= 20:
		return "ERROR"
	default:
		return "FATAL"
	}
}

// SlogLevel maps this level to the corresponding slog.Level.
func (l Level) SlogLevel() slog.Level {
	switch {
	case l <= 8:
		return slog.LevelDebug
	case l <= 12:
		return slog.LevelInfo
	case l <= 16:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// EventType identifies the kind of event.
type EventType string

const (
	EventPublish      EventType = "channel.publish"
	EventSubscribe    EventType = "channel.subscribe"
	EventUnsubscribe  EventType = "channel.unsubscribe"
	EventWriteDropped EventType = "channel.write.dropped"

	EventSelectorDeliver EventType = "selector.deliver"

	EventLocalDiverge       EventType = "local.diverge"
	EventLocalFlushSchedule EventType = "local.flush.schedule"
	EventLocalFlushCancel   EventType = "local.flush.cancel"
	EventLocalFlush         EventType = "local.flush"
	EventLocalFlushAbandon  EventType = "local.flush.abandon"
	EventLocalResync        EventType = "local.resync"

	EventProviderMount EventType = "provider.mount"
	EventProviderClose EventType = "provider.close"
)

// Event is an observability event. Fields map to OTel LogRecord fields:
// Type to EventName, Level to SeverityNumber, Source to InstrumentationScope,
// Data to Attributes.
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// Observer receives events.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// Emit stamps and sends an event. A nil observer is allowed.
func Emit(obs Observer, typ EventType, level Level, source string, data map[string]any) {
	if obs == nil {
		return
	}
	obs.OnEvent(context.Background(), Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	})
}
