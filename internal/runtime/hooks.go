package runtime

import (
	"time"

	loggingpkg "github.com/drblury/logflow/internal/runtime/logging"
)

// EventContext describes one run of an event through the pipeline workers.
// An event continued in another pipeline runs once per pipeline.
type EventContext struct {
	// Pipeline is the top-level pipeline the event was started on.
	Pipeline string
	EventID  string
	// StartedAt is when a worker took the event.
	StartedAt time.Time
	// Duration is set in OnEventDone and OnEventError.
	Duration time.Duration
	// Dropped is set when a processor stopped the event.
	Dropped bool
	Test    bool
}

// EventHooks are callbacks around event runs. Nil hooks are skipped. Hooks
// run on the worker goroutine and must not block.
type EventHooks struct {
	OnEventStart func(ctx EventContext)
	// OnEventDone is called when the chain ran to its end or a processor
	// stopped the event.
	OnEventDone func(ctx EventContext)
	// OnEventError is called when a processor failed.
	OnEventError func(ctx EventContext, err error)
}

// Merge combines two EventHooks; the hooks of other run after those of h.
func (h EventHooks) Merge(other EventHooks) EventHooks {
	return EventHooks{
		OnEventStart: chain(h.OnEventStart, other.OnEventStart),
		OnEventDone:  chain(h.OnEventDone, other.OnEventDone),
		OnEventError: chainErr(h.OnEventError, other.OnEventError),
	}
}

func chain(a, b func(EventContext)) func(EventContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx EventContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErr(a, b func(EventContext, error)) func(EventContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx EventContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

func (h EventHooks) start(ctx EventContext) {
	if h.OnEventStart != nil {
		h.OnEventStart(ctx)
	}
}

func (h EventHooks) done(ctx EventContext) {
	if h.OnEventDone != nil {
		h.OnEventDone(ctx)
	}
}

func (h EventHooks) fail(ctx EventContext, err error) {
	if h.OnEventError != nil {
		h.OnEventError(ctx, err)
	}
}

// LoggingHooks logs every event run at Debug level and failures at Error.
func LoggingHooks(logger loggingpkg.ServiceLogger) EventHooks {
	return EventHooks{
		OnEventStart: func(ctx EventContext) {
			logger.Debug("Event started", loggingpkg.LogFields{
				"pipeline": ctx.Pipeline,
				"event_id": ctx.EventID,
			})
		},
		OnEventDone: func(ctx EventContext) {
			logger.Debug("Event completed", loggingpkg.LogFields{
				"pipeline":    ctx.Pipeline,
				"event_id":    ctx.EventID,
				"dropped":     ctx.Dropped,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
		OnEventError: func(ctx EventContext, err error) {
			logger.Error("Event failed", err, loggingpkg.LogFields{
				"pipeline":    ctx.Pipeline,
				"event_id":    ctx.EventID,
				"duration_ms": ctx.Duration.Milliseconds(),
			})
		},
	}
}

// MetricsHooks forwards event runs of production events to the callbacks,
// keyed by pipeline.
func MetricsHooks(onStart, onDone, onError func(pipeline string)) EventHooks {
	call := func(fn func(string), ctx EventContext) {
		if fn != nil && !ctx.Test {
			fn(ctx.Pipeline)
		}
	}
	return EventHooks{
		OnEventStart: func(ctx EventContext) { call(onStart, ctx) },
		OnEventDone:  func(ctx EventContext) { call(onDone, ctx) },
		OnEventError: func(ctx EventContext, _ error) { call(onError, ctx) },
	}
}

// AlertingHooks calls alert for every failed event.
func AlertingHooks(alert func(ctx EventContext, err error)) EventHooks {
	return EventHooks{OnEventError: alert}
}
