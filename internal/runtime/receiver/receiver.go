// Package receiver is the boundary where outside data becomes events. The
// Injector binds a connection context, decodes and injects; concrete
// receivers only deal with their transport.
package receiver

import (
	"context"
	"errors"
	"fmt"

	"github.com/drblury/logflow/internal/runtime/decoder"
	errspkg "github.com/drblury/logflow/internal/runtime/errors"
	"github.com/drblury/logflow/internal/runtime/event"
	"github.com/drblury/logflow/internal/runtime/logging"
	"github.com/drblury/logflow/internal/runtime/stats"
)

// Receiver is a long running source of events.
type Receiver interface {
	Name() string
	Run(ctx context.Context) error
}

// InjectorConfig wires an Injector.
type InjectorConfig struct {
	Pipeline *event.Pipeline
	Queue    *event.Queue
	Stats    *stats.Stats
	Logger   logging.ServiceLogger
	// NonBlocking drops events when the queue is full instead of waiting.
	NonBlocking bool
}

// Injector turns received units into events and hands them to a pipeline.
type Injector struct {
	pipeline *event.Pipeline
	queue    *event.Queue
	stats    *stats.Stats
	logger   logging.ServiceLogger
	blocking bool
}

// NewInjector validates cfg.
func NewInjector(cfg InjectorConfig) (*Injector, error) {
	if cfg.Pipeline == nil {
		return nil, errspkg.ErrPipelineRequired
	}
	if cfg.Queue == nil {
		return nil, errspkg.ErrQueueRequired
	}
	if cfg.Stats == nil {
		return nil, errspkg.ErrStatsRequired
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Injector{
		pipeline: cfg.Pipeline,
		queue:    cfg.Queue,
		stats:    cfg.Stats,
		logger:   logger,
		blocking: !cfg.NonBlocking,
	}, nil
}

func (in *Injector) Pipeline() *event.Pipeline { return in.pipeline }
func (in *Injector) Stats() *stats.Stats       { return in.stats }

// NewEvent creates a production event bound to cc.
func (in *Injector) NewEvent(cc event.ConnectionContext) *event.Instance {
	return event.New(cc, event.WithStats(in.stats), event.WithLogger(in.logger))
}

// Inject counts ev as received and hands it to the pipeline. On failure ev is
// dropped; the failure was already accounted by the event.
func (in *Injector) Inject(ctx context.Context, ev *event.Instance) error {
	ev.DoMetric(func(s *stats.Stats) { s.NewReceived() })
	err := ev.Inject(ctx, in.pipeline, in.queue, in.blocking)
	if err == nil {
		return nil
	}
	if errors.Is(err, event.ErrQueueFull) {
		in.logger.Debug("Pipeline queue full, event dropped", logging.LogFields{
			"pipeline": in.pipeline.Name(),
			"event_id": ev.ID(),
		})
	}
	ev.Drop()
	return err
}

// Receive decodes data into events bound to cc and injects them in order.
// A decode error is recorded and the unit is discarded. The returned error
// is the decode error or the first injection failure.
func (in *Injector) Receive(ctx context.Context, cc event.ConnectionContext, data []byte, dec decoder.Decoder) error {
	evs, err := dec.Decode(data, func() *event.Instance { return in.NewEvent(cc) })
	if err != nil {
		in.stats.NewDecodeError(err)
		in.logger.Debug("Discarding undecodable input", logging.LogFields{"error": err.Error()})
		if b, ok := cc.(batched); ok {
			b.expect(0)
		}
		return err
	}
	if b, ok := cc.(batched); ok {
		b.expect(len(evs))
	}
	var firstErr error
	for idx, ev := range evs {
		err := in.Inject(ctx, ev)
		if err == nil {
			continue
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("inject event %d of %d: %w", idx+1, len(evs), err)
		}
		if ctx.Err() != nil {
			for _, rest := range evs[idx+1:] {
				rest.Drop()
			}
			break
		}
	}
	return firstErr
}

// batched contexts are shared by every event decoded from one unit and are
// told how many acknowledgements to wait for.
type batched interface {
	expect(n int)
}
