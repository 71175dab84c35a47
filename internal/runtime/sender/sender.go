// Package sender drains an output queue, encodes every event and hands the
// bytes to a Transmitter.
package sender

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/logflow/internal/runtime/encoder"
	errspkg "github.com/drblury/logflow/internal/runtime/errors"
	"github.com/drblury/logflow/internal/runtime/event"
	"github.com/drblury/logflow/internal/runtime/logging"
	"github.com/drblury/logflow/internal/runtime/stats"
)

const tracerName = "logflow-sender"

// Transmitter delivers encoded events to their destination.
type Transmitter interface {
	Transmit(ctx context.Context, ev event.Event, data []byte) error
}

// TransmitterFunc adapts a function to Transmitter.
type TransmitterFunc func(ctx context.Context, ev event.Event, data []byte) error

func (f TransmitterFunc) Transmit(ctx context.Context, ev event.Event, data []byte) error {
	return f(ctx, ev, data)
}

// Config wires a Sender.
type Config struct {
	Name        string
	Queue       *event.Queue
	Encoder     encoder.Encoder
	Transmitter Transmitter
	Stats       *stats.Stats
	Logger      logging.ServiceLogger
	// Tracer defaults to the global otel tracer provider.
	Tracer trace.Tracer
}

// Sender is the terminal stage of a pipeline.
type Sender struct {
	name        string
	queue       *event.Queue
	encoder     encoder.Encoder
	transmitter Transmitter
	stats       *stats.Stats
	logger      logging.ServiceLogger
	tracer      trace.Tracer
}

// New validates cfg and builds a Sender.
func New(cfg Config) (*Sender, error) {
	if cfg.Queue == nil {
		return nil, errspkg.ErrQueueRequired
	}
	if cfg.Encoder == nil {
		return nil, errspkg.ErrEncoderRequired
	}
	if cfg.Transmitter == nil {
		return nil, errspkg.ErrTransmitterRequired
	}
	if cfg.Stats == nil {
		return nil, errspkg.ErrStatsRequired
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	name := cfg.Name
	if name == "" {
		name = cfg.Queue.Name()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Sender{
		name:        name,
		queue:       cfg.Queue,
		encoder:     cfg.Encoder,
		transmitter: cfg.Transmitter,
		stats:       cfg.Stats,
		logger:      logger.With(logging.LogFields{"sender": name}),
		tracer:      tracer,
	}, nil
}

func (s *Sender) Name() string        { return s.name }
func (s *Sender) Queue() *event.Queue { return s.queue }

// Run sends events until ctx is done. An event taken after cancellation is
// dropped instead of sent.
func (s *Sender) Run(ctx context.Context) error {
	s.logger.Debug("Sender started", nil)
	defer s.logger.Debug("Sender stopped", nil)
	for {
		ev, err := s.queue.Take(ctx)
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			s.stats.NewDropped()
			ev.Drop()
			return nil
		}
		s.send(ctx, ev)
	}
}

// Drain drops everything still waiting in the queue.
func (s *Sender) Drain() int {
	n := 0
	for {
		ev, ok := s.queue.Poll()
		if !ok {
			return n
		}
		s.stats.NewDropped()
		ev.Drop()
		n++
	}
}

func (s *Sender) send(ctx context.Context, ev *event.Instance) {
	ctx, span := s.tracer.Start(ctx, "SendEvent", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(
		attribute.String("logflow.sender", s.name),
		attribute.String("logflow.event_id", ev.ID()),
	)

	data, err := s.encoder.Encode(ev)
	if err != nil {
		s.fail(span, ev, "encode", err)
		return
	}
	if err := s.transmitter.Transmit(ctx, ev, data); err != nil {
		s.fail(span, ev, "transmit", err)
		return
	}
	s.stats.NewSent()
	ev.End()
}

func (s *Sender) fail(span trace.Span, ev *event.Instance, stage string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, stage)
	s.stats.NewDropped()
	s.stats.NewSenderError(fmt.Sprintf("%s: %s event %s", s.name, stage, ev.ID()), err)
	s.logger.Error("Failed to send event", err, logging.LogFields{"event_id": ev.ID(), "stage": stage})
	ev.Drop()
}
