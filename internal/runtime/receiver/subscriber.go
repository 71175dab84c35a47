package receiver

import (
	"context"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/logflow/internal/runtime/decoder"
	errspkg "github.com/drblury/logflow/internal/runtime/errors"
	"github.com/drblury/logflow/internal/runtime/event"
	"github.com/drblury/logflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/logflow/internal/runtime/metadata"
)

// Message metadata keys read by MessageContext.
const (
	MetadataSource    = "logflow_source"
	MetadataPrincipal = "logflow_principal"
)

// MessageContext is the connection context of events decoded from one broker
// message. The message is acked once every event decoded from it ended.
type MessageContext struct {
	msg     *message.Message
	topic   string
	pending atomic.Int32
	acked   atomic.Bool
}

// NewMessageContext wraps msg received on topic.
func NewMessageContext(topic string, msg *message.Message) *MessageContext {
	mc := &MessageContext{msg: msg, topic: topic}
	mc.pending.Store(1)
	return mc
}

func (m *MessageContext) LocalAddress() string  { return m.topic }
func (m *MessageContext) RemoteAddress() string { return m.msg.Metadata.Get(MetadataSource) }
func (m *MessageContext) Message() *message.Message {
	return m.msg
}

func (m *MessageContext) Principal() event.Principal {
	return event.NamedPrincipal(m.msg.Metadata.Get(MetadataPrincipal))
}

// Acknowledge acks the message once the last decoded event ended.
func (m *MessageContext) Acknowledge() {
	if m.pending.Add(-1) <= 0 {
		m.ack()
	}
}

// Acked reports whether the message was acked.
func (m *MessageContext) Acked() bool { return m.acked.Load() }

func (m *MessageContext) expect(n int) {
	if n <= 0 {
		m.pending.Store(0)
		m.ack()
		return
	}
	m.pending.Store(int32(n))
}

func (m *MessageContext) ack() {
	if m.acked.CompareAndSwap(false, true) {
		m.msg.Ack()
	}
}

// SubscriberConfig configures a Subscriber receiver.
type SubscriberConfig struct {
	Name    string
	Topic   string
	Decoder decoder.Decoder
	Tracer  trace.Tracer
}

// Subscriber consumes a watermill topic. Every message is one decoded unit
// and its metadata becomes the metas of the decoded events.
type Subscriber struct {
	name       string
	topic      string
	subscriber message.Subscriber
	decoder    decoder.Decoder
	injector   *Injector
	logger     logging.ServiceLogger
	tracer     trace.Tracer
}

// NewSubscriber validates cfg.
func NewSubscriber(sub message.Subscriber, cfg SubscriberConfig, in *Injector) (*Subscriber, error) {
	if sub == nil {
		return nil, errspkg.ErrSubscriberRequired
	}
	if cfg.Topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if cfg.Decoder == nil {
		return nil, errspkg.ErrDecoderRequired
	}
	if in == nil {
		return nil, errspkg.ErrPipelineRequired
	}
	name := cfg.Name
	if name == "" {
		name = "subscriber-" + cfg.Topic
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("logflow-receiver")
	}
	return &Subscriber{
		name:       name,
		topic:      cfg.Topic,
		subscriber: sub,
		decoder:    cfg.Decoder,
		injector:   in,
		logger:     in.logger.With(logging.LogFields{"receiver": name, "topic": cfg.Topic}),
		tracer:     tracer,
	}, nil
}

func (s *Subscriber) Name() string { return s.name }

// Run subscribes and consumes until ctx is done or the subscription closes.
func (s *Subscriber) Run(ctx context.Context) error {
	messages, err := s.subscriber.Subscribe(ctx, s.topic)
	if err != nil {
		s.injector.stats.NewReceiverError(s.name, err)
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			s.handle(ctx, msg)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, msg *message.Message) {
	ctx, span := s.tracer.Start(ctx, "ReceiveMessage", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("logflow.receiver", s.name),
		attribute.String("messaging.message.id", msg.UUID),
	)

	metas := metadatapkg.MetasOf(msg)
	mc := NewMessageContext(s.topic, msg)
	dec := decoder.Func(func(data []byte, newEvent decoder.Factory) ([]*event.Instance, error) {
		return s.decoder.Decode(data, func() *event.Instance {
			ev := newEvent()
			for k, v := range metas {
				ev.PutMeta(k, v)
			}
			return ev
		})
	})
	if err := s.injector.Receive(ctx, mc, msg.Payload, dec); err != nil {
		span.RecordError(err)
		s.logger.Debug("Message not fully injected", logging.LogFields{"message_uuid": msg.UUID, "error": err.Error()})
	}
}
