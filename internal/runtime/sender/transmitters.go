package sender

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v5"

	errspkg "github.com/drblury/logflow/internal/runtime/errors"
	"github.com/drblury/logflow/internal/runtime/event"
	idspkg "github.com/drblury/logflow/internal/runtime/ids"
	"github.com/drblury/logflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/logflow/internal/runtime/metadata"
)

// Message metadata keys set by the Publisher transmitter.
const (
	MetadataEventID  = "logflow_event_id"
	MetadataPipeline = "logflow_pipeline"
)

// Writer writes every encoded event to w followed by a newline.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

func (t *Writer) Transmit(_ context.Context, _ event.Event, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.w.Write(data); err != nil {
		return err
	}
	if len(data) > 0 && data[len(data)-1] == '\n' {
		return nil
	}
	_, err := t.w.Write([]byte{'\n'})
	return err
}

// Sent is one delivery captured by Memory.
type Sent struct {
	EventID string
	Data    []byte
}

// Memory keeps every delivery in memory.
type Memory struct {
	mu   sync.Mutex
	sent []Sent
}

func (m *Memory) Transmit(_ context.Context, ev event.Event, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, Sent{EventID: ev.ID(), Data: append([]byte(nil), data...)})
	return nil
}

// Sent returns a copy of the deliveries so far.
func (m *Memory) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.sent...)
}

// Len returns the number of deliveries so far.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// RetryConfig tunes the Publisher retries. Zero values use the defaults.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	return cfg
}

// PublisherOption customises a Publisher transmitter.
type PublisherOption func(*Publisher)

// WithRetry sets the publish retry policy.
func WithRetry(cfg RetryConfig) PublisherOption {
	return func(p *Publisher) { p.retry = cfg.withDefaults() }
}

// WithMaxMessageSize rejects payloads larger than n bytes. Zero disables the check.
func WithMaxMessageSize(n int64) PublisherOption {
	return func(p *Publisher) { p.maxSize = n }
}

// WithPublisherLogger sets the logger used to report retries.
func WithPublisherLogger(l logging.ServiceLogger) PublisherOption {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// Publisher hands encoded events to a watermill publisher.
type Publisher struct {
	publisher message.Publisher
	topic     string
	maxSize   int64
	retry     RetryConfig
	logger    logging.ServiceLogger
}

// NewPublisher builds a transmitter publishing to topic.
func NewPublisher(pub message.Publisher, topic string, opts ...PublisherOption) (*Publisher, error) {
	if pub == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	p := &Publisher{
		publisher: pub,
		topic:     topic,
		retry:     RetryConfig{}.withDefaults(),
		logger:    logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Publisher) Topic() string { return p.topic }

func (p *Publisher) Transmit(ctx context.Context, ev event.Event, data []byte) error {
	if p.maxSize > 0 && int64(len(data)) > p.maxSize {
		return fmt.Errorf("%w: %d bytes, limit %d", errspkg.ErrMessageTooLarge, len(data), p.maxSize)
	}

	md := metadatapkg.FromMetas(ev.Metas()).
		With(MetadataEventID, ev.ID()).
		With(MetadataPipeline, ev.CurrentPipeline())

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.retry.InitialInterval
	b.MaxInterval = p.retry.MaxInterval

	for attempt := 0; ; attempt++ {
		msg := metadatapkg.NewMessage(idspkg.CreateULID(), data, md)
		msg.SetContext(ctx)

		err := p.publisher.Publish(p.topic, msg)
		if err == nil {
			return nil
		}
		if attempt >= p.retry.MaxRetries {
			return fmt.Errorf("publish to %s: %w", p.topic, err)
		}
		sleep := b.NextBackOff()
		if sleep == backoff.Stop {
			sleep = p.retry.MaxInterval
		}
		p.logger.Debug("Retrying publish", logging.LogFields{
			"topic":    p.topic,
			"event_id": ev.ID(),
			"attempt":  attempt + 1,
			"error":    err.Error(),
		})
		select {
		case <-ctx.Done():
			return fmt.Errorf("publish to %s: %w", p.topic, ctx.Err())
		case <-time.After(sleep):
		}
	}
}
