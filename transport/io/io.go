// Package io is a file broker: every published message becomes one JSON line
// of a shared file and subscribers follow the file like tail -f. It lets two
// logflow processes on one host be chained without a broker.
package io

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/logflow/internal/runtime/jsoncodec"
	"github.com/drblury/logflow/transport"
)

const TransportName = "io"

// DefaultFilePath is used when no file is configured.
const DefaultFilePath = "logflow-messages.ndjson"

// PollInterval is how often a subscriber at the end of the file looks for new lines.
var PollInterval = 50 * time.Millisecond

// PublisherFactory and SubscriberFactory can be replaced in tests.
var (
	PublisherFactory = func(path string, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return &Publisher{path: path, logger: logger}, nil
	}
	SubscriberFactory = func(path string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return &Subscriber{path: path, logger: logger}, nil
	}
)

func init() { Register() }

// Register adds the broker to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.IOCapabilities)
}

func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	path := cfg.GetIOFile()
	if path == "" {
		path = DefaultFilePath
	}
	pub, err := PublisherFactory(path, logger)
	if err != nil {
		return transport.Transport{}, err
	}
	sub, err := SubscriberFactory(path, logger)
	if err != nil {
		_ = pub.Close()
		return transport.Transport{}, err
	}
	return transport.Transport{Publisher: pub, Subscriber: sub}, nil
}

func Capabilities() transport.Capabilities { return transport.IOCapabilities }

type record struct {
	UUID     string            `json:"uuid"`
	Topic    string            `json:"topic"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  []byte            `json:"payload"`
}

// Publisher appends messages to the file.
type Publisher struct {
	path   string
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	closed bool
}

var ErrClosed = errors.New("io: closed")

func (p *Publisher) Publish(topic string, msgs ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	f, err := os.OpenFile(p.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, msg := range msgs {
		line, err := jsoncodec.Marshal(record{UUID: msg.UUID, Topic: topic, Metadata: msg.Metadata, Payload: msg.Payload})
		if err != nil {
			return err
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	return w.Flush()
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Subscriber follows the file from its start and delivers the lines of one
// topic, waiting for each message to be acked or nacked before the next.
type Subscriber struct {
	path   string
	logger watermill.LoggerAdapter

	once    sync.Once
	closing chan struct{}
	wg      sync.WaitGroup
}

func (s *Subscriber) init() {
	s.once.Do(func() { s.closing = make(chan struct{}) })
}

func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.init()
	select {
	case <-s.closing:
		return nil, ErrClosed
	default:
	}

	f, err := os.OpenFile(s.path, os.O_RDONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan *message.Message)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer f.Close()
		defer close(out)
		s.follow(ctx, f, topic, out)
	}()
	go func() {
		select {
		case <-s.closing:
			cancel()
		case <-ctx.Done():
		}
	}()
	return out, nil
}

func (s *Subscriber) follow(ctx context.Context, f *os.File, topic string, out chan<- *message.Message) {
	r := bufio.NewReader(f)
	var partial []byte
	for {
		chunk, err := r.ReadBytes('\n')
		partial = append(partial, chunk...)
		if errors.Is(err, io.EOF) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(PollInterval):
			}
			continue
		}
		if err != nil {
			s.logger.Error("io subscriber read failed", err, watermill.LogFields{"file": s.path})
			return
		}

		line := partial
		partial = nil
		var rec record
		if err := jsoncodec.Unmarshal(line, &rec); err != nil {
			s.logger.Error("io subscriber skipped a malformed line", err, watermill.LogFields{"file": s.path})
			continue
		}
		if rec.Topic != topic {
			continue
		}
		if !s.deliver(ctx, out, rec) {
			return
		}
	}
}

func (s *Subscriber) deliver(ctx context.Context, out chan<- *message.Message, rec record) bool {
	msg := message.NewMessage(rec.UUID, rec.Payload)
	for k, v := range rec.Metadata {
		msg.Metadata.Set(k, v)
	}
	msg.SetContext(ctx)

	select {
	case out <- msg:
	case <-ctx.Done():
		return false
	}
	select {
	case <-msg.Acked():
	case <-msg.Nacked():
		s.logger.Debug("io message nacked", watermill.LogFields{"uuid": msg.UUID})
	case <-ctx.Done():
		return false
	}
	return true
}

// Close stops every subscription and waits for them to end.
func (s *Subscriber) Close() error {
	s.init()
	select {
	case <-s.closing:
	default:
		close(s.closing)
	}
	s.wg.Wait()
	return nil
}
