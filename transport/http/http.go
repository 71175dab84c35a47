// Package http carries messages as HTTP POST requests. The publisher posts
// to the configured base URL followed by the topic; the subscriber serves
// one route per subscribed topic.
package http

import (
	"context"
	nethttp "net/http"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/logflow/transport"
)

const TransportName = "http"

// DefaultServerAddress is where the subscriber listens when none is configured.
const DefaultServerAddress = ":8180"

// PublisherFactory and SubscriberFactory can be replaced in tests.
var (
	PublisherFactory = func(cfg http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return http.NewPublisher(cfg, logger)
	}
	SubscriberFactory = func(addr string, cfg http.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return http.NewSubscriber(addr, cfg, logger)
	}
)

func init() { Register() }

// Register adds the broker to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.HTTPCapabilities)
}

func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	base := cfg.GetHTTPPublisherURL()
	publisher, err := PublisherFactory(http.PublisherConfig{
		MarshalMessageFunc: func(topic string, msg *message.Message) (*nethttp.Request, error) {
			return http.DefaultMarshalMessageFunc(base+topic, msg)
		},
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	addr := cfg.GetHTTPServerAddress()
	if addr == "" {
		addr = DefaultServerAddress
	}
	subscriber, err := SubscriberFactory(addr, http.SubscriberConfig{
		UnmarshalMessageFunc: http.DefaultUnmarshalMessageFunc,
	}, logger)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: &serving{Subscriber: subscriber, logger: logger},
	}, nil
}

func Capabilities() transport.Capabilities { return transport.HTTPCapabilities }

type httpServer interface {
	StartHTTPServer() error
}

// serving starts the subscriber's server once its first route exists.
type serving struct {
	message.Subscriber
	logger watermill.LoggerAdapter
	once   sync.Once
}

func (s *serving) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	msgs, err := s.Subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	if srv, ok := s.Subscriber.(httpServer); ok {
		s.once.Do(func() {
			go func() {
				if err := srv.StartHTTPServer(); err != nil && err != nethttp.ErrServerClosed {
					s.logger.Error("http subscriber server stopped", err, nil)
				}
			}()
		})
	}
	return msgs, nil
}
