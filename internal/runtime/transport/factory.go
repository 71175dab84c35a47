// Package transport builds the broker connection behind publisher senders
// and subscriber receivers from the service configuration.
package transport

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/logflow/internal/runtime/config"
	errspkg "github.com/drblury/logflow/internal/runtime/errors"
	brokers "github.com/drblury/logflow/transport"

	// Registers every built-in broker.
	_ "github.com/drblury/logflow/transport/transports"
)

// Transport is the publisher and subscriber pair of one broker.
type Transport = brokers.Transport

// Capabilities describes what the broker supports.
type Capabilities = brokers.Capabilities

// Factory abstracts how the service connects to its broker.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)

func (f FactoryFunc) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	return f(ctx, conf, logger)
}

// DefaultFactory builds brokers from the default registry.
func DefaultFactory() Factory {
	return registryFactory{registry: brokers.DefaultRegistry}
}

// RegistryFactory builds brokers from r.
func RegistryFactory(r *brokers.Registry) Factory {
	return registryFactory{registry: r}
}

type registryFactory struct {
	registry *brokers.Registry
}

func (f registryFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	if conf == nil {
		return Transport{}, errspkg.ErrConfigRequired
	}
	if conf.PubSubSystem == "" {
		return Transport{}, fmt.Errorf("%w: pubsub system is not set", errspkg.ErrConfigRequired)
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return f.registry.Build(ctx, conf, logger)
}

// CapabilitiesOf returns the capabilities registered for the configured broker.
func CapabilitiesOf(conf *config.Config) Capabilities {
	if conf == nil {
		return Capabilities{}
	}
	return brokers.GetCapabilities(conf.PubSubSystem)
}
