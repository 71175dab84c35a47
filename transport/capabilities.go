package transport

// Capabilities describes what a broker offers to logflow senders and receivers.
type Capabilities struct {
	// Name is the registry name of the broker.
	Name string

	// SupportsAck is true when a subscriber waits for the ack of a message,
	// that is when an event's acknowledgement reaches the broker.
	SupportsAck bool
	// SupportsNack is true when an unacked message is redelivered.
	SupportsNack bool
	// SupportsOrdering is true when messages of one topic arrive in order.
	SupportsOrdering bool
	// SupportsTracing is true when metadata travels with the message.
	SupportsTracing bool
	// SupportsBatching is true when the client batches publishes.
	SupportsBatching bool
	// Durable is true when published messages survive a restart of the broker.
	Durable bool

	// MaxMessageSize is the largest payload accepted, in bytes. Zero means unknown.
	MaxMessageSize int64
}

// SupportsReliableDelivery reports at-least-once delivery: ack plus redelivery.
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// Fits reports whether a payload of size bytes can be published.
func (c Capabilities) Fits(size int) bool {
	return c.MaxMessageSize <= 0 || int64(size) <= c.MaxMessageSize
}

// Capabilities of the built-in brokers.
var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsOrdering: true,
	}

	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		SupportsAck:      true,
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsBatching: true,
		Durable:          true,
		MaxMessageSize:   1 << 20,
	}

	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsOrdering: true,
		SupportsTracing:  true,
		Durable:          true,
		MaxMessageSize:   128 << 20,
	}

	NATSCapabilities = Capabilities{
		Name:            "nats",
		SupportsTracing: true,
		MaxMessageSize:  1 << 20,
	}

	NATSJetStreamCapabilities = Capabilities{
		Name:             "nats-jetstream",
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsOrdering: true,
		SupportsTracing:  true,
		Durable:          true,
		MaxMessageSize:   1 << 20,
	}

	AWSCapabilities = Capabilities{
		Name:             "aws",
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsTracing:  true,
		SupportsBatching: true,
		Durable:          true,
		MaxMessageSize:   256 << 10,
	}

	HTTPCapabilities = Capabilities{
		Name:            "http",
		SupportsTracing: true,
	}

	IOCapabilities = Capabilities{
		Name:             "io",
		SupportsAck:      true,
		SupportsOrdering: true,
		SupportsTracing:  true,
		Durable:          true,
	}
)

// GetCapabilities returns the capabilities registered for name in the
// default registry.
func GetCapabilities(name string) Capabilities {
	return DefaultRegistry.GetCapabilities(name)
}
