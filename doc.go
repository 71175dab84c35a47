// Package logflow is a log and event pipeline engine. Receivers turn raw
// input, such as UDP datagrams or broker messages, into events and inject
// them into named pipelines. Pipeline workers run each event through the
// flattened chain of processors of its pipeline; at the end of the chain the
// event continues in its next pipeline or is fanned out to the senders
// attached to the pipeline, which encode and transmit it.
//
// Service hosts the pipelines, the bounded main queue, the workers, the
// senders and the receivers. A minimal setup fills Config, creates a Service,
// adds pipelines, senders and receivers, and calls Start, which blocks until
// the context is cancelled and then drains every queue.
//
// # Transports
//
// Broker senders and receivers go through Watermill. The broker is picked by
// Config.PubSubSystem from the transport registry:
//   - channel: In-memory Go channels for testing
//   - kafka: High-throughput streaming with consumer groups
//   - rabbitmq: AMQP-based durable queues
//   - aws: AWS SNS/SQS with LocalStack support
//   - nats, nats-jetstream: High-performance messaging, optionally persisted
//   - http: Webhook style delivery over HTTP
//   - io: Newline delimited JSON in a local file
//
// # Accounting
//
// Every event is counted once: received when injected, then sent, dropped,
// failed with a processing error or failed with an exception. Stats exposes
// the counters, the most recent errors and per pipeline timings; they are
// exported to Prometheus when metrics are enabled and served as JSON by the
// web UI API.
//
// # Event Hooks
//
// EventHooks provides OnEventStart, OnEventDone, and OnEventError callbacks
// around every run of an event through the workers. LoggingHooks,
// MetricsHooks and AlertingHooks cover the common cases and can be combined
// with Merge.
package logflow
