/*
Package runtime provides the event processing engine behind logflow.

# Architecture Overview

Receivers turn raw input into events and inject them, with a pipeline, into
the main queue. Pipeline workers take events from the main queue and run
their processor chain step by step. At the end of the chain an event either
continues in its next pipeline, through the main queue again, or is handed to
the queue of every sender attached to its pipeline. Senders encode and
transmit events and end them, which acknowledges the input they came from.

# Package Structure

## Core Service (service.go, loop.go)

The Service struct is the central orchestrator that wires together:
  - the pipeline registry and the main queue
  - the pipeline workers (loop.go)
  - senders, each with its own bounded queue
  - receivers (UDP, broker subscriptions, or any Receiver)
  - the broker connection used by publisher senders and subscriber receivers
  - HTTP servers for metrics and the web UI

## Hooks (hooks.go)

EventHooks observe every run of an event through the workers.

## WebUI (webui.go)

HTTP API exposing the stats snapshot, a reset endpoint and the pipeline list.

# Sub-packages

  - event/: events, pipelines, processors, queues and connection contexts
  - stats/: counters, recent-error rings, timers and the Prometheus collector
  - sender/: sender loop and transmitters (writer, broker publisher, memory)
  - receiver/: injector accounting, UDP and broker subscriber receivers
  - encoder/, decoder/: wire formats at the edges
  - processors/: small generic processors
  - config/: service configuration with validation
  - errors/: sentinel errors and error types
  - ids/: ULID generation
  - jsoncodec/: JSON marshaling utilities
  - logging/: logger interface and adapters
  - metadata/: event metas and message metadata conversion
  - transport/: broker factory over the transport registry

# Usage Example

	cfg := &logflow.Config{MetricsEnabled: true}
	svc := logflow.NewService(cfg, logger, ctx, logflow.ServiceDependencies{})

	svc.AddPipeline(logflow.NewPipeline("main", logflow.Require("message")))
	svc.AddSender("stdout", logflow.NewGELFEncoder(), logflow.NewWriterTransmitter(os.Stdout), "main")
	svc.AddUDPReceiver(logflow.UDPConfig{Address: ":5140", Decoder: logflow.JSONDecoder{}}, "main")

	svc.Start(ctx)
*/
package runtime
