// logflow runs a single pipeline service: JSON events received over UDP are
// processed by the "main" pipeline and written to stdout, and optionally
// published to a broker topic.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/drblury/logflow"
	_ "github.com/drblury/logflow/transport/transports"
)

type options struct {
	configPath string
	udp        string
	logLevel   string
	topic      string
	subscribe  string
	format     string
}

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options
	flagSet := pflag.NewFlagSet("logflow", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "path to the YAML service configuration")
	flagSet.StringVar(&opts.udp, "udp", ":5140", "UDP address receiving JSON events, empty to disable")
	flagSet.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flagSet.StringVar(&opts.topic, "topic", "", "also publish events to this topic of the configured broker")
	flagSet.StringVar(&opts.subscribe, "subscribe", "", "receive JSON events from this topic of the configured broker")
	flagSet.StringVar(&opts.format, "format", "gelf", "stdout format: gelf, json, cloudevents or protobuf")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}

	level, err := logflow.ParseLogLevel(opts.logLevel)
	if err != nil {
		return err
	}
	logger := logflow.NewSlogServiceLogger(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := &logflow.Config{}
	if opts.configPath != "" {
		if cfg, err = logflow.LoadConfigFile(opts.configPath); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := logflow.TryNewService(cfg, logger, ctx, logflow.ServiceDependencies{
		Hooks: logflow.LoggingHooks(logger),
	})
	if err != nil {
		return err
	}
	if err := wire(svc, opts); err != nil {
		return err
	}

	logger.Info("logflow started", logflow.LogFields{"udp": opts.udp, "topic": opts.topic, "format": opts.format})
	return svc.Start(ctx)
}

func wire(svc *logflow.Service, opts options) error {
	if err := svc.AddPipeline(logflow.NewPipeline("main",
		logflow.TagMeta{Meta: "pipelines", Value: "main"},
	)); err != nil {
		return err
	}

	enc, err := stdoutEncoder(opts.format)
	if err != nil {
		return err
	}
	if _, err := svc.AddSender("stdout", enc, logflow.NewWriterTransmitter(os.Stdout), "main"); err != nil {
		return err
	}
	if opts.topic != "" {
		if _, err := svc.AddPublisherSender("broker", opts.topic, logflow.JSONEncoder{}, "main"); err != nil {
			return err
		}
	}

	if opts.udp != "" {
		if _, err := svc.AddUDPReceiver(logflow.UDPConfig{Name: "udp", Address: opts.udp, Decoder: logflow.JSONDecoder{}}, "main"); err != nil {
			return err
		}
	}
	if opts.subscribe != "" {
		if _, err := svc.AddSubscriberReceiver(opts.subscribe, logflow.JSONDecoder{}, "main"); err != nil {
			return err
		}
	}
	return nil
}

func stdoutEncoder(format string) (logflow.Encoder, error) {
	switch format {
	case "gelf":
		return logflow.NewGELFEncoder(logflow.WithShortMessage("message")), nil
	case "json":
		return logflow.JSONEncoder{Newline: true}, nil
	case "cloudevents":
		return logflow.CloudEventsEncoder{}, nil
	case "protobuf":
		return logflow.ProtobufEncoder{JSON: true}, nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}
