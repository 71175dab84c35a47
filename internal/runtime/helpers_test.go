package runtime

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/logflow/internal/runtime/config"
	"github.com/drblury/logflow/internal/runtime/encoder"
	"github.com/drblury/logflow/internal/runtime/event"
	loggingpkg "github.com/drblury/logflow/internal/runtime/logging"
	"github.com/drblury/logflow/internal/runtime/sender"
)

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func newTestService(t *testing.T, conf *configpkg.Config, deps ServiceDependencies) *Service {
	t.Helper()
	if conf == nil {
		conf = &configpkg.Config{}
	}
	if deps.MetricsRegistry == nil {
		deps.MetricsRegistry = prometheus.NewRegistry()
	}
	svc, err := TryNewService(conf, newTestLogger(), context.Background(), deps)
	require.NoError(t, err)
	return svc
}

// run starts svc and returns a function stopping it and checking Start's result.
func run(t *testing.T, svc *Service) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()
	return func() {
		t.Helper()
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("service did not stop")
		}
	}
}

func addPipeline(t *testing.T, svc *Service, name string, procs ...event.Processor) *event.Pipeline {
	t.Helper()
	p := event.NewPipeline(name, procs...)
	require.NoError(t, svc.AddPipeline(p))
	return p
}

func addMemorySender(t *testing.T, svc *Service, name string, pipelines ...string) *sender.Memory {
	t.Helper()
	mem := &sender.Memory{}
	_, err := svc.AddSender(name, encoder.JSON{}, mem, pipelines...)
	require.NoError(t, err)
	return mem
}

func inject(t *testing.T, svc *Service, pipeline string, fields map[string]any) *event.Instance {
	t.Helper()
	ev := svc.NewEvent(nil)
	for k, v := range fields {
		ev.Put(k, v)
	}
	require.NoError(t, svc.Inject(context.Background(), ev, pipeline, true))
	return ev
}
