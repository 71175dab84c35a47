package runtime

import (
	"context"
	"errors"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/logflow/internal/runtime/config"
	"github.com/drblury/logflow/internal/runtime/decoder"
	"github.com/drblury/logflow/internal/runtime/encoder"
	errspkg "github.com/drblury/logflow/internal/runtime/errors"
	"github.com/drblury/logflow/internal/runtime/event"
	"github.com/drblury/logflow/internal/runtime/processors"
	"github.com/drblury/logflow/internal/runtime/sender"
	transportpkg "github.com/drblury/logflow/internal/runtime/transport"
	"github.com/drblury/logflow/transport/transporttest"
)

func TestTryNewServiceValidates(t *testing.T) {
	_, err := TryNewService(nil, newTestLogger(), context.Background(), ServiceDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrConfigRequired)

	_, err = TryNewService(&configpkg.Config{}, nil, context.Background(), ServiceDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrLoggerRequired)

	_, err = TryNewService(&configpkg.Config{MainQueueSize: -1}, newTestLogger(), context.Background(), ServiceDependencies{})
	var cve errspkg.ConfigValidationError
	assert.ErrorAs(t, err, &cve)

	assert.Panics(t, func() {
		NewService(&configpkg.Config{PipelineWorkers: -1}, newTestLogger(), context.Background(), ServiceDependencies{})
	})
}

func TestNewServiceAppliesDefaults(t *testing.T) {
	svc := newTestService(t, nil, ServiceDependencies{})
	assert.Equal(t, configpkg.DefaultMainQueueSize, svc.MainQueue().Cap())
	assert.Equal(t, configpkg.DefaultPipelineWorkers, svc.Conf.PipelineWorkers)
	assert.Nil(t, svc.Publisher())
}

func TestNewServiceBuildsTransport(t *testing.T) {
	pub := &transporttest.Publisher{}
	var seen string
	factory := transportpkg.FactoryFunc(func(_ context.Context, conf *configpkg.Config, _ watermill.LoggerAdapter) (transportpkg.Transport, error) {
		seen = conf.PubSubSystem
		return transportpkg.Transport{Publisher: pub, Subscriber: &transporttest.Subscriber{}}, nil
	})
	svc := newTestService(t, &configpkg.Config{PubSubSystem: "fake"}, ServiceDependencies{TransportFactory: factory})
	assert.Equal(t, "fake", seen)
	assert.Same(t, pub, svc.Publisher())

	boom := errors.New("boom")
	failing := transportpkg.FactoryFunc(func(context.Context, *configpkg.Config, watermill.LoggerAdapter) (transportpkg.Transport, error) {
		return transportpkg.Transport{}, boom
	})
	_, err := TryNewService(&configpkg.Config{PubSubSystem: "fake"}, newTestLogger(), context.Background(), ServiceDependencies{TransportFactory: failing})
	assert.ErrorIs(t, err, boom)
}

func TestAddPipelineValidates(t *testing.T) {
	svc := newTestService(t, nil, ServiceDependencies{})
	assert.ErrorIs(t, svc.AddPipeline(nil), errspkg.ErrPipelineRequired)
	assert.ErrorIs(t, svc.AddPipeline(event.NewPipeline("")), errspkg.ErrPipelineNameRequired)
	require.NoError(t, svc.AddPipeline(event.NewPipeline("main")))
	assert.ErrorIs(t, svc.AddPipeline(event.NewPipeline("main")), errspkg.ErrDuplicatePipeline)

	_, err := svc.AddSender("out", encoder.JSON{}, &sender.Memory{}, "main", "missing")
	assert.ErrorIs(t, err, errspkg.ErrUnknownPipeline)
	assert.Empty(t, svc.Pipelines()[0].Senders)

	_, err = svc.NewInjector("missing", false)
	assert.ErrorIs(t, err, errspkg.ErrUnknownPipeline)

	ev := svc.NewEvent(nil)
	assert.ErrorIs(t, svc.Inject(context.Background(), ev, "missing", true), errspkg.ErrUnknownPipeline)
	assert.Zero(t, svc.Stats().InFlight())
}

func TestEventsReachEverySender(t *testing.T) {
	svc := newTestService(t, nil, ServiceDependencies{})
	addPipeline(t, svc, "main", processors.Set{Field: "env", Value: "prod"})
	first := addMemorySender(t, svc, "first", "main")
	second := addMemorySender(t, svc, "second", "main")
	stop := run(t, svc)
	defer stop()

	for n := range 10 {
		inject(t, svc, "main", map[string]any{"n": n})
	}

	require.Eventually(t, func() bool { return first.Len() == 10 && second.Len() == 10 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return svc.Stats().InFlight() == 0 }, 2*time.Second, 10*time.Millisecond)

	ids := map[string]bool{}
	for _, s := range append(first.Sent(), second.Sent()...) {
		assert.Contains(t, string(s.Data), `"env":"prod"`)
		ids[s.EventID] = true
	}
	assert.Len(t, ids, 20, "copies get their own identity")
	assert.EqualValues(t, 20, svc.Stats().Snapshot().Sent)
}

func TestFilteredEventsAreDropped(t *testing.T) {
	svc := newTestService(t, nil, ServiceDependencies{})
	addPipeline(t, svc, "main", processors.Require("message"))
	mem := addMemorySender(t, svc, "out", "main")
	stop := run(t, svc)
	defer stop()

	inject(t, svc, "main", map[string]any{"other": 1})
	inject(t, svc, "main", map[string]any{"message": "kept"})

	require.Eventually(t, func() bool { return mem.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return svc.Stats().InFlight() == 0 }, 2*time.Second, 10*time.Millisecond)
	snap := svc.Stats().Snapshot()
	assert.EqualValues(t, 1, snap.Dropped)
	assert.EqualValues(t, 1, snap.Sent)
}

func TestProcessorFailuresAreClassified(t *testing.T) {
	svc := newTestService(t, nil, ServiceDependencies{})
	addPipeline(t, svc, "rejecting", processors.Fail{Message: "bad input"})
	addPipeline(t, svc, "crashing", event.ProcessorFunc(func(event.Event) (bool, error) {
		return false, errors.New("unexpected")
	}))
	stop := run(t, svc)
	defer stop()

	inject(t, svc, "rejecting", nil)
	inject(t, svc, "crashing", nil)

	require.Eventually(t, func() bool { return svc.Stats().InFlight() == 0 }, 2*time.Second, 10*time.Millisecond)
	snap := svc.Stats().Snapshot()
	assert.EqualValues(t, 1, snap.Failed)
	assert.EqualValues(t, 1, snap.Thrown)
	require.Len(t, snap.Errors, 1)
	require.Len(t, snap.Exceptions, 1)
	assert.Contains(t, snap.Errors[0].Message, "bad input")
}

func TestNextPipelineContinuesEvent(t *testing.T) {
	svc := newTestService(t, nil, ServiceDependencies{})
	require.NoError(t, svc.AddPipeline(event.NewPipeline("parse", processors.Set{Field: "parsed", Value: true}).ContinueWith("ship")))
	addPipeline(t, svc, "ship", processors.Set{Field: "shipped", Value: true})
	mem := addMemorySender(t, svc, "out", "ship")
	require.NoError(t, svc.AddPipeline(event.NewPipeline("lost").ContinueWith("nowhere")))
	stop := run(t, svc)
	defer stop()

	inject(t, svc, "parse", nil)
	inject(t, svc, "lost", nil)

	require.Eventually(t, func() bool { return mem.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	data := string(mem.Sent()[0].Data)
	assert.Contains(t, data, `"parsed":true`)
	assert.Contains(t, data, `"shipped":true`)

	require.Eventually(t, func() bool { return svc.Stats().InFlight() == 0 }, 2*time.Second, 10*time.Millisecond)
	snap := svc.Stats().Snapshot()
	require.Len(t, snap.Exceptions, 1)
	assert.Contains(t, snap.Exceptions[0].Message, "nowhere")
	assert.EqualValues(t, 1, svc.Stats().Timing("parse").Count)
}

func TestTestEventReachesLastSenderOnly(t *testing.T) {
	svc := newTestService(t, nil, ServiceDependencies{})
	addPipeline(t, svc, "main")
	first := addMemorySender(t, svc, "first", "main")
	last := addMemorySender(t, svc, "last", "main")
	stop := run(t, svc)
	defer stop()

	ev := svc.NewEvent(nil, event.AsTest())
	ev.Put("probe", true)
	require.NoError(t, svc.Inject(context.Background(), ev, "main", true))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ev.Wait(ctx))
	assert.Equal(t, 1, last.Len())
	assert.Zero(t, first.Len())
	assert.Zero(t, svc.Stats().Snapshot().Thrown)
}

// opaque encodes fine but has no deep copy.
type opaque struct {
	Host string `json:"host"`
}

func TestUncopyableEventStillReachesLastSender(t *testing.T) {
	svc := newTestService(t, nil, ServiceDependencies{})
	addPipeline(t, svc, "main")
	first := addMemorySender(t, svc, "first", "main")
	second := addMemorySender(t, svc, "second", "main")
	stop := run(t, svc)
	defer stop()

	inject(t, svc, "main", map[string]any{"origin": opaque{Host: "edge-1"}})

	require.Eventually(t, func() bool { return second.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return svc.Stats().InFlight() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, first.Len())
	assert.Contains(t, string(second.Sent()[0].Data), `"host":"edge-1"`)

	snap := svc.Stats().Snapshot()
	assert.EqualValues(t, 1, snap.Thrown)
	assert.EqualValues(t, 1, snap.Sent)
	assert.Zero(t, snap.Dropped)
	require.Len(t, snap.Exceptions, 1)
	assert.ErrorIs(t, snap.Exceptions[0].Err, event.ErrNotDuplicable)
}

func TestPipelineWithoutSendersEndsEvents(t *testing.T) {
	acked := atomic.Int32{}
	svc := newTestService(t, nil, ServiceDependencies{})
	addPipeline(t, svc, "sink")
	stop := run(t, svc)
	defer stop()

	cc := event.NewIPContext(netip.AddrPort{}, netip.AddrPort{}, event.OnAcknowledge(func() { acked.Add(1) }))
	ev := svc.NewEvent(cc)
	require.NoError(t, svc.Inject(context.Background(), ev, "sink", true))
	require.Eventually(t, func() bool { return acked.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHooksObserveEventRuns(t *testing.T) {
	var started, done, failed atomic.Int32
	hooks := EventHooks{
		OnEventStart: func(EventContext) { started.Add(1) },
		OnEventDone:  func(EventContext) { done.Add(1) },
		OnEventError: func(EventContext, error) { failed.Add(1) },
	}
	svc := newTestService(t, nil, ServiceDependencies{Hooks: hooks})
	addPipeline(t, svc, "ok")
	addPipeline(t, svc, "bad", processors.Fail{Message: "no"})
	stop := run(t, svc)
	defer stop()

	inject(t, svc, "ok", nil)
	inject(t, svc, "bad", nil)

	require.Eventually(t, func() bool { return done.Load() == 1 && failed.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 2, started.Load())
}

type failingReceiver struct{ err error }

func (failingReceiver) Name() string                { return "broken" }
func (f failingReceiver) Run(context.Context) error { return f.err }

func TestReceiverFailureStopsService(t *testing.T) {
	bind := errors.New("bind: address already in use")
	svc := newTestService(t, nil, ServiceDependencies{})
	addPipeline(t, svc, "main")
	require.NoError(t, svc.AddReceiver(failingReceiver{err: bind}))

	done := make(chan error, 1)
	go func() { done <- svc.Start(context.Background()) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, bind)
		assert.Contains(t, err.Error(), "receiver broken")
	case <-time.After(5 * time.Second):
		t.Fatal("service kept running without its receiver")
	}
}

func TestStartTwiceFails(t *testing.T) {
	svc := newTestService(t, nil, ServiceDependencies{})
	stop := run(t, svc)
	require.Eventually(t, svc.started.Load, time.Second, time.Millisecond)
	assert.ErrorIs(t, svc.Start(context.Background()), errspkg.ErrServiceStarted)

	_, err := svc.AddSender("late", encoder.JSON{}, &sender.Memory{})
	assert.ErrorIs(t, err, errspkg.ErrServiceStarted)
	stop()
}

func TestShutdownDropsQueuedEvents(t *testing.T) {
	svc := newTestService(t, &configpkg.Config{SenderQueueSize: 4}, ServiceDependencies{})
	addPipeline(t, svc, "main")
	release := make(chan struct{})
	_, err := svc.AddSender("slow", encoder.JSON{}, sender.TransmitterFunc(func(ctx context.Context, _ event.Event, _ []byte) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}), "main")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()

	for range 3 {
		inject(t, svc, "main", nil)
	}
	require.Eventually(t, func() bool { return svc.MainQueue().Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	close(release)
	require.NoError(t, <-done)
	assert.Zero(t, svc.Stats().InFlight())
}

func TestPublisherAndSubscriberThroughChannelBroker(t *testing.T) {
	svc := newTestService(t, &configpkg.Config{PubSubSystem: "channel"}, ServiceDependencies{})
	addPipeline(t, svc, "edge", processors.Tag{Meta: "tenant", Value: "acme"})
	addPipeline(t, svc, "central")
	_, err := svc.AddPublisherSender("bus", "logs", encoder.JSON{}, "edge")
	require.NoError(t, err)
	_, err = svc.AddSubscriberReceiver("logs", decoder.JSON{}, "central")
	require.NoError(t, err)
	mem := addMemorySender(t, svc, "out", "central")
	stop := run(t, svc)
	defer stop()

	// The subscription starts asynchronously; keep publishing until one arrives.
	deadline := time.Now().Add(3 * time.Second)
	for mem.Len() == 0 {
		require.True(t, time.Now().Before(deadline), "nothing came back through the broker")
		inject(t, svc, "edge", map[string]any{"message": "hello"})
		time.Sleep(50 * time.Millisecond)
	}
	assert.Contains(t, string(mem.Sent()[0].Data), `"message":"hello"`)
}

func TestBrokerlessServiceRejectsBrokerEndpoints(t *testing.T) {
	svc := newTestService(t, nil, ServiceDependencies{})
	addPipeline(t, svc, "main")
	_, err := svc.AddPublisherSender("bus", "logs", encoder.JSON{}, "main")
	assert.ErrorIs(t, err, errspkg.ErrPublisherRequired)
	_, err = svc.AddSubscriberReceiver("logs", decoder.JSON{}, "main")
	assert.ErrorIs(t, err, errspkg.ErrSubscriberRequired)
}

func TestMetricsAreRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := newTestService(t, &configpkg.Config{MetricsEnabled: true}, ServiceDependencies{MetricsRegistry: reg})
	require.NoError(t, svc.startMetrics())
	svc.Stats().NewReceived()

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "logflow_events_received_total")
	assert.Contains(t, svc.httpServers, configpkg.DefaultMetricsPort)
}
