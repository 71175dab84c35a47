package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel/trace"

	configpkg "github.com/drblury/logflow/internal/runtime/config"
	"github.com/drblury/logflow/internal/runtime/decoder"
	"github.com/drblury/logflow/internal/runtime/encoder"
	errspkg "github.com/drblury/logflow/internal/runtime/errors"
	"github.com/drblury/logflow/internal/runtime/event"
	loggingpkg "github.com/drblury/logflow/internal/runtime/logging"
	"github.com/drblury/logflow/internal/runtime/receiver"
	"github.com/drblury/logflow/internal/runtime/sender"
	"github.com/drblury/logflow/internal/runtime/stats"
	transportpkg "github.com/drblury/logflow/internal/runtime/transport"
)

// MainQueueName names the queue feeding the pipeline workers.
const MainQueueName = "main"

const shutdownTimeout = 5 * time.Second

// ServiceDependencies holds the optional collaborators of a Service. Leave
// fields nil to get the defaults.
type ServiceDependencies struct {
	// TransportFactory builds the broker behind publisher senders and
	// subscriber receivers. Defaults to the transport registry.
	TransportFactory transportpkg.Factory
	Hooks            EventHooks
	// MetricsRegistry receives the stats collectors and backs /metrics.
	// Defaults to the global Prometheus registry.
	MetricsRegistry *prometheus.Registry
	Tracer          trace.Tracer
}

type pipelineEntry struct {
	pipeline *event.Pipeline
	outputs  []*sender.Sender
}

// Service owns the pipeline registry, the main queue with its workers, and
// the senders and receivers attached to it.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	stats     *stats.Stats
	collector *stats.Collector
	registry  *prometheus.Registry
	tracer    trace.Tracer
	hooks     EventHooks

	main      *event.Queue
	transport transportpkg.Transport

	mu        sync.RWMutex
	pipelines map[string]*pipelineEntry
	senders   []*sender.Sender
	receivers []receiver.Receiver

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex

	started atomic.Bool
}

// NewService constructs a Service for the supplied configuration and panics
// when it is invalid or the broker cannot be reached. Register pipelines,
// senders and receivers on the returned Service before calling Start.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) *Service {
	s, err := TryNewService(conf, log, ctx, deps)
	if err != nil {
		panic(err)
	}
	return s
}

// TryNewService is NewService returning the error instead of panicking.
func TryNewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	conf.ApplyDefaults()
	if err := conf.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}

	log.Info("Creating event service", loggingpkg.LogFields{
		"pubsub_system":    conf.PubSubSystem,
		"pipeline_workers": conf.PipelineWorkers,
		"config":           conf,
	})

	st := stats.New(conf.ErrorBufferSize)
	var registerer prometheus.Registerer
	if deps.MetricsRegistry != nil {
		registerer = deps.MetricsRegistry
	}

	s := &Service{
		Conf:      conf,
		Logger:    log,
		stats:     st,
		collector: stats.NewCollector(st, registerer),
		registry:  deps.MetricsRegistry,
		tracer:    deps.Tracer,
		hooks:     deps.Hooks,
		main:      event.NewQueue(MainQueueName, conf.MainQueueSize),
		pipelines: make(map[string]*pipelineEntry),
	}

	if conf.PubSubSystem != "" {
		factory := deps.TransportFactory
		if factory == nil {
			factory = transportpkg.DefaultFactory()
		}
		tr, err := factory.Build(ctx, conf, loggingpkg.NewWatermillAdapter(log))
		if err != nil {
			return nil, fmt.Errorf("logflow: transport %s: %w", conf.PubSubSystem, err)
		}
		s.transport = tr
	}
	return s, nil
}

// Stats returns the aggregator every production event of the service reports to.
func (s *Service) Stats() *stats.Stats { return s.stats }

// MainQueue returns the queue the pipeline workers drain.
func (s *Service) MainQueue() *event.Queue { return s.main }

// AddPipeline registers p under its name.
func (s *Service) AddPipeline(p *event.Pipeline) error {
	if p == nil {
		return errspkg.ErrPipelineRequired
	}
	if p.Name() == "" {
		return errspkg.ErrPipelineNameRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pipelines[p.Name()]; ok {
		return fmt.Errorf("%w: %s", errspkg.ErrDuplicatePipeline, p.Name())
	}
	s.pipelines[p.Name()] = &pipelineEntry{pipeline: p}
	return nil
}

// Pipeline returns the registered pipeline called name.
func (s *Service) Pipeline(name string) (*event.Pipeline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.pipelines[name]
	if !ok {
		return nil, false
	}
	return e.pipeline, true
}

// PipelineInfo describes a registered pipeline.
type PipelineInfo struct {
	Name         string   `json:"name"`
	NextPipeline string   `json:"next_pipeline,omitempty"`
	Processors   int      `json:"processors"`
	Senders      []string `json:"senders"`
}

// Pipelines lists the registered pipelines sorted by name.
func (s *Service) Pipelines() []PipelineInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PipelineInfo, 0, len(s.pipelines))
	for name, e := range s.pipelines {
		info := PipelineInfo{
			Name:         name,
			NextPipeline: e.pipeline.NextPipeline(),
			Processors:   len(e.pipeline.Processors()),
			Senders:      make([]string, 0, len(e.outputs)),
		}
		for _, snd := range e.outputs {
			info.Senders = append(info.Senders, snd.Name())
		}
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b PipelineInfo) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return out
}

// AddSender creates a sender with its own queue and makes it an output of
// every named pipeline.
func (s *Service) AddSender(name string, enc encoder.Encoder, tr sender.Transmitter, pipelines ...string) (*sender.Sender, error) {
	if s.started.Load() {
		return nil, errspkg.ErrServiceStarted
	}
	snd, err := sender.New(sender.Config{
		Name:        name,
		Queue:       event.NewQueue(name, s.Conf.SenderQueueSize),
		Encoder:     enc,
		Transmitter: tr,
		Stats:       s.stats,
		Logger:      s.Logger,
		Tracer:      s.tracer,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pipelines {
		if _, ok := s.pipelines[p]; !ok {
			return nil, fmt.Errorf("%w: %s", errspkg.ErrUnknownPipeline, p)
		}
	}
	for _, p := range pipelines {
		e := s.pipelines[p]
		e.outputs = append(e.outputs, snd)
	}
	s.senders = append(s.senders, snd)
	return snd, nil
}

// AddPublisherSender adds a sender publishing to topic on the configured broker.
func (s *Service) AddPublisherSender(name, topic string, enc encoder.Encoder, pipelines ...string) (*sender.Sender, error) {
	if s.transport.Publisher == nil {
		return nil, fmt.Errorf("%w: no pubsub system configured", errspkg.ErrPublisherRequired)
	}
	opts := []sender.PublisherOption{
		sender.WithRetry(sender.RetryConfig{
			MaxRetries:      s.Conf.RetryMaxRetries,
			InitialInterval: s.Conf.RetryInitialInterval,
			MaxInterval:     s.Conf.RetryMaxInterval,
		}),
		sender.WithPublisherLogger(s.Logger),
	}
	if limit := transportpkg.CapabilitiesOf(s.Conf).MaxMessageSize; limit > 0 {
		opts = append(opts, sender.WithMaxMessageSize(limit))
	}
	tr, err := sender.NewPublisher(s.transport.Publisher, topic, opts...)
	if err != nil {
		return nil, err
	}
	return s.AddSender(name, enc, tr, pipelines...)
}

// NewInjector returns the receiver boundary for the pipeline called name.
func (s *Service) NewInjector(pipeline string, nonBlocking bool) (*receiver.Injector, error) {
	p, ok := s.Pipeline(pipeline)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errspkg.ErrUnknownPipeline, pipeline)
	}
	return receiver.NewInjector(receiver.InjectorConfig{
		Pipeline:    p,
		Queue:       s.main,
		Stats:       s.stats,
		Logger:      s.Logger,
		NonBlocking: nonBlocking,
	})
}

// AddReceiver runs r alongside the pipeline workers once the service starts.
func (s *Service) AddReceiver(r receiver.Receiver) error {
	if r == nil {
		return errors.New("logflow: receiver is required")
	}
	if s.started.Load() {
		return errspkg.ErrServiceStarted
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receivers = append(s.receivers, r)
	return nil
}

// AddUDPReceiver listens on cfg.Address and feeds the decoded datagrams to
// pipeline. Datagrams arriving while the main queue is full are dropped.
func (s *Service) AddUDPReceiver(cfg receiver.UDPConfig, pipeline string) (*receiver.UDP, error) {
	in, err := s.NewInjector(pipeline, true)
	if err != nil {
		return nil, err
	}
	u, err := receiver.NewUDP(cfg, in)
	if err != nil {
		return nil, err
	}
	return u, s.AddReceiver(u)
}

// AddSubscriberReceiver consumes topic from the configured broker and feeds
// the decoded messages to pipeline, waiting for room in the main queue.
func (s *Service) AddSubscriberReceiver(topic string, dec decoder.Decoder, pipeline string) (*receiver.Subscriber, error) {
	if s.transport.Subscriber == nil {
		return nil, fmt.Errorf("%w: no pubsub system configured", errspkg.ErrSubscriberRequired)
	}
	in, err := s.NewInjector(pipeline, false)
	if err != nil {
		return nil, err
	}
	sub, err := receiver.NewSubscriber(s.transport.Subscriber, receiver.SubscriberConfig{
		Topic:   topic,
		Decoder: dec,
		Tracer:  s.tracer,
	}, in)
	if err != nil {
		return nil, err
	}
	return sub, s.AddReceiver(sub)
}

// Publisher returns the broker publisher, nil without a pubsub system.
func (s *Service) Publisher() message.Publisher { return s.transport.Publisher }

// NewEvent creates a production event reporting to the service stats.
func (s *Service) NewEvent(cc event.ConnectionContext, opts ...event.Option) *event.Instance {
	opts = append([]event.Option{event.WithStats(s.stats), event.WithLogger(s.Logger)}, opts...)
	return event.New(cc, opts...)
}

// Inject starts ev on the pipeline called name. On failure the event has
// been accounted for and dropped.
func (s *Service) Inject(ctx context.Context, ev *event.Instance, pipeline string, blocking bool) error {
	p, ok := s.Pipeline(pipeline)
	if !ok {
		ev.Drop()
		return fmt.Errorf("%w: %s", errspkg.ErrUnknownPipeline, pipeline)
	}
	if err := ev.Inject(ctx, p, s.main, blocking); err != nil {
		ev.Drop()
		return err
	}
	return nil
}

// Start runs the pipeline workers, the senders and the receivers until ctx
// is cancelled or a receiver fails, which stops the whole service and is
// part of the returned error. Events still queued at that point are dropped
// and the broker connection is closed before Start returns.
func (s *Service) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errspkg.ErrServiceStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := s.startMetrics(); err != nil {
		return err
	}
	s.StartWebUIServer()
	servers := s.startHTTPServers()

	s.mu.RLock()
	senders := slices.Clone(s.senders)
	receivers := slices.Clone(s.receivers)
	s.mu.RUnlock()

	s.Logger.Info("Starting event service", loggingpkg.LogFields{
		"workers":   s.Conf.PipelineWorkers,
		"senders":   len(senders),
		"receivers": len(receivers),
	})

	var (
		errsMu sync.Mutex
		errs   []error
	)
	var wg conc.WaitGroup
	for range s.Conf.PipelineWorkers {
		wg.Go(func() { s.runWorker(ctx) })
	}
	for _, snd := range senders {
		wg.Go(func() { _ = snd.Run(ctx) })
	}
	for _, r := range receivers {
		wg.Go(func() {
			if err := r.Run(ctx); err != nil {
				s.Logger.Error("Receiver stopped", err, loggingpkg.LogFields{"receiver": r.Name()})
				errsMu.Lock()
				errs = append(errs, fmt.Errorf("receiver %s: %w", r.Name(), err))
				errsMu.Unlock()
				cancel()
			}
		})
	}
	wg.Wait()

	dropped := s.drainMain()
	for _, snd := range senders {
		dropped += snd.Drain()
	}
	s.Logger.Info("Event service stopped", loggingpkg.LogFields{"dropped_on_shutdown": dropped})

	s.shutdownHTTPServers(servers)
	if err := s.transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close transport: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Service) drainMain() int {
	n := 0
	for {
		ev, ok := s.main.Poll()
		if !ok {
			return n
		}
		ev.FinishPipeline()
		ev.DoMetric(func(st *stats.Stats) { st.NewDropped() })
		ev.Drop()
		n++
	}
}

func (s *Service) startMetrics() error {
	if !s.Conf.MetricsEnabled {
		return nil
	}
	if err := s.collector.Register(); err != nil {
		return fmt.Errorf("logflow: register metrics: %w", err)
	}
	var handler http.Handler
	if s.registry != nil {
		handler = promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
	} else {
		handler = promhttp.Handler()
	}
	s.RegisterHTTPHandler(s.Conf.MetricsPort, "/metrics", handler)
	return nil
}

// RegisterHTTPHandler serves handler under pattern on port once the service
// starts. Handlers sharing a port share one server.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}
	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}
	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() []*http.Server {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	servers := make([]*http.Server, 0, len(s.httpServers))
	for port, mux := range s.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}()
		servers = append(servers, srv)
	}
	return servers
}

func (s *Service) shutdownHTTPServers(servers []*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			s.Logger.Error("Failed to stop HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
		}
	}
}
