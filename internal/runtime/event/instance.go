package event

import (
	"container/list"
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/drblury/logflow/internal/runtime/ids"
	"github.com/drblury/logflow/internal/runtime/logging"
	"github.com/drblury/logflow/internal/runtime/stats"
)

// DroppedField is set on test events discarded by Drop.
const DroppedField = "_processing_dropped"

// Instance is an event together with its execution state. It is owned by the
// goroutine currently processing it and must not be shared without a queue
// hand-off.
type Instance struct {
	id        string
	created   time.Time
	timestamp time.Time
	fields    *Fields
	metas     map[string]any
	ack       *ackHandle
	test      bool

	stats  *stats.Stats
	logger logging.ServiceLogger

	steps           *list.List
	pipelineNames   []string
	timers          []*stats.Timer
	current         step
	currentPipeline string
	nextPipeline    string
	pipeline        string
	stepsCount      uint64

	lifetime *stats.Timer
	endOnce  sync.Once
	done     chan struct{}
}

// Option customises a new Instance.
type Option func(*Instance)

// WithStats reports metrics of the event to s.
func WithStats(s *stats.Stats) Option {
	return func(i *Instance) { i.stats = s }
}

// WithLogger traces pipeline entry and exit of the event.
func WithLogger(l logging.ServiceLogger) Option {
	return func(i *Instance) { i.logger = l }
}

// WithTimestamp sets the initial timestamp.
func WithTimestamp(t time.Time) Option {
	return func(i *Instance) {
		if !t.IsZero() {
			i.timestamp = t
		}
	}
}

// AsTest marks the event as a test event: no metrics are emitted and Wait
// blocks until the event ends.
func AsTest() Option {
	return func(i *Instance) { i.test = true }
}

// New creates an event bound to cc. A nil cc is replaced by EmptyContext.
func New(cc ConnectionContext, opts ...Option) *Instance {
	if cc == nil {
		cc = EmptyContext{}
	}
	now := time.Now()
	i := &Instance{
		created:   now,
		timestamp: now,
		fields:    NewFields(),
		metas:     make(map[string]any),
		ack:       newAckHandle(cc),
		steps:     list.New(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.id = ids.NewAt(now).String()
	i.start()
	return i
}

func (i *Instance) start() {
	if i.test {
		i.done = make(chan struct{})
		return
	}
	if i.stats != nil {
		i.lifetime = i.stats.EventStarted()
	}
}

func (i *Instance) ID() string          { return i.id }
func (i *Instance) Instance() *Instance { return i }
func (i *Instance) IsTest() bool        { return i.test }
func (i *Instance) Fields() *Fields     { return i.fields }

func (i *Instance) Get(key string) (any, bool)                { return i.fields.Get(key) }
func (i *Instance) Put(key string, value any)                 { i.fields.Put(key, value) }
func (i *Instance) Remove(key string) (any, bool)             { return i.fields.Remove(key) }
func (i *Instance) Keys() []string                            { return i.fields.Keys() }
func (i *Instance) Len() int                                  { return i.fields.Len() }
func (i *Instance) Range(fn func(key string, value any) bool) { i.fields.Range(fn) }

func (i *Instance) Timestamp() time.Time { return i.timestamp }

func (i *Instance) SetTimestamp(t time.Time) {
	if t.IsZero() {
		t = i.created
	}
	i.timestamp = t
}

func (i *Instance) Meta(key string) (any, bool) {
	v, ok := i.metas[key]
	return v, ok
}

func (i *Instance) PutMeta(key string, value any) { i.metas[key] = value }
func (i *Instance) RemoveMeta(key string)         { delete(i.metas, key) }

// Metas returns a copy of the metas.
func (i *Instance) Metas() map[string]any { return maps.Clone(i.metas) }

// MergeMeta copies the metas of other. With cumulate, a key present on both
// sides ends up holding both values.
func (i *Instance) MergeMeta(other Event, cumulate bool) {
	for k, v := range other.Metas() {
		prev, ok := i.metas[k]
		if !cumulate || !ok {
			i.metas[k] = v
			continue
		}
		if vals, isList := prev.([]any); isList {
			i.metas[k] = append(vals, v)
		} else {
			i.metas[k] = []any{prev, v}
		}
	}
}

func (i *Instance) ConnectionContext() ConnectionContext { return i.ack.ctx }

func (i *Instance) CurrentPipeline() string { return i.currentPipeline }
func (i *Instance) NextPipeline() string    { return i.nextPipeline }

// Pipeline returns the name of the last pipeline the event was refilled with.
// Outputs are routed by that name.
func (i *Instance) Pipeline() string { return i.pipeline }

func (i *Instance) StepsCount() uint64 { return i.stepsCount }

// Pending returns the number of steps left in the chain.
func (i *Instance) Pending() int { return i.steps.Len() }

// PipelineDepth returns the sizes of the pipeline name and timer stacks.
func (i *Instance) PipelineDepth() (names, timers int) {
	return len(i.pipelineNames), len(i.timers)
}

// Next pops the next step of the chain. It returns nil once the chain is
// exhausted, which is not an error.
func (i *Instance) Next() Processor {
	i.stepsCount++
	front := i.steps.Front()
	if front == nil {
		i.current = step{}
		return nil
	}
	i.current = i.steps.Remove(front).(step)
	return i.current.proc
}

// Process runs p against the event. Errors are returned untouched. A
// PathProcessor whose path runs into a value that is not a map fails with a
// ProcessingError and is not invoked.
func (i *Instance) Process(p Processor) (bool, error) {
	if pp, ok := p.(PathProcessor); ok && len(pp.Path()) > 0 {
		if at, blocked := i.blockedSegment(pp.Path()); blocked {
			return false, NewProcessingError(i, fmt.Sprintf("path %q holds a value that is not a map", at), nil)
		}
	}
	return p.Process(i.viewFor(p))
}

// InsertProcessor puts p at the front of the chain.
func (i *Instance) InsertProcessor(p Processor) {
	i.InsertProcessors([]Processor{p})
}

// AppendProcessor puts p at the end of the chain.
func (i *Instance) AppendProcessor(p Processor) {
	i.AppendProcessors([]Processor{p})
}

// InsertProcessors puts ps at the front of the chain, ps[0] first.
func (i *Instance) InsertProcessors(ps []Processor) {
	steps := i.expand(ps)
	for idx := len(steps) - 1; idx >= 0; idx-- {
		i.steps.PushFront(steps[idx])
	}
}

// AppendProcessors puts ps at the end of the chain, keeping their order.
func (i *Instance) AppendProcessors(ps []Processor) {
	for _, s := range i.expand(ps) {
		i.steps.PushBack(s)
	}
}

func (i *Instance) expand(ps []Processor) []step {
	var out []step
	for _, p := range ps {
		out = flattenProcessor(out, p, i.current.pipeline)
	}
	return out
}

// Refill appends the flattened chain of p and continues with its next
// pipeline afterwards.
func (i *Instance) Refill(p *Pipeline) {
	i.nextPipeline = p.next
	i.pipeline = p.name
	if p.name != "" {
		i.currentPipeline = p.name
	}
	for _, s := range flattenPipeline(nil, p, "") {
		i.steps.PushBack(s)
	}
}

// Inject refills the event with p and hands it to q. A blocking inject waits
// for room until ctx is done; a non-blocking one fails at once with
// ErrQueueFull. Failures are accounted in Stats; the caller still owns the
// event and must drop it.
func (i *Instance) Inject(ctx context.Context, p *Pipeline, q *Queue, blocking bool) error {
	i.Refill(p)
	return i.Enqueue(ctx, q, blocking)
}

// Enqueue hands the event to q as is, with the accounting of Inject.
func (i *Instance) Enqueue(ctx context.Context, q *Queue, blocking bool) error {
	if !blocking {
		if q.Offer(i) {
			return nil
		}
		i.DoMetric(func(s *stats.Stats) { s.NewDropped() })
		return fmt.Errorf("queue %s: %w", q.Name(), ErrQueueFull)
	}
	if err := q.Put(ctx, i); err != nil {
		i.DoMetric(func(s *stats.Stats) { s.NewBlocked(fmt.Sprintf("event %s: %v", i.id, err)) })
		return err
	}
	return nil
}

// Fork moves child onto the continuation of i, the steps left, the pipeline
// stacks and the next pipeline, then offers it to q. Child gets its own
// timers for the pipelines still open on i so its exit markers balance.
func (i *Instance) Fork(child *Instance, q *Queue) error {
	child.steps.Init()
	for e := i.steps.Front(); e != nil; e = e.Next() {
		child.steps.PushBack(e.Value)
	}
	child.current = i.current
	child.currentPipeline = i.currentPipeline
	child.nextPipeline = i.nextPipeline
	child.pipeline = i.pipeline
	child.pipelineNames = append([]string(nil), i.pipelineNames...)
	child.timers = make([]*stats.Timer, len(child.pipelineNames))
	for idx, name := range child.pipelineNames {
		child.timers[idx] = child.startTimer(name)
		if idx < len(child.pipelineNames)-1 {
			child.timers[idx].Pause()
		}
	}
	return child.Enqueue(context.Background(), q, false)
}

func (i *Instance) startTimer(name string) *stats.Timer {
	if i.test || i.stats == nil {
		return stats.NewTimer(name, nil)
	}
	return i.stats.StartTimer(name)
}

func (i *Instance) enterPipeline() {
	name := i.current.pipeline
	if n := len(i.timers); n > 0 {
		i.timers[n-1].Pause()
	}
	i.timers = append(i.timers, i.startTimer(name))
	i.pipelineNames = append(i.pipelineNames, name)
	i.currentPipeline = name
	if i.logger != nil {
		i.logger.Trace("Start processing event", logging.LogFields{"pipeline": name, "event_id": i.id})
	}
}

func (i *Instance) exitPipeline() error {
	n := len(i.timers)
	if n == 0 {
		return NewProcessingError(i, "empty timer stack, bad state", nil)
	}
	i.timers[n-1].Close()
	i.timers = i.timers[:n-1]
	name := i.pipelineNames[len(i.pipelineNames)-1]
	i.pipelineNames = i.pipelineNames[:len(i.pipelineNames)-1]
	if len(i.timers) > 0 {
		i.timers[len(i.timers)-1].Resume()
		i.currentPipeline = i.pipelineNames[len(i.pipelineNames)-1]
	}
	if i.logger != nil {
		i.logger.Trace("Finished processing event", logging.LogFields{"pipeline": name, "event_id": i.id})
	}
	return nil
}

// FinishPipeline abandons the chain: every open timer is closed and the
// pipeline stack and remaining steps are cleared.
func (i *Instance) FinishPipeline() {
	for idx := len(i.timers) - 1; idx >= 0; idx-- {
		i.timers[idx].Close()
	}
	i.timers = nil
	i.pipelineNames = nil
	i.steps.Init()
	i.nextPipeline = ""
}

// End finishes the life of the event: the connection context is acknowledged
// and the lifetime timer and in-flight gauge are settled, or for a test event
// the goroutines in Wait are released. Calls after the first are no-ops.
func (i *Instance) End() {
	i.endOnce.Do(func() {
		i.ack.release()
		if i.test {
			close(i.done)
			return
		}
		if i.stats != nil {
			i.stats.EventFinished(i.lifetime)
		}
	})
}

// Drop ends the event without it being sent. A test event additionally has
// its payload cleared and DroppedField set.
func (i *Instance) Drop() {
	if i.test {
		i.fields.Clear()
		i.fields.Put(DroppedField, true)
	}
	i.End()
}

// Wait blocks until a test event ends or ctx is done.
func (i *Instance) Wait(ctx context.Context) error {
	if !i.test {
		return ErrNotTestEvent
	}
	select {
	case <-i.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Duplicate returns an independent copy with a new identity sharing the
// connection context. It fails with ErrTestEvent for test events and with an
// error wrapping ErrNotDuplicable when a value cannot be cloned; the original
// is never altered.
func (i *Instance) Duplicate() (*Instance, error) {
	if i.test {
		return nil, ErrTestEvent
	}
	fields, err := i.fields.clone()
	if err != nil {
		return nil, err
	}
	metas, err := cloneMap(i.metas, "@metas")
	if err != nil {
		return nil, err
	}
	if metas == nil {
		metas = make(map[string]any)
	}

	now := time.Now()
	i.ack.retain()
	dup := &Instance{
		id:              ids.NewAt(now).String(),
		created:         i.created,
		timestamp:       i.timestamp,
		fields:          fields,
		metas:           metas,
		ack:             i.ack,
		stats:           i.stats,
		logger:          i.logger,
		steps:           list.New(),
		currentPipeline: i.currentPipeline,
		pipeline:        i.pipeline,
	}
	dup.start()
	return dup, nil
}

// DoMetric runs fn with the stats of a production event.
func (i *Instance) DoMetric(fn func(s *stats.Stats)) {
	if i.test || i.stats == nil {
		return
	}
	fn(i.stats)
}

// Stats returns the aggregator the event reports to, nil for test events.
func (i *Instance) Stats() *stats.Stats {
	if i.test {
		return nil
	}
	return i.stats
}

// Logger returns the event logger, never nil.
func (i *Instance) Logger() logging.ServiceLogger {
	if i.logger == nil {
		return logging.NewNopLogger()
	}
	return i.logger
}

func (i *Instance) String() string {
	return fmt.Sprintf("event %s (pipeline %q, %d fields)", i.id, i.currentPipeline, i.fields.Len())
}
