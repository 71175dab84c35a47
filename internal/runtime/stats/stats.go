// Package stats is the process wide observability aggregator of logflow:
// monotonic event counters, rings of recent failures, the in-flight gauge and
// per-pipeline timings. One *Stats is created by the service and handed to
// every component that reports.
package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// Record is one entry of a recent-failure ring.
type Record struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// PipelineTiming aggregates the closed timers of one pipeline.
type PipelineTiming struct {
	Count uint64        `json:"count"`
	Total time.Duration `json:"total_ns"`
	Max   time.Duration `json:"max_ns"`
}

// Snapshot is an immutable copy of the Stats state.
type Snapshot struct {
	Received       uint64 `json:"received"`
	Dropped        uint64 `json:"dropped"`
	Sent           uint64 `json:"sent"`
	Failed         uint64 `json:"failed"`
	Thrown         uint64 `json:"thrown"`
	Blocked        uint64 `json:"blocked"`
	FailedSend     uint64 `json:"failed_send"`
	FailedReceived uint64 `json:"failed_received"`
	InFlight       int64  `json:"in_flight"`

	Errors          []Record `json:"errors"`
	DecodeErrors    []Record `json:"decode_errors"`
	Exceptions      []Record `json:"exceptions"`
	BlockedMessages []Record `json:"blocked_messages"`
	SenderErrors    []Record `json:"sender_errors"`
	ReceiverErrors  []Record `json:"receiver_errors"`

	Pipelines   map[string]PipelineTiming `json:"pipelines"`
	CollectedAt time.Time                 `json:"collected_at"`
}

// Stats is safe for concurrent use. Counters are atomics, rings and timings
// carry their own locks.
type Stats struct {
	received       atomic.Uint64
	dropped        atomic.Uint64
	sent           atomic.Uint64
	failed         atomic.Uint64
	thrown         atomic.Uint64
	blocked        atomic.Uint64
	failedSend     atomic.Uint64
	failedReceived atomic.Uint64
	inFlight       atomic.Int64

	// carried holds what Reset cleared so exported totals never go down.
	resetMu sync.Mutex
	carried [counterCount]uint64

	errors         *Ring[Record]
	decodeErrors   *Ring[Record]
	exceptions     *Ring[Record]
	blockedMsgs    *Ring[Record]
	senderErrors   *Ring[Record]
	receiverErrors *Ring[Record]

	timingsMu sync.Mutex
	timings   map[string]*PipelineTiming

	now      func() time.Time
	exporter *exporter
}

// New creates a Stats whose failure rings keep bufferSize entries each.
func New(bufferSize int) *Stats {
	return &Stats{
		errors:         NewRing[Record](bufferSize),
		decodeErrors:   NewRing[Record](bufferSize),
		exceptions:     NewRing[Record](bufferSize),
		blockedMsgs:    NewRing[Record](bufferSize),
		senderErrors:   NewRing[Record](bufferSize),
		receiverErrors: NewRing[Record](bufferSize),
		timings:        make(map[string]*PipelineTiming),
		now:            time.Now,
		exporter:       newExporter(),
	}
}

const (
	counterReceived = iota
	counterDropped
	counterSent
	counterFailed
	counterThrown
	counterBlocked
	counterFailedSend
	counterFailedReceived
	counterCount
)

func (s *Stats) counters() [counterCount]*atomic.Uint64 {
	return [counterCount]*atomic.Uint64{
		&s.received, &s.dropped, &s.sent, &s.failed,
		&s.thrown, &s.blocked, &s.failedSend, &s.failedReceived,
	}
}

// total returns the counter at idx including everything cleared by Reset.
func (s *Stats) total(idx int) uint64 {
	s.resetMu.Lock()
	defer s.resetMu.Unlock()
	return s.carried[idx] + s.counters()[idx].Load()
}

func (s *Stats) record(msg string, err error) Record {
	if msg == "" && err != nil {
		msg = err.Error()
	}
	return Record{At: s.now(), Message: msg, Err: err}
}

// NewReceived counts one unit accepted by a receiver.
func (s *Stats) NewReceived() { s.received.Add(1) }

// NewDropped counts one event discarded without being sent.
func (s *Stats) NewDropped() { s.dropped.Add(1) }

// NewSent counts one event transmitted by a sender.
func (s *Stats) NewSent() { s.sent.Add(1) }

// NewError records a processing error raised by a processor.
func (s *Stats) NewError(err error) {
	s.failed.Add(1)
	s.errors.Add(s.record("", err))
}

// NewDecodeError records input bytes that could not be decoded.
func (s *Stats) NewDecodeError(err error) {
	s.failed.Add(1)
	s.decodeErrors.Add(s.record("", err))
}

// NewException records an unexpected failure that is not a processing error.
func (s *Stats) NewException(err error) {
	s.thrown.Add(1)
	s.exceptions.Add(s.record("", err))
}

// NewBlocked records a hand-off that could not complete.
func (s *Stats) NewBlocked(msg string) {
	s.blocked.Add(1)
	s.blockedMsgs.Add(s.record(msg, nil))
}

// NewSenderError records a failed encode or transmission.
func (s *Stats) NewSenderError(msg string, err error) {
	s.failedSend.Add(1)
	s.senderErrors.Add(s.record(msg, err))
}

// NewReceiverError records a failure on the receiving side.
func (s *Stats) NewReceiverError(msg string, err error) {
	s.failedReceived.Add(1)
	s.receiverErrors.Add(s.record(msg, err))
}

// EventStarted increments the in-flight gauge and returns the timer of the
// event lifetime.
func (s *Stats) EventStarted() *Timer {
	s.inFlight.Add(1)
	return NewTimer("", s.recordEvent)
}

// EventFinished closes the lifetime timer and decrements the in-flight gauge.
func (s *Stats) EventFinished(t *Timer) {
	if t != nil {
		t.Close()
	}
	s.inFlight.Add(-1)
}

// InFlight returns the number of events started and not yet finished.
func (s *Stats) InFlight() int64 { return s.inFlight.Load() }

// StartTimer starts a timer accounted under the named pipeline.
func (s *Stats) StartTimer(pipeline string) *Timer {
	return NewTimer(pipeline, s.recordPipeline)
}

func (s *Stats) recordPipeline(name string, elapsed time.Duration) {
	s.timingsMu.Lock()
	pt, ok := s.timings[name]
	if !ok {
		pt = &PipelineTiming{}
		s.timings[name] = pt
	}
	pt.Count++
	pt.Total += elapsed
	if elapsed > pt.Max {
		pt.Max = elapsed
	}
	s.timingsMu.Unlock()

	s.exporter.observePipeline(name, elapsed)
}

func (s *Stats) recordEvent(_ string, elapsed time.Duration) {
	s.exporter.observeEvent(elapsed)
}

// Timing returns the aggregate of the named pipeline.
func (s *Stats) Timing(pipeline string) PipelineTiming {
	s.timingsMu.Lock()
	defer s.timingsMu.Unlock()
	if pt, ok := s.timings[pipeline]; ok {
		return *pt
	}
	return PipelineTiming{}
}

// Snapshot returns a copy of every counter, ring and timing.
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		Received:        s.received.Load(),
		Dropped:         s.dropped.Load(),
		Sent:            s.sent.Load(),
		Failed:          s.failed.Load(),
		Thrown:          s.thrown.Load(),
		Blocked:         s.blocked.Load(),
		FailedSend:      s.failedSend.Load(),
		FailedReceived:  s.failedReceived.Load(),
		InFlight:        s.inFlight.Load(),
		Errors:          s.errors.Snapshot(),
		DecodeErrors:    s.decodeErrors.Snapshot(),
		Exceptions:      s.exceptions.Snapshot(),
		BlockedMessages: s.blockedMsgs.Snapshot(),
		SenderErrors:    s.senderErrors.Snapshot(),
		ReceiverErrors:  s.receiverErrors.Snapshot(),
		CollectedAt:     s.now(),
	}

	s.timingsMu.Lock()
	snap.Pipelines = make(map[string]PipelineTiming, len(s.timings))
	for name, pt := range s.timings {
		snap.Pipelines[name] = *pt
	}
	s.timingsMu.Unlock()

	return snap
}

// Reset clears counters, rings and timings. The in-flight gauge is left alone
// since it tracks live events, not history.
func (s *Stats) Reset() {
	s.resetMu.Lock()
	for idx, c := range s.counters() {
		s.carried[idx] += c.Swap(0)
	}
	s.resetMu.Unlock()
	for _, r := range []*Ring[Record]{
		s.errors, s.decodeErrors, s.exceptions,
		s.blockedMsgs, s.senderErrors, s.receiverErrors,
	} {
		r.Reset()
	}

	s.timingsMu.Lock()
	s.timings = make(map[string]*PipelineTiming)
	s.timingsMu.Unlock()
}
