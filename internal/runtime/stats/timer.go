package stats

import "time"

// RecordFunc receives the accumulated running time of a closed timer.
type RecordFunc func(name string, elapsed time.Duration)

// Timer measures the running time of one pipeline for one event. It can be
// paused while a nested pipeline runs so the nested time is not counted twice.
// A Timer belongs to a single event and is not safe for concurrent use.
type Timer struct {
	name    string
	record  RecordFunc
	now     func() time.Time
	started time.Time
	elapsed time.Duration
	paused  bool
	closed  bool
}

// NewTimer starts a timer. A nil record function makes a detached timer that
// measures but reports nowhere.
func NewTimer(name string, record RecordFunc) *Timer {
	return newTimer(name, record, time.Now)
}

func newTimer(name string, record RecordFunc, now func() time.Time) *Timer {
	return &Timer{name: name, record: record, now: now, started: now()}
}

func (t *Timer) Name() string { return t.name }

// Pause stops accumulating time until Resume is called.
func (t *Timer) Pause() {
	if t.paused || t.closed {
		return
	}
	t.elapsed += t.now().Sub(t.started)
	t.paused = true
}

// Resume restarts accumulation after a Pause.
func (t *Timer) Resume() {
	if !t.paused || t.closed {
		return
	}
	t.started = t.now()
	t.paused = false
}

// Paused reports whether the timer is currently paused.
func (t *Timer) Paused() bool { return t.paused }

// Elapsed returns the running time accumulated so far.
func (t *Timer) Elapsed() time.Duration {
	if t.paused || t.closed {
		return t.elapsed
	}
	return t.elapsed + t.now().Sub(t.started)
}

// Close stops the timer and reports the accumulated time once. Further calls
// return the same value without reporting again.
func (t *Timer) Close() time.Duration {
	if t.closed {
		return t.elapsed
	}
	if !t.paused {
		t.elapsed += t.now().Sub(t.started)
	}
	t.closed = true
	if t.record != nil {
		t.record(t.name, t.elapsed)
	}
	return t.elapsed
}
