package runtime

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/logflow/internal/runtime/config"
	loggingpkg "github.com/drblury/logflow/internal/runtime/logging"
)

// Events created by the service log their way through named pipelines.
func TestServiceEventsTraceMarkers(t *testing.T) {
	entry := newFakeEntry()
	svc, err := TryNewService(&configpkg.Config{}, newEntryLogger(entry), context.Background(), ServiceDependencies{})
	require.NoError(t, err)
	addPipeline(t, svc, "main")
	stop := run(t, svc)

	ev := svc.NewEvent(nil)
	require.NoError(t, svc.Inject(context.Background(), ev, "main", true))
	require.Eventually(t, func() bool { return svc.Stats().InFlight() == 0 }, 2*time.Second, 10*time.Millisecond)
	stop()

	var traces []loggedEntry
	for _, l := range entry.recorder.snapshot() {
		if l.level == "trace" {
			traces = append(traces, l)
		}
	}
	require.Len(t, traces, 2)
	assert.Equal(t, "Start processing event", traces[0].msg)
	assert.Equal(t, "Finished processing event", traces[1].msg)
	assert.Equal(t, "main", traces[1].fields["pipeline"])
	assert.Equal(t, ev.ID(), traces[1].fields["event_id"])
}

func newEntryLogger(entry *fakeEntry) loggingpkg.ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}

type fakeEntry struct {
	recorder *entryRecorder
	fields   loggingpkg.LogFields
	err      error
}

type entryRecorder struct {
	mu   sync.Mutex
	logs []loggedEntry
}

func (r *entryRecorder) snapshot() []loggedEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]loggedEntry(nil), r.logs...)
}

type loggedEntry struct {
	level  string
	msg    string
	fields loggingpkg.LogFields
	err    error
}

func newFakeEntry() *fakeEntry {
	return &fakeEntry{recorder: &entryRecorder{}}
}

func (f *fakeEntry) clone() *fakeEntry {
	return &fakeEntry{recorder: f.recorder, fields: maps.Clone(f.fields), err: f.err}
}

func (f *fakeEntry) Error(args ...any) { f.append("error", args...) }
func (f *fakeEntry) Info(args ...any)  { f.append("info", args...) }
func (f *fakeEntry) Debug(args ...any) { f.append("debug", args...) }
func (f *fakeEntry) Trace(args ...any) { f.append("trace", args...) }

func (f *fakeEntry) WithError(err error) *fakeEntry {
	clone := f.clone()
	clone.err = err
	return clone
}

func (f *fakeEntry) WithField(key string, value any) *fakeEntry {
	clone := f.clone()
	if clone.fields == nil {
		clone.fields = make(loggingpkg.LogFields)
	}
	clone.fields[key] = value
	return clone
}

func (f *fakeEntry) append(level string, args ...any) {
	f.recorder.mu.Lock()
	defer f.recorder.mu.Unlock()
	f.recorder.logs = append(f.recorder.logs, loggedEntry{
		level:  level,
		msg:    fmt.Sprint(args...),
		fields: maps.Clone(f.fields),
		err:    f.err,
	})
}
