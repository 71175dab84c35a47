package stats

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingEvictsOldest(t *testing.T) {
	r := NewRing[int](3)
	for i := 1; i <= 5; i++ {
		r.Add(i)
	}

	assert.Equal(t, []int{3, 4, 5}, r.Snapshot())
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 3, r.Cap())

	snap := r.Snapshot()
	snap[0] = 42
	assert.Equal(t, []int{3, 4, 5}, r.Snapshot())

	r.Reset()
	assert.Empty(t, r.Snapshot())
	r.Add(9)
	assert.Equal(t, []int{9}, r.Snapshot())
}

func TestRingDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultRingCapacity, NewRing[string](0).Cap())
}

func TestRingConcurrentAdd(t *testing.T) {
	r := NewRing[int](10)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.Add(i)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, r.Len())
}

func TestCounterMapping(t *testing.T) {
	s := New(10)
	boom := errors.New("boom")

	s.NewReceived()
	s.NewReceived()
	s.NewDropped()
	s.NewSent()
	s.NewError(boom)
	s.NewDecodeError(errors.New("bad json"))
	s.NewException(boom)
	s.NewBlocked("main queue full")
	s.NewSenderError("stdout", boom)
	s.NewReceiverError("udp", boom)

	snap := s.Snapshot()
	assert.EqualValues(t, 2, snap.Received)
	assert.EqualValues(t, 1, snap.Dropped)
	assert.EqualValues(t, 1, snap.Sent)
	assert.EqualValues(t, 2, snap.Failed, "processing and decode errors share the failed counter")
	assert.EqualValues(t, 1, snap.Thrown)
	assert.EqualValues(t, 1, snap.Blocked)
	assert.EqualValues(t, 1, snap.FailedSend)
	assert.EqualValues(t, 1, snap.FailedReceived)

	require.Len(t, snap.Errors, 1)
	assert.Equal(t, "boom", snap.Errors[0].Message)
	assert.ErrorIs(t, snap.Errors[0].Err, boom)
	require.Len(t, snap.DecodeErrors, 1)
	assert.Equal(t, "bad json", snap.DecodeErrors[0].Message)
	require.Len(t, snap.BlockedMessages, 1)
	assert.Equal(t, "main queue full", snap.BlockedMessages[0].Message)
	require.Len(t, snap.SenderErrors, 1)
	assert.Equal(t, "stdout", snap.SenderErrors[0].Message)
	require.Len(t, snap.ReceiverErrors, 1)
	assert.Len(t, snap.Exceptions, 1)
}

func TestErrorRingsAreBounded(t *testing.T) {
	s := New(2)
	for i := 0; i < 5; i++ {
		s.NewError(fmt.Errorf("error %d", i))
	}

	snap := s.Snapshot()
	assert.EqualValues(t, 5, snap.Failed)
	require.Len(t, snap.Errors, 2)
	assert.Equal(t, "error 3", snap.Errors[0].Message)
	assert.Equal(t, "error 4", snap.Errors[1].Message)
}

func TestResetClearsHistory(t *testing.T) {
	s := New(5)
	s.NewSent()
	s.NewBlocked("x")
	s.StartTimer("main").Close()
	timer := s.EventStarted()

	s.Reset()

	snap := s.Snapshot()
	assert.Zero(t, snap.Sent)
	assert.Zero(t, snap.Blocked)
	assert.Empty(t, snap.BlockedMessages)
	assert.Empty(t, snap.Pipelines)
	assert.EqualValues(t, 1, snap.InFlight)

	s.EventFinished(timer)
	assert.Zero(t, s.InFlight())
}

func TestTimerPauseResume(t *testing.T) {
	clock := time.Unix(0, 0)
	now := func() time.Time { return clock }

	var recorded time.Duration
	timer := newTimer("main", func(name string, d time.Duration) {
		assert.Equal(t, "main", name)
		recorded += d
	}, now)

	clock = clock.Add(10 * time.Millisecond)
	timer.Pause()
	assert.True(t, timer.Paused())
	clock = clock.Add(50 * time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, timer.Elapsed())
	timer.Resume()
	clock = clock.Add(5 * time.Millisecond)

	assert.Equal(t, 15*time.Millisecond, timer.Close())
	assert.Equal(t, 15*time.Millisecond, recorded)

	clock = clock.Add(time.Second)
	assert.Equal(t, 15*time.Millisecond, timer.Close())
	assert.Equal(t, 15*time.Millisecond, recorded, "close reports once")
}

func TestDetachedTimer(t *testing.T) {
	timer := NewTimer("test", nil)
	timer.Pause()
	timer.Resume()
	assert.GreaterOrEqual(t, timer.Close(), time.Duration(0))
}

func TestPipelineTimings(t *testing.T) {
	s := New(0)
	s.recordPipeline("main", 3*time.Millisecond)
	s.recordPipeline("main", 5*time.Millisecond)

	pt := s.Timing("main")
	assert.EqualValues(t, 2, pt.Count)
	assert.Equal(t, 8*time.Millisecond, pt.Total)
	assert.Equal(t, 5*time.Millisecond, pt.Max)
	assert.Equal(t, PipelineTiming{}, s.Timing("missing"))
	assert.Equal(t, pt, s.Snapshot().Pipelines["main"])
}

func TestCollectorRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(0)
	c := NewCollector(s, reg)

	require.NoError(t, c.Register())
	require.NoError(t, c.Register())
	require.NoError(t, NewCollector(s, reg).Register(), "already registered collectors are tolerated")

	s.NewSent()
	s.NewSent()
	s.NewDropped()
	timer := s.EventStarted()
	s.StartTimer("main").Close()

	values := gather(t, reg)
	assert.Equal(t, 2.0, values["logflow_events_sent_total"])
	assert.Equal(t, 1.0, values["logflow_events_dropped_total"])
	assert.Equal(t, 1.0, values["logflow_events_in_flight"])
	assert.Equal(t, 1.0, values["logflow_pipeline_duration_seconds"])

	s.EventFinished(timer)
	count, err := testutil.GatherAndCount(reg, "logflow_events_lifetime_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestExportedCountersSurviveReset(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(0)
	require.NoError(t, NewCollector(s, reg).Register())

	s.NewSent()
	s.NewSent()
	s.NewException(errors.New("boom"))
	s.Reset()
	s.NewSent()

	assert.EqualValues(t, 1, s.Snapshot().Sent)
	assert.Zero(t, s.Snapshot().Thrown)

	values := gather(t, reg)
	assert.Equal(t, 3.0, values["logflow_events_sent_total"])
	assert.Equal(t, 1.0, values["logflow_events_thrown_total"])
}

func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values[mf.GetName()] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				values[mf.GetName()] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return values
}
