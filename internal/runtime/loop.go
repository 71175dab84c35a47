package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	errspkg "github.com/drblury/logflow/internal/runtime/errors"
	"github.com/drblury/logflow/internal/runtime/event"
	loggingpkg "github.com/drblury/logflow/internal/runtime/logging"
	"github.com/drblury/logflow/internal/runtime/stats"
)

func (s *Service) runWorker(ctx context.Context) {
	for {
		ev, err := s.main.Take(ctx)
		if err != nil {
			return
		}
		s.process(ctx, ev)
	}
}

// process runs the chain of ev to its end and routes the result: to the next
// pipeline, to the senders of its pipeline, or nowhere.
func (s *Service) process(ctx context.Context, ev *event.Instance) {
	ec := EventContext{
		Pipeline:  ev.Pipeline(),
		EventID:   ev.ID(),
		StartedAt: time.Now(),
		Test:      ev.IsTest(),
	}
	s.hooks.start(ec)

	for p := ev.Next(); p != nil; p = ev.Next() {
		ok, err := ev.Process(p)
		if err != nil {
			s.fail(ev, err)
			ec.Duration = time.Since(ec.StartedAt)
			s.hooks.fail(ec, err)
			return
		}
		if !ok {
			ev.FinishPipeline()
			ev.DoMetric(func(st *stats.Stats) { st.NewDropped() })
			ev.Drop()
			ec.Duration = time.Since(ec.StartedAt)
			ec.Dropped = true
			s.hooks.done(ec)
			return
		}
	}

	s.route(ctx, ev)
	ec.Duration = time.Since(ec.StartedAt)
	s.hooks.done(ec)
}

// fail accounts a processor failure: a ProcessingError is an expected
// rejection, anything else an exception.
func (s *Service) fail(ev *event.Instance, err error) {
	var pe *event.ProcessingError
	if errors.As(err, &pe) {
		ev.DoMetric(func(st *stats.Stats) { st.NewError(err) })
	} else {
		ev.DoMetric(func(st *stats.Stats) { st.NewException(err) })
	}
	ev.Logger().Error("Event processing failed", err, loggingpkg.LogFields{
		"event_id": ev.ID(),
		"pipeline": ev.CurrentPipeline(),
	})
	ev.FinishPipeline()
	ev.Drop()
}

func (s *Service) route(ctx context.Context, ev *event.Instance) {
	if next := ev.NextPipeline(); next != "" {
		p, ok := s.Pipeline(next)
		if !ok {
			err := fmt.Errorf("event %s: %w: %s", ev.ID(), errspkg.ErrUnknownPipeline, next)
			ev.DoMetric(func(st *stats.Stats) { st.NewException(err) })
			ev.Logger().Error("Cannot continue event", err, nil)
			ev.Drop()
			return
		}
		if err := ev.Inject(ctx, p, s.main, false); err != nil {
			ev.Logger().Debug("Main queue saturated, event dropped", loggingpkg.LogFields{"event_id": ev.ID(), "pipeline": next})
			ev.Drop()
		}
		return
	}

	s.mu.RLock()
	var outputs []*event.Queue
	if e, ok := s.pipelines[ev.Pipeline()]; ok {
		outputs = make([]*event.Queue, len(e.outputs))
		for idx, snd := range e.outputs {
			outputs[idx] = snd.Queue()
		}
	}
	s.mu.RUnlock()

	if len(outputs) == 0 {
		ev.End()
		return
	}

	// Every sink but the last gets a copy; test events cannot be copied and
	// only reach the last sink.
	last := len(outputs) - 1
	for idx, q := range outputs {
		target := ev
		if idx < last {
			if ev.IsTest() {
				continue
			}
			dup, err := ev.Duplicate()
			if err != nil {
				err = fmt.Errorf("event %s: copy for %s: %w", ev.ID(), q.Name(), err)
				ev.DoMetric(func(st *stats.Stats) { st.NewException(err) })
				ev.Logger().Error("Cannot copy event", err, nil)
				continue
			}
			target = dup
		}
		if err := target.Enqueue(ctx, q, true); err != nil {
			target.Drop()
		}
	}
}
