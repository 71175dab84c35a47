// Package processors holds small generic processors for building pipelines.
package processors

import (
	"fmt"

	"github.com/drblury/logflow/internal/runtime/event"
)

// Set puts a constant value in a field.
type Set struct {
	Field string
	Value any
	// KeepExisting leaves a field that is already set alone.
	KeepExisting bool
}

func (s Set) Process(ev event.Event) (bool, error) {
	if s.KeepExisting {
		if _, ok := ev.Get(s.Field); ok {
			return true, nil
		}
	}
	ev.Put(s.Field, s.Value)
	return true, nil
}

// Remove deletes fields.
type Remove struct {
	Fields []string
}

func (r Remove) Process(ev event.Event) (bool, error) {
	for _, f := range r.Fields {
		ev.Remove(f)
	}
	return true, nil
}

// Rename moves a field to a new key. Missing fields are ignored.
type Rename struct {
	From, To string
}

func (r Rename) Process(ev event.Event) (bool, error) {
	v, ok := ev.Remove(r.From)
	if ok {
		ev.Put(r.To, v)
	}
	return true, nil
}

// Filter keeps the events Keep accepts and drops the others.
type Filter struct {
	Keep func(event.Event) bool
}

func (f Filter) Process(ev event.Event) (bool, error) {
	return f.Keep(ev), nil
}

// Require drops events missing any of the fields.
func Require(fields ...string) Filter {
	return Filter{Keep: func(ev event.Event) bool {
		for _, f := range fields {
			if _, ok := ev.Get(f); !ok {
				return false
			}
		}
		return true
	}}
}

// Func runs fn as a processor that always continues.
func Func(fn func(event.Event)) event.Processor {
	return event.ProcessorFunc(func(ev event.Event) (bool, error) {
		fn(ev)
		return true, nil
	})
}

// Fail fails every event with a processing error.
type Fail struct {
	Message string
}

func (f Fail) Process(ev event.Event) (bool, error) {
	return false, event.NewProcessingError(ev, f.Message, nil)
}

// Under roots p at the nested map found under path.
func Under(p event.Processor, path ...string) event.Processor {
	return under{proc: p, path: path}
}

type under struct {
	proc event.Processor
	path []string
}

func (u under) Path() []string                       { return u.path }
func (u under) Process(ev event.Event) (bool, error) { return u.proc.Process(ev) }

// Tag appends a value to a list meta, creating it when missing.
type Tag struct {
	Meta  string
	Value string
}

func (t Tag) Process(ev event.Event) (bool, error) {
	cur, ok := ev.Meta(t.Meta)
	if !ok {
		ev.PutMeta(t.Meta, []any{t.Value})
		return true, nil
	}
	list, ok := cur.([]any)
	if !ok {
		return false, event.NewProcessingError(ev, fmt.Sprintf("meta %s holds %T, not a list", t.Meta, cur), nil)
	}
	ev.PutMeta(t.Meta, append(list, t.Value))
	return true, nil
}
