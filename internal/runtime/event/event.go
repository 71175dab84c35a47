// Package event holds the execution model of logflow: the event record, the
// flattened chain of processors it carries, the pipeline timers threaded
// through that chain and the bounded queues events travel on.
package event

import (
	"sort"
	"strings"
	"time"
)

// Event is what processors see of an event. Every Event is backed by exactly
// one *Instance; views created for processors delegate all state to it.
type Event interface {
	ID() string

	Get(key string) (any, bool)
	Put(key string, value any)
	Remove(key string) (any, bool)
	Keys() []string
	Len() int
	Range(fn func(key string, value any) bool)

	Timestamp() time.Time
	// SetTimestamp replaces the timestamp. The zero time resets it to the
	// creation time.
	SetTimestamp(t time.Time)

	Meta(key string) (any, bool)
	PutMeta(key string, value any)
	RemoveMeta(key string)
	Metas() map[string]any

	ConnectionContext() ConnectionContext
	IsTest() bool
	CurrentPipeline() string

	// Instance returns the real event.
	Instance() *Instance
}

// view is the Event handed to a processor. For a PathProcessor the payload
// operations are rooted at the nested map found under path.
type view struct {
	inst *Instance
	path []string
}

func (i *Instance) viewFor(p Processor) Event {
	pp, ok := p.(PathProcessor)
	if !ok || len(pp.Path()) == 0 {
		return view{inst: i}
	}
	return view{inst: i, path: pp.Path()}
}

func (v view) ID() string                           { return v.inst.id }
func (v view) Instance() *Instance                  { return v.inst }
func (v view) Unwrap() Event                        { return v.inst }
func (v view) Timestamp() time.Time                 { return v.inst.Timestamp() }
func (v view) SetTimestamp(t time.Time)             { v.inst.SetTimestamp(t) }
func (v view) Meta(key string) (any, bool)          { return v.inst.Meta(key) }
func (v view) PutMeta(key string, value any)        { v.inst.PutMeta(key, value) }
func (v view) RemoveMeta(key string)                { v.inst.RemoveMeta(key) }
func (v view) Metas() map[string]any                { return v.inst.Metas() }
func (v view) ConnectionContext() ConnectionContext { return v.inst.ConnectionContext() }
func (v view) IsTest() bool                         { return v.inst.test }
func (v view) CurrentPipeline() string              { return v.inst.currentPipeline }

// Path returns the payload path the view is rooted at.
func (v view) Path() []string { return v.path }

// node returns the map under the view path, creating missing maps when create
// is set. Existing values that are not maps are never replaced: node returns
// nil instead.
func (v view) node(create bool) map[string]any {
	first, ok := v.inst.fields.Get(v.path[0])
	cur, isMap := first.(map[string]any)
	if !isMap {
		if ok || !create {
			return nil
		}
		cur = make(map[string]any)
		v.inst.fields.Put(v.path[0], cur)
	}
	for _, seg := range v.path[1:] {
		val, exists := cur[seg]
		next, isMap := val.(map[string]any)
		if !isMap {
			if exists || !create {
				return nil
			}
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	return cur
}

// blockedSegment reports the first path segment holding a value that is not
// a map.
func (i *Instance) blockedSegment(path []string) (string, bool) {
	val, ok := i.fields.Get(path[0])
	for n := range path {
		if !ok {
			return "", false
		}
		m, isMap := val.(map[string]any)
		if !isMap {
			return strings.Join(path[:n+1], "."), true
		}
		if n+1 < len(path) {
			val, ok = m[path[n+1]]
		}
	}
	return "", false
}

func (v view) Get(key string) (any, bool) {
	if v.path == nil {
		return v.inst.Get(key)
	}
	m := v.node(false)
	if m == nil {
		return nil, false
	}
	val, ok := m[key]
	return val, ok
}

func (v view) Put(key string, value any) {
	if v.path == nil {
		v.inst.Put(key, value)
		return
	}
	if m := v.node(true); m != nil {
		m[key] = value
	}
}

func (v view) Remove(key string) (any, bool) {
	if v.path == nil {
		return v.inst.Remove(key)
	}
	m := v.node(false)
	if m == nil {
		return nil, false
	}
	val, ok := m[key]
	delete(m, key)
	return val, ok
}

// Keys returns the keys below the path sorted, nested maps have no order.
func (v view) Keys() []string {
	if v.path == nil {
		return v.inst.Keys()
	}
	m := v.node(false)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (v view) Len() int {
	if v.path == nil {
		return v.inst.Len()
	}
	return len(v.node(false))
}

func (v view) Range(fn func(key string, value any) bool) {
	if v.path == nil {
		v.inst.Range(fn)
		return
	}
	m := v.node(false)
	for _, k := range v.Keys() {
		if !fn(k, m[k]) {
			return
		}
	}
}
