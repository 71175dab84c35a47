package event

import (
	"bytes"
	"maps"
	"slices"

	"github.com/drblury/logflow/internal/runtime/jsoncodec"
)

// Fields is the event payload: a string keyed map remembering insertion order
// so that encoders produce deterministic output. Replacing an existing key
// keeps its position. Not safe for concurrent use.
type Fields struct {
	keys   []string
	values map[string]any
}

// NewFields creates an empty payload.
func NewFields() *Fields {
	return &Fields{values: make(map[string]any)}
}

func (f *Fields) Get(key string) (any, bool) {
	v, ok := f.values[key]
	return v, ok
}

func (f *Fields) Put(key string, value any) {
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

func (f *Fields) Remove(key string) (any, bool) {
	v, ok := f.values[key]
	if !ok {
		return nil, false
	}
	delete(f.values, key)
	f.keys = slices.DeleteFunc(f.keys, func(k string) bool { return k == key })
	return v, true
}

func (f *Fields) Len() int { return len(f.keys) }

// Keys returns the keys in insertion order.
func (f *Fields) Keys() []string { return slices.Clone(f.keys) }

// Range calls fn in insertion order until it returns false.
func (f *Fields) Range(fn func(key string, value any) bool) {
	for _, k := range f.keys {
		if !fn(k, f.values[k]) {
			return
		}
	}
}

func (f *Fields) Clear() {
	f.keys = f.keys[:0]
	clear(f.values)
}

// Map returns an unordered shallow copy.
func (f *Fields) Map() map[string]any {
	return maps.Clone(f.values)
}

// MarshalJSON writes the payload as an object in insertion order.
func (f *Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := jsoncodec.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := jsoncodec.Marshal(f.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (f *Fields) clone() (*Fields, error) {
	out := &Fields{keys: slices.Clone(f.keys), values: make(map[string]any, len(f.values))}
	for _, k := range f.keys {
		v, err := cloneValue(f.values[k], k)
		if err != nil {
			return nil, err
		}
		out.values[k] = v
	}
	return out, nil
}
