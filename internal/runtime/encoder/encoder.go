// Package encoder turns events into the bytes a sender transmits. Encoders
// never modify the event they are given.
package encoder

import (
	"bytes"

	"github.com/drblury/logflow/internal/runtime/event"
	"github.com/drblury/logflow/internal/runtime/jsoncodec"
)

// Encoder renders one event.
type Encoder interface {
	Encode(ev event.Event) ([]byte, error)
}

// Func adapts a function to Encoder.
type Func func(ev event.Event) ([]byte, error)

func (f Func) Encode(ev event.Event) ([]byte, error) { return f(ev) }

// object writes a JSON object member by member, keeping call order.
type object struct {
	buf   bytes.Buffer
	first bool
	err   error
}

func newObject() *object {
	o := &object{first: true}
	o.buf.WriteByte('{')
	return o
}

func (o *object) add(key string, value any) {
	if o.err != nil {
		return
	}
	k, err := jsoncodec.Marshal(key)
	if err != nil {
		o.err = err
		return
	}
	v, err := jsoncodec.Marshal(value)
	if err != nil {
		o.err = err
		return
	}
	if !o.first {
		o.buf.WriteByte(',')
	}
	o.first = false
	o.buf.Write(k)
	o.buf.WriteByte(':')
	o.buf.Write(v)
}

func (o *object) bytes() ([]byte, error) {
	if o.err != nil {
		return nil, o.err
	}
	o.buf.WriteByte('}')
	return o.buf.Bytes(), nil
}
