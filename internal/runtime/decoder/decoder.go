// Package decoder turns received bytes into events. A decoder fills events
// created by the receiver so that the connection context is already bound.
package decoder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/drblury/logflow/internal/runtime/event"
)

// DecodeError reports input that could not be decoded. The payload is kept
// for diagnostics, truncated.
type DecodeError struct {
	Payload string
	cause   error
}

const maxPayloadInError = 256

func newDecodeError(payload []byte, cause error) *DecodeError {
	p := payload
	if len(p) > maxPayloadInError {
		p = p[:maxPayloadInError]
	}
	return &DecodeError{Payload: string(p), cause: cause}
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %v", e.Payload, e.cause)
}

func (e *DecodeError) Unwrap() error { return e.cause }

// Factory creates an empty event for each decoded unit.
type Factory func() *event.Instance

// Decoder decodes one received unit into zero or more events.
type Decoder interface {
	Decode(data []byte, newEvent Factory) ([]*event.Instance, error)
}

// Func adapts a function to Decoder.
type Func func(data []byte, newEvent Factory) ([]*event.Instance, error)

func (f Func) Decode(data []byte, newEvent Factory) ([]*event.Instance, error) {
	return f(data, newEvent)
}

// String puts the whole unit, as text, in a single field.
type String struct {
	// Field receives the text, "message" when empty.
	Field string
	// TrimSpace strips surrounding white space, trailing newlines included.
	TrimSpace bool
}

func (s String) Decode(data []byte, newEvent Factory) ([]*event.Instance, error) {
	if !utf8.Valid(data) {
		return nil, newDecodeError(data, errors.New("invalid utf-8"))
	}
	text := string(data)
	if s.TrimSpace {
		text = strings.TrimSpace(text)
	}
	field := s.Field
	if field == "" {
		field = "message"
	}
	ev := newEvent()
	ev.Put(field, text)
	return []*event.Instance{ev}, nil
}

// JSON decodes a JSON object, or an array of objects, into events. Key order
// of the top level object is preserved; numbers are kept as json.Number so
// integers survive untouched.
type JSON struct{}

func (JSON) Decode(data []byte, newEvent Factory) ([]*event.Instance, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, newDecodeError(data, err)
	}
	var out []*event.Instance
	switch tok {
	case json.Delim('{'):
		ev := newEvent()
		if err := decodeObject(dec, ev); err != nil {
			ev.Drop()
			return nil, newDecodeError(data, err)
		}
		out = append(out, ev)
	case json.Delim('['):
		for dec.More() {
			if tok, err = dec.Token(); err != nil || tok != json.Delim('{') {
				dropAll(out)
				return nil, newDecodeError(data, errors.Join(err, errors.New("array element is not an object")))
			}
			ev := newEvent()
			if err := decodeObject(dec, ev); err != nil {
				ev.Drop()
				dropAll(out)
				return nil, newDecodeError(data, err)
			}
			out = append(out, ev)
		}
		if _, err := dec.Token(); err != nil {
			dropAll(out)
			return nil, newDecodeError(data, err)
		}
	default:
		return nil, newDecodeError(data, fmt.Errorf("unexpected %v, want object or array", tok))
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		dropAll(out)
		return nil, newDecodeError(data, errors.New("trailing data"))
	}
	return out, nil
}

func decodeObject(dec *json.Decoder, ev *event.Instance) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected key %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return err
		}
		ev.Put(key, value)
	}
	_, err := dec.Token()
	return err
}

func dropAll(evs []*event.Instance) {
	for _, ev := range evs {
		ev.Drop()
	}
}
