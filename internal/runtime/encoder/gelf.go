package encoder

import (
	"bytes"
	"os"
	"regexp"

	"github.com/klauspost/compress/gzip"

	"github.com/drblury/logflow/internal/runtime/event"
)

var gelfFieldName = regexp.MustCompile(`^[\w.\-]*$`)

// GELF renders events as Graylog Extended Log Format 1.1 messages. Payload
// keys become additional "_" prefixed fields; "id" and keys GELF cannot carry
// are skipped.
type GELF struct {
	host         string
	shortMessage string
	fullMessage  string
	compressed   bool
	stream       bool
}

// GELFOption customises a GELF encoder.
type GELFOption func(*GELF)

// WithHost overrides the host field, the local hostname by default.
func WithHost(host string) GELFOption {
	return func(g *GELF) { g.host = host }
}

// WithShortMessageField names the payload key holding short_message.
func WithShortMessageField(key string) GELFOption {
	return func(g *GELF) { g.shortMessage = key }
}

// WithFullMessageField names the payload key holding full_message.
func WithFullMessageField(key string) GELFOption {
	return func(g *GELF) { g.fullMessage = key }
}

// Compressed gzips each message, as expected by GELF over UDP. It disables
// stream framing.
func Compressed() GELFOption {
	return func(g *GELF) {
		g.compressed = true
		g.stream = false
	}
}

// Stream terminates each message with a NUL byte, as expected by GELF over
// TCP. It disables compression.
func Stream() GELFOption {
	return func(g *GELF) {
		g.stream = true
		g.compressed = false
	}
}

// NewGELF creates a GELF encoder.
func NewGELF(opts ...GELFOption) *GELF {
	g := &GELF{shortMessage: "shortmessage"}
	for _, opt := range opts {
		opt(g)
	}
	if g.host == "" {
		g.host, _ = os.Hostname()
	}
	return g
}

func (g *GELF) Encode(ev event.Event) ([]byte, error) {
	obj := newObject()
	obj.add("version", "1.1")
	obj.add("host", g.host)
	if v, ok := ev.Get(g.shortMessage); ok {
		obj.add("short_message", v)
	}
	if g.fullMessage != "" {
		if v, ok := ev.Get(g.fullMessage); ok {
			obj.add("full_message", v)
		}
	}
	obj.add("timestamp", float64(ev.Timestamp().UnixMilli())/1000.0)
	ev.Range(func(k string, v any) bool {
		if k == "id" || k == g.shortMessage || (g.fullMessage != "" && k == g.fullMessage) {
			return true
		}
		if gelfFieldName.MatchString(k) {
			obj.add("_"+k, v)
		}
		return true
	})
	data, err := obj.bytes()
	if err != nil {
		return nil, err
	}

	switch {
	case g.compressed:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case g.stream:
		return append(data, 0), nil
	default:
		return data, nil
	}
}
