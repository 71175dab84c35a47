package encoder

import (
	"time"

	"github.com/drblury/logflow/internal/runtime/event"
)

// JSON renders an event as one JSON object: "@timestamp" first, then the
// payload in insertion order, then "@metas" when enabled and not empty.
type JSON struct {
	IncludeMetas bool
	// Newline appends '\n', for line oriented sinks.
	Newline bool
}

func (j JSON) Encode(ev event.Event) ([]byte, error) {
	obj := newObject()
	obj.add("@timestamp", ev.Timestamp().UTC().Format(time.RFC3339Nano))
	ev.Range(func(k string, v any) bool {
		obj.add(k, v)
		return true
	})
	if j.IncludeMetas {
		if metas := ev.Metas(); len(metas) > 0 {
			obj.add("@metas", metas)
		}
	}
	data, err := obj.bytes()
	if err != nil {
		return nil, err
	}
	if j.Newline {
		data = append(data, '\n')
	}
	return data, nil
}
