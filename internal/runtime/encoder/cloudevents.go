package encoder

import (
	"maps"
	"regexp"
	"slices"
	"time"

	"github.com/drblury/logflow/internal/runtime/event"
)

// CloudEventsSpecVersion is the CloudEvents version produced.
const CloudEventsSpecVersion = "1.0"

var extensionName = regexp.MustCompile(`^[a-z0-9]{1,20}$`)

// CloudEvents renders an event in the CloudEvents 1.0 structured JSON mode.
// The payload becomes "data", the pipeline the "subject", and metas whose key
// is a valid extension name become extension attributes.
type CloudEvents struct {
	// Source is the "source" attribute, "logflow" when empty.
	Source string
	// Type is the "type" attribute, "logflow.event" when empty.
	Type string
}

func (c CloudEvents) Encode(ev event.Event) ([]byte, error) {
	source, typ := c.Source, c.Type
	if source == "" {
		source = "logflow"
	}
	if typ == "" {
		typ = "logflow.event"
	}

	obj := newObject()
	obj.add("specversion", CloudEventsSpecVersion)
	obj.add("type", typ)
	obj.add("source", source)
	obj.add("id", ev.ID())
	obj.add("time", ev.Timestamp().UTC().Format(time.RFC3339Nano))
	obj.add("datacontenttype", "application/json")
	if p := ev.CurrentPipeline(); p != "" {
		obj.add("subject", p)
	}
	metas := ev.Metas()
	for _, k := range slices.Sorted(maps.Keys(metas)) {
		if extensionName.MatchString(k) && !reservedAttribute(k) {
			obj.add(k, metas[k])
		}
	}
	obj.add("data", ev.Instance().Fields())
	return obj.bytes()
}

func reservedAttribute(name string) bool {
	switch name {
	case "specversion", "type", "source", "id", "time", "datacontenttype",
		"dataschema", "subject", "data", "data_base64":
		return true
	}
	return false
}
