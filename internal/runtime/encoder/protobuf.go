package encoder

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/drblury/logflow/internal/runtime/event"
)

// Protobuf renders an event as a google.protobuf.Struct holding "@timestamp",
// the payload and "@metas". Times and values implementing fmt.Stringer are
// rendered as strings.
type Protobuf struct {
	// JSON switches to the protojson text encoding.
	JSON bool
}

// Struct converts ev into a structpb.Struct.
func (p Protobuf) Struct(ev event.Event) (*structpb.Struct, error) {
	fields := make(map[string]*structpb.Value, ev.Len()+2)
	fields["@timestamp"] = structpb.NewStringValue(ev.Timestamp().UTC().Format(time.RFC3339Nano))

	var err error
	ev.Range(func(k string, v any) bool {
		var val *structpb.Value
		val, err = toValue(v)
		if err != nil {
			err = fmt.Errorf("field %s: %w", k, err)
			return false
		}
		fields[k] = val
		return true
	})
	if err != nil {
		return nil, err
	}

	if metas := ev.Metas(); len(metas) > 0 {
		mv, err := toValue(metas)
		if err != nil {
			return nil, fmt.Errorf("metas: %w", err)
		}
		fields["@metas"] = mv
	}
	return &structpb.Struct{Fields: fields}, nil
}

func (p Protobuf) Encode(ev event.Event) ([]byte, error) {
	s, err := p.Struct(ev)
	if err != nil {
		return nil, err
	}
	if p.JSON {
		return protojson.Marshal(s)
	}
	return proto.Marshal(s)
}

func toValue(v any) (*structpb.Value, error) {
	switch val := v.(type) {
	case time.Time:
		return structpb.NewStringValue(val.UTC().Format(time.RFC3339Nano)), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, err
		}
		return structpb.NewNumberValue(f), nil
	case time.Duration:
		return structpb.NewStringValue(val.String()), nil
	case *event.Fields:
		return toValue(val.Map())
	case map[string]any:
		fields := make(map[string]*structpb.Value, len(val))
		for k, item := range val {
			iv, err := toValue(item)
			if err != nil {
				return nil, err
			}
			fields[k] = iv
		}
		return structpb.NewStructValue(&structpb.Struct{Fields: fields}), nil
	case []any:
		values := make([]*structpb.Value, len(val))
		for i, item := range val {
			iv, err := toValue(item)
			if err != nil {
				return nil, err
			}
			values[i] = iv
		}
		return structpb.NewListValue(&structpb.ListValue{Values: values}), nil
	case []string:
		values := make([]*structpb.Value, len(val))
		for i, item := range val {
			values[i] = structpb.NewStringValue(item)
		}
		return structpb.NewListValue(&structpb.ListValue{Values: values}), nil
	case fmt.Stringer:
		return structpb.NewStringValue(val.String()), nil
	default:
		return structpb.NewValue(val)
	}
}
