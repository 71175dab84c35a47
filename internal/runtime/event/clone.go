package event

import (
	"encoding/json"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"time"
)

// cloneValue deep copies the value kinds an event may carry. Immutable values
// are shared, containers are copied recursively, anything else makes the
// whole duplication fail with ErrNotDuplicable.
func cloneValue(v any, path string) (any, error) {
	switch val := v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, complex64, complex128,
		time.Time, time.Duration, json.Number,
		netip.Addr, netip.AddrPort, netip.Prefix, NamedPrincipal:
		return val, nil
	case []byte:
		return slices.Clone(val), nil
	case net.IP:
		return slices.Clone(val), nil
	case []string:
		return slices.Clone(val), nil
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			c, err := cloneValue(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case map[string]any:
		return cloneMap(val, path)
	case *Fields:
		if val == nil {
			return val, nil
		}
		return val.clone()
	default:
		return nil, fmt.Errorf("%w: %s holds %T", ErrNotDuplicable, path, v)
	}
}

func cloneMap(m map[string]any, path string) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]any, len(m))
	for k, item := range m {
		p := k
		if path != "" {
			p = path + "." + k
		}
		c, err := cloneValue(item, p)
		if err != nil {
			return nil, err
		}
		out[k] = c
	}
	return out, nil
}
