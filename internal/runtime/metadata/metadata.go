// Package metadata converts event metas into the string headers carried by
// broker messages and back.
package metadata

import (
	"fmt"
	"time"
)

// Metadata represents the headers carried alongside an encoded event.
type Metadata map[string]string

func (m Metadata) cloneWithExtra(extra int) Metadata {
	size := len(m) + extra
	if size <= 0 {
		return Metadata{}
	}

	cloned := make(Metadata, size)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// With returns a cloned metadata map containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// New constructs a Metadata map from alternating key/value pairs.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}

// FromMetas renders event metas as headers. Nil values are skipped, times use
// RFC 3339 with nanoseconds, everything else goes through fmt.
func FromMetas(metas map[string]any) Metadata {
	md := make(Metadata, len(metas))
	for k, v := range metas {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			md[k] = val
		case time.Time:
			md[k] = val.Format(time.RFC3339Nano)
		case fmt.Stringer:
			md[k] = val.String()
		default:
			md[k] = fmt.Sprint(val)
		}
	}
	return md
}

// ToMetas exposes headers as event metas.
func (m Metadata) ToMetas() map[string]any {
	metas := make(map[string]any, len(m))
	for k, v := range m {
		metas[k] = v
	}
	return metas
}
