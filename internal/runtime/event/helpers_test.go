package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// recorder appends its name to a shared log when run.
type recorder struct {
	name string
	log  *[]string
}

func (r recorder) Process(Event) (bool, error) {
	*r.log = append(*r.log, r.name)
	return true, nil
}

func drain(t *testing.T, ev *Instance) {
	t.Helper()
	for p := ev.Next(); p != nil; p = ev.Next() {
		ok, err := ev.Process(p)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func names(procs []Processor) []string {
	out := make([]string, len(procs))
	for i, p := range procs {
		switch p {
		case EnterMarker:
			out[i] = "enter"
		case ExitMarker:
			out[i] = "exit"
		default:
			if r, ok := p.(recorder); ok {
				out[i] = r.name
			} else {
				out[i] = "?"
			}
		}
	}
	return out
}
