package event

import "slices"

// Pipeline is an immutable, named list of processors with an optional
// continuation. Pipelines are shared by every goroutine running them.
type Pipeline struct {
	name       string
	processors []Processor
	next       string
}

// NewPipeline creates a pipeline. An empty name makes it transparent to
// timing: its steps run as if inlined in the enclosing pipeline.
func NewPipeline(name string, processors ...Processor) *Pipeline {
	return &Pipeline{name: name, processors: slices.Clone(processors)}
}

// ContinueWith returns a copy of p continuing into the pipeline named next.
func (p *Pipeline) ContinueWith(next string) *Pipeline {
	c := *p
	c.next = next
	return &c
}

func (p *Pipeline) Name() string { return p.name }

func (p *Pipeline) NextPipeline() string { return p.next }

// Processors returns a copy of the blueprint steps.
func (p *Pipeline) Processors() []Processor { return slices.Clone(p.processors) }

// Flatten returns the executable chain of p: sub-pipelines are expanded and
// named pipelines are bracketed by the enter and exit markers.
func (p *Pipeline) Flatten() []Processor {
	steps := flattenPipeline(nil, p, "")
	out := make([]Processor, len(steps))
	for i, s := range steps {
		out[i] = s.proc
	}
	return out
}
