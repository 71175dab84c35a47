package event

// Processor is one step of a pipeline. Returning false stops the processing
// of the event; returning an error aborts its chain.
type Processor interface {
	Process(ev Event) (bool, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ev Event) (bool, error)

func (f ProcessorFunc) Process(ev Event) (bool, error) { return f(ev) }

// PathProcessor is a processor operating on a nested map of the payload.
// The event it receives resolves keys below Path.
type PathProcessor interface {
	Processor
	Path() []string
}

type enterMarker struct{}

// Process pauses the running pipeline timer and starts the timer of the
// pipeline being entered.
func (enterMarker) Process(ev Event) (bool, error) {
	ev.Instance().enterPipeline()
	return true, nil
}

func (enterMarker) String() string { return "pipeline enter" }

type exitMarker struct{}

// Process closes the timer of the pipeline being left and resumes the
// enclosing one. An empty timer stack means the chain was built wrong.
func (exitMarker) Process(ev Event) (bool, error) {
	if err := ev.Instance().exitPipeline(); err != nil {
		return false, err
	}
	return true, nil
}

func (exitMarker) String() string { return "pipeline exit" }

// Singleton markers bracketing the flattened chain of every named pipeline.
var (
	EnterMarker Processor = enterMarker{}
	ExitMarker  Processor = exitMarker{}
)

// SubPipeline references another pipeline from a pipeline's steps. It is
// replaced by that pipeline's steps when the chain is built.
type SubPipeline struct {
	pipeline *Pipeline
}

// Sub wraps p so it can be used as a step.
func Sub(p *Pipeline) SubPipeline { return SubPipeline{pipeline: p} }

func (s SubPipeline) Pipeline() *Pipeline { return s.pipeline }

func (s SubPipeline) Process(Event) (bool, error) { return false, ErrUnflattened }

// step is one entry of the instruction stream. pipeline is the name of the
// innermost named pipeline the step was expanded from.
type step struct {
	proc     Processor
	pipeline string
}

func flattenProcessor(out []step, p Processor, label string) []step {
	if sp, ok := p.(SubPipeline); ok {
		return flattenPipeline(out, sp.pipeline, label)
	}
	return append(out, step{proc: p, pipeline: label})
}

func flattenPipeline(out []step, p *Pipeline, label string) []step {
	if p == nil {
		return out
	}
	named := p.name != ""
	if named {
		label = p.name
		out = append(out, step{proc: EnterMarker, pipeline: label})
	}
	for _, proc := range p.processors {
		out = flattenProcessor(out, proc, label)
	}
	if named {
		out = append(out, step{proc: ExitMarker, pipeline: label})
	}
	return out
}
