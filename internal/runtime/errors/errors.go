package errors

import sterrors "errors"

var (
	ErrServiceRequired      = sterrors.New("logflow: event service is required")
	ErrServiceStarted       = sterrors.New("logflow: service already started")
	ErrConfigRequired       = sterrors.New("logflow: config is required")
	ErrLoggerRequired       = sterrors.New("logflow: logger is required")
	ErrStatsRequired        = sterrors.New("logflow: stats are required")
	ErrPipelineRequired     = sterrors.New("logflow: pipeline is required")
	ErrPipelineNameRequired = sterrors.New("logflow: pipeline name is required")
	ErrDuplicatePipeline    = sterrors.New("logflow: pipeline already registered")
	ErrUnknownPipeline      = sterrors.New("logflow: unknown pipeline")
	ErrQueueRequired        = sterrors.New("logflow: queue is required")
	ErrEncoderRequired      = sterrors.New("logflow: encoder is required")
	ErrDecoderRequired      = sterrors.New("logflow: decoder is required")
	ErrTransmitterRequired  = sterrors.New("logflow: transmitter is required")
	ErrPublisherRequired    = sterrors.New("logflow: publisher is required")
	ErrSubscriberRequired   = sterrors.New("logflow: subscriber is required")
	ErrTopicRequired        = sterrors.New("logflow: topic is required")
	ErrMessageTooLarge      = sterrors.New("logflow: encoded event exceeds transport message size")
)

// ConfigValidationError reports a configuration rejected by Config.Validate.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "logflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// NewConfigValidationError wraps err, returning nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
