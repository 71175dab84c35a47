package logflow

import (
	runtimepkg "github.com/drblury/logflow/internal/runtime"
	configpkg "github.com/drblury/logflow/internal/runtime/config"
	decoderpkg "github.com/drblury/logflow/internal/runtime/decoder"
	encoderpkg "github.com/drblury/logflow/internal/runtime/encoder"
	errspkg "github.com/drblury/logflow/internal/runtime/errors"
	eventpkg "github.com/drblury/logflow/internal/runtime/event"
	idspkg "github.com/drblury/logflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/logflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/logflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/logflow/internal/runtime/metadata"
	processorspkg "github.com/drblury/logflow/internal/runtime/processors"
	receiverpkg "github.com/drblury/logflow/internal/runtime/receiver"
	senderpkg "github.com/drblury/logflow/internal/runtime/sender"
	statspkg "github.com/drblury/logflow/internal/runtime/stats"
	transportpkg "github.com/drblury/logflow/internal/runtime/transport"
	brokers "github.com/drblury/logflow/transport"
)

type (
	Config               = configpkg.Config
	Service              = runtimepkg.Service
	ServiceDependencies  = runtimepkg.ServiceDependencies
	PipelineInfo         = runtimepkg.PipelineInfo
	Transport            = transportpkg.Transport
	TransportFactory     = transportpkg.Factory
	TransportFactoryFunc = transportpkg.FactoryFunc
	Capabilities         = brokers.Capabilities

	Event             = eventpkg.Event
	Instance          = eventpkg.Instance
	EventOption       = eventpkg.Option
	Fields            = eventpkg.Fields
	Pipeline          = eventpkg.Pipeline
	SubPipeline       = eventpkg.SubPipeline
	Processor         = eventpkg.Processor
	ProcessorFunc     = eventpkg.ProcessorFunc
	PathProcessor     = eventpkg.PathProcessor
	ProcessingError   = eventpkg.ProcessingError
	Queue             = eventpkg.Queue
	ConnectionContext = eventpkg.ConnectionContext
	EmptyContext      = eventpkg.EmptyContext
	IPContext         = eventpkg.IPContext
	IPOption          = eventpkg.IPOption
	Principal         = eventpkg.Principal
	NamedPrincipal    = eventpkg.NamedPrincipal

	Stats          = statspkg.Stats
	Snapshot       = statspkg.Snapshot
	Record         = statspkg.Record
	PipelineTiming = statspkg.PipelineTiming

	Encoder            = encoderpkg.Encoder
	EncoderFunc        = encoderpkg.Func
	GELFEncoder        = encoderpkg.GELF
	GELFOption         = encoderpkg.GELFOption
	JSONEncoder        = encoderpkg.JSON
	CloudEventsEncoder = encoderpkg.CloudEvents
	ProtobufEncoder    = encoderpkg.Protobuf

	Decoder       = decoderpkg.Decoder
	DecoderFunc   = decoderpkg.Func
	DecodeError   = decoderpkg.DecodeError
	JSONDecoder   = decoderpkg.JSON
	StringDecoder = decoderpkg.String

	Sender               = senderpkg.Sender
	SenderConfig         = senderpkg.Config
	Transmitter          = senderpkg.Transmitter
	TransmitterFunc      = senderpkg.TransmitterFunc
	WriterTransmitter    = senderpkg.Writer
	MemoryTransmitter    = senderpkg.Memory
	PublisherTransmitter = senderpkg.Publisher
	RetryConfig          = senderpkg.RetryConfig

	Receiver           = receiverpkg.Receiver
	Injector           = receiverpkg.Injector
	UDPConfig          = receiverpkg.UDPConfig
	UDPReceiver        = receiverpkg.UDP
	SubscriberReceiver = receiverpkg.Subscriber
	MessageContext     = receiverpkg.MessageContext

	SetField    = processorspkg.Set
	RemoveField = processorspkg.Remove
	RenameField = processorspkg.Rename
	Filter      = processorspkg.Filter
	FailEvent   = processorspkg.Fail
	TagMeta     = processorspkg.Tag

	Metadata = metadatapkg.Metadata

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	ConfigValidationError = errspkg.ConfigValidationError

	// Event lifecycle hooks
	EventHooks   = runtimepkg.EventHooks
	EventContext = runtimepkg.EventContext
)

// MainQueueName is the name of the queue pipeline workers take events from.
const MainQueueName = runtimepkg.MainQueueName

var (
	NewService     = runtimepkg.NewService
	TryNewService  = runtimepkg.TryNewService
	ValidateConfig = configpkg.ValidateConfig
	LoadConfig     = configpkg.Load
	LoadConfigFile = configpkg.LoadFile

	NewPipeline        = eventpkg.NewPipeline
	Sub                = eventpkg.Sub
	NewEvent           = eventpkg.New
	NewQueue           = eventpkg.NewQueue
	NewFields          = eventpkg.NewFields
	NewIPContext       = eventpkg.NewIPContext
	WithPrincipal      = eventpkg.WithPrincipal
	OnAcknowledge      = eventpkg.OnAcknowledge
	AsTest             = eventpkg.AsTest
	WithStats          = eventpkg.WithStats
	WithLogger         = eventpkg.WithLogger
	WithTimestamp      = eventpkg.WithTimestamp
	NewProcessingError = eventpkg.NewProcessingError

	Require     = processorspkg.Require
	ProcessFunc = processorspkg.Func
	Under       = processorspkg.Under

	NewStats = statspkg.New

	NewGELFEncoder   = encoderpkg.NewGELF
	WithGELFHost     = encoderpkg.WithHost
	WithShortMessage = encoderpkg.WithShortMessageField
	WithFullMessage  = encoderpkg.WithFullMessageField
	CompressedGELF   = encoderpkg.Compressed
	StreamGELF       = encoderpkg.Stream

	NewSender               = senderpkg.New
	NewWriterTransmitter    = senderpkg.NewWriter
	NewPublisherTransmitter = senderpkg.NewPublisher
	WithRetry               = senderpkg.WithRetry
	WithMaxMessageSize      = senderpkg.WithMaxMessageSize
	WithPublisherLogger     = senderpkg.WithPublisherLogger

	LoggingHooks  = runtimepkg.LoggingHooks
	MetricsHooks  = runtimepkg.MetricsHooks
	AlertingHooks = runtimepkg.AlertingHooks

	DefaultTransportFactory           = transportpkg.DefaultFactory
	RegistryTransportFactory          = transportpkg.RegistryFactory
	RegisterTransport                 = brokers.Register
	RegisterTransportWithCapabilities = brokers.RegisterWithCapabilities
	GetCapabilities                   = brokers.GetCapabilities

	Marshal         = jsoncodec.Marshal
	MarshalToString = jsoncodec.MarshalToString
	MarshalIndent   = jsoncodec.MarshalIndent
	Unmarshal       = jsoncodec.Unmarshal

	ErrServiceRequired      = errspkg.ErrServiceRequired
	ErrServiceStarted       = errspkg.ErrServiceStarted
	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrLoggerRequired       = errspkg.ErrLoggerRequired
	ErrPipelineRequired     = errspkg.ErrPipelineRequired
	ErrPipelineNameRequired = errspkg.ErrPipelineNameRequired
	ErrDuplicatePipeline    = errspkg.ErrDuplicatePipeline
	ErrUnknownPipeline      = errspkg.ErrUnknownPipeline
	ErrEncoderRequired      = errspkg.ErrEncoderRequired
	ErrDecoderRequired      = errspkg.ErrDecoderRequired
	ErrTransmitterRequired  = errspkg.ErrTransmitterRequired
	ErrPublisherRequired    = errspkg.ErrPublisherRequired
	ErrSubscriberRequired   = errspkg.ErrSubscriberRequired
	ErrTopicRequired        = errspkg.ErrTopicRequired
	ErrMessageTooLarge      = errspkg.ErrMessageTooLarge
	ErrUnknownTransport     = brokers.ErrUnknownTransport

	ErrQueueFull     = eventpkg.ErrQueueFull
	ErrNotDuplicable = eventpkg.ErrNotDuplicable
	ErrTestEvent     = eventpkg.ErrTestEvent
	ErrNotTestEvent  = eventpkg.ErrNotTestEvent

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewNopLogger              = loggingpkg.NewNopLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	ParseLogLevel             = loggingpkg.ParseLevel

	NewMetadata = metadatapkg.New

	CreateULID = idspkg.CreateULID
)

// ContextAs returns the connection context of ev when its addresses are of type A.
func ContextAs[A any](ev Event) (eventpkg.AddressedContext[A], bool) {
	return eventpkg.ContextAs[A](ev)
}

func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}

// NewMemoryTransmitter returns a transmitter keeping everything it is given,
// for tests and debugging.
func NewMemoryTransmitter() *MemoryTransmitter {
	return &senderpkg.Memory{}
}
