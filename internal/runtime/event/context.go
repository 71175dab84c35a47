package event

import (
	"net/netip"
	"sync/atomic"
)

// Principal is the identity of the peer an event came from.
type Principal interface {
	Name() string
}

// NamedPrincipal is a Principal identified by its name only.
type NamedPrincipal string

func (p NamedPrincipal) Name() string { return string(p) }

// Anonymous is the principal of unauthenticated peers.
const Anonymous NamedPrincipal = ""

// ConnectionContext carries the transport origin of an event and the hook
// that lets the transport release its resources once the event is done.
// Acknowledge is called once per event, at end of life.
type ConnectionContext interface {
	Principal() Principal
	Acknowledge()
}

// AddressedContext is a ConnectionContext exposing endpoints of type A.
type AddressedContext[A any] interface {
	ConnectionContext
	LocalAddress() A
	RemoteAddress() A
}

// ContextAs returns the connection context of ev when it is addressed with A.
func ContextAs[A any](ev Event) (AddressedContext[A], bool) {
	ac, ok := ev.ConnectionContext().(AddressedContext[A])
	return ac, ok
}

// EmptyContext is the context of events created in process.
type EmptyContext struct{}

func (EmptyContext) Principal() Principal { return Anonymous }
func (EmptyContext) Acknowledge()         {}
func (EmptyContext) LocalAddress() any    { return nil }
func (EmptyContext) RemoteAddress() any   { return nil }

// IPContext is the context of datagram and stream receivers.
type IPContext struct {
	local, remote netip.AddrPort
	principal     Principal
	onAck         func()
	acks          atomic.Int32
}

// IPOption customises an IPContext.
type IPOption func(*IPContext)

// WithPrincipal sets the authenticated peer.
func WithPrincipal(p Principal) IPOption {
	return func(c *IPContext) { c.principal = p }
}

// OnAcknowledge registers fn to run when the event is acknowledged.
func OnAcknowledge(fn func()) IPOption {
	return func(c *IPContext) { c.onAck = fn }
}

// NewIPContext creates a context for a connection between local and remote.
func NewIPContext(local, remote netip.AddrPort, opts ...IPOption) *IPContext {
	c := &IPContext{local: local, remote: remote, principal: Anonymous}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *IPContext) LocalAddress() netip.AddrPort  { return c.local }
func (c *IPContext) RemoteAddress() netip.AddrPort { return c.remote }
func (c *IPContext) Principal() Principal          { return c.principal }

// Acknowledge runs the registered hook.
func (c *IPContext) Acknowledge() {
	c.acks.Add(1)
	if c.onAck != nil {
		c.onAck()
	}
}

// Acknowledged returns how many times Acknowledge ran.
func (c *IPContext) Acknowledged() int { return int(c.acks.Load()) }

// ackHandle shares one connection context between an event and its
// duplicates. The context is acknowledged when the last holder releases it.
type ackHandle struct {
	ctx  ConnectionContext
	refs atomic.Int32
}

func newAckHandle(ctx ConnectionContext) *ackHandle {
	h := &ackHandle{ctx: ctx}
	h.refs.Store(1)
	return h
}

func (h *ackHandle) retain() { h.refs.Add(1) }

func (h *ackHandle) release() {
	if h.refs.Add(-1) == 0 {
		h.ctx.Acknowledge()
	}
}
