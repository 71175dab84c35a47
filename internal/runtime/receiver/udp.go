package receiver

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync"

	"github.com/drblury/logflow/internal/runtime/decoder"
	errspkg "github.com/drblury/logflow/internal/runtime/errors"
	"github.com/drblury/logflow/internal/runtime/event"
	"github.com/drblury/logflow/internal/runtime/logging"
)

// DefaultDatagramSize is the read buffer of a UDP receiver.
const DefaultDatagramSize = 65536

// UDPConfig configures a UDP receiver. Every datagram is one decoded unit.
type UDPConfig struct {
	Name       string
	Address    string
	Decoder    decoder.Decoder
	BufferSize int
}

// UDP receives datagrams on a single socket.
type UDP struct {
	name     string
	address  string
	decoder  decoder.Decoder
	size     int
	injector *Injector
	logger   logging.ServiceLogger

	mu   sync.Mutex
	conn *net.UDPConn
}

// NewUDP validates cfg. The socket is bound by Listen or Run.
func NewUDP(cfg UDPConfig, in *Injector) (*UDP, error) {
	if in == nil {
		return nil, errspkg.ErrPipelineRequired
	}
	if cfg.Decoder == nil {
		return nil, errspkg.ErrDecoderRequired
	}
	name := cfg.Name
	if name == "" {
		name = "udp"
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultDatagramSize
	}
	return &UDP{
		name:     name,
		address:  cfg.Address,
		decoder:  cfg.Decoder,
		size:     size,
		injector: in,
		logger:   in.logger.With(logging.LogFields{"receiver": name}),
	}, nil
}

func (u *UDP) Name() string { return u.name }

// Listen binds the socket if it is not bound yet.
func (u *UDP) Listen() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn != nil {
		return nil
	}
	addr, err := net.ResolveUDPAddr("udp", u.address)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	u.conn = conn
	return nil
}

// Addr returns the bound address, nil before Listen.
func (u *UDP) Addr() net.Addr {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

// Run reads datagrams until ctx is done.
func (u *UDP) Run(ctx context.Context) error {
	if err := u.Listen(); err != nil {
		return err
	}
	u.mu.Lock()
	conn := u.conn
	u.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var local netip.AddrPort
	if la, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		local = la.AddrPort()
	}
	u.logger.Info("UDP receiver listening", logging.LogFields{"address": conn.LocalAddr().String()})

	buf := make([]byte, u.size)
	for {
		n, remote, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			u.injector.stats.NewReceiverError(u.name, err)
			u.logger.Error("Failed to read datagram", err, nil)
			continue
		}
		data := append([]byte(nil), buf[:n]...)
		cc := event.NewIPContext(local, remote)
		_ = u.injector.Receive(ctx, cc, data, u.decoder)
	}
}
