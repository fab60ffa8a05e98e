// Package socket wraps net.UDPConn for the sender and receiver binaries:
// Listen/Dial construction, context-deadline-aware reads, and pooled receive
// buffers. Adapted from the teacher's internal/quantum/transport.Conn and
// transport.PacketPool, generalized from the teacher's GUID-framed packet
// struct to this protocol's plain byte-slice datagrams.
package socket

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/qrudp/qrudp/internal/protocol"
)

const (
	// DefaultReadBufferSize is the OS socket receive buffer size.
	DefaultReadBufferSize = 2 * 1024 * 1024

	// DefaultWriteBufferSize is the OS socket send buffer size.
	DefaultWriteBufferSize = 2 * 1024 * 1024
)

// Config tunes the underlying UDP socket.
type Config struct {
	ReadBufferSize  int
	WriteBufferSize int
}

// DefaultConfig returns the default socket configuration.
func DefaultConfig() *Config {
	return &Config{
		ReadBufferSize:  DefaultReadBufferSize,
		WriteBufferSize: DefaultWriteBufferSize,
	}
}

// Statistics holds cumulative counters for one Conn.
type Statistics struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
	Errors          uint64
}

// Conn is a UDP socket wrapper shared by both sender variants and the
// receiver.
type Conn struct {
	udpConn    *net.UDPConn
	localAddr  *net.UDPAddr
	remoteAddr *net.UDPAddr

	pool *BufferPool

	mu     sync.RWMutex
	closed bool
	stats  Statistics
}

// Listen opens a UDP socket bound to address, for the sender side, which
// learns its peer from the first datagram it receives.
func Listen(address string, config *Config) (*Conn, error) {
	if config == nil {
		config = DefaultConfig()
	}

	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("socket: resolve address: %w", err)
	}

	udpConn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("socket: listen: %w", err)
	}
	if err := tuneBuffers(udpConn, config); err != nil {
		udpConn.Close()
		return nil, err
	}

	return &Conn{
		udpConn:   udpConn,
		localAddr: udpConn.LocalAddr().(*net.UDPAddr),
		pool:      NewBufferPool(),
	}, nil
}

// Dial opens a UDP socket connected to address, for the receiver side.
func Dial(address string, config *Config) (*Conn, error) {
	if config == nil {
		config = DefaultConfig()
	}

	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("socket: resolve address: %w", err)
	}

	udpConn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("socket: dial: %w", err)
	}
	if err := tuneBuffers(udpConn, config); err != nil {
		udpConn.Close()
		return nil, err
	}

	return &Conn{
		udpConn:    udpConn,
		localAddr:  udpConn.LocalAddr().(*net.UDPAddr),
		remoteAddr: addr,
		pool:       NewBufferPool(),
	}, nil
}

func tuneBuffers(conn *net.UDPConn, config *Config) error {
	if err := conn.SetReadBuffer(config.ReadBufferSize); err != nil {
		return fmt.Errorf("socket: set read buffer: %w", err)
	}
	if err := conn.SetWriteBuffer(config.WriteBufferSize); err != nil {
		return fmt.Errorf("socket: set write buffer: %w", err)
	}
	return nil
}

// Send writes data to the connected remote address.
func (c *Conn) Send(data []byte) error {
	return c.SendTo(data, nil)
}

// SendTo writes data to addr, or to the connected remote address if addr is
// nil.
func (c *Conn) SendTo(data []byte, addr *net.UDPAddr) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return fmt.Errorf("socket: connection closed")
	}
	c.mu.RUnlock()

	var n int
	var err error
	switch {
	case addr != nil:
		n, err = c.udpConn.WriteToUDP(data, addr)
	case c.udpConn.RemoteAddr() != nil:
		// A dialed socket is already connected and rejects WriteTo.
		n, err = c.udpConn.Write(data)
	case c.remoteAddr != nil:
		n, err = c.udpConn.WriteToUDP(data, c.remoteAddr)
	default:
		return fmt.Errorf("socket: no remote address specified")
	}

	if err != nil {
		c.mu.Lock()
		c.stats.Errors++
		c.mu.Unlock()
		return fmt.Errorf("socket: send: %w", err)
	}

	c.mu.Lock()
	c.stats.PacketsSent++
	c.stats.BytesSent += uint64(n)
	c.mu.Unlock()
	return nil
}

// Datagram is one received UDP packet: a pooled buffer trimmed to length,
// and the sender's address. Callers must call Release when done with it.
type Datagram struct {
	Payload []byte
	Addr    *net.UDPAddr

	pool *BufferPool
	buf  []byte
}

// Release returns the datagram's backing buffer to the pool.
func (d *Datagram) Release() {
	if d.pool != nil {
		d.pool.Put(d.buf)
	}
}

// Receive blocks until a datagram arrives, ctx is done, or an error occurs.
// A deadline on ctx is applied to the underlying socket read.
func (c *Conn) Receive(ctx context.Context) (*Datagram, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, fmt.Errorf("socket: connection closed")
	}
	c.mu.RUnlock()

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.udpConn.SetReadDeadline(deadline); err != nil {
			return nil, fmt.Errorf("socket: set read deadline: %w", err)
		}
	} else {
		c.udpConn.SetReadDeadline(time.Time{})
	}

	buf := c.pool.Get()
	n, addr, err := c.udpConn.ReadFromUDP(buf)
	if err != nil {
		c.pool.Put(buf)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			c.mu.Lock()
			c.stats.Errors++
			c.mu.Unlock()
			return nil, fmt.Errorf("socket: receive: %w", err)
		}
	}

	c.mu.Lock()
	c.stats.PacketsReceived++
	c.stats.BytesReceived += uint64(n)
	c.mu.Unlock()

	return &Datagram{
		Payload: buf[:n],
		Addr:    addr,
		pool:    c.pool,
		buf:     buf,
	}, nil
}

// LocalAddr returns the socket's local address.
func (c *Conn) LocalAddr() *net.UDPAddr { return c.localAddr }

// RemoteAddr returns the socket's connected remote address, if any.
func (c *Conn) RemoteAddr() *net.UDPAddr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remoteAddr
}

// SetRemoteAddr fixes the remote address used by Send on a listening socket,
// once the sender has learned its peer from an incoming handshake.
func (c *Conn) SetRemoteAddr(addr *net.UDPAddr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remoteAddr = addr
}

// Statistics returns a snapshot of cumulative send/receive counters.
func (c *Conn) Statistics() Statistics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.udpConn.Close()
}

// BufferPool recycles fixed-size receive buffers sized to the protocol's
// maximum datagram (header + payload), to keep the receive loop's steady
// state allocation-free.
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool creates a buffer pool sized to protocol.MTU.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				return make([]byte, protocol.MTU)
			},
		},
	}
}

// Get returns a full-capacity buffer from the pool.
func (p *BufferPool) Get() []byte {
	return p.pool.Get().([]byte)[:protocol.MTU]
}

// Put returns buf to the pool if it is of the expected capacity.
func (p *BufferPool) Put(buf []byte) {
	if cap(buf) != protocol.MTU {
		return
	}
	p.pool.Put(buf[:protocol.MTU])
}
