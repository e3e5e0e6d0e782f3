// Package transport manages TCP connections carrying the length-prefixed
// frame protocol: 4-byte big-endian length followed by the payload. The bus
// and the client exchange sealed envelopes as opaque frame payloads.
package transport

import (
	"bufio"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MKWorldWide/divinebus/errs"
)

// Conn wraps a TCP connection with the frame protocol. Reads are
// exact-length: a partial frame is a protocol violation, never a partial
// success. Writes are serialized by a per-connection mutex so frames from
// concurrent writers cannot interleave.
type Conn struct {
	nc      net.Conn
	bw      *bufio.Writer
	writeMu sync.Mutex
	closed  atomic.Bool
}

func newConn(nc net.Conn) *Conn {
	return &Conn{nc: nc, bw: bufio.NewWriter(nc)}
}

// Dial connects to addr over TCP.
func Dial(addr string) (*Conn, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return newConn(nc), nil
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// ReadFrame reads one frame. The 4-byte length prefix is read under
// idleTimeout; timing out there, or the peer closing cleanly, maps to
// errs.ErrConnIdle — the normal end of an idle connection. An oversized
// length maps to errs.ErrFrameTooLarge. The body is read under bodyTimeout;
// a timeout or short read there maps to errs.ErrTruncatedFrame. A zero
// timeout disables the corresponding deadline.
func (c *Conn) ReadFrame(maxSize uint32, idleTimeout, bodyTimeout time.Duration) ([]byte, error) {
	if c.closed.Load() {
		return nil, errs.ErrClosed
	}
	if err := c.setReadDeadline(idleTimeout); err != nil {
		return nil, err
	}
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(c.nc, header); err != nil {
		if isIdle(err) {
			return nil, errs.ErrConnIdle
		}
		return nil, err
	}
	length := byteOrder.Uint32(header)
	if length > maxSize {
		return nil, errs.ErrFrameTooLarge
	}
	if err := c.setReadDeadline(bodyTimeout); err != nil {
		return nil, err
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(c.nc, payload); err != nil {
		return nil, errs.ErrReadBody(err)
	}
	return payload, nil
}

// WriteFrame writes one frame and flushes. It does not return until the OS
// buffer has accepted all bytes; partial writes are not acceptable framing.
func (c *Conn) WriteFrame(payload []byte, maxSize uint32) error {
	if c.closed.Load() {
		return errs.ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return EncodeFrame(c.bw, payload, maxSize)
}

// Close closes the underlying connection. Further reads and writes return
// errs.ErrClosed.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.nc.Close()
}

func (c *Conn) setReadDeadline(timeout time.Duration) error {
	if timeout <= 0 {
		return c.nc.SetReadDeadline(time.Time{})
	}
	return c.nc.SetReadDeadline(time.Now().Add(timeout))
}

// isIdle reports whether a length-prefix read error means the connection
// ended between frames: clean EOF, a close mid-prefix, a read deadline, or
// the socket being closed underneath us.
func isIdle(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Listener accepts framed connections.
type Listener struct {
	ln net.Listener
}

// Listen binds a TCP listener on addr.
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln}, nil
}

// Accept waits for the next connection.
func (l *Listener) Accept() (*Conn, error) {
	nc, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return newConn(nc), nil
}

// Addr returns the bound address (useful with port 0 in tests).
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close closes the listener; blocked Accept calls return net.ErrClosed.
func (l *Listener) Close() error { return l.ln.Close() }
