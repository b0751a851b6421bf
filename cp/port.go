package cp

import (
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// Port is the byte stream between the host and the bridge.
//
// Read follows go.bug.st/serial: it blocks for at most the configured read
// timeout and returns (0, nil) when nothing arrived.
type Port interface {
	io.ReadWriter
	SetReadTimeout(t time.Duration) error
}

// portReader buffers a Port and reports timeouts as ErrTimeout.
type portReader struct {
	port Port
	buf  []byte
	r, w int
}

var _ io.ByteReader = (*portReader)(nil)

func newPortReader(p Port) *portReader {
	return &portReader{port: p, buf: make([]byte, 256)}
}

func (pr *portReader) ReadByte() (byte, error) {
	if pr.r == pr.w {
		n, err := pr.port.Read(pr.buf)
		if err != nil {
			if isTimeout(err) {
				return 0, ErrTimeout
			}

			return 0, err
		}
		if n == 0 {
			return 0, ErrTimeout
		}
		pr.r, pr.w = 0, n
	}

	b := pr.buf[pr.r]
	pr.r++

	return b, nil
}

// discard drops buffered input and returns how many bytes were dropped.
func (pr *portReader) discard() int {
	n := pr.w - pr.r
	pr.r, pr.w = 0, 0

	return n
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}

// ConnPort adapts a net.Conn (a TCP serial bridge, or net.Pipe in tests) to Port.
type ConnPort struct {
	conn        net.Conn
	readTimeout time.Duration
}

var _ Port = (*ConnPort)(nil)

// NewConnPort wraps conn. A zero readTimeout makes reads block indefinitely.
func NewConnPort(conn net.Conn, readTimeout time.Duration) *ConnPort {
	return &ConnPort{conn: conn, readTimeout: readTimeout}
}

// Read reads from the connection, returning (0, nil) on a read timeout.
func (p *ConnPort) Read(b []byte) (int, error) {
	deadline := time.Time{}
	if p.readTimeout > 0 {
		deadline = time.Now().Add(p.readTimeout)
	}
	if err := p.conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}

	n, err := p.conn.Read(b)
	if err != nil && isTimeout(err) {
		return n, nil
	}

	return n, err
}

// Write writes b to the connection.
func (p *ConnPort) Write(b []byte) (int, error) {
	return p.conn.Write(b)
}

// SetReadTimeout sets the timeout applied to each subsequent Read.
func (p *ConnPort) SetReadTimeout(t time.Duration) error {
	p.readTimeout = t
	return nil
}

// Close closes the underlying connection.
func (p *ConnPort) Close() error {
	return p.conn.Close()
}
