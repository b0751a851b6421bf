package cp

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/arloliu/go-mdb/logger"
	"github.com/stretchr/testify/assert"
)

// byteSource serves a fixed byte slice and then reports ErrTimeout.
type byteSource struct {
	data []byte
	pos  int
}

func newByteSource(chunks ...[]byte) *byteSource {
	src := &byteSource{}
	for _, c := range chunks {
		src.data = append(src.data, c...)
	}

	return src
}

func (s *byteSource) ReadByte() (byte, error) {
	if s.pos >= len(s.data) {
		return 0, ErrTimeout
	}
	b := s.data[s.pos]
	s.pos++

	return b, nil
}

// newTestConfig creates a Config with short timeouts and no write settling.
func newTestConfig(t *testing.T, opts ...Option) *Config {
	t.Helper()

	defaults := []Option{
		WithReadTimeout(100 * time.Millisecond),
		WithPostWriteDelay(0),
		WithRetryBackoff(0),
		WithPollInterval(0),
		WithLogger(logger.GetLogger()),
	}

	cfg, err := NewConfig(append(defaults, opts...)...)
	if err != nil {
		t.Fatalf("newTestConfig: %v", err)
	}

	return cfg
}

// newTestDriver creates a Driver on the local end of net.Pipe and returns the
// remote end for the test to play the bridge.
func newTestDriver(t *testing.T, cfg *Config) (*Driver, net.Conn) {
	t.Helper()

	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	d, err := NewDriver(NewConnPort(local, 0), cfg)
	if err != nil {
		t.Fatalf("newTestDriver: %v", err)
	}

	return d, remote
}

// readExactly reads exactly n bytes from r.
func readExactly(t *testing.T, r io.Reader, n int) []byte {
	t.Helper()

	buf := make([]byte, n)
	_, err := io.ReadFull(r, buf)
	assert.NoError(t, err)

	return buf
}

// readOneByte reads exactly 1 byte from r.
func readOneByte(t *testing.T, r io.Reader) byte {
	t.Helper()

	return readExactly(t, r, 1)[0]
}

// readFrame reads the wire form of a frame with the given code and payload
// and returns it.
func readFrame(t *testing.T, r io.Reader, code ControlCode, payload []byte) []byte {
	t.Helper()

	return readExactly(t, r, len(Encode(code, payload)))
}

// mustWrite writes data to w.
func mustWrite(t *testing.T, w io.Writer, data []byte) {
	t.Helper()

	_, err := w.Write(data)
	assert.NoError(t, err)
}

// waitDone waits for the remote side goroutine to finish.
func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("remote side did not finish")
	}
}
