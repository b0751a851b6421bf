package cashlessintegration

import (
	"bufio"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-mdb/cashless"
	"github.com/arloliu/go-mdb/cp"
	"github.com/arloliu/go-mdb/logger"
	"github.com/arloliu/go-mdb/mdb"
)

const (
	eventTimeout = 2 * time.Second
	// flushWindow is how long to wait for a queued reply after an ACK.
	flushWindow = 200 * time.Millisecond
)

// bridge plays the CP bridge on the remote end of net.Pipe. It ACKs every
// frame from the reader, like the real bridge does.
type bridge struct {
	conn   net.Conn
	acks   chan struct{}
	frames chan *cp.Frame
	outbox chan []byte
}

func newBridge(t *testing.T, conn net.Conn) *bridge {
	t.Helper()

	b := &bridge{
		conn:   conn,
		acks:   make(chan struct{}, 64),
		frames: make(chan *cp.Frame, 64),
		outbox: make(chan []byte, 64),
	}

	go b.readLoop()
	go b.writeLoop()

	return b
}

func (b *bridge) readLoop() {
	dec := cp.NewDecoder(bufio.NewReader(b.conn), func(byte) { b.acks <- struct{}{} })

	for {
		frame, err := dec.ReadFrame()
		if err != nil && !errors.Is(err, cp.ErrDecode) {
			close(b.frames)
			return
		}
		if frame == nil {
			continue
		}

		b.outbox <- []byte{cp.ACK}
		b.frames <- frame
	}
}

func (b *bridge) writeLoop() {
	for data := range b.outbox {
		if _, err := b.conn.Write(data); err != nil {
			return
		}
	}
}

func (b *bridge) send(code cp.ControlCode, payload []byte) {
	b.outbox <- cp.Encode(code, payload)
}

func (b *bridge) expectAck(t *testing.T) {
	t.Helper()

	select {
	case <-b.acks:
	case <-time.After(eventTimeout):
		t.Fatal("no ACK from the reader")
	}
}

func (b *bridge) expectFrame(t *testing.T) *cp.Frame {
	t.Helper()

	select {
	case f, ok := <-b.frames:
		require.True(t, ok, "reader connection closed")
		return f
	case <-time.After(eventTimeout):
		t.Fatal("no frame from the reader")
		return nil
	}
}

// command sends a VMC command and returns the reply the reader flushed
// after its ACK, or nil if it had nothing queued.
func (b *bridge) command(t *testing.T, payload []byte) []byte {
	t.Helper()

	b.send(cp.Data, payload)
	b.expectAck(t)

	select {
	case f, ok := <-b.frames:
		require.True(t, ok, "reader connection closed")
		require.Equal(t, cp.Data, f.Code)
		if f.Payload == nil {
			return []byte{}
		}

		return f.Payload
	case <-time.After(flushWindow):
		return nil
	}
}

// pollFor polls until the reader flushes a reply starting with want.
func (b *bridge) pollFor(t *testing.T, want mdb.ReaderReply) []byte {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if reply := b.command(t, mdb.PollCmd()); len(reply) > 0 && reply[0] == byte(want) {
			return reply
		}
	}
	t.Fatalf("reader never answered %s", want)

	return nil
}

// expectAnnounce checks the bus mode and address setup done by Run.
func (b *bridge) expectAnnounce(t *testing.T) {
	t.Helper()

	b.expectAck(t)
	f := b.expectFrame(t)
	require.Equal(t, cp.MDBMode, f.Code)
	require.Equal(t, []byte{byte(cp.ModeSlave)}, f.Payload)

	b.expectAck(t)
	f = b.expectFrame(t)
	require.Equal(t, cp.AddressRegister, f.Code)
	require.Equal(t, []byte{cashless.DefaultDeviceAddress}, f.Payload)
}

type rig struct {
	device *cashless.Device
	driver *cp.Driver
	bridge *bridge
	done   chan error
}

// startRig runs a reader against auth and waits until it has announced itself.
func startRig(t *testing.T, auth cashless.Authorizer, opts ...cashless.Option) *rig {
	t.Helper()

	local, remote := net.Pipe()
	l := logger.NewMockLogger().AllowAll()

	cpCfg, err := cp.NewConfig(
		cp.WithReadTimeout(20*time.Millisecond),
		cp.WithPostWriteDelay(0),
		cp.WithLogger(l),
	)
	require.NoError(t, err)
	drv, err := cp.NewDriver(cp.NewConnPort(local, 0), cpCfg)
	require.NoError(t, err)

	cfg, err := cashless.NewConfig(append([]cashless.Option{cashless.WithLogger(l)}, opts...)...)
	require.NoError(t, err)
	dev, err := cashless.NewDevice(drv, auth, cfg)
	require.NoError(t, err)

	r := &rig{device: dev, driver: drv, bridge: newBridge(t, remote), done: make(chan error, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { r.done <- dev.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-r.done:
		case <-time.After(eventTimeout):
			t.Error("device did not stop")
		}
		_ = dev.Close()
		_ = local.Close()
		_ = remote.Close()
	})

	r.bridge.expectAnnounce(t)

	return r
}
