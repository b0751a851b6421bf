package cp

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-mdb/internal/pool"
	"github.com/arloliu/go-mdb/internal/queue"
	"github.com/arloliu/go-mdb/internal/syncutil"
	"github.com/arloliu/go-mdb/logger"
	"github.com/arloliu/go-mdb/mdb"
	"github.com/arloliu/go-mdb/trace"
)

const traceSource = "cp"

// Driver owns the byte stream to the bridge. It runs the decoder, answers
// every inbound frame with ACK and, in peripheral mode, transmits queued
// frames in the turn that follows an inbound DATA frame.
//
// Reads and sends are meant to be issued from a single goroutine. Enqueue,
// ClearQueue, Pending, Shutdown and Metrics may be called from any goroutine.
type Driver struct {
	port   Port
	reader *portReader
	dec    *Decoder
	cfg    *Config
	logger logger.Logger
	tracer trace.Observer

	writeMu syncutil.Mutex
	queueMu syncutil.Mutex
	queue   queue.Queue[Message]

	shutdown atomic.Bool
	status   atomic.Pointer[BridgeStatus]
	metrics  DriverMetrics
}

// NewDriver creates a driver on port. A nil cfg uses the defaults of NewConfig.
func NewDriver(port Port, cfg *Config) (*Driver, error) {
	if port == nil {
		return nil, errors.New("cp: port must not be nil")
	}

	if cfg == nil {
		var err error
		if cfg, err = NewConfig(); err != nil {
			return nil, err
		}
	}

	if err := port.SetReadTimeout(cfg.readTimeout); err != nil {
		return nil, fmt.Errorf("cp: set read timeout: %w", err)
	}

	d := &Driver{
		port:   port,
		reader: newPortReader(port),
		cfg:    cfg,
		logger: cfg.logger,
		tracer: cfg.tracer,
		queue:  queue.NewSliceQueue[Message](DefaultQueueSize),
	}
	d.dec = NewDecoder(d.reader, d.onStatusByte)

	return d, nil
}

// Config returns the driver configuration.
func (d *Driver) Config() *Config { return d.cfg }

// Metrics returns the driver counters.
func (d *Driver) Metrics() *DriverMetrics { return &d.metrics }

// Shutdown asks every running and future retry loop to stop.
func (d *Driver) Shutdown() {
	if d.shutdown.CompareAndSwap(false, true) {
		d.logger.Debug("cp: shutdown requested")
	}
}

// ShutdownRequested reports whether Shutdown has been called.
func (d *Driver) ShutdownRequested() bool { return d.shutdown.Load() }

// LastStatus returns the most recent STATUSINFO seen on the stream.
func (d *Driver) LastStatus() (BridgeStatus, bool) {
	st := d.status.Load()
	if st == nil {
		return BridgeStatus{}, false
	}

	return *st, true
}

// --- Receive ---

// ReadFrame decodes one frame.
//
// It returns a nil frame and a nil error when the read timed out or the
// remote end sent NAK. A decoded frame is acknowledged at once; in peripheral
// mode one queued frame is then transmitted, unless the inbound frame is not
// MDB data or carries the MDB RESET command. An MDB_RESET frame is
// acknowledged and then reported as ErrBusReset.
func (d *Driver) ReadFrame() (*Frame, error) {
	frame, err := d.dec.ReadFrame()

	switch {
	case err == nil:
	case errors.Is(err, ErrBusReset):
		d.metrics.incBusResetCount()
	case errors.Is(err, ErrTimeout):
		d.metrics.incTimeoutCount()
		if err != ErrTimeout { //nolint:errorlint // partial frame
			d.logger.Debug("cp: read timeout inside frame", "error", err)
			trace.Emit(d.tracer, trace.FlagMDBDetail, traceSource, "read timeout", nil)
		}

		return nil, nil //nolint:nilnil
	case errors.Is(err, ErrFrameRejected):
		d.metrics.incNakRecvCount()
		trace.Emit(d.tracer, trace.FlagMDBDetail, traceSource, "NAK received", nil)

		return nil, nil //nolint:nilnil
	case errors.Is(err, ErrDecode):
		d.metrics.incDecodeErrCount()
		d.logger.Debug("cp: malformed frame", "error", err)
		trace.Emit(d.tracer, trace.FlagMDB, traceSource, err.Error(), nil)

		return nil, err
	default:
		return nil, fmt.Errorf("cp: read: %w", err)
	}

	d.metrics.incFrameRecvCount()
	d.traceFrame(true, frame.Code, frame.Payload, frame.raw)
	d.observeStatus(frame)

	if werr := d.acknowledge(frame); werr != nil {
		return nil, werr
	}

	if err != nil {
		return frame, err
	}

	return frame, nil
}

// acknowledge sends ACK for frame and, when the peripheral has been
// addressed, the next queued frame.
func (d *Driver) acknowledge(frame *Frame) error {
	if err := d.write([]byte{ACK}); err != nil {
		return fmt.Errorf("cp: send ACK: %w", err)
	}
	trace.Emit(d.tracer, trace.FlagMDBDetail, traceSource, "ACK sent", nil)

	if !d.cfg.peripheral || frame.Code != Data {
		return nil
	}
	if len(frame.Payload) > 0 && frame.Payload[0] == byte(mdb.CmdReset) {
		return nil
	}

	msg, ok := d.dequeue()
	if !ok {
		return nil
	}

	return d.writeFrame(msg.Code, msg.Payload)
}

func (d *Driver) observeStatus(frame *Frame) {
	if frame.Code != StatusInfo {
		return
	}

	st, err := ParseStatus(frame.Payload)
	if err != nil {
		d.logger.Debug("cp: bad status info", "error", err)
		return
	}
	d.status.Store(&st)

	trace.Emit(d.tracer, trace.FlagHighLevel, traceSource,
		fmt.Sprintf("bridge status: version %s, bus ready %t, mode %s", st.Version, st.BusReady, st.Mode), frame.Payload)
}

func (d *Driver) onStatusByte(b byte) {
	if b == ACK {
		trace.Emit(d.tracer, trace.FlagMDBDetail, traceSource, "ACK received", nil)
	}
}

// --- Send ---

// SendAwaitAck transmits a frame and waits for the bridge's ACK.
//
// In peripheral mode a frame that is not direct is appended to the outbound
// queue instead and SendAwaitAck returns at once. A direct frame in
// peripheral mode first drops buffered input and acknowledges the request
// that is being answered.
func (d *Driver) SendAwaitAck(code ControlCode, payload []byte, direct bool) error {
	if d.cfg.peripheral && !direct {
		d.push(Message{Code: code, Payload: clonePayload(payload)}, false)
		return nil
	}

	if d.cfg.peripheral {
		if n := d.reader.discard(); n > 0 {
			d.logger.Debug("cp: dropped buffered input", "bytes", n)
		}
		if err := d.write([]byte{ACK}); err != nil {
			return fmt.Errorf("cp: send ACK: %w", err)
		}
	}

	if err := d.writeFrame(code, payload); err != nil {
		return err
	}

	return d.awaitAck(code)
}

func (d *Driver) awaitAck(code ControlCode) error {
	b, err := d.reader.ReadByte()
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return fmt.Errorf("%w: no ACK for %s", ErrTimeout, code)
		}

		return fmt.Errorf("cp: read ACK: %w", err)
	}

	switch b {
	case ACK:
		trace.Emit(d.tracer, trace.FlagMDBDetail, traceSource, "ACK received", nil)
		return nil
	case NAK:
		d.metrics.incNakRecvCount()
	}

	return fmt.Errorf("%w: got 0x%02X for %s", ErrUnexpectedAck, b, code)
}

// SendAwaitAckWithReply sends a frame and waits for one reply frame,
// retrying up to the configured number of attempts with a pause in between.
//
// In peripheral mode the frame is queued once and each attempt only reads.
// It fails with ErrRetryExhausted; when the driver is shut down or ctx ends
// the error also matches ErrShutdown. An MDB_RESET reply is returned together
// with ErrBusReset.
func (d *Driver) SendAwaitAckWithReply(ctx context.Context, code ControlCode, payload []byte) (*Frame, error) {
	if d.cfg.peripheral {
		d.push(Message{Code: code, Payload: clonePayload(payload)}, false)
	}

	for attempt := 1; d.cfg.maxRetries < 0 || attempt <= d.cfg.maxRetries; attempt++ {
		if err := d.checkShutdown(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRetryExhausted, err)
		}

		frame, err := d.replyAttempt(code, payload)
		if frame != nil || (err != nil && !isRetryable(err)) {
			return frame, err
		}

		d.metrics.incRetryCount()
		d.logger.Debug("cp: no reply, retrying", "code", code, "attempt", attempt, "error", err)

		if err := pool.Sleep(ctx, d.cfg.retryBackoff); err != nil {
			return nil, fmt.Errorf("%w: %w: %w", ErrRetryExhausted, ErrShutdown, err)
		}
	}

	return nil, fmt.Errorf("%w: no reply to %s after %d attempts", ErrRetryExhausted, code, d.cfg.maxRetries)
}

func (d *Driver) replyAttempt(code ControlCode, payload []byte) (*Frame, error) {
	if !d.cfg.peripheral {
		if err := d.SendAwaitAck(code, payload, true); err != nil {
			return nil, err
		}
	}

	return d.ReadFrame()
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnexpectedAck) || errors.Is(err, ErrDecode)
}

func (d *Driver) checkShutdown(ctx context.Context) error {
	if d.shutdown.Load() {
		return ErrShutdown
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrShutdown, err)
	}

	return nil
}

// --- Outbound queue ---

// Enqueue replaces every pending frame with a single new one.
func (d *Driver) Enqueue(code ControlCode, payload []byte) {
	d.push(Message{Code: code, Payload: clonePayload(payload)}, true)
}

// ClearQueue drops every pending frame.
func (d *Driver) ClearQueue() {
	d.queueMu.Lock()
	d.queue.Reset()
	d.metrics.setQueuedCount(0)
	d.queueMu.Unlock()
}

// Pending returns a copy of the queued frames in transmission order.
func (d *Driver) Pending() []Message {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()

	return d.queue.Items()
}

func (d *Driver) push(msg Message, replace bool) {
	d.queueMu.Lock()
	if replace {
		d.queue.Reset()
	}
	d.queue.Enqueue(msg)
	d.metrics.setQueuedCount(d.queue.Length())
	d.queueMu.Unlock()
}

func (d *Driver) dequeue() (Message, bool) {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()

	msg, ok := d.queue.Dequeue()
	d.metrics.setQueuedCount(d.queue.Length())

	return msg, ok
}

// --- Master-mode helpers ---

// PollUntil sends POLL until the peripheral answers with a payload.
//
// An empty reply or no reply at all costs one attempt. The first non-empty
// reply ends the loop: ok reports whether it starts with expected.
func (d *Driver) PollUntil(ctx context.Context, expected byte) (reply []byte, ok bool, err error) {
	for attempt := 1; d.cfg.maxRetries < 0 || attempt <= d.cfg.maxRetries; attempt++ {
		if err := d.checkShutdown(ctx); err != nil {
			return nil, false, fmt.Errorf("%w: %w", ErrRetryExhausted, err)
		}

		if err := d.writeFrame(Data, mdb.PollCmd()); err != nil {
			return nil, false, err
		}

		frame, err := d.ReadFrame()
		if err != nil && !errors.Is(err, ErrDecode) {
			return nil, false, err
		}
		if frame != nil && frame.Code == Data && len(frame.Payload) > 0 {
			return frame.Payload, frame.Payload[0] == expected, nil
		}

		d.metrics.incRetryCount()

		if !d.cfg.peripheral {
			if err := pool.Sleep(ctx, d.cfg.pollInterval); err != nil {
				return nil, false, fmt.Errorf("%w: %w: %w", ErrRetryExhausted, ErrShutdown, err)
			}
		}
	}

	return nil, false, fmt.Errorf("%w: no answer to POLL after %d attempts", ErrRetryExhausted, d.cfg.maxRetries)
}

// SendAndWaitFor sends a DATA frame and waits until the peripheral answers
// with expected, polling when the immediate reply is only an ACK.
func (d *Driver) SendAndWaitFor(ctx context.Context, payload []byte, expected byte) ([]byte, bool, error) {
	frame, err := d.SendAwaitAckWithReply(ctx, Data, payload)
	if err != nil {
		return nil, false, err
	}

	if frame.Code == Data && len(frame.Payload) > 0 && frame.Payload[0] == expected {
		return frame.Payload, true, nil
	}

	return d.PollUntil(ctx, expected)
}

// --- Bridge management ---

// RequestStatus asks the bridge for its status and waits for STATUSINFO.
func (d *Driver) RequestStatus(ctx context.Context) (BridgeStatus, error) {
	since := time.Now()
	if err := d.SendAwaitAck(StatusRequest, nil, true); err != nil {
		return BridgeStatus{}, err
	}

	for attempt := 1; d.cfg.maxRetries < 0 || attempt <= d.cfg.maxRetries; attempt++ {
		if err := d.checkShutdown(ctx); err != nil {
			return BridgeStatus{}, fmt.Errorf("%w: %w", ErrRetryExhausted, err)
		}

		if _, err := d.ReadFrame(); err != nil && !isRetryable(err) {
			return BridgeStatus{}, err
		}

		if st, ok := d.LastStatus(); ok && !st.Received.Before(since) {
			return st, nil
		}
	}

	return BridgeStatus{}, fmt.Errorf("%w: no status info after %d reads", ErrRetryExhausted, d.cfg.maxRetries)
}

// SetBusMode switches the bridge between MDB slave and master.
func (d *Driver) SetBusMode(mode BusMode) error {
	return d.SendAwaitAck(MDBMode, []byte{byte(mode)}, true)
}

// RegisterAddress makes the bridge answer the MDB address addr.
func (d *Driver) RegisterAddress(addr byte) error {
	return d.SendAwaitAck(AddressRegister, []byte{addr}, true)
}

// UnregisterAddress stops the bridge from answering addr.
func (d *Driver) UnregisterAddress(addr byte) error {
	return d.SendAwaitAck(AddressUnregister, []byte{addr}, true)
}

// SetSerialSpeed changes the bridge's host-side baud rate. The port must be
// reopened at the new rate afterwards.
func (d *Driver) SetSerialSpeed(speed SerialSpeed) error {
	if speed.Baud() == 0 {
		return fmt.Errorf("cp: unknown serial speed %d", speed)
	}

	return d.SendAwaitAck(SetSerialSpeed, []byte{byte(speed)}, true)
}

// SetTestMode sets the bridge test mode flags.
func (d *Driver) SetTestMode(flags TestMode) error {
	return d.SendAwaitAck(TestModeFlags, []byte{byte(flags)}, true)
}

// --- Low-level I/O ---

func (d *Driver) writeFrame(code ControlCode, payload []byte) error {
	raw := Encode(code, payload)
	if err := d.write(raw); err != nil {
		return fmt.Errorf("cp: send %s: %w", code, err)
	}

	d.metrics.incFrameSendCount()
	d.traceFrame(false, code, payload, raw)

	return nil
}

// write sends data and then waits for the post-write delay.
func (d *Driver) write(data []byte) error {
	d.writeMu.Lock()
	for written := 0; written < len(data); {
		n, err := d.port.Write(data[written:])
		written += n

		if err != nil {
			d.writeMu.Unlock()
			return err
		}
	}
	d.writeMu.Unlock()

	_ = pool.Sleep(context.Background(), d.cfg.postWriteDelay)

	return nil
}

func (d *Driver) traceFrame(inbound bool, code ControlCode, payload []byte, raw []byte) {
	dir := "send"
	if inbound {
		dir = "recv"
	}

	if code == Data {
		var desc string
		if inbound == d.cfg.peripheral {
			desc = mdb.MasterTrace(payload)
		} else {
			desc = mdb.ReaderTrace(payload)
		}
		trace.Emit(d.tracer, trace.FlagMDB, traceSource, dir+" "+desc, payload)
	} else {
		trace.Emit(d.tracer, trace.FlagHighLevel, traceSource, fmt.Sprintf("%s %s % X", dir, code, payload), payload)
	}

	trace.Emit(d.tracer, trace.FlagMDBDetail, traceSource, dir+" frame "+mdb.Hex(raw), raw)
}

func clonePayload(p []byte) []byte {
	out := make([]byte, len(p))
	copy(out, p)

	return out
}
