package cashless

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-mdb/cp"
	"github.com/arloliu/go-mdb/internal/pool"
	"github.com/arloliu/go-mdb/internal/task"
	"github.com/arloliu/go-mdb/logger"
	"github.com/arloliu/go-mdb/mdb"
	"github.com/arloliu/go-mdb/trace"
)

const traceSource = "cashless"

// readErrorBackoff throttles the loop while the port keeps failing.
const readErrorBackoff = 100 * time.Millisecond

// Device is an MDB cashless reader.
//
// All commands are processed on the goroutine calling Run (or Process). The
// only other goroutine is the authorization task started by VEND Request.
type Device struct {
	driver *cp.Driver
	auth   Authorizer
	cfg    *Config
	logger logger.Logger
	tracer trace.Observer

	reader atomicReaderState
	vend   atomicVendState
	sess   session

	// ctx bounds blocking authorizer calls made by the processing goroutine.
	ctx    context.Context
	cancel context.CancelFunc
	tasks  *task.Manager

	shutdown atomic.Bool
	metrics  Metrics

	now func() time.Time
}

// NewDevice creates a reader on driver, which must run in peripheral mode.
// A nil cfg uses the defaults of NewConfig.
func NewDevice(driver *cp.Driver, auth Authorizer, cfg *Config) (*Device, error) {
	if driver == nil {
		return nil, errors.New("cashless: driver must not be nil")
	}
	if auth == nil {
		return nil, errors.New("cashless: authorizer must not be nil")
	}
	if !driver.Config().IsPeripheral() {
		return nil, errors.New("cashless: driver must run in peripheral mode")
	}

	if cfg == nil {
		var err error
		if cfg, err = NewConfig(); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Device{
		driver: driver,
		auth:   auth,
		cfg:    cfg,
		logger: cfg.logger,
		tracer: cfg.tracer,
		ctx:    ctx,
		cancel: cancel,
		tasks:  task.NewManager(ctx, cfg.logger),
		now:    time.Now,
	}

	return d, nil
}

// ReaderState returns the link state.
func (d *Device) ReaderState() ReaderState { return d.reader.Get() }

// VendState returns the vend session state.
func (d *Device) VendState() VendState { return d.vend.Get() }

// Metrics returns the device counters.
func (d *Device) Metrics() *Metrics { return &d.metrics }

// Config returns the device configuration.
func (d *Device) Config() *Config { return d.cfg }

// AuthAttempts returns the number of sale attempts made in the current session.
func (d *Device) AuthAttempts() int { return d.sess.attempts() }

// Run announces the reader to the bridge and processes frames until ctx is
// done or Shutdown is called. It returns ctx.Err() when ctx ended the loop.
//
// Failures never end the loop: they are logged and the next frame is read.
func (d *Device) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, d.Shutdown)
	defer stop()

	d.announce()

	for !d.shutdown.Load() {
		d.step(ctx)
	}

	return ctx.Err()
}

// announce switches the bridge to slave mode, registers the reader address
// and queues JUST_RESET for the first POLL.
func (d *Device) announce() {
	if err := d.driver.SetBusMode(cp.ModeSlave); err != nil {
		d.logger.Warn("cashless: set bus mode failed", "error", err)
	}
	if err := d.driver.RegisterAddress(d.cfg.deviceAddress); err != nil {
		d.logger.Warn("cashless: register address failed", "address", fmt.Sprintf("0x%02X", d.cfg.deviceAddress), "error", err)
	}

	d.driver.Enqueue(cp.Data, mdb.JustReset())
	trace.Emit(d.tracer, trace.FlagHighLevel, traceSource,
		fmt.Sprintf("reader registered at 0x%02X", d.cfg.deviceAddress), nil)
}

func (d *Device) step(ctx context.Context) {
	frame, err := d.driver.ReadFrame()

	switch {
	case errors.Is(err, cp.ErrBusReset):
		d.onBusReset()
		return
	case errors.Is(err, cp.ErrDecode):
		d.metrics.incErrorCount()
		return
	case err != nil:
		if d.shutdown.Load() {
			return
		}
		d.metrics.incErrorCount()
		d.logger.Error("cashless: read failed", "error", err)
		_ = pool.Sleep(ctx, readErrorBackoff)

		return
	case frame == nil:
		return
	}

	switch frame.Code {
	case cp.Data:
		d.Process(frame.Payload)
	case cp.GSMStatusInfo:
		trace.Emit(d.tracer, trace.FlagHighLevel, traceSource, "GSM status "+mdb.Hex(frame.Payload), frame.Payload)
	}
}

// Process handles one VMC command and queues its outcome on the driver.
func (d *Device) Process(payload []byte) Outcome {
	out := d.HandleCommand(payload)
	d.deliver(out)

	return out
}

func (d *Device) deliver(out Outcome) {
	var payload []byte

	switch out.Kind {
	case NoReply:
		return
	case Reply:
		payload = out.Payload
	}

	if err := d.driver.SendAwaitAck(cp.Data, payload, false); err != nil {
		d.logger.Warn("cashless: send reply failed", "reply", out.String(), "error", err)
	}
}

// HandleCommand runs the state machine for one VMC command and returns the
// answer without sending it. A panicking handler is logged and yields NoReply.
func (d *Device) HandleCommand(payload []byte) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.incErrorCount()
			d.logger.Error("cashless: panic while handling command",
				"command", mdb.MasterTrace(payload), "panic", r)
			out = Outcome{Kind: NoReply}
		}
	}()

	if len(payload) == 0 {
		d.logger.Debug("cashless: empty command")
		return Outcome{Kind: NoReply}
	}

	d.metrics.incCommandCount()

	var c cycle
	switch mdb.MasterCommand(payload[0]) {
	case mdb.CmdReset:
		d.fullReset(&c)
	case mdb.CmdSetup:
		d.onSetup(&c, payload)
	case mdb.CmdPoll:
		d.onPoll(&c)
	case mdb.CmdVend:
		d.onVend(&c, payload)
	case mdb.CmdReader:
		d.onReader(&c, payload)
	case mdb.CmdRevalue:
		d.onRevalue(&c, payload)
	case mdb.CmdExpansion:
		d.onExpansion(&c, payload)
	default:
		d.logger.Debug("cashless: unknown command", "command", mdb.MasterTrace(payload))
	}

	return c.out
}

// Shutdown stops Run and cancels a running authorization.
func (d *Device) Shutdown() {
	if !d.shutdown.CompareAndSwap(false, true) {
		return
	}

	d.logger.Debug("cashless: shutdown requested")
	d.driver.Shutdown()
	d.sess.cancelAuth()
	d.tasks.Stop()
}

// Close shuts the device down, waits for background work and closes the
// authorizer if a session left it open.
func (d *Device) Close() error {
	d.Shutdown()
	d.tasks.Wait()

	invoice, connected := d.sess.end()
	if invoice != "" {
		d.logger.Warn("cashless: closing with an uncommitted sale", "invoice", invoice)
	}
	d.cancel()

	if connected {
		return d.auth.Close()
	}

	return nil
}

func (d *Device) setReader(state ReaderState) {
	if prev := d.reader.Set(state); prev != state {
		trace.Emit(d.tracer, trace.FlagStateMachine, traceSource, fmt.Sprintf("reader %s -> %s", prev, state), nil)
	}
}

func (d *Device) setVend(state VendState) {
	if prev := d.vend.Set(state); prev != state {
		trace.Emit(d.tracer, trace.FlagStateMachine, traceSource, fmt.Sprintf("vend %s -> %s", prev, state), nil)
	}
}

func (d *Device) swapVend(old, state VendState) bool {
	if !d.vend.CompareAndSwap(old, state) {
		return false
	}
	trace.Emit(d.tracer, trace.FlagStateMachine, traceSource, fmt.Sprintf("vend %s -> %s", old, state), nil)

	return true
}
