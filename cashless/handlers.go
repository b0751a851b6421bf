package cashless

import (
	"fmt"

	"github.com/arloliu/go-mdb/mdb"
	"github.com/arloliu/go-mdb/trace"
)

// --- Reset ---

// fullReset returns the reader to its power-up state and answers JUST_RESET.
// A vend approved towards the VMC but not yet confirmed is committed, the VMC
// may already have dispensed.
func (d *Device) fullReset(c *cycle) {
	if state := d.vend.Get(); (state == VendApproved || state == VendWaitForNextCommand) && d.sess.hasInvoice() {
		d.commit()
	}
	d.endSession()
	d.setVend(VendIdle)
	d.driver.ClearQueue()
	c.reply(mdb.JustReset())
	d.setReader(ReaderReset)

	d.metrics.incResetCount()
	trace.Emit(d.tracer, trace.FlagHighLevel, traceSource, "reset", nil)
}

func (d *Device) onBusReset() {
	d.metrics.incBusResetCount()
	d.setReader(ReaderResetReceived)
	trace.Emit(d.tracer, trace.FlagHighLevel, traceSource, "MDB bus reset, resetting on next POLL", nil)
}

// --- SETUP / EXPANSION / REVALUE ---

func (d *Device) onSetup(c *cycle, payload []byte) {
	sub, ok := subCommand(payload)
	if !ok {
		d.shortPayload(payload)
		return
	}

	switch sub {
	case mdb.SetupConfigData:
		s := mdb.ParseSetup(payload)
		trace.Emit(d.tracer, trace.FlagHighLevel, traceSource,
			fmt.Sprintf("VMC feature level %d, display %dx%d, info 0x%02X", s.FeatureLevel, s.Columns, s.Rows, s.DisplayInfo), payload)

		// Some VMCs start here without a RESET.
		d.setVend(VendIdle)
		c.reply(mdb.ConfigData(d.cfg.capabilities))
	case mdb.SetupPriceRange:
		c.ackOnly()
	default:
		d.logger.Debug("cashless: unknown SETUP sub-command", "command", mdb.MasterTrace(payload))
	}
}

func (d *Device) onExpansion(c *cycle, payload []byte) {
	sub, ok := subCommand(payload)
	if !ok {
		d.shortPayload(payload)
		return
	}

	if sub != mdb.ExpansionRequestID {
		d.logger.Debug("cashless: unknown EXPANSION sub-command", "command", mdb.MasterTrace(payload))
		return
	}

	id := mdb.ParseIdentity(payload)
	trace.Emit(d.tracer, trace.FlagHighLevel, traceSource,
		fmt.Sprintf("VMC manufacturer %q serial %q model %q version %04X", id.Manufacturer, id.SerialNumber, id.ModelNumber, id.SoftwareVersion), payload)

	c.reply(mdb.PeripheralID(d.cfg.identity))
}

func (d *Device) onRevalue(c *cycle, payload []byte) {
	sub, ok := subCommand(payload)
	if !ok {
		d.shortPayload(payload)
		return
	}

	if sub == mdb.RevalueLimitRequest {
		c.reply(mdb.RevalueLimit())
		return
	}
	d.logger.Debug("cashless: unsupported REVALUE sub-command", "command", mdb.MasterTrace(payload))
}

// --- READER ---

func (d *Device) onReader(c *cycle, payload []byte) {
	sub, ok := subCommand(payload)
	if !ok {
		d.shortPayload(payload)
		return
	}

	switch sub {
	case mdb.ReaderDisable:
		d.setReader(ReaderDisabled)
	case mdb.ReaderEnable:
		if d.reader.Get() != ReaderVend {
			d.setReader(ReaderEnabled)
		}
		d.sessionCheck()
	case mdb.ReaderCancel:
		d.cancelVend(c)
	default:
		d.logger.Debug("cashless: unknown READER sub-command", "command", mdb.MasterTrace(payload))
	}

	c.ackOnly()
}

// sessionCheck starts a new customer session the first time it runs after
// the previous session ended.
func (d *Device) sessionCheck() {
	if !d.sess.begin(d.now()) {
		return
	}

	d.metrics.incSessionCount()
	if err := d.auth.Open(d.ctx); err != nil {
		d.logger.Error("cashless: open authorizer failed", "error", err)
	} else {
		d.sess.setConnected()
	}

	d.setReader(ReaderVend)
	d.setVend(VendCardSwiped)
}

// --- POLL ---

func (d *Device) onPoll(c *cycle) {
	if d.watchdogExpired() {
		d.metrics.incWatchdogCount()
		d.logger.Warn("cashless: session watchdog expired", "vend", d.vend.Get().String())
		d.fullReset(c)

		return
	}

	switch d.reader.Get() {
	case ReaderResetReceived:
		d.fullReset(c)
	case ReaderSessionIdle:
		d.sessionCheck()
		c.ackOnly()
	case ReaderVend:
		d.pollVend(c)
	default:
		c.ackOnly()
	}
}

func (d *Device) pollVend(c *cycle) {
	switch d.vend.Get() {
	case VendCardSwiped:
		c.reply(mdb.BeginSession(d.cfg.fundsLimit))
		d.setVend(VendSessionBegun)

	case VendRequested:
		if d.sess.expired(d.now()) {
			d.logger.Warn("cashless: authorization timed out", "timeout", d.cfg.transactionTimeout)
			d.cancelVend(c)

			return
		}
		c.ackOnly()

	case VendApproved:
		amount, _ := d.sess.requestedAmount()
		if d.swapVend(VendApproved, VendWaitForNextCommand) {
			c.reply(mdb.VendApproved(amount))
			return
		}
		c.ackOnly()

	case VendDenied:
		c.reply(mdb.VendDenied())
		d.sess.markRollback()
		d.runPendingRollback()
		d.setVend(VendWaitForNextCommand)

	case VendAwaitResult:
		// A commit or rollback is in flight; answering now would double-reply.

	default:
		c.ackOnly()
	}
}

func (d *Device) watchdogExpired() bool {
	limit := d.cfg.sessionWatchdog
	if limit <= 0 || d.reader.Get() != ReaderVend {
		return false
	}

	return d.sess.age(d.now()) > limit
}

// --- VEND ---

func (d *Device) onVend(c *cycle, payload []byte) {
	sub, ok := subCommand(payload)
	if !ok {
		d.shortPayload(payload)
		return
	}

	switch sub {
	case mdb.VendRequest:
		d.onVendRequest(payload)
	case mdb.VendCancel:
		d.cancelVend(c)
		c.ackOnly()
	case mdb.VendSuccess:
		d.onVendSuccess(c)
	case mdb.VendFailure:
		d.onVendFailure(c)
	case mdb.VendSessionComplete:
		d.onSessionComplete(c)
	default:
		d.logger.Debug("cashless: unknown VEND sub-command", "command", mdb.MasterTrace(payload))
	}
}

func (d *Device) onVendRequest(payload []byte) {
	if state := d.vend.Get(); state != VendSessionBegun {
		d.logger.Debug("cashless: VEND request ignored", "vend", state.String())
		return
	}

	amount, ok := mdb.AmountBytes(payload)
	if !ok {
		d.shortPayload(payload)
		return
	}

	gen, start := d.sess.requestVend(amount, d.now().Add(d.cfg.transactionTimeout))
	d.setVend(VendRequested)

	trace.Emit(d.tracer, trace.FlagHighLevel, traceSource,
		"vend requested for "+d.cfg.scaler.Unscale(amount[:]).StringFixed(int32(d.cfg.scaler.DecimalPlaces())), payload)

	if start {
		d.startAuthorization(gen, amount)
	}
}

func (d *Device) onVendSuccess(c *cycle) {
	if state := d.vend.Get(); state == VendAwaitResult || state == VendCommitted {
		d.logger.Debug("cashless: duplicate VEND success ignored", "vend", state.String())
		c.ackOnly()

		return
	}

	d.setVend(VendAwaitResult)
	d.commit()
	d.setVend(VendCommitted)
	c.ackOnly()
}

func (d *Device) onVendFailure(c *cycle) {
	if state := d.vend.Get(); state == VendAwaitResult {
		d.logger.Debug("cashless: duplicate VEND failure ignored")
		c.ackOnly()

		return
	}

	d.setVend(VendAwaitResult)
	d.sess.takeRollback()
	d.rollback()
	d.setVend(VendIdle)
	c.ackOnly()
}

func (d *Device) onSessionComplete(c *cycle) {
	if d.vend.Get() != VendCommitted {
		d.sess.takeRollback()
		d.rollback()
	}

	d.endSession()
	d.setVend(VendIdle)
	d.setReader(ReaderSessionIdle)
	c.reply(mdb.EndSession())
}

// cancelVend aborts the current vend: the authorization is canceled, a
// rollback is queued for the next POLL and the VMC is told CANCELLED.
func (d *Device) cancelVend(c *cycle) {
	d.sess.markRollback()
	d.sess.cancelAuth()
	d.metrics.incCancelCount()

	c.reply(mdb.Cancelled())
	d.setVend(VendDenied)
}

// --- Commit / rollback ---

func (d *Device) commit() {
	invoice := d.sess.takeInvoice()
	if committer, ok := d.auth.(Committer); ok && invoice != "" {
		if err := committer.Commit(d.ctx, invoice); err != nil {
			d.logger.Error("cashless: commit failed", "invoice", invoice, "error", err)
		}
	}

	d.metrics.incCommitCount()
	trace.Emit(d.tracer, trace.FlagHighLevel, traceSource, "vend committed, invoice "+invoice, nil)
}

// rollback voids the invoice held by the session, if any. A vend is rolled
// back at most once.
func (d *Device) rollback() {
	if !d.sess.markRolledBack() {
		return
	}

	if invoice := d.sess.takeInvoice(); invoice != "" {
		d.void(invoice)
	}

	d.metrics.incRollbackCount()
	trace.Emit(d.tracer, trace.FlagHighLevel, traceSource, "vend rolled back", nil)
}

func (d *Device) runPendingRollback() {
	if d.sess.takeRollback() {
		d.rollback()
	}
}

func (d *Device) void(invoice string) {
	if err := d.auth.ProcessVoid(d.ctx, invoice); err != nil {
		d.logger.Error("cashless: void failed", "invoice", invoice, "error", err)
		return
	}

	d.metrics.incVoidCount()
	trace.Emit(d.tracer, trace.FlagHighLevel, traceSource, "invoice voided "+invoice, nil)
}

// endSession cancels the authorization, voids an invoice still held and
// closes the authorizer.
func (d *Device) endSession() {
	invoice, connected := d.sess.end()
	if invoice != "" {
		d.void(invoice)
	}

	if connected {
		if err := d.auth.Close(); err != nil {
			d.logger.Warn("cashless: close authorizer failed", "error", err)
		}
	}
}

// --- helpers ---

func subCommand(payload []byte) (byte, bool) {
	if len(payload) < 2 {
		return 0, false
	}

	return payload[1], true
}

func (d *Device) shortPayload(payload []byte) {
	d.logger.Debug("cashless: ignoring command", "command", mdb.MasterTrace(payload), "error", ErrShortPayload)
}
