package cashless

import (
	"context"
	"errors"
	"fmt"

	"github.com/arloliu/go-mdb/internal/pool"
	"github.com/arloliu/go-mdb/mdb"
	"github.com/arloliu/go-mdb/trace"
)

// startAuthorization runs the sale request for session gen in the background.
func (d *Device) startAuthorization(gen uint64, amount [2]byte) {
	sale := mdb.SaleAmount(d.cfg.scaler.Unscale(amount[:]))

	cancel, err := d.tasks.Go("authorize", func(ctx context.Context) {
		d.authorize(ctx, gen, sale)
	})
	if err != nil {
		d.logger.Error("cashless: start authorization failed", "error", err)
		d.publishDenial(gen, err)

		return
	}

	d.sess.setAuthCancel(gen, cancel)
}

// authorize requests the sale, repeating failed attempts up to the retry
// bound. It returns without publishing when ctx is canceled, since whoever
// canceled it has already moved the vend on.
func (d *Device) authorize(ctx context.Context, gen uint64, sale string) {
	attempts := 1 + d.cfg.authRetries
	var lastErr error

	for n := 1; n <= attempts; n++ {
		if ctx.Err() != nil || !d.sess.attempt(gen) {
			return
		}

		d.metrics.incAuthAttemptCount()
		invoice, err := d.auth.RequestSale(ctx, sale)
		if err == nil {
			d.publishApproval(gen, invoice)
			return
		}

		d.metrics.incAuthFailCount()
		lastErr = err
		d.logger.Warn("cashless: sale request failed", "amount", sale, "attempt", n, "attempts", attempts, "error", err)

		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrDeclined) {
			break
		}

		if d.cfg.verifyOnFailure {
			if invoice, ok := d.verify(ctx); ok {
				d.publishApproval(gen, invoice)
				return
			}
		}

		if n < attempts {
			if err := pool.Sleep(ctx, d.cfg.authRetryBackoff); err != nil {
				return
			}
		}
	}

	d.publishDenial(gen, fmt.Errorf("%w: %w", ErrAuthorizationFailed, lastErr))
}

// verify asks the backend whether the failed request was booked anyway.
func (d *Device) verify(ctx context.Context) (string, bool) {
	invoice, matched, err := d.auth.VerifyLastTransaction(ctx)
	if err != nil {
		d.logger.Debug("cashless: verify last transaction failed", "error", err)
		return "", false
	}
	if !matched || invoice == "" {
		return "", false
	}

	d.logger.Info("cashless: last transaction verified", "invoice", invoice)

	return invoice, true
}

func (d *Device) publishApproval(gen uint64, invoice string) {
	ok := d.sess.publish(gen, invoice, func() bool {
		return d.swapVend(VendRequested, VendApproved)
	})
	if !ok {
		// The vend was canceled, timed out or reset while the sale went through.
		d.metrics.incLateApprovalCount()
		d.logger.Warn("cashless: late approval, voiding", "invoice", invoice)
		d.void(invoice)

		return
	}

	d.metrics.incApprovedCount()
	trace.Emit(d.tracer, trace.FlagHighLevel, traceSource, "vend approved, invoice "+invoice, nil)
}

func (d *Device) publishDenial(gen uint64, cause error) {
	ok := d.sess.publish(gen, "", func() bool {
		return d.swapVend(VendRequested, VendDenied)
	})
	if !ok {
		return
	}

	d.metrics.incDeniedCount()
	d.logger.Warn("cashless: vend denied", "error", cause)
	trace.Emit(d.tracer, trace.FlagHighLevel, traceSource, "vend denied: "+cause.Error(), nil)

	d.runPendingRollback()
}
