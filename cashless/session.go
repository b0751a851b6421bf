package cashless

import (
	"context"
	"time"

	"github.com/arloliu/go-mdb/internal/syncutil"
)

// session is the per-session context: requested amount, authorization state
// and the pending rollback. It is shared with the authorization task, so
// every field is guarded by mu.
type session struct {
	mu syncutil.Mutex

	// gen changes whenever the session ends, so a stale authorization task
	// can tell that its result no longer applies.
	gen uint64

	started   time.Time
	checked   bool // new-session check done
	connected bool // authorizer opened for this session

	amount    [2]byte
	hasAmount bool

	invoice    string
	retries    int
	deadline   time.Time
	authActive bool
	authCancel context.CancelFunc

	pendingRollback bool
	rolledBack      bool // the current vend was already rolled back
}

// begin starts a new session unless one is already running. It reports
// whether a new session was started.
func (s *session) begin(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.checked {
		return false
	}

	s.resetLocked()
	s.checked = true
	s.started = now

	return true
}

// end clears the session and cancels its authorization. It returns the
// invoice still held and whether the authorizer was open.
func (s *session) end() (invoice string, connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, connected = s.invoice, s.connected
	s.resetLocked()

	return invoice, connected
}

func (s *session) resetLocked() {
	if s.authCancel != nil {
		s.authCancel()
	}

	s.gen++
	s.started = time.Time{}
	s.checked = false
	s.connected = false
	s.amount = [2]byte{}
	s.hasAmount = false
	s.invoice = ""
	s.retries = 0
	s.deadline = time.Time{}
	s.authActive = false
	s.authCancel = nil
	s.pendingRollback = false
	s.rolledBack = false
}

func (s *session) setConnected() {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
}

// age returns how long the session has been running, zero when none is.
func (s *session) age(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started.IsZero() {
		return 0
	}

	return now.Sub(s.started)
}

// requestVend records the requested amount and arms the transaction
// deadline. It returns the session generation and whether an authorization
// should be started.
func (s *session) requestVend(amount [2]byte, deadline time.Time) (gen uint64, start bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.amount, s.hasAmount = amount, true
	s.deadline = deadline
	s.rolledBack = false

	if s.authActive {
		return s.gen, false
	}
	s.authActive = true

	return s.gen, true
}

// setAuthCancel stores the cancel function of the authorization task of
// generation gen. If the session already moved on, the task is canceled.
func (s *session) setAuthCancel(gen uint64, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		cancel()
		return
	}
	s.authCancel = cancel
}

// cancelAuth stops a running authorization.
func (s *session) cancelAuth() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.authCancel != nil {
		s.authCancel()
		s.authCancel = nil
	}
}

func (s *session) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return !s.deadline.IsZero() && now.After(s.deadline)
}

func (s *session) requestedAmount() ([2]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.amount, s.hasAmount
}

// attempt counts one sale attempt of generation gen. It returns false if the
// session moved on.
func (s *session) attempt(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return false
	}
	s.retries++

	return true
}

func (s *session) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retries
}

func (s *session) hasInvoice() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.invoice != ""
}

func (s *session) takeInvoice() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv := s.invoice
	s.invoice = ""

	return inv
}

// markRollback queues a rollback for the current session.
func (s *session) markRollback() {
	s.mu.Lock()
	s.pendingRollback = true
	s.mu.Unlock()
}

// takeRollback consumes the queued rollback. Only one caller sees true.
func (s *session) takeRollback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.pendingRollback
	s.pendingRollback = false

	return pending
}

// markRolledBack records the rollback of the current vend. It returns false
// if the vend was already rolled back.
func (s *session) markRolledBack() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rolledBack {
		return false
	}
	s.rolledBack = true

	return true
}

// publish runs swap with the session locked if gen is still current. When
// swap succeeds and invoice is set, the session takes over the invoice.
// swap must not call back into the session.
func (s *session) publish(gen uint64, invoice string, swap func() bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || !swap() {
		return false
	}
	if invoice != "" {
		s.invoice = invoice
	}

	return true
}
