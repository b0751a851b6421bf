package cashless

import "sync/atomic"

// Metrics contains atomic counters for a Device.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// CommandCount indicates the number of VMC commands handled.
	CommandCount atomic.Uint64
	// ResetCount indicates the number of full resets performed.
	ResetCount atomic.Uint64
	// BusResetCount indicates the number of MDB_RESET signals seen.
	BusResetCount atomic.Uint64
	// SessionCount indicates the number of vend sessions started.
	SessionCount atomic.Uint64

	// AuthAttemptCount indicates the number of sale requests sent.
	AuthAttemptCount atomic.Uint64
	// AuthFailCount indicates the number of failed sale requests.
	AuthFailCount atomic.Uint64
	// ApprovedCount indicates the number of approved vends.
	ApprovedCount atomic.Uint64
	// DeniedCount indicates the number of denied vends.
	DeniedCount atomic.Uint64
	// CancelCount indicates the number of canceled vends.
	CancelCount atomic.Uint64

	// CommitCount indicates the number of committed vends.
	CommitCount atomic.Uint64
	// RollbackCount indicates the number of rollbacks executed.
	RollbackCount atomic.Uint64
	// VoidCount indicates the number of invoices voided.
	VoidCount atomic.Uint64
	// LateApprovalCount indicates the number of approvals that arrived after the vend moved on.
	LateApprovalCount atomic.Uint64

	// ErrorCount indicates the number of read, decode and handler failures.
	ErrorCount atomic.Uint64
	// WatchdogCount indicates the number of sessions reset by the watchdog.
	WatchdogCount atomic.Uint64
}

func (m *Metrics) incCommandCount() {
	m.CommandCount.Add(1)
}

func (m *Metrics) incResetCount() {
	m.ResetCount.Add(1)
}

func (m *Metrics) incBusResetCount() {
	m.BusResetCount.Add(1)
}

func (m *Metrics) incSessionCount() {
	m.SessionCount.Add(1)
}

func (m *Metrics) incAuthAttemptCount() {
	m.AuthAttemptCount.Add(1)
}

func (m *Metrics) incAuthFailCount() {
	m.AuthFailCount.Add(1)
}

func (m *Metrics) incApprovedCount() {
	m.ApprovedCount.Add(1)
}

func (m *Metrics) incDeniedCount() {
	m.DeniedCount.Add(1)
}

func (m *Metrics) incCancelCount() {
	m.CancelCount.Add(1)
}

func (m *Metrics) incCommitCount() {
	m.CommitCount.Add(1)
}

func (m *Metrics) incRollbackCount() {
	m.RollbackCount.Add(1)
}

func (m *Metrics) incVoidCount() {
	m.VoidCount.Add(1)
}

func (m *Metrics) incLateApprovalCount() {
	m.LateApprovalCount.Add(1)
}

func (m *Metrics) incErrorCount() {
	m.ErrorCount.Add(1)
}

func (m *Metrics) incWatchdogCount() {
	m.WatchdogCount.Add(1)
}
