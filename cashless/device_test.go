package cashless

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/arloliu/go-mdb/cp"
	"github.com/arloliu/go-mdb/mdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ===========================================================================
// End-to-end scenarios
// ===========================================================================

func TestScenario_ResetThenSetup(t *testing.T) {
	d, _ := newTestDevice(t, newMockAuthorizer())

	out := d.Process(mdb.ResetCmd())
	assert.Equal(t, replyOutcome(mdb.JustReset()), out)
	assert.Equal(t, ReaderReset, d.ReaderState())

	out = d.Process([]byte{0x11, 0x00, 0x02, 0x02, 0x02, 0x00})
	assert.Equal(t, replyOutcome([]byte{0x01, 0x01, 0x00, 0x01, 0x01, 0x02, 0x0A, 0x00}), out)
	assert.Equal(t, VendIdle, d.VendState())
}

func TestScenario_NewSessionOnPoll(t *testing.T) {
	auth := newMockAuthorizer()
	d, _ := newTestDevice(t, auth)
	d.setReader(ReaderSessionIdle)

	out := d.Process(mdb.PollCmd())
	assert.Equal(t, ackOnlyOutcome(), out)
	assert.Equal(t, VendCardSwiped, d.VendState())
	assert.Equal(t, ReaderVend, d.ReaderState())

	out = d.Process(mdb.PollCmd())
	require.Equal(t, Reply, out.Kind)
	assert.Equal(t, mdb.BeginSession(500), out.Payload)
	assert.Equal(t, []byte{0x01, 0xF4}, out.Payload[1:3])
	assert.Equal(t, VendSessionBegun, d.VendState())

	out = d.Process(mdb.PollCmd())
	assert.Equal(t, ackOnlyOutcome(), out)

	auth.AssertNumberOfCalls(t, "Open", 1)
	assert.Equal(t, uint64(1), d.Metrics().SessionCount.Load())
}

func TestScenario_VendApproved(t *testing.T) {
	auth := newMockAuthorizer()
	auth.On("RequestSale", mock.Anything, "100").Return("INV1", nil).Once()

	d, _ := newTestDevice(t, auth)
	beginSession(t, d)
	requestVend(t, d, [2]byte{0x00, 0x64}, VendApproved)

	out := d.Process(mdb.PollCmd())
	assert.Equal(t, replyOutcome([]byte{0x05, 0x00, 0x64}), out)
	assert.Equal(t, VendWaitForNextCommand, d.VendState())

	out = d.Process(mdb.VendSuccessCmd(1))
	assert.Equal(t, ackOnlyOutcome(), out)
	assert.Equal(t, VendCommitted, d.VendState())

	out = d.Process(mdb.SessionCompleteCmd())
	assert.Equal(t, replyOutcome(mdb.EndSession()), out)
	assert.Equal(t, VendIdle, d.VendState())
	assert.Equal(t, ReaderSessionIdle, d.ReaderState())

	auth.AssertCalled(t, "Close")
	auth.AssertNotCalled(t, "ProcessVoid", mock.Anything, mock.Anything)
	assert.Equal(t, uint64(1), d.Metrics().ApprovedCount.Load())
	assert.Equal(t, uint64(1), d.Metrics().CommitCount.Load())
}

func TestScenario_AuthorizationExhausted(t *testing.T) {
	auth := newMockAuthorizer()
	auth.On("RequestSale", mock.Anything, "100").Return("", errors.New("terminal offline")).Times(4)
	auth.On("VerifyLastTransaction", mock.Anything).Return("", false, nil)

	d, _ := newTestDevice(t, auth)
	beginSession(t, d)
	requestVend(t, d, [2]byte{0x00, 0x64}, VendDenied)
	d.tasks.Wait()

	auth.AssertNumberOfCalls(t, "RequestSale", 4)
	assert.Equal(t, 4, d.AuthAttempts())
	assert.Equal(t, uint64(0), d.Metrics().RollbackCount.Load())

	out := d.Process(mdb.PollCmd())
	assert.Equal(t, replyOutcome(mdb.VendDenied()), out)
	assert.Equal(t, VendWaitForNextCommand, d.VendState())
	assert.Equal(t, uint64(1), d.Metrics().RollbackCount.Load())

	out = d.Process(mdb.PollCmd())
	assert.Equal(t, ackOnlyOutcome(), out)
	assert.Equal(t, uint64(1), d.Metrics().RollbackCount.Load())
	assert.Equal(t, uint64(1), d.Metrics().DeniedCount.Load())
}

func TestScenario_BusResetMidSession(t *testing.T) {
	auth := newMockAuthorizer()
	d, _ := newTestDevice(t, auth)
	beginSession(t, d)

	d.onBusReset()
	assert.Equal(t, ReaderResetReceived, d.ReaderState())
	d.driver.Enqueue(cp.Data, mdb.BeginSession(500))

	out := d.Process(mdb.PollCmd())
	assert.Equal(t, replyOutcome(mdb.JustReset()), out)
	assert.Equal(t, ReaderReset, d.ReaderState())
	assert.Equal(t, VendIdle, d.VendState())

	pending := d.driver.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, mdb.JustReset(), pending[0].Payload)

	auth.AssertCalled(t, "Close")
	assert.Equal(t, uint64(1), d.Metrics().BusResetCount.Load())
}

// ===========================================================================
// Properties
// ===========================================================================

func TestReset_Idempotent(t *testing.T) {
	d, _ := newTestDevice(t, newMockAuthorizer())
	beginSession(t, d)
	d.driver.Enqueue(cp.Data, mdb.EndSession())

	for range 2 {
		d.Process(mdb.ResetCmd())

		assert.Equal(t, VendIdle, d.VendState())
		pending := d.driver.Pending()
		require.Len(t, pending, 1)
		assert.Equal(t, mdb.JustReset(), pending[0].Payload)
	}
}

func TestSingleInFlightAuthorization(t *testing.T) {
	release := make(chan struct{})
	auth := newMockAuthorizer()
	auth.On("RequestSale", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return("INV1", nil)

	d, _ := newTestDevice(t, auth)
	beginSession(t, d)

	d.Process(mdb.VendRequestCmd([2]byte{0x00, 0x64}, 1))
	require.Equal(t, VendRequested, d.VendState())

	// A repeated request is ignored outright.
	assert.Equal(t, NoReply, d.Process(mdb.VendRequestCmd([2]byte{0x00, 0x64}, 1)).Kind)

	// Even when the session is forced back, no second attempt starts.
	d.setVend(VendSessionBegun)
	d.Process(mdb.VendRequestCmd([2]byte{0x00, 0x32}, 2))
	require.Equal(t, VendRequested, d.VendState())

	close(release)
	require.Eventually(t, func() bool { return d.VendState() == VendApproved }, time.Second, 5*time.Millisecond)

	auth.AssertNumberOfCalls(t, "RequestSale", 1)
	assert.Equal(t, uint64(1), d.Metrics().AuthAttemptCount.Load())
}

func TestPoll_NoReplyWhileAwaitingResult(t *testing.T) {
	d, _ := newTestDevice(t, newMockAuthorizer())
	d.setReader(ReaderVend)
	d.setVend(VendAwaitResult)

	out := d.Process(mdb.PollCmd())
	assert.Equal(t, NoReply, out.Kind)
	assert.Empty(t, d.driver.Pending())
}

// ===========================================================================
// Authorization
// ===========================================================================

func TestVendRequest_TimeoutCancels(t *testing.T) {
	auth := newMockAuthorizer()
	auth.On("RequestSale", mock.Anything, "100").
		Run(func(args mock.Arguments) {
			ctx, _ := args.Get(0).(context.Context)
			<-ctx.Done()
		}).
		Return("", context.Canceled)

	d, clock := newTestDevice(t, auth, WithTransactionTimeout(5*time.Second))
	beginSession(t, d)
	d.Process(mdb.VendRequestCmd([2]byte{0x00, 0x64}, 1))

	clock.Advance(4 * time.Second)
	assert.Equal(t, ackOnlyOutcome(), d.Process(mdb.PollCmd()))

	clock.Advance(2 * time.Second)
	out := d.Process(mdb.PollCmd())
	assert.Equal(t, replyOutcome(mdb.Cancelled()), out)
	assert.Equal(t, VendDenied, d.VendState())

	out = d.Process(mdb.PollCmd())
	assert.Equal(t, replyOutcome(mdb.VendDenied()), out)
	assert.Equal(t, uint64(1), d.Metrics().RollbackCount.Load())
	assert.Equal(t, uint64(1), d.Metrics().CancelCount.Load())

	d.tasks.Wait()
	assert.Equal(t, uint64(0), d.Metrics().ApprovedCount.Load())
}

func TestLateApprovalIsVoided(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	auth := newMockAuthorizer()
	auth.On("RequestSale", mock.Anything, "250").
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return("INV9", nil)
	auth.On("ProcessVoid", mock.Anything, "INV9").Return(nil).Once()

	d, _ := newTestDevice(t, auth)
	beginSession(t, d)
	d.Process(mdb.VendRequestCmd([2]byte{0x00, 0xFA}, 1))
	<-started

	out := d.Process(mdb.VendCancelCmd())
	assert.Equal(t, replyOutcome(mdb.Cancelled()), out)
	assert.Equal(t, VendDenied, d.VendState())

	close(release)
	require.Eventually(t, func() bool { return d.Metrics().LateApprovalCount.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, VendDenied, d.VendState())

	out = d.Process(mdb.PollCmd())
	assert.Equal(t, replyOutcome(mdb.VendDenied()), out)

	auth.AssertNumberOfCalls(t, "ProcessVoid", 1)
	assert.Equal(t, uint64(1), d.Metrics().VoidCount.Load())
}

func TestAuthorization_VerifyRecoversLostAnswer(t *testing.T) {
	auth := newMockAuthorizer()
	auth.On("RequestSale", mock.Anything, "100").Return("", errors.New("read timeout")).Once()
	auth.On("VerifyLastTransaction", mock.Anything).Return("INV5", true, nil).Once()

	d, _ := newTestDevice(t, auth)
	beginSession(t, d)
	requestVend(t, d, [2]byte{0x00, 0x64}, VendApproved)

	auth.AssertNumberOfCalls(t, "RequestSale", 1)

	// The recovered invoice is voided when the vend fails.
	auth.On("ProcessVoid", mock.Anything, "INV5").Return(nil).Once()
	d.Process(mdb.PollCmd())
	assert.Equal(t, ackOnlyOutcome(), d.Process(mdb.VendFailureCmd()))
	assert.Equal(t, VendIdle, d.VendState())
	auth.AssertCalled(t, "ProcessVoid", mock.Anything, "INV5")
}

func TestAuthorization_VerifyDisabled(t *testing.T) {
	auth := newMockAuthorizer()
	auth.On("RequestSale", mock.Anything, "100").Return("", errors.New("read timeout")).Once()
	auth.On("RequestSale", mock.Anything, "100").Return("INV2", nil).Once()

	d, _ := newTestDevice(t, auth, WithVerifyOnFailure(false))
	beginSession(t, d)
	requestVend(t, d, [2]byte{0x00, 0x64}, VendApproved)

	auth.AssertNotCalled(t, "VerifyLastTransaction", mock.Anything)
	auth.AssertNumberOfCalls(t, "RequestSale", 2)
}

func TestAuthorization_DeclineIsNotRetried(t *testing.T) {
	auth := newMockAuthorizer()
	auth.On("RequestSale", mock.Anything, "100").Return("", fmt.Errorf("%w: insufficient funds", ErrDeclined)).Once()

	d, _ := newTestDevice(t, auth)
	beginSession(t, d)
	requestVend(t, d, [2]byte{0x00, 0x64}, VendDenied)
	d.tasks.Wait()

	auth.AssertNumberOfCalls(t, "RequestSale", 1)
	auth.AssertNotCalled(t, "VerifyLastTransaction", mock.Anything)
}

// ===========================================================================
// Commit and rollback
// ===========================================================================

func TestVendSuccess_Commits(t *testing.T) {
	auth := &committingAuthorizer{}
	auth.On("Open", mock.Anything).Return(nil)
	auth.On("Close").Return(nil)
	auth.On("RequestSale", mock.Anything, "100").Return("INV1", nil)
	auth.On("Commit", mock.Anything, "INV1").Return(nil).Once()

	d, _ := newTestDevice(t, auth)
	beginSession(t, d)
	requestVend(t, d, [2]byte{0x00, 0x64}, VendApproved)
	d.Process(mdb.PollCmd())

	assert.Equal(t, ackOnlyOutcome(), d.Process(mdb.VendSuccessCmd(1)))
	assert.Equal(t, ackOnlyOutcome(), d.Process(mdb.VendSuccessCmd(1)))

	auth.AssertNumberOfCalls(t, "Commit", 1)
	assert.Equal(t, VendCommitted, d.VendState())
}

func TestSessionComplete_RollsBackUncommitted(t *testing.T) {
	auth := newMockAuthorizer()
	auth.On("RequestSale", mock.Anything, "100").Return("INV1", nil)
	auth.On("ProcessVoid", mock.Anything, "INV1").Return(nil).Once()

	d, _ := newTestDevice(t, auth)
	beginSession(t, d)
	requestVend(t, d, [2]byte{0x00, 0x64}, VendApproved)
	d.Process(mdb.PollCmd())

	out := d.Process(mdb.SessionCompleteCmd())
	assert.Equal(t, replyOutcome(mdb.EndSession()), out)
	auth.AssertNumberOfCalls(t, "ProcessVoid", 1)
	assert.Equal(t, uint64(1), d.Metrics().RollbackCount.Load())

	// The next POLL starts a fresh session.
	assert.Equal(t, ackOnlyOutcome(), d.Process(mdb.PollCmd()))
	assert.Equal(t, VendCardSwiped, d.VendState())
	auth.AssertNumberOfCalls(t, "Open", 2)
}

func TestVendFailure_RolledBackOnce(t *testing.T) {
	auth := newMockAuthorizer()
	auth.On("RequestSale", mock.Anything, "100").Return("INV1", nil)
	auth.On("ProcessVoid", mock.Anything, "INV1").Return(nil).Once()

	d, _ := newTestDevice(t, auth)
	beginSession(t, d)
	requestVend(t, d, [2]byte{0x00, 0x64}, VendApproved)
	d.Process(mdb.PollCmd())

	assert.Equal(t, ackOnlyOutcome(), d.Process(mdb.VendFailureCmd()))
	assert.Equal(t, replyOutcome(mdb.EndSession()), d.Process(mdb.SessionCompleteCmd()))

	auth.AssertNumberOfCalls(t, "ProcessVoid", 1)
	assert.Equal(t, uint64(1), d.Metrics().RollbackCount.Load())
	assert.Equal(t, uint64(1), d.Metrics().VoidCount.Load())
}

func TestReset_CommitsApprovedVend(t *testing.T) {
	tests := []struct {
		name  string
		reset func(d *Device) Outcome
	}{
		{
			name:  "RESET command",
			reset: func(d *Device) Outcome { return d.Process(mdb.ResetCmd()) },
		},
		{
			name: "bus reset",
			reset: func(d *Device) Outcome {
				d.onBusReset()
				return d.Process(mdb.PollCmd())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &committingAuthorizer{}
			auth.On("Open", mock.Anything).Return(nil)
			auth.On("Close").Return(nil)
			auth.On("RequestSale", mock.Anything, "100").Return("INV1", nil)
			auth.On("Commit", mock.Anything, "INV1").Return(nil).Once()

			d, _ := newTestDevice(t, auth)
			beginSession(t, d)
			requestVend(t, d, [2]byte{0x00, 0x64}, VendApproved)
			assert.Equal(t, replyOutcome([]byte{0x05, 0x00, 0x64}), d.Process(mdb.PollCmd()))
			require.Equal(t, VendWaitForNextCommand, d.VendState())

			assert.Equal(t, replyOutcome(mdb.JustReset()), tt.reset(d))

			auth.AssertNumberOfCalls(t, "Commit", 1)
			auth.AssertNotCalled(t, "ProcessVoid", mock.Anything, mock.Anything)
			assert.Equal(t, uint64(1), d.Metrics().CommitCount.Load())
			assert.Equal(t, uint64(0), d.Metrics().VoidCount.Load())
			assert.Equal(t, VendIdle, d.VendState())
		})
	}
}

func TestReset_KeepsApprovedInvoiceWithoutCommitter(t *testing.T) {
	auth := newMockAuthorizer()
	auth.On("RequestSale", mock.Anything, "100").Return("INV1", nil)

	d, _ := newTestDevice(t, auth)
	beginSession(t, d)
	requestVend(t, d, [2]byte{0x00, 0x64}, VendApproved)

	assert.Equal(t, replyOutcome(mdb.JustReset()), d.Process(mdb.ResetCmd()))
	auth.AssertNotCalled(t, "ProcessVoid", mock.Anything, mock.Anything)
}

func TestReset_AfterVendSuccessCommitsOnce(t *testing.T) {
	auth := &committingAuthorizer{}
	auth.On("Open", mock.Anything).Return(nil)
	auth.On("Close").Return(nil)
	auth.On("RequestSale", mock.Anything, "100").Return("INV1", nil)
	auth.On("Commit", mock.Anything, "INV1").Return(nil).Once()

	d, _ := newTestDevice(t, auth)
	beginSession(t, d)
	requestVend(t, d, [2]byte{0x00, 0x64}, VendApproved)
	d.Process(mdb.PollCmd())
	d.Process(mdb.VendSuccessCmd(1))

	d.Process(mdb.ResetCmd())
	auth.AssertNumberOfCalls(t, "Commit", 1)
	auth.AssertNotCalled(t, "ProcessVoid", mock.Anything, mock.Anything)
}

// ===========================================================================
// Other commands
// ===========================================================================

func TestSetupPriceRange(t *testing.T) {
	d, _ := newTestDevice(t, newMockAuthorizer())
	assert.Equal(t, ackOnlyOutcome(), d.Process(mdb.SetupPriceRangeCmd(0xFFFF, 0x0000)))
}

func TestExpansionRequestID(t *testing.T) {
	id := mdb.PeripheralIdentity{Manufacturer: "XYZ", SerialNumber: "000000000042", ModelNumber: "BENCH", SoftwareVersion: 0x0102}
	d, _ := newTestDevice(t, newMockAuthorizer(), WithPeripheralIdentity(id))

	out := d.Process(mdb.ExpansionRequestIDCmd(mdb.DefaultPeripheralIdentity()))
	assert.Equal(t, replyOutcome(mdb.PeripheralID(id)), out)
}

func TestRevalue(t *testing.T) {
	d, _ := newTestDevice(t, newMockAuthorizer())

	assert.Equal(t, replyOutcome(mdb.RevalueLimit()), d.Process(mdb.RevalueLimitRequestCmd()))
	assert.Equal(t, NoReply, d.Process([]byte{0x15, 0x00, 0x00, 0x10}).Kind)
}

func TestReader_DisableEnable(t *testing.T) {
	auth := newMockAuthorizer()
	d, _ := newTestDevice(t, auth)

	assert.Equal(t, ackOnlyOutcome(), d.Process(mdb.ReaderDisableCmd()))
	assert.Equal(t, ReaderDisabled, d.ReaderState())

	assert.Equal(t, ackOnlyOutcome(), d.Process(mdb.ReaderEnableCmd()))
	assert.Equal(t, ReaderVend, d.ReaderState())
	assert.Equal(t, VendCardSwiped, d.VendState())

	// A second enable inside the session changes nothing.
	assert.Equal(t, ackOnlyOutcome(), d.Process(mdb.ReaderEnableCmd()))
	assert.Equal(t, ReaderVend, d.ReaderState())
	auth.AssertNumberOfCalls(t, "Open", 1)
}

func TestReader_Cancel(t *testing.T) {
	d, _ := newTestDevice(t, newMockAuthorizer())
	beginSession(t, d)

	out := d.Process(mdb.ReaderCancelCmd())
	assert.Equal(t, replyOutcome(mdb.Cancelled()), out)
	assert.Equal(t, VendDenied, d.VendState())
}

func TestHandleCommand_Unknown(t *testing.T) {
	d, _ := newTestDevice(t, newMockAuthorizer())

	assert.Equal(t, NoReply, d.HandleCommand(nil).Kind)
	assert.Equal(t, NoReply, d.HandleCommand([]byte{0x99}).Kind)
	assert.Equal(t, NoReply, d.HandleCommand([]byte{0x13}).Kind)
	assert.Equal(t, NoReply, d.HandleCommand([]byte{0x13, 0x00, 0x01}).Kind)
	assert.Equal(t, ackOnlyOutcome(), d.HandleCommand([]byte{0x14, 0x07}))
}

func TestHandleCommand_RecoversPanic(t *testing.T) {
	auth := &mockAuthorizer{}
	auth.On("Open", mock.Anything).Run(func(mock.Arguments) { panic("backend bug") })

	d, _ := newTestDevice(t, auth)

	out := d.HandleCommand(mdb.ReaderEnableCmd())
	assert.Equal(t, NoReply, out.Kind)
	assert.Equal(t, uint64(1), d.Metrics().ErrorCount.Load())
}

func TestSessionWatchdog(t *testing.T) {
	d, clock := newTestDevice(t, newMockAuthorizer(), WithSessionWatchdog(time.Minute))
	beginSession(t, d)

	clock.Advance(30 * time.Second)
	assert.Equal(t, ackOnlyOutcome(), d.Process(mdb.PollCmd()))

	clock.Advance(time.Minute)
	out := d.Process(mdb.PollCmd())
	assert.Equal(t, replyOutcome(mdb.JustReset()), out)
	assert.Equal(t, VendIdle, d.VendState())
	assert.Equal(t, uint64(1), d.Metrics().WatchdogCount.Load())
}

func TestCycle_ReplySupersedesAck(t *testing.T) {
	var c cycle
	c.ackOnly()
	c.reply([]byte{0x07})
	c.ackOnly()
	assert.Equal(t, replyOutcome([]byte{0x07}), c.out)

	var empty cycle
	assert.Equal(t, NoReply, empty.out.Kind)
}

func TestNewDevice_Validation(t *testing.T) {
	drv := newTestDriver(t)

	_, err := NewDevice(nil, newMockAuthorizer(), nil)
	require.Error(t, err)

	_, err = NewDevice(drv, nil, nil)
	require.Error(t, err)

	cfg, err := cp.NewConfig(cp.WithMasterMode())
	require.NoError(t, err)
	master, err := cp.NewDriver(cp.NewConnPort(nil, 0), cfg)
	require.NoError(t, err)
	_, err = NewDevice(master, newMockAuthorizer(), nil)
	require.Error(t, err)
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "SessionIdle", ReaderSessionIdle.String())
	assert.Equal(t, "AwaitVendResult", VendAwaitResult.String())
	assert.Equal(t, "VendState(42)", VendState(42).String())
	assert.Equal(t, "AckOnly", AckOnly.String())
}
