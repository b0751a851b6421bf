package cashless

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/arloliu/go-mdb/cp"
	"github.com/arloliu/go-mdb/logger"
	"github.com/arloliu/go-mdb/mdb"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockAuthorizer is a testify mock implementing Authorizer.
type mockAuthorizer struct {
	mock.Mock
}

var _ Authorizer = (*mockAuthorizer)(nil)

func (m *mockAuthorizer) Open(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockAuthorizer) Close() error {
	return m.Called().Error(0)
}

func (m *mockAuthorizer) RequestSale(ctx context.Context, amount string) (string, error) {
	args := m.Called(ctx, amount)
	return args.String(0), args.Error(1)
}

func (m *mockAuthorizer) ProcessVoid(ctx context.Context, invoice string) error {
	return m.Called(ctx, invoice).Error(0)
}

func (m *mockAuthorizer) VerifyLastTransaction(ctx context.Context) (string, bool, error) {
	args := m.Called(ctx)
	return args.String(0), args.Bool(1), args.Error(2)
}

// committingAuthorizer adds Commit to mockAuthorizer.
type committingAuthorizer struct {
	mockAuthorizer
}

func (m *committingAuthorizer) Commit(ctx context.Context, invoice string) error {
	return m.Called(ctx, invoice).Error(0)
}

// newMockAuthorizer returns a mock that accepts Open and Close.
func newMockAuthorizer() *mockAuthorizer {
	m := &mockAuthorizer{}
	m.On("Open", mock.Anything).Return(nil).Maybe()
	m.On("Close").Return(nil).Maybe()

	return m
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// newTestDriver creates a peripheral driver on one end of net.Pipe. The
// device tests only use its outbound queue, so nothing is read or written.
func newTestDriver(t *testing.T) *cp.Driver {
	t.Helper()

	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	cfg, err := cp.NewConfig(cp.WithPostWriteDelay(0), cp.WithReadTimeout(50*time.Millisecond))
	require.NoError(t, err)

	d, err := cp.NewDriver(cp.NewConnPort(local, 0), cfg)
	require.NoError(t, err)

	return d
}

// newTestDevice creates a Device with a quiet mock logger and a fake clock.
func newTestDevice(t *testing.T, auth Authorizer, opts ...Option) (*Device, *fakeClock) {
	t.Helper()

	defaults := []Option{WithLogger(logger.NewMockLogger().AllowAll())}
	cfg, err := NewConfig(append(defaults, opts...)...)
	require.NoError(t, err)

	d, err := NewDevice(newTestDriver(t), auth, cfg)
	require.NoError(t, err)

	clock := newFakeClock()
	d.now = clock.Now
	t.Cleanup(func() { _ = d.Close() })

	return d, clock
}

// beginSession drives the device from power-up to SessionBegun.
func beginSession(t *testing.T, d *Device) {
	t.Helper()

	d.Process(mdb.ResetCmd())
	d.Process(mdb.SetupConfigCmd(0x02, 0x02, 0x02, 0x00))
	d.Process(mdb.ReaderEnableCmd())
	require.Equal(t, VendCardSwiped, d.VendState())

	out := d.Process(mdb.PollCmd())
	require.Equal(t, Reply, out.Kind)
	require.Equal(t, VendSessionBegun, d.VendState())
}

// requestVend sends VEND Request for amount and waits for the vend state.
func requestVend(t *testing.T, d *Device, amount [2]byte, want VendState) {
	t.Helper()

	out := d.Process(mdb.VendRequestCmd(amount, 1))
	require.Equal(t, NoReply, out.Kind)

	require.Eventually(t, func() bool { return d.VendState() == want },
		2*time.Second, 5*time.Millisecond, "vend state %s", d.VendState())
}

func ackOnlyOutcome() Outcome {
	return Outcome{Kind: AckOnly}
}

func replyOutcome(payload []byte) Outcome {
	return Outcome{Kind: Reply, Payload: payload}
}
