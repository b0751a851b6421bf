// Package simpos is a simulated payment terminal implementing
// cashless.Authorizer and cashless.Committer.
//
// It books sales in memory and can be told to decline, to fail the next
// requests, or to lose the answer of a sale it did book, so that the retry and
// verification paths of the reader can be exercised on a bench.
package simpos

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arloliu/go-mdb/cashless"
	"github.com/arloliu/go-mdb/internal/pool"
	"github.com/arloliu/go-mdb/internal/syncutil"
	"github.com/arloliu/go-mdb/logger"
)

var (
	// ErrCommunication is returned for an injected terminal failure.
	ErrCommunication = errors.New("simpos: terminal not responding")
	// ErrNotOpen is returned when a sale is requested outside Open/Close.
	ErrNotOpen = errors.New("simpos: channel not open")
	// ErrUnknownInvoice is returned when voiding or committing an unknown sale.
	ErrUnknownInvoice = errors.New("simpos: unknown invoice")
	// ErrInvalidAmount is returned for a malformed amount string.
	ErrInvalidAmount = errors.New("simpos: invalid amount")
)

// SaleStatus is the settlement state of a booked sale.
type SaleStatus int

const (
	SaleAuthorized SaleStatus = iota
	SaleCommitted
	SaleVoided
)

func (s SaleStatus) String() string {
	switch s {
	case SaleAuthorized:
		return "authorized"
	case SaleCommitted:
		return "committed"
	case SaleVoided:
		return "voided"
	default:
		return fmt.Sprintf("SaleStatus(%d)", int(s))
	}
}

// Sale is one booked transaction.
type Sale struct {
	Invoice  string
	RecordID string
	Amount   decimal.Decimal
	Status   SaleStatus
	Time     time.Time
}

// Terminal is the simulated payment terminal. It is safe for concurrent use.
type Terminal struct {
	cfg    *Config
	logger logger.Logger

	mu       syncutil.Mutex
	open     bool
	opens    int
	nextInv  int
	recordID string // record id of the last sale request
	failNext int
	loseNext int
	sales    []*Sale
	byInv    map[string]*Sale
	rnd      *rand.Rand
}

var (
	_ cashless.Authorizer = (*Terminal)(nil)
	_ cashless.Committer  = (*Terminal)(nil)
)

// New creates a terminal.
func New(opts ...Option) (*Terminal, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &Terminal{
		cfg:     cfg,
		logger:  cfg.logger,
		nextInv: cfg.firstInvoice,
		byInv:   make(map[string]*Sale),
		rnd:     rand.New(rand.NewPCG(cfg.seed, cfg.seed^0x5bd1e995)), //nolint:gosec // simulated record ids
	}, nil
}

// Open opens the channel for a vend session.
func (t *Terminal) Open(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.open = true
	t.opens++
	t.logger.Debug("simpos: channel opened", "session", t.opens)

	return nil
}

// Close closes the channel.
func (t *Terminal) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.open = false
	t.logger.Debug("simpos: channel closed")

	return nil
}

// RequestSale books amount, a string with two implied decimals, after the
// configured latency.
func (t *Terminal) RequestSale(ctx context.Context, amount string) (string, error) {
	value, err := parseAmount(amount)
	if err != nil {
		return "", err
	}

	if err := pool.Sleep(ctx, t.cfg.latency); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cfg.requireOpen && !t.open {
		return "", ErrNotOpen
	}

	t.recordID = fmt.Sprintf("%04d", t.rnd.IntN(10000))

	if t.failNext > 0 {
		t.failNext--
		t.logger.Warn("simpos: injected failure", "amount", amount, "record", t.recordID)

		return "", ErrCommunication
	}

	if !t.cfg.declineAbove.IsZero() && value.GreaterThan(t.cfg.declineAbove) {
		t.logger.Info("simpos: sale declined", "amount", value.StringFixed(2), "limit", t.cfg.declineAbove.StringFixed(2))
		return "", fmt.Errorf("%w: amount %s above limit %s", cashless.ErrDeclined, value.StringFixed(2), t.cfg.declineAbove.StringFixed(2))
	}

	sale := t.bookLocked(value)
	if t.loseNext > 0 {
		t.loseNext--
		t.logger.Warn("simpos: answer lost", "invoice", sale.Invoice, "record", sale.RecordID)

		return "", ErrCommunication
	}

	t.logger.Info("simpos: sale approved", "invoice", sale.Invoice, "amount", value.StringFixed(2))

	return sale.Invoice, nil
}

func (t *Terminal) bookLocked(value decimal.Decimal) *Sale {
	sale := &Sale{
		Invoice:  fmt.Sprintf("%06d", t.nextInv),
		RecordID: t.recordID,
		Amount:   value,
		Status:   SaleAuthorized,
		Time:     time.Now(),
	}
	t.nextInv++
	t.sales = append(t.sales, sale)
	t.byInv[sale.Invoice] = sale

	return sale
}

// ProcessVoid reverses an authorized sale. Voiding twice is not an error.
func (t *Terminal) ProcessVoid(ctx context.Context, invoice string) error {
	if err := pool.Sleep(ctx, t.cfg.latency); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	sale, ok := t.byInv[invoice]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownInvoice, invoice)
	}
	if sale.Status == SaleCommitted {
		return fmt.Errorf("simpos: invoice %s already committed", invoice)
	}

	sale.Status = SaleVoided
	t.logger.Info("simpos: sale voided", "invoice", invoice)

	return nil
}

// VerifyLastTransaction reports the invoice booked by the last sale request,
// if that request reached the ledger.
func (t *Terminal) VerifyLastTransaction(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.sales) == 0 || t.recordID == "" {
		return "", false, nil
	}

	last := t.sales[len(t.sales)-1]
	if last.RecordID != t.recordID || last.Status != SaleAuthorized {
		return "", false, nil
	}

	return last.Invoice, true, nil
}

// Commit settles an authorized sale.
func (t *Terminal) Commit(_ context.Context, invoice string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sale, ok := t.byInv[invoice]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownInvoice, invoice)
	}
	if sale.Status == SaleVoided {
		return fmt.Errorf("simpos: invoice %s already voided", invoice)
	}
	sale.Status = SaleCommitted

	return nil
}

// FailNext makes the next n sale requests fail without booking.
func (t *Terminal) FailNext(n int) {
	t.mu.Lock()
	t.failNext = n
	t.mu.Unlock()
}

// LoseNext makes the next n approved sales report a failure. The sales stay
// booked and VerifyLastTransaction finds them.
func (t *Terminal) LoseNext(n int) {
	t.mu.Lock()
	t.loseNext = n
	t.mu.Unlock()
}

// Sales returns a copy of the ledger in booking order.
func (t *Terminal) Sales() []Sale {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Sale, len(t.sales))
	for i, s := range t.sales {
		out[i] = *s
	}

	return out
}

// Sessions returns how many times the channel was opened.
func (t *Terminal) Sessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.opens
}

func parseAmount(amount string) (decimal.Decimal, error) {
	if amount == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	for _, r := range amount {
		if r < '0' || r > '9' {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
		}
	}

	cents, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}

	return cents.Shift(-2), nil
}
