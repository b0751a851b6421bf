package simpos

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arloliu/go-mdb/logger"
)

// MaxLatency bounds the simulated processing time.
const MaxLatency = time.Minute

// Config holds the terminal settings.
type Config struct {
	latency      time.Duration
	declineAbove decimal.Decimal
	requireOpen  bool
	firstInvoice int
	seed         uint64
	logger       logger.Logger
}

// NewConfig creates a terminal configuration.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		firstInvoice: 1,
		seed:         uint64(time.Now().UnixNano()), //nolint:gosec // non-negative
		logger:       logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Latency returns the simulated processing time.
func (cfg *Config) Latency() time.Duration { return cfg.latency }

// DeclineAbove returns the amount above which sales are declined, zero for no limit.
func (cfg *Config) DeclineAbove() decimal.Decimal { return cfg.declineAbove }

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithLatency sets how long each sale and void takes.
func WithLatency(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxLatency {
			return fmt.Errorf("simpos: latency %v out of range [0, %v]", d, MaxLatency)
		}
		cfg.latency = d

		return nil
	})
}

// WithDeclineAbove declines every sale larger than limit.
func WithDeclineAbove(limit decimal.Decimal) Option {
	return optFunc(func(cfg *Config) error {
		if limit.IsNegative() {
			return fmt.Errorf("simpos: decline limit %s is negative", limit)
		}
		cfg.declineAbove = limit

		return nil
	})
}

// WithRequireOpen rejects sale requests outside Open/Close.
func WithRequireOpen(enable bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.requireOpen = enable
		return nil
	})
}

// WithFirstInvoice sets the first invoice number.
func WithFirstInvoice(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 0 || n > 999999 {
			return fmt.Errorf("simpos: first invoice %d out of range [0, 999999]", n)
		}
		cfg.firstInvoice = n

		return nil
	})
}

// WithSeed fixes the record id sequence.
func WithSeed(seed uint64) Option {
	return optFunc(func(cfg *Config) error {
		cfg.seed = seed
		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("simpos: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
