package cashless

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-mdb/logger"
	"github.com/arloliu/go-mdb/mdb"
	"github.com/arloliu/go-mdb/trace"
)

const (
	// DefaultDeviceAddress is the MDB address of cashless device #1.
	DefaultDeviceAddress byte = 0x10
	// DefaultFundsLimit is the scaled amount offered in BEGIN_SESSION.
	DefaultFundsLimit uint16 = 500

	DefaultTransactionTimeout = 80 * time.Second
	DefaultAuthRetries        = 3
)

const (
	MinTransactionTimeout = time.Second
	MaxTransactionTimeout = 10 * time.Minute

	MaxAuthRetries      = 10
	MaxAuthRetryBackoff = 30 * time.Second
)

// Config holds the settings of a Device.
type Config struct {
	deviceAddress      byte
	fundsLimit         uint16
	transactionTimeout time.Duration
	authRetries        int
	authRetryBackoff   time.Duration
	verifyOnFailure    bool
	capabilities       mdb.Capabilities
	scaler             mdb.AmountScaler
	identity           mdb.PeripheralIdentity

	// sessionWatchdog resets a vend session older than this on POLL. Zero disables it.
	sessionWatchdog time.Duration

	logger logger.Logger
	tracer trace.Observer
}

// NewConfig creates a device configuration.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		deviceAddress:      DefaultDeviceAddress,
		fundsLimit:         DefaultFundsLimit,
		transactionTimeout: DefaultTransactionTimeout,
		authRetries:        DefaultAuthRetries,
		verifyOnFailure:    true,
		capabilities:       mdb.DefaultCapabilities(),
		identity:           mdb.DefaultPeripheralIdentity(),
		logger:             logger.GetLogger(),
		tracer:             trace.Discard,
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	scaler, err := cfg.capabilities.Scaler()
	if err != nil {
		return nil, fmt.Errorf("cashless: capabilities: %w", err)
	}
	cfg.scaler = scaler

	return cfg, nil
}

// DeviceAddress returns the MDB address registered with the bridge.
func (cfg *Config) DeviceAddress() byte { return cfg.deviceAddress }

// FundsLimit returns the scaled funds offered in BEGIN_SESSION.
func (cfg *Config) FundsLimit() uint16 { return cfg.fundsLimit }

// TransactionTimeout returns how long an authorization may stay outstanding.
func (cfg *Config) TransactionTimeout() time.Duration { return cfg.transactionTimeout }

// AuthRetries returns how many times a failed sale request is repeated.
func (cfg *Config) AuthRetries() int { return cfg.authRetries }

// AuthRetryBackoff returns the pause between sale attempts.
func (cfg *Config) AuthRetryBackoff() time.Duration { return cfg.authRetryBackoff }

// VerifyOnFailure reports whether failed sales are double-checked.
func (cfg *Config) VerifyOnFailure() bool { return cfg.verifyOnFailure }

// Capabilities returns the advertised reader configuration.
func (cfg *Config) Capabilities() mdb.Capabilities { return cfg.capabilities }

// Scaler returns the amount scaler derived from the capabilities.
func (cfg *Config) Scaler() mdb.AmountScaler { return cfg.scaler }

// PeripheralIdentity returns the advertised reader identity.
func (cfg *Config) PeripheralIdentity() mdb.PeripheralIdentity { return cfg.identity }

// SessionWatchdog returns the session age limit, zero when disabled.
func (cfg *Config) SessionWatchdog() time.Duration { return cfg.sessionWatchdog }

// Logger returns the configured logger.
func (cfg *Config) Logger() logger.Logger { return cfg.logger }

// --- Option ---

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithDeviceAddress sets the MDB address registered with the bridge.
func WithDeviceAddress(addr byte) Option {
	return optFunc(func(cfg *Config) error {
		if addr&0x07 != 0 {
			return fmt.Errorf("cashless: device address 0x%02X is not a multiple of 8", addr)
		}
		cfg.deviceAddress = addr

		return nil
	})
}

// WithFundsLimit sets the scaled funds offered in BEGIN_SESSION.
func WithFundsLimit(funds uint16) Option {
	return optFunc(func(cfg *Config) error {
		if funds > mdb.MaxScaledAmount {
			return fmt.Errorf("cashless: funds limit 0x%04X above 0x%04X", funds, mdb.MaxScaledAmount)
		}
		cfg.fundsLimit = funds

		return nil
	})
}

// WithTransactionTimeout bounds how long POLL waits for an authorization
// before the vend is canceled.
func WithTransactionTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinTransactionTimeout || d > MaxTransactionTimeout {
			return fmt.Errorf("cashless: transaction timeout %v out of range [%v, %v]", d, MinTransactionTimeout, MaxTransactionTimeout)
		}
		cfg.transactionTimeout = d

		return nil
	})
}

// WithAuthRetries sets how many times a failed sale request is repeated.
func WithAuthRetries(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 0 || n > MaxAuthRetries {
			return fmt.Errorf("cashless: auth retries %d out of range [0, %d]", n, MaxAuthRetries)
		}
		cfg.authRetries = n

		return nil
	})
}

// WithAuthRetryBackoff sets the pause between sale attempts. Default is none.
func WithAuthRetryBackoff(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxAuthRetryBackoff {
			return fmt.Errorf("cashless: auth retry backoff %v out of range [0, %v]", d, MaxAuthRetryBackoff)
		}
		cfg.authRetryBackoff = d

		return nil
	})
}

// WithVerifyOnFailure enables asking the backend whether a failed sale went
// through anyway. Enabled by default.
func WithVerifyOnFailure(enable bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.verifyOnFailure = enable
		return nil
	})
}

// WithCapabilities sets the CONFIG_DATA contents and the amount scaling.
func WithCapabilities(c mdb.Capabilities) Option {
	return optFunc(func(cfg *Config) error {
		cfg.capabilities = c
		return nil
	})
}

// WithPeripheralIdentity sets the PERIPHERAL_ID contents.
func WithPeripheralIdentity(id mdb.PeripheralIdentity) Option {
	return optFunc(func(cfg *Config) error {
		cfg.identity = id
		return nil
	})
}

// WithSessionWatchdog makes POLL perform a full reset when a vend session is
// older than d. Zero disables the watchdog, which is the default.
func WithSessionWatchdog(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 {
			return fmt.Errorf("cashless: session watchdog %v must not be negative", d)
		}
		cfg.sessionWatchdog = d

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("cashless: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithTracer sets the trace observer. A nil observer disables tracing.
func WithTracer(obs trace.Observer) Option {
	return optFunc(func(cfg *Config) error {
		if obs == nil {
			obs = trace.Discard
		}
		cfg.tracer = obs

		return nil
	})
}
