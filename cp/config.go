package cp

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-mdb/logger"
	"github.com/arloliu/go-mdb/trace"
)

// Default driver settings, as used by the bridge firmware.
const (
	DefaultReadTimeout    = 2 * time.Second
	DefaultMaxRetries     = 20
	DefaultRetryBackoff   = 200 * time.Millisecond
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultPostWriteDelay = 50 * time.Millisecond
	DefaultQueueSize      = 4
)

// Setting ranges.
const (
	MinReadTimeout = 10 * time.Millisecond
	MaxReadTimeout = 60 * time.Second

	MaxRetryBackoff   = 10 * time.Second
	MaxPollInterval   = 10 * time.Second
	MaxPostWriteDelay = time.Second
)

// Config holds the settings of a Driver.
type Config struct {
	// peripheral selects MDB peripheral (slave) behavior: outbound DATA frames
	// are queued until the next inbound frame is acknowledged.
	peripheral bool

	readTimeout    time.Duration
	maxRetries     int // negative means unbounded
	retryBackoff   time.Duration
	pollInterval   time.Duration
	postWriteDelay time.Duration

	logger logger.Logger
	tracer trace.Observer
}

// NewConfig creates a driver configuration. The default is peripheral mode.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		peripheral:     true,
		readTimeout:    DefaultReadTimeout,
		maxRetries:     DefaultMaxRetries,
		retryBackoff:   DefaultRetryBackoff,
		pollInterval:   DefaultPollInterval,
		postWriteDelay: DefaultPostWriteDelay,
		logger:         logger.GetLogger(),
		tracer:         trace.Discard,
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// IsPeripheral reports whether the driver runs in peripheral mode.
func (cfg *Config) IsPeripheral() bool { return cfg.peripheral }

// ReadTimeout returns the per-read timeout.
func (cfg *Config) ReadTimeout() time.Duration { return cfg.readTimeout }

// MaxRetries returns the retry bound of SendAwaitAckWithReply and PollUntil.
func (cfg *Config) MaxRetries() int { return cfg.maxRetries }

// RetryBackoff returns the pause between reply attempts.
func (cfg *Config) RetryBackoff() time.Duration { return cfg.retryBackoff }

// PollInterval returns the pause between master-mode polls.
func (cfg *Config) PollInterval() time.Duration { return cfg.pollInterval }

// PostWriteDelay returns how long the driver settles after each write.
func (cfg *Config) PostWriteDelay() time.Duration { return cfg.postWriteDelay }

// Logger returns the configured logger.
func (cfg *Config) Logger() logger.Logger { return cfg.logger }

// --- Option ---

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithPeripheralMode makes the driver an MDB peripheral. This is the default.
func WithPeripheralMode() Option {
	return optFunc(func(cfg *Config) error {
		cfg.peripheral = true
		return nil
	})
}

// WithMasterMode makes the driver write every frame immediately.
func WithMasterMode() Option {
	return optFunc(func(cfg *Config) error {
		cfg.peripheral = false
		return nil
	})
}

// WithReadTimeout sets the per-read timeout.
func WithReadTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinReadTimeout || d > MaxReadTimeout {
			return fmt.Errorf("cp: read timeout %v out of range [%v, %v]", d, MinReadTimeout, MaxReadTimeout)
		}
		cfg.readTimeout = d

		return nil
	})
}

// WithMaxRetries sets the number of attempts. A negative value retries until shutdown.
func WithMaxRetries(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n == 0 {
			return errors.New("cp: max retries must not be zero")
		}
		cfg.maxRetries = n

		return nil
	})
}

// WithRetryBackoff sets the pause between reply attempts.
func WithRetryBackoff(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxRetryBackoff {
			return fmt.Errorf("cp: retry backoff %v out of range [0, %v]", d, MaxRetryBackoff)
		}
		cfg.retryBackoff = d

		return nil
	})
}

// WithPollInterval sets the pause between master-mode polls.
func WithPollInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxPollInterval {
			return fmt.Errorf("cp: poll interval %v out of range [0, %v]", d, MaxPollInterval)
		}
		cfg.pollInterval = d

		return nil
	})
}

// WithPostWriteDelay sets how long the driver pauses after each write.
// The bridge drops bytes written back to back, so keep it above zero on real hardware.
func WithPostWriteDelay(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxPostWriteDelay {
			return fmt.Errorf("cp: post-write delay %v out of range [0, %v]", d, MaxPostWriteDelay)
		}
		cfg.postWriteDelay = d

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("cp: logger must not be nil")
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
