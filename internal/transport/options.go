package transport

import (
	"time"

	"github.com/Iron-Ham/flixbridge/internal/event"
	"github.com/Iron-Ham/flixbridge/internal/logging"
)

// Defaults match the compiler's expectations: three retries one second apart.
const (
	DefaultMaxRetries    = 3
	DefaultRetryInterval = time.Second
	DefaultDialTimeout   = 5 * time.Second
)

// Option configures a Transport.
type Option func(*config)

type config struct {
	maxRetries    int
	retryInterval time.Duration
	dialTimeout   time.Duration
	clock         Clock
	logger        *logging.Logger
	bus           *event.Bus
}

// WithMaxRetries sets how many times Send re-checks a closed socket after the
// first attempt. Negative values are replaced with the default.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// WithRetryInterval sets the wait between send attempts.
// A zero or negative value is replaced with the default (1s).
func WithRetryInterval(d time.Duration) Option {
	return func(c *config) {
		c.retryInterval = d
	}
}

// WithDialTimeout bounds the WebSocket handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(c *config) {
		c.dialTimeout = d
	}
}

// WithClock sets the clock used between retries.
func WithClock(clock Clock) Option {
	return func(c *config) {
		c.clock = clock
	}
}

// WithLogger sets the logger for the transport.
func WithLogger(logger *logging.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithEventBus sets the bus that receives transport.opened and transport.closed.
func WithEventBus(bus *event.Bus) Option {
	return func(c *config) {
		c.bus = bus
	}
}

func newConfig(opts []Option) *config {
	cfg := &config{
		maxRetries:    DefaultMaxRetries,
		retryInterval: DefaultRetryInterval,
		dialTimeout:   DefaultDialTimeout,
		clock:         RealClock(),
		logger:        logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.maxRetries < 0 {
		cfg.maxRetries = DefaultMaxRetries
	}
	if cfg.retryInterval <= 0 {
		cfg.retryInterval = DefaultRetryInterval
	}
	if cfg.dialTimeout <= 0 {
		cfg.dialTimeout = DefaultDialTimeout
	}
	if cfg.clock == nil {
		cfg.clock = RealClock()
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}
	return cfg
}
