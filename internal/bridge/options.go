package bridge

import (
	"time"

	"github.com/Iron-Ham/flixbridge/internal/event"
	"github.com/Iron-Ham/flixbridge/internal/logging"
	"github.com/Iron-Ham/flixbridge/internal/session"
	"github.com/Iron-Ham/flixbridge/internal/transport"
)

// Defaults for Config fields left zero.
const (
	DefaultRequestTimeout = 10 * time.Second
	DefaultMaxRestarts    = 3
	DefaultRestartBackoff = time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultResetWindow    = 5 * time.Minute
	backoffMultiplier     = 2.0
)

// Config controls request timeouts and crash recovery.
type Config struct {
	Session session.Config

	RequestTimeout time.Duration

	// MaxRestarts bounds consecutive crash restarts. Negative disables
	// automatic restarts.
	MaxRestarts    int
	RestartBackoff time.Duration
	MaxBackoff     time.Duration

	// ResetWindow is how long a session must stay up before its crash
	// counts as the first again.
	ResetWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxRestarts == 0 {
		c.MaxRestarts = DefaultMaxRestarts
	}
	if c.RestartBackoff <= 0 {
		c.RestartBackoff = DefaultRestartBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.MaxBackoff < c.RestartBackoff {
		c.MaxBackoff = c.RestartBackoff
	}
	if c.ResetWindow <= 0 {
		c.ResetWindow = DefaultResetWindow
	}
	return c
}

// Option configures a Bridge.
type Option func(*options)

type options struct {
	logger      *logging.Logger
	bus         *event.Bus
	clock       transport.Clock
	sessionOpts []session.Option
}

// WithLogger sets the logger for the bridge and every session it starts.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventBus sets the bus shared by the bridge and its sessions.
func WithEventBus(bus *event.Bus) Option {
	return func(o *options) {
		o.bus = bus
	}
}

// WithClock replaces the clock used for restart backoff.
func WithClock(c transport.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithSessionOptions passes options through to every session.
func WithSessionOptions(opts ...session.Option) Option {
	return func(o *options) {
		o.sessionOpts = append(o.sessionOpts, opts...)
	}
}
