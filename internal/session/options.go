package session

import (
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/flixbridge/internal/event"
	"github.com/Iron-Ham/flixbridge/internal/job"
	"github.com/Iron-Ham/flixbridge/internal/logging"
	"github.com/Iron-Ham/flixbridge/internal/transport"
)

// Defaults for Config fields left zero.
const (
	DefaultJava         = "java"
	DefaultJar          = "flix.jar"
	DefaultPort         = 8888
	DefaultReadyTimeout = 30 * time.Second
	DefaultCrashPattern = "Exception"
)

// Config describes the compiler a session runs.
type Config struct {
	Java         string
	Jar          string // relative paths resolve against the storage path
	Port         int
	ReadyTimeout time.Duration
	CrashPattern string // regular expression matched against stderr lines
}

func (c Config) withDefaults() Config {
	if c.Java == "" {
		c.Java = DefaultJava
	}
	if c.Jar == "" {
		c.Jar = DefaultJar
	}
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = DefaultReadyTimeout
	}
	if c.CrashPattern == "" {
		c.CrashPattern = DefaultCrashPattern
	}
	return c
}

// Option configures a Session.
type Option func(*options)

type options struct {
	logger           *logging.Logger
	bus              *event.Bus
	launcher         Launcher
	fs               afero.Fs
	transportOptions []transport.Option
	onCrash          func(reason string)
	sessionID        string
	registry         *job.Registry
	onDeliveryFail   func(id string, err error)
}

// WithLogger sets the logger for the session and its components.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventBus sets the bus shared by the session and its components.
func WithEventBus(bus *event.Bus) Option {
	return func(o *options) {
		o.bus = bus
	}
}

// WithLauncher replaces the os/exec launcher.
func WithLauncher(l Launcher) Option {
	return func(o *options) {
		o.launcher = l
	}
}

// WithFs sets the file system the scheduler reads sources from.
func WithFs(fs afero.Fs) Option {
	return func(o *options) {
		o.fs = fs
	}
}

// WithTransportOptions passes options through to the transport.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(o *options) {
		o.transportOptions = append(o.transportOptions, opts...)
	}
}

// WithCrashHandler sets the function called once when the compiler crashes.
// It must not block and must not call Stop synchronously.
func WithCrashHandler(fn func(reason string)) Option {
	return func(o *options) {
		o.onCrash = fn
	}
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(o *options) {
		o.sessionID = id
	}
}

// WithRegistry supplies the job registry, e.g. one continuing the id
// sequence of a previous session.
func WithRegistry(reg *job.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithDeliveryFailureHandler sets the function called when a job could not
// be sent because the transport never became ready.
func WithDeliveryFailureHandler(fn func(id string, err error)) Option {
	return func(o *options) {
		o.onDeliveryFail = fn
	}
}
