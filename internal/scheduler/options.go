package scheduler

import (
	"github.com/spf13/afero"

	"github.com/Iron-Ham/flixbridge/internal/dispatch"
	"github.com/Iron-Ham/flixbridge/internal/event"
	"github.com/Iron-Ham/flixbridge/internal/logging"
)

// Option configures a Scheduler.
type Option func(*config)

type config struct {
	logger     *logging.Logger
	bus        *event.Bus
	correlator Correlator
	fs         afero.Fs
	followUps  bool
	onFailure  func(id string, err error)
}

// WithLogger sets the logger for the scheduler.
func WithLogger(logger *logging.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithEventBus sets the bus that receives job events.
func WithEventBus(bus *event.Bus) Option {
	return func(c *config) {
		c.bus = bus
	}
}

// WithCorrelator sets where completion callbacks are registered.
// Without one, Enqueue rejects WithCallback.
func WithCorrelator(c Correlator) Option {
	return func(cfg *config) {
		cfg.correlator = c
	}
}

// WithFs sets the file system used to read source files. Defaults to the OS.
func WithFs(fs afero.Fs) Option {
	return func(c *config) {
		c.fs = fs
	}
}

// WithFollowUpChecks enables or disables the automatic check after file
// membership changes. Enabled by default.
func WithFollowUpChecks(enabled bool) Option {
	return func(c *config) {
		c.followUps = enabled
	}
}

// WithDeliveryFailureHandler sets fn to be called when the sender gives up
// on a job. The job stays registered and its callback stays pending, so a
// reply that still arrives is delivered normally. fn runs on the worker and
// must not block.
func WithDeliveryFailureHandler(fn func(id string, err error)) Option {
	return func(c *config) {
		c.onFailure = fn
	}
}

// EnqueueOption configures a single Enqueue call.
type EnqueueOption func(*enqueueConfig)

type enqueueConfig struct {
	callback dispatch.Callback
}

// WithCallback registers cb for the job's reply before the job becomes
// visible to the worker.
func WithCallback(cb dispatch.Callback) EnqueueOption {
	return func(c *enqueueConfig) {
		c.callback = cb
	}
}
