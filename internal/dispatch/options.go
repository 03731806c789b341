package dispatch

import (
	"github.com/Iron-Ham/flixbridge/internal/event"
	"github.com/Iron-Ham/flixbridge/internal/logging"
)

// Option configures a Dispatcher.
type Option func(*config)

type config struct {
	logger *logging.Logger
	bus    *event.Bus
}

// WithLogger sets the logger for the dispatcher.
func WithLogger(logger *logging.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithEventBus sets the bus that receives job.resolved events.
func WithEventBus(bus *event.Bus) Option {
	return func(c *config) {
		c.bus = bus
	}
}
