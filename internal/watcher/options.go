package watcher

import (
	"time"

	"github.com/Iron-Ham/flixbridge/internal/event"
	"github.com/Iron-Ham/flixbridge/internal/logging"
)

// DefaultDebounce is how long the watcher waits for a burst of events on
// one file to settle.
const DefaultDebounce = 50 * time.Millisecond

// DefaultInclude matches Flix sources, packages and jars anywhere in the tree.
var DefaultInclude = []string{"**/*.flix", "**/*.fpkg", "**/*.jar"}

// DefaultIgnore lists directory names never walked or watched.
var DefaultIgnore = []string{".git", "build", "artifact", ".flixbridge"}

// Option configures a Watcher.
type Option func(*config)

type config struct {
	include  []string
	ignore   []string
	debounce time.Duration
	logger   *logging.Logger
	bus      *event.Bus
}

func newConfig(opts []Option) *config {
	cfg := &config{
		include:  DefaultInclude,
		ignore:   DefaultIgnore,
		debounce: DefaultDebounce,
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.debounce <= 0 {
		cfg.debounce = DefaultDebounce
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}
	return cfg
}

// WithInclude replaces the include globs. Patterns match slash-separated
// paths relative to the watched root.
func WithInclude(patterns ...string) Option {
	return func(c *config) {
		if len(patterns) > 0 {
			c.include = patterns
		}
	}
}

// WithIgnore replaces the ignored directory names.
func WithIgnore(names ...string) Option {
	return func(c *config) {
		c.ignore = names
	}
}

// WithDebounce sets the settle delay.
func WithDebounce(d time.Duration) Option {
	return func(c *config) {
		c.debounce = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithEventBus publishes a workspace.changed event per handled change.
func WithEventBus(bus *event.Bus) Option {
	return func(c *config) {
		c.bus = bus
	}
}
