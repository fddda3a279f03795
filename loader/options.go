package loader

import (
	"time"

	"github.com/moffa90/go-pongo/pongo"
	"github.com/moffa90/go-pongo/protocol"
)

// Config holds the loader configuration.
type Config struct {
	// Logger is used for logging operations (optional)
	Logger pongo.Logger

	// SettleDelay is the wait between consecutive boot commands
	SettleDelay time.Duration

	// DiscardOnFailure is passed to the pongo client
	DiscardOnFailure bool
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		SettleDelay:      protocol.DefaultSettleDelay,
		DiscardOnFailure: true,
	}
}

// Option is a functional option for configuring the Loader.
type Option func(*Config)

// WithLogger sets a logger for the session and the underlying client.
func WithLogger(logger pongo.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithSettleDelay sets the wait between boot commands. The firmware needs
// this dead time, so non-positive values are ignored.
//
// Example:
//
//	l := loader.New(bus, loader.WithSettleDelay(500*time.Millisecond))
func WithSettleDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.SettleDelay = d
		}
	}
}

// WithDiscardOnFailure controls whether a failed bulk transfer is followed
// by a discard request. Default is true.
func WithDiscardOnFailure(discard bool) Option {
	return func(c *Config) {
		c.DiscardOnFailure = discard
	}
}
