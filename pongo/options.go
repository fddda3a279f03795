package pongo

// Config holds the client configuration.
type Config struct {
	// Logger is used for logging operations (optional)
	Logger Logger

	// DiscardOnFailure issues a discard request when a bulk transfer fails
	// after the upload was initialized
	DiscardOnFailure bool
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		DiscardOnFailure: true,
	}
}

// Option is a functional option for configuring the Client.
type Option func(*Config)

// WithLogger sets a logger for the client operations.
//
// Example:
//
//	client := pongo.New(device, pongo.WithLogger(myLogger))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithDiscardOnFailure enables or disables the discard request sent after a
// failed bulk transfer. Default is true.
//
// Example:
//
//	client := pongo.New(device, pongo.WithDiscardOnFailure(false))
func WithDiscardOnFailure(discard bool) Option {
	return func(c *Config) {
		c.DiscardOnFailure = discard
	}
}
