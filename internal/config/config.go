// Package config resolves the command line tool settings from flags and
// PONGO_ environment variables.
package config

import (
	"strings"
	"time"

	"github.com/joomcode/errorx"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/moffa90/go-pongo/protocol"
	"github.com/moffa90/go-pongo/usb"
)

// EnvPrefix prefixes every environment override, e.g. PONGO_SETTLE_DELAY.
const EnvPrefix = "PONGO"

// Setting keys, also used as flag names.
const (
	KeySettleDelay  = "settle-delay"
	KeyTimeout      = "timeout"
	KeyPollInterval = "poll-interval"
	KeyLogLevel     = "log-level"
	KeyLogFile      = "log-file"
)

var (
	ErrNamespace = errorx.NewNamespace("config")

	// InvalidValueError is returned for settings outside their valid range.
	InvalidValueError = ErrNamespace.NewType("invalid_value")
)

// Config holds the resolved settings.
type Config struct {
	// SettleDelay separates consecutive boot commands
	SettleDelay time.Duration
	// Timeout bounds each USB transfer; zero waits indefinitely
	Timeout time.Duration
	// PollInterval is the device arrival polling period
	PollInterval time.Duration
	// LogLevel is a zerolog level name
	LogLevel string
	// LogFile is an optional rolling log file path
	LogFile string
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		SettleDelay:  protocol.DefaultSettleDelay,
		Timeout:      0,
		PollInterval: usb.DefaultPollInterval,
		LogLevel:     "info",
	}
}

// AddFlags registers the settings on flags with their defaults.
func AddFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.Duration(KeySettleDelay, d.SettleDelay, "delay between boot commands")
	flags.Duration(KeyTimeout, d.Timeout, "USB transfer timeout (0 waits indefinitely)")
	flags.Duration(KeyPollInterval, d.PollInterval, "device arrival polling interval")
	flags.String(KeyLogLevel, d.LogLevel, "log level (debug|info|error)")
	flags.String(KeyLogFile, d.LogFile, "also write JSON logs to this rolling file")
}

// Load resolves settings with precedence flag, environment, default. Only
// flags that were set on the command line override the environment.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault(KeySettleDelay, d.SettleDelay)
	v.SetDefault(KeyTimeout, d.Timeout)
	v.SetDefault(KeyPollInterval, d.PollInterval)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFile, d.LogFile)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, errorx.IllegalState.Wrap(err, "failed to bind flags")
		}
	}

	cfg := Config{
		SettleDelay:  v.GetDuration(KeySettleDelay),
		Timeout:      v.GetDuration(KeyTimeout),
		PollInterval: v.GetDuration(KeyPollInterval),
		LogLevel:     v.GetString(KeyLogLevel),
		LogFile:      v.GetString(KeyLogFile),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges.
func (c Config) Validate() error {
	switch {
	case c.SettleDelay <= 0:
		return InvalidValueError.New("%s must be positive, got %s", KeySettleDelay, c.SettleDelay).
			WithProperty(errorx.PropertyPayload(), c.SettleDelay)
	case c.Timeout < 0:
		return InvalidValueError.New("%s must not be negative, got %s", KeyTimeout, c.Timeout).
			WithProperty(errorx.PropertyPayload(), c.Timeout)
	case c.PollInterval <= 0:
		return InvalidValueError.New("%s must be positive, got %s", KeyPollInterval, c.PollInterval).
			WithProperty(errorx.PropertyPayload(), c.PollInterval)
	}
	return nil
}
