// Package logx configures the zerolog logger used by the command line tool
// and bridges it to the key-value logger taken by the library packages.
package logx

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggingConfig holds the configuration for logging.
type LoggingConfig struct {
	// Level is the log level to use (e.g., "info", "debug").
	Level string
	// NoColor disables ANSI colors on the console.
	NoColor bool
	// File is the path of an optional rolling log file.
	File string
	// MaxSize is the maximum size (in MB) of a log file before it is rolled.
	MaxSize int
	// MaxBackups is the maximum number of rolled log files to keep.
	MaxBackups int
	// MaxAge is the maximum age (in days) to keep a log file.
	MaxAge int
	// Compress enables compression of rolled log files.
	Compress bool
}

// DefaultConfig logs info and above to the console only.
func DefaultConfig() LoggingConfig {
	return LoggingConfig{
		Level:      "info",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
}

// New builds a logger writing human-readable lines to out and, when
// cfg.File is set, JSON lines to a rolling file. fields are attached to
// every entry.
func New(cfg LoggingConfig, out io.Writer, fields map[string]string) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, err
		}
		level = l
	}

	if out == nil {
		out = os.Stdout
	}
	console := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    cfg.NoColor,
	}

	writers := []io.Writer{console}
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		file := newRollingFile(cfg)
		writers = append(writers, file)
		closer = file
	}

	c := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp()

	for k, v := range fields {
		c = c.Str(k, v)
	}

	return c.Logger(), closer, nil
}

func newRollingFile(cfg LoggingConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Clean(cfg.File),
		MaxBackups: cfg.MaxBackups, // files
		MaxSize:    cfg.MaxSize,    // megabytes
		MaxAge:     cfg.MaxAge,     // days
		Compress:   cfg.Compress,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
