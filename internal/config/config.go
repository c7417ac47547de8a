// Package config reads the command line into the values the server needs.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	DefaultPort      = 8080
	DefaultDirectory = "."
)

var ErrBadPort = errors.New("port must be between 1 and 65535")

type Config struct {
	Debug     bool
	Port      int
	Directory string

	// ReadDelay and WriteDelay are slept after a lock is granted.
	ReadDelay     time.Duration
	WriteDelay    time.Duration
	ReadRetries   int
	RetryInterval time.Duration

	// MaxBody caps the declared request body length. Zero disables the cap.
	MaxBody int64

	ExactReads bool
}

// Default returns the configuration used when no flags are given.
func Default() Config {
	return Config{
		Port:          DefaultPort,
		Directory:     DefaultDirectory,
		ReadDelay:     3 * time.Second,
		WriteDelay:    5 * time.Second,
		ReadRetries:   10,
		RetryInterval: time.Second,
		MaxBody:       64 << 20,
	}
}

// Parse reads args (without the program name). Usage and errors go to out.
func Parse(name string, args []string, out io.Writer) (Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	fs.BoolVar(&cfg.Debug, "v", cfg.Debug, "print debugging messages")
	fs.IntVar(&cfg.Port, "p", cfg.Port, "port the server listens on")
	fs.StringVar(&cfg.Directory, "d", cfg.Directory, "directory served for GET and POST")
	fs.DurationVar(&cfg.ReadDelay, "read-delay", cfg.ReadDelay, "pause after a read lock is granted")
	fs.DurationVar(&cfg.WriteDelay, "write-delay", cfg.WriteDelay, "pause after a write lock is granted")
	fs.IntVar(&cfg.ReadRetries, "read-retries", cfg.ReadRetries, "extra attempts for a busy read lock")
	fs.DurationVar(&cfg.RetryInterval, "retry-interval", cfg.RetryInterval, "wait between read lock attempts")
	maxBody := fs.String("max-body", humanize.IBytes(uint64(cfg.MaxBody)), "largest accepted request body, 0 for no limit")
	fs.BoolVar(&cfg.ExactReads, "exact", cfg.ExactReads, "serve files byte for byte instead of joining lines")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("%w: %d", ErrBadPort, cfg.Port)
	}
	if cfg.ReadRetries < 0 {
		return Config{}, fmt.Errorf("read-retries must not be negative: %d", cfg.ReadRetries)
	}
	n, err := humanize.ParseBytes(*maxBody)
	if err != nil {
		return Config{}, fmt.Errorf("max-body %q: %w", *maxBody, err)
	}
	if n > math.MaxInt64 {
		return Config{}, fmt.Errorf("max-body %q: larger than %s", *maxBody, humanize.IBytes(math.MaxInt64))
	}
	cfg.MaxBody = int64(n)

	return cfg, nil
}

// Addr is the listen address for the configured port.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Logger returns a text logger writing to w, at Debug level when -v is set.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if c.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
