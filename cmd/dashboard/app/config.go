package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/roman-kulish/leo-telemetry/internal/api"
	"github.com/roman-kulish/leo-telemetry/internal/series"
	"github.com/roman-kulish/leo-telemetry/internal/session"
)

const defaultServer = "http://localhost:5000"

type Config struct {
	Server       string
	PollInterval time.Duration
	Window       int
	Limit        int
	NoPush       bool
	Plain        bool
	LogLevel     slog.Level
}

func NewConfig() *Config {
	return &Config{
		Server:       defaultServer,
		PollInterval: session.DefaultPollInterval,
		Window:       series.DefaultWindowSize,
		Limit:        api.DefaultLimit,
		LogLevel:     slog.LevelInfo,
	}
}

// NewConfigFromArgs parses the command line arguments, without the program
// name.
func NewConfigFromArgs(args []string, output io.Writer) (*Config, error) {
	c := NewConfig()

	var logLevel string
	fs := flag.NewFlagSet("dashboard", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintln(output, "Usage of dashboard:")
		fs.PrintDefaults()
	}
	fs.StringVarP(&c.Server, "server", "s", c.Server, "Base URL of the telemetry API")
	fs.DurationVarP(&c.PollInterval, "poll-interval", "i", c.PollInterval, "Interval between two polls")
	fs.IntVarP(&c.Window, "window", "w", c.Window, "Number of readings kept in the window")
	fs.IntVarP(&c.Limit, "limit", "l", c.Limit, "Number of readings requested per poll")
	fs.BoolVar(&c.NoPush, "no-push", false, "Do not subscribe to pushed readings")
	fs.BoolVar(&c.Plain, "plain", false, "Append updates instead of redrawing the screen")
	fs.StringVar(&logLevel, "log-level", "info", "Log level [debug, info, warn, error]")

	if err := fs.Parse(args); err != nil {
		if !errors.Is(err, flag.ErrHelp) { // help has printed the usage already
			fs.Usage()
		}
		return nil, err
	}

	var err error
	if err = c.LogLevel.UnmarshalText([]byte(logLevel)); err != nil {
		err = fmt.Errorf("invalid log level: %s", logLevel)
	} else if u, perr := url.Parse(c.Server); perr != nil || u.Host == "" {
		err = fmt.Errorf("invalid server URL: %s", c.Server)
	} else if c.PollInterval < 10*time.Millisecond {
		err = fmt.Errorf("poll interval must be at least 10ms: %s", c.PollInterval)
	} else if c.Window < 1 {
		err = errors.New("window must be at least 1")
	} else if c.Limit < 1 || c.Limit > api.MaxLimit {
		err = fmt.Errorf("limit must be between 1 and %d", api.MaxLimit)
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	return c, nil
}
