package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/roman-kulish/leo-telemetry/internal/telemetry"
)

const (
	// ParseErrorsThreshold defines the number of consecutive parse errors allowed
	ParseErrorsThreshold = 5
)

var (
	// ErrTooManyParseErrors is returned when the number of consecutive parse errors exceeds the threshold
	ErrTooManyParseErrors = errors.New("too many consecutive parse errors")

	// ErrBrokenPipe is returned when there's an error reading from the device or command output
	ErrBrokenPipe = errors.New("broken pipe")
)

// WithLogger sets the logger for the source
func WithLogger(logger *slog.Logger) func(s *LineSource) {
	return func(s *LineSource) {
		s.logger = logger.With(slog.String("source", s.name))
	}
}

// WithParseErrorsThreshold sets the threshold for consecutive parse errors
func WithParseErrorsThreshold(threshold uint8) func(s *LineSource) {
	return func(s *LineSource) {
		s.parseErrorsThreshold = threshold
	}
}

// LineSource reads device lines, one reading per line, from a serial device,
// the stdout of a command, or any reader.
type LineSource struct {
	name string

	device string    // path of a character device or file
	args   []string  // command and arguments
	reader io.Reader // plain reader, mostly for tests and stdin

	parseErrorsThreshold uint8
	logger               *slog.Logger
	now                  func() time.Time
}

var _ telemetry.Provider = (*LineSource)(nil)

func newLineSource(name string, options ...func(s *LineSource)) *LineSource {
	s := LineSource{
		name:                 name,
		logger:               slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
		parseErrorsThreshold: ParseErrorsThreshold,
		now:                  time.Now,
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// NewDeviceSource creates a source reading from the device at path, such as a
// serial port. The line settings (baud rate, raw mode) are expected to be
// configured outside the process.
func NewDeviceSource(path string, options ...func(s *LineSource)) *LineSource {
	s := newLineSource("device:"+path, options...)
	s.device = path
	return s
}

// NewCommandSource creates a source reading the stdout of a command. The
// command is killed when the source context is cancelled.
func NewCommandSource(args []string, options ...func(s *LineSource)) *LineSource {
	s := newLineSource("command:"+strings.Join(args, " "), options...)
	s.args = args
	return s
}

// NewReaderSource creates a source reading from r until EOF.
func NewReaderSource(name string, r io.Reader, options ...func(s *LineSource)) *LineSource {
	s := newLineSource(name, options...)
	s.reader = r
	return s
}

func (s *LineSource) Name() string {
	return s.name
}

// Run reads lines and sends parsed readings to the readings channel until the
// input ends, the context is cancelled or the parse errors threshold is hit.
func (s *LineSource) Run(ctx context.Context, readings chan<- telemetry.Reading) error {
	switch {
	case len(s.args) > 0:
		return s.runCommand(ctx, readings)

	case s.device != "":
		f, err := os.Open(s.device)
		if err != nil {
			return fmt.Errorf("opening device: %w", err)
		}
		defer f.Close()

		// unblock the pending read on cancellation
		stop := context.AfterFunc(ctx, func() { _ = f.Close() })
		defer stop()

		return s.handleLines(ctx, f, readings)

	case s.reader != nil:
		return s.handleLines(ctx, s.reader, readings)

	default:
		return errors.New("no input configured")
	}
}

func (s *LineSource) runCommand(ctx context.Context, readings chan<- telemetry.Reading) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.args[0], s.args[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("error creating stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("error creating stderr pipe: %w", err)
	}

	if err = cmd.Start(); err != nil {
		return fmt.Errorf("error starting command: %w", err)
	}

	s.logger.Info("starting readings collection...")

	outDone := make(chan error, 1)
	errDone := make(chan error, 1)

	go func() { outDone <- s.handleLines(ctx, stdout, readings) }()
	go func() { errDone <- s.handleStderr(stderr) }()

	var errs []error
	if err = <-outDone; err != nil {
		cancel() // stop the command, nothing reads its output anymore
		errs = append(errs, err)
	}
	if err = <-errDone; err != nil {
		errs = append(errs, err)
	}
	// pipes must be drained before Wait
	if err = cmd.Wait(); err != nil && ctx.Err() == nil {
		errs = append(errs, fmt.Errorf("command exited with error: %w", err))
	}

	s.logger.Info("readings collection stopped")

	return errors.Join(errs...)
}

// handleLines reads lines, parses and sends readings to the readings channel.
func (s *LineSource) handleLines(ctx context.Context, r io.Reader, readings chan<- telemetry.Reading) error {
	var parseErrors uint8

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		reading, err := ParseLine(line)
		if err != nil {
			parseErrors++
			s.logger.Warn(fmt.Sprintf("error parsing reading: %s", err.Error()), slog.String("line", line))

			if parseErrors >= s.parseErrorsThreshold {
				return ErrTooManyParseErrors
			}

			continue
		}

		parseErrors = 0 // reset counter

		// stamped on receipt, the recorder may store it later
		reading.Timestamp = s.now()

		select {
		case readings <- *reading:
		case <-ctx.Done():
			return nil
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) && ctx.Err() == nil {
		return fmt.Errorf("%w: error reading input: %w", ErrBrokenPipe, err)
	}

	return nil
}

// handleStderr reads from stderr and logs it.
func (s *LineSource) handleStderr(stderr io.Reader) error {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		s.logger.Warn(fmt.Sprintf("%s >> %s", s.args[0], line))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		return fmt.Errorf("%w: error reading stderr: %w", ErrBrokenPipe, err)
	}

	return nil
}
