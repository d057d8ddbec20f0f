package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roman-kulish/leo-telemetry/internal/series"
	"github.com/roman-kulish/leo-telemetry/internal/telemetry"
)

const (
	DefaultPollInterval = time.Second
	pushBufferSize      = 16
)

// Fetcher polls a batch of recent readings.
type Fetcher interface {
	Fetch(ctx context.Context) ([]telemetry.Reading, error)
}

// PushSource delivers pushed readings until the context is cancelled.
type PushSource interface {
	Run(ctx context.Context, out chan<- telemetry.Reading) error
}

// Config holds the session knobs. They are independent of one another and of
// the server side push cadence.
type Config struct {
	PollInterval time.Duration
	WindowSize   int
}

// WithLogger sets the logger for the session
func WithLogger(logger *slog.Logger) func(s *Session) {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithPushSource adds a source of pushed readings
func WithPushSource(p PushSource) func(s *Session) {
	return func(s *Session) {
		s.push = p
	}
}

// OnUpdate registers a callback invoked with every new state. It runs on the
// session goroutine and must not block.
func OnUpdate(fn func(State)) func(s *Session) {
	return func(s *Session) {
		s.onUpdate = fn
	}
}

// OnError registers a callback invoked when a poll fails. It runs on the
// session goroutine and must not block.
func OnError(fn func(error)) func(s *Session) {
	return func(s *Session) {
		s.onError = fn
	}
}

// Session merges periodic polls and pushed readings into a single State.
// A single goroutine owns the state; readers get immutable snapshots.
type Session struct {
	fetcher Fetcher
	push    PushSource
	config  Config

	onUpdate func(State)
	onError  func(error)
	logger   *slog.Logger

	state atomic.Pointer[State]
}

// New creates a new session with an unset mark and an empty window.
func New(fetcher Fetcher, config Config, options ...func(s *Session)) *Session {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.WindowSize <= 0 {
		config.WindowSize = series.DefaultWindowSize
	}

	s := Session{
		fetcher:  fetcher,
		config:   config,
		onUpdate: func(State) {},
		onError:  func(error) {},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	s.state.Store(&State{Window: []telemetry.Reading{}})

	return &s
}

// Snapshot returns the current state. Safe for concurrent use.
func (s *Session) Snapshot() State {
	return *s.state.Load()
}

type fetchResult struct {
	batch []telemetry.Reading
	err   error
}

// Run polls immediately and then on every tick until the context is
// cancelled. Fetches run in their own goroutines, a slow fetch neither delays
// nor skips the next tick and fetches may overlap. Poll failures are reported
// through OnError and leave the state untouched.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	results := make(chan fetchResult)
	pushed := make(chan telemetry.Reading, pushBufferSize)

	if s.push != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := s.push.Run(ctx, pushed); err != nil && ctx.Err() == nil {
				s.logger.Warn(fmt.Sprintf("push source stopped: %s", err.Error()))
			}
		}()
	}

	fetch := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()

			batch, err := s.fetcher.Fetch(ctx)
			select {
			case results <- fetchResult{batch: batch, err: err}:
			case <-ctx.Done():
			}
		}()
	}

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	fetch()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			fetch()

		case res := <-results:
			if res.err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Warn(fmt.Sprintf("error fetching readings: %s", res.err.Error()))
				s.onError(res.err)
				continue
			}
			s.applyBatch(res.batch)

		case r := <-pushed:
			s.applyPush(r)
		}
	}
}

func (s *Session) applyBatch(batch []telemetry.Reading) {
	current := s.state.Load()

	next, accepted := current.ApplyBatch(batch, s.config.WindowSize)
	if len(accepted) == 0 {
		return
	}

	s.logger.Debug("batch applied",
		slog.Int("received", len(batch)),
		slog.Int("accepted", len(accepted)),
		slog.String("mark", next.Mark.String()))

	s.publish(next)
}

func (s *Session) applyPush(r telemetry.Reading) {
	current := s.state.Load()

	next := current.ApplyPush(r)
	if next.Latest == current.Latest {
		return // older than what we have
	}

	s.publish(next)
}

func (s *Session) publish(next State) {
	s.state.Store(&next)
	s.onUpdate(next)
}
