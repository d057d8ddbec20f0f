package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/leo-telemetry/internal/session"
	"github.com/roman-kulish/leo-telemetry/internal/telemetry"
)

var testTime = time.Date(2025, 5, 2, 14, 0, 0, 0, time.UTC)

func reading(id string, offset time.Duration) telemetry.Reading {
	return telemetry.Reading{
		ID:        id,
		Timestamp: testTime.Add(offset),
		AccX:      0.01, AccY: -0.02, AccZ: 9.81,
		GyroX: 0.1, GyroY: 0.2, GyroZ: 0.3,
		Temp: 24.1, Hum: 41.2,
		Lat: 12.9716, Lon: 77.5946,
		Current: 412,
	}
}

func TestNewConfigFromArgs(t *testing.T) {
	config, err := NewConfigFromArgs(nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, NewConfig(), config)

	config, err = NewConfigFromArgs([]string{
		"--server", "http://ground:8080",
		"-i", "250ms",
		"--window", "10",
		"--limit", "64",
		"--no-push",
		"--plain",
		"--log-level", "debug",
	}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "http://ground:8080", config.Server)
	assert.Equal(t, 250*time.Millisecond, config.PollInterval)
	assert.Equal(t, 10, config.Window)
	assert.Equal(t, 64, config.Limit)
	assert.True(t, config.NoPush)
	assert.True(t, config.Plain)
	assert.Equal(t, slog.LevelDebug, config.LogLevel)
}

func TestNewConfigFromArgs_Invalid(t *testing.T) {
	tests := []struct {
		args []string
		err  string
	}{
		{args: []string{"--log-level", "loud"}, err: "invalid log level: loud"},
		{args: []string{"--server", "ground"}, err: "invalid server URL: ground"},
		{args: []string{"--poll-interval", "1ms"}, err: "poll interval must be at least 10ms: 1ms"},
		{args: []string{"--window", "0"}, err: "window must be at least 1"},
		{args: []string{"--limit", "0"}, err: "limit must be between 1 and 500"},
		{args: []string{"--limit", "501"}, err: "limit must be between 1 and 500"},
		{args: []string{"--unknown"}, err: "unknown flag: --unknown"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			var out bytes.Buffer

			var err error
			require.NotPanics(t, func() {
				_, err = NewConfigFromArgs(tt.args, &out)
			})
			require.Error(t, err)
			assert.Equal(t, tt.err, err.Error())
			assert.Contains(t, out.String(), "--window")
		})
	}
}

func TestNewConfigFromArgs_Help(t *testing.T) {
	var out bytes.Buffer

	_, err := NewConfigFromArgs([]string{"--help"}, &out)
	assert.True(t, errors.Is(err, flag.ErrHelp))
	assert.Equal(t, 1, strings.Count(out.String(), "Usage of dashboard:"))
}

func TestView_Waiting(t *testing.T) {
	var buf bytes.Buffer
	v := NewView(&buf, 30, false)

	require.NoError(t, v.Render(session.State{}))

	out := buf.String()
	assert.Contains(t, out, "Waiting for data...")
	assert.Contains(t, out, "Sensor Data Log (0 of 30)")
	assert.Contains(t, out, "No data available")
	assert.NotContains(t, out, clearScreen)
}

func TestView_Render(t *testing.T) {
	var buf bytes.Buffer
	v := NewView(&buf, 30, true)
	v.now = func() time.Time { return testTime.Add(5 * time.Second) }

	r1, r2 := reading("1", 0), reading("2", time.Second)
	r2.Temp = 25.5
	r2.Lat, r2.Lon = 0, 0

	require.NoError(t, v.Render(session.State{
		Window: []telemetry.Reading{r1, r2},
		Latest: &r2,
	}))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, clearScreen))
	assert.Contains(t, out, "4 seconds ago")
	assert.Contains(t, out, "25.5°C")
	assert.Contains(t, out, "412.00mA")
	assert.Contains(t, out, "N/A")
	assert.Contains(t, out, "Sensor Data Log (2 of 30)")

	// newest first
	log := out[strings.Index(out, "Sensor Data Log"):]
	assert.Less(t, strings.Index(log, "25.5°C"), strings.Index(log, "24.1°C"))
	assert.Contains(t, log, "12.9716, 77.5946")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sensor-data", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]telemetry.Reading{reading("2", time.Second), reading("1", 0)})
	}))
	defer srv.Close()

	config := NewConfig()
	config.Server = srv.URL
	config.Limit = 5
	config.NoPush = true
	config.Plain = true
	config.PollInterval = 50 * time.Millisecond

	var out syncBuffer
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- Run(ctx, config, slog.New(slog.NewTextHandler(io.Discard, nil)), &out)
	}()

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Sensor Data Log (2 of 30)")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	assert.Contains(t, out.String(), "Waiting for data...")
}

func TestRun_InvalidServer(t *testing.T) {
	config := NewConfig()
	config.Server = "ftp://ground"

	err := Run(context.Background(), config, slog.New(slog.NewTextHandler(io.Discard, nil)), io.Discard)
	assert.Error(t, err)
}
