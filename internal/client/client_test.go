package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/leo-telemetry/internal/relay"
	"github.com/roman-kulish/leo-telemetry/internal/telemetry"
)

func TestPoller_Fetch(t *testing.T) {
	ts := time.Date(2025, 5, 2, 14, 0, 0, 0, time.UTC)
	var gotQuery string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sensor-data", r.URL.Path)
		gotQuery = r.URL.RawQuery

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]telemetry.Reading{
			{ID: "2", Timestamp: ts.Add(time.Second), Temp: 22},
			{ID: "1", Timestamp: ts, Temp: 21},
		})
	}))
	defer srv.Close()

	p, err := NewPoller(srv.URL+"/", WithLimit(10))
	require.NoError(t, err)

	batch, err := p.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "2", batch[0].ID)
	assert.Equal(t, "limit=10", gotQuery)
}

func TestPoller_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"`))
	}))
	defer srv.Close()

	p, err := NewPoller(srv.URL)
	require.NoError(t, err)

	batch, err := p.Fetch(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, batch)
	assert.Empty(t, batch)
}

func TestPoller_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"Server error retrieving sensor data"}`))
	}))
	defer srv.Close()

	p, err := NewPoller(srv.URL)
	require.NoError(t, err)

	_, err = p.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Server error retrieving sensor data")
}

func TestPoller_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p, err := NewPoller(url)
	require.NoError(t, err)

	_, err = p.Fetch(context.Background())
	assert.Error(t, err)
}

func TestNewPoller_InvalidURL(t *testing.T) {
	_, err := NewPoller("ftp://example.com")
	assert.Error(t, err)

	_, err = NewPoller("://broken")
	assert.Error(t, err)
}

// pushServer writes the given messages on every connection, then closes it.
func pushServer(t *testing.T, messages ...any) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var connections atomic.Int32
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws", r.URL.Path)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		connections.Add(1)
		for _, m := range messages {
			if s, ok := m.(string); ok {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(s))
				continue
			}
			_ = conn.WriteJSON(m)
		}
	}))
	return srv, &connections
}

func TestPushSubscriber_ForwardsReadings(t *testing.T) {
	srv, _ := pushServer(t,
		"garbage",
		relay.Event{Event: "other", Data: telemetry.Reading{ID: "skip"}},
		relay.Event{Event: relay.EventNewData, Data: telemetry.Reading{ID: "r1", Temp: 20}},
	)
	defer srv.Close()

	sub, err := NewPushSubscriber(srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan telemetry.Reading, 1)
	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx, out) }()

	select {
	case r := <-out:
		assert.Equal(t, "r1", r.ID)
		assert.Equal(t, 20.0, r.Temp)
	case <-time.After(2 * time.Second):
		t.Fatal("no reading received")
	}

	cancel()
	select {
	case err = <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}

func TestPushSubscriber_Redials(t *testing.T) {
	srv, connections := pushServer(t,
		relay.Event{Event: relay.EventNewData, Data: telemetry.Reading{ID: "r1"}},
	)
	defer srv.Close()

	sub, err := NewPushSubscriber(srv.URL, WithRedialDelay(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan telemetry.Reading, 10)
	go func() { _ = sub.Run(ctx, out) }()

	require.Eventually(t, func() bool { return connections.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestPushSubscriber_UnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	sub, err := NewPushSubscriber(url, WithRedialDelay(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// dial failures are dropped, Run only ends with the context
	assert.NoError(t, sub.Run(ctx, make(chan telemetry.Reading)))
}

func TestNewPushSubscriber_Scheme(t *testing.T) {
	sub, err := NewPushSubscriber("https://telemetry.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "wss://telemetry.example.com/ws", sub.endpoint)

	sub, err = NewPushSubscriber("http://localhost:5000")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:5000/ws", sub.endpoint)

	_, err = NewPushSubscriber("tcp://localhost:5000")
	assert.Error(t, err)
}
