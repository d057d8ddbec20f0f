// Package client talks to the telemetry API: it polls the recent readings
// and subscribes to the pushed latest reading.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/roman-kulish/leo-telemetry/internal/telemetry"
)

const (
	DefaultLimit   = 32
	defaultTimeout = 5 * time.Second
	maxBodySize    = 8 << 20
)

// WithLogger sets the logger for the poller
func WithLogger(logger *slog.Logger) func(p *Poller) {
	return func(p *Poller) {
		p.logger = logger
	}
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) func(p *Poller) {
	return func(p *Poller) {
		p.client = c
	}
}

// WithLimit sets the number of readings requested per poll
func WithLimit(limit int) func(p *Poller) {
	return func(p *Poller) {
		if limit > 0 {
			p.limit = limit
		}
	}
}

// Poller fetches the most recent readings from the query endpoint.
type Poller struct {
	endpoint string
	limit    int
	client   *http.Client
	logger   *slog.Logger
}

// NewPoller creates a new poller for the API at baseURL.
func NewPoller(baseURL string, options ...func(p *Poller)) (*Poller, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing server URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported server URL scheme %q", base.Scheme)
	}

	p := Poller{
		endpoint: base.JoinPath("api", "sensor-data").String(),
		limit:    DefaultLimit,
		client:   &http.Client{Timeout: defaultTimeout},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&p)
	}

	return &p, nil
}

// Fetch requests one batch of readings. Transport errors and non-2xx replies
// are errors. A body that does not decode is a malformed batch: it is logged
// and returned as an empty batch.
func (p *Poller) Fetch(ctx context.Context) ([]telemetry.Reading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?limit="+strconv.Itoa(p.limit), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching readings: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &e) == nil && e.Message != "" {
			return nil, fmt.Errorf("fetching readings: %s: %s", resp.Status, e.Message)
		}
		return nil, fmt.Errorf("fetching readings: %s", resp.Status)
	}

	var readings []telemetry.Reading
	if err = json.Unmarshal(body, &readings); err != nil {
		p.logger.Warn(fmt.Sprintf("malformed batch: %s", err.Error()))
		return []telemetry.Reading{}, nil
	}

	return readings, nil
}
