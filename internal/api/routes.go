package api

import (
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"slices"
	"strconv"

	"github.com/roman-kulish/leo-telemetry/internal/chart"
	"github.com/roman-kulish/leo-telemetry/internal/series"
	"github.com/roman-kulish/leo-telemetry/internal/storage"
)

// RegisterRoutes registers all API routes with the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sensor-data", s.handleSensorData)
	mux.HandleFunc("GET /api/sensor-data/latest", s.handleLatest)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	if s.renderer != nil {
		mux.HandleFunc("GET /api/sensor-chart.png", s.handleChart)
	}
	if s.push != nil {
		mux.Handle("GET /ws", s.push)
	}
}

// handleSensorData returns the most recent readings, newest first.
func (s *Server) handleSensorData(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, s.config.DefaultLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	readings, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error(fmt.Sprintf("error retrieving sensor data: %s", err.Error()))
		writeError(w, http.StatusInternalServerError, "Server error retrieving sensor data")
		return
	}

	writeJSON(w, http.StatusOK, readings)
}

// handleLatest returns the single most recent reading.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	reading, err := s.store.Latest(r.Context())
	if err != nil {
		if errors.Is(err, storage.ErrNoData) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}

		s.logger.Error(fmt.Sprintf("error retrieving latest reading: %s", err.Error()))
		writeError(w, http.StatusInternalServerError, "Server error retrieving sensor data")
		return
	}

	writeJSON(w, http.StatusOK, reading)
}

// handleChart renders one field of the most recent readings as PNG.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("field")
	if name == "" {
		name = string(chart.FieldTemp)
	}

	field, err := chart.ParseField(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit, err := parseLimit(r, series.DefaultWindowSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	readings, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error(fmt.Sprintf("error retrieving sensor data: %s", err.Error()))
		writeError(w, http.StatusInternalServerError, "Server error retrieving sensor data")
		return
	}

	// the chart runs left to right, oldest first
	slices.Reverse(readings)

	img, err := s.renderer.Render(readings, field)
	if err != nil {
		if errors.Is(err, chart.ErrNoReadings) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}

		s.logger.Error(fmt.Sprintf("error rendering chart: %s", err.Error()))
		writeError(w, http.StatusInternalServerError, "Server error rendering chart")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	if err = png.Encode(w, img); err != nil {
		s.logger.Debug(fmt.Sprintf("error writing chart: %s", err.Error()))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// parseLimit reads the limit query parameter, def when absent.
func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > MaxLimit {
		return 0, fmt.Errorf("invalid limit %q: must be between 1 and %d", raw, MaxLimit)
	}
	return limit, nil
}
