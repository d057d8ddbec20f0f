package series

import (
	"github.com/roman-kulish/leo-telemetry/internal/telemetry"
)

// DefaultWindowSize is the number of readings kept for charting and the
// tabular log.
const DefaultWindowSize = 30

// Fold appends accepted to window and evicts the oldest readings until at
// most size remain.
//
// Both inputs are expected to be ascending by timestamp (window because it
// was produced by Fold, accepted because it was produced by Reconcile), so the
// result is ascending without re-sorting. Fold never writes into the backing
// array of either input. A size of zero or less yields an empty window.
func Fold(window, accepted []telemetry.Reading, size int) []telemetry.Reading {
	if size <= 0 {
		return []telemetry.Reading{}
	}

	total := len(window) + len(accepted)
	skip := max(total-size, 0)

	result := make([]telemetry.Reading, 0, total-skip)
	if skip < len(window) {
		result = append(result, window[skip:]...)
		result = append(result, accepted...)
	} else {
		result = append(result, accepted[skip-len(window):]...)
	}

	return result
}
