// Package series maintains the client side view of the telemetry time series:
// it decides which readings of a fetched batch are new, keeps a bounded
// ascending window of them and tracks the freshest reading seen.
//
// All functions in this package are pure. Callers own the state and replace
// it with the returned values.
package series

import (
	"slices"
	"time"

	"github.com/roman-kulish/leo-telemetry/internal/telemetry"
)

// Mark is the high-water-mark: the timestamp of the most recently accepted
// reading. The zero value is an unset mark, meaning nothing has been
// accepted yet.
type Mark struct {
	ts    time.Time
	isSet bool
}

// MarkAt returns a mark set to t.
func MarkAt(t time.Time) Mark {
	return Mark{ts: t, isSet: true}
}

// IsSet reports whether at least one reading has been accepted.
func (m Mark) IsSet() bool {
	return m.isSet
}

// Time returns the mark timestamp, or the zero time if the mark is unset.
func (m Mark) Time() time.Time {
	return m.ts
}

// Before reports whether m is strictly behind t. An unset mark is behind
// every timestamp.
func (m Mark) Before(t time.Time) bool {
	return !m.isSet || t.After(m.ts)
}

func (m Mark) String() string {
	if !m.isSet {
		return "<unset>"
	}
	return m.ts.UTC().Format(time.RFC3339Nano)
}

// Reconcile computes the readings of batch that are new relative to prev and
// the advanced mark.
//
// The batch may come in any order (the store returns it newest first) and is
// sorted ascending by timestamp with a stable sort, so readings sharing a
// timestamp keep their arrival order. A reading is new when its timestamp is
// strictly after prev; a reading equal to the mark was accepted by an earlier
// poll and is skipped. Readings sharing a timestamp above the mark are all
// accepted: identifiers are not compared.
//
// The returned mark is the timestamp of the last accepted reading, or prev
// when nothing was accepted. Calling Reconcile again with the same batch and
// the returned mark yields no readings. batch is not modified.
func Reconcile(prev Mark, batch []telemetry.Reading) (Mark, []telemetry.Reading) {
	if len(batch) == 0 {
		return prev, nil
	}

	sorted := slices.Clone(batch)
	slices.SortStableFunc(sorted, func(a, b telemetry.Reading) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	accepted := sorted
	if prev.IsSet() {
		// sorted is ascending: everything after the first reading past the
		// mark is past the mark too
		idx := slices.IndexFunc(sorted, func(r telemetry.Reading) bool {
			return prev.Before(r.Timestamp)
		})
		if idx < 0 {
			return prev, nil
		}
		accepted = sorted[idx:]
	}

	return MarkAt(accepted[len(accepted)-1].Timestamp), accepted
}
