// Package session keeps the dashboard view of the telemetry stream: the
// high-water-mark of the polled readings, the bounded window and the latest
// reading fed by both polling and push.
package session

import (
	"github.com/roman-kulish/leo-telemetry/internal/series"
	"github.com/roman-kulish/leo-telemetry/internal/telemetry"
)

// State is an immutable view of a session. Transitions return a new State
// and never modify the receiver or its slices.
type State struct {
	Mark   series.Mark
	Window []telemetry.Reading // ascending by timestamp
	Latest *telemetry.Reading
}

// ApplyBatch reconciles a polled batch against the mark, folds the accepted
// readings into a window of at most size readings and offers the newest
// accepted reading as the latest. It also returns the accepted readings; a
// batch with nothing new leaves the state unchanged.
func (s State) ApplyBatch(batch []telemetry.Reading, size int) (State, []telemetry.Reading) {
	mark, accepted := series.Reconcile(s.Mark, batch)
	if len(accepted) == 0 {
		return s, nil
	}

	return State{
		Mark:   mark,
		Window: series.Fold(s.Window, accepted, size),
		Latest: series.MergeLatest(s.Latest, accepted[len(accepted)-1]),
	}, accepted
}

// ApplyPush offers a pushed reading as the latest. Pushed readings never enter
// the window and do not move the mark.
func (s State) ApplyPush(r telemetry.Reading) State {
	s.Latest = series.MergeLatest(s.Latest, r)
	return s
}
