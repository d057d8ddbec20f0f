package series

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/leo-telemetry/internal/telemetry"
)

var baseTime = time.Date(2025, 4, 12, 9, 30, 0, 0, time.UTC)

func at(sec int) time.Time {
	return baseTime.Add(time.Duration(sec) * time.Second)
}

func reading(sec int) telemetry.Reading {
	return telemetry.Reading{
		ID:        fmt.Sprintf("r%d", sec),
		Timestamp: at(sec),
		Temp:      float64(sec),
	}
}

func readings(secs ...int) []telemetry.Reading {
	out := make([]telemetry.Reading, len(secs))
	for i, s := range secs {
		out[i] = reading(s)
	}
	return out
}

func ids(rs []telemetry.Reading) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestReconcile_FirstBatchAcceptsEverythingSorted(t *testing.T) {
	mark, accepted := Reconcile(Mark{}, readings(1, 3, 2))

	assert.Equal(t, []string{"r1", "r2", "r3"}, ids(accepted))
	require.True(t, mark.IsSet())
	assert.Equal(t, at(3), mark.Time())
}

func TestReconcile_ReadingEqualToMarkIsNotReaccepted(t *testing.T) {
	mark, accepted := Reconcile(MarkAt(at(3)), readings(3, 4))

	assert.Equal(t, []string{"r4"}, ids(accepted))
	assert.Equal(t, at(4), mark.Time())
}

func TestReconcile_EmptyBatchKeepsMark(t *testing.T) {
	for _, prev := range []Mark{{}, MarkAt(at(7))} {
		mark, accepted := Reconcile(prev, nil)
		assert.Empty(t, accepted)
		assert.Equal(t, prev, mark)

		mark, accepted = Reconcile(prev, []telemetry.Reading{})
		assert.Empty(t, accepted)
		assert.Equal(t, prev, mark)
	}
}

func TestReconcile_StaleBatchIsNoop(t *testing.T) {
	prev := MarkAt(at(10))
	mark, accepted := Reconcile(prev, readings(8, 9, 10))

	assert.Empty(t, accepted)
	assert.Equal(t, prev, mark)
}

func TestReconcile_DescendingStoreOrder(t *testing.T) {
	mark, accepted := Reconcile(MarkAt(at(2)), readings(5, 4, 3, 2, 1))

	assert.Equal(t, []string{"r3", "r4", "r5"}, ids(accepted))
	assert.Equal(t, at(5), mark.Time())
}

func TestReconcile_SameTimestampKeepsArrivalOrder(t *testing.T) {
	a := telemetry.Reading{ID: "a", Timestamp: at(5)}
	b := telemetry.Reading{ID: "b", Timestamp: at(5)}
	c := telemetry.Reading{ID: "c", Timestamp: at(4)}

	mark, accepted := Reconcile(MarkAt(at(4)), []telemetry.Reading{a, c, b})

	// both readings at t5 are accepted, identifiers are not compared
	assert.Equal(t, []string{"a", "b"}, ids(accepted))
	assert.Equal(t, at(5), mark.Time())
}

func TestReconcile_DoesNotModifyBatch(t *testing.T) {
	batch := readings(3, 1, 2)
	_, _ = Reconcile(Mark{}, batch)

	assert.Equal(t, []string{"r3", "r1", "r2"}, ids(batch))
}

func TestReconcile_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 200; i++ {
		batch := randomBatch(rng, 40)
		prev := Mark{}
		if rng.IntN(2) == 1 {
			prev = MarkAt(at(rng.IntN(60)))
		}

		mark, _ := Reconcile(prev, batch)
		again, accepted := Reconcile(mark, batch)

		assert.Empty(t, accepted, "iteration %d", i)
		assert.Equal(t, mark, again, "iteration %d", i)
	}
}

func TestReconcile_Monotonic(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))

	mark := Mark{}
	for i := 0; i < 500; i++ {
		next, accepted := Reconcile(mark, randomBatch(rng, 10))

		if mark.IsSet() {
			require.True(t, next.IsSet())
			require.False(t, next.Time().Before(mark.Time()), "mark moved backwards at iteration %d", i)
		}
		for _, r := range accepted {
			require.True(t, mark.Before(r.Timestamp))
		}
		mark = next
	}
}

func TestFold_EvictsOldest(t *testing.T) {
	window := make([]telemetry.Reading, 0, 30)
	for s := 1; s <= 30; s++ {
		window = append(window, reading(s))
	}

	result := Fold(window, readings(31), 30)

	require.Len(t, result, 30)
	assert.Equal(t, "r2", result[0].ID)
	assert.Equal(t, "r31", result[29].ID)
}

func TestFold_AcceptedLargerThanWindow(t *testing.T) {
	result := Fold(readings(1, 2), readings(3, 4, 5, 6), 3)
	assert.Equal(t, []string{"r4", "r5", "r6"}, ids(result))
}

func TestFold_BelowCapacity(t *testing.T) {
	result := Fold(readings(1), readings(2, 3), 30)
	assert.Equal(t, []string{"r1", "r2", "r3"}, ids(result))
}

func TestFold_NonPositiveSize(t *testing.T) {
	assert.Empty(t, Fold(readings(1), readings(2), 0))
	assert.Empty(t, Fold(readings(1), readings(2), -1))
}

func TestFold_DoesNotAliasInput(t *testing.T) {
	window := make([]telemetry.Reading, 2, 10)
	window[0], window[1] = reading(1), reading(2)

	first := Fold(window, readings(3), 10)
	second := Fold(window, readings(4), 10)

	assert.Equal(t, []string{"r1", "r2", "r3"}, ids(first))
	assert.Equal(t, []string{"r1", "r2", "r4"}, ids(second))
}

func TestFold_BoundAndOrderProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))

	mark := Mark{}
	var window []telemetry.Reading
	for i := 0; i < 300; i++ {
		size := 1 + rng.IntN(40)

		var accepted []telemetry.Reading
		mark, accepted = Reconcile(mark, randomBatch(rng, 12))
		window = Fold(window, accepted, size)

		require.LessOrEqual(t, len(window), size)
		for j := 1; j < len(window); j++ {
			require.False(t, window[j].Timestamp.Before(window[j-1].Timestamp), "window out of order at iteration %d", i)
		}
	}
}

func TestMergeLatest(t *testing.T) {
	t5 := reading(5)
	t5dup := telemetry.Reading{ID: "dup", Timestamp: at(5)}
	t4 := reading(4)
	t6 := reading(6)

	got := MergeLatest(nil, t5)
	require.NotNil(t, got)
	assert.Equal(t, "r5", got.ID)

	// tie goes to the candidate
	got = MergeLatest(&t5, t5dup)
	assert.Equal(t, "dup", got.ID)

	got = MergeLatest(&t5, t4)
	assert.Equal(t, "r5", got.ID)

	got = MergeLatest(&t5, t6)
	assert.Equal(t, "r6", got.ID)
}

func TestMergeLatest_OrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	batch := append(randomBatch(rng, 25), reading(200))

	var forward *telemetry.Reading
	for _, r := range batch {
		forward = MergeLatest(forward, r)
	}

	var backward *telemetry.Reading
	for i := len(batch) - 1; i >= 0; i-- {
		backward = MergeLatest(backward, batch[i])
	}

	assert.Equal(t, forward.Timestamp, backward.Timestamp)
}

func TestMark(t *testing.T) {
	var m Mark
	assert.False(t, m.IsSet())
	assert.True(t, m.Before(at(0)))
	assert.Equal(t, "<unset>", m.String())

	m = MarkAt(at(3))
	assert.True(t, m.IsSet())
	assert.False(t, m.Before(at(3)))
	assert.True(t, m.Before(at(4)))
	assert.Equal(t, "2025-04-12T09:30:03Z", m.String())
}

func randomBatch(rng *rand.Rand, maxLen int) []telemetry.Reading {
	n := rng.IntN(maxLen + 1)
	out := make([]telemetry.Reading, n)
	for i := range out {
		s := rng.IntN(120)
		out[i] = telemetry.Reading{ID: fmt.Sprintf("r%d-%d", s, i), Timestamp: at(s)}
	}
	return out
}
