package compute

import (
	"slices"
	"time"

	"github.com/obsidianstack/lookerhealth/pkg/types"
)

// DefaultClusterWindow is the maximum gap between an event and the current
// cluster representative for the event to be absorbed into that cluster.
const DefaultClusterWindow = 30 * time.Minute

// Cluster collapses one artifact's error events into cluster representatives.
//
// Events with an absent or unparseable time are dropped. The rest are sorted
// oldest first; equal timestamps keep their input order. Walking that order,
// an event becomes a new representative when it is more than window after the
// previous representative, otherwise it is absorbed and discarded. The gap is
// always measured from the last representative, never from the last absorbed
// event, so a steady trickle of errors still opens a new cluster every window.
//
// The result is ordered oldest first and consecutive representatives are
// strictly more than window apart.
func Cluster(events []types.RawEvent, window time.Duration, loc *time.Location) []types.Event {
	if window <= 0 {
		window = DefaultClusterWindow
	}

	normalized := make([]types.Event, 0, len(events))
	for _, raw := range events {
		if ev, ok := NormalizeEvent(raw, loc); ok {
			normalized = append(normalized, ev)
		}
	}
	if len(normalized) == 0 {
		return nil
	}

	slices.SortStableFunc(normalized, func(a, b types.Event) int {
		return a.Time.Compare(b.Time)
	})

	var (
		reps []types.Event
		last time.Time
	)
	for _, ev := range normalized {
		if len(reps) == 0 || ev.Time.Sub(last) > window {
			reps = append(reps, ev)
			last = ev.Time
		}
	}
	return reps
}
