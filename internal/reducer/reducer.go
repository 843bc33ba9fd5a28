// Package reducer folds a feature's full event set into one materialized
// snapshot. The fold is preceded by an internal sort, so the result is
// independent of the physical order events appear in the log; concurrent
// appenders may interleave lines however the filesystem flushes them.
package reducer

import (
	"sort"
	"time"

	"github.com/Priivacy-ai/spec-kitty-sub006/internal/clock"
	"github.com/Priivacy-ai/spec-kitty-sub006/internal/domain"
	"github.com/Priivacy-ai/spec-kitty-sub006/internal/eventlog"
)

// Reduce materializes a snapshot from the given event set. Two calls over the
// same set produce byte-identical serialized snapshots once materialized_at
// is excluded: work_packages and summary are maps, which encoding/json
// serializes with sorted keys.
func Reduce(events []domain.StatusEvent) domain.StatusSnapshot {
	return ReduceAt(events, time.Now().UTC())
}

// ReduceAt is Reduce with an explicit materialization timestamp. The
// timestamp is informational only and never participates in ordering.
func ReduceAt(events []domain.StatusEvent, now time.Time) domain.StatusSnapshot {
	ordered := make([]domain.StatusEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return eventLess(ordered[i], ordered[j])
	})

	snap := domain.StatusSnapshot{
		EventCount:     len(ordered),
		MaterializedAt: now.Format(time.RFC3339),
		Summary:        map[domain.Lane]int{},
		WorkPackages:   map[string]domain.WPState{},
	}
	for _, ev := range ordered {
		snap.FeatureSlug = ev.FeatureSlug
		snap.LastEventID = ev.EventID

		wp := snap.WorkPackages[ev.WPID]
		wp.Lane = ev.ToLane
		wp.Actor = ev.Actor
		wp.LastTransitionAt = ev.At
		wp.LastEventID = ev.EventID
		if ev.Force {
			wp.ForceCount++
		}
		if ev.Evidence != nil {
			wp.Evidence = ev.Evidence
		}
		snap.WorkPackages[ev.WPID] = wp
	}

	// Summary is always derived from the mapping, never mutated alongside it,
	// so the two views cannot drift. All seven lanes appear, zeros included.
	for _, lane := range domain.Lanes() {
		snap.Summary[lane] = 0
	}
	for _, wp := range snap.WorkPackages {
		snap.Summary[wp.Lane]++
	}
	return snap
}

// Materialize reads the feature's log and reduces it in one call.
func Materialize(dir string) (domain.StatusSnapshot, error) {
	events, err := eventlog.Read(dir)
	if err != nil {
		return domain.StatusSnapshot{}, err
	}
	return Reduce(events), nil
}

// eventLess totally orders events by the tuple (at, counter, node_id,
// event_id). Every event contributes a value at every position: an event
// without a clock stamp compares as (0, ""), so the order stays transitive
// when only some same-instant events carry stamps. The clock tie-break keeps
// two same-timestamp writers in causal order; the ULID event_id makes the
// order total even without stamps.
func eventLess(a, b domain.StatusEvent) bool {
	ta, errA := time.Parse(time.RFC3339, a.At)
	tb, errB := time.Parse(time.RFC3339, b.At)
	if errA == nil && errB == nil && !ta.Equal(tb) {
		return ta.Before(tb)
	}
	ca, na := clockStamp(a)
	cb, nb := clockStamp(b)
	if cmp := clock.Compare(ca, na, cb, nb); cmp != 0 {
		return cmp < 0
	}
	return a.EventID < b.EventID
}

// clockStamp extracts the logical clock extension, or the zero stamp (0, "")
// when absent or malformed.
func clockStamp(ev domain.StatusEvent) (int64, string) {
	if ev.Extensions == nil {
		return 0, ""
	}
	node, ok := ev.Extensions[domain.ExtNodeID].(string)
	if !ok {
		return 0, ""
	}
	switch v := ev.Extensions[domain.ExtClock].(type) {
	case int64:
		return v, node
	case int:
		return int64(v), node
	case float64:
		return int64(v), node
	}
	return 0, ""
}
