package domain

import (
	"fmt"
	"strings"
)

// Lane is a named stage in a work package's lifecycle.
type Lane string

const (
	LanePlanned    Lane = "planned"
	LaneClaimed    Lane = "claimed"
	LaneInProgress Lane = "in_progress"
	LaneForReview  Lane = "for_review"
	LaneDone       Lane = "done"
	LaneBlocked    Lane = "blocked"
	LaneCanceled   Lane = "canceled"
)

// laneAliases maps legacy spellings onto canonical lanes.
var laneAliases = map[string]Lane{
	"doing": LaneInProgress,
}

var canonicalLanes = []Lane{
	LanePlanned,
	LaneClaimed,
	LaneInProgress,
	LaneForReview,
	LaneDone,
	LaneBlocked,
	LaneCanceled,
}

// transitions is the legality table. blocked and canceled are reachable from
// every lane and handled separately in IsLegalTransition.
var transitions = map[Lane][]Lane{
	LanePlanned:    {LaneClaimed},
	LaneClaimed:    {LaneInProgress},
	LaneInProgress: {LaneForReview},
	LaneForReview:  {LaneDone, LanePlanned},
	LaneBlocked:    {LaneInProgress},
}

// Lanes returns the seven canonical lanes in lifecycle order.
func Lanes() []Lane {
	out := make([]Lane, len(canonicalLanes))
	copy(out, canonicalLanes)
	return out
}

// EnsureLane normalizes a raw lane string: trims whitespace, lowercases,
// resolves legacy aliases. Unknown values are an error, never coerced.
func EnsureLane(raw string) (Lane, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if alias, ok := laneAliases[s]; ok {
		return alias, nil
	}
	for _, l := range canonicalLanes {
		if s == string(l) {
			return l, nil
		}
	}
	return "", fmt.Errorf("invalid lane %q", raw)
}

// IsLegalTransition reports whether from -> to is in the legality table.
func IsLegalTransition(from, to Lane) bool {
	if to == LaneBlocked || to == LaneCanceled {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
