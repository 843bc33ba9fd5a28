package domain

import (
	"errors"
	"fmt"
	"time"
)

// extension field keys stamped by the engine on append.
const (
	ExtClock  = "clock"
	ExtNodeID = "node_id"
)

// StatusEvent is one immutable lane-transition fact. Fields are declared in
// alphabetical json-key order so two processes serializing the same logical
// event produce byte-identical lines.
type StatusEvent struct {
	Actor         string         `json:"actor"`
	At            string         `json:"at" format:"date-time"`
	EventID       string         `json:"event_id"`
	Evidence      *Evidence      `json:"evidence,omitempty"`
	ExecutionMode string         `json:"execution_mode"`
	Extensions    map[string]any `json:"extensions,omitempty"`
	FeatureSlug   string         `json:"feature_slug"`
	Force         bool           `json:"force"`
	FromLane      Lane           `json:"from_lane"`
	ToLane        Lane           `json:"to_lane"`
	WPID          string         `json:"wp_id"`
}

// Evidence is attached only on transitions into done.
type Evidence struct {
	Commands []CommandResult `json:"commands,omitempty"`
	Repos    []RepoChange    `json:"repos,omitempty"`
	Review   *ReviewApproval `json:"review,omitempty"`
}

type ReviewApproval struct {
	Approved bool   `json:"approved"`
	At       string `json:"at,omitempty" format:"date-time"`
	Reviewer string `json:"reviewer"`
}

type RepoChange struct {
	Branch       string `json:"branch,omitempty"`
	Commit       string `json:"commit"`
	FilesChanged int    `json:"files_changed,omitempty"`
	Repo         string `json:"repo"`
}

type CommandResult struct {
	Command  string `json:"command"`
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output,omitempty"`
}

// StatusSnapshot is the materialized view of a feature's work packages. It is
// a pure function of the event set and safe to discard and recompute.
type StatusSnapshot struct {
	EventCount     int                `json:"event_count"`
	FeatureSlug    string             `json:"feature_slug"`
	LastEventID    string             `json:"last_event_id"`
	MaterializedAt string             `json:"materialized_at" format:"date-time"`
	Summary        map[Lane]int       `json:"summary"`
	WorkPackages   map[string]WPState `json:"work_packages"`
}

// WPState is the current state of one work package after the fold.
type WPState struct {
	Actor            string    `json:"actor"`
	Evidence         *Evidence `json:"evidence,omitempty"`
	ForceCount       int       `json:"force_count"`
	Lane             Lane      `json:"lane"`
	LastEventID      string    `json:"last_event_id"`
	LastTransitionAt string    `json:"last_transition_at"`
}

// Validate checks the required fields of an event before append or after read.
func (e StatusEvent) Validate() error {
	switch {
	case e.EventID == "":
		return errors.New("event_id is required")
	case len(e.EventID) != 26:
		return fmt.Errorf("event_id %q must be 26 characters", e.EventID)
	case e.FeatureSlug == "":
		return errors.New("feature_slug is required")
	case e.WPID == "":
		return errors.New("wp_id is required")
	case e.Actor == "":
		return errors.New("actor is required")
	case e.At == "":
		return errors.New("at is required")
	case e.ExecutionMode == "":
		return errors.New("execution_mode is required")
	}
	if _, err := time.Parse(time.RFC3339, e.At); err != nil {
		return fmt.Errorf("at %q: %w", e.At, err)
	}
	if _, err := EnsureLane(string(e.FromLane)); err != nil {
		return fmt.Errorf("from_lane: %w", err)
	}
	if _, err := EnsureLane(string(e.ToLane)); err != nil {
		return fmt.Errorf("to_lane: %w", err)
	}
	return nil
}
