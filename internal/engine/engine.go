// Package engine ties the status core together: it validates proposed
// transitions, stamps them with an event id and logical clock, appends them
// to the feature's log, and materializes snapshots for readers.
package engine

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Priivacy-ai/spec-kitty-sub006/internal/bridge"
	"github.com/Priivacy-ai/spec-kitty-sub006/internal/cache"
	"github.com/Priivacy-ai/spec-kitty-sub006/internal/clock"
	"github.com/Priivacy-ai/spec-kitty-sub006/internal/config"
	"github.com/Priivacy-ai/spec-kitty-sub006/internal/domain"
	"github.com/Priivacy-ai/spec-kitty-sub006/internal/eventlog"
	"github.com/Priivacy-ai/spec-kitty-sub006/internal/reducer"
)

type Engine struct {
	Root    string
	Config  *config.Config
	NodeID  string
	Cache   *cache.Store
	Now     func() time.Time
	Entropy io.Reader
}

func New(root string, cfg *config.Config, nodeID string) Engine {
	return Engine{
		Root:    root,
		Config:  cfg,
		NodeID:  nodeID,
		Now:     time.Now,
		Entropy: rand.Reader,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// TransitionOptions are parameters for appending one lane transition.
type TransitionOptions struct {
	FeatureSlug   string
	WPID          string
	From          string
	To            string
	Actor         string
	Force         bool
	ExecutionMode string
	Evidence      *domain.Evidence
}

// AppendTransition validates and appends one transition fact. Validation
// happens entirely before the write: an illegal pair without force, or an
// unknown lane string, never reaches the log.
func (e Engine) AppendTransition(opts TransitionOptions) (domain.StatusEvent, error) {
	if e.Config == nil {
		return domain.StatusEvent{}, errors.New("config not loaded")
	}
	if opts.FeatureSlug == "" {
		return domain.StatusEvent{}, errors.New("feature is required")
	}
	if opts.WPID == "" {
		return domain.StatusEvent{}, errors.New("wp id is required")
	}
	from, err := domain.EnsureLane(opts.From)
	if err != nil {
		return domain.StatusEvent{}, err
	}
	to, err := domain.EnsureLane(opts.To)
	if err != nil {
		return domain.StatusEvent{}, err
	}
	if !opts.Force && !domain.IsLegalTransition(from, to) {
		return domain.StatusEvent{}, fmt.Errorf("invalid lane transition %s -> %s (use force to bypass)", from, to)
	}
	if opts.Evidence != nil && to != domain.LaneDone {
		return domain.StatusEvent{}, fmt.Errorf("evidence may only accompany transitions into done, not %s", to)
	}

	actor := opts.Actor
	if actor == "" {
		actor = e.Config.Actor
	}
	mode := opts.ExecutionMode
	if mode == "" {
		mode = e.Config.ExecutionMode
	}
	now := e.now().UTC()

	featureDir := e.Config.FeatureDir(e.Root, opts.FeatureSlug)
	counter, err := clock.New(featureDir).Tick(e.NodeID)
	if err != nil {
		return domain.StatusEvent{}, fmt.Errorf("tick clock: %w", err)
	}

	ev := domain.StatusEvent{
		Actor:         actor,
		At:            now.Format(time.RFC3339),
		EventID:       e.newEventID(now),
		Evidence:      opts.Evidence,
		ExecutionMode: mode,
		Extensions: map[string]any{
			domain.ExtClock:  counter,
			domain.ExtNodeID: e.NodeID,
		},
		FeatureSlug: opts.FeatureSlug,
		Force:       opts.Force,
		FromLane:    from,
		ToLane:      to,
		WPID:        opts.WPID,
	}
	if err := eventlog.Append(featureDir, ev); err != nil {
		return domain.StatusEvent{}, err
	}
	return ev, nil
}

// Materialize reads the feature's full log, reduces it deterministically,
// projects the result through the legacy bridge per the configured phase, and
// refreshes the snapshot cache when one is attached.
func (e Engine) Materialize(ctx context.Context, featureSlug string) (domain.StatusSnapshot, error) {
	if e.Config == nil {
		return domain.StatusSnapshot{}, errors.New("config not loaded")
	}
	featureDir := e.Config.FeatureDir(e.Root, featureSlug)
	events, err := eventlog.Read(featureDir)
	if err != nil {
		return domain.StatusSnapshot{}, err
	}
	snap := reducer.ReduceAt(events, e.now().UTC())
	if snap.FeatureSlug == "" {
		snap.FeatureSlug = featureSlug
	}
	if err := bridge.UpdateAllViews(featureDir, snap, e.Config.Bridge.Phase); err != nil {
		return domain.StatusSnapshot{}, err
	}
	if e.Cache != nil {
		if err := e.Cache.SaveSnapshot(ctx, snap); err != nil {
			return domain.StatusSnapshot{}, fmt.Errorf("cache snapshot: %w", err)
		}
	}
	return snap, nil
}

// CurrentLane returns a WP's lane per the latest snapshot. Unknown WPs start
// in planned.
func (e Engine) CurrentLane(featureSlug, wpID string) (domain.Lane, error) {
	featureDir := e.Config.FeatureDir(e.Root, featureSlug)
	events, err := eventlog.Read(featureDir)
	if err != nil {
		return "", err
	}
	snap := reducer.ReduceAt(events, e.now().UTC())
	if wp, ok := snap.WorkPackages[wpID]; ok {
		return wp.Lane, nil
	}
	return domain.LanePlanned, nil
}

// ReadEvents returns the feature's events in file order.
func (e Engine) ReadEvents(featureSlug string) ([]domain.StatusEvent, error) {
	return eventlog.Read(e.Config.FeatureDir(e.Root, featureSlug))
}

// ReadRawEvents returns the feature's log lines as untyped records.
func (e Engine) ReadRawEvents(featureSlug string) ([]map[string]any, error) {
	return eventlog.ReadRaw(e.Config.FeatureDir(e.Root, featureSlug))
}

func (e Engine) newEventID(now time.Time) string {
	entropy := e.Entropy
	if entropy == nil {
		entropy = rand.Reader
	}
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}
