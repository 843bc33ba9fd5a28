// Package clock persists per-writer Lamport counters so events from
// independent, uncoordinated writers can be merged into one causal order
// without trusting wall clocks.
package clock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Priivacy-ai/spec-kitty-sub006/internal/lockfile"
)

// StateFileName is the clock state file inside a feature directory.
const StateFileName = "status-clock.json"

// Clock reads and writes node counters in one JSON state file. Counters for
// distinct node ids are independent even though they share the file.
type Clock struct {
	Path string
}

// New returns a clock backed by the state file in the given feature directory.
func New(dir string) Clock {
	return Clock{Path: filepath.Join(dir, StateFileName)}
}

// Load returns the last persisted counter for a node. A missing or corrupt
// state file reads as zero: a new writer, never a fatal error.
func (c Clock) Load(nodeID string) int64 {
	return c.loadAll()[nodeID]
}

// Save persists a counter value for a node. Negative values are rejected.
// The write is read-modify-write, so it runs under a scoped exclusive lock
// on the state file, and the file itself is replaced via temp+rename so a
// crash leaves either the old or the new state, never a partial write.
func (c Clock) Save(nodeID string, value int64) error {
	if value < 0 {
		return fmt.Errorf("clock value for %s must be non-negative, got %d", nodeID, value)
	}
	return lockfile.WithLock(c.Path, func() error {
		state := c.loadAll()
		state[nodeID] = value
		return c.writeState(state)
	})
}

// Tick increments and persists the node's counter in one locked operation,
// returning the new value.
func (c Clock) Tick(nodeID string) (int64, error) {
	var next int64
	err := lockfile.WithLock(c.Path, func() error {
		state := c.loadAll()
		next = state[nodeID] + 1
		state[nodeID] = next
		return c.writeState(state)
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// Compare totally orders two clock stamps by (counter, node_id). Distinct
// events never compare equal under this order unless both counter and node
// collide, which distinct writers cannot produce.
func Compare(counterA int64, nodeA string, counterB int64, nodeB string) int {
	switch {
	case counterA < counterB:
		return -1
	case counterA > counterB:
		return 1
	case nodeA < nodeB:
		return -1
	case nodeA > nodeB:
		return 1
	}
	return 0
}

func (c Clock) loadAll() map[string]int64 {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return map[string]int64{}
	}
	var state map[string]int64
	if err := json.Unmarshal(data, &state); err != nil || state == nil {
		// Corrupt state degrades to "all writers are new" rather than blocking.
		return map[string]int64{}
	}
	return state
}

func (c Clock) writeState(state map[string]int64) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal clock state: %w", err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return fmt.Errorf("create clock directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.Path), ".clock-*")
	if err != nil {
		return fmt.Errorf("create clock temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write clock state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync clock state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close clock temp file: %w", err)
	}
	if err := os.Rename(tmpPath, c.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace clock state: %w", err)
	}
	return nil
}
