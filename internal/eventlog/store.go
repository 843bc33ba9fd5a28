// Package eventlog is the append-only store for status events: one
// newline-delimited JSON file per feature directory. Appends are single
// O_APPEND writes so concurrent processes cannot tear each other's lines;
// reads tolerate corruption at single-line granularity.
package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Priivacy-ai/spec-kitty-sub006/internal/domain"
)

// LogFileName is the per-feature event log inside a feature directory.
const LogFileName = "status-log.jsonl"

// maxLineBytes bounds a single event line; evidence payloads stay well under.
const maxLineBytes = 4 * 1024 * 1024

// CorruptError reports a log line that failed to parse or validate. Line is
// 1-indexed so operators can open the file and hand-repair the bad line.
type CorruptError struct {
	Path   string
	Line   int
	Reason error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("%s: line %d: %v", e.Path, e.Line, e.Reason)
}

func (e *CorruptError) Unwrap() error { return e.Reason }

// LogPath returns the event log path for a feature directory.
func LogPath(dir string) string {
	return filepath.Join(dir, LogFileName)
}

// Append validates the event and appends one serialized line to the
// feature's log, creating the directory if missing. An illegal lane pair
// without force is rejected here, before any write, so no caller can slip an
// unforced illegal transition into the log. Keys serialize in fixed
// alphabetical order, so the same logical event is byte-identical regardless
// of which process wrote it. There is no read before the write.
func Append(dir string, event domain.StatusEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid status event: %w", err)
	}
	if !event.Force && !domain.IsLegalTransition(event.FromLane, event.ToLane) {
		return fmt.Errorf("invalid lane transition %s -> %s (use force to bypass)", event.FromLane, event.ToLane)
	}
	encoded, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}
	encoded = append(encoded, '\n')
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create feature directory: %w", err)
	}
	f, err := os.OpenFile(LogPath(dir), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(encoded); err != nil {
		return fmt.Errorf("append event log: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync event log: %w", err)
	}
	return nil
}

// Read returns all events in file order. Blank lines are skipped. A line that
// is not valid JSON, or that is missing required fields, aborts the read with
// a CorruptError naming the line; silently dropping history is worse than a
// hard stop. A missing log file is fresh state and yields an empty slice.
func Read(dir string) ([]domain.StatusEvent, error) {
	var events []domain.StatusEvent
	err := scanLines(dir, func(lineNo int, raw []byte) error {
		var ev domain.StatusEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return err
		}
		if err := ev.Validate(); err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	})
	return events, err
}

// ReadRaw returns the same lines as untyped records. Producers may stamp
// fields outside the canonical schema; the reducer is free to ignore them and
// raw consumers to inspect them, without a schema bump.
func ReadRaw(dir string) ([]map[string]any, error) {
	var records []map[string]any
	err := scanLines(dir, func(lineNo int, raw []byte) error {
		var rec map[string]any
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	})
	return records, err
}

func scanLines(dir string, fn func(lineNo int, raw []byte) error) error {
	path := LogPath(dir)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		if err := fn(lineNo, raw); err != nil {
			return &CorruptError{Path: path, Line: lineNo, Reason: err}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event log: %w", err)
	}
	return nil
}
