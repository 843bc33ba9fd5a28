// Package bridge projects the canonical snapshot onto the older, hand-edited
// per-WP markdown files for backward compatibility. The projection is
// one-way and phase-gated; the bridge never writes into the event log and
// holds no rollout state of its own.
package bridge

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Priivacy-ai/spec-kitty-sub006/internal/domain"
)

// Rollout phases. The phase for a feature is resolved by the caller.
const (
	// PhaseLegacy leaves hand-edited files authoritative; the bridge is a no-op.
	PhaseLegacy = 0
	// PhaseMirror writes canonical lanes back into existing compatibility
	// files, only when the stored value differs.
	PhaseMirror = 1
	// PhaseGenerated is the same projection, but the output is generated-only:
	// missing files are created and nothing reads them back as input.
	PhaseGenerated = 2
)

// UpdateAllViews projects the snapshot's per-WP lanes onto the compatibility
// files in featureDir according to the rollout phase.
func UpdateAllViews(featureDir string, snap domain.StatusSnapshot, phase int) error {
	switch phase {
	case PhaseLegacy:
		return nil
	case PhaseMirror, PhaseGenerated:
	default:
		return fmt.Errorf("unknown bridge phase %d", phase)
	}

	wpIDs := make([]string, 0, len(snap.WorkPackages))
	for id := range snap.WorkPackages {
		wpIDs = append(wpIDs, id)
	}
	sort.Strings(wpIDs)

	for _, id := range wpIDs {
		path := ViewPath(featureDir, id)
		if err := updateView(path, id, snap.WorkPackages[id].Lane, phase); err != nil {
			return fmt.Errorf("update view %s: %w", path, err)
		}
	}
	return nil
}

// ViewPath returns the compatibility file path for a work package.
func ViewPath(featureDir, wpID string) string {
	return filepath.Join(featureDir, wpID+".md")
}

func updateView(path, wpID string, lane domain.Lane, phase int) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if phase != PhaseGenerated {
			// Hand-edited files stay authoritative for their own existence.
			return nil
		}
		return os.WriteFile(path, renderView(wpID, lane), 0o644)
	}

	updated, changed, err := replaceLane(content, lane)
	if err != nil {
		return err
	}
	if !changed {
		// Diff minimization: an unchanged file is never rewritten, so the
		// projection causes no spurious version-control churn.
		return nil
	}
	return os.WriteFile(path, updated, 0o644)
}

// replaceLane rewrites only the `lane:` line inside the frontmatter block,
// leaving every other hand-edited byte untouched. The rebuild works on the
// original lines, so a CRLF file keeps its line endings everywhere.
func replaceLane(content []byte, lane domain.Lane) ([]byte, bool, error) {
	lines := strings.SplitAfter(string(content), "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], "\r\n") != "---" || !strings.HasSuffix(lines[0], "\n") {
		return content, false, nil
	}
	fence := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\r\n") == "---" {
			fence = i
			break
		}
	}
	if fence < 0 {
		return content, false, nil
	}
	block := strings.ReplaceAll(strings.Join(lines[1:fence], ""), "\r\n", "\n")

	var fm struct {
		Lane string `yaml:"lane"`
	}
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return nil, false, fmt.Errorf("parse frontmatter: %w", err)
	}
	if stored, err := domain.EnsureLane(fm.Lane); err == nil && stored == lane {
		return content, false, nil
	}

	for i := 1; i < fence; i++ {
		body := strings.TrimRight(lines[i], "\r\n")
		if !strings.HasPrefix(strings.TrimSpace(body), "lane:") {
			continue
		}
		indent := body[:len(body)-len(strings.TrimLeft(body, " \t"))]
		lines[i] = indent + "lane: " + string(lane) + lines[i][len(body):]
		return []byte(strings.Join(lines, "")), true, nil
	}

	// No lane key yet: insert one right after the opening fence, matching its
	// line ending.
	ending := lines[0][3:]
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[0], "lane: "+string(lane)+ending)
	out = append(out, lines[1:]...)
	return []byte(strings.Join(out, "")), true, nil
}

func renderView(wpID string, lane domain.Lane) []byte {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.WriteString("wp: " + wpID + "\n")
	buf.WriteString("lane: " + string(lane) + "\n")
	buf.WriteString("generated: true\n")
	buf.WriteString("---\n\n")
	buf.WriteString("<!-- Generated from the status log. Do not edit; changes are overwritten. -->\n")
	return buf.Bytes()
}
