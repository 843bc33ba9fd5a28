package bridge_test

import (
	"os"
	"strings"
	"testing"

	"github.com/Priivacy-ai/spec-kitty-sub006/internal/bridge"
	"github.com/Priivacy-ai/spec-kitty-sub006/internal/domain"
)

func snapshotWith(lanes map[string]domain.Lane) domain.StatusSnapshot {
	wps := map[string]domain.WPState{}
	for id, lane := range lanes {
		wps[id] = domain.WPState{Lane: lane}
	}
	return domain.StatusSnapshot{WorkPackages: wps}
}

const legacyView = `---
wp: WP-01
lane: planned
owner: alice
---

# WP-01

Hand-written notes that must survive.
`

func TestLegacyPhaseIsNoOp(t *testing.T) {
	dir := t.TempDir()
	path := bridge.ViewPath(dir, "WP-01")
	if err := os.WriteFile(path, []byte(legacyView), 0o644); err != nil {
		t.Fatal(err)
	}
	snap := snapshotWith(map[string]domain.Lane{"WP-01": domain.LaneDone})
	if err := bridge.UpdateAllViews(dir, snap, bridge.PhaseLegacy); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != legacyView {
		t.Fatal("phase 0 must not touch files")
	}
}

func TestMirrorPhaseRewritesOnlyLaneLine(t *testing.T) {
	dir := t.TempDir()
	path := bridge.ViewPath(dir, "WP-01")
	if err := os.WriteFile(path, []byte(legacyView), 0o644); err != nil {
		t.Fatal(err)
	}
	snap := snapshotWith(map[string]domain.Lane{"WP-01": domain.LaneInProgress})
	if err := bridge.UpdateAllViews(dir, snap, bridge.PhaseMirror); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := strings.Replace(legacyView, "lane: planned", "lane: in_progress", 1)
	if string(got) != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestMirrorPhaseSkipsUpToDateFile(t *testing.T) {
	dir := t.TempDir()
	path := bridge.ViewPath(dir, "WP-01")
	if err := os.WriteFile(path, []byte(legacyView), 0o644); err != nil {
		t.Fatal(err)
	}
	before, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	snap := snapshotWith(map[string]domain.Lane{"WP-01": domain.LanePlanned})
	if err := bridge.UpdateAllViews(dir, snap, bridge.PhaseMirror); err != nil {
		t.Fatalf("update: %v", err)
	}
	after, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !after.ModTime().Equal(before.ModTime()) || after.Size() != before.Size() {
		t.Fatal("up-to-date file must not be rewritten")
	}
}

func TestMirrorPhaseSkipsMissingFile(t *testing.T) {
	dir := t.TempDir()
	snap := snapshotWith(map[string]domain.Lane{"WP-09": domain.LaneDone})
	if err := bridge.UpdateAllViews(dir, snap, bridge.PhaseMirror); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := os.Stat(bridge.ViewPath(dir, "WP-09")); !os.IsNotExist(err) {
		t.Fatal("phase 1 must not create files")
	}
}

func TestGeneratedPhaseCreatesMissingFile(t *testing.T) {
	dir := t.TempDir()
	snap := snapshotWith(map[string]domain.Lane{"WP-09": domain.LaneBlocked})
	if err := bridge.UpdateAllViews(dir, snap, bridge.PhaseGenerated); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := os.ReadFile(bridge.ViewPath(dir, "WP-09"))
	if err != nil {
		t.Fatal(err)
	}
	content := string(got)
	if !strings.Contains(content, "lane: blocked") {
		t.Fatalf("generated view missing lane:\n%s", content)
	}
	if !strings.Contains(content, "wp: WP-09") {
		t.Fatalf("generated view missing wp id:\n%s", content)
	}
	if !strings.Contains(content, "Generated from the status log") {
		t.Fatalf("generated view missing marker:\n%s", content)
	}
}

func TestMirrorPhaseKeepsCRLFLineEndings(t *testing.T) {
	dir := t.TempDir()
	path := bridge.ViewPath(dir, "WP-01")
	view := strings.ReplaceAll(legacyView, "\n", "\r\n")
	if err := os.WriteFile(path, []byte(view), 0o644); err != nil {
		t.Fatal(err)
	}
	snap := snapshotWith(map[string]domain.Lane{"WP-01": domain.LaneInProgress})
	if err := bridge.UpdateAllViews(dir, snap, bridge.PhaseMirror); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := strings.Replace(view, "lane: planned\r\n", "lane: in_progress\r\n", 1)
	if string(got) != want {
		t.Fatalf("line endings not preserved:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestFrontmatterAliasCountsAsUpToDate(t *testing.T) {
	dir := t.TempDir()
	path := bridge.ViewPath(dir, "WP-01")
	view := strings.Replace(legacyView, "lane: planned", "lane: doing", 1)
	if err := os.WriteFile(path, []byte(view), 0o644); err != nil {
		t.Fatal(err)
	}
	snap := snapshotWith(map[string]domain.Lane{"WP-01": domain.LaneInProgress})
	if err := bridge.UpdateAllViews(dir, snap, bridge.PhaseMirror); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != view {
		t.Fatal("doing already means in_progress; the file must be left alone")
	}
}

func TestMissingLaneKeyGetsPrepended(t *testing.T) {
	dir := t.TempDir()
	path := bridge.ViewPath(dir, "WP-01")
	view := "---\nwp: WP-01\n---\n\nBody.\n"
	if err := os.WriteFile(path, []byte(view), 0o644); err != nil {
		t.Fatal(err)
	}
	snap := snapshotWith(map[string]domain.Lane{"WP-01": domain.LaneClaimed})
	if err := bridge.UpdateAllViews(dir, snap, bridge.PhaseMirror); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(got)
	if !strings.HasPrefix(content, "---\nlane: claimed\n") {
		t.Fatalf("lane key not prepended:\n%s", content)
	}
	if !strings.Contains(content, "wp: WP-01") || !strings.Contains(content, "Body.") {
		t.Fatalf("existing content lost:\n%s", content)
	}
}

func TestUnknownPhaseErrors(t *testing.T) {
	snap := snapshotWith(map[string]domain.Lane{"WP-01": domain.LaneDone})
	if err := bridge.UpdateAllViews(t.TempDir(), snap, 7); err == nil {
		t.Fatal("expected error for unknown phase")
	}
}
