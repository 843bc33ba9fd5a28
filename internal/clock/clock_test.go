package clock_test

import (
	"os"
	"sync"
	"testing"

	"github.com/Priivacy-ai/spec-kitty-sub006/internal/clock"
)

func TestTickPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ck := clock.New(dir)
	for want := int64(1); want <= 3; want++ {
		got, err := ck.Tick("node-a")
		if err != nil {
			t.Fatalf("tick: %v", err)
		}
		if got != want {
			t.Fatalf("tick = %d, want %d", got, want)
		}
	}
	// a fresh instance reads the same state file
	if got := clock.New(dir).Load("node-a"); got != 3 {
		t.Fatalf("load = %d, want 3", got)
	}
}

func TestNodesAreIndependent(t *testing.T) {
	ck := clock.New(t.TempDir())
	if _, err := ck.Tick("node-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := ck.Tick("node-a"); err != nil {
		t.Fatal(err)
	}
	got, err := ck.Tick("node-b")
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Fatalf("node-b first tick = %d, want 1", got)
	}
	if ck.Load("node-a") != 2 {
		t.Fatalf("node-a = %d, want 2", ck.Load("node-a"))
	}
}

func TestCorruptStateReadsAsZero(t *testing.T) {
	dir := t.TempDir()
	ck := clock.New(dir)
	if err := os.WriteFile(ck.Path, []byte("{glorp"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := ck.Load("node-a"); got != 0 {
		t.Fatalf("load = %d, want 0", got)
	}
	got, err := ck.Tick("node-a")
	if err != nil {
		t.Fatalf("tick over corrupt state: %v", err)
	}
	if got != 1 {
		t.Fatalf("tick = %d, want 1", got)
	}
}

func TestMissingStateReadsAsZero(t *testing.T) {
	ck := clock.New(t.TempDir())
	if got := ck.Load("node-a"); got != 0 {
		t.Fatalf("load = %d, want 0", got)
	}
}

func TestSaveRejectsNegative(t *testing.T) {
	ck := clock.New(t.TempDir())
	if err := ck.Save("node-a", -1); err == nil {
		t.Fatal("expected error for negative value")
	}
	if err := ck.Save("node-a", 0); err != nil {
		t.Fatalf("zero should be accepted: %v", err)
	}
	if err := ck.Save("node-a", 41); err != nil {
		t.Fatal(err)
	}
	got, err := ck.Tick("node-a")
	if err != nil {
		t.Fatal(err)
	}
	if got != 42 {
		t.Fatalf("tick after save = %d, want 42", got)
	}
}

func TestConcurrentTicksNeverCollide(t *testing.T) {
	ck := clock.New(t.TempDir())
	const workers = 8
	const perWorker = 5
	seen := make(chan int64, workers*perWorker)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				v, err := ck.Tick("node-a")
				if err != nil {
					t.Errorf("tick: %v", err)
					return
				}
				seen <- v
			}
		}()
	}
	wg.Wait()
	close(seen)
	got := map[int64]bool{}
	for v := range seen {
		if got[v] {
			t.Fatalf("duplicate tick value %d", v)
		}
		got[v] = true
	}
	if len(got) != workers*perWorker {
		t.Fatalf("got %d distinct values, want %d", len(got), workers*perWorker)
	}
	if ck.Load("node-a") != workers*perWorker {
		t.Fatalf("final = %d, want %d", ck.Load("node-a"), workers*perWorker)
	}
}

func TestCompare(t *testing.T) {
	if clock.Compare(1, "a", 2, "a") != -1 {
		t.Fatal("lower counter must order first")
	}
	if clock.Compare(3, "a", 2, "b") != 1 {
		t.Fatal("higher counter must order last")
	}
	if clock.Compare(2, "a", 2, "b") != -1 {
		t.Fatal("equal counters break ties on node id")
	}
	if clock.Compare(2, "x", 2, "x") != 0 {
		t.Fatal("identical stamps compare equal")
	}
}
