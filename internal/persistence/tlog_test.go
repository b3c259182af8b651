package persistence

import (
	"testing"

	"evergreen/internal/configtree"
)

func TestAppendAndReplayRoundTrip(t *testing.T) {
	root := t.TempDir()

	tree := configtree.New()
	defer tree.Close()

	store, err := Open(root)
	if err != nil {
		t.Fatal(err)
	}
	sub := store.AttachTo(tree)
	defer sub.Cancel()

	ts1 := tree.Now()
	if _, err := tree.Write("/services/a/state", "RUNNING", ts1); err != nil {
		t.Fatal(err)
	}
	ts2 := tree.Now()
	if _, err := tree.Write("/services/a/version", "1", ts2); err != nil {
		t.Fatal(err)
	}
	// Watchers run on the tree's dispatch goroutine; closing the tree drains
	// its queue so both Appends land before the log is closed.
	tree.Close()
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	replayed := configtree.New()
	defer replayed.Close()
	if err := Replay(root, replayed); err != nil {
		t.Fatal(err)
	}

	if v, ok := replayed.Read("/services/a/state"); !ok || v != "RUNNING" {
		t.Fatalf("expected replayed state RUNNING, got %v ok=%v", v, ok)
	}
	if v, ok := replayed.Read("/services/a/version"); !ok || v != "1" {
		t.Fatalf("expected replayed version 1, got %v ok=%v", v, ok)
	}
}

func TestCompactThenReplay(t *testing.T) {
	root := t.TempDir()

	tree := configtree.New()
	defer tree.Close()
	store, err := Open(root)
	if err != nil {
		t.Fatal(err)
	}
	sub := store.AttachTo(tree)

	mustWrite(t, tree, "/services/a/state", "RUNNING")
	mustWrite(t, tree, "/services/a/version", "1")

	if err := Compact(root, tree); err != nil {
		t.Fatal(err)
	}
	sub.Cancel()
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	replayed := configtree.New()
	defer replayed.Close()
	if err := Replay(root, replayed); err != nil {
		t.Fatal(err)
	}
	if v, ok := replayed.Read("/services/a/state"); !ok || v != "RUNNING" {
		t.Fatalf("expected compacted snapshot to carry state RUNNING, got %v ok=%v", v, ok)
	}
}

func mustWrite(t *testing.T, tree *configtree.Tree, path string, value interface{}) {
	t.Helper()
	if _, err := tree.Write(path, value, tree.Now()); err != nil {
		t.Fatalf("Write(%s): %v", path, err)
	}
}
