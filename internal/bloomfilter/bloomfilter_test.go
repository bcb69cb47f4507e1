package bloomfilter

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAddThenContains(t *testing.T) {
	cfg := Config{Capacity: 1000, Probability: 0.01, InMemory: true}
	f, err := Open("", "mem", cfg, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	added, err := f.Add([]byte("hello"))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !added {
		t.Error("expected Add to report a newly added key")
	}

	present, err := f.Contains([]byte("hello"))
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if !present {
		t.Error("key added should be reported present")
	}

	absent, err := f.Contains([]byte("goodbye"))
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if absent {
		t.Error("unrelated key should very likely not be present at this load factor")
	}
}

func TestAddIdempotent(t *testing.T) {
	cfg := Config{Capacity: 1000, Probability: 0.01, InMemory: true}
	f, _ := Open("", "mem", cfg, true)

	first, _ := f.Add([]byte("k"))
	second, _ := f.Add([]byte("k"))
	if !first {
		t.Error("first Add of a key should report true")
	}
	if second {
		t.Error("second Add of the same key should report false")
	}
	if f.Count() != 1 {
		t.Errorf("Count: got %d, want 1", f.Count())
	}
}

func TestOpenWithoutCreateIfMissingFails(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(dir, "absent", DefaultConfig(), false); err == nil {
		t.Error("expected an error opening a nonexistent filter with createIfMissing=false")
	}
}

func TestPersistAndReload(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Capacity: 500, Probability: 0.01, InMemory: false}

	f, err := Open(dir, "people", cfg, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f.Add([]byte("alice"))
	if err := f.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	f2, err := Open(dir, "people", cfg, false)
	if err != nil {
		t.Fatalf("Open existing: %v", err)
	}
	present, err := f2.Contains([]byte("alice"))
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if !present {
		t.Error("key flushed to disk should survive a reopen")
	}
	if f2.Count() != 1 {
		t.Errorf("Count after reload: got %d, want 1", f2.Count())
	}
}

func TestCloseReleasesMemoryAndMarksProxied(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Capacity: 500, Probability: 0.01, InMemory: false}
	f, _ := Open(dir, "sessions", cfg, true)
	f.Add([]byte("sess-1"))

	if f.IsProxied() {
		t.Fatal("a freshly opened filter must not start proxied")
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !f.IsProxied() {
		t.Error("Close should leave the filter proxied")
	}

	// Contains must transparently remap from disk.
	present, err := f.Contains([]byte("sess-1"))
	if err != nil {
		t.Fatalf("Contains after close: %v", err)
	}
	if !present {
		t.Error("key written before close must be visible after an implicit remap")
	}
	if f.IsProxied() {
		t.Error("Contains should have remapped the filter back into memory")
	}
}

func TestInMemoryCloseIsNoOp(t *testing.T) {
	f, _ := Open("", "mem", Config{Capacity: 10, Probability: 0.01, InMemory: true}, true)
	f.Add([]byte("k"))
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if f.IsProxied() {
		t.Error("an in-memory filter must never report proxied")
	}
}

func TestDeleteRemovesOnDiskState(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Capacity: 100, Probability: 0.01, InMemory: false}
	f, _ := Open(dir, "gone", cfg, true)
	f.Add([]byte("k"))
	f.Flush()

	if err := f.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	filterDir := filepath.Join(dir, DirName("gone"))
	if _, err := Open(dir, "gone", cfg, false); err == nil {
		t.Error("expected opening a deleted filter to fail")
	}
	if _, err := os.Stat(filterDir); !os.IsNotExist(err) {
		// The directory itself should also be gone; this is a secondary
		// sanity check on top of the Open failure above.
		t.Errorf("filter directory %s still present after Delete (stat err: %v)", filterDir, err)
	}
}

func TestDirNameRoundTrip(t *testing.T) {
	name, ok := NameFromDir(DirName("my-filter"))
	if !ok {
		t.Fatal("expected NameFromDir to accept a DirName'd value")
	}
	if name != "my-filter" {
		t.Errorf("name: got %q, want %q", name, "my-filter")
	}

	if _, ok := NameFromDir("unrelated"); ok {
		t.Error("NameFromDir must reject entries without the reserved prefix")
	}
}
