package filterstore

import (
	"fmt"
	"sync"
	"testing"

	"github.com/SimonWaldherr/bloomd/internal/bloomfilter"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := Config{Default: bloomfilter.Config{Capacity: 1000, Probability: 0.01, InMemory: true}}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestCreateThenResolve(t *testing.T) {
	m := newTestManager(t)

	if st := m.Create("users", nil); st != StatusOK {
		t.Fatalf("create: got %v, want StatusOK", st)
	}
	if h := m.resolve("users"); h == nil {
		t.Fatal("expected resolve to find the new handle")
	}
}

func TestCreateAlreadyExists(t *testing.T) {
	m := newTestManager(t)
	m.Create("users", nil)

	if st := m.Create("users", nil); st != StatusAlreadyExists {
		t.Errorf("create duplicate: got %v, want StatusAlreadyExists", st)
	}
}

func TestHeadMonotonicity(t *testing.T) {
	m := newTestManager(t)
	first := m.Head()

	m.Create("a", nil)
	second := m.Head()
	if second == first {
		t.Fatal("create did not publish a new head")
	}
	if second.vsn <= first.vsn {
		t.Errorf("version number did not increase: %d -> %d", first.vsn, second.vsn)
	}

	m.Create("b", nil)
	third := m.Head()
	if third.vsn <= second.vsn {
		t.Errorf("version number did not increase on second create: %d -> %d", second.vsn, third.vsn)
	}
}

func TestDropExcludesFromHead(t *testing.T) {
	m := newTestManager(t)
	m.Create("users", nil)

	if st := m.Drop("users"); st != StatusOK {
		t.Fatalf("drop: got %v, want StatusOK", st)
	}
	if h := m.resolve("users"); h != nil {
		t.Fatal("dropped filter still resolves against head")
	}
	if st := m.Drop("users"); st != StatusNotFound {
		t.Errorf("second drop: got %v, want StatusNotFound", st)
	}
}

func TestDropUnknownNotFound(t *testing.T) {
	m := newTestManager(t)
	if st := m.Drop("nope"); st != StatusNotFound {
		t.Errorf("drop unknown: got %v, want StatusNotFound", st)
	}
}

func TestNoPhantomRecreateAfterDrop(t *testing.T) {
	m := newTestManager(t)
	m.Create("users", nil)
	m.SetKeys("users", [][]byte{[]byte("alice")})
	m.Drop("users")

	if st := m.Create("users", nil); st != StatusOK {
		t.Fatalf("recreate after drop: got %v, want StatusOK", st)
	}
	ok, st := m.CheckKeys("users", [][]byte{[]byte("alice")})
	if st != StatusOK {
		t.Fatalf("check_keys: got status %v", st)
	}
	if ok[0] {
		t.Error("recreated filter must not carry over keys from the dropped instance")
	}
}

func TestClearRequiresProxied(t *testing.T) {
	// Unmap is a no-op for in-memory filters, so only an on-disk filter can
	// become proxied.
	cfg := bloomfilter.Config{Capacity: 100, Probability: 0.01, InMemory: false}
	m, err := NewManager(Config{DataDir: t.TempDir(), Default: cfg})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	m.Create("users", nil)

	if st := m.Clear("users"); st != StatusNotProxied {
		t.Fatalf("clear mapped filter: got %v, want StatusNotProxied", st)
	}

	if st := m.Unmap("users"); st != StatusOK {
		t.Fatalf("unmap: got %v", st)
	}
	if st := m.Clear("users"); st != StatusOK {
		t.Fatalf("clear proxied filter: got %v, want StatusOK", st)
	}
	if h := m.resolve("users"); h != nil {
		t.Fatal("cleared filter still resolves against head")
	}
}

func TestSetAndCheckKeys(t *testing.T) {
	m := newTestManager(t)
	m.Create("users", nil)

	keys := [][]byte{[]byte("alice"), []byte("bob")}
	added, st := m.SetKeys("users", keys)
	if st != StatusOK {
		t.Fatalf("set_keys: got %v", st)
	}
	for i, wasNew := range added {
		if !wasNew {
			t.Errorf("key %d expected to be newly added", i)
		}
	}

	present, st := m.CheckKeys("users", keys)
	if st != StatusOK {
		t.Fatalf("check_keys: got %v", st)
	}
	for i, ok := range present {
		if !ok {
			t.Errorf("key %d expected present after set_keys", i)
		}
	}

	absent, st := m.CheckKeys("users", [][]byte{[]byte("carol")})
	if st != StatusOK {
		t.Fatalf("check_keys: got %v", st)
	}
	if absent[0] {
		t.Error("unrelated key must not be reported present")
	}
}

func TestCheckKeysUnknownFilter(t *testing.T) {
	m := newTestManager(t)
	if _, st := m.CheckKeys("nope", nil); st != StatusNotFound {
		t.Errorf("check_keys on unknown filter: got %v, want StatusNotFound", st)
	}
}

func TestListAllAndListCold(t *testing.T) {
	m := newTestManager(t)
	m.Create("a", nil)
	m.Create("b", nil)

	all := m.ListAll()
	if len(all) != 2 {
		t.Fatalf("list_all: got %d entries, want 2", len(all))
	}

	// Neither filter has ever been touched by check_keys/set_keys, so both
	// are cold from the start: list_all's own scan only marks the
	// directory version hot, never the per-handle flag list_cold reads.
	cold := m.ListCold()
	sawA, sawB := false, false
	for _, name := range cold {
		if name == "a" {
			sawA = true
		}
		if name == "b" {
			sawB = true
		}
	}
	if !sawA || !sawB {
		t.Errorf("list_cold with no prior activity: got %v, want both a and b", cold)
	}

	if _, st := m.CheckKeys("a", [][]byte{[]byte("k")}); st != StatusOK {
		t.Fatalf("check_keys: got %v, want StatusOK", st)
	}

	// "a" was just marked hot; list_cold must skip it (and clear the
	// flag in the process) while still reporting the untouched "b".
	cold2 := m.ListCold()
	for _, name := range cold2 {
		if name == "a" {
			t.Error("list_cold must not report a filter just marked hot by check_keys")
		}
	}
	sawB = false
	for _, name := range cold2 {
		if name == "b" {
			sawB = true
		}
	}
	if !sawB {
		t.Errorf("list_cold: got %v, want b still reported cold", cold2)
	}

	// The hot flag on "a" was cleared by the previous call, so a third
	// pass with no intervening activity finds it cold again.
	cold3 := m.ListCold()
	sawA = false
	for _, name := range cold3 {
		if name == "a" {
			sawA = true
		}
	}
	if !sawA {
		t.Errorf("list_cold third pass: got %v, want a cold again", cold3)
	}
}

func TestListColdSkipsProxied(t *testing.T) {
	// A proxied filter can never be "cold" in the reclaimable sense the
	// scan cares about: it has nothing mapped to release.
	cfg := bloomfilter.Config{Capacity: 100, Probability: 0.01, InMemory: false}
	dir := t.TempDir()
	m, err := NewManager(Config{DataDir: dir, Default: cfg})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	m.Create("users", nil)
	m.Unmap("users")

	cold := m.ListCold()
	for _, name := range cold {
		if name == "users" {
			t.Error("list_cold must not report an already-proxied filter")
		}
	}
}

func TestWithFilterExposesMetadata(t *testing.T) {
	m := newTestManager(t)
	m.Create("users", nil)

	var capacity uint64
	st := m.WithFilter("users", func(f *bloomfilter.Filter) {
		capacity = f.Capacity()
	})
	if st != StatusOK {
		t.Fatalf("with_filter: got %v", st)
	}
	if capacity != 1000 {
		t.Errorf("capacity: got %d, want 1000", capacity)
	}
}

func TestConcurrentReadersDuringWrite(t *testing.T) {
	m := newTestManager(t)
	for i := 0; i < 10; i++ {
		m.Create(fmt.Sprintf("f%d", i), nil)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("f%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					m.CheckKeys(name, [][]byte{[]byte("k")})
				}
			}
		}()
	}

	for i := 10; i < 30; i++ {
		m.Create(fmt.Sprintf("f%d", i), nil)
	}
	close(stop)
	wg.Wait()

	if len(m.ListAll()) != 30 {
		t.Errorf("expected 30 live filters after concurrent reads and writes, got %d", len(m.ListAll()))
	}
}

func TestCloseNeutralizesPendingTombstones(t *testing.T) {
	dir := t.TempDir()
	cfg := bloomfilter.Config{Capacity: 100, Probability: 0.01, InMemory: false}
	m, err := NewManager(Config{DataDir: dir, Default: cfg})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	m.Create("users", nil)
	m.Drop("users") // should_delete=true, Reaper has not run yet

	head := m.Head()
	v := head
	for v != nil && v.tombstone == nil {
		v = v.prev
	}
	if v == nil {
		t.Fatal("expected a pending tombstone somewhere in the chain")
	}

	m.Close()

	if v.tombstone.shouldDelete.Load() {
		t.Error("Close must neutralize should_delete on every pending tombstone, even mid-chain")
	}
}
