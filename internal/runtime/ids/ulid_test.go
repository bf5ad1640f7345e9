package ids

import (
	"sort"
	"testing"
)

func TestNewIDIsUniqueAndOrdered(t *testing.T) {
	const n = 1000

	ids := make([]string, n)
	seen := make(map[string]struct{}, n)
	for i := range ids {
		id := NewID()
		if len(id) != 26 {
			t.Fatalf("unexpected id length %d for %q", len(id), id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
		ids[i] = id
	}

	if !sort.StringsAreSorted(ids) {
		t.Fatal("ids generated in sequence must sort in generation order")
	}
}

func TestNewIDIsSafeForConcurrentUse(t *testing.T) {
	const workers = 8
	const perWorker = 200

	out := make(chan string, workers*perWorker)
	for i := 0; i < workers; i++ {
		go func() {
			for j := 0; j < perWorker; j++ {
				out <- NewID()
			}
		}()
	}

	seen := make(map[string]struct{}, workers*perWorker)
	for k := 0; k < workers*perWorker; k++ {
		id := <-out
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q under concurrency", id)
		}
		seen[id] = struct{}{}
	}
}
