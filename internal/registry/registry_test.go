package registry

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/preston-bernstein/venue-scheduler/internal/domain/sources"
)

func inventory() []sources.InputSource {
	return []sources.InputSource{
		{ID: "stream-1", Type: sources.TypeStream, PriorityRank: 1, IsActive: true, Channels: map[string]string{"ESPN+": "espnplus"}},
		{ID: "cable-2", Type: sources.TypeCable, PriorityRank: 10, IsActive: true, Channels: map[string]string{"ESPN": "206", "FOX": "12"}},
		{ID: "cable-1", Type: sources.TypeCable, PriorityRank: 10, IsActive: true, Channels: map[string]string{"ESPN": "206", "FOX": "12"}},
		{ID: "sat-1", Type: sources.TypeSatellite, PriorityRank: 8, IsActive: false, Channels: map[string]string{"FOX": "5"}},
	}
}

func ids(list []sources.InputSource) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, s.ID)
	}
	return out
}

func TestListAvailableOrdersByRankThenID(t *testing.T) {
	r := New(inventory())
	got := ids(r.ListAvailable([]string{"FOX"}))
	want := []string{"cable-1", "cable-2"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestListAvailableExcludesAllocatedAndInactive(t *testing.T) {
	r := New(inventory())
	if err := r.MarkAllocated("cable-1", "g1"); err != nil {
		t.Fatalf("mark allocated: %v", err)
	}
	got := ids(r.ListAvailable([]string{"FOX"}))
	if len(got) != 1 || got[0] != "cable-2" {
		t.Fatalf("expected only cable-2, got %v", got)
	}
	if err := r.SetActive("sat-1", true); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if got := ids(r.ListAvailable([]string{"FOX"})); len(got) != 2 || got[1] != "sat-1" {
		t.Fatalf("expected sat-1 after activation, got %v", got)
	}
}

func TestListAvailableRequiresExactContainment(t *testing.T) {
	r := New(inventory())
	if got := r.ListAvailable([]string{"ESPN", "ESPN+"}); len(got) != 0 {
		t.Fatalf("expected no source carrying both, got %v", ids(got))
	}
	if got := r.ListAvailable(nil); len(got) != 3 {
		t.Fatalf("expected every active source for empty needs, got %v", ids(got))
	}
}

func TestMarkAllocatedErrors(t *testing.T) {
	r := New(inventory())
	if err := r.MarkAllocated("missing", "g1"); !IsSourceNotFound(err) {
		t.Fatalf("expected SourceNotFoundError, got %v", err)
	}
	if err := r.MarkAllocated("cable-1", "g1"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	err := r.MarkAllocated("cable-1", "g2")
	if !IsSourceAlreadyAllocated(err) {
		t.Fatalf("expected SourceAlreadyAllocatedError, got %v", err)
	}
	if err.Error() != `input source "cable-1" already allocated to game "g1"` {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestMarkFreeIsIdempotent(t *testing.T) {
	r := New(inventory())
	if err := r.MarkFree("cable-1"); err != nil {
		t.Fatalf("free on free source should be a no-op, got %v", err)
	}
	_ = r.MarkAllocated("cable-1", "g1")
	for i := 0; i < 3; i++ {
		if err := r.MarkFree("cable-1"); err != nil {
			t.Fatalf("free #%d: %v", i, err)
		}
	}
	src, _ := r.Get("cable-1")
	if src.CurrentlyAllocated || src.AllocatedGameID != "" {
		t.Fatalf("expected source free, got %+v", src)
	}
	if err := r.MarkFree("missing"); !IsSourceNotFound(err) {
		t.Fatalf("expected SourceNotFoundError for unknown source, got %v", err)
	}
}

func TestReleaseIfHeldBy(t *testing.T) {
	r := New(inventory())
	_ = r.MarkAllocated("cable-1", "g1")

	released, err := r.ReleaseIfHeldBy("cable-1", "g2")
	if err != nil || released {
		t.Fatalf("expected no release for other game, got %v %v", released, err)
	}
	released, err = r.ReleaseIfHeldBy("cable-1", "g1")
	if err != nil || !released {
		t.Fatalf("expected release for holder, got %v %v", released, err)
	}
	if _, held, _ := r.HolderOf("cable-1"); held {
		t.Fatalf("expected source free after release")
	}
}

func TestConcurrentClaimsHaveSingleWinner(t *testing.T) {
	r := New(inventory())
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := r.MarkAllocated("cable-1", "game"); err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	r := New(inventory())
	src, err := r.Get("cable-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	src.Channels["CBS"] = "3"
	again, _ := r.Get("cable-1")
	if _, ok := again.Channels["CBS"]; ok {
		t.Fatalf("expected registry state isolated from callers")
	}
}

func TestRegisterIgnoresInputAllocationFlags(t *testing.T) {
	r := New([]sources.InputSource{{ID: "x", IsActive: true, CurrentlyAllocated: true, AllocatedGameID: "ghost"}})
	if _, held, _ := r.HolderOf("x"); held {
		t.Fatalf("expected sources to start free")
	}
}
