package store

import (
	"testing"
	"time"

	"github.com/preston-bernstein/venue-scheduler/internal/domain/games"
	"github.com/preston-bernstein/venue-scheduler/internal/testutil"
)

func TestGameStoreSetAndList(t *testing.T) {
	s := NewGameStore()
	if len(s.ListGames()) != 0 {
		t.Fatalf("expected empty store")
	}
	at := testutil.BaseTime
	s.SetGames([]games.Game{testutil.SampleGame("g1", at, "FOX"), testutil.SampleGame("g2", at, "CBS")}, at)

	if got := s.ListGames(); len(got) != 2 {
		t.Fatalf("expected 2 games, got %d", len(got))
	}
	if !s.SyncedAt().Equal(at) {
		t.Fatalf("expected synced at %v, got %v", at, s.SyncedAt())
	}

	g, ok := s.GetGame("g1")
	if !ok || g.Networks[0] != "FOX" {
		t.Fatalf("expected g1, got %+v ok=%v", g, ok)
	}
	g.Networks[0] = "mutated"
	again, _ := s.GetGame("g1")
	if again.Networks[0] != "FOX" {
		t.Fatalf("expected stored networks isolated from callers")
	}

	s.SetGames(nil, at.Add(time.Minute))
	if _, ok := s.GetGame("g1"); ok {
		t.Fatalf("expected SetGames to replace the snapshot")
	}
}

func TestGameStoreUpsertReturnsPrevious(t *testing.T) {
	s := NewGameStore()
	at := testutil.BaseTime
	s.SetGames([]games.Game{testutil.SampleGame("g1", at)}, at)

	live := testutil.SampleGame("g1", at)
	live.Status = games.StatusInProgress
	previous := s.UpsertGames([]games.Game{live, testutil.SampleGame("g2", at)}, at.Add(time.Minute))

	if len(previous) != 1 || previous["g1"].Status != games.StatusScheduled {
		t.Fatalf("expected previous scheduled g1, got %+v", previous)
	}
	if got, _ := s.GetGame("g1"); got.Status != games.StatusInProgress {
		t.Fatalf("expected upserted status, got %s", got.Status)
	}
	if len(s.ListGames()) != 2 {
		t.Fatalf("expected g2 added")
	}
}

func TestGameStorePrune(t *testing.T) {
	s := NewGameStore()
	at := testutil.BaseTime
	s.SetGames([]games.Game{
		testutil.SampleGame("old", at.Add(-6*time.Hour)),
		testutil.SampleGame("new", at),
	}, at)

	if removed := s.Prune(at.Add(-time.Hour)); removed != 1 {
		t.Fatalf("expected 1 pruned, got %d", removed)
	}
	if _, ok := s.GetGame("old"); ok {
		t.Fatalf("expected old game pruned")
	}
}
