package fixture

import (
	"context"
	"testing"
	"time"
)

func TestFetchGamesReturnsDeterministicGames(t *testing.T) {
	fixed := time.Date(2024, 1, 14, 16, 20, 0, 0, time.UTC)
	f := New()
	f.now = func() time.Time { return fixed }

	list, err := f.FetchGames(context.Background(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != len(slate) {
		t.Fatalf("expected %d games, got %d", len(slate), len(list))
	}
	first := list[0]
	if !first.ScheduledStart.Equal(time.Date(2024, 1, 14, 17, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected start anchored to the hour, got %s", first.ScheduledStart)
	}
	if !first.IsPlayoff() || first.Networks[0] != "FOX" {
		t.Fatalf("unexpected first fixture %+v", first)
	}

	again, _ := f.FetchGames(context.Background(), time.Time{}, time.Time{})
	again[0].Networks[0] = "mutated"
	if slate[0].networks[0] != "FOX" {
		t.Fatalf("expected fixture slate to be isolated from callers")
	}
}

func TestFetchGamesFiltersByWindow(t *testing.T) {
	fixed := time.Date(2024, 1, 14, 16, 0, 0, 0, time.UTC)
	f := New()
	f.now = func() time.Time { return fixed }

	list, err := f.FetchGames(context.Background(), fixed, fixed.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Games starting at +1h overlap; the +2h game starts exactly at the bound.
	if len(list) != 2 {
		t.Fatalf("expected 2 games in window, got %d", len(list))
	}
}

func TestFetchGamesHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().FetchGames(ctx, time.Time{}, time.Time{}); err == nil {
		t.Fatalf("expected context error")
	}
}
