package auth

import (
	"context"
	"testing"
	"time"
)

func TestSweepReclaimsDeadRows(t *testing.T) {
	store := newMemStore()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	sweeper := NewSweeper(store, time.Hour, 90*24*time.Hour)
	sweeper.now = func() time.Time { return now }

	store.tokens["live"] = &RefreshToken{ID: "live", ExpiresAt: now.Add(time.Hour)}
	store.tokens["dead"] = &RefreshToken{ID: "dead", ExpiresAt: now.Add(-time.Hour)}
	store.codes[codeKey("a@b.c", PurposeEmailVerify)] = &VerificationCode{ID: "c1", Email: "a@b.c", Purpose: PurposeEmailVerify, ExpiresAt: now.Add(-time.Minute)}
	store.attempts = []*LoginAttempt{
		{ID: "recent", AttemptedAt: now.Add(-time.Hour)},
		{ID: "ancient", AttemptedAt: now.Add(-91 * 24 * time.Hour)},
	}

	sweeper.Sweep(context.Background())

	if _, ok := store.tokens["live"]; !ok {
		t.Fatal("live refresh token swept")
	}
	if _, ok := store.tokens["dead"]; ok {
		t.Fatal("expired refresh token survived")
	}
	if len(store.codes) != 0 {
		t.Fatal("expired code survived")
	}
	if len(store.attempts) != 1 || store.attempts[0].ID != "recent" {
		t.Fatalf("retention window not honored: %+v", store.attempts)
	}
}

func TestNewSweeperDefaults(t *testing.T) {
	sweeper := NewSweeper(newMemStore(), 0, 0)
	if sweeper.interval != time.Hour {
		t.Fatalf("interval default: got %v", sweeper.interval)
	}
	if sweeper.attemptRetention != 90*24*time.Hour {
		t.Fatalf("retention default: got %v", sweeper.attemptRetention)
	}
}
