package auth

import (
	"context"
	"time"

	"fleetgrid.io/internal/obs"
)

// Sweeper reclaims dead ledger rows out of band: expired refresh tokens,
// expired verification codes and login attempts past the retention window.
// Retention is an operational choice, not part of the auth contract — the
// append-only semantics of the attempt log hold within the retained window.
type Sweeper struct {
	store            Store
	interval         time.Duration
	attemptRetention time.Duration
	now              func() time.Time
}

// NewSweeper constructs a Sweeper. Zero durations fall back to hourly sweeps
// and 90 days of attempt retention.
func NewSweeper(store Store, interval, attemptRetention time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if attemptRetention <= 0 {
		attemptRetention = 90 * 24 * time.Hour
	}
	return &Sweeper{
		store:            store,
		interval:         interval,
		attemptRetention: attemptRetention,
		now:              time.Now,
	}
}

// Run sweeps on a ticker until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one reclamation pass. Failures are logged and retried on the
// next tick.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now().UTC()

	tokens, err := s.store.RefreshTokens().DeleteExpiredBefore(ctx, now)
	if err != nil {
		s.logSweepError("refresh_tokens", err)
	}
	codes, err := s.store.Codes().DeleteExpiredBefore(ctx, now)
	if err != nil {
		s.logSweepError("verification_codes", err)
	}
	attempts, err := s.store.LoginAttempts().DeleteBefore(ctx, now.Add(-s.attemptRetention))
	if err != nil {
		s.logSweepError("login_attempts", err)
	}

	if tokens > 0 || codes > 0 || attempts > 0 {
		obs.LogEvent(map[string]any{
			"level":              "info",
			"msg":                "ledger sweep completed",
			"refresh_tokens":     tokens,
			"verification_codes": codes,
			"login_attempts":     attempts,
		})
	}
}

func (s *Sweeper) logSweepError(ledger string, err error) {
	obs.LogEvent(map[string]any{
		"level":  "warn",
		"msg":    "ledger sweep failed",
		"ledger": ledger,
		"error":  err.Error(),
	})
}
