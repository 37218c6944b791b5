// Package tokens implements the token warden: proactive credential refresh
// while a streaming session is live, single-flight, lock-free reads via an
// atomic pointer swap. Readers never block refreshers.
package tokens

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/opennow/client/internal/config"
	"github.com/opennow/client/internal/logging"
)

var log = logging.L("tokens")

// refreshThreshold is the fraction of nominal lifetime remaining below
// which a refresh is initiated.
const refreshThreshold = 0.30

// RefreshFunc exchanges a refresh credential for a new token pair.
// Implemented outside the core (full re-authentication is a non-goal); the
// Warden only calls it and applies the result.
type RefreshFunc func(ctx context.Context, refreshToken string) (*config.TokenFile, error)

// Warden owns the live credential and proactively refreshes it.
type Warden struct {
	current    atomic.Pointer[config.TokenFile]
	refreshing atomic.Bool
	refresh    RefreshFunc
}

// New creates a Warden seeded with the given token pair.
func New(initial *config.TokenFile, refresh RefreshFunc) *Warden {
	w := &Warden{refresh: refresh}
	if initial == nil {
		initial = &config.TokenFile{}
	}
	w.current.Store(initial)
	return w
}

// Current returns the credential in effect right now. Safe to call from
// any goroutine; never blocks on a concurrent refresh.
func (w *Warden) Current() config.TokenFile {
	return *w.current.Load()
}

// AccessToken is a convenience accessor for the bearer value used on the
// Authorization header of outbound requests.
func (w *Warden) AccessToken() string {
	return w.Current().AccessToken
}

// NeedsRefresh reports whether the current credential has crossed the 30%
// remaining-lifetime threshold and a refresh credential is available.
func NeedsRefresh(tf config.TokenFile) bool {
	if tf.RefreshToken == "" || tf.AccessToken == "" {
		return false
	}
	if tf.ExpiresAt.IsZero() || tf.IssuedAt.IsZero() {
		return false
	}
	lifetime := tf.ExpiresAt.Sub(tf.IssuedAt)
	if lifetime <= 0 {
		return false
	}
	remaining := tf.ExpiresAt.Sub(time.Now())
	return float64(remaining)/float64(lifetime) < refreshThreshold
}

// IsExpired reports whether the current credential has already expired.
// A zero ExpiresAt is treated as "not tracked" and reports false; once a
// value is present, it is compared against the current time.
func IsExpired(tf config.TokenFile) bool {
	if tf.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(tf.ExpiresAt)
}

// MaybeRefresh performs a refresh if eligible. It is the single entry
// point tasks call from their poll loops; the atomic.Bool guard keeps at
// most one refresh in flight even if called concurrently from both the
// orchestrator poll loop and the ping/background loop.
func (w *Warden) MaybeRefresh(ctx context.Context) error {
	tf := w.Current()
	if !NeedsRefresh(tf) {
		return nil
	}
	if !w.refreshing.CompareAndSwap(false, true) {
		return nil // another refresh is already in flight
	}
	defer w.refreshing.Store(false)

	// Re-check after winning the CAS: another goroutine may have refreshed
	// between the check above and acquiring the flag.
	tf = w.Current()
	if !NeedsRefresh(tf) {
		return nil
	}

	log.Info("refreshing credential", "expiresAt", tf.ExpiresAt)
	next, err := w.refresh(ctx, tf.RefreshToken)
	if err != nil {
		// A failed refresh does not tear down the session; the next
		// server rejection triggers full re-authentication outside this
		// client.
		log.Warn("credential refresh failed, will retry on next check", "error", err)
		return fmt.Errorf("tokens: refresh: %w", err)
	}

	w.current.Store(next)
	if err := config.SaveTokens(next); err != nil {
		log.Warn("failed to persist refreshed tokens", "error", err)
	}
	log.Info("credential refreshed", "expiresAt", next.ExpiresAt)
	return nil
}

// Run polls MaybeRefresh at the given interval until ctx is cancelled. It
// runs as its own task; the UI/orchestrator loop never blocks on it, only
// observes Current().
func (w *Warden) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.MaybeRefresh(ctx); err != nil {
				log.Debug("refresh check failed", "error", err)
			}
		}
	}
}
