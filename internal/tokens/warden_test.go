package tokens

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opennow/client/internal/config"
)

func TestNeedsRefreshBelowThreshold(t *testing.T) {
	now := time.Now()
	tf := config.TokenFile{
		AccessToken:  "a",
		RefreshToken: "r",
		IssuedAt:     now.Add(-90 * time.Minute),
		ExpiresAt:    now.Add(10 * time.Minute), // 10% of a 100m lifetime remains
	}
	if !NeedsRefresh(tf) {
		t.Fatal("expected refresh to be needed at 10% remaining lifetime")
	}
}

func TestNeedsRefreshAboveThreshold(t *testing.T) {
	now := time.Now()
	tf := config.TokenFile{
		AccessToken:  "a",
		RefreshToken: "r",
		IssuedAt:     now.Add(-10 * time.Minute),
		ExpiresAt:    now.Add(90 * time.Minute), // 90% remains
	}
	if NeedsRefresh(tf) {
		t.Fatal("did not expect refresh at 90% remaining lifetime")
	}
}

func TestNeedsRefreshNoRefreshToken(t *testing.T) {
	now := time.Now()
	tf := config.TokenFile{
		AccessToken: "a",
		IssuedAt:    now.Add(-90 * time.Minute),
		ExpiresAt:   now.Add(1 * time.Minute),
	}
	if NeedsRefresh(tf) {
		t.Fatal("should not refresh without a refresh token")
	}
}

func TestSingleFlightRefresh(t *testing.T) {
	now := time.Now()
	seed := &config.TokenFile{
		AccessToken:  "old",
		RefreshToken: "r",
		IssuedAt:     now.Add(-95 * time.Minute),
		ExpiresAt:    now.Add(5 * time.Minute),
	}

	var inFlight atomic.Int32
	var maxConcurrent atomic.Int32
	var calls atomic.Int32

	w := New(seed, func(ctx context.Context, refreshToken string) (*config.TokenFile, error) {
		n := inFlight.Add(1)
		for {
			cur := maxConcurrent.Load()
			if n <= cur || maxConcurrent.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		calls.Add(1)
		inFlight.Add(-1)
		return &config.TokenFile{
			AccessToken:  "new",
			RefreshToken: refreshToken,
			IssuedAt:     time.Now(),
			ExpiresAt:    time.Now().Add(2 * time.Hour),
		}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.MaybeRefresh(context.Background())
		}()
	}
	wg.Wait()

	if got := maxConcurrent.Load(); got > 1 {
		t.Fatalf("observed %d concurrent refreshes, want at most 1", got)
	}
	if w.AccessToken() != "new" {
		t.Fatalf("expected credential to be swapped to the new token, got %q", w.AccessToken())
	}
}
