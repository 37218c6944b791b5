package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	cases := map[int]outcome{
		200:                            success,
		204:                            success,
		http.StatusTooManyRequests:     transient,
		http.StatusInternalServerError: transient,
		http.StatusBadGateway:          transient,
		http.StatusServiceUnavailable:  transient,
		http.StatusGatewayTimeout:      transient,
		http.StatusNotFound:            rejected,
		http.StatusForbidden:           rejected,
		http.StatusConflict:            rejected,
		http.StatusUnprocessableEntity: rejected,
	}
	for code, want := range cases {
		if got := classify(code); got != want {
			t.Errorf("classify(%d) = %v, want %v", code, got, want)
		}
	}
}

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := Do(context.Background(), srv.Client(), http.MethodGet, srv.URL, nil, nil, fastRetryConfig())
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("server saw %d calls, want 3", got)
	}
}

func TestDoDoesNotRetryRejectedStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	resp, err := Do(context.Background(), srv.Client(), http.MethodGet, srv.URL, nil, nil, fastRetryConfig())
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 returned to the caller unretried", resp.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("server saw %d calls, want 1", got)
	}
}

func TestDoExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := fastRetryConfig()
	_, err := Do(context.Background(), srv.Client(), http.MethodGet, srv.URL, nil, nil, cfg)
	if err == nil {
		t.Fatal("expected an error once the retry budget is exhausted")
	}
	if _, ok := err.(*TransientStatusError); !ok {
		t.Fatalf("error = %T, want *TransientStatusError", err)
	}
	if got := calls.Load(); got != int32(cfg.MaxRetries+1) {
		t.Fatalf("server saw %d calls, want %d", got, cfg.MaxRetries+1)
	}
}
