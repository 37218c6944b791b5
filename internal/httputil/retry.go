// Package httputil retries transient network failures: HTTP 5xx, 429, and
// connection-level errors on calls to the session-allocation service, the
// auth-refresh endpoint, and the zone directory. It deliberately does not
// retry any other non-2xx status; those are allocation rejections,
// classified by the service's own error code and surfaced verbatim to the
// caller rather than hidden behind a retry loop.
package httputil

import (
	"bytes"
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/opennow/client/internal/logging"
)

var log = logging.L("httputil")

// RetryConfig controls the retry behavior for HTTP requests.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterFrac    float64 // ±fraction of delay to randomize (e.g. 0.3 = ±30%)
}

// DefaultRetryConfig returns the backoff schedule used for
// session-allocation requests, token refresh and the zone-directory fetch: bounded retries
// on transient network failure, surfaced only once the bound is exhausted.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		JitterFrac:    0.3,
	}
}

// outcome classifies a response for the retry loop.
type outcome int

const (
	// success is any 2xx reply.
	success outcome = iota
	// transient is a status worth retrying in place: rate-limited or a
	// server/gateway fault that may clear on its own.
	transient
	// rejected is any other non-2xx reply — an allocation rejection (or
	// session conflict, handled specially by the caller) that the retry
	// loop must not paper over, since retrying it would just repeat the
	// same rejection with the same unified error code.
	rejected
)

func classify(code int) outcome {
	switch {
	case code >= 200 && code < 300:
		return success
	case code == http.StatusTooManyRequests,
		code >= 500 && code < 600:
		return transient
	default:
		return rejected
	}
}

// Do executes an HTTP request with retry logic. The request body must be
// provided separately as a byte slice so it can be replayed on retries.
// Returns the first non-transient response (a success or a rejection); if
// the retry budget is exhausted, returns a nil response and the last error.
func Do(ctx context.Context, client *http.Client, method, url string, body []byte, headers http.Header, cfg RetryConfig) (*http.Response, error) {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			jittered := applyJitter(delay, cfg.JitterFrac)
			log.Debug("retrying request",
				"attempt", attempt,
				"delay", jittered,
				"url", url,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jittered):
			}

			// Exponential backoff for next attempt
			delay = time.Duration(float64(delay) * cfg.BackoffFactor)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, err // not retryable
		}
		for k, vals := range headers {
			for _, v := range vals {
				req.Header.Add(k, v)
			}
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue // network error — transient, retry
		}

		if classify(resp.StatusCode) != transient {
			// Success, or an allocation rejection / conflict the caller
			// must classify by its own error code — never retried here.
			return resp, nil
		}

		// Transient status — close body and retry.
		resp.Body.Close()
		lastErr = &TransientStatusError{StatusCode: resp.StatusCode, URL: url}
	}

	log.Warn("all retries exhausted",
		"method", method,
		"url", url,
		"attempts", cfg.MaxRetries+1,
		"error", lastErr,
	)
	return nil, lastErr
}

// TransientStatusError indicates the transient-network retry budget was
// exhausted without a non-transient reply.
type TransientStatusError struct {
	StatusCode int
	URL        string
}

func (e *TransientStatusError) Error() string {
	return "request to " + e.URL + " still failing after retries with status " + http.StatusText(e.StatusCode)
}

// applyJitter adds ±frac random jitter to a duration.
func applyJitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	jitter := float64(d) * frac * (2*rand.Float64() - 1)
	result := time.Duration(float64(d) + jitter)
	if result < 0 {
		return 0
	}
	return result
}
