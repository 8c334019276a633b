package gateway

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy controls the shared HTTP retry loop.
type RetryPolicy struct {
	MaxRetries  int
	BackoffBase time.Duration
}

// DefaultRetryPolicy matches typical hosted-provider guidance.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BackoffBase: time.Second}
}

const maxJitter = 250 * time.Millisecond

// doWithRetry executes build/send up to MaxRetries+1 times. Transport errors
// and retryable statuses are retried after a delay taken from the response's
// rate-limit headers when present, exponential backoff otherwise. Each retry
// re-enters limiter so backoff traffic still counts against the shared
// budget; the first attempt is paced by the caller. The final failure is
// returned as-is. The caller owns the returned body.
func doWithRetry(ctx context.Context, client *http.Client, policy RetryPolicy, limiter Limiter, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 && limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			if attempt < policy.MaxRetries {
				if werr := sleepCtx(ctx, backoffDelay(policy.BackoffBase, attempt)); werr != nil {
					return nil, werr
				}
			}
			continue
		}

		if resp.StatusCode < 400 {
			return resp, nil
		}

		serr := &StatusError{Provider: req.URL.Host, Code: resp.StatusCode, Body: readBodyPrefix(resp)}
		resp.Body.Close()
		lastErr = serr

		if !serr.Transient() || attempt == policy.MaxRetries {
			return nil, serr
		}
		delay := retryDelay(resp.Header, policy.BackoffBase, attempt)
		if werr := sleepCtx(ctx, delay); werr != nil {
			return nil, werr
		}
	}
	return nil, lastErr
}

// retryDelay picks the wait before the next attempt: the server's
// Retry-After if present, then its x-ratelimit reset hints, then exponential
// backoff.
func retryDelay(h http.Header, base time.Duration, attempt int) time.Duration {
	if d, ok := parseRetryAfter(h.Get("Retry-After")); ok {
		return d + jitter()
	}
	for _, key := range []string{"x-ratelimit-reset-requests", "x-ratelimit-reset-tokens"} {
		if d, ok := parseResetHint(h.Get(key)); ok {
			return d + jitter()
		}
	}
	return backoffDelay(base, attempt)
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second)), true
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

// parseResetHint handles OpenAI-style reset values such as "320ms", "2.5s",
// "1m12s", or a bare number of seconds.
func parseResetHint(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second)), true
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d, true
	}
	return 0, false
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	return d + jitter()
}

func jitter() time.Duration {
	return time.Duration(rand.Int63n(int64(maxJitter)))
}

func readBodyPrefix(resp *http.Response) string {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return strings.TrimSpace(string(b))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
