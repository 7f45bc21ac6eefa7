// Package httpx is the shared HTTP plumbing for both REST clients: bearer
// token caching, request rate limiting, and bounded retry with backoff.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

const defaultMaxAttempts = 5

// Transport wraps an http.Client with the request discipline both APIs
// expect: rate-limit acquisition before every attempt, bearer auth, retry
// on transient statuses and network errors, Retry-After support, and a
// single token refresh on 401.
type Transport struct {
	Client      *http.Client
	Tokens      *TokenProvider
	Limiter     *RateLimiter
	Log         *slog.Logger
	Clock       clockwork.Clock
	MaxAttempts int
}

func NewTransport(client *http.Client, tokens *TokenProvider, limiter *RateLimiter, log *slog.Logger) *Transport {
	return &Transport{
		Client:      client,
		Tokens:      tokens,
		Limiter:     limiter,
		Log:         log,
		Clock:       clockwork.NewRealClock(),
		MaxAttempts: defaultMaxAttempts,
	}
}

// DoJSON performs one logical JSON request. body (if non-nil) is marshalled
// as the JSON payload; out (if non-nil) receives the decoded response body.
func (t *Transport) DoJSON(ctx context.Context, method, rawURL string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}
	if len(query) > 0 {
		rawURL = rawURL + "?" + query.Encode()
	}

	data, err := t.do(ctx, method, rawURL, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", rawURL, err)
	}
	return nil
}

// retryable reports whether a status should be retried inside the transport.
func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (t *Transport) do(ctx context.Context, method, rawURL string, payload []byte) ([]byte, error) {
	maxAttempts := t.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 300 * time.Millisecond
	bo.Multiplier = 2
	bo.MaxInterval = 5 * time.Second
	bo.RandomizationFactor = 0.2
	bo.MaxElapsedTime = 0
	bo.Reset()

	refreshed := false
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if t.Limiter != nil {
			if err := t.Limiter.Acquire(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter: %w", err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if t.Tokens != nil {
			token, err := t.Tokens.Token(ctx)
			if err != nil {
				return nil, fmt.Errorf("acquire token: %w", err)
			}
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := t.Client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%s %s: %w", method, rawURL, err)
			if ctx.Err() != nil {
				return nil, lastErr
			}
			if err := t.sleep(ctx, bo.NextBackOff()); err != nil {
				return nil, lastErr
			}
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close() //nolint:errcheck

		switch {
		case resp.StatusCode == http.StatusUnauthorized && t.Tokens != nil && !refreshed:
			// One refresh per logical request; a second 401 is a real
			// authorization problem.
			refreshed = true
			t.Tokens.Invalidate()
			t.Log.Debug("401 received, refreshing token", "url", rawURL)
			attempt--
			continue

		case retryable(resp.StatusCode):
			lastErr = fmt.Errorf("%s %s: status %d", method, rawURL, resp.StatusCode)
			wait := retryAfter(resp, bo.NextBackOff())
			t.Log.Debug("transient status, retrying", "url", rawURL, "status", resp.StatusCode, "wait", wait, "attempt", attempt)
			if err := t.sleep(ctx, wait); err != nil {
				return nil, lastErr
			}
			continue

		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return nil, fmt.Errorf("%s %s: status %d", method, rawURL, resp.StatusCode)

		case readErr != nil:
			lastErr = fmt.Errorf("read response from %s: %w", rawURL, readErr)
			if err := t.sleep(ctx, bo.NextBackOff()); err != nil {
				return nil, lastErr
			}
			continue
		}

		return data, nil
	}

	return nil, fmt.Errorf("giving up after %d attempts: %w", maxAttempts, lastErr)
}

func (t *Transport) sleep(ctx context.Context, d time.Duration) error {
	clock := t.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}

// retryAfter honours a Retry-After header when present, falling back to the
// backoff schedule otherwise.
func retryAfter(resp *http.Response, fallback time.Duration) time.Duration {
	ra := resp.Header.Get("Retry-After")
	if ra == "" {
		return fallback
	}
	secs, err := strconv.ParseFloat(ra, 64)
	if err != nil || secs < 0 {
		return fallback
	}
	return time.Duration(secs * float64(time.Second))
}
