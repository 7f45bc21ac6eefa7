package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTransport_RetriesTransientStatuses(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`)) //nolint:errcheck
	}))
	defer srv.Close()

	tr := NewTransport(srv.Client(), nil, nil, testLogger())

	var out struct {
		OK bool `json:"ok"`
	}
	err := tr.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil, &out)
	require.NoError(t, err)
	require.True(t, out.OK)
	require.EqualValues(t, 3, calls.Load())
}

func TestTransport_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tr := NewTransport(srv.Client(), nil, nil, testLogger())
	tr.MaxAttempts = 3

	err := tr.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil, nil)
	require.Error(t, err)
	require.EqualValues(t, 3, calls.Load())
}

func TestTransport_NonRetryableStatusFailsFast(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tr := NewTransport(srv.Client(), nil, nil, testLogger())

	err := tr.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil, nil)
	require.Error(t, err)
	require.EqualValues(t, 1, calls.Load())
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestTransport_RefreshesTokenOnceOn401(t *testing.T) {
	t.Parallel()

	var logins atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		token := signedToken(t, time.Now().Add(time.Hour))
		w.Write([]byte(`{"access_token":"` + token + `"}`)) //nolint:errcheck
	})
	var dataCalls atomic.Int32
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		if dataCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.NotEmpty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{}`)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tokens := NewTokenProvider(TokenConfig{
		UserKey:  "username",
		Username: "u",
		Password: "p",
		LoginURL: srv.URL + "/login",
	}, srv.Client(), nil, testLogger())

	tr := NewTransport(srv.Client(), tokens, nil, testLogger())

	err := tr.DoJSON(context.Background(), http.MethodGet, srv.URL+"/data", nil, nil, nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, dataCalls.Load())
	// One login for the initial token, one for the post-401 refresh.
	require.EqualValues(t, 2, logins.Load())
}

func TestTransport_SecondUnauthorizedFails(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"` + signedToken(t, time.Now().Add(time.Hour)) + `"}`)) //nolint:errcheck
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tokens := NewTokenProvider(TokenConfig{
		UserKey:  "username",
		Username: "u",
		Password: "p",
		LoginURL: srv.URL + "/login",
	}, srv.Client(), nil, testLogger())
	tr := NewTransport(srv.Client(), tokens, nil, testLogger())

	err := tr.DoJSON(context.Background(), http.MethodGet, srv.URL+"/data", nil, nil, nil)
	require.Error(t, err)
}

func TestTokenProvider_CachesUntilGraceWindow(t *testing.T) {
	t.Parallel()

	var logins atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		w.Write([]byte(`{"access_token":"` + signedToken(t, time.Now().Add(time.Hour)) + `"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	p := NewTokenProvider(TokenConfig{
		UserKey:  "email",
		Username: "u",
		Password: "p",
		LoginURL: srv.URL,
	}, srv.Client(), nil, testLogger())

	tok1, err := p.Token(context.Background())
	require.NoError(t, err)
	tok2, err := p.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, tok1, tok2)
	require.EqualValues(t, 1, logins.Load())

	p.Invalidate()
	_, err = p.Token(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, logins.Load())
}

func TestTokenProvider_DefaultTTLWithoutExpClaim(t *testing.T) {
	t.Parallel()

	// A structurally valid JWT with an empty claim set.
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{})
	s, err := tok.SignedString([]byte("k"))
	require.NoError(t, err)

	_, ok := tokenExpiry(s)
	require.False(t, ok)

	exp, ok := tokenExpiry(signedToken(t, time.Unix(1_700_000_000, 0)))
	require.True(t, ok)
	require.EqualValues(t, 1_700_000_000, exp)

	_, ok = tokenExpiry("not-a-jwt")
	require.False(t, ok)
}

func TestRateLimiter_TryAcquire(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimiterConfig{Capacity: 2, Period: time.Minute})

	ok, _ := rl.TryAcquire()
	require.True(t, ok)
	ok, _ = rl.TryAcquire()
	require.True(t, ok)

	// Bucket drained: denied with a positive retry hint.
	ok, wait := rl.TryAcquire()
	require.False(t, ok)
	require.Greater(t, wait, time.Duration(0))
}

func TestRateLimiter_AcquireRespectsContext(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimiterConfig{Capacity: 1, Period: time.Hour})
	require.NoError(t, rl.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, rl.Acquire(ctx))
}
