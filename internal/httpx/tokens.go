package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// TokenConfig describes one credential set against a login endpoint that
// returns {"access_token": "<JWT>"}. UserKey is the JSON field name carrying
// the username ("username", "email", ...), which differs between the two
// APIs.
type TokenConfig struct {
	UserKey  string
	Username string
	Password string
	LoginURL string

	// GracePeriod is how long before expiry the token is refreshed.
	GracePeriod time.Duration
	// DefaultTTL applies when the JWT carries no exp claim.
	DefaultTTL time.Duration
	// LoginRetryWait paces the indefinite login retry loop.
	LoginRetryWait time.Duration
}

func (c *TokenConfig) withDefaults() TokenConfig {
	out := *c
	if out.GracePeriod <= 0 {
		out.GracePeriod = 60 * time.Second
	}
	if out.DefaultTTL <= 0 {
		out.DefaultTTL = 600 * time.Second
	}
	if out.LoginRetryWait <= 0 {
		out.LoginRetryWait = 10 * time.Second
	}
	return out
}

// TokenProvider caches a bearer token and refreshes it single-flight when
// less than the grace period remains. Bad credentials never abort the
// process: login is retried indefinitely until ctx is cancelled.
type TokenProvider struct {
	cfg   TokenConfig
	log   *slog.Logger
	clock clockwork.Clock
	http  *http.Client

	mu        sync.Mutex
	token     string
	expiresAt int64 // epoch seconds
}

func NewTokenProvider(cfg TokenConfig, httpClient *http.Client, clock clockwork.Clock, log *slog.Logger) *TokenProvider {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TokenProvider{cfg: cfg.withDefaults(), log: log, clock: clock, http: httpClient}
}

// Token returns a bearer token, logging in if the cached one is missing or
// inside the grace window.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	now := p.clock.Now().Unix()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" && now < p.expiresAt-int64(p.cfg.GracePeriod.Seconds()) {
		return p.token, nil
	}

	token, expiresAt, err := p.login(ctx)
	if err != nil {
		return "", err
	}
	p.token = token
	p.expiresAt = expiresAt
	return p.token, nil
}

// Invalidate drops the cached token so the next Token call logs in again.
// Used by the transport after a 401.
func (p *TokenProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	p.expiresAt = 0
}

// login posts credentials until it succeeds or ctx is done.
func (p *TokenProvider) login(ctx context.Context) (string, int64, error) {
	body, err := json.Marshal(map[string]string{
		p.cfg.UserKey: p.cfg.Username,
		"password":    p.cfg.Password,
	})
	if err != nil {
		return "", 0, fmt.Errorf("marshal login payload: %w", err)
	}

	for {
		token, expiresAt, err := p.loginOnce(ctx, body)
		if err == nil {
			return token, expiresAt, nil
		}
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		p.log.Error("login failed, retrying", "url", p.cfg.LoginURL, "wait", p.cfg.LoginRetryWait, "error", err)

		select {
		case <-ctx.Done():
			return "", 0, ctx.Err()
		case <-p.clock.After(p.cfg.LoginRetryWait):
		}
	}
}

func (p *TokenProvider) loginOnce(ctx context.Context, body []byte) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.LoginURL, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("post login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return "", 0, fmt.Errorf("login returned status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", 0, fmt.Errorf("decode login response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", 0, errors.New("no access_token in login response")
	}

	expiresAt, ok := tokenExpiry(payload.AccessToken)
	if !ok {
		expiresAt = p.clock.Now().Unix() + int64(p.cfg.DefaultTTL.Seconds())
	}
	p.log.Debug("logged in", "url", p.cfg.LoginURL, "expires_at", expiresAt)
	return payload.AccessToken, expiresAt, nil
}

// tokenExpiry extracts the exp claim from a JWT without verifying the
// signature. Refresh timing is the only consumer, so a forged exp is
// harmless here.
func tokenExpiry(token string) (int64, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return 0, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0, false
	}
	return exp.Unix(), true
}
