package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// TokenProvider yields a bearer token for the external analytics service.
type TokenProvider interface {
	AccessToken(ctx context.Context, scope string) (string, error)
}

// AuthError marks a failed token acquisition. It is fatal for the request
// that triggered it and is never retried here.
type AuthError struct {
	Status int
	Body   string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token acquisition failed: %v", e.Err)
	}
	return fmt.Sprintf("token acquisition failed status=%d body=%s", e.Status, e.Body)
}

func (e *AuthError) Unwrap() error { return e.Err }

type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// ClientCredentialsProvider implements the client-credentials grant against
// a token endpoint. Tokens are reused until shortly before expiry.
type ClientCredentialsProvider struct {
	tokenURL     string
	clientID     string
	clientSecret string
	client       *http.Client
	now          func() time.Time

	mu        sync.Mutex
	token     string
	scope     string
	expiresAt time.Time
}

// expiryMargin forces a refresh slightly before the reported expiry so a
// token never goes stale mid-request.
const expiryMargin = 60 * time.Second

func NewClientCredentialsProvider(cfg Config) (*ClientCredentialsProvider, error) {
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, fmt.Errorf("token URL is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("client id and secret are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ClientCredentialsProvider{
		tokenURL:     strings.TrimSpace(cfg.TokenURL),
		clientID:     strings.TrimSpace(cfg.ClientID),
		clientSecret: strings.TrimSpace(cfg.ClientSecret),
		client:       &http.Client{Timeout: timeout},
		now:          time.Now,
	}, nil
}

func (p *ClientCredentialsProvider) AccessToken(ctx context.Context, scope string) (string, error) {
	p.mu.Lock()
	if p.token != "" && p.scope == scope && p.now().Before(p.expiresAt.Add(-expiryMargin)) {
		token := p.token
		p.mu.Unlock()
		return token, nil
	}
	p.mu.Unlock()

	token, expiresIn, err := p.fetch(ctx, scope)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.token = token
	p.scope = scope
	p.expiresAt = p.now().Add(time.Duration(expiresIn) * time.Second)
	p.mu.Unlock()
	return token, nil
}

func (p *ClientCredentialsProvider) fetch(ctx context.Context, scope string) (string, int64, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)
	if strings.TrimSpace(scope) != "" {
		form.Set("scope", scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, &AuthError{Err: fmt.Errorf("build token request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", 0, &AuthError{Err: fmt.Errorf("request token: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, &AuthError{Err: fmt.Errorf("read token response: %w", err)}
	}
	if resp.StatusCode >= 400 {
		return "", 0, &AuthError{Status: resp.StatusCode, Body: string(body)}
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", 0, &AuthError{Err: fmt.Errorf("decode token response: %w", err)}
	}
	if strings.TrimSpace(parsed.AccessToken) == "" {
		return "", 0, &AuthError{Err: fmt.Errorf("token endpoint returned empty access_token")}
	}
	if parsed.ExpiresIn <= 0 {
		parsed.ExpiresIn = 300
	}
	return parsed.AccessToken, parsed.ExpiresIn, nil
}
