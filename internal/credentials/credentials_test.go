package credentials

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *ClientCredentialsProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewClientCredentialsProvider(Config{
		TokenURL:     server.URL,
		ClientID:     "client-1",
		ClientSecret: "secret-1",
	})
	if err != nil {
		t.Fatalf("NewClientCredentialsProvider() error = %v", err)
	}
	return provider
}

func TestAccessTokenFetchesAndReuses(t *testing.T) {
	calls := 0
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Fatalf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("scope"); got != "analytics.read" {
			t.Fatalf("scope = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":3600}`))
	})

	token, err := provider.AccessToken(context.Background(), "analytics.read")
	if err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if token != "tok-1" {
		t.Fatalf("token = %q", token)
	}

	if _, err := provider.AccessToken(context.Background(), "analytics.read"); err != nil {
		t.Fatalf("second AccessToken() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("token endpoint calls = %d, want 1 (cached reuse)", calls)
	}
}

func TestAccessTokenRefreshesNearExpiry(t *testing.T) {
	calls := 0
	provider := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":120}`))
	})

	current := time.Unix(1000, 0)
	provider.now = func() time.Time { return current }

	if _, err := provider.AccessToken(context.Background(), "s"); err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	// 120s lifetime with a 60s margin leaves 60s of reuse.
	current = current.Add(90 * time.Second)
	if _, err := provider.AccessToken(context.Background(), "s"); err != nil {
		t.Fatalf("AccessToken() after expiry error = %v", err)
	}
	if calls != 2 {
		t.Fatalf("token endpoint calls = %d, want 2", calls)
	}
}

func TestAccessTokenScopeChangeForcesFetch(t *testing.T) {
	calls := 0
	provider := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
	})

	if _, err := provider.AccessToken(context.Background(), "scope-a"); err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if _, err := provider.AccessToken(context.Background(), "scope-b"); err != nil {
		t.Fatalf("AccessToken() error = %v", err)
	}
	if calls != 2 {
		t.Fatalf("token endpoint calls = %d, want 2", calls)
	}
}

func TestAccessTokenErrorStatus(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	})

	_, err := provider.AccessToken(context.Background(), "s")
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %T, want *AuthError", err)
	}
	if authErr.Status != http.StatusUnauthorized {
		t.Fatalf("Status = %d", authErr.Status)
	}
}

func TestNewClientCredentialsProviderValidation(t *testing.T) {
	if _, err := NewClientCredentialsProvider(Config{ClientID: "a", ClientSecret: "b"}); err == nil {
		t.Fatal("expected error for missing token URL")
	}
	if _, err := NewClientCredentialsProvider(Config{TokenURL: "http://x"}); err == nil {
		t.Fatal("expected error for missing client credentials")
	}
}
