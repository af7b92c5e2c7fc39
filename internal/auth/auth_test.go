package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testSecret = "JBSWY3DPEHPK3PXP" // valid base32, test-only

func TestTOTPCode(t *testing.T) {
	a := NewAuthenticator(Config{TOTPSecret: testSecret})
	code, err := a.TOTPCode()
	if err != nil {
		t.Fatalf("TOTPCode: %v", err)
	}
	if len(code) != 6 {
		t.Errorf("code = %q, want 6 digits", code)
	}
}

func TestEnsureToken_LoginAndCache(t *testing.T) {
	logins := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logins++
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["client_id"] != "TEST-100" || req["totp"] == "" {
			t.Errorf("unexpected login payload: %v", req)
		}
		w.Write([]byte(`{"s":"ok","access_token":"tok-abc","expires_in":3600}`))
	}))
	defer srv.Close()

	cache := filepath.Join(t.TempDir(), "token.json")
	a := NewAuthenticator(Config{
		ClientID:   "TEST-100",
		SecretKey:  "sk",
		TOTPSecret: testSecret,
		PIN:        "1234",
		CachePath:  cache,
		RootURL:    srv.URL,
	})

	tok, err := a.EnsureToken(context.Background())
	if err != nil {
		t.Fatalf("EnsureToken: %v", err)
	}
	if tok != "tok-abc" {
		t.Errorf("token = %q", tok)
	}

	// Second call hits the cache, not the broker.
	tok2, err := a.EnsureToken(context.Background())
	if err != nil {
		t.Fatalf("EnsureToken (cached): %v", err)
	}
	if tok2 != "tok-abc" || logins != 1 {
		t.Errorf("token = %q logins = %d, want cached token and 1 login", tok2, logins)
	}
}

func TestEnsureToken_ExpiredCacheRelogs(t *testing.T) {
	cache := filepath.Join(t.TempDir(), "token.json")
	stale, _ := json.Marshal(cachedToken{
		AccessToken: "stale",
		ExpiresAt:   time.Now().Add(-time.Hour),
	})
	os.WriteFile(cache, stale, 0o600)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"s":"ok","access_token":"fresh","expires_in":3600}`))
	}))
	defer srv.Close()

	a := NewAuthenticator(Config{
		ClientID: "TEST-100", TOTPSecret: testSecret,
		CachePath: cache, RootURL: srv.URL,
	})
	tok, err := a.EnsureToken(context.Background())
	if err != nil {
		t.Fatalf("EnsureToken: %v", err)
	}
	if tok != "fresh" {
		t.Errorf("token = %q, want fresh login past expiry", tok)
	}
}

func TestEnsureToken_LoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"s":"error","message":"invalid totp"}`))
	}))
	defer srv.Close()

	a := NewAuthenticator(Config{ClientID: "TEST-100", TOTPSecret: testSecret, RootURL: srv.URL})
	if _, err := a.EnsureToken(context.Background()); !errors.Is(err, ErrLoginFailed) {
		t.Errorf("err = %v, want ErrLoginFailed", err)
	}
}
