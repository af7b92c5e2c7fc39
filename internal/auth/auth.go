// Package auth handles broker login: TOTP-based session generation and a
// file-backed access token cache so restarts inside a trading day reuse
// the existing session instead of re-logging in.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	"oibreakout/internal/markethours"
)

const defaultAuthRoot = "https://api-t1.fyers.in"

// ErrLoginFailed is returned when the broker rejects the credentials.
var ErrLoginFailed = errors.New("auth: login failed")

// Config holds the login credentials and cache location.
type Config struct {
	ClientID   string
	SecretKey  string
	TOTPSecret string
	PIN        string
	CachePath  string
	RootURL    string // default: https://api-t1.fyers.in
}

// Authenticator produces valid access tokens, hitting the broker only
// when the cached token is missing or expired.
type Authenticator struct {
	cfg        Config
	httpClient *http.Client

	// now is swappable in tests.
	now func() time.Time
}

// NewAuthenticator builds an Authenticator with defaults applied.
func NewAuthenticator(cfg Config) *Authenticator {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultAuthRoot
	}
	return &Authenticator{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
	}
}

// cachedToken is the on-disk token format.
type cachedToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// EnsureToken returns a usable access token, from cache when one is still
// valid with some margin, otherwise via a fresh login.
func (a *Authenticator) EnsureToken(ctx context.Context) (string, error) {
	if tok, ok := a.loadCache(); ok {
		log.Printf("[auth] reusing cached token, expires %s", tok.ExpiresAt.In(markethours.IST).Format("15:04:05"))
		return tok.AccessToken, nil
	}

	tok, err := a.login(ctx)
	if err != nil {
		return "", err
	}
	a.saveCache(tok)
	log.Printf("[auth] new session for %s, token valid until %s",
		a.cfg.ClientID, tok.ExpiresAt.In(markethours.IST).Format("2006-01-02 15:04:05"))
	return tok.AccessToken, nil
}

// loadCache returns the cached token if it stays valid for at least
// another five minutes.
func (a *Authenticator) loadCache() (cachedToken, bool) {
	if a.cfg.CachePath == "" {
		return cachedToken{}, false
	}
	raw, err := os.ReadFile(a.cfg.CachePath)
	if err != nil {
		return cachedToken{}, false
	}
	var tok cachedToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		log.Printf("[auth] corrupt token cache %s: %v", a.cfg.CachePath, err)
		return cachedToken{}, false
	}
	if tok.AccessToken == "" || a.now().Add(5*time.Minute).After(tok.ExpiresAt) {
		return cachedToken{}, false
	}
	return tok, true
}

func (a *Authenticator) saveCache(tok cachedToken) {
	if a.cfg.CachePath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.CachePath), 0o755); err != nil {
		log.Printf("[auth] token cache dir: %v", err)
		return
	}
	raw, _ := json.Marshal(tok)
	if err := os.WriteFile(a.cfg.CachePath, raw, 0o600); err != nil {
		log.Printf("[auth] token cache write: %v", err)
	}
}

// TOTPCode generates the current one-time code from the shared secret.
func (a *Authenticator) TOTPCode() (string, error) {
	code, err := totp.GenerateCode(strings.ToUpper(a.cfg.TOTPSecret), a.now())
	if err != nil {
		return "", fmt.Errorf("auth: totp: %w", err)
	}
	return code, nil
}

// login runs the TOTP session flow and returns a token expiring at the
// broker's end-of-day (midnight IST) unless the response says otherwise.
func (a *Authenticator) login(ctx context.Context) (cachedToken, error) {
	code, err := a.TOTPCode()
	if err != nil {
		return cachedToken{}, err
	}

	payload := map[string]string{
		"client_id":  a.cfg.ClientID,
		"secret_key": a.cfg.SecretKey,
		"totp":       code,
		"pin":        a.cfg.PIN,
		"grant_type": "totp",
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(a.cfg.RootURL, "/")+"/api/v3/token", bytes.NewReader(body))
	if err != nil {
		return cachedToken{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return cachedToken{}, fmt.Errorf("auth: token request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return cachedToken{}, err
	}

	var res struct {
		S           string `json:"s"`
		Message     string `json:"message"`
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return cachedToken{}, fmt.Errorf("auth: parse token response (%d): %w", resp.StatusCode, err)
	}
	if res.S != "ok" || res.AccessToken == "" {
		return cachedToken{}, fmt.Errorf("%w: %s", ErrLoginFailed, res.Message)
	}

	expiry := a.endOfDay()
	if res.ExpiresIn > 0 {
		expiry = a.now().Add(time.Duration(res.ExpiresIn) * time.Second)
	}
	return cachedToken{AccessToken: res.AccessToken, ExpiresAt: expiry}, nil
}

// endOfDay is midnight IST following now; broker sessions never outlive
// the trading day.
func (a *Authenticator) endOfDay() time.Time {
	ist := a.now().In(markethours.IST)
	return time.Date(ist.Year(), ist.Month(), ist.Day()+1, 0, 0, 0, 0, markethours.IST)
}
