// Package auth manages the OAuth credential for the Bling API: a mutex-guarded
// token pair persisted to disk, refreshed on demand via the refresh_token grant.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrNoCredentials indicates no token pair is available and no authorization
// code was supplied to bootstrap one.
var ErrNoCredentials = errors.New("auth: no stored tokens and no authorization code")

// Tokens is the OAuth token pair as returned by the provider's token endpoint.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

// Provider hands out a valid bearer token and refreshes it when invalidated.
// All token state is guarded by a single mutex so concurrent callers share
// one refresh instead of racing the token endpoint.
type Provider struct {
	clientID     string
	clientSecret string
	tokenURL     string
	file         string
	http         *http.Client

	mu     sync.Mutex
	tokens *Tokens
}

func NewProvider(clientID, clientSecret, tokenURL, file string) *Provider {
	return &Provider{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     tokenURL,
		file:         file,
		http:         &http.Client{Timeout: 15 * time.Second},
	}
}

// Token returns a bearer token, loading the persisted pair on first use and
// refreshing when the access token has been invalidated.
func (p *Provider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tokens == nil {
		p.tokens = p.loadFile()
	}
	if p.tokens == nil {
		return "", ErrNoCredentials
	}
	if p.tokens.AccessToken == "" {
		if err := p.refreshLocked(ctx); err != nil {
			return "", err
		}
	}
	return p.tokens.AccessToken, nil
}

// Invalidate discards the current access token. The next Token call will
// refresh using the stored refresh token.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	if p.tokens != nil {
		p.tokens.AccessToken = ""
	}
	p.mu.Unlock()
}

// Refresh forces a refresh and returns the new access token.
func (p *Provider) Refresh(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tokens == nil {
		p.tokens = p.loadFile()
	}
	if err := p.refreshLocked(ctx); err != nil {
		return "", err
	}
	return p.tokens.AccessToken, nil
}

// ExchangeCode trades a one-time authorization code for the initial token
// pair and persists it.
func (p *Provider) ExchangeCode(ctx context.Context, code, redirectURI string) error {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {redirectURI},
	}
	tokens, err := p.postToken(ctx, form)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.tokens = tokens
	p.saveFileLocked()
	p.mu.Unlock()
	return nil
}

func (p *Provider) refreshLocked(ctx context.Context) error {
	if p.tokens == nil || p.tokens.RefreshToken == "" {
		return ErrNoCredentials
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {p.tokens.RefreshToken},
	}
	tokens, err := p.postToken(ctx, form)
	if err != nil {
		return err
	}
	// The provider may omit the refresh token on rotation-less responses.
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = p.tokens.RefreshToken
	}
	p.tokens = tokens
	p.saveFileLocked()
	return nil
}

func (p *Provider) postToken(ctx context.Context, form url.Values) (*Tokens, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(p.clientID + ":" + p.clientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: token request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var tokens Tokens
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, fmt.Errorf("auth: decode token response: %w", err)
	}
	if tokens.AccessToken == "" {
		return nil, errors.New("auth: token response without access_token")
	}
	return &tokens, nil
}

func (p *Provider) loadFile() *Tokens {
	if p.file == "" {
		return nil
	}
	data, err := os.ReadFile(p.file)
	if err != nil {
		return nil
	}
	var tokens Tokens
	if err := json.Unmarshal(data, &tokens); err != nil {
		log.Printf("auth: ignoring corrupt token file %s: %v", p.file, err)
		return nil
	}
	return &tokens
}

func (p *Provider) saveFileLocked() {
	if p.file == "" || p.tokens == nil {
		return
	}
	data, err := json.MarshalIndent(p.tokens, "", "  ")
	if err == nil {
		err = os.WriteFile(p.file, data, 0o600)
	}
	if err != nil {
		log.Printf("auth: could not persist tokens to %s: %v", p.file, err)
	}
}
