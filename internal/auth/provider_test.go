package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func writeTokenFile(t *testing.T, tokens Tokens) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokens.json")
	data, _ := json.Marshal(tokens)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTokenLoadsFromFile(t *testing.T) {
	file := writeTokenFile(t, Tokens{AccessToken: "acc-1", RefreshToken: "ref-1"})
	p := NewProvider("id", "secret", "http://unused", file)

	tok, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok != "acc-1" {
		t.Fatalf("got %q", tok)
	}
}

func TestTokenWithoutCredentials(t *testing.T) {
	p := NewProvider("id", "secret", "http://unused", filepath.Join(t.TempDir(), "missing.json"))
	if _, err := p.Token(context.Background()); err != ErrNoCredentials {
		t.Fatalf("err = %v, want ErrNoCredentials", err)
	}
}

func TestInvalidateTriggersRefresh(t *testing.T) {
	var refreshes int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.FormValue("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.FormValue("refresh_token"); got != "ref-1" {
			t.Errorf("refresh_token = %q", got)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" {
			t.Errorf("basic auth = %q/%q ok=%v", user, pass, ok)
		}
		mu.Lock()
		refreshes++
		n := refreshes
		mu.Unlock()
		// Omit refresh_token: provider must keep the old one.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "acc-" + string(rune('0'+n)),
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	file := writeTokenFile(t, Tokens{AccessToken: "acc-old", RefreshToken: "ref-1"})
	p := NewProvider("id", "secret", srv.URL, file)

	p.Invalidate()
	tok, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("Token after invalidate: %v", err)
	}
	if tok != "acc-1" {
		t.Fatalf("got %q", tok)
	}

	// Refresh token survived and was persisted.
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	var saved Tokens
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatal(err)
	}
	if saved.RefreshToken != "ref-1" || saved.AccessToken != "acc-1" {
		t.Fatalf("persisted tokens = %+v", saved)
	}

	// A second invalidate refreshes again with the preserved refresh token.
	p.Invalidate()
	if _, err := p.Token(context.Background()); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if refreshes != 2 {
		t.Fatalf("refreshes = %d, want 2", refreshes)
	}
}

func TestRefreshErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	file := writeTokenFile(t, Tokens{AccessToken: "", RefreshToken: "ref-bad"})
	p := NewProvider("id", "secret", srv.URL, file)
	if _, err := p.Token(context.Background()); err == nil {
		t.Fatal("expected refresh failure to surface")
	}
}

func TestExchangeCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if got := r.FormValue("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.FormValue("code"); got != "one-time" {
			t.Errorf("code = %q", got)
		}
		_ = json.NewEncoder(w).Encode(Tokens{AccessToken: "acc-new", RefreshToken: "ref-new"})
	}))
	defer srv.Close()

	file := filepath.Join(t.TempDir(), "tokens.json")
	p := NewProvider("id", "secret", srv.URL, file)
	if err := p.ExchangeCode(context.Background(), "one-time", "http://localhost/cb"); err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	tok, err := p.Token(context.Background())
	if err != nil || tok != "acc-new" {
		t.Fatalf("Token = %q, %v", tok, err)
	}
	if _, err := os.Stat(file); err != nil {
		t.Fatalf("token file not written: %v", err)
	}
}
