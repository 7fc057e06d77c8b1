package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

const testSecret = `{"installed":{"client_id":"id.apps.googleusercontent.com","client_secret":"secret",
"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",
"redirect_uris":["http://localhost"]}}`

func TestSaveTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	want := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", Expiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}

	if err := SaveToken(path, want); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("permissions: got %o, want %o", perm, 0o600)
	}

	got, err := TokenFromFile(path)
	if err != nil {
		t.Fatalf("TokenFromFile: %v", err)
	}
	if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken || !got.Expiry.Equal(want.Expiry) {
		t.Errorf("token: got %+v, want %+v", got, want)
	}
}

func TestNew_NonInteractiveWithoutToken(t *testing.T) {
	dir := t.TempDir()
	secret := filepath.Join(dir, "client_secret.json")
	if err := os.WriteFile(secret, []byte(testSecret), 0o600); err != nil {
		t.Fatalf("writing secret: %v", err)
	}

	_, err := New(context.Background(), Config{
		SecretFile: secret,
		TokenFile:  filepath.Join(dir, "token.json"),
	}, nil)
	if !errors.Is(err, ErrNoToken) {
		t.Errorf("error: got %v, want %v", err, ErrNoToken)
	}
}

func TestNew_WithSavedToken(t *testing.T) {
	dir := t.TempDir()
	secret := filepath.Join(dir, "client_secret.json")
	token := filepath.Join(dir, "token.json")
	if err := os.WriteFile(secret, []byte(testSecret), 0o600); err != nil {
		t.Fatalf("writing secret: %v", err)
	}
	if err := SaveToken(token, &oauth2.Token{AccessToken: "access", Expiry: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	c, err := New(context.Background(), Config{SecretFile: secret, TokenFile: token}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c == nil {
		t.Fatal("client is nil")
	}
}

func TestNew_MissingSecret(t *testing.T) {
	_, err := New(context.Background(), Config{SecretFile: filepath.Join(t.TempDir(), "missing.json")}, nil)
	if err == nil {
		t.Error("expected error for a missing secret file, got nil")
	}
}

func TestCallbackHandler(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCode   string
	}{
		{"valid", "?state=s1&code=abc", http.StatusOK, "abc"},
		{"wrong state", "?state=other&code=abc", http.StatusBadRequest, ""},
		{"provider error", "?state=s1&error=access_denied", http.StatusBadRequest, ""},
		{"no code", "?state=s1", http.StatusBadRequest, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			codeChan := make(chan string, 1)
			errChan := make(chan error, 1)

			rec := httptest.NewRecorder()
			callbackHandler("s1", codeChan, errChan)(rec, httptest.NewRequest(http.MethodGet, callbackPath+tc.query, nil))

			if rec.Code != tc.wantStatus {
				t.Errorf("status: got %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.wantCode != "" {
				if got := <-codeChan; got != tc.wantCode {
					t.Errorf("code: got %q, want %q", got, tc.wantCode)
				}
			} else if len(errChan) != 1 {
				t.Error("expected an error on errChan")
			}
		})
	}
}
