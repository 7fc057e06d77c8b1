// Package client provides the OAuth2 HTTP client used by the Gmail mailbox backend.
package client

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	callbackPath  = "/callback"
	serverTimeout = 5 * time.Minute
)

// ErrNoToken is returned when no saved token exists and the browser flow is disabled.
var ErrNoToken = errors.New("no saved OAuth token; run `finduo setup`")

// Config holds the OAuth client configuration.
type Config struct {
	// SecretFile is the Google OAuth client secret JSON. Defaults to data/client_secret.json.
	SecretFile string
	// TokenFile caches the user's token. Defaults to data/token.json.
	TokenFile string
	// Interactive allows the browser consent flow when no token is saved.
	Interactive bool
	// CallbackPort is the local port receiving the OAuth redirect. Defaults to 8085.
	CallbackPort int
	// Scopes requested from Google.
	Scopes []string
}

func (c *Config) applyDefaults() {
	if c.SecretFile == "" {
		c.SecretFile = "data/client_secret.json"
	}
	if c.TokenFile == "" {
		c.TokenFile = "data/token.json"
	}
	if c.CallbackPort == 0 {
		c.CallbackPort = 8085
	}
}

// New returns an HTTP client authorized with the saved token, running the
// browser consent flow first when allowed and no token exists.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*http.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	secret, err := os.ReadFile(cfg.SecretFile)
	if err != nil {
		return nil, fmt.Errorf("reading client secret file: %w", err)
	}

	oauthCfg, err := google.ConfigFromJSON(secret, cfg.Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing client secret: %w", err)
	}

	tok, err := TokenFromFile(cfg.TokenFile)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && cfg.Interactive:
		logger.Info("no existing token found, initiating OAuth flow")
		tok, err = tokenFromWeb(ctx, oauthCfg, cfg.CallbackPort, logger)
		if err != nil {
			return nil, err
		}
		if err := SaveToken(cfg.TokenFile, tok); err != nil {
			return nil, err
		}
		logger.Info("saved OAuth token", "path", cfg.TokenFile)
	case errors.Is(err, fs.ErrNotExist):
		return nil, ErrNoToken
	default:
		return nil, fmt.Errorf("reading token: %w", err)
	}

	return oauthCfg.Client(context.Background(), tok), nil
}

func tokenFromWeb(ctx context.Context, cfg *oauth2.Config, port int, logger *slog.Logger) (*oauth2.Token, error) {
	cfg.RedirectURL = fmt.Sprintf("http://localhost:%d%s", port, callbackPath)

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generating state token: %w", err)
	}

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	server, err := startCallbackServer(ctx, port, state, codeChan, errChan, logger)
	if err != nil {
		return nil, fmt.Errorf("starting callback server: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("error shutting down callback server", "error", err)
		}
	}()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	fmt.Printf("\nOpening browser for Google authentication...\n")
	fmt.Printf("If the browser doesn't open automatically, visit this URL:\n%s\n\n", authURL)
	if err := openBrowser(ctx, authURL); err != nil {
		logger.Warn("failed to open browser automatically", "error", err)
	}

	select {
	case code := <-codeChan:
		tok, err := cfg.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("exchanging authorization code for token: %w", err)
		}
		fmt.Println("Authentication successful!")
		return tok, nil
	case err := <-errChan:
		return nil, fmt.Errorf("oauth callback error: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(serverTimeout):
		return nil, fmt.Errorf("oauth flow timed out after %v", serverTimeout)
	}
}

// callbackHandler validates the OAuth redirect and forwards the code.
func callbackHandler(expectedState string, codeChan chan<- string, errChan chan<- error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != expectedState {
			errChan <- errors.New("invalid state parameter")
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}
		if errMsg := q.Get("error"); errMsg != "" {
			errChan <- fmt.Errorf("%s: %s", errMsg, q.Get("error_description"))
			http.Error(w, "Authentication failed: "+errMsg, http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			errChan <- errors.New("no authorization code received")
			http.Error(w, "No authorization code received", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!DOCTYPE html>
<html><head><title>finduo-sync</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 20vh;">
<h1>Autenticación exitosa</h1>
<p>Ya puedes cerrar esta ventana y volver a la terminal.</p>
</body></html>`)
		codeChan <- code
	}
}

func startCallbackServer(ctx context.Context, port int, state string, codeChan chan<- string, errChan chan<- error, logger *slog.Logger) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, callbackHandler(state, codeChan, errChan))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", server.Addr)
	if err != nil {
		return nil, fmt.Errorf("port %d unavailable: %w", port, err)
	}

	go func() {
		logger.Debug("starting OAuth callback server", "port", port)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("callback server error", "error", err)
			errChan <- err
		}
	}()

	return server, nil
}

func openBrowser(ctx context.Context, url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "linux":
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
	return cmd.Start()
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// TokenFromFile reads a saved token.
func TokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	return tok, nil
}

// SaveToken writes token to path with owner-only permissions.
func SaveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating token file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	return nil
}
