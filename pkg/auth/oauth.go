// Package auth builds authenticated HTTP clients for the Google Calendar API.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultRedirectPort is the loopback port used to capture the OAuth redirect.
const DefaultRedirectPort = "6789"

// ErrNoToken means an installed-app credential has no stored token yet.
var ErrNoToken = errors.New("no OAuth token; run `lifeops auth` first")

// Config locates credentials. CredentialsFile is either a service-account
// key or an OAuth client ("installed"/"web") downloaded from the Cloud
// console. TokenFile stores the user token for the latter.
type Config struct {
	CredentialsFile string
	TokenFile       string
	RedirectPort    string
	Logger          *log.Logger
}

func (c Config) logger() *log.Logger {
	if c.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return c.Logger
}

func (c Config) port() string {
	if c.RedirectPort == "" {
		return DefaultRedirectPort
	}
	return c.RedirectPort
}

// NewHTTPClient returns a client that authorizes requests for scopes. It
// never prompts: an OAuth client without a stored token yields ErrNoToken.
func NewHTTPClient(ctx context.Context, cfg Config, scopes []string) (*http.Client, error) {
	b, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file %s: %w", cfg.CredentialsFile, err)
	}

	if isServiceAccount(b) {
		creds, err := google.CredentialsFromJSON(ctx, b, scopes...)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account credentials: %w", err)
		}
		return oauth2.NewClient(ctx, creds.TokenSource), nil
	}

	config, err := oauthConfig(b, scopes, cfg.port())
	if err != nil {
		return nil, err
	}
	tok, err := tokenFromFile(cfg.TokenFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w (looked in %s)", ErrNoToken, cfg.TokenFile)
		}
		return nil, err
	}

	src := &savingTokenSource{
		base: config.TokenSource(ctx, tok),
		path: cfg.TokenFile,
		last: tok,
		log:  cfg.logger(),
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// Authorize runs the interactive loopback flow and stores the token. The
// authorization URL is written to out.
func Authorize(ctx context.Context, cfg Config, scopes []string, out io.Writer) error {
	b, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return fmt.Errorf("unable to read credentials file %s: %w", cfg.CredentialsFile, err)
	}
	if isServiceAccount(b) {
		fmt.Fprintln(out, "Service account credentials need no interactive authorization.")
		return nil
	}

	config, err := oauthConfig(b, scopes, cfg.port())
	if err != nil {
		return err
	}
	tok, err := tokenFromWeb(ctx, config, cfg.port(), out, cfg.logger())
	if err != nil {
		return fmt.Errorf("failed to get token from web: %w", err)
	}
	return saveToken(cfg.TokenFile, tok)
}

func isServiceAccount(b []byte) bool {
	var key struct {
		Type string `json:"type"`
	}
	return json.Unmarshal(b, &key) == nil && key.Type == "service_account"
}

// oauthConfig parses an OAuth client file and points its redirect at the
// loopback listener.
func oauthConfig(b []byte, scopes []string, port string) (*oauth2.Config, error) {
	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}

	u, err := url.Parse(config.RedirectURL)
	if err != nil || config.RedirectURL == "urn:ietf:wg:oauth:2.0:oob" || u.Host == "" {
		config.RedirectURL = fmt.Sprintf("http://localhost:%s/oauth2callback", port)
		return config, nil
	}
	if u.Hostname() == "localhost" || u.Hostname() == "127.0.0.1" {
		u.Host = net.JoinHostPort(u.Hostname(), port)
		config.RedirectURL = u.String()
	}
	return config, nil
}

// tokenFromWeb serves the redirect on the loopback port and exchanges the
// returned code.
func tokenFromWeb(ctx context.Context, config *oauth2.Config, port string, out io.Writer, logger *log.Logger) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", net.JoinHostPort("localhost", port))
	if err != nil {
		return nil, fmt.Errorf("failed to start listener on port %s: %w", port, err)
	}
	defer listener.Close()

	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Authorization code not found", http.StatusBadRequest)
				select {
				case errCh <- fmt.Errorf("authorization code not found in redirect URL"):
				default:
				}
				return
			}
			fmt.Fprintf(w, "Authentication successful! You can close this window.")
			select {
			case codeCh <- code:
			default:
			}
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	defer server.Shutdown(context.Background())

	go func() {
		logger.Printf("Local server listening on %s for OAuth2 redirect...", config.RedirectURL)
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Offline access is what yields a refresh token.
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Fprintf(out, "Open the following URL in your browser to authorize lifeops:\n%s\n", authURL)

	select {
	case code := <-codeCh:
		exCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		tok, err := config.Exchange(exCtx, code)
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve token from Google: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Minute):
		return nil, fmt.Errorf("authorization timed out, please try again")
	}
}

// savingTokenSource writes the token back to disk whenever the underlying
// source hands out a different one.
type savingTokenSource struct {
	mu   sync.Mutex
	base oauth2.TokenSource
	path string
	last *oauth2.Token
	log  *log.Logger
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || tok.AccessToken != s.last.AccessToken || tok.RefreshToken != s.last.RefreshToken {
		if err := saveToken(s.path, tok); err != nil {
			s.log.Printf("Warning: could not save refreshed token: %v", err)
		}
		s.last = tok
	}
	return tok, nil
}

func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token from file %s: %w", file, err)
	}
	return tok, nil
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("could not create token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache OAuth token to %s: %w", path, err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
