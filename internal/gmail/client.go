package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	apperrors "github.com/jefe-johann/grab-otp/internal/errors"
	"github.com/jefe-johann/grab-otp/internal/logger"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
)

const consentTimeout = 120 * time.Second

// OAuthIdentity obtains tokens with the installed-app OAuth flow:
// - Client credentials at <configDir>/client_secret.json
// - Refresh token at <configDir>/token.json
// Scope: gmail.readonly.
type OAuthIdentity struct {
	cfg     *oauth2.Config
	tokFile string
	log     *zap.Logger

	// OnAuthURL is called with the consent URL when the user has to sign in.
	// Defaults to opening the system browser.
	OnAuthURL func(authURL string)

	mu     sync.Mutex
	source oauth2.TokenSource
}

// NewOAuthIdentity reads the client credentials from configDir.
func NewOAuthIdentity(configDir string, log *zap.Logger) (*OAuthIdentity, error) {
	credPath := filepath.Join(configDir, "client_secret.json")
	b, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials at %s: %w", credPath, err)
	}
	cfg, err := google.ConfigFromJSON(b, gmailv1.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth config: %w", err)
	}
	l := logger.OrNop(log)
	return &OAuthIdentity{
		cfg:     cfg,
		tokFile: filepath.Join(configDir, "token.json"),
		log:     l,
		OnAuthURL: func(authURL string) {
			if err := OpenBrowser(authURL); err != nil {
				l.Warn("open browser", zap.Error(err))
				fmt.Fprintln(os.Stderr, "Open this URL in your browser to authorize grabotp:")
				fmt.Fprintln(os.Stderr, authURL)
			}
		},
	}, nil
}

func (o *OAuthIdentity) Token(ctx context.Context, interactive bool) (*oauth2.Token, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.source == nil {
		tok, err := readToken(o.tokFile)
		if err == nil {
			o.source = o.cfg.TokenSource(context.Background(), tok)
		}
	}
	if o.source != nil {
		tok, err := o.source.Token()
		if err == nil {
			return tok, nil
		}
		// Refresh token revoked or expired: forget it and fall through to consent.
		o.log.Info("stored refresh token rejected", zap.Error(err))
		o.forget()
	}

	if !interactive {
		return nil, apperrors.NewAuthRequired(nil)
	}
	tok, err := o.consent(ctx)
	if err != nil {
		return nil, apperrors.NewAuthRequired(err)
	}
	if err := saveToken(o.tokFile, tok); err != nil {
		o.log.Warn("save token", zap.Error(err))
	}
	o.source = o.cfg.TokenSource(context.Background(), tok)
	return tok, nil
}

// Invalidate drops the token source and the stored refresh token, so the
// next interactive Token call goes through consent again.
func (o *OAuthIdentity) Invalidate(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.forget()
}

func (o *OAuthIdentity) forget() error {
	o.source = nil
	return removeToken(o.tokFile)
}

// ForgetToken deletes the stored refresh token in configDir, if any.
func ForgetToken(configDir string) error {
	return removeToken(filepath.Join(configDir, "token.json"))
}

func removeToken(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// consent runs a loopback HTTP server to capture the auth code.
func (o *OAuthIdentity) consent(ctx context.Context) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen on loopback: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	cfg := *o.cfg
	cfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d/", port)

	codeCh := make(chan string, 1)
	mux := http.NewServeMux()
	srv := &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		Handler:           mux,
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "Missing 'code' parameter", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Authentication complete. You can close this window.")
		select {
		case codeCh <- code:
		default:
		}
	})
	go func() { _ = srv.Serve(ln) }()
	defer func() { _ = srv.Shutdown(context.Background()) }()

	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	if o.OnAuthURL != nil {
		o.OnAuthURL(authURL)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(consentTimeout):
		return nil, errors.New("timed out waiting for consent")
	case code := <-codeCh:
		tok, err := cfg.Exchange(ctx, strings.TrimSpace(code))
		if err != nil {
			return nil, fmt.Errorf("token exchange: %w", err)
		}
		return tok, nil
	}
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return err
	}
	f.Close()
	return os.Rename(tmp, path)
}
