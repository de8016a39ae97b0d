package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jefe-johann/grab-otp/internal/model"
	"github.com/jefe-johann/grab-otp/internal/platform"

	"golang.org/x/oauth2"
)

const clientSecret = `{"installed":{"client_id":"id.apps.googleusercontent.com","client_secret":"secret",` +
	`"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",` +
	`"redirect_uris":["http://localhost"]}}`

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newCLIApp()
	var buf bytes.Buffer
	app.Writer = &buf
	err := app.Run(append([]string{"grabotp"}, args...))
	return buf.String(), err
}

func TestCLIPref(t *testing.T) {
	dir := t.TempDir()

	out, err := runCLI(t, "--config-dir", dir, "pref")
	if err != nil {
		t.Fatalf("pref: %v", err)
	}
	if !strings.Contains(out, `"auto_fill": true`) {
		t.Fatalf("default preference should be on, got %s", out)
	}

	out, err = runCLI(t, "--config-dir", dir, "pref", "--auto-fill=false")
	if err != nil {
		t.Fatalf("pref: %v", err)
	}
	if !strings.Contains(out, `"auto_fill": false`) {
		t.Fatalf("preference not saved, got %s", out)
	}
}

func TestCLILogout(t *testing.T) {
	dir := t.TempDir()
	st, err := platform.OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	if err := st.SaveCredential(context.Background(), &oauth2.Token{AccessToken: "x", Expiry: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("SaveCredential: %v", err)
	}
	st.Close()
	if err := os.WriteFile(filepath.Join(dir, "token.json"), []byte(`{"refresh_token":"r"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := runCLI(t, "--config-dir", dir, "logout"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "token.json")); !os.IsNotExist(err) {
		t.Fatal("token.json should be removed")
	}
	st, _ = platform.OpenStore(dir)
	defer st.Close()
	if tok, _ := st.LoadCredential(context.Background()); tok != nil {
		t.Fatal("cached credential should be purged")
	}
}

func TestCLIFetchRequiresDomain(t *testing.T) {
	_, err := runCLI(t, "--config-dir", t.TempDir(), "fetch")
	if err == nil || !strings.Contains(err.Error(), "--domain") {
		t.Fatalf("expected a missing-domain error, got %v", err)
	}
}

func TestCLIFetchWithoutClientSecret(t *testing.T) {
	_, err := runCLI(t, "--config-dir", t.TempDir(), "fetch", "--domain", "example.com")
	if err == nil || !strings.Contains(err.Error(), "client_secret.json") {
		t.Fatalf("expected a credentials error, got %v", err)
	}
}

func TestCLIFetchEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer cached-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		const prefix = "/gmail/v1/users/me/messages"
		if r.URL.Path == prefix {
			_ = json.NewEncoder(w).Encode(map[string]any{"messages": []map[string]string{{"id": "m1", "threadId": "m1"}}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "m1",
			"snippet": "Your verification code: 482913",
			"payload": map[string]any{"mimeType": "text/plain", "body": map[string]any{
				"data": base64.URLEncoding.EncodeToString([]byte("Your verification code: 482913")),
			}},
		})
	}))
	defer srv.Close()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "client_secret.json"), []byte(clientSecret), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("api_endpoint: "+srv.URL+"/\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := platform.OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	if err := st.SaveCredential(context.Background(), &oauth2.Token{AccessToken: "cached-token", Expiry: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("SaveCredential: %v", err)
	}
	st.Close()

	out, err := runCLI(t, "--config-dir", dir, "fetch", "--domain", "example.com")
	if err != nil {
		t.Fatalf("fetch: %v\n%s", err, out)
	}
	var got model.RetrievalOutcome
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("parse output: %v\n%s", err, out)
	}
	if !got.Success || got.Code != "482913" || got.Domain != "example.com" {
		t.Fatalf("unexpected outcome: %+v", got)
	}
}
