package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/p12tic/acme-dns-certbot-hook/pkg/config"
	"github.com/p12tic/acme-dns-certbot-hook/pkg/storage"
)

// fakeServer is a minimal acme-dns instance for end-to-end hook runs
type fakeServer struct {
	*httptest.Server

	registerCalls int
	updateCalls   int
	lastUpdate    map[string]string
	lastUser      string
	lastKey       string
	updateStatus  int
	updateBody    string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	f := &fakeServer{
		updateStatus: http.StatusOK,
		updateBody:   "{}",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
		f.registerCalls++
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"subdomain":"abc","username":"u","password":"p","fulldomain":"abc.auth.example.com"}`)
	})
	mux.HandleFunc("/update", func(w http.ResponseWriter, r *http.Request) {
		f.updateCalls++
		f.lastUser = r.Header.Get("X-Api-User")
		f.lastKey = r.Header.Get("X-Api-Key")
		body, _ := io.ReadAll(r.Body)
		f.lastUpdate = map[string]string{}
		json.Unmarshal(body, &f.lastUpdate)
		w.WriteHeader(f.updateStatus)
		io.WriteString(w, f.updateBody)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// setupRun prepares environment, config file and storage path for one run
func setupRun(t *testing.T, server *fakeServer, domain, token string) Options {
	t.Helper()

	dir := t.TempDir()
	configFile := filepath.Join(dir, "acme-dns-hook.json")
	content := fmt.Sprintf(`{"url": %q}`, server.URL)
	if err := os.WriteFile(configFile, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{config.EnvURL, config.EnvAllowFrom, config.EnvForceRegister} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	t.Setenv(EnvDomain, domain)
	t.Setenv(EnvValidation, token)

	return Options{
		ConfigPath:  configFile,
		StoragePath: filepath.Join(dir, "acmedns.json"),
	}
}

func TestFirstRegistrationForWildcardDomain(t *testing.T) {
	server := newFakeServer(t)
	opts := setupRun(t, server, "*.example.com", "validation-token")

	var out bytes.Buffer
	opts.Out = &out

	if err := Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}

	if server.registerCalls != 1 {
		t.Errorf("register calls = %d", server.registerCalls)
	}
	if server.updateCalls != 1 {
		t.Errorf("update calls = %d", server.updateCalls)
	}

	// Stored under the base domain, wildcard stripped
	store, err := storage.New(opts.StoragePath)
	if err != nil {
		t.Fatal(err)
	}
	account := store.Fetch("example.com")
	if account == nil {
		t.Fatal("account not stored under example.com")
	}
	if account.Subdomain != "abc" {
		t.Errorf("stored subdomain = %q", account.Subdomain)
	}

	if !strings.Contains(out.String(), "_acme-challenge.example.com. CNAME abc.auth.example.com.") {
		t.Errorf("operator notice = %q", out.String())
	}

	if server.lastUpdate["subdomain"] != "abc" || server.lastUpdate["txt"] != "validation-token" {
		t.Errorf("update payload = %v", server.lastUpdate)
	}
	if server.lastUser != "u" || server.lastKey != "p" {
		t.Errorf("update auth = %q / %q", server.lastUser, server.lastKey)
	}
}

func TestExistingAccountSkipsRegistration(t *testing.T) {
	server := newFakeServer(t)
	opts := setupRun(t, server, "example.com", "validation-token")

	existing := `{"example.com":{"subdomain":"old","username":"olduser","password":"oldpass","fulldomain":"old.auth.example.com"}}`
	if err := os.WriteFile(opts.StoragePath, []byte(existing), 0600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	opts.Out = &out

	if err := Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}

	if server.registerCalls != 0 {
		t.Errorf("register calls = %d, want 0", server.registerCalls)
	}
	if server.updateCalls != 1 {
		t.Errorf("update calls = %d", server.updateCalls)
	}
	if server.lastUpdate["subdomain"] != "old" {
		t.Errorf("update subdomain = %q, want stored account", server.lastUpdate["subdomain"])
	}
	if server.lastUser != "olduser" || server.lastKey != "oldpass" {
		t.Errorf("update auth = %q / %q", server.lastUser, server.lastKey)
	}

	// The CNAME notice is printed only on first-time registration
	if out.Len() != 0 {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestForceRegisterReplacesAccount(t *testing.T) {
	server := newFakeServer(t)
	opts := setupRun(t, server, "example.com", "validation-token")
	t.Setenv(config.EnvForceRegister, "true")

	existing := `{"example.com":{"subdomain":"old","username":"olduser","password":"oldpass","fulldomain":"old.auth.example.com"}}`
	if err := os.WriteFile(opts.StoragePath, []byte(existing), 0600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	opts.Out = &out

	if err := Run(context.Background(), opts); err != nil {
		t.Fatal(err)
	}

	if server.registerCalls != 1 {
		t.Errorf("register calls = %d, want 1", server.registerCalls)
	}
	if server.lastUpdate["subdomain"] != "abc" {
		t.Errorf("update subdomain = %q, want fresh account", server.lastUpdate["subdomain"])
	}

	store, err := storage.New(opts.StoragePath)
	if err != nil {
		t.Fatal(err)
	}
	if got := store.Fetch("example.com"); got == nil || got.Subdomain != "abc" {
		t.Errorf("stored account = %+v", got)
	}
}

func TestUpdateFailurePropagatesResponseBody(t *testing.T) {
	server := newFakeServer(t)
	server.updateStatus = http.StatusBadRequest
	server.updateBody = `{"error":"bad subdomain"}`

	opts := setupRun(t, server, "example.com", "validation-token")

	err := Run(context.Background(), opts)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), `{"error":"bad subdomain"}`) {
		t.Errorf("error message = %q", err.Error())
	}
}

func TestMissingEnvironment(t *testing.T) {
	server := newFakeServer(t)

	tests := []struct {
		name  string
		unset string
	}{
		{"missing domain", EnvDomain},
		{"missing validation token", EnvValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := setupRun(t, server, "example.com", "validation-token")
			t.Setenv(tt.unset, "")
			os.Unsetenv(tt.unset)

			err := Run(context.Background(), opts)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.unset) {
				t.Errorf("error = %v, want mention of %s", err, tt.unset)
			}

			if server.registerCalls != 0 || server.updateCalls != 0 {
				t.Error("no HTTP call may happen without challenge environment")
			}
		})
	}
}

func TestCorruptedStorageAborts(t *testing.T) {
	server := newFakeServer(t)
	opts := setupRun(t, server, "example.com", "validation-token")

	if err := os.WriteFile(opts.StoragePath, []byte("{ not json"), 0600); err != nil {
		t.Fatal(err)
	}

	err := Run(context.Background(), opts)
	if err == nil {
		t.Fatal("expected error")
	}
	if server.registerCalls != 0 || server.updateCalls != 0 {
		t.Error("no HTTP call may happen with a corrupted store")
	}
}
