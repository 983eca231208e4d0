package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/privchat/privchat-server/internal/auth"
	"github.com/privchat/privchat-server/internal/config"
	"github.com/privchat/privchat-server/internal/core"
	"github.com/privchat/privchat-server/internal/crypto"
	"github.com/privchat/privchat-server/internal/store"
	"github.com/privchat/privchat-server/internal/store/sqlite"
)

// testStack wires the full server against a throwaway SQLite database.
type testStack struct {
	ts          *httptest.Server
	store       store.Store
	authService *auth.Service
	registry    *core.Registry
}

func startTestServer(t *testing.T) *testStack {
	t.Helper()

	st, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cipher, err := crypto.NewSecretBox(key)
	if err != nil {
		t.Fatalf("create cipher: %v", err)
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	logger := zerolog.Nop()
	registry := core.NewRegistry()
	notifyRegistry := core.NewNotifyRegistry()
	engine := core.NewEngine(st, cipher, registry, &logger)

	cfg := config.Config{
		Addr:              ":0",
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
		NotifyInterval:    50 * time.Millisecond,
		WSRateLimit:       1000,
	}

	server := NewServer(cfg, authService, st, engine, registry, notifyRegistry, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testStack{ts: ts, store: st, authService: authService, registry: registry}
}

// registerUser registers a user over the REST API and returns its token.
func (s *testStack) registerUser(t *testing.T, username, password string) string {
	t.Helper()

	body, _ := json.Marshal(RegisterRequest{Username: username, Password: password})
	resp, err := s.ts.Client().Post(s.ts.URL+"/api/register", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("register request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 201 {
		t.Fatalf("register %q: unexpected status %d", username, resp.StatusCode)
	}

	var tokenResp AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return tokenResp.Token
}

// userID resolves a registered username to its id.
func (s *testStack) userID(t *testing.T, username string) int64 {
	t.Helper()

	u, err := s.store.GetUserByUsername(context.Background(), username)
	if err != nil {
		t.Fatalf("lookup user %q: %v", username, err)
	}
	return u.ID
}

// waitRegistered blocks until the directed pair channel appears, so tests can
// send without racing the peer's session start.
func (s *testStack) waitRegistered(t *testing.T, from, to int64) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := s.registry.Lookup(core.PairKey{From: from, To: to}); ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("channel %d->%d never registered", from, to)
}
