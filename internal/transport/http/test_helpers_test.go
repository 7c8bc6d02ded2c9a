package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"messenger/internal/auth"
	"messenger/internal/config"
	"messenger/internal/core"
	"messenger/internal/store"
	"messenger/internal/store/sqlite"
)

type testEnv struct {
	srv      *httptest.Server
	store    store.Store
	registry *core.Registry
}

// newTestEnv wires the full stack over an in-memory database and serves
// it from an httptest server.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := zerolog.Nop()

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.TokenTTL = time.Hour

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	})

	registry := core.NewRegistry(&logger)
	delivery := core.NewDelivery(st, registry, &logger)
	receipts := core.NewReceipts(st, registry, &logger)
	handshake := core.NewHandshake(authService, st)

	server := NewServer(&cfg, st, authService, registry, delivery, receipts, handshake, &logger)

	srv := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		registry.CloseAll()
		srv.Close()
	})

	return &testEnv{srv: srv, store: st, registry: registry}
}

// registerUser registers a user through the API and returns the token
// and user ID.
func (e *testEnv) registerUser(t *testing.T, name string) (token, userID string) {
	t.Helper()
	status, body := e.doJSON(t, "POST", "/api/auth/register", "", map[string]string{
		"name":     name,
		"email":    name + "@example.com",
		"password": "secret1",
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s: status %d, body %s", name, status, body)
	}
	var resp AuthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return resp.Token, resp.UserID
}

// doJSON performs a JSON request against the test server and returns
// the status code and raw response body.
func (e *testEnv) doJSON(t *testing.T, method, path, token string, payload any) (int, []byte) {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return resp.StatusCode, buf.Bytes()
}

// createPersonalChat creates a two-party chat via the API and returns
// its ID.
func (e *testEnv) createPersonalChat(t *testing.T, token, memberID string) string {
	t.Helper()
	status, body := e.doJSON(t, "POST", "/api/chats/personal", token, map[string]string{
		"member_id": memberID,
	})
	if status != http.StatusCreated {
		t.Fatalf("create personal chat: status %d, body %s", status, body)
	}
	var resp ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode chat response: %v", err)
	}
	return resp.ID
}
