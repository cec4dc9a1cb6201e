package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alvarodevlabs/DisfrutaTV/internal/app"
	"github.com/alvarodevlabs/DisfrutaTV/internal/ratelimit"
	"github.com/alvarodevlabs/DisfrutaTV/internal/tmdb"
	"github.com/alvarodevlabs/DisfrutaTV/pkg/domain"
	"github.com/alvarodevlabs/DisfrutaTV/pkg/store"
)

type fakeCatalog struct {
	results json.RawMessage
	err     error
	lastKey string
}

func (f *fakeCatalog) Popular(_ context.Context, apiKey string, _ domain.MediaKind, _ int) (json.RawMessage, error) {
	f.lastKey = apiKey
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type captureMailer struct {
	to   string
	body string
}

func (m *captureMailer) Send(_ context.Context, to, _, body string) error {
	m.to = to
	m.body = body
	return nil
}

type testEnv struct {
	server  *httptest.Server
	catalog *fakeCatalog
	mailer  *captureMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	memStore := store.NewMemoryStore()
	sessions, err := store.NewSessionTokens("test-secret", time.Hour, store.NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("session tokens: %v", err)
	}
	resets, err := store.NewResetTokens("test-reset-secret", store.DefaultResetTTL)
	if err != nil {
		t.Fatalf("reset tokens: %v", err)
	}
	catalog := &fakeCatalog{results: json.RawMessage(`[{"id":1}]`)}
	mailer := &captureMailer{}
	core, err := app.New(app.Config{
		Store:         memStore,
		ConfigStore:   memStore,
		Sessions:      sessions,
		ResetTokens:   resets,
		Mailer:        mailer,
		Catalog:       catalog,
		ResetLinkBase: "http://localhost:5173",
	})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	srv := httptest.NewServer(New(Config{App: core}).Router())
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, catalog: catalog, mailer: mailer}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (e *testEnv) register(t *testing.T, username, email, password string) {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": username, "email": email, "password": password,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d body %v", email, resp.StatusCode, body)
	}
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": email, "password": password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d body %v", email, resp.StatusCode, body)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("login %s: missing access_token in %v", email, body)
	}
	return token
}

func TestRegisterLoginAndListLifecycle(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, "ana", "ana@example.com", "secret1")

	// duplicate email is rejected
	resp, _ := env.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "other", "email": "ana@example.com", "password": "secret2",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate register: status %d, want 400", resp.StatusCode)
	}

	token := env.login(t, "ana@example.com", "secret1")

	// add the same movie twice: both succeed, second reports already present
	resp, body := env.do(t, http.MethodPost, "/api/movies/100/add-favorite", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add favorite: status %d body %v", resp.StatusCode, body)
	}
	resp, body = env.do(t, http.MethodPost, "/api/movies/100/add-favorite", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("re-add favorite: status %d body %v", resp.StatusCode, body)
	}
	if msg, _ := body["message"].(string); !strings.Contains(msg, "already") {
		t.Fatalf("re-add favorite message = %q, want already-present notice", body["message"])
	}

	// the list shows one movie entry
	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/user/favorites", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	listResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get favorites: %v", err)
	}
	defer listResp.Body.Close()
	var entries []map[string]any
	if err := json.NewDecoder(listResp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode favorites: %v", err)
	}
	if len(entries) != 1 || entries[0]["id"] != float64(100) || entries[0]["type"] != "movie" {
		t.Fatalf("favorites = %v, want one movie entry with id 100", entries)
	}

	// remove, then removing again is a 404
	resp, _ = env.do(t, http.MethodDelete, "/api/movies/100/remove-favorite", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("remove favorite: status %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodDelete, "/api/movies/100/remove-favorite", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("re-remove favorite: status %d, want 404", resp.StatusCode)
	}
}

func TestStatisticsCountsPerKind(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "ana", "ana@example.com", "secret1")
	token := env.login(t, "ana@example.com", "secret1")

	for _, path := range []string{
		"/api/movies/1/add-favorite",
		"/api/movies/2/add-favorite",
		"/api/series/1/add-favorite",
		"/api/series/9/add-pending",
		"/api/movies/5/add-viewed",
	} {
		if resp, body := env.do(t, http.MethodPost, path, token, nil); resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status %d body %v", path, resp.StatusCode, body)
		}
	}

	resp, body := env.do(t, http.MethodGet, "/api/statistics", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("statistics: status %d", resp.StatusCode)
	}
	want := map[string]float64{
		"favoriteMoviesCount": 2,
		"favoriteSeriesCount": 1,
		"pendingMoviesCount":  0,
		"pendingSeriesCount":  1,
		"viewedMoviesCount":   1,
		"viewedSeriesCount":   0,
	}
	for key, count := range want {
		if got, _ := body[key].(float64); got != count {
			t.Fatalf("%s = %v, want %v", key, body[key], count)
		}
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "ana", "ana@example.com", "secret1")
	token := env.login(t, "ana@example.com", "secret1")

	resp, _ := env.do(t, http.MethodGet, "/api/statistics", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("statistics before logout: status %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodPost, "/auth/logout", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: status %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/statistics", token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("statistics after logout: status %d, want 401", resp.StatusCode)
	}
}

func TestAdminGateOnConfigAndUsers(t *testing.T) {
	env := newTestEnv(t)
	// first account becomes admin, second stays a regular user
	env.register(t, "admin", "admin@example.com", "secret1")
	env.register(t, "ana", "ana@example.com", "secret2")
	adminToken := env.login(t, "admin@example.com", "secret1")
	userToken := env.login(t, "ana@example.com", "secret2")

	resp, _ := env.do(t, http.MethodPut, "/api/config", userToken, map[string]string{
		"themdb_api_key": "user-key",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("config as user: status %d, want 403", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/users", userToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("users as user: status %d, want 403", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/config", adminToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("config before any key: status %d, want 404", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodPut, "/api/config", adminToken, map[string]string{
		"themdb_api_key": "admin-key",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("config put as admin: status %d", resp.StatusCode)
	}
	resp, body := env.do(t, http.MethodGet, "/api/config", adminToken, nil)
	if resp.StatusCode != http.StatusOK || body["themdb_api_key"] != "admin-key" {
		t.Fatalf("config get: status %d body %v", resp.StatusCode, body)
	}
	resp, _ = env.do(t, http.MethodPut, "/api/config", adminToken, map[string]string{
		"themdb_api_key": "  ",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("config put empty key: status %d, want 400", resp.StatusCode)
	}
}

func TestCatalogUsesStoredKeyAndMapsErrors(t *testing.T) {
	env := newTestEnv(t)

	// no configuration yet
	resp, _ := env.do(t, http.MethodGet, "/api/movies", "", nil)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("catalog without configuration: status %d, want 500", resp.StatusCode)
	}

	env.register(t, "admin", "admin@example.com", "secret1")
	adminToken := env.login(t, "admin@example.com", "secret1")
	if resp, _ := env.do(t, http.MethodPut, "/api/config", adminToken, map[string]string{
		"themdb_api_key": "stored-key",
	}); resp.StatusCode != http.StatusOK {
		t.Fatalf("config put: status %d", resp.StatusCode)
	}

	httpResp, err := http.Get(env.server.URL + "/api/series?page=3")
	if err != nil {
		t.Fatalf("get series: %v", err)
	}
	defer httpResp.Body.Close()
	var results []map[string]any
	if err := json.NewDecoder(httpResp.Body).Decode(&results); err != nil {
		t.Fatalf("decode series: %v", err)
	}
	if len(results) != 1 || results[0]["id"] != float64(1) {
		t.Fatalf("series results = %v", results)
	}
	if env.catalog.lastKey != "stored-key" {
		t.Fatalf("catalog called with key %q, want stored-key", env.catalog.lastKey)
	}

	env.catalog.err = fmt.Errorf(`Get "http://upstream/movie/popular?api_key=stored-key": connection refused`)
	resp, errBody := env.do(t, http.MethodGet, "/api/movies", "", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("catalog upstream failure: status %d, want 502", resp.StatusCode)
	}
	if msg, _ := errBody["error"].(string); strings.Contains(msg, "stored-key") {
		t.Fatalf("upstream failure response leaks the stored key: %q", msg)
	}
}

func TestCatalogOutageNeverExposesStoredKey(t *testing.T) {
	memStore := store.NewMemoryStore()
	sessions, err := store.NewSessionTokens("test-secret", time.Hour, store.NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("session tokens: %v", err)
	}
	resets, err := store.NewResetTokens("test-reset-secret", store.DefaultResetTTL)
	if err != nil {
		t.Fatalf("reset tokens: %v", err)
	}
	core, err := app.New(app.Config{
		Store:       memStore,
		ConfigStore: memStore,
		Sessions:    sessions,
		ResetTokens: resets,
		Catalog:     tmdb.NewClientWithBaseURL("http://127.0.0.1:1"),
	})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	if err := memStore.SaveConfiguration(domain.Configuration{TMDBAPIKey: "super-secret-key"}); err != nil {
		t.Fatalf("save configuration: %v", err)
	}
	srv := httptest.NewServer(New(Config{App: core}).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/movies")
	if err != nil {
		t.Fatalf("get movies: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status %d, want 502", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if strings.Contains(string(raw), "super-secret-key") {
		t.Fatalf("502 body leaks the stored key: %s", raw)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "ana", "ana@example.com", "old-password")

	// unknown email gets the same generic answer and sends nothing
	resp, body := env.do(t, http.MethodPost, "/auth/reset-password", "", map[string]string{
		"email": "nobody@example.com",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset request unknown email: status %d", resp.StatusCode)
	}
	if env.mailer.to != "" {
		t.Fatalf("mail sent for unknown email to %q", env.mailer.to)
	}

	resp, body = env.do(t, http.MethodPost, "/auth/reset-password", "", map[string]string{
		"email": "ana@example.com",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset request: status %d body %v", resp.StatusCode, body)
	}
	if env.mailer.to != "ana@example.com" {
		t.Fatalf("mail sent to %q, want ana@example.com", env.mailer.to)
	}
	marker := "/reset-password/"
	idx := strings.LastIndex(env.mailer.body, marker)
	if idx < 0 {
		t.Fatalf("mail body has no reset link: %q", env.mailer.body)
	}
	token := strings.TrimSpace(strings.SplitN(env.mailer.body[idx+len(marker):], "\n", 2)[0])

	resp, _ = env.do(t, http.MethodPost, "/auth/reset-password/"+token, "", map[string]string{
		"password": "new-password",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset confirm: status %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "ana@example.com", "password": "old-password",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("login with old password: status %d, want 401", resp.StatusCode)
	}
	env.login(t, "ana@example.com", "new-password")

	resp, _ = env.do(t, http.MethodPost, "/auth/reset-password/not-a-token", "", map[string]string{
		"password": "whatever",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("reset confirm bad token: status %d, want 400", resp.StatusCode)
	}
}

func TestProfileReadAndUpdate(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "ana", "ana@example.com", "secret1")
	token := env.login(t, "ana@example.com", "secret1")

	resp, body := env.do(t, http.MethodGet, "/api/user/profile", token, nil)
	if resp.StatusCode != http.StatusOK || body["username"] != "ana" {
		t.Fatalf("profile get: status %d body %v", resp.StatusCode, body)
	}

	resp, _ = env.do(t, http.MethodPut, "/api/user/profile", token, map[string]string{
		"username": "ana-renamed",
		"password": "secret2",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("profile put: status %d", resp.StatusCode)
	}
	// old password no longer works, new one does
	resp, _ = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "ana@example.com", "password": "secret1",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("login with old password after update: status %d, want 401", resp.StatusCode)
	}
	env.login(t, "ana@example.com", "secret2")
}

func TestLoginRateLimit(t *testing.T) {
	memStore := store.NewMemoryStore()
	sessions, err := store.NewSessionTokens("test-secret", time.Hour, store.NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("session tokens: %v", err)
	}
	resets, err := store.NewResetTokens("test-reset-secret", store.DefaultResetTTL)
	if err != nil {
		t.Fatalf("reset tokens: %v", err)
	}
	core, err := app.New(app.Config{
		Store:       memStore,
		ConfigStore: memStore,
		Sessions:    sessions,
		ResetTokens: resets,
	})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	limiter, err := ratelimit.NewFixedWindowLimiter(2, time.Minute)
	if err != nil {
		t.Fatalf("limiter: %v", err)
	}
	srv := httptest.NewServer(New(Config{App: core, LoginLimiter: limiter}).Router())
	defer srv.Close()

	payload := bytes.NewReader([]byte(`{"email":"a@example.com","password":"x"}`))
	for i := 0; i < 2; i++ {
		payload.Seek(0, 0)
		resp, err := http.Post(srv.URL+"/auth/login", "application/json", payload)
		if err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("login %d: status %d, want 401", i, resp.StatusCode)
		}
	}
	payload.Seek(0, 0)
	resp, err := http.Post(srv.URL+"/auth/login", "application/json", payload)
	if err != nil {
		t.Fatalf("rate limited login: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("rate limited login: status %d, want 429", resp.StatusCode)
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{
		"/api/user/favorites",
		"/api/statistics",
		"/api/user/profile",
	} {
		resp, _ := env.do(t, http.MethodGet, path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s without token: status %d, want 401", path, resp.StatusCode)
		}
		resp, _ = env.do(t, http.MethodGet, path, "not-a-jwt", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s with garbage token: status %d, want 401", path, resp.StatusCode)
		}
	}
}
