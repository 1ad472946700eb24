package http_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pulsehq/pulse/internal/auth"
	"github.com/pulsehq/pulse/internal/cache"
	"github.com/pulsehq/pulse/internal/config"
	apphttp "github.com/pulsehq/pulse/internal/http"
	"github.com/pulsehq/pulse/internal/domain/user"
	"github.com/pulsehq/pulse/internal/observability"
	"github.com/pulsehq/pulse/internal/repo/memory"
	"github.com/pulsehq/pulse/internal/security"
	"github.com/pulsehq/pulse/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() config.Config {
	return config.Config{
		Env:                 "test",
		Port:                0,
		JWTSecret:           "test-secret",
		JWTAccessTTLMinutes: 15,
		SessionTTLDays:      30,
		EmailDomain:         "pulsehq.com",
		LoginRateLimit:      3,
		LoginRateWindow:     time.Minute,
	}
}

func setupRouter(t *testing.T) (*gin.Engine, *memory.UsersRepo) {
	t.Helper()

	cfg := testConfig()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := memory.NewUsersRepo()
	sessionsRepo := memory.NewSessionsRepo()
	manager := session.NewManager(sessionsRepo, users, cfg.SessionTTL(), log)
	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.JWTAccessTTL())

	registry := prometheus.NewRegistry()
	prom := observability.NewProm(registry)

	router := apphttp.NewRouter(apphttp.Deps{
		Cfg:          cfg,
		Log:          log,
		Users:        users,
		Sessions:     manager,
		JWT:          jwtManager,
		Profiles:     cache.New(5 * time.Second),
		Prom:         prom,
		PromRegistry: registry,
	})

	return router, users
}

func seedReadyUser(t *testing.T, users *memory.UsersRepo, email, password string) {
	t.Helper()

	u, err := users.Create(context.Background(), user.User{
		Email:       email,
		Preferences: user.DefaultPreferences(),
		AgentConfig: user.DefaultAgentConfig(),
	})

	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	hash, err := security.HashPassword(password)

	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	if err := users.SetPassword(context.Background(), u.ID, hash); err != nil {
		t.Fatalf("set password: %v", err)
	}

	if err := users.SetProfile(context.Background(), u.ID, user.RoleAnalyst, u.Preferences, u.AgentConfig); err != nil {
		t.Fatalf("set profile: %v", err)
	}
}

func doJSON(router http.Handler, method, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func TestRouterLoginFlowThroughFullStack(t *testing.T) {
	router, users := setupRouter(t)
	seedReadyUser(t, users, "ana@pulsehq.com", "correct1password")

	w := doJSON(router, http.MethodPost, "/auth/login", `{"email":"ana@pulsehq.com","password":"correct1password"}`, "")

	if w.Code != http.StatusOK {
		t.Fatalf("login got %d, body=%s", w.Code, w.Body.String())
	}

	// ambient middleware did its job
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatal("missing request id header")
	}

	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing security headers")
	}

	var resp struct {
		AccessToken string `json:"accessToken"`
	}

	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.AccessToken == "" {
		t.Fatalf("no access token in login response: %s", w.Body.String())
	}

	// the minted token opens the bearer surface
	w = doJSON(router, http.MethodGet, "/auth/me", "", resp.AccessToken)

	if w.Code != http.StatusOK {
		t.Fatalf("me got %d, body=%s", w.Code, w.Body.String())
	}

	w = doJSON(router, http.MethodPatch, "/settings/preferences", `{"defaultAgentMode":"deep"}`, resp.AccessToken)

	if w.Code != http.StatusOK {
		t.Fatalf("settings patch got %d, body=%s", w.Code, w.Body.String())
	}
}

func TestRouterRejectsNonJSONBodies(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("email=x&password=y"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("got %d, want 415", w.Code)
	}
}

func TestRouterThrottlesRepeatedLogins(t *testing.T) {
	router, _ := setupRouter(t)

	body := `{"email":"ghost@pulsehq.com","password":"wrong1pass"}`

	// limit is 3 per window; requests share the test client IP
	for i := 0; i < 3; i++ {
		w := doJSON(router, http.MethodPost, "/auth/login", body, "")

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d got %d, want 401", i+1, w.Code)
		}
	}

	w := doJSON(router, http.MethodPost, "/auth/login", body, "")

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("got %d, want 429", w.Code)
	}

	if w.Header().Get("Retry-After") == "" {
		t.Fatal("throttled response should carry Retry-After")
	}
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(router, http.MethodGet, "/healthz", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("healthz got %d", w.Code)
	}

	w = doJSON(router, http.MethodGet, "/readyz", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("readyz got %d", w.Code)
	}

	w = doJSON(router, http.MethodGet, "/metrics", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("metrics got %d", w.Code)
	}

	if !strings.Contains(w.Body.String(), "pulse_http_requests_total") {
		t.Fatal("metrics output missing request counter")
	}
}
