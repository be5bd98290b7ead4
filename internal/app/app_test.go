package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hitoshi/taskman/internal/config"
)

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	setTestEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg == nil {
		t.Fatal("expected non-nil config")
	}

	if cfg.JWTSecret != "test-jwt-secret-32bytes-long!!!!" {
		t.Errorf("JWTSecret = %q, want test secret", cfg.JWTSecret)
	}

	// Verify that slog global logger is configured for JSON output
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:         "test-secret",
		TokenTTL:          time.Hour,
		BcryptCost:        4,
		AvatarMaxBytes:    1000000,
		AvatarSize:        250,
		RateLimitGeneral:  120,
		RateLimitAuth:     20,
		CORSAllowedOrigin: "http://localhost:3000",
	}
}

func TestNewServer_WiresHealthAndMetrics(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	srv := newServer(testConfig(), db, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	defer srv.rateLimiter.Stop()

	w := httptest.NewRecorder()
	srv.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	srv.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	for _, name := range []string{"go_goroutines", "taskman_http_responses_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output does not contain %s", name)
		}
	}
}

func TestNewServer_ProtectedRouteRequiresToken(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	srv := newServer(testConfig(), db, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	defer srv.rateLimiter.Stop()

	w := httptest.NewRecorder()
	srv.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("GET /users/me status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestNewWorker_ExposesPurgedTokenMetric(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("DELETE FROM user_tokens WHERE expires_at").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	cfg := testConfig()
	cfg.WorkerMetricsPort = "9191"
	wk := newWorker(cfg, db, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))

	if wk.metricsServer.Addr != ":9191" {
		t.Errorf("metrics addr = %q, want %q", wk.metricsServer.Addr, ":9191")
	}

	if _, err := wk.cleanupJob.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	w := httptest.NewRecorder()
	wk.metricsServer.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "taskman_tokens_purged_total 2") {
		t.Errorf("metrics output does not contain purged count:\n%s", w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	got := maskDatabaseURL("postgres://user:secret@db:5432/taskman")
	if strings.Contains(got, "secret") {
		t.Errorf("maskDatabaseURL leaked credentials: %q", got)
	}
	if got := maskDatabaseURL("short"); got != "***" {
		t.Errorf("maskDatabaseURL(short) = %q, want ***", got)
	}
}
