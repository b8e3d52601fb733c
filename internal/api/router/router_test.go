package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/clinic-messaging/internal/confirmation"
	"github.com/wolfman30/clinic-messaging/internal/dispatch"
	"github.com/wolfman30/clinic-messaging/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-messaging/internal/http/middleware"
	"github.com/wolfman30/clinic-messaging/internal/intent"
	"github.com/wolfman30/clinic-messaging/internal/store"
	"github.com/wolfman30/clinic-messaging/pkg/logging"
)

type noMatchStore struct{}

func (noMatchStore) FindPatientByPhone(context.Context, []string, string) (*store.Patient, error) {
	return nil, store.ErrNotFound
}

func (noMatchStore) NextConfirmableAppointment(context.Context, string, time.Time) (*store.Appointment, error) {
	return nil, store.ErrNotFound
}

func (noMatchStore) ConfirmAppointment(context.Context, string, time.Time) (bool, error) {
	return false, nil
}

type okRunner struct{}

func (okRunner) Run(_ context.Context, job string) (dispatch.Summary, error) {
	return dispatch.NewSummary(job), nil
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("down") }

func newTestRouter(t *testing.T, secret string) http.Handler {
	t.Helper()

	logger := logging.Default()
	pipeline := confirmation.New(noMatchStore{}, nil, intent.New(intent.Config{Keywords: []string{"sim"}, MaxFuzzyLength: 30}), logger)
	cfg := &Config{
		Logger:         logger,
		Health:         handlers.NewHealthHandler(nil),
		Webhooks:       handlers.NewWebhookHandler(handlers.WebhookConfig{Pipeline: pipeline, Logger: logger}),
		Jobs:           handlers.NewJobsHandler(okRunner{}, logger),
		JobAuthSecret:  secret,
		JobRateLimiter: httpmiddleware.NewRateLimiter(10, 10),
	}
	return New(cfg)
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Errorf("expected X-Request-ID header")
	}
}

func TestRouterHealthDegraded(t *testing.T) {
	router := New(&Config{Health: handlers.NewHealthHandler(failingPinger{})})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rr.Code)
	}
}

func TestRouterWebhookRoutes(t *testing.T) {
	router := newTestRouter(t, "")
	for _, path := range []string{"/webhooks/zapi", "/webhooks/evolution", "/webhooks/meta", "/webhooks/whatsapp"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"phone":"5511987654321","text":{"message":"sim"}}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected status %d, got %d", path, http.StatusOK, rr.Code)
		}
	}
}

func TestRouterJobsRequireToken(t *testing.T) {
	router := newTestRouter(t, "secret")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/campaign", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "cron",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	signed, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/jobs/campaign", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}
