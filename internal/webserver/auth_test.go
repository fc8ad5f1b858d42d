package webserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/leosozza/evowhats/config"
	"github.com/leosozza/evowhats/internal/app"
)

func newAuthServer(t *testing.T) *WebServer {
	t.Helper()
	cfg := config.Default()
	cfg.Web.JWTSecret = "jwt-test-secret"
	s := Init(app.NewApplication(cfg))
	ApiGET("/secure", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	ApiPOST("/webhooks/gateway", func(c echo.Context) error {
		return c.String(http.StatusOK, "hook")
	})
	return s
}

func call(s *WebServer, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAdminAPIRequiresToken(t *testing.T) {
	s := newAuthServer(t)

	if rec := call(s, http.MethodGet, "/api/v1/secure", ""); rec.Code != http.StatusUnauthorized && rec.Code != http.StatusBadRequest {
		t.Fatalf("expected rejection without token, got %d", rec.Code)
	}
	if rec := call(s, http.MethodGet, "/api/v1/secure", "garbage"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}

	other, err := IssueToken("another-secret", "admin", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if rec := call(s, http.MethodGet, "/api/v1/secure", other); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign signature, got %d", rec.Code)
	}

	token, err := IssueToken("jwt-test-secret", "admin", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if rec := call(s, http.MethodGet, "/api/v1/secure", token); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", rec.Code)
	}

	expired, err := IssueToken("jwt-test-secret", "admin", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if rec := call(s, http.MethodGet, "/api/v1/secure", expired); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", rec.Code)
	}
}

func TestWebhookSkipsToken(t *testing.T) {
	s := newAuthServer(t)
	if rec := call(s, http.MethodPost, "/api/v1/webhooks/gateway", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected webhook to bypass jwt, got %d", rec.Code)
	}
}

func TestIssueTokenNeedsSecret(t *testing.T) {
	if _, err := IssueToken("", "admin", time.Hour); err == nil {
		t.Fatal("expected error without secret")
	}
}
