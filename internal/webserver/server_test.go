package webserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/leosozza/evowhats/internal/app"
)

func TestRoutesAreMountedUnderAPIPrefix(t *testing.T) {
	a := app.NewApplication(nil)
	s := Init(a)
	ApiGET("/ping", func(c echo.Context) error {
		if _, ok := c.Get(AppContextKey).(app.AppContext); !ok {
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.String(http.StatusOK, "pong")
	})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 outside prefix, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	s := Init(app.NewApplication(nil))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRecoverMiddleware(t *testing.T) {
	s := Init(app.NewApplication(nil))
	ApiGET("/boom", func(c echo.Context) error {
		panic("boom")
	})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rec.Code)
	}
}

func TestSwaggerDocument(t *testing.T) {
	s := Init(app.NewApplication(nil))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, path := range []string{"/api/v1/openlines/{line}/start", "/api/v1/webhooks/gateway"} {
		if !strings.Contains(body, path) {
			t.Errorf("document is missing %s", path)
		}
	}
}
