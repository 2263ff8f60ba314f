package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

var wantSecurityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Referrer-Policy":           "no-referrer",
}

func securedServer() *echo.Echo {
	e := echo.New()
	e.Use(SecurityHeaders())
	e.GET("/api/care-plans/:id", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"content": "MOCK CARE PLAN for Jane Doe"})
	})
	e.GET("/api/export", func(c echo.Context) error {
		return c.Blob(http.StatusOK, "text/csv", []byte("orderID\n"))
	})
	e.POST("/api/submit", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusConflict, "Patient with this MRN already exists. Cannot create duplicate patient record.")
	})
	return e
}

// Every response may carry patient data, so none of them may be cached,
// including error bodies and file downloads.
func TestSecurityHeaders_NoStoreOnPatientResponses(t *testing.T) {
	e := securedServer()

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/api/care-plans/abc", http.StatusOK},
		{http.MethodGet, "/api/export", http.StatusOK},
		{http.MethodPost, "/api/submit", http.StatusConflict},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

		if rec.Code != tt.status {
			t.Errorf("%s %s: expected %d, got %d", tt.method, tt.path, tt.status, rec.Code)
		}
		if got := rec.Header().Get("Cache-Control"); got != "no-store" {
			t.Errorf("%s %s: Cache-Control = %q, want no-store", tt.method, tt.path, got)
		}
		for header, want := range wantSecurityHeaders {
			if got := rec.Header().Get(header); got != want {
				t.Errorf("%s %s: header %s = %q, want %q", tt.method, tt.path, header, got, want)
			}
		}
	}
}

func TestSecurityHeaders_UnknownRoute(t *testing.T) {
	e := securedServer()

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("expected no-store on router 404s")
	}
}

func TestSecurityHeaders_PropagatesHandlerError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/care-plans/missing", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "Care plan not found")
	}

	err := SecurityHeaders()(handler)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", httpErr.Code)
	}
}
