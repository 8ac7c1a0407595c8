package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serve(origins []string, method, origin string) *httptest.ResponseRecorder {
	h := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(method, "/api/health", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCORSExplicitOrigin(t *testing.T) {
	w := serve([]string{"https://app.example.com"}, http.MethodGet, "https://app.example.com")

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q", got)
	}
	if w.Code != http.StatusTeapot {
		t.Errorf("expected request to reach handler, got %d", w.Code)
	}
}

func TestCORSWildcardWithoutCredentials(t *testing.T) {
	w := serve([]string{"*"}, http.MethodGet, "https://other.example.com")

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://other.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("wildcard must not allow credentials, got %q", got)
	}
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	w := serve([]string{"https://app.example.com"}, http.MethodGet, "https://evil.example.com")

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no Allow-Origin, got %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	w := serve([]string{"*"}, http.MethodOptions, "https://app.example.com")

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); got == "" {
		t.Error("expected Allow-Headers on preflight")
	}
}
