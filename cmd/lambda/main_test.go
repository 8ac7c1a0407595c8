package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"

	"github.com/voiceos/backend/internal/app"
	"github.com/voiceos/backend/internal/config"
)

func echoRouter() http.Handler {
	r := chi.NewRouter()
	r.Post("/api/echo/{id}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		for _, tag := range r.URL.Query()["tag"] {
			w.Header().Add("X-Tag", tag)
		}
		w.Header().Set("X-User", r.Header.Get("X-VoiceOS-User-ID"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"` + chi.URLParam(r, "id") + `","body":` + string(body) + `}`))
	})
	r.Get("/bin", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte{0xff, 0x00, 0x01})
	})
	return r
}

func TestProxyRoundTrip(t *testing.T) {
	h := newProxyHandler(echoRouter())

	resp, err := h(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/api/echo/42",
		Headers:    map[string]string{"X-VoiceOS-User-ID": "user-1"},
		MultiValueQueryStringParameters: map[string][]string{
			"tag": {"a", "b"},
		},
		Body:            base64.StdEncoding.EncodeToString([]byte(`{"ok":true}`)),
		IsBase64Encoded: true,
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	if resp.IsBase64Encoded {
		t.Error("JSON body should not be base64 encoded")
	}
	if want := `{"id":"42","body":{"ok":true}}`; resp.Body != want {
		t.Errorf("body = %q, want %q", resp.Body, want)
	}
	if got := resp.MultiValueHeaders["X-Tag"]; len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("X-Tag = %v", got)
	}
	if got := resp.MultiValueHeaders["X-User"]; len(got) != 1 || got[0] != "user-1" {
		t.Errorf("X-User = %v", got)
	}
}

func TestProxyBinaryBody(t *testing.T) {
	resp, err := newProxyHandler(echoRouter())(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodGet,
		Path:       "/bin",
	})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !resp.IsBase64Encoded {
		t.Fatal("Expected base64 encoded body")
	}
	if resp.Body != base64.StdEncoding.EncodeToString([]byte{0xff, 0x00, 0x01}) {
		t.Errorf("body = %q", resp.Body)
	}
}

func TestProxyMalformedEvent(t *testing.T) {
	_, err := newProxyHandler(echoRouter())(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:      http.MethodPost,
		Path:            "/api/echo/1",
		Body:            "not base64!",
		IsBase64Encoded: true,
	})
	if err == nil {
		t.Fatal("Expected error for undecodable body")
	}
}

func TestProxySignupThroughApp(t *testing.T) {
	cfg := &config.Config{
		Port:          "0",
		AppEnv:        "development",
		StatsTimezone: "UTC",
		Database:      config.DatabaseConfig{Driver: config.DriverSQLite, Path: filepath.Join(t.TempDir(), "voiceos.db")},
		Voice:         config.VoiceConfig{Timeout: time.Second},
		Session:       config.SessionConfig{Cap: 600 * time.Second},
	}
	a, err := app.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	h := newProxyHandler(a.Router)
	event := events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/api/auth/signup",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       `{"email":"a@x.com","mobile":"555","countryCode":"+1"}`,
	}

	var ids []string
	for i := 0; i < 2; i++ {
		resp, err := h(context.Background(), event)
		if err != nil {
			t.Fatalf("handler: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, resp.Body)
		}
		var body struct {
			User struct {
				ID    string `json:"id"`
				Email string `json:"email"`
			} `json:"user"`
		}
		if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
			t.Fatalf("decode %q: %v", resp.Body, err)
		}
		if body.User.Email != "a@x.com" {
			t.Fatalf("Unexpected user: %+v", body.User)
		}
		ids = append(ids, body.User.ID)
	}
	if ids[0] != ids[1] {
		t.Errorf("Expected repeat signup to return the same user, got %v", ids)
	}

	health, err := h(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: http.MethodGet, Path: "/health"})
	if err != nil || health.StatusCode != http.StatusOK || health.Body != "OK" {
		t.Errorf("health = %d %q %v", health.StatusCode, health.Body, err)
	}
}
