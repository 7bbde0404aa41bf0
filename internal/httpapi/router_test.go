package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hiragana-park/kotoba/internal/eventlog"
)

func TestHandleHealthz(t *testing.T) {
	srv := newTestServer(t, RouterConfig{}, false)

	rec := srv.do(http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want ok", rec.Body.String())
	}
}

func TestHandleReadyz(t *testing.T) {
	tests := []struct {
		name       string
		engineUp   bool
		wantStatus int
		wantState  string
	}{
		{"engine up", true, http.StatusOK, "ok"},
		{"engine down", false, http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, RouterConfig{}, tt.engineUp)

			rec := srv.do(http.MethodGet, "/readyz", "", nil)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp map[string]any
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp["status"] != tt.wantState {
				t.Errorf("status field = %v, want %s", resp["status"], tt.wantState)
			}
			if tt.engineUp && resp["engine_version"] != "0.14.7" {
				t.Errorf("engine_version = %v", resp["engine_version"])
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, RouterConfig{}, true)

	rec := srv.do(http.MethodOptions, "/synthesize", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing Access-Control-Allow-Origin")
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := withRequestID(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		seen = eventlog.RequestID(req.Context())
	}))

	tests := []struct {
		name     string
		header   string
		wantKeep bool
	}{
		{"generated", "", false},
		{"client supplied", "lesson-42.a", true},
		{"rejected junk", "bad id\nwith newline", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(requestIDHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			got := rec.Header().Get(requestIDHeader)
			if got != seen {
				t.Errorf("header %q differs from context %q", got, seen)
			}
			if tt.wantKeep {
				if got != tt.header {
					t.Errorf("request ID = %q, want %q", got, tt.header)
				}
				return
			}
			if _, err := uuid.Parse(got); err != nil {
				t.Errorf("generated request ID %q is not a UUID", got)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(1, 2)
	now := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.allow("10.0.0.1") || !rl.allow("10.0.0.1") {
		t.Fatal("burst of 2 should be allowed")
	}
	if rl.allow("10.0.0.1") {
		t.Error("third request in the same instant should be limited")
	}
	if !rl.allow("10.0.0.2") {
		t.Error("other clients have their own bucket")
	}

	now = now.Add(time.Second)
	if !rl.allow("10.0.0.1") {
		t.Error("bucket should refill after a second")
	}

	now = now.Add(10 * time.Minute)
	rl.allow("10.0.0.3")
	rl.mu.Lock()
	n := len(rl.clients)
	rl.mu.Unlock()
	if n != 1 {
		t.Errorf("idle clients should be swept, have %d", n)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	srv := newTestServer(t, RouterConfig{RateLimitRPS: 0.001, RateLimitBurst: 1}, true)

	if rec := srv.do(http.MethodGet, "/speakers", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}
	rec := srv.do(http.MethodGet, "/speakers", "", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", rec.Code)
	}
	if rec := srv.do(http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("healthz should bypass the limiter, got %d", rec.Code)
	}
}
