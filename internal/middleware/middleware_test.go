package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/darbyjahn/smallphot0-backend/internal/logging"
	"github.com/darbyjahn/smallphot0-backend/internal/metrics"
)

func TestStatusRecorder(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newStatusRecorder(w)

	if rw.status != http.StatusOK {
		t.Errorf("default status = %d, want 200", rw.status)
	}

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.status != http.StatusNotFound {
		t.Errorf("status = %d, want first WriteHeader to win", rw.status)
	}

	n, err := rw.Write([]byte("missing"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 7 || rw.written != 7 {
		t.Errorf("written = %d (n=%d), want 7", rw.written, n)
	}
	if rw.Unwrap() != w {
		t.Error("Unwrap should return the wrapped writer")
	}
}

func TestShouldSkip(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		config LoggingConfig
		skip   bool
	}{
		{"api request", "/api/galleries", DefaultLoggingConfig(), false},
		{"media file", "/galleries/alice/media/1_x.JPG", DefaultLoggingConfig(), true},
		{"static logged when enabled", "/app.js", LoggingConfig{LogStaticFiles: true, SkipExtensions: []string{".js"}}, false},
		{"health logged", "/healthz", LoggingConfig{LogHealthChecks: true}, false},
		{"health skipped", "/healthz", LoggingConfig{}, true},
		{"skip prefix", "/internal/debug", LoggingConfig{SkipPaths: []string{"/internal"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldSkip(tt.path, tt.config); got != tt.skip {
				t.Errorf("shouldSkip(%q) = %v, want %v", tt.path, got, tt.skip)
			}
		})
	}
}

func TestLoggerWritesAccessLine(t *testing.T) {
	var buf bytes.Buffer
	logging.SetOutput(&buf)

	handler := Logger(DefaultLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/upload/alice?x=1", http.NoBody)
	req.Header.Set("User-Agent", "curl test\r\nforged")
	req.Header.Set("X-Forwarded-For", "10.0.0.7, 10.0.0.1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}

	out := buf.String()
	for _, want := range []string{"10.0.0.7 POST /api/upload/alice x=1 201 7", `"curl test  forged"`} {
		if !strings.Contains(out, want) {
			t.Errorf("access line %q missing %q", out, want)
		}
	}
	if strings.Count(strings.TrimSpace(out), "\n") != 0 {
		t.Errorf("expected a single log line, got %q", out)
	}
}

func TestSanitizeLogField(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"a\nb", "a b"},
		{"a\x00b", "ab"},
		{"\x1b[31mred", "[31mred"},
		{"tab\there", "tab\there"},
	}
	for _, tt := range tests {
		if got := sanitizeLogField(tt.in); got != tt.want {
			t.Errorf("sanitizeLogField(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "192.0.2.1:5555"
	if got := clientIP(req); got != "192.0.2.1" {
		t.Errorf("clientIP = %q, want remote addr host", got)
	}

	req.Header.Set("X-Real-IP", "198.51.100.2")
	if got := clientIP(req); got != "198.51.100.2" {
		t.Errorf("clientIP = %q, want X-Real-IP", got)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/api/galleries", "/api/galleries"},
		{"/galleries/alice/media", "/galleries/alice/media"},
		{"/galleries/alice/media/1_x.jpg", "/galleries/alice/media/{path}"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.in); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Metrics(DefaultMetricsConfig()))
	r.HandleFunc("/api/galleries/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodDelete, "/api/galleries/{id}", "204")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"alice", "bob"} {
		req := httptest.NewRequest(http.MethodDelete, "/api/galleries/"+id, http.NoBody)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("route counter increased by %v, want 2", got)
	}
}

func TestMetricsSkipsProbes(t *testing.T) {
	called := false
	handler := Metrics(DefaultMetricsConfig())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "200"))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))
	after := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "200"))

	if !called {
		t.Error("skipped path should still reach the handler")
	}
	if after != before {
		t.Error("skipped path should not be counted")
	}
}
