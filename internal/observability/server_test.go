package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func startServer(t *testing.T, server *Server) {
	t.Helper()
	if _, err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec,noctx // test URL
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestServer_Metrics(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	startServer(t, server)

	server.Metrics().ObserveRequest("POST", "/api/auth/login", 200, 15*time.Millisecond)
	server.Metrics().ObserveRequest("GET", "", 404, time.Millisecond)

	status, body := get(t, "http://"+server.Addr()+"/metrics")
	if status != http.StatusOK {
		t.Fatalf("expected status 200, got %d", status)
	}
	for _, want := range []string{
		"# HELP",
		"go_",
		"process_",
		`holoauth_http_requests_total{method="POST",route="/api/auth/login",status="200"} 1`,
		`route="unmatched"`,
		"holoauth_http_request_duration_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("GET", "/", 200, time.Millisecond)
}

func TestServer_LivenessReturns200(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	startServer(t, server)

	status, body := get(t, "http://"+server.Addr()+"/healthz/liveness")
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
	if strings.TrimSpace(body) != "ok" {
		t.Errorf("expected body 'ok', got %q", body)
	}
}

func TestServer_Readiness(t *testing.T) {
	var dbErr error
	server := NewServer("127.0.0.1:0", nil)
	server.AddReadinessCheck("postgres", func(context.Context) error { return dbErr })
	server.AddReadinessCheck("redis", func(context.Context) error { return nil })
	startServer(t, server)

	url := "http://" + server.Addr() + "/healthz/readiness"

	status, body := get(t, url)
	if status != http.StatusOK || strings.TrimSpace(body) != "ok" {
		t.Errorf("expected 200 ok, got %d %q", status, body)
	}

	dbErr = errors.New("connection refused")
	status, body = get(t, url)
	if status != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", status)
	}
	if !strings.Contains(body, "postgres") {
		t.Errorf("expected failing check name in body, got %q", body)
	}
}

func TestServer_StartTwice(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	startServer(t, server)

	if _, err := server.Start(); err == nil {
		t.Error("expected error starting a running server")
	}
}

func TestServer_StopWhenNotRunning(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	if err := server.Stop(context.Background()); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if server.Addr() != "" {
		t.Errorf("expected empty addr, got %q", server.Addr())
	}
}
