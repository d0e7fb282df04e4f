package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthzEndpoint(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	var body healthResponse
	if status := getJSON(t, ts.URL+"/healthz", &body); status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	if !body.Initialized {
		t.Error("initialized = false, want true")
	}
}

func TestHealthzBeforeInit(t *testing.T) {
	srv := newTestServerWith(t, testConfig{skipInit: true})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	var body healthResponse
	if status := getJSON(t, ts.URL+"/healthz", &body); status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	if body.Initialized {
		t.Error("initialized = true before init")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	// Make a request to generate metrics.
	http.Get(ts.URL + "/healthz")

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/plain") && !strings.Contains(contentType, "text/openmetrics") {
		t.Errorf("Content-Type = %q, expected prometheus format", contentType)
	}

	bodyBytes, _ := io.ReadAll(resp.Body)
	body := string(bodyBytes)

	for _, name := range []string{
		"avs_http_requests_total",
		"avs_http_request_duration_seconds",
		"avs_calls_total",
		"avs_yields_finished_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
