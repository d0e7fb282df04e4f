package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/h4shk4t/validAI-Contract/internal/backend"
)

func TestInferSendsGenerateRequest(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "42", Model: got.Model})
	}))
	defer srv.Close()

	b := New(Config{URL: srv.URL + "/", Seed: 7}, srv.Client())
	var logs []string
	res, err := b.Infer(context.Background(), backend.InferenceRequest{
		ModelName: "llama3.2",
		Prompt:    "What is 6*7?",
		LogWriter: func(line string) { logs = append(logs, line) },
	})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if res.Answer != "42" || res.Model != "llama3.2" {
		t.Errorf("result = %+v", res)
	}
	if got.Model != "llama3.2" || got.Prompt != "What is 6*7?" || got.Stream {
		t.Errorf("request = %+v", got)
	}
	if seed, _ := got.Options["seed"].(float64); seed != 7 {
		t.Errorf("seed option = %v, want 7", got.Options["seed"])
	}
	if len(logs) != 1 {
		t.Errorf("log lines = %v", logs)
	}
}

func TestInferErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model 'nope' not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	b := New(Config{URL: srv.URL}, srv.Client())
	_, err := b.Infer(context.Background(), backend.InferenceRequest{ModelName: "nope"})
	if err == nil || !strings.Contains(err.Error(), "status 404") {
		t.Errorf("error = %v, want status 404", err)
	}
}

func TestInferRespectsDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	b := New(Config{URL: srv.URL}, srv.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := b.Infer(ctx, backend.InferenceRequest{ModelName: "slow"}); err == nil {
		t.Error("expected deadline error")
	}
}

func TestInferWaitsForSlot(t *testing.T) {
	b := New(Config{URL: "http://127.0.0.1:0", MaxConcurrent: 1}, nil)
	b.sem <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := b.Infer(ctx, backend.InferenceRequest{}); err != context.DeadlineExceeded {
		t.Errorf("error = %v, want DeadlineExceeded", err)
	}
}

func TestModelExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"llama3.2:latest"},{"name":"mistral:7b"}]}`))
	}))
	defer srv.Close()

	b := New(Config{URL: srv.URL}, srv.Client())
	tests := []struct {
		model string
		want  bool
	}{
		{"llama3.2", true},
		{"llama3.2:latest", true},
		{"mistral:7b", true},
		{"mistral", false},
	}
	for _, tt := range tests {
		got, err := b.ModelExists(context.Background(), tt.model)
		if err != nil {
			t.Fatalf("ModelExists(%q): %v", tt.model, err)
		}
		if got != tt.want {
			t.Errorf("ModelExists(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestCapabilities(t *testing.T) {
	b := New(Config{Models: []string{"llama3.2"}}, nil)
	c := b.Capabilities()
	if c.Name != "ollama" || c.MaxConcurrency != defaultMaxConcurrent {
		t.Errorf("capabilities = %+v", c)
	}
	if !c.Supports("llama3.2") || c.Supports("mistral") {
		t.Error("Supports does not follow configured models")
	}
}
