package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hivebrain/internal/config"
)

func TestEmptyInputShortCircuitsToZeroVector(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{1, 2, 3}})
	}))
	defer srv.Close()

	engine, err := NewEngine(config.EmbeddingConfig{
		Provider: "ollama",
		Endpoint: srv.URL,
		Model:    "test-model",
		Dimensions: 3,
	}, time.Second)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	vec, err := engine.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("Embed(\"\") failed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("zero vector has dimension %d, want 3", len(vec))
	}
	for i, x := range vec {
		if x != 0 {
			t.Errorf("component %d = %v, want 0", i, x)
		}
	}
	if called {
		t.Error("provider must not be called for empty input")
	}
}

func TestEmbedBatchMixedEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{1, 1}})
	}))
	defer srv.Close()

	engine, err := NewEngine(config.EmbeddingConfig{
		Provider: "ollama", Endpoint: srv.URL, Model: "m", Dimensions: 2,
	}, time.Second)
	if err != nil {
		t.Fatal(err)
	}

	out, err := engine.EmbedBatch(context.Background(), []string{"a", "", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(out))
	}
	if out[1][0] != 0 || out[1][1] != 0 {
		t.Errorf("empty slot should be the zero vector, got %v", out[1])
	}
	if out[0][0] != 1 || out[2][0] != 1 {
		t.Errorf("non-empty slots should come from the provider, got %v, %v", out[0], out[2])
	}
}

func TestOllamaErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, err := NewOllamaEngine(srv.URL, "m", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestNewEngineRejectsUnknownProvider(t *testing.T) {
	_, err := NewEngine(config.EmbeddingConfig{Provider: "cohere"}, time.Second)
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}
