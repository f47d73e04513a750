package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/blavejr/bookmatch/models"
)

// EmbeddingProvider turns text into fixed-length vectors. All vectors from one
// provider share a dimensionality.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// handle embedding generation via Ollama
type OllamaEmbedder struct {
	BaseURL   string
	ModelName string
	Timeout   time.Duration
	Client    *http.Client
}

func NewOllamaEmbedder(baseURL, model string, timeout time.Duration) *OllamaEmbedder {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaEmbedder{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ModelName: model,
		Timeout:   timeout,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

type OllamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type OllamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *OllamaEmbedder) Model() string { return e.ModelName }

// Embed calls POST /api/embeddings. Transport failures and non-2xx statuses
// are ErrProviderUnavailable; a 2xx reply without a vector is ErrProviderProtocol.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := OllamaEmbedRequest{
		Model:  e.ModelName,
		Prompt: text,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/api/embeddings", e.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint %q: %w", models.ErrProviderUnavailable, url, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to call Ollama API: %w", models.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: ollama API error (status %d): %s",
			models.ErrProviderUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var embedResp OllamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", models.ErrProviderProtocol, err)
	}

	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: response has no embedding", models.ErrProviderProtocol)
	}

	return embedResp.Embedding, nil
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedSequential(ctx, e, texts)
}

// TestConnection checks that Ollama answers on /api/tags.
func (e *OllamaEmbedder) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.BaseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrProviderUnavailable, err)
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to connect to Ollama: %w", models.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: ollama API returned status %d", models.ErrProviderUnavailable, resp.StatusCode)
	}

	return nil
}

// SimpleEmbedder is a local hashing embedder for offline development. It
// needs no network and is deterministic.
type SimpleEmbedder struct {
	Dimensions int
}

func NewSimpleEmbedder() *SimpleEmbedder {
	return &SimpleEmbedder{Dimensions: 128}
}

func (s *SimpleEmbedder) Model() string { return "simple" }

func (s *SimpleEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.generate(text), nil
}

func (s *SimpleEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedSequential(ctx, s, texts)
}

// generate creates a lightweight embedding using word frequency
func (s *SimpleEmbedder) generate(text string) []float32 {
	dims := s.Dimensions
	if dims <= 0 {
		dims = 128
	}
	words := strings.Fields(strings.ToLower(text))

	embedding := make([]float32, dims)

	wordCounts := make(map[string]int)
	for _, word := range words {
		word = strings.Trim(word, ".,!?;:\"'()[]{}")
		if len(word) > 0 {
			wordCounts[word]++
		}
	}

	for word, count := range wordCounts {
		hash := 0
		for _, char := range word {
			hash = hash*31 + int(char)
		}
		pos := (hash & 0x7FFFFFFF) % dims
		embedding[pos] += float32(count) / float32(len(words))
	}

	var norm float64
	for _, val := range embedding {
		norm += float64(val) * float64(val)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range embedding {
			embedding[i] /= n
		}
	}

	return embedding
}

// embedSequential embeds texts one at a time, stopping at the first error.
func embedSequential(ctx context.Context, p EmbeddingProvider, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embedding for text %d: %w", i, err)
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}

// NewEmbeddingProvider builds the provider named by kind, wrapped with retry
// and a dimension guard.
func NewEmbeddingProvider(ctx context.Context, kind string, opts ProviderOptions) (EmbeddingProvider, error) {
	var base EmbeddingProvider
	switch kind {
	case "ollama", "":
		ollama := NewOllamaEmbedder(opts.BaseURL, opts.Model, opts.Timeout)
		if err := ollama.TestConnection(ctx); err != nil {
			log.Printf("Warning: Ollama embedder connection test failed: %v", err)
		} else {
			log.Println("Connected to Ollama embeddings")
		}
		base = ollama
	case "gemini":
		g, err := NewGeminiEmbedder(ctx, opts.APIKey, opts.Model, opts.Timeout)
		if err != nil {
			return nil, err
		}
		base = g
	case "simple":
		base = NewSimpleEmbedder()
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", kind)
	}

	return WithDimensionGuard(WithRetry(base, opts.Retry)), nil
}

// ProviderOptions configures NewEmbeddingProvider.
type ProviderOptions struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
	Retry   RetryPolicy
}
