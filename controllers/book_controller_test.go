package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/blavejr/bookmatch/config"
	"github.com/blavejr/bookmatch/models"
	"github.com/blavejr/bookmatch/moderation"
	"github.com/blavejr/bookmatch/services"
	"github.com/blavejr/bookmatch/storage"

	"github.com/gin-gonic/gin"
)

type stubProvider struct {
	vec   []float32
	err   error
	calls int
}

func (s *stubProvider) Model() string { return "stub" }

func (s *stubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]float32(nil), s.vec...), nil
}

func (s *stubProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type stubSpeech struct {
	rate   int
	volume float64
	err    error
}

func (s *stubSpeech) Render(ctx context.Context, text string, rate int, volume float64) ([]byte, error) {
	s.rate, s.volume = rate, volume
	if s.err != nil {
		return nil, s.err
	}
	return []byte("RIFF" + text), nil
}

type fixture struct {
	router   *gin.Engine
	provider *stubProvider
	speech   *stubSpeech
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	books := []models.Book{
		{ID: "1", Title: "Dune", Summary: "Politics on a desert planet."},
		{ID: "2", Title: "Emma", Summary: "A meddling matchmaker."},
	}
	provider := &stubProvider{vec: []float32{1, 0}}
	index := storage.NewMemoryIndex()
	err := index.Upsert(context.Background(),
		[]string{"1", "2"},
		[]string{models.NewDocument(books[0]).Text, models.NewDocument(books[1]).Text},
		[]map[string]string{{models.MetadataTitle: "Dune"}, {models.MetadataTitle: "Emma"}},
		[][]float32{{1, 0}, {0, 3}},
	)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	guarded := services.WithDimensionGuard(provider)
	retrieval := services.NewRetrieval(moderation.New([]string{"darn"}), guarded, index, services.NewSummaryLookup(books))
	speech := &stubSpeech{}
	cfg := &config.Config{TopK: 3}
	bc := NewBookController(cfg, retrieval, speech, index, models.StatsResponse{
		Books:       len(books),
		BannedWords: 1,
		EmbedModel:  "stub",
		VectorStore: "memory",
	})

	router := gin.New()
	bc.Register(router)
	return &fixture{router: router, provider: provider, speech: speech}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestChat(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"match", `{"message":"a desert story"}`, "Best match: Dune\n\nPolitics on a desert planet."},
		{"empty", `{"message":"  "}`, services.EmptyMessageReply},
		{"blocked", `{"message":"Darn it"}`, moderation.RedirectMessage},
		{"malformed", `{"message":`, services.EmptyMessageReply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			w := f.do(http.MethodPost, "/chat", tt.body)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if got := decode[models.ChatResponse](t, w).Reply; got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChat_ProviderDown(t *testing.T) {
	f := newFixture(t)
	f.provider.err = fmt.Errorf("%w: refused", models.ErrProviderUnavailable)

	w := f.do(http.MethodPost, "/chat", `{"message":"desert"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := decode[models.ChatResponse](t, w).Reply; got != services.UnavailableReply {
		t.Errorf("reply = %q", got)
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/search", `{"query":"desert planet","k":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decode[models.SearchResponse](t, w)
	if len(resp.Results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(resp.Results))
	}
	got := resp.Results[0]
	if got.ID != "1" || got.Title != "Dune" || got.Score != 0 || got.SummarySnippet != "Politics on a desert planet." {
		t.Errorf("result = %+v", got)
	}

	w = f.do(http.MethodPost, "/search", `{"query":"desert"}`)
	if resp := decode[models.SearchResponse](t, w); len(resp.Results) != 2 {
		t.Errorf("default k returned %d results, want 2", len(resp.Results))
	}
	if !strings.Contains(w.Body.String(), `"summary_snippet"`) {
		t.Errorf("body %s missing summary_snippet field", w.Body.String())
	}

	w = f.do(http.MethodPost, "/search", `{"query":"desert","k":" 1 "}`)
	if w.Code != http.StatusOK {
		t.Fatalf("string k: status = %d, body %s", w.Code, w.Body.String())
	}
	if resp := decode[models.SearchResponse](t, w); len(resp.Results) != 1 {
		t.Errorf("string k returned %d results, want 1", len(resp.Results))
	}
}

func TestSearch_Errors(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		providerErr error
		wantStatus  int
		wantError   string
	}{
		{name: "missing query", body: `{}`, wantStatus: http.StatusBadRequest, wantError: "query is required"},
		{name: "blank query", body: `{"query":"  "}`, wantStatus: http.StatusBadRequest, wantError: "query is required"},
		{name: "malformed", body: `{"query":`, wantStatus: http.StatusBadRequest, wantError: "Invalid request"},
		{name: "negative k", body: `{"query":"x","k":-2}`, wantStatus: http.StatusBadRequest, wantError: "k must be >= 0"},
		{name: "non-numeric k", body: `{"query":"x","k":"two"}`, wantStatus: http.StatusBadRequest, wantError: "Invalid request"},
		{name: "fractional k", body: `{"query":"x","k":1.5}`, wantStatus: http.StatusBadRequest, wantError: "Invalid request"},
		{
			name:        "unavailable",
			body:        `{"query":"x"}`,
			providerErr: fmt.Errorf("%w: refused", models.ErrProviderUnavailable),
			wantStatus:  http.StatusServiceUnavailable,
		},
		{
			name:        "protocol",
			body:        `{"query":"x"}`,
			providerErr: fmt.Errorf("%w: no embedding", models.ErrProviderProtocol),
			wantStatus:  http.StatusBadGateway,
		},
		{
			name:        "timeout",
			body:        `{"query":"x"}`,
			providerErr: fmt.Errorf("%w: %w", models.ErrProviderUnavailable, context.DeadlineExceeded),
			wantStatus:  http.StatusGatewayTimeout,
		},
		{
			name:        "dimension",
			body:        `{"query":"x"}`,
			providerErr: fmt.Errorf("%w: 3 vs 2", models.ErrDimensionMismatch),
			wantStatus:  http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.provider.err = tt.providerErr

			w := f.do(http.MethodPost, "/search", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			body := decode[map[string]string](t, w)
			if body["error"] == "" {
				t.Errorf("body %s has no error", w.Body.String())
			}
			if tt.wantError != "" && body["error"] != tt.wantError {
				t.Errorf("error = %q, want %q", body["error"], tt.wantError)
			}
		})
	}
}

func TestSearch_Blocked(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/search", `{"query":"DARN books"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[models.BlockedResponse](t, w)
	if !resp.Blocked || resp.Message != moderation.RedirectMessage {
		t.Errorf("response = %+v", resp)
	}
	if f.provider.calls != 0 {
		t.Errorf("provider calls = %d, want 0", f.provider.calls)
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name       string
		title      string
		wantStatus int
		wantTitle  string
		wantError  string
	}{
		{name: "exact", title: "Dune", wantStatus: http.StatusOK, wantTitle: "Dune"},
		{name: "case insensitive", title: "EMMA", wantStatus: http.StatusOK, wantTitle: "Emma"},
		{name: "padded", title: "  Dune ", wantStatus: http.StatusOK, wantTitle: "Dune"},
		{name: "padded case insensitive", title: " emma\t", wantStatus: http.StatusOK, wantTitle: "Emma"},
		{name: "missing", title: "", wantStatus: http.StatusBadRequest, wantError: "title query param is required"},
		{name: "not found", title: "Nonexistent Book", wantStatus: http.StatusNotFound, wantError: "The title «Nonexistent Book» was not found."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			w := f.do(http.MethodGet, "/summary?title="+url.QueryEscape(tt.title), "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantError != "" {
				if got := decode[map[string]string](t, w)["error"]; got != tt.wantError {
					t.Errorf("error = %q, want %q", got, tt.wantError)
				}
				return
			}
			if got := decode[models.SummaryResponse](t, w); got.Title != tt.wantTitle || got.Summary == "" {
				t.Errorf("response = %+v", got)
			}
		})
	}
}

func TestTTS(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/tts", `{"text":"Hello"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Content-Type = %q, want audio/wav", ct)
	}
	if w.Body.String() != "RIFFHello" {
		t.Errorf("body = %q", w.Body.String())
	}
	if f.speech.rate != 175 || f.speech.volume != 1.0 {
		t.Errorf("defaults = %d, %v, want 175, 1.0", f.speech.rate, f.speech.volume)
	}

	f.do(http.MethodPost, "/tts", `{"text":"Hi","rate":120,"volume":0.4}`)
	if f.speech.rate != 120 || f.speech.volume != 0.4 {
		t.Errorf("overrides = %d, %v, want 120, 0.4", f.speech.rate, f.speech.volume)
	}
}

func TestTTS_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid", fmt.Errorf("%w: text is required", models.ErrInvalidArgument), http.StatusBadRequest},
		{"unavailable", fmt.Errorf("%w: espeak-ng not found", models.ErrServiceUnavailable), http.StatusServiceUnavailable},
		{"other", fmt.Errorf("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.speech.err = tt.err
			w := f.do(http.MethodPost, "/tts", `{"text":"x"}`)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestHealthAndStats(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || decode[map[string]string](t, w)["status"] != "healthy" {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}

	w = f.do(http.MethodGet, "/api/stats", "")
	if got := decode[models.StatsResponse](t, w).Dimension; got != 0 {
		t.Errorf("Dimension before any embedding = %d, want 0", got)
	}

	f.do(http.MethodPost, "/search", `{"query":"desert"}`)
	w = f.do(http.MethodGet, "/api/stats", "")
	stats := decode[models.StatsResponse](t, w)
	want := models.StatsResponse{Books: 2, Indexed: 2, BannedWords: 1, EmbedModel: "stub", Dimension: 2, VectorStore: "memory"}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
}
