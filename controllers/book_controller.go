package controllers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/blavejr/bookmatch/config"
	"github.com/blavejr/bookmatch/models"
	"github.com/blavejr/bookmatch/services"
	"github.com/blavejr/bookmatch/storage"

	"github.com/gin-gonic/gin"
)

type BookController struct {
	config    *config.Config
	retrieval *services.Retrieval
	speech    services.SpeechRenderer
	index     storage.VectorIndex
	info      models.StatsResponse
}

// NewBookController wires the HTTP handlers. info carries the static part of
// the /api/stats response; the indexed count is read live.
func NewBookController(cfg *config.Config, retrieval *services.Retrieval, speech services.SpeechRenderer,
	index storage.VectorIndex, info models.StatsResponse) *BookController {
	return &BookController{
		config:    cfg,
		retrieval: retrieval,
		speech:    speech,
		index:     index,
		info:      info,
	}
}

// Register mounts every route on r.
func (bc *BookController) Register(r gin.IRoutes) {
	r.GET("/health", bc.Health)
	r.POST("/chat", bc.Chat)
	r.POST("/search", bc.Search)
	r.GET("/summary", bc.Summary)
	r.POST("/tts", bc.TTS)
	r.GET("/api/stats", bc.Stats)
}

func (bc *BookController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "bookmatch",
	})
}

// Chat never fails. A body that does not parse is treated as an empty message.
func (bc *BookController) Chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("Chat request not parsed, treating as empty: %v", err)
	}

	startTime := time.Now()
	reply := bc.retrieval.Chat(c.Request.Context(), req.Message)
	log.Printf("Chat answered in %v", time.Since(startTime))

	c.JSON(http.StatusOK, models.ChatResponse{Reply: reply})
}

func (bc *BookController) Search(c *gin.Context) {
	startTime := time.Now()

	var req models.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	k := bc.config.TopK
	if k <= 0 {
		k = services.DefaultTopK
	}
	if req.K != nil {
		k = int(*req.K)
	}

	log.Printf("Search: '%s' (top-k: %d)", req.Query, k)

	outcome, err := bc.retrieval.Search(c.Request.Context(), req.Query, k)
	if err != nil {
		respondError(c, "Search", err)
		return
	}

	if outcome.Blocked {
		c.JSON(http.StatusOK, models.BlockedResponse{Blocked: true, Message: outcome.Message})
		return
	}

	results := make([]models.SearchResult, len(outcome.Hits))
	for i, hit := range outcome.Hits {
		results[i] = models.SearchResult{
			ID:             hit.ID,
			Title:          hit.Title,
			Score:          hit.Distance,
			SummarySnippet: hit.Snippet,
		}
	}

	log.Printf("Search returned %d results in %v", len(results), time.Since(startTime))
	c.JSON(http.StatusOK, models.SearchResponse{Results: results})
}

func (bc *BookController) Summary(c *gin.Context) {
	title := strings.TrimSpace(c.Query("title"))
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title query param is required"})
		return
	}

	canonical, summary, err := bc.retrieval.Summary(title)
	if err != nil {
		respondError(c, "Summary", err)
		return
	}

	c.JSON(http.StatusOK, models.SummaryResponse{Title: canonical, Summary: summary})
}

func (bc *BookController) TTS(c *gin.Context) {
	var req models.TTSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	rate := services.DefaultSpeechRate
	if req.Rate != nil {
		rate = *req.Rate
	}
	volume := services.DefaultSpeechVolume
	if req.Volume != nil {
		volume = *req.Volume
	}

	audio, err := bc.speech.Render(c.Request.Context(), req.Text, rate, volume)
	if err != nil {
		respondError(c, "TTS", err)
		return
	}

	c.Data(http.StatusOK, "audio/wav", audio)
}

func (bc *BookController) Stats(c *gin.Context) {
	stats := bc.info
	stats.Indexed = bc.index.Count()
	stats.Dimension = bc.retrieval.Dimension()
	c.JSON(http.StatusOK, stats)
}

// respondError maps the error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, op string, err error) {
	status, message := http.StatusInternalServerError, "Internal error"

	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		status = http.StatusBadRequest
		message = strings.TrimPrefix(err.Error(), models.ErrInvalidArgument.Error()+": ")
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
		var nf *models.NotFoundError
		if errors.As(err, &nf) {
			message = nf.Error()
		} else {
			message = "Not found"
		}
	case errors.Is(err, context.DeadlineExceeded):
		status, message = http.StatusGatewayTimeout, "Upstream service timed out"
	case errors.Is(err, models.ErrProviderUnavailable):
		status, message = http.StatusServiceUnavailable, "Embedding service unavailable"
	case errors.Is(err, models.ErrServiceUnavailable):
		status, message = http.StatusServiceUnavailable, "Speech service unavailable"
	case errors.Is(err, models.ErrProviderProtocol):
		status, message = http.StatusBadGateway, "Embedding service returned an invalid response"
	case errors.Is(err, models.ErrDimensionMismatch):
		message = "Embedding dimension mismatch"
	case errors.Is(err, context.Canceled):
		status, message = http.StatusServiceUnavailable, "Request cancelled"
	}

	if status >= http.StatusInternalServerError {
		log.Printf("%s failed: %v", op, err)
	}
	c.JSON(status, gin.H{"error": message})
}
