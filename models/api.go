package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Request and response shapes for the HTTP layer. Field names are part of
// the public contract.

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

type SearchRequest struct {
	Query string `json:"query"`
	K     *Count `json:"k,omitempty"`
}

// Count is a non-fractional JSON number that may also arrive as a numeric
// string, e.g. "k": "2".
type Count int

func (c *Count) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("invalid count %q: %w", s, err)
		}
		*c = Count(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = Count(n)
	return nil
}

type SearchResult struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Score          float64 `json:"score"`
	SummarySnippet string  `json:"summary_snippet"`
}

type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

type BlockedResponse struct {
	Blocked bool   `json:"blocked"`
	Message string `json:"message"`
}

type SummaryResponse struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

type TTSRequest struct {
	Text   string   `json:"text"`
	Rate   *int     `json:"rate,omitempty"`
	Volume *float64 `json:"volume,omitempty"`
}

type StatsResponse struct {
	Books       int    `json:"books"`
	Indexed     int    `json:"indexed"`
	BannedWords int    `json:"banned_words"`
	EmbedModel  string `json:"embed_model"`
	Dimension   int    `json:"dimension"`
	VectorStore string `json:"vector_store"`
}
