package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/blavejr/bookmatch/catalog"
)

// Generator wraps the Ollama text generation API.
type Generator struct {
	BaseURL string
	Model   string
	Client  *http.Client
}

func NewGenerator(baseURL, model string) *Generator {
	return &Generator{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client: &http.Client{
			Timeout: 300 * time.Second, // a full catalog is a long completion
		},
	}
}

type OllamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type OllamaGenerateResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
}

// Generate sends prompt and returns the trimmed completion. format may be
// "json" to ask Ollama for a JSON-only answer.
func (g *Generator) Generate(ctx context.Context, prompt, format string) (string, error) {
	reqBody := OllamaGenerateRequest{
		Model:  g.Model,
		Prompt: prompt,
		Stream: false,
		Format: format,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/generate", g.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call Ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var genResp OllamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if genResp.Response == "" {
		return "", fmt.Errorf("received empty response from Ollama")
	}

	return strings.TrimSpace(genResp.Response), nil
}

// CatalogAuthor asks an LLM for a catalog of real books with blurb-style
// summaries.
type CatalogAuthor struct {
	generator *Generator
}

func NewCatalogAuthor(generator *Generator) *CatalogAuthor {
	return &CatalogAuthor{generator: generator}
}

var codeFence = regexp.MustCompile("^```(?:json)?\\s*|\\s*```$")

// Write requests exactly count books and validates the reply as a catalog.
func (a *CatalogAuthor) Write(ctx context.Context, count int) (*catalog.Catalog, error) {
	if count <= 0 {
		return nil, fmt.Errorf("book count must be positive, got %d", count)
	}
	log.Printf("Asking %s for %d book summaries...", a.generator.Model, count)
	startTime := time.Now()

	raw, err := a.generator.Generate(ctx, buildCatalogPrompt(count), "json")
	if err != nil {
		return nil, fmt.Errorf("failed to generate catalog: %w", err)
	}

	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = codeFence.ReplaceAllString(raw, "")
	}

	c, err := catalog.Parse([]byte(raw), catalog.FormatJSON)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON from model: %w", err)
	}
	if c.Len() != count {
		return nil, fmt.Errorf("the JSON does not contain exactly %d books (got %d)", count, c.Len())
	}

	log.Printf("Generated %d books in %v", c.Len(), time.Since(startTime))
	return c, nil
}

func buildCatalogPrompt(count int) string {
	var sb strings.Builder

	sb.WriteString("You are to respond ONLY with valid JSON.\n")
	sb.WriteString("Do not include any text or code fences outside of the JSON.\n\n")
	sb.WriteString(fmt.Sprintf("Return an object with a top-level key \"books\" that contains a list of %d objects.\n", count))
	sb.WriteString("Each object must have:\n")
	sb.WriteString(fmt.Sprintf("- \"id\": a string from \"1\" to \"%d\"\n", count))
	sb.WriteString("- \"title\": the exact title of a book that actually exists in real life (fiction or non-fiction, widely published)\n")
	sb.WriteString("- \"summary\": approximately 300 words that follow ALL the rules below.\n\n")

	sb.WriteString("Rules for \"summary\":\n")
	sb.WriteString("1. The book must be a real, published work. Do NOT invent titles or summaries.\n")
	sb.WriteString("2. Clearly present the setting, main character(s), and the central conflict without revealing major spoilers.\n")
	sb.WriteString("3. Naturally hint at the key themes and tone (e.g., hope, tragedy, mystery, resilience).\n")
	sb.WriteString("4. Conclude with a sentence that invites curiosity or wonder about the story's outcome.\n")
	sb.WriteString("5. Do NOT include the book title anywhere in the summary.\n")
	sb.WriteString("6. Write in an engaging, vivid style that feels like a compelling back-cover blurb.\n")
	sb.WriteString("7. Avoid generic phrasing; make each summary distinct and memorable.\n\n")

	sb.WriteString("Example format (do not reuse the example content):\n")
	sb.WriteString(`{"books": [{"id": "1", "title": "Example of a Real Published Book", "summary": "Engaging ~300 word summary here..."}]}`)
	sb.WriteString("\n")

	return sb.String()
}

func (g *Generator) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama API returned status %d", resp.StatusCode)
	}

	return nil
}
