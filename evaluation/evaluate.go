package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blavejr/bookmatch/config"
	"github.com/blavejr/bookmatch/services"
)

// Question is one labelled query: the book a reader describing it would expect.
type Question struct {
	ID         int    `json:"id"`
	Query      string `json:"query"`
	ExpectedID string `json:"expected_id"`
	Notes      string `json:"notes,omitempty"`
}

type EvaluationResult struct {
	QuestionID     int      `json:"question_id"`
	Query          string   `json:"query"`
	ExpectedID     string   `json:"expected_id"`
	RetrievedIDs   []string `json:"retrieved_ids"`
	Rank           int      `json:"rank"` // 1-based, 0 when not retrieved
	ResponseTimeMs int64    `json:"response_time_ms"`
	Blocked        bool     `json:"blocked"`
	Error          string   `json:"error,omitempty"`
}

type Metrics struct {
	TotalQuestions  int            `json:"total_questions"`
	Failed          int            `json:"failed"`
	Blocked         int            `json:"blocked"`
	HitAtK          float64        `json:"hit_at_k"`
	Top1Accuracy    float64        `json:"top1_accuracy"`
	MRR             float64        `json:"mrr"`
	AvgResponseTime float64        `json:"avg_response_time_ms"`
	Timestamp       string         `json:"timestamp"`
	Configuration   map[string]any `json:"configuration"`
}

type EvaluationReport struct {
	Metrics Metrics            `json:"metrics"`
	Results []EvaluationResult `json:"results"`
}

type Evaluator struct {
	config    *config.Config
	retrieval *services.Retrieval
	model     string
}

func NewEvaluator(cfg *config.Config, retrieval *services.Retrieval, model string) *Evaluator {
	return &Evaluator{
		config:    cfg,
		retrieval: retrieval,
		model:     model,
	}
}

func LoadDataset(path string) ([]Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var questions []Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("dataset %s has no questions", path)
	}

	return questions, nil
}

// Evaluate runs every question through search with the given k and scores
// where the expected book landed.
func (e *Evaluator) Evaluate(ctx context.Context, questions []Question, k int) (*EvaluationReport, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	results := make([]EvaluationResult, 0, len(questions))

	var (
		totalResponseTime int64
		hits, top1        int
		reciprocalRanks   float64
		blocked, failed   int
	)

	fmt.Println("Starting evaluation...")
	fmt.Printf("Total questions: %d\n", len(questions))
	fmt.Println("---")

	for i, q := range questions {
		fmt.Printf("[%d/%d] Evaluating: %s\n", i+1, len(questions), q.Query)

		startTime := time.Now()
		outcome, err := e.retrieval.Search(ctx, q.Query, k)
		responseTime := time.Since(startTime).Milliseconds()

		result := EvaluationResult{
			QuestionID:     q.ID,
			Query:          q.Query,
			ExpectedID:     q.ExpectedID,
			RetrievedIDs:   []string{},
			ResponseTimeMs: responseTime,
		}

		switch {
		case err != nil:
			fmt.Printf("Failed: %v\n", err)
			result.Error = err.Error()
			failed++
		case outcome.Blocked:
			fmt.Println("Blocked by moderation")
			result.Blocked = true
			blocked++
		default:
			for _, hit := range outcome.Hits {
				result.RetrievedIDs = append(result.RetrievedIDs, hit.ID)
			}
			result.Rank = rankOf(result.RetrievedIDs, q.ExpectedID)
			if result.Rank > 0 {
				hits++
				reciprocalRanks += 1 / float64(result.Rank)
			}
			if result.Rank == 1 {
				top1++
			}
			fmt.Printf("Completed in %dms (rank: %d)\n", responseTime, result.Rank)
		}

		totalResponseTime += responseTime
		results = append(results, result)
	}

	totalQuestions := len(results)
	metrics := Metrics{
		TotalQuestions:  totalQuestions,
		Failed:          failed,
		Blocked:         blocked,
		HitAtK:          ratio(float64(hits), totalQuestions),
		Top1Accuracy:    ratio(float64(top1), totalQuestions),
		MRR:             ratio(reciprocalRanks, totalQuestions),
		AvgResponseTime: ratio(float64(totalResponseTime), totalQuestions),
		Timestamp:       time.Now().Format(time.RFC3339),
		Configuration: map[string]any{
			"top_k":          k,
			"embed_model":    e.model,
			"embed_provider": e.config.EmbedProvider,
			"vector_store":   e.config.VectorStore,
		},
	}

	return &EvaluationReport{
		Metrics: metrics,
		Results: results,
	}, nil
}

// rankOf returns the 1-based position of id in ids, or 0.
func rankOf(ids []string, id string) int {
	for i, got := range ids {
		if got == id {
			return i + 1
		}
	}
	return 0
}

func ratio(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func SaveReport(report *EvaluationReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

func PrintSummary(report *EvaluationReport) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("EVALUATION SUMMARY")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Total Questions:      %d\n", report.Metrics.TotalQuestions)
	fmt.Printf("Failed:               %d\n", report.Metrics.Failed)
	fmt.Printf("Blocked:              %d\n", report.Metrics.Blocked)
	fmt.Printf("Hit@k:                %.2f%%\n", report.Metrics.HitAtK*100)
	fmt.Printf("Top-1 Accuracy:       %.2f%%\n", report.Metrics.Top1Accuracy*100)
	fmt.Printf("MRR:                  %.3f\n", report.Metrics.MRR)
	fmt.Printf("Avg Response Time:    %.0f ms\n", report.Metrics.AvgResponseTime)
	fmt.Println(strings.Repeat("=", 60))

	fmt.Println("\nConfiguration:")
	for key, value := range report.Metrics.Configuration {
		fmt.Printf("  %s: %v\n", key, value)
	}
	fmt.Println(strings.Repeat("=", 60) + "\n")
}
