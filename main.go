package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/blavejr/bookmatch/catalog"
	"github.com/blavejr/bookmatch/config"
	"github.com/blavejr/bookmatch/controllers"
	"github.com/blavejr/bookmatch/evaluation"
	"github.com/blavejr/bookmatch/models"
	"github.com/blavejr/bookmatch/moderation"
	"github.com/blavejr/bookmatch/services"
	"github.com/blavejr/bookmatch/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		runServer()
	case "evaluate":
		// usage: bookmatch evaluate [-dataset path] [-k n] [-out path]
		runEvaluation(args)
	case "seed":
		// usage: bookmatch seed [catalog file]
		runSeed(args)
	case "generate-catalog":
		// usage: bookmatch generate-catalog [-n 10] [-out books_prompt_result.json]
		runGenerateCatalog(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want serve, evaluate, seed or generate-catalog)\n", cmd)
		os.Exit(2)
	}
}

// engine is everything a request needs, assembled once at startup.
type engine struct {
	catalog   *catalog.Catalog
	gate      *moderation.Gate
	provider  services.EmbeddingProvider
	index     storage.VectorIndex
	retrieval *services.Retrieval
	banned    int
}

func (e *engine) Close() {
	if c, ok := e.provider.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			log.Printf("Warning: closing embedding provider: %v", err)
		}
	}
}

// buildEngine loads the catalog and banned words, then embeds the whole
// catalog. Nothing is served until it returns.
func buildEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	cat, err := loadCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Printf("Loaded catalog with %d books", cat.Len())

	words, err := catalog.LoadBannedWords(cfg.BannedWordsPath)
	if err != nil {
		return nil, err
	}
	gate := moderation.New(words)
	log.Printf("Loaded %d banned words", gate.Len())

	provider, err := services.NewEmbeddingProvider(ctx, cfg.EmbedProvider, services.ProviderOptions{
		BaseURL: cfg.OllamaURL,
		Model:   cfg.EmbedModel,
		APIKey:  cfg.GeminiAPIKey,
		Timeout: cfg.EmbedTimeout,
		Retry: services.RetryPolicy{
			MaxRetries: cfg.EmbedMaxRetries,
			BaseDelay:  cfg.EmbedRetryBase,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}

	index, err := newVectorIndex(cfg.VectorStore)
	if err != nil {
		return nil, err
	}

	if err := services.NewIndexer(provider, index, cfg.IndexWorkers).Build(ctx, cat.Documents()); err != nil {
		return nil, fmt.Errorf("failed to build index: %w", err)
	}

	lookup := services.NewSummaryLookup(cat.Books())
	return &engine{
		catalog:   cat,
		gate:      gate,
		provider:  provider,
		index:     index,
		retrieval: services.NewRetrieval(gate, provider, index, lookup),
		banned:    gate.Len(),
	}, nil
}

func loadCatalog(ctx context.Context, cfg *config.Config) (*catalog.Catalog, error) {
	switch cfg.CatalogSource {
	case "file", "":
		return catalog.LoadFile(cfg.CatalogPath)
	case "mongo":
		store, err := storage.NewMongoStore(cfg)
		if err != nil {
			return nil, &models.CatalogLoadError{Source: cfg.MongoURI, Err: err}
		}
		defer store.Close()

		books, err := store.LoadBooks(ctx)
		if err != nil {
			return nil, &models.CatalogLoadError{Source: cfg.MongoCollection, Err: err}
		}
		cat, err := catalog.New(books)
		if err != nil {
			var loadErr *models.CatalogLoadError
			if errors.As(err, &loadErr) {
				loadErr.Source = cfg.MongoDatabase + "/" + cfg.MongoCollection
			}
			return nil, err
		}
		return cat, nil
	default:
		return nil, fmt.Errorf("unknown catalog source: %s", cfg.CatalogSource)
	}
}

func newVectorIndex(kind string) (storage.VectorIndex, error) {
	switch kind {
	case "memory", "":
		return storage.NewMemoryIndex(), nil
	case "chromem":
		idx, err := storage.NewChromemIndex("books")
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", kind)
	}
}

func runServer() {
	cfg := config.Load()

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	eng, err := buildEngine(startCtx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}
	defer eng.Close()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	speech := services.NewESpeakRenderer(cfg.TTSBinary, cfg.TTSTimeout, cfg.TTSMaxConcurrent)
	bookController := controllers.NewBookController(cfg, eng.retrieval, speech, eng.index, models.StatsResponse{
		Books:       eng.catalog.Len(),
		BannedWords: eng.banned,
		EmbedModel:  eng.provider.Model(),
		VectorStore: cfg.VectorStore,
	})
	router := newRouter(cfg, bookController)

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	log.Printf("Book search server starting on %s", addr)
	log.Printf("Embeddings: %s (%s)", cfg.EmbedProvider, eng.provider.Model())
	log.Printf("Vector store: %s (%d entries)", cfg.VectorStore, eng.index.Count())
	log.Printf("Environment: %s", cfg.Environment)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}

// newRouter builds the gin engine with CORS open to every origin, the API
// routes and the optional chat page.
func newRouter(cfg *config.Config, bookController *controllers.BookController) *gin.Engine {
	router := gin.Default()
	router.Use(cors.Default())
	bookController.Register(router)
	mountUI(router, cfg)
	return router
}

// mountUI serves the chat page and its assets when they are present.
func mountUI(router *gin.Engine, cfg *config.Config) {
	if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
		router.Static("/static", cfg.StaticDir)
	}
	page := filepath.Join(cfg.TemplateDir, "chat.html")
	if _, err := os.Stat(page); err == nil {
		router.LoadHTMLFiles(page)
		router.GET("/", func(c *gin.Context) {
			c.HTML(http.StatusOK, "chat.html", nil)
		})
	}
}

func runEvaluation(args []string) {
	fs := flag.NewFlagSet("evaluate", flag.ExitOnError)
	datasetPath := fs.String("dataset", "evaluation/dataset.json", "labelled query dataset")
	k := fs.Int("k", 0, "results per query (default TOP_K)")
	outputFile := fs.String("out", "evaluation/results/baseline.json", "report output path")
	_ = fs.Parse(args)

	log.Println("Starting evaluation mode...")
	cfg := config.Load()
	if *k <= 0 {
		*k = cfg.TopK
	}

	questions, err := evaluation.LoadDataset(*datasetPath)
	if err != nil {
		log.Fatalf("Failed to load dataset: %v", err)
	}
	log.Printf("Loaded %d questions from %s", len(questions), *datasetPath)

	ctx := context.Background()
	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}
	defer eng.Close()

	evaluator := evaluation.NewEvaluator(cfg, eng.retrieval, eng.provider.Model())
	report, err := evaluator.Evaluate(ctx, questions, *k)
	if err != nil {
		log.Fatalf("Evaluation failed: %v", err)
	}

	evaluation.PrintSummary(report)

	if err := evaluation.SaveReport(report, *outputFile); err != nil {
		log.Fatalf("Failed to save report: %v", err)
	}
	log.Printf("Evaluation complete! Results saved to %s", *outputFile)
}

func runSeed(args []string) {
	cfg := config.Load()
	path := cfg.CatalogPath
	if len(args) > 0 {
		path = args[0]
	}

	cat, err := catalog.LoadFile(path)
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}

	store, err := storage.NewMongoStore(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := store.ReplaceBooks(ctx, cat.Books()); err != nil {
		log.Fatalf("Failed to seed books: %v", err)
	}

	count, err := store.CountBooks(ctx)
	if err != nil {
		log.Fatalf("Failed to count books: %v", err)
	}
	log.Printf("Seeded %s/%s from %s (%d books)", cfg.MongoDatabase, cfg.MongoCollection, path, count)
}

func runGenerateCatalog(args []string) {
	cfg := config.Load()

	fs := flag.NewFlagSet("generate-catalog", flag.ExitOnError)
	count := fs.Int("n", 10, "number of books")
	outputFile := fs.String("out", cfg.CatalogPath, "catalog output path (.json or .yaml)")
	_ = fs.Parse(args)

	generator := services.NewGenerator(cfg.OllamaURL, cfg.OllamaLLMModel)
	ctx := context.Background()
	if err := generator.TestConnection(ctx); err != nil {
		log.Fatalf("Ollama LLM is not reachable: %v", err)
	}

	cat, err := services.NewCatalogAuthor(generator).Write(ctx, *count)
	if err != nil {
		log.Fatalf("Failed to generate catalog: %v", err)
	}
	if err := cat.WriteFile(*outputFile); err != nil {
		log.Fatalf("Failed to save catalog: %v", err)
	}
	log.Printf("Structured book list saved to %s (%d books)", *outputFile, cat.Len())
}
