package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Embedding provider
	EmbedProvider   string // "ollama", "gemini" or "simple"
	OllamaURL       string // "http://localhost:11434"
	EmbedModel      string
	OllamaLLMModel  string
	GeminiAPIKey    string
	EmbedTimeout    time.Duration
	EmbedMaxRetries int
	EmbedRetryBase  time.Duration
	IndexWorkers    int

	// Catalog
	CatalogSource   string // "file" or "mongo"
	CatalogPath     string
	BannedWordsPath string

	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	VectorStore string // "memory" or "chromem"
	TopK        int

	// Speech
	TTSBinary        string
	TTSTimeout       time.Duration
	TTSMaxConcurrent int

	Port        string
	Environment string
	StaticDir   string
	TemplateDir string
}

// Load reads configuration from the environment, after applying any .env file
// in the working directory.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not read .env: %v", err)
	}

	provider := getEnv("EMBED_PROVIDER", "ollama")
	defaultModel := "nomic-embed-text"
	if provider == "gemini" {
		defaultModel = "text-embedding-004"
	}

	return &Config{
		EmbedProvider:   provider,
		OllamaURL:       getEnv("OLLAMA_HOST", "http://localhost:11434"),
		EmbedModel:      getEnv("EMBED_MODEL", defaultModel),
		OllamaLLMModel:  getEnv("OLLAMA_LLM_MODEL", "llama3.2:3b"),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		EmbedTimeout:    getEnvDuration("EMBED_TIMEOUT", 15*time.Second),
		EmbedMaxRetries: getEnvInt("EMBED_MAX_RETRIES", 3),
		EmbedRetryBase:  getEnvDuration("EMBED_RETRY_BASE", 200*time.Millisecond),
		IndexWorkers:    getEnvInt("INDEX_WORKERS", 4),

		CatalogSource:   getEnv("CATALOG_SOURCE", "file"),
		CatalogPath:     getEnv("CATALOG_PATH", "books_prompt_result.json"),
		BannedWordsPath: getEnv("BANNED_WORDS_PATH", "bad_words.json"),

		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:   getEnv("MONGO_DATABASE", "bookmatch"),
		MongoCollection: getEnv("MONGO_COLLECTION", "books"),

		VectorStore: getEnv("VECTOR_STORE", "memory"),
		TopK:        getEnvInt("TOP_K", 3),

		TTSBinary:        getEnv("TTS_BINARY", "espeak-ng"),
		TTSTimeout:       getEnvDuration("TTS_TIMEOUT", 30*time.Second),
		TTSMaxConcurrent: getEnvInt("TTS_MAX_CONCURRENT", 2),

		// Application settings
		Port:        getEnv("PORT", "5000"),
		Environment: getEnv("ENVIRONMENT", "development"),
		StaticDir:   getEnv("STATIC_DIR", "static"),
		TemplateDir: getEnv("TEMPLATE_DIR", "templates"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: %s=%q is not an integer, using %d", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvDuration accepts Go duration strings ("15s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("Warning: %s=%q is not a duration, using %v", key, valueStr, defaultValue)
	return defaultValue
}
