// Package config loads service configuration from the environment, with
// an optional .env file for local development. Every knob has a default
// suitable for a single-node deployment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultCompanyPrompt = "You are the company assistant. Answer questions using the provided " +
		"company knowledge, cite sources when they are available, and say so when you don't know."
	defaultServerPrompt = "You are a helpful assistant for the %s server. Answer using the " +
		"server's memory and context when it is relevant."
)

// Config holds every runtime setting of the service.
type Config struct {
	ListenAddr string
	Env        string

	OllamaURL         string
	OllamaTimeout     time.Duration
	OllamaMaxRetries  int
	OllamaRetryDelay  time.Duration
	StreamIdleTimeout time.Duration

	StoreDriver string
	StoreDSN    string
	RedisURL    string

	CompanyModel        string
	CompanyPrompt       string
	CompanyHistoryLimit int
	CompanyTemperature  float64
	CompanyNumCtx       int

	ServerModel        string
	ServerPrompt       string
	ServerHistoryLimit int
	ServerTemperature  float64
	ServerNumCtx       int
	MemoryLimit        int
	MemoryTimeout      time.Duration

	RAGEnabled       bool
	EmbedModel       string
	RAGTopK          int
	RAGMinSimilarity float64

	CacheWindow int
	CacheTTL    time.Duration

	CompactEnabled   bool
	CompactSchedule  string
	CompactThreshold int
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present; real environment
// variables win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr: getString("LISTEN_ADDR", ":8080"),
		Env:        getString("APP_ENV", "development"),

		OllamaURL:         getString("OLLAMA_URL", "http://localhost:11434"),
		OllamaTimeout:     getDuration("OLLAMA_TIMEOUT", 60*time.Second),
		OllamaMaxRetries:  getInt("OLLAMA_MAX_RETRIES", 2),
		OllamaRetryDelay:  getDuration("OLLAMA_RETRY_DELAY", time.Second),
		StreamIdleTimeout: getDuration("OLLAMA_STREAM_IDLE_TIMEOUT", 120*time.Second),

		StoreDriver: getString("STORE_DRIVER", "postgres"),
		StoreDSN:    getString("DATABASE_DSN", "host=localhost user=assistant password=assistant dbname=assistant port=5432 sslmode=disable"),
		RedisURL:    getString("REDIS_URL", "redis://localhost:6379/0"),

		CompanyModel:        getString("COMPANY_MODEL", "llama3.2:3b"),
		CompanyPrompt:       getString("COMPANY_SYSTEM_PROMPT", defaultCompanyPrompt),
		CompanyHistoryLimit: getInt("COMPANY_HISTORY_LIMIT", 10),
		CompanyTemperature:  getFloat("COMPANY_TEMPERATURE", 0.4),
		CompanyNumCtx:       getInt("COMPANY_NUM_CTX", 1024),

		ServerModel:        getString("MCP_MODEL", "phi3:mini"),
		ServerPrompt:       getString("MCP_SYSTEM_PROMPT", defaultServerPrompt),
		ServerHistoryLimit: getInt("MCP_HISTORY_LIMIT", 8),
		ServerTemperature:  getFloat("MCP_TEMPERATURE", 0.2),
		ServerNumCtx:       getInt("MCP_NUM_CTX", 768),
		MemoryLimit:        getInt("MCP_MEMORY_LIMIT", 5),
		MemoryTimeout:      getDuration("MCP_MEMORY_TIMEOUT", 15*time.Second),

		RAGEnabled:       getBool("RAG_ENABLED", true),
		EmbedModel:       getString("EMBED_MODEL", "nomic-embed-text:latest"),
		RAGTopK:          getInt("RAG_TOP_K", 5),
		RAGMinSimilarity: getFloat("RAG_MIN_SIMILARITY", 0.7),

		CacheWindow: getInt("CACHE_WINDOW", 8),
		CacheTTL:    getDuration("CACHE_TTL", time.Hour),

		CompactEnabled:   getBool("COMPACT_ENABLED", true),
		CompactSchedule:  getString("COMPACT_SCHEDULE", "0 3 * * *"),
		CompactThreshold: getInt("COMPACT_THRESHOLD", 40),
	}

	if cfg.StoreDriver != "postgres" && cfg.StoreDriver != "sqlite" {
		return nil, fmt.Errorf("invalid STORE_DRIVER %q (want postgres or sqlite)", cfg.StoreDriver)
	}
	if cfg.RAGMinSimilarity < 0 || cfg.RAGMinSimilarity > 1 {
		return nil, fmt.Errorf("RAG_MIN_SIMILARITY must be in [0,1], got %v", cfg.RAGMinSimilarity)
	}
	return cfg, nil
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getDuration accepts Go duration strings ("90s", "2m") and bare
// second counts.
func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
