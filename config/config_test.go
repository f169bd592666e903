package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.CompanyModel != "llama3.2:3b" {
		t.Errorf("CompanyModel = %q", cfg.CompanyModel)
	}
	if cfg.ServerModel != "phi3:mini" {
		t.Errorf("ServerModel = %q", cfg.ServerModel)
	}
	if cfg.EmbedModel != "nomic-embed-text:latest" {
		t.Errorf("EmbedModel = %q", cfg.EmbedModel)
	}
	if cfg.RAGTopK != 5 || cfg.RAGMinSimilarity != 0.7 {
		t.Errorf("RAG defaults = %d %v", cfg.RAGTopK, cfg.RAGMinSimilarity)
	}
	if cfg.CompanyHistoryLimit != 10 || cfg.ServerHistoryLimit != 8 {
		t.Errorf("history limits = %d %d", cfg.CompanyHistoryLimit, cfg.ServerHistoryLimit)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("CacheTTL = %v", cfg.CacheTTL)
	}
	if cfg.StoreDriver != "postgres" {
		t.Errorf("StoreDriver = %q", cfg.StoreDriver)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("COMPANY_MODEL", "mistral:7b")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("RAG_ENABLED", "false")
	t.Setenv("CACHE_TTL", "30m")
	t.Setenv("OLLAMA_TIMEOUT", "90")
	t.Setenv("COMPANY_TEMPERATURE", "0.9")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.CompanyModel != "mistral:7b" {
		t.Errorf("CompanyModel = %q", cfg.CompanyModel)
	}
	if cfg.StoreDriver != "sqlite" {
		t.Errorf("StoreDriver = %q", cfg.StoreDriver)
	}
	if cfg.RAGEnabled {
		t.Error("RAGEnabled = true, want false")
	}
	if cfg.CacheTTL != 30*time.Minute {
		t.Errorf("CacheTTL = %v", cfg.CacheTTL)
	}
	// Bare integers are read as seconds.
	if cfg.OllamaTimeout != 90*time.Second {
		t.Errorf("OllamaTimeout = %v", cfg.OllamaTimeout)
	}
	if cfg.CompanyTemperature != 0.9 {
		t.Errorf("CompanyTemperature = %v", cfg.CompanyTemperature)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("STORE_DRIVER", "oracle")
	if _, err := Load(); err == nil {
		t.Error("expected error for unknown store driver")
	}

	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("RAG_MIN_SIMILARITY", "1.5")
	if _, err := Load(); err == nil {
		t.Error("expected error for out-of-range similarity")
	}
}
