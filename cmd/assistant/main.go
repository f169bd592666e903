package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/darkmatter/assistant/compact"
	"github.com/darkmatter/assistant/config"
	"github.com/darkmatter/assistant/mcpmemory"
	"github.com/darkmatter/assistant/ollama"
	"github.com/darkmatter/assistant/retrieval"
	"github.com/darkmatter/assistant/routes"
	"github.com/darkmatter/assistant/sessions"
	"github.com/darkmatter/assistant/stores"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		panic("failed to build logger: " + err.Error())
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	store, err := stores.NewStore(&stores.StoreConfig{Driver: cfg.StoreDriver, DSN: cfg.StoreDSN}, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return err
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	cache := stores.NewWindowedCache(rdb, cfg.CacheWindow, cfg.CacheTTL, logger)

	gateway := ollama.NewClient(ollama.Config{
		BaseURL:           cfg.OllamaURL,
		Timeout:           cfg.OllamaTimeout,
		MaxRetries:        cfg.OllamaMaxRetries,
		RetryDelay:        cfg.OllamaRetryDelay,
		StreamIdleTimeout: cfg.StreamIdleTimeout,
	}, logger)

	memory := mcpmemory.NewClient(cfg.MemoryTimeout, logger)

	assembler := retrieval.NewVectorRetriever(gateway, store, retrieval.VectorConfig{
		Enabled:       cfg.RAGEnabled,
		EmbedModel:    cfg.EmbedModel,
		TopK:          cfg.RAGTopK,
		MinSimilarity: cfg.RAGMinSimilarity,
	}, logger)

	company := sessions.NewCompanyChat(gateway, store, assembler, sessions.CompanyConfig{
		Model:        cfg.CompanyModel,
		SystemPrompt: cfg.CompanyPrompt,
		HistoryLimit: cfg.CompanyHistoryLimit,
		Temperature:  cfg.CompanyTemperature,
		NumCtx:       cfg.CompanyNumCtx,
	}, logger)

	server := sessions.NewServerChat(gateway, cache, memory, memory, sessions.ServerConfig{
		Model:          cfg.ServerModel,
		PromptTemplate: cfg.ServerPrompt,
		HistoryLimit:   cfg.ServerHistoryLimit,
		RetrieveLimit:  cfg.MemoryLimit,
		Temperature:    cfg.ServerTemperature,
		NumCtx:         cfg.ServerNumCtx,
	}, logger)

	if cfg.CompactEnabled {
		compactor := compact.New(store, company, cfg.CompactThreshold, cfg.CompactSchedule, logger)
		if err := compactor.Start(); err != nil {
			return err
		}
		defer compactor.Stop()
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	routes.Register(engine, routes.Deps{
		Company: company,
		Server:  server,
		Models:  gateway,
		Memory:  memory,
		DB:      store,
		Cache:   cache,
		Logger:  logger,
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: engine}

	errs := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errs:
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
