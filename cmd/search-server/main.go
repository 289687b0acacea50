// cmd/search-server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"neura-search/internal/ai/embedding"
	"neura-search/internal/ai/llm"
	rerankapi "neura-search/internal/ai/rerank"
	"neura-search/internal/common/config"
	"neura-search/internal/common/database"
	"neura-search/internal/common/logger"
	"neura-search/internal/common/observability"
	"neura-search/internal/pipeline/normalize"
	"neura-search/internal/pipeline/rerank"
	"neura-search/internal/pipeline/retrieve"
	"neura-search/internal/pipeline/understand"
	"neura-search/internal/search"
	"neura-search/internal/server"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting search server...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	if cfg.Logging.Level != "" {
		zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format)
		log = logger.NewZapAdapter(zapLog)
	}

	obs := observability.New("search-server")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		// Test the connection with context
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Model API Clients ---
	llmClient := llm.NewClient(&llm.Config{
		BaseURL:     cfg.APIs.LLM.BaseURL,
		APIKey:      cfg.APIs.LLM.APIKey,
		Model:       cfg.APIs.LLM.Model,
		Temperature: cfg.APIs.LLM.Temperature,
	})

	embedClient := embedding.NewClient(&embedding.Config{
		BaseURL:    cfg.APIs.Embedding.BaseURL,
		APIKey:     cfg.APIs.Embedding.APIKey,
		SmallModel: cfg.APIs.Embedding.SmallModel,
		LargeModel: cfg.APIs.Embedding.LargeModel,
	})

	rerankClient := rerankapi.NewClient(&rerankapi.Config{
		BaseURL: cfg.APIs.Rerank.BaseURL,
		APIKey:  cfg.APIs.Rerank.APIKey,
		Model:   cfg.APIs.Rerank.Model,
	})

	zapLog.Info("Model API clients initialized")

	// --- Assemble Pipeline ---
	parser, err := understand.NewParser(llmClient, log)
	if err != nil {
		zapLog.Fatal("intent schema compilation failed", zap.Error(err))
	}

	dict := normalize.NewDictionary(normalize.DefaultAliases())
	var cache normalize.Cache = normalize.NewMemoryCache()
	if cfg.Search.NormalizeCache == "redis" {
		cache = normalize.NewRedisCache(redis, time.Duration(cfg.Search.NormalizeCacheTTL)*time.Second)
	}
	normalizer := normalize.NewNormalizer(dict, llmClient, cache, cfg.Search.NormalizeLLMThreshold, log)

	gateway := retrieve.NewGateway(pg, log)
	singleStage := retrieve.NewSingleStage(gateway, embedClient, cfg.Search)
	twoStage := retrieve.NewTwoStage(gateway, embedClient, cfg.Search, log)

	reranker := rerank.NewStage(rerankClient, cfg.Search.RerankTopN, log)

	svc := search.NewService(parser, normalizer, singleStage, twoStage, reranker, cfg.Search, cfg.Stages, obs, log)
	srv := server.New(svc, pg, redis, log)

	// --- Start HTTP Server ---
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:        addr,
		Handler:     srv.Routes(),
		ReadTimeout: config.GetDuration(cfg.Server.ReadTimeout),
		// WriteTimeout must cover the longest stream, not a single write
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("Search server listening", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining connections...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down http server", zap.Error(err))
	}

	zapLog.Info("Search server stopped gracefully")
}
