package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"intent-gateway/internal/common/config"
	"intent-gateway/internal/common/database"
	"intent-gateway/internal/common/httpclient"
	"intent-gateway/internal/common/logger"
	"intent-gateway/internal/common/observability"
	"intent-gateway/internal/domainmodel"
	"intent-gateway/internal/engine"
	"intent-gateway/internal/executor"
	"intent-gateway/internal/extractor"
	"intent-gateway/internal/formatter"
	"intent-gateway/internal/llm"
	"intent-gateway/internal/matcher"
	"intent-gateway/internal/rerank"
	"intent-gateway/internal/server"
	"intent-gateway/internal/template"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)

	log.Info("Starting intent gateway", map[string]interface{}{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	if err := run(cfg, log, obs); err != nil {
		log.Error("Gateway exited with error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run(cfg *config.Config, log logger.Logger, obs *observability.Observability) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Template library and domain knowledge.
	loader := template.NewLoader(log)
	set, report, err := loader.Load(cfg.Engine.TemplateLibraryPaths)
	if err != nil {
		return fmt.Errorf("template library load failed: %w", err)
	}
	log.Info("Template library ready", map[string]interface{}{"report": report.String()})
	store := template.NewStore(set)

	var domain *domainmodel.Model
	if cfg.Engine.DomainConfigPath != "" {
		domain, err = domainmodel.Load(cfg.Engine.DomainConfigPath)
		if err != nil {
			return fmt.Errorf("domain config load failed: %w", err)
		}
	}

	// Model providers.
	embeddingClient := llm.NewClient(cfg.Embedding, log)
	completionClient := llm.NewClient(cfg.Completion, log)

	// Optional redis vector cache.
	var cache *matcher.VectorCache
	if cfg.Cache.Enabled {
		redisClient, err := database.NewRedis(cfg.Cache)
		if err != nil {
			return fmt.Errorf("redis init failed: %w", err)
		}
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx); err != nil {
			log.Warn("Redis unreachable, continuing without vector cache", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			cache = matcher.NewVectorCache(redisClient, time.Duration(cfg.Cache.TTL)*time.Second, log)
		}
		cancel()
	}

	m := matcher.NewMatcher(embeddingClient, store, domain, cache, log)
	if err := m.BuildIndex(ctx); err != nil {
		return fmt.Errorf("template index build failed: %w", err)
	}

	// Datasource drivers. Each is optional; a template kind without its
	// datasource configured fails at query time, not at startup.
	var sqlDriver, httpDriver, esDriver executor.Driver

	if cfg.Datasources.Postgres.Host != "" {
		pg, err := database.NewPostgres(cfg.Datasources.Postgres)
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		defer pg.Close()
		sqlDriver = executor.NewSQLDriver(pg.GetDB())
	}

	if cfg.Datasources.HTTP.BaseURL != "" {
		httpDriver = executor.NewHTTPDriver(
			httpclient.NewClient(time.Duration(cfg.Datasources.HTTP.Timeout)*time.Millisecond),
			cfg.Datasources.HTTP,
		)
	}

	if cfg.Datasources.Elasticsearch.GetURL() != "" {
		es, err := database.NewElasticsearch(cfg.Datasources.Elasticsearch)
		if err != nil {
			return fmt.Errorf("elasticsearch init failed: %w", err)
		}
		esDriver = executor.NewESDriver(es.Client)
	}

	eng := engine.NewEngine(
		store,
		m,
		rerank.NewReranker(domain, rerank.DefaultBoostConfig(), log),
		extractor.NewExtractor(completionClient, log),
		executor.NewExecutor(sqlDriver, httpDriver, esDriver, cfg.Resilience, log),
		formatter.NewFormatter(),
		cfg.Engine,
		obs,
		log,
	)

	reloader := server.NewLibraryReloader(loader, store, m, cfg.Engine.TemplateLibraryPaths)
	srv := server.New(eng, reloader, log)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", map[string]interface{}{"addr": httpServer.Addr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received", nil)
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	log.Info("Gateway stopped", nil)
	return nil
}
