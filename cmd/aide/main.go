package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"aide/internal/api"
	"aide/internal/assembler"
	"aide/internal/chunker"
	"aide/internal/config"
	kafkadb "aide/internal/database/kafka"
	"aide/internal/database/milvus"
	"aide/internal/database/mysql"
	redisdb "aide/internal/database/redis"
	"aide/internal/embedding"
	"aide/internal/extract"
	"aide/internal/history"
	"aide/internal/ingest"
	"aide/internal/knowledge"
	"aide/internal/llm"
	"aide/internal/models"
	"aide/internal/orchestrator"
	"aide/internal/tools"
	"aide/internal/usage"
	"aide/pkg/httpclient"
	"aide/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	mainLog := logger.New("aide", "", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// backing stores
	db, err := mysql.Open(&cfg.Databases.MySQL)
	if err != nil {
		mainLog.WithError(err).Fatal("MySQL connection failed")
	}
	defer mysql.Close(db)
	if err := mysql.Migrate(db); err != nil {
		mainLog.WithError(err).Fatal("schema migration failed")
	}

	health := &api.Health{DB: db}

	var index knowledge.VectorIndex
	milvusClient, err := milvus.Connect(ctx, &cfg.Databases.Milvus)
	if err != nil {
		mainLog.WithError(err).Warn("Milvus unavailable, retrieval degrades to keyword search")
	} else {
		health.Vector = milvusClient
		defer milvusClient.Close()
		if err := milvusClient.EnsureCollection(ctx); err != nil {
			mainLog.WithError(err).Warn("Milvus collection setup failed, retrieval degrades to keyword search")
		} else {
			index = knowledge.NewMilvusIndex(milvusClient)
		}
	}
	store := knowledge.NewStore(db, index)

	var hist *history.Store
	redisClient, err := redisdb.Open(&cfg.Databases.Redis)
	if err != nil {
		mainLog.WithError(err).Warn("Redis unavailable, conversations run without history")
	} else {
		defer redisClient.Close()
		health.Cache = redisClient
		hist = history.NewStore(redisClient, cfg.Databases.Redis.HistoryCap)
	}

	var taskQueue *ingest.TaskPublisher
	if len(cfg.Databases.Kafka.Brokers) > 0 {
		queue, err := kafkadb.Open(&cfg.Databases.Kafka)
		if err != nil {
			mainLog.WithError(err).Warn("Kafka unavailable, bulk ingestion endpoint disabled")
		} else {
			defer queue.Close()
			taskQueue = ingest.NewTaskPublisher(queue)
		}
	}

	// embedding and extraction
	var embedder embedding.Embedding
	model, err := embedding.NewModel(ctx, cfg.Embedding)
	if err != nil {
		mainLog.WithError(err).Warn("embedding provider unavailable, vector retrieval disabled")
	} else {
		embedder = embedding.NewBatcher(model, cfg.Embedding.BatchSize, cfg.Embedding.RateLimit)
	}

	var vision *extract.ImageExtractor
	if cfg.Providers.Gateway.APIKey != "" {
		gw := cfg.Providers.Gateway
		vision = extract.NewImageExtractor(gw.APIKey, gw.Model, gw.BaseURL)
	}
	pipeline := ingest.NewPipeline(
		extract.NewRegistry(vision),
		chunker.New(cfg.Chunker.Size, cfg.Chunker.Overlap),
		embedder,
		store,
	)

	// provider and tools
	agent := models.AgentConfig{
		Provider:     models.ProviderKind(cfg.Agent.Provider),
		Model:        cfg.Agent.Model,
		SystemPrompt: cfg.Agent.SystemPrompt,
		Temperature:  cfg.Agent.Temperature,
	}
	provider, err := llm.NewProvider(agent, cfg.Providers)
	if err != nil {
		mainLog.WithError(err).Fatal("completion provider setup failed")
	}

	toolClient := httpclient.New(breakerConfig(cfg))
	var handlers []tools.Handler
	var search orchestrator.Searcher
	if cfg.Tools.Search.BaseURL != "" {
		ws := tools.NewWebSearch(cfg.Tools.Search, toolClient)
		handlers = append(handlers, ws)
		search = ws
	}
	if len(cfg.Tools.Repository.AllowedRepos) > 0 {
		repo, err := tools.NewRepository(cfg.Tools.Repository)
		if err != nil {
			mainLog.WithError(err).Fatal("repository tool setup failed")
		}
		handlers = append(handlers, repo)
	}
	if cfg.Tools.Deployment.BaseURL != "" {
		handlers = append(handlers, tools.NewDeployment(cfg.Tools.Deployment, toolClient))
	}
	registry := tools.NewRegistry(handlers...)
	if cfg.Uncertainty.Enabled && !registry.Has("web_search") {
		mainLog.Warn("uncertainty fallback enabled without the web_search tool")
	}

	ledger := usage.NewLedger(db, cfg.Usage)
	orch := orchestrator.New(registry, search, ledger, cfg.Uncertainty)
	asm := assembler.New(store, embedder, cfg.Retrieval)

	// HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()
	api.RegisterRoutes(router, api.New(agent, provider, orch, asm, pipeline, store, hist, ledger, taskQueue), health)

	srv := &http.Server{Addr: cfg.Server.Address, Handler: router}
	go func() {
		mainLog.WithField("address", srv.Addr).Info("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mainLog.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	mainLog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		mainLog.WithError(err).Error("forced shutdown")
	}
}

func breakerConfig(cfg *config.AppConfig) httpclient.Config {
	cb := cfg.Middleware.CircuitBreaker
	timeout, err := time.ParseDuration(cb.Timeout)
	if err != nil || timeout <= 0 {
		timeout = 30 * time.Second
	}
	return httpclient.Config{
		Enabled:          cb.Enabled,
		FailureThreshold: cb.FailureThreshold,
		SuccessThreshold: cb.SuccessThreshold,
		Timeout:          timeout,
	}
}
