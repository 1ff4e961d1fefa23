package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aide/internal/chunker"
	"aide/internal/config"
	"aide/internal/database/kafka"
	"aide/internal/database/milvus"
	"aide/internal/database/minio"
	"aide/internal/database/mongo"
	"aide/internal/database/mysql"
	"aide/internal/embedding"
	"aide/internal/extract"
	"aide/internal/ingest"
	"aide/internal/knowledge"
	"aide/pkg/logger"
)

// repairInterval paces the embedding repair sweep between task batches.
const repairInterval = 5 * time.Minute

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	logger.Init(logger.ParseLevel(cfg.Logger.Level))
	mainLog := logger.New("ingest-worker", "", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := mysql.Open(&cfg.Databases.MySQL)
	if err != nil {
		mainLog.WithError(err).Fatal("MySQL connection failed")
	}
	defer mysql.Close(db)
	if err := mysql.Migrate(db); err != nil {
		mainLog.WithError(err).Fatal("schema migration failed")
	}

	var index knowledge.VectorIndex
	milvusClient, err := milvus.Connect(ctx, &cfg.Databases.Milvus)
	if err != nil {
		mainLog.WithError(err).Warn("Milvus unavailable, chunks will wait for repair")
	} else {
		defer milvusClient.Close()
		if err := milvusClient.EnsureCollection(ctx); err == nil {
			index = knowledge.NewMilvusIndex(milvusClient)
		} else {
			mainLog.WithError(err).Warn("Milvus collection setup failed")
		}
	}
	store := knowledge.NewStore(db, index)

	model, err := embedding.NewModel(ctx, cfg.Embedding)
	if err != nil {
		mainLog.WithError(err).Fatal("embedding provider setup failed")
	}
	embedder := embedding.NewBatcher(model, cfg.Embedding.BatchSize, cfg.Embedding.RateLimit)

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

	objects, err := minio.Open(ctx, &cfg.Databases.MinIO)
	if err != nil {
		mainLog.WithError(err).Fatal("MinIO connection failed")
	}

	mongoClient, err := mongo.Open(ctx, &cfg.Databases.Mongo)
	if err != nil {
		mainLog.WithError(err).Fatal("MongoDB connection failed")
	}
	defer mongo.Close(context.Background(), mongoClient)
	reports := ingest.NewReportStore(mongoClient, cfg.Databases.Mongo.Database, cfg.Databases.Mongo.Collection)

	queue, err := kafka.Open(&cfg.Databases.Kafka)
	if err != nil {
		mainLog.WithError(err).Fatal("Kafka connection failed")
	}
	defer queue.Close()

	worker := ingest.NewWorker(queue, objects, pipeline, reports)

	// periodic sweep for chunks stranded without an embedding
	go func() {
		ticker := time.NewTicker(repairInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := store.RepairEmbeddings(ctx, embedder, cfg.Embedding.BatchSize)
				if err != nil {
					mainLog.WithError(err).Warn("embedding repair sweep failed")
				} else if n > 0 {
					mainLog.WithField("repaired", n).Info("embedding repair sweep completed")
				}
			}
		}
	}()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		mainLog.Info("shutting down")
		cancel()
	}()

	mainLog.Info("consuming ingestion tasks")
	if err := worker.Run(ctx); err != nil {
		mainLog.WithError(err).Fatal("worker stopped")
	}
}
