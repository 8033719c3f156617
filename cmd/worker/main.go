package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ragline/ragline/internal/chunker"
	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/ingestworker"
	"github.com/ragline/ragline/internal/remote"
	"github.com/ragline/ragline/internal/store/graph"
	"github.com/ragline/ragline/internal/store/meta"
	"github.com/ragline/ragline/internal/store/queue"
	"github.com/ragline/ragline/internal/store/vector"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("config: load failed")
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if err := chunker.ValidateWindowTokens(cfg.Chunker.WindowTokens, cfg.Chunker.OverlapTokens); err != nil {
		logger.WithError(err).Fatal("config: invalid chunker window")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metaStore, err := meta.Open(cfg.MetaDBPath)
	if err != nil {
		logger.WithError(err).Fatal("meta: open failed")
	}
	defer metaStore.Close()

	q := queue.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.QueueName, cfg.ProgressChannel)
	defer q.Close()

	vectorStore := vector.New(cfg.VectorBaseURL, cfg.VectorCollection, cfg.CallTimeout, logger)

	graphStore, err := graph.New(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass, cfg.GraphEnabled, logger)
	if err != nil {
		logger.WithError(err).Fatal("graph: connect failed")
	}
	defer graphStore.Close(ctx)

	embedder := remote.NewEmbedder(cfg.Embedder, cfg.CallTimeout, cfg.RetryAttempts)
	chat := remote.NewChat(cfg.LLM, cfg.CallTimeout, cfg.RetryAttempts)

	counter, err := chunker.NewTokenCounter()
	if err != nil {
		logger.WithError(err).Fatal("chunker: token counter init failed")
	}

	w, err := ingestworker.New(
		metaStore, vectorStore, graphStore, q, embedder, chat, counter,
		ingestworker.Config{
			WindowTokens:     cfg.Chunker.WindowTokens,
			OverlapTokens:    cfg.Chunker.OverlapTokens,
			VectorCollection: cfg.VectorCollection,
			VectorDimension:  cfg.Embedder.Dimension,
			HybridAlpha:      0.5,
			ProgressSnapshot: cfg.ProgressSnapshotTTL,
			DequeueTimeout:   5 * time.Second,
		},
		cfg.WorkerConcurrency,
		logger,
	)
	if err != nil {
		logger.WithError(err).Fatal("ingestworker: init failed")
	}
	defer w.Release()

	logger.WithField("concurrency", cfg.WorkerConcurrency).Info("worker: starting")
	w.Run(ctx)
	logger.Info("worker: shut down")
}
