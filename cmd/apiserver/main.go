package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/httpapi"
	"github.com/ragline/ragline/internal/progress"
	"github.com/ragline/ragline/internal/remote"
	"github.com/ragline/ragline/internal/retrieval"
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

	ctx := context.Background()

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
	reranker := remote.NewReranker(cfg.Reranker, cfg.CallTimeout, cfg.RetryAttempts)

	engine := retrieval.New(vectorStore, graphStore, embedder, reranker, 0.5, logger)
	broadcaster := progress.New(q, logger)

	health := httpapi.NewHealthChecker(5 * time.Second)
	health.Register("redis", q.Ping)
	health.Register("neo4j", func(ctx context.Context) error {
		if !graphStore.Enabled() {
			return nil
		}
		_, err := graphStore.TopEntities(ctx, "", "", 1)
		return err
	})
	health.Register("vector", func(ctx context.Context) error {
		return vectorStore.EnsureCollection(ctx, cfg.VectorCollection, cfg.Embedder.Dimension)
	})

	server := &httpapi.Server{
		Config:    cfg,
		Meta:      metaStore,
		Queue:     q,
		Graph:     graphStore,
		Retrieval: engine,
		Broadcast: broadcaster,
		Health:    health,
		Logger:    logger,
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE streams are long-lived; no write deadline
		IdleTimeout:  60 * time.Second,
	}

	logger.WithField("addr", cfg.ListenAddr).Info("apiserver: listening")
	if err := httpServer.ListenAndServe(); err != nil {
		logger.WithError(err).Fatal("apiserver: exited")
		os.Exit(1)
	}
}
