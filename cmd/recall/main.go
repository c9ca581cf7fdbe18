package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nidhogg/recall/internal/api"
	"github.com/nidhogg/recall/internal/config"
	"github.com/nidhogg/recall/internal/embedding"
	"github.com/nidhogg/recall/internal/engine"
	"github.com/nidhogg/recall/internal/memory"
	"github.com/nidhogg/recall/internal/retrieval"
	"github.com/nidhogg/recall/internal/store"
	"github.com/nidhogg/recall/internal/summarize"
	"github.com/nidhogg/recall/internal/vectorstore"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting recall...")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/recall.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Embedding provider
	var embedder embedding.Provider
	switch cfg.Embedding.Provider {
	case "local":
		embedder = embedding.NewLocalProvider(cfg.Embedding)
	default:
		embedder = embedding.NewAPIProvider(cfg.Embedding)
	}

	// Vector store
	qdrant, err := vectorstore.NewClient(cfg.Database.Qdrant)
	if err != nil {
		logger.Fatal("qdrant unavailable", zap.Error(err))
	}
	defer qdrant.Close()

	bootCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := qdrant.EnsureCollection(bootCtx, cfg.Database.Collection, uint64(cfg.Embedding.Dimension)); err != nil {
		logger.Fatal("ensure collection failed", zap.Error(err))
	}

	// Session store
	var sessions memory.Store
	var closeSessions func()
	switch cfg.Database.SessionStore {
	case "postgres":
		pg, pgErr := store.NewPostgres(bootCtx, cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Fatal("postgres unavailable", zap.Error(pgErr))
		}
		dir := cfg.Database.Postgres.MigrationsDir
		if dir == "" {
			dir = "migrations"
		}
		if mErr := pg.Migrate(bootCtx, dir); mErr != nil {
			logger.Fatal("migration failed", zap.Error(mErr))
		}
		sessions = pg
		closeSessions = pg.Close
	case "redis":
		rd, rdErr := store.NewRedis(bootCtx, cfg.Database.Redis.URL, logger)
		if rdErr != nil {
			logger.Fatal("redis unavailable", zap.Error(rdErr))
		}
		sessions = rd
		closeSessions = func() { _ = rd.Close() }
	default:
		logger.Warn("using in-memory session store, conversations will not survive restarts")
		sessions = memory.NewMemStore()
	}

	// Retrieval and ingestion over one collection
	searcher := retrieval.NewCollectionSearcher(qdrant, cfg.Database.Collection)
	ranker := retrieval.NewRanker(embedder, searcher, cfg.Retrieval.Options(), logger)
	writer := engine.NewCollectionWriter(qdrant, cfg.Database.Collection)
	eng := engine.New(embedder, writer, ranker, logger)

	// Consolidation runs only when a summarizer endpoint is configured
	var summarizer memory.Summarizer
	if cfg.Summarizer.Endpoint != "" {
		summarizer = summarize.NewChatSummarizer(cfg.Summarizer, logger)
	} else {
		logger.Warn("no summarizer configured, consolidation disabled")
	}

	eng.AttachMemory(memory.NewSystem(sessions, eng, eng, summarizer, cfg.Memory, logger))

	// Start server
	handler := api.NewHandler(eng, logger)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("recall listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down recall...")
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	srv.Shutdown(shutCtx)
	if closeSessions != nil {
		closeSessions()
	}
}
