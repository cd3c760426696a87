package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-archive/internal/api"
	"market-archive/internal/catalog"
	"market-archive/internal/config"
	"market-archive/internal/database"
	"market-archive/internal/logging"
	"market-archive/internal/services/manifest"
	"market-archive/internal/services/stream"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	// Initialize configuration
	cfg := config.Load()

	logger, err := logging.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(2)
	}
	if envErr != nil {
		logger.Info("No .env file found")
	}

	err = run(cfg, logger)
	if err != nil {
		logger.Error("Server stopped", zap.Error(err))
	}
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.Initialize(cfg.DatabaseDriver, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.ResetOnStart {
		if err := database.Reset(db); err != nil {
			return fmt.Errorf("failed to reset catalog: %w", err)
		}
		logger.Info("The database is cleaned and ready to go")
	}

	store := catalog.NewStore(db)
	if cfg.IngestOnStart {
		report, err := manifest.NewWalker(store, logger).IngestTree(ctx, cfg.ArchiveRoot)
		if err != nil {
			return fmt.Errorf("failed to ingest archive: %w", err)
		}
		if len(report.Failures) > 0 {
			logger.Warn("Some manifests were skipped", zap.Int("failures", len(report.Failures)))
		}
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), logging.GinMiddleware(logger))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api.SetupRoutes(r, store, stream.NewService(cfg.ArchiveRoot), logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Shutdown")
	return nil
}
