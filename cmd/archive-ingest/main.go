package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"market-archive/internal/catalog"
	"market-archive/internal/config"
	"market-archive/internal/database"
	"market-archive/internal/logging"
	"market-archive/internal/services/manifest"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var (
	root   = flag.String("root", "", "归档根目录 (默认 ARCHIVE_ROOT)")
	reset  = flag.Bool("reset", false, "导入前清空并重建目录表")
	strict = flag.Bool("strict", false, "有清单被跳过时以非零状态退出")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	cfg := config.Load()
	if *root != "" {
		cfg.ArchiveRoot = *root
	}

	logger, err := logging.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("Ingestion failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Initialize(cfg.DatabaseDriver, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	if *reset {
		if err := database.Reset(db); err != nil {
			return err
		}
		logger.Info("Catalog reset")
	}

	report, err := manifest.NewWalker(catalog.NewStore(db), logger).IngestTree(ctx, cfg.ArchiveRoot)
	if err != nil {
		return err
	}
	for _, f := range report.Failures {
		fmt.Fprintf(os.Stderr, "skipped %s: %v\n", f.Path, f.Err)
	}
	fmt.Printf("ingested %d manifests, skipped %d\n", report.Ingested, len(report.Failures))
	if *strict && len(report.Failures) > 0 {
		return fmt.Errorf("%d manifests skipped", len(report.Failures))
	}
	return nil
}
