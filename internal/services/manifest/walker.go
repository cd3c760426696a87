package manifest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"market-archive/internal/catalog"
	"market-archive/internal/metrics"

	"go.uber.org/zap"
)

// FileName is the manifest document expected in every day directory.
const FileName = "manifest.xml"

// Failure is one manifest or directory that could not be ingested.
type Failure struct {
	Path string
	Err  error
}

// Report summarises an ingestion run.
type Report struct {
	Ingested int
	Failures []Failure
}

// Walker ingests every manifest below an archive root, one at a time.
type Walker struct {
	parser *Parser
	logger *zap.Logger
}

func NewWalker(store catalog.Store, logger *zap.Logger) *Walker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Walker{
		parser: NewParser(store),
		logger: logger.With(zap.String("service", "manifest-ingest")),
	}
}

// IngestTree walks root in lexical order and parses each manifest it finds.
// A manifest that fails is logged, recorded in the report and skipped. Only an
// unreadable root or a cancelled context stops the walk and is returned.
func (w *Walker) IngestTree(ctx context.Context, root string) (*Report, error) {
	start := time.Now()
	defer func() { metrics.IngestDuration.Observe(time.Since(start).Seconds()) }()

	report := &Report{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			w.fail(report, path, err)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || d.Name() != FileName {
			return nil
		}

		if err := w.parser.ParseManifest(ctx, path); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			w.fail(report, path, err)
			return nil
		}
		report.Ingested++
		metrics.ManifestsIngested.Inc()
		w.logger.Debug("Manifest ingested", zap.String("path", path))
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("ingest %s: %w", root, err)
	}

	w.logger.Info("Archive ingested",
		zap.String("root", root),
		zap.Int("manifests", report.Ingested),
		zap.Int("failures", len(report.Failures)),
		zap.Duration("elapsed", time.Since(start)))
	return report, nil
}

func (w *Walker) fail(report *Report, path string, err error) {
	reason := failureReason(err)
	report.Failures = append(report.Failures, Failure{Path: path, Err: err})
	metrics.ManifestsFailed.WithLabelValues(reason).Inc()
	w.logger.Error("Skipping manifest",
		zap.String("path", path),
		zap.String("reason", reason),
		zap.Error(err))
}

func failureReason(err error) string {
	var (
		malformed *MalformedManifestError
		coercion  *CoercionError
		storage   *catalog.StorageError
	)
	switch {
	case errors.As(err, &malformed):
		return "malformed"
	case errors.As(err, &coercion):
		return "coercion"
	case errors.As(err, &storage):
		return "storage"
	default:
		return "io"
	}
}
