package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/rohmanhakim/webarchiver/internal/archiver"
	"github.com/rohmanhakim/webarchiver/internal/assets"
	"github.com/rohmanhakim/webarchiver/internal/config"
	"github.com/rohmanhakim/webarchiver/internal/extractor"
	"github.com/rohmanhakim/webarchiver/internal/fetcher"
	"github.com/rohmanhakim/webarchiver/internal/metadata"
	"github.com/rohmanhakim/webarchiver/internal/optimizer"
	"github.com/rohmanhakim/webarchiver/internal/rewriter"
	"github.com/rohmanhakim/webarchiver/internal/robots"
	"github.com/rohmanhakim/webarchiver/internal/robots/cache"
	"github.com/rohmanhakim/webarchiver/internal/runlog"
	"github.com/rohmanhakim/webarchiver/internal/scheduler"
	"github.com/rohmanhakim/webarchiver/internal/server"
	"github.com/rohmanhakim/webarchiver/internal/storage"
	"github.com/rohmanhakim/webarchiver/internal/store"
	"github.com/rohmanhakim/webarchiver/pkg/fileutil"
	"github.com/rohmanhakim/webarchiver/pkg/limiter"
	"github.com/rohmanhakim/webarchiver/pkg/timeutil"
)

// runCrawl executes one full run: crawl into a fresh run directory,
// persist history when a database is configured, then optimize and
// archive unless --no-archive.
func runCrawl(cmd *cobra.Command) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	runID := timeutil.RunID(time.Now())
	runDir := filepath.Join(cfg.OutputDir(), runID)
	if dirErr := fileutil.EnsureDir(cfg.OutputDir(), runID); dirErr != nil {
		return fmt.Errorf("creating run directory %s: %s", runDir, dirErr.Error())
	}

	logger, closeLog, err := runlog.NewCrawlLogger(runlog.FileName)
	if err != nil {
		return err
	}
	defer closeLog()

	// SIGINT stops admission; the crawl drains and the manifest still
	// lands for the work completed.
	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	recorder := metadata.NewRecorder(cfg.StartURL(), cfg.MaxPages(), cfg.PagesPerDomain())
	runStore := storage.NewRunStore(runDir, recorder)
	client := fetcher.NewClient(recorder)
	rateLimiter := limiter.NewConcurrentRateLimiter()
	rateLimiter.SetBaseDelay(cfg.RequestDelay())
	sem := semaphore.NewWeighted(int64(cfg.MaxWorkers()))
	resolver := assets.NewResolver(recorder, client, runStore, rateLimiter, sem, logger, cfg.SkipAssets())
	htmlRewriter := rewriter.NewRewriter(recorder, resolver, logger)
	linkExtractor := extractor.NewLinkExtractor(recorder)

	var oracle scheduler.RobotsOracle
	if cfg.RespectRobots() {
		oracle = robots.NewOracle(
			robots.NewRobotsFetcher(robots.DefaultAgent, cache.NewMemoryCache()),
			recorder,
			logger,
		)
	}

	controller := scheduler.NewController(
		scheduler.CrawlParams{
			StartURL:       cfg.StartURL(),
			RunID:          runID,
			MaxWorkers:     cfg.MaxWorkers(),
			MaxDepth:       cfg.MaxDepth(),
			MaxPages:       cfg.MaxPages(),
			PagesPerDomain: cfg.PagesPerDomain(),
			RespectRobots:  cfg.RespectRobots(),
		},
		recorder, oracle, client, linkExtractor, htmlRewriter, resolver,
		runStore, rateLimiter, sem, logger,
	)

	manifest, crawlErr := controller.Run(ctx)

	if cfg.DatabaseURL() != "" {
		persistHistory(ctx, cfg, manifest, crawlErr == nil, logger)
	}

	if crawlErr != nil {
		return fmt.Errorf("crawl failed: %s", crawlErr.Error())
	}

	if noArchive {
		logger.Info("run complete, archiving skipped", zap.String("run_dir", runDir))
		return nil
	}

	if _, err := optimizer.NewOptimizer(logger).Optimize(runDir); err != nil {
		return fmt.Errorf("optimizing run directory: %w", err)
	}
	packer := archiver.NewArchiver(cfg.ArchiveDir(), archiver.FormatZstd, cfg.CompressionLevel(), logger)
	report, err := packer.Archive(runDir)
	if err != nil {
		return fmt.Errorf("archiving run directory: %w", err)
	}

	logger.Info("run complete",
		zap.String("run_dir", runDir),
		zap.String("archive", report.ArchivePath),
		zap.Float64("compression_ratio", report.CompressionRatio),
	)
	return nil
}

// persistHistory mirrors the finished run into Postgres. Failures are
// logged; run history never fails a crawl that already has a manifest.
func persistHistory(ctx context.Context, cfg config.Config, manifest metadata.RunManifest, succeeded bool, logger *zap.Logger) {
	// The crawl context may already be cancelled (SIGINT); history
	// still deserves a bounded attempt.
	dbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	history, err := store.Open(dbCtx, cfg.DatabaseURL(), logger)
	if err != nil {
		logger.Warn("run store unavailable", zap.Error(err))
		return
	}
	defer history.Close()

	runID, err := history.CreateRun(dbCtx, manifest.StartURL)
	if err != nil {
		logger.Warn("run row insert failed", zap.Error(err))
		return
	}
	if err := history.InsertPages(dbCtx, runID, manifest.Pages); err != nil {
		logger.Warn("page rows insert failed", zap.Error(err))
	}

	status := store.StatusCompleted
	if !succeeded {
		status = store.StatusFailed
	}
	if err := history.UpdateRun(dbCtx, runID, manifest.Stats, manifest.DomainCounts, status); err != nil {
		logger.Warn("run row update failed", zap.Error(err))
		return
	}
	logger.Info("run history persisted", zap.Int64("run_id", runID))
}

func runOptimize(runDir string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	report, err := optimizer.NewOptimizer(logger).Optimize(runDir)
	if err != nil {
		return err
	}
	fmt.Printf("Optimized %d files, saved %d bytes\n", report.TotalFiles, report.TotalSaved)
	return nil
}

func runArchive(cmd *cobra.Command, runDir string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	format := archiver.FormatZstd
	if value, flagErr := cmd.Flags().GetString("format"); flagErr == nil && value == "gzip" {
		format = archiver.FormatGzip
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	packer := archiver.NewArchiver(cfg.ArchiveDir(), format, cfg.CompressionLevel(), logger)
	report, err := packer.Archive(runDir)
	if err != nil {
		return err
	}
	fmt.Printf("Archive: %s (%d -> %d bytes, ratio %.3f)\n",
		report.ArchivePath, report.OriginalSize, report.CompressedSize, report.CompressionRatio)
	return nil
}

func runServe(cmd *cobra.Command) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	var history *store.Store
	if cfg.DatabaseURL() != "" {
		history, err = store.Open(ctx, cfg.DatabaseURL(), logger)
		if err != nil {
			logger.Warn("run store unavailable, serving from filesystem only", zap.Error(err))
			history = nil
		} else {
			defer history.Close()
		}
	}

	return server.NewServer(cfg, history, logger).ListenAndServe(ctx)
}

func secondsFlag(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
