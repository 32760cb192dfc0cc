package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"drive-qdrant-uploader/internal/ai"
	"drive-qdrant-uploader/internal/config"
	"drive-qdrant-uploader/internal/drive"
	"drive-qdrant-uploader/internal/logger"
	"drive-qdrant-uploader/internal/qdrant"
	"drive-qdrant-uploader/services"

	"github.com/go-co-op/gocron"
)

const logFile = "uploader.log"

func main() {
	if err := logger.Init(logFile, os.Getenv("DEBUG") == "true"); err != nil {
		log.Fatal("failed to initialize logging:", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	// Optional CLI arg restricts the run to one collection, matched by
	// config name or target Qdrant collection.
	var target string
	if len(os.Args) > 1 {
		target = os.Args[1]
		logger.Info("single collection requested", "target", target)
	}

	collections, err := selectCollections(cfg, target)
	if err != nil {
		logger.Error("collection selection failed", "error", err)
		os.Exit(1)
	}

	if cfg.RunSchedule != "" {
		runScheduled(cfg, collections)
		return
	}

	failed := runAll(context.Background(), cfg, collections)
	if failed > 0 {
		os.Exit(1)
	}
}

// runScheduled keeps the process alive and fires the full run on the
// configured cron cadence until interrupted.
func runScheduled(cfg *config.MultiConfig, collections []config.CollectionConfig) {
	scheduler := gocron.NewScheduler(time.UTC)
	_, err := scheduler.Cron(cfg.RunSchedule).Do(func() {
		runAll(context.Background(), cfg, collections)
	})
	if err != nil {
		logger.Error("invalid RUN_SCHEDULE cron expression", "schedule", cfg.RunSchedule, "error", err)
		os.Exit(1)
	}

	logger.Info("running on schedule", "cron", cfg.RunSchedule)
	scheduler.StartAsync()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down scheduler")
	scheduler.Stop()
}

func selectCollections(cfg *config.MultiConfig, target string) ([]config.CollectionConfig, error) {
	if target == "" {
		return cfg.Collections, nil
	}
	for _, c := range cfg.Collections {
		if c.Name == target || c.QdrantCollection == target {
			return []config.CollectionConfig{c}, nil
		}
	}
	available := make([]string, 0, len(cfg.Collections))
	for _, c := range cfg.Collections {
		available = append(available, fmt.Sprintf("%s (%s)", c.Name, c.QdrantCollection))
	}
	return nil, fmt.Errorf("collection %q not found, available: %v", target, available)
}

// runAll processes every collection sequentially. A collection failure is
// recorded and the loop moves on; the return value is the failure count.
func runAll(ctx context.Context, cfg *config.MultiConfig, collections []config.CollectionConfig) int {
	start := time.Now()
	logger.Info("multi-collection upload started", "collections", len(collections))

	driveHandler, err := drive.NewHandler(ctx, cfg.DriveCredentialsPath, logger.Logger)
	if err != nil {
		logger.Error("google drive authentication failed", "error", err)
		return len(collections)
	}

	results := make([]*services.RunResult, 0, len(collections))
	failed := 0
	for i := range collections {
		result := runCollection(ctx, &collections[i], driveHandler)
		results = append(results, result)
		if result.Err != nil {
			failed++
		}
	}

	logger.Info("multi-collection upload summary",
		"collections", len(collections),
		"successful", len(collections)-failed,
		"failed", failed,
		"duration", time.Since(start).Round(time.Second).String(),
	)
	for _, r := range results {
		if r.Err != nil {
			logger.Error("collection result",
				"collection", r.Collection, "stage", string(r.Stage), "error", r.Err)
			continue
		}
		logger.Info("collection result",
			"collection", r.Collection,
			"files", r.Files,
			"documents", r.Documents,
			"skipped", r.Skipped,
			"chunks", r.Chunks,
			"points", r.Points,
			"verified", r.Verified,
			"duration", r.Duration.Round(time.Second).String(),
		)
	}
	return failed
}

// runCollection wires the collection-scoped components and runs the
// pipeline. Setup errors count as that collection's failure, not a crash.
func runCollection(ctx context.Context, c *config.CollectionConfig, driveHandler *drive.Handler) *services.RunResult {
	log := logger.ForCollection(c.Name)
	log.Info("processing collection", "folders", len(c.Folders), "target", c.QdrantCollection)

	chunker, err := services.NewChunker(c.ChunkSize, c.ChunkOverlap)
	if err != nil {
		return failedResult(c.Name, err)
	}

	embedder, err := ai.NewEmbeddingClient(ctx, c, log)
	if err != nil {
		return failedResult(c.Name, err)
	}

	manager, err := qdrant.NewManager(c, log)
	if err != nil {
		return failedResult(c.Name, err)
	}

	var ocr *services.OCRClient
	if c.EnableOCR && c.OCRServiceURL != "" {
		ocr = services.NewOCRClient(c.OCRServiceURL, c.OCRLanguage)
	}
	var vision services.VisionDescriber
	if c.EnableImageAnalysis && c.OpenAIAPIKey != "" {
		vision = ai.NewVisionClient(c.OpenAIAPIKey, c.ImageAnalysisModel, c.ImageDescriptionPrompt)
	}
	extractor := services.NewContentExtractor(c, ocr, vision, log)

	uploader := services.NewUploader(c, driveHandler, driveHandler, extractor, embedder, manager, chunker, log)
	return uploader.Run(ctx)
}

func failedResult(collection string, err error) *services.RunResult {
	logger.ForCollection(collection).Error("collection setup failed", "error", err)
	return &services.RunResult{
		Collection: collection,
		Stage:      services.StageFailed,
		Err:        err,
	}
}
