package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sort"

	"drive-qdrant-uploader/internal/config"
	"drive-qdrant-uploader/internal/qdrant"
)

// inspect prints what each configured collection currently holds: point
// counts and a per-document chunk breakdown. Read-only; safe to run while
// an upload is in progress.
func main() {
	detailed := false
	for _, arg := range os.Args[1:] {
		if arg == "--detailed" || arg == "-d" {
			detailed = true
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("configuration invalid: ", err)
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	for i := range cfg.Collections {
		c := &cfg.Collections[i]
		if err := inspectCollection(ctx, c, logger, detailed); err != nil {
			fmt.Printf("collection %s: %v\n", c.Name, err)
		}
	}
}

func inspectCollection(ctx context.Context, c *config.CollectionConfig, logger *slog.Logger, detailed bool) error {
	manager, err := qdrant.NewManager(c, logger)
	if err != nil {
		return err
	}

	total, err := manager.Count(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\nCollection: %s\n", c.Name)
	fmt.Printf("  Qdrant collection: %s\n", c.QdrantCollection)
	fmt.Printf("  Total chunks: %d\n", total)
	if total == 0 {
		fmt.Println("  No documents indexed")
		return nil
	}

	limit := uint32(1000)
	stats, err := manager.DocumentStats(ctx, limit)
	if err != nil {
		return err
	}

	fmt.Printf("  Unique documents: %d\n", len(stats))
	if len(stats) > 0 {
		fmt.Printf("  Average chunks per document: %.1f\n", float64(total)/float64(len(stats)))
	}

	if !detailed {
		return nil
	}

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("  Documents:")
	for _, name := range names {
		s := stats[name]
		fmt.Printf("    %s: %d chunks, %s, %d bytes, modified %s\n",
			name, s.Chunks, s.MimeType, s.Size, s.ModifiedTime)
	}
	return nil
}
