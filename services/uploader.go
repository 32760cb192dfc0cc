package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"drive-qdrant-uploader/internal/config"
	"drive-qdrant-uploader/models"
)

// Stage names the pipeline step a collection run is in. A run either walks
// the stages in order and ends Verified, or stops at the failing stage.
type Stage string

const (
	StagePending    Stage = "pending"
	StageListing    Stage = "listing"
	StageExtracting Stage = "extracting"
	StageChunking   Stage = "chunking"
	StageEmbedding  Stage = "embedding"
	StageSyncing    Stage = "syncing"
	StageVerified   Stage = "verified"
	StageFailed     Stage = "failed"
)

// FileLister produces candidate file records for a folder.
type FileLister interface {
	ListFolder(ctx context.Context, folderID string) ([]models.FileRecord, error)
	ListRecursive(ctx context.Context, folderID string) ([]models.FileRecord, error)
}

// FileDownloader fetches one file's raw bytes.
type FileDownloader interface {
	Download(ctx context.Context, file models.FileRecord) ([]byte, error)
}

// DocumentExtractor turns file bytes into an extracted document.
type DocumentExtractor interface {
	Extract(ctx context.Context, file models.FileRecord, raw []byte) (*models.Document, error)
}

// Embedder produces one vector per text, always length-aligned.
type Embedder interface {
	EmbedAll(ctx context.Context, texts []string) [][]float32
	Dimension() int
}

// Synchronizer replaces a vector collection's contents.
type Synchronizer interface {
	EnsureCollection(ctx context.Context, vectorSize uint64) error
	Clear(ctx context.Context) error
	UpsertChunks(ctx context.Context, chunks []models.DocumentChunk, vectors [][]float32) (int, error)
	Verify(ctx context.Context, expected int) (bool, error)
}

// RunResult is the per-collection summary logged at the end of a run.
type RunResult struct {
	Collection string
	Stage      Stage
	Files      int
	Documents  int
	Skipped    int
	Chunks     int
	Points     int
	Verified   bool
	Err        error
	Duration   time.Duration
}

// Uploader runs the full pipeline for one collection: list, download,
// extract, chunk, embed, replace-sync, verify. Failures inside a file or a
// chunk are absorbed; failures at a stage boundary end the run with that
// stage recorded. Nothing here is shared across collections.
type Uploader struct {
	cfg       *config.CollectionConfig
	lister    FileLister
	dl        FileDownloader
	extractor DocumentExtractor
	embedder  Embedder
	sync      Synchronizer
	chunker   *Chunker
	log       *slog.Logger
}

func NewUploader(
	cfg *config.CollectionConfig,
	lister FileLister,
	dl FileDownloader,
	extractor DocumentExtractor,
	embedder Embedder,
	sync Synchronizer,
	chunker *Chunker,
	log *slog.Logger,
) *Uploader {
	return &Uploader{
		cfg:       cfg,
		lister:    lister,
		dl:        dl,
		extractor: extractor,
		embedder:  embedder,
		sync:      sync,
		chunker:   chunker,
		log:       log,
	}
}

// Run executes the pipeline and never panics across the collection
// boundary: every failure lands in the result.
func (u *Uploader) Run(ctx context.Context) *RunResult {
	start := time.Now()
	result := &RunResult{Collection: u.cfg.Name, Stage: StagePending}

	fail := func(stage Stage, err error) *RunResult {
		result.Stage = StageFailed
		result.Err = fmt.Errorf("%s: %w", stage, err)
		result.Duration = time.Since(start)
		u.log.Error("collection failed", "stage", string(stage), "error", err)
		return result
	}

	// Listing
	result.Stage = StageListing
	files := u.listFiles(ctx)
	result.Files = len(files)
	if len(files) == 0 {
		return fail(StageListing, errors.New("no files found in any configured folders"))
	}
	u.log.Info("listing complete", "files", len(files), "folders", len(u.cfg.Folders))

	// Extracting
	result.Stage = StageExtracting
	documents := u.extractDocuments(ctx, files, result)
	result.Documents = len(documents)
	if len(documents) == 0 {
		return fail(StageExtracting, errors.New("no documents could be extracted"))
	}
	u.log.Info("extraction complete", "documents", len(documents), "skipped", result.Skipped)

	// Chunking
	result.Stage = StageChunking
	chunks := u.chunkDocuments(documents)
	result.Chunks = len(chunks)
	if len(chunks) == 0 {
		return fail(StageChunking, errors.New("no chunks created from documents"))
	}
	u.log.Info("chunking complete", "chunks", len(chunks))

	// Embedding
	result.Stage = StageEmbedding
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}
	vectors := u.embedder.EmbedAll(ctx, texts)
	u.log.Info("embedding complete", "vectors", len(vectors))

	// Syncing: ensure, clear, then upsert so no stale points survive.
	result.Stage = StageSyncing
	if err := u.sync.EnsureCollection(ctx, uint64(u.embedder.Dimension())); err != nil {
		return fail(StageSyncing, err)
	}
	if err := u.sync.Clear(ctx); err != nil {
		return fail(StageSyncing, err)
	}
	points, err := u.sync.UpsertChunks(ctx, chunks, vectors)
	result.Points = points
	if err != nil {
		return fail(StageSyncing, err)
	}
	u.log.Info("sync complete", "points", points)

	ok, err := u.sync.Verify(ctx, points)
	if err != nil {
		u.log.Warn("verification could not be performed", "error", err)
	}
	result.Verified = ok
	result.Stage = StageVerified
	result.Duration = time.Since(start)
	return result
}

// listFiles gathers records from every configured folder. A folder that
// fails to list is skipped so the remaining folders still contribute, and
// files no extractor supports are filtered out here with a log line.
func (u *Uploader) listFiles(ctx context.Context) []models.FileRecord {
	var all []models.FileRecord
	for _, folderID := range u.cfg.Folders {
		var files []models.FileRecord
		var err error
		if u.cfg.IncludeSubfolders {
			files, err = u.lister.ListRecursive(ctx, folderID)
		} else {
			files, err = u.lister.ListFolder(ctx, folderID)
		}
		if err != nil {
			u.log.Error("error fetching files from folder, skipping", "folder", folderID, "error", err)
			continue
		}
		for _, f := range files {
			if !Supported(f.MimeType) {
				u.log.Warn("skipping unsupported file", "file", f.Name, "mimeType", f.MimeType)
				continue
			}
			all = append(all, f)
		}
		u.log.Info("processed folder", "folder", folderID, "files", len(files))
	}
	return all
}

// extractDocuments downloads and extracts each file. Download or
// extraction failures skip the file and increment the skip counter.
func (u *Uploader) extractDocuments(ctx context.Context, files []models.FileRecord, result *RunResult) []*models.Document {
	var documents []*models.Document
	for _, file := range files {
		u.log.Info("processing file", "file", file.Name, "mimeType", file.MimeType)

		raw, err := u.dl.Download(ctx, file)
		if err != nil {
			u.log.Error("download failed, skipping file", "file", file.Name, "error", err)
			result.Skipped++
			continue
		}
		if len(raw) == 0 {
			u.log.Warn("skipping file with no content", "file", file.Name)
			result.Skipped++
			continue
		}

		doc, err := u.extractor.Extract(ctx, file, raw)
		if err != nil {
			u.log.Error("extraction failed, skipping file", "file", file.Name, "error", err)
			result.Skipped++
			continue
		}
		documents = append(documents, doc)
	}
	return documents
}

// chunkDocuments splits every document and tags chunks with their source
// file and page information.
func (u *Uploader) chunkDocuments(documents []*models.Document) []models.DocumentChunk {
	var all []models.DocumentChunk
	for _, doc := range documents {
		chunks := u.chunker.Split(doc.Text)
		for _, c := range chunks {
			c.PageIndex = 0
			c.TotalPages = doc.TotalPages
			all = append(all, models.DocumentChunk{Chunk: c, File: doc.File})
		}
		u.log.Info("chunked document", "file", doc.File.Name, "chunks", len(chunks))
	}
	return all
}
