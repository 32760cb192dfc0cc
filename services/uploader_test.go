package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"drive-qdrant-uploader/internal/config"
	"drive-qdrant-uploader/models"
)

type fakeLister struct {
	files     map[string][]models.FileRecord
	recursive map[string][]models.FileRecord
	err       error
}

func (f *fakeLister) ListFolder(ctx context.Context, folderID string) ([]models.FileRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.files[folderID], nil
}

func (f *fakeLister) ListRecursive(ctx context.Context, folderID string) ([]models.FileRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.recursive[folderID], nil
}

type fakeDownloader struct {
	data map[string][]byte
	errs map[string]error
}

func (f *fakeDownloader) Download(ctx context.Context, file models.FileRecord) ([]byte, error) {
	if err := f.errs[file.ID]; err != nil {
		return nil, err
	}
	return f.data[file.ID], nil
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(ctx context.Context, file models.FileRecord, raw []byte) (*models.Document, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, fmt.Errorf("%w: %s produced no text", ErrExtractionFailed, file.Name)
	}
	return &models.Document{File: file, Text: text, TotalPages: 1}, nil
}

type fakeEmbedder struct {
	dim   int
	calls int
}

func (f *fakeEmbedder) EmbedAll(ctx context.Context, texts []string) [][]float32 {
	f.calls++
	vectors := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		v[0] = 1
		vectors[i] = v
	}
	return vectors
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

type fakeSync struct {
	ops        []string
	vectorSize uint64
	upserted   int

	ensureErr error
	clearErr  error
	upsertErr error
	verifyOK  bool
	verifyErr error
}

func (f *fakeSync) EnsureCollection(ctx context.Context, vectorSize uint64) error {
	f.ops = append(f.ops, "ensure")
	f.vectorSize = vectorSize
	return f.ensureErr
}

func (f *fakeSync) Clear(ctx context.Context) error {
	f.ops = append(f.ops, "clear")
	return f.clearErr
}

func (f *fakeSync) UpsertChunks(ctx context.Context, chunks []models.DocumentChunk, vectors [][]float32) (int, error) {
	f.ops = append(f.ops, "upsert")
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	if len(chunks) != len(vectors) {
		return 0, fmt.Errorf("chunk/vector mismatch: %d vs %d", len(chunks), len(vectors))
	}
	f.upserted = len(chunks)
	return len(chunks), nil
}

func (f *fakeSync) Verify(ctx context.Context, expected int) (bool, error) {
	f.ops = append(f.ops, "verify")
	return f.verifyOK, f.verifyErr
}

func testUploader(lister FileLister, dl FileDownloader, sync *fakeSync) (*Uploader, *fakeEmbedder) {
	cfg := &config.CollectionConfig{
		Name:    "test",
		Folders: []string{"folder1"},
	}
	chunker, _ := NewChunker(1000, 200)
	embedder := &fakeEmbedder{dim: 8}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewUploader(cfg, lister, dl, fakeExtractor{}, embedder, sync, chunker, log), embedder
}

func txtFile(id, name string) models.FileRecord {
	return models.FileRecord{ID: id, Name: name, MimeType: "text/plain"}
}

func TestUploaderRunSuccess(t *testing.T) {
	lister := &fakeLister{files: map[string][]models.FileRecord{
		"folder1": {txtFile("f1", "a.txt"), txtFile("f2", "b.txt")},
	}}
	dl := &fakeDownloader{data: map[string][]byte{
		"f1": []byte("content of file one"),
		"f2": []byte("content of file two"),
	}}
	sync := &fakeSync{verifyOK: true}
	up, embedder := testUploader(lister, dl, sync)

	result := up.Run(context.Background())

	if result.Stage != StageVerified {
		t.Fatalf("expected stage verified, got %s (err %v)", result.Stage, result.Err)
	}
	if result.Files != 2 || result.Documents != 2 {
		t.Errorf("files=%d documents=%d, want 2/2", result.Files, result.Documents)
	}
	if result.Chunks != 2 || result.Points != 2 {
		t.Errorf("chunks=%d points=%d, want 2/2", result.Chunks, result.Points)
	}
	if !result.Verified {
		t.Error("expected verified result")
	}
	if embedder.calls != 1 {
		t.Errorf("embedder called %d times, want 1", embedder.calls)
	}
	if sync.vectorSize != 8 {
		t.Errorf("collection ensured with size %d, want 8", sync.vectorSize)
	}
}

func TestUploaderSyncOrdering(t *testing.T) {
	lister := &fakeLister{files: map[string][]models.FileRecord{
		"folder1": {txtFile("f1", "a.txt")},
	}}
	dl := &fakeDownloader{data: map[string][]byte{"f1": []byte("text")}}
	sync := &fakeSync{verifyOK: true}
	up, _ := testUploader(lister, dl, sync)

	up.Run(context.Background())

	want := []string{"ensure", "clear", "upsert", "verify"}
	if len(sync.ops) != len(want) {
		t.Fatalf("ops = %v, want %v", sync.ops, want)
	}
	for i := range want {
		if sync.ops[i] != want[i] {
			t.Fatalf("ops = %v, want %v", sync.ops, want)
		}
	}
}

func TestUploaderNoFiles(t *testing.T) {
	lister := &fakeLister{files: map[string][]models.FileRecord{}}
	sync := &fakeSync{}
	up, _ := testUploader(lister, &fakeDownloader{}, sync)

	result := up.Run(context.Background())

	if result.Stage != StageFailed {
		t.Fatalf("expected failed stage, got %s", result.Stage)
	}
	if result.Err == nil || !strings.Contains(result.Err.Error(), string(StageListing)) {
		t.Errorf("error should name the listing stage, got %v", result.Err)
	}
	if len(sync.ops) != 0 {
		t.Errorf("sync should not be touched on listing failure, got ops %v", sync.ops)
	}
}

func TestUploaderListingErrorSkipsFolder(t *testing.T) {
	lister := &fakeLister{err: errors.New("permission denied")}
	sync := &fakeSync{}
	up, _ := testUploader(lister, &fakeDownloader{}, sync)

	result := up.Run(context.Background())

	if result.Stage != StageFailed {
		t.Fatalf("expected failed stage, got %s", result.Stage)
	}
}

func TestUploaderFiltersUnsupportedFiles(t *testing.T) {
	lister := &fakeLister{files: map[string][]models.FileRecord{
		"folder1": {
			txtFile("f1", "a.txt"),
			{ID: "f2", Name: "clip.mp4", MimeType: "video/mp4"},
		},
	}}
	dl := &fakeDownloader{data: map[string][]byte{"f1": []byte("text")}}
	sync := &fakeSync{verifyOK: true}
	up, _ := testUploader(lister, dl, sync)

	result := up.Run(context.Background())

	if result.Files != 1 {
		t.Errorf("expected 1 supported file, got %d", result.Files)
	}
	if result.Stage != StageVerified {
		t.Errorf("expected verified, got %s (err %v)", result.Stage, result.Err)
	}
}

func TestUploaderSkipsFailedFiles(t *testing.T) {
	lister := &fakeLister{files: map[string][]models.FileRecord{
		"folder1": {txtFile("f1", "a.txt"), txtFile("f2", "b.txt"), txtFile("f3", "c.txt")},
	}}
	dl := &fakeDownloader{
		data: map[string][]byte{"f1": []byte("good"), "f3": []byte("   ")},
		errs: map[string]error{"f2": errors.New("download timeout")},
	}
	sync := &fakeSync{verifyOK: true}
	up, _ := testUploader(lister, dl, sync)

	result := up.Run(context.Background())

	if result.Stage != StageVerified {
		t.Fatalf("expected verified, got %s (err %v)", result.Stage, result.Err)
	}
	if result.Documents != 1 {
		t.Errorf("documents = %d, want 1", result.Documents)
	}
	if result.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", result.Skipped)
	}
}

func TestUploaderAllFilesFail(t *testing.T) {
	lister := &fakeLister{files: map[string][]models.FileRecord{
		"folder1": {txtFile("f1", "a.txt")},
	}}
	dl := &fakeDownloader{errs: map[string]error{"f1": errors.New("gone")}}
	sync := &fakeSync{}
	up, _ := testUploader(lister, dl, sync)

	result := up.Run(context.Background())

	if result.Stage != StageFailed {
		t.Fatalf("expected failed, got %s", result.Stage)
	}
	if !strings.Contains(result.Err.Error(), string(StageExtracting)) {
		t.Errorf("error should name the extracting stage, got %v", result.Err)
	}
}

func TestUploaderUpsertFailure(t *testing.T) {
	lister := &fakeLister{files: map[string][]models.FileRecord{
		"folder1": {txtFile("f1", "a.txt")},
	}}
	dl := &fakeDownloader{data: map[string][]byte{"f1": []byte("text")}}
	sync := &fakeSync{upsertErr: errors.New("qdrant unavailable")}
	up, _ := testUploader(lister, dl, sync)

	result := up.Run(context.Background())

	if result.Stage != StageFailed {
		t.Fatalf("expected failed, got %s", result.Stage)
	}
	if !strings.Contains(result.Err.Error(), string(StageSyncing)) {
		t.Errorf("error should name the syncing stage, got %v", result.Err)
	}
	if result.Verified {
		t.Error("failed run must not report verified")
	}
}

func TestUploaderVerifyMismatchIsNotFatal(t *testing.T) {
	lister := &fakeLister{files: map[string][]models.FileRecord{
		"folder1": {txtFile("f1", "a.txt")},
	}}
	dl := &fakeDownloader{data: map[string][]byte{"f1": []byte("text")}}
	sync := &fakeSync{verifyOK: false}
	up, _ := testUploader(lister, dl, sync)

	result := up.Run(context.Background())

	if result.Stage != StageVerified {
		t.Fatalf("expected verified stage even on count mismatch, got %s", result.Stage)
	}
	if result.Verified {
		t.Error("verified flag should be false on count mismatch")
	}
}

func TestUploaderRecursiveListing(t *testing.T) {
	lister := &fakeLister{
		files: map[string][]models.FileRecord{
			"folder1": {txtFile("f1", "top.txt")},
		},
		recursive: map[string][]models.FileRecord{
			"folder1": {txtFile("f1", "top.txt"), txtFile("f2", "nested.txt")},
		},
	}
	dl := &fakeDownloader{data: map[string][]byte{
		"f1": []byte("top"), "f2": []byte("nested"),
	}}
	sync := &fakeSync{verifyOK: true}

	cfg := &config.CollectionConfig{Name: "test", Folders: []string{"folder1"}, IncludeSubfolders: true}
	chunker, _ := NewChunker(1000, 200)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	up := NewUploader(cfg, lister, dl, fakeExtractor{}, &fakeEmbedder{dim: 4}, sync, chunker, log)

	result := up.Run(context.Background())

	if result.Files != 2 {
		t.Errorf("expected nested file included, files = %d", result.Files)
	}
}
