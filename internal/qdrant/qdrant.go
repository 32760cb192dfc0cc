package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"drive-qdrant-uploader/internal/config"
	"drive-qdrant-uploader/models"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	qd "github.com/qdrant/go-client/qdrant"
)

const upsertBatchSize = 100

// Manager owns one target collection: it creates it on demand, clears it
// for replacement syncs, writes points in batches, and reads back counts
// for verification.
type Manager struct {
	client     *qd.Client
	collection string
	log        *slog.Logger
}

func NewManager(cfg *config.CollectionConfig, log *slog.Logger) (*Manager, error) {
	host, port, useTLS := ParseHost(cfg.QdrantHost)
	client, err := qd.NewClient(&qd.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.QdrantAPIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s: %w", cfg.QdrantHost, err)
	}
	return &Manager{
		client:     client,
		collection: cfg.QdrantCollection,
		log:        log,
	}, nil
}

// ParseHost accepts a bare hostname, host:port, or an http(s) URL and
// derives gRPC connection parameters. https implies TLS; without an
// explicit port the standard Qdrant gRPC port 6334 is assumed.
func ParseHost(raw string) (host string, port int, useTLS bool) {
	host = raw
	port = 6334
	if strings.HasPrefix(host, "https://") {
		useTLS = true
		host = strings.TrimPrefix(host, "https://")
	} else if strings.HasPrefix(host, "http://") {
		host = strings.TrimPrefix(host, "http://")
	}
	host = strings.TrimSuffix(host, "/")
	if h, p, err := net.SplitHostPort(host); err == nil {
		if n, err := strconv.Atoi(p); err == nil {
			host, port = h, n
		}
	}
	return host, port, useTLS
}

// EnsureCollection creates the collection if absent. An existing collection
// with a different vector size is a fatal mismatch, never silently reused.
func (m *Manager) EnsureCollection(ctx context.Context, vectorSize uint64) error {
	exists, err := m.client.CollectionExists(ctx, m.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", m.collection, err)
	}
	if !exists {
		m.log.Info("creating collection", "name", m.collection, "vector_size", vectorSize)
		err := m.client.CreateCollection(ctx, &qd.CreateCollection{
			CollectionName: m.collection,
			VectorsConfig: qd.NewVectorsConfig(&qd.VectorParams{
				Size:     vectorSize,
				Distance: qd.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection %s: %w", m.collection, err)
		}
		return nil
	}

	info, err := m.client.GetCollectionInfo(ctx, m.collection)
	if err != nil {
		return fmt.Errorf("failed to inspect collection %s: %w", m.collection, err)
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params != nil && params.GetSize() != vectorSize {
		return fmt.Errorf("collection %s vector size mismatch: expected %d, got %d",
			m.collection, vectorSize, params.GetSize())
	}
	return nil
}

// Clear deletes every point so the subsequent upload fully replaces the
// collection's contents.
func (m *Manager) Clear(ctx context.Context) error {
	current, err := m.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count points before clear: %w", err)
	}
	if current == 0 {
		m.log.Info("collection already empty", "name", m.collection)
		return nil
	}

	m.log.Info("clearing collection", "name", m.collection, "points", current)
	_, err = m.client.Delete(ctx, &qd.DeletePoints{
		CollectionName: m.collection,
		Wait:           qd.PtrOf(true),
		// An empty filter matches all points.
		Points: qd.NewPointsSelectorFilter(&qd.Filter{}),
	})
	if err != nil {
		return fmt.Errorf("failed to clear collection %s: %w", m.collection, err)
	}
	return nil
}

// UpsertChunks pairs each chunk with its vector, builds points, and writes
// them in batches. A batch is retried with backoff; exhaustion fails the
// sync without rolling back batches already written.
func (m *Manager) UpsertChunks(ctx context.Context, chunks []models.DocumentChunk, vectors [][]float32) (int, error) {
	if len(chunks) != len(vectors) {
		return 0, fmt.Errorf("chunk/vector count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}

	points := BuildPoints(chunks, vectors)
	totalBatches := (len(points) + upsertBatchSize - 1) / upsertBatchSize
	upserted := 0

	for start := 0; start < len(points); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(points) {
			end = len(points)
		}
		batch := points[start:end]

		err := retry.Do(
			func() error {
				_, err := m.client.Upsert(ctx, &qd.UpsertPoints{
					CollectionName: m.collection,
					Wait:           qd.PtrOf(true),
					Points:         batch,
				})
				return err
			},
			retry.Attempts(3),
			retry.Delay(time.Second),
			retry.DelayType(retry.BackOffDelay),
			retry.Context(ctx),
			retry.OnRetry(func(n uint, err error) {
				m.log.Warn("upsert attempt failed", "batch", start/upsertBatchSize+1, "attempt", n+1, "error", err)
			}),
		)
		if err != nil {
			return upserted, fmt.Errorf("failed to upsert batch %d/%d: %w", start/upsertBatchSize+1, totalBatches, err)
		}
		upserted += len(batch)
		m.log.Info("upserted batch", "batch", start/upsertBatchSize+1, "batches", totalBatches, "total", upserted)
	}
	return upserted, nil
}

// Count returns the exact number of points currently stored.
func (m *Manager) Count(ctx context.Context) (uint64, error) {
	count, err := m.client.Count(ctx, &qd.CountPoints{
		CollectionName: m.collection,
		Exact:          qd.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points in %s: %w", m.collection, err)
	}
	return count, nil
}

// Verify compares the stored point count against the expected one. A
// mismatch is reported, not fatal; the caller decides how loudly to log.
func (m *Manager) Verify(ctx context.Context, expected int) (bool, error) {
	actual, err := m.Count(ctx)
	if err != nil {
		return false, err
	}
	if actual != uint64(expected) {
		m.log.Warn("point count mismatch", "collection", m.collection, "expected", expected, "actual", actual)
		return false, nil
	}
	m.log.Info("verification successful", "collection", m.collection, "points", actual)
	return true, nil
}

// DocStat summarizes the stored chunks belonging to one source file.
type DocStat struct {
	Chunks       int
	Size         int64
	MimeType     string
	ModifiedTime string
	Source       string
}

// DocumentStats scrolls up to limit stored payloads and aggregates chunk
// counts per source file. Used by the inspection tool, not the sync path.
func (m *Manager) DocumentStats(ctx context.Context, limit uint32) (map[string]DocStat, error) {
	points, err := m.client.Scroll(ctx, &qd.ScrollPoints{
		CollectionName: m.collection,
		Limit:          qd.PtrOf(limit),
		WithPayload:    qd.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scroll %s: %w", m.collection, err)
	}

	stats := make(map[string]DocStat)
	for _, p := range points {
		meta := p.GetPayload()["metadata"].GetStructValue().GetFields()
		name := meta["fileName"].GetStringValue()
		if name == "" {
			name = "Unknown File"
		}
		s := stats[name]
		s.Chunks++
		s.Size = meta["size"].GetIntegerValue()
		s.MimeType = meta["mimeType"].GetStringValue()
		s.ModifiedTime = meta["modifiedTime"].GetStringValue()
		s.Source = meta["source"].GetStringValue()
		stats[name] = s
	}
	return stats, nil
}

// BuildPoints converts aligned chunk/vector pairs into upload points with
// fresh UUIDs.
func BuildPoints(chunks []models.DocumentChunk, vectors [][]float32) []*qd.PointStruct {
	points := make([]*qd.PointStruct, len(chunks))
	for i := range chunks {
		points[i] = &qd.PointStruct{
			Id:      qd.NewIDUUID(uuid.NewString()),
			Vectors: qd.NewVectors(vectors[i]...),
			Payload: qd.NewValueMap(chunks[i].Payload()),
		}
	}
	return points
}
