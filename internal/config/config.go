package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DefaultEmbeddingModel = "text-embedding-ada-002"
	DefaultChunkSize      = 1000
	DefaultChunkOverlap   = 200
	DefaultVisionModel    = "gpt-4o"
	DefaultOCRLanguage    = "eng"

	defaultImagePrompt = "Describe this image in detail, including any text, charts, diagrams, or important visual elements."
)

// CollectionConfig holds everything one collection run needs: source
// folders, chunking parameters, and the credentials for the embedding API
// and the target Qdrant collection. Immutable for the duration of a run.
type CollectionConfig struct {
	Name             string
	Folders          []string
	QdrantHost       string
	QdrantAPIKey     string
	QdrantCollection string

	EmbeddingProvider   string // "openai" (default) or "google"
	OpenAIAPIKey        string
	GeminiAPIKey        string
	EmbeddingModel      string
	EmbeddingDimensions int // 0 = infer from model

	ChunkSize         int
	ChunkOverlap      int
	IncludeSubfolders bool

	EnableImageAnalysis    bool
	ImageAnalysisModel     string
	ImageDescriptionPrompt string
	EnableOCR              bool
	OCRLanguage            string
	OCRServiceURL          string
}

// MultiConfig is the resolved configuration for a whole run.
type MultiConfig struct {
	DriveCredentialsPath string
	RunSchedule          string // cron expression; empty = run once
	Collections          []CollectionConfig
}

// collectionJSON mirrors the COLLECTIONS_CONFIG wire shape. Pointer fields
// distinguish "absent" from zero so defaults only fill real gaps.
type collectionJSON struct {
	Name                   string   `json:"name"`
	Folders                []string `json:"folders"`
	QdrantHost             string   `json:"qdrant_host"`
	QdrantAPIKey           string   `json:"qdrant_api_key"`
	QdrantCollection       string   `json:"qdrant_collection"`
	EmbeddingProvider      string   `json:"embedding_provider"`
	OpenAIAPIKey           string   `json:"openai_api_key"`
	GeminiAPIKey           string   `json:"gemini_api_key"`
	EmbeddingModel         string   `json:"embedding_model"`
	EmbeddingDimensions    int      `json:"embedding_dimensions"`
	ChunkSize              int      `json:"chunk_size"`
	ChunkOverlap           *int     `json:"chunk_overlap"`
	IncludeSubfolders      *bool    `json:"include_subfolders"`
	EnableImageAnalysis    *bool    `json:"enable_image_analysis"`
	ImageAnalysisModel     string   `json:"image_analysis_model"`
	ImageDescriptionPrompt string   `json:"image_description_prompt"`
	EnableOCR              *bool    `json:"enable_ocr"`
	OCRLanguage            string   `json:"ocr_language"`
	OCRServiceURL          string   `json:"ocr_service_url"`
}

// Load resolves the run configuration. A COLLECTIONS_CONFIG JSON blob takes
// precedence; without it the legacy flat environment variables describe a
// single collection named "default".
func Load() (*MultiConfig, error) {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &MultiConfig{
		DriveCredentialsPath: getEnv("GOOGLE_DRIVE_CREDENTIALS_PATH", ""),
		RunSchedule:          getEnv("RUN_SCHEDULE", ""),
	}

	if blob := os.Getenv("COLLECTIONS_CONFIG"); blob != "" {
		collections, err := parseCollectionsJSON(blob)
		if err != nil {
			return nil, err
		}
		cfg.Collections = collections
	} else {
		collection, err := loadLegacyCollection()
		if err != nil {
			return nil, err
		}
		cfg.Collections = []CollectionConfig{*collection}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseCollectionsJSON(blob string) ([]CollectionConfig, error) {
	var wrapper struct {
		Collections []collectionJSON `json:"collections"`
	}
	if err := json.Unmarshal([]byte(blob), &wrapper); err != nil {
		return nil, fmt.Errorf("invalid JSON in COLLECTIONS_CONFIG: %w", err)
	}

	collections := make([]CollectionConfig, 0, len(wrapper.Collections))
	for _, raw := range wrapper.Collections {
		c := CollectionConfig{
			Name:                   raw.Name,
			Folders:                raw.Folders,
			QdrantHost:             fallback(raw.QdrantHost, os.Getenv("QDRANT_HOST")),
			QdrantAPIKey:           fallback(raw.QdrantAPIKey, os.Getenv("QDRANT_API_KEY")),
			QdrantCollection:       raw.QdrantCollection,
			EmbeddingProvider:      fallback(raw.EmbeddingProvider, getEnv("EMBEDDINGS_PROVIDER", "openai")),
			OpenAIAPIKey:           fallback(raw.OpenAIAPIKey, os.Getenv("OPENAI_API_KEY")),
			GeminiAPIKey:           fallback(raw.GeminiAPIKey, os.Getenv("GEMINI_API_KEY")),
			EmbeddingModel:         fallback(raw.EmbeddingModel, DefaultEmbeddingModel),
			EmbeddingDimensions:    raw.EmbeddingDimensions,
			ChunkSize:              raw.ChunkSize,
			ChunkOverlap:           DefaultChunkOverlap,
			IncludeSubfolders:      true,
			EnableImageAnalysis:    true,
			ImageAnalysisModel:     fallback(raw.ImageAnalysisModel, DefaultVisionModel),
			ImageDescriptionPrompt: fallback(raw.ImageDescriptionPrompt, defaultImagePrompt),
			EnableOCR:              true,
			OCRLanguage:            fallback(raw.OCRLanguage, DefaultOCRLanguage),
			OCRServiceURL:          fallback(raw.OCRServiceURL, os.Getenv("OCR_SERVICE_URL")),
		}
		if c.ChunkSize == 0 {
			c.ChunkSize = DefaultChunkSize
		}
		if raw.ChunkOverlap != nil {
			c.ChunkOverlap = *raw.ChunkOverlap
		}
		if raw.IncludeSubfolders != nil {
			c.IncludeSubfolders = *raw.IncludeSubfolders
		}
		if raw.EnableImageAnalysis != nil {
			c.EnableImageAnalysis = *raw.EnableImageAnalysis
		}
		if raw.EnableOCR != nil {
			c.EnableOCR = *raw.EnableOCR
		}
		collections = append(collections, c)
	}
	return collections, nil
}

// loadLegacyCollection builds the single "default" collection from flat
// environment variables, the shape used before COLLECTIONS_CONFIG existed.
func loadLegacyCollection() (*CollectionConfig, error) {
	var folders []string
	if ids := os.Getenv("GOOGLE_DRIVE_FOLDER_IDS"); ids != "" {
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				folders = append(folders, id)
			}
		}
	} else if id := os.Getenv("GOOGLE_DRIVE_FOLDER_ID"); id != "" {
		folders = []string{id}
	}
	if len(folders) == 0 {
		return nil, fmt.Errorf("no Google Drive folder IDs configured")
	}

	return &CollectionConfig{
		Name:                   "default",
		Folders:                folders,
		QdrantHost:             os.Getenv("QDRANT_HOST"),
		QdrantAPIKey:           os.Getenv("QDRANT_API_KEY"),
		QdrantCollection:       os.Getenv("QDRANT_COLLECTION_NAME"),
		EmbeddingProvider:      getEnv("EMBEDDINGS_PROVIDER", "openai"),
		OpenAIAPIKey:           os.Getenv("OPENAI_API_KEY"),
		GeminiAPIKey:           os.Getenv("GEMINI_API_KEY"),
		EmbeddingModel:         getEnv("EMBEDDING_MODEL", DefaultEmbeddingModel),
		EmbeddingDimensions:    getEnvInt("EMBEDDING_DIMENSIONS", 0),
		ChunkSize:              getEnvInt("CHUNK_SIZE", DefaultChunkSize),
		ChunkOverlap:           getEnvInt("CHUNK_OVERLAP", DefaultChunkOverlap),
		IncludeSubfolders:      getEnvBool("INCLUDE_SUBFOLDERS", true),
		EnableImageAnalysis:    getEnvBool("ENABLE_IMAGE_ANALYSIS", true),
		ImageAnalysisModel:     getEnv("IMAGE_ANALYSIS_MODEL", DefaultVisionModel),
		ImageDescriptionPrompt: getEnv("IMAGE_DESCRIPTION_PROMPT", defaultImagePrompt),
		EnableOCR:              getEnvBool("ENABLE_OCR", true),
		OCRLanguage:            getEnv("OCR_LANGUAGE", DefaultOCRLanguage),
		OCRServiceURL:          os.Getenv("OCR_SERVICE_URL"),
	}, nil
}

// Validate checks that every required field is present before any
// processing starts.
func (m *MultiConfig) Validate() error {
	if m.DriveCredentialsPath == "" {
		return fmt.Errorf("missing required environment variable: GOOGLE_DRIVE_CREDENTIALS_PATH")
	}
	if len(m.Collections) == 0 {
		return fmt.Errorf("no collections configured")
	}
	for i := range m.Collections {
		if err := m.Collections[i].validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *CollectionConfig) validate() error {
	var missing []string
	if c.Name == "" {
		missing = append(missing, "name")
	}
	if len(c.Folders) == 0 {
		missing = append(missing, "folders")
	}
	if c.QdrantHost == "" {
		missing = append(missing, "qdrant_host")
	}
	if c.QdrantAPIKey == "" {
		missing = append(missing, "qdrant_api_key")
	}
	if c.QdrantCollection == "" {
		missing = append(missing, "qdrant_collection")
	}
	switch c.EmbeddingProvider {
	case "openai", "":
		if c.OpenAIAPIKey == "" {
			missing = append(missing, "openai_api_key")
		}
	case "google":
		if c.GeminiAPIKey == "" {
			missing = append(missing, "gemini_api_key")
		}
	default:
		return fmt.Errorf("collection %q: unknown embedding provider %q", c.Name, c.EmbeddingProvider)
	}
	if len(missing) > 0 {
		return fmt.Errorf("collection %q missing required fields: %s", c.Name, strings.Join(missing, ", "))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("collection %q: chunk_overlap must satisfy 0 <= overlap < chunk_size (got %d/%d)",
			c.Name, c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

func fallback(value, def string) string {
	if value != "" {
		return value
	}
	return def
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.EqualFold(value, "true")
	}
	return defaultValue
}
