package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"drive-qdrant-uploader/internal/config"
	"drive-qdrant-uploader/models"
)

const (
	mimeGoogleDoc = "application/vnd.google-apps.document"
	mimeDocx      = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeXlsx      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimePDF       = "application/pdf"
	mimeHTML      = "text/html"
	mimeJSON      = "application/json"
)

// markdownMimes covers both registrations seen in Drive metadata.
var markdownMimes = map[string]bool{
	"text/markdown":   true,
	"text/x-markdown": true,
}

var imageMimes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/bmp":  true,
	"image/tiff": true,
	"image/webp": true,
}

// VisionDescriber produces a natural-language description of an image.
type VisionDescriber interface {
	Describe(ctx context.Context, image []byte, mimeType string) (string, error)
}

// ContentExtractor dispatches downloaded file bytes to a per-mime-type
// text extraction strategy. Every strategy returns UTF-8 text; anything it
// cannot handle fails with ErrUnsupportedFormat or ErrExtractionFailed and
// the caller skips the file.
type ContentExtractor struct {
	cfg    *config.CollectionConfig
	ocr    *OCRClient
	vision VisionDescriber
	log    *slog.Logger
}

func NewContentExtractor(cfg *config.CollectionConfig, ocr *OCRClient, vision VisionDescriber, log *slog.Logger) *ContentExtractor {
	return &ContentExtractor{cfg: cfg, ocr: ocr, vision: vision, log: log}
}

// Supported reports whether any extraction strategy handles the mime type.
func Supported(mimeType string) bool {
	switch mimeType {
	case mimeGoogleDoc, mimeDocx, mimeXlsx, mimePDF, mimeHTML, mimeJSON, "text/plain":
		return true
	}
	return markdownMimes[mimeType] || imageMimes[mimeType]
}

// Extract turns raw file bytes into a Document. Google Docs arrive already
// exported as plain text by the downloader.
func (e *ContentExtractor) Extract(ctx context.Context, file models.FileRecord, raw []byte) (*models.Document, error) {
	text, pages, err := e.dispatch(ctx, file, raw)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s produced no text", ErrExtractionFailed, file.Name)
	}
	if pages < 1 {
		pages = 1
	}
	return &models.Document{File: file, Text: text, TotalPages: pages}, nil
}

func (e *ContentExtractor) dispatch(ctx context.Context, file models.FileRecord, raw []byte) (string, int, error) {
	mimeType := file.MimeType
	switch {
	case mimeType == mimeGoogleDoc || mimeType == "text/plain":
		return string(raw), 1, nil
	case mimeType == mimeDocx:
		return e.extractDOCX(raw, file.Name)
	case mimeType == mimePDF:
		return e.extractPDF(raw, file.Name)
	case mimeType == mimeHTML:
		return e.extractHTML(raw, file.Name)
	case mimeType == mimeJSON:
		return e.extractJSON(raw, file.Name)
	case markdownMimes[mimeType]:
		return e.extractMarkdown(raw, file.Name)
	case mimeType == mimeXlsx:
		return e.extractXLSX(raw, file.Name)
	case imageMimes[mimeType]:
		return e.extractImage(ctx, raw, mimeType, file.Name)
	default:
		return "", 0, fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, file.Name, mimeType)
	}
}
