package services

import (
	"context"
	"fmt"
	"strings"
)

// extractImage combines OCR text and a vision-model description. Either
// half may fail independently; the result concatenates whatever succeeded.
// Both failing means the image carries no extractable content.
func (e *ContentExtractor) extractImage(ctx context.Context, raw []byte, mimeType, fileName string) (string, int, error) {
	var parts []string

	if e.cfg.EnableOCR && e.ocr != nil {
		text, err := e.ocr.ExtractText(ctx, raw, fileName)
		if err != nil {
			e.log.Warn("ocr extraction failed", "file", fileName, "error", err)
		} else if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, "EXTRACTED TEXT:\n"+text)
			e.log.Info("ocr extracted text", "file", fileName, "chars", len(text))
		} else {
			e.log.Info("no text found in image via ocr", "file", fileName)
		}
	}

	if e.cfg.EnableImageAnalysis && e.vision != nil {
		description, err := e.vision.Describe(ctx, raw, mimeType)
		if err != nil {
			e.log.Warn("vision analysis failed", "file", fileName, "error", err)
		} else if description = strings.TrimSpace(description); description != "" {
			parts = append(parts, "VISUAL DESCRIPTION:\n"+description)
		}
	}

	if len(parts) == 0 {
		return "", 0, fmt.Errorf("%w: no content recovered from image %s", ErrExtractionFailed, fileName)
	}

	content := fmt.Sprintf("IMAGE ANALYSIS - %s\n%s", fileName, strings.Join(parts, "\n\n"))
	return content, 1, nil
}
