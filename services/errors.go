package services

import "errors"

var (
	// ErrUnsupportedFormat marks a mime type no extractor handles. Files
	// with it are skipped, never failing the run.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrExtractionFailed marks a file whose content could not be turned
	// into text. The file is skipped and logged.
	ErrExtractionFailed = errors.New("extraction failed")
)
