package services

import (
	"bytes"
	"fmt"
	"strings"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// extractPDF pulls plain text page by page. Pages that fail to decode are
// skipped so one bad page does not lose the whole document.
func (e *ContentExtractor) extractPDF(raw []byte, fileName string) (string, int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", 0, fmt.Errorf("%w: pdf reader for %s: %v", ErrExtractionFailed, fileName, err)
	}

	pages := reader.NumPage()
	var textBuilder strings.Builder

	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			e.log.Warn("failed to extract pdf page", "file", fileName, "page", i, "error", err)
			continue
		}

		if textBuilder.Len() > 0 {
			textBuilder.WriteString("\n")
		}
		textBuilder.WriteString(text)
	}

	if textBuilder.Len() == 0 {
		return "", 0, fmt.Errorf("%w: no text extracted from pdf %s", ErrExtractionFailed, fileName)
	}
	return textBuilder.String(), pages, nil
}

func (e *ContentExtractor) extractDOCX(raw []byte, fileName string) (string, int, error) {
	text, _, err := docconv.ConvertDocx(bytes.NewReader(raw))
	if err != nil {
		return "", 0, fmt.Errorf("%w: docx %s: %v", ErrExtractionFailed, fileName, err)
	}
	return text, 1, nil
}

// extractXLSX flattens every sheet into "cell | cell | ..." rows under a
// sheet header, which keeps tabular values searchable after chunking.
func (e *ContentExtractor) extractXLSX(raw []byte, fileName string) (string, int, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return "", 0, fmt.Errorf("%w: xlsx %s: %v", ErrExtractionFailed, fileName, err)
	}
	defer f.Close()

	var b strings.Builder
	fmt.Fprintf(&b, "SPREADSHEET CONTENT - %s\n", fileName)

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			e.log.Warn("failed to read sheet", "file", fileName, "sheet", sheet, "error", err)
			continue
		}
		fmt.Fprintf(&b, "\nSHEET: %s\n", sheet)
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, " | "))
			if line != "" {
				b.WriteString(line)
				b.WriteString("\n")
			}
		}
	}
	return b.String(), 1, nil
}
