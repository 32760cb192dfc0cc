package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractHTML strips script/style elements, pulls the page title, and keeps
// the remaining text one trimmed line per block.
func (e *ContentExtractor) extractHTML(raw []byte, fileName string) (string, int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return "", 0, fmt.Errorf("%w: html %s: %v", ErrExtractionFailed, fileName, err)
	}

	doc.Find("script, style, noscript").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	body := doc.Find("body")
	text := body.Text()
	if body.Length() == 0 {
		text = doc.Text()
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "HTML CONTENT - %s\n\n", fileName)
	if title != "" {
		fmt.Fprintf(&b, "TITLE: %s\n\n", title)
	}
	b.WriteString(strings.Join(lines, "\n"))
	return b.String(), 1, nil
}

// maxJSONPaths caps the flattened path listing so huge documents do not
// drown the pretty-printed structure.
const maxJSONPaths = 50

// extractJSON renders the document twice: pretty-printed for structure and
// flattened into "path: value" lines for searchability. Invalid JSON is
// kept as raw text rather than skipped.
func (e *ContentExtractor) extractJSON(raw []byte, fileName string) (string, int, error) {
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		var b strings.Builder
		fmt.Fprintf(&b, "JSON FILE - %s (invalid JSON, treating as text)\n\n", fileName)
		fmt.Fprintf(&b, "RAW CONTENT:\n%s", string(raw))
		return b.String(), 1, nil
	}

	pretty, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", 0, fmt.Errorf("%w: json %s: %v", ErrExtractionFailed, fileName, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "JSON CONTENT - %s\n\n", fileName)
	fmt.Fprintf(&b, "STRUCTURED DATA:\n%s", string(pretty))

	paths := flattenJSON(data, "")
	if len(paths) > 0 {
		if len(paths) > maxJSONPaths {
			paths = paths[:maxJSONPaths]
		}
		fmt.Fprintf(&b, "\n\nSEARCHABLE CONTENT:\n%s", strings.Join(paths, "\n"))
	}
	return b.String(), 1, nil
}

// flattenJSON walks nested structure into "path.to.key: value" lines.
// Object keys are visited in sorted order so the output is deterministic.
func flattenJSON(v any, path string) []string {
	var out []string
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			p := k
			if path != "" {
				p = path + "." + k
			}
			out = append(out, flattenJSON(val[k], p)...)
		}
	case []any:
		for i, item := range val {
			out = append(out, flattenJSON(item, fmt.Sprintf("%s[%d]", path, i))...)
		}
	case string, float64, bool, json.Number:
		out = append(out, fmt.Sprintf("%s: %v", path, val))
	case nil:
		// null values carry no searchable content
	}
	return out
}

// extractMarkdown derives a table of contents from heading markers and
// prepends it to the full content.
func (e *ContentExtractor) extractMarkdown(raw []byte, fileName string) (string, int, error) {
	text := string(raw)

	var headers []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			continue
		}
		level := len(trimmed) - len(strings.TrimLeft(trimmed, "#"))
		headerText := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		if headerText != "" {
			headers = append(headers, strings.Repeat("  ", level-1)+"• "+headerText)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MARKDOWN CONTENT - %s\n\n", fileName)
	if len(headers) > 0 {
		fmt.Fprintf(&b, "DOCUMENT STRUCTURE:\n%s\n\n", strings.Join(headers, "\n"))
	}
	fmt.Fprintf(&b, "FULL CONTENT:\n%s", text)
	return b.String(), 1, nil
}
