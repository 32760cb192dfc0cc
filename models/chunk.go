package models

// Document is the extracted text of one file, alive only for the run that
// produced it.
type Document struct {
	File       FileRecord
	Text       string
	TotalPages int
}

// Chunk is a bounded slice of a document's text tagged with the 1-based line
// range it was cut from.
type Chunk struct {
	Text       string
	FromLine   int
	ToLine     int
	PageIndex  int
	TotalPages int
}

// DocumentChunk pairs a chunk with the file it came from, ready for
// embedding and upload.
type DocumentChunk struct {
	Chunk
	File FileRecord
}

// Payload builds the point payload for the vector store: the chunk text
// under "content" and the file metadata plus location info under "metadata".
func (dc *DocumentChunk) Payload() map[string]any {
	meta := dc.File.PayloadMetadata()
	meta["totalPages"] = dc.TotalPages
	meta["pageIndex"] = dc.PageIndex
	meta["loc"] = map[string]any{
		"lines": map[string]any{
			"from": dc.FromLine,
			"to":   dc.ToLine,
		},
	}
	return map[string]any{
		"content":  dc.Text,
		"metadata": meta,
	}
}
