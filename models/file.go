package models

// FileRecord is the flattened Drive metadata for one candidate file.
// Identity is the Drive file ID; records are immutable once listed.
type FileRecord struct {
	ID               string   `json:"fileId"`
	Name             string   `json:"fileName"`
	MimeType         string   `json:"mimeType"`
	Size             int64    `json:"size"`
	CreatedTime      string   `json:"createdTime"`
	ModifiedTime     string   `json:"modifiedTime"`
	Parents          []string `json:"parents"`
	WebViewLink      string   `json:"source"`
	DriveContext     string   `json:"driveContext"`
	SourceFolderID   string   `json:"folderId,omitempty"`
	SourceFolderName string   `json:"folderName,omitempty"`
}

// PayloadMetadata returns the metadata map stored alongside each chunk in
// the vector store. Key names match the point layout the retrieval bot reads.
func (f *FileRecord) PayloadMetadata() map[string]any {
	parents := make([]any, len(f.Parents))
	for i, p := range f.Parents {
		parents[i] = p
	}
	m := map[string]any{
		"source":       f.WebViewLink,
		"fileId":       f.ID,
		"fileName":     f.Name,
		"mimeType":     f.MimeType,
		"size":         f.Size,
		"createdTime":  f.CreatedTime,
		"modifiedTime": f.ModifiedTime,
		"parents":      parents,
		"driveContext": f.DriveContext,
	}
	if f.SourceFolderID != "" {
		m["folderId"] = f.SourceFolderID
	}
	if f.SourceFolderName != "" {
		m["folderName"] = f.SourceFolderName
	}
	return m
}
