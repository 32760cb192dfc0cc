package drive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"drive-qdrant-uploader/models"

	"github.com/avast/retry-go/v4"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	mimeFolder    = "application/vnd.google-apps.folder"
	mimeGoogleDoc = "application/vnd.google-apps.document"

	fileFields = "nextPageToken, files(id, name, mimeType, size, createdTime, modifiedTime, parents, webViewLink)"
	pageSize   = 1000
)

// Handler wraps the Drive v3 API for read-only listing and download. One
// handler is shared across collections; it holds no per-collection state.
type Handler struct {
	svc *drive.Service
	log *slog.Logger
}

// NewHandler authenticates with a service account credentials file.
func NewHandler(ctx context.Context, credentialsPath string, log *slog.Logger) (*Handler, error) {
	svc, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsPath),
		option.WithScopes(drive.DriveReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate with Google Drive API: %w", err)
	}
	log.Info("authenticated with Google Drive API")
	return &Handler{svc: svc, log: log}, nil
}

// NewWithService wires an existing Drive service, used by tests.
func NewWithService(svc *drive.Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// ListFolder returns the files directly inside folderID, skipping trashed
// entries and subfolders.
func (h *Handler) ListFolder(ctx context.Context, folderID string) ([]models.FileRecord, error) {
	query := fmt.Sprintf("'%s' in parents and trashed = false", folderID)

	var records []models.FileRecord
	pageToken := ""
	for {
		call := h.svc.Files.List().
			Q(query).
			Fields(googleapi.Field(fileFields)).
			PageSize(pageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		res, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("error fetching files from folder %s: %w", folderID, err)
		}
		for _, f := range res.Files {
			if f.MimeType == mimeFolder {
				continue
			}
			records = append(records, toRecord(f))
		}
		if res.NextPageToken == "" {
			break
		}
		pageToken = res.NextPageToken
	}

	h.log.Debug("listed folder", "folder", folderID, "files", len(records))
	return records, nil
}

// ListRecursive walks folderID and every subfolder below it, stamping each
// record with the folder it was found in. A visited set guards against
// shortcut cycles.
func (h *Handler) ListRecursive(ctx context.Context, folderID string) ([]models.FileRecord, error) {
	folderIDs, err := h.collectSubfolders(ctx, folderID, map[string]bool{})
	if err != nil {
		return nil, err
	}
	h.log.Info("resolved folder tree", "root", folderID, "folders", len(folderIDs))

	var all []models.FileRecord
	for _, fid := range folderIDs {
		name := h.folderName(ctx, fid)
		files, err := h.ListFolder(ctx, fid)
		if err != nil {
			h.log.Error("error processing folder, skipping", "folder", fid, "error", err)
			continue
		}
		for i := range files {
			files[i].SourceFolderID = fid
			files[i].SourceFolderName = name
		}
		all = append(all, files...)
	}
	return all, nil
}

// collectSubfolders returns folderID plus all transitive subfolder IDs.
func (h *Handler) collectSubfolders(ctx context.Context, folderID string, visited map[string]bool) ([]string, error) {
	if visited[folderID] {
		return nil, nil
	}
	visited[folderID] = true
	ids := []string{folderID}

	query := fmt.Sprintf("'%s' in parents and mimeType='%s' and trashed = false", folderID, mimeFolder)
	res, err := h.svc.Files.List().
		Q(query).
		Fields("files(id, name)").
		PageSize(pageSize).
		Context(ctx).
		Do()
	if err != nil {
		h.log.Error("error getting subfolders", "folder", folderID, "error", err)
		return ids, nil
	}

	for _, sub := range res.Files {
		h.log.Debug("found subfolder", "name", sub.Name, "id", sub.Id)
		nested, err := h.collectSubfolders(ctx, sub.Id, visited)
		if err != nil {
			continue
		}
		ids = append(ids, nested...)
	}
	return ids, nil
}

func (h *Handler) folderName(ctx context.Context, folderID string) string {
	info, err := h.svc.Files.Get(folderID).Fields("name").Context(ctx).Do()
	if err != nil {
		return "Unknown Folder"
	}
	return info.Name
}

// Download fetches file bytes. Google Docs are exported as plain text;
// everything else downloads as stored.
func (h *Handler) Download(ctx context.Context, file models.FileRecord) ([]byte, error) {
	var content []byte
	err := retry.Do(
		func() error {
			var resp *http.Response
			var err error
			if file.MimeType == mimeGoogleDoc {
				resp, err = h.svc.Files.Export(file.ID, "text/plain").Context(ctx).Download()
			} else {
				resp, err = h.svc.Files.Get(file.ID).Context(ctx).Download()
			}
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			content = data
			return nil
		},
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			h.log.Warn("download attempt failed", "file", file.Name, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("error downloading %s: %w", file.Name, err)
	}
	return content, nil
}

func toRecord(f *drive.File) models.FileRecord {
	return models.FileRecord{
		ID:           f.Id,
		Name:         f.Name,
		MimeType:     f.MimeType,
		Size:         f.Size,
		CreatedTime:  f.CreatedTime,
		ModifiedTime: f.ModifiedTime,
		Parents:      f.Parents,
		WebViewLink:  f.WebViewLink,
		DriveContext: " (My Drive)",
	}
}
