package s3

import (
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/specialistvlad/taskgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct {
	// Client performs the uploads. Nil means http.DefaultClient.
	Client *http.Client
}

// Register registers the s3_upload function with the registry.
func (m *Module) Register(r *registry.Registry) {
	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	r.RegisterFunc("s3_upload", func(args ...any) (any, error) {
		return Upload(client, args...)
	})
}

// Upload PUTs the file at args[0] to the pre-signed URL args[1] and returns
// the response status.
func Upload(client *http.Client, args ...any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("s3_upload: expected 2 arguments, got %d", len(args))
	}
	sourcePath, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("s3_upload: source path must be a string, got %T", args[0])
	}
	uploadURL, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("s3_upload: upload url must be a string, got %T", args[1])
	}
	logger := slog.Default().With("action", "upload")

	file, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file '%s': %w", sourcePath, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get file stats for '%s': %w", sourcePath, err)
	}

	req, err := http.NewRequest(http.MethodPut, uploadURL, file)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 upload request: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(sourcePath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = stat.Size()

	logger.Info("Uploading file to S3", "source", sourcePath, "size", stat.Size(), "contentType", contentType)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute S3 upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("S3 upload failed with status: %s", resp.Status)
	}

	logger.Info("Successfully uploaded file", "status", resp.Status)
	return resp.Status, nil
}
