// Package cloudcopy implements the cloud-copy Client over the Google
// Drive API. Credential handling and the Files.List/Files.Get().Download()
// call shape are grounded on micahg-cobblepod's internal/gdrive/gdrive.go.
// Per §4.2, cloud-copy is a blocking single invocation: Start does not
// return until the transfer is complete or fails.
package cloudcopy

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/shlokdhakrey/media-bot-sub002/internal/downloadclients"
)

// Client wraps a Google Drive v3 service configured with application
// default credentials.
type Client struct {
	drive *drive.Service
}

// Scopes requested for Drive file read/write access.
var Scopes = []string{drive.DriveFileScope, drive.DriveReadonlyScope}

// New constructs a Client using application default credentials.
func New(ctx context.Context) (*Client, error) {
	credentials, err := google.FindDefaultCredentials(ctx, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("cloudcopy: failed to find default credentials: %w", err)
	}

	service, err := drive.NewService(ctx, option.WithCredentials(credentials))
	if err != nil {
		return nil, fmt.Errorf("cloudcopy: failed to create drive service: %w", err)
	}
	return &Client{drive: service}, nil
}

func (c *Client) Name() string { return "cloud-copy" }

func (c *Client) PollInterval() time.Duration { return 0 }

func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.drive.About.Get().Fields("user").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("cloudcopy: health probe failed: %w", err)
	}
	return nil
}

// Start downloads the Drive object identified by req.Metadata["fileId"]
// (or, for folder links, lists and downloads every file under
// req.Metadata["folderId"]) to req.OutputDir, blocking until complete.
func (c *Client) Start(ctx context.Context, req downloadclients.Request) (downloadclients.Handle, error) {
	started := time.Now()
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("cloudcopy: create output dir: %w", err)
	}

	var files []string
	var total int64

	if folderID := req.Metadata["folderId"]; folderID != "" {
		list, err := c.drive.Files.List().
			Q(fmt.Sprintf("'%s' in parents and trashed = false", folderID)).
			Fields("files(id, name, size)").
			Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("cloudcopy: list folder contents: %w", err)
		}
		for _, f := range list.Files {
			path, size, err := c.downloadOne(ctx, f.Id, f.Name, req.OutputDir)
			if err != nil {
				return nil, err
			}
			files = append(files, path)
			total += size
		}
	} else {
		fileID := req.Metadata["fileId"]
		if fileID == "" {
			return nil, fmt.Errorf("cloudcopy: request missing fileId/folderId")
		}
		meta, err := c.drive.Files.Get(fileID).Fields("name").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("cloudcopy: fetch file metadata: %w", err)
		}
		path, size, err := c.downloadOne(ctx, fileID, meta.Name, req.OutputDir)
		if err != nil {
			return nil, err
		}
		files = append(files, path)
		total += size
	}

	return &handle{files: files, totalBytes: total, durationMS: time.Since(started).Milliseconds()}, nil
}

func (c *Client) downloadOne(ctx context.Context, fileID, name, outputDir string) (string, int64, error) {
	resp, err := c.drive.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return "", 0, fmt.Errorf("cloudcopy: download %s failed: %w", fileID, err)
	}
	defer resp.Body.Close()

	dest := filepath.Join(outputDir, name)
	out, err := os.Create(dest)
	if err != nil {
		return "", 0, fmt.Errorf("cloudcopy: create destination: %w", err)
	}
	defer out.Close()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("cloudcopy: write destination: %w", err)
	}
	return dest, n, nil
}

// handle is already complete by the time Start returns (blocking invocation).
type handle struct {
	files      []string
	totalBytes int64
	durationMS int64
}

func (h *handle) Status(ctx context.Context) (downloadclients.Status, error) {
	return downloadclients.Status{Done: true, Progress: 100}, nil
}

func (h *handle) Files(ctx context.Context) ([]string, int64, error) {
	return h.files, h.totalBytes, nil
}

func (h *handle) Cancel(ctx context.Context) error {
	for _, f := range h.files {
		_ = os.Remove(f)
	}
	return nil
}
