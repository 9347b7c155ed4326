package uploadrouter

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/shlokdhakrey/media-bot-sub002/pkg/models"
)

// LocalFSTarget mirrors a packaged directory to a second filesystem root,
// for deployments with no cloud target configured. The mirror-a-directory
// shape is grounded on rclone-sync's one-way sync concept
// (internal/rclone/sync.go's runOneWay/CopyDir), reduced to a plain
// recursive copy since this engine carries no rclone dependency itself.
type LocalFSTarget struct {
	root string
}

// NewLocalFSTarget constructs a LocalFSTarget rooted at root; job uploads
// land under root/<jobId>/.
func NewLocalFSTarget(root string) *LocalFSTarget {
	return &LocalFSTarget{root: root}
}

func (t *LocalFSTarget) Name() string { return "local-mirror" }

func (t *LocalFSTarget) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(t.root)
	if err != nil {
		return fmt.Errorf("localfstarget: mirror root unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("localfstarget: mirror root %s is not a directory", t.root)
	}
	return nil
}

func (t *LocalFSTarget) Upload(ctx context.Context, packageDir, jobID string) (Result, error) {
	destDir := filepath.Join(t.root, jobID)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("localfstarget: create destination: %w", err)
	}

	var perFile []models.UploadedFile
	err := filepath.Walk(packageDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(packageDir, path)
		if err != nil {
			return err
		}
		dest := filepath.Join(destDir, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		sum, err := copyAndSum(path, dest)
		if err != nil {
			return fmt.Errorf("copy %s: %w", rel, err)
		}
		perFile = append(perFile, models.UploadedFile{
			Filename:   rel,
			RemotePath: dest,
			Size:       info.Size(),
			ETag:       sum,
		})
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	return Result{RemoteLocation: destDir, PerFile: perFile}, nil
}

func copyAndSum(src, dst string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	h := md5.New()
	if _, err := io.Copy(io.MultiWriter(out, h), in); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
