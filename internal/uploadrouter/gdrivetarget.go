package uploadrouter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"google.golang.org/api/drive/v3"

	"github.com/shlokdhakrey/media-bot-sub002/pkg/models"
)

// GDriveTarget uploads a packaged directory's files into a single Drive
// folder named after the job id, using the *drive.Service it is given at
// construction. Grounded on
// micahg-cobblepod's internal/storage/gdrive.go UploadFile (Files.Create
// with Media()).
type GDriveTarget struct {
	drive        *drive.Service
	parentFolder string
}

// NewGDriveTarget constructs a GDriveTarget. parentFolder may be empty, in
// which case uploads land in the authenticated account's root.
func NewGDriveTarget(service *drive.Service, parentFolder string) *GDriveTarget {
	return &GDriveTarget{drive: service, parentFolder: parentFolder}
}

func (t *GDriveTarget) Name() string { return "gdrive-upload" }

func (t *GDriveTarget) HealthCheck(ctx context.Context) error {
	_, err := t.drive.About.Get().Fields("user").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gdrivetarget: health probe failed: %w", err)
	}
	return nil
}

// Upload creates a job-named folder under parentFolder and uploads every
// regular file found by walking packageDir recursively directly into that
// folder under its base name; subdirectories such as Samples/ are not
// recreated on Drive. Each per-file result records the path relative to
// packageDir.
func (t *GDriveTarget) Upload(ctx context.Context, packageDir, jobID string) (Result, error) {
	parents := []string{}
	if t.parentFolder != "" {
		parents = []string{t.parentFolder}
	}
	folder, err := t.drive.Files.Create(&drive.File{
		Name:     jobID,
		MimeType: "application/vnd.google-apps.folder",
		Parents:  parents,
	}).Context(ctx).Do()
	if err != nil {
		return Result{}, fmt.Errorf("gdrivetarget: create job folder: %w", err)
	}

	var perFile []models.UploadedFile
	err = filepath.Walk(packageDir, func(path string, info os.FileInfo, walkErr error) error {
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
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		uploaded, err := t.drive.Files.Create(&drive.File{
			Name:    filepath.Base(path),
			Parents: []string{folder.Id},
		}).Media(f).Fields("id, md5Checksum, size").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("upload %s: %w", rel, err)
		}

		perFile = append(perFile, models.UploadedFile{
			Filename:   rel,
			RemotePath: fmt.Sprintf("%s/%s", folder.Id, uploaded.Id),
			Size:       uploaded.Size,
			ETag:       uploaded.Md5Checksum,
		})
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	return Result{RemoteLocation: fmt.Sprintf("gdrive://%s", folder.Id), PerFile: perFile}, nil
}
