// Package packager implements the Packager (C8, §4.6): it assembles a
// job's processed outputs into a directory, computes per-file digests, and
// emits manifest.json (§6). Hashing is fanned out with golang.org/x/sync/errgroup,
// grounded on the teacher's ScanMusicLibrary worker-pool shape.
package packager

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shlokdhakrey/media-bot-sub002/internal/enginerr"
	"github.com/shlokdhakrey/media-bot-sub002/pkg/models"
)

// Packager assembles a job's CategorizedFiles into <outputRoot>/<jobId>/.
type Packager struct{}

// New constructs a Packager. It holds no state: all inputs are passed to Package.
func New() *Packager { return &Packager{} }

type plannedFile struct {
	src  string
	dst  string
	typ  models.ManifestFileType
	name string // manifest filename, e.g. "Samples/s1.mkv"
}

// Package moves files into <outputRoot>/<jobId>/, hashes each with MD5 and
// SHA-256, and writes manifest.json. Any move or hash failure aborts the
// step; files already moved are left in place and the error is returned for
// the driver to record as a FAILED transition (§4.6).
func (p *Packager) Package(jobID string, files models.CategorizedFiles, outputRoot string, metadata map[string]interface{}) (*models.Manifest, error) {
	destDir := filepath.Join(outputRoot, jobID)
	samplesDir := filepath.Join(destDir, "Samples")

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, enginerr.Wrap(enginerr.KindPackageFailure, "mkdir_failed", "failed to create package directory", err)
	}
	if len(files.Samples) > 0 {
		if err := os.MkdirAll(samplesDir, 0o755); err != nil {
			return nil, enginerr.Wrap(enginerr.KindPackageFailure, "mkdir_failed", "failed to create samples directory", err)
		}
	}

	var planned []plannedFile
	if files.Video != "" {
		base := filepath.Base(files.Video)
		planned = append(planned, plannedFile{src: files.Video, dst: filepath.Join(destDir, base), typ: models.FileVideo, name: base})
	}
	for _, a := range files.Audios {
		base := filepath.Base(a)
		planned = append(planned, plannedFile{src: a, dst: filepath.Join(destDir, base), typ: models.FileAudio, name: base})
	}
	for _, s := range files.Subtitles {
		base := filepath.Base(s)
		planned = append(planned, plannedFile{src: s, dst: filepath.Join(destDir, base), typ: models.FileSubtitle, name: base})
	}
	for _, s := range files.Samples {
		base := filepath.Base(s)
		planned = append(planned, plannedFile{src: s, dst: filepath.Join(samplesDir, base), typ: models.FileSample, name: filepath.Join("Samples", base)})
	}

	for _, pf := range planned {
		if err := moveFile(pf.src, pf.dst); err != nil {
			return nil, enginerr.Wrap(enginerr.KindPackageFailure, "move_failed",
				fmt.Sprintf("failed to move %s into package", pf.src), err)
		}
	}

	manifestFiles := make([]models.ManifestFile, len(planned))
	g := new(errgroup.Group)
	for i, pf := range planned {
		i, pf := i, pf
		g.Go(func() error {
			md5sum, sha256sum, size, err := hashFile(pf.dst)
			if err != nil {
				return enginerr.Wrap(enginerr.KindPackageFailure, "hash_failed",
					fmt.Sprintf("failed to hash %s", pf.dst), err)
			}
			manifestFiles[i] = models.ManifestFile{
				Filename: pf.name,
				Size:     size,
				MD5:      md5sum,
				SHA256:   sha256sum,
				Type:     pf.typ,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int64
	for _, f := range manifestFiles {
		total += f.Size
	}

	manifest := &models.Manifest{
		JobID:     jobID,
		CreatedAt: time.Now(),
		Files:     manifestFiles,
		TotalSize: total,
		Metadata:  metadata,
	}

	if err := writeManifest(destDir, manifest); err != nil {
		return nil, enginerr.Wrap(enginerr.KindPackageFailure, "manifest_write_failed", "failed to write manifest.json", err)
	}

	return manifest, nil
}

func moveFile(src, dst string) error {
	if src == dst {
		return nil
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// Cross-device rename: fall back to copy-then-remove.
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func hashFile(path string) (md5hex, sha256hex string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", 0, err
	}
	defer f.Close()

	md5h := md5.New()
	sha256h := sha256.New()
	size, err = io.Copy(io.MultiWriter(md5h, sha256h), f)
	if err != nil {
		return "", "", 0, err
	}
	return hex.EncodeToString(md5h.Sum(nil)), hex.EncodeToString(sha256h.Sum(nil)), size, nil
}

func writeManifest(destDir string, manifest *models.Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(destDir, "manifest.json"), data, 0o644)
}
