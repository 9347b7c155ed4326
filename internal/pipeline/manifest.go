package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shlokdhakrey/media-bot-sub002/internal/enginerr"
	"github.com/shlokdhakrey/media-bot-sub002/pkg/models"
)

// loadManifest reads back the manifest.json the Packager wrote into
// packageDir, for handoff to the Upload Router.
func loadManifest(packageDir string) (*models.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(packageDir, "manifest.json"))
	if err != nil {
		return nil, enginerr.Wrap(enginerr.KindUploadFailure, "manifest_read_failed",
			fmt.Sprintf("failed to read manifest for %s", packageDir), err)
	}
	var manifest models.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, enginerr.Wrap(enginerr.KindUploadFailure, "manifest_parse_failed",
			fmt.Sprintf("failed to parse manifest for %s", packageDir), err)
	}
	return &manifest, nil
}
