package models

import "time"

// ManifestFileType classifies one packaged file (§6).
type ManifestFileType string

const (
	FileVideo    ManifestFileType = "video"
	FileAudio    ManifestFileType = "audio"
	FileSubtitle ManifestFileType = "subtitle"
	FileSample   ManifestFileType = "sample"
	FileNFO      ManifestFileType = "nfo"
	FileOther    ManifestFileType = "other"
)

// ManifestFile is one entry of manifest.json's "files" array (§6).
type ManifestFile struct {
	Filename string           `json:"filename"`
	Size     int64            `json:"size"`
	MD5      string           `json:"md5"`
	SHA256   string           `json:"sha256"`
	Type     ManifestFileType `json:"type"`
}

// Manifest is the full schema of manifest.json (§6, §4.6).
type Manifest struct {
	JobID     string                 `json:"jobId"`
	CreatedAt time.Time              `json:"createdAt"`
	Files     []ManifestFile         `json:"files"`
	TotalSize int64                  `json:"totalSize"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// UploadedFile is one entry of an UploadManifest's per-file listing (§4.7).
type UploadedFile struct {
	Filename   string `json:"filename"`
	RemotePath string `json:"remotePath"`
	Size       int64  `json:"size"`
	ETag       string `json:"etag,omitempty"`
}

// UploadManifest matches Manifest's schema plus the upload target and
// final location (§4.7).
type UploadManifest struct {
	Manifest
	Target   string         `json:"target"`
	Location string         `json:"location"`
	PerFile  []UploadedFile `json:"perFile"`
}

// CategorizedFiles is the Packager's input file set (§4.6).
type CategorizedFiles struct {
	Video     string
	Audios    []string
	Subtitles []string
	Samples   []string
}
