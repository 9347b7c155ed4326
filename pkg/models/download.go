package models

import "time"

// DownloadStatus is the lifecycle of a single Download row (§3).
type DownloadStatus string

const (
	DownloadPending     DownloadStatus = "pending"
	DownloadInProgress  DownloadStatus = "downloading"
	DownloadPaused      DownloadStatus = "paused"
	DownloadCompleted   DownloadStatus = "completed"
	DownloadFailed      DownloadStatus = "failed"
	DownloadCancelled   DownloadStatus = "cancelled"
)

// LinkKind is the classification result produced by the Link Classifier (C1).
type LinkKind string

const (
	LinkMagnet  LinkKind = "magnet"
	LinkTorrent LinkKind = "torrent"
	LinkNZB     LinkKind = "nzb"
	LinkGDrive  LinkKind = "gdrive"
	LinkFTP     LinkKind = "ftp"
	LinkHTTPS   LinkKind = "https"
	LinkHTTP    LinkKind = "http"
)

// ClientName identifies one of the four external download clients C2 routes to.
type ClientName string

const (
	ClientTorrent ClientName = "torrent-client"
	ClientDirect  ClientName = "direct-download"
	ClientCloud   ClientName = "cloud-copy"
	ClientUsenet  ClientName = "usenet-client"
)

// Download is a persisted record of one fetch attempt for a Job's link.
type Download struct {
	ID             string         `json:"id"`
	JobID          string         `json:"jobId"`
	SourceLink     string         `json:"sourceLink"`
	Kind           LinkKind       `json:"kind"`
	Client         ClientName     `json:"client"`
	ExternalHandle string         `json:"externalHandle,omitempty"`
	Status         DownloadStatus `json:"status"`
	Progress       int            `json:"progress"`
	Speed          string         `json:"speed,omitempty"`
	ETASeconds     int            `json:"etaSeconds,omitempty"`
	OutputPath     string         `json:"outputPath,omitempty"`
	TotalBytes     int64          `json:"totalBytes"`
	RetryCount     int            `json:"retryCount"`
	Error          string         `json:"error,omitempty"`
	StartedAt      *time.Time     `json:"startedAt,omitempty"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
}

// ClassifiedLink is the output of the Link Classifier (C1): a kind plus
// kind-specific metadata extracted from the raw link string.
type ClassifiedLink struct {
	Kind     LinkKind
	Original string
	// Magnet
	InfoHash string
	Name     string
	Trackers []string
	// NZB
	NZBFilename string
	// GDrive
	FileID   string
	FolderID string
}
