// Package classifier implements the Link Classifier (C1, §4.1): a pure
// function from a link string to a classification plus kind-specific
// metadata, with no external state or I/O.
package classifier

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/shlokdhakrey/media-bot-sub002/internal/enginerr"
	"github.com/shlokdhakrey/media-bot-sub002/pkg/models"
)

var (
	btihRe      = regexp.MustCompile(`(?i)btih:([0-9a-f]{40}|[2-7a-z]{32})`)
	idCharsRe   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	fileDRe     = regexp.MustCompile(`/file/d/([A-Za-z0-9_-]+)`)
	idParamRe   = regexp.MustCompile(`[?&]id=([A-Za-z0-9_-]+)`)
	shortDRe    = regexp.MustCompile(`/d/([A-Za-z0-9_-]+)`)
	gdriveURIRe = regexp.MustCompile(`(?i)^gdrive://([A-Za-z0-9_-]+)`)
	foldersRe   = regexp.MustCompile(`/folders/([A-Za-z0-9_-]+)`)
	nzbNameRe   = regexp.MustCompile(`(?i)([^/\\]+\.nzb)$`)
)

// Classify parses a link string into a ClassifiedLink, following the
// first-match-wins order of §4.1. Returns an UnsupportedLink error when no
// rule matches.
func Classify(link string) (*models.ClassifiedLink, error) {
	trimmed := strings.TrimSpace(link)
	lower := strings.ToLower(trimmed)

	switch {
	case strings.HasPrefix(lower, "magnet:"):
		return classifyMagnet(trimmed), nil
	case strings.HasSuffix(lower, ".torrent"):
		return &models.ClassifiedLink{Kind: models.LinkTorrent, Original: trimmed}, nil
	case strings.HasSuffix(lower, ".nzb") || strings.HasPrefix(lower, "nzb://"):
		return classifyNZB(trimmed), nil
	case strings.Contains(lower, "drive.google.com") ||
		strings.HasPrefix(lower, "gdrive:") || strings.HasPrefix(lower, "gdrive://"):
		return classifyGDrive(trimmed), nil
	case strings.HasPrefix(lower, "ftp://"):
		return &models.ClassifiedLink{Kind: models.LinkFTP, Original: trimmed}, nil
	case strings.HasPrefix(lower, "https://"):
		return &models.ClassifiedLink{Kind: models.LinkHTTPS, Original: trimmed}, nil
	case strings.HasPrefix(lower, "http://"):
		return &models.ClassifiedLink{Kind: models.LinkHTTP, Original: trimmed}, nil
	default:
		return nil, enginerr.New(enginerr.KindUnsupportedLink, "unknown_link_kind",
			"link does not match any known kind").WithDetails(map[string]interface{}{"link": trimmed})
	}
}

func classifyMagnet(link string) *models.ClassifiedLink {
	out := &models.ClassifiedLink{Kind: models.LinkMagnet, Original: link}

	if m := btihRe.FindStringSubmatch(link); len(m) == 2 {
		out.InfoHash = strings.ToLower(m[1])
	}

	query := link
	if idx := strings.Index(link, "?"); idx >= 0 {
		query = link[idx+1:]
	}
	values, err := url.ParseQuery(query)
	if err == nil {
		if dn := values.Get("dn"); dn != "" {
			out.Name = dn
		}
		out.Trackers = append(out.Trackers, values["tr"]...)
	}
	return out
}

func classifyNZB(link string) *models.ClassifiedLink {
	out := &models.ClassifiedLink{Kind: models.LinkNZB, Original: link}
	if m := nzbNameRe.FindStringSubmatch(link); len(m) == 2 {
		out.NZBFilename = m[1]
	}
	return out
}

func classifyGDrive(link string) *models.ClassifiedLink {
	out := &models.ClassifiedLink{Kind: models.LinkGDrive, Original: link}

	switch {
	case fileDRe.MatchString(link):
		out.FileID = firstValidID(fileDRe.FindStringSubmatch(link))
	case idParamRe.MatchString(link):
		out.FileID = firstValidID(idParamRe.FindStringSubmatch(link))
	case shortDRe.MatchString(link):
		out.FileID = firstValidID(shortDRe.FindStringSubmatch(link))
	case gdriveURIRe.MatchString(link):
		out.FileID = firstValidID(gdriveURIRe.FindStringSubmatch(link))
	}

	if m := foldersRe.FindStringSubmatch(link); len(m) == 2 && idCharsRe.MatchString(m[1]) {
		out.FolderID = m[1]
	}
	return out
}

func firstValidID(m []string) string {
	if len(m) == 2 && idCharsRe.MatchString(m[1]) {
		return m[1]
	}
	return ""
}
