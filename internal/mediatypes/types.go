package mediatypes

import (
	"path/filepath"
	"strings"
)

// Quality identifies a playback rendition of a stored video.
type Quality string

const (
	// QualityOriginal is the source file as uploaded.
	QualityOriginal Quality = "original"
	// Quality360 is the 640x360 rendition.
	Quality360 Quality = "p360"
	// Quality720 is the 1280x720 rendition.
	Quality720 Quality = "p720"
	// Quality1080 is the 1920x1080 rendition.
	Quality1080 Quality = "p1080"
)

// ParseQuality normalizes a quality query parameter. Both "p720" and
// the "720p" spelling are accepted; unknown or empty values resolve to
// the original source.
func ParseQuality(value string) Quality {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "p360", "360p", "360":
		return Quality360
	case "p720", "720p", "720":
		return Quality720
	case "p1080", "1080p", "1080":
		return Quality1080
	default:
		return QualityOriginal
	}
}

// UploadMimeTypes maps MIME types accepted for upload.
var UploadMimeTypes = map[string]bool{
	"video/mp4":  true,
	"video/webm": true,
	"video/ogg":  true,
}

// VideoExtensions maps file extensions recognized as video content.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".webm": true,
	".ogg":  true,
	".ogv":  true,
	".mkv":  true,
	".mov":  true,
	".m4v":  true,
	".avi":  true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".webm": "video/webm",
	".ogg":  "video/ogg",
	".ogv":  "video/ogg",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
}

// DefaultVideoMime is used when an extension has no known mapping.
const DefaultVideoMime = "video/mp4"

// MimeForPath returns the MIME type for a file path based on its extension.
func MimeForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return DefaultVideoMime
}

// IsVideoPath reports whether the path has a recognized video extension.
func IsVideoPath(path string) bool {
	return VideoExtensions[strings.ToLower(filepath.Ext(path))]
}
