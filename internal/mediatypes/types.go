package mediatypes

import (
	"path/filepath"
	"strings"
)

// Kind is the media classification stored on every catalog item.
type Kind string

const (
	// KindImage is a still image served as uploaded.
	KindImage Kind = "image"
	// KindVideo is a video that is re-encoded for web playback.
	KindVideo Kind = "video"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindImage || k == KindVideo
}

// ImageExtensions maps file extensions to whether they are accepted image formats.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
	".heic": true,
	".heif": true,
}

// VideoExtensions maps file extensions to whether they are accepted video formats.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".m4v":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
	".wmv":  true,
	".flv":  true,
	".mpeg": true,
	".mpg":  true,
	".3gp":  true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	// Images
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",

	// Videos
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".m4v":  "video/x-m4v",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",
}

// Ext returns the lower-cased extension of name, including the leading dot.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// Lookup returns the Kind for an extension and whether the extension is
// on the upload allow-list. The extension should be lowercase and include
// the leading dot (e.g., ".jpg").
func Lookup(ext string) (Kind, bool) {
	if VideoExtensions[ext] {
		return KindVideo, true
	}
	if ImageExtensions[ext] {
		return KindImage, true
	}
	return "", false
}

// KindOf classifies a filename by its extension.
func KindOf(name string) (Kind, bool) {
	return Lookup(Ext(name))
}

// IsAllowed returns true if the extension may be uploaded.
func IsAllowed(ext string) bool {
	_, ok := Lookup(ext)
	return ok
}

// GetMimeType returns the MIME type for a given file extension.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}
