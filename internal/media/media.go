// Package media normalizes what users send into a single InboundMedia value
// and answers the "is this a banner / is this a video" questions.
package media

import (
	"path/filepath"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindPhoto
	KindVideo
	KindDocument
)

func (k Kind) String() string {
	switch k {
	case KindPhoto:
		return "photo"
	case KindVideo:
		return "video"
	case KindDocument:
		return "document"
	default:
		return "unknown"
	}
}

// InboundMedia is a user upload, normalized once at ingestion. Native videos
// and files sent as documents carry the same fields, so nothing downstream
// needs to know which one the user picked.
type InboundMedia struct {
	Kind      Kind
	FileID    string
	Size      int64 // declared by the platform; 0 when unknown
	MimeType  string
	FileName  string
	ChatID    int64
	MessageID int
}

// Human-readable format lists used in corrective messages.
const (
	ImageFormats = "JPG, PNG, WEBP, GIF, BMP, TIFF, SVG, HEIC"
	VideoFormats = "MP4, MOV, MKV, AVI, WEBM, FLV, WMV, MPEG, M4V, 3GP"
)

var imageMimes = map[string]bool{
	"image/jpeg":    true,
	"image/png":     true,
	"image/webp":    true,
	"image/gif":     true,
	"image/bmp":     true,
	"image/tiff":    true,
	"image/svg+xml": true,
	"image/heic":    true,
}

// application/octet-stream is what most clients use for "send as file" on
// containers they don't recognise, so it is accepted here.
var videoMimes = map[string]bool{
	"video/mp4":                true,
	"video/quicktime":          true,
	"video/x-msvideo":          true,
	"video/x-matroska":         true,
	"video/webm":               true,
	"video/x-flv":              true,
	"video/x-ms-wmv":           true,
	"video/mpeg":               true,
	"video/mp4v-es":            true,
	"video/3gpp":               true,
	"application/octet-stream": true,
}

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true,
	".bmp": true, ".tiff": true, ".svg": true, ".heic": true,
}

var videoExts = map[string]bool{
	".mp4": true, ".mov": true, ".mkv": true, ".avi": true, ".webm": true,
	".flv": true, ".wmv": true, ".mpeg": true, ".m4v": true, ".3gp": true,
}

// IsImage reports whether m can serve as a banner.
func (m InboundMedia) IsImage() bool {
	switch m.Kind {
	case KindPhoto:
		return true
	case KindDocument:
		return matches(m, imageMimes, imageExts)
	default:
		return false
	}
}

// IsVideo reports whether m can be processed as the video input.
func (m InboundMedia) IsVideo() bool {
	switch m.Kind {
	case KindVideo:
		return true
	case KindDocument:
		return matches(m, videoMimes, videoExts)
	default:
		return false
	}
}

// matches prefers the declared mime type, falls back to the file extension,
// and gives the benefit of the doubt when neither is present.
func matches(m InboundMedia, mimes, exts map[string]bool) bool {
	if mt := strings.ToLower(strings.TrimSpace(m.MimeType)); mt != "" {
		return mimes[mt]
	}
	if m.FileName != "" {
		return exts[ext(m.FileName)]
	}
	return true
}

func ext(name string) string { return strings.ToLower(filepath.Ext(name)) }

// BannerSuffix is the temp file suffix used when storing m as a banner.
func (m InboundMedia) BannerSuffix() string {
	if e := ext(m.FileName); imageExts[e] {
		return e
	}
	switch strings.ToLower(m.MimeType) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	return ".jpg"
}

// VideoSuffix is the temp file suffix used when storing m as the input video.
func (m InboundMedia) VideoSuffix() string {
	if e := ext(m.FileName); videoExts[e] {
		return e
	}
	switch strings.ToLower(m.MimeType) {
	case "video/quicktime":
		return ".mov"
	case "video/x-matroska":
		return ".mkv"
	case "video/webm":
		return ".webm"
	}
	return ".mp4"
}
