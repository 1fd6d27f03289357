package models

import "strings"

// NormalizeFormat lowercases a format name and folds common aliases
// ("jpeg" -> "jpg", "tif" -> "tiff", leading dots and "image/" prefixes).
func NormalizeFormat(format string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	f = strings.TrimPrefix(f, "image/")
	f = strings.TrimPrefix(f, ".")
	switch f {
	case "jpeg", "pjpeg", "jfif":
		return "jpg"
	case "tif":
		return "tiff"
	case "x-ms-bmp":
		return "bmp"
	}
	return f
}

// IsLosslessFormat reports whether quality has no meaning for the format.
func IsLosslessFormat(format string) bool {
	switch NormalizeFormat(format) {
	case "png", "bmp", "gif", "tiff":
		return true
	}
	return false
}

// SupportsAlpha reports whether the format can carry an alpha channel.
func SupportsAlpha(format string) bool {
	switch NormalizeFormat(format) {
	case "png", "webp", "avif", "gif", "tiff", "heic", "heif":
		return true
	}
	return false
}

// IsHEIF reports whether the format is one of the HEIC/HEIF container formats
// that cannot be decoded locally.
func IsHEIF(format string) bool {
	switch NormalizeFormat(format) {
	case "heic", "heif":
		return true
	}
	return false
}

// MIMEType returns the content type for a format.
func MIMEType(format string) string {
	switch f := NormalizeFormat(format); f {
	case "jpg":
		return "image/jpeg"
	case "":
		return "application/octet-stream"
	default:
		return "image/" + f
	}
}
