package imaging

import (
	"bytes"
	"io"
	"path/filepath"

	"pixconv/models"
)

var (
	pngSig    = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	jpegSig   = []byte{0xff, 0xd8, 0xff}
	gif87Sig  = []byte("GIF87a")
	gif89Sig  = []byte("GIF89a")
	bmpSig    = []byte("BM")
	tiffSigLE = []byte{0x49, 0x49, 0x2a, 0x00}
	tiffSigBE = []byte{0x4d, 0x4d, 0x00, 0x2a}
	riffSig   = []byte("RIFF")
	webpSig   = []byte("WEBP")
	ftypBox   = []byte("ftyp")
)

// HeaderSize is how many leading bytes Sniff needs to recognize every format.
const HeaderSize = 16

// Sniff inspects leading bytes for known signatures and returns the
// normalized format name, or "" when nothing matches.
func Sniff(header []byte) string {
	switch {
	case bytes.HasPrefix(header, jpegSig):
		return "jpg"
	case bytes.HasPrefix(header, pngSig):
		return "png"
	case bytes.HasPrefix(header, gif87Sig), bytes.HasPrefix(header, gif89Sig):
		return "gif"
	case bytes.HasPrefix(header, tiffSigLE), bytes.HasPrefix(header, tiffSigBE):
		return "tiff"
	case len(header) >= 12 && bytes.HasPrefix(header, riffSig) && bytes.Equal(header[8:12], webpSig):
		return "webp"
	case len(header) >= 12 && bytes.Equal(header[4:8], ftypBox):
		return isoBrand(header[8:12])
	case bytes.HasPrefix(header, bmpSig):
		return "bmp"
	}
	return ""
}

// isoBrand maps an ISO BMFF major brand to a format.
func isoBrand(brand []byte) string {
	switch string(brand) {
	case "heic", "heix", "hevc", "hevx", "heim", "heis":
		return "heic"
	case "mif1", "msf1":
		return "heif"
	case "avif", "avis":
		return "avif"
	}
	return ""
}

// SniffReader reads the first HeaderSize bytes from r and sniffs them.
func SniffReader(r io.Reader) (string, error) {
	header := make([]byte, HeaderSize)
	n, err := io.ReadFull(r, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", err
	}
	return Sniff(header[:n]), nil
}

// FormatFromName derives a format from a file name's extension.
func FormatFromName(name string) string {
	return models.NormalizeFormat(filepath.Ext(name))
}

// MIMEType returns the content type for format.
func MIMEType(format string) string {
	return models.MIMEType(format)
}

// Extension returns the file extension, with the dot, used for format.
func Extension(format string) string {
	if f := models.NormalizeFormat(format); f != "" {
		return "." + f
	}
	return ""
}
