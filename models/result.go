package models

import (
	"math"
	"time"
)

// ImageMetadata describes an encoded image.
type ImageMetadata struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Format      string `json:"format"`
	Size        int64  `json:"size"`
	HasAlpha    bool   `json:"hasAlpha"`
	HasExif     bool   `json:"hasExif"`
	ColorSpace  string `json:"colorSpace"`
	Orientation int    `json:"orientation,omitempty"`
}

// ConversionResult is produced by every execution path, local or edge.
type ConversionResult struct {
	Blob             []byte        `json:"-"`
	ContentType      string        `json:"contentType"`
	Filename         string        `json:"filename"`
	Metadata         ImageMetadata `json:"metadata"`
	OriginalSize     int64         `json:"originalSize"`
	CompressedSize   int64         `json:"compressedSize"`
	CompressionRatio float64       `json:"compressionRatio"`
	ProcessingTime   time.Duration `json:"processingTime"`
	Mode             Mode          `json:"mode,omitempty"`
}

// NewResult builds a result whose CompressedSize always matches the blob and
// whose ratio is derived from the sizes.
func NewResult(blob []byte, meta ImageMetadata, originalSize int64) *ConversionResult {
	compressed := int64(len(blob))
	meta.Size = compressed
	return &ConversionResult{
		Blob:             blob,
		ContentType:      MIMEType(meta.Format),
		Metadata:         meta,
		OriginalSize:     originalSize,
		CompressedSize:   compressed,
		CompressionRatio: CompressionRatio(originalSize, compressed),
	}
}

// CompressionRatio returns (original-compressed)/original*100 rounded to one
// decimal place. A zero original size yields 0.
func CompressionRatio(original, compressed int64) float64 {
	if original <= 0 {
		return 0
	}
	ratio := float64(original-compressed) / float64(original) * 100
	return math.Round(ratio*10) / 10
}

// ClampedRatio returns the compression ratio clamped to [0,100] for display.
func (r *ConversionResult) ClampedRatio() float64 {
	return math.Max(0, math.Min(100, r.CompressionRatio))
}

// ProcessingMillis returns the processing time in whole milliseconds.
func (r *ConversionResult) ProcessingMillis() int64 {
	return r.ProcessingTime.Milliseconds()
}
