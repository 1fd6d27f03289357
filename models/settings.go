package models

// DefaultQuality is used when a lossy conversion does not name a quality.
const DefaultQuality = 90

// ConversionSettings describes the requested output. It is supplied by the
// caller and treated as immutable for the lifetime of a conversion.
type ConversionSettings struct {
	Format               string `json:"format"`
	Quality              *int   `json:"quality,omitempty"`
	Width                *int   `json:"width,omitempty"`
	Height               *int   `json:"height,omitempty"`
	PreserveExif         bool   `json:"preserveExif,omitempty"`
	PreserveColorProfile bool   `json:"preserveColorProfile,omitempty"`
	Progressive          bool   `json:"progressive,omitempty"`
	Lossless             bool   `json:"lossless,omitempty"`
}

// TargetFormat returns the normalized output format.
func (s ConversionSettings) TargetFormat() string {
	return NormalizeFormat(s.Format)
}

// EffectiveQuality returns the quality to encode with, or nil when quality is
// ignored (lossless target formats or lossless mode).
func (s ConversionSettings) EffectiveQuality() *int {
	if s.Lossless || IsLosslessFormat(s.Format) {
		return nil
	}
	q := DefaultQuality
	if s.Quality != nil {
		q = *s.Quality
	}
	if q < 0 {
		q = 0
	}
	if q > 100 {
		q = 100
	}
	return &q
}

// IntPtr is a small helper for building settings literals.
func IntPtr(v int) *int { return &v }
