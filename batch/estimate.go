package batch

import (
	"math"

	"pixconv/models"
)

// typicalRatio is the output/input size ratio seen for each target format
// at default quality.
var typicalRatio = map[string]float64{
	"jpg":  0.6,
	"webp": 0.45,
	"avif": 0.35,
	"png":  1.0,
	"gif":  0.9,
	"bmp":  3.0,
	"tiff": 1.5,
}

// EstimateSize guesses the output size of a conversion before it runs.
// Lossy targets scale with quality around the default of 90.
func EstimateSize(size int64, settings models.ConversionSettings) int64 {
	if size <= 0 {
		return 0
	}
	ratio, ok := typicalRatio[settings.TargetFormat()]
	if !ok {
		ratio = 1
	}
	if q := settings.EffectiveQuality(); q != nil {
		ratio *= 0.4 + 0.6*float64(*q)/float64(models.DefaultQuality)
	}
	est := int64(math.Round(float64(size) * ratio))
	return max(est, 1)
}
