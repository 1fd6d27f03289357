package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	exif "github.com/dsoprea/go-exif/v3"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"pixconv/models"
)

// ReadMetadata derives ImageMetadata from encoded bytes. Formats Go cannot
// decode (HEIC/HEIF/AVIF) still report their sniffed format and size.
func ReadMetadata(data []byte) (models.ImageMetadata, error) {
	meta := models.ImageMetadata{
		Format:     Sniff(data),
		Size:       int64(len(data)),
		ColorSpace: "srgb",
	}

	orientation, hasExif := readExif(data)
	meta.HasExif = hasExif
	meta.Orientation = orientation

	if !Decodable(meta.Format) {
		if meta.Format == "" {
			return meta, fmt.Errorf("unrecognized image data")
		}
		return meta, nil
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return meta, fmt.Errorf("decode %s header: %w", meta.Format, err)
	}
	meta.Format = models.NormalizeFormat(format)
	meta.Width = cfg.Width
	meta.Height = cfg.Height
	meta.HasAlpha = modelHasAlpha(cfg.ColorModel)
	if meta.Format == "png" {
		meta.HasAlpha = pngHasAlpha(data)
	}
	meta.ColorSpace = colorSpace(cfg.ColorModel)
	return meta, nil
}

// Decodable reports whether the registered Go decoders handle format.
func Decodable(format string) bool {
	switch models.NormalizeFormat(format) {
	case "jpg", "png", "gif", "webp", "bmp", "tiff":
		return true
	}
	return false
}

// readExif returns the EXIF orientation (1 when absent) and whether an EXIF
// block is present at all.
func readExif(data []byte) (int, bool) {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		return 1, false
	}

	tags, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return 1, true
	}
	for _, tag := range tags {
		if tag.TagName != "Orientation" {
			continue
		}
		if values, ok := tag.Value.([]uint16); ok && len(values) > 0 {
			if o := int(values[0]); o >= 1 && o <= 8 {
				return o, true
			}
		}
	}
	return 1, true
}

func modelHasAlpha(m color.Model) bool {
	switch m {
	case color.RGBAModel, color.RGBA64Model, color.NRGBAModel, color.NRGBA64Model,
		color.AlphaModel, color.Alpha16Model, color.NYCbCrAModel:
		return true
	case color.GrayModel, color.Gray16Model, color.YCbCrModel, color.CMYKModel:
		return false
	}
	if p, ok := m.(color.Palette); ok {
		for _, c := range p {
			if _, _, _, a := c.RGBA(); a < 0xffff {
				return true
			}
		}
	}
	return false
}

// pngHasAlpha reads the IHDR colour type and looks for a tRNS chunk ahead of
// the image data. image/png reports opaque truecolour as RGBA, so the colour
// model alone over-reports alpha.
func pngHasAlpha(data []byte) bool {
	const colorTypeOffset = 25
	if len(data) <= colorTypeOffset {
		return false
	}
	switch data[colorTypeOffset] {
	case 4, 6:
		return true
	}
	head := data
	if i := bytes.Index(data, []byte("IDAT")); i >= 0 {
		head = data[:i]
	}
	return bytes.Contains(head, []byte("tRNS"))
}

func colorSpace(m color.Model) string {
	switch m {
	case color.GrayModel, color.Gray16Model:
		return "gray"
	case color.CMYKModel:
		return "cmyk"
	}
	return "srgb"
}

// ImageHasAlpha reports whether a decoded image has any non-opaque pixel.
func ImageHasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return modelHasAlpha(img.ColorModel())
}
