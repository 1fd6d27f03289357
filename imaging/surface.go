package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	"pixconv/models"
)

// MaxPixels bounds the canvas a surface will allocate.
const MaxPixels = 100_000_000

// ErrUnsupportedEncode is returned when a surface cannot produce the target
// format on its own (webp, avif and the HEIF family need a codec).
var ErrUnsupportedEncode = errors.New("surface cannot encode format")

var errTooLarge = errors.New("image exceeds the pixel limit")

// WithinPixelLimit reports whether a w x h canvas is positive and no larger
// than MaxPixels. It never multiplies, so huge sides cannot overflow.
func WithinPixelLimit(w, h int) bool {
	return w > 0 && h > 0 && w <= MaxPixels/h
}

// RenderRequest describes one decode, orient, scale and encode pass.
type RenderRequest struct {
	Width       int
	Height      int
	Orientation int
	Format      string
	Quality     *int
	Progressive bool
}

// Surface is the drawing primitive used when no codec is available.
type Surface interface {
	CanEncode(format string) bool
	Render(ctx context.Context, input []byte, req RenderRequest) ([]byte, error)
}

// DrawSurface renders with the Go image packages.
type DrawSurface struct {
	// Matte fills transparent regions for targets without alpha.
	Matte color.Color
}

// NewDrawSurface returns a surface with a white matte.
func NewDrawSurface() *DrawSurface {
	return &DrawSurface{Matte: color.White}
}

func (s *DrawSurface) CanEncode(format string) bool {
	switch models.NormalizeFormat(format) {
	case "jpg", "png", "gif", "bmp", "tiff":
		return true
	}
	return false
}

func (s *DrawSurface) Render(ctx context.Context, input []byte, req RenderRequest) ([]byte, error) {
	format := models.NormalizeFormat(req.Format)
	if !s.CanEncode(format) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncode, format)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	if !WithinPixelLimit(cfg.Width, cfg.Height) {
		return nil, fmt.Errorf("%w: %dx%d", errTooLarge, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src = Orient(src, req.Orientation)
	b := src.Bounds()
	w, h := req.Width, req.Height
	if w <= 0 || h <= 0 {
		w, h = b.Dx(), b.Dy()
	}
	if !WithinPixelLimit(w, h) {
		return nil, fmt.Errorf("%w: %dx%d", errTooLarge, w, h)
	}

	canvas := image.NewNRGBA(image.Rect(0, 0, w, h))
	if !models.SupportsAlpha(format) && s.Matte != nil {
		xdraw.Draw(canvas, canvas.Bounds(), image.NewUniform(s.Matte), image.Point{}, xdraw.Src)
		xdraw.CatmullRom.Scale(canvas, canvas.Bounds(), src, b, xdraw.Over, nil)
	} else {
		xdraw.CatmullRom.Scale(canvas, canvas.Bounds(), src, b, xdraw.Src, nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return encode(canvas, format, req)
}

func encode(img image.Image, format string, req RenderRequest) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case "jpg":
		q := models.DefaultQuality
		if req.Quality != nil {
			q = *req.Quality
		}
		// image/jpeg writes baseline only; progressive is a codec feature.
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: q})
	case "png":
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		err = enc.Encode(&buf, img)
	case "gif":
		err = gif.Encode(&buf, img, nil)
	case "bmp":
		err = bmp.Encode(&buf, img)
	case "tiff":
		err = tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncode, format)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}
