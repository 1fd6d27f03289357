package imaging

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"testing"
)

func TestSniff(t *testing.T) {
	cases := []struct {
		name   string
		header []byte
		want   string
	}{
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0}, "jpg"},
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, "png"},
		{"gif", []byte("GIF89a......"), "gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "webp"},
		{"heic", []byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00"), "heic"},
		{"avif", []byte("\x00\x00\x00\x1cftypavif\x00\x00\x00\x00"), "avif"},
		{"tiff", []byte{0x49, 0x49, 0x2a, 0x00, 0x08}, "tiff"},
		{"bmp", []byte("BM\x00\x00\x00\x00"), "bmp"},
		{"unknown", []byte("hello world"), ""},
	}
	for _, tc := range cases {
		if got := Sniff(tc.header); got != tc.want {
			t.Errorf("%s: Sniff = %q, want %q", tc.name, got, tc.want)
		}
	}
	if got := FormatFromName("IMG_0001.JPEG"); got != "jpg" {
		t.Errorf("FormatFromName = %q", got)
	}
	if got := Extension("tif"); got != ".tiff" {
		t.Errorf("Extension = %q", got)
	}
}

func TestReadMetadataPNGWithAlpha(t *testing.T) {
	data := encodePNG(t, 40, 20, color.NRGBA{R: 255, A: 128})

	meta, err := ReadMetadata(data)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if meta.Format != "png" || meta.Width != 40 || meta.Height != 20 {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if !meta.HasAlpha {
		t.Error("expected alpha for NRGBA png")
	}
	if meta.HasExif {
		t.Error("png without EXIF reported HasExif")
	}
	if meta.Size != int64(len(data)) {
		t.Errorf("size = %d, want %d", meta.Size, len(data))
	}
}

func TestReadMetadataJPEGOrientation(t *testing.T) {
	data := withOrientation(t, encodeJPEG(t, 30, 10), 6)

	meta, err := ReadMetadata(data)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if meta.Format != "jpg" || meta.HasAlpha {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if !meta.HasExif || meta.Orientation != 6 {
		t.Errorf("orientation = %d hasExif = %v, want 6 true", meta.Orientation, meta.HasExif)
	}
}

func TestReadMetadataHEIC(t *testing.T) {
	data := []byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00mif1heic")
	meta, err := ReadMetadata(data)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if meta.Format != "heic" || meta.Width != 0 {
		t.Errorf("unexpected metadata %+v", meta)
	}

	if _, err := ReadMetadata([]byte("not an image")); err == nil {
		t.Error("expected error for unknown data")
	}
}

func TestOrient(t *testing.T) {
	// 3x2 source with a marked top-left pixel
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	mark := color.NRGBA{R: 255, A: 255}
	src.SetNRGBA(0, 0, mark)

	cases := []struct {
		orientation int
		w, h        int
		x, y        int
	}{
		{1, 3, 2, 0, 0},
		{2, 3, 2, 2, 0},
		{3, 3, 2, 2, 1},
		{4, 3, 2, 0, 1},
		{5, 2, 3, 0, 0},
		{6, 2, 3, 1, 0},
		{7, 2, 3, 1, 2},
		{8, 2, 3, 0, 2},
	}
	for _, tc := range cases {
		out := Orient(src, tc.orientation)
		b := out.Bounds()
		if b.Dx() != tc.w || b.Dy() != tc.h {
			t.Errorf("orientation %d: size %dx%d, want %dx%d", tc.orientation, b.Dx(), b.Dy(), tc.w, tc.h)
			continue
		}
		if got := color.NRGBAModel.Convert(out.At(tc.x, tc.y)).(color.NRGBA); got != mark {
			t.Errorf("orientation %d: mark not at (%d,%d)", tc.orientation, tc.x, tc.y)
		}
	}
}

func TestDrawSurfaceRender(t *testing.T) {
	s := NewDrawSurface()
	input := encodePNG(t, 100, 50, color.NRGBA{G: 200, A: 255})

	out, err := s.Render(context.Background(), input, RenderRequest{Width: 40, Height: 20, Format: "jpeg"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if format != "jpeg" || cfg.Width != 40 || cfg.Height != 20 {
		t.Errorf("got %s %dx%d", format, cfg.Width, cfg.Height)
	}

	out, err = s.Render(context.Background(), input, RenderRequest{Width: 10, Height: 20, Orientation: 6, Format: "png"})
	if err != nil {
		t.Fatalf("Render png: %v", err)
	}
	cfg, _, _ = image.DecodeConfig(bytes.NewReader(out))
	if cfg.Width != 10 || cfg.Height != 20 {
		t.Errorf("png output %dx%d", cfg.Width, cfg.Height)
	}
}

func TestDrawSurfaceUnsupported(t *testing.T) {
	s := NewDrawSurface()
	if s.CanEncode("webp") || s.CanEncode("avif") {
		t.Error("draw surface should not claim webp/avif")
	}
	_, err := s.Render(context.Background(), encodePNG(t, 2, 2, color.White), RenderRequest{Format: "webp"})
	if !errors.Is(err, ErrUnsupportedEncode) {
		t.Errorf("expected ErrUnsupportedEncode, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Render(ctx, encodePNG(t, 2, 2, color.White), RenderRequest{Format: "png"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func encodePNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// withOrientation inserts an APP1 EXIF segment carrying only the Orientation
// tag right after the SOI marker.
func withOrientation(t *testing.T, jpg []byte, orientation uint16) []byte {
	t.Helper()
	var tiff bytes.Buffer
	tiff.Write([]byte{0x49, 0x49, 0x2a, 0x00})
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(8))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(1))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0x0112))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(3))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(1))
	_ = binary.Write(&tiff, binary.LittleEndian, orientation)
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(0))

	app1 := append([]byte("Exif\x00\x00"), tiff.Bytes()...)
	var out bytes.Buffer
	out.Write(jpg[:2])
	out.Write([]byte{0xff, 0xe1})
	_ = binary.Write(&out, binary.BigEndian, uint16(len(app1)+2))
	out.Write(app1)
	out.Write(jpg[2:])
	return out.Bytes()
}

func TestReadMetadataOpaquePNG(t *testing.T) {
	meta, err := ReadMetadata(encodePNG(t, 8, 8, color.NRGBA{B: 255, A: 255}))
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if meta.HasAlpha {
		t.Error("opaque png reported alpha")
	}
}

func TestWithinPixelLimit(t *testing.T) {
	huge := math.MaxInt / 2
	tests := []struct {
		w, h int
		want bool
	}{
		{100, 100, true},
		{MaxPixels, 1, true},
		{MaxPixels, 2, false},
		{0, 10, false},
		{-5, 10, false},
		{huge, huge, false},
	}
	for _, tt := range tests {
		if got := WithinPixelLimit(tt.w, tt.h); got != tt.want {
			t.Errorf("WithinPixelLimit(%d, %d) = %v, want %v", tt.w, tt.h, got, tt.want)
		}
	}
}

func TestDrawSurfaceRejectsHugeCanvas(t *testing.T) {
	huge := math.MaxInt / 2
	_, err := NewDrawSurface().Render(context.Background(), encodePNG(t, 4, 4, color.White), RenderRequest{Width: huge, Height: huge, Format: "jpg"})
	if !errors.Is(err, errTooLarge) {
		t.Errorf("expected errTooLarge, got %v", err)
	}
}
