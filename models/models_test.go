package models

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestCompressionRatioInvariant(t *testing.T) {
	tests := []struct {
		original    int64
		blob        int
		wantRatio   float64
		wantClamped float64
	}{
		{original: 1000, blob: 250, wantRatio: 75, wantClamped: 75},
		{original: 3000, blob: 1000, wantRatio: 66.7, wantClamped: 66.7},
		{original: 100, blob: 150, wantRatio: -50, wantClamped: 0},
		{original: 0, blob: 10, wantRatio: 0, wantClamped: 0},
	}
	for _, tt := range tests {
		res := NewResult(make([]byte, tt.blob), ImageMetadata{Format: "webp"}, tt.original)
		if res.CompressedSize != int64(len(res.Blob)) {
			t.Errorf("CompressedSize %d != blob size %d", res.CompressedSize, len(res.Blob))
		}
		if res.Metadata.Size != res.CompressedSize {
			t.Errorf("metadata size %d != compressed size %d", res.Metadata.Size, res.CompressedSize)
		}
		if math.Abs(res.CompressionRatio-tt.wantRatio) > 1e-9 {
			t.Errorf("ratio(%d,%d) = %v, want %v", tt.original, tt.blob, res.CompressionRatio, tt.wantRatio)
		}
		if res.ClampedRatio() != tt.wantClamped {
			t.Errorf("clamped ratio = %v, want %v", res.ClampedRatio(), tt.wantClamped)
		}
		if res.ContentType != "image/webp" {
			t.Errorf("content type = %s", res.ContentType)
		}
	}
}

func TestEffectiveQuality(t *testing.T) {
	if q := (ConversionSettings{Format: "png", Quality: IntPtr(50)}).EffectiveQuality(); q != nil {
		t.Errorf("png quality should be ignored, got %d", *q)
	}
	if q := (ConversionSettings{Format: "webp", Lossless: true, Quality: IntPtr(50)}).EffectiveQuality(); q != nil {
		t.Errorf("lossless webp quality should be ignored, got %d", *q)
	}
	if q := (ConversionSettings{Format: "jpeg"}).EffectiveQuality(); q == nil || *q != DefaultQuality {
		t.Errorf("expected default quality, got %v", q)
	}
	if q := (ConversionSettings{Format: "jpg", Quality: IntPtr(140)}).EffectiveQuality(); q == nil || *q != 100 {
		t.Errorf("expected clamped quality 100, got %v", q)
	}
}

func TestNormalizeFormat(t *testing.T) {
	cases := map[string]string{
		"JPEG":       "jpg",
		".jpg":       "jpg",
		"image/jpeg": "jpg",
		"image/webp": "webp",
		"tif":        "tiff",
		"HEIC":       "heic",
	}
	for in, want := range cases {
		if got := NormalizeFormat(in); got != want {
			t.Errorf("NormalizeFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileSourceFormat(t *testing.T) {
	f := NewBytesFile("photo.HEIC", "", []byte("x"))
	if got := f.SourceFormat(); got != "heic" {
		t.Errorf("expected heic from extension, got %s", got)
	}
	f = NewBytesFile("upload.bin", "image/png", []byte("x"))
	if got := f.SourceFormat(); got != "png" {
		t.Errorf("expected png from MIME type, got %s", got)
	}
	data, err := f.ReadAll()
	if err != nil || string(data) != "x" {
		t.Errorf("ReadAll = %q, %v", data, err)
	}
	if got := OutputName("dir/photo.final.png", "webp"); got != "photo.final.webp" {
		t.Errorf("OutputName = %s", got)
	}
}

func TestBatchSnapshotIsACopy(t *testing.T) {
	b := &BatchConversion{ID: "b1", TotalFiles: 4, Jobs: []*ConversionJob{{ID: "b1_0", Status: StatusPending}}}
	b.Update(func(b *BatchConversion) {
		b.CompletedFiles = 3
		b.RecomputeProgress()
	})
	snap := b.Snapshot()
	if snap.Progress != 75 {
		t.Errorf("progress = %v, want 75", snap.Progress)
	}
	snap.Jobs[0].Status = StatusCompleted
	if b.Jobs[0].Status != StatusPending {
		t.Error("mutating a snapshot must not touch the live batch")
	}
}

func TestAggregateErrorUnwraps(t *testing.T) {
	local := &ProcessingError{Op: "encode", Err: errors.New("boom")}
	edge := &EdgeProcessingError{StatusCode: 502, Message: "bad gateway"}
	err := error(&AggregateProcessingError{Local: local, Edge: edge})

	var pe *ProcessingError
	if !errors.As(err, &pe) {
		t.Error("expected ProcessingError in chain")
	}
	var ee *EdgeProcessingError
	if !errors.As(err, &ee) || ee.StatusCode != 502 {
		t.Error("expected EdgeProcessingError in chain")
	}
	if JobErrorMessage(nil) != "Unknown error" {
		t.Error("nil error should map to Unknown error")
	}
}

func TestParamsRoundTrip(t *testing.T) {
	in := Params{
		RangeParam{Name: "quality", Value: 70, Min: 0, Max: 100},
		BoolParam{Name: "progressive", Value: true},
		SelectParam{Name: "format", Value: "webp", Options: []string{"jpg", "webp"}},
		ColorParam{Name: "matte", Value: "#ffffff"},
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Params
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d params, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i].Kind() != in[i].Kind() || out[i].ParamName() != in[i].ParamName() {
			t.Errorf("param %d: got %s/%s, want %s/%s", i, out[i].Kind(), out[i].ParamName(), in[i].Kind(), in[i].ParamName())
		}
	}

	if err := json.Unmarshal([]byte(`[{"type":"matrix"}]`), &out); err == nil {
		t.Error("expected unknown type to fail")
	}
}

func TestPresetApply(t *testing.T) {
	p := Preset{
		Name:     "web",
		Settings: ConversionSettings{Format: "jpg"},
		Params: Params{
			RangeParam{Name: "quality", Value: 72, Min: 0, Max: 100},
			RangeParam{Name: "width", Value: 1200, Min: 1, Max: 8000},
			BoolParam{Name: "progressive", Value: true},
			SelectParam{Name: "format", Value: "webp", Options: []string{"jpg", "webp"}},
		},
	}
	s, err := p.Apply()
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if s.Format != "webp" || *s.Quality != 72 || *s.Width != 1200 || !s.Progressive {
		t.Errorf("unexpected settings %+v", s)
	}

	p.Params = Params{ColorParam{Name: "matte", Value: "white"}}
	if _, err := p.Apply(); err == nil {
		t.Error("expected invalid color to fail")
	}
}
