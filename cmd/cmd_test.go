package cmd

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"pixconv/config"
	"pixconv/models"
	"pixconv/packaging"
)

func TestRenderTable(t *testing.T) {
	out := renderTable(
		[]string{"Name", "Size"},
		[][]string{{"a.webp", "10"}, {"b"}},
		[]columnAlignment{alignLeft, alignRight},
	)
	for _, want := range []string{"Name", "Size", "a.webp", "10", "b"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if renderTable(nil, nil, nil) != "" {
		t.Error("empty header should render nothing")
	}
}

func TestCodecTable(t *testing.T) {
	cfg := config.Default()
	cfg.Loader.WASMBaseURL = "https://cdn.example"
	out := codecTable(cfg)
	if !strings.Contains(out, "https://cdn.example/wasm/libwebp.wasm") {
		t.Errorf("wasm source missing:\n%s", out)
	}
	for _, c := range cfg.Codecs {
		if !strings.Contains(out, c.Name) {
			t.Errorf("codec %s missing", c.Name)
		}
	}
}

func parseConvertFlags(t *testing.T, args ...string) (*convertOptions, *pflag.FlagSet) {
	t.Helper()
	opts := &convertOptions{}
	fs := pflag.NewFlagSet("convert", pflag.ContinueOnError)
	opts.bind(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return opts, fs
}

func TestSettingsFromFlags(t *testing.T) {
	opts, fs := parseConvertFlags(t, "-f", "JPEG", "-q", "70", "--width", "800", "--progressive")
	s, err := opts.settings(fs)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if s.Format != "jpg" || *s.Quality != 70 || *s.Width != 800 || s.Height != nil || !s.Progressive {
		t.Errorf("unexpected settings %+v", s)
	}
}

func TestSettingsPresetWithOverrides(t *testing.T) {
	preset := `{
		"name": "web",
		"settings": {"format": "webp", "quality": 60},
		"params": [
			{"type": "range", "name": "width", "value": 1200, "min": 1, "max": 4000},
			{"type": "bool", "name": "lossless", "value": true}
		]
	}`
	path := filepath.Join(t.TempDir(), "web.json")
	if err := os.WriteFile(path, []byte(preset), 0o644); err != nil {
		t.Fatal(err)
	}

	opts, fs := parseConvertFlags(t, "--preset", path, "-q", "85")
	s, err := opts.settings(fs)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if s.Format != "webp" || *s.Width != 1200 || !s.Lossless {
		t.Errorf("preset not applied: %+v", s)
	}
	if *s.Quality != 85 {
		t.Errorf("explicit quality should win, got %d", *s.Quality)
	}

	opts, fs = parseConvertFlags(t, "--preset", filepath.Join(t.TempDir(), "missing.json"))
	if _, err := opts.settings(fs); err == nil {
		t.Error("missing preset should fail")
	}
}

func openTestStores(t *testing.T) *stores {
	t.Helper()
	t.Setenv("PIXCONV_DATA_DIR", t.TempDir())
	st, err := openStores()
	if err != nil {
		t.Fatalf("openStores: %v", err)
	}
	t.Cleanup(st.Close)
	return st
}

func TestHistoryHooksAndCleanup(t *testing.T) {
	st := openTestStores(t)
	serveDir := t.TempDir()
	t.Setenv("PIXCONV_SERVE_DIR", serveDir)

	packager := &packaging.Packager{Backend: "directServe", Folder: "batches"}
	hooks := historyHooks(context.Background(), st, packager)

	res := models.NewResult([]byte("webp-bytes"), models.ImageMetadata{Format: "webp"}, 100)
	res.Filename = "a.webp"
	ok := models.ConversionJob{ID: "batch_x_0", FileName: "a.png", Status: models.StatusCompleted, Result: res}
	bad := models.ConversionJob{ID: "batch_x_1", FileName: "b.png", Status: models.StatusError, Error: "decode failed"}
	hooks.OnJobDone("batch_x", ok)
	hooks.OnJobDone("batch_x", bad)

	if rec, err := st.success.GetSuccess("batch_x_0"); err != nil || rec == nil {
		t.Fatalf("success not recorded: %v %v", rec, err)
	}
	if rec, err := st.failures.GetFailure("batch_x_1"); err != nil || rec == nil || rec.Error != "decode failed" {
		t.Fatalf("failure not recorded: %+v %v", rec, err)
	}

	hooks.OnBatchDone(models.BatchSnapshot{ID: "batch_x", Jobs: []models.ConversionJob{ok}})
	if _, err := os.Stat(filepath.Join(serveDir, "batches", "batch_x.zip")); err != nil {
		t.Errorf("archive not written: %v", err)
	}

	runCleanup(st, time.Hour)
	if recs, _ := st.success.ListSuccessRecords(""); len(recs) != 1 {
		t.Errorf("fresh records should survive, got %d", len(recs))
	}
	runCleanup(st, -time.Hour)
	if recs, _ := st.success.ListSuccessRecords(""); len(recs) != 0 {
		t.Errorf("success records left: %d", len(recs))
	}
	if recs, _ := st.failures.ListFailures(""); len(recs) != 0 {
		t.Errorf("failure records left: %d", len(recs))
	}
}

func writeTestPNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 8), uint8(y * 10), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunConvertWritesOutputs(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "photo.png")
	writeTestPNG(t, in)

	cfg := config.Default()
	cfg.Codecs = nil
	cfg.Edge.URL = ""

	opts := &convertOptions{output: filepath.Join(dir, "out"), noTUI: true}
	settings := models.ConversionSettings{Format: "jpg", Quality: models.IntPtr(80), Width: models.IntPtr(16)}

	var out bytes.Buffer
	if err := runConvert(context.Background(), &out, cfg, []string{in}, settings, nil, opts); err != nil {
		t.Fatalf("runConvert: %v\n%s", err, out.String())
	}

	f, err := os.Open(filepath.Join(opts.output, "photo.jpg"))
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 16 || b.Dy() != 12 {
		t.Errorf("output is %dx%d, want 16x12", b.Dx(), b.Dy())
	}
	if !strings.Contains(out.String(), "photo.png") || !strings.Contains(out.String(), "1 files written") {
		t.Errorf("summary missing:\n%s", out.String())
	}
}

func TestRunConvertReportsFailures(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.png")
	writeTestPNG(t, good)
	broken := filepath.Join(dir, "broken.png")
	if err := os.WriteFile(broken, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Codecs = nil
	cfg.Edge.URL = ""
	opts := &convertOptions{output: filepath.Join(dir, "out"), noTUI: true}

	var out bytes.Buffer
	err := runConvert(context.Background(), &out, cfg, []string{good, broken}, models.ConversionSettings{Format: "png"}, nil, opts)
	if err == nil || !strings.Contains(err.Error(), "1 of 2 files failed") {
		t.Fatalf("expected failure summary, got %v", err)
	}
	if !strings.Contains(out.String(), "broken.png") {
		t.Errorf("failed file missing from summary:\n%s", out.String())
	}
}
