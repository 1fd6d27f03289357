package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"pixconv/batch"
	"pixconv/config"
	"pixconv/logger"
	"pixconv/models"
	"pixconv/packaging"
	"pixconv/tui"
)

type convertOptions struct {
	format       string
	quality      int
	width        int
	height       int
	lossless     bool
	progressive  bool
	preserveExif bool
	preset       string
	output       string
	edgeURL      string
	concurrency  int
	deviceMemGB  float64
	noTUI        bool
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	opts := &convertOptions{}
	cmd := &cobra.Command{
		Use:   "convert [flags] <files...>",
		Short: "Convert images as one batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			settings, err := opts.settings(cmd.Flags())
			if err != nil {
				return err
			}
			if opts.edgeURL != "" {
				cfg.Edge.URL = opts.edgeURL
			}
			if opts.concurrency > 0 {
				cfg.Scheduler.MaxConcurrentJobs = opts.concurrency
			}
			var deviceMemory *float64
			if opts.deviceMemGB > 0 {
				deviceMemory = &opts.deviceMemGB
			}
			return runConvert(cmd.Context(), cmd.OutOrStdout(), cfg, args, settings, deviceMemory, opts)
		},
	}
	opts.bind(cmd.Flags())
	return cmd
}

func (o *convertOptions) bind(f *pflag.FlagSet) {
	f.StringVarP(&o.format, "format", "f", "", "target format (jpg, png, webp, avif, gif, bmp, tiff)")
	f.IntVarP(&o.quality, "quality", "q", models.DefaultQuality, "quality for lossy formats (0-100)")
	f.IntVar(&o.width, "width", 0, "target width in pixels")
	f.IntVar(&o.height, "height", 0, "target height in pixels")
	f.BoolVar(&o.lossless, "lossless", false, "request lossless encoding")
	f.BoolVar(&o.progressive, "progressive", false, "request progressive/interlaced output")
	f.BoolVar(&o.preserveExif, "preserve-exif", false, "keep EXIF metadata where the codec supports it")
	f.StringVar(&o.preset, "preset", "", "JSON preset file with base settings and parameters")
	f.StringVarP(&o.output, "output", "o", "converted", "destination folder for converted files")
	f.StringVar(&o.edgeURL, "edge", "", "edge endpoint URL (overrides config)")
	f.IntVar(&o.concurrency, "concurrency", 0, "maximum concurrent jobs (1-10)")
	f.Float64Var(&o.deviceMemGB, "device-memory-gb", 0, "device memory hint used for mode selection")
	f.BoolVar(&o.noTUI, "no-tui", false, "disable the live progress view")
}

// settings builds conversion settings from the preset (if any), then lets
// explicitly set flags override it.
func (o *convertOptions) settings(f *pflag.FlagSet) (models.ConversionSettings, error) {
	var s models.ConversionSettings
	if o.preset != "" {
		data, err := os.ReadFile(o.preset)
		if err != nil {
			return s, fmt.Errorf("read preset: %w", err)
		}
		var preset models.Preset
		if err := json.Unmarshal(data, &preset); err != nil {
			return s, fmt.Errorf("parse preset %s: %w", o.preset, err)
		}
		if s, err = preset.Apply(); err != nil {
			return s, fmt.Errorf("apply preset %s: %w", preset.Name, err)
		}
	}

	changed := f.Changed
	if changed("format") || s.Format == "" {
		s.Format = models.NormalizeFormat(o.format)
	}
	if changed("quality") || s.Quality == nil {
		s.Quality = models.IntPtr(o.quality)
	}
	if changed("width") && o.width > 0 {
		s.Width = models.IntPtr(o.width)
	}
	if changed("height") && o.height > 0 {
		s.Height = models.IntPtr(o.height)
	}
	if changed("lossless") {
		s.Lossless = o.lossless
	}
	if changed("progressive") {
		s.Progressive = o.progressive
	}
	if changed("preserve-exif") {
		s.PreserveExif = o.preserveExif
	}
	return s, nil
}

func runConvert(ctx context.Context, out io.Writer, cfg *config.Config, paths []string, settings models.ConversionSettings, deviceMemory *float64, opts *convertOptions) error {
	files := make([]*models.File, 0, len(paths))
	for _, p := range paths {
		f, err := models.NewDiskFile(p)
		if err != nil {
			return err
		}
		files = append(files, f)
	}
	if err := os.MkdirAll(opts.output, 0o755); err != nil {
		return err
	}

	p := newPipeline(ctx, cfg, deviceMemory)
	defer p.Close(context.Background())

	useTUI := !opts.noTUI && isTerminal(out)
	updates := make(chan tui.Update, len(files))
	sched := batch.NewScheduler(ctx, p.orchestrator, batch.Hooks{
		OnJobDone: func(_ string, job models.ConversionJob) {
			u := tui.Update{FileName: job.FileName, Status: job.Status, Error: job.Error}
			if job.Result != nil {
				u.Mode = job.Result.Mode
			}
			if useTUI {
				updates <- u
				return
			}
			if job.Status == models.StatusCompleted {
				logger.Infof("[convert] %s done (%s)", job.FileName, u.Mode)
			} else {
				logger.Warnf("[convert] %s failed: %s", job.FileName, job.Error)
			}
		},
	})
	sched.SetMaxConcurrentJobs(cfg.Scheduler.MaxConcurrentJobs)

	var program *tea.Program
	uiDone := make(chan struct{})
	if useTUI {
		program = tea.NewProgram(tui.NewModel(len(files), updates), tea.WithOutput(out))
		go func() {
			_, _ = program.Run()
			close(uiDone)
		}()
	} else {
		close(uiDone)
	}

	b := sched.CreateBatch(files, settings)
	if err := sched.Wait(ctx); err != nil {
		// jobs may still be running and reporting; leave updates open
		if program != nil {
			program.Quit()
		}
		<-uiDone
		return err
	}
	close(updates)
	<-uiDone

	snap := b.Snapshot()
	written, err := writeOutputs(opts.output, snap)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, summaryTable(snap))
	outPath := opts.output
	if abs, absErr := filepath.Abs(outPath); absErr == nil {
		outPath = abs
	}
	fmt.Fprintf(out, "%d files written to: %s\n", written, outPath)

	if failed := snap.TotalFiles - snap.CompletedFiles; failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, snap.TotalFiles)
	}
	return nil
}

func writeOutputs(dir string, snap models.BatchSnapshot) (int, error) {
	written := 0
	used := make(map[string]int)
	for _, job := range snap.Jobs {
		if job.Status != models.StatusCompleted || job.Result == nil {
			continue
		}
		name := packaging.UniqueName(job.Result.Filename, job.FileName, job.Settings.TargetFormat(), used)
		if err := os.WriteFile(filepath.Join(dir, name), job.Result.Blob, 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", name, err)
		}
		written++
	}
	return written, nil
}

func summaryTable(snap models.BatchSnapshot) string {
	rows := make([][]string, 0, len(snap.Jobs))
	for _, job := range snap.Jobs {
		row := []string{job.FileName, string(job.Status), "", "", "", "", ""}
		if r := job.Result; r != nil {
			row[2] = string(r.Mode)
			row[3] = strconv.FormatInt(r.OriginalSize, 10)
			row[4] = strconv.FormatInt(r.CompressedSize, 10)
			row[5] = strconv.FormatFloat(r.ClampedRatio(), 'f', 1, 64) + "%"
			row[6] = r.ProcessingTime.Round(time.Millisecond).String()
		} else {
			row[6] = job.Error
		}
		rows = append(rows, row)
	}
	return renderTable(
		[]string{"File", "Status", "Mode", "Original", "Output", "Saved", "Time / Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
