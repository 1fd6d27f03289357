package local

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"pixconv/codec"
	"pixconv/imaging"
	"pixconv/logger"
	"pixconv/models"
	"pixconv/worker"
)

var (
	errNoSurface     = errors.New("no rendering surface available")
	errNotApplicable = errors.New("strategy not applicable")
	errBadDimensions = errors.New("output dimensions must be positive and within the pixel limit")
)

// Converter performs conversions in-process, preferring a loaded codec, then
// the worker pool, then the drawing surface on the calling goroutine.
type Converter struct {
	loader  *codec.Loader
	surface imaging.Surface
	pool    *worker.Pool[renderTask, []byte]
}

type renderTask struct {
	input []byte
	req   imaging.RenderRequest
}

// Options configures a Converter. A nil Surface leaves the converter unable
// to run; a nil Loader skips codecs; Workers <= 0 disables the pool.
type Options struct {
	Loader        *codec.Loader
	Surface       imaging.Surface
	Workers       int
	WorkerTimeout time.Duration
}

func New(opts Options) *Converter {
	c := &Converter{loader: opts.Loader, surface: opts.Surface}
	if opts.Workers > 0 && opts.Surface != nil {
		surface := opts.Surface
		c.pool = worker.NewPool(opts.Workers, opts.WorkerTimeout, func(ctx context.Context, t renderTask) ([]byte, error) {
			return surface.Render(ctx, t.input, t.req)
		})
	}
	return c
}

// Close stops the worker pool.
func (c *Converter) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}

// conversion carries everything the strategies need for one call.
type conversion struct {
	input    []byte
	meta     models.ImageMetadata
	src, tgt string
	width    int
	height   int
	settings models.ConversionSettings
}

type strategy struct {
	name string
	run  func(ctx context.Context, conv *conversion) ([]byte, error)
}

// ConvertImage converts file according to settings.
func (c *Converter) ConvertImage(ctx context.Context, file *models.File, settings models.ConversionSettings) (*models.ConversionResult, error) {
	if c.surface == nil {
		return nil, &models.ProcessingError{Op: "setup", Err: errNoSurface}
	}
	start := time.Now()

	data, err := file.ReadAll()
	if err != nil {
		return nil, &models.ProcessingError{Op: "read", Err: err}
	}
	meta, err := imaging.ReadMetadata(data)
	if err != nil {
		return nil, &models.ProcessingError{Op: "metadata", Err: err}
	}

	conv := &conversion{
		input:    data,
		meta:     meta,
		src:      meta.Format,
		tgt:      settings.TargetFormat(),
		settings: settings,
	}
	if conv.src == "" {
		conv.src = file.SourceFormat()
	}
	if conv.tgt == "" {
		conv.tgt = conv.src
	}
	srcW, srcH := meta.Width, meta.Height
	if meta.Orientation >= 5 {
		srcW, srcH = srcH, srcW
	}
	conv.width, conv.height = CalculateDimensions(srcW, srcH, settings.Width, settings.Height)
	if !validDimensions(conv.width, conv.height, settings) {
		return nil, &models.ProcessingError{Op: "dimensions", Err: fmt.Errorf("%w: %dx%d", errBadDimensions, conv.width, conv.height)}
	}

	out, used, err := firstSuccess(ctx, conv, []strategy{
		{"codec", c.viaCodec},
		{"worker", c.viaWorker},
		{"surface", c.viaSurface},
	})
	if err != nil {
		return nil, &models.ProcessingError{Op: "convert " + conv.src + " to " + conv.tgt, Err: err}
	}
	logger.Debugf("[local] %s converted %s -> %s via %s", file.Name, conv.src, conv.tgt, used)

	size := file.Size
	if size <= 0 {
		size = int64(len(data))
	}
	res := models.NewResult(out, outputMetadata(out, conv), size)
	res.Filename = models.OutputName(file.Name, conv.tgt)
	res.Mode = models.ModeLocal
	res.ProcessingTime = time.Since(start)
	return res, nil
}

// firstSuccess runs strategies in order and returns the first output.
// Strategies answering errNotApplicable are skipped; other failures are
// collected and the next strategy is tried.
func firstSuccess(ctx context.Context, conv *conversion, strategies []strategy) ([]byte, string, error) {
	var failures []error
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		out, err := s.run(ctx, conv)
		if err == nil {
			return out, s.name, nil
		}
		if errors.Is(err, errNotApplicable) {
			continue
		}
		logger.Debugf("[local] %s strategy failed: %v", s.name, err)
		failures = append(failures, fmt.Errorf("%s: %w", s.name, err))
	}
	if len(failures) == 0 {
		return nil, "", fmt.Errorf("no local strategy can produce %s from %s", conv.tgt, conv.src)
	}
	return nil, "", errors.Join(failures...)
}

func (c *Converter) viaCodec(ctx context.Context, conv *conversion) ([]byte, error) {
	if c.loader == nil {
		return nil, errNotApplicable
	}
	name, ok := c.loader.EnsureCodecLoaded(ctx, conv.src, conv.tgt, int64(len(conv.input)))
	if !ok {
		return nil, errNotApplicable
	}
	h, ok := c.loader.Handle(name)
	if !ok {
		return nil, errNotApplicable
	}
	return h.Convert(ctx, conv.input, codec.Request{
		SourceFormat: conv.src,
		TargetFormat: conv.tgt,
		Width:        conv.width,
		Height:       conv.height,
		Quality:      conv.settings.EffectiveQuality(),
		Progressive:  conv.settings.Progressive,
		Lossless:     conv.settings.Lossless,
	})
}

func (c *Converter) viaWorker(ctx context.Context, conv *conversion) ([]byte, error) {
	if c.pool == nil || !c.surfaceCan(conv) {
		return nil, errNotApplicable
	}
	return c.pool.Do(ctx, renderTask{input: conv.input, req: renderRequest(conv)})
}

func (c *Converter) viaSurface(ctx context.Context, conv *conversion) ([]byte, error) {
	if !c.surfaceCan(conv) {
		return nil, errNotApplicable
	}
	return c.surface.Render(ctx, conv.input, renderRequest(conv))
}

func (c *Converter) surfaceCan(conv *conversion) bool {
	return imaging.Decodable(conv.src) && c.surface.CanEncode(conv.tgt)
}

func renderRequest(conv *conversion) imaging.RenderRequest {
	return imaging.RenderRequest{
		Width:       conv.width,
		Height:      conv.height,
		Orientation: conv.meta.Orientation,
		Format:      conv.tgt,
		Quality:     conv.settings.EffectiveQuality(),
		Progressive: conv.settings.Progressive,
	}
}

func outputMetadata(out []byte, conv *conversion) models.ImageMetadata {
	meta := models.ImageMetadata{
		Width:      conv.width,
		Height:     conv.height,
		Format:     conv.tgt,
		ColorSpace: conv.meta.ColorSpace,
	}
	if m, err := imaging.ReadMetadata(out); err == nil && m.Width > 0 {
		meta.Width, meta.Height = m.Width, m.Height
		meta.HasExif = m.HasExif
	}
	meta.HasAlpha = models.SupportsAlpha(conv.tgt) && conv.meta.HasAlpha
	meta.HasExif = meta.HasExif && conv.settings.PreserveExif
	return meta
}

// validDimensions rejects non-positive requests and canvases beyond
// imaging.MaxPixels. A side left at 0 (source size unknown) is for the codec
// to resolve.
func validDimensions(w, h int, settings models.ConversionSettings) bool {
	if (settings.Width != nil && *settings.Width <= 0) || (settings.Height != nil && *settings.Height <= 0) {
		return false
	}
	switch {
	case w < 0 || h < 0 || w > imaging.MaxPixels || h > imaging.MaxPixels:
		return false
	case w == 0 || h == 0:
		return true
	}
	return imaging.WithinPixelLimit(w, h)
}

// CalculateDimensions resolves the output size. With neither side requested
// the source size is kept; with both the request is used as is; with one the
// other side follows the source aspect ratio.
func CalculateDimensions(srcW, srcH int, width, height *int) (int, int) {
	switch {
	case width == nil && height == nil:
		return srcW, srcH
	case width != nil && height != nil:
		return *width, *height
	case width != nil:
		if srcW <= 0 {
			return *width, srcH
		}
		return *width, scaled(*width, srcH, srcW)
	default:
		if srcH <= 0 {
			return srcW, *height
		}
		return scaled(*height, srcW, srcH), *height
	}
}

func scaled(given, other, base int) int {
	v := int(math.Round(float64(given) * float64(other) / float64(base)))
	if v < 1 && other > 0 {
		v = 1
	}
	return v
}
