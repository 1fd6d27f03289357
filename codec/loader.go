package codec

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"pixconv/logger"
	"pixconv/metrics"
	"pixconv/models"
)

// Source fetches and instantiates a codec's runnable resource.
type Source interface {
	Load(ctx context.Context, name string) (Handle, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, name string) (Handle, error)

func (f SourceFunc) Load(ctx context.Context, name string) (Handle, error) {
	return f(ctx, name)
}

// MultiSource routes each codec name to the source that provides it.
type MultiSource map[string]Source

func (m MultiSource) Load(ctx context.Context, name string) (Handle, error) {
	src, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("no source configured for codec %s", name)
	}
	return src.Load(ctx, name)
}

// Loader lazily loads codecs into a registry. Concurrent loads of the same
// codec share one attempt; failures are never remembered.
type Loader struct {
	registry *Registry
	source   Source
	inflight singleflight.Group
}

func NewLoader(registry *Registry, source Source) *Loader {
	return &Loader{registry: registry, source: source}
}

// Registry returns the registry the loader populates.
func (l *Loader) Registry() *Registry { return l.registry }

// LoadCodec loads name if needed and reports whether it ends up loaded.
func (l *Loader) LoadCodec(ctx context.Context, name string) bool {
	if l.registry.IsLoaded(name) {
		return true
	}
	if _, ok := l.registry.Instance(name); !ok {
		logger.Warnf("[codec] load requested for unknown codec %s", name)
		return false
	}

	// the attempt is shared, so one caller's cancellation must not fail it
	loadCtx := context.WithoutCancel(ctx)
	_, err, _ := l.inflight.Do(name, func() (any, error) {
		if l.registry.IsLoaded(name) {
			return nil, nil
		}
		h, err := l.source.Load(loadCtx, name)
		if err == nil && h == nil {
			err = errors.New("source returned no handle")
		}
		metrics.ObserveCodecLoad(name, err == nil)
		if err != nil {
			return nil, &models.CodecLoadError{Codec: name, Err: err}
		}
		l.registry.markLoaded(name, h)
		logger.Infof("[codec] %s loaded", name)
		return nil, nil
	})
	if err != nil {
		logger.Warnf("[codec] %v", err)
		return false
	}
	return true
}

// EnsureCodecLoaded picks the best codec for the conversion and loads it.
// The name is returned only when the codec is loaded.
func (l *Loader) EnsureCodecLoaded(ctx context.Context, src, tgt string, size int64) (string, bool) {
	name, ok := l.registry.FindBestCodec(src, tgt, size)
	if !ok {
		return "", false
	}
	if !l.LoadCodec(ctx, name) {
		return "", false
	}
	return name, true
}

// Handle returns the loaded handle for name.
func (l *Loader) Handle(name string) (Handle, bool) {
	inst, ok := l.registry.Instance(name)
	if !ok || !inst.Loaded {
		return nil, false
	}
	return inst.Handle, true
}
