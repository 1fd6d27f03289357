package codec

import (
	"context"
	"net/http"

	"pixconv/config"
	"pixconv/logger"
	"pixconv/models"
)

// Setup registers every configured codec and returns a loader wired to the
// matching sources. close releases the WASM runtime.
func Setup(ctx context.Context, cfg *config.Config, client *http.Client) (*Loader, func(context.Context) error) {
	registry := NewRegistry(cfg.LargeFileBytes(), cfg.Thresholds.LowMemoryGB)
	sources := MultiSource{}
	commands := &CommandSource{Commands: map[string]string{}}

	var wasm *WASMSource
	for _, c := range cfg.Codecs {
		registry.RegisterCodec(c.Name, models.CodecCapabilities{
			Decode:      c.Decode,
			Encode:      c.Encode,
			SIMD:        c.SIMD,
			Threads:     c.Threads,
			MaxFileSize: int64(c.MaxFileSizeMB) << 20,
		})
		switch c.Kind {
		case config.CodecKindCommand:
			commands.Commands[c.Name] = c.Command
			sources[c.Name] = commands
		case config.CodecKindWASM:
			if cfg.Loader.WASMBaseURL == "" {
				logger.Debugf("[codec] %s registered without a module URL; it will never load", c.Name)
				continue
			}
			if wasm == nil {
				wasm = NewWASMSource(ctx, cfg.Loader.WASMBaseURL, client)
			}
			sources[c.Name] = wasm
		}
		logger.Debugf("[codec] registered %s (%s)", c.Name, c.Kind)
	}

	closeFn := func(ctx context.Context) error {
		if wasm == nil {
			return nil
		}
		return wasm.Close(ctx)
	}
	return NewLoader(registry, sources), closeFn
}
