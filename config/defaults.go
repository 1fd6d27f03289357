package config

// Default returns the built-in configuration. The codec list mirrors the
// WASM bundles served under /wasm plus the command-line encoders the edge
// server can use when they are installed.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:        ":8080",
			MaxUploadMB: 100,
			Workers:     4,
		},
		Edge: Edge{
			TimeoutSeconds:  60,
			ProbeTTLSeconds: 30,
		},
		Scheduler: Scheduler{
			MaxConcurrentJobs: 3,
		},
		Thresholds: Thresholds{
			LargeFileMB: 80,
			LowMemoryGB: 4,
		},
		Logging: Logging{
			Level: "info",
		},
		Packaging: Packaging{
			Backend: "directServe",
		},
		Codecs: []Codec{
			{
				Name:          "mozjpeg",
				Kind:          CodecKindWASM,
				Decode:        []string{"jpg", "png", "webp", "bmp"},
				Encode:        []string{"jpg"},
				SIMD:          true,
				MaxFileSizeMB: 50,
			},
			{
				Name:          "libwebp",
				Kind:          CodecKindWASM,
				Decode:        []string{"jpg", "png", "webp", "gif"},
				Encode:        []string{"webp"},
				SIMD:          true,
				Threads:       true,
				MaxFileSizeMB: 50,
			},
			{
				Name:          "libavif",
				Kind:          CodecKindWASM,
				Decode:        []string{"jpg", "png", "webp"},
				Encode:        []string{"avif"},
				SIMD:          true,
				Threads:       true,
				MaxFileSizeMB: 30,
			},
			{
				Name:          "oxipng",
				Kind:          CodecKindWASM,
				Decode:        []string{"png"},
				Encode:        []string{"png"},
				Threads:       true,
				MaxFileSizeMB: 40,
			},
			{
				Name:          "magick",
				Kind:          CodecKindCommand,
				Command:       "magick",
				Decode:        []string{"jpg", "png", "webp", "gif", "bmp", "tiff", "heic", "heif", "avif"},
				Encode:        []string{"jpg", "png", "gif", "bmp", "tiff"},
				Threads:       true,
				MaxFileSizeMB: 200,
			},
			{
				Name:          "cwebp",
				Kind:          CodecKindCommand,
				Command:       "cwebp",
				Decode:        []string{"jpg", "png", "tiff", "webp"},
				Encode:        []string{"webp"},
				Threads:       true,
				MaxFileSizeMB: 200,
			},
			{
				Name:          "avifenc",
				Kind:          CodecKindCommand,
				Command:       "avifenc",
				Decode:        []string{"jpg", "png"},
				Encode:        []string{"avif"},
				Threads:       true,
				MaxFileSizeMB: 200,
			},
		},
	}
}
