package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Server contains the HTTP listener and edge endpoint settings.
type Server struct {
	Addr        string `toml:"addr"`
	JWTSecret   string `toml:"jwt_secret"`
	MaxUploadMB int    `toml:"max_upload_mb"`
	Workers     int    `toml:"workers"`
}

// Edge contains the client settings for the remote edge endpoint.
type Edge struct {
	URL             string `toml:"url"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	JWTSecret       string `toml:"jwt_secret"`
	ProbeTTLSeconds int    `toml:"probe_ttl_seconds"`
}

// Scheduler contains batch scheduling settings.
type Scheduler struct {
	MaxConcurrentJobs int `toml:"max_concurrent_jobs"`
}

// Thresholds contains the limits used by processing-mode selection.
type Thresholds struct {
	LargeFileMB int     `toml:"large_file_mb"`
	LowMemoryGB float64 `toml:"low_memory_gb"`
}

// Loader contains codec resource fetch settings.
type Loader struct {
	WASMBaseURL string `toml:"wasm_base_url"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Packaging controls archive generation when a batch completes.
type Packaging struct {
	Enabled    bool   `toml:"enabled"`
	Backend    string `toml:"backend"`
	StorageKey string `toml:"storage_key"`
	SubDir     string `toml:"sub_dir"`
}

// Codec declares one codec backend and its capabilities.
type Codec struct {
	Name          string   `toml:"name"`
	Kind          string   `toml:"kind"` // "wasm" or "command"
	Command       string   `toml:"command"`
	Decode        []string `toml:"decode"`
	Encode        []string `toml:"encode"`
	SIMD          bool     `toml:"simd"`
	Threads       bool     `toml:"threads"`
	MaxFileSizeMB int      `toml:"max_file_size_mb"`
}

// Config is the full pixconv configuration.
type Config struct {
	Server     Server     `toml:"server"`
	Edge       Edge       `toml:"edge"`
	Scheduler  Scheduler  `toml:"scheduler"`
	Thresholds Thresholds `toml:"thresholds"`
	Loader     Loader     `toml:"loader"`
	Logging    Logging    `toml:"logging"`
	Packaging  Packaging  `toml:"packaging"`
	Codecs     []Codec    `toml:"codecs"`
}

const (
	CodecKindWASM    = "wasm"
	CodecKindCommand = "command"
)

// Load reads the TOML file at path (if any), applies environment overrides,
// fills defaults for anything left unset, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found", path)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if len(cfg.Codecs) == 0 {
		cfg.Codecs = Default().Codecs
	}
	cfg.applyEnv()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PIXCONV_EDGE_URL"); v != "" {
		c.Edge.URL = v
	}
	if v := os.Getenv("PIXCONV_JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
		if c.Edge.JWTSecret == "" {
			c.Edge.JWTSecret = v
		}
	}
	if v := os.Getenv("PIXCONV_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PIXCONV_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// Normalize fills zero values with defaults and canonicalizes format names.
func (c *Config) Normalize() {
	d := Default()
	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = d.Server.MaxUploadMB
	}
	if c.Server.Workers <= 0 {
		c.Server.Workers = d.Server.Workers
	}
	if c.Edge.TimeoutSeconds <= 0 {
		c.Edge.TimeoutSeconds = d.Edge.TimeoutSeconds
	}
	if c.Edge.ProbeTTLSeconds <= 0 {
		c.Edge.ProbeTTLSeconds = d.Edge.ProbeTTLSeconds
	}
	c.Edge.URL = strings.TrimRight(strings.TrimSpace(c.Edge.URL), "/")
	if c.Scheduler.MaxConcurrentJobs <= 0 {
		c.Scheduler.MaxConcurrentJobs = d.Scheduler.MaxConcurrentJobs
	}
	if c.Thresholds.LargeFileMB <= 0 {
		c.Thresholds.LargeFileMB = d.Thresholds.LargeFileMB
	}
	if c.Thresholds.LowMemoryGB <= 0 {
		c.Thresholds.LowMemoryGB = d.Thresholds.LowMemoryGB
	}
	c.Loader.WASMBaseURL = strings.TrimRight(strings.TrimSpace(c.Loader.WASMBaseURL), "/")
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Packaging.Backend == "" {
		c.Packaging.Backend = d.Packaging.Backend
	}

	for i := range c.Codecs {
		codec := &c.Codecs[i]
		codec.Name = strings.TrimSpace(codec.Name)
		codec.Kind = strings.ToLower(strings.TrimSpace(codec.Kind))
		if codec.Kind == "" {
			codec.Kind = CodecKindWASM
		}
		codec.Decode = normalizeFormats(codec.Decode)
		codec.Encode = normalizeFormats(codec.Encode)
	}
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.Scheduler.MaxConcurrentJobs < 1 || c.Scheduler.MaxConcurrentJobs > 10 {
		return fmt.Errorf("scheduler.max_concurrent_jobs must be between 1 and 10, got %d", c.Scheduler.MaxConcurrentJobs)
	}
	switch c.Packaging.Backend {
	case "directServe", "s3", "gcs", "sftp":
	default:
		return fmt.Errorf("packaging.backend: unsupported value %q", c.Packaging.Backend)
	}
	if c.Packaging.Backend != "directServe" && c.Packaging.Enabled && c.Packaging.StorageKey == "" {
		return fmt.Errorf("packaging.storage_key is required for backend %s", c.Packaging.Backend)
	}

	seen := make(map[string]struct{}, len(c.Codecs))
	for _, codec := range c.Codecs {
		if codec.Name == "" {
			return errors.New("codecs: every codec needs a name")
		}
		if _, dup := seen[codec.Name]; dup {
			return fmt.Errorf("codecs: duplicate codec %q", codec.Name)
		}
		seen[codec.Name] = struct{}{}
		switch codec.Kind {
		case CodecKindWASM:
		case CodecKindCommand:
			if codec.Command == "" {
				return fmt.Errorf("codecs: %s is a command codec without a command", codec.Name)
			}
		default:
			return fmt.Errorf("codecs: %s has unsupported kind %q", codec.Name, codec.Kind)
		}
		if len(codec.Decode) == 0 || len(codec.Encode) == 0 {
			return fmt.Errorf("codecs: %s must declare decode and encode formats", codec.Name)
		}
		if codec.MaxFileSizeMB <= 0 {
			return fmt.Errorf("codecs: %s needs a positive max_file_size_mb", codec.Name)
		}
	}
	return nil
}

// EdgeTimeout returns the edge request timeout as a duration.
func (c *Config) EdgeTimeout() time.Duration {
	return time.Duration(c.Edge.TimeoutSeconds) * time.Second
}

// EdgeProbeTTL returns how long an availability probe result stays valid.
func (c *Config) EdgeProbeTTL() time.Duration {
	return time.Duration(c.Edge.ProbeTTLSeconds) * time.Second
}

// LargeFileBytes returns the large-file threshold in bytes.
func (c *Config) LargeFileBytes() int64 {
	return int64(c.Thresholds.LargeFileMB) << 20
}

func normalizeFormats(formats []string) []string {
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "jpeg" {
			f = "jpg"
		}
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
