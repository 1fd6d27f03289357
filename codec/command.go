package codec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"pixconv/logger"
	"pixconv/models"
)

// ArgsFunc builds the command line for one conversion between two files.
type ArgsFunc func(in, out string, req Request) []string

// CommandSource resolves codecs backed by external encoder executables.
type CommandSource struct {
	// Commands maps codec name to executable name.
	Commands map[string]string
	// TempDir holds per-call scratch files; empty uses os.TempDir.
	TempDir string
}

func (s *CommandSource) Load(ctx context.Context, name string) (Handle, error) {
	command, ok := s.Commands[name]
	if !ok {
		return nil, fmt.Errorf("codec %s has no command", name)
	}
	path, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("command '%s' not found in PATH", command)
	}
	args, ok := commandArgs[filepath.Base(command)]
	if !ok {
		return nil, fmt.Errorf("no argument builder for command %s", command)
	}
	logger.Debugf("[codec] %s resolved to %s", name, path)
	return &commandHandle{name: name, path: path, args: args, tempDir: s.TempDir}, nil
}

var commandArgs = map[string]ArgsFunc{
	"magick":  magickArgs,
	"convert": magickArgs,
	"cwebp":   cwebpArgs,
	"avifenc": avifencArgs,
}

func magickArgs(in, out string, req Request) []string {
	args := []string{in, "-auto-orient"}
	if req.Width > 0 && req.Height > 0 {
		args = append(args, "-resize", fmt.Sprintf("%dx%d!", req.Width, req.Height))
	}
	if req.Quality != nil {
		args = append(args, "-quality", fmt.Sprint(*req.Quality))
	}
	if req.Progressive {
		args = append(args, "-interlace", "Plane")
	}
	return append(args, fmt.Sprintf("%s:%s", magickFormat(req.TargetFormat), out))
}

func magickFormat(format string) string {
	if format == "jpg" {
		return "jpeg"
	}
	return format
}

func cwebpArgs(in, out string, req Request) []string {
	var args []string
	if req.Lossless {
		args = append(args, "-lossless")
	} else if req.Quality != nil {
		args = append(args, "-q", fmt.Sprint(*req.Quality))
	}
	args = append(args, "-m", "4")
	if req.Width > 0 && req.Height > 0 {
		args = append(args, "-resize", fmt.Sprint(req.Width), fmt.Sprint(req.Height))
	}
	return append(args, in, "-o", out)
}

func avifencArgs(in, out string, req Request) []string {
	var args []string
	if req.Lossless {
		args = append(args, "--lossless")
	} else if req.Quality != nil {
		args = append(args, "-q", fmt.Sprint(*req.Quality))
	}
	return append(args, "--speed", "6", in, out)
}

type commandHandle struct {
	name    string
	path    string
	args    ArgsFunc
	tempDir string
}

// Convert stages input and output through temp files that are removed on
// every path.
func (h *commandHandle) Convert(ctx context.Context, input []byte, req Request) ([]byte, error) {
	dir, err := os.MkdirTemp(h.tempDir, "pixconv-"+h.name+"-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input."+extOrBin(req.SourceFormat))
	out := filepath.Join(dir, "output."+extOrBin(req.TargetFormat))
	if err := os.WriteFile(in, input, 0o600); err != nil {
		return nil, fmt.Errorf("stage input: %w", err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, h.path, h.args(in, out, req)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", h.name, err, bytes.TrimSpace(stderr.Bytes()))
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read %s output: %w", h.name, err)
	}
	return data, nil
}

func extOrBin(format string) string {
	if f := models.NormalizeFormat(format); f != "" {
		return f
	}
	return "bin"
}
