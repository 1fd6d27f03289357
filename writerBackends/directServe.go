package writerbackends

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"pixconv/config"
	"pixconv/logger"
)

// UploadToDirectServe writes content into the local serving folder, where the
// HTTP server exposes it directly. accessInfo keys: baseDir (defaults to the
// configured serve dir) and folder (a sub folder inside it).
func UploadToDirectServe(ctx context.Context, accessInfo map[string]string, name string, reader io.Reader) error {
	baseDir := accessInfo["baseDir"]
	if baseDir == "" {
		baseDir = config.GetDirectServeBaseDir()
	}
	folder := filepath.Clean(filepath.Join("/", accessInfo["folder"]))
	fullDir := filepath.Join(baseDir, folder)
	fullPath := filepath.Join(fullDir, name)
	if !strings.HasPrefix(fullPath, filepath.Clean(baseDir)) {
		return fmt.Errorf("path %s escapes serve dir", fullPath)
	}

	if err := os.MkdirAll(fullDir, 0o755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	// write to a temp file first so readers never see a partial archive
	tmp, err := os.CreateTemp(fullDir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("failed to create file in %s: %w", fullDir, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, ctxReader{ctx: ctx, r: reader}); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write to file %s: %w", fullPath, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}

	logger.Infof("[writer] saved '%s' to '%s'", name, fullPath)
	return nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
