package packaging

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"pixconv/logger"
	"pixconv/models"
	writerbackends "pixconv/writerBackends"
)

// ErrNothingToPackage is returned for a batch without completed outputs.
var ErrNothingToPackage = errors.New("batch has no completed outputs")

// CredentialLookup resolves a storage key to backend access info.
type CredentialLookup interface {
	GetCredentials(key string) (map[string]string, error)
}

// Packager bundles a finished batch into <batchID>.zip and hands it to a
// writer backend.
type Packager struct {
	Backend     string
	StorageKey  string
	Folder      string
	Credentials CredentialLookup
}

// BuildArchive zips the outputs of every completed job. Duplicate output
// names get a numeric suffix.
func BuildArchive(batch models.BatchSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	used := make(map[string]int)
	written := 0

	for _, job := range batch.Jobs {
		if job.Status != models.StatusCompleted || job.Result == nil {
			continue
		}
		name := UniqueName(job.Result.Filename, job.FileName, job.Settings.TargetFormat(), used)
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("add %s: %w", name, err)
		}
		if _, err := w.Write(job.Result.Blob); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
		written++
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	if written == 0 {
		return nil, ErrNothingToPackage
	}
	return buf.Bytes(), nil
}

// UniqueName picks the output name for a job, suffixing repeats as
// name-1.ext, name-2.ext and so on. used tracks names already taken.
func UniqueName(name, source, format string, used map[string]int) string {
	if name == "" {
		name = models.OutputName(source, format)
	}
	name = filepath.Base(name)
	candidate := name
	ext := filepath.Ext(name)
	for n := used[name]; used[candidate] > 0; n++ {
		candidate = strings.TrimSuffix(name, ext) + "-" + strconv.Itoa(n) + ext
		used[name] = n + 1
	}
	used[candidate]++
	return candidate
}

// ArchiveName is the object name of a packaged batch.
func ArchiveName(batchID string) string {
	return batchID + ".zip"
}

// PackageBatch builds the archive for batch and writes it to the configured
// backend. It returns the object name.
func (p *Packager) PackageBatch(ctx context.Context, batch models.BatchSnapshot) (string, error) {
	archive, err := BuildArchive(batch)
	if err != nil {
		return "", err
	}

	backend := p.Backend
	if backend == "" {
		backend = writerbackends.BackendDirectServe
	}
	info := map[string]string{}
	if p.StorageKey != "" {
		if p.Credentials == nil {
			return "", fmt.Errorf("no credential store for storage key")
		}
		creds, err := p.Credentials.GetCredentials(p.StorageKey)
		if err != nil {
			return "", fmt.Errorf("lookup credentials: %w", err)
		}
		for k, v := range creds {
			info[k] = v
		}
	}
	if p.Folder != "" {
		switch backend {
		case writerbackends.BackendDirectServe:
			info["folder"] = p.Folder
		case writerbackends.BackendSFTP:
			info["remoteDir"] = filepath.ToSlash(filepath.Join(info["remoteDir"], p.Folder))
		default:
			info["prefix"] = strings.Trim(info["prefix"]+"/"+p.Folder, "/")
		}
	}

	name := ArchiveName(batch.ID)
	if err := writerbackends.WriteObject(ctx, backend, info, name, bytes.NewReader(archive)); err != nil {
		return "", err
	}
	logger.Infof("[packaging] %s: %d bytes written to %s", name, len(archive), backend)
	return name, nil
}
