package models

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// File is the file-like input handed over by the UI layer: a name, a size, a
// MIME type and a way to read the content. The core never re-validates
// acceptability; that is the caller's job.
type File struct {
	Name     string
	Size     int64
	MIMEType string
	open     func() (io.ReadCloser, error)
}

// NewBytesFile wraps in-memory content.
func NewBytesFile(name, mimeType string, data []byte) *File {
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(name))
	}
	return &File{
		Name:     name,
		Size:     int64(len(data)),
		MIMEType: mimeType,
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// NewDiskFile wraps a file on disk. Content is read lazily on Open.
func NewDiskFile(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, &FileValidationError{Name: path, Reason: "is a directory"}
	}
	return &File{
		Name:     filepath.Base(path),
		Size:     info.Size(),
		MIMEType: mime.TypeByExtension(filepath.Ext(path)),
		open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// Open returns a reader over the file content.
func (f *File) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return nil, fmt.Errorf("file %s has no content", f.Name)
	}
	return f.open()
}

// ReadAll reads the whole file content.
func (f *File) ReadAll() ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// SourceFormat guesses the format from the MIME type, falling back to the
// file extension. Content sniffing happens later, in the converter.
func (f *File) SourceFormat() string {
	if f.MIMEType != "" {
		if mt, _, err := mime.ParseMediaType(f.MIMEType); err == nil && strings.HasPrefix(mt, "image/") {
			return NormalizeFormat(mt)
		}
	}
	return NormalizeFormat(filepath.Ext(f.Name))
}

// OutputName returns the file name with its extension replaced by format's.
func OutputName(name, format string) string {
	base := filepath.Base(name)
	base = base[:len(base)-len(filepath.Ext(base))]
	if base == "" {
		base = "image"
	}
	return base + "." + NormalizeFormat(format)
}
