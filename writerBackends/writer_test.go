package writerbackends

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDirectServeWritesObject(t *testing.T) {
	base := t.TempDir()
	info := map[string]string{"baseDir": base, "folder": "batches"}
	if err := WriteObject(context.Background(), BackendDirectServe, info, "batch_1.zip", strings.NewReader("zip")); err != nil {
		t.Fatalf("WriteObject: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(base, "batches", "batch_1.zip"))
	if err != nil || string(data) != "zip" {
		t.Fatalf("read back %q, %v", data, err)
	}

	// folder traversal stays inside the base dir
	info["folder"] = "../../outside"
	if err := WriteObject(context.Background(), BackendDirectServe, info, "b.zip", strings.NewReader("x")); err != nil {
		t.Fatalf("WriteObject: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "outside", "b.zip")); err != nil {
		t.Errorf("expected clamped path inside base dir: %v", err)
	}
}

func TestWriteObjectRejects(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		backend string
		info    map[string]string
		object  string
	}{
		{"unknown backend", "ftp", nil, "a.zip"},
		{"slash in name", BackendDirectServe, map[string]string{"baseDir": t.TempDir()}, "../a.zip"},
		{"empty name", BackendDirectServe, map[string]string{"baseDir": t.TempDir()}, ""},
		{"s3 missing keys", BackendS3, map[string]string{"bucket": "b"}, "a.zip"},
		{"gcs missing keys", BackendGCS, map[string]string{}, "a.zip"},
		{"sftp missing keys", BackendSFTP, map[string]string{"host": "h"}, "a.zip"},
		{"sftp no auth", BackendSFTP, map[string]string{"host": "h", "user": "u", "remoteDir": "/up"}, "a.zip"},
	}
	for _, tt := range tests {
		if err := WriteObject(ctx, tt.backend, tt.info, tt.object, strings.NewReader("x")); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestObjectKeyAndS3Options(t *testing.T) {
	if got := objectKey("/exports/", "a.zip"); got != "exports/a.zip" {
		t.Errorf("objectKey = %q", got)
	}
	if got := objectKey("", "a.zip"); got != "a.zip" {
		t.Errorf("objectKey = %q", got)
	}
	opts := s3Options(map[string]string{"accessKey": "a", "secretKey": "s", "endpoint": "http://minio:9000"})
	if opts.Region != "us-east-1" || !opts.UsePathStyle || *opts.BaseEndpoint != "http://minio:9000" {
		t.Errorf("unexpected s3 options %+v", opts)
	}
	if string(decodeMaybeBase64("eyJhIjoxfQ==")) != `{"a":1}` || string(decodeMaybeBase64("{raw}")) != "{raw}" {
		t.Error("decodeMaybeBase64 mismatch")
	}
}
