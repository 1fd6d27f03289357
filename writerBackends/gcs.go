package writerbackends

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"pixconv/logger"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// UploadToGCSWithJSON uploads content to a Google Cloud Storage object using a
// service account key. accessInfo keys: credentialsJSON (raw or base64),
// bucket, optional prefix.
func UploadToGCSWithJSON(ctx context.Context, accessInfo map[string]string, name string, reader io.Reader) error {
	bucketName := accessInfo["bucket"]
	if bucketName == "" || accessInfo["credentialsJSON"] == "" {
		return fmt.Errorf("missing required accessInfo keys: credentialsJSON, bucket")
	}
	credentialsJSON := decodeMaybeBase64(accessInfo["credentialsJSON"])
	objectName := objectKey(accessInfo["prefix"], name)

	client, err := storage.NewClient(ctx, option.WithCredentialsJSON(credentialsJSON))
	if err != nil {
		return fmt.Errorf("storage.NewClient: %w", err)
	}
	defer client.Close()

	wc := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	wc.ContentType = "application/zip"

	if _, err = io.Copy(wc, reader); err != nil {
		wc.Close()
		return fmt.Errorf("io.Copy: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("Writer.Close: %w", err)
	}

	logger.Infof("[writer] uploaded object '%s' to bucket '%s'", objectName, bucketName)
	return nil
}

// decodeMaybeBase64 returns the decoded value when s is base64, else s.
func decodeMaybeBase64(s string) []byte {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b
	}
	return []byte(s)
}
