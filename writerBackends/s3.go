package writerbackends

import (
	"context"
	"fmt"
	"io"

	"pixconv/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// UploadToS3WithCreds uploads content to an S3 object using a client built
// from accessInfo: accessKey, secretKey, region, bucket, optional prefix and
// optional endpoint (S3-compatible stores, addressed path-style).
func UploadToS3WithCreds(ctx context.Context, accessInfo map[string]string, name string, reader io.Reader) error {
	bucket := accessInfo["bucket"]
	if bucket == "" || accessInfo["accessKey"] == "" || accessInfo["secretKey"] == "" {
		return fmt.Errorf("missing required accessInfo keys: accessKey, secretKey, bucket")
	}
	key := objectKey(accessInfo["prefix"], name)

	s3Client := s3.New(s3Options(accessInfo))
	uploader := manager.NewUploader(s3Client)

	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        reader,
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s to bucket %s: %w", key, bucket, err)
	}

	logger.Infof("[writer] uploaded object '%s' to bucket '%s'", key, bucket)
	return nil
}

func s3Options(accessInfo map[string]string) s3.Options {
	opts := s3.Options{
		Region:      accessInfo["region"],
		Credentials: credentials.NewStaticCredentialsProvider(accessInfo["accessKey"], accessInfo["secretKey"], ""),
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if endpoint := accessInfo["endpoint"]; endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	return opts
}
