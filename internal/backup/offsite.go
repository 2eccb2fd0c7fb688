package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/vetle/clinicd/internal/config"
)

// ObjectPutter is the slice of the S3 API the uploader uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader copies finished backup archives to an S3-compatible bucket.
// Offsite copies are best-effort: the job that produced the archive never
// fails because the upload did.
type Uploader struct {
	logger zerolog.Logger
	client ObjectPutter
	bucket string
}

// NewUploader builds an uploader from config, or returns nil when no bucket
// is configured.
func NewUploader(logger zerolog.Logger, cfg *config.Config) *Uploader {
	if cfg.S3Bucket == "" {
		return nil
	}

	opts := s3.Options{
		Region:      cfg.S3Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
	}
	if cfg.S3Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.S3Endpoint)
		opts.UsePathStyle = true
	}

	return &Uploader{
		logger: logger.With().Str("component", "offsite-uploader").Logger(),
		client: s3.New(opts),
		bucket: cfg.S3Bucket,
	}
}

// Upload stores the archive at path under its base name in the bucket.
func (u *Uploader) Upload(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive for upload: %w", err)
	}
	defer f.Close()

	key := filepath.Base(path)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return fmt.Errorf("upload %s to s3://%s: %w", key, u.bucket, err)
	}

	u.logger.Info().Str("key", key).Str("bucket", u.bucket).Msg("archive uploaded offsite")
	return nil
}
