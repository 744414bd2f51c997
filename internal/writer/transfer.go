package writer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	appconfig "activeoi/config"
	"activeoi/logger"
)

const transferTimeout = 2 * time.Minute

// Transfer moves store files between the local store directory and remote
// storage.
type Transfer interface {
	// Download fetches key into path. It reports false, and no error, when the
	// remote object does not exist.
	Download(ctx context.Context, key, path string) (bool, error)
	// Upload copies the file at path to key.
	Upload(ctx context.Context, key, path string) error
}

// NopTransfer is used when no remote storage is configured: there is never a
// remote copy and uploads do nothing.
type NopTransfer struct{}

func (NopTransfer) Download(context.Context, string, string) (bool, error) { return false, nil }
func (NopTransfer) Upload(context.Context, string, string) error           { return nil }

type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Transfer keeps the store files in an S3 bucket under an optional prefix.
type S3Transfer struct {
	client      s3API
	bucket      string
	prefix      string
	compression string
	version     string
	log         *logger.Log
}

// NewS3Transfer builds an S3 client from the storage configuration. Static
// credentials are used when both keys are set; otherwise the default AWS
// credential chain applies.
func NewS3Transfer(ctx context.Context, cfg *appconfig.Config) (*S3Transfer, error) {
	s3cfg := cfg.Storage.S3
	if !s3cfg.Enabled {
		return nil, fmt.Errorf("s3 storage disabled")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(s3cfg.Region)}
	if s3cfg.AccessKeyID != "" && s3cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				s3cfg.AccessKeyID,
				s3cfg.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3cfg.Endpoint)
		}
		o.UsePathStyle = s3cfg.PathStyle
	})

	return newS3Transfer(client, s3cfg.Bucket, s3cfg.Prefix, cfg.Storage.Compression, cfg.App.Version), nil
}

func newS3Transfer(client s3API, bucket, prefix, compression, version string) *S3Transfer {
	return &S3Transfer{
		client:      client,
		bucket:      bucket,
		prefix:      prefix,
		compression: compression,
		version:     version,
		log:         logger.GetLogger(),
	}
}

func (t *S3Transfer) objectKey(key string) string {
	if t.prefix == "" {
		return key
	}
	return path.Join(t.prefix, key)
}

// Download writes the object to a temporary file next to dst and renames it
// into place, so a failed download never leaves a truncated store file.
func (t *S3Transfer) Download(ctx context.Context, key, dst string) (bool, error) {
	objectKey := t.objectKey(key)
	log := t.log.WithComponent("s3_transfer").WithFields(logger.Fields{
		"bucket": t.bucket,
		"key":    objectKey,
	})

	ctx, cancel := context.WithTimeout(ctx, transferTimeout)
	defer cancel()

	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isNotFound(err) {
			log.Info("remote object not found, starting from an empty history")
			return false, nil
		}
		return false, fmt.Errorf("download %s: %w", objectKey, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, fmt.Errorf("create download dir: %w", err)
	}
	tmp := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+".download-"+uuid.NewString())
	f, err := os.Create(tmp)
	if err != nil {
		return false, fmt.Errorf("create %s: %w", tmp, err)
	}
	n, err := io.Copy(f, out.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return false, fmt.Errorf("download %s: %w", objectKey, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return false, fmt.Errorf("replace %s: %w", dst, err)
	}

	log.WithFields(logger.Fields{"bytes": n, "path": dst}).Info("remote object downloaded")
	return true, nil
}

// Upload puts the file at src under key.
func (t *S3Transfer) Upload(ctx context.Context, key, src string) error {
	objectKey := t.objectKey(key)

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(t.bucket),
		Key:           aws.String(objectKey),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":     "parquet",
			"compression":      t.compression,
			"activeoi-version": t.version,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, transferTimeout)
	defer cancel()
	if _, err := t.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("upload %s: %w", objectKey, err)
	}

	t.log.WithComponent("s3_transfer").WithFields(logger.Fields{
		"bucket":    t.bucket,
		"key":       objectKey,
		"file_size": info.Size(),
	}).Info("store file uploaded")
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
