package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/voxdial/voxdial-core/internal/config"
)

// S3Store uploads artifacts to an S3 bucket with public-read ACL so the
// telephony provider can stream them directly.
type S3Store struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
	log      *slog.Logger
}

func NewS3Store(ctx context.Context, cfg config.StorageConfig, log *slog.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &S3Store{
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.KeyPrefix, "/"),
		log:      log.With(slog.String("component", "s3-storage")),
	}, nil
}

func (s *S3Store) Save(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key := name
	if s.prefix != "" {
		key = s.prefix + "/" + name
	}
	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("upload artifact %s: %w", name, err)
	}
	s.log.Info("artifact uploaded", slog.String("key", key), slog.Int("bytes", len(data)))
	return out.Location, nil
}

func (s *S3Store) Close() error { return nil }
