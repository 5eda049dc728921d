// Package archive copies stored recommendation bundles to object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/canonical"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/models"
)

// Record is one archived recommendation bundle.
type Record struct {
	PlanID     string                      `json:"planId"`
	BatchID    string                      `json:"batchId"`
	Bundle     models.RecommendationBundle `json:"bundle"`
	ArchivedAt time.Time                   `json:"archivedAt"`
}

type Archiver interface {
	// Archive stores the record and returns its object key.
	Archive(ctx context.Context, rec Record) (string, error)
}

// Noop discards records. Used when no bucket is configured.
type Noop struct{}

func (Noop) Archive(context.Context, Record) (string, error) { return "", nil }

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type S3Config struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint overrides the S3 endpoint (MinIO, localstack). Path-style addressing is
	// used when set.
	Endpoint string
}

// S3Archiver writes canonical JSON bundles to keys like:
//
//	<prefix>/recommendations/YYYY/MM/DD/<planId>/<batchId>.json
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader uploader
	now      func() time.Time
}

// NewS3Archiver builds an archiver from the default AWS credential chain.
func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	var opts []func(*awsConfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsConfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Archiver(cfg.Bucket, cfg.Prefix, manager.NewUploader(client)), nil
}

func newS3Archiver(bucket, prefix string, up uploader) *S3Archiver {
	return &S3Archiver{
		bucket:   bucket,
		prefix:   prefix,
		uploader: up,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Key returns the object key rec is stored under.
func (s *S3Archiver) Key(rec Record) string {
	ts := rec.ArchivedAt
	if ts.IsZero() {
		ts = s.now()
	}
	year, month, day := ts.Date()
	return path.Join(s.prefix, "recommendations",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		rec.PlanID,
		rec.BatchID+".json",
	)
}

func (s *S3Archiver) Archive(ctx context.Context, rec Record) (string, error) {
	if rec.PlanID == "" || rec.BatchID == "" {
		return "", fmt.Errorf("planId and batchId required")
	}
	if rec.ArchivedAt.IsZero() {
		rec.ArchivedAt = s.now()
	}
	body, err := canonical.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("canonicalize bundle: %w", err)
	}
	key := s.Key(rec)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return key, nil
}
