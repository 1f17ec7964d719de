// Package archive stores verified hub deliveries in S3-compatible storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/TickerFox/internal/pkg/config"
)

// ObjectPutter is the subset of the S3 API the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive writes each payload to its own object.
type S3Archive struct {
	client ObjectPutter
	bucket string
	prefix string
	now    func() time.Time
}

// NewFromConfig returns nil when archiving is disabled or incomplete.
func NewFromConfig(ctx context.Context, cfg config.Config) (*S3Archive, error) {
	if !cfg.S3ArchiveEnabled {
		return nil, nil
	}
	if cfg.S3Bucket == "" || cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
		log.Warn("[Archive] S3 archive enabled but bucket or credentials missing, archive disabled")
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKey,
			cfg.S3SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			// S3-compatible providers (MinIO, B2) need path-style URLs.
			o.UsePathStyle = true
		}
	})

	log.Infof("[Archive] Archiving deliveries to bucket: %s", cfg.S3Bucket)
	return New(client, cfg.S3Bucket, cfg.S3PathPrefix), nil
}

func New(client ObjectPutter, bucket, prefix string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

// Archive uploads payload under webhooks/<event>/<date>/<uuid>.json.
func (a *S3Archive) Archive(ctx context.Context, eventTicker string, payload []byte) error {
	key := a.ObjectKey(eventTicker, a.now(), uuid.NewString())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(payload),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(payload))),
		Metadata: map[string]string{
			"event-ticker":  eventTicker,
			"upload-source": "tickerfox-webhook",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

// ObjectKey builds the object key of one payload.
func (a *S3Archive) ObjectKey(eventTicker string, at time.Time, id string) string {
	return path.Join(a.prefix, "webhooks", eventTicker, at.UTC().Format("2006-01-02"), id+".json")
}
