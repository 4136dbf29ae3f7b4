package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/inklift/inklift/internal/config"
	"github.com/inklift/inklift/internal/models"
)

// Bundle is the archived snapshot of a post and everything attached
// to it.
type Bundle struct {
	Post       *models.Post      `json:"post"`
	Outline    *models.Outline   `json:"outline,omitempty"`
	Drafts     []*models.Draft   `json:"drafts,omitempty"`
	QaChecks   []*models.QaCheck `json:"qa_checks,omitempty"`
	Publishes  []*models.Publish `json:"publishes,omitempty"`
	ArchivedAt time.Time         `json:"archived_at"`
}

// Exporter writes archive bundles to R2-compatible object storage.
type Exporter struct {
	client *s3.Client
	bucket string
}

// NewExporter builds an S3 client against the configured R2 endpoint.
func NewExporter(ctx context.Context, cfg *config.Config) (*Exporter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.R2AccessKey, cfg.R2SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.R2Endpoint)
		o.UsePathStyle = true
	})

	return &Exporter{
		client: client,
		bucket: cfg.R2Bucket,
	}, nil
}

// Export uploads the bundle under <org>/<post>.json.
func (e *Exporter) Export(ctx context.Context, bundle *Bundle) (string, error) {
	if bundle.ArchivedAt.IsZero() {
		bundle.ArchivedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal bundle: %w", err)
	}

	key := fmt.Sprintf("%s/%s.json", bundle.Post.OrgID, bundle.Post.ID)
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("upload bundle: %w", err)
	}
	return key, nil
}
