package download

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/rkm/senprep/internal/catalog"
	"github.com/rkm/senprep/internal/config"
)

// BucketProvider fetches product archives from an S3-compatible mirror.
// Products purged from the primary archive's online storage usually remain
// available on public cloud mirrors; this is the fallback path.
type BucketProvider struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewBucketProvider connects to the configured S3-compatible endpoint.
func NewBucketProvider(cfg config.BucketConfig) (*BucketProvider, error) {
	opts := &minio.Options{
		Secure: cfg.Secure,
	}
	if cfg.AccessKey != "" {
		opts.Creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}

	client, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to fallback bucket: %w", err)
	}
	return &BucketProvider{
		client: client,
		bucket: cfg.Name,
		logger: slog.Default(),
	}, nil
}

// WithLogger sets a custom logger for the provider.
func (p *BucketProvider) WithLogger(logger *slog.Logger) *BucketProvider {
	p.logger = logger
	return p
}

// Name identifies the provider in logs and error messages.
func (p *BucketProvider) Name() string { return "bucket" }

// Fetch locates the product archive by title prefix and copies it to dst.
// Mirrors key archives by product title, sometimes under a mission or
// year prefix, so the lookup lists rather than assuming a flat layout.
func (p *BucketProvider) Fetch(ctx context.Context, ref catalog.ProductRef, dst string) error {
	objectKey, err := p.locate(ctx, ref.Title)
	if err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "fetching product from fallback bucket",
		slog.String("product_id", ref.ID),
		slog.String("object", objectKey),
	)

	if err := p.client.FGetObject(ctx, p.bucket, objectKey, dst, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("bucket fetch of %s failed: %w", objectKey, err)
	}
	return nil
}

func (p *BucketProvider) locate(ctx context.Context, title string) (string, error) {
	listing := p.client.ListObjects(ctx, p.bucket, minio.ListObjectsOptions{
		Prefix:    title,
		Recursive: true,
	})

	for obj := range listing {
		if obj.Err != nil {
			return "", fmt.Errorf("bucket listing failed: %w", obj.Err)
		}
		if strings.HasSuffix(obj.Key, ".zip") {
			return obj.Key, nil
		}
	}
	return "", fmt.Errorf("product %s not present in fallback bucket", title)
}
