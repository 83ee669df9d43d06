package services

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pwilliams272/kaya-deployer/internal/errors"
	"github.com/rs/zerolog"
)

// ArtifactStore uploads deployment archives to S3 and owns the key layout
// shared with the release trigger: {function}/{branch}/{version}.zip
type ArtifactStore struct {
	client *s3.Client
}

// NewArtifactStore creates a new ArtifactStore
func NewArtifactStore(client *s3.Client) *ArtifactStore {
	return &ArtifactStore{client: client}
}

// ArtifactKey builds the canonical archive key.
func ArtifactKey(function, branch, version string) string {
	return fmt.Sprintf("%s/%s/%s.zip", function, branch, version)
}

// ParseArtifactKey splits an archive key back into its components. Keys that
// do not match the layout yield ErrInvalidArtifactKey.
func ParseArtifactKey(key string) (function, branch, version string, err error) {
	if !strings.HasSuffix(key, ".zip") {
		return "", "", "", fmt.Errorf("%w: %s, expected {function}/{branch}/{version}.zip", errors.ErrInvalidArtifactKey, key)
	}
	parts := strings.Split(strings.TrimSuffix(key, ".zip"), "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("%w: %s, expected {function}/{branch}/{version}.zip", errors.ErrInvalidArtifactKey, key)
	}
	return parts[0], parts[1], parts[2], nil
}

// Upload streams the archive at path to s3://{bucket}/{key}, recording the
// sha256 fingerprint as object metadata.
func (s *ArtifactStore) Upload(ctx context.Context, bucket, key, path, sha256 string) error {
	logger := zerolog.Ctx(ctx)

	if bucket == "" {
		return errors.ErrArtifactBucketUnset
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat archive %s: %w", path, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s", errors.ErrEmptyArchive, path)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/zip"),
		Metadata: map[string]string{
			"archive-sha256": sha256,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload archive to s3://%s/%s: %w", bucket, key, err)
	}

	logger.Info().
		Str("bucket", bucket).
		Str("key", key).
		Int64("bytes", info.Size()).
		Msg("Uploaded deployment archive")
	return nil
}

// Head confirms an archive object exists and returns its size. Rollback uses
// it before pointing the function at an old version.
func (s *ArtifactStore) Head(ctx context.Context, bucket, key string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to head s3://%s/%s: %w", bucket, key, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}
