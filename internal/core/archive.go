package core

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/graphvault/graphvault/internal/model"
)

// ArchiveService copies completed snapshots to S3-compatible object storage
// as gzipped tarballs. The archive is an extra safety net behind local
// snapshots and replication; it is written best-effort and never read on the
// hot path.
type ArchiveService struct {
	logger    zerolog.Logger
	endpoint  string
	bucket    string
	accessKey string
	secretKey string
}

func NewArchiveService(logger zerolog.Logger, endpoint, bucket, accessKey, secretKey string) *ArchiveService {
	return &ArchiveService{
		logger:    logger.With().Str("component", "archive").Logger(),
		endpoint:  endpoint,
		bucket:    bucket,
		accessKey: accessKey,
		secretKey: secretKey,
	}
}

// s3Client returns an S3 client configured for the archive endpoint.
func (a *ArchiveService) s3Client() *s3.Client {
	return s3.New(s3.Options{
		BaseEndpoint: aws.String(a.endpoint),
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider(a.accessKey, a.secretKey, ""),
		UsePathStyle: true,
	})
}

func archiveKey(graphID, backupID string) string {
	return fmt.Sprintf("%s/%s.tar.gz", graphID, backupID)
}

// EnsureBucket creates the archive bucket if it does not exist. Called once
// at startup.
func (a *ArchiveService) EnsureBucket(ctx context.Context) error {
	client := a.s3Client()
	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		if !strings.Contains(err.Error(), "BucketAlreadyExists") &&
			!strings.Contains(err.Error(), "BucketAlreadyOwnedByYou") {
			return fmt.Errorf("create archive bucket %s: %w", a.bucket, err)
		}
	}
	return nil
}

// ArchiveSnapshot streams one snapshot's tree into the archive bucket.
func (a *ArchiveService) ArchiveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	key := archiveKey(snap.GraphID, snap.BackupID)
	a.logger.Info().Str("backup_id", snap.BackupID).Str("key", key).Msg("archiving snapshot")

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeTarGz(pw, snap.StoragePath))
	}()

	_, err := a.s3Client().PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        pr,
		ContentType: aws.String("application/gzip"),
		Metadata: map[string]string{
			"content-hash": snap.ContentHash,
		},
	})
	if err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("archive snapshot %s: %w", snap.BackupID, err)
	}
	return nil
}

// DeleteArchived removes a snapshot's archived copy. Missing objects are not
// an error; local deletion must not fail because the archive copy is gone.
func (a *ArchiveService) DeleteArchived(ctx context.Context, graphID, backupID string) error {
	key := archiveKey(graphID, backupID)
	_, err := a.s3Client().DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !strings.Contains(err.Error(), "NoSuchKey") {
		return fmt.Errorf("delete archived snapshot %s: %w", backupID, err)
	}
	return nil
}

// ListArchived returns the archived object keys for one graph.
func (a *ArchiveService) ListArchived(ctx context.Context, graphID string) ([]string, error) {
	client := a.s3Client()
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(graphID + "/"),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list archived snapshots for %s: %w", graphID, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}
