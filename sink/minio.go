package sink

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/teranos/PTX/am"
	"github.com/teranos/PTX/errors"
)

// MinIOSink writes results as objects <prefix><name>.jsonl in one bucket
type MinIOSink struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinIOSink connects to the endpoint and creates the bucket if needed
func NewMinIOSink(ctx context.Context, cfg am.MinIOSinkConfig) (*MinIOSink, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: "us-east-1",
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create MinIO client for %s", cfg.Endpoint)
	}
	return newMinIOSink(ctx, client, cfg.Bucket, cfg.Prefix)
}

func newMinIOSink(ctx context.Context, client *minio.Client, bucket, prefix string) (*MinIOSink, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, errors.StorageIO(err, fmt.Sprintf("failed to check bucket %s", bucket))
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.StorageIO(err, fmt.Sprintf("failed to create bucket %s", bucket))
		}
	}
	return &MinIOSink{client: client, bucket: bucket, prefix: prefix}, nil
}

// Save stats the key first and refuses to overwrite. Two writers racing on
// one name between stat and put can both succeed; the later one wins.
func (s *MinIOSink) Save(ctx context.Context, name string, entries []any) (string, error) {
	data, err := encodeJSONL(entries)
	if err != nil {
		return "", err
	}
	key := s.prefix + name + Extension

	_, err = s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	switch {
	case err == nil:
		return "", collision(name)
	case minio.ToErrorResponse(err).Code != "NoSuchKey":
		return "", errors.StorageIO(err, fmt.Sprintf("failed to stat %s", key))
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/x-ndjson"})
	if err != nil {
		return "", errors.StorageIO(err, fmt.Sprintf("failed to upload %s", key))
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
