// Package s3 implements an S3-compatible backend.Service on top of
// github.com/aws/aws-sdk-go-v2/service/s3, the teacher's own dependency.
// Style grounded on the sibling rules_img fork's registry/s3 handler
// (config.LoadDefaultConfig + s3.NewFromConfig, *types.NotFound handling).
package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/imgstash/imgstash/pkg/api"
	"github.com/imgstash/imgstash/pkg/apierr"
	"github.com/imgstash/imgstash/pkg/backend"
)

// Backend stores one object per blob under a configurable key prefix.
type Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

// New loads the default AWS credential chain and returns a backend bound
// to bucket. prefix is prepended to every object key (e.g. "imgstash/").
func New(ctx context.Context, bucket, prefix string, optFns ...func(*config.LoadOptions) error) (*Backend, error) {
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("s3 backend: loading AWS config: %w", err)
	}
	return &Backend{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (b *Backend) Kind() api.BackendKind { return api.BackendS3 }

func (b *Backend) objectKey(digest string) string {
	return b.prefix + digest
}

func (b *Backend) Put(ctx context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	digest := "sha256:" + hex.EncodeToString(sum[:])

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(digest)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("%w: s3 PutObject: %v", apierr.ErrBackendUnavailable, err)
	}
	return digest, nil
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil, &backend.ErrKeyNotFound{Key: key}
		}
		return nil, fmt.Errorf("%w: s3 GetObject: %v", apierr.ErrBackendUnavailable, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (b *Backend) List(ctx context.Context, yield func(key string, err error) bool) {
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			yield("", fmt.Errorf("%w: s3 ListObjectsV2: %v", apierr.ErrBackendUnavailable, err))
			return
		}
		for _, obj := range page.Contents {
			key := (*obj.Key)[len(b.prefix):]
			if !yield(key, nil) {
				return
			}
		}
	}
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("%w: s3 DeleteObject: %v", apierr.ErrBackendUnavailable, err)
	}
	return nil
}
