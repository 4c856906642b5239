// Package archive stores the original uploaded files in object storage.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
)

var ErrNotFound = errors.New("archived object not found")

type MinioArchive struct {
	client *minio.Client
	bucket string
}

func NewMinioArchive(client *minio.Client, bucket string) *MinioArchive {
	return &MinioArchive{client: client, bucket: bucket}
}

func (a *MinioArchive) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s failed: %w", key, err)
	}
	return nil
}

// Get opens the object for reading. The caller closes the reader.
func (a *MinioArchive) Get(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("get object %s failed: %w", key, err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, 0, fmt.Errorf("stat object %s failed: %w", key, err)
	}
	return obj, info.Size, nil
}

func (a *MinioArchive) Remove(ctx context.Context, key string) error {
	if err := a.client.RemoveObject(ctx, a.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s failed: %w", key, err)
	}
	return nil
}
