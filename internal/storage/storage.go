// Package storage keeps uploaded file bytes in an S3-compatible blob store.
package storage

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound    = errors.New("blob not found")
	ErrUnavailable = errors.New("storage unavailable")
)

type Storage interface {
	EnsureBucketExists(ctx context.Context, bucket string) error
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, bucket, key string) error
}
