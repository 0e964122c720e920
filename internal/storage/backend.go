// Package storage provides the object-storage backends holding backup
// artifacts and the redundant dual-backend composition over them.
package storage

import (
	"context"
	"io"
)

// Backend is one object-storage destination.
type Backend interface {
	Name() string
	Upload(ctx context.Context, key string, content io.Reader, size int64) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
