package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver exports aged rows to cold storage before they are trimmed.
type Archiver interface {
	ArchiveTicks(ctx context.Context, before time.Time) (int64, error)
}
