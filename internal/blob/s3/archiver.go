package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lmoura/cryptopilot/internal/domain"
)

// archivePageSize bounds how many ticks are pulled from the store per query
// while building an archive file.
const archivePageSize = 5000

// Archiver implements domain.Archiver by paging aged ticks out of the
// primary store, serializing them to JSONL, and uploading the result to S3.
//
// Deletion of the archived rows from the primary store is intentionally NOT
// performed here. The retention loop trims rows only after the archive
// upload has succeeded.
type Archiver struct {
	writer domain.BlobWriter
	ticks  domain.TickStore
	logger *slog.Logger
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates a new Archiver.
func NewArchiver(writer domain.BlobWriter, ticks domain.TickStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		ticks:  ticks,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveTicks collects all ticks recorded strictly before the cutoff,
// serializes them to JSONL, and uploads the file to S3 at
// archive/ticks/YYYY-MM-DD.jsonl. The count of archived rows is returned.
// When no rows are older than the cutoff, nothing is uploaded.
func (a *Archiver) ArchiveTicks(ctx context.Context, before time.Time) (int64, error) {
	var (
		buf   bytes.Buffer
		count int64
	)
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	var cursor time.Time
	for {
		page, err := a.ticks.ListBefore(ctx, cursor, before, archivePageSize)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive ticks query: %w", err)
		}
		if len(page) == 0 {
			break
		}
		for _, t := range page {
			if err := enc.Encode(t); err != nil {
				return 0, fmt.Errorf("s3blob: archive ticks encode: %w", err)
			}
		}
		count += int64(len(page))
		if len(page) < archivePageSize {
			break
		}
		// Pages come back oldest-first, so the last row's timestamp becomes
		// the lower bound of the next window.
		cursor = page[len(page)-1].Timestamp
	}

	if count == 0 {
		return 0, nil
	}

	path := archivePath("ticks", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf.Bytes()), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive ticks upload: %w", err)
	}

	a.logger.Info("archived ticks",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.Time("before", before))

	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// calendar day of the cutoff time.
//
//	archive/ticks/2025-01-15.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.UTC().Format("2006-01-02"))
}
