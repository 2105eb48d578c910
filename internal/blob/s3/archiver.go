package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/carmarket/carmarket/internal/domain"
)

// ActivityArchiveStore is the slice of the activity store the archiver
// needs: reading rows past retention and deleting them once archived.
type ActivityArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Activity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Uploader is the slice of the blob writer the archiver needs.
type Uploader interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver moves aged activity-log rows to object storage as JSONL and
// deletes them from the primary store only after the upload succeeded.
type Archiver struct {
	writer    Uploader
	store     ActivityArchiveStore
	retention time.Duration
	logger    *slog.Logger
}

// NewArchiver creates an Archiver that keeps retention worth of activity
// in the primary store.
func NewArchiver(writer Uploader, store ActivityArchiveStore, retention time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:    writer,
		store:     store,
		retention: retention,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveBefore archives and then deletes all activity observed strictly
// before the cutoff. It returns the number of rows archived.
func (a *Archiver) ArchiveBefore(ctx context.Context, before time.Time) (int64, error) {
	acts, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(acts) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(acts)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := archivePath(before)
	if int64(len(buf)) > minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	deleted, err := a.store.DeleteBefore(ctx, before)
	if err != nil {
		// The upload stands; the next cycle re-archives the rows under a
		// later key. Consumers deduplicate on (tx_hash, log_index).
		return int64(len(acts)), fmt.Errorf("s3blob: archive delete: %w", err)
	}

	a.logger.InfoContext(ctx, "activity archived",
		slog.String("path", path),
		slog.Int("archived", len(acts)),
		slog.Int64("deleted", deleted),
	)
	return int64(len(acts)), nil
}

// Run archives on a fixed interval until the context is cancelled. One
// pass runs immediately on start.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := a.ArchiveBefore(ctx, time.Now().Add(-a.retention)); err != nil {
			a.logger.ErrorContext(ctx, "archive pass failed",
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// archivePath builds the S3 key for an archive file. Keys are partitioned
// by the year-month of the cutoff and carry the full cutoff timestamp, so
// a later pass in the same month never overwrites an earlier batch whose
// rows were already deleted from the primary store.
//
//	archive/activity/2026-08/20260831T120000Z.jsonl
func archivePath(before time.Time) string {
	utc := before.UTC()
	return fmt.Sprintf("archive/activity/%s/%s.jsonl",
		utc.Format("2006-01"), utc.Format("20060102T150405Z"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
