package s3blob

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/carmarket/carmarket/internal/domain"
)

type fakeUploader struct {
	objects map[string]string
}

func (u *fakeUploader) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if u.objects == nil {
		u.objects = make(map[string]string)
	}
	u.objects[path] = string(body)
	return nil
}

func (u *fakeUploader) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	return u.Put(ctx, path, data, "application/x-ndjson")
}

type fakeArchiveStore struct {
	rows []domain.Activity
}

func (s *fakeArchiveStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Activity, error) {
	var out []domain.Activity
	for _, a := range s.rows {
		if a.ObservedAt.Before(before) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeArchiveStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	var kept []domain.Activity
	var deleted int64
	for _, a := range s.rows {
		if a.ObservedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, a)
	}
	s.rows = kept
	return deleted, nil
}

func activityAt(tx string, observed time.Time) domain.Activity {
	return domain.Activity{
		Kind:       domain.ActivityListed,
		ItemID:     1,
		PriceWei:   "100",
		TxHash:     tx,
		ObservedAt: observed,
	}
}

func TestConsecutivePassesKeepEveryBatch(t *testing.T) {
	base := time.Date(2026, time.August, 10, 12, 0, 0, 0, time.UTC)
	store := &fakeArchiveStore{rows: []domain.Activity{
		activityAt("0xaaa", base.Add(-2*time.Hour)),
		activityAt("0xbbb", base.Add(-1*time.Hour)),
	}}
	uploader := &fakeUploader{}
	a := NewArchiver(uploader, store, 24*time.Hour, slog.New(slog.DiscardHandler))

	ctx := context.Background()
	n, err := a.ArchiveBefore(ctx, base)
	if err != nil {
		t.Fatalf("first pass returned error: %v", err)
	}
	if n != 2 {
		t.Fatalf("first pass archived %d rows, want 2", n)
	}

	// A second pass later the same month must not overwrite the first
	// batch, whose rows no longer exist in the primary store.
	store.rows = append(store.rows, activityAt("0xccc", base.Add(30*time.Minute)))
	n, err = a.ArchiveBefore(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("second pass returned error: %v", err)
	}
	if n != 1 {
		t.Fatalf("second pass archived %d rows, want 1", n)
	}

	if len(uploader.objects) != 2 {
		t.Fatalf("uploaded %d objects, want 2 distinct keys, got %v", len(uploader.objects), uploader.objects)
	}
	var sawFirst, sawSecond bool
	for key, body := range uploader.objects {
		if !strings.HasPrefix(key, "archive/activity/2026-08/") {
			t.Errorf("key %q not partitioned under the cutoff month", key)
		}
		if strings.Contains(body, "0xaaa") && strings.Contains(body, "0xbbb") {
			sawFirst = true
		}
		if strings.Contains(body, "0xccc") {
			sawSecond = true
		}
	}
	if !sawFirst {
		t.Error("first batch is no longer present in any archived object")
	}
	if !sawSecond {
		t.Error("second batch was not archived")
	}
	if len(store.rows) != 0 {
		t.Errorf("%d rows left in the primary store, want 0", len(store.rows))
	}
}

func TestArchiveBeforeNoRows(t *testing.T) {
	uploader := &fakeUploader{}
	a := NewArchiver(uploader, &fakeArchiveStore{}, 24*time.Hour, slog.New(slog.DiscardHandler))

	n, err := a.ArchiveBefore(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveBefore returned error: %v", err)
	}
	if n != 0 || len(uploader.objects) != 0 {
		t.Errorf("empty store produced %d rows and %d objects, want none", n, len(uploader.objects))
	}
}
