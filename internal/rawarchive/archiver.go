// Package rawarchive stores the raw event envelopes of a sync run in Google
// Cloud Storage so a run can be replayed or inspected after the fact.
package rawarchive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"cloud.google.com/go/storage"

	"github.com/dvloznov/amazon-finance-sync/internal/domain"
)

const objectPrefix = "raw-events"

// GCSArchiver writes one JSON object per run under raw-events/<runID>.json.
// It assumes Application Default Credentials are configured.
type GCSArchiver struct {
	bucket string
}

// New creates an archiver targeting the given bucket.
func New(bucket string) *GCSArchiver {
	return &GCSArchiver{bucket: bucket}
}

// ArchiveRawEvents uploads the run's envelopes as a single JSON array.
func (a *GCSArchiver) ArchiveRawEvents(ctx context.Context, runID string, events []domain.RawEvent) error {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	obj := client.Bucket(a.bucket).Object(path.Join(objectPrefix, runID+".json"))
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"

	if err := json.NewEncoder(w).Encode(events); err != nil {
		_ = w.Close()
		return fmt.Errorf("encode raw events: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}
