// Package archive moves the event journals of settled streams to object
// storage and prunes them from the hot audit log.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/VidbloqHQ/bookish-octo-doodle/internal/domain"
)

// Archiver writes a settled stream's audit journal to blob storage as one
// JSON object and deletes the archived rows.
type Archiver struct {
	streams domain.StreamStore
	audit   domain.AuditStore
	writer  domain.BlobWriter
	logger  *slog.Logger

	// Retention is how long a stream must have been ended before its journal
	// is archived.
	Retention time.Duration
}

// NewArchiver creates an Archiver with the given retention period.
func NewArchiver(streams domain.StreamStore, audit domain.AuditStore, writer domain.BlobWriter, retention time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		streams:   streams,
		audit:     audit,
		writer:    writer,
		logger:    logger,
		Retention: retention,
	}
}

// Run makes one archival pass: every terminal stream whose end time is past
// the retention period has its journal written out and pruned. Individual
// stream failures are logged and skipped so one bad journal does not stall
// the pass.
func (a *Archiver) Run(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-a.Retention).Unix()
	opts := domain.ListOpts{Limit: 100}
	for {
		streams, err := a.streams.ListTerminal(ctx, cutoff, opts)
		if err != nil {
			return fmt.Errorf("archive: list terminal streams: %w", err)
		}
		for _, s := range streams {
			if err := a.ArchiveStream(ctx, now, s.ID); err != nil {
				a.logger.WarnContext(ctx, "archive: stream skipped",
					slog.String("stream", s.ID.String()),
					slog.String("error", err.Error()),
				)
			}
		}
		if len(streams) < opts.Limit {
			return nil
		}
		opts.Offset += opts.Limit
	}
}

// archiveObject is the JSON shape written to blob storage.
type archiveObject struct {
	Stream     domain.Stream       `json:"stream"`
	Entries    []domain.AuditEntry `json:"entries"`
	ArchivedAt time.Time           `json:"archived_at"`
}

// ArchiveStream writes one stream's journal and prunes the audit log. The
// stream must be in a terminal state and past the retention period.
func (a *Archiver) ArchiveStream(ctx context.Context, now time.Time, id domain.ID) error {
	stream, err := a.streams.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("archive: get stream %s: %w", id, err)
	}
	if !stream.Status.Terminal() {
		return fmt.Errorf("archive: stream %s not terminal: %w", id, domain.ErrStreamNotActive)
	}
	if stream.EndTime != nil && now.Sub(time.Unix(*stream.EndTime, 0)) < a.Retention {
		return nil
	}

	var entries []domain.AuditEntry
	opts := domain.ListOpts{Limit: 500}
	for {
		page, err := a.audit.ListByStream(ctx, id, opts)
		if err != nil {
			return fmt.Errorf("archive: list journal %s: %w", id, err)
		}
		entries = append(entries, page...)
		if len(page) < opts.Limit {
			break
		}
		opts.Offset += opts.Limit
	}
	if len(entries) == 0 {
		return nil
	}

	payload, err := json.Marshal(archiveObject{
		Stream:     stream,
		Entries:    entries,
		ArchivedAt: now.UTC(),
	})
	if err != nil {
		return fmt.Errorf("archive: marshal journal %s: %w", id, err)
	}

	key := fmt.Sprintf("journals/%s/%s.json", now.UTC().Format("2006/01"), id)
	if err := a.writer.Write(ctx, key, payload, "application/json"); err != nil {
		return fmt.Errorf("archive: write journal %s: %w", id, err)
	}

	if err := a.audit.DeleteByStream(ctx, id); err != nil {
		return fmt.Errorf("archive: prune journal %s: %w", id, err)
	}

	a.logger.InfoContext(ctx, "archive: stream journal archived",
		slog.String("stream", id.String()),
		slog.String("key", key),
		slog.Int("entries", len(entries)),
	)
	return nil
}
