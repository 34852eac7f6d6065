package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

const contentTypeJSONL = "application/x-ndjson"

// SaleHistory is the slice of domain.SaleStore the archiver reads.
type SaleHistory interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Sale, error)
}

// Archiver implements domain.Archiver. It exports records older than the
// cutoff as JSONL and never deletes them from the primary store. A rerun
// for the same month overwrites the object with a superset.
type Archiver struct {
	writer domain.BlobWriter
	sales  SaleHistory
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, sales SaleHistory, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		writer: writer,
		sales:  sales,
		audit:  audit,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveSales uploads sales settled before the cutoff to
// archive/sales/YYYY-MM.jsonl.
func (a *Archiver) ArchiveSales(ctx context.Context, before time.Time) (int64, error) {
	sales, err := a.sales.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive sales query: %w", err)
	}
	return archive(ctx, a, "sales", before, sales)
}

// ArchiveAudit uploads audit entries before the cutoff to
// archive/audit/YYYY-MM.jsonl.
func (a *Archiver) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	return archive(ctx, a, "audit", before, entries)
}

func archive[T any](ctx context.Context, a *Archiver, kind string, before time.Time, records []T) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	path := ArchivePath(kind, before)
	if int64(len(buf)) > MinPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), MinPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), contentTypeJSONL)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := int64(len(records))
	a.logger.Info("archiver: uploaded",
		slog.String("kind", kind),
		slog.String("path", path),
		slog.Int64("count", count),
	)
	if err := a.audit.Log(ctx, "archive."+kind, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.UTC().Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
	}
	return count, nil
}

// ArchivePath is the object key for kind, partitioned by the cutoff month:
//
//	archive/sales/2026-01.jsonl
func ArchivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.UTC().Format("2006-01"))
}

// marshalJSONL encodes one compact JSON document per line.
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

var _ domain.Archiver = (*Archiver)(nil)
