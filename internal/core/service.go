// Package core runs schema migrations against stored lab documents.
package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	jsonpatch "github.com/evanphx/json-patch"

	"labdoc/internal/docstore"
	"labdoc/internal/ledger"
	"labdoc/pkg/document"
	"labdoc/pkg/migrate"
)

const (
	opMigrateDocument = "migrate_document"
	opMigrateBytes    = "migrate_bytes"
	opInspect         = "inspect_document"
	opMigrateAll      = "migrate_all"
)

// Service migrates documents held in a docstore.Store with a fixed chain.
type Service struct {
	store docstore.Store
	chain *migrate.Chain
	serviceOptions
}

// NewService constructs a service for store and chain.
func NewService(store docstore.Store, chain *migrate.Chain, opts ...Option) *Service {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{store: store, chain: chain, serviceOptions: o}
}

// Chain returns the chain the service migrates with.
func (s *Service) Chain() *migrate.Chain { return s.chain }

// Outcome describes one stored-document migration.
type Outcome struct {
	Key        string
	Format     document.Format
	Status     ledger.Status
	Report     migrate.Report
	BeforeETag string
	AfterETag  string
	// Changes is the JSON merge patch taking the stored document to the
	// migrated one; nil when nothing changed.
	Changes json.RawMessage
	Written bool
}

// Inspection describes a stored document without changing it.
type Inspection struct {
	Key     string
	Format  document.Format
	ETag    string
	Version migrate.Version
	Tagged  bool
	Current migrate.Version
	Plan    []migrate.Patch
}

// Pending reports whether migrating the document would apply any patch.
func (i Inspection) Pending() bool { return len(i.Plan) > 0 }

// Failure names a document the batch could not migrate.
type Failure struct {
	Key string
	Err error
}

// BatchReport aggregates a MigrateAll run.
type BatchReport struct {
	Prefix   string
	Total    int
	Migrated int
	Current  int
	Failures []Failure
	Outcomes []Outcome
}

// Failed returns the number of documents that could not be migrated.
func (b BatchReport) Failed() int { return len(b.Failures) }

// run wraps an operation with tracing, metrics, audit and logging.
func (s *Service) run(ctx context.Context, op, key string, fn func(context.Context) (migrate.Report, error)) (migrate.Report, error) {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	rep, err := fn(ctx)
	span.End(err)
	duration := s.clock.Now().Sub(start)
	s.metrics.Observe(ctx, op, err == nil, duration)
	if mo, ok := s.metrics.(MigrationObserver); ok && (op == opMigrateDocument || op == opMigrateBytes) {
		outcome, applied := ledger.StatusCurrent, rep.Applied
		switch {
		case err != nil:
			outcome, applied = ledger.StatusFailed, nil
		case rep.Changed():
			outcome = ledger.StatusMigrated
		}
		mo.ObserveMigration(ctx, op, outcome, applied)
	}
	entry := AuditEntry{
		Operation: op,
		Key:       key,
		From:      rep.From.String(),
		To:        rep.To.String(),
		Status:    AuditStatusSuccess,
		Timestamp: start,
		Duration:  duration,
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.logger.Error("operation failed", "op", op, "key", key, "error", err)
	} else {
		s.logger.Debug("operation completed", "op", op, "key", key, "from", rep.From, "to", rep.To, "steps", len(rep.Applied), "duration", duration)
	}
	s.audit.Record(ctx, entry)
	return rep, err
}

// MigrateBytes decodes data in format, migrates it and re-encodes it. The
// input is returned unchanged when the document is already current.
func (s *Service) MigrateBytes(ctx context.Context, data []byte, format document.Format) ([]byte, migrate.Report, error) {
	out := data
	rep, err := s.run(ctx, opMigrateBytes, "", func(context.Context) (migrate.Report, error) {
		doc, err := document.Decode(data, format)
		if err != nil {
			return migrate.Report{}, err
		}
		rep, err := s.chain.Migrate(doc)
		if err != nil || !rep.Changed() {
			return rep, err
		}
		out, err = document.Encode(doc, format)
		return rep, err
	})
	if err != nil {
		return nil, rep, err
	}
	return out, rep, nil
}

// Inspect reads a stored document and reports its version and the patches a
// migration would apply.
func (s *Service) Inspect(ctx context.Context, key string) (Inspection, error) {
	var ins Inspection
	_, err := s.run(ctx, opInspect, key, func(ctx context.Context) (migrate.Report, error) {
		info, doc, format, err := s.load(ctx, key)
		if err != nil {
			return migrate.Report{}, err
		}
		v, tagged, err := s.chain.Version(doc)
		if err != nil {
			return migrate.Report{}, err
		}
		plan, err := s.chain.Plan(v)
		ins = Inspection{Key: key, Format: format, ETag: info.ETag, Version: v, Tagged: tagged, Current: s.chain.Current(), Plan: plan}
		return migrate.Report{From: v, To: v, Legacy: !tagged}, err
	})
	if err != nil {
		return ins, fmt.Errorf("inspect %s: %w", key, err)
	}
	return ins, nil
}

// MigrateDocument upgrades the document at key to the current version and
// writes it back, conditional on the ETag it was read with. Documents that
// are already current are never written. A failed migration leaves the
// stored bytes untouched.
func (s *Service) MigrateDocument(ctx context.Context, key string) (Outcome, error) {
	out := Outcome{Key: key}
	started := s.clock.Now()
	rep, err := s.run(ctx, opMigrateDocument, key, func(ctx context.Context) (migrate.Report, error) {
		return s.migrateDocument(ctx, &out)
	})
	out.Report = rep
	if err != nil {
		out.Status = ledger.StatusFailed
	}
	s.appendLedger(ctx, out, started, err)
	if err != nil {
		return out, fmt.Errorf("migrate %s: %w", key, err)
	}
	return out, nil
}

func (s *Service) migrateDocument(ctx context.Context, out *Outcome) (migrate.Report, error) {
	info, doc, format, err := s.load(ctx, out.Key)
	if err != nil {
		return migrate.Report{}, err
	}
	out.Format = format
	out.BeforeETag = info.ETag
	migrated := document.Clone(doc)
	rep, err := s.chain.Migrate(migrated)
	if err != nil {
		return rep, err
	}
	out.Status = ledger.StatusCurrent
	if !rep.Changed() {
		return rep, nil
	}
	changes, err := mergePatch(doc, migrated)
	if err != nil {
		return rep, err
	}
	if changes == nil {
		return rep, nil
	}
	out.Status = ledger.StatusMigrated
	out.Changes = changes
	if s.dryRun {
		return rep, nil
	}
	data, err := document.Encode(migrated, format)
	if err != nil {
		return rep, err
	}
	contentType := info.ContentType
	if contentType == "" {
		contentType = format.ContentType()
	}
	written, err := s.store.Put(ctx, out.Key, bytes.NewReader(data), docstore.PutOptions{
		ContentType: contentType,
		Metadata:    info.Metadata,
		IfMatch:     info.ETag,
	})
	if err != nil {
		return rep, fmt.Errorf("write back: %w", err)
	}
	out.AfterETag = written.ETag
	out.Written = true
	return rep, nil
}

// load reads key and decodes it. The format comes from the stored content
// type, then the key extension, and defaults to JSON.
func (s *Service) load(ctx context.Context, key string) (docstore.Info, document.Document, document.Format, error) {
	info, rc, err := s.store.Get(ctx, key)
	if err != nil {
		return info, nil, "", err
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return info, nil, "", fmt.Errorf("read: %w", err)
	}
	format := document.FormatFromContentType(info.ContentType)
	if format == "" {
		format = document.FormatFromName(key)
	}
	if format == "" {
		format = document.FormatJSON
	}
	doc, err := document.Decode(data, format)
	if err != nil {
		return info, nil, format, err
	}
	return info, doc, format, nil
}

// mergePatch returns the RFC 7386 patch from before to after, or nil when
// the two documents serialize identically.
func mergePatch(before, after document.Document) (json.RawMessage, error) {
	a, err := document.Encode(before, document.FormatJSON)
	if err != nil {
		return nil, err
	}
	b, err := document.Encode(after, document.FormatJSON)
	if err != nil {
		return nil, err
	}
	patch, err := jsonpatch.CreateMergePatch(a, b)
	if err != nil {
		return nil, fmt.Errorf("diff documents: %w", err)
	}
	if string(bytes.TrimSpace(patch)) == "{}" {
		return nil, nil
	}
	return patch, nil
}

// appendLedger records out. Ledger failures are logged, never returned: the
// document write has already happened.
func (s *Service) appendLedger(ctx context.Context, out Outcome, started time.Time, runErr error) {
	if s.ledger == nil || s.dryRun {
		return
	}
	rec := ledger.Record{
		Key:        out.Key,
		From:       out.Report.From.String(),
		To:         out.Report.To.String(),
		Status:     out.Status,
		Steps:      len(out.Report.Applied),
		BeforeETag: out.BeforeETag,
		AfterETag:  out.AfterETag,
		Changes:    out.Changes,
		StartedAt:  started,
		FinishedAt: s.clock.Now(),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if _, err := s.ledger.Append(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("ledger append failed", "key", out.Key, "error", err)
	}
}

// History returns the ledger records for key, oldest first.
func (s *Service) History(ctx context.Context, key string) ([]ledger.Record, error) {
	if s.ledger == nil {
		return nil, errors.New("no ledger configured")
	}
	return s.ledger.History(ctx, key)
}

// MigrateAll migrates every document under prefix in key order. Per-document
// failures are collected and do not stop the run; a cancelled context stops
// it between documents.
func (s *Service) MigrateAll(ctx context.Context, prefix string) (BatchReport, error) {
	batch := BatchReport{Prefix: prefix}
	_, err := s.run(ctx, opMigrateAll, prefix, func(ctx context.Context) (migrate.Report, error) {
		infos, err := s.store.List(ctx, prefix)
		if err != nil {
			return migrate.Report{}, fmt.Errorf("list %q: %w", prefix, err)
		}
		for _, info := range infos {
			if err := ctx.Err(); err != nil {
				return migrate.Report{}, err
			}
			batch.Total++
			out, err := s.MigrateDocument(ctx, info.Key)
			batch.Outcomes = append(batch.Outcomes, out)
			switch {
			case err != nil:
				batch.Failures = append(batch.Failures, Failure{Key: info.Key, Err: err})
			case out.Status == ledger.StatusMigrated:
				batch.Migrated++
			default:
				batch.Current++
			}
		}
		s.logger.Info("batch migration finished", "prefix", prefix, "total", batch.Total,
			"migrated", batch.Migrated, "current", batch.Current, "failed", batch.Failed())
		return migrate.Report{}, nil
	})
	return batch, err
}
