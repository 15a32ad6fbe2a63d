// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package journal keeps an append-only SQLite audit trail of snapshot
// lineage. It sees every snapshot the lineage store creates or deletes, so
// a dangling parent id can still be explained after its snapshot is gone.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/reconcile-engine/internal/apperr"
	"github.com/pdiddy/reconcile-engine/internal/lineage"
	"github.com/pdiddy/reconcile-engine/pkg/types"
)

// MemoryDSN keeps the journal in process memory for one session.
const MemoryDSN = ":memory:"

// Entry is one journaled snapshot.
type Entry struct {
	ID           string               `json:"id"`
	Version      int                  `json:"version"`
	Kind         types.ProvenanceKind `json:"kind"`
	Label        string               `json:"label,omitempty"`
	Query        string               `json:"query,omitempty"`
	Description  string               `json:"description,omitempty"`
	ParentIDs    []string             `json:"parent_ids,omitempty"`
	Records      int                  `json:"records"`
	TotalMatched int                  `json:"total_matched"`
	CreatedAt    time.Time            `json:"created_at"`
	DeletedAt    *time.Time           `json:"deleted_at,omitempty"`
}

// Deleted reports whether the snapshot was deleted from the lineage store.
func (e Entry) Deleted() bool { return e.DeletedAt != nil }

// Journal is the SQLite audit journal.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ lineage.Observer = (*Journal)(nil)

// Open opens or creates the journal at cfg.DSN, creating the schema if it
// does not exist. An empty DSN selects MemoryDSN.
func Open(cfg types.JournalConfig, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		dsn = MemoryDSN
	}

	source := dsn
	if dsn != MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
		source = dsn + "?_journal_mode=WAL&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", source)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db, logger: logger, now: time.Now}
	if err := j.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return j, nil
}

// Close releases the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			label TEXT,
			query TEXT,
			description TEXT,
			parent_ids TEXT,
			record_count INTEGER NOT NULL,
			total_matched INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			deleted_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_seq ON snapshots(seq)`,
		`CREATE TABLE IF NOT EXISTS snapshot_records (
			snapshot_id TEXT NOT NULL REFERENCES snapshots(id),
			position INTEGER NOT NULL,
			record_id TEXT NOT NULL,
			source TEXT NOT NULL,
			PRIMARY KEY (snapshot_id, position)
		)`,
	}
	for _, stmt := range statements {
		if _, err := j.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record journals a newly created snapshot and its record ids.
func (j *Journal) Record(ctx context.Context, snap types.Snapshot) error {
	parents, err := json.Marshal(snap.Provenance.ParentIDs)
	if err != nil {
		return fmt.Errorf("encoding parent ids: %w", err)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, seq, kind, label, query, description, parent_ids, record_count, total_matched, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.Seq, string(snap.Provenance.Kind), snap.Label,
		snap.Provenance.Query, snap.Provenance.Description, string(parents),
		len(snap.Records), snap.TotalMatched, snap.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot %s: %w", snap.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO snapshot_records (snapshot_id, position, record_id, source) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing record insert: %w", err)
	}
	defer stmt.Close()
	for i, r := range snap.Records {
		if _, err := stmt.ExecContext(ctx, snap.ID, i, r.ID, string(r.Source)); err != nil {
			return fmt.Errorf("inserting record %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// MarkDeleted stamps the snapshot's deletion time. The row is kept.
func (j *Journal) MarkDeleted(ctx context.Context, id string) error {
	res, err := j.db.ExecContext(ctx,
		`UPDATE snapshots SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		j.now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("marking snapshot %s deleted: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NewNotFound("journal", "snapshot", id)
	}
	return nil
}

// SnapshotCreated implements lineage.Observer.
func (j *Journal) SnapshotCreated(snap types.Snapshot) {
	if err := j.Record(context.Background(), snap); err != nil {
		j.logger.Warn("journal: recording snapshot failed", "id", snap.ID, "err", err)
	}
}

// SnapshotDeleted implements lineage.Observer.
func (j *Journal) SnapshotDeleted(id string) {
	if err := j.MarkDeleted(context.Background(), id); err != nil {
		j.logger.Warn("journal: marking snapshot deleted failed", "id", id, "err", err)
	}
}

const entryColumns = `id, seq, kind, label, query, description, parent_ids, record_count, total_matched, created_at, deleted_at`

// History returns every journaled snapshot in creation order, including
// deleted ones.
func (j *Journal) History(ctx context.Context) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM snapshots ORDER BY seq, created_at`)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Lookup returns the journaled entry for id, deleted or not.
func (j *Journal) Lookup(ctx context.Context, id string) (Entry, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM snapshots WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, apperr.NewNotFound("journal", "snapshot", id)
	}
	return e, err
}

// RecordIDs returns the ids of the records a snapshot captured, in order.
func (j *Journal) RecordIDs(ctx context.Context, snapshotID string) ([]string, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT record_id FROM snapshot_records WHERE snapshot_id = ? ORDER BY position`, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("querying snapshot records: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning record id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e                          Entry
		kind                       string
		label, query, desc, parent sql.NullString
		created                    string
		deleted                    sql.NullString
	)
	err := s.Scan(&e.ID, &e.Version, &kind, &label, &query, &desc, &parent,
		&e.Records, &e.TotalMatched, &created, &deleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scanning snapshot: %w", err)
	}

	e.Kind = types.ProvenanceKind(kind)
	e.Label, e.Query, e.Description = label.String, query.String, desc.String
	if parent.Valid && parent.String != "" && parent.String != "null" {
		if err := json.Unmarshal([]byte(parent.String), &e.ParentIDs); err != nil {
			return Entry{}, fmt.Errorf("decoding parent ids of %s: %w", e.ID, err)
		}
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Entry{}, fmt.Errorf("parsing created_at of %s: %w", e.ID, err)
	}
	if deleted.Valid {
		t, err := time.Parse(time.RFC3339Nano, deleted.String)
		if err != nil {
			return Entry{}, fmt.Errorf("parsing deleted_at of %s: %w", e.ID, err)
		}
		e.DeletedAt = &t
	}
	return e, nil
}
