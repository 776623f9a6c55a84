package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jbctechsolutions/focusvault/internal/application/ports"
	domainErrors "github.com/jbctechsolutions/focusvault/internal/domain/errors"
	"github.com/jbctechsolutions/focusvault/internal/domain/outbox"
)

// Compile-time check that QueueRepository implements WriteQueueStoragePort.
var _ ports.WriteQueueStoragePort = (*QueueRepository)(nil)

// QueueRepository implements WriteQueueStoragePort on the queued_writes table.
type QueueRepository struct {
	db *sql.DB
}

// NewQueueRepository creates a new queue repository.
func NewQueueRepository(db *sql.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Append persists w and sets w.Seq to the assigned row sequence.
func (r *QueueRepository) Append(ctx context.Context, w *outbox.QueuedWrite) error {
	if err := w.Request.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO queued_writes (id, method, target_url, body, enqueued_at_ms, attempts, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		w.ID,
		w.Request.Method,
		w.Request.Path,
		nullableBody(w.Request.Body),
		w.EnqueuedAtMs,
		w.Attempts,
		nullableString(w.LastError),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return domainErrors.NewError(domainErrors.CodeValidation, "queued write already exists", err)
		}
		return storageError("failed to append queued write", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return storageError("failed to read queued write sequence", err)
	}
	w.Seq = seq
	return nil
}

// List returns queued writes in replay order, which is insertion order. The
// enqueue timestamp only drives expiry, since the wall clock can step back.
// A limit of 0 returns all.
func (r *QueueRepository) List(ctx context.Context, limit int) ([]*outbox.QueuedWrite, error) {
	query := `
		SELECT seq, id, method, target_url, body, enqueued_at_ms, attempts, last_error
		FROM queued_writes
		ORDER BY seq ASC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageError("failed to list queued writes", err)
	}
	defer rows.Close()

	var writes []*outbox.QueuedWrite
	for rows.Next() {
		w, err := scanWrite(rows)
		if err != nil {
			return nil, err
		}
		writes = append(writes, w)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("failed to iterate queued writes", err)
	}
	return writes, nil
}

// Delete removes the write with id. A missing entry is not an error.
func (r *QueueRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM queued_writes WHERE id = ?`, id); err != nil {
		return storageError("failed to delete queued write", err)
	}
	return nil
}

// RecordFailure increments the attempt counter of id and stores lastErr.
func (r *QueueRepository) RecordFailure(ctx context.Context, id string, lastErr string) error {
	query := `UPDATE queued_writes SET attempts = attempts + 1, last_error = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, nullableString(lastErr), id)
	if err != nil {
		return storageError("failed to record queued write failure", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return storageError("failed to check update result", err)
	}
	if rows == 0 {
		return domainErrors.NewError(domainErrors.CodeNotFound, fmt.Sprintf("queued write not found: %s", id), nil)
	}
	return nil
}

// Count returns the number of queued writes.
func (r *QueueRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queued_writes`).Scan(&count); err != nil {
		return 0, storageError("failed to count queued writes", err)
	}
	return count, nil
}

// DeleteOlderThan removes writes enqueued before cutoff.
func (r *QueueRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM queued_writes WHERE enqueued_at_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, storageError("failed to purge queued writes", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, storageError("failed to check purge result", err)
	}
	return int(rows), nil
}

// scanWrite reads one queued_writes row.
func scanWrite(rows *sql.Rows) (*outbox.QueuedWrite, error) {
	var (
		w       outbox.QueuedWrite
		body    sql.NullString
		lastErr sql.NullString
	)
	err := rows.Scan(&w.Seq, &w.ID, &w.Request.Method, &w.Request.Path, &body, &w.EnqueuedAtMs, &w.Attempts, &lastErr)
	if err != nil {
		return nil, storageError("failed to scan queued write", err)
	}
	if body.Valid && body.String != "" {
		w.Request.Body = json.RawMessage(body.String)
	}
	w.LastError = lastErr.String
	return &w, nil
}

func nullableBody(body json.RawMessage) sql.NullString {
	if len(body) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(body), Valid: true}
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
