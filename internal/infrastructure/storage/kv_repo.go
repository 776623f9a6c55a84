// Package storage provides SQLite-based storage implementations for the
// session snapshot and the offline write queue.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jbctechsolutions/focusvault/internal/application/ports"
	domainErrors "github.com/jbctechsolutions/focusvault/internal/domain/errors"
)

// Compile-time check that KVRepository implements KeyValueStoragePort.
var _ ports.KeyValueStoragePort = (*KVRepository)(nil)

// KVRepository implements KeyValueStoragePort on the kv_store table.
type KVRepository struct {
	db *sql.DB
}

// NewKVRepository creates a new key-value repository.
func NewKVRepository(db *sql.DB) *KVRepository {
	return &KVRepository{db: db}
}

// Get returns the value stored under key.
func (r *KVRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageError("failed to read key "+key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (r *KVRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return storageError("failed to write key "+key, err)
	}
	return nil
}

// Delete removes key. A missing key is not an error.
func (r *KVRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return storageError("failed to delete key "+key, err)
	}
	return nil
}

// storageError wraps a database failure as a STORAGE domain error.
func storageError(msg string, err error) error {
	return domainErrors.NewError(domainErrors.CodeStorage, msg, fmt.Errorf("%w: %w", domainErrors.ErrStorageUnavailable, err))
}
