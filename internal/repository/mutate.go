// Package repository persists the ledger entities. Every mutating write goes
// through the optimistic-locking primitives in this file: conditional updates
// keyed on (id, version), version incremented by exactly one, audit columns
// stamped, deletes logical only.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mahjong-ledger/internal/domain"
)

// DBTX is satisfied by *sql.DB and *sql.Tx, so every repository runs both
// standalone and inside a caller-owned transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Mutable is the write capability every root-entity repository implements:
// create at version zero, version-checked update, logical delete.
type Mutable[T any] interface {
	Create(ctx context.Context, entity *T) error
	SoftDelete(ctx context.Context, id string, version int64) error
}

// conditionalExec runs a conditional mutation whose WHERE clause includes the
// expected version. Zero affected rows means the row moved underneath the
// caller; the live version is fetched and attached for the retry.
func conditionalExec(ctx context.Context, q DBTX, table, id string, version int64, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return &domain.StorageFailure{Op: "update " + table, Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return &domain.StorageFailure{Op: "update " + table, Err: err}
	}
	if affected == 0 {
		current, err := currentVersion(ctx, q, table, id)
		if err != nil {
			return err
		}
		return &domain.OptimisticLockConflict{
			Entity:           table,
			EntityID:         id,
			AttemptedVersion: version,
			CurrentVersion:   current,
		}
	}
	return nil
}

func currentVersion(ctx context.Context, q DBTX, table, id string) (int64, error) {
	var version int64
	query := fmt.Sprintf("SELECT version FROM %s WHERE id = ?", table)
	err := q.QueryRowContext(ctx, query, id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, &domain.StorageFailure{
			Op:  "update " + table,
			Err: fmt.Errorf("row %s does not exist", id),
		}
	}
	if err != nil {
		return -1, &domain.StorageFailure{Op: "read version of " + table, Err: err}
	}
	return version, nil
}

// softDelete flips the logical delete flag through the same conditional
// write; rows are never physically removed.
func softDelete(ctx context.Context, q DBTX, table, id string, version int64, actor domain.Actor, now time.Time) error {
	query := fmt.Sprintf(`UPDATE %s
		SET deleted = 1, version = version + 1, updated_at = ?, updated_by = ?, updated_ip = ?
		WHERE id = ? AND version = ? AND deleted = 0`, table)
	return conditionalExec(ctx, q, table, id, version, query, now, actor.ID, actor.IP, id, version)
}

// stampCreate initializes the shared columns of a new row.
func stampCreate(meta *domain.Meta, actor domain.Actor, now time.Time) {
	meta.Version = 0
	meta.Deleted = false
	meta.CreatedAt = now
	meta.CreatedBy = actor.ID
	meta.CreatedIP = actor.IP
	meta.UpdatedAt = now
	meta.UpdatedBy = actor.ID
	meta.UpdatedIP = actor.IP
}
