package repository

import (
	"context"
	"database/sql"
	"errors"

	"mahjong-ledger/internal/constants"
	"mahjong-ledger/internal/domain"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// WithRetry re-invokes fn on concurrency-class failures with exponential
// backoff plus jitter. fn must re-read any state it conditions on, since a
// retried attempt starts from the live rows. Every other failure passes
// through immediately.
func WithRetry(ctx context.Context, logger zerolog.Logger, fn func(ctx context.Context) error) error {
	backoff := retry.NewExponential(constants.MutationRetryBase)
	backoff = retry.WithJitter(constants.MutationRetryJitter, backoff)
	backoff = retry.WithMaxRetries(constants.MutationMaxRetries, backoff)

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if IsConcurrencyConflict(err) {
			logger.Warn().
				Err(err).
				Int("attempt", attempt).
				Msg("concurrency conflict, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
}

// IsConcurrencyConflict reports whether err is one of the transient classes
// worth retrying: a version conflict, a unique-constraint race, or the store
// being busy or locked.
func IsConcurrencyConflict(err error) bool {
	var conflict *domain.OptimisticLockConflict
	if errors.As(err, &conflict) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return true
		}
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return true
		}
	}
	return false
}

// InTx runs fn inside one transaction, rolling back on any error, including
// context cancellation mid-flight.
func InTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.StorageFailure{Op: "begin transaction", Err: err}
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &domain.StorageFailure{Op: "commit transaction", Err: err}
	}
	return nil
}
