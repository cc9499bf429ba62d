package domain

import (
	"fmt"
)

// ValidationError reports malformed input: score-sum mismatch, wrong player
// count, duplicate players, or an action against a game in a terminal state.
// Nothing is written when it is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// OrderingViolation reports an approve or reject aimed at a game other than
// the head of the pending order. Nothing is written when it is returned.
type OrderingViolation struct {
	GameID     string
	HeadGameID string
}

func (e *OrderingViolation) Error() string {
	return fmt.Sprintf("game %s is not the oldest pending game (head is %s)", e.GameID, e.HeadGameID)
}

// OptimisticLockConflict reports a conditional update that matched zero rows
// because the row's version moved under the caller. CurrentVersion holds the
// live version so the caller can refetch and retry.
type OptimisticLockConflict struct {
	Entity           string
	EntityID         string
	AttemptedVersion int64
	CurrentVersion   int64
}

func (e *OptimisticLockConflict) Error() string {
	return fmt.Sprintf("optimistic lock conflict on %s %s: attempted version %d, current version %d",
		e.Entity, e.EntityID, e.AttemptedVersion, e.CurrentVersion)
}

// ConfigurationMissing reports that no DanConfig bracket or RateConfig row
// matches the table size or the player's current points. Fatal for the
// settlement; the game stays PENDING.
type ConfigurationMissing struct {
	Kind    string
	IsSanma bool
	Detail  string
}

func (e *ConfigurationMissing) Error() string {
	size := "yonma"
	if e.IsSanma {
		size = "sanma"
	}
	return fmt.Sprintf("no %s configuration for %s: %s", e.Kind, size, e.Detail)
}

// StorageFailure wraps a backing-store error that is not part of the typed
// taxonomy above.
type StorageFailure struct {
	Op  string
	Err error
}

func (e *StorageFailure) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageFailure) Unwrap() error {
	return e.Err
}
