package constants

import "time"

const (
	RequestTimeout  = 30 * time.Second
	DatabaseTimeout = 5 * time.Second
)

const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

// Retry policy for concurrency-class failures (version conflicts, unique
// constraint races, busy/locked storage).
const (
	MutationMaxRetries  = 3
	MutationRetryBase   = 100 * time.Millisecond
	MutationRetryJitter = 50 * time.Millisecond
)

// Settlement arithmetic. Scores are compared within ScoreEpsilon; the
// zero-sum check tolerates up to ScoreSumTolerance settlement points
// (1 settlement point = 1000 raw table points).
const (
	ScoreEpsilon      = 0.01
	ScoreSumTolerance = 1.0
)

const (
	SanmaPlayers = 3
	YonmaPlayers = 4
)
