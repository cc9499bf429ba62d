package domain

import (
	"time"

	"mahjong-ledger/internal/constants"
)

type GameLength string

const (
	Hanchan   GameLength = "HANCHAN"
	Tonpuusen GameLength = "TONPUUSEN"
)

type GameStatus string

const (
	StatusPending   GameStatus = "PENDING"
	StatusValidated GameStatus = "VALIDATED"
	StatusRejected  GameStatus = "REJECTED"
)

type PointsType string

const (
	PointsDan  PointsType = "DAN"
	PointsRate PointsType = "RATE"
)

// Meta carries the columns shared by every root entity row: the optimistic
// lock version, the soft-delete flag and the audit trail.
type Meta struct {
	Version   int64
	Deleted   bool
	CreatedAt time.Time
	CreatedBy string
	CreatedIP string
	UpdatedAt time.Time
	UpdatedBy string
	UpdatedIP string
}

// Game is a submitted table, immutable once VALIDATED or REJECTED.
type Game struct {
	ID            string
	GameDate      time.Time
	Length        GameLength
	RulesetID     string
	SeasonID      *string
	Status        GameStatus
	DayGameNumber *int
	RejectReason  *string
	Meta
}

// GameScore is one raw submission row per (game, player). Scores exist from
// submission on; results only exist after approval.
type GameScore struct {
	GameID      string
	PlayerID    string
	Wind        string
	RawScore    int
	ChonboCount int
}

// GameResult is the settled outcome for one player of a validated game,
// created exactly once at approval time.
type GameResult struct {
	ID              string
	GameID          string
	PlayerID        string
	FinalPosition   int
	FinalScore      float64
	DanPointsEarned float64
	RateChange      float64
	Wind            string
	RawScore        int
	ChonboCount     int
	Uma             float64
	Oka             float64
	Devolution      float64
	Meta
}

// Points is one append-only ledger row. PointsValue is the absolute
// post-update value, not a delta; the ledger is the source of truth for a
// player's current Dan and Rate.
type Points struct {
	ID          string
	PlayerID    string
	SeasonID    *string
	GameID      string
	PointsType  PointsType
	PointsValue float64
	IsSanma     bool
	CreatedAt   time.Time
}

// PlayerRanking is the running aggregate per (player, table size).
type PlayerRanking struct {
	ID       string
	PlayerID string
	IsSanma  bool

	TotalGames      int
	FirstHanchan    int
	SecondHanchan   int
	ThirdHanchan    int
	FourthHanchan   int
	FirstTonpuusen  int
	SecondTonpuusen int
	ThirdTonpuusen  int
	FourthTonpuusen int
	AveragePosition float64

	DanPoints    int
	RatePoints   int
	MaxRate      int
	SeasonPoints float64
	Meta
}

// Ruleset is the scoring configuration of a table, read-only here.
type Ruleset struct {
	ID            string
	Name          string
	InPoints      int
	OutPoints     int
	Oka           float64
	ChonboPenalty float64
	Uma           []float64 // 3 slots for sanma, 4 otherwise
	IsSanma       bool
	Meta
}

// PlayerCount returns how many players this ruleset seats.
func (r *Ruleset) PlayerCount() int {
	if r.IsSanma {
		return constants.SanmaPlayers
	}
	return constants.YonmaPlayers
}

// DanConfig is one rung of the Dan ladder. Deltas are the hanchan values per
// final position; tonpuusen deltas are derived (hanchan x 2/3, rounded).
// MinPoints is inclusive, MaxPoints exclusive except on the last rank.
type DanConfig struct {
	ID            string
	IsSanma       bool
	RankOrder     int
	RankLabel     string
	FirstHanchan  float64
	SecondHanchan float64
	ThirdHanchan  float64
	FourthHanchan float64
	MinPoints     float64
	MaxPoints     float64
	IsProtected   bool
	IsLastRank    bool
}

// PositionDelta returns the hanchan Dan delta for a final position (1-based).
func (c *DanConfig) PositionDelta(position int) float64 {
	switch position {
	case 1:
		return c.FirstHanchan
	case 2:
		return c.SecondHanchan
	case 3:
		return c.ThirdHanchan
	default:
		return c.FourthHanchan
	}
}

// RateConfig parameterizes the Rate adjustment per table size.
type RateConfig struct {
	ID              string
	IsSanma         bool
	InitialRate     float64
	FirstBase       float64
	SecondBase      float64
	ThirdBase       float64
	FourthBase      float64
	AdjustmentRate  float64
	AdjustmentLimit float64
	MinAdjustment   float64
}

// PositionBase returns the base Rate delta for a final position (1-based).
func (c *RateConfig) PositionBase(position int) float64 {
	switch position {
	case 1:
		return c.FirstBase
	case 2:
		return c.SecondBase
	case 3:
		return c.ThirdBase
	default:
		return c.FourthBase
	}
}
