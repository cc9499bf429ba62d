// Package rating computes the new Dan and Rate values a settled game assigns
// to each participant. The exact deltas come from a FormulaProvider so the
// blending weights can be pinned without touching callers.
package rating

import (
	"fmt"
	"math"

	"mahjong-ledger/internal/domain"

	"github.com/rs/zerolog"
)

// PlayerState is the snapshot of a participant right before the game settles.
type PlayerState struct {
	PlayerID    string
	DanPoints   float64
	RatePoints  float64
	GamesPlayed int
}

// Update holds a participant's new absolute values and the deltas that
// produced them.
type Update struct {
	PlayerID   string
	DanPoints  float64
	DanDelta   float64
	RatePoints float64
	RateDelta  float64
}

// FormulaProvider supplies the raw deltas. Implementations must be pure and
// deterministic functions of their inputs.
type FormulaProvider interface {
	// DanDelta returns the Dan points delta for finishing at position in a
	// game of the given length while in the given bracket.
	DanDelta(position int, length domain.GameLength, bracket *domain.DanConfig) float64
	// RateDelta returns the Rate change for finishing at position, given the
	// player's current rate, the table average and the games played so far.
	RateDelta(position int, current, tableAverage float64, gamesPlayed int, cfg *domain.RateConfig) float64
}

type Engine struct {
	provider FormulaProvider
	logger   zerolog.Logger
}

func NewEngine(provider FormulaProvider, logger zerolog.Logger) *Engine {
	return &Engine{provider: provider, logger: logger}
}

// Update applies one settled position to a player's ratings. The ladder must
// be the full DanConfig ladder for the table size, ordered by rank; cfg the
// matching RateConfig row.
func (e *Engine) Update(
	state PlayerState,
	position int,
	length domain.GameLength,
	tableAverage float64,
	ladder []domain.DanConfig,
	cfg *domain.RateConfig,
) (Update, error) {
	if cfg == nil {
		return Update{}, &domain.ConfigurationMissing{
			Kind:   "rate_config",
			Detail: fmt.Sprintf("player %s", state.PlayerID),
		}
	}

	bracket, err := BracketFor(ladder, state.DanPoints)
	if err != nil {
		return Update{}, err
	}

	danDelta := e.provider.DanDelta(position, length, bracket)
	newDan := state.DanPoints + danDelta
	if newDan < bracket.MinPoints && (bracket.IsProtected || bracket.IsLastRank) {
		newDan = bracket.MinPoints
	}
	if newDan < 0 {
		// the bottom of the ladder starts at zero; points never go negative
		newDan = 0
	}

	rateDelta := e.provider.RateDelta(position, state.RatePoints, tableAverage, state.GamesPlayed, cfg)
	newRate := state.RatePoints + rateDelta

	e.logger.Debug().
		Str("player_id", state.PlayerID).
		Int("position", position).
		Str("rank", bracket.RankLabel).
		Float64("dan_delta", danDelta).
		Float64("rate_delta", rateDelta).
		Msg("rating update computed")

	return Update{
		PlayerID:   state.PlayerID,
		DanPoints:  newDan,
		DanDelta:   newDan - state.DanPoints,
		RatePoints: newRate,
		RateDelta:  rateDelta,
	}, nil
}

// BracketFor finds the ladder rung whose [MinPoints, MaxPoints) range holds
// points. The last rank is open-ended upward.
func BracketFor(ladder []domain.DanConfig, points float64) (*domain.DanConfig, error) {
	for i := range ladder {
		b := &ladder[i]
		if points >= b.MinPoints && (points < b.MaxPoints || b.IsLastRank) {
			return b, nil
		}
	}
	sanma := len(ladder) > 0 && ladder[0].IsSanma
	return nil, &domain.ConfigurationMissing{
		Kind:    "dan_config",
		IsSanma: sanma,
		Detail:  fmt.Sprintf("no bracket holds %.1f points (%d rungs)", points, len(ladder)),
	}
}

// TonpuusenDelta derives the short-game delta from a hanchan delta.
func TonpuusenDelta(hanchan float64) float64 {
	return math.Round(hanchan * 2 / 3)
}
