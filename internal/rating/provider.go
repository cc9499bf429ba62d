package rating

import (
	"math"

	"mahjong-ledger/internal/domain"
)

// StandardFormula is the league's default FormulaProvider.
//
// Dan: the bracket's configured hanchan delta for the position; tonpuusen
// games earn two thirds of that, rounded.
//
// Rate: the position's base delta pulled toward the table average by the
// configured adjustment rate, with the magnitude of the change clamped to
// [MinAdjustment, AdjustmentLimit].
type StandardFormula struct{}

func (StandardFormula) DanDelta(position int, length domain.GameLength, bracket *domain.DanConfig) float64 {
	delta := bracket.PositionDelta(position)
	if length == domain.Tonpuusen {
		return TonpuusenDelta(delta)
	}
	return delta
}

func (StandardFormula) RateDelta(position int, current, tableAverage float64, gamesPlayed int, cfg *domain.RateConfig) float64 {
	delta := cfg.PositionBase(position) + (tableAverage-current)*cfg.AdjustmentRate

	magnitude := math.Abs(delta)
	if magnitude > cfg.AdjustmentLimit {
		magnitude = cfg.AdjustmentLimit
	}
	if magnitude < cfg.MinAdjustment {
		magnitude = cfg.MinAdjustment
	}
	if delta == 0 {
		return 0
	}
	return math.Copysign(magnitude, delta)
}
