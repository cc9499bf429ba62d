package service

import (
	"context"
	"math"

	"mahjong-ledger/internal/domain"
	"mahjong-ledger/internal/rating"
	"mahjong-ledger/internal/settlement"
)

// SeasonPointsProvider supplies the season-points delta one settled player
// earns. The season scoring rule lives outside this subsystem; the updater
// only applies whatever delta it is given.
type SeasonPointsProvider interface {
	Delta(ctx context.Context, game *domain.Game, settled settlement.SettledPlayer) float64
}

// FinalScoreSeasonPoints credits the settled final score as season points,
// the league default.
type FinalScoreSeasonPoints struct{}

func (FinalScoreSeasonPoints) Delta(_ context.Context, _ *domain.Game, settled settlement.SettledPlayer) float64 {
	return settled.FinalScore
}

// foldRanking folds one settled game into a player's running aggregate.
// prev == nil creates the first-seen state directly rather than applying a
// delta against a missing row; the returned value keeps prev's identity
// columns and version so the caller can run the conditional update.
func foldRanking(
	prev *domain.PlayerRanking,
	playerID string,
	isSanma bool,
	position int,
	length domain.GameLength,
	update rating.Update,
	seasonDelta float64,
) domain.PlayerRanking {
	var next domain.PlayerRanking
	if prev != nil {
		next = *prev
	} else {
		next = domain.PlayerRanking{PlayerID: playerID, IsSanma: isSanma}
	}

	next.TotalGames++
	recordPosition(&next, position, length)
	next.AveragePosition = averagePosition(&next)

	next.DanPoints = int(math.Floor(update.DanPoints))
	next.RatePoints = int(math.Round(update.RatePoints))
	if next.RatePoints > next.MaxRate {
		next.MaxRate = next.RatePoints
	}
	next.SeasonPoints += seasonDelta
	return next
}

func recordPosition(ranking *domain.PlayerRanking, position int, length domain.GameLength) {
	hanchan := length == domain.Hanchan
	switch {
	case position <= 1:
		if hanchan {
			ranking.FirstHanchan++
		} else {
			ranking.FirstTonpuusen++
		}
	case position == 2:
		if hanchan {
			ranking.SecondHanchan++
		} else {
			ranking.SecondTonpuusen++
		}
	case position == 3:
		if hanchan {
			ranking.ThirdHanchan++
		} else {
			ranking.ThirdTonpuusen++
		}
	default:
		if hanchan {
			ranking.FourthHanchan++
		} else {
			ranking.FourthTonpuusen++
		}
	}
}

// averagePosition is the counter-weighted mean over all eight position
// buckets.
func averagePosition(ranking *domain.PlayerRanking) float64 {
	games := ranking.FirstHanchan + ranking.SecondHanchan + ranking.ThirdHanchan + ranking.FourthHanchan +
		ranking.FirstTonpuusen + ranking.SecondTonpuusen + ranking.ThirdTonpuusen + ranking.FourthTonpuusen
	if games == 0 {
		return 0
	}
	weighted := 1*(ranking.FirstHanchan+ranking.FirstTonpuusen) +
		2*(ranking.SecondHanchan+ranking.SecondTonpuusen) +
		3*(ranking.ThirdHanchan+ranking.ThirdTonpuusen) +
		4*(ranking.FourthHanchan+ranking.FourthTonpuusen)
	return float64(weighted) / float64(games)
}
