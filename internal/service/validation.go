package service

import (
	"context"
	"database/sql"
	"fmt"

	"mahjong-ledger/internal/constants"
	"mahjong-ledger/internal/domain"
	"mahjong-ledger/internal/rating"
	"mahjong-ledger/internal/repository"
	"mahjong-ledger/internal/settlement"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// ValidationService runs the game lifecycle state machine: PENDING games are
// approved or rejected strictly in order, both transitions terminal. Approval
// settles the table, updates every participant's ratings and commits the
// whole ledger write atomically.
type ValidationService struct {
	db       *sql.DB
	games    *repository.GameRepository
	results  *repository.GameResultRepository
	points   *repository.PointsRepository
	rankings *repository.PlayerRankingRepository
	configs  *repository.ConfigRepository
	engine   *rating.Engine
	season   SeasonPointsProvider
	logger   zerolog.Logger
}

func NewValidationService(
	sqlDB *sql.DB,
	games *repository.GameRepository,
	results *repository.GameResultRepository,
	points *repository.PointsRepository,
	rankings *repository.PlayerRankingRepository,
	configs *repository.ConfigRepository,
	engine *rating.Engine,
	season SeasonPointsProvider,
	logger zerolog.Logger,
) *ValidationService {
	return &ValidationService{
		db:       sqlDB,
		games:    games,
		results:  results,
		points:   points,
		rankings: rankings,
		configs:  configs,
		engine:   engine,
		season:   season,
		logger:   logger,
	}
}

// Approve settles the game and commits, in one transaction: the status write,
// N GameResult creates, 2N Points appends and N PlayerRanking upserts.
// version is the game version the caller last observed. Concurrency conflicts
// are retried with fresh reads; every other failure leaves the game PENDING
// and the store untouched.
func (s *ValidationService) Approve(ctx context.Context, gameID string, version int64) ([]domain.GameResult, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	s.logger.Info().Str("game_id", gameID).Int64("version", version).Msg("approving game")

	var results []domain.GameResult
	err := repository.WithRetry(ctx, s.logger, func(ctx context.Context) error {
		results = nil
		return repository.InTx(ctx, s.db, func(tx *sql.Tx) error {
			var err error
			results, err = s.approveInTx(ctx, tx, gameID, version)
			return err
		})
	})
	if err != nil {
		s.logger.Error().Err(err).Str("game_id", gameID).Msg("approval failed")
		return nil, err
	}

	s.logger.Info().Str("game_id", gameID).Int("players", len(results)).Msg("game validated")
	return results, nil
}

func (s *ValidationService) approveInTx(ctx context.Context, tx *sql.Tx, gameID string, version int64) ([]domain.GameResult, error) {
	games := s.games.WithTx(tx)
	results := s.results.WithTx(tx)
	points := s.points.WithTx(tx)
	rankings := s.rankings.WithTx(tx)
	configs := s.configs.WithTx(tx)

	game, err := s.actionableGame(ctx, games, gameID)
	if err != nil {
		return nil, err
	}

	ruleset, err := configs.RulesetByID(ctx, game.RulesetID)
	if err != nil {
		return nil, err
	}

	scores, err := games.ScoresByGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	settled, err := settlement.Settle(ruleset, toPlayerScores(scores))
	if err != nil {
		return nil, err
	}

	rateCfg, err := configs.RateConfig(ctx, ruleset.IsSanma)
	if err != nil {
		return nil, err
	}
	ladder, err := configs.DanLadder(ctx, ruleset.IsSanma)
	if err != nil {
		return nil, err
	}

	states, prevRankings, err := s.playerStates(ctx, points, rankings, settled, ruleset.IsSanma, rateCfg.InitialRate)
	if err != nil {
		return nil, err
	}

	var tableAverage float64
	for _, st := range states {
		tableAverage += st.RatePoints
	}
	tableAverage /= float64(len(states))

	updates := make([]rating.Update, len(settled))
	for i, p := range settled {
		updates[i], err = s.engine.Update(states[i], p.FinalPosition, game.Length, tableAverage, ladder, rateCfg)
		if err != nil {
			return nil, err
		}
	}

	// All reads done; the write below is conditioned on the caller's version
	// so a concurrent edit of the game fails the whole transaction.
	if err := games.UpdateStatus(ctx, gameID, version, domain.StatusValidated, nil); err != nil {
		return nil, err
	}

	created := make([]domain.GameResult, 0, len(settled))
	for i, p := range settled {
		result, err := s.commitPlayer(ctx, results, points, rankings, game, ruleset, p, updates[i], prevRankings[i])
		if err != nil {
			return nil, err
		}
		created = append(created, *result)
	}
	return created, nil
}

// commitPlayer writes one player's share of the approval: the result row,
// the two ledger rows and the ranking upsert.
func (s *ValidationService) commitPlayer(
	ctx context.Context,
	results *repository.GameResultRepository,
	points *repository.PointsRepository,
	rankings *repository.PlayerRankingRepository,
	game *domain.Game,
	ruleset *domain.Ruleset,
	p settlement.SettledPlayer,
	update rating.Update,
	prev *domain.PlayerRanking,
) (*domain.GameResult, error) {
	resultID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate result id: %w", err)
	}
	result := &domain.GameResult{
		ID:              resultID,
		GameID:          game.ID,
		PlayerID:        p.PlayerID,
		FinalPosition:   p.FinalPosition,
		FinalScore:      p.FinalScore,
		DanPointsEarned: update.DanDelta,
		RateChange:      update.RateDelta,
		Wind:            p.Wind,
		RawScore:        p.RawScore,
		ChonboCount:     p.ChonboCount,
		Uma:             p.Uma,
		Oka:             p.Oka,
		Devolution:      p.Devolution,
	}
	if err := results.Create(ctx, result); err != nil {
		return nil, err
	}

	for _, ledger := range []struct {
		pointsType domain.PointsType
		value      float64
	}{
		{domain.PointsDan, update.DanPoints},
		{domain.PointsRate, update.RatePoints},
	} {
		pointsID, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate points id: %w", err)
		}
		err = points.Append(ctx, &domain.Points{
			ID:          pointsID,
			PlayerID:    p.PlayerID,
			SeasonID:    game.SeasonID,
			GameID:      game.ID,
			PointsType:  ledger.pointsType,
			PointsValue: ledger.value,
			IsSanma:     ruleset.IsSanma,
		})
		if err != nil {
			return nil, err
		}
	}

	var seasonDelta float64
	if game.SeasonID != nil {
		seasonDelta = s.season.Delta(ctx, game, p)
	}
	next := foldRanking(prev, p.PlayerID, ruleset.IsSanma, p.FinalPosition, game.Length, update, seasonDelta)

	if prev == nil {
		next.ID, err = gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate ranking id: %w", err)
		}
		if err := rankings.Create(ctx, &next); err != nil {
			return nil, err
		}
	} else if err := rankings.ConditionalUpdate(ctx, &next); err != nil {
		return nil, err
	}

	return result, nil
}

// playerStates loads each participant's rating snapshot: current Dan and Rate
// from the ledger (new players enter at zero Dan and the initial rate) and
// games played from the ranking aggregate.
func (s *ValidationService) playerStates(
	ctx context.Context,
	points *repository.PointsRepository,
	rankings *repository.PlayerRankingRepository,
	settled []settlement.SettledPlayer,
	isSanma bool,
	initialRate float64,
) ([]rating.PlayerState, []*domain.PlayerRanking, error) {
	states := make([]rating.PlayerState, len(settled))
	prevRankings := make([]*domain.PlayerRanking, len(settled))

	for i, p := range settled {
		prev, err := rankings.Get(ctx, p.PlayerID, isSanma)
		if err != nil {
			return nil, nil, err
		}
		prevRankings[i] = prev

		dan, ok, err := points.LatestValue(ctx, p.PlayerID, domain.PointsDan, isSanma)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			dan = 0
		}
		rate, ok, err := points.LatestValue(ctx, p.PlayerID, domain.PointsRate, isSanma)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			rate = initialRate
		}

		games := 0
		if prev != nil {
			games = prev.TotalGames
		}
		states[i] = rating.PlayerState{
			PlayerID:    p.PlayerID,
			DanPoints:   dan,
			RatePoints:  rate,
			GamesPlayed: games,
		}
	}
	return states, prevRankings, nil
}

// Reject moves the order-head PENDING game to REJECTED with a reason. No
// rating side effects of any kind.
func (s *ValidationService) Reject(ctx context.Context, gameID string, version int64, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	if reason == "" {
		return &domain.ValidationError{Reason: "reject requires a non-empty reason"}
	}

	s.logger.Info().Str("game_id", gameID).Str("reason", reason).Msg("rejecting game")

	err := repository.WithRetry(ctx, s.logger, func(ctx context.Context) error {
		return repository.InTx(ctx, s.db, func(tx *sql.Tx) error {
			games := s.games.WithTx(tx)
			if _, err := s.actionableGame(ctx, games, gameID); err != nil {
				return err
			}
			return games.UpdateStatus(ctx, gameID, version, domain.StatusRejected, &reason)
		})
	})
	if err != nil {
		s.logger.Error().Err(err).Str("game_id", gameID).Msg("rejection failed")
		return err
	}

	s.logger.Info().Str("game_id", gameID).Msg("game rejected")
	return nil
}

// actionableGame verifies the game exists, is still PENDING and sits at the
// head of the pending order. Ran inside the settlement transaction so the
// ordering invariant holds at commit time, not just when the admin clicked.
func (s *ValidationService) actionableGame(ctx context.Context, games *repository.GameRepository, gameID string) (*domain.Game, error) {
	game, err := games.GetByID(ctx, gameID, false)
	if err != nil {
		return nil, err
	}
	if game.Status != domain.StatusPending {
		return nil, &domain.ValidationError{
			Reason: fmt.Sprintf("game %s is already %s", gameID, game.Status),
		}
	}

	head, err := games.PendingHead(ctx)
	if err != nil {
		return nil, err
	}
	if head == nil || head.ID != gameID {
		headID := ""
		if head != nil {
			headID = head.ID
		}
		return nil, &domain.OrderingViolation{GameID: gameID, HeadGameID: headID}
	}
	return game, nil
}

func toPlayerScores(scores []domain.GameScore) []settlement.PlayerScore {
	players := make([]settlement.PlayerScore, len(scores))
	for i, s := range scores {
		players[i] = settlement.PlayerScore{
			PlayerID:    s.PlayerID,
			Wind:        s.Wind,
			RawScore:    s.RawScore,
			ChonboCount: s.ChonboCount,
		}
	}
	return players
}
