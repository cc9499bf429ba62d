package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mahjong-ledger/internal/constants"
	"mahjong-ledger/internal/domain"
	"mahjong-ledger/internal/repository"
	"mahjong-ledger/internal/settlement"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// NewGame is a raw table submission.
type NewGame struct {
	GameDate      time.Time
	Length        domain.GameLength
	RulesetID     string
	SeasonID      *string
	DayGameNumber *int
	Scores        []settlement.PlayerScore
}

// GameService handles submission, the pending queue and settlement previews.
type GameService struct {
	db      *sql.DB
	games   *repository.GameRepository
	configs *repository.ConfigRepository
	logger  zerolog.Logger
}

func NewGameService(sqlDB *sql.DB, games *repository.GameRepository, configs *repository.ConfigRepository, logger zerolog.Logger) *GameService {
	return &GameService{db: sqlDB, games: games, configs: configs, logger: logger}
}

// Submit validates a raw submission against its ruleset and creates the
// PENDING game with its score rows in one transaction.
func (s *GameService) Submit(ctx context.Context, in NewGame) (*domain.Game, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	if in.Length != domain.Hanchan && in.Length != domain.Tonpuusen {
		return nil, &domain.ValidationError{Reason: fmt.Sprintf("unknown game length %q", in.Length)}
	}

	ruleset, err := s.configs.RulesetByID(ctx, in.RulesetID)
	if err != nil {
		return nil, err
	}
	if err := settlement.Validate(ruleset, in.Scores); err != nil {
		return nil, err
	}

	gameID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate game id: %w", err)
	}
	game := &domain.Game{
		ID:            gameID,
		GameDate:      in.GameDate,
		Length:        in.Length,
		RulesetID:     in.RulesetID,
		SeasonID:      in.SeasonID,
		Status:        domain.StatusPending,
		DayGameNumber: in.DayGameNumber,
	}

	scores := make([]domain.GameScore, len(in.Scores))
	for i, p := range in.Scores {
		scores[i] = domain.GameScore{
			GameID:      gameID,
			PlayerID:    p.PlayerID,
			Wind:        p.Wind,
			RawScore:    p.RawScore,
			ChonboCount: p.ChonboCount,
		}
	}

	err = repository.InTx(ctx, s.db, func(tx *sql.Tx) error {
		games := s.games.WithTx(tx)
		if err := games.Create(ctx, game); err != nil {
			return err
		}
		return games.InsertScores(ctx, scores)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("game_id", gameID).Msg("failed to submit game")
		return nil, err
	}

	s.logger.Info().
		Str("game_id", gameID).
		Str("ruleset_id", in.RulesetID).
		Int("players", len(scores)).
		Msg("game submitted")
	return game, nil
}

// PendingGames returns every PENDING game in processing order; only the first
// is actionable.
func (s *GameService) PendingGames(ctx context.Context) ([]domain.Game, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	return s.games.PendingOrdered(ctx)
}

// Preview settles a PENDING game without writing anything. It runs the same
// calculator the approval commit runs, so the preview can never drift from
// the committed outcome.
func (s *GameService) Preview(ctx context.Context, gameID string) ([]settlement.SettledPlayer, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	game, err := s.games.GetByID(ctx, gameID, false)
	if err != nil {
		return nil, err
	}
	if game.Status != domain.StatusPending {
		return nil, &domain.ValidationError{
			Reason: fmt.Sprintf("game %s is already %s", gameID, game.Status),
		}
	}

	g, gCtx := errgroup.WithContext(ctx)
	var (
		ruleset *domain.Ruleset
		scores  []domain.GameScore
	)
	g.Go(func() error {
		var err error
		ruleset, err = s.configs.RulesetByID(gCtx, game.RulesetID)
		return err
	})
	g.Go(func() error {
		var err error
		scores, err = s.games.ScoresByGame(gCtx, gameID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return settlement.Settle(ruleset, toPlayerScores(scores))
}
