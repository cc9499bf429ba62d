package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mahjong-ledger/internal/domain"

	"github.com/rs/zerolog"
)

const gameColumns = `id, game_date, game_length, ruleset_id, season_id, status,
	day_game_number, reject_reason, version, deleted,
	created_at, created_by, created_ip, updated_at, updated_by, updated_ip`

// pendingOrder is the strict total order over PENDING games. Only the first
// row of this order may be approved or rejected.
const pendingOrder = `ORDER BY game_date ASC,
	CASE WHEN day_game_number IS NULL THEN 1 ELSE 0 END ASC,
	day_game_number ASC, id ASC`

type GameRepository struct {
	q      DBTX
	logger zerolog.Logger
}

func NewGameRepository(sqlDB *sql.DB, logger zerolog.Logger) *GameRepository {
	return &GameRepository{q: sqlDB, logger: logger}
}

// WithTx returns a copy of the repository running on tx.
func (r *GameRepository) WithTx(tx *sql.Tx) *GameRepository {
	return &GameRepository{q: tx, logger: r.logger}
}

var _ Mutable[domain.Game] = (*GameRepository)(nil)

func (r *GameRepository) Create(ctx context.Context, game *domain.Game) error {
	stampCreate(&game.Meta, domain.ActorFromContext(ctx), time.Now().UTC())

	_, err := r.q.ExecContext(ctx, `INSERT INTO games (`+gameColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		game.ID, game.GameDate, game.Length, game.RulesetID, game.SeasonID, game.Status,
		game.DayGameNumber, game.RejectReason, game.Version, game.Deleted,
		game.CreatedAt, game.CreatedBy, game.CreatedIP,
		game.UpdatedAt, game.UpdatedBy, game.UpdatedIP,
	)
	if err != nil {
		return fmt.Errorf("failed to create game %s: %w", game.ID, err)
	}
	return nil
}

func (r *GameRepository) GetByID(ctx context.Context, id string, includeDeleted bool) (*domain.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE id = ?`
	if !includeDeleted {
		query += ` AND deleted = 0`
	}
	game, err := scanGame(r.q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ValidationError{Reason: fmt.Sprintf("game %s not found", id)}
	}
	if err != nil {
		return nil, &domain.StorageFailure{Op: "read game", Err: err}
	}
	return game, nil
}

// PendingOrdered returns every PENDING game in processing order. Only the
// first element is actionable.
func (r *GameRepository) PendingOrdered(ctx context.Context) ([]domain.Game, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+gameColumns+` FROM games
		WHERE status = ? AND deleted = 0 `+pendingOrder, domain.StatusPending)
	if err != nil {
		return nil, &domain.StorageFailure{Op: "list pending games", Err: err}
	}
	defer rows.Close()

	var games []domain.Game
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, &domain.StorageFailure{Op: "scan pending game", Err: err}
		}
		games = append(games, *game)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageFailure{Op: "list pending games", Err: err}
	}
	return games, nil
}

// PendingHead returns the order-head pending game, or nil when the queue is
// empty. Run inside the settlement transaction so the ordering check holds at
// commit time.
func (r *GameRepository) PendingHead(ctx context.Context) (*domain.Game, error) {
	game, err := scanGame(r.q.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games
		WHERE status = ? AND deleted = 0 `+pendingOrder+` LIMIT 1`, domain.StatusPending))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StorageFailure{Op: "read pending head", Err: err}
	}
	return game, nil
}

// UpdateStatus moves a PENDING game to a terminal status through the
// version-checked conditional write.
func (r *GameRepository) UpdateStatus(ctx context.Context, id string, version int64, status domain.GameStatus, rejectReason *string) error {
	actor := domain.ActorFromContext(ctx)
	now := time.Now().UTC()
	return conditionalExec(ctx, r.q, "games", id, version, `UPDATE games
		SET status = ?, reject_reason = ?, version = version + 1,
		    updated_at = ?, updated_by = ?, updated_ip = ?
		WHERE id = ? AND version = ? AND deleted = 0`,
		status, rejectReason, now, actor.ID, actor.IP, id, version)
}

func (r *GameRepository) SoftDelete(ctx context.Context, id string, version int64) error {
	return softDelete(ctx, r.q, "games", id, version, domain.ActorFromContext(ctx), time.Now().UTC())
}

// InsertScores stores the raw submission rows of a game.
func (r *GameRepository) InsertScores(ctx context.Context, scores []domain.GameScore) error {
	for _, s := range scores {
		_, err := r.q.ExecContext(ctx, `INSERT INTO game_scores
			(game_id, player_id, wind, raw_score, chonbo_count)
			VALUES (?, ?, ?, ?, ?)`,
			s.GameID, s.PlayerID, s.Wind, s.RawScore, s.ChonboCount)
		if err != nil {
			return fmt.Errorf("failed to insert score for player %s: %w", s.PlayerID, err)
		}
	}
	return nil
}

func (r *GameRepository) ScoresByGame(ctx context.Context, gameID string) ([]domain.GameScore, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT game_id, player_id, wind, raw_score, chonbo_count
		FROM game_scores WHERE game_id = ? ORDER BY player_id`, gameID)
	if err != nil {
		return nil, &domain.StorageFailure{Op: "list game scores", Err: err}
	}
	defer rows.Close()

	var scores []domain.GameScore
	for rows.Next() {
		var s domain.GameScore
		if err := rows.Scan(&s.GameID, &s.PlayerID, &s.Wind, &s.RawScore, &s.ChonboCount); err != nil {
			return nil, &domain.StorageFailure{Op: "scan game score", Err: err}
		}
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageFailure{Op: "list game scores", Err: err}
	}
	return scores, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*domain.Game, error) {
	var g domain.Game
	err := row.Scan(
		&g.ID, &g.GameDate, &g.Length, &g.RulesetID, &g.SeasonID, &g.Status,
		&g.DayGameNumber, &g.RejectReason, &g.Version, &g.Deleted,
		&g.CreatedAt, &g.CreatedBy, &g.CreatedIP,
		&g.UpdatedAt, &g.UpdatedBy, &g.UpdatedIP,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}
