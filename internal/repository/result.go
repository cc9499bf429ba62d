package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mahjong-ledger/internal/domain"

	"github.com/rs/zerolog"
)

const resultColumns = `id, game_id, player_id, final_position, final_score,
	dan_points_earned, rate_change, wind, raw_score, chonbo_count,
	uma, oka, devolution, version, deleted,
	created_at, created_by, created_ip, updated_at, updated_by, updated_ip`

type GameResultRepository struct {
	q      DBTX
	logger zerolog.Logger
}

func NewGameResultRepository(sqlDB *sql.DB, logger zerolog.Logger) *GameResultRepository {
	return &GameResultRepository{q: sqlDB, logger: logger}
}

func (r *GameResultRepository) WithTx(tx *sql.Tx) *GameResultRepository {
	return &GameResultRepository{q: tx, logger: r.logger}
}

var _ Mutable[domain.GameResult] = (*GameResultRepository)(nil)

// Create writes one settled result row. The unique (game_id, player_id)
// constraint makes a double approval fail loudly rather than double-count.
func (r *GameResultRepository) Create(ctx context.Context, result *domain.GameResult) error {
	stampCreate(&result.Meta, domain.ActorFromContext(ctx), time.Now().UTC())

	_, err := r.q.ExecContext(ctx, `INSERT INTO game_results (`+resultColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.GameID, result.PlayerID, result.FinalPosition, result.FinalScore,
		result.DanPointsEarned, result.RateChange, result.Wind, result.RawScore, result.ChonboCount,
		result.Uma, result.Oka, result.Devolution, result.Version, result.Deleted,
		result.CreatedAt, result.CreatedBy, result.CreatedIP,
		result.UpdatedAt, result.UpdatedBy, result.UpdatedIP,
	)
	if err != nil {
		return fmt.Errorf("failed to create result for player %s: %w", result.PlayerID, err)
	}
	return nil
}

func (r *GameResultRepository) ListByGame(ctx context.Context, gameID string) ([]domain.GameResult, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+resultColumns+` FROM game_results
		WHERE game_id = ? AND deleted = 0 ORDER BY final_position, player_id`, gameID)
	if err != nil {
		return nil, &domain.StorageFailure{Op: "list game results", Err: err}
	}
	defer rows.Close()

	var results []domain.GameResult
	for rows.Next() {
		var res domain.GameResult
		err := rows.Scan(
			&res.ID, &res.GameID, &res.PlayerID, &res.FinalPosition, &res.FinalScore,
			&res.DanPointsEarned, &res.RateChange, &res.Wind, &res.RawScore, &res.ChonboCount,
			&res.Uma, &res.Oka, &res.Devolution, &res.Version, &res.Deleted,
			&res.CreatedAt, &res.CreatedBy, &res.CreatedIP,
			&res.UpdatedAt, &res.UpdatedBy, &res.UpdatedIP,
		)
		if err != nil {
			return nil, &domain.StorageFailure{Op: "scan game result", Err: err}
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageFailure{Op: "list game results", Err: err}
	}
	return results, nil
}

func (r *GameResultRepository) SoftDelete(ctx context.Context, id string, version int64) error {
	return softDelete(ctx, r.q, "game_results", id, version, domain.ActorFromContext(ctx), time.Now().UTC())
}
