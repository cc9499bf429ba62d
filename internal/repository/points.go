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

// PointsRepository owns the append-only rating ledger. Rows are never
// updated or deleted, so it carries no conditional-update surface.
type PointsRepository struct {
	q      DBTX
	logger zerolog.Logger
}

func NewPointsRepository(sqlDB *sql.DB, logger zerolog.Logger) *PointsRepository {
	return &PointsRepository{q: sqlDB, logger: logger}
}

func (r *PointsRepository) WithTx(tx *sql.Tx) *PointsRepository {
	return &PointsRepository{q: tx, logger: r.logger}
}

func (r *PointsRepository) Append(ctx context.Context, p *domain.Points) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.ExecContext(ctx, `INSERT INTO points
		(id, player_id, season_id, game_id, points_type, points_value, is_sanma, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.PlayerID, p.SeasonID, p.GameID, p.PointsType, p.PointsValue, p.IsSanma, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append %s points for player %s: %w", p.PointsType, p.PlayerID, err)
	}
	return nil
}

// LatestValue returns the most recent absolute ledger value for a player and
// points type. The second return is false when the player has no ledger rows
// yet for that table size.
func (r *PointsRepository) LatestValue(ctx context.Context, playerID string, pt domain.PointsType, isSanma bool) (float64, bool, error) {
	var value float64
	err := r.q.QueryRowContext(ctx, `SELECT points_value FROM points
		WHERE player_id = ? AND points_type = ? AND is_sanma = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`,
		playerID, pt, isSanma).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, &domain.StorageFailure{Op: "read latest points", Err: err}
	}
	return value, true, nil
}

func (r *PointsRepository) ListByGame(ctx context.Context, gameID string) ([]domain.Points, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT
		id, player_id, season_id, game_id, points_type, points_value, is_sanma, created_at
		FROM points WHERE game_id = ? ORDER BY player_id, points_type`, gameID)
	if err != nil {
		return nil, &domain.StorageFailure{Op: "list points", Err: err}
	}
	defer rows.Close()

	var points []domain.Points
	for rows.Next() {
		var p domain.Points
		err := rows.Scan(&p.ID, &p.PlayerID, &p.SeasonID, &p.GameID,
			&p.PointsType, &p.PointsValue, &p.IsSanma, &p.CreatedAt)
		if err != nil {
			return nil, &domain.StorageFailure{Op: "scan points", Err: err}
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageFailure{Op: "list points", Err: err}
	}
	return points, nil
}
