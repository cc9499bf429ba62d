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

const rankingColumns = `id, player_id, is_sanma, total_games,
	first_hanchan, second_hanchan, third_hanchan, fourth_hanchan,
	first_tonpuusen, second_tonpuusen, third_tonpuusen, fourth_tonpuusen,
	average_position, dan_points, rate_points, max_rate, season_points,
	version, deleted,
	created_at, created_by, created_ip, updated_at, updated_by, updated_ip`

type PlayerRankingRepository struct {
	q      DBTX
	logger zerolog.Logger
}

func NewPlayerRankingRepository(sqlDB *sql.DB, logger zerolog.Logger) *PlayerRankingRepository {
	return &PlayerRankingRepository{q: sqlDB, logger: logger}
}

func (r *PlayerRankingRepository) WithTx(tx *sql.Tx) *PlayerRankingRepository {
	return &PlayerRankingRepository{q: tx, logger: r.logger}
}

var _ Mutable[domain.PlayerRanking] = (*PlayerRankingRepository)(nil)

// Get returns the (player, table size) aggregate, or nil when the player has
// no settled games for that size yet.
func (r *PlayerRankingRepository) Get(ctx context.Context, playerID string, isSanma bool) (*domain.PlayerRanking, error) {
	ranking, err := scanRanking(r.q.QueryRowContext(ctx, `SELECT `+rankingColumns+`
		FROM player_rankings WHERE player_id = ? AND is_sanma = ? AND deleted = 0`,
		playerID, isSanma))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StorageFailure{Op: "read player ranking", Err: err}
	}
	return ranking, nil
}

func (r *PlayerRankingRepository) Create(ctx context.Context, ranking *domain.PlayerRanking) error {
	stampCreate(&ranking.Meta, domain.ActorFromContext(ctx), time.Now().UTC())

	_, err := r.q.ExecContext(ctx, `INSERT INTO player_rankings (`+rankingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ranking.ID, ranking.PlayerID, ranking.IsSanma, ranking.TotalGames,
		ranking.FirstHanchan, ranking.SecondHanchan, ranking.ThirdHanchan, ranking.FourthHanchan,
		ranking.FirstTonpuusen, ranking.SecondTonpuusen, ranking.ThirdTonpuusen, ranking.FourthTonpuusen,
		ranking.AveragePosition, ranking.DanPoints, ranking.RatePoints, ranking.MaxRate, ranking.SeasonPoints,
		ranking.Version, ranking.Deleted,
		ranking.CreatedAt, ranking.CreatedBy, ranking.CreatedIP,
		ranking.UpdatedAt, ranking.UpdatedBy, ranking.UpdatedIP,
	)
	if err != nil {
		return fmt.Errorf("failed to create ranking for player %s: %w", ranking.PlayerID, err)
	}
	return nil
}

// ConditionalUpdate rewrites the aggregate columns if and only if the row
// still holds the version the caller read. The stored version advances by
// one; ranking.Version is updated to match on success.
func (r *PlayerRankingRepository) ConditionalUpdate(ctx context.Context, ranking *domain.PlayerRanking) error {
	actor := domain.ActorFromContext(ctx)
	now := time.Now().UTC()

	err := conditionalExec(ctx, r.q, "player_rankings", ranking.ID, ranking.Version, `UPDATE player_rankings
		SET total_games = ?,
		    first_hanchan = ?, second_hanchan = ?, third_hanchan = ?, fourth_hanchan = ?,
		    first_tonpuusen = ?, second_tonpuusen = ?, third_tonpuusen = ?, fourth_tonpuusen = ?,
		    average_position = ?, dan_points = ?, rate_points = ?, max_rate = ?, season_points = ?,
		    version = version + 1, updated_at = ?, updated_by = ?, updated_ip = ?
		WHERE id = ? AND version = ? AND deleted = 0`,
		ranking.TotalGames,
		ranking.FirstHanchan, ranking.SecondHanchan, ranking.ThirdHanchan, ranking.FourthHanchan,
		ranking.FirstTonpuusen, ranking.SecondTonpuusen, ranking.ThirdTonpuusen, ranking.FourthTonpuusen,
		ranking.AveragePosition, ranking.DanPoints, ranking.RatePoints, ranking.MaxRate, ranking.SeasonPoints,
		now, actor.ID, actor.IP,
		ranking.ID, ranking.Version)
	if err != nil {
		return err
	}

	ranking.Version++
	ranking.UpdatedAt = now
	ranking.UpdatedBy = actor.ID
	ranking.UpdatedIP = actor.IP
	return nil
}

func (r *PlayerRankingRepository) SoftDelete(ctx context.Context, id string, version int64) error {
	return softDelete(ctx, r.q, "player_rankings", id, version, domain.ActorFromContext(ctx), time.Now().UTC())
}

// Leaderboard lists aggregates for one table size, best rate first.
func (r *PlayerRankingRepository) Leaderboard(ctx context.Context, isSanma bool, limit int) ([]domain.PlayerRanking, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+rankingColumns+` FROM player_rankings
		WHERE is_sanma = ? AND deleted = 0
		ORDER BY rate_points DESC, dan_points DESC, player_id ASC LIMIT ?`, isSanma, limit)
	if err != nil {
		return nil, &domain.StorageFailure{Op: "list leaderboard", Err: err}
	}
	defer rows.Close()

	var rankings []domain.PlayerRanking
	for rows.Next() {
		ranking, err := scanRanking(rows)
		if err != nil {
			return nil, &domain.StorageFailure{Op: "scan player ranking", Err: err}
		}
		rankings = append(rankings, *ranking)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageFailure{Op: "list leaderboard", Err: err}
	}
	return rankings, nil
}

func scanRanking(row rowScanner) (*domain.PlayerRanking, error) {
	var pr domain.PlayerRanking
	err := row.Scan(
		&pr.ID, &pr.PlayerID, &pr.IsSanma, &pr.TotalGames,
		&pr.FirstHanchan, &pr.SecondHanchan, &pr.ThirdHanchan, &pr.FourthHanchan,
		&pr.FirstTonpuusen, &pr.SecondTonpuusen, &pr.ThirdTonpuusen, &pr.FourthTonpuusen,
		&pr.AveragePosition, &pr.DanPoints, &pr.RatePoints, &pr.MaxRate, &pr.SeasonPoints,
		&pr.Version, &pr.Deleted,
		&pr.CreatedAt, &pr.CreatedBy, &pr.CreatedIP,
		&pr.UpdatedAt, &pr.UpdatedBy, &pr.UpdatedIP,
	)
	if err != nil {
		return nil, err
	}
	return &pr, nil
}
