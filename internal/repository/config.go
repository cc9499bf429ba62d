package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mahjong-ledger/internal/domain"

	"github.com/rs/zerolog"
)

// ConfigRepository reads the reference tables: rulesets, the Dan ladder and
// the Rate parameters. This subsystem never writes them.
type ConfigRepository struct {
	q      DBTX
	logger zerolog.Logger
}

func NewConfigRepository(sqlDB *sql.DB, logger zerolog.Logger) *ConfigRepository {
	return &ConfigRepository{q: sqlDB, logger: logger}
}

func (r *ConfigRepository) WithTx(tx *sql.Tx) *ConfigRepository {
	return &ConfigRepository{q: tx, logger: r.logger}
}

func (r *ConfigRepository) RulesetByID(ctx context.Context, id string) (*domain.Ruleset, error) {
	var (
		rs        domain.Ruleset
		umaFourth sql.NullFloat64
		umaFirst  float64
		umaSecond float64
		umaThird  float64
	)
	err := r.q.QueryRowContext(ctx, `SELECT id, name, in_points, out_points, oka, chonbo_penalty,
		uma_first, uma_second, uma_third, uma_fourth, is_sanma,
		version, deleted, created_at, created_by, created_ip, updated_at, updated_by, updated_ip
		FROM rulesets WHERE id = ? AND deleted = 0`, id).Scan(
		&rs.ID, &rs.Name, &rs.InPoints, &rs.OutPoints, &rs.Oka, &rs.ChonboPenalty,
		&umaFirst, &umaSecond, &umaThird, &umaFourth, &rs.IsSanma,
		&rs.Version, &rs.Deleted, &rs.CreatedAt, &rs.CreatedBy, &rs.CreatedIP,
		&rs.UpdatedAt, &rs.UpdatedBy, &rs.UpdatedIP,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ValidationError{Reason: fmt.Sprintf("ruleset %s not found", id)}
	}
	if err != nil {
		return nil, &domain.StorageFailure{Op: "read ruleset", Err: err}
	}

	rs.Uma = []float64{umaFirst, umaSecond, umaThird}
	if umaFourth.Valid {
		rs.Uma = append(rs.Uma, umaFourth.Float64)
	}
	return &rs, nil
}

// RateConfig returns the Rate parameters for a table size. A missing row is
// a ConfigurationMissing failure, never a silent skip.
func (r *ConfigRepository) RateConfig(ctx context.Context, isSanma bool) (*domain.RateConfig, error) {
	var cfg domain.RateConfig
	err := r.q.QueryRowContext(ctx, `SELECT id, is_sanma, initial_rate,
		first_base, second_base, third_base, fourth_base,
		adjustment_rate, adjustment_limit, min_adjustment
		FROM rate_configs WHERE is_sanma = ?`, isSanma).Scan(
		&cfg.ID, &cfg.IsSanma, &cfg.InitialRate,
		&cfg.FirstBase, &cfg.SecondBase, &cfg.ThirdBase, &cfg.FourthBase,
		&cfg.AdjustmentRate, &cfg.AdjustmentLimit, &cfg.MinAdjustment,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ConfigurationMissing{Kind: "rate_config", IsSanma: isSanma, Detail: "no row for table size"}
	}
	if err != nil {
		return nil, &domain.StorageFailure{Op: "read rate config", Err: err}
	}
	return &cfg, nil
}

// DanLadder returns the full Dan ladder for a table size, lowest rank first.
func (r *ConfigRepository) DanLadder(ctx context.Context, isSanma bool) ([]domain.DanConfig, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, is_sanma, rank_order, rank_label,
		first_hanchan, second_hanchan, third_hanchan, fourth_hanchan,
		min_points, max_points, is_protected, is_last_rank
		FROM dan_configs WHERE is_sanma = ? ORDER BY rank_order ASC`, isSanma)
	if err != nil {
		return nil, &domain.StorageFailure{Op: "read dan ladder", Err: err}
	}
	defer rows.Close()

	var ladder []domain.DanConfig
	for rows.Next() {
		var c domain.DanConfig
		err := rows.Scan(&c.ID, &c.IsSanma, &c.RankOrder, &c.RankLabel,
			&c.FirstHanchan, &c.SecondHanchan, &c.ThirdHanchan, &c.FourthHanchan,
			&c.MinPoints, &c.MaxPoints, &c.IsProtected, &c.IsLastRank)
		if err != nil {
			return nil, &domain.StorageFailure{Op: "scan dan config", Err: err}
		}
		ladder = append(ladder, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageFailure{Op: "read dan ladder", Err: err}
	}
	if len(ladder) == 0 {
		return nil, &domain.ConfigurationMissing{Kind: "dan_config", IsSanma: isSanma, Detail: "empty ladder"}
	}
	return ladder, nil
}
