package fx

import (
	"mahjong-ledger/internal/config"
	"mahjong-ledger/internal/database"
	"mahjong-ledger/internal/logger"
	"mahjong-ledger/internal/rating"
	"mahjong-ledger/internal/repository"
	"mahjong-ledger/internal/service"

	"go.uber.org/fx"
)

func ProvideFormula() rating.FormulaProvider {
	return rating.StandardFormula{}
}

func ProvideSeasonPoints() service.SeasonPointsProvider {
	return service.FinalScoreSeasonPoints{}
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewGameRepository),
	fx.Provide(repository.NewGameResultRepository),
	fx.Provide(repository.NewPointsRepository),
	fx.Provide(repository.NewPlayerRankingRepository),
	fx.Provide(repository.NewConfigRepository),
	// rating
	fx.Provide(ProvideFormula),
	fx.Provide(rating.NewEngine),
	fx.Provide(ProvideSeasonPoints),
	// svc
	fx.Provide(service.NewGameService),
	fx.Provide(service.NewValidationService),
)
