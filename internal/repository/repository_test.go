package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"mahjong-ledger/internal/database"
	"mahjong-ledger/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "ledger_test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestGame(t *testing.T, games *GameRepository, date time.Time, dayGameNumber *int) *domain.Game {
	t.Helper()
	id, err := gonanoid.New()
	if err != nil {
		t.Fatalf("gonanoid: %v", err)
	}
	game := &domain.Game{
		ID:            id,
		GameDate:      date,
		Length:        domain.Hanchan,
		RulesetID:     "ruleset-yonma-default",
		Status:        domain.StatusPending,
		DayGameNumber: dayGameNumber,
	}
	if err := games.Create(context.Background(), game); err != nil {
		t.Fatalf("GameRepository.Create: %v", err)
	}
	return game
}

func intPtr(v int) *int { return &v }

func TestCreateStartsAtVersionZeroWithAudit(t *testing.T) {
	db := newTestDB(t)
	games := NewGameRepository(db, zerolog.Nop())

	created := newTestGame(t, games, time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC), nil)

	game, err := games.GetByID(context.Background(), created.ID, false)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if game.Version != 0 {
		t.Fatalf("version = %d, want 0", game.Version)
	}
	if game.Deleted {
		t.Fatalf("new row must not be deleted")
	}
	if game.CreatedBy != domain.SystemActor.ID || game.UpdatedBy != domain.SystemActor.ID {
		t.Fatalf("audit actor = %q/%q, want system", game.CreatedBy, game.UpdatedBy)
	}
	if game.CreatedAt.IsZero() || game.UpdatedAt.IsZero() {
		t.Fatalf("audit timestamps not stamped")
	}
}

func TestUpdateStatusIncrementsVersionByOne(t *testing.T) {
	db := newTestDB(t)
	games := NewGameRepository(db, zerolog.Nop())
	ctx := context.Background()

	created := newTestGame(t, games, time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC), nil)

	reason := "scores unreadable"
	if err := games.UpdateStatus(ctx, created.ID, 0, domain.StatusRejected, &reason); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	game, err := games.GetByID(ctx, created.ID, false)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if game.Version != 1 {
		t.Fatalf("version = %d, want 1", game.Version)
	}
	if game.Status != domain.StatusRejected || game.RejectReason == nil || *game.RejectReason != reason {
		t.Fatalf("status = %s reason = %v, want REJECTED %q", game.Status, game.RejectReason, reason)
	}
}

func TestConditionalUpdateStaleVersionConflicts(t *testing.T) {
	db := newTestDB(t)
	rankings := NewPlayerRankingRepository(db, zerolog.Nop())
	ctx := context.Background()

	ranking := &domain.PlayerRanking{ID: "rank-1", PlayerID: "p1", RatePoints: 1500}
	if err := rankings.Create(ctx, ranking); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Two admins read the same version.
	first, err := rankings.Get(ctx, "p1", false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	second, err := rankings.Get(ctx, "p1", false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	first.RatePoints = 1530
	if err := rankings.ConditionalUpdate(ctx, first); err != nil {
		t.Fatalf("first ConditionalUpdate: %v", err)
	}

	second.RatePoints = 1470
	err = rankings.ConditionalUpdate(ctx, second)
	conflict, ok := err.(*domain.OptimisticLockConflict)
	if !ok {
		t.Fatalf("expected OptimisticLockConflict, got %v", err)
	}
	if conflict.EntityID != "rank-1" || conflict.AttemptedVersion != 0 || conflict.CurrentVersion != 1 {
		t.Fatalf("conflict = %+v, want rank-1 attempted 0 current 1", conflict)
	}

	// Refetch-and-retry succeeds; the row's version has moved exactly twice.
	fresh, err := rankings.Get(ctx, "p1", false)
	if err != nil {
		t.Fatalf("refetch: %v", err)
	}
	fresh.RatePoints = 1470
	if err := rankings.ConditionalUpdate(ctx, fresh); err != nil {
		t.Fatalf("retry after refetch: %v", err)
	}

	final, err := rankings.Get(ctx, "p1", false)
	if err != nil {
		t.Fatalf("final Get: %v", err)
	}
	if final.Version != 2 {
		t.Fatalf("version = %d, want 2", final.Version)
	}
	if final.RatePoints != 1470 {
		t.Fatalf("rate points = %d, want 1470", final.RatePoints)
	}
}

func TestSoftDeleteHidesRowFromReads(t *testing.T) {
	db := newTestDB(t)
	games := NewGameRepository(db, zerolog.Nop())
	ctx := context.Background()

	created := newTestGame(t, games, time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC), nil)

	if err := games.SoftDelete(ctx, created.ID, 0); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	if _, err := games.GetByID(ctx, created.ID, false); err == nil {
		t.Fatalf("expected deleted game to be hidden")
	}

	game, err := games.GetByID(ctx, created.ID, true)
	if err != nil {
		t.Fatalf("GetByID includeDeleted: %v", err)
	}
	if !game.Deleted || game.Version != 1 {
		t.Fatalf("deleted = %v version = %d, want true 1", game.Deleted, game.Version)
	}

	pending, err := games.PendingOrdered(ctx)
	if err != nil {
		t.Fatalf("PendingOrdered: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending list holds %d deleted games", len(pending))
	}
}

func TestPendingOrderedTotalOrder(t *testing.T) {
	db := newTestDB(t)
	games := NewGameRepository(db, zerolog.Nop())
	ctx := context.Background()

	day1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	later := newTestGame(t, games, day2, nil)
	secondOfDay := newTestGame(t, games, day1, intPtr(2))
	firstOfDay := newTestGame(t, games, day1, intPtr(1))
	unnumbered := newTestGame(t, games, day1, nil)

	pending, err := games.PendingOrdered(ctx)
	if err != nil {
		t.Fatalf("PendingOrdered: %v", err)
	}

	want := []string{firstOfDay.ID, secondOfDay.ID, unnumbered.ID, later.ID}
	if len(pending) != len(want) {
		t.Fatalf("pending count = %d, want %d", len(pending), len(want))
	}
	for i, id := range want {
		if pending[i].ID != id {
			t.Fatalf("pending[%d] = %s, want %s", i, pending[i].ID, id)
		}
	}

	head, err := games.PendingHead(ctx)
	if err != nil {
		t.Fatalf("PendingHead: %v", err)
	}
	if head == nil || head.ID != firstOfDay.ID {
		t.Fatalf("head = %v, want %s", head, firstOfDay.ID)
	}
}

func TestPointsLedgerLatestValue(t *testing.T) {
	db := newTestDB(t)
	games := NewGameRepository(db, zerolog.Nop())
	points := NewPointsRepository(db, zerolog.Nop())
	ctx := context.Background()

	game := newTestGame(t, games, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), nil)

	if _, ok, err := points.LatestValue(ctx, "p1", domain.PointsRate, false); err != nil || ok {
		t.Fatalf("expected no ledger rows yet, got ok=%v err=%v", ok, err)
	}

	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	for i, value := range []float64{1530, 1518, 1551} {
		err := points.Append(ctx, &domain.Points{
			ID:          gonanoidMust(t),
			PlayerID:    "p1",
			GameID:      game.ID,
			PointsType:  domain.PointsRate,
			PointsValue: value,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	value, ok, err := points.LatestValue(ctx, "p1", domain.PointsRate, false)
	if err != nil || !ok {
		t.Fatalf("LatestValue: ok=%v err=%v", ok, err)
	}
	if value != 1551 {
		t.Fatalf("latest value = %v, want 1551", value)
	}

	// Sanma and yonma ledgers stay separate.
	if _, ok, err := points.LatestValue(ctx, "p1", domain.PointsRate, true); err != nil || ok {
		t.Fatalf("sanma ledger should be empty, got ok=%v err=%v", ok, err)
	}
}

func TestWithRetryRecoversFromConflicts(t *testing.T) {
	ctx := context.Background()

	attempts := 0
	err := WithRetry(ctx, zerolog.Nop(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return &domain.OptimisticLockConflict{Entity: "games", EntityID: "g1"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithRetry: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestWithRetryPassesThroughNonConcurrencyErrors(t *testing.T) {
	ctx := context.Background()

	attempts := 0
	err := WithRetry(ctx, zerolog.Nop(), func(ctx context.Context) error {
		attempts++
		return &domain.ValidationError{Reason: "bad input"}
	})
	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (no retry)", attempts)
	}
}

func gonanoidMust(t *testing.T) string {
	t.Helper()
	id, err := gonanoid.New()
	if err != nil {
		t.Fatalf("gonanoid: %v", err)
	}
	return id
}
