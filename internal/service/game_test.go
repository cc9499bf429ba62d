package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"mahjong-ledger/internal/domain"
	"mahjong-ledger/internal/settlement"
)

func TestSubmitCreatesPendingGameWithScores(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	game := h.submitGolden(t, time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC), nil)

	if game.Status != domain.StatusPending {
		t.Fatalf("status = %s, want PENDING", game.Status)
	}
	if game.Version != 0 {
		t.Fatalf("version = %d, want 0", game.Version)
	}

	scores, err := h.games.ScoresByGame(ctx, game.ID)
	if err != nil {
		t.Fatalf("ScoresByGame: %v", err)
	}
	if len(scores) != 4 {
		t.Fatalf("scores = %d, want 4", len(scores))
	}
}

func TestSubmitRejectsBadSubmission(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	var validationErr *domain.ValidationError

	// Sum mismatch.
	bad := goldenScores()
	bad[0].RawScore = 33000
	_, err := h.gameSvc.Submit(ctx, NewGame{
		GameDate:  time.Now(),
		Length:    domain.Hanchan,
		RulesetID: "ruleset-yonma-default",
		Scores:    bad,
	})
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError for sum mismatch, got %v", err)
	}

	// Unknown ruleset.
	_, err = h.gameSvc.Submit(ctx, NewGame{
		GameDate:  time.Now(),
		Length:    domain.Hanchan,
		RulesetID: "no-such-ruleset",
		Scores:    goldenScores(),
	})
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError for unknown ruleset, got %v", err)
	}

	// Unknown length.
	_, err = h.gameSvc.Submit(ctx, NewGame{
		GameDate:  time.Now(),
		Length:    domain.GameLength("IKKYOKU"),
		RulesetID: "ruleset-yonma-default",
		Scores:    goldenScores(),
	})
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError for unknown length, got %v", err)
	}

	// Nothing reached the queue.
	pending, err := h.gameSvc.PendingGames(ctx)
	if err != nil {
		t.Fatalf("PendingGames: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending = %d after failed submissions, want 0", len(pending))
	}
}

func TestPendingGamesKeepsProcessingOrder(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	second := h.submitGolden(t, time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC), nil)
	first := h.submitGolden(t, time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC), nil)

	pending, err := h.gameSvc.PendingGames(ctx)
	if err != nil {
		t.Fatalf("PendingGames: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	if pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Fatalf("pending order = %s, %s; want %s, %s", pending[0].ID, pending[1].ID, first.ID, second.ID)
	}
}

func TestPreviewMatchesCommittedSettlement(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	game := h.submitGolden(t, time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC), nil)

	preview, err := h.gameSvc.Preview(ctx, game.ID)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(preview) != 4 {
		t.Fatalf("preview = %d players, want 4", len(preview))
	}

	results, err := h.validationSvc.Approve(ctx, game.ID, 0)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}

	byPlayer := make(map[string]settlement.SettledPlayer, len(preview))
	for _, p := range preview {
		byPlayer[p.PlayerID] = p
	}
	for _, res := range results {
		p, ok := byPlayer[res.PlayerID]
		if !ok {
			t.Fatalf("player %s missing from preview", res.PlayerID)
		}
		if math.Abs(p.FinalScore-res.FinalScore) > 1e-9 {
			t.Fatalf("player %s preview score %v, committed %v", res.PlayerID, p.FinalScore, res.FinalScore)
		}
		if p.FinalPosition != res.FinalPosition {
			t.Fatalf("player %s preview position %d, committed %d", res.PlayerID, p.FinalPosition, res.FinalPosition)
		}
	}

	// Preview is read-only: a validated game has no preview.
	if _, err := h.gameSvc.Preview(ctx, game.ID); err == nil {
		t.Fatalf("expected preview of validated game to fail")
	}
}
