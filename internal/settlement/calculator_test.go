package settlement

import (
	"errors"
	"math"
	"testing"

	"mahjong-ledger/internal/domain"
)

func yonmaRuleset() *domain.Ruleset {
	return &domain.Ruleset{
		ID:            "rs-test",
		InPoints:      25000,
		OutPoints:     30000,
		Oka:           20,
		ChonboPenalty: -20,
		Uma:           []float64{15, 5, -5, -15},
	}
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSettleGoldenScenario(t *testing.T) {
	players := []PlayerScore{
		{PlayerID: "p1", RawScore: 32000},
		{PlayerID: "p2", RawScore: 28000},
		{PlayerID: "p3", RawScore: 22000},
		{PlayerID: "p4", RawScore: 18000},
	}

	settled, err := Settle(yonmaRuleset(), players)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if len(settled) != 4 {
		t.Fatalf("expected 4 settled players, got %d", len(settled))
	}

	wantTransitory := []float64{2, -2, -8, -12}
	wantUma := []float64{15, 5, -5, -15}
	wantOka := []float64{20, 0, 0, 0}
	wantFinal := []float64{37, 3, -13, -27}
	wantPosition := []int{1, 2, 3, 4}

	var sum float64
	for i, p := range settled {
		if p.Devolution != 30 {
			t.Fatalf("player %d devolution = %v, want 30", i, p.Devolution)
		}
		if !approxEqual(p.Transitory, wantTransitory[i]) {
			t.Fatalf("player %d transitory = %v, want %v", i, p.Transitory, wantTransitory[i])
		}
		if !approxEqual(p.Uma, wantUma[i]) {
			t.Fatalf("player %d uma = %v, want %v", i, p.Uma, wantUma[i])
		}
		if !approxEqual(p.Oka, wantOka[i]) {
			t.Fatalf("player %d oka = %v, want %v", i, p.Oka, wantOka[i])
		}
		if !approxEqual(p.FinalScore, wantFinal[i]) {
			t.Fatalf("player %d final score = %v, want %v", i, p.FinalScore, wantFinal[i])
		}
		if p.FinalPosition != wantPosition[i] {
			t.Fatalf("player %d position = %d, want %d", i, p.FinalPosition, wantPosition[i])
		}
		sum += p.FinalScore
	}
	if !approxEqual(sum, 0) {
		t.Fatalf("final scores sum to %v, want 0", sum)
	}
}

func TestSettleTieSharesUmaMeanAndSplitsOka(t *testing.T) {
	players := []PlayerScore{
		{PlayerID: "p1", RawScore: 30000},
		{PlayerID: "p2", RawScore: 30000},
		{PlayerID: "p3", RawScore: 25000},
		{PlayerID: "p4", RawScore: 15000},
	}

	rs := yonmaRuleset()
	settled, err := Settle(rs, players)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}

	// p1 and p2 tie for the top two uma slots: mean of 15 and 5.
	if !approxEqual(settled[0].Uma, 10) || !approxEqual(settled[1].Uma, 10) {
		t.Fatalf("tied uma = %v, %v, want 10, 10", settled[0].Uma, settled[1].Uma)
	}
	// The tie group's uma sum equals the sum of the slots it occupies.
	if got := settled[0].Uma + settled[1].Uma; !approxEqual(got, 15+5) {
		t.Fatalf("tie group uma sum = %v, want 20", got)
	}

	// Both winners split the oka pool, which stays conserved.
	var okaSum float64
	for _, p := range settled {
		okaSum += p.Oka
	}
	if !approxEqual(okaSum, rs.Oka) {
		t.Fatalf("oka sum = %v, want %v", okaSum, rs.Oka)
	}
	if !approxEqual(settled[0].Oka, 10) || !approxEqual(settled[1].Oka, 10) {
		t.Fatalf("winner oka = %v, %v, want 10, 10", settled[0].Oka, settled[1].Oka)
	}

	// Competition ranking: a two-way tie for first yields 1, 1, 3, 4.
	wantPositions := []int{1, 1, 3, 4}
	for i, p := range settled {
		if p.FinalPosition != wantPositions[i] {
			t.Fatalf("player %d position = %d, want %d", i, p.FinalPosition, wantPositions[i])
		}
	}
}

func TestSettleChonboPenaltyApplies(t *testing.T) {
	players := []PlayerScore{
		{PlayerID: "p1", RawScore: 32000},
		{PlayerID: "p2", RawScore: 28000},
		{PlayerID: "p3", RawScore: 22000, ChonboCount: 1},
		{PlayerID: "p4", RawScore: 18000},
	}

	settled, err := Settle(yonmaRuleset(), players)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}

	// p3 drops from -13 to -33, below p4's -27, so they swap positions.
	if !approxEqual(settled[2].FinalScore, -33) {
		t.Fatalf("chonbo final score = %v, want -33", settled[2].FinalScore)
	}
	if settled[2].FinalPosition != 4 || settled[3].FinalPosition != 3 {
		t.Fatalf("positions = %d, %d, want 4, 3", settled[2].FinalPosition, settled[3].FinalPosition)
	}
}

func TestSettleSanma(t *testing.T) {
	rs := &domain.Ruleset{
		ID:       "rs-sanma",
		InPoints: 35000,
		// oka funded by the devolution gap: 3 x 5 = 15
		OutPoints:     40000,
		Oka:           15,
		ChonboPenalty: -20,
		Uma:           []float64{15, 0, -15},
		IsSanma:       true,
	}
	players := []PlayerScore{
		{PlayerID: "p1", RawScore: 45000},
		{PlayerID: "p2", RawScore: 35000},
		{PlayerID: "p3", RawScore: 25000},
	}

	settled, err := Settle(rs, players)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}

	var sum float64
	for _, p := range settled {
		sum += p.FinalScore
	}
	if !approxEqual(sum, 0) {
		t.Fatalf("final scores sum to %v, want 0", sum)
	}
	if settled[0].FinalPosition != 1 || settled[2].FinalPosition != 3 {
		t.Fatalf("unexpected positions %d, %d", settled[0].FinalPosition, settled[2].FinalPosition)
	}
}

func TestValidateRejectsBadInput(t *testing.T) {
	rs := yonmaRuleset()

	cases := []struct {
		name    string
		players []PlayerScore
	}{
		{
			name: "wrong player count",
			players: []PlayerScore{
				{PlayerID: "p1", RawScore: 50000},
				{PlayerID: "p2", RawScore: 50000},
			},
		},
		{
			name: "duplicate player",
			players: []PlayerScore{
				{PlayerID: "p1", RawScore: 32000},
				{PlayerID: "p1", RawScore: 28000},
				{PlayerID: "p3", RawScore: 22000},
				{PlayerID: "p4", RawScore: 18000},
			},
		},
		{
			name: "raw score sum mismatch",
			players: []PlayerScore{
				{PlayerID: "p1", RawScore: 32000},
				{PlayerID: "p2", RawScore: 28000},
				{PlayerID: "p3", RawScore: 22000},
				{PlayerID: "p4", RawScore: 17000},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var validationErr *domain.ValidationError
			if _, err := Settle(rs, tc.players); !errors.As(err, &validationErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}
