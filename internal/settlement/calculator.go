// Package settlement turns the raw scores of one table into uma, oka, final
// scores and final positions. It is the single settlement code path: both the
// preview query and the approval commit call Settle, so a previewed outcome
// can never drift from the committed one.
package settlement

import (
	"fmt"
	"math"
	"sort"

	"mahjong-ledger/internal/constants"
	"mahjong-ledger/internal/domain"
)

// PlayerScore is one player's raw submission.
type PlayerScore struct {
	PlayerID    string
	Wind        string
	RawScore    int
	ChonboCount int
}

// SettledPlayer is the settled outcome for one player, in submission order.
type SettledPlayer struct {
	PlayerID      string
	Wind          string
	RawScore      int
	ChonboCount   int
	Devolution    float64
	Transitory    float64
	Uma           float64
	Oka           float64
	FinalScore    float64
	FinalPosition int
}

// Validate checks a submission against its ruleset without settling: player
// count, duplicate players, and the exact raw-score sum.
func Validate(rs *domain.Ruleset, players []PlayerScore) error {
	expected := rs.PlayerCount()
	if len(players) != expected {
		return &domain.ValidationError{
			Reason: fmt.Sprintf("expected %d players, got %d", expected, len(players)),
		}
	}
	if len(rs.Uma) != expected {
		return &domain.ValidationError{
			Reason: fmt.Sprintf("ruleset %s has %d uma slots for %d players", rs.ID, len(rs.Uma), expected),
		}
	}

	seen := make(map[string]bool, len(players))
	sum := 0
	for _, p := range players {
		if p.PlayerID == "" {
			return &domain.ValidationError{Reason: "empty player id"}
		}
		if seen[p.PlayerID] {
			return &domain.ValidationError{
				Reason: fmt.Sprintf("duplicate player %s", p.PlayerID),
			}
		}
		seen[p.PlayerID] = true
		sum += p.RawScore
	}

	if want := rs.InPoints * expected; sum != want {
		return &domain.ValidationError{
			Reason: fmt.Sprintf("raw scores sum to %d, expected %d", sum, want),
		}
	}
	return nil
}

// Settle computes the full settlement for one table. The returned slice keeps
// the submission order of players.
func Settle(rs *domain.Ruleset, players []PlayerScore) ([]SettledPlayer, error) {
	if err := Validate(rs, players); err != nil {
		return nil, err
	}

	n := len(players)
	devolution := float64(rs.OutPoints) / 1000

	settled := make([]SettledPlayer, n)
	for i, p := range players {
		settled[i] = SettledPlayer{
			PlayerID:    p.PlayerID,
			Wind:        p.Wind,
			RawScore:    p.RawScore,
			ChonboCount: p.ChonboCount,
			Devolution:  devolution,
			Transitory:  float64(p.RawScore)/1000 - devolution,
		}
	}

	assignUma(settled, rs.Uma)

	preOka := make([]float64, n)
	for i := range settled {
		preOka[i] = settled[i].Transitory + settled[i].Uma +
			float64(settled[i].ChonboCount)*rs.ChonboPenalty
	}

	// Oka splits evenly among every player tied for the top pre-oka score.
	top := preOka[0]
	for _, v := range preOka[1:] {
		if v > top {
			top = v
		}
	}
	var winners []int
	for i, v := range preOka {
		if top-v <= constants.ScoreEpsilon {
			winners = append(winners, i)
		}
	}
	share := rs.Oka / float64(len(winners))
	for _, i := range winners {
		settled[i].Oka = share
	}

	// The oka pool is funded by the devolution baseline already subtracted
	// from everyone, so final scores sum to zero within tolerance. Chonbo
	// penalties are pure deductions and sit outside the zero-sum check.
	var sum float64
	for i := range settled {
		settled[i].FinalScore = preOka[i] + settled[i].Oka
		sum += settled[i].FinalScore - float64(settled[i].ChonboCount)*rs.ChonboPenalty
	}
	if math.Abs(sum) > constants.ScoreSumTolerance {
		return nil, &domain.ValidationError{
			Reason: fmt.Sprintf("final scores sum to %.2f, tolerance is %.2f", sum, constants.ScoreSumTolerance),
		}
	}

	assignPositions(settled)
	return settled, nil
}

// assignUma ranks players by transitory score descending and assigns uma.
// Players tied within epsilon share the mean of the uma values spanning their
// tied rank slots.
func assignUma(settled []SettledPlayer, uma []float64) {
	order := rankDescending(len(settled), func(i int) float64 { return settled[i].Transitory })

	for start := 0; start < len(order); {
		end := start + 1
		for end < len(order) &&
			settled[order[end-1]].Transitory-settled[order[end]].Transitory <= constants.ScoreEpsilon {
			end++
		}

		var total float64
		for slot := start; slot < end; slot++ {
			total += uma[slot]
		}
		mean := total / float64(end-start)
		for _, idx := range order[start:end] {
			settled[idx].Uma = mean
		}
		start = end
	}
}

// assignPositions ranks by final score descending. Tied entries share a
// position and the next distinct entry skips ahead by the tie-group size,
// e.g. a two-way tie for first yields 1, 1, 3, 4.
func assignPositions(settled []SettledPlayer) {
	order := rankDescending(len(settled), func(i int) float64 { return settled[i].FinalScore })

	for start := 0; start < len(order); {
		end := start + 1
		for end < len(order) &&
			settled[order[end-1]].FinalScore-settled[order[end]].FinalScore <= constants.ScoreEpsilon {
			end++
		}
		for _, idx := range order[start:end] {
			settled[idx].FinalPosition = start + 1
		}
		start = end
	}
}

// rankDescending returns player indices sorted by key descending, breaking
// exact ties by submission order so the result is deterministic.
func rankDescending(n int, key func(i int) float64) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return key(order[a]) > key(order[b])
	})
	return order
}
