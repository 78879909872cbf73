// services/scoring.go
package services

import (
	"fmt"
	"sort"
	"time"

	"auction-admin-system/models"

	"github.com/shopspring/decimal"
)

// ResolvedOutcome is the final state of one auction, as confirmed by the
// outcome resolver. Only produced when the auction is final.
type ResolvedOutcome struct {
	FinalPrice decimal.Decimal
	Status     models.AuctionStatus
}

// EntryScore is one participant's raw score for a settlement run.
type EntryScore struct {
	EntryID        string          `json:"entry_id"`
	ExternalUserID string          `json:"external_user_id"`
	CorrectCount   int             `json:"correct_count"`
	Delta          decimal.Decimal `json:"delta"`
	// FirstGuessAt is the earliest counted prediction timestamp, used as
	// the secondary tie-break. Zero when the entry made no predictions.
	FirstGuessAt time.Time `json:"first_guess_at"`
}

// Transfer is one planned money movement produced by the payout calculator
// and executed by the ledger executor.
type Transfer struct {
	ExternalUserID string            `json:"external_user_id"`
	EntryID        string            `json:"entry_id"`
	Amount         decimal.Decimal   `json:"amount"`
	Type           models.LedgerType `json:"type"`
}

// ScoreEntries computes the raw score for every entry. A prediction counts
// only when it references an auction in the resolved set and that auction
// did not end unsold (void). A guess at or below the final price is
// correct and accumulates delta = finalPrice - guess; an overestimate
// scores zero. Pure function of its inputs.
func ScoreEntries(entries []models.TournamentEntry, predictions []models.Prediction, outcomes map[string]ResolvedOutcome) []EntryScore {
	byUser := make(map[string][]models.Prediction, len(entries))
	for _, p := range predictions {
		byUser[p.ExternalUserID] = append(byUser[p.ExternalUserID], p)
	}

	scores := make([]EntryScore, 0, len(entries))
	for _, e := range entries {
		score := EntryScore{
			EntryID:        e.ID,
			ExternalUserID: e.ExternalUserID,
			Delta:          decimal.Zero,
		}
		for _, p := range byUser[e.ExternalUserID] {
			outcome, ok := outcomes[p.AuctionID]
			if !ok || outcome.Status == models.AuctionStatusUnsold {
				continue // void auctions never count
			}
			if score.FirstGuessAt.IsZero() || p.CreatedAt.Before(score.FirstGuessAt) {
				score.FirstGuessAt = p.CreatedAt
			}
			if p.GuessedPrice.LessThanOrEqual(outcome.FinalPrice) {
				score.CorrectCount++
				score.Delta = score.Delta.Add(outcome.FinalPrice.Sub(p.GuessedPrice))
			}
			// overestimates contribute nothing
		}
		scores = append(scores, score)
	}
	return scores
}

// RankEntries orders scores into a total order: correct count descending,
// delta ascending, earliest first prediction, entry ID ascending. Entries
// with no predictions sort after everything else at the same score.
func RankEntries(scores []EntryScore) []EntryScore {
	ranked := make([]EntryScore, len(scores))
	copy(ranked, scores)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.CorrectCount != b.CorrectCount {
			return a.CorrectCount > b.CorrectCount
		}
		if !a.Delta.Equal(b.Delta) {
			return a.Delta.LessThan(b.Delta)
		}
		switch {
		case a.FirstGuessAt.IsZero() && !b.FirstGuessAt.IsZero():
			return false
		case !a.FirstGuessAt.IsZero() && b.FirstGuessAt.IsZero():
			return true
		case !a.FirstGuessAt.Equal(b.FirstGuessAt):
			return a.FirstGuessAt.Before(b.FirstGuessAt)
		}
		return a.EntryID < b.EntryID
	})
	return ranked
}

// WinnerSet returns every entry tied for rank 1: equal best correct count
// and equal best delta. If the best correct count is zero there is no
// qualifying winner and the result is empty (refund fallback applies).
func WinnerSet(ranked []EntryScore) []EntryScore {
	if len(ranked) == 0 || ranked[0].CorrectCount == 0 {
		return nil
	}
	best := ranked[0]
	var winners []EntryScore
	for _, s := range ranked {
		if s.CorrectCount == best.CorrectCount && s.Delta.Equal(best.Delta) {
			winners = append(winners, s)
			continue
		}
		break
	}
	return winners
}

// AssignRanks maps entry ID → competition rank over the ordered scores.
// Entries tied on (correct count, delta) share a rank.
func AssignRanks(ranked []EntryScore) map[string]int {
	ranks := make(map[string]int, len(ranked))
	rank := 0
	for i, s := range ranked {
		if i == 0 || s.CorrectCount != ranked[i-1].CorrectCount || !s.Delta.Equal(ranked[i-1].Delta) {
			rank = i + 1
		}
		ranks[s.EntryID] = rank
	}
	return ranks
}

// splitPool divides a pool into n shares that sum exactly to the pool.
// Shares are computed in cents; leftover cents go one at a time to the
// earliest positions (callers pass winners in ascending entry ID order).
func splitPool(pool decimal.Decimal, n int) []decimal.Decimal {
	cents := pool.Mul(decimal.NewFromInt(100)).IntPart()
	base := cents / int64(n)
	extra := cents % int64(n)
	shares := make([]decimal.Decimal, n)
	for i := range shares {
		c := base
		if int64(i) < extra {
			c++
		}
		shares[i] = decimal.New(c, -2)
	}
	return shares
}

// BuildTransfers turns the winner set and the prize pool into the list of
// money movements to execute. Non-empty winner set: the pool is split
// evenly with deterministic remainder handling (extra cents to lowest
// entry IDs). Empty winner set: every participant gets their buy-in back.
// The sum invariant is asserted here, before anything reaches storage.
func BuildTransfers(winners []EntryScore, entries []models.TournamentEntry, prizePool, buyInFee decimal.Decimal) ([]Transfer, error) {
	if len(winners) > 0 {
		ordered := make([]EntryScore, len(winners))
		copy(ordered, winners)
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].EntryID < ordered[j].EntryID })

		shares := splitPool(prizePool, len(ordered))
		transfers := make([]Transfer, 0, len(ordered))
		for i, w := range ordered {
			transfers = append(transfers, Transfer{
				ExternalUserID: w.ExternalUserID,
				EntryID:        w.EntryID,
				Amount:         shares[i],
				Type:           models.LedgerTypeWinnings,
			})
		}
		if err := assertTransferSum(transfers, prizePool); err != nil {
			return nil, err
		}
		return transfers, nil
	}

	// No qualifying winner: refund every buy-in in full.
	ordered := make([]models.TournamentEntry, len(entries))
	copy(ordered, entries)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	transfers := make([]Transfer, 0, len(ordered))
	for _, e := range ordered {
		transfers = append(transfers, Transfer{
			ExternalUserID: e.ExternalUserID,
			EntryID:        e.ID,
			Amount:         buyInFee,
			Type:           models.LedgerTypeRefund,
		})
	}
	if err := assertTransferSum(transfers, buyInFee.Mul(decimal.NewFromInt(int64(len(ordered))))); err != nil {
		return nil, err
	}
	return transfers, nil
}

func assertTransferSum(transfers []Transfer, want decimal.Decimal) error {
	sum := decimal.Zero
	for _, t := range transfers {
		sum = sum.Add(t.Amount)
	}
	if !sum.Equal(want) {
		return fmt.Errorf("transfer sum %s does not match expected total %s", sum, want)
	}
	return nil
}
