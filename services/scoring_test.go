package services

import (
	"testing"
	"time"

	"auction-admin-system/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func entry(id, userID string) models.TournamentEntry {
	return models.TournamentEntry{ID: id, TournamentID: "t1", ExternalUserID: userID}
}

func prediction(userID, auctionID, guess string, at time.Time) models.Prediction {
	return models.Prediction{
		ID:             userID + "-" + auctionID,
		ExternalUserID: userID,
		AuctionID:      auctionID,
		TournamentID:   "t1",
		GuessedPrice:   dec(guess),
		CreatedAt:      at,
	}
}

func TestScoreEntries(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	outcomes := map[string]ResolvedOutcome{
		"a1": {FinalPrice: dec("10000"), Status: models.AuctionStatusSold},
	}
	entries := []models.TournamentEntry{entry("e-a", "user-a"), entry("e-b", "user-b"), entry("e-c", "user-c")}
	predictions := []models.Prediction{
		prediction("user-a", "a1", "9000", base),
		prediction("user-b", "a1", "11000", base.Add(time.Minute)),
		prediction("user-c", "a1", "10000", base.Add(2*time.Minute)),
	}

	scores := ScoreEntries(entries, predictions, outcomes)
	require.Len(t, scores, 3)

	byUser := map[string]EntryScore{}
	for _, s := range scores {
		byUser[s.ExternalUserID] = s
	}

	// Guess at or below final price is correct and accumulates delta.
	assert.Equal(t, 1, byUser["user-a"].CorrectCount)
	assert.True(t, byUser["user-a"].Delta.Equal(dec("1000")))

	// Overestimate is incorrect and contributes nothing.
	assert.Equal(t, 0, byUser["user-b"].CorrectCount)
	assert.True(t, byUser["user-b"].Delta.IsZero())

	// Exact guess is correct with zero delta.
	assert.Equal(t, 1, byUser["user-c"].CorrectCount)
	assert.True(t, byUser["user-c"].Delta.IsZero())
}

func TestScoreEntriesSkipsUnsoldAuctions(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	outcomes := map[string]ResolvedOutcome{
		"a1": {FinalPrice: dec("10000"), Status: models.AuctionStatusSold},
		"a2": {FinalPrice: dec("500"), Status: models.AuctionStatusUnsold},
	}
	entries := []models.TournamentEntry{entry("e-a", "user-a")}
	predictions := []models.Prediction{
		prediction("user-a", "a1", "8000", base),
		prediction("user-a", "a2", "100", base), // would be correct, but void
	}

	scores := ScoreEntries(entries, predictions, outcomes)
	require.Len(t, scores, 1)
	assert.Equal(t, 1, scores[0].CorrectCount)
	assert.True(t, scores[0].Delta.Equal(dec("2000")))
}

func TestRankEntriesOrdering(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	scores := []EntryScore{
		{EntryID: "e-a", ExternalUserID: "user-a", CorrectCount: 1, Delta: dec("1000"), FirstGuessAt: base},
		{EntryID: "e-b", ExternalUserID: "user-b", CorrectCount: 0, Delta: decimal.Zero},
		{EntryID: "e-c", ExternalUserID: "user-c", CorrectCount: 1, Delta: decimal.Zero, FirstGuessAt: base},
	}

	ranked := RankEntries(scores)
	require.Len(t, ranked, 3)
	// Same correct count: lower delta ranks higher. No predictions last.
	assert.Equal(t, "e-c", ranked[0].EntryID)
	assert.Equal(t, "e-a", ranked[1].EntryID)
	assert.Equal(t, "e-b", ranked[2].EntryID)
}

func TestRankEntriesTieBreaks(t *testing.T) {
	early := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	scores := []EntryScore{
		{EntryID: "e-b", CorrectCount: 2, Delta: dec("500"), FirstGuessAt: late},
		{EntryID: "e-a", CorrectCount: 2, Delta: dec("500"), FirstGuessAt: early},
		{EntryID: "e-d", CorrectCount: 2, Delta: dec("500"), FirstGuessAt: late},
	}

	ranked := RankEntries(scores)
	// Earlier first prediction wins; equal timestamps fall back to entry ID.
	assert.Equal(t, []string{"e-a", "e-b", "e-d"},
		[]string{ranked[0].EntryID, ranked[1].EntryID, ranked[2].EntryID})

	// Deterministic: re-ranking a permutation yields the same order.
	again := RankEntries([]EntryScore{scores[2], scores[0], scores[1]})
	for i := range ranked {
		assert.Equal(t, ranked[i].EntryID, again[i].EntryID)
	}
}

func TestWinnerSetTrueTie(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ranked := RankEntries([]EntryScore{
		{EntryID: "e-a", CorrectCount: 2, Delta: dec("300"), FirstGuessAt: base},
		{EntryID: "e-b", CorrectCount: 2, Delta: dec("300"), FirstGuessAt: base.Add(time.Minute)},
		{EntryID: "e-c", CorrectCount: 2, Delta: dec("400"), FirstGuessAt: base},
	})

	winners := WinnerSet(ranked)
	require.Len(t, winners, 2)
	assert.Equal(t, "e-a", winners[0].EntryID)
	assert.Equal(t, "e-b", winners[1].EntryID)
}

func TestWinnerSetEmptyWhenNoCorrectPredictions(t *testing.T) {
	ranked := RankEntries([]EntryScore{
		{EntryID: "e-a", CorrectCount: 0, Delta: decimal.Zero},
		{EntryID: "e-b", CorrectCount: 0, Delta: decimal.Zero},
	})
	assert.Empty(t, WinnerSet(ranked))
}

func TestAssignRanksSharesTies(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ranked := RankEntries([]EntryScore{
		{EntryID: "e-a", CorrectCount: 2, Delta: dec("100"), FirstGuessAt: base},
		{EntryID: "e-b", CorrectCount: 2, Delta: dec("100"), FirstGuessAt: base.Add(time.Minute)},
		{EntryID: "e-c", CorrectCount: 1, Delta: decimal.Zero, FirstGuessAt: base},
	})

	ranks := AssignRanks(ranked)
	assert.Equal(t, 1, ranks["e-a"])
	assert.Equal(t, 1, ranks["e-b"])
	assert.Equal(t, 3, ranks["e-c"])
}

func TestSplitPoolConservesCents(t *testing.T) {
	tests := []struct {
		name string
		pool string
		n    int
		want []string
	}{
		{"even split", "100", 2, []string{"50", "50"}},
		{"whole-unit odd pool splits evenly in cents", "101", 2, []string{"50.50", "50.50"}},
		{"cents remainder", "100", 3, []string{"33.34", "33.33", "33.33"}},
		{"single winner", "250.55", 1, []string{"250.55"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shares := splitPool(dec(tt.pool), tt.n)
			require.Len(t, shares, tt.n)
			sum := decimal.Zero
			for i, s := range shares {
				assert.True(t, s.Equal(dec(tt.want[i])), "share %d: got %s want %s", i, s, tt.want[i])
				sum = sum.Add(s)
			}
			assert.True(t, sum.Equal(dec(tt.pool)), "shares must sum to the pool exactly")
		})
	}
}

func TestBuildTransfersWinningsPath(t *testing.T) {
	winners := []EntryScore{
		{EntryID: "e-b", ExternalUserID: "user-b", CorrectCount: 2},
		{EntryID: "e-a", ExternalUserID: "user-a", CorrectCount: 2},
	}
	entries := []models.TournamentEntry{entry("e-a", "user-a"), entry("e-b", "user-b"), entry("e-c", "user-c")}

	transfers, err := BuildTransfers(winners, entries, dec("101"), dec("10"))
	require.NoError(t, err)
	require.Len(t, transfers, 2)

	// Deterministic remainder: extra cent to the lowest entry ID.
	assert.Equal(t, "e-a", transfers[0].EntryID)
	assert.True(t, transfers[0].Amount.Equal(dec("50.50")))
	assert.Equal(t, "e-b", transfers[1].EntryID)
	assert.True(t, transfers[1].Amount.Equal(dec("50.50")))

	sum := decimal.Zero
	for _, tr := range transfers {
		assert.Equal(t, models.LedgerTypeWinnings, tr.Type)
		sum = sum.Add(tr.Amount)
	}
	assert.True(t, sum.Equal(dec("101")), "winnings must sum to the pool")
}

func TestBuildTransfersOddCentFavorsLowestEntryID(t *testing.T) {
	winners := []EntryScore{
		{EntryID: "e-z", ExternalUserID: "user-z"},
		{EntryID: "e-a", ExternalUserID: "user-a"},
	}
	transfers, err := BuildTransfers(winners, nil, dec("0.03"), decimal.Zero)
	require.NoError(t, err)
	require.Len(t, transfers, 2)
	assert.Equal(t, "e-a", transfers[0].EntryID)
	assert.True(t, transfers[0].Amount.Equal(dec("0.02")))
	assert.True(t, transfers[1].Amount.Equal(dec("0.01")))
}

func TestBuildTransfersRefundPath(t *testing.T) {
	entries := []models.TournamentEntry{
		entry("e-a", "user-a"),
		entry("e-b", "user-b"),
		entry("e-c", "user-c"),
	}

	transfers, err := BuildTransfers(nil, entries, dec("500"), dec("25"))
	require.NoError(t, err)
	require.Len(t, transfers, 3)

	sum := decimal.Zero
	for _, tr := range transfers {
		assert.Equal(t, models.LedgerTypeRefund, tr.Type)
		assert.True(t, tr.Amount.Equal(dec("25")), "each participant gets their full buy-in back")
		sum = sum.Add(tr.Amount)
	}
	assert.True(t, sum.Equal(dec("75")), "refunds must sum to collected buy-ins")
}

func TestBuildTransfersIdempotentPlan(t *testing.T) {
	winners := []EntryScore{
		{EntryID: "e-a", ExternalUserID: "user-a", CorrectCount: 1},
		{EntryID: "e-b", ExternalUserID: "user-b", CorrectCount: 1},
		{EntryID: "e-c", ExternalUserID: "user-c", CorrectCount: 1},
	}

	first, err := BuildTransfers(winners, nil, dec("100"), decimal.Zero)
	require.NoError(t, err)
	second, err := BuildTransfers(winners, nil, dec("100"), decimal.Zero)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].EntryID, second[i].EntryID)
		assert.True(t, first[i].Amount.Equal(second[i].Amount))
	}
}

func TestAssertTransferSumRejectsMismatch(t *testing.T) {
	transfers := []Transfer{
		{ExternalUserID: "user-a", Amount: dec("60"), Type: models.LedgerTypeWinnings},
		{ExternalUserID: "user-b", Amount: dec("50"), Type: models.LedgerTypeWinnings},
	}
	err := assertTransferSum(transfers, dec("100"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}
