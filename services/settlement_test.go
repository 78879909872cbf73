package services

import (
	"fmt"
	"testing"

	"auction-admin-system/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSettlementTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Auction{},
		&models.AuctionPhoto{},
		&models.Wager{},
		&models.Prediction{},
		&models.Tournament{},
		&models.TournamentAuction{},
		&models.TournamentEntry{},
		&models.LedgerEntry{},
		&models.SettlementAudit{},
	))
	// platform_users declares a postgres-native ID default, so the table is
	// created by hand here.
	require.NoError(t, db.Exec(`CREATE TABLE platform_users (
		id text PRIMARY KEY,
		external_user_id text NOT NULL UNIQUE,
		username text NOT NULL,
		email text,
		avatar_url text,
		balance numeric NOT NULL DEFAULT 0,
		is_banned numeric DEFAULT false,
		created_at datetime,
		updated_at datetime,
		deleted_at datetime
	)`).Error)
	return db
}

func seedUser(t *testing.T, db *gorm.DB, externalID string, balance decimal.Decimal) {
	t.Helper()
	require.NoError(t, db.Create(&models.PlatformUser{
		ID:             uuid.NewString(),
		ExternalUserID: externalID,
		Username:       externalID,
		Balance:        balance,
	}).Error)
}

func seedFinalAuction(t *testing.T, db *gorm.DB, id, finalPrice string) {
	t.Helper()
	price := dec(finalPrice)
	require.NoError(t, db.Create(&models.Auction{
		ID:         id,
		Title:      "lot " + id,
		Status:     models.AuctionStatusSold,
		FinalPrice: &price,
		IsFinal:    true,
	}).Error)
}

// seedRunningTournament wires a running tournament over the given auctions
// with one entry per user (entry ID "e-<user>").
func seedRunningTournament(t *testing.T, db *gorm.DB, id, pool, buyIn string, auctionIDs, userIDs []string) {
	t.Helper()
	require.NoError(t, db.Create(&models.Tournament{
		ID:        id,
		Slug:      id,
		Name:      id,
		PrizePool: dec(pool),
		BuyInFee:  dec(buyIn),
		Status:    models.TournamentStatusRunning,
	}).Error)
	for i, auctionID := range auctionIDs {
		require.NoError(t, db.Create(&models.TournamentAuction{
			ID:           uuid.NewString(),
			TournamentID: id,
			AuctionID:    auctionID,
			SortOrder:    i,
		}).Error)
	}
	for _, userID := range userIDs {
		require.NoError(t, db.Create(&models.TournamentEntry{
			ID:             "e-" + userID,
			TournamentID:   id,
			ExternalUserID: userID,
			DisplayName:    userID,
			Kind:           models.EntryKindHuman,
			Delta:          decimal.Zero,
		}).Error)
	}
}

func seedPrediction(t *testing.T, db *gorm.DB, tournamentID, userID, auctionID, guess string) {
	t.Helper()
	require.NoError(t, db.Create(&models.Prediction{
		ID:             uuid.NewString(),
		ExternalUserID: userID,
		AuctionID:      auctionID,
		TournamentID:   tournamentID,
		GuessedPrice:   dec(guess),
	}).Error)
}

func userBalance(t *testing.T, db *gorm.DB, externalID string) decimal.Decimal {
	t.Helper()
	var user models.PlatformUser
	require.NoError(t, db.First(&user, "external_user_id = ?", externalID).Error)
	return user.Balance
}

func TestSettleTournamentIdempotentDoubleCall(t *testing.T) {
	db := newSettlementTestDB(t)
	svc := NewSettlementService(db, NewLedgerService(db))

	seedUser(t, db, "alice", decimal.Zero)
	seedUser(t, db, "bob", decimal.Zero)
	seedFinalAuction(t, db, "a1", "10000")
	seedRunningTournament(t, db, "t1", "100", "10", []string{"a1"}, []string{"alice", "bob"})
	seedPrediction(t, db, "t1", "alice", "a1", "9000")
	seedPrediction(t, db, "t1", "bob", "a1", "11000")

	first, err := svc.SettleTournament("t1")
	require.NoError(t, err)
	assert.Equal(t, models.TournamentStatusSettled, first.State)
	assert.False(t, first.AlreadySettled)
	require.Len(t, first.Winners, 1)
	assert.Equal(t, "e-alice", first.Winners[0].EntryID)
	require.Len(t, first.Transfers, 1)
	assert.True(t, first.Transfers[0].Amount.Equal(dec("100")))
	assert.True(t, userBalance(t, db, "alice").Equal(dec("100")))

	second, err := svc.SettleTournament("t1")
	require.NoError(t, err)
	assert.True(t, second.AlreadySettled)
	assert.Equal(t, models.TournamentStatusSettled, second.State)
	require.Len(t, second.Winners, 1)
	assert.Equal(t, first.Winners[0].EntryID, second.Winners[0].EntryID)
	require.Len(t, second.Transfers, 1)
	assert.True(t, second.Transfers[0].Amount.Equal(first.Transfers[0].Amount))
	assert.Equal(t, models.LedgerTypeWinnings, second.Transfers[0].Type)

	// One effective payout: single winnings entry, balance unchanged.
	var winnings int64
	db.Model(&models.LedgerEntry{}).
		Where("tournament_id = ? AND type = ?", "t1", models.LedgerTypeWinnings).
		Count(&winnings)
	assert.EqualValues(t, 1, winnings)
	assert.True(t, userBalance(t, db, "alice").Equal(dec("100")))
}

func TestSettleTournamentFailsClosedOnPendingAuction(t *testing.T) {
	db := newSettlementTestDB(t)
	svc := NewSettlementService(db, NewLedgerService(db))

	seedUser(t, db, "alice", decimal.Zero)
	seedFinalAuction(t, db, "a1", "10000")
	require.NoError(t, db.Create(&models.Auction{
		ID:     "a2",
		Title:  "lot a2",
		Status: models.AuctionStatusLive,
	}).Error)
	seedRunningTournament(t, db, "t1", "100", "10", []string{"a1", "a2"}, []string{"alice"})
	seedPrediction(t, db, "t1", "alice", "a1", "9000")

	_, err := svc.SettleTournament("t1")
	require.ErrorIs(t, err, ErrOutcomesPending)

	// Nothing moved: no transfers, state untouched.
	var entries int64
	db.Model(&models.LedgerEntry{}).Where("tournament_id = ?", "t1").Count(&entries)
	assert.EqualValues(t, 0, entries)
	var tournament models.Tournament
	require.NoError(t, db.First(&tournament, "id = ?", "t1").Error)
	assert.Equal(t, models.TournamentStatusRunning, tournament.Status)
	assert.True(t, userBalance(t, db, "alice").IsZero())
}

func TestSettleTournamentIgnoresPreStartLeaveRefunds(t *testing.T) {
	db := newSettlementTestDB(t)
	svc := NewSettlementService(db, NewLedgerService(db))

	seedUser(t, db, "alice", decimal.Zero)
	seedFinalAuction(t, db, "a1", "10000")
	seedRunningTournament(t, db, "t1", "100", "10", []string{"a1"}, []string{"alice"})
	seedPrediction(t, db, "t1", "alice", "a1", "9000")

	// carol joined and left before the tournament started; her buy-in
	// refund carries the tournament ref but is not a settlement transfer.
	require.NoError(t, db.Create(&models.LedgerEntry{
		ID:             uuid.NewString(),
		ExternalUserID: "carol",
		TournamentID:   "t1",
		Type:           models.LedgerTypeRefund,
		Amount:         dec("10"),
		Status:         models.LedgerStatusSuccess,
	}).Error)

	result, err := svc.SettleTournament("t1")
	require.NoError(t, err)
	assert.Equal(t, models.TournamentStatusSettled, result.State)
	require.Len(t, result.Winners, 1)
	assert.True(t, userBalance(t, db, "alice").Equal(dec("100")))

	var tournament models.Tournament
	require.NoError(t, db.First(&tournament, "id = ?", "t1").Error)
	assert.Equal(t, models.TournamentStatusSettled, tournament.Status)
}

func TestSettleTournamentRefundsWhenNoWinner(t *testing.T) {
	db := newSettlementTestDB(t)
	svc := NewSettlementService(db, NewLedgerService(db))

	seedUser(t, db, "alice", decimal.Zero)
	seedUser(t, db, "bob", decimal.Zero)
	seedFinalAuction(t, db, "a1", "10000")
	seedRunningTournament(t, db, "t1", "100", "25", []string{"a1"}, []string{"alice", "bob"})
	seedPrediction(t, db, "t1", "alice", "a1", "12000")
	seedPrediction(t, db, "t1", "bob", "a1", "15000")

	result, err := svc.SettleTournament("t1")
	require.NoError(t, err)
	assert.Empty(t, result.Winners)
	require.Len(t, result.Transfers, 2)
	for _, tr := range result.Transfers {
		assert.Equal(t, models.LedgerTypeRefund, tr.Type)
		assert.True(t, tr.Amount.Equal(dec("25")))
	}
	assert.True(t, userBalance(t, db, "alice").Equal(dec("25")))
	assert.True(t, userBalance(t, db, "bob").Equal(dec("25")))

	// Repeated trigger returns the committed refund transfers.
	second, err := svc.SettleTournament("t1")
	require.NoError(t, err)
	assert.True(t, second.AlreadySettled)
	assert.Empty(t, second.Winners)
	assert.Len(t, second.Transfers, 2)
	assert.True(t, userBalance(t, db, "alice").Equal(dec("25")))
}

func TestSettleTournamentRevertsOnLedgerFailure(t *testing.T) {
	db := newSettlementTestDB(t)
	svc := NewSettlementService(db, NewLedgerService(db))

	// alice wins but has no platform_users row, so the ledger apply fails
	// mid-transaction and nothing may commit.
	seedFinalAuction(t, db, "a1", "10000")
	seedRunningTournament(t, db, "t1", "100", "10", []string{"a1"}, []string{"alice"})
	seedPrediction(t, db, "t1", "alice", "a1", "9000")

	_, err := svc.SettleTournament("t1")
	require.Error(t, err)

	var entries int64
	db.Model(&models.LedgerEntry{}).Where("tournament_id = ?", "t1").Count(&entries)
	assert.EqualValues(t, 0, entries)

	var tournament models.Tournament
	require.NoError(t, db.First(&tournament, "id = ?", "t1").Error)
	assert.Equal(t, models.TournamentStatusRunning, tournament.Status)

	var entry models.TournamentEntry
	require.NoError(t, db.First(&entry, "id = ?", "e-alice").Error)
	assert.Equal(t, 0, entry.FinalRank)
}

func TestSettleTournamentGuardStates(t *testing.T) {
	db := newSettlementTestDB(t)
	svc := NewSettlementService(db, NewLedgerService(db))

	seedUser(t, db, "alice", decimal.Zero)
	seedFinalAuction(t, db, "a1", "10000")
	seedRunningTournament(t, db, "t1", "100", "10", []string{"a1"}, []string{"alice"})

	require.NoError(t, db.Model(&models.Tournament{}).
		Where("id = ?", "t1").
		Update("status", models.TournamentStatusSettling).Error)
	result, err := svc.SettleTournament("t1")
	require.NoError(t, err)
	assert.True(t, result.AlreadySettled)
	assert.Equal(t, models.TournamentStatusSettling, result.State)

	require.NoError(t, db.Model(&models.Tournament{}).
		Where("id = ?", "t1").
		Update("status", models.TournamentStatusOpen).Error)
	_, err = svc.SettleTournament("t1")
	require.ErrorIs(t, err, ErrNotRunning)

	_, err = svc.SettleTournament("missing")
	require.ErrorIs(t, err, ErrTournamentNotFound)
}
