// services/ledger.go
package services

import (
	"errors"
	"fmt"

	"auction-admin-system/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

// LedgerService owns every balance mutation in the system. A balance is
// never written without appending the matching ledger entry in the same
// transaction, and vice versa.
type LedgerService struct {
	DB *gorm.DB
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{DB: db}
}

// TransferRefs carries the optional record references stamped onto every
// ledger entry written by one apply call.
type TransferRefs struct {
	WagerID      string
	AuctionID    string
	TournamentID string
}

// lockForUpdate takes a row lock on the next query. sqlite has no FOR
// UPDATE syntax; its single-writer lock serializes writers instead.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// ApplyTransfers executes every transfer inside the caller's transaction
// and returns the appended ledger entries. Each user row is re-read under
// a row lock so a concurrent settlement or refund touching the same
// balance serializes instead of losing updates. Any failure aborts the
// whole transaction — no partial transfers persist.
func (l *LedgerService) ApplyTransfers(tx *gorm.DB, transfers []Transfer, refs TransferRefs) ([]models.LedgerEntry, error) {
	entries := make([]models.LedgerEntry, 0, len(transfers))
	for _, t := range transfers {
		var user models.PlatformUser
		if err := lockForUpdate(tx).
			Where("external_user_id = ?", t.ExternalUserID).
			First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("user %s not found for %s transfer", t.ExternalUserID, t.Type)
			}
			return nil, fmt.Errorf("failed to lock user %s: %w", t.ExternalUserID, err)
		}

		newBalance := user.Balance.Add(t.Amount)
		if newBalance.IsNegative() {
			return nil, fmt.Errorf("%w: user %s has %s, transfer needs %s",
				ErrInsufficientBalance, t.ExternalUserID, user.Balance, t.Amount.Neg())
		}

		if err := tx.Model(&models.PlatformUser{}).
			Where("external_user_id = ?", t.ExternalUserID).
			Update("balance", newBalance).Error; err != nil {
			return nil, fmt.Errorf("failed to update balance for %s: %w", t.ExternalUserID, err)
		}

		entry := models.LedgerEntry{
			ID:             uuid.NewString(),
			ExternalUserID: t.ExternalUserID,
			WagerID:        refs.WagerID,
			AuctionID:      refs.AuctionID,
			TournamentID:   refs.TournamentID,
			Type:           t.Type,
			Amount:         t.Amount,
			Status:         models.LedgerStatusSuccess,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return nil, fmt.Errorf("failed to append ledger entry for %s: %w", t.ExternalUserID, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Post applies a single signed movement in its own transaction and returns
// the ledger entry. Used by deposits, withdrawals, wager stakes and
// tournament buy-ins.
func (l *LedgerService) Post(externalUserID string, amount decimal.Decimal, kind models.LedgerType, refs TransferRefs) (*models.LedgerEntry, error) {
	transfers := []Transfer{{ExternalUserID: externalUserID, Amount: amount, Type: kind}}
	var entries []models.LedgerEntry
	err := l.DB.Transaction(func(tx *gorm.DB) error {
		var txErr error
		entries, txErr = l.ApplyTransfers(tx, transfers, refs)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return &entries[0], nil
}

// ReconcileBalance recomputes a user's balance from their success-status
// ledger entries. Admin tooling for the balance invariant — the stored
// balance must equal the returned sum.
func (l *LedgerService) ReconcileBalance(externalUserID string) (decimal.Decimal, error) {
	var entries []models.LedgerEntry
	if err := l.DB.Where("external_user_id = ? AND status = ?", externalUserID, models.LedgerStatusSuccess).
		Find(&entries).Error; err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	return sum, nil
}
