// services/settlement.go
package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"auction-admin-system/models"
	"auction-admin-system/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrOutcomesPending means one or more auctions in the tournament's
	// set are not final yet. Retryable: the caller can try again once the
	// lifecycle service finalizes them. Tournament state is unchanged.
	ErrOutcomesPending = errors.New("one or more auctions are not final")

	ErrTournamentNotFound = errors.New("tournament not found")

	// ErrNotRunning means settlement was invoked on an open or cancelled
	// tournament. Not retryable without a state change.
	ErrNotRunning = errors.New("tournament is not in running state")
)

// SettlementService runs the settlement pipeline for a tournament:
// resolve outcomes, score, rank, compute transfers and commit them through
// the ledger, guarded by the tournament status state machine so each
// tournament settles at most once.
type SettlementService struct {
	DB     *gorm.DB
	Ledger *LedgerService
}

func NewSettlementService(db *gorm.DB, ledger *LedgerService) *SettlementService {
	return &SettlementService{DB: db, Ledger: ledger}
}

// SettlementResult is what a settlement trigger gets back. AlreadySettled
// reports the concurrency no-op case: another caller won the guard's
// compare-and-set (or the tournament settled earlier) and the current
// state is returned without error.
type SettlementResult struct {
	TournamentID   string                  `json:"tournament_id"`
	State          models.TournamentStatus `json:"state"`
	AlreadySettled bool                    `json:"already_settled"`
	Winners        []EntryScore            `json:"winners,omitempty"`
	Transfers      []Transfer              `json:"transfers,omitempty"`
}

// resolveOutcomes fetches every auction in the tournament's set and fails
// closed: if any one is not final, no mapping is returned at all. Pure
// read, no side effects.
func (s *SettlementService) resolveOutcomes(links []models.TournamentAuction) (map[string]ResolvedOutcome, error) {
	ids := make([]string, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.AuctionID)
	}

	var auctions []models.Auction
	if err := s.DB.Where("id IN ?", ids).Find(&auctions).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch auctions: %w", err)
	}
	if len(auctions) != len(ids) {
		return nil, fmt.Errorf("tournament references %d auctions but only %d exist", len(ids), len(auctions))
	}

	outcomes := make(map[string]ResolvedOutcome, len(auctions))
	for _, a := range auctions {
		if !a.IsFinal || a.FinalPrice == nil {
			return nil, fmt.Errorf("%w: auction %s (%s)", ErrOutcomesPending, a.ID, a.Status)
		}
		outcomes[a.ID] = ResolvedOutcome{FinalPrice: *a.FinalPrice, Status: a.Status}
	}
	return outcomes, nil
}

// SettleTournament is the single exposed settlement operation. Concurrent
// or repeated calls are safe: the running → settling transition is an
// atomic compare-and-set, so a second caller observes settling/settled and
// no-ops. On any pipeline failure after entering settling the state
// reverts to running so a retry is possible.
func (s *SettlementService) SettleTournament(tournamentID string) (*SettlementResult, error) {
	var tournament models.Tournament
	err := s.DB.Preload("Auctions").Preload("Entries").
		First(&tournament, "id = ?", tournamentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to fetch tournament: %w", err)
	}

	switch tournament.Status {
	case models.TournamentStatusSettled:
		return s.settledResult(tournamentID)
	case models.TournamentStatusSettling:
		return &SettlementResult{TournamentID: tournamentID, State: tournament.Status, AlreadySettled: true}, nil
	case models.TournamentStatusRunning:
		// proceed
	default:
		return nil, fmt.Errorf("%w: status is %s", ErrNotRunning, tournament.Status)
	}

	// Fail-closed precondition, checked before touching the guard so a
	// pending auction leaves the tournament state untouched.
	outcomes, err := s.resolveOutcomes(tournament.Auctions)
	if err != nil {
		return nil, err
	}

	// Guard: running → settling, exactly one caller wins.
	res := s.DB.Model(&models.Tournament{}).
		Where("id = ? AND status = ?", tournamentID, models.TournamentStatusRunning).
		Update("status", models.TournamentStatusSettling)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to enter settling state: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var current models.Tournament
		if err := s.DB.Select("status").First(&current, "id = ?", tournamentID).Error; err != nil {
			return nil, fmt.Errorf("failed to re-read tournament state: %w", err)
		}
		if current.Status == models.TournamentStatusSettled {
			return s.settledResult(tournamentID)
		}
		return &SettlementResult{TournamentID: tournamentID, State: current.Status, AlreadySettled: true}, nil
	}

	result, err := s.runPipeline(&tournament, outcomes)
	if err != nil {
		// Revert settling → running so a later retry is possible.
		if revertErr := s.DB.Model(&models.Tournament{}).
			Where("id = ? AND status = ?", tournamentID, models.TournamentStatusSettling).
			Update("status", models.TournamentStatusRunning).Error; revertErr != nil {
			log.Printf("❌ [SETTLE] failed to revert tournament %s to running: %v", tournamentID, revertErr)
		}
		s.emitAudit(tournamentID, "failed", nil, nil)
		return nil, err
	}

	s.emitAudit(tournamentID, result.auditOutcome(), result.Winners, result.Transfers)
	return result, nil
}

// settledResult rebuilds the result of an already-committed run from the
// persisted entry ranks and ledger entries, so a repeated trigger returns
// the same winners and transfers as the call that settled.
func (s *SettlementService) settledResult(tournamentID string) (*SettlementResult, error) {
	var entries []models.TournamentEntry
	if err := s.DB.Where("tournament_id = ?", tournamentID).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch entries: %w", err)
	}

	entryByUser := make(map[string]models.TournamentEntry, len(entries))
	var winners []EntryScore
	for _, e := range entries {
		entryByUser[e.ExternalUserID] = e
		if e.FinalRank == 1 && e.CorrectCount > 0 {
			winners = append(winners, EntryScore{
				EntryID:        e.ID,
				ExternalUserID: e.ExternalUserID,
				CorrectCount:   e.CorrectCount,
				Delta:          e.Delta,
			})
		}
	}

	// Winnings path committed winnings entries; refund path committed one
	// refund per entrant. Pre-start leave refunds belong to users without a
	// surviving entry and stay out either way.
	wantType := models.LedgerTypeWinnings
	if len(winners) == 0 {
		wantType = models.LedgerTypeRefund
	}
	var ledger []models.LedgerEntry
	if err := s.DB.Where("tournament_id = ? AND status = ? AND type = ?",
		tournamentID, models.LedgerStatusSuccess, wantType).
		Order("created_at ASC").Find(&ledger).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch settlement ledger entries: %w", err)
	}

	transfers := make([]Transfer, 0, len(ledger))
	for _, le := range ledger {
		e, ok := entryByUser[le.ExternalUserID]
		if !ok {
			continue
		}
		transfers = append(transfers, Transfer{
			ExternalUserID: le.ExternalUserID,
			EntryID:        e.ID,
			Amount:         le.Amount,
			Type:           le.Type,
		})
	}

	return &SettlementResult{
		TournamentID:   tournamentID,
		State:          models.TournamentStatusSettled,
		AlreadySettled: true,
		Winners:        winners,
		Transfers:      transfers,
	}, nil
}

func (r *SettlementResult) auditOutcome() string {
	if len(r.Winners) == 0 {
		return "no_winner_refund"
	}
	return "settled"
}

// runPipeline executes scoring → ranking → payout → ledger with the guard
// already holding settling. The ledger application, rank persistence and
// the settling → settled transition share one transaction, so a crash or
// storage failure commits nothing.
func (s *SettlementService) runPipeline(tournament *models.Tournament, outcomes map[string]ResolvedOutcome) (*SettlementResult, error) {
	auctionIDs := make([]string, 0, len(tournament.Auctions))
	for _, l := range tournament.Auctions {
		auctionIDs = append(auctionIDs, l.AuctionID)
	}

	var predictions []models.Prediction
	if err := s.DB.Where("tournament_id = ? AND auction_id IN ?", tournament.ID, auctionIDs).
		Find(&predictions).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch predictions: %w", err)
	}

	scores := ScoreEntries(tournament.Entries, predictions, outcomes)
	ranked := RankEntries(scores)
	winners := WinnerSet(ranked)
	ranks := AssignRanks(ranked)

	transfers, err := BuildTransfers(winners, tournament.Entries, tournament.PrizePool, tournament.BuyInFee)
	if err != nil {
		// Invariant violation: must never reach storage.
		return nil, fmt.Errorf("payout invariant violation for tournament %s: %w", tournament.ID, err)
	}

	scoreByEntry := make(map[string]EntryScore, len(ranked))
	for _, sc := range ranked {
		scoreByEntry[sc.EntryID] = sc
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		// Double-settlement belt on top of the guard: a committed run has
		// already written winnings entries for this tournament. Refunds are
		// excluded: pre-start leave refunds carry the same tournament ref,
		// and a committed refund-path run is already in settled state and
		// never re-enters the pipeline.
		var applied int64
		if err := tx.Model(&models.LedgerEntry{}).
			Where("tournament_id = ? AND status = ? AND type = ?",
				tournament.ID, models.LedgerStatusSuccess, models.LedgerTypeWinnings).
			Count(&applied).Error; err != nil {
			return err
		}
		if applied > 0 {
			return fmt.Errorf("tournament %s already has %d committed settlement transfers", tournament.ID, applied)
		}

		if _, err := s.Ledger.ApplyTransfers(tx, transfers, TransferRefs{TournamentID: tournament.ID}); err != nil {
			return err
		}

		for _, e := range tournament.Entries {
			sc := scoreByEntry[e.ID]
			if err := tx.Model(&models.TournamentEntry{}).
				Where("id = ?", e.ID).
				Updates(map[string]interface{}{
					"final_rank":    ranks[e.ID],
					"correct_count": sc.CorrectCount,
					"delta":         sc.Delta,
				}).Error; err != nil {
				return fmt.Errorf("failed to persist rank for entry %s: %w", e.ID, err)
			}
		}

		now := time.Now()
		res := tx.Model(&models.Tournament{}).
			Where("id = ? AND status = ?", tournament.ID, models.TournamentStatusSettling).
			Updates(map[string]interface{}{
				"status":     models.TournamentStatusSettled,
				"settled_at": &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("tournament %s left settling state mid-pipeline", tournament.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ [SETTLE] tournament %s settled: %d winners, %d transfers",
		tournament.ID, len(winners), len(transfers))

	return &SettlementResult{
		TournamentID: tournament.ID,
		State:        models.TournamentStatusSettled,
		Winners:      winners,
		Transfers:    transfers,
	}, nil
}

// emitAudit records one audit row and ships a JSON copy to object storage.
// Strictly fire-and-forget: audit failures are logged, never propagated.
func (s *SettlementService) emitAudit(tournamentID, outcome string, winners []EntryScore, transfers []Transfer) {
	winnersJSON, _ := json.Marshal(winners)
	transfersJSON, _ := json.Marshal(transfers)

	audit := models.SettlementAudit{
		ID:            uuid.NewString(),
		TournamentID:  tournamentID,
		Outcome:       outcome,
		WinnersJSON:   string(winnersJSON),
		TransfersJSON: string(transfersJSON),
	}
	if err := s.DB.Create(&audit).Error; err != nil {
		log.Printf("⚠️  [SETTLE] failed to write audit record for %s: %v", tournamentID, err)
	}

	go func() {
		key := fmt.Sprintf("settlements/%s/%s.json", tournamentID, audit.ID)
		payload, err := json.Marshal(audit)
		if err != nil {
			return
		}
		if err := utils.UploadJSONToR2(key, payload); err != nil {
			log.Printf("⚠️  [SETTLE] audit upload failed for %s: %v", tournamentID, err)
		}
	}()
}

// RecoverStuckSettlements reverts tournaments that crashed mid-settlement
// back to running. The pipeline transaction means a stuck settling row has
// committed nothing, so the revert makes retry safe. Called periodically
// by the scheduler.
func (s *SettlementService) RecoverStuckSettlements(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	res := s.DB.Model(&models.Tournament{}).
		Where("status = ? AND updated_at < ?", models.TournamentStatusSettling, cutoff).
		Update("status", models.TournamentStatusRunning)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("⚠️  [SETTLE] recovered %d tournaments stuck in settling", res.RowsAffected)
	}
	return nil
}
