// services/tournament_service.go
package services

import (
	"errors"
	"log"
	"time"

	"auction-admin-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TournamentService struct {
	DB         *gorm.DB
	Ledger     *LedgerService
	Settlement *SettlementService
}

func NewTournamentService(db *gorm.DB, ledger *LedgerService, settlement *SettlementService) *TournamentService {
	return &TournamentService{DB: db, Ledger: ledger, Settlement: settlement}
}

func (s *TournamentService) CreateTournament(c *fiber.Ctx) error {
	type Req struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		PrizePool   decimal.Decimal `json:"prize_pool"`
		BuyInFee    decimal.Decimal `json:"buy_in_fee"`
		Capacity    int             `json:"capacity"`
		StartTime   string          `json:"start_time"` // RFC3339
		EndTime     string          `json:"end_time"`
		AuctionIDs  []string        `json:"auction_ids"` // ordered
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}

	if req.Name == "" || req.StartTime == "" {
		return c.Status(400).JSON(fiber.Map{"error": "name and start_time are required"})
	}
	if len(req.AuctionIDs) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "at least one auction_id is required"})
	}
	if req.PrizePool.IsNegative() || req.BuyInFee.IsNegative() {
		return c.Status(400).JSON(fiber.Map{"error": "prize_pool and buy_in_fee must be non-negative"})
	}
	if req.Capacity < 0 {
		return c.Status(400).JSON(fiber.Map{"error": "capacity must be a non-negative integer"})
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid start_time (use RFC3339)"})
	}
	var endTime time.Time
	if req.EndTime != "" {
		endTime, err = time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid end_time (use RFC3339)"})
		}
	}

	// Every referenced auction must exist and not be final yet.
	var count int64
	if err := s.DB.Model(&models.Auction{}).
		Where("id IN ? AND is_final = false", req.AuctionIDs).
		Count(&count).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	if count != int64(len(req.AuctionIDs)) {
		return c.Status(400).JSON(fiber.Map{"error": "one or more auction_ids are missing or already final"})
	}

	tournament := &models.Tournament{
		ID:          uuid.NewString(),
		Slug:        slug.Make(req.Name),
		Name:        req.Name,
		Description: req.Description,
		PrizePool:   req.PrizePool,
		BuyInFee:    req.BuyInFee,
		Capacity:    req.Capacity,
		Status:      models.TournamentStatusOpen,
		StartTime:   startTime,
		EndTime:     endTime,
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Auctions", "Entries").Create(tournament).Error; err != nil {
			return err
		}
		for i, auctionID := range req.AuctionIDs {
			link := models.TournamentAuction{
				ID:           uuid.NewString(),
				TournamentID: tournament.ID,
				AuctionID:    auctionID,
				SortOrder:    i,
			}
			if err := tx.Create(&link).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("ERROR creating tournament: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "DB insert failed"})
	}

	s.DB.Preload("Auctions", func(db *gorm.DB) *gorm.DB {
		return db.Order("\"sort_order\" ASC")
	}).Preload("Auctions.Auction").First(tournament, "id = ?", tournament.ID)
	return c.Status(201).JSON(tournament)
}

func (s *TournamentService) GetAllTournaments(c *fiber.Ctx) error {
	var tournaments []models.Tournament
	q := s.DB.Preload("Auctions", func(db *gorm.DB) *gorm.DB {
		return db.Order("\"sort_order\" ASC")
	}).Order("created_at DESC")
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&tournaments).Error; err != nil {
		log.Printf("ERROR fetching tournaments: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch tournaments"})
	}
	return c.JSON(tournaments)
}

func (s *TournamentService) GetTournamentByID(c *fiber.Ctx) error {
	id := c.Params("id")
	var tournament models.Tournament
	err := s.DB.
		Preload("Auctions", func(db *gorm.DB) *gorm.DB {
			return db.Order("\"sort_order\" ASC")
		}).
		Preload("Auctions.Auction").
		Preload("Entries", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at ASC")
		}).
		First(&tournament, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		log.Printf("ERROR fetching tournament %s: %v", id, err)
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	var entryCount int64
	s.DB.Model(&models.TournamentEntry{}).Where("tournament_id = ?", id).Count(&entryCount)
	tournament.EntryCount = entryCount
	if tournament.Capacity > 0 {
		tournament.AvailableSlots = int64(tournament.Capacity) - entryCount
	} else {
		tournament.AvailableSlots = -1 // unlimited
	}

	return c.JSON(tournament)
}

// UpdateTournamentCommand covers the pre-start mutations a tournament
// allows. Pool, fee and auction set are frozen once anyone has joined.
type UpdateTournamentCommand struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	PrizePool   *decimal.Decimal `json:"prize_pool"`
	BuyInFee    *decimal.Decimal `json:"buy_in_fee"`
	Capacity    *int             `json:"capacity"`
	StartTime   *time.Time       `json:"start_time"`
	EndTime     *time.Time       `json:"end_time"`
}

func (s *TournamentService) UpdateTournament(c *fiber.Ctx) error {
	id := c.Params("id")
	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	if tournament.Status != models.TournamentStatusOpen {
		return c.Status(409).JSON(fiber.Map{"error": "only open tournaments can be edited", "status": tournament.Status})
	}

	var cmd UpdateTournamentCommand
	if err := c.BodyParser(&cmd); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}

	var entryCount int64
	s.DB.Model(&models.TournamentEntry{}).Where("tournament_id = ?", id).Count(&entryCount)
	if entryCount > 0 && (cmd.PrizePool != nil || cmd.BuyInFee != nil) {
		return c.Status(409).JSON(fiber.Map{"error": "pool and fee are frozen once entries exist"})
	}

	updates := map[string]interface{}{}
	if cmd.Name != nil && *cmd.Name != "" {
		updates["name"] = *cmd.Name
		updates["slug"] = slug.Make(*cmd.Name)
	}
	if cmd.Description != nil {
		updates["description"] = *cmd.Description
	}
	if cmd.PrizePool != nil {
		if cmd.PrizePool.IsNegative() {
			return c.Status(400).JSON(fiber.Map{"error": "prize_pool must be non-negative"})
		}
		updates["prize_pool"] = *cmd.PrizePool
	}
	if cmd.BuyInFee != nil {
		if cmd.BuyInFee.IsNegative() {
			return c.Status(400).JSON(fiber.Map{"error": "buy_in_fee must be non-negative"})
		}
		updates["buy_in_fee"] = *cmd.BuyInFee
	}
	if cmd.Capacity != nil {
		if *cmd.Capacity < 0 {
			return c.Status(400).JSON(fiber.Map{"error": "capacity must be non-negative"})
		}
		updates["capacity"] = *cmd.Capacity
	}
	if cmd.StartTime != nil {
		updates["start_time"] = *cmd.StartTime
	}
	if cmd.EndTime != nil {
		updates["end_time"] = *cmd.EndTime
	}
	if len(updates) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "no fields to update"})
	}

	if err := s.DB.Model(&tournament).Updates(updates).Error; err != nil {
		log.Printf("ERROR updating tournament %s: %v", id, err)
		return c.Status(500).JSON(fiber.Map{"error": "update failed"})
	}

	s.DB.First(&tournament, "id = ?", id)
	return c.JSON(tournament)
}

// JoinTournament adds a participant and debits the buy-in in one
// transaction. The capacity check re-counts under the tournament row lock
// so two concurrent joins cannot oversubscribe.
func (s *TournamentService) JoinTournament(c *fiber.Ctx) error {
	tournamentID := c.Params("id")
	type Req struct {
		ExternalUserID string           `json:"external_user_id"`
		DisplayName    string           `json:"display_name"`
		Kind           models.EntryKind `json:"kind,omitempty"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.ExternalUserID == "" || req.DisplayName == "" {
		return c.Status(400).JSON(fiber.Map{"error": "external_user_id and display_name are required"})
	}
	kind := req.Kind
	if kind == "" {
		kind = models.EntryKindHuman
	}
	if kind != models.EntryKindHuman && kind != models.EntryKindBot {
		return c.Status(400).JSON(fiber.Map{"error": "kind must be human or bot"})
	}

	entry := models.TournamentEntry{
		ID:             uuid.NewString(),
		TournamentID:   tournamentID,
		ExternalUserID: req.ExternalUserID,
		DisplayName:    req.DisplayName,
		Kind:           kind,
		Delta:          decimal.Zero,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var tournament models.Tournament
		if err := lockForUpdate(tx).
			First(&tournament, "id = ?", tournamentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(404, "tournament not found")
			}
			return err
		}
		if tournament.Status != models.TournamentStatusOpen {
			return fiber.NewError(409, "tournament is not open for entries")
		}

		var existing int64
		tx.Model(&models.TournamentEntry{}).
			Where("tournament_id = ? AND external_user_id = ?", tournamentID, req.ExternalUserID).
			Count(&existing)
		if existing > 0 {
			return fiber.NewError(409, "user already joined")
		}

		if tournament.Capacity > 0 {
			var entries int64
			tx.Model(&models.TournamentEntry{}).
				Where("tournament_id = ?", tournamentID).
				Count(&entries)
			if int(entries) >= tournament.Capacity {
				return fiber.NewError(403, "tournament is full")
			}
		}

		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		if tournament.BuyInFee.IsPositive() {
			buyIn := []Transfer{{
				ExternalUserID: req.ExternalUserID,
				Amount:         tournament.BuyInFee.Neg(),
				Type:           models.LedgerTypeBuyIn,
			}}
			if _, err := s.Ledger.ApplyTransfers(tx, buyIn, TransferRefs{TournamentID: tournamentID}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
		}
		if errors.Is(err, ErrInsufficientBalance) {
			return c.Status(422).JSON(fiber.Map{"error": "insufficient balance for buy-in"})
		}
		log.Printf("ERROR joining tournament %s: %v", tournamentID, err)
		return c.Status(500).JSON(fiber.Map{"error": "join failed", "details": err.Error()})
	}

	return c.Status(201).JSON(fiber.Map{"message": "entry created", "entry": entry})
}

// LeaveTournament removes an entry before the tournament starts and
// refunds the buy-in.
func (s *TournamentService) LeaveTournament(c *fiber.Ctx) error {
	tournamentID := c.Params("id")
	userID := c.Params("user_id")

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var tournament models.Tournament
		if err := lockForUpdate(tx).
			First(&tournament, "id = ?", tournamentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(404, "tournament not found")
			}
			return err
		}
		if tournament.Status != models.TournamentStatusOpen {
			return fiber.NewError(409, "cannot leave after tournament start")
		}

		res := tx.Where("tournament_id = ? AND external_user_id = ?", tournamentID, userID).
			Delete(&models.TournamentEntry{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fiber.NewError(404, "entry not found")
		}

		// Clean up any predictions already submitted for this tournament.
		if err := tx.Where("tournament_id = ? AND external_user_id = ?", tournamentID, userID).
			Delete(&models.Prediction{}).Error; err != nil {
			return err
		}

		if tournament.BuyInFee.IsPositive() {
			refund := []Transfer{{
				ExternalUserID: userID,
				Amount:         tournament.BuyInFee,
				Type:           models.LedgerTypeRefund,
			}}
			if _, err := s.Ledger.ApplyTransfers(tx, refund, TransferRefs{TournamentID: tournamentID}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
		}
		log.Printf("ERROR leaving tournament %s: %v", tournamentID, err)
		return c.Status(500).JSON(fiber.Map{"error": "leave failed"})
	}

	return c.JSON(fiber.Map{"message": "entry removed and buy-in refunded"})
}

// StartTournament moves open → running. Compare-and-set so two admins
// starting at once do not race.
func (s *TournamentService) StartTournament(c *fiber.Ctx) error {
	id := c.Params("id")
	res := s.DB.Model(&models.Tournament{}).
		Where("id = ? AND status = ?", id, models.TournamentStatusOpen).
		Update("status", models.TournamentStatusRunning)
	if res.Error != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB update failed"})
	}
	if res.RowsAffected == 0 {
		return c.Status(409).JSON(fiber.Map{"error": "tournament not found or not open"})
	}

	var tournament models.Tournament
	s.DB.First(&tournament, "id = ?", id)
	return c.JSON(tournament)
}

// CancelTournament cancels an open or running tournament and refunds
// every buy-in in one atomic transaction.
func (s *TournamentService) CancelTournament(c *fiber.Ctx) error {
	id := c.Params("id")

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Tournament{}).
			Where("id = ? AND status IN ?", id,
				[]models.TournamentStatus{models.TournamentStatusOpen, models.TournamentStatusRunning}).
			Update("status", models.TournamentStatusCancelled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fiber.NewError(409, "tournament not found or not cancellable")
		}

		var tournament models.Tournament
		if err := tx.First(&tournament, "id = ?", id).Error; err != nil {
			return err
		}
		if !tournament.BuyInFee.IsPositive() {
			return nil
		}

		var entries []models.TournamentEntry
		if err := tx.Where("tournament_id = ?", id).Find(&entries).Error; err != nil {
			return err
		}
		refunds := make([]Transfer, 0, len(entries))
		for _, e := range entries {
			refunds = append(refunds, Transfer{
				ExternalUserID: e.ExternalUserID,
				EntryID:        e.ID,
				Amount:         tournament.BuyInFee,
				Type:           models.LedgerTypeRefund,
			})
		}
		_, err := s.Ledger.ApplyTransfers(tx, refunds, TransferRefs{TournamentID: id})
		return err
	})
	if err != nil {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
		}
		log.Printf("ERROR cancelling tournament %s: %v", id, err)
		return c.Status(500).JSON(fiber.Map{"error": "cancel failed"})
	}

	return c.JSON(fiber.Map{"message": "tournament cancelled, buy-ins refunded"})
}

// SettleTournament triggers the settlement pipeline. Concurrent or
// repeated triggers are safe: the guard's compare-and-set means a second
// caller just observes the current state.
func (s *TournamentService) SettleTournament(c *fiber.Ctx) error {
	id := c.Params("id")

	result, err := s.Settlement.SettleTournament(id)
	if err != nil {
		switch {
		case errors.Is(err, ErrTournamentNotFound):
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		case errors.Is(err, ErrOutcomesPending):
			return c.Status(409).JSON(fiber.Map{"error": err.Error(), "retryable": true})
		case errors.Is(err, ErrNotRunning):
			return c.Status(409).JSON(fiber.Map{"error": err.Error()})
		}
		log.Printf("ERROR settling tournament %s: %v", id, err)
		return c.Status(500).JSON(fiber.Map{"error": "settlement failed", "retryable": true})
	}

	return c.JSON(result)
}

// GetStandings lists entries by final rank (settled tournaments) or by
// join time (otherwise).
func (s *TournamentService) GetStandings(c *fiber.Ctx) error {
	id := c.Params("id")

	var tournament models.Tournament
	if err := s.DB.Select("id", "status").First(&tournament, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	var entries []models.TournamentEntry
	q := s.DB.Where("tournament_id = ?", id)
	if tournament.Status == models.TournamentStatusSettled {
		q = q.Order("final_rank ASC")
	} else {
		q = q.Order("joined_at ASC")
	}
	if err := q.Find(&entries).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch standings"})
	}

	return c.JSON(fiber.Map{"tournament_id": id, "status": tournament.Status, "entries": entries})
}
