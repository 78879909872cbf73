// services/prediction_service.go
package services

import (
	"errors"
	"log"

	"auction-admin-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PredictionService struct {
	DB *gorm.DB
}

func NewPredictionService(db *gorm.DB) *PredictionService {
	return &PredictionService{DB: db}
}

// CreatePrediction records a price guess. Predictions are immutable once
// created. Tournament-scoped predictions are validated against the
// tournament's auction set and membership, and rejected once the auction
// is final or the tournament has left the open/running states.
func (s *PredictionService) CreatePrediction(c *fiber.Ctx) error {
	type Req struct {
		ExternalUserID string          `json:"external_user_id"`
		AuctionID      string          `json:"auction_id"`
		TournamentID   string          `json:"tournament_id,omitempty"`
		GuessedPrice   decimal.Decimal `json:"guessed_price"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.ExternalUserID == "" || req.AuctionID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "external_user_id and auction_id are required"})
	}
	if !req.GuessedPrice.IsPositive() {
		return c.Status(400).JSON(fiber.Map{"error": "guessed_price must be > 0"})
	}

	var auction models.Auction
	if err := s.DB.First(&auction, "id = ?", req.AuctionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "auction not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	if auction.IsFinal {
		return c.Status(409).JSON(fiber.Map{"error": "auction is final, predictions closed"})
	}

	if req.TournamentID != "" {
		var tournament models.Tournament
		if err := s.DB.First(&tournament, "id = ?", req.TournamentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(404).JSON(fiber.Map{"error": "tournament not found"})
			}
			return c.Status(500).JSON(fiber.Map{"error": "DB error"})
		}
		if tournament.Status != models.TournamentStatusOpen && tournament.Status != models.TournamentStatusRunning {
			return c.Status(409).JSON(fiber.Map{"error": "tournament no longer accepts predictions", "status": tournament.Status})
		}

		var link int64
		s.DB.Model(&models.TournamentAuction{}).
			Where("tournament_id = ? AND auction_id = ?", req.TournamentID, req.AuctionID).
			Count(&link)
		if link == 0 {
			return c.Status(400).JSON(fiber.Map{"error": "auction is not part of this tournament"})
		}

		var entry int64
		s.DB.Model(&models.TournamentEntry{}).
			Where("tournament_id = ? AND external_user_id = ?", req.TournamentID, req.ExternalUserID).
			Count(&entry)
		if entry == 0 {
			return c.Status(403).JSON(fiber.Map{"error": "user has not joined this tournament"})
		}

		// One guess per user per auction per tournament.
		var dup int64
		s.DB.Model(&models.Prediction{}).
			Where("tournament_id = ? AND auction_id = ? AND external_user_id = ?",
				req.TournamentID, req.AuctionID, req.ExternalUserID).
			Count(&dup)
		if dup > 0 {
			return c.Status(409).JSON(fiber.Map{"error": "prediction already submitted for this auction"})
		}
	}

	prediction := models.Prediction{
		ID:             uuid.NewString(),
		ExternalUserID: req.ExternalUserID,
		AuctionID:      req.AuctionID,
		TournamentID:   req.TournamentID,
		GuessedPrice:   req.GuessedPrice,
	}
	if err := s.DB.Create(&prediction).Error; err != nil {
		log.Printf("ERROR creating prediction: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to create prediction"})
	}
	return c.Status(201).JSON(prediction)
}

func (s *PredictionService) GetPredictions(c *fiber.Ctx) error {
	var predictions []models.Prediction
	q := s.DB.Order("created_at ASC").Limit(500)
	if userID := c.Query("user_id"); userID != "" {
		q = q.Where("external_user_id = ?", userID)
	}
	if auctionID := c.Query("auction_id"); auctionID != "" {
		q = q.Where("auction_id = ?", auctionID)
	}
	if tournamentID := c.Query("tournament_id"); tournamentID != "" {
		q = q.Where("tournament_id = ?", tournamentID)
	}
	if err := q.Find(&predictions).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch predictions"})
	}
	return c.JSON(predictions)
}

// DeletePrediction is the only mutation predictions allow, and it is
// admin-only. Blocked once the tournament has started settling.
func (s *PredictionService) DeletePrediction(c *fiber.Ctx) error {
	id := c.Params("id")

	var prediction models.Prediction
	if err := s.DB.First(&prediction, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "prediction not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	if prediction.TournamentID != "" {
		var tournament models.Tournament
		if err := s.DB.Select("status").First(&tournament, "id = ?", prediction.TournamentID).Error; err == nil {
			if tournament.Status == models.TournamentStatusSettling || tournament.Status == models.TournamentStatusSettled {
				return c.Status(409).JSON(fiber.Map{"error": "tournament already settling/settled"})
			}
		}
	}

	if err := s.DB.Delete(&models.Prediction{}, "id = ?", id).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "delete failed"})
	}
	return c.JSON(fiber.Map{"message": "prediction deleted"})
}
