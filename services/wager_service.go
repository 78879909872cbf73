// services/wager_service.go
package services

import (
	"errors"
	"log"
	"time"

	"auction-admin-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type WagerService struct {
	DB     *gorm.DB
	Ledger *LedgerService
}

func NewWagerService(db *gorm.DB, ledger *LedgerService) *WagerService {
	return &WagerService{DB: db, Ledger: ledger}
}

// CreateWager stakes an amount on one auction's outcome. The stake is
// debited through the ledger in the same transaction that creates the
// wager row, so a failed debit never leaves an orphan wager.
func (s *WagerService) CreateWager(c *fiber.Ctx) error {
	type Req struct {
		ExternalUserID string          `json:"external_user_id"`
		AuctionID      string          `json:"auction_id"`
		Amount         decimal.Decimal `json:"amount"`
		PickSold       bool            `json:"pick_sold"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.ExternalUserID == "" || req.AuctionID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "external_user_id and auction_id are required"})
	}
	if !req.Amount.IsPositive() {
		return c.Status(400).JSON(fiber.Map{"error": "amount must be > 0"})
	}

	var auction models.Auction
	if err := s.DB.First(&auction, "id = ?", req.AuctionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "auction not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	if auction.IsFinal {
		return c.Status(409).JSON(fiber.Map{"error": "auction is already final"})
	}

	wager := models.Wager{
		ID:             uuid.NewString(),
		ExternalUserID: req.ExternalUserID,
		AuctionID:      req.AuctionID,
		Amount:         req.Amount,
		PickSold:       req.PickSold,
		Status:         models.WagerStatusOpen,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&wager).Error; err != nil {
			return err
		}
		stake := []Transfer{{
			ExternalUserID: req.ExternalUserID,
			Amount:         req.Amount.Neg(),
			Type:           models.LedgerTypeWager,
		}}
		_, err := s.Ledger.ApplyTransfers(tx, stake, TransferRefs{WagerID: wager.ID, AuctionID: req.AuctionID})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			return c.Status(422).JSON(fiber.Map{"error": "insufficient balance for stake"})
		}
		log.Printf("ERROR creating wager: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "wager creation failed", "details": err.Error()})
	}

	return c.Status(201).JSON(wager)
}

func (s *WagerService) GetWagers(c *fiber.Ctx) error {
	var wagers []models.Wager
	q := s.DB.Order("created_at DESC").Limit(200)
	if userID := c.Query("user_id"); userID != "" {
		q = q.Where("external_user_id = ?", userID)
	}
	if auctionID := c.Query("auction_id"); auctionID != "" {
		q = q.Where("auction_id = ?", auctionID)
	}
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&wagers).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch wagers"})
	}
	return c.JSON(wagers)
}

// ResolveWagersForAuction settles every open wager on a final auction:
// correct picks are credited stake times the payout multiplier, wrong
// picks lose their stake. Admin-triggered once an auction is final.
func (s *WagerService) ResolveWagersForAuction(c *fiber.Ctx) error {
	auctionID := c.Params("id")

	var auction models.Auction
	if err := s.DB.First(&auction, "id = ?", auctionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "auction not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	if !auction.IsFinal {
		return c.Status(409).JSON(fiber.Map{"error": "auction is not final yet"})
	}

	var wagers []models.Wager
	if err := s.DB.Where("auction_id = ? AND status = ?", auctionID, models.WagerStatusOpen).
		Find(&wagers).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch wagers"})
	}

	sold := auction.Status == models.AuctionStatusSold
	two := decimal.NewFromInt(2)
	resolved := 0

	for _, w := range wagers {
		won := w.PickSold == sold
		now := time.Now()
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			status := models.WagerStatusLost
			payout := decimal.Zero
			if won {
				status = models.WagerStatusWon
				payout = w.Amount.Mul(two)
				credit := []Transfer{{
					ExternalUserID: w.ExternalUserID,
					Amount:         payout,
					Type:           models.LedgerTypeWinnings,
				}}
				if _, err := s.Ledger.ApplyTransfers(tx, credit, TransferRefs{WagerID: w.ID, AuctionID: auctionID}); err != nil {
					return err
				}
			}
			res := tx.Model(&models.Wager{}).
				Where("id = ? AND status = ?", w.ID, models.WagerStatusOpen).
				Updates(map[string]interface{}{
					"status":      status,
					"payout":      payout,
					"resolved_at": &now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errors.New("wager resolved concurrently")
			}
			return nil
		})
		if err != nil {
			log.Printf("ERROR resolving wager %s: %v", w.ID, err)
			continue
		}
		resolved++
	}

	return c.JSON(fiber.Map{"message": "wagers resolved", "resolved": resolved, "total": len(wagers)})
}

// RefundWager returns an open wager's stake (admin action, e.g. when an
// auction is withdrawn).
func (s *WagerService) RefundWager(c *fiber.Ctx) error {
	id := c.Params("id")

	var wager models.Wager
	if err := s.DB.First(&wager, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "wager not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	if wager.Status != models.WagerStatusOpen {
		return c.Status(400).JSON(fiber.Map{
			"error":   "only open wagers can be refunded",
			"current": wager.Status,
		})
	}

	now := time.Now()
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Wager{}).
			Where("id = ? AND status = ?", id, models.WagerStatusOpen).
			Updates(map[string]interface{}{
				"status":      models.WagerStatusRefunded,
				"resolved_at": &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.New("wager resolved concurrently")
		}
		refund := []Transfer{{
			ExternalUserID: wager.ExternalUserID,
			Amount:         wager.Amount,
			Type:           models.LedgerTypeRefund,
		}}
		_, err := s.Ledger.ApplyTransfers(tx, refund, TransferRefs{WagerID: wager.ID, AuctionID: wager.AuctionID})
		return err
	})
	if err != nil {
		log.Printf("ERROR refunding wager %s: %v", id, err)
		return c.Status(500).JSON(fiber.Map{"error": "refund failed"})
	}

	s.DB.First(&wager, "id = ?", id)
	return c.JSON(fiber.Map{"message": "refund processed", "wager": wager})
}
