// services/user_service.go
package services

import (
	"errors"
	"log"
	"strconv"
	"strings"

	"auction-admin-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type UserService struct {
	DB     *gorm.DB
	Ledger *LedgerService
}

func NewUserService(db *gorm.DB, ledger *LedgerService) *UserService {
	return &UserService{DB: db, Ledger: ledger}
}

// SearchUsers searches the local PlatformUser mirror.
func (s *UserService) SearchUsers(c *fiber.Ctx) error {
	query := c.Query("q", "")
	limitStr := c.Query("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 || limit > 100 {
		limit = 50
	}

	var users []models.PlatformUser
	db := s.DB.Model(&models.PlatformUser{}).Limit(limit)
	if query != "" {
		searchTerm := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
		db = db.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ?", searchTerm, searchTerm)
	}
	if err := db.Find(&users).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "search failed", "details": err.Error()})
	}
	return c.JSON(users)
}

func (s *UserService) GetUserByExternalID(c *fiber.Ctx) error {
	externalID := c.Params("user_id")
	var user models.PlatformUser
	if err := s.DB.First(&user, "external_user_id = ?", externalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "user not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(user)
}

// GetUserLedger lists a user's ledger entries, newest first.
func (s *UserService) GetUserLedger(c *fiber.Ctx) error {
	externalID := c.Params("user_id")
	var entries []models.LedgerEntry
	if err := s.DB.Where("external_user_id = ?", externalID).
		Order("created_at DESC").Limit(200).
		Find(&entries).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch ledger"})
	}
	return c.JSON(entries)
}

// Deposit credits a user's balance through the ledger (admin action).
func (s *UserService) Deposit(c *fiber.Ctx) error {
	externalID := c.Params("user_id")
	type Req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if !req.Amount.IsPositive() {
		return c.Status(400).JSON(fiber.Map{"error": "amount must be > 0"})
	}

	entry, err := s.Ledger.Post(externalID, req.Amount, models.LedgerTypeDeposit, TransferRefs{})
	if err != nil {
		log.Printf("ERROR depositing for %s: %v", externalID, err)
		return c.Status(500).JSON(fiber.Map{"error": "deposit failed", "details": err.Error()})
	}
	return c.Status(201).JSON(entry)
}

// Withdraw debits a user's balance through the ledger (admin action).
// Fails when the balance would go negative.
func (s *UserService) Withdraw(c *fiber.Ctx) error {
	externalID := c.Params("user_id")
	type Req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if !req.Amount.IsPositive() {
		return c.Status(400).JSON(fiber.Map{"error": "amount must be > 0"})
	}

	entry, err := s.Ledger.Post(externalID, req.Amount.Neg(), models.LedgerTypeWithdraw, TransferRefs{})
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			return c.Status(422).JSON(fiber.Map{"error": "insufficient balance"})
		}
		log.Printf("ERROR withdrawing for %s: %v", externalID, err)
		return c.Status(500).JSON(fiber.Map{"error": "withdraw failed", "details": err.Error()})
	}
	return c.Status(201).JSON(entry)
}

// ReconcileBalance reports a user's stored balance against the sum of
// their success-status ledger entries.
func (s *UserService) ReconcileBalance(c *fiber.Ctx) error {
	externalID := c.Params("user_id")
	var user models.PlatformUser
	if err := s.DB.First(&user, "external_user_id = ?", externalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "user not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}

	ledgerSum, err := s.Ledger.ReconcileBalance(externalID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "reconciliation failed"})
	}

	return c.JSON(fiber.Map{
		"external_user_id": externalID,
		"stored_balance":   user.Balance,
		"ledger_sum":       ledgerSum,
		"consistent":       user.Balance.Equal(ledgerSum),
	})
}
