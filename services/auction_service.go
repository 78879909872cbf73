// services/auction_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"time"

	"auction-admin-system/models"
	"auction-admin-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AuctionService struct {
	DB *gorm.DB
}

func NewAuctionService(db *gorm.DB) *AuctionService {
	return &AuctionService{DB: db}
}

func (s *AuctionService) CreateAuction(c *fiber.Ctx) error {
	title := c.FormValue("title")
	description := c.FormValue("description")
	makeName := c.FormValue("make")
	modelName := c.FormValue("model")
	yearStr := c.FormValue("year")
	deadlineStr := c.FormValue("deadline")

	if title == "" || deadlineStr == "" {
		return c.Status(400).JSON(fiber.Map{"error": "title and deadline are required"})
	}

	year := 0
	if yearStr != "" {
		if n, err := strconv.Atoi(yearStr); err == nil && n > 1900 {
			year = n
		} else {
			return c.Status(400).JSON(fiber.Map{"error": "year must be a valid model year"})
		}
	}

	deadline, err := time.Parse(time.RFC3339, deadlineStr)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid deadline (use RFC3339)"})
	}

	// --- Handle main photo → R2 ---
	var mainPhotoURL string
	if mainPhoto, err := c.FormFile("main_photo"); err == nil && mainPhoto.Size > 0 {
		ext := filepath.Ext(mainPhoto.Filename)
		if ext == "" {
			ext = ".jpg"
		}
		key := "auctions/main/" + uuid.NewString() + ext
		url, err := utils.UploadFileToR2(mainPhoto, key)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "failed to upload main photo"})
		}
		mainPhotoURL = url
	}

	// --- Secondary photos (up to 5) ---
	var photos []models.AuctionPhoto
	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("photos[%d]", i)
		if photo, err := c.FormFile(key); err == nil && photo.Size > 0 {
			ext := filepath.Ext(photo.Filename)
			if ext == "" {
				ext = ".jpg"
			}
			photoKey := "auctions/photos/" + uuid.NewString() + ext
			url, err := utils.UploadFileToR2(photo, photoKey)
			if err != nil {
				return c.Status(500).JSON(fiber.Map{"error": fmt.Sprintf("failed to upload photo %d", i+1)})
			}
			photos = append(photos, models.AuctionPhoto{
				ID:        uuid.NewString(),
				URL:       url,
				SortOrder: i,
			})
		} else {
			break // stop on first missing
		}
	}

	auction := &models.Auction{
		ID:           uuid.NewString(),
		Title:        title,
		Description:  description,
		Make:         makeName,
		Model:        modelName,
		Year:         year,
		Status:       models.AuctionStatusPending,
		Deadline:     deadline,
		CurrentBid:   decimal.Zero,
		MainPhotoURL: mainPhotoURL,
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Photos").Create(auction).Error; err != nil {
			return err
		}
		for i := range photos {
			photos[i].AuctionID = auction.ID
			if err := tx.Create(&photos[i]).Error; err != nil {
				return err
			}
		}
		auction.Photos = photos
		return nil
	})
	if err != nil {
		log.Printf("ERROR creating auction: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "DB insert failed"})
	}

	return c.Status(201).JSON(auction)
}

func (s *AuctionService) GetAllAuctions(c *fiber.Ctx) error {
	var auctions []models.Auction
	q := s.DB.Preload("Photos", func(db *gorm.DB) *gorm.DB {
		return db.Order("\"sort_order\" ASC")
	})

	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if finalStr := c.Query("final"); finalStr != "" {
		q = q.Where("is_final = ?", finalStr == "true")
	}

	if err := q.Order("deadline ASC").Find(&auctions).Error; err != nil {
		log.Printf("ERROR fetching auctions: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to fetch auctions"})
	}
	return c.JSON(auctions)
}

func (s *AuctionService) GetAuctionByID(c *fiber.Ctx) error {
	id := c.Params("id")
	var auction models.Auction
	err := s.DB.Preload("Photos", func(db *gorm.DB) *gorm.DB {
		return db.Order("\"sort_order\" ASC")
	}).First(&auction, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "auction not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(auction)
}

// UpdateAuctionCommand is the validated mutation set for an auction.
// Catalog fields only — lifecycle fields (status, bids, finality) belong
// to the outcome sync worker and FinalizeAuction.
type UpdateAuctionCommand struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Make        *string    `json:"make"`
	Model       *string    `json:"model"`
	Year        *int       `json:"year"`
	Deadline    *time.Time `json:"deadline"`
}

func (cmd *UpdateAuctionCommand) validate() error {
	if cmd.Title != nil && *cmd.Title == "" {
		return errors.New("title cannot be empty")
	}
	if cmd.Year != nil && *cmd.Year <= 1900 {
		return errors.New("year must be a valid model year")
	}
	return nil
}

func (s *AuctionService) UpdateAuction(c *fiber.Ctx) error {
	id := c.Params("id")
	var auction models.Auction
	if err := s.DB.First(&auction, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "auction not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "DB error"})
	}
	if auction.IsFinal {
		return c.Status(409).JSON(fiber.Map{"error": "auction is final and can no longer be edited"})
	}

	var cmd UpdateAuctionCommand
	if err := c.BodyParser(&cmd); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if err := cmd.validate(); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	updates := map[string]interface{}{}
	if cmd.Title != nil {
		updates["title"] = *cmd.Title
	}
	if cmd.Description != nil {
		updates["description"] = *cmd.Description
	}
	if cmd.Make != nil {
		updates["make"] = *cmd.Make
	}
	if cmd.Model != nil {
		updates["model"] = *cmd.Model
	}
	if cmd.Year != nil {
		updates["year"] = *cmd.Year
	}
	if cmd.Deadline != nil {
		updates["deadline"] = *cmd.Deadline
	}
	if len(updates) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "no fields to update"})
	}

	if err := s.DB.Model(&auction).Updates(updates).Error; err != nil {
		log.Printf("ERROR updating auction %s: %v", id, err)
		return c.Status(500).JSON(fiber.Map{"error": "update failed"})
	}

	s.DB.Preload("Photos", func(db *gorm.DB) *gorm.DB {
		return db.Order("\"sort_order\" ASC")
	}).First(&auction, "id = ?", id)
	return c.JSON(auction)
}

// FinalizeAuction is the admin override for writing a final outcome onto
// an auction when the lifecycle service cannot (manual reconciliation).
// Finality is one-way.
func (s *AuctionService) FinalizeAuction(c *fiber.Ctx) error {
	id := c.Params("id")
	type Req struct {
		Status     models.AuctionStatus `json:"status"` // sold or unsold
		FinalPrice decimal.Decimal      `json:"final_price"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	if req.Status != models.AuctionStatusSold && req.Status != models.AuctionStatusUnsold {
		return c.Status(400).JSON(fiber.Map{"error": "status must be sold or unsold"})
	}
	if req.Status == models.AuctionStatusSold && !req.FinalPrice.IsPositive() {
		return c.Status(400).JSON(fiber.Map{"error": "final_price must be > 0 for sold auctions"})
	}

	res := s.DB.Model(&models.Auction{}).
		Where("id = ? AND is_final = false", id).
		Updates(map[string]interface{}{
			"status":      req.Status,
			"final_price": req.FinalPrice,
			"is_final":    true,
		})
	if res.Error != nil {
		return c.Status(500).JSON(fiber.Map{"error": "DB update failed"})
	}
	if res.RowsAffected == 0 {
		return c.Status(409).JSON(fiber.Map{"error": "auction not found or already final"})
	}

	var auction models.Auction
	s.DB.First(&auction, "id = ?", id)
	return c.JSON(auction)
}

func (s *AuctionService) DeleteAuction(c *fiber.Ctx) error {
	id := c.Params("id")
	return s.DB.Transaction(func(tx *gorm.DB) error {
		// Refuse to delete an auction a tournament still references.
		var links int64
		if err := tx.Model(&models.TournamentAuction{}).Where("auction_id = ?", id).Count(&links).Error; err != nil {
			return err
		}
		if links > 0 {
			return fiber.NewError(409, "auction is part of a tournament")
		}
		if err := tx.Where("auction_id = ?", id).Delete(&models.AuctionPhoto{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Auction{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fiber.NewError(404, "auction not found")
		}
		return nil
	})
}
