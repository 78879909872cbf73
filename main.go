package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"auction-admin-system/handlers"
	"auction-admin-system/middleware"
	"auction-admin-system/models"
	"auction-admin-system/services"
	"auction-admin-system/utils"
	"auction-admin-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024, // 50MB — auction photo uploads
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())
	app.Use(middleware.RateLimitMiddleware(120, time.Minute))

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Auction{},
		&models.AuctionPhoto{},
		&models.PlatformUser{},
		&models.Wager{},
		&models.Prediction{},
		&models.Tournament{},
		&models.TournamentAuction{},
		&models.TournamentEntry{},
		&models.LedgerEntry{},
		&models.SettlementAudit{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	ledgerService := services.NewLedgerService(db)
	settlementService := services.NewSettlementService(db, ledgerService)
	auctionService := services.NewAuctionService(db)
	userService := services.NewUserService(db, ledgerService)
	wagerService := services.NewWagerService(db, ledgerService)
	predictionService := services.NewPredictionService(db)
	tournamentService := services.NewTournamentService(db, ledgerService, settlementService)

	syncServiceURL := os.Getenv("SYNC_SERVICE_URL")
	if syncServiceURL == "" {
		log.Fatal("SYNC_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("AUCTION_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("AUCTION_SERVICE_TOKEN environment variable not set")
	}

	userSyncWorker := workers.NewPlatformUserSyncWorker(db, syncServiceURL, "/api/v1/public/profiles", serviceToken)
	outcomeSyncClient := workers.NewOutcomeSyncClient(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go workers.PollOutcomes(ctx, outcomeSyncClient, 10*time.Second)
	go func() {
		log.Println("Starting Platform User Sync Worker...")
		userSyncWorker.Start(ctx)
	}()

	settlementService.StartSettlementScheduler()

	// Shared route groups: the user-context middleware and the admin
	// capability gate each run exactly once per request.
	secured := app.Group("/s", middleware.UserContextMiddleware())
	admin := secured.Group("/admin", middleware.RequireRole("admin"))

	handlers.SetupAuctionRoutes(app, secured, admin, auctionService, wagerService, predictionService)
	handlers.SetupTournamentRoutes(app, secured, admin, tournamentService)
	handlers.SetupUserRoutes(secured, admin, userService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Platform User Sync Worker running")
	log.Println("✅ Auction outcome polling running (every 10s)")
	log.Println("✅ Settlement scheduler running (every 1m)")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
