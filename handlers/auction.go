package handlers

import (
	"auction-admin-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAuctionRoutes(app *fiber.App, secured, admin fiber.Router, auctionService *services.AuctionService, wagerService *services.WagerService, predictionService *services.PredictionService) {
	// 🔓 Public read-only routes
	app.Get("/auctions", auctionService.GetAllAuctions)
	app.Get("/auctions/:id", auctionService.GetAuctionByID)

	// 🔐 Authenticated routes
	secured.Post("/predictions", predictionService.CreatePrediction)
	secured.Get("/predictions", predictionService.GetPredictions)

	secured.Post("/wagers", wagerService.CreateWager)
	secured.Get("/wagers", wagerService.GetWagers)

	// 🔒 Admin-only routes
	admin.Post("/auctions", auctionService.CreateAuction)
	admin.Put("/auctions/:id", auctionService.UpdateAuction)
	admin.Delete("/auctions/:id", auctionService.DeleteAuction)
	admin.Post("/auctions/:id/finalize", auctionService.FinalizeAuction)
	admin.Post("/auctions/:id/resolve-wagers", wagerService.ResolveWagersForAuction)
	admin.Post("/wagers/:id/refund", wagerService.RefundWager)
	admin.Delete("/predictions/:id", predictionService.DeletePrediction)
}
