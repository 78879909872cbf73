package handlers

import (
	"auction-admin-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupUserRoutes(secured, admin fiber.Router, userService *services.UserService) {
	// 🔐 Authenticated routes
	secured.Get("/users/search", userService.SearchUsers)
	secured.Get("/users/:user_id", userService.GetUserByExternalID)

	// 🔒 Admin-only routes
	admin.Get("/users/:user_id/ledger", userService.GetUserLedger)
	admin.Get("/users/:user_id/reconcile", userService.ReconcileBalance)
	admin.Post("/users/:user_id/deposit", userService.Deposit)
	admin.Post("/users/:user_id/withdraw", userService.Withdraw)
}
