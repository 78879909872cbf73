package handlers

import (
	"auction-admin-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupTournamentRoutes(app *fiber.App, secured, admin fiber.Router, tournamentService *services.TournamentService) {
	// 🔓 Public routes
	app.Get("/tournaments", tournamentService.GetAllTournaments)
	app.Get("/tournaments/:id", tournamentService.GetTournamentByID)
	app.Get("/tournaments/:id/standings", tournamentService.GetStandings)

	// 🔐 Authenticated routes
	secured.Post("/tournaments/:id/join", tournamentService.JoinTournament)
	secured.Delete("/tournaments/:id/entries/:user_id", tournamentService.LeaveTournament)

	// 🔒 Admin-only routes
	admin.Post("/tournaments", tournamentService.CreateTournament)
	admin.Put("/tournaments/:id", tournamentService.UpdateTournament)
	admin.Post("/tournaments/:id/start", tournamentService.StartTournament)
	admin.Post("/tournaments/:id/cancel", tournamentService.CancelTournament)
	admin.Post("/tournaments/:id/settle", tournamentService.SettleTournament)
}
