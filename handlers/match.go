package handlers

import (
	"treasure-match-engine/middleware"
	"treasure-match-engine/services"

	"github.com/gofiber/fiber/v2"
)

func SetupMatchRoutes(
	app *fiber.App,
	matchmaking *services.MatchmakingService,
	scores *services.ScoreService,
	live *services.LiveService,
	locations *services.LocationService,
	authClient *services.AuthServiceClient,
) {
	// 📡 SSE watch endpoints — EventSource cannot set headers, so these
	// authenticate via query params against the auth service
	app.Get("/matches/watch", middleware.SSEAuthMiddleware(authClient), live.WatchWaitingHandler)
	app.Get("/matches/:id/watch", middleware.SSEAuthMiddleware(authClient), live.WatchMatchHandler)

	// 🔐 Authenticated routes (user context injected by Gateway)
	secured := app.Group("/", middleware.UserContextMiddleware())

	// Matchmaking
	secured.Get("/matches/joinable", matchmaking.FindJoinableHandler)
	secured.Post("/matches", matchmaking.CreateMatchHandler)
	secured.Get("/matches/:id", matchmaking.GetMatchHandler)
	secured.Post("/matches/:id/join", matchmaking.JoinMatchHandler)
	secured.Post("/matches/:id/leave", matchmaking.LeaveMatchHandler)
	secured.Post("/matches/:id/cancel", matchmaking.CancelMatchHandler)

	// Reconnect + history
	secured.Get("/users/me/active-match", matchmaking.ActiveMatchHandler)
	secured.Get("/users/me/match-history", matchmaking.MatchHistoryHandler)

	// Scoring & settlement
	secured.Post("/matches/:id/discoveries", scores.RecordDiscoveryHandler)
	secured.Get("/matches/:id/scores", scores.IndividualScoresHandler)
	secured.Post("/matches/:id/settle", scores.SettleHandler)

	// Location feed (speed-gated)
	secured.Post("/locations", locations.ReportLocationHandler)
}
