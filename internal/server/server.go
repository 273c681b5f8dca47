// Package server assembles the fiber application: middleware, routes and
// the JSON error envelope.
package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/auth"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/handlers"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/middleware"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/models"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/realtime"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/services/chat"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/services/project"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/services/proposal"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/services/resume"
)

type Deps struct {
	Log *zap.Logger

	Users     handlers.UserStore
	Projects  *project.Service
	Proposals *proposal.Service
	Chat      *chat.Service
	Hub       *realtime.Hub
	Resumes   resume.Ingestor

	JWTSecret     string
	JWTExpiresMin int
	UploadDir     string
	CORSOrigins   string
	BodyLimitMB   int
}

// corsConfig allows cookies only for an explicit origin list. fiber refuses
// credentials together with a wildcard origin.
func corsConfig(origins string) cors.Config {
	origins = strings.TrimSpace(origins)
	if origins == "" {
		origins = "*"
	}
	return cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders:    "Content-Length",
		AllowCredentials: !strings.Contains(origins, "*"),
	}
}

func New(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "freelance-marketplace",
		BodyLimit:    d.BodyLimitMB * 1024 * 1024,
		ErrorHandler: handlers.ErrorHandler(d.Log),
	})

	app.Use(recover.New())
	app.Use(cors.New(corsConfig(d.CORSOrigins)))

	app.Static("/uploads", d.UploadDir)

	verifier := auth.NewVerifier(d.JWTSecret)

	authH := &handlers.AuthHandler{Users: d.Users, JWTSecret: d.JWTSecret, Expires: d.JWTExpiresMin}
	projectH := &handlers.ProjectHandler{Projects: d.Projects}
	proposalH := &handlers.ProposalHandler{Proposals: d.Proposals, Resumes: d.Resumes}
	chatH := &handlers.ChatHandler{Chat: d.Chat, Hub: d.Hub, Log: d.Log}

	api := app.Group("/api")

	// public
	api.Post("/auth/register", authH.Register)
	api.Post("/auth/login", authH.Login)
	api.Post("/auth/logout", authH.Logout)

	// protected (JWT)
	protected := api.Group("/", middleware.RequireAuth(verifier))

	protected.Get("/auth/me", authH.Me)

	protected.Post("/projects", middleware.RequireRoles(models.RoleClient), projectH.Create)
	protected.Get("/projects", projectH.ListOpen)
	protected.Get("/projects/client/:clientId", projectH.ListByClient)
	protected.Get("/projects/me/active", projectH.ListActive)
	protected.Get("/projects/:id", projectH.Get)
	protected.Put("/projects/:id/complete", projectH.Complete)
	protected.Put("/projects/:id/cancel", projectH.Cancel)

	protected.Post("/proposals", proposalH.Submit)
	protected.Get("/proposals/me", proposalH.ListMine)
	protected.Put("/proposals/:id/status", proposalH.Decide)
	protected.Put("/proposals/:id/withdraw", proposalH.Withdraw)

	protected.Get("/messages/:roomId", chatH.History)
	protected.Patch("/messages/:roomId/read", chatH.MarkRead)

	// WebSocket endpoint, token via query param, header or cookie
	app.Get("/ws/chat",
		middleware.RequireAuthQuery(verifier),
		chatH.Upgrade,
		websocket.New(chatH.WebSocketHandler),
	)

	return app
}
