package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/inklift/inklift/internal/config"
	"github.com/inklift/inklift/internal/middleware"
)

// SetupRoutes configures all the routes for the application
func SetupRoutes(app *fiber.App, handlers *Handlers, cfg *config.Config) {
	app.Use(recover.New())
	app.Use(middleware.RequestLogger())

	// API group with versioning
	api := app.Group("/api/v1")

	// Health check endpoint
	api.Get("/health", handlers.HealthCheck)

	// Post lifecycle endpoints, scoped to the caller's org
	posts := api.Group("/posts", middleware.RequireOrg())
	{
		posts.Post("", handlers.CreatePost)
		posts.Get("", handlers.ListPosts)
		posts.Get("/:id", handlers.GetPost)
		posts.Post("/:id/transition", handlers.RequestTransition)

		posts.Put("/:id/outline", handlers.PutOutline)
		posts.Get("/:id/outline", handlers.GetOutline)
		posts.Patch("/:id/outline/sections/:index", handlers.PatchSection)

		posts.Post("/:id/draft", handlers.RecordDraft)
		posts.Get("/:id/drafts", handlers.ListDrafts)

		posts.Post("/:id/qa", handlers.RunQa)
		posts.Post("/:id/qa/results", handlers.ReportQaResult)
		posts.Get("/:id/qa", handlers.GetQaStatus)

		posts.Post("/:id/publish", handlers.PublishPost)
		posts.Get("/:id/publishes", handlers.ListPublishes)
	}

	// Worker report-back endpoint
	api.Post("/publishes/:id/result", handlers.ReportPublishResult)

	// Admin endpoints (protected by API key)
	admin := api.Group("/admin", middleware.AdminOnly(cfg.AdminAPIKey))
	{
		admin.Delete("/posts/:id", handlers.DeletePost)
		admin.Post("/locks/clear", handlers.ClearLocks)
	}

	// 404 Handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Endpoint not found",
		})
	})
}
