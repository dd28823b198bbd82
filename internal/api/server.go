package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"quantforge.com/internal/config"
)

func NewServer(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: cfg.Server.AppName,
		// Uploads stream through multipart; allow bodies up to the
		// configured dataset limit plus some form overhead.
		BodyLimit: int(cfg.Upload.MaxFileSize) + 1<<20,
	})

	app.Use(logger.New())
	app.Use(cors.New())

	return app
}
