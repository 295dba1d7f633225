package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"crudgate/internal/auth"
	"crudgate/internal/config"
	"crudgate/internal/crud"
	"crudgate/internal/domain"
	"crudgate/internal/metadata"
	"crudgate/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, driver: %s)", cfg.Server.Port, cfg.Database.Driver)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Bootstrap system tables
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap system tables: %v", err)
	}
	log.Println("System tables ready")

	// 4. Register the entity schema
	reg := metadata.NewRegistry()
	domain.RegisterEntities(reg)

	// 5. Migrate entity tables
	migrator := store.NewMigrator(db)
	if err := migrator.MigrateAll(ctx, reg); err != nil {
		log.Fatalf("Failed to migrate entity tables: %v", err)
	}
	log.Println("Entity tables ready")

	// 6. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler(cfg),
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 7. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 8. Auth routes (before middleware — no auth required)
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	authHandler := auth.NewHandler(db, tokens)
	auth.RegisterRoutes(app, authHandler)

	// 9. CRUD actions (auth required)
	ctl := crud.NewController(cfg, db, reg)
	ctl.AddInterceptor(&crud.RoleInterceptor{
		Required: map[string]string{
			crud.ActionRemove:      "ROLE_ADMIN",
			crud.ActionBatchUpdate: "ROLE_ADMIN",
		},
	})
	if err := domain.RegisterControllers(ctl); err != nil {
		log.Fatalf("Failed to register controllers: %v", err)
	}
	crud.RegisterRoutes(app, ctl, auth.Middleware(tokens))

	// 10. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}

func errorHandler(cfg *config.Config) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{
				"success":   false,
				"exception": true,
				"message":   fiberErr.Message,
			})
		}

		status, body := crud.ExceptionResponse(err, cfg.IsProd())
		if status >= 500 {
			log.Printf("ERROR: %v", err)
		}
		return c.Status(status).JSON(body)
	}
}
