package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/handlers"
	"storefront/internal/middleware"
	"storefront/internal/repositories"
	"storefront/internal/services"
	"storefront/internal/storage"
	"storefront/pkg/rabbitmq"
)

// NewApp builds the fiber app from cfg. The returned cleanup closes the
// database and the RabbitMQ connection and must be called after shutdown.
func NewApp(cfg *config.Config, logger zerolog.Logger) (*fiber.App, func(), error) {
	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	closers := []func(){func() {
		if err := database.Close(db); err != nil {
			logger.Error().Err(err).Msg("failed to close database")
		}
	}}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	assets, err := newAssetStore(cfg.Assets, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	// --- Repositories & Services ---
	productRepo := repositories.NewGORMProductRepository(db)
	categoryRepo := repositories.NewGORMCategoryRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)

	productService := services.NewProductService(productRepo, assets, logger)
	categoryService := services.NewCategoryService(categoryRepo)
	authService := services.NewAuthService(userRepo, cfg.Auth.JWTSecret)

	eventsEnabled := cfg.RabbitMQ.URL != ""
	if eventsEnabled {
		mqClient, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQ.URL, Exchange: cfg.RabbitMQ.Exchange}, logger)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() {
			if err := mqClient.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close RabbitMQ client")
			}
		})
		productService.WithPublisher(mqClient, mqClient.Exchange())
	}

	// --- Fiber App ---
	app := fiber.New(fiber.Config{
		AppName:               "storefront",
		ErrorHandler:          handlers.ErrorHandler(logger),
		BodyLimit:             cfg.Server.BodyLimit(),
		DisableStartupMessage: true,
	})

	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(middleware.RequestLogger(logger))
	app.Use(recover.New())
	app.Use(cors.New())

	var guard fiber.Handler
	if cfg.Auth.Required {
		guard = middleware.AuthRequired(authService)
	}

	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("Sawatdee")
	})
	app.Get("/health", healthHandler(db, eventsEnabled))

	handlers.NewAssetHandler(assets).RegisterRoutes(app, cfg.Assets.URLPrefix)
	handlers.NewProductHandler(productService, cfg.Assets.URLPrefix, logger).RegisterRoutes(app, guard)
	handlers.NewCategoryHandler(categoryService).RegisterRoutes(app, guard)
	handlers.NewAuthHandler(authService, logger).RegisterRoutes(app)

	return app, cleanup, nil
}

func newAssetStore(cfg config.AssetConfig, logger zerolog.Logger) (storage.AssetStore, error) {
	switch cfg.Backend {
	case "disk":
		return storage.NewDiskStore(cfg.Dir, logger)
	case "s3":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return storage.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix, logger)
	}
	return nil, fmt.Errorf("unsupported asset backend %q", cfg.Backend)
}

func healthHandler(db *gorm.DB, eventsEnabled bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		status, code, dbStatus := "healthy", fiber.StatusOK, "up"
		if err := database.Ping(ctx, db); err != nil {
			status, code, dbStatus = "unhealthy", fiber.StatusServiceUnavailable, "down"
		}

		return c.Status(code).JSON(fiber.Map{
			"status":   status,
			"time":     time.Now().Format(time.RFC3339),
			"database": dbStatus,
			"events":   eventsEnabled,
		})
	}
}
