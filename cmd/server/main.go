package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"coverdesk/internal/config"
	"coverdesk/internal/dashboard"
	"coverdesk/internal/dyndb"
	"coverdesk/internal/entity"
	"coverdesk/internal/httpx"
	"coverdesk/internal/importer"
	"coverdesk/internal/store"
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

	// 3. Bootstrap base tables
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap base tables: %v", err)
	}
	log.Println("Base tables ready")

	// 4. Core components
	repo := dyndb.NewRepo(db)
	ddl := dyndb.NewDDL(db)
	engine := importer.NewEngine(repo, importer.DefaultRegistry(), cfg.Import.ExistingLimit)

	// 5. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: httpx.ErrorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 6. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 7. Dynamic database surface
	dbHandler := dyndb.NewHandler(repo, ddl, cfg.Import.MaxFileSize, cfg.Import.PreviewRows)
	dyndb.RegisterDBRoutes(app, dbHandler)

	// 8. Dashboard routes (before the generic entity routes; "dashboards"
	// sub-paths must not be captured by /:entity/:id)
	dashHandler := dashboard.NewHandler(dashboard.NewModel(repo), db)
	dashboard.RegisterDashboardRoutes(app, dashHandler)

	// 9. Generic entity CRUD + import
	entityHandler := entity.NewHandler(repo, engine, cfg.Import.MaxFileSize)
	entity.RegisterEntityRoutes(app, entityHandler)

	// 10. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}
