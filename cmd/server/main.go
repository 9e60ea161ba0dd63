package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	swagger "github.com/gofiber/swagger"
	"github.com/lib/pq"

	"github.com/localnerve/featherdb/internal/apperr"
	"github.com/localnerve/featherdb/internal/config"
	"github.com/localnerve/featherdb/internal/database"
	"github.com/localnerve/featherdb/internal/events"
	"github.com/localnerve/featherdb/internal/handlers"
	"github.com/localnerve/featherdb/internal/middleware"
	"github.com/localnerve/featherdb/internal/pipeline"
	"github.com/localnerve/featherdb/internal/session"

	_ "github.com/localnerve/featherdb/docs/api" // Swagger docs
)

// @title FeatherDB API
// @version 1.0.0
// @description Metadata-driven object-relational persistence engine
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/localnerve/featherdb
// @contact.email info@localnerve.com

// @license.name AGPL-3.0
// @license.url https://www.gnu.org/licenses/agpl-3.0.html

// @host localhost:10001
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name cookie_session

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Request pipeline pool: authorization-checked reads/writes.
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to request database: %v", err)
	}
	defer database.Close(db)

	// Elevated pool: runs the system-table migrations. Handlers, catalog DDL
	// and super-user requests included, use the request pool above.
	superDB, err := database.ConnectSuper(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to super database: %v", err)
	}
	defer database.Close(superDB)

	if err := database.AutoMigrate(superDB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	if err := session.Init(cfg, cfg.AuthzURL); err != nil {
		log.Fatalf("Failed to initialize session validator: %v", err)
	}

	hub := events.NewHub(cfg.NodeID, cfg.SSEBufferSize)
	registry := pipeline.NewRegistry()

	listenCtx, cancelListen := context.WithCancel(context.Background())
	defer cancelListen()

	listener, err := database.OpenListener(cfg, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("pq.Listener event %v: %v", ev, err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to open notification listener: %v", err)
	}
	defer listener.Close()

	go func() {
		if err := events.Listen(listenCtx, listener, cfg.NodeID, hub); err != nil && listenCtx.Err() == nil {
			log.Printf("events.Listen stopped: %v", err)
		}
	}()

	h := &handlers.Handler{DB: db, Registry: registry, Hub: hub, Config: cfg}

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(compress.New())

	prometheus := fiberprometheus.New("featherdb")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	app.Get("/swagger/*", swagger.HandlerDefault)

	api := app.Group("/api")
	api.Use(middleware.VersionMiddleware())
	api.Use(middleware.RequireSession(cfg))

	// Data — spec.md §6's core CRUD surface.
	api.Post("/data/:name", h.PostData)
	api.Get("/data/:name/:id", h.GetData)
	api.Patch("/data/:name/:id", h.PatchData)
	api.Delete("/data/:name/:id", h.DeleteData)

	// Feather — schema-as-data catalog.
	api.Get("/feather/:name", h.GetFeather)
	api.Put("/feather/:name", h.SaveFeather)
	api.Delete("/feather/:name", h.DeleteFeather)

	// Module — top-level, non-system, non-child feathers.
	api.Get("/module", h.ListModules)
	api.Get("/modules", h.ListModules)

	// Settings.
	api.Get("/settings/:name", h.GetSettings)
	api.Put("/settings/:name", h.SaveSettings)
	api.Get("/settings-definition", h.SettingsDefinition)

	// Workbook.
	api.Get("/workbook", h.ListOrGetWorkbook)
	api.Get("/workbooks", h.ListOrGetWorkbook)
	api.Get("/workbook/:name", h.ListOrGetWorkbook)
	api.Get("/workbooks/:name", h.ListOrGetWorkbook)
	api.Put("/workbook/:name", h.SaveWorkbook)
	api.Delete("/workbook/:name", h.DeleteWorkbook)

	// Do — out-of-band subscribe/unsubscribe/lock/unlock control ops.
	api.Post("/do/subscribe", h.Subscribe)
	api.Post("/do/unsubscribe", h.Unsubscribe)
	api.Post("/do/lock", h.Lock)
	api.Post("/do/unlock", h.Unlock)

	// SSE — server-push notification channel.
	api.Get("/sse", h.SSE)
	api.Get("/sse/:sessionId", h.SSE)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status":    fiber.StatusNotFound,
			"message":   "[404] Resource Not Found",
			"ok":        false,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"url":       c.OriginalURL(),
		})
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sig
		log.Println("Gracefully shutting down...")
		cancelListen()
		_ = app.Shutdown()
	}()

	port := cfg.Port
	log.Printf("Starting server on port %s", port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Println("Server stopped")
}

// customErrorHandler handles errors globally, recognizing this repo's
// apperr.Error alongside the teacher's *fiber.Error and E_VERSION
// string-sniffed conflict case.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()
	errorType := "unknown"

	if appErr, ok := err.(*apperr.Error); ok {
		code = appErr.StatusCode
		message = appErr.Message
		errorType = appErr.Type
	} else if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	versionError := false
	if code == fiber.StatusConflict || (len(message) >= 9 && message[:9] == "E_VERSION") {
		versionError = true
		errorType = "version"
		code = fiber.StatusConflict
	}

	return c.Status(code).JSON(fiber.Map{
		"status":       code,
		"message":      message,
		"ok":           false,
		"versionError": versionError,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
		"url":          c.OriginalURL(),
		"type":         errorType,
	})
}
