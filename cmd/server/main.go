package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"

	"trigger-console/internal/api"
	"trigger-console/internal/audit"
	"trigger-console/internal/auth"
	"trigger-console/internal/config"
	"trigger-console/internal/console"
	"trigger-console/internal/editor"
	"trigger-console/internal/metadata"
	"trigger-console/internal/notify"
	"trigger-console/internal/platform"
	"trigger-console/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	setupLogging(cfg.Log)
	log.Infof("Config loaded (port: %d, platform: %s, db: %s)", cfg.Server.Port, cfg.Platform.Driver, cfg.Database.Driver)

	// 2. Connect to database and bootstrap console tables
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Bootstrap(ctx, cfg.Auth.AdminUser, cfg.Auth.AdminPasswordHash); err != nil {
		log.Fatalf("Failed to bootstrap console tables: %v", err)
	}
	log.Info("Console tables ready")

	// 3. Platform service, optionally behind the lookup cache
	svc, closeCache, err := newPlatform(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to set up platform: %v", err)
	}
	defer closeCache()

	// 4. Audit log
	hub := notify.NewHub(50)
	var recorder audit.Recorder = audit.Noop{}
	var auditStore *store.Store
	if cfg.Audit.Enabled {
		buf := audit.NewBuffer(db, cfg.Audit.BufferSize, cfg.Audit.FlushIntervalMs)
		defer buf.Stop()
		janitor := audit.NewJanitor(db, cfg.Audit.RetentionDays, time.Hour)
		janitor.Start()
		defer janitor.Stop()
		recorder = buf
		auditStore = db
	}

	// 5. Console
	con := console.New(console.Options{
		Service:      svc,
		Sink:         hub,
		Audit:        recorder,
		Schemas:      editor.NewSchemaChecker(),
		PollInterval: cfg.Poll.Interval,
	})
	defer con.Close()
	if err := con.Refresh(ctx); err != nil {
		log.Warnf("Initial record load failed: %v", err)
	}

	// 6. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: api.ErrorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 7. Routes
	authSvc := auth.NewService(db, auth.Options{
		Secret:     cfg.Auth.JWTSecret,
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
	})
	api.RegisterAuthRoutes(app, api.NewAuthHandler(authSvc))
	api.RegisterRoutes(app, api.NewHandler(con, hub, auditStore), api.AuthMiddleware(authSvc), api.RequireAdmin())

	// 8. Start server and wait for a signal
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Infof("Starting server on %s", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	con.Close()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Errorf("Server shutdown: %v", err)
	}
}

func setupLogging(cfg config.LogConfig) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", cfg.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func newPlatform(ctx context.Context, cfg *config.Config) (platform.Service, func(), error) {
	var svc platform.Service
	switch cfg.Platform.Driver {
	case "memory":
		svc = demoPlatform()
		log.Warn("Using the in-memory platform; records are not persisted")
	default:
		client, err := platform.NewClient(platform.ClientConfig{
			BaseURL:   cfg.Platform.BaseURL,
			Token:     cfg.Platform.Token,
			Timeout:   cfg.Platform.Timeout,
			RateLimit: cfg.Platform.RateLimit,
			RateBurst: cfg.Platform.RateBurst,
		})
		if err != nil {
			return nil, nil, err
		}
		svc = client
	}

	if cfg.Cache.RedisAddr == "" {
		cache := platform.NewMemoryCache()
		return platform.NewCached(svc, cache, cfg.Cache.TTL), func() { _ = cache.Close() }, nil
	}
	cache, err := platform.NewRedisCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	log.Infof("Lookup cache on redis %s (ttl %s)", cfg.Cache.RedisAddr, cfg.Cache.TTL)
	return platform.NewCached(svc, cache, cfg.Cache.TTL), func() { _ = cache.Close() }, nil
}

// demoPlatform seeds an in-memory platform for local runs.
func demoPlatform() *platform.Memory {
	m := platform.NewMemory()
	m.DeployDelay = 15 * time.Second
	m.AddObjectType("Account", "Contact", "Opportunity", "Case")
	m.AddClass(platform.HandlerClass{
		Name:        "AccountOwnerSync",
		Events:      []metadata.EventType{metadata.EventBeforeInsert, metadata.EventBeforeUpdate},
		JSONEnabled: true,
		Description: "Keeps account owners in sync with their territory",
	})
	m.AddClass(platform.HandlerClass{
		Name:   "CaseEscalation",
		Events: []metadata.EventType{metadata.EventAfterInsert, metadata.EventAfterUpdate},
	})
	m.AddClass(platform.HandlerClass{
		Name:        "TriggerFrameworkAudit",
		Events:      []metadata.EventType{metadata.EventAfterInsert, metadata.EventAfterUpdate, metadata.EventAfterDelete},
		Description: "Framework audit handler",
	})
	m.Seed(metadata.Record{
		ID: "demo-1", Active: true, Order: 1, Label: "Framework Audit", DeveloperName: "Framework_Audit",
		ObjectType: "Account", Event: metadata.EventAfterInsert, HandlerClass: "TriggerFrameworkAudit",
		NamespacePrefix: metadata.BuiltInNamespace,
	})
	return m
}
