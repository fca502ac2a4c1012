package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"

	"github.com/amjacademy/messaging-backend/internal/cache"
	"github.com/amjacademy/messaging-backend/internal/fanout"
	"github.com/amjacademy/messaging-backend/internal/handlers"
	"github.com/amjacademy/messaging-backend/internal/metrics"
	"github.com/amjacademy/messaging-backend/internal/middleware"
	"github.com/amjacademy/messaging-backend/internal/repository"
	"github.com/amjacademy/messaging-backend/internal/service"
	"github.com/amjacademy/messaging-backend/internal/storage"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	app := fiber.New(fiber.Config{
		AppName: "AMJ Academy Messaging",
		// Messages are text plus attachment URLs; bodies stay small.
		BodyLimit: 1 * 1024 * 1024, // 1MB
	})

	// Middleware
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     os.Getenv("ALLOWED_ORIGINS"),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))

	// Initialize database connection
	db, err := repository.InitDB()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Initialize Redis cache
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisPassword := os.Getenv("REDIS_PASSWORD")
	redisDB := 0
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if parsedDB, err := strconv.Atoi(dbStr); err == nil {
			redisDB = parsedDB
		}
	}

	redisCache := cache.NewRedisCache(redisAddr, redisPassword, redisDB)
	if err := redisCache.Ping(); err != nil {
		log.Printf("WARNING: Redis connection failed: %v. Running without cache.", err)
		redisCache = nil
	} else {
		log.Println("Redis cache connected successfully")
	}

	onlineTTL := service.OnlineTTL()
	unreadCache := cache.NewUnreadCache(redisCache)
	presenceCache := cache.NewPresenceCache(redisCache, onlineTTL)

	// Initialize repositories
	convRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	statusRepo := repository.NewStatusRepository(db)
	presenceRepo := repository.NewPresenceRepository(db)
	pendingEventRepo := repository.NewPendingEventRepository(db)

	// Fan-out broker, with an optional NATS bridge for multi-instance runs
	broker := fanout.NewBroker(pendingEventRepo)
	defer broker.Close()

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		cfg := fanout.DefaultBridgeConfig()
		cfg.URL = natsURL
		bridge, err := fanout.NewBridge(cfg)
		if err != nil {
			log.Printf("WARNING: NATS bridge unavailable: %v. Running single-instance.", err)
		} else if err := broker.AttachBridge(bridge); err != nil {
			log.Printf("WARNING: NATS bridge subscribe failed: %v. Running single-instance.", err)
			bridge.Close()
		} else {
			defer bridge.Close()
			log.Println("NATS fan-out bridge connected")
		}
	}

	// Initialize services
	conversationService := service.NewConversationService(convRepo, messageRepo, broker)
	messageService := service.NewMessageService(messageRepo, convRepo, statusRepo, broker, unreadCache)
	presenceService := service.NewPresenceService(presenceRepo, convRepo, presenceCache, broker, onlineTTL)

	// Initialize S3/MinIO storage (best-effort; presign endpoint returns 503 if missing)
	var s3Store *storage.S3Storage
	if cfg, err := storage.LoadS3ConfigFromEnv(); err != nil {
		log.Printf("WARNING: S3 storage not configured: %v", err)
	} else if st, err := storage.NewS3Storage(cfg); err != nil {
		log.Printf("WARNING: Failed to initialize S3 storage: %v", err)
	} else {
		s3Store = st
		log.Printf("S3 storage initialized successfully (bucket=%s)", cfg.Bucket)
	}

	// Initialize handlers
	conversationHandler := handlers.NewConversationHandler(conversationService)
	messageHandler := handlers.NewMessageHandler(messageService)
	presenceHandler := handlers.NewPresenceHandler(presenceService)
	attachmentHandler := handlers.NewAttachmentHandler(conversationService, s3Store)
	wsHandler := handlers.NewWebSocketHandler(conversationService, messageService, presenceService, broker)

	// Protected API routes
	api := app.Group("/api", middleware.OriginAllowed(), middleware.AuthRequired())

	api.Post("/conversations", conversationHandler.GetOrCreateConversation)
	api.Get("/conversations", conversationHandler.ListConversations)
	api.Get("/conversations/:id/messages", messageHandler.GetMessages)
	api.Get("/conversations/:id/participants", conversationHandler.GetParticipants)
	api.Post("/conversations/:id/read", messageHandler.MarkRead)
	api.Post("/conversations/:id/typing", presenceHandler.SetTyping)

	api.Post("/messages", limiter.New(limiter.Config{
		Max:        60,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			if uid := c.Locals("userID"); uid != nil {
				if u, ok := uid.(uint); ok {
					return "send:" + strconv.FormatUint(uint64(u), 10)
				}
			}
			return c.IP()
		},
	}), messageHandler.SendMessage)
	api.Get("/messages/:id", messageHandler.GetMessage)
	api.Post("/messages/:id/delivered", messageHandler.MarkDelivered)

	api.Post("/presence/heartbeat", presenceHandler.Heartbeat)
	api.Get("/presence/:id", presenceHandler.GetPresence)
	api.Get("/unread-count", messageHandler.GetUnreadCount)

	api.Post("/attachments", attachmentHandler.PresignUpload)

	// WebSocket route (websocket upgrade needs special handling)
	app.Use(
		"/ws",
		middleware.OriginAllowed(),
		middleware.AuthRequired(),
		func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		},
	)
	app.Get("/ws", websocket.New(wsHandler.HandleWebSocket))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "AMJ messaging is running",
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s...", port)
	if err := app.Listen(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
