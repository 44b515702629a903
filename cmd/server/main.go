package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/chatrelay/internal/config"
	"github.com/quocanhngo/chatrelay/internal/database"
	"github.com/quocanhngo/chatrelay/internal/handler"
	"github.com/quocanhngo/chatrelay/internal/middleware"
	"github.com/quocanhngo/chatrelay/internal/repository"
	"github.com/quocanhngo/chatrelay/internal/service"
	"github.com/quocanhngo/chatrelay/internal/ws"
	"github.com/quocanhngo/chatrelay/migrations"
	"github.com/quocanhngo/chatrelay/pkg/auth"
	"github.com/quocanhngo/chatrelay/pkg/notification"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm/logger"
)

// @title           ChatRelay API
// @version         1.0
// @description     Real-time direct-message relay with device identities, presence and WebSocket delivery.

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// ==================== Load Config ====================
	cfg := config.Load()
	log.Printf("🚀 Starting ChatRelay Server [env=%s]", cfg.App.Env)

	// ==================== Database ====================
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.App.Env == "production" {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	db, err := database.Open(cfg.DB, gormLogger)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	log.Printf("✅ Connected to %s", cfg.DB.Driver)

	// ==================== Run Migrations ====================
	if err := migrations.Run(cfg.DB.Driver, cfg.DB.URL()); err != nil {
		log.Printf("⚠️  Migration warning: %v", err)
		log.Println("📦 Falling back to GORM AutoMigrate...")
		if err := database.AutoMigrate(db); err != nil {
			log.Fatalf("❌ Failed to migrate database: %v", err)
		}
	}
	log.Println("✅ Database migrated successfully")

	// Repositories
	identityRepo := repository.NewIdentityRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	ctx := context.Background()
	if cfg.Relay.ResetPresenceOnStart {
		n, err := identityRepo.ResetOnline(ctx)
		if err != nil {
			log.Printf("⚠️  Failed to reset presence flags: %v", err)
		} else {
			log.Printf("🧹 Reset %d stale online flags", n)
		}
	}

	// ==================== Redis (optional) ====================
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       0,
		})
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			log.Printf("⚠️  Redis not available: %v (running single-node)", err)
			_ = rdb.Close()
			rdb = nil
		} else {
			log.Println("✅ Connected to Redis")
		}
	} else {
		log.Println("ℹ️  REDIS_HOST not set, running single-node")
	}

	// ==================== Push (FCM) ====================
	var notifier service.Notifier
	if fcm := notification.NewNotificationService(ctx, cfg.Firebase.CredentialsFile); fcm != nil {
		notifier = fcm
	}

	// ==================== Initialize Layers ====================
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)

	// Presence registry (with Redis Pub/Sub for horizontal scaling)
	hub := ws.NewHub(rdb, cfg.Relay.PresenceSyncInterval)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(hubCtx)
	}()

	// Services
	identityService := service.NewIdentityService(identityRepo, hub, cfg.DB.Timeout)
	chatService := service.NewChatService(identityRepo, messageRepo, hub, notifier, service.ChatOptions{
		MaxMessageLength:  cfg.Relay.MaxMessageLength,
		ConversationLimit: cfg.Relay.ConversationLimit,
		StoreTimeout:      cfg.DB.Timeout,
	})
	authService := service.NewAuthService(identityService, jwtManager, rdb, hub)

	// Handlers
	handlers := handler.Handlers{
		Auth: handler.NewAuthHandler(authService),
		User: handler.NewUserHandler(identityService),
		Chat: handler.NewChatHandler(chatService),
		WS:   handler.NewWSHandler(hub, identityService, chatService, authService, cfg.CORS.Origins, cfg.Relay.SendBuffer),
	}

	// ==================== Gin Router ====================
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Serve swagger.json at /docs/swagger.json to avoid conflict with /swagger/* wildcard
	router.StaticFile("/docs/swagger.json", "./docs/swagger.json")
	url := ginSwagger.URL("/docs/swagger.json")
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, url))

	// Global middleware
	router.Use(middleware.CORSMiddleware(cfg.CORS.Origins))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		connections, users := hub.Stats()
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"service":     "chatrelay",
			"node_id":     hub.NodeID(),
			"connections": connections,
			"users":       users,
			"redis":       rdb != nil,
			"time":        time.Now().Format(time.RFC3339),
		})
	})

	handler.RegisterRoutes(router, handlers, middleware.AuthMiddleware(jwtManager, authService))

	// ==================== Start Server ====================
	srv := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	log.Printf("🌐 ChatRelay running on http://0.0.0.0:%s", cfg.App.Port)
	log.Printf("📋 API docs: http://0.0.0.0:%s/swagger/index.html", cfg.App.Port)
	log.Printf("🔌 WebSocket: ws://0.0.0.0:%s/ws", cfg.App.Port)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutting down server...")

	// Give ongoing requests 5 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Server forced to shutdown: %v", err)
	}

	// Hijacked WebSocket connections are not covered by srv.Shutdown
	hub.Shutdown()
	hubCancel()
	// the leave announcement still needs Redis
	<-hubDone

	if rdb != nil {
		_ = rdb.Close()
	}
	if err := database.Close(db); err != nil {
		log.Printf("⚠️  Failed to close database: %v", err)
	}
	log.Println("✅ Server exited gracefully")
}
