package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mdcollab/internal/channel"
	"mdcollab/internal/config"
	"mdcollab/internal/handler"
	"mdcollab/internal/middleware"
	"mdcollab/internal/realtime"
	"mdcollab/internal/repository"
	"mdcollab/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Server struct {
	Engine *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client
	Config *config.Config
}

func Init(cfg *config.Config) (*Server, error) {
	// Setup GORM
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("❌ failed to connect to DB: %w", err)
	}
	log.Println("✅ Connected to database")

	// Setup Redis for the document broadcast channels
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("❌ failed to connect to Redis: %w", err)
	}
	log.Println("✅ Connected to Redis")

	// Setup Gin
	r := gin.Default()

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	docRepo := repository.NewDocumentRepository(db)
	shareRepo := repository.NewDocumentShareRepository(db)

	// Broadcast channel and sync engine plumbing
	docChannel := channel.NewRedisChannel(rdb)
	docStore := newDocumentStore(docRepo, shareRepo)
	syncOpts := realtime.Options{
		FlushDebounce:      cfg.ContentFlushDebounce,
		MinInboundInterval: cfg.MinInboundInterval,
	}
	gateway := ws.NewGateway(docChannel, docStore, userRepo, syncOpts)

	// Initialize handlers
	userHandler := handler.NewUserHandler(userRepo)
	docHandler := handler.NewDocumentHandler(docRepo, shareRepo)
	shareHandler := handler.NewDocumentShareHandler(docRepo, userRepo, shareRepo, docChannel)

	// Public routes
	r.POST("/register", userHandler.Register)
	r.POST("/login", userHandler.Login)

	// Protected routes - require authentication
	authorized := r.Group("/")
	authorized.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
	{
		// Document routes
		authorized.POST("/documents", docHandler.Create)
		authorized.GET("/documents", docHandler.GetAll)
		authorized.GET("/documents/:id", docHandler.GetByID)
		authorized.PATCH("/documents/:id", docHandler.Patch)
		authorized.DELETE("/documents/:id", docHandler.Delete)

		// Sharing routes
		authorized.POST("/documents/:id/share", shareHandler.ShareDocument)
		authorized.POST("/documents/:id/share/:user_id/revoke", shareHandler.RevokeShare)
		authorized.GET("/documents/:id/share", shareHandler.GetShares)
		authorized.GET("/shared-documents", shareHandler.GetSharedDocuments)

		// Realtime collaboration endpoint
		authorized.GET("/ws/documents/:id", gateway.Handle)
	}

	return &Server{
		Engine: r,
		DB:     db,
		Redis:  rdb,
		Config: cfg,
	}, nil
}

func (s *Server) Run() {
	srv := &http.Server{
		Addr:    ":" + s.Config.ServerPort,
		Handler: s.Engine,
	}

	go func() {
		log.Printf("🚀 Server running on port %s\n", s.Config.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to listen: %s\n", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %s", err)
	}

	if err := s.Redis.Close(); err != nil {
		log.Printf("⚠️  Redis close failed: %v", err)
	}

	log.Println("✅ Server exited properly")
}
