package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"localchat-backend/internal/auth"
	"localchat-backend/internal/chat"
	"localchat-backend/internal/config"
	"localchat-backend/internal/delivery"
	"localchat-backend/internal/middleware"
	"localchat-backend/internal/store"
	"localchat-backend/internal/user"
	"localchat-backend/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	config.LoadConfig(".env")
	if config.Cfg == nil {
		log.Fatal("Error: Configuration not loaded.")
	}

	log.Println("Localchat Backend Starting...")
	log.Printf("Server will run on port: %s", config.Cfg.ServerPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbpool, err := pgxpool.New(ctx, config.Cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to create connection pool: %v\n", err)
	}
	defer dbpool.Close()

	if err = dbpool.Ping(ctx); err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}
	log.Println("Successfully connected to the database!")

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Cfg.RedisAddr,
		Password: config.Cfg.RedisPassword,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Unable to connect to Redis: %v\n", err)
	}
	defer rdb.Close()
	log.Println("Successfully connected to Redis!")

	userStore := store.NewPostgresUserStore(dbpool)
	chatStore := store.NewPostgresChatStore(dbpool)
	messageStore := store.NewPostgresMessageStore(dbpool)
	receiptStore := store.NewPostgresReceiptStore(dbpool)
	alertStore := store.NewPostgresAlertStore(dbpool)

	bus := delivery.NewRedisBus(rdb)

	// Hub is an explicit dependency created here and torn down on shutdown,
	// not a hidden singleton.
	wsHub := websocket.NewHub(bus, bus)
	go wsHub.Run(ctx)
	log.Println("WebSocket Hub initialized and running.")

	chatService := chat.NewService(chatStore, messageStore, receiptStore, alertStore, userStore, bus, config.Cfg.LocalGroupRadiusKm)

	authHandler := auth.NewAuthHandler(userStore)
	userHandler := user.NewUserHandler(userStore)
	chatRestHandler := chat.NewRestHandler(chatService)
	wsHandler := websocket.NewWSHandler(wsHub, userStore)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.RedirectTrailingSlash = false
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "Upgrade", "Connection"}
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})

	r.GET("/ws", wsHandler.HandleWebSocketConnection)

	apiV1 := r.Group("/api/v1")
	{
		publicAuthRoutes := apiV1.Group("/auth")
		{
			publicAuthRoutes.POST("/register", authHandler.Register)
			publicAuthRoutes.POST("/login", authHandler.Login)
		}

		protected := apiV1.Group("/")
		protected.Use(middleware.AuthMiddleware())
		{
			protected.GET("/auth/me", authHandler.GetMe)
			protected.GET("/users/:id", userHandler.GetUserByID)
			protected.GET("/users", userHandler.SearchUsers)
			chatRestHandler.RegisterRoutes(protected)
		}
	}

	srv := &http.Server{
		Addr:    ":" + config.Cfg.ServerPort,
		Handler: r,
	}

	go func() {
		log.Printf("Listening and serving HTTP on :%s\n", config.Cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
