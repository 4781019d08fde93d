package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"raceday-backend/config"
	"raceday-backend/credential"
	"raceday-backend/handlers"
	"raceday-backend/notify"
	"raceday-backend/payment"
	"raceday-backend/storage"
)

func connectToDatabase(cfg config.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, err
	}

	log.Println("Successfully connected to the database!")
	return pool, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using default environment variables")
	}

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Invalid configuration: %v\n", err)
	}

	pool, err := connectToDatabase(cfg)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}
	defer pool.Close()

	store := storage.NewStore(pool)

	dispatcher := notify.NewDispatcher(store,
		notify.NewMailChannel("primary-mail", cfg.PrimaryMailURL, cfg.PrimaryMailAPIKey, cfg.PrimaryMailFrom),
		notify.NewMailChannel("fallback-mail", cfg.FallbackMailURL, cfg.FallbackMailAPIKey, cfg.FallbackMailFrom),
	)

	verifier := payment.NewVerifier(store, cfg.AmountEpsilon)
	orchestrator := payment.NewOrchestrator(store, credential.Encoder{}, dispatcher)

	webhookHandler := handlers.NewWebhookHandler(verifier, orchestrator, cfg)
	confirmHandler := handlers.NewConfirmHandler(store, orchestrator)
	registrationHandler := handlers.NewRegistrationHandler(store)
	notificationHandler := handlers.NewNotificationHandler(store, dispatcher)

	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Operator-Id"}
	router.Use(cors.New(corsConfig))

	api := router.Group("/api/v1")
	{
		// Payment signal entry points
		api.POST("/webhooks/bank", webhookHandler.HandleBankTransfer)
		api.POST("/registrations/:id/confirm", confirmHandler.ManualConfirm)
		api.POST("/batches/:id/confirm", confirmHandler.BatchConfirm)

		// Registration routes
		api.POST("/registrations", registrationHandler.CreateRegistration)
		api.GET("/registrations/:id", registrationHandler.GetRegistration)
		api.GET("/registrations/:id/credential", registrationHandler.GetCredential)
		api.POST("/registrations/:id/cancel", confirmHandler.CancelRegistration)

		// Notification audit routes
		api.GET("/registrations/:id/notifications", notificationHandler.ListNotifications)
		api.POST("/registrations/:id/notifications/resend", notificationHandler.ResendNotification)

		// Health check route
		api.GET("/test-db", func(c *gin.Context) {
			if err := pool.Ping(context.Background()); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Database connection failed: " + err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "Database connection OK"})
		})
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Unix(),
		})
	})

	log.Printf("Server starting on port %s\n", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v\n", err)
	}
}
