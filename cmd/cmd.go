package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tenancy-backend/internal/authn"
	"tenancy-backend/internal/blobstore"
	"tenancy-backend/internal/config"
	"tenancy-backend/internal/docstore"
	"tenancy-backend/internal/gateway"
	"tenancy-backend/internal/handlers"
	"tenancy-backend/internal/middleware"
	"tenancy-backend/internal/push"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Run() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	ctx := context.Background()

	// Connect to database
	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	// Connect to redis (change notification and revocation fan-out)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping redis")
	}
	log.Info().Msg("Redis connection established")

	// Initialize the document store and credential service
	store := docstore.NewPostgres(db, rdb)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure document store schema")
	}

	auth := authn.NewPostgres(db, rdb, cfg.Auth)
	if err := auth.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure accounts schema")
	}

	// Blob store for profile photos
	blobs, err := blobstore.NewS3Store(ctx, cfg.AWS)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create blob store")
	}

	// Push notifications (optional)
	var notifier *push.Notifier
	if cfg.APNS.Enabled {
		notifier, err = push.NewNotifier(cfg.APNS)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create push notifier")
		}
	}

	// Collection gateways. HTTP requests carry their identity in the
	// request context, so these are built without a session source.
	profiles := gateway.NewProfiles(store, nil)
	complaints := gateway.NewComplaints(store, nil)
	vendors := gateway.NewVendors(store, nil)
	messages := gateway.NewMessages(store, nil)

	// Initialize handlers
	userHandler := handlers.NewUserHandler(auth, store, profiles, blobs)
	complaintHandler := handlers.NewComplaintHandler(complaints)
	vendorHandler := handlers.NewVendorHandler(vendors)
	messageHandler := handlers.NewMessageHandler(messages, profiles, notifier)
	wsHandler := handlers.NewWebSocketHandler(auth, store, rdb)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/auth/signup", userHandler.SignUp)
		r.Post("/auth/signin", userHandler.SignIn)
		r.Post("/auth/password-reset", userHandler.PasswordReset)
		r.Post("/auth/password-reset/confirm", userHandler.PasswordResetConfirm)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(auth))
			r.Post("/auth/signout", userHandler.SignOut)
			r.Get("/profile", userHandler.GetProfile)
			r.Patch("/profile", userHandler.UpdateProfile)
			r.Post("/profile/photo", userHandler.UploadPhoto)
			r.Post("/profile/photo/presign", userHandler.PresignPhoto)
			r.Post("/profile/photo/confirm", userHandler.ConfirmPhoto)
			r.Post("/complaints", complaintHandler.Create)
			r.Get("/complaints", complaintHandler.List)
			r.Get("/complaints/{complaint_id}", complaintHandler.Get)
			r.Post("/vendors", vendorHandler.Create)
			r.Get("/vendors", vendorHandler.List)
			r.Get("/vendors/{vendor_id}", vendorHandler.Get)
			r.Patch("/vendors/{vendor_id}", vendorHandler.Update)
			r.Post("/messages", messageHandler.Send)
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
