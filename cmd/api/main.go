// Package main is the entry point for the chat API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/firstserv/chat-platform/internal/auth"
	"github.com/firstserv/chat-platform/internal/config"
	"github.com/firstserv/chat-platform/internal/dispatch"
	"github.com/firstserv/chat-platform/internal/handler"
	"github.com/firstserv/chat-platform/internal/middleware"
	natsclient "github.com/firstserv/chat-platform/internal/nats"
	"github.com/firstserv/chat-platform/internal/registry"
	"github.com/firstserv/chat-platform/internal/service"
	"github.com/firstserv/chat-platform/internal/store"
	"github.com/firstserv/chat-platform/internal/ws"
	"github.com/firstserv/chat-platform/pkg/logger"
	"github.com/firstserv/chat-platform/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting chat API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chat-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", "error", err)
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Open the document store
	st, err := store.Open(cfg.DataDir, log)
	if err != nil {
		log.Error("failed to open document store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Conversation registry: live subscriber sets, membership-checked
	// against the store.
	reg := registry.New(st, log)

	// Optional cross-instance fan-out relay
	var (
		nc    *natsclient.Client
		relay *natsclient.Relay
	)
	broadcaster := dispatch.Broadcaster(reg)
	if cfg.NATSURL != "" {
		nc, err = natsclient.Connect(natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer nc.Close()

		relay = natsclient.NewRelay(nc, reg, log)
		if err := relay.Start(); err != nil {
			log.Error("failed to start fan-out relay", "error", err)
			os.Exit(1)
		}
		defer relay.Stop()
		broadcaster = dispatch.MultiBroadcaster(reg, relay)
	}

	// Fan-out dispatcher: the serialized persist-then-broadcast path.
	dispatcher := dispatch.New(st, broadcaster, log)

	// Session authenticator
	authenticator := auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTExpiration)

	// Initialize services
	userSvc := service.NewUserService(st, authenticator, log)
	conversationSvc := service.NewConversationService(st, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(st, nc)
	authHandler := handler.NewAuthHandler(userSvc, log)
	userHandler := handler.NewUserHandler(userSvc, log)
	conversationHandler := handler.NewConversationHandler(conversationSvc, dispatcher, log)
	messageHandler := handler.NewMessageHandler(conversationSvc, dispatcher, log)
	uploadHandler, err := handler.NewUploadHandler(userSvc, cfg.UploadDir, cfg.UploadBaseURL, cfg.MaxUploadSize, log)
	if err != nil {
		log.Error("failed to initialize upload handler", "error", err)
		os.Exit(1)
	}
	wsHandler := ws.NewHandler(authenticator, reg, dispatcher, ws.Config{
		SendQueueSize:  cfg.WSSendQueueSize,
		MaxMessageSize: cfg.WSMaxMessageSize,
		PongTimeout:    cfg.WSPongTimeout,
	}, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Account endpoints (no auth required)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)
	})

	// Uploaded files
	r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))

	// Live connections authenticate during the handshake (browser WebSocket
	// clients pass the token as a query parameter), so this route sits
	// outside the header-auth group.
	r.Get("/api/v1/conversations/{id}/ws", wsHandler.Serve)

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(authenticator))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Profiles
		r.Route("/users", func(r chi.Router) {
			r.Get("/", userHandler.List)
			r.Get("/me", userHandler.Me)
			r.Put("/me/bio", userHandler.UpdateBio)
			r.Get("/{handle}", userHandler.Get)
		})

		// Uploads
		r.Post("/upload/avatar", uploadHandler.Avatar)
		r.Post("/upload/media", uploadHandler.Media)

		// Conversations
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Delete("/", conversationHandler.Delete)

				// Messages
				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)
				r.Post("/messages/{messageID}/reactions", messageHandler.AddReaction)
			})
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
