package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recapbot/internal/backend"
	"recapbot/internal/config"
	"recapbot/internal/handlers"
	"recapbot/internal/logging"
	"recapbot/internal/mailer"
	"recapbot/internal/middleware"
	"recapbot/internal/normalize"
	"recapbot/internal/quota"
	"recapbot/internal/slackapi"
	"recapbot/internal/store"
	"recapbot/internal/summarize"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type ServiceBundle struct {
	SummarizeService *summarize.Service
	SummaryCache     *store.SummaryCache
	SessionStore     *store.SessionStore
	SlackClient      *slackapi.Client
	Mailer           *mailer.Client
	QuotaLimiter     *quota.Limiter
	Config           *config.Config
}

func initializeServices() *ServiceBundle {
	slog.Info("Loading configuration...")

	var cfg *config.Config
	for {
		cfg = config.Load()
		if err := cfg.Validate(); err != nil {
			slog.Error("Invalid configuration, retrying in 30s", "error", err)
			time.Sleep(30 * time.Second)
			continue
		}
		break
	}

	slog.Info("Initializing services...")

	// Database connection for session and feedback records
	var db *sql.DB
	for {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			slog.Error("Failed to open database connection, retrying in 30s", "error", err)
			time.Sleep(30 * time.Second)
			continue
		}

		if err = db.Ping(); err != nil {
			slog.Error("Failed to ping database, retrying in 30s", "error", err)
			db.Close()
			time.Sleep(30 * time.Second)
			continue
		}

		break
	}

	sessionStore := store.NewSessionStore(db)
	for {
		if err := sessionStore.InitSchema(); err != nil {
			slog.Error("Failed to initialize session schema, retrying in 30s", "error", err)
			time.Sleep(30 * time.Second)
			continue
		}
		break
	}

	// Redis backs the quota counters and the summary cache
	var redisClient *redis.Client
	for {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			opt = &redis.Options{Addr: cfg.RedisURL}
		}
		redisClient = redis.NewClient(opt)

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			slog.Error("Failed to ping redis, retrying in 30s", "error", err)
			redisClient.Close()
			time.Sleep(30 * time.Second)
			continue
		}
		break
	}

	slackClient := slackapi.NewClient(cfg.SlackBotToken)
	resolver := slackapi.NewIdentityResolver(slackClient)

	limiter := quota.NewLimiter(
		quota.NewRedisCounter(redisClient),
		quota.StaticTier(cfg.DefaultTier),
		cfg.Quotas,
	)

	summaryCache := store.NewSummaryCache(store.NewRedisKV(redisClient))

	collector := summarize.NewCollector(slackClient, slackClient.BotID(), slackClient.BotUserID(), cfg.InternalBotIDs)

	fitter := summarize.NewFitter(resolver, normalize.NewMrkdwn(), normalize.Options{
		StripCodeblocks:        true,
		CollapseUnlabeledLinks: true,
	})

	engine := summarize.NewEngine(
		backend.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel),
		sessionStore,
		slackClient,
		cfg.InternalTestTeamIDs,
	)

	service := summarize.NewService(
		limiter,
		collector,
		summarize.DefaultIntegrations(),
		fitter,
		engine,
		summaryCache,
		slackClient,
		cfg.SummaryBudgetChars,
		cfg.MaxRootMessages,
	)

	slog.Info("All services initialized successfully")

	return &ServiceBundle{
		SummarizeService: service,
		SummaryCache:     summaryCache,
		SessionStore:     sessionStore,
		SlackClient:      slackClient,
		Mailer:           mailer.NewClient(cfg.MailServiceURL),
		QuotaLimiter:     limiter,
		Config:           cfg,
	}
}

func main() {
	// Local development reads env from .env; production sets real env vars
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	logging.SetupLogger()

	slog.Info("Starting recapbot", slog.String("version", "1.0.0"))

	services := initializeServices()

	summarizeHandler := handlers.NewSummarizeHandler(
		services.SummarizeService,
		services.SummaryCache,
		services.SessionStore,
		services.SlackClient,
	)
	digestHandler := handlers.NewDigestHandler(services.Mailer, services.QuotaLimiter)

	// Setup HTTP server with middleware
	router := mux.NewRouter()

	router.Use(middleware.LoggingMiddleware)
	router.Use(middleware.MetricsMiddleware)

	// API routes with rate limiting
	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(middleware.APIRateLimitMiddleware())
	apiRouter.HandleFunc("/summarize", summarizeHandler.HandleSummarize).Methods("POST")
	apiRouter.HandleFunc("/summaries/{key}", summarizeHandler.HandleGetSummary).Methods("GET")
	apiRouter.HandleFunc("/summaries/{key}/post", summarizeHandler.HandlePostSummary).Methods("POST")
	apiRouter.HandleFunc("/feedback", summarizeHandler.HandleFeedback).Methods("POST")
	apiRouter.HandleFunc("/digest/send", digestHandler.HandleSendDigest).Methods("POST")

	// System routes
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ready"))
	}).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	server := &http.Server{
		Addr:         ":" + services.Config.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		slog.Info("Server starting", slog.String("port", services.Config.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Server shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited gracefully")
}
