package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/santridigital/kreator-gateway/internal/gateway/assistant"
	"github.com/santridigital/kreator-gateway/internal/gateway/cache"
	"github.com/santridigital/kreator-gateway/internal/gateway/classify"
	"github.com/santridigital/kreator-gateway/internal/gateway/credentials"
	"github.com/santridigital/kreator-gateway/internal/gateway/credits"
	"github.com/santridigital/kreator-gateway/internal/gateway/generation"
	"github.com/santridigital/kreator-gateway/internal/gateway/handlers"
	"github.com/santridigital/kreator-gateway/internal/shared/config"
	"github.com/santridigital/kreator-gateway/internal/shared/redis"
	"github.com/santridigital/kreator-gateway/internal/shared/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("starting kreator gateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	var store storage.Store
	var logs handlers.GenerationLogger
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pg.Close()
		store = pg
		logs = pg
		log.Info().Msg("connected to PostgreSQL")
	} else {
		store = storage.NewMemoryStore()
		log.Warn().Msg("DATABASE_URL not set, credentials will not survive restarts")
	}

	// Initialize Redis (optional)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.New(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer redisClient.Close()
		log.Info().Msg("connected to Redis")
	} else {
		log.Warn().Msg("REDIS_URL not set, rate limiting and response caching are disabled")
	}

	// Wire core services
	credStore := credentials.NewStore(store, cfg.ServerAIKeys)
	classifier := classify.New()

	genClient := generation.NewClient(generation.Config{
		BaseURL:      cfg.GenerationBaseURL,
		PollInterval: time.Duration(cfg.PollIntervalSeconds) * time.Second,
		MaxAttempts:  cfg.MaxPollAttempts,
	}, credStore, classifier)

	ledger := credits.NewLedger(credStore)

	responseCache := cache.New(redisClient, cfg.CacheEnabled, time.Duration(cfg.CacheTTLSeconds)*time.Second)
	assistantSvc := assistant.NewService(assistant.Config{
		Model:       cfg.GeminiModel,
		FallbackKey: cfg.GeminiAPIKey,
	}, credStore, classifier, responseCache)

	// Initialize handlers
	generateHandler := handlers.NewGenerateHandler(genClient, ledger, logs)
	credentialHandler := handlers.NewCredentialHandler(credStore)
	assistantHandler := handlers.NewAssistantHandler(assistantSvc)
	middleware := handlers.NewMiddleware(credStore, redisClient, cfg.DefaultRateLimit)

	// The longest possible generation is interval * attempts plus the
	// submission round-trip.
	generationTimeout := time.Duration(cfg.PollIntervalSeconds)*time.Second*time.Duration(cfg.MaxPollAttempts) + 2*time.Minute

	// Setup router
	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORSMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RateLimitMiddleware)

		r.Route("/credentials", func(r chi.Router) {
			r.Use(chimiddleware.Timeout(60 * time.Second))

			r.Get("/", credentialHandler.HandleList)
			r.Post("/", credentialHandler.HandleCreate)
			r.Get("/active", credentialHandler.HandleActive)
			r.Get("/server", credentialHandler.HandleServerList)
			r.Put("/{id}", credentialHandler.HandleUpdate)
			r.Delete("/{id}", credentialHandler.HandleDelete)
			r.Post("/{id}/activate", credentialHandler.HandleActivate)
		})

		r.Route("/assistant", func(r chi.Router) {
			r.Use(chimiddleware.Timeout(60 * time.Second))

			r.Post("/optimize", assistantHandler.HandleOptimizePrompt)
			r.Post("/analyze", assistantHandler.HandleAnalyzeImage)
			r.Post("/chat", assistantHandler.HandleChat)
		})

		r.Route("/generations", func(r chi.Router) {
			r.Use(chimiddleware.Timeout(generationTimeout))

			r.Post("/image", generateHandler.HandleCreateImage)
			r.Post("/image-edit", generateHandler.HandleEditImage)
			r.Post("/image-merge", generateHandler.HandleMergeImages)
			r.Post("/3d", generateHandler.HandleCreate3DModel)
			r.Post("/text-to-video", generateHandler.HandleTextToVideo)
			r.Post("/image-to-video", generateHandler.HandleImageToVideo)
		})
	})

	// WriteTimeout stays zero so event streams can outlive slow generations;
	// per-route timeouts above bound the actual work.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
}
