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
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/teknolabs/vocameet-server/internal/auth"
	"github.com/teknolabs/vocameet-server/internal/bridge"
	"github.com/teknolabs/vocameet-server/internal/config"
	"github.com/teknolabs/vocameet-server/internal/database"
	"github.com/teknolabs/vocameet-server/internal/handler"
	"github.com/teknolabs/vocameet-server/internal/httputil"
	"github.com/teknolabs/vocameet-server/internal/identity"
	"github.com/teknolabs/vocameet-server/internal/jobs"
	"github.com/teknolabs/vocameet-server/internal/metrics"
	"github.com/teknolabs/vocameet-server/internal/middleware"
	"github.com/teknolabs/vocameet-server/internal/model"
	"github.com/teknolabs/vocameet-server/internal/redis"
	"github.com/teknolabs/vocameet-server/internal/repository"
	"github.com/teknolabs/vocameet-server/internal/room"
	"github.com/teknolabs/vocameet-server/internal/service"
	"github.com/teknolabs/vocameet-server/internal/sessionid"
	"github.com/teknolabs/vocameet-server/internal/sse"
	"github.com/teknolabs/vocameet-server/internal/util"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(cfg.IsProduction()); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	signer, err := auth.NewSigner(cfg.SessionSigningSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("SESSION_SIGNING_SECRET (or NEXTAUTH_SECRET) must be set")
	}

	sealer, err := util.NewSealer(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid ENCRYPTION_KEY")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	upstream := &http.Client{Timeout: config.UpstreamRequestTimeout}

	authenticator, err := identity.New(identity.Options{
		Strategy:         model.AuthStrategy(cfg.AuthStrategy),
		ClientID:         cfg.GoogleClientID,
		ClientSecret:     cfg.GoogleClientSecret,
		JWKSURL:          cfg.GoogleJWKSURL,
		HostedSessionURL: cfg.HostedSessionURL,
		HTTPClient:       upstream,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up identity provider")
	}
	if closer, ok := authenticator.(interface{ Close() }); ok {
		defer closer.Close()
	}
	log.Info().Str("strategy", cfg.AuthStrategy).Msg("identity provider ready")

	issuer := room.New(cfg.Signing, upstream)

	// refreshing calendar tokens needs the same OAuth client as the code exchange
	var calendarOAuth *oauth2.Config
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		calendarOAuth = identity.NewCodeExchanger(cfg.GoogleClientID, cfg.GoogleClientSecret, upstream).OAuthConfig()
	}

	m := metrics.New()

	userRepo := repository.NewUserRepository(db.DB)
	credentialRepo := repository.NewCredentialRepository(db.DB)

	broker := sse.NewBroker(redisClient.Client)
	defer broker.Close()

	bridgeManager := bridge.NewManager(broker, m, cfg.TranscriptWSURL)
	defer bridgeManager.Close()

	authService := service.NewAuthService(authenticator, signer, db, userRepo, credentialRepo, sealer, m)
	calendarService := service.NewCalendarService(credentialRepo, sealer, calendarOAuth, upstream, cfg.CalendarMaxResults, m)

	snapshots := func(sessionGUID string) sessionid.Storage {
		return sessionid.NewRedisStorage(redisClient.Client, sessionGUID)
	}

	authMiddleware := middleware.NewAuthMiddleware(signer)
	grantLimiter := middleware.NewRateLimitMiddleware(
		middleware.NewRedisRateLimiter(redisClient.Client), "grant", cfg.GrantRateLimitPerMin, m,
	)
	loginLimiter := middleware.NewIPRateLimiter(
		rate.Limit(config.LoginRatePerSecond), config.LoginRateBurst, "login", m,
	)
	agentKeyMiddleware := middleware.NewAgentKeyMiddleware(cfg.AgentAPIKey)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(cfg.IsProduction())

	secureCookies := cfg.IsProduction()
	authHandler := handler.NewAuthHandler(authService, snapshots, secureCookies)
	sessionHandler := handler.NewSessionHandler(snapshots, secureCookies)
	roomHandler := handler.NewRoomHandler(issuer, m)
	calendarHandler := handler.NewCalendarHandler(calendarService)
	transcriptHandler := handler.NewTranscriptHandler(broker, bridgeManager)

	r := chi.NewRouter()

	r.Use(corsHandler(cfg).Handler)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Handle("/metrics", m.Handler())

	// event streams outlive the request timeout
	r.Get("/api/session/events", sessionHandler.Events)
	r.With(authMiddleware.Handler).Get("/v1/rooms/{room}/transcript", transcriptHandler.Stream)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

		r.Get("/health", health(db, redisClient, broker))
		r.Get("/api/session/id", sessionHandler.ID)
		r.With(loginLimiter.Handler).Post("/api/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Handler)

			r.Get("/api/auth/session", authHandler.Session)
			r.Post("/api/auth/logout", authHandler.Logout)
			r.Get("/api/auth/check", authHandler.Check)

			r.With(grantLimiter.Handler).Post("/api/livekit/token", roomHandler.LegacyToken)

			r.Get("/api/google/events", calendarHandler.Upcoming)
			r.Get("/calendar/events", calendarHandler.Availability)
		})

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.WithErrorWriter(middleware.TextErrors).Handler)
			r.Use(grantLimiter.WithErrorWriter(middleware.TextErrors).Handler)

			r.Post("/api/connection-details", roomHandler.ConnectionDetails)
		})

		r.Group(func(r chi.Router) {
			r.Use(agentKeyMiddleware.Handler)

			r.Post("/v1/rooms/{room}/data", transcriptHandler.Ingest)
			r.Delete("/v1/rooms/{room}/data", transcriptHandler.Close)
		})
	})

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go loginLimiter.Sweep(sweepCtx)

	cleanupJob := jobs.NewCleanupJob(credentialRepo, config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func corsHandler(cfg *config.Config) *cors.Cors {
	origins := []string{}
	if cfg.Environment == "development" {
		origins = []string{"*"}
	} else if len(cfg.AllowedOrigins) > 0 {
		origins = cfg.AllowedOrigins
	}

	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.AgentKeyHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

func health(db *database.DB, redisClient *redis.Client, broker *sse.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
		defer cancel()

		status, code := "ok", http.StatusOK
		if err := db.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("health check: database unreachable")
			status, code = "degraded", http.StatusServiceUnavailable
		} else if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("health check: redis unreachable")
			status, code = "degraded", http.StatusServiceUnavailable
		}

		httputil.WriteJSON(w, code, map[string]any{
			"status":    status,
			"timestamp": time.Now().UnixMilli(),
			"streams":   broker.TotalClients(),
		})
	}
}

func setLogLevel(level string) {
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
