package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "dispatchdesk/docs"
	"dispatchdesk/internal/config"
	"dispatchdesk/internal/db"
	"dispatchdesk/internal/handlers"
	"dispatchdesk/internal/middleware"
	"dispatchdesk/internal/ratelimit"
	"dispatchdesk/internal/repositories"
	"dispatchdesk/internal/routes"
	"dispatchdesk/internal/services"
)

type stores struct {
	attempts    repositories.VerificationAttemptRepository
	users       repositories.UserRepository
	links       repositories.TelegramLinkRepository
	invitations repositories.EmployeeInvitationRepository
}

func Run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	_ = tgbotapi.SetLogger(zap.NewStdLog(logger.Named("tgbotapi")))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === DB ===
	var (
		st     stores
		dbConn *sql.DB
	)
	if cfg.Database.DSN != "" {
		dbConn, err = db.Open(ctx, cfg.Database.DSN, db.Options{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: 30 * time.Minute,
		}, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := dbConn.Close(); err != nil {
				logger.Warn("[db][close] failed", zap.Error(err))
			}
		}()
		if cfg.Database.AutoMigrate {
			if err := db.EnsureSchema(ctx, dbConn); err != nil {
				return err
			}
		}
		st = stores{
			attempts:    repositories.NewVerificationAttemptRepository(dbConn),
			users:       repositories.NewUserRepository(dbConn),
			links:       repositories.NewTelegramLinkRepository(dbConn),
			invitations: repositories.NewEmployeeInvitationRepository(dbConn),
		}
	} else {
		logger.Warn("[db][init] DATABASE_URL is empty, using in-memory stores")
		st = stores{
			attempts:    repositories.NewMemoryVerificationAttemptRepository(),
			users:       repositories.NewMemoryUserRepository(),
			links:       repositories.NewMemoryTelegramLinkRepository(),
			invitations: repositories.NewMemoryEmployeeInvitationRepository(),
		}
	}

	// === Rate limit ===
	limiter, closeLimiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	// === Telegram ===
	tg, err := services.NewTelegramService(services.TelegramOptions{
		Token:       cfg.Telegram.BotToken,
		Username:    cfg.Telegram.BotUsername,
		APIEndpoint: cfg.Telegram.APIEndpoint,
		HTTPTimeout: cfg.Telegram.HTTPTimeout,
		PollTimeout: cfg.Telegram.PollTimeout,
	}, logger)
	if err != nil {
		return err
	}
	dispatcher := services.NewMessageDispatcher(tg, 256, cfg.Telegram.HTTPTimeout, logger)

	// === Services ===
	userService := services.NewUserService(st.users, logger)
	verificationService := services.NewVerificationService(
		st.attempts,
		userService,
		st.links,
		services.NewInvitationAssignmentHook(st.invitations, logger),
		dispatcher,
		tg,
		limiter,
		services.VerificationConfig{
			LinkTTL:     cfg.Verification.LinkTTL,
			CodeTTL:     cfg.Verification.CodeTTL,
			MaxAttempts: cfg.Verification.MaxAttempts,
		},
		logger,
	)
	tokenService := services.NewTokenService(cfg.JWT.Secret, cfg.JWT.TTL, "dispatchdesk")
	updateRouter := services.NewUpdateRouter(verificationService, dispatcher, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
	}()

	var integrationsHandler *handlers.IntegrationsHandler
	switch cfg.Telegram.Mode {
	case config.TelegramModeWebhook:
		if err := tg.SetWebhook(cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			return err
		}
		integrationsHandler = handlers.NewIntegrationsHandler(updateRouter, cfg.Telegram.WebhookSecret, logger)
	default:
		if err := tg.DeleteWebhook(); err != nil {
			logger.Warn("[tg][init] deleteWebhook failed, polling may be rejected", zap.Error(err))
		}
		poller := services.NewUpdatePoller(tg, updateRouter, services.PollerConfig{
			Interval:    cfg.Telegram.PollInterval,
			PollTimeout: cfg.Telegram.PollTimeout,
		}, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
		}()
	}

	// === Handlers ===
	verificationHandler := handlers.NewVerificationHandler(verificationService, tokenService, logger)
	userHandler := handlers.NewUserHandler(userService, logger)
	healthHandler := handlers.NewHealthHandler(nil)
	if dbConn != nil {
		healthHandler = handlers.NewHealthHandler(dbConn)
	}

	// === Gin ===
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS())
	routes.SetupRoutes(router, tokenService, verificationHandler, userHandler, healthHandler, integrationsHandler)

	// === Run ===
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("[http][start] listening", zap.String("addr", srv.Addr), zap.String("telegram_mode", cfg.Telegram.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("[http][stop] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("[http][stop] shutdown", zap.Error(err))
	}
	stop()
	wg.Wait()
	return nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Log.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	zcfg.Level = level
	return zcfg.Build()
}

func newLimiter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ratelimit.Limiter, func(), error) {
	limit, window := cfg.Verification.RequestLimit, cfg.Verification.RequestWindow
	if cfg.Redis.URL == "" {
		return ratelimit.NewMemoryLimiter(limit, window), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("[ratelimit][init] redis ping failed, limiter fails open until it recovers", zap.Error(err))
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("[ratelimit][close] redis", zap.Error(err))
		}
	}
	return ratelimit.NewRedisLimiter(client, limit, window, "otp:request", logger), closeFn, nil
}
