package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/farazbot/backend/config"
	"github.com/farazbot/backend/internal/approval"
	"github.com/farazbot/backend/internal/auth"
	"github.com/farazbot/backend/internal/cache"
	"github.com/farazbot/backend/internal/handlers"
	"github.com/farazbot/backend/internal/matcher"
	"github.com/farazbot/backend/internal/middleware"
	"github.com/farazbot/backend/internal/moderator"
	"github.com/farazbot/backend/internal/platform"
	"github.com/farazbot/backend/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Pending entries outlive their timer slightly so the timer always wins the race
const storeGrace = 30 * time.Second

func main() {
	logger := logrus.New()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load config")
	}
	setupLogger(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to Redis
	redis, err := cache.NewRedisClient(cfg.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.WithError(err).Warn("failed to connect to Redis, running with local event feed and limiter")
		redis = nil
	} else {
		defer redis.Close()
	}

	hub := websocket.NewHub(redis, logger)
	go hub.Run(ctx)

	var events approval.Publisher = hub
	var shared middleware.ActionLimiter
	if redis != nil {
		events = redis
		shared = redis
	}

	discord, err := platform.NewDiscord(cfg.Discord.Token, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to create discord session")
	}

	rules := matcher.NewRules(cfg.Moderation.BannedWords, cfg.Moderation.SevereTriggers)
	store := approval.NewStore(cfg.Moderation.MaxPendingApprovals, cfg.Moderation.ApprovalTimeout+storeGrace)
	workflow := approval.NewWorkflow(approval.Config{
		ModLogChannelID: cfg.Discord.ModLogChannelID,
		Action:          cfg.Moderation.ActionOnApproval,
		Timeout:         cfg.Moderation.ApprovalTimeout,
	}, store, discord, events, logger)
	defer workflow.Close()

	if !workflow.Enabled() {
		logger.Warn("MOD_LOG_CHANNEL_ID is not set, severe and link hits will only be deleted")
	}

	commandLimiter := middleware.NewRateLimiter(cfg.Moderation.CommandRatePerSecond)
	commandLimiter.Cleanup(ctx)

	bot := moderator.NewBot(moderator.Config{
		Prefix:           cfg.Discord.CommandPrefix,
		BotName:          cfg.Discord.BotName,
		ServerName:       cfg.Discord.ServerName,
		WelcomeChannelID: cfg.Discord.WelcomeChannelID,
		WarningTTL:       cfg.Moderation.WarningTTL,
	}, rules, discord, workflow, events,
		middleware.NewSharedLimiter(shared, "command", cfg.Moderation.CommandRatePerSecond, commandLimiter, logger),
		logger)

	discord.Bind(bot)
	if err := discord.Open(); err != nil {
		logger.WithError(err).Fatal("failed to connect to discord")
	}
	defer discord.Close()

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: newRouter(ctx, cfg, rules, store, hub, logger),
	}
	go func() {
		logger.WithFields(logrus.Fields{"addr": srv.Addr, "env": cfg.Server.Env}).Info("starting admin server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("admin server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("admin server shutdown")
	}
}

func setupLogger(logger *logrus.Logger, cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithField("level", cfg.LogLevel).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.IsProduction() {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func newRouter(ctx context.Context, cfg *config.Config, rules *matcher.Rules, store *approval.Store, hub *websocket.Hub, logger logrus.FieldLogger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpiryHours)
	wsHandler := websocket.NewHandler(hub, jwtService, cfg.CORS.AllowedOrigins)
	rulesHandler := handlers.NewRulesHandler(rules, logger)
	approvalHandler := handlers.NewApprovalHandler(store)
	tokenHandler := handlers.NewTokenHandler(jwtService)

	rateLimiter := middleware.NewRateLimiter(float64(cfg.API.RateLimitPerSecond))
	rateLimiter.Cleanup(ctx)
	apiKey := middleware.APIKeyMiddleware(cfg.API.KeyHeader, cfg.API.Key)

	router := gin.New()
	router.Use(gin.Recovery())

	// Middleware
	router.Use(middleware.CORSMiddleware(cfg.CORS.AllowedOrigins))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Dashboard tokens
	router.POST("/auth/token", apiKey, tokenHandler.IssueToken)

	// Live moderation feed
	router.GET("/ws", wsHandler.HandleWebSocket)

	// Protected routes
	api := router.Group("/api/v1")
	api.Use(apiKey, middleware.RateLimitMiddleware(rateLimiter))
	{
		rulesHandler.Register(api)
		api.GET("/pending", approvalHandler.ListPending)
		api.GET("/dashboards", wsHandler.GetDashboards)
	}

	return router
}
