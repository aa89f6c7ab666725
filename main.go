package main

import (
	"context"
	"net/http"
	"time"

	"bite-me-buddy/config"
	"bite-me-buddy/handlers"
	"bite-me-buddy/middleware"
	"bite-me-buddy/notify"
	"bite-me-buddy/routes"
	"bite-me-buddy/services"
	"bite-me-buddy/session"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	log := config.NewLogger(cfg)

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	db, err := config.OpenDB(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to initialise database")
	}
	log.WithField("driver", cfg.DBDriver).Info("database ready")

	// Redis is optional: without it tokens cannot be revoked and the catalog is not cached
	var store *session.Store
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		store, err = session.Connect(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		cancel()
		if err != nil {
			log.WithError(err).WithField("addr", cfg.RedisAddr).Warn("redis unavailable, continuing without it")
			store = nil
		} else {
			defer store.Close()
		}
	}

	var sender notify.Sender = notify.LogSender{Log: log}
	if cfg.TwilioSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioPhoneNumber != "" {
		sender = notify.NewTwilioSender(cfg.TwilioSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber)
	} else {
		log.Warn("twilio not configured, SMS will be logged only")
	}
	notifier := notify.NewNotifier(sender, cfg.NotifyTimeout, cfg.DefaultCountryCode, cfg.AppName, log)

	loc := cfg.ReportLocation()
	users := services.NewUserService(db, store, loc, log)
	if cfg.AdminUsername != "" && cfg.AdminPassword != "" {
		seedAdmin(users, cfg, log)
	}

	tokens := middleware.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL, store, log)
	h := handlers.New(handlers.Deps{
		Orders: services.NewOrderService(db, notifier, services.OTPPolicy{
			Expire:      cfg.OTPExpire,
			MaxAttempts: cfg.OTPMaxAttempts,
		}, log),
		Catalog: services.NewCatalogService(db, store, cfg.CatalogCacheTTL, log),
		Users:   users,
		Plans:   services.NewPlanService(db, loc, log),
		Stats:   services.NewStatsService(db, loc),
		Tokens:  tokens,
		Log:     log,
	})

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(log))

	// CORS middleware for frontend integration
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Request-ID")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": cfg.AppName,
			"redis":   store != nil,
		})
	})

	routes.SetupRoutes(r, h, tokens, middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))

	log.WithField("port", cfg.AppPort).Info("server starting")
	if err := r.Run(":" + cfg.AppPort); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func seedAdmin(users *services.UserService, cfg *config.Config, log *logrus.Logger) {
	admin, created, err := users.EnsureAdmin(context.Background(), services.RegisterRequest{
		Name:     cfg.AdminName,
		Username: cfg.AdminUsername,
		Password: cfg.AdminPassword,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to seed admin account")
	}
	if created {
		log.WithField("username", admin.Username).Info("admin account created")
	}
}
