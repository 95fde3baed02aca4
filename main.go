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

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"lagerverwaltung/server/internal/api"
	"lagerverwaltung/server/internal/config"
	"lagerverwaltung/server/internal/database"
	"lagerverwaltung/server/internal/logger"
	"lagerverwaltung/server/internal/models"
	"lagerverwaltung/server/internal/services"
	"lagerverwaltung/server/internal/utils"
)

func main() {
	// A missing .env is fine, production sets real environment variables
	envErr := godotenv.Load()

	cfg := config.Load()

	zl, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	if envErr != nil {
		zl.Debug(".env not found, using process environment")
	}
	zl.Info("starting lagerverwaltung",
		zap.String("environment", cfg.Environment),
		zap.String("database", cfg.SafeDatabaseURL()))

	db, err := database.Connect(cfg.DatabaseURL, zl)
	if err != nil {
		zl.Fatal("failed to connect database", zap.Error(err))
	}
	if err := models.AutoMigrate(db); err != nil {
		zl.Fatal("failed to migrate database", zap.Error(err))
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL, zl)
	if err != nil {
		// Redis only caches settings and limits logins
		zl.Warn("Redis unavailable, continuing without cache", zap.Error(err))
		redisClient = nil
	}
	cache := utils.NewRedisClient(redisClient)

	publisher := services.NewEventPublisher(services.KafkaConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaTopic,
		Username: cfg.KafkaUsername,
		Password: cfg.KafkaPassword,
		CACert:   cfg.KafkaCACert,
	}, zl)

	alerter := services.NewStockAlerter(services.MailConfig{
		Server:    cfg.Mail.Server,
		Port:      cfg.Mail.Port,
		Username:  cfg.Mail.Username,
		Password:  cfg.Mail.Password,
		Sender:    cfg.Mail.Sender,
		Recipient: cfg.Mail.Recipient,
	}, zl)
	if alerter == nil {
		zl.Info("mail not configured, low-stock alerts disabled")
	}

	settings := services.NewSettingsService(db, cache, zl, cfg.EnableUserManagement)
	pricing := services.NewPricingService(db)
	users := services.NewUserService(db, zl)

	ctx := context.Background()
	if settings.UserManagementEnabled(ctx) {
		if _, err := users.EnsureAdmin(ctx); err != nil {
			zl.Fatal("failed to create initial admin", zap.Error(err))
		}
	}

	stock := services.NewStockService(db, zl)
	stock.SetPublisher(publisher)
	stock.SetAlerter(alerter)

	orders := services.NewOrderService(db, zl)
	orders.SetPublisher(publisher)

	importer := services.NewImportService(db, pricing, settings, zl)
	importer.SetPublisher(publisher)

	backups := services.NewBackupService(db, zl)
	backups.SetMaxMemberSize(int64(cfg.UploadMaxMB) << 20)
	backups.SetPublisher(publisher)

	hub := api.NewHub(zl)
	go hub.Run()

	messages := services.NewMessageService(db, zl)
	messages.SetNotifier(hub)

	router, err := api.NewRouter(api.Dependencies{
		Config:   cfg,
		Logger:   zl,
		Cache:    cache,
		Hub:      hub,
		Settings: settings,
		Pricing:  pricing,
		Articles: services.NewArticleService(db, pricing, zl),
		Stock:    stock,
		Orders:   orders,
		Labels:   services.NewLabelService(settings),
		Importer: importer,
		Exporter: services.NewExportService(db),
		Backups:  backups,
		Cleanup:  services.NewCleanupService(db, zl),
		Users:    users,
		Messages: messages,
		Activity: services.NewActivityService(db, zl),
	})
	if err != nil {
		zl.Fatal("failed to build router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zl.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zl.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := publisher.Close(); err != nil {
		zl.Error("failed to close event publisher", zap.Error(err))
	}
	if err := database.CloseRedis(redisClient); err != nil {
		zl.Error("failed to close Redis", zap.Error(err))
	}
	if err := database.Close(db); err != nil {
		zl.Error("failed to close database", zap.Error(err))
	}
}
