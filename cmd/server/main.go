package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"valuemap/server/config"
	"valuemap/server/internal/api"
	"valuemap/server/internal/database"
	"valuemap/server/internal/processor"
	"valuemap/server/internal/queue"
	"valuemap/server/internal/scheduler"
)

func main() {
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	loc, err := cfg.Location()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load ingest time zone")
	}

	logger.WithFields(logrus.Fields{
		"driver": cfg.Database.Driver,
		"dsn":    cfg.RedactedDSN(),
	}).Info("Opening database")
	gdb, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open database")
	}

	logger.Info("Running database migrations...")
	if err := database.MigrateSchema(gdb); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}
	db := database.NewDatabase(gdb, loc, logger)
	defer db.Close()

	recordQueue := queue.NewRecordQueue(cfg.BatchProcessing.QueueSize, cfg.BatchProcessing.ProcessorCount, logger)
	batchProcessor := processor.NewBatchProcessor(gdb, recordQueue, cfg, logger)
	batchProcessor.Start()

	sweeper := scheduler.NewScheduler(db, cfg.SweepInterval(), cfg.StaleAfter(), logger)
	sweeper.Start()

	handler, err := api.NewHandler(db, recordQueue, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create API handler")
	}

	if level < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	api.SetupRoutes(router, handler)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Infof("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	sweeper.Stop()
	batchProcessor.Stop()
	logger.Info("Server stopped")
}
