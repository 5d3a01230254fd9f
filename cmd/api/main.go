package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sciencefair-api/internal/config"
	"github.com/noah-isme/sciencefair-api/internal/database"
	"github.com/noah-isme/sciencefair-api/internal/handler"
	"github.com/noah-isme/sciencefair-api/internal/middleware"
	"github.com/noah-isme/sciencefair-api/internal/models"
	"github.com/noah-isme/sciencefair-api/internal/repository"
	"github.com/noah-isme/sciencefair-api/internal/router"
	"github.com/noah-isme/sciencefair-api/internal/service"
	cloud "github.com/noah-isme/sciencefair-api/pkg/cloudinary"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && level != zerolog.NoLevel {
		logger = logger.Level(level)
	}

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := db.AutoMigrate(&models.FormSubmission{}, &models.FormParticipant{}, &models.Project{}, &models.ActivityLog{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not configured; summary cache and cross-node fan-out disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Close()
	}

	uploader, err := cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create cloudinary client")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	formRepo := repository.NewFormRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)
	gateService := service.NewProjectGateService(formRepo, projectRepo, redisClient, validate, activityService, service.ProjectGateConfig{
		SummaryTTL:  cfg.SummaryCacheTTL,
		EnforceGate: cfg.EnforceProjectGate,
	}, logger)
	hub := service.NewFormHub(formRepo, redisClient, cfg.RealtimeChannel, natsConn, logger)

	workflow := service.FormWorkflowConfig{
		MaxUploadMB:     cfg.UploadMaxMB,
		ConflictRetries: cfg.ConflictRetries,
	}
	listeners := []service.FormChangeListener{hub, gateService}

	formHandler := handler.NewFormHandler(handler.FormServices{
		Versions:  service.NewFormVersionService(formRepo, uploader, validate, activityService, workflow, logger, listeners...),
		Reviewers: service.NewReviewerService(formRepo, validate, activityService, workflow, logger, listeners...),
		Reviews:   service.NewReviewService(formRepo, validate, activityService, workflow, logger, listeners...),
		Queries:   service.NewFormQueryService(formRepo, validate, logger),
		Hub:       hub,
	}, logger)
	projectHandler := handler.NewProjectHandler(gateService, logger)
	activityHandler := handler.NewActivityHandler(activityService, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	hub.Start(ctx)

	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	if natsConn != nil {
		probes["nats"] = func(ctx context.Context) error { return natsConn.FlushWithContext(ctx) }
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.UploadMaxMB + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		FormHandler:     formHandler,
		ProjectHandler:  projectHandler,
		ActivityHandler: activityHandler,
		HealthProbes:    probes,
		JWTMiddleware:   middleware.JWTProtected(cfg.JWTSecret),
		UploadRateLimit: cfg.UploadRatePerMinute,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(ctx, app, logger)
}

func waitForShutdown(ctx context.Context, app *fiber.App, logger zerolog.Logger) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
