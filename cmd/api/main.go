package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/saludpro/backoffice-api/internal/config"
	"github.com/saludpro/backoffice-api/internal/email"
	authhandler "github.com/saludpro/backoffice-api/internal/handler/auth"
	patienthandler "github.com/saludpro/backoffice-api/internal/handler/patient"
	rbachandler "github.com/saludpro/backoffice-api/internal/handler/rbac"
	userhandler "github.com/saludpro/backoffice-api/internal/handler/user"
	"github.com/saludpro/backoffice-api/internal/middleware"
	"github.com/saludpro/backoffice-api/internal/repository/postgres"
	"github.com/saludpro/backoffice-api/internal/router"
	authservice "github.com/saludpro/backoffice-api/internal/service/auth"
	patientservice "github.com/saludpro/backoffice-api/internal/service/patient"
	rbacservice "github.com/saludpro/backoffice-api/internal/service/rbac"
	userservice "github.com/saludpro/backoffice-api/internal/service/user"
	"github.com/saludpro/backoffice-api/pkg/auth"
	"github.com/saludpro/backoffice-api/pkg/logger"
	"github.com/saludpro/backoffice-api/pkg/messaging"
	redisbroker "github.com/saludpro/backoffice-api/pkg/messaging/redis"
	"github.com/saludpro/backoffice-api/pkg/metrics"
	"github.com/saludpro/backoffice-api/pkg/security"
	"github.com/saludpro/backoffice-api/pkg/worker"
)

func main() {
	// .env is optional; real deployments inject env vars directly
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	appLogger := logger.NewLogger(&logger.Config{
		Level:      level,
		TimeFormat: time.RFC3339,
		Pretty:     cfg.Log.Pretty,
	})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.MigrationsPath != "" {
		if err := postgres.Migrate(db, cfg.Database.MigrationsPath); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	// Repositories
	base := postgres.NewBaseRepository(db)
	userRepo := postgres.NewUserRepository(base)
	rbacRepo := postgres.NewRBACRepository(base)
	patientRepo := postgres.NewPatientRepository(base)
	outboxRepo := postgres.NewOutboxRepository(base)

	// Services
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	hasher := security.NewBcryptHasher(0)

	var mailer email.Service = email.NoopService{}
	if cfg.SMTP.Host != "" {
		mailer = email.NewSMTPService(email.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	}

	rbacSvc := rbacservice.NewService(rbacRepo)
	authSvc := authservice.NewService(userRepo, rbacSvc, jwtSvc, hasher)
	userSvc := userservice.NewService(userRepo, rbacSvc, mailer, appLogger)
	patientSvc := patientservice.NewService(patientRepo)

	// Metrics and middleware
	m := metrics.NewMetrics("backoffice")
	authMiddleware := middleware.NewAuthMiddleware(jwtSvc, userRepo, rbacSvc)

	// Handlers
	authHandler := authhandler.NewHandler(authSvc)
	userHandler := userhandler.NewHandler(userSvc, authSvc)
	patientHandler := patienthandler.NewHandler(patientSvc)
	rbacHandler := rbachandler.NewHandler(rbacSvc)

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.Server.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	}

	r := router.NewRouter(
		authMiddleware,
		authHandler,
		userHandler,
		patientHandler,
		rbacHandler,
		m,
		db,
		router.Config{
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			RateLimitEnabled: cfg.RateLimit.Enabled,
			CORSConfig:       corsConfig,
			RequestTimeout:   time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		},
	)
	r.Setup()

	// Outbox processor drains domain events to the broker
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	if cfg.Outbox.Enabled {
		var broker messaging.Broker = messaging.NoopBroker{}
		if cfg.Redis.Enabled {
			broker, err = redisbroker.NewRedisBroker(redisbroker.Config{URL: cfg.Redis.URL}, appLogger.Zerolog())
			if err != nil {
				log.Fatal().Err(err).Msg("failed to connect to Redis")
			}
		}
		defer broker.Close()

		processor := worker.NewOutboxProcessor(outboxRepo, broker, worker.OutboxProcessorConfig{
			BatchSize:    cfg.Outbox.BatchSize,
			PollInterval: cfg.Outbox.PollInterval,
		}, appLogger, m)
		go processor.Start(workerCtx)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		appLogger.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down server")

	stopWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	appLogger.Info("server exited properly")
}
