package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/room-access-api/api/swagger"
	"github.com/noah-isme/room-access-api/internal/handler"
	"github.com/noah-isme/room-access-api/internal/repository"
	"github.com/noah-isme/room-access-api/internal/service"
	"github.com/noah-isme/room-access-api/pkg/cache"
	"github.com/noah-isme/room-access-api/pkg/config"
	"github.com/noah-isme/room-access-api/pkg/database"
	"github.com/noah-isme/room-access-api/pkg/events"
	"github.com/noah-isme/room-access-api/pkg/export"
	"github.com/noah-isme/room-access-api/pkg/jobs"
	"github.com/noah-isme/room-access-api/pkg/logger"
)

// @title Room Access API
// @version 1.0.0
// @description Room access requests, approvals, one-time access codes and gate records
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		applied, err := database.Migrate(ctx, db)
		if err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
		logr.Info("migrations applied", zap.Int("count", applied))
	}

	redisClient := connectRedis(cfg, logr)
	if redisClient != nil {
		defer redisClient.Close()
	}

	publisher := connectPublisher(cfg, logr)
	defer publisher.Close()

	metrics := service.NewMetricsService()
	app := buildApp(cfg, db, redisClient, publisher, metrics, logr)

	app.queue.Start(ctx)
	app.sweeper.Start(ctx)

	router := newRouter(cfg, app, logr)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	app.sweeper.Stop()
	app.queue.Stop()
}

type application struct {
	db       *sqlx.DB
	redis    *redis.Client
	metrics  *service.MetricsService
	auth     *service.AuthService
	rooms    *service.RoomService
	access   *service.AccessService
	records  *service.AccessRecordService
	issuer   *service.AccessCodeIssuer
	exporter *service.ExportService
	sweeper  *service.ExpirySweeper
	queue    *jobs.Queue
}

func buildApp(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, publisher events.Publisher, metrics *service.MetricsService, logr *zap.Logger) *application {
	validate := service.NewValidator()

	users := repository.NewUserRepository(db)
	rooms := repository.NewRoomRepository(db)
	requests := repository.NewAccessRequestRepository(db)
	approvals := repository.NewApprovalRepository(db)
	codes := repository.NewAccessCodeRepository(db)
	records := repository.NewAccessRecordRepository(db)

	eventSvc := service.NewEventService(publisher, metrics, logr)
	queue := jobs.NewQueue("domain-events", eventSvc.Handle, jobs.QueueConfig{
		Workers:      cfg.Events.Workers,
		MaxRetries:   cfg.Events.MaxRetries,
		RetryDelay:   time.Second,
		Logger:       logr,
		OnDeadLetter: eventSvc.DeadLetter,
	})
	eventSvc.SetQueue(queue)

	cacheSvc := service.NewCacheService(repository.NewCacheRepository(redisClient, "roomaccess", logr), metrics, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)

	issuer := service.NewAccessCodeIssuer(codes, service.IssuerConfig{
		GracePeriod: cfg.Access.GracePeriod,
		CodeLength:  cfg.Access.CodeLength,
		MaxAttempts: cfg.Access.IssueMaxAttempts,
		Timeout:     cfg.Access.IssueTimeout,
	}, metrics, logr)

	access := service.NewAccessService(requests, approvals, rooms, codes, issuer, users, validate, logr,
		service.WithAccessEvents(eventSvc), service.WithAccessMetrics(metrics))

	recordOpts := []service.AccessRecordOption{service.WithRecordEvents(eventSvc), service.WithRecordMetrics(metrics)}
	if redisClient != nil {
		recordOpts = append(recordOpts, service.WithRecordDedupe(repository.NewDedupeRepository(redisClient), cfg.Access.DedupeWindow))
	}

	return &application{
		db:       db,
		redis:    redisClient,
		metrics:  metrics,
		auth:     service.NewAuthService(users, service.AcceptAllGate{}, validate, logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, AccessTokenExpiry: cfg.JWT.Expiration, Issuer: cfg.JWT.Issuer}),
		rooms:    service.NewRoomService(rooms, users, cacheSvc, users, validate, logr),
		access:   access,
		records:  service.NewAccessRecordService(records, issuer, validate, logr, recordOpts...),
		issuer:   issuer,
		exporter: service.NewExportService(records, users, logr, export.NewCSVExporter(), export.NewPDFExporter()),
		sweeper:  service.NewExpirySweeper(access, cfg.Access.ExpirySweepInterval, logr),
		queue:    queue,
	}
}

func (a *application) readinessChecks() map[string]handler.Pinger {
	checks := map[string]handler.Pinger{"postgres": a.db}
	if a.redis != nil {
		checks["redis"] = cache.Pinger{Client: a.redis}
	}
	return checks
}

// connectRedis returns nil when Redis is unreachable. The service then runs
// without the read cache and relies on the database for event dedupe.
func connectRedis(cfg *config.Config, logr *zap.Logger) *redis.Client {
	client, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, continuing without cache and dedupe window", zap.Error(err))
		return nil
	}
	return client
}

func connectPublisher(cfg *config.Config, logr *zap.Logger) events.Publisher {
	if !cfg.Events.Enabled {
		return events.NopPublisher{}
	}
	publisher, err := events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, logr)
	if err != nil {
		logr.Warn("nats unavailable, domain events disabled", zap.Error(err))
		return events.NopPublisher{}
	}
	return publisher
}
