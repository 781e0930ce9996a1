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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-council-planner/api/swagger"
	"github.com/noah-isme/sma-council-planner/internal/handler"
	"github.com/noah-isme/sma-council-planner/internal/middleware"
	"github.com/noah-isme/sma-council-planner/internal/repository"
	"github.com/noah-isme/sma-council-planner/internal/service"
	"github.com/noah-isme/sma-council-planner/pkg/cache"
	"github.com/noah-isme/sma-council-planner/pkg/config"
	"github.com/noah-isme/sma-council-planner/pkg/database"
	"github.com/noah-isme/sma-council-planner/pkg/jobs"
	"github.com/noah-isme/sma-council-planner/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-council-planner/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-council-planner/pkg/middleware/requestid"
	"github.com/noah-isme/sma-council-planner/pkg/storage"
)

const (
	planCachePrefix = "council:plan:"
	dependencyWait  = 5 * time.Second
	shutdownTimeout = 15 * time.Second
)

// @title SMA Council Planner API
// @version 1.0.0
// @description Groups class letters into class council tables so no teacher sits twice in a row.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey ServiceToken
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
	sugar := logr.Sugar()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()
	validate := validator.New()
	checks := map[string]handler.ReadinessCheck{}

	var (
		planStore service.PlanRunStore   = service.NewMemoryPlanRunStore(cfg.Planner.ResultTTL)
		jobStore  service.ExportJobStore = service.NewMemoryExportJobStore()
		cacheRepo service.CacheRepository
	)

	if cfg.History.Enabled {
		dbCtx, cancel := context.WithTimeout(ctx, dependencyWait)
		db, err := database.NewPostgres(dbCtx, cfg.Database, repository.Schema)
		cancel()
		if err != nil {
			sugar.Warnw("plan history disabled, falling back to memory", "error", err)
		} else {
			defer db.Close()
			planStore = repository.NewPlanRunRepository(db)
			jobStore = repository.NewExportJobRepository(db)
			checks["postgres"] = db.PingContext
			sugar.Infow("plan history enabled", "host", cfg.Database.Host, "database", cfg.Database.Name)
		}
	}

	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis, dependencyWait)
		if err != nil {
			sugar.Warnw("plan cache disabled", "error", err)
		} else {
			repo := repository.NewCacheRepository(client, planCachePrefix)
			defer repo.Close() //nolint:errcheck
			cacheRepo = repo
			checks["redis"] = repo.Ping
			sugar.Infow("plan cache enabled", "addr", client.Options().Addr, "ttl", cfg.Cache.TTL)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, cacheRepo != nil)

	planner := service.NewCouncilPlannerService(planStore, cacheSvc, metrics, validate, logr, service.CouncilPlannerConfig{
		TeacherColumn:   cfg.Planner.TeacherColumn,
		MaxGroupSize:    cfg.Planner.MaxGroupSize,
		CacheTTL:        cfg.Cache.TTL,
		ResultTTL:       cfg.Planner.ResultTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
	})

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		sugar.Fatalw("failed to prepare export storage", "dir", cfg.Exports.StorageDir, "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exporter := service.NewExportService(planStore, files, signer, metrics, service.ExportConfig{
		APIPrefix:  cfg.APIPrefix,
		ResultTTL:  cfg.Exports.SignedURLTTL,
		PDFEnabled: cfg.Planner.PDFEnabled,
	}, logr, nil, nil, nil)

	worker := service.NewExportWorker(jobStore, exporter, cfg.Exports.WorkerRetries, logr)
	var exportJobs *service.ExportJobService
	queue := jobs.NewQueue("council-exports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		Logger:     logr,
		OnGiveUp: func(job jobs.Job, err error) {
			exportJobs.MarkGivenUp(job, err)
		},
	})
	exportJobs = service.NewExportJobService(jobStore, planStore, queue, exporter, validate, logr, service.ExportJobConfig{
		ResultTTL:       cfg.Exports.SignedURLTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
	})

	queue.Start(ctx)
	defer queue.Stop()
	exportJobs.RecoverPendingJobs(ctx)
	exportJobs.StartCleanup(ctx)
	planner.StartCleanup(ctx)

	var tokens *service.TokenService
	if cfg.Auth.Enabled {
		tokens = service.NewTokenService(validate, logr, service.TokenConfig{
			Secret:     cfg.Auth.Secret,
			Expiration: cfg.Auth.Expiration,
			Issuer:     cfg.Auth.Issuer,
		})
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.RouteDeps{
		Council: handler.NewCouncilHandler(planner, exporter, exportJobs, handler.CouncilHandlerConfig{
			APIPrefix:      cfg.APIPrefix,
			Delimiter:      cfg.Planner.Delimiter,
			MaxUploadBytes: cfg.Planner.MaxUploadBytes,
		}),
		Metrics: handler.NewMetricsHandler(metrics, checks),
		Tokens:  tokens,
		Logger:  logr,
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "auth", cfg.Auth.Enabled, "history", cfg.History.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	sugar.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}
