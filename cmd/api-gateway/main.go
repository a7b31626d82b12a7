package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/voxen-api/api/swagger"
	"github.com/noah-isme/voxen-api/internal/handler"
	"github.com/noah-isme/voxen-api/internal/middleware"
	"github.com/noah-isme/voxen-api/internal/repository"
	"github.com/noah-isme/voxen-api/internal/service"
	"github.com/noah-isme/voxen-api/pkg/cache"
	"github.com/noah-isme/voxen-api/pkg/config"
	"github.com/noah-isme/voxen-api/pkg/database"
	"github.com/noah-isme/voxen-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/voxen-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/voxen-api/pkg/middleware/requestid"
)

// @title Voxen API
// @version 1.0.0
// @description Enrollment and monthly billing backend for a performing-arts school.
// @BasePath /api/v1
// @schemes http https
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, dashboard cache disabled", zap.Error(err))
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	clock := service.Clock{Location: cfg.Location()}
	validate := service.NewValidator()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, cfg.Dashboard.CacheEnabled)

	users := repository.NewUserRepository(db)
	students := repository.NewStudentRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	instructors := repository.NewInstructorRepository(db)
	payments := repository.NewPaymentRepository(db)

	authSvc := service.NewAuthService(service.AuthServiceParams{
		Users:     users,
		Validator: validate,
		Logger:    logr,
		Clock:     clock,
		Config: service.AuthConfig{
			Secret:     cfg.JWT.Secret,
			Issuer:     cfg.JWT.Issuer,
			AccessTTL:  cfg.JWT.Expiration,
			RefreshTTL: cfg.JWT.RefreshExpiration,
		},
	})
	studentSvc := service.NewStudentService(service.StudentServiceParams{
		Students:    students,
		Enrollments: enrollments,
		Instructors: instructors,
		Cache:       cacheSvc,
		Validator:   validate,
		Logger:      logr,
		Clock:       clock,
	})
	approvalSvc := service.NewApprovalService(students, metrics, clock, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollments, instructors, cacheSvc, validate, clock, logr)
	instructorSvc := service.NewInstructorService(instructors, validate, logr)
	billingSvc := service.NewBillingService(students, enrollments, payments, clock, logr)
	paymentSvc := service.NewPaymentService(service.PaymentServiceParams{
		Payments:  payments,
		Students:  students,
		Cache:     cacheSvc,
		Metrics:   metrics,
		Validator: validate,
		Logger:    logr,
		Clock:     clock,
	})
	exportSvc := service.NewExportService(billingSvc, clock, logr)
	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		Students:    students,
		Payments:    payments,
		Instructors: instructors,
		Trend:       enrollments,
		Cache:       cacheSvc,
		Logger:      logr,
		Clock:       clock,
		Config:      service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL},
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.WithResponseMeta())
	r.Use(middleware.Metrics(metrics, "/metrics", "/health", "/ready"))

	metricsHandler := handler.NewMetricsHandler(metrics, db)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if !cfg.IsProduction() {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r.Group(cfg.APIPrefix), handler.Handlers{
		Auth:        handler.NewAuthHandler(authSvc),
		Students:    handler.NewStudentHandler(studentSvc, approvalSvc),
		Enrollments: handler.NewEnrollmentHandler(enrollmentSvc),
		Instructors: handler.NewInstructorHandler(instructorSvc),
		Payments:    handler.NewPaymentHandler(billingSvc, paymentSvc, exportSvc),
		Dashboard:   handler.NewDashboardHandler(dashboardSvc),
		Billing:     handler.NewBillingHandler(billingSvc),
	}, handler.RouterDeps{Tokens: authSvc, Audit: users, Logger: logr})

	addr := cfg.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "prefix", cfg.APIPrefix)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
