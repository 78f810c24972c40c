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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/arnoma/tutor-admin-api/api/swagger"
	"github.com/arnoma/tutor-admin-api/internal/app"
	"github.com/arnoma/tutor-admin-api/internal/cron"
	"github.com/arnoma/tutor-admin-api/internal/handler"
	"github.com/arnoma/tutor-admin-api/internal/middleware"
	"github.com/arnoma/tutor-admin-api/pkg/config"
	"github.com/arnoma/tutor-admin-api/pkg/logger"
	corsmiddleware "github.com/arnoma/tutor-admin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/arnoma/tutor-admin-api/pkg/middleware/requestid"
)

// @title Tutor Admin API
// @version 1.0.0
// @description Roster, payment ledger and class reconciliation for a tutoring admin console
// @BasePath /api/v1
// @schemes http

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

	a, err := app.New(cfg, logr)
	if err != nil {
		logr.Fatal("failed to build application", zap.Error(err))
	}
	defer a.Close()

	a.Queue.Start(ctx)
	a.Reports.RecoverPendingJobs(ctx)

	var scheduler *cron.Scheduler
	if cfg.Cron.Enabled {
		scheduler, err = cron.New(cron.Schedule{
			AutoLink: cfg.Cron.AutoLinkSpec,
			Cleanup:  cfg.Cron.CleanupSpec,
			Location: cfg.Reconcile.Location(),
		}, a.Queue, logr)
		if err != nil {
			logr.Fatal("invalid cron schedule", zap.Error(err))
		}
		scheduler.Start()
	} else {
		a.Reports.StartCleanup(ctx)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, a, logr),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

func newRouter(cfg *config.Config, a *app.App, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.Metrics))
	r.Use(middleware.WithResponseMeta())

	checks := make(map[string]handler.ReadinessCheck)
	for name, check := range a.ReadinessChecks() {
		checks[name] = check
	}
	ops := handler.NewMetricsHandler(a.Metrics, checks)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	students := handler.NewStudentHandler(a.Students)
	reconciliation := handler.NewReconciliationHandler(a.Reconciliation)
	notes := handler.NewNoteHandler(a.Notes)
	payments := handler.NewPaymentHandler(a.Payments, a.Linker)
	reports := handler.NewReportHandler(a.Reports)

	api := r.Group(cfg.APIPrefix)
	{
		st := api.Group("/students")
		st.GET("", students.List)
		st.POST("", students.Create)
		st.GET("/:id", students.Get)
		st.PUT("/:id", students.Update)
		st.DELETE("/:id", students.Delete)
		st.GET("/:id/calendar", reconciliation.Calendar)
		st.GET("/:id/classes/:date", reconciliation.ClassStatus)
		st.GET("/:id/balance", reconciliation.Balance)
		st.POST("/:id/markers", reconciliation.AddMarker)
		st.GET("/:id/notes", notes.List)

		api.GET("/notes/download", notes.Download)

		pay := api.Group("/payments")
		pay.GET("", payments.List)
		pay.POST("", payments.Record)
		pay.POST("/auto-link", payments.AutoLink)
		pay.PATCH("/:id/status", payments.UpdateStatus)
		pay.DELETE("/:id", payments.Delete)

		rep := api.Group("/reports")
		rep.POST("/unpaid", reports.Unpaid)
		rep.POST("/payments", reports.Payments)
		rep.GET("/download", reports.Download)
		rep.GET("/:id", reports.Status)
	}
	return r
}
