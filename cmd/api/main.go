package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/ims-api/api/swagger"
	"github.com/noah-isme/ims-api/internal/handler"
	"github.com/noah-isme/ims-api/internal/middleware"
	"github.com/noah-isme/ims-api/internal/models"
	"github.com/noah-isme/ims-api/internal/repository"
	"github.com/noah-isme/ims-api/internal/service"
	"github.com/noah-isme/ims-api/pkg/cache"
	"github.com/noah-isme/ims-api/pkg/config"
	"github.com/noah-isme/ims-api/pkg/database"
	"github.com/noah-isme/ims-api/pkg/export"
	"github.com/noah-isme/ims-api/pkg/jobs"
	"github.com/noah-isme/ims-api/pkg/logger"
	"github.com/noah-isme/ims-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/ims-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/ims-api/pkg/middleware/requestid"
	"github.com/noah-isme/ims-api/pkg/scheduler"
	"github.com/noah-isme/ims-api/pkg/storage"
)

// @title Institute Management API
// @version 1.0.0
// @description Backend for institute operations: students, courses, batches, attendance, certificates, fees, stock and messaging.
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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	var cacheRepo service.CacheRepository
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Certificates.VerifyCacheTTL, logr, cacheRepo != nil)

	certStore, err := storage.NewLocalStorage(cfg.Certificates.StorageDir)
	if err != nil {
		return fmt.Errorf("init certificate storage: %w", err)
	}
	renderer := export.NewDocumentRenderer(cfg.Mail.FromName)
	signer := storage.NewSignedURLSigner(cfg.Certificates.SignedURLSecret, cfg.Certificates.SignedURLTTL)
	mail := mailer.New(cfg.Mail.Enabled, cfg.Mail.SendgridKey, cfg.Mail.FromName, cfg.Mail.FromAddress, logr)

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	certificateRepo := repository.NewCertificateRepository(db)
	financeRepo := repository.NewFinanceRepository(db)
	reminderRepo := repository.NewReminderRepository(db)
	stockRepo := repository.NewStockRepository(db)
	messagingRepo := repository.NewMessagingRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	// Services.
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "ims-api",
	})
	studentSvc := service.NewStudentService(studentRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, validate, logr)
	batchSvc := service.NewBatchService(batchRepo, courseRepo, courseRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, batchRepo, courseRepo, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, batchRepo, enrollmentSvc, validate, logr)
	certificateSvc := service.NewCertificateService(certificateRepo, enrollmentRepo, cacheSvc, renderer, certStore, cfg.Certificates.VerifyCacheTTL, validate, logr)
	financeSvc := service.NewFinanceService(financeRepo, studentRepo, courseRepo, renderer, certStore, validate, logr)
	reminderSvc := service.NewReminderService(reminderRepo, enrollmentRepo, studentRepo, financeSvc, mail, cfg.Reminders.ThrottleDays, validate, logr)
	stockSvc := service.NewStockService(stockRepo, validate, logr)
	messagingSvc := service.NewMessagingService(messagingRepo, studentRepo, validate, logr)
	notificationSvc := service.NewNotificationService(notificationRepo, batchRepo, validate, logr)

	// Background PDF rendering.
	queueCfg := jobs.QueueConfig{
		Workers:    cfg.Certificates.WorkerConcurrency,
		BufferSize: 64,
		MaxRetries: cfg.Certificates.WorkerRetries,
		RetryDelay: 5 * time.Second,
		Logger:     logr,
	}
	certQueue := jobs.NewQueue("certificate-pdf", certificateSvc.HandlePDFJob, queueCfg)
	receiptQueue := jobs.NewQueue("receipt-pdf", financeSvc.HandlePDFJob, queueCfg)
	certificateSvc.AttachPDFQueue(certQueue)
	financeSvc.AttachPDFQueue(receiptQueue)
	certificateSvc.AttachSigner(signer)
	financeSvc.AttachSigner(signer)
	financeSvc.AttachReminderCheck(reminderSvc)
	certQueue.Start(ctx)
	receiptQueue.Start(ctx)
	defer certQueue.Stop()
	defer receiptQueue.Stop()

	// Scheduled reminder sweep.
	if cfg.Reminders.SweepEnabled {
		sched := scheduler.New(10*time.Minute, logr)
		if err := sched.Add(cfg.Reminders.SweepCron, "reminder-sweep", func(ctx context.Context) error {
			sent, err := reminderSvc.Sweep(ctx)
			if err != nil {
				return err
			}
			logr.Info("reminder sweep finished", zap.Int("reminders_sent", sent))
			return nil
		}); err != nil {
			return fmt.Errorf("schedule reminder sweep: %w", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	batchHandler := handler.NewBatchHandler(batchSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	certificateHandler := handler.NewCertificateHandler(certificateSvc)
	financeHandler := handler.NewFinanceHandler(financeSvc)
	reminderHandler := handler.NewReminderHandler(reminderSvc)
	stockHandler := handler.NewStockHandler(stockSvc)
	messagingHandler := handler.NewMessagingHandler(messagingSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	fileHandler := handler.NewFileHandler(signer, certStore)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Public endpoints.
	api.GET("/verify/:hash", certificateHandler.Verify)
	api.GET("/files/:token", fileHandler.Download)
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)
	api.POST("/auth/forgot-password", authHandler.ForgotPassword)
	api.POST("/auth/reset-password", authHandler.ResetPassword)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	authed.GET("/auth/me", authHandler.Me)
	authed.POST("/auth/logout", authHandler.Logout)
	authed.POST("/auth/change-password", authHandler.ChangePassword)

	authed.GET("/students", staff, studentHandler.List)
	authed.GET("/students/:id", staff, studentHandler.Get)
	authed.POST("/students", staff, studentHandler.Create)
	authed.PUT("/students/:id", staff, studentHandler.Update)
	authed.DELETE("/students/:id", adminOnly, studentHandler.Delete)
	authed.PUT("/students/:id/reactivate", adminOnly, studentHandler.Reactivate)
	authed.POST("/students/:id/measurements", staff, studentHandler.CreateMeasurement)
	authed.GET("/students/:id/measurements", staff, studentHandler.ListMeasurements)

	authed.GET("/enquiries", staff, studentHandler.ListEnquiries)
	authed.POST("/enquiries", staff, studentHandler.CreateEnquiry)
	authed.PUT("/enquiries/:id", staff, studentHandler.UpdateEnquiry)

	authed.GET("/courses", courseHandler.List)
	authed.GET("/courses/:id", courseHandler.Get)
	authed.POST("/courses", staff, courseHandler.Create)
	authed.PUT("/courses/:id", staff, courseHandler.Update)

	authed.GET("/trainers", staff, courseHandler.ListTrainers)
	authed.GET("/trainers/:id", staff, courseHandler.GetTrainer)
	authed.POST("/trainers", staff, courseHandler.CreateTrainer)

	authed.GET("/batches", batchHandler.List)
	authed.GET("/batches/:id", batchHandler.Get)
	authed.POST("/batches", staff, batchHandler.Create)

	authed.GET("/enrollments", staff, enrollmentHandler.List)
	authed.GET("/enrollments/progress", enrollmentHandler.Progress)
	authed.GET("/enrollments/:id", staff, enrollmentHandler.Get)
	authed.POST("/enrollments", staff, enrollmentHandler.Create)
	authed.PUT("/enrollments/:id/drop", staff, enrollmentHandler.Drop)
	authed.POST("/enrollments/recheck", staff, enrollmentHandler.Recheck)

	authed.GET("/attendance/sheets", staff, attendanceHandler.List)
	authed.GET("/attendance/sheets/:id", staff, attendanceHandler.Get)
	authed.POST("/attendance/sheets", staff, attendanceHandler.Create)
	authed.PUT("/attendance/sheets/:id/entries", staff, attendanceHandler.ReplaceEntries)

	authed.GET("/certificates", staff, certificateHandler.List)
	authed.GET("/certificates/check", staff, certificateHandler.CheckIssuance)
	authed.GET("/certificates/:id", staff, certificateHandler.Get)
	authed.GET("/certificates/:id/download", staff, certificateHandler.DownloadLink)
	authed.POST("/certificates", staff, middleware.Audit(userRepo, "issue", "certificate"), certificateHandler.Issue)
	authed.PUT("/certificates/:id/revoke", adminOnly, middleware.Audit(userRepo, "revoke", "certificate"), certificateHandler.Revoke)
	authed.PUT("/certificates/:id/unrevoke", adminOnly, middleware.Audit(userRepo, "unrevoke", "certificate"), certificateHandler.Unrevoke)

	authed.GET("/fees/receipts", staff, financeHandler.ListReceipts)
	authed.GET("/fees/receipts/export", staff, financeHandler.ExportReceipts)
	authed.GET("/fees/receipts/:id", staff, financeHandler.GetReceipt)
	authed.GET("/fees/receipts/:id/download", staff, financeHandler.ReceiptDownloadLink)
	authed.POST("/fees/receipts", staff, middleware.Audit(userRepo, "create", "receipt"), financeHandler.CreateReceipt)
	authed.PUT("/fees/receipts/:id/lock", adminOnly, middleware.Audit(userRepo, "lock", "receipt"), financeHandler.LockReceipt)
	authed.GET("/fees/outstanding", staff, financeHandler.Outstanding)
	authed.GET("/fees/outstanding/course/:id", staff, financeHandler.CourseOutstanding)

	authed.GET("/expenses", staff, financeHandler.ListExpenses)
	authed.POST("/expenses", staff, financeHandler.CreateExpense)

	authed.GET("/analytics/finance/summary", staff, financeHandler.FinanceSummary)
	authed.GET("/analytics/finance/income-expense", staff, financeHandler.IncomeExpenseTrend)
	authed.GET("/analytics/finance/course/:id", staff, financeHandler.CourseIncome)
	authed.GET("/analytics/system", adminOnly, metricsHandler.SystemMetrics)

	authed.GET("/reminders", staff, reminderHandler.List)
	authed.POST("/reminders", staff, reminderHandler.Send)
	authed.POST("/reminders/sweep", adminOnly, reminderHandler.Sweep)

	authed.GET("/stock/items", staff, stockHandler.List)
	authed.GET("/stock/items/:id", staff, stockHandler.Get)
	authed.POST("/stock/items", staff, stockHandler.Create)
	authed.PUT("/stock/items/:id", staff, stockHandler.Update)
	authed.POST("/stock/items/:id/adjust", staff, stockHandler.Adjust)
	authed.GET("/stock/items/:id/transactions", staff, stockHandler.Transactions)

	authed.GET("/conversations", staff, messagingHandler.ListConversations)
	authed.GET("/conversations/:studentId", messagingHandler.Thread)
	authed.POST("/conversations/:studentId/messages", messagingHandler.Send)

	authed.GET("/announcements", notificationHandler.List)
	authed.POST("/announcements", staff, notificationHandler.Create)
	authed.POST("/announcements/:id/read", notificationHandler.MarkRead)
	authed.GET("/announcements/:id/receipts", staff, notificationHandler.Receipts)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
