package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/acadia-labs/registrar-api/api/swagger"
	"github.com/acadia-labs/registrar-api/internal/handler"
	"github.com/acadia-labs/registrar-api/internal/middleware"
	"github.com/acadia-labs/registrar-api/internal/models"
	"github.com/acadia-labs/registrar-api/internal/repository"
	"github.com/acadia-labs/registrar-api/internal/service"
	"github.com/acadia-labs/registrar-api/pkg/cache"
	"github.com/acadia-labs/registrar-api/pkg/config"
	"github.com/acadia-labs/registrar-api/pkg/database"
	"github.com/acadia-labs/registrar-api/pkg/logger"
	corsmiddleware "github.com/acadia-labs/registrar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/acadia-labs/registrar-api/pkg/middleware/requestid"
)

// @title Registrar API
// @version 1.0.0
// @description Student enrollment and academic records service
// @BasePath /api
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	var cacheRepo *repository.CacheRepository
	if cfg.Catalog.CacheEnabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, catalog cache disabled", zap.Error(err))
		} else {
			cacheRepo = repository.NewCacheRepository(client, logr)
			defer cacheRepo.Close() //nolint:errcheck
		}
	}

	departmentRepo := repository.NewDepartmentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	userRepo := repository.NewUserRepository(db)

	validate := validator.New()

	departmentSvc := service.NewDepartmentService(departmentRepo, validate, logr)
	var courseSvc *service.CourseService
	if cacheRepo != nil {
		courseSvc = service.NewCourseService(courseRepo, departmentRepo, cacheRepo, cfg.Catalog.CacheTTL, validate, logr)
	} else {
		courseSvc = service.NewCourseService(courseRepo, departmentRepo, nil, cfg.Catalog.CacheTTL, validate, logr)
	}
	studentSvc := service.NewStudentService(studentRepo, enrollmentRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, studentRepo, courseRepo, userRepo,
		cfg.Enrollment.CourseCapacity, cfg.Enrollment.BulkGradeTimeout, validate, logr)
	authSvc := service.NewAuthService(userRepo, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	}, validate, logr)
	metricsSvc := service.NewMetricsService()
	enrollmentSvc.WithMetrics(metricsSvc)

	departmentHandler := handler.NewDepartmentHandler(departmentSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	authHandler := handler.NewAuthHandler(authSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		start := time.Now()
		err := db.Ping()
		metricsSvc.ObserveDBQuery("ping", time.Since(start))
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("", middleware.JWT(authSvc))
	writers := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar)

	departments := authed.Group("/departments")
	{
		departments.GET("", departmentHandler.List)
		departments.GET("/:id", departmentHandler.Get)
		departments.GET("/code/:code", departmentHandler.GetByCode)
		departments.POST("", writers, departmentHandler.Create)
		departments.PUT("/:id", writers, departmentHandler.Update)
		departments.DELETE("/:id", writers, departmentHandler.Delete)
	}

	courses := authed.Group("/courses")
	{
		courses.GET("", courseHandler.List)
		courses.GET("/:id", courseHandler.Get)
		courses.GET("/code/:code", courseHandler.GetByCode)
		courses.POST("", writers, courseHandler.Create)
		courses.PUT("/:id", writers, courseHandler.Update)
		courses.DELETE("/:id", writers, courseHandler.Delete)
	}

	students := authed.Group("/students")
	{
		students.GET("", studentHandler.List)
		students.GET("/:id", studentHandler.Get)
		students.GET("/:id/transcript", studentHandler.Transcript)
		students.POST("", writers, studentHandler.Create)
		students.PUT("/:id", writers, studentHandler.Update)
		students.DELETE("/:id", writers, studentHandler.Delete)
	}

	enrollments := authed.Group("/enrollments")
	{
		enrollments.GET("", enrollmentHandler.List)
		enrollments.GET("/export", enrollmentHandler.Export)
		enrollments.GET("/:id", enrollmentHandler.Get)
		enrollments.POST("", writers, enrollmentHandler.Enroll)
		enrollments.POST("/batch", writers, enrollmentHandler.EnrollBatch)
		enrollments.POST("/bulk-grade", writers, enrollmentHandler.BulkGrade)
		enrollments.PUT("/:id/grade", writers, enrollmentHandler.PostGrade)
		enrollments.PUT("/:id/attendance", writers, enrollmentHandler.UpdateAttendance)
		enrollments.POST("/:id/drop", writers, enrollmentHandler.Drop)
		enrollments.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), enrollmentHandler.Delete)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
