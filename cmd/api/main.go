package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classforge/timetable-api/internal/engine"
	"github.com/classforge/timetable-api/internal/handler"
	"github.com/classforge/timetable-api/internal/middleware"
	"github.com/classforge/timetable-api/internal/models"
	"github.com/classforge/timetable-api/internal/repository"
	"github.com/classforge/timetable-api/internal/service"
	"github.com/classforge/timetable-api/pkg/cache"
	"github.com/classforge/timetable-api/pkg/config"
	"github.com/classforge/timetable-api/pkg/database"
	"github.com/classforge/timetable-api/pkg/logger"
	corsmiddleware "github.com/classforge/timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/classforge/timetable-api/pkg/middleware/requestid"
)

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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metricsService := service.NewMetricsService()

	var timetableCache service.Cache
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
		} else {
			defer redisClient.Close()
			timetableCache = service.NewRedisCache(redisClient, metricsService, logr)
		}
	}

	grid, err := engine.NewGrid(cfg.Timetable.Days, engine.DefaultSlots, cfg.Timetable.LunchBoundaryIndex)
	if err != nil {
		logr.Sugar().Fatalw("invalid timetable grid configuration", "error", err)
	}

	batchRepo := repository.NewBatchRepository(db)
	classroomRepo := repository.NewClassroomRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	facultyRepo := repository.NewFacultyRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)

	authService := service.NewAuthService(cfg.JWT)
	timetableService := service.NewTimetableService(
		batchRepo,
		classroomRepo,
		subjectRepo,
		facultyRepo,
		timetableRepo,
		db,
		grid,
		service.TimetableServiceConfig{
			AllowCapacityFallback: cfg.Timetable.AllowCapacityFallback,
			CacheTTL:              cfg.Timetable.CacheTTL,
		},
		nil,
		logr,
		timetableCache,
		metricsService,
	)

	timetableHandler := handler.NewTimetableHandler(timetableService)
	catalogHandler := handler.NewCatalogHandler(batchRepo, classroomRepo, subjectRepo, facultyRepo)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsService.Handler()))

	api := r.Group(cfg.APIPrefix)
	authenticated := api.Group("", middleware.JWT(authService))

	readRoles := middleware.RequireRoles(models.RoleAdmin, models.RoleScheduler, models.RoleViewer)
	writeRoles := middleware.RequireRoles(models.RoleAdmin, models.RoleScheduler)

	authenticated.GET("/batches", readRoles, catalogHandler.ListBatches)
	authenticated.GET("/batches/:id", readRoles, catalogHandler.GetBatch)
	authenticated.GET("/classrooms", readRoles, catalogHandler.ListClassrooms)
	authenticated.GET("/subjects/:id", readRoles, catalogHandler.GetSubject)
	authenticated.GET("/faculties", readRoles, catalogHandler.ListFaculties)

	authenticated.POST("/timetables/generate", writeRoles, timetableHandler.Generate)
	authenticated.GET("/timetables", readRoles, timetableHandler.List)
	authenticated.GET("/timetables/:id", readRoles, timetableHandler.Get)
	authenticated.GET("/timetables/:id/export", readRoles, timetableHandler.Export)
	authenticated.POST("/timetables/:id/commit", writeRoles, timetableHandler.Commit)
	authenticated.DELETE("/timetables/:id", writeRoles, timetableHandler.Delete)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
