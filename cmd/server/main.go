package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"apache-log-sentinel/internal/config"
	"apache-log-sentinel/internal/database"
	"apache-log-sentinel/internal/handler"
	"apache-log-sentinel/internal/ingest"
	"apache-log-sentinel/internal/metrics"
	apimiddleware "apache-log-sentinel/internal/middleware"
	"apache-log-sentinel/internal/model"
	"apache-log-sentinel/internal/parser"
	"apache-log-sentinel/internal/scheduler"
	"apache-log-sentinel/internal/service"
	"apache-log-sentinel/internal/store"
	"apache-log-sentinel/pkg/cache"
)

func main() {
	cfg := config.Load()

	// Initialize the record store
	var st store.Store
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		log.Println("Connected to database")

		// Run database migrations
		if err := db.RunMigrations(); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}

		st = store.NewPostgresStore(db.DB)
	case config.StoreBackendMemory:
		st = store.NewMemStore()
	default:
		log.Fatalf("Unknown STORE_BACKEND %q (expected %q or %q)",
			cfg.StoreBackend, config.StoreBackendMemory, config.StoreBackendPostgres)
	}

	// Initialize Redis cache
	redisCache, err := cache.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Printf("Warning: Failed to initialize Redis cache: %v", err)
		// Continue without cache - graceful degradation
	} else {
		defer redisCache.Close()
		log.Println("Redis cache client initialized")
	}

	// Resolve the access-log line parser
	logParser, err := parser.Resolve(cfg.LogFormat)
	if err != nil {
		log.Fatalf("Invalid LOG_FORMAT: %v", err)
	}
	log.Printf("Using log format %q", cfg.LogFormat)

	// Initialize services
	geoipService := service.NewGeoIPService(cfg.GeoIPCityPath, cfg.GeoIPASNPath)
	defer geoipService.Close()

	appMetrics := metrics.New()

	anomalyService := service.NewAnomalyService(st)
	profileService := service.NewProfileService(st)
	systemStatsService := service.NewSystemStatsService()

	analysisService := service.NewAnalysisService(st, ingest.NewIngester(logParser), service.NewAbuseService(), anomalyService)
	analysisService.SetMetrics(appMetrics)
	analysisService.SetGeoIP(geoipService)

	// Initial ingest and analysis pass
	if len(cfg.LogFiles) == 0 {
		log.Println("Warning: LOG_FILES not set, starting with an empty dataset")
	} else {
		runCtx, cancelRun := context.WithTimeout(context.Background(), 5*time.Minute)
		run, err := analysisService.Run(runCtx, cfg.LogFiles, model.RunTriggerStartup)
		cancelRun()
		if err != nil {
			log.Printf("Warning: Startup analysis failed: %v", err)
		} else {
			log.Printf("Startup analysis completed: %d records parsed, %d lines failed (%dms)",
				run.ParsedRecords, run.FailedLines, run.DurationMS)
		}
	}

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(cfg.StoreBackend, analysisService, systemStatsService, redisCache)
	systemHandler := handler.NewSystemHandler(systemStatsService)
	recordsHandler := handler.NewRecordsHandler(analysisService)
	columnsHandler := handler.NewColumnsHandler(profileService)
	analysisHandler := handler.NewAnalysisHandler(analysisService, anomalyService, geoipService, redisCache, cfg.LogFiles)

	// Initialize schedulers
	analysisScheduler := scheduler.NewAnalysisScheduler(analysisService, anomalyService, redisCache, cfg.LogFiles, cfg.AnalysisCron)
	analysisScheduler.Start()

	retentionScheduler := scheduler.NewRetentionScheduler(st, cfg.RetentionDays)
	if cfg.StoreBackend == config.StoreBackendPostgres {
		retentionScheduler.Start()
	}

	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(config.BodyLimit))

	// CORS configuration - use environment variable or default to same-origin only
	corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	var allowedOrigins []string
	if corsOrigins != "" {
		// Parse comma-separated origins from environment variable
		for _, origin := range strings.Split(corsOrigins, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" && origin != "*" { // Reject wildcard for security
				allowedOrigins = append(allowedOrigins, origin)
			}
		}
	}
	// If no valid origins configured, allow common development origins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	// Security headers middleware
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "SAMEORIGIN",
		HSTSMaxAge:            config.HSTSMaxAge,
		ContentSecurityPolicy: "default-src 'self'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))

	// Rate limiting middleware - configurable via environment
	rateLimitEnabled := os.Getenv("RATE_LIMIT_ENABLED") != "false"
	if rateLimitEnabled {
		// Default: 100 requests per second per IP
		rateLimit := 100.0
		if rl := os.Getenv("RATE_LIMIT_RPS"); rl != "" {
			if parsed, err := strconv.ParseFloat(rl, 64); err == nil && parsed > 0 {
				rateLimit = parsed
			}
		}
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(rateLimit))))
	}

	// Request metrics
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}
			appMetrics.IncrementRequest(c.Request().Method, c.Path(), status)
			appMetrics.RecordLatency(c.Request().Method, c.Path(), time.Since(start).Seconds())
			return err
		}
	})

	// Routes
	e.GET("/health", healthHandler.Health)
	e.GET("/metrics", echo.WrapHandler(appMetrics.Handler()))

	api := e.Group("/api")
	api.Use(apimiddleware.APIRateLimit(redisCache, apimiddleware.DefaultAPIRateLimitConfig()))

	api.GET("/system", systemHandler.GetSystem)
	api.GET("/records", recordsHandler.GetRecords)

	api.GET("/columns", columnsHandler.GetColumns)
	api.GET("/columns/:name", columnsHandler.GetColumn)
	api.POST("/columns/group", columnsHandler.AnalyzeColumnGroup)

	api.GET("/abuse-patterns", analysisHandler.GetAbusePatterns)
	api.GET("/top-threats", analysisHandler.GetTopThreats)
	api.GET("/anomalies", analysisHandler.GetAnomalies)
	api.GET("/security-summary", analysisHandler.GetSecuritySummary)
	api.GET("/runs", analysisHandler.GetRuns)
	api.POST("/reload", analysisHandler.Reload, apimiddleware.RequireAPIToken(cfg.APIToken, cfg.APITokenHash))

	// Setup graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		analysisScheduler.Stop()
		retentionScheduler.Stop()
		if err := st.Close(); err != nil {
			log.Printf("Warning: store close failed: %v", err)
		}
		e.Close()
	}()

	log.Printf("Starting server on port %s", cfg.Port)
	if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
