package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appledger "github.com/erp/stockledger/internal/application/ledger"
	"github.com/erp/stockledger/internal/domain/ledger"
	"github.com/erp/stockledger/internal/infrastructure/auth"
	"github.com/erp/stockledger/internal/infrastructure/cache"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/event"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/persistence"
	"github.com/erp/stockledger/internal/infrastructure/scheduler"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/erp/stockledger/internal/interfaces/http/handler"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/erp/stockledger/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

//	@title			Stock Ledger API
//	@version		1.0
//	@description	Append-only movement ledger with derived stock aggregates

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(logger.FromAppConfig(cfg.App, cfg.Log))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting stock ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx := context.Background()

	// Telemetry: traces then metrics. Disabled providers are no-ops.
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	ledgerMetrics, err := telemetry.NewLedgerMetrics(meterProvider.Meter("stockledger/ledger"))
	if err != nil {
		log.Fatal("Failed to register ledger metrics", zap.Error(err))
	}

	// Create GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))

	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	if cfg.Database.Driver == "sqlite" || cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to migrate schema", zap.Error(err))
		}
	}
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		DBSystem:        cfg.Database.Driver,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
	}, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	// Stock cache backend
	store, err := cache.NewStockAggregateStoreFactory(cfg.Cache, cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateStore()
	if err != nil {
		log.Fatal("Failed to create stock cache store", zap.Error(err))
	}

	negativeProducts, err := cfg.Ledger.NegativeStockProducts()
	if err != nil {
		log.Fatal("Invalid ledger configuration", zap.Error(err))
	}
	policy := ledger.NewNegativeStockPolicy(cfg.Ledger.AllowNegativeStock, negativeProducts...)

	// Ledger services
	movementRepo := persistence.NewGormMovementRepository(db.DB)
	scope := persistence.NewGormTransactionScope(db.DB)

	stockCache := appledger.NewStockCache(store, movementRepo, log)
	stockCache.SetMetrics(ledgerMetrics)

	eventBus := event.NewInMemoryEventBus(log)
	eventBus.Subscribe(appledger.NewCacheRefreshHandler(stockCache, log))
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	generator := appledger.NewGeneratorService(movementRepo, scope, policy, log)
	generator.SetEventPublisher(eventBus)
	generator.SetMetrics(ledgerMetrics)
	generator.SetWriteTimeout(cfg.Ledger.WriteTimeout)

	reversals := appledger.NewReversalService(scope, log)
	reversals.SetEventPublisher(eventBus)
	reversals.SetMetrics(ledgerMetrics)

	reports := appledger.NewReportService(movementRepo, cfg.Ledger.MaxPageSize)
	reports.SetDefaultPageSize(cfg.Ledger.DefaultPageSize)

	stockService := appledger.NewStockService(movementRepo, stockCache, cfg.Cache.RefreshOnRead, log)
	traceService := appledger.NewTraceService(movementRepo)
	cacheAdmin := appledger.NewCacheAdminService(stockCache)

	if cfg.Cache.WarmUp {
		warmCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		built, err := cacheAdmin.WarmUp(warmCtx, nil)
		cancel()
		if err != nil {
			// Reads fall back to the store until entries are rebuilt
			log.Warn("Stock cache warm-up incomplete", zap.Int("entries", built), zap.Error(err))
		} else {
			log.Info("Stock cache warmed", zap.Int("entries", built))
		}
	}

	verifier := scheduler.NewCacheVerifier(stockCache, log, scheduler.CacheVerifierConfig{
		Enabled:  cfg.Cache.VerifyEnabled,
		Interval: cfg.Cache.VerifyInterval,
		Sample:   cfg.Cache.VerifySample,
		Timeout:  scheduler.DefaultCacheVerifierConfig().Timeout,
	})
	if err := verifier.Start(ctx); err != nil {
		log.Fatal("Failed to start cache verifier", zap.Error(err))
	}

	// HTTP layer
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		}),
		middleware.SpanErrorMarker(),
		middleware.HTTPMetrics(meterProvider),
		middleware.CORSWithConfig(corsCfg),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	checks := map[string]handler.Pinger{"database": db}
	if pinger, ok := store.(handler.Pinger); ok {
		checks["cache"] = pinger
	}
	systemHandler := handler.NewSystemHandler(cfg.App.Name, version, checks)
	router.RegisterProbes(engine, systemHandler)

	var (
		apiMiddleware []gin.HandlerFunc
		guards        router.Guards
	)
	if cfg.JWT.Enabled {
		jwtCfg := middleware.DefaultJWTConfig(auth.NewJWTService(cfg.JWT))
		jwtCfg.Logger = log
		apiMiddleware = append(apiMiddleware,
			middleware.JWTAuthMiddlewareWithConfig(jwtCfg),
			middleware.TracingAttributeInjector(),
		)
		guards = router.Guards{
			Reverse: middleware.RequireRole(log, cfg.JWT.ReversalRole),
			Admin:   middleware.RequireRole(log, cfg.JWT.AdminRole),
		}
	} else {
		log.Warn("JWT authentication disabled; privileged routes are open")
		apiMiddleware = append(apiMiddleware, middleware.TracingAttributeInjector())
	}

	router.NewRouter(engine, router.WithMiddleware(apiMiddleware...)).
		RegisterGroups(router.LedgerGroups(router.LedgerHandlers{
			Movements:  handler.NewMovementHandler(generator, reports),
			Stock:      handler.NewStockHandler(stockService, reports),
			Reversals:  handler.NewReversalHandler(reversals),
			Trace:      handler.NewTraceHandler(traceService),
			CacheAdmin: handler.NewCacheAdminHandler(cacheAdmin),
			System:     systemHandler,
		}, guards)...).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := verifier.Stop(shutdownCtx); err != nil {
		log.Error("Cache verifier did not stop cleanly", zap.Error(err))
	}
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Error("Event bus did not stop cleanly", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Meter provider shutdown failed", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracer provider shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
