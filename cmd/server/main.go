package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lexdesk/backend/docs"
	appbilling "github.com/lexdesk/backend/internal/application/billing"
	"github.com/lexdesk/backend/internal/domain/billing"
	"github.com/lexdesk/backend/internal/domain/shared"
	"github.com/lexdesk/backend/internal/domain/shared/valueobject"
	"github.com/lexdesk/backend/internal/infrastructure/cache"
	"github.com/lexdesk/backend/internal/infrastructure/config"
	"github.com/lexdesk/backend/internal/infrastructure/event"
	"github.com/lexdesk/backend/internal/infrastructure/logger"
	"github.com/lexdesk/backend/internal/infrastructure/persistence"
	"github.com/lexdesk/backend/internal/infrastructure/printing"
	"github.com/lexdesk/backend/internal/infrastructure/rates"
	"github.com/lexdesk/backend/internal/infrastructure/storage"
	"github.com/lexdesk/backend/internal/infrastructure/telemetry"
	"github.com/lexdesk/backend/internal/interfaces/http/handler"
	"github.com/lexdesk/backend/internal/interfaces/http/middleware"
	"github.com/lexdesk/backend/internal/interfaces/http/router"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// version is stamped at build time with -ldflags "-X main.version=..."
var version = "dev"

const (
	shutdownTimeout  = 30 * time.Second
	rateLimiterIdle  = 10 * time.Minute
	meterName        = "lexdesk.billing"
	idempotencyScope = "contact_links"
)

//	@title			Lexdesk Billing API
//	@version		1.0
//	@description	Invoice lifecycle and multi-currency billing for law firm matters
//	@contact.name	Billing team

//	@host		localhost:8080
//	@BasePath	/api/v1

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting LexDesk billing",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx := context.Background()

	// Telemetry
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
		LinkProfiles:      cfg.Telemetry.ProfilingEnabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	log = lp.Bridge(log, cfg.Telemetry.ServiceName, logger.ParseLevel(cfg.Log.Level))
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	meter := mp.Meter(meterName)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Telemetry.ProfilingEnabled,
		ServerAddress:     cfg.Telemetry.ProfilerAddress,
		ApplicationName:   cfg.Telemetry.ServiceName,
		BasicAuthUser:     cfg.Telemetry.ProfilerAuthUser,
		BasicAuthPassword: cfg.Telemetry.ProfilerAuthToken,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Profiler stop failed", zap.Error(err))
		}
	}()

	// Database
	db, err := persistence.NewDatabase(&cfg.Database, log.Named("gorm"), logger.MapGormLogLevel(cfg.Log.Level))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected", zap.String("driver", db.Driver))

	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.App.Env == "development",
		SlowQueryThresh: cfg.Telemetry.SlowQueryThresh,
		DBSystem:        db.Driver,
	}, log)
	if err := dbTracing.Register(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to auto-migrate", zap.Error(err))
		}
		log.Info("Billing tables auto-migrated")
	}

	// Repositories
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	sourceRepo := persistence.NewGormSourceRepository(db.DB)
	contactLinks := persistence.NewGormContactLinkRepository(db.DB)
	txScope := persistence.NewGormTransactionScope(db.DB)

	// Cache: rate tables and event idempotency share one store
	store, err := cache.NewStoreFactory(cfg.Redis, cache.WithLogger(log)).CreateStore(ctx)
	if err != nil {
		log.Fatal("Failed to create cache store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	rules, allocator, aggregator := billingRules(cfg.Billing, cfg.Storage.KeyPrefix, log)

	documents := buildDocumentGenerator(cfg.Printing, log)
	defer func() { _ = documents.Close() }()

	objects := buildObjectStore(ctx, cfg.Storage, log)
	suggester := buildRateSuggester(cfg.Rates, cache.NewRateCache(store, cfg.Rates.CacheTTL), log)

	serviceCfg := appbilling.InvoiceServiceConfig{
		TxScope:    txScope,
		Invoices:   invoiceRepo,
		Payments:   paymentRepo,
		Sources:    sourceRepo,
		Allocator:  allocator,
		Aggregator: aggregator,
		Documents:  documents,
		Objects:    objects,
		Rules:      rules,
		Logger:     log.Named("invoice"),
	}
	// a nil *rates.Client must not become a non-nil interface
	if suggester != nil {
		serviceCfg.Rates = suggester
	}
	invoiceService := appbilling.NewInvoiceService(serviceCfg)

	// Event bus: contact links and billing metrics react to invoice events
	eventBus := event.NewInMemoryEventBus(log.Named("events"),
		event.WithWorkers(cfg.Events.Workers),
		event.WithQueueSize(cfg.Events.QueueSize),
		event.WithHandlerTimeout(cfg.Events.HandlerTimeout),
	)
	contactHandler := event.NewIdempotentHandler(
		appbilling.NewContactLinkHandler(sourceRepo, contactLinks, log.Named("contacts")),
		cache.NewIdempotencyStore(store),
		log,
		event.WithKeyScope(idempotencyScope),
		event.WithIdempotencyConfig(idempotencyConfig(cfg.Events.IdempotencyTTL)),
	)
	eventBus.Subscribe(contactHandler)

	if billingMetrics, err := telemetry.NewBillingMetrics(meter, log); err != nil {
		log.Warn("Billing metrics disabled", zap.Error(err))
	} else {
		eventBus.Subscribe(billingMetrics)
	}
	invoiceService.SetEventPublisher(eventBus)

	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}
	engine.Use(
		logger.Recovery(log),
		logger.GinMiddleware(log),
		middleware.Tracing(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		}),
		middleware.SpanEnricher(),
		middleware.SpanErrorMarker(),
		middleware.HTTPMetrics(meter, log),
		middleware.ProfilingLabels(profiler.IsEnabled()),
	)

	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateLimitBurst, rateLimiterIdle)
		defer limiter.Stop()
		engine.Use(middleware.RateLimit(limiter))
	}

	systemHandler := handler.NewSystemHandler(cfg.App.Name, version).
		AddCheck("database", true, db.Ping)
	if redisStore, ok := store.(*cache.RedisStore); ok {
		systemHandler.AddCheck("redis", false, redisStore.Ping)
	}

	engine.GET("/swagger/*any",
		middleware.SwaggerProtection(middleware.SwaggerConfig{
			Enabled:    cfg.HTTP.SwaggerEnabled,
			AllowedIPs: cfg.HTTP.SwaggerAllowedIPs,
		}),
		ginSwagger.WrapHandler(swaggerFiles.Handler),
	)

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(handler.InvoiceRoutes(handler.NewInvoiceHandler(invoiceService),
		middleware.BodyLimit(cfg.HTTP.MaxUploadSize))).
		Register(handler.ExchangeRateRoutes(handler.NewExchangeRateHandler(invoiceService))).
		Register(handler.SystemRoutes(systemHandler))
	r.Setup()

	for _, route := range r.Routes() {
		log.Debug("Route registered",
			zap.String("group", route.Group),
			zap.String("method", route.Method),
			zap.String("path", route.Path),
		)
	}

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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	// drain queued invoice events before the stores go away
	if err := eventBus.Stop(shutdownCtx); err != nil {
		log.Error("Event bus did not drain", zap.Error(err))
	}
	if err := mp.Shutdown(shutdownCtx); err != nil {
		log.Error("Meter provider shutdown failed", zap.Error(err))
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracer provider shutdown failed", zap.Error(err))
	}
	if err := lp.Shutdown(shutdownCtx); err != nil {
		log.Error("Logger provider shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// billingRules turns the billing section into service rules plus the
// number allocator and line item aggregator it drives.
func billingRules(cfg config.BillingConfig, keyPrefix string, log *zap.Logger) (appbilling.InvoiceRules, *billing.NumberAllocator, *billing.LineItemAggregator) {
	loc, err := cfg.Location()
	if err != nil {
		log.Fatal("Invalid reference timezone", zap.Error(err))
	}
	offices, err := billing.NewOfficeDirectory(cfg.Offices, cfg.DefaultOfficeCode)
	if err != nil {
		log.Fatal("Invalid office configuration", zap.Error(err))
	}

	defaultCurrency := mustCurrency(cfg.DefaultCurrency, log)
	var baseCurrency, expenseCurrency valueobject.Currency
	if cfg.BaseCurrency != "" {
		baseCurrency = mustCurrency(cfg.BaseCurrency, log)
	}
	if cfg.ExpenseCurrency != "" {
		expenseCurrency = mustCurrency(cfg.ExpenseCurrency, log)
	}
	supported, err := valueobject.NewCurrencySet(cfg.SupportedCurrencies...)
	if err != nil {
		log.Fatal("Invalid supported currencies", zap.Error(err))
	}

	rules := appbilling.InvoiceRules{
		DefaultCurrency:     defaultCurrency,
		BaseCurrency:        baseCurrency,
		SupportedCurrencies: supported,
		NumberRetryAttempts: cfg.NumberRetryAttempts,
		PaymentTermsDays:    cfg.PaymentTermsDays,
		Location:            loc,
		DocumentKeyPrefix:   keyPrefix,
	}
	return rules,
		billing.NewNumberAllocator(offices),
		billing.NewLineItemAggregator(defaultCurrency, expenseCurrency)
}

func mustCurrency(code string, log *zap.Logger) valueobject.Currency {
	c, err := valueobject.ParseCurrency(code)
	if err != nil {
		log.Fatal("Invalid currency in billing configuration", zap.String("currency", code), zap.Error(err))
	}
	return c
}

func idempotencyConfig(ttl time.Duration) shared.IdempotencyConfig {
	cfg := shared.DefaultIdempotencyConfig()
	if ttl > 0 {
		cfg.TTL = ttl
	}
	return cfg
}

// buildDocumentGenerator prints through headless Chrome, or serves the
// HTML itself when the html renderer is configured.
func buildDocumentGenerator(cfg config.PrintingConfig, log *zap.Logger) *printing.InvoiceDocumentGenerator {
	engine, err := printing.NewTemplateEngine()
	if err != nil {
		log.Fatal("Failed to parse invoice templates", zap.Error(err))
	}

	genCfg := printing.GeneratorConfig{
		Engine:      engine,
		FirmName:    cfg.FirmName,
		FirmAddress: cfg.FirmAddress,
		PaperSize:   printing.ParsePaperSize(cfg.PaperSize),
		Logger:      log.Named("printing"),
	}
	if cfg.Renderer == "chromedp" {
		genCfg.Renderer = printing.NewChromedpRenderer(printing.ChromedpConfig{
			DefaultTimeout: cfg.Timeout,
			ExecPath:       cfg.ChromePath,
			RemoteURL:      cfg.RemoteURL,
			NoSandbox:      cfg.NoSandbox,
			Logger:         log.Named("chromedp"),
		})
	}
	log.Info("Invoice documents configured", zap.String("renderer", cfg.Renderer))

	generator, err := printing.NewInvoiceDocumentGenerator(genCfg)
	if err != nil {
		log.Fatal("Failed to create document generator", zap.Error(err))
	}
	return generator
}

func buildObjectStore(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) appbilling.ObjectStore {
	if cfg.Driver != "s3" {
		log.Warn("Signed invoices are kept in memory; configure storage.driver=s3 for durable storage")
		return storage.NewStubObjectStore(cfg.PublicBaseURL)
	}
	s3Store, err := storage.NewS3ObjectStore(ctx, &cfg, storage.WithLogger(log.Named("storage")))
	if err != nil {
		log.Fatal("Failed to create S3 object store", zap.Error(err))
	}
	if err := s3Store.EnsureBucket(ctx); err != nil {
		log.Fatal("Signed invoice bucket is unavailable", zap.String("bucket", s3Store.Bucket()), zap.Error(err))
	}
	return s3Store
}

// buildRateSuggester returns nil when no provider is configured; rates are
// then entered by hand.
func buildRateSuggester(cfg config.RatesConfig, rateCache rates.Cache, log *zap.Logger) *rates.Client {
	if cfg.ProviderURL == "" {
		log.Info("Exchange rate suggestions disabled")
		return nil
	}
	client, err := rates.NewClient(rates.ClientConfig{
		BaseURL:           cfg.ProviderURL,
		APIKey:            cfg.APIKey,
		Timeout:           cfg.Timeout,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Cache:             rateCache,
		Logger:            log.Named("rates"),
	})
	if err != nil {
		log.Fatal("Invalid exchange rate provider", zap.Error(err))
	}
	return client
}
