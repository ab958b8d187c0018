package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	_ "github.com/lib/pq" // PostgreSQL driver

	"bindery/internal/broker"
	"bindery/internal/config"
	"bindery/internal/constants"
	"bindery/internal/enforcement"
	"bindery/internal/logger"
	"bindery/internal/management"
	"bindery/internal/rules"
	"bindery/internal/usage"
	"bindery/pkg/bootstrap"
	"bindery/pkg/health"
	"bindery/pkg/middleware"
	"bindery/pkg/migrations"
	"bindery/pkg/ratelimit"
	"bindery/pkg/tracing"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type App struct {
	config         *config.Config
	logger         logger.Logger
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	redisClient    *redis.Client
	mongoClient    *mongo.Client
	ruleRepo       rules.Repository
	usageStore     usage.Store
	ruleCache      *enforcement.Cache
	sweeper        *usage.Sweeper
	consumer       broker.Consumer
	producer       broker.Producer
	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		config:      cfg,
		logger:      log,
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initEnforcement(ctx); err != nil {
		return fmt.Errorf("failed to initialize enforcement: %w", err)
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	if err := a.initServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	tp, err := tracing.Init(a.config.Tracing, constants.EnforcementLoggerService)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	redisClient, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redisClient = redisClient

	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return err
	}
	a.mongoClient = mongoClient

	if a.config.Database.RunMigrations {
		if a.db != nil {
			if err := migrations.RunPostgres(a.db, "file://migrations/postgres"); err != nil {
				return err
			}
			a.logger.InfowCtx(ctx, "PostgreSQL migrations applied")
		}
		if a.mongoClient != nil {
			dbName := a.mongoDatabaseName()
			if err := migrations.EnsureRuleIndexes(ctx, a.mongoClient.Database(dbName)); err != nil {
				return err
			}
			a.logger.InfowCtx(ctx, "MongoDB indexes ensured", "database", dbName)
		}
	}

	return nil
}

func (a *App) mongoDatabaseName() string {
	if a.config.Database.MongoDB.Database != "" {
		return a.config.Database.MongoDB.Database
	}
	return constants.DefaultMongoDBName
}

func (a *App) initEnforcement(ctx context.Context) error {
	switch a.config.Enforcement.RuleBackend {
	case constants.RuleBackendMongoDB:
		if a.mongoClient == nil {
			return fmt.Errorf("rule backend is %q but no MongoDB URI is configured", constants.RuleBackendMongoDB)
		}
		a.ruleRepo = rules.NewMongoRepository(a.mongoClient.Database(a.mongoDatabaseName()))
	default:
		if a.db == nil {
			return fmt.Errorf("rule backend is %q but no PostgreSQL host is configured", constants.RuleBackendPostgres)
		}
		a.ruleRepo = rules.NewPostgresRepository(a.db)
	}

	var store usage.Store = usage.NewRedisStore(a.redisClient)
	if a.config.CircuitBreaker.Enabled {
		store = usage.NewCircuitBreakerStore(store, a.config.CircuitBreaker)
		a.logger.InfowCtx(ctx, "Usage store circuit breaker enabled")
	}
	a.usageStore = store

	reloadInterval := time.Duration(a.config.Enforcement.CacheReloadSeconds) * time.Second
	a.ruleCache = enforcement.NewCache(a.ruleRepo, reloadInterval, a.logger)
	if err := a.ruleCache.Load(ctx); err != nil {
		return fmt.Errorf("initial rule catalog load failed: %w", err)
	}

	if a.config.Enforcement.SweepIntervalSeconds > 0 {
		sweepInterval := time.Duration(a.config.Enforcement.SweepIntervalSeconds) * time.Second
		a.sweeper = usage.NewSweeper(a.usageStore, sweepInterval, a.logger)
	}

	if a.config.Broker.Type == "kafka" {
		consumer, err := broker.NewConsumer(a.config.Broker, a.logger)
		if err != nil {
			a.logger.WarnwCtx(ctx, "Failed to create rule change consumer, relying on interval reloads", "error", err)
		} else {
			a.consumer = consumer
		}

		producer, err := broker.NewProducer(a.config.Broker, a.logger)
		if err != nil {
			a.logger.WarnwCtx(ctx, "Failed to create rule event producer, rule change events will be disabled", "error", err)
		} else {
			a.producer = producer
		}
	}

	return nil
}

func (a *App) ruleChangeTopic() string {
	if a.config.Broker.Kafka.RuleChangeTopic != "" {
		return a.config.Broker.Kafka.RuleChangeTopic
	}
	return constants.DefaultRuleChangeTopic
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.EnforcementLoggerService))
	}

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())

	if a.config.Management.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             a.config.Management.RateLimit.RPS,
			Burst:           a.config.Management.RateLimit.Burst,
			CleanupInterval: time.Duration(a.config.Management.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.config.Management.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
		a.logger.InfowCtx(context.Background(), "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	router.Use(management.ActorMiddleware())

	enforcementSvc := enforcement.NewService(a.ruleCache, a.usageStore, a.logger)
	enforcementHandler := enforcement.NewHandler(enforcementSvc, a.logger)
	enforcementHandler.RegisterRoutes(router)

	opts := []management.ServiceOption{}
	if a.db != nil {
		opts = append(opts, management.WithVersioning(management.NewVersioningRepository(a.db)))
	}
	if a.producer != nil {
		opts = append(opts, management.WithRuleEvents(management.NewRuleEventProducer(a.producer, a.ruleChangeTopic())))
	}

	managementSvc := management.NewService(a.ruleRepo, a.usageStore, a.logger, opts...)
	managementHandler := management.NewHandler(managementSvc, a.logger)
	managementHandler.RegisterRoutes(router)

	// Counter storage is load-bearing for enforcement. The rule backends
	// only feed the cache, which keeps serving the last good catalog.
	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewRedisChecker(a.redisClient))
	if a.db != nil {
		healthRegistry.RegisterOptional(health.NewPostgreSQLChecker(a.db))
	}
	if a.mongoClient != nil {
		healthRegistry.RegisterOptional(health.NewMongoDBChecker(a.mongoClient))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
	return nil
}

func (a *App) initServer() error {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: a.config.Server.WriteTimeoutSeconds * time.Second,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	go a.ruleCache.Run(ctx)
	if a.sweeper != nil {
		go a.sweeper.Run(ctx)
	}

	if a.consumer != nil {
		go func() {
			topic := a.ruleChangeTopic()
			a.logger.InfowCtx(ctx, "Consuming rule change events", "topic", topic)
			if err := a.consumer.Consume(ctx, topic, a.ruleCache.HandleRuleChange); err != nil && ctx.Err() == nil {
				a.logger.ErrorwCtx(ctx, "Rule change consumer stopped", "error", err)
			}
		}()
	}

	errChan := make(chan error, 1)
	go func() {
		a.logger.InfowCtx(ctx, "Server listening", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return a.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer close error: %w", err))
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	dbErrs := a.dbConnector.ShutdownDatabases(ctx, a.redisClient, a.db, a.mongoClient)
	errs = append(errs, dbErrs...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	a.logger.InfowCtx(ctx, "Server exited successfully")
	return nil
}
