package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/db"
	commonmw "codejudge/internal/common/http/middleware"
	"codejudge/internal/common/mq"
	"codejudge/internal/common/storage"
	"codejudge/internal/judge/catalog"
	"codejudge/internal/judge/comparator"
	"codejudge/internal/judge/controller"
	"codejudge/internal/judge/observer"
	"codejudge/internal/judge/repository"
	"codejudge/internal/judge/sandbox"
	"codejudge/internal/judge/sandbox/engine"
	"codejudge/internal/judge/sandbox/language"
	"codejudge/internal/judge/scheduler"
	"codejudge/internal/judge/service"
	"codejudge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultConfigPath = "configs/judge_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "judge service exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	bg := context.Background()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observer.NewPrometheusRecorder(registry)

	var redisCache *cache.RedisCache
	if appCfg.Redis.Addr != "" {
		c, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
		if err != nil {
			return fmt.Errorf("init redis failed: %w", err)
		}
		redisCache = c
		defer func() {
			_ = redisCache.Close()
		}()
	}

	langs := language.NewRepository(appCfg.Language.Languages)
	eng, err := engine.NewEngine(appCfg.Sandbox, langs)
	if err != nil {
		return fmt.Errorf("init sandbox engine failed: %w", err)
	}
	executor := sandbox.NewExecutor(eng, langs, appCfg.Executor, metrics)

	var jobStore scheduler.JobStore
	var memoryJobs *scheduler.MemoryJobStore
	if redisCache != nil {
		jobStore = scheduler.NewRedisJobStore(redisCache, appCfg.Judge.JobTTL)
	} else {
		memoryJobs = scheduler.NewMemoryJobStore(appCfg.Judge.JobTTL)
		jobStore = memoryJobs
	}
	sched := scheduler.New(appCfg.Scheduler, executor, jobStore, metrics)

	problems, closeCatalog, err := buildCatalog(appCfg, redisCache)
	if err != nil {
		return err
	}
	defer closeCatalog()

	comparators, err := comparator.NewRegistry(appCfg.comparatorBindings())
	if err != nil {
		return fmt.Errorf("init comparators failed: %w", err)
	}

	svcCfg := service.Config{
		Scheduler:      sched,
		Catalog:        problems,
		Comparators:    comparators,
		Languages:      langs,
		Metrics:        metrics,
		Limits:         appCfg.Limits,
		RunRetries:     *appCfg.Judge.RunRetries,
		RetryDelay:     appCfg.Judge.RetryDelay,
		RetryMaxDelay:  appCfg.Judge.RetryMaxDelay,
		MaxWait:        appCfg.Judge.MaxWait,
		CatalogTimeout: appCfg.Catalog.Timeout,
		StoreTimeout:   appCfg.Judge.StoreTimeout,
	}
	if redisCache != nil {
		svcCfg.Verdicts = repository.NewVerdictRepository(redisCache, appCfg.Judge.VerdictTTL)
	}
	if len(appCfg.Kafka.Brokers) > 0 {
		producer, err := mq.NewKafkaProducer(appCfg.Kafka.KafkaConfig)
		if err != nil {
			return fmt.Errorf("init kafka failed: %w", err)
		}
		defer func() {
			_ = producer.Close()
		}()
		svcCfg.Publisher = repository.NewMQVerdictPublisher(producer, appCfg.Kafka.VerdictTopic)
	}
	judgeSvc, err := service.NewService(svcCfg)
	if err != nil {
		return fmt.Errorf("init judge service failed: %w", err)
	}

	limiter := commonmw.NewRateLimiter(appCfg.RateLimit, metrics.IncRateLimited)
	httpServer := buildHTTPServer(appCfg.Server, judgeSvc, sched, limiter, registry)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(bg, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	sched.Start(gctx)
	g.Go(func() error {
		limiter.RunSweeper(gctx)
		return nil
	})
	if memoryJobs != nil {
		g.Go(func() error {
			memoryJobs.RunSweeper(gctx, appCfg.Judge.SweepInterval)
			return nil
		})
	}
	g.Go(func() error {
		logger.Info(bg, "judge http server started", zap.String("addr", appCfg.Server.Addr), zap.Strings("languages", langs.IDs()))
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server stopped: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(bg, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(bg, defaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error(bg, "http server shutdown failed", zap.Error(err))
		}
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Error(bg, "scheduler stop failed", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}

// buildCatalog chains the configured problem sources: local problems first,
// then MySQL and object-storage packs behind the redis cache.
func buildCatalog(appCfg *AppConfig, redisCache *cache.RedisCache) (catalog.ProblemCatalog, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var local catalog.Chain
	if appCfg.Catalog.ProblemsFile != "" {
		static, err := catalog.LoadStaticCatalog(appCfg.Catalog.ProblemsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("load problems file failed: %w", err)
		}
		logger.Info(context.Background(), "problems file loaded",
			zap.String("path", appCfg.Catalog.ProblemsFile), zap.Int64s("problem_ids", static.IDs()))
		local = append(local, static)
	}
	if appCfg.Catalog.Builtin || len(local) == 0 {
		local = append(local, catalog.NewStaticCatalog(catalog.DefaultProblems()))
	}

	var remote catalog.Chain
	if appCfg.Database.DSN != "" {
		mysqlDB, err := db.NewMySQLWithConfig(appCfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("init database failed: %w", err)
		}
		closers = append(closers, func() { _ = mysqlDB.Close() })
		remote = append(remote, catalog.NewMySQLCatalog(mysqlDB))
	}
	if appCfg.MinIO.Endpoint != "" {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("init minio failed: %w", err)
		}
		remote = append(remote, catalog.NewPackCatalog(objStorage, appCfg.Pack))
	}

	chain := local
	if len(remote) > 0 {
		var next catalog.ProblemCatalog = remote
		if redisCache != nil {
			next = catalog.NewCachedCatalog(remote, redisCache, appCfg.Catalog.CacheTTL, appCfg.Catalog.EmptyTTL)
		}
		chain = append(chain, next)
	}
	logger.Info(context.Background(), "problem catalog ready",
		zap.Int("local_sources", len(local)),
		zap.Int("remote_sources", len(remote)),
		zap.Bool("cached", redisCache != nil && len(remote) > 0))
	return chain, closeAll, nil
}

func buildHTTPServer(cfg ServerConfig, judgeSvc *service.Service, sched *scheduler.Scheduler, limiter *commonmw.RateLimiter, registry *prometheus.Registry) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	router.GET("/healthz", controller.Healthz(sched.Stats))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	judgeController := controller.NewJudgeController(judgeSvc, cfg.WatchInterval)
	controller.RegisterRoutes(router, judgeController, commonmw.RateLimitMiddleware(limiter))

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
