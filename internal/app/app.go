package app

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"teacherdev_backend/internal/config"
	"teacherdev_backend/internal/controller"
	"teacherdev_backend/internal/event"
	"teacherdev_backend/internal/llm"
	"teacherdev_backend/internal/repository"
	"teacherdev_backend/internal/service"
	"teacherdev_backend/internal/util"
	"teacherdev_backend/pkg/configwatcher"
	"teacherdev_backend/pkg/database"
	"teacherdev_backend/pkg/lock"
	"teacherdev_backend/pkg/logger"
	"teacherdev_backend/pkg/monitoring"
	"teacherdev_backend/pkg/retry"
	"teacherdev_backend/pkg/tracing"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client
	Log    *zap.Logger

	ConfigDir string

	services        *services
	configCallbacks []func(*config.Config)
	closers         []func()

	sweepInterval atomic.Int64
	sweepBatch    atomic.Int64
	sweepEnabled  atomic.Bool
}

type repositories struct {
	assessment *repository.AssessmentRepository
	attempt    *repository.AttemptRepository
	result     *repository.ResultRepository
}

type services struct {
	catalog    *service.CatalogService
	attempt    *service.AttemptService
	evaluation *service.EvaluationService
	judge      *service.JudgeService
	publisher  event.Publisher
}

type controllers struct {
	assessment *controller.AssessmentController
	admin      *controller.AdminController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		assessment: repository.NewAssessmentRepository(db),
		attempt:    repository.NewAttemptRepository(db),
		result:     repository.NewResultRepository(db),
	}
}

func (a *App) initServices(ctx context.Context, repos *repositories, cfg *config.Config) (*services, error) {
	s := &services{}
	log := a.Log

	provider, err := llm.NewProvider(ctx, cfg.AI, log)
	if err != nil {
		return nil, err
	}
	s.judge = service.NewJudgeService(provider, service.JudgeOptions{
		Policy: retry.Policy{
			MaxRetries: cfg.Evaluation.JudgeMaxRetries,
			Backoff:    retry.Linear(cfg.Evaluation.JudgeBaseDelay),
		},
		FallbackRatio:  cfg.Evaluation.FallbackRatio,
		MaxTokens:      cfg.AI.MaxTokens,
		Temperature:    cfg.AI.Temperature,
		RequestTimeout: cfg.AI.RequestTimeout,
	}, log.Named("judge"))

	store, err := service.NewMediaStore(&cfg.Storage)
	if err != nil {
		return nil, err
	}
	transcriber := service.NewWhisperTranscriber(cfg.Transcription, store, log.Named("transcription"))
	evaluator := service.NewQuestionEvaluator(s.judge, transcriber, log)

	var locker lock.Locker = lock.NewMemoryLocker()
	if a.Redis != nil {
		locker = lock.NewRedisLocker(a.Redis, "teacherdev:lock:")
	}

	s.publisher = event.NoopPublisher{}
	if cfg.Events.AMQPURL != "" {
		pub, err := event.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, log.Named("events"))
		if err != nil {
			return nil, err
		}
		s.publisher = pub
		a.closers = append(a.closers, pub.Close)
	}

	s.evaluation = service.NewEvaluationService(
		repos.assessment,
		repos.attempt,
		repos.result,
		evaluator,
		s.judge,
		service.NewRecommendationMapper(nil),
		locker,
		s.publisher,
		service.EvaluationOptions{
			StrengthThreshold: cfg.Evaluation.StrengthThreshold,
			Timeout:           cfg.Evaluation.Timeout,
			LockTTL:           cfg.Evaluation.LockTTL,
			MaxRetries:        cfg.Sweep.MaxRetries,
		},
		log.Named("evaluation"),
	)

	selector := service.NewQuestionSelector(
		service.QuotasFromConfig(cfg.Selection),
		rand.New(rand.NewSource(time.Now().UnixNano())),
	)
	s.attempt = service.NewAttemptService(repos.assessment, repos.attempt, repos.result, selector, s.evaluation, log.Named("attempt"))
	s.catalog = service.NewCatalogService(repos.assessment, log.Named("catalog"))

	return s, nil
}

func (a *App) initControllers(s *services) *controllers {
	return &controllers{
		assessment: controller.NewAssessmentController(s.attempt),
		admin:      controller.NewAdminController(s.catalog, s.evaluation, a.SweepBatch),
		health:     controller.NewHealthController(a.DB, a.Redis),
	}
}

// NewApp connects to the database and optional infrastructure and wires every
// service. Close releases what it opened.
func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	app := &App{Config: cfg, Log: log, ConfigDir: "configs"}

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode == "debug", log)
	if err != nil {
		return nil, err
	}
	app.DB = db

	if cfg.Server.Mode == "debug" || cfg.ForceMigrate {
		if err := database.Migrate(db, log); err != nil {
			return nil, err
		}
	}

	if cfg.Redis.Host != "" {
		rdb, err := database.InitRedis(ctx, &cfg.Redis)
		if err != nil {
			log.Warn("Redis unavailable, evaluation locks are process-local", zap.Error(err))
		} else {
			app.Redis = rdb
			app.closers = append(app.closers, func() { rdb.Close() })
		}
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(logger.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Error("Failed to shutdown tracer provider", zap.Error(err))
			}
		})
	}

	monitoring.Init()

	repos := app.initRepositories(db)
	svcs, err := app.initServices(ctx, repos, cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.services = svcs
	app.applySweepConfig(cfg.Sweep)

	app.RegisterConfigCallback(func(c *config.Config) {
		app.applySweepConfig(c.Sweep)
		svcs.evaluation.SetMaxRetries(c.Sweep.MaxRetries)
		log.Info("Sweep settings reloaded",
			zap.Bool("enabled", c.Sweep.Enabled),
			zap.Duration("interval", c.Sweep.Interval),
			zap.Int("batch_size", c.Sweep.BatchSize),
			zap.Int("max_retries", c.Sweep.MaxRetries))
	})

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router
	app.setupMiddlewares(ctx, router, cfg)
	app.registerRoutes(router, app.initControllers(svcs))

	return app, nil
}

func (a *App) applySweepConfig(cfg config.SweepConfig) {
	a.sweepEnabled.Store(cfg.Enabled)
	if cfg.Interval > 0 {
		a.sweepInterval.Store(int64(cfg.Interval))
	} else if a.sweepInterval.Load() == 0 {
		a.sweepInterval.Store(int64(time.Minute))
	}
	if cfg.BatchSize > 0 {
		a.sweepBatch.Store(int64(cfg.BatchSize))
	} else if a.sweepBatch.Load() == 0 {
		a.sweepBatch.Store(int64(util.DefaultLimit))
	}
}

func (a *App) SweepBatch() int { return int(a.sweepBatch.Load()) }

func (a *App) Catalog() *service.CatalogService { return a.services.catalog }

func (a *App) Evaluation() *service.EvaluationService { return a.services.evaluation }

// runSweeper drains SUBMITTED attempts on the configured interval. Interval
// and batch size are re-read every round so config reloads apply.
func (a *App) runSweeper(ctx context.Context) {
	timer := time.NewTimer(time.Duration(a.sweepInterval.Load()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if a.sweepEnabled.Load() {
			if _, err := a.services.evaluation.ProcessPending(ctx, a.SweepBatch()); err != nil && !errors.Is(err, context.Canceled) {
				a.Log.Error("Evaluation sweep failed", zap.Error(err))
			}
		}
		timer.Reset(time.Duration(a.sweepInterval.Load()))
	}
}

// Run serves HTTP, the background sweep and the config watcher until ctx is
// cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + a.Config.Server.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.runSweeper(ctx)
	}()
	go func() {
		defer wg.Done()
		err := configwatcher.WatchConfig(ctx, a.ConfigDir, a.Log, func(c *config.Config) {
			for _, cb := range a.configCallbacks {
				cb(c)
			}
		})
		if err != nil {
			a.Log.Warn("Config hot reload disabled", zap.Error(err))
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		a.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}
	a.Log.Info("Shutting down server...")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Log.Error("Server forced to shutdown", zap.Error(err))
	}
	wg.Wait()
	a.Close()

	a.Log.Info("Server exiting")
	return runErr
}

// Close releases connections opened by NewApp. It is idempotent.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			sqlDB.Close()
		}
		a.DB = nil
	}
}
