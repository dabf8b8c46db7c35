package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/blurdetect/internal/analysis"
	"github.com/example/blurdetect/internal/blur"
	"github.com/example/blurdetect/internal/cache"
	"github.com/example/blurdetect/internal/config"
	"github.com/example/blurdetect/internal/faces"
	"github.com/example/blurdetect/internal/handlers"
	"github.com/example/blurdetect/internal/imaging"
	"github.com/example/blurdetect/internal/jobs"
	"github.com/example/blurdetect/internal/logging"
	"github.com/example/blurdetect/internal/photos"
	"github.com/example/blurdetect/internal/queue"
	"github.com/example/blurdetect/internal/tagging"
	"github.com/example/blurdetect/internal/upstream"
	"github.com/example/blurdetect/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db := initDatabase(ctx, cfg, logger)
	repo := photos.NewPhotoRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()
	redisClient := initRedis(redisCtx, cfg, logger)
	resultCache := cache.NewRedisCache(redisClient)
	tracker := jobs.NewRedisTracker(resultCache, cfg.JobRecordTTL, logger)

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()
	enqueuer := queue.NewAsynqEnqueuer(asynqClient, cfg.WorkerMaxRetry, logger)

	selector := buildFaceSelector(cfg, logger)
	scorer := blur.NewScorer(blur.NewFourierTransform(), logger)
	fetcher := upstream.NewHTTPClient(cfg.UpstreamBaseURL, nil, logger)
	analyzer := analysis.NewAnalyzer(repo, fetcher, imaging.NewStdCodec(), selector, scorer, logger)

	var tagger tagging.Tagger
	if cfg.TaggerAddr != "" {
		t, conn, err := tagging.DialTagger(ctx, cfg.TaggerAddr, logger)
		if err != nil {
			logger.Fatal("failed to connect to tagging service", zap.Error(err))
		}
		defer conn.Close()
		tagger = t
	}

	// Workers run analyses through the use case as well, so completed jobs
	// land in the result cache exactly like synchronous requests.
	uc := usecase.NewAnalysisUseCase(analyzer, repo, enqueuer, tracker, resultCache, fetcher, tagger, cfg.ResultCacheTTL, logger)

	var workerSrv *asynq.Server
	if cfg.RunsWorker() {
		workerSrv = queue.NewWorkerServer(redisOpt, cfg.WorkerConcurrency, logger)
	}

	if !cfg.RunsAPI() {
		logger.Info("worker consuming queue", zap.Int("concurrency", cfg.WorkerConcurrency))
		if err := workerSrv.Run(queue.NewMux(queue.NewAnalysisHandler(uc, tracker, logger))); err != nil {
			logger.Fatal("worker failed", zap.Error(err))
		}
		return
	}

	var workerStop func()
	if workerSrv != nil {
		if err := workerSrv.Start(queue.NewMux(queue.NewAnalysisHandler(uc, tracker, logger))); err != nil {
			logger.Fatal("worker start failed", zap.Error(err))
		}
		logger.Info("worker consuming queue", zap.Int("concurrency", cfg.WorkerConcurrency))
		workerStop = workerSrv.Shutdown
	}

	router := gin.Default()
	handlers.RegisterRoutes(router, uc)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	logger.Info("API listening", zap.String("addr", cfg.HTTPAddr))
	if err := serveHTTPServer(server, 15*time.Second, logger, workerStop); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initDatabase(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Info)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

// buildFaceSelector loads the pigo cascade named by the config. An empty path
// disables face detection entirely; a path that fails to load is fatal because
// the operator asked for face-aware scoring. The return type must stay the
// interface: a typed nil *faces.Selector would defeat the analyzer's nil check.
func buildFaceSelector(cfg *config.Config, logger *zap.Logger) analysis.RegionSelector {
	if cfg.FaceCascadePath == "" {
		logger.Info("face detection disabled, scoring whole frames")
		return nil
	}
	detector, err := faces.NewPigoDetector(cfg.FaceCascadePath)
	if err != nil {
		logger.Fatal("failed to load face cascade", zap.Error(err), zap.String("path", cfg.FaceCascadePath))
	}
	return faces.NewSelector(detector, logger)
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, workerStop func()) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil, workerStop)
}

func serveHTTPServerWithListener(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, listener, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal, workerStop func()) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		if workerStop != nil {
			workerStop()
		}
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
