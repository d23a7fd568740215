package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"transit-classifier-service/internal/adapters/primary/http/handlers"
	"transit-classifier-service/internal/adapters/primary/http/middleware"
	"transit-classifier-service/internal/adapters/secondary/artifact"
	"transit-classifier-service/internal/adapters/secondary/objectstore"
	"transit-classifier-service/internal/adapters/secondary/postgres"
	"transit-classifier-service/internal/adapters/secondary/sqlite"
	"transit-classifier-service/internal/adapters/secondary/trainer"
	"transit-classifier-service/internal/config"
	"transit-classifier-service/internal/core/domain"
	output "transit-classifier-service/internal/core/ports/output"
	"transit-classifier-service/internal/core/services"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	closeLog := initLogger(cfg)
	defer closeLog()

	ctx := context.Background()

	// ============================================================================
	// Hexagonal Architecture Wiring
	// ============================================================================

	// Secondary Adapters (Output Ports - Catalog)
	catalogRepo, closeRepo, err := openCatalog(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("open catalog: %v", err)
	}
	defer closeRepo()

	// Object storage (Optional - based on config)
	var minioClient *objectstore.Client
	if cfg.MinIO.Enabled {
		minioClient, err = objectstore.New(objectstore.Config{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			UseSSL:    cfg.MinIO.UseSSL,
			Region:    cfg.MinIO.Region,
		})
		if err != nil {
			log.Fatalf("create minio client: %v", err)
		}
	} else {
		log.Info("object storage disabled, s3:// artifacts are unavailable")
	}

	// ONNX runtime (Optional - based on config)
	onnxEnabled := cfg.Artifacts.ONNXRuntimeLib != ""
	if onnxEnabled {
		if err := artifact.InitONNXRuntime(cfg.Artifacts.ONNXRuntimeLib); err != nil {
			log.Warnf("onnx runtime init failed (continuing without .onnx artifacts): %v", err)
			onnxEnabled = false
		} else {
			defer artifact.ShutdownONNXRuntime()
			log.Info("onnx runtime initialized")
		}
	}

	var fetcher artifact.ObjectFetcher
	if minioClient != nil {
		fetcher = minioClient
	}
	store, err := artifact.NewStore(artifact.Config{
		CacheSize: cfg.Artifacts.CacheSize,
		CacheDir:  cfg.Artifacts.CacheDir,
		ONNX:      onnxEnabled,
		Watch:     cfg.Artifacts.Watch,
	}, fetcher)
	if err != nil {
		log.Fatalf("create artifact store: %v", err)
	}
	defer store.Close()

	// Training engine (Optional - based on config)
	trainingEngine := newTrainer(ctx, &cfg.Trainer, minioClient)

	aliases, err := domain.LoadFeatureAliases(cfg.Features.AliasFile)
	if err != nil {
		log.Fatalf("load feature aliases: %v", err)
	}

	policy, err := domain.ParseResolvePolicy(cfg.Registry.ResolvePolicy)
	if err != nil {
		log.Fatalf("registry policy: %v", err)
	}

	// Core Services (Application Layer)
	registrySvc := services.NewRegistryService(catalogRepo, trainingEngine, services.RegistryConfig{
		BaseModelPath: cfg.Registry.BaseModelPath,
		ArtifactDir:   cfg.Registry.ArtifactDir,
		Policy:        policy,
		TrainTimeout:  cfg.Trainer.Timeout,
	})
	ingestSvc := services.NewIngestionService(aliases)
	dispatcher := services.NewPredictionDispatcher(registrySvc, store, services.DispatcherConfig{
		Workers: cfg.Inference.Workers,
		Timeout: cfg.Inference.Timeout,
	})
	predictionSvc := services.NewPredictionService(ingestSvc, dispatcher)

	// Warm the base model so a broken default fails loudly at startup
	if _, err := store.Load(ctx, cfg.Registry.BaseModelPath); err != nil {
		log.WithError(err).WithField("path", cfg.Registry.BaseModelPath).Warn("base model could not be loaded")
	}

	// Primary Adapter (HTTP Handlers)
	h := handlers.New(registrySvc, predictionSvc, ingestSvc)

	// Setup router
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logging(), gin.Recovery())
	router.MaxMultipartMemory = 8 << 20

	api := router.Group("/api/v1")
	h.RegisterRoutes(api)

	router.GET("/healthz", h.Healthz)

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Infof("starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("server forced shutdown: %v", err)
	}

	log.Info("server stopped")
}

func openCatalog(ctx context.Context, cfg *config.DatabaseConfig) (output.CatalogRepository, func(), error) {
	switch cfg.Driver {
	case "postgres":
		poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("parse db config: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("create db pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping db: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info("database connection established")
		return postgres.NewCatalogRepository(pool), pool.Close, nil

	default:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		repo, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.WithField("path", cfg.SQLitePath).Info("sqlite catalog opened")
		return repo, func() { _ = repo.Close() }, nil
	}
}

func newTrainer(ctx context.Context, cfg *config.TrainerConfig, minioClient *objectstore.Client) output.TrainingEngine {
	switch cfg.Mode {
	case "http":
		log.WithField("url", cfg.URL).Info("http training engine configured")
		return trainer.NewHTTPTrainer(cfg)
	case "kube":
		if minioClient == nil {
			log.Warn("kube training engine needs object storage, training disabled")
			return nil
		}
		if err := minioClient.EnsureBucket(ctx, cfg.ResultBucket); err != nil {
			log.Warnf("result bucket unavailable (continuing without training): %v", err)
			return nil
		}
		t, err := trainer.NewKubeTrainer(cfg, minioClient)
		if err != nil {
			log.Warnf("kube training engine init failed (continuing without training): %v", err)
			return nil
		}
		log.WithField("namespace", cfg.Namespace).Info("kube training engine configured")
		return t
	}
	log.Info("training disabled")
	return nil
}

func initLogger(cfg *config.Config) func() {
	level, err := log.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Logger.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	if cfg.Logger.File == "" {
		return func() {}
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.Logger.File,
		MaxSize:    cfg.Logger.MaxSizeMB,
		MaxBackups: cfg.Logger.MaxBackups,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return func() { _ = rotator.Close() }
}
