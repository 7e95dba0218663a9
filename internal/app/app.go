package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/DRSN-tech/search-assistant/internal/cfg"
	v1Grpc "github.com/DRSN-tech/search-assistant/internal/delivery/v1/grpc"
	v1Http "github.com/DRSN-tech/search-assistant/internal/delivery/v1/http"
	"github.com/DRSN-tech/search-assistant/internal/domain"
	"github.com/DRSN-tech/search-assistant/internal/infrastructure/embedder"
	"github.com/DRSN-tech/search-assistant/internal/infrastructure/kafka"
	"github.com/DRSN-tech/search-assistant/internal/infrastructure/llm"
	minioInfra "github.com/DRSN-tech/search-assistant/internal/infrastructure/minio"
	s3Repo "github.com/DRSN-tech/search-assistant/internal/repository/minio"
	"github.com/DRSN-tech/search-assistant/internal/repository/pgdb"
	pgdbConv "github.com/DRSN-tech/search-assistant/internal/repository/pgdb/converter"
	qdrantRepo "github.com/DRSN-tech/search-assistant/internal/repository/qdrant"
	"github.com/DRSN-tech/search-assistant/internal/repository/redis"
	redisConv "github.com/DRSN-tech/search-assistant/internal/repository/redis/converter"
	"github.com/DRSN-tech/search-assistant/internal/usecase"
	"github.com/DRSN-tech/search-assistant/pkg/clients"
	"github.com/DRSN-tech/search-assistant/pkg/closer"
	"github.com/DRSN-tech/search-assistant/pkg/e"
	"github.com/DRSN-tech/search-assistant/pkg/logger"
	"github.com/DRSN-tech/search-assistant/pkg/postgres"
	"github.com/go-chi/chi/v5"
	"github.com/jimlawless/whereami"
)

const (
	initTimeout        = 10 * time.Second
	shutdownTimeout    = 15 * time.Second
	forcedCloseTimeout = 3 * time.Second
	topicTimeout       = 10 * time.Second
	healthInterval     = 15 * time.Second
)

// App собирает зависимости сервиса и управляет его жизненным циклом.
type App struct {
	cfg    *config.Config
	logger logger.Logger
	closer *closer.Closer

	db           *postgres.PgDatabase
	httpSrv      *v1Http.Server
	grpcSrv      *v1Grpc.GRPCServer
	outboxWorker *kafka.OutboxWorker

	// bgCtx живёт до начала остановки; на нём работают фоновые задачи
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

func NewApp(cfg *config.Config, log logger.Logger) (*App, error) {
	bgCtx, bgCancel := context.WithCancel(context.Background())
	a := &App{
		cfg:      cfg,
		logger:   log,
		closer:   closer.NewCloser(forcedCloseTimeout),
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}

	if err := a.init(); err != nil {
		bgCancel()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if closeErr := a.closer.Close(ctx); closeErr != nil {
			log.Warnf("partial init cleanup: %v", closeErr)
		}
		return nil, err
	}

	return a, nil
}

func (a *App) init() error {
	textMetric, err := domain.ParseMetric(a.cfg.Search.TextMetric)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	imageMetric, err := domain.ParseMetric(a.cfg.Search.ImageMetric)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if err := a.initPGDB(); err != nil {
		return err
	}

	productRepo := pgdb.NewProductRepo(a.db.Pool, pgdbConv.NewProductConverter())
	outboxRepo := pgdb.NewOutboxEventRepo(a.db.Pool, pgdbConv.NewOutboxEventConverter())
	catalog := pgdb.NewCatalogRepo(a.db.Pool, a.logger)

	textProvider := embedder.NewTextProvider(a.cfg.Embedding, a.logger)
	imageProvider := embedder.NewImageProvider(a.cfg.Embedding, a.logger)
	planner := llm.NewPlanner(a.cfg.LLM, a.logger)

	// Запросы поиска идут через кэш, пакетный backfill — напрямую
	var queryEmbedder usecase.TextEmbedder = textProvider
	if a.cfg.Redis.Enabled() {
		cache, err := a.initRedis()
		if err != nil {
			return err
		}
		queryEmbedder = embedder.NewCachedTextEmbedder(textProvider, cache, textProvider.Model())
	} else {
		a.logger.Infof("Redis is not configured, query embeddings are not cached")
	}

	var imagesInfra usecase.ImagesInfra
	if a.cfg.Minio.Enabled() {
		infra, err := a.initMinio()
		if err != nil {
			return err
		}
		imagesInfra = infra
	} else {
		a.logger.Infof("MinIO is not configured, images are sent to the embedder inline and not stored")
	}

	var imageIndex usecase.ImageIndex
	if a.cfg.Qdrant.Enabled() {
		index, err := a.initQdrant()
		if err != nil {
			return err
		}
		imageIndex = index
	}

	var searchIndex usecase.ImageIndex
	if a.cfg.Search.ImageIndexBackend == config.ImageIndexQdrant {
		searchIndex = imageIndex
	}

	searchUC := usecase.NewSearchUC(catalog, planner, queryEmbedder, imageProvider, imagesInfra, searchIndex,
		usecase.SearchOptions{
			TopK:              a.cfg.Search.TopK,
			TextMetric:        textMetric,
			ImageMetric:       imageMetric,
			StoreQueryTimeout: a.cfg.Search.StoreQueryTimeout,
			QueryGuard:        a.cfg.Search.QueryGuard,
			PriceFilter:       a.cfg.Search.PriceFilterEnabled,
		}, a.logger)
	productUC := usecase.NewProductUC(productRepo, outboxRepo, a.db.Pool, textProvider, imageProvider, imagesInfra, imageIndex, a.logger)
	maintenanceUC := usecase.NewMaintenanceUC(productRepo, textProvider, a.logger)

	if a.cfg.Kafka.Enabled() {
		a.initOutbox(outboxRepo)
	} else {
		a.logger.Warnf("Kafka is not configured, outbox events stay pending")
	}

	a.grpcSrv = v1Grpc.NewGRPCServer(a.cfg.Grpc, a.logger)
	a.grpcSrv.RegisterServices()
	a.closer.Add("grpc server", a.grpcSrv.Stop)

	r := chi.NewRouter()
	v1Http.NewRouter(r, a.logger).Init(searchUC, productUC, maintenanceUC, a.db, a.cfg.Search.MaxImageSize)
	a.httpSrv = v1Http.NewServer(r, a.cfg.Http)
	a.closer.Add("http server", a.httpSrv.Stop)

	return nil
}

func (a *App) initPGDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	db, err := postgres.Connect(ctx, a.cfg.Db)
	if err != nil {
		a.logger.Errorf(err, "failed to connect to database")
		return e.Wrap(whereami.WhereAmI(), err)
	}
	a.db = db
	a.closer.AddSimple("postgres", db.Close)

	if err := db.RunMigrations(a.logger, postgres.DefaultMigrations); err != nil {
		a.logger.Errorf(err, "failed to run migrations")
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

func (a *App) initRedis() (*redis.CacheRepo, error) {
	client := clients.NewRedisClient(a.cfg.Redis)
	a.closer.Add("redis", func(context.Context) error { return client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		a.logger.Errorf(err, "failed to connect to redis")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return redis.NewCacheRepo(client, redisConv.NewEmbeddingConverter(), a.cfg.Embedding, a.logger), nil
}

func (a *App) initMinio() (*minioInfra.MinioInfrastructure, error) {
	client, err := clients.NewMinIOClient(a.cfg.Minio)
	if err != nil {
		a.logger.Errorf(err, "failed to initialize minio client")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := clients.EnsureBucket(ctx, client, a.cfg.Minio.BucketName); err != nil {
		a.logger.Errorf(err, "failed to initialize MinIO bucket")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	infra := minioInfra.NewMinioInfrastructure(s3Repo.NewImageRepo(client, a.cfg.Minio), a.cfg.Minio, a.logger, a.cleanupContext())
	a.closer.Add("minio cleanup", infra.WaitForCleanup)

	return infra, nil
}

// cleanupContext возвращает контекст фоновой очистки MinIO. Он отменяется closer'ом
// только после "minio cleanup", то есть уже после остановки HTTP-сервера.
// Ресурсы, зарегистрированные позже, закрываются раньше него.
func (a *App) cleanupContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	a.closer.AddSimple("minio cleanup context", cancel)
	return ctx
}

func (a *App) initQdrant() (*qdrantRepo.ImageIndexRepo, error) {
	client, err := clients.NewQdrantClient(a.cfg.Qdrant)
	if err != nil {
		a.logger.Errorf(err, "failed to initialize qdrant")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	a.closer.Add("qdrant", func(context.Context) error { return client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := clients.EnsureCollection(ctx, client); err != nil {
		a.logger.Errorf(err, "failed to initialize qdrant collection")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return qdrantRepo.NewImageIndexRepo(client), nil
}

func (a *App) initOutbox(repo usecase.OutboxRepository) {
	producer := kafka.NewProducer(a.logger, a.cfg.Kafka)
	a.closer.Add("kafka producer", func(context.Context) error { return producer.Close() })

	if err := producer.EnsureTopic(topicTimeout); err != nil {
		a.logger.Warnf("failed to ensure kafka topic %s: %v", a.cfg.Kafka.Topic, err)
	}

	a.outboxWorker = kafka.NewOutboxWorker(repo, a.logger, producer, a.db.Dsn)
	a.closer.Add("outbox worker", a.outboxWorker.Stop)
}

// Run запускает серверы и блокируется до сигнала остановки или ошибки сервера.
func (a *App) Run() error {
	if a.outboxWorker != nil {
		a.outboxWorker.Start(a.bgCtx)
	}
	go a.grpcSrv.WatchCatalog(a.bgCtx, a.db, healthInterval)

	errCh := make(chan error, 2)
	go func() {
		a.logger.Infof("gRPC server starting on %s:%s", a.cfg.Grpc.NetworkMode, a.cfg.Grpc.Port)
		if err := a.grpcSrv.Start(); err != nil {
			errCh <- e.Wrap("gRPC server", err)
		}
	}()
	go func() {
		a.logger.Infof("HTTP server started on port %s", a.cfg.Http.Port)
		if err := a.httpSrv.Run(); err != nil {
			errCh <- e.Wrap("HTTP server", err)
		}
	}()

	// === Ожидание сигнала или ошибки ===
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	var appErr error
	select {
	case appErr = <-errCh:
		a.logger.Errorf(appErr, "server fatal error")
	case <-shutdown:
		a.logger.Infof("Received shutdown signal, stopping gracefully...")
	}

	// === Graceful shutdown ===
	a.bgCancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.closer.Close(ctx); err != nil {
		a.logger.Warnf("%v", err)
		if appErr == nil && errors.Is(err, context.DeadlineExceeded) {
			appErr = err
		}
	}

	a.logger.Infof("Application shutdown complete")
	return appErr
}
