package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/lumora/supportdesk/internal/api/http"
	"github.com/lumora/supportdesk/internal/api/http/handlers"
	"github.com/lumora/supportdesk/internal/auth"
	"github.com/lumora/supportdesk/internal/config"
	"github.com/lumora/supportdesk/internal/events"
	"github.com/lumora/supportdesk/internal/objstore"
	"github.com/lumora/supportdesk/internal/observability"
	"github.com/lumora/supportdesk/internal/persistence"
	"github.com/lumora/supportdesk/internal/repository"
	"github.com/lumora/supportdesk/internal/service"
	"github.com/lumora/supportdesk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations && pg.PoolHandle() != nil {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redisConn := persistence.NewRedis(cfg.Redis, logger)
	defer redisConn.Close()

	var (
		userRepo    repository.UserRepository
		threadRepo  repository.ThreadRepository
		messageRepo repository.MessageRepository
		releaseRepo repository.ReleaseRepository
	)
	if pool := pg.PoolHandle(); pool != nil {
		userRepo = repository.NewUserRepository(pool)
		threadRepo = repository.NewThreadRepository(pool)
		messageRepo = repository.NewMessageRepository(pool)
		releaseRepo = repository.NewReleaseRepository(pool)
	} else {
		mem := repository.NewMemoryStore()
		userRepo = mem.Users()
		threadRepo = mem.Threads()
		messageRepo = mem.Messages()
		releaseRepo = mem.Releases()
	}

	store, err := objstore.Open(cfg.Storage)
	if err != nil {
		logger.Fatal("failed to open object storage", zap.Error(err))
	}

	dispatcher := events.NewInMemoryDispatcher()
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	supportService := service.NewSupportService(service.SupportDependencies{
		ThreadRepo:  threadRepo,
		MessageRepo: messageRepo,
		UserRepo:    userRepo,
		ReleaseRepo: releaseRepo,
		Dispatcher:  dispatcher,
		Redis:       redisConn.Handle(),
	})

	metrics := observability.NewMetrics()
	identity := auth.NewIdentityMiddleware(userRepo)

	app := fiber.New(fiber.Config{
		BodyLimit: int(cfg.Upload.MaxSizeBytes) + 1<<20,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	var storageHandler *handlers.StorageHandler
	if local, ok := store.(*objstore.LocalStore); ok {
		storageHandler = handlers.NewStorageHandler(local)
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:   handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redisConn),
		Support:  handlers.NewSupportHandler(supportService),
		Upload:   handlers.NewUploadHandler(store, cfg.Upload, cfg.Storage.KeyPrefix, metrics),
		Storage:  storageHandler,
		Identity: identity,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
