package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/healthwatch-api/internal/config"
	"github.com/noah-isme/healthwatch-api/internal/database"
	"github.com/noah-isme/healthwatch-api/internal/handler"
	"github.com/noah-isme/healthwatch-api/internal/middleware"
	"github.com/noah-isme/healthwatch-api/internal/observability"
	"github.com/noah-isme/healthwatch-api/internal/repository"
	"github.com/noah-isme/healthwatch-api/internal/router"
	"github.com/noah-isme/healthwatch-api/internal/service"
	"github.com/noah-isme/healthwatch-api/internal/store"
	cloud "github.com/noah-isme/healthwatch-api/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.AppEnv == "development" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	observability.RegisterMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	probes := map[string]handler.HealthProbe{}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
	}

	var firebase *database.Firebase
	if cfg.StoreDriver == config.StoreDriverFirestore || cfg.AuthProvider == config.AuthProviderFirebase {
		firebase, err = database.ConnectFirebase(ctx, cfg.FirebaseProject, cfg.FirebaseCredentialsFile)
		if err != nil {
			log.Fatalf("failed to initialize firebase: %v", err)
		}
		defer firebase.Close()
	}

	documents, err := openStore(ctx, cfg, firebase, redisClient, natsConn, logger)
	if err != nil {
		log.Fatalf("failed to open document store: %v", err)
	}
	defer documents.Close()

	var verifier middleware.TokenVerifier = middleware.NewJWTVerifier(cfg.JWTSecret)
	if cfg.AuthProvider == config.AuthProviderFirebase {
		verifier = middleware.NewFirebaseVerifier(firebase.Auth)
	}

	var storage service.FileStorage
	cloudCfg := cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}
	if cloudCfg.Enabled() {
		uploader, err := cloud.New(cloudCfg, logger)
		if err != nil {
			log.Fatalf("failed to create cloudinary client: %v", err)
		}
		storage = uploader
	} else {
		logger.Warn().Msg("cloudinary credentials missing; image uploads disabled")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	contentRepo := repository.NewContentRepository(documents)
	notificationRepo := repository.NewNotificationRepository(documents)
	chatRepo := repository.NewChatRepository(documents)
	userRepo := repository.NewUserRepository(documents)

	notificationService := service.NewNotificationService(notificationRepo, userRepo, documents, logger)
	contentService := service.NewContentService(contentRepo, documents, redisClient, cfg.FeedCacheTTL, notificationService, validate, logger)
	voteService := service.NewVoteService(contentRepo, contentService, logger)
	chatService := service.NewChatService(chatRepo, userRepo, documents, validate, logger)
	profileService := service.NewProfileService(userRepo, validate, logger)
	seedService := service.NewSeedService(contentRepo, contentService, validate, cfg.SeedEnabled, logger)

	var uploadService service.UploadService
	if storage != nil {
		uploadService = service.NewUploadService(storage, contentService, cfg.UploadMaxSizeMB, logger)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.UploadMaxSizeMB + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		ContentHandler:      handler.NewContentHandler(contentService, voteService, uploadService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger, cfg.SSEKeepAlive),
		ChatHandler:         handler.NewChatHandler(chatService, logger, cfg.SSEKeepAlive),
		ProfileHandler:      handler.NewProfileHandler(profileService, chatService, logger),
		SeedHandler:         handler.NewSeedHandler(seedService, logger),
		HealthProbes:        probes,
		AuthMiddleware:      middleware.Authenticate(verifier),
		WriteLimiter:        middleware.RateLimit("writes", cfg.RateLimitMax, cfg.RateLimitWindow),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	logger.Info().Str("addr", cfg.HTTPAddress()).Str("store", cfg.StoreDriver).Msg("server started")
	waitForShutdown(app, cancel)
}

// openStore connects the configured document store. SQL stores share their
// change events through redis and nats so every node observes every write.
func openStore(ctx context.Context, cfg config.Config, firebase *database.Firebase, redisClient *redis.Client, natsConn *nats.Conn, logger zerolog.Logger) (store.DocumentStore, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverFirestore:
		return store.NewFirestoreStore(firebase.Firestore, logger), nil
	case config.StoreDriverMongo:
		client, err := database.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		return store.NewMongoStore(client, cfg.MongoDatabase, logger), nil
	}

	var db *gorm.DB
	var err error
	if cfg.StoreDriver == config.StoreDriverSQLite {
		db, err = database.ConnectSQLite(cfg.SQLitePath)
	} else {
		db, err = database.ConnectPostgres(cfg.DatabaseURL, database.PoolOptions{
			MaxOpenConns:    cfg.DatabaseMaxConns,
			MaxIdleConns:    cfg.DatabaseMaxConns / 2,
			ConnMaxLifetime: 30 * time.Minute,
		})
	}
	if err != nil {
		return nil, err
	}

	changes := store.NewChangeFeed(redisClient, natsConn, cfg.ChannelBase, logger)
	changes.Start(ctx)

	gormStore, err := store.NewGormStore(db, changes, logger)
	if err != nil {
		return nil, err
	}
	return gormStore, nil
}

func waitForShutdown(app *fiber.App, stopBackground context.CancelFunc) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()
	stopBackground()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
