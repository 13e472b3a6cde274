package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ahmednasr/oss-hub/server/internal/auth"
	"github.com/ahmednasr/oss-hub/server/internal/config"
	"github.com/ahmednasr/oss-hub/server/internal/database"
	"github.com/ahmednasr/oss-hub/server/internal/github"
	"github.com/ahmednasr/oss-hub/server/internal/handler"
	"github.com/ahmednasr/oss-hub/server/internal/metrics"
	"github.com/ahmednasr/oss-hub/server/internal/middleware"
	"github.com/ahmednasr/oss-hub/server/internal/repository"
	"github.com/ahmednasr/oss-hub/server/internal/service"
)

// main is the single entry‑point for the REST API.
func main() {
	flags := pflag.NewFlagSet("server", pflag.ExitOnError)
	envFiles := flags.StringSlice("env-file", nil, "dotenv files to load (default .env.local, .env)")
	port := flags.String("port", "", "listen port (overrides PORT)")
	_ = flags.Parse(os.Args[1:])

	// Load configuration
	cfg, err := config.Load(*envFiles...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = *port
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("configuration loaded",
		zap.String("store", cfg.StoreDriver),
		zap.String("embeddings", cfg.EmbeddingProvider),
		zap.String("model", cfg.EmbeddingModel),
		zap.Int("dimensions", cfg.EmbeddingDimensions),
		zap.Bool("webhooks", cfg.WebhookURL != ""),
	)

	// Store
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	defer closeStore()

	// GitHub
	gh, err := github.NewClient(github.Options{
		Token:             cfg.GitHubToken,
		UserAgent:         cfg.GitHubUserAgent,
		Timeout:           cfg.GitHubTimeout,
		RequestsPerSecond: cfg.GitHubRPS,
		Logger:            log,
	})
	if err != nil {
		return err
	}

	// Embeddings are created on first use; a failed start leaves the server
	// up with embedding endpoints reporting no result.
	embeddings := service.NewEmbeddingProvider(embedderFactory(cfg, log), cfg.EmbeddingDimensions, log)
	defer func() { _ = embeddings.Close() }()

	verifier, err := auth.NewJWTVerifier(cfg.JWTSecret)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector("osshub")
	collector.TrackGitHubQuota(gh.RateLimiter().Remaining)

	cardSvc := service.NewCardService(store, gh, gh, embeddings, collector, service.CardServiceConfig{
		Webhook:     github.WebhookConfig{URL: cfg.WebhookURL, Secret: cfg.WebhookSecret},
		Concurrency: cfg.EmbeddingConcurrency,
	}, log)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:               "oss-hub",
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		ErrorHandler:          handler.ErrorHandler(log),
		DisableStartupMessage: true,
	})

	// Add middleware
	app.Use(middleware.Logging(log, collector))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins(),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	// Register routes
	handler.RegisterRoutes(app,
		handler.NewCardHandler(cardSvc, verifier),
		handler.NewEmbeddingHandler(embeddings),
		handler.NewHealthHandler(store),
		collector.Handler(),
	)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("port", cfg.Port))
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openStore connects the configured card store and returns its closer.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (service.CardRepository, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreSupabase:
		client, err := database.NewSupabase(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewSupabaseCardRepository(client), func() {}, nil

	case config.StorePostgres:
		pool, err := database.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewPostgresCardRepository(pool, cfg.StoreOpTimeout)
		if err := repo.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info("connected to postgres")
		return repo, pool.Close, nil

	case config.StoreMongo:
		client, err := database.NewMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewMongoCardRepository(client.Database(cfg.MongoDB))
		if err := repo.EnsureIndexes(ctx); err != nil {
			log.Warn("failed to create mongo indexes", zap.Error(err))
		}
		log.Info("connected to mongo", zap.String("database", cfg.MongoDB))
		return repo, func() { _ = client.Disconnect(context.Background()) }, nil
	}
	return nil, nil, errors.New("unknown store driver")
}

// embedderFactory picks the embedding backend for cfg.EmbeddingProvider.
func embedderFactory(cfg config.Config, log *zap.Logger) service.EmbedderFactory {
	switch cfg.EmbeddingProvider {
	case config.EmbeddingLocal:
		return func(ctx context.Context) (service.Embedder, error) {
			// First use may download the model.
			ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			defer cancel()
			e, err := service.NewLocalEmbedder(ctx, cfg.EmbeddingModel, log)
			if err != nil {
				return nil, err
			}
			return e, nil
		}
	case config.EmbeddingStatic:
		return func(context.Context) (service.Embedder, error) {
			return service.NewStaticEmbedder(cfg.EmbeddingDimensions), nil
		}
	default:
		return func(ctx context.Context) (service.Embedder, error) {
			e, err := service.NewVertexEmbedder(ctx, service.VertexOptions{
				ProjectID:       cfg.ProjectID,
				Location:        cfg.Location,
				Model:           cfg.EmbeddingModel,
				Dimensions:      cfg.EmbeddingDimensions,
				CredentialsFile: cfg.CredentialsFile,
			})
			if err != nil {
				return nil, err
			}
			return e, nil
		}
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
