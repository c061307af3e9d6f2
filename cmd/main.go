package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	_ "annotation-service/docs"
	"annotation-service/internal/auth"
	"annotation-service/internal/config"
	"annotation-service/internal/handlers"
	"annotation-service/internal/metrics"
	"annotation-service/internal/models"
	"annotation-service/internal/repository"
	"annotation-service/internal/services"
	"annotation-service/internal/services/cache"
	"annotation-service/internal/services/caches"
	"annotation-service/internal/storage"
)

var (
	tokenUsername string
	tokenEmail    string
	tokenSubject  string

	rootCmd = &cobra.Command{
		Use:   "annotation-service",
		Short: "Data annotation management service",
		// Every subcommand needs configuration; load it once.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			cfg = c
			slog.SetDefault(config.NewLogger(cfg))
			return nil
		},
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
			tok, err := a.Issue(auth.Identity{Subject: tokenSubject, Username: tokenUsername, Email: tokenEmail})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cfg *config.Config
)

// @title Annotation Service API
// @version 1.0
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	tokenCmd.Flags().StringVar(&tokenUsername, "username", "", "account username (required)")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "account email")
	tokenCmd.Flags().StringVar(&tokenSubject, "sub", "", "token subject, defaults to the username")
	_ = tokenCmd.MarkFlagRequired("username")
	rootCmd.AddCommand(serveCmd, tokenCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	db, err := ConnectDatabase(cfg)
	if err != nil {
		return err
	}
	blobs, err := InitBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	memory := caches.NewMemoryCache(cfg.MemoryCacheBytes, cfg.CacheTTL)
	layers := []cache.CacheLayer{memory}
	var publisher services.Publisher
	if cfg.RedisEnabled() {
		rdb, err := storage.NewRedisClient(ctx, cfg.RedisHost, cfg.RedisPort)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer rdb.Close()
		layers = append(layers, caches.NewRedisCache(rdb, cfg.CacheTTL))
		publisher = rdb
	} else {
		slog.Info("redis not configured, using the in-process cache only")
	}

	repos := repository.New(db)
	fileCache := services.NewCacheService(blobs, cfg.CacheMaxObjectBytes, m, layers...)
	notifications := services.NewNotificationService(repos, publisher, m)
	users := services.NewUserService(repos)
	files := services.NewFileService(repos, blobs, fileCache, m, cfg.MaxUploadBytes)

	h := &handlers.Handlers{
		Health:      handlers.NewHealthHandler(db, files),
		Projects:    handlers.NewProjectHandler(services.NewProjectService(repos, blobs, fileCache, notifications), services.NewExportService(repos)),
		Files:       handlers.NewFileHandler(files),
		Annotations: handlers.NewAnnotationHandler(services.NewAnnotationService(repos, notifications, m)),
		Reviews:     handlers.NewReviewHandler(services.NewReviewService(repos, notifications, m)),
		Labels:      handlers.NewLabelHandler(services.NewLabelService(repos), services.NewTemplateService(repos)),
		Users:       handlers.NewUserHandler(users, services.NewSessionService(repos), notifications),
		Cache:       handlers.NewCacheHandler(files),
	}
	authenticator := auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)

	app := fiber.New(fiber.Config{
		BodyLimit:    int(cfg.MaxRequestBytes),
		ErrorHandler: handlers.WriteError,
	})
	app.Use(m.Middleware())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	api := app.Group("/api")
	// Registered ahead of the authenticated group so the docs stay public.
	api.Get("/swagger/*", swagger.HandlerDefault)
	handlers.Register(api, h, auth.Middleware(authenticator, users, handlers.WriteError))

	routes := app.GetRoutes(true)
	slog.Info("registered routes", "count", len(routes))
	for _, r := range routes {
		slog.Debug("route", "method", r.Method, "path", r.Path)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		memory.RunJanitor(gctx, time.Minute)
		return nil
	})
	g.Go(func() error {
		slog.Info("server listening", "port", cfg.AppPort)
		return app.Listen(":" + cfg.AppPort)
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(10 * time.Second)
	})
	return g.Wait()
}

// ConnectDatabase opens the configured database and migrates the schema.
func ConnectDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return db, nil
}

// InitBlobStore returns the configured blob backend.
func InitBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	if cfg.BlobBackend == "filesystem" {
		return storage.NewFileSystemStore(cfg.BlobDir)
	}
	store, err := storage.NewMinioStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("minio client initialization failed: %w", err)
	}
	return store, nil
}
