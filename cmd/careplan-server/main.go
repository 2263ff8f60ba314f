package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/careplan/intake/internal/config"
	"github.com/careplan/intake/internal/domain/careplan"
	"github.com/careplan/intake/internal/domain/identity"
	"github.com/careplan/intake/internal/domain/order"
	"github.com/careplan/intake/internal/platform/apperror"
	"github.com/careplan/intake/internal/platform/blobstore"
	"github.com/careplan/intake/internal/platform/clock"
	"github.com/careplan/intake/internal/platform/db"
	"github.com/careplan/intake/internal/platform/events"
	"github.com/careplan/intake/internal/platform/generation"
	"github.com/careplan/intake/internal/platform/metrics"
	"github.com/careplan/intake/internal/platform/middleware"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "careplan-server",
		Short: "Specialty pharmacy order intake and care plan API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the intake API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()

			if cfg.DBDriver == config.DriverSQLite {
				sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath)
				if err != nil {
					return err
				}
				defer sqlDB.Close()
				fmt.Printf("SQLite schema is up to date at %s.\n", cfg.SQLitePath)
				return nil
			}

			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DBDriver == config.DriverSQLite {
				fmt.Println("The sqlite driver applies its schema on open; there is no migration history.")
				return nil
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Config, read first so ENV from .env picks the log format.
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	logger := newLogger(cfg, os.Stdout)

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer st.close()
	logger.Info().Str("driver", cfg.DBDriver).Msg("connected to database")

	publisher := events.Publisher(events.NopPublisher{})
	m := metrics.New()
	if cfg.RedisURL != "" {
		client, err := events.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		publisher = events.NewRedisPublisher(client, cfg.EventsStream, m)
		logger.Info().Str("stream", cfg.EventsStream).Msg("publishing domain events")
	}

	archive, err := openArchive(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure care plan archive")
	}
	if archive != nil {
		logger.Info().Str("bucket", cfg.BlobS3Bucket).Msg("archiving care plans to s3")
	} else {
		logger.Info().Msg("care plan archive disabled")
	}

	gen := generation.New(generation.Config{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiBaseURL,
		Timeout: cfg.GenerationTimeout,
	}, logger)

	e := newServer(cfg, logger, st, deps{
		generator: gen,
		publisher: publisher,
		archive:   archive,
		metrics:   m,
	})

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("generator", gen.Name()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: out}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// openArchive returns nil when no bucket is configured. Care plans carry PHI,
// so there is no process-memory fallback.
func openArchive(ctx context.Context, cfg *config.Config) (blobstore.BlobStore, error) {
	if cfg.BlobS3Bucket == "" {
		return nil, nil
	}
	s3Store, err := blobstore.NewS3Store(ctx, blobstore.S3Config{
		Bucket:    cfg.BlobS3Bucket,
		Region:    cfg.BlobS3Region,
		Endpoint:  cfg.BlobS3Endpoint,
		PathStyle: cfg.BlobS3PathStyle,
	})
	if err != nil {
		return nil, err
	}
	return s3Store, nil
}

// store bundles the repositories for the configured driver.
type store struct {
	tx        db.Transactor
	providers identity.ProviderRepository
	patients  identity.PatientRepository
	orders    order.Repository
	plans     careplan.Repository
	health    echo.HandlerFunc
	close     func()
}

func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	if cfg.DBDriver == config.DriverSQLite {
		sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return sqliteStore(sqlDB), nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, err
	}
	return &store{
		tx:        db.NewPGTransactor(pool),
		providers: identity.NewProviderRepo(pool),
		patients:  identity.NewPatientRepo(pool),
		orders:    order.NewRepo(pool),
		plans:     careplan.NewRepo(pool),
		health:    db.HealthHandler(pool),
		close:     pool.Close,
	}, nil
}

func sqliteStore(sqlDB *sql.DB) *store {
	return &store{
		tx:        db.NewSQLTransactor(sqlDB),
		providers: identity.NewProviderRepoSQLite(sqlDB),
		patients:  identity.NewPatientRepoSQLite(sqlDB),
		orders:    order.NewRepoSQLite(sqlDB),
		plans:     careplan.NewRepoSQLite(sqlDB),
		health:    db.SQLiteHealthHandler(sqlDB),
		close:     func() { sqlDB.Close() },
	}
}

type deps struct {
	generator generation.Generator
	publisher events.Publisher
	archive   blobstore.BlobStore
	metrics   *metrics.Metrics
}

// newServer wires services and routes onto a fresh echo instance.
func newServer(cfg *config.Config, logger zerolog.Logger, st *store, d deps) *echo.Echo {
	identitySvc := identity.NewService(st.providers, st.patients, logger)
	identitySvc.SetMetrics(d.metrics)

	orderClock := clock.NewMonotonic(nil)
	detector := order.NewDuplicateDetector(st.orders, orderClock, cfg.DuplicateOrderWindow)
	orderSvc := order.NewService(st.tx, identitySvc, st.orders, detector, orderClock, d.publisher, logger)
	orderSvc.SetMetrics(d.metrics)

	planSvc := careplan.NewService(st.plans, orderSvc, identitySvc, d.generator, clock.Func(time.Now), logger)
	planSvc.SetMetrics(d.metrics)
	planSvc.SetPublisher(d.publisher)
	if d.archive != nil {
		planSvc.SetArchive(d.archive)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(logger)
	e.Pre(echomw.RemoveTrailingSlash())

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	if d.metrics != nil {
		e.Use(d.metrics.Middleware())
	}
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":    "ok",
			"version":   version,
			"generator": d.generator.Name(),
		})
	})
	e.GET("/health/db", st.health)
	if d.metrics != nil {
		e.GET("/metrics", d.metrics.Handler())
	}

	api := e.Group("/api")
	if cfg.BodyLimit != "" {
		api.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
	if cfg.RequestTimeout > 0 {
		api.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rateLimitCfg))

	identity.NewHandler(identitySvc).RegisterRoutes(api)
	order.NewHandler(orderSvc).RegisterRoutes(api)
	careplan.NewHandler(planSvc).RegisterRoutes(api)

	return e
}
