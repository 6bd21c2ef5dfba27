package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/justdick/hms-billing/internal/config"
	"github.com/justdick/hms-billing/internal/domain/billing"
	"github.com/justdick/hms-billing/internal/domain/catalog"
	"github.com/justdick/hms-billing/internal/domain/insurance"
	"github.com/justdick/hms-billing/internal/domain/tariff"
	"github.com/justdick/hms-billing/internal/platform/auth"
	"github.com/justdick/hms-billing/internal/platform/cache"
	"github.com/justdick/hms-billing/internal/platform/db"
	"github.com/justdick/hms-billing/internal/platform/middleware"
	"github.com/justdick/hms-billing/internal/platform/notification"
)

// TariffMapperAdapter adapts a tariff.Store to the catalog.TariffMapper
// interface, avoiding circular imports between the catalog and tariff
// packages. Catalog auto-mapping only cares that the mapping was recorded.
type TariffMapperAdapter struct {
	store *tariff.Store
}

// NewTariffMapperAdapter creates a new adapter.
func NewTariffMapperAdapter(store *tariff.Store) *TariffMapperAdapter {
	return &TariffMapperAdapter{store: store}
}

// MapItem implements catalog.TariffMapper.
func (a *TariffMapperAdapter) MapItem(ctx context.Context, itemType string, itemID uuid.UUID, code string) error {
	_, err := a.store.MapItem(ctx, itemType, itemID, code)
	return err
}

// CoverageReviewSink delivers new-item coverage review events to the
// configured reviewer addresses through the notification manager. It
// implements catalog.EventSink.
type CoverageReviewSink struct {
	manager    *notification.Manager
	recipients []string
	baseURL    string
	logger     zerolog.Logger
}

// NewCoverageReviewSink creates a sink that fans each event out to every
// recipient address.
func NewCoverageReviewSink(mgr *notification.Manager, recipients []string, baseURL string, logger zerolog.Logger) *CoverageReviewSink {
	return &CoverageReviewSink{manager: mgr, recipients: recipients, baseURL: baseURL, logger: logger}
}

// NewItemCoverage implements catalog.EventSink.
func (s *CoverageReviewSink) NewItemCoverage(ctx context.Context, ev catalog.NewItemCoverageEvent) error {
	data := map[string]string{
		"item_type":       ev.ItemType,
		"item_name":       ev.ItemName,
		"item_code":       ev.ItemCode,
		"plan_name":       ev.PlanName,
		"default_percent": strconv.FormatFloat(ev.DefaultCoveragePercent, 'f', -1, 64),
		"review_link":     fmt.Sprintf("%s/admin/plans/%s/rules/new?item=%s", s.baseURL, ev.PlanID, ev.ItemID),
	}
	for _, recipient := range s.recipients {
		if _, err := s.manager.SendFromTemplate(ctx, notification.TemplateNewItemCoverageReview, data, recipient); err != nil {
			s.logger.Warn().Err(err).
				Str("recipient", recipient).
				Str("item_code", ev.ItemCode).
				Msg("coverage review notification failed")
		}
	}
	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "billing-server",
		Short: "Coverage resolution and billing gate API server",
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
		Short: "Start the billing API server",
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
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
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

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Restore from a database backup or write a forward migration instead.")
			return nil
		},
	})

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Repositories
	planRepo := insurance.NewPlanRepoPG(pool)
	ruleRepo := insurance.NewRuleRepoPG(pool)
	enrollmentRepo := insurance.NewEnrollmentRepoPG(pool)

	// Optional Redis cache in front of coverage rule reads. Rule lookups sit
	// on the hot path of every charge, so cache them when Redis is available.
	if cfg.RedisURL != "" {
		ruleCache, err := cache.New(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, coverage rules will be read directly")
		} else {
			defer ruleCache.Close()
			ruleRepo = insurance.NewCachedRuleRepo(ruleRepo, ruleCache, logger)
			logger.Info().Msg("coverage rule cache enabled")
		}
	}

	// Domain services
	tariffStore := tariff.NewStore(tariff.NewTariffRepoPG(pool), tariff.NewMappingRepoPG(pool))
	resolver := insurance.NewResolver(planRepo, ruleRepo, enrollmentRepo, logger)
	quoter := insurance.NewQuoter(resolver, planRepo, ruleRepo, enrollmentRepo, tariffStore, logger)
	insuranceSvc := insurance.NewService(planRepo, ruleRepo, enrollmentRepo)

	billingSvc := billing.NewService(
		billing.NewChargeRepoPG(pool),
		billing.NewGateRuleRepoPG(pool),
		billing.NewOverrideRepoPG(pool),
		quoter,
		logger,
	)

	// Notifications. Mock senders until SMTP/SMS providers are connected.
	templates := notification.NewTemplateEngine()
	notifyMgr := notification.NewManager(&notification.MockEmailSender{}, &notification.MockSMSSender{}, templates)

	baseURL := fmt.Sprintf("http://localhost:%s", cfg.Port)
	reviewSink := NewCoverageReviewSink(notifyMgr, cfg.NotifyRecipients, baseURL, logger)
	coverageNotifier := catalog.NewNotifier(planRepo, resolver, reviewSink, logger)

	catalogSvc := catalog.NewService(
		catalog.NewItemRepoPG(pool),
		NewTariffMapperAdapter(tariffStore),
		coverageNotifier,
		logger,
	)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Timeout(time.Duration(cfg.RequestTimeoutMS) * time.Millisecond))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		h := db.Check(c.Request().Context(), pool)
		status := http.StatusOK
		if !h.Healthy {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, h)
	})

	// API group
	apiV1 := e.Group("/api/v1")
	apiV1.Use(auth.Middleware(cfg.AuthSecret, cfg.IsDev()))

	insurance.NewHandler(insuranceSvc, resolver, quoter).RegisterRoutes(apiV1)
	tariff.NewHandler(tariffStore).RegisterRoutes(apiV1)
	billing.NewHandler(billingSvc).RegisterRoutes(apiV1)
	catalog.NewHandler(catalogSvc).RegisterRoutes(apiV1)

	notifyGroup := apiV1.Group("", auth.RequireRole("admin", "billing"))
	notification.NewHandler(notifyMgr).RegisterRoutes(notifyGroup)

	// Start server with graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting billing server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
