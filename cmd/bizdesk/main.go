package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/bizdesk/bizdesk/cmd/bizdesk/cli"
	"github.com/bizdesk/bizdesk/internal/app"
	"github.com/bizdesk/bizdesk/internal/audit"
	"github.com/bizdesk/bizdesk/internal/inventory"
	"github.com/bizdesk/bizdesk/internal/invoicing"
	"github.com/bizdesk/bizdesk/internal/lookup"
	"github.com/bizdesk/bizdesk/internal/masterdata"
	"github.com/bizdesk/bizdesk/internal/observability"
	"github.com/bizdesk/bizdesk/internal/payroll"
	"github.com/bizdesk/bizdesk/internal/platform/cache"
	"github.com/bizdesk/bizdesk/internal/platform/db"
	"github.com/bizdesk/bizdesk/internal/pricing"
	"github.com/bizdesk/bizdesk/internal/procurement"
	"github.com/bizdesk/bizdesk/internal/sales"
	"github.com/bizdesk/bizdesk/internal/sequence"
	"github.com/bizdesk/bizdesk/internal/shared"
	"github.com/bizdesk/bizdesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if err := rootCommand(cfg, logger).ExecuteContext(ctx); err != nil {
		logger.Error("bizdesk", slog.Any("error", err))
		os.Exit(1)
	}
}

func rootCommand(cfg *app.Config, logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "bizdesk",
		Short:         "Business administration backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve(cmd.Context(), cfg, logger)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the database schema",
			RunE: func(cmd *cobra.Command, _ []string) error {
				pool, err := db.New(cmd.Context(), cfg.PGDSN, db.PoolOptions{})
				if err != nil {
					return err
				}
				defer pool.Close()
				if err := db.Migrate(cmd.Context(), pool); err != nil {
					return err
				}
				logger.Info("schema applied")
				return nil
			},
		},
		jobsCommand(cfg, logger),
	)
	return root
}

func jobsCommand(cfg *app.Config, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{Use: "jobs", Short: "Manage background jobs"}

	open := func() (*cli.JobsCLI, error) {
		return cli.NewJobsCLI(cache.QueueOpt(cfg.RedisAddr))
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:       "trigger <name>",
			Short:     "Enqueue a job now",
			Args:      cobra.ExactArgs(1),
			ValidArgs: []string{jobs.TaskQuotationsExpire, jobs.TaskIdempotencyCleanup, jobs.TaskInventoryLowStock},
			RunE: func(c *cobra.Command, args []string) error {
				helper, err := open()
				if err != nil {
					return err
				}
				defer helper.Close()
				info, err := helper.Trigger(c.Context(), args[0])
				if err != nil {
					return err
				}
				logger.Info("job enqueued", slog.String("type", info.Type), slog.String("id", info.ID), slog.String("queue", info.Queue))
				return nil
			},
		},
		&cobra.Command{
			Use:   "inspect",
			Short: "Show queue statistics",
			RunE: func(c *cobra.Command, _ []string) error {
				helper, err := open()
				if err != nil {
					return err
				}
				defer helper.Close()
				stats, err := helper.InspectQueue(c.Context())
				if err != nil {
					return err
				}
				enc := json.NewEncoder(c.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			},
		},
	)
	return cmd
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(cache.QueueOpt(cfg.RedisAddr))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	params := buildHandlers(ctx, cfg, logger, pool, redisClient, metrics)
	params.JobHandler = jobs.NewHandler(inspector, logger)

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      app.NewRouter(params),
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildHandlers(ctx context.Context, cfg *app.Config, logger *slog.Logger, pool *pgxpool.Pool, redisClient *redis.Client, metrics *observability.Metrics) app.RouterParams {
	runner := db.NewRunner(pool, cfg.TxMaxAttempts)
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	lookupService := lookup.NewService(lookup.NewPGSource(pool), lookup.NewCache(redisClient, cfg.LookupCacheTTL), cfg.LookupCacheTTL, logger)
	go func() {
		if err := lookupService.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("lookup invalidation listener stopped", slog.Any("error", err))
		}
	}()

	masterdataService := masterdata.NewService(masterdata.NewRepository(pool), auditLogger, lookupService)
	inventoryService := inventory.NewService(inventory.NewRepository(pool, runner), auditLogger, lookupService)
	salesService := sales.NewService(sales.NewRepository(pool, runner), auditLogger, idempotencyStore, metrics)
	invoicingService := invoicing.NewService(invoicing.NewRepository(pool, runner), masterdataService, auditLogger, metrics)
	procurementService := procurement.NewService(procurement.NewRepository(pool, runner), auditLogger, metrics)
	payrollService := payroll.NewService(payroll.NewRepository(pool, runner), auditLogger, lookupService, metrics)

	return app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		TotalsHandler:      pricing.NewHandler(logger),
		SequenceHandler:    sequence.NewHandler(logger, sequence.NewPGCounterReader(pool)),
		LookupHandler:      lookup.NewHandler(logger, lookupService),
		MasterDataHandler:  masterdata.NewHandler(logger, masterdataService),
		InventoryHandler:   inventory.NewHandler(logger, inventoryService),
		SalesHandler:       sales.NewHandler(logger, salesService),
		InvoicingHandler:   invoicing.NewHandler(logger, invoicingService, cfg.CompanyName),
		ProcurementHandler: procurement.NewHandler(logger, procurementService),
		PayrollHandler:     payroll.NewHandler(logger, payrollService),
		AuditHandler:       audit.NewHandler(logger, audit.NewService(audit.NewRepository(pool))),
	}
}
