package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wenwu/saas-platform/lease-service/internal/config"
	"github.com/wenwu/saas-platform/lease-service/internal/db"
	"github.com/wenwu/saas-platform/lease-service/internal/http"
	"github.com/wenwu/saas-platform/lease-service/internal/logger"
	"github.com/wenwu/saas-platform/lease-service/internal/service"
)

var (
	cfg *config.Config
	log *zap.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lease-service",
		Short:         "VPS lease service: catalog, checkout, leases and billing cycles",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.Load()
			var err error
			log, err = logger.New(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				_ = log.Sync()
			}
		},
	}

	root.AddCommand(newServeCmd(), newMigrateCmd(), newSweepCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the lease expiration sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log, autoMigrate)
			if err != nil {
				return err
			}
			defer a.Close()

			log.Info("starting lease service",
				zap.String("store", cfg.Store.Driver),
				zap.String("port", cfg.Server.Port),
				zap.Duration("sweep_interval", cfg.Billing.SweepInterval),
			)

			if err := a.catalog.Refresh(ctx); err != nil {
				log.Warn("catalog warm-up failed", zap.Error(err))
			}

			server := http.NewServer(cfg, a.httpServices(), log)
			sweeper := service.NewSweeper(a.leases, cfg.Billing.SweepInterval, log)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				sweeper.Run(ctx)
				return nil
			})
			g.Go(func() error {
				return server.Run(ctx, ":"+cfg.Server.Port)
			})

			err = g.Wait()
			log.Info("lease service stopped")
			return err
		},
	}

	cmd.Flags().BoolVar(&autoMigrate, "migrate", true, "apply pending database migrations before serving")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var down int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations, or roll back with --down",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, &cfg.Database, log)
			if err != nil {
				return err
			}
			defer pool.Close()

			if down > 0 {
				err = db.MigrateDown(pool, down)
			} else {
				err = db.Migrate(pool)
			}
			if err != nil {
				return err
			}

			version, dirty, err := db.Version(pool)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}

	cmd.Flags().IntVar(&down, "down", 0, "number of migrations to roll back")
	return cmd
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one lease expiration and overdue billing sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, log, false)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.leases.CheckLeaseExpirations(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired leases: %d, overdue cycles: %d\n",
				len(result.ExpiredLeases), len(result.OverdueCycles))
			return nil
		},
	}
}
