package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/schedops/shiftgen/internal/config"
	"github.com/schedops/shiftgen/pkg/core/retry"
	"github.com/schedops/shiftgen/pkg/core/services"
	"github.com/schedops/shiftgen/pkg/postgres"
	"github.com/schedops/shiftgen/pkg/server"
	"github.com/schedops/shiftgen/pkg/utils/logging"
)

// Process exit codes for the console trigger
const (
	exitOK        = 0
	exitCancelled = 1
	exitFatal     = 2
)

// App holds the application dependencies
type App struct {
	cfg      *config.Config
	database *postgres.DB
	job      *services.SchedulerJob
	logger   *zap.Logger
	ctx      context.Context
}

var (
	configPath string
	app        *App
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "shiftgen",
		Short: "Recurring shift generation engine",
		Long:  `Generates and reconciles recurring work-shift records from schedule models, on a timer or on demand.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app != nil {
				if app.logger != nil {
					app.logger.Sync()
				}
				if app.database != nil {
					app.database.Close()
				}
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: shiftgen.yaml in . or $HOME)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(timerCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitFatal)
	}
}

// initApp sets up logger, config, database, and the scheduler job
func initApp() error {
	var err error
	app = &App{
		ctx: context.Background(),
	}

	app.logger, err = logging.InitLogger("shiftgen")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.logger.Info("Loading configuration")
	if configPath != "" {
		app.cfg, err = config.LoadFromPath(configPath)
	} else {
		app.cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.logger.Debug("Configuration loaded successfully")

	app.logger.Info("Connecting to database")
	app.database, err = postgres.NewDB(app.ctx, app.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.logger.Debug("Database connection established")

	retrier := retry.New(retry.Config{
		MaxAttempts: app.cfg.Retry.MaxAttempts,
		BaseBackoff: app.cfg.Retry.BaseBackoff(),
		MaxBackoff:  app.cfg.Retry.MaxBackoff(),
	})

	app.job = services.NewSchedulerJob(app.database, retrier, services.Defaults{
		AdvanceDays:        app.cfg.AdvanceDays,
		MonthlyMonthsAhead: app.cfg.MonthlyMonthsAhead,
	})

	return nil
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one generation run and exit (0 success, 1 cancelled, 2 fatal)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			at, _ := cmd.Flags().GetString("at")
			companyID, _ := cmd.Flags().GetInt64("company")
			modelID, _ := cmd.Flags().GetInt64("model")
			advanceDays, _ := cmd.Flags().GetInt("advance-days")
			monthsAhead, _ := cmd.Flags().GetInt("months-ahead")
			reset, _ := cmd.Flags().GetBool("reset")

			if reset && modelID <= 0 {
				return errors.New("--reset requires a positive --model id")
			}

			var reference time.Time
			if at != "" {
				var err error
				reference, err = time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("failed to parse --at: %w", err)
				}
			}

			ctx, stop := signal.NotifyContext(app.ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			result := app.job.Run(ctx, services.RunParams{
				CompanyID:          companyID,
				ModelID:            modelID,
				AdvanceDays:        advanceDays,
				MonthlyMonthsAhead: monthsAhead,
				Reset:              reset,
				Reference:          reference,
				TriggeredBy:        "console",
			})
			logRunResult(app.logger, result)

			switch result.Status {
			case services.StatusSucceeded:
				return nil
			case services.StatusCancelled:
				app.logger.Sync()
				os.Exit(exitCancelled)
			default:
				app.logger.Sync()
				os.Exit(exitFatal)
			}
			return nil
		},
	}

	cmd.Flags().String("at", "", "Reference date-time (RFC3339, default: now)")
	cmd.Flags().Int64("company", 0, "Restrict the run to one company id")
	cmd.Flags().Int64("model", 0, "Restrict the run to one schedule model id")
	cmd.Flags().Int("advance-days", 0, "Weekly look-ahead in days (default: configured value)")
	cmd.Flags().Int("months-ahead", 0, "Monthly look-ahead in months (default: configured value)")
	cmd.Flags().Bool("reset", false, "Delete the model's future unlinked shifts before generating")

	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP trigger API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := app.cfg.HTTP.Addr
			if addr == "" {
				addr = ":8080"
			}

			handler := server.NewHandler(app.job, app.logger)
			router := server.NewRouter(handler, app.cfg.HTTP.AuthToken, app.cfg.HTTP.AllowedOrigins)

			srv := &http.Server{
				Addr:    addr,
				Handler: router,
			}

			ctx, stop := signal.NotifyContext(app.ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				app.logger.Info("HTTP trigger listening", zap.String("addr", addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}

			app.logger.Info("Shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shut down server: %w", err)
			}

			return nil
		},
	}
}

func timerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timer",
		Short: "Run generation repeatedly on the configured cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			schedule := app.cfg.Timer.Schedule
			if schedule == "" {
				return errors.New("timer.schedule is not configured")
			}

			ctx, stop := signal.NotifyContext(app.ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			c := cron.New()
			_, err := c.AddFunc(schedule, func() {
				app.logger.Info("Timer tick, starting generation run")
				result := app.job.Run(ctx, services.RunParams{TriggeredBy: "timer"})
				logRunResult(app.logger, result)
			})
			if err != nil {
				return fmt.Errorf("failed to schedule timer job: %w", err)
			}

			app.logger.Info("Timer started", zap.String("schedule", schedule))
			c.Start()

			<-ctx.Done()
			app.logger.Info("Timer stopping, waiting for in-flight run")
			<-c.Stop().Done()

			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.logger.Info("Running migrations")
			if err := app.database.RunMigrations(app.ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			app.logger.Info("Migrations applied")
			return nil
		},
	}
}

// logRunResult logs the structured outcome of one run; the engine itself never logs
func logRunResult(logger *zap.Logger, result services.RunResult) {
	fields := []zap.Field{
		zap.String("run_id", result.RunID),
		zap.String("status", string(result.Status)),
		zap.Int("shifts_created", result.ShiftsCreated),
		zap.Int("duplicates_skipped", result.DuplicatesSkipped),
		zap.Int("overlaps_blocked", result.OverlapsBlocked),
		zap.Int("orphaned_deleted", result.OrphanedDeleted),
		zap.Int("reset_deleted", result.ResetDeleted),
		zap.Int("weekly_models", result.WeeklyModels),
		zap.Int("monthly_models", result.MonthlyModels),
		zap.Int("conflicts", result.Conflicts),
		zap.Duration("duration", result.Duration),
	}

	switch result.Status {
	case services.StatusSucceeded:
		logger.Info("Generation run succeeded", fields...)
	case services.StatusCancelled:
		logger.Warn("Generation run cancelled", fields...)
	default:
		logger.Error("Generation run failed", append(fields, zap.String("error", result.ErrorMessage))...)
	}
}
