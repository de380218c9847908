// cmd/project-editor/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"project-desk/internal/backend"
	"project-desk/internal/common/config"
	"project-desk/internal/common/database"
	"project-desk/internal/common/logger"
	"project-desk/internal/common/observability"
	"project-desk/internal/files"
	"project-desk/internal/notify"
	"project-desk/internal/project"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

var (
	projectID  string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "project-editor",
	Short: "Edit one project record with autosave and local drafts",
	Long: `project-editor opens a single project, overlays any unsaved local draft,
and saves edits to the backend after a quiet period. Completing a project
requires at least one output file and a confirmed checklist.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func main() {
	rootCmd.Flags().StringVar(&projectID, "project", "", "id of the project to open")
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a config file (defaults to configs/config.yaml)")
	_ = rootCmd.MarkFlagRequired("project")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Warn("observability init failed, continuing without exporters", zap.Error(err))
		obs = observability.NewNoop(cfg.App.Name)
	}
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Draft overlay ---
	var drafts project.DraftStore
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Drafts.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 3, 500*time.Millisecond, zapLog, "Redis connection")
	if err != nil {
		// Editing still works; unsaved edits just won't survive a restart.
		zapLog.Warn("draft store unavailable", zap.Error(err))
	} else {
		defer redis.Close()
		drafts = project.NewRedisDraftStore(redis.Client, cfg.Drafts.KeyPrefix,
			time.Duration(cfg.Drafts.TTL)*time.Second, log)
		zapLog.Info("Redis connected successfully")
	}

	// --- Backend and file listing ---
	api := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIToken,
		config.GetDuration(cfg.Backend.Timeout), obs)

	var counter files.Counter = api
	if cfg.Files.Source == config.FileSourcePostgres {
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Files.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 5, time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			return fmt.Errorf("postgres failed after retries: %w", err)
		}
		defer pg.Close()
		counter = files.NewPostgresCounter(pg.DB, log)
		zapLog.Info("PostgreSQL connected successfully")
	}

	// --- Completion notifier ---
	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.Notifications.SNS.Enabled {
		snsClient, err := notify.NewSNSService(ctx, cfg.Notifications.SNS.Region)
		if err != nil {
			return fmt.Errorf("sns client init failed: %w", err)
		}
		notifier = notify.NewSNSNotifier(snsClient, cfg.Notifications.SNS.TopicARN, log)
	}

	// --- Metrics endpoint ---
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status":  "healthy",
				"project": projectID,
			})
		})
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Address, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zapLog.Error("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	session, err := project.Open(ctx, projectID, project.Dependencies{
		API:      api,
		Files:    counter,
		Drafts:   drafts,
		Notifier: notifier,
		Logger:   log,
	}, project.Options{
		QuietPeriod: config.GetDuration(cfg.Autosave.QuietPeriodMs),
		SaveTimeout: config.GetDuration(cfg.Autosave.SaveTimeout),
	})
	if err != nil {
		zapLog.Error("open project failed", zap.String("projectId", projectID), zap.Error(err))
		return err
	}
	defer session.Close()

	zapLog.Info("Project opened", zap.String("projectId", projectID))

	if err := runCommands(ctx, session, os.Stdin, os.Stdout); err != nil {
		zapLog.Error("command loop stopped", zap.Error(err))
	}

	// Flush whatever is still pending before exiting.
	if session.AutosaveState() != project.StateIdle {
		saveCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Autosave.SaveTimeout))
		if err := session.Save(saveCtx); err != nil {
			zapLog.Warn("final save failed", zap.Error(err))
		}
		cancel()
	}
	zapLog.Info("Project editor stopped")
	return nil
}
