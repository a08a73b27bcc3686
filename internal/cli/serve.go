package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgard/pagebot/internal/audit"
	"github.com/edgard/pagebot/internal/bot"
	"github.com/edgard/pagebot/internal/bot/tasks"
	"github.com/edgard/pagebot/internal/config"
	"github.com/edgard/pagebot/internal/database"
	"github.com/edgard/pagebot/internal/dispatch"
	"github.com/edgard/pagebot/internal/graph"
	"github.com/edgard/pagebot/internal/guard"
	"github.com/edgard/pagebot/internal/logger"
	"github.com/edgard/pagebot/internal/webhook"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		Long: `Run the webhook endpoint that answers the platform's verification
handshake and replies to new comments and direct messages.

Examples:
  pagebot serve --config ./config.yaml
  PAGEBOT_WEBHOOK_VERIFY_TOKEN=secret pagebot serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(rootOpts.ConfigPath)
			if err != nil {
				return err
			}

			log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
			slog.SetDefault(log)
			log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

			return serve(cmd.Context(), cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return err
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	g := guard.New(store, cfg.Retention.ProcessedEvents, log)
	if err := g.Load(ctx); err != nil {
		log.Error("Failed to load processed events", "error", err)
		return err
	}

	history := audit.New(store, cfg.Retention.History, log)
	api := graph.NewClient(graph.Config{
		BaseURL:    cfg.Graph.BaseURL,
		APIVersion: cfg.Graph.APIVersion,
		Timeout:    cfg.Graph.Timeout,
	}, log)

	router := webhook.NewRouter(webhook.RouterDeps{
		Logger: log,
		Guard:  g,
		Dispatcher: dispatch.New(dispatch.Deps{
			Logger:      log,
			Credentials: store,
			Sender:      api,
			Recorder:    history,
		}),
		Snapshots:   store,
		VerifyToken: cfg.Webhook.VerifyToken,
	})

	handler := logger.Middleware(log)(webhook.NewHandler(cfg.Webhook.Path, router, store, log))
	server := &http.Server{
		Addr:              cfg.Webhook.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Webhook.ReadTimeout,
		ReadTimeout:       cfg.Webhook.ReadTimeout,
		WriteTimeout:      cfg.Webhook.WriteTimeout,
	}

	taskMap := tasks.RegisterAllTasks(tasks.TaskDeps{Logger: log, Store: store, History: history, DatabasePath: cfg.Database.Path})
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, taskMap)
	if err != nil {
		return err
	}

	log.Info("Starting bot...", "addr", cfg.Webhook.ListenAddr, "path", cfg.Webhook.Path)
	runErr := bot.NewBot(log, server, sched).Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		return fmt.Errorf("server stopped: %w", runErr)
	}

	log.Info("Bot stopped gracefully.")
	// Allow logs to flush before exiting.
	time.Sleep(100 * time.Millisecond)
	return nil
}
