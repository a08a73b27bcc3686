// Package cli implements the pagebot command line: the webhook server and
// the administration commands for pages, templates, settings and history.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/edgard/pagebot/internal/config"
	"github.com/edgard/pagebot/internal/database"
	"github.com/edgard/pagebot/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "pagebot",
		Short: "Auto-reply service for page comments and messages",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "./config.yaml", "path to configuration file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewPagesCommand(opts))
	cmd.AddCommand(NewTemplatesCommand(opts))
	cmd.AddCommand(NewSettingsCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// env is the shared state opened by administration commands.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sqlx.DB
	store  database.Store
}

// openEnv loads configuration and opens the database. Administration output
// goes to stdout, so logs go to the command's error stream.
func openEnv(cmd *cobra.Command, opts *RootOptions) (*env, error) {
	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	log := logger.NewLoggerTo(cmd.ErrOrStderr(), cfg.Logger.Level, cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", cfg.Database.Path, err)
	}

	return &env{cfg: cfg, logger: log, db: db, store: database.NewStore(db, log)}, nil
}

func (e *env) Close() {
	database.CloseDB(e.db)
}

// render writes v as indented JSON when the json format is selected, or
// calls text otherwise.
func render(w io.Writer, opts *RootOptions, v any, text func(io.Writer)) error {
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
