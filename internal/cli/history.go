package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgard/pagebot/internal/audit"
)

// NewHistoryCommand creates the history command group.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the reply history",
	}

	cmd.AddCommand(newHistoryListCommand(rootOpts))
	cmd.AddCommand(newHistoryStatsCommand(rootOpts))
	cmd.AddCommand(newHistoryClearCommand(rootOpts))

	return cmd
}

func newHistoryListCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent history entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			entries, err := audit.New(e.store, e.cfg.Retention.History, e.logger).List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), rootOpts, entries, func(w io.Writer) {
				if len(entries) == 0 {
					fmt.Fprintln(w, "History is empty.")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TIME\tPAGE\tACTION\tSTATUS\tTARGET\tDETAILS")
				for _, h := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						h.CreatedAt.Local().Format(time.DateTime), h.PageName, h.Action, h.Status, h.TargetID, h.Details)
				}
				tw.Flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "maximum number of entries")
	return cmd
}

func newHistoryStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show today's activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			stored, err := e.store.ListPages(ctx)
			if err != nil {
				return err
			}
			successes, err := audit.New(e.store, e.cfg.Retention.History, e.logger).SuccessesToday(ctx)
			if err != nil {
				return err
			}

			stats := struct {
				Pages          int `json:"pages"`
				SuccessesToday int `json:"successes_today"`
			}{len(stored), successes}
			return render(cmd.OutOrStdout(), rootOpts, stats, func(w io.Writer) {
				fmt.Fprintf(w, "Pages: %d\nSuccessful actions today: %d\n", stats.Pages, stats.SuccessesToday)
			})
		},
	}
}

func newHistoryClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every history entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := audit.New(e.store, e.cfg.Retention.History, e.logger).Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
			return nil
		},
	}
}
