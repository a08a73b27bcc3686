package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/edgard/pagebot/internal/audit"
	"github.com/edgard/pagebot/internal/database"
	"github.com/edgard/pagebot/internal/graph"
	"github.com/edgard/pagebot/internal/pages"
)

// UserTokenEnv names the environment variable read by "pages import" when
// --user-token is not given.
const UserTokenEnv = "PAGEBOT_USER_TOKEN"

// NewPagesCommand creates the pages command group.
func NewPagesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pages",
		Short: "Manage the pages the service replies for",
	}

	cmd.AddCommand(newPagesListCommand(rootOpts))
	cmd.AddCommand(newPagesAddCommand(rootOpts))
	cmd.AddCommand(newPagesRemoveCommand(rootOpts))
	cmd.AddCommand(newPagesImportCommand(rootOpts))
	cmd.AddCommand(newPagesSubscribeCommand(rootOpts))

	return cmd
}

// pageView hides the token in listings.
type pageView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	HasToken bool   `json:"has_token"`
}

func newPagesListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored pages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			stored, err := e.store.ListPages(cmd.Context())
			if err != nil {
				return err
			}

			views := make([]pageView, 0, len(stored))
			for _, p := range stored {
				views = append(views, pageView{ID: p.ID, Name: p.Name, HasToken: p.Token != ""})
			}

			return render(cmd.OutOrStdout(), rootOpts, views, func(w io.Writer) {
				if len(views) == 0 {
					fmt.Fprintln(w, "No pages stored.")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tTOKEN")
				for _, v := range views {
					token := "missing"
					if v.HasToken {
						token = "set"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", v.ID, v.Name, token)
				}
				tw.Flush()
			})
		},
	}
}

func newPagesAddCommand(rootOpts *RootOptions) *cobra.Command {
	var page database.Page

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a page",
		Long: `Add a page, or update the name and token of a stored page.

Examples:
  pagebot pages add --id 1234567890 --name "My Shop" --token EAAB...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			svc := pages.NewService(nil, e.store, nil, e.logger)
			if err := svc.Add(cmd.Context(), page); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Page %s saved.\n", page.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&page.ID, "id", "", "page id (required)")
	cmd.Flags().StringVar(&page.Name, "name", "", "page display name")
	cmd.Flags().StringVar(&page.Token, "token", "", "page access token (required)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("token")

	return cmd
}

func newPagesRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <page-id>",
		Short: "Remove a stored page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.store.DeletePage(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Page %s removed.\n", args[0])
			return nil
		},
	}
}

func newService(e *env) *pages.Service {
	api := graph.NewClient(graph.Config{
		BaseURL:    e.cfg.Graph.BaseURL,
		APIVersion: e.cfg.Graph.APIVersion,
		Timeout:    e.cfg.Graph.Timeout,
	}, e.logger)
	history := audit.New(e.store, e.cfg.Retention.History, e.logger)
	return pages.NewService(api, e.store, history, e.logger)
}

func newPagesImportCommand(rootOpts *RootOptions) *cobra.Command {
	var userToken string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import the pages managed by a user token",
		Long: `Fetch every page the given user access token manages and store the
ones that are not stored yet.

Examples:
  pagebot pages import --user-token EAAB...
  PAGEBOT_USER_TOKEN=EAAB... pagebot pages import`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userToken == "" {
				userToken = os.Getenv(UserTokenEnv)
			}
			if userToken == "" {
				return errors.New("a user token is required: pass --user-token or set " + UserTokenEnv)
			}

			e, err := openEnv(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			fetched, added, err := newService(e).Import(cmd.Context(), userToken)
			if err != nil {
				return err
			}

			result := struct {
				Fetched int `json:"fetched"`
				Added   int `json:"added"`
			}{len(fetched), added}
			return render(cmd.OutOrStdout(), rootOpts, result, func(w io.Writer) {
				fmt.Fprintf(w, "Fetched %d pages, added %d new.\n", result.Fetched, result.Added)
			})
		},
	}

	cmd.Flags().StringVar(&userToken, "user-token", "", "user access token with pages permissions")
	return cmd
}

func newPagesSubscribeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe",
		Short: "Subscribe every stored page to feed and message webhooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			results, err := newService(e).SubscribeAll(cmd.Context())
			if err != nil {
				return err
			}

			type view struct {
				PageID   string `json:"page_id"`
				PageName string `json:"page_name"`
				OK       bool   `json:"ok"`
				Error    string `json:"error,omitempty"`
			}
			views := make([]view, 0, len(results))
			failed := 0
			for _, r := range results {
				v := view{PageID: r.PageID, PageName: r.PageName, OK: r.Err == nil}
				if r.Err != nil {
					v.Error = r.Err.Error()
					failed++
				}
				views = append(views, v)
			}

			if err := render(cmd.OutOrStdout(), rootOpts, views, func(w io.Writer) {
				for _, v := range views {
					if v.OK {
						fmt.Fprintf(w, "%s (%s): subscribed\n", v.PageName, v.PageID)
					} else {
						fmt.Fprintf(w, "%s (%s): failed: %s\n", v.PageName, v.PageID, v.Error)
					}
				}
				fmt.Fprintf(w, "%d of %d pages subscribed.\n", len(views)-failed, len(views))
			}); err != nil {
				return err
			}

			if failed > 0 {
				return fmt.Errorf("%d pages failed to subscribe", failed)
			}
			return nil
		},
	}
}
