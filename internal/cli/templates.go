package cli

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/edgard/pagebot/internal/database"
	"github.com/edgard/pagebot/internal/spintax"
)

// NewTemplatesCommand creates the templates command group.
func NewTemplatesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage reply templates",
		Long: `Manage the reply template pools. Comment templates are used for public
comment replies; message templates for private replies and direct messages.
Templates may contain spintax groups such as "{Hi|Hello} there".`,
	}

	cmd.AddCommand(newTemplatesListCommand(rootOpts))
	cmd.AddCommand(newTemplatesAddCommand(rootOpts))
	cmd.AddCommand(newTemplatesRemoveCommand(rootOpts))
	cmd.AddCommand(newTemplatesPreviewCommand())

	return cmd
}

func parseKind(s string) (database.TemplateKind, error) {
	kind := database.TemplateKind(s)
	if !kind.Valid() {
		return "", fmt.Errorf("invalid kind %q: must be %q or %q", s, database.TemplateComment, database.TemplateMessage)
	}
	return kind, nil
}

func newTemplatesListCommand(rootOpts *RootOptions) *cobra.Command {
	var kindFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := []database.TemplateKind{database.TemplateComment, database.TemplateMessage}
			if kindFlag != "" {
				kind, err := parseKind(kindFlag)
				if err != nil {
					return err
				}
				kinds = []database.TemplateKind{kind}
			}

			e, err := openEnv(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			var all []database.Template
			for _, kind := range kinds {
				list, err := e.store.ListTemplates(cmd.Context(), kind)
				if err != nil {
					return err
				}
				all = append(all, list...)
			}

			return render(cmd.OutOrStdout(), rootOpts, all, func(w io.Writer) {
				if len(all) == 0 {
					fmt.Fprintln(w, "No templates stored.")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tKIND\tBODY")
				for _, t := range all {
					fmt.Fprintf(tw, "%d\t%s\t%s\n", t.ID, t.Kind, t.Body)
				}
				tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&kindFlag, "kind", "", "only list this pool (comment|message)")
	return cmd
}

func newTemplatesAddCommand(rootOpts *RootOptions) *cobra.Command {
	var kindFlag string

	cmd := &cobra.Command{
		Use:   "add <body>",
		Short: "Add a template to a pool",
		Long: `Add a template to the comment or message pool.

Examples:
  pagebot templates add --kind comment "{Thanks|Thank you} for your comment!"
  pagebot templates add --kind message "{Hi|Hello}, we sent you the details."`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(kindFlag)
			if err != nil {
				return err
			}
			if args[0] == "" {
				return fmt.Errorf("template body is empty")
			}
			if err := spintax.Validate(args[0]); err != nil {
				return err
			}

			e, err := openEnv(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			t, err := e.store.AddTemplate(cmd.Context(), kind, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Template %d added to %s pool.\n", t.ID, t.Kind)
			return nil
		},
	}

	cmd.Flags().StringVar(&kindFlag, "kind", "", "template pool (comment|message)")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func newTemplatesRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid template id %q: %w", args[0], err)
			}

			e, err := openEnv(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.store.DeleteTemplate(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Template %d removed.\n", id)
			return nil
		},
	}
}

func newTemplatesPreviewCommand() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "preview <body>",
		Short: "Print sample expansions of a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := spintax.Validate(args[0]); err != nil {
				return err
			}
			for range count {
				fmt.Fprintln(cmd.OutOrStdout(), spintax.Expand(args[0]))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 5, "number of samples")
	return cmd
}
