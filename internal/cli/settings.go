package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/edgard/pagebot/internal/database"
)

// NewSettingsCommand creates the settings command group.
func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the reply toggles",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the current toggles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			s, err := e.store.GetSettings(cmd.Context())
			if err != nil {
				return err
			}

			return render(cmd.OutOrStdout(), rootOpts, s, func(w io.Writer) {
				fmt.Fprintf(w, "%s: %t\n", database.SettingAutoReplyComments, s.AutoReplyComments)
				fmt.Fprintf(w, "%s: %t\n", database.SettingAutoReplyMessages, s.AutoReplyMessages)
				fmt.Fprintf(w, "%s: %t\n", database.SettingSendPrivateReply, s.SendPrivateReply)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "set <key> <true|false>",
		Short:     "Change a toggle",
		Args:      cobra.ExactArgs(2),
		ValidArgs: database.SettingKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[1], err)
			}

			e, err := openEnv(cmd, rootOpts)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.store.SetSetting(cmd.Context(), args[0], value); err != nil {
				return fmt.Errorf("%w (known: %v)", err, database.SettingKeys)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s set to %t.\n", args[0], value)
			return nil
		},
	})

	return cmd
}
