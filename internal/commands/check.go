package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	var flags sharedFlags
	cmd := &cobra.Command{
		Use:          "check",
		Short:        "Validate the configuration without calling GitHub",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, &flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func runCheck(cmd *cobra.Command, flags *sharedFlags) error {
	cfg, err := flags.loadConfig(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	data, err := redacted(cfg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
