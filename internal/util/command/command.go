package command

import (
	"github.com/spf13/cobra"
)

// NewSubcommandGroup returns a group command that only exists to hold
// subcommands; calling it without one prints usage and fails
func NewSubcommandGroup(use string, subcommands ...*cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use: use,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(subcommands...)

	return cmd
}
