package main

import (
	"github.com/spf13/cobra"
)

func NewJoinCmd(deps *Dependencies) *cobra.Command {
	var agentName string
	var opts sessionOptions

	cmd := &cobra.Command{
		Use:   "join <session-id>",
		Short: "Join an existing conversation session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConversation(cmd.Context(), deps, args[0], agentName, opts)
		},
	}

	cmd.Flags().StringVarP(&agentName, "agent", "a", "", "agent display name until the server reports one")
	cmd.Flags().BoolVar(&opts.noExport, "no-export", false, "do not save the summary file")
	cmd.Flags().StringVar(&opts.exportDir, "export-dir", "", "directory for the summary file (default from config)")

	return cmd
}
