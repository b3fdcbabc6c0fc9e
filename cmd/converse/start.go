package main

import (
	"github.com/spf13/cobra"

	converse "github.com/vango-go/vai-converse/sdk"
)

func NewStartCmd(deps *Dependencies) *cobra.Command {
	var opts sessionOptions

	cmd := &cobra.Command{
		Use:   "start <agent-link>",
		Short: "Start a new conversation from a shared agent link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := deps.newClient().Sessions.StartDirect(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			deps.Logger.Info("conversation started", "session_id", res.SessionID, "agent", res.AgentName)
			if res.Message != "" {
				deps.Renderer.Notice(converse.Notification{Severity: converse.SeverityInfo, Message: res.Message})
			}
			return runConversation(cmd.Context(), deps, res.SessionID, res.AgentName, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.noExport, "no-export", false, "do not save the summary file")
	cmd.Flags().StringVar(&opts.exportDir, "export-dir", "", "directory for the summary file (default from config)")

	return cmd
}
