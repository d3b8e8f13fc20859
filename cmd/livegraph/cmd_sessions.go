package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/livegraph/internal/store"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage recorded snapshot sessions",
		Long: `List and delete the sessions recorded by 'livegraph serve --record'.

Examples:
  livegraph sessions list
  livegraph sessions delete 3f2a`,
	}

	cmd.PersistentFlags().String("db", "", "Recorder database (default from config, ~/.livegraph/recordings.db)")

	cmd.AddCommand(
		newSessionsListCmd(),
		newSessionsDeleteCmd(),
	)
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := openRecorderForCmd(cmd)
			if err != nil {
				return err
			}
			defer rec.Close()

			sessions, err := rec.ListSessions(cmd.Context())
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				if sessions == nil {
					sessions = []store.Session{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"sessions": sessions,
					"count":    len(sessions),
				})
			}

			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No recorded sessions.")
				return nil
			}
			fmt.Fprintf(out, "%-36s  %-12s  %-20s  %9s  %s\n", "ID", "PANE", "STARTED", "SNAPSHOTS", "LABEL")
			for _, s := range sessions {
				fmt.Fprintf(out, "%-36s  %-12s  %-20s  %9d  %s\n",
					s.ID, s.Pane, s.StartedAt.Local().Format(time.DateTime), s.Snapshots, s.Label)
			}
			return nil
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session>",
		Short: "Delete a recorded session and its snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := openRecorderForCmd(cmd)
			if err != nil {
				return err
			}
			defer rec.Close()

			ctx := cmd.Context()
			id, err := rec.ResolveSession(ctx, args[0])
			if err != nil {
				return err
			}
			if err := rec.DeleteSession(ctx, id); err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
					"status":  "deleted",
					"session": id,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", id)
			return nil
		},
	}
}

func openRecorderForCmd(cmd *cobra.Command) (*store.Recorder, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	dbPath, _ := cmd.Flags().GetString("db")
	return openRecorder(cfg, dbPath)
}
