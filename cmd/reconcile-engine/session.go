// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"

	"github.com/pdiddy/reconcile-engine/internal/shell"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start an interactive reconciliation session",
	Long: `Session opens an interactive shell over one live result set. Search,
fetch more, filter with an AI condition, add enrichment columns, and keep
snapshots of each step. Type 'help' inside the shell for the commands.

Snapshots live in memory for the session; the lineage journal is kept at
journal.dsn (in memory unless configured).`,
	RunE: runSession,
}

func init() {
	sessionCmd.Flags().String("history-file", "", "file for shell line history (default: none)")

	rootCmd.AddCommand(sessionCmd)
}

func runSession(cmd *cobra.Command, args []string) error {
	eng, err := newEngine(engineConfig, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer eng.Close()

	historyFile, _ := cmd.Flags().GetString("history-file")
	sh, err := shell.New(&shell.Config{
		Session:     eng.session,
		History:     eng.journal,
		HistoryFile: historyFile,
	})
	if err != nil {
		return err
	}
	return sh.Run(cmd.Context())
}
