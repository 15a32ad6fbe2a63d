// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/reconcile-engine/internal/lineage"
	"github.com/pdiddy/reconcile-engine/internal/search"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect exported snapshot files",
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show FILE",
	Short: "Describe an exported snapshot and list its records",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshotShow,
}

func init() {
	snapshotShowCmd.Flags().Int("limit", 0, "maximum records to print (0 = all)")
	snapshotShowCmd.Flags().Bool("json", false, "output records as JSON")

	snapshotCmd.AddCommand(snapshotShowCmd)
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshotShow(cmd *cobra.Command, args []string) error {
	f, err := lineage.ReadFile(args[0])
	if err != nil {
		return err
	}
	records := f.Snapshot.Records
	if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && limit < len(records) {
		records = records[:limit]
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return search.FormatJSON(os.Stdout, records)
	}

	snap := f.Snapshot
	fmt.Printf("Snapshot:    %s (version %d in its session)\n", snap.ID, snap.Seq)
	if snap.Label != "" {
		fmt.Printf("Label:       %s\n", snap.Label)
	}
	fmt.Printf("Provenance:  %s\n", f.Description)
	fmt.Printf("Created:     %s\n", snap.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Exported:    %s\n", f.ExportedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Records:     %d of %d matched\n\n", len(snap.Records), snap.TotalMatched)
	search.FormatTable(os.Stdout, records, search.TableOptions{Total: len(snap.Records)})
	return nil
}
