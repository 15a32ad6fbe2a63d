// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/reconcile-engine/internal/search"
	"github.com/pdiddy/reconcile-engine/pkg/types"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the primary and secondary indexes once",
	Long: `Search queries the primary literature index and the secondary citation
index concurrently, flags secondary records that duplicate primary ones, and
prints the combined list. A source that fails is reported as a warning; the
other source's results are still shown.

Use --all to keep fetching until the global cap, and --save to export the
result as a snapshot file that "session" can import later.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().String("query", "", "free-text research question")
	searchCmd.Flags().String("author", "", "filter by author name")
	searchCmd.Flags().String("keywords", "", "filter by keywords (comma-separated)")
	searchCmd.Flags().String("from", "", "publication date range start (YYYY, YYYY-MM, or YYYY-MM-DD)")
	searchCmd.Flags().String("to", "", "publication date range end (YYYY, YYYY-MM, or YYYY-MM-DD)")
	searchCmd.Flags().String("source", "all", "sources to query: all, primary, or secondary")
	searchCmd.Flags().Int("limit", 0, "maximum records to print (0 = display cap)")
	searchCmd.Flags().Bool("all", false, "fetch more pages up to the global cap")
	searchCmd.Flags().Bool("json", false, "output results as JSON")
	searchCmd.Flags().String("save", "", "export the result snapshot to this YAML file")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query, err := queryFromFlags(cmd, args)
	if err != nil {
		return err
	}
	source, _ := cmd.Flags().GetString("source")
	st, err := types.ParseSourceType(source)
	if err != nil {
		return err
	}

	eng, err := newEngine(engineConfig, os.Stderr)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := cmd.Context()
	res, err := eng.session.Search(ctx, query, st)
	if err != nil {
		return err
	}
	if all, _ := cmd.Flags().GetBool("all"); all {
		if _, err := eng.session.LoadMore(ctx, ""); err != nil {
			return err
		}
	}

	if path, _ := cmd.Flags().GetString("save"); path != "" {
		id := res.SnapshotID
		if all, _ := cmd.Flags().GetBool("all"); all {
			if id, err = eng.session.SaveSnapshot(""); err != nil {
				return err
			}
		}
		if err := eng.session.ExportSnapshot(id, path); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved snapshot to %s\n", path)
	}

	limit, _ := cmd.Flags().GetInt("limit")
	v := eng.session.View(limit)
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return search.FormatJSON(os.Stdout, v.Records)
	}
	search.FormatTable(os.Stdout, v.Records, search.TableOptions{Duplicates: v.Annotations, Total: v.Total})
	return nil
}

func queryFromFlags(cmd *cobra.Command, args []string) (search.Query, error) {
	text, _ := cmd.Flags().GetString("query")
	if text == "" && len(args) > 0 {
		text = strings.Join(args, " ")
	}
	author, _ := cmd.Flags().GetString("author")
	keywords, _ := cmd.Flags().GetString("keywords")
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")

	q := search.Query{FreeText: text, Author: strings.TrimSpace(author)}
	for _, k := range strings.Split(keywords, ",") {
		if k = strings.TrimSpace(k); k != "" {
			q.Keywords = append(q.Keywords, k)
		}
	}
	var err error
	q.DateFrom, q.DateTo, err = search.ParseDateRange(from, to)
	return q, err
}
