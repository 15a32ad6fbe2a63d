// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package shell

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/pdiddy/reconcile-engine/internal/dedup"
	"github.com/pdiddy/reconcile-engine/internal/enrich"
	"github.com/pdiddy/reconcile-engine/internal/lineage"
	"github.com/pdiddy/reconcile-engine/internal/search"
	"github.com/pdiddy/reconcile-engine/pkg/types"
)

func (s *Shell) registerCommands() {
	s.register("search", s.cmdSearch,
		"search [--author A] [--keywords a,b] [--from D] [--to D] [--source all|primary|secondary] TEXT",
		"Start a new search; replaces the live list")
	s.register("more", s.cmdMore, "more [primary|secondary]", "Fetch more records up to the global cap")
	s.register("show", s.cmdShow, "show [N]", "Show the live list (at most the display cap)")
	s.register("dups", s.cmdDups, "dups", "List secondary records flagged as duplicates")
	s.register("filter", s.cmdFilter, "filter [--strictness lenient|balanced|strict] CONDITION",
		"Screen the live list; nothing changes until accept")
	s.register("accept", s.cmdAccept, "accept [DESCRIPTION]", "Keep the records that passed the pending filter")
	s.register("undo", s.cmdUndo, "undo", "Restore the list from before the last accepted filter")
	s.register("column", s.cmdColumn,
		"column add [--type text|number|boolean] [--fields f1,f2] [--wait] LABEL PROMPT | fill COL | delete COL | list",
		"Manage enrichment columns")
	s.register("snapshots", s.cmdSnapshots, "snapshots", "List snapshots, newest first")
	s.register("describe", s.cmdDescribe, "describe REF", "Show where a snapshot came from")
	s.register("compare", s.cmdCompare, "compare REF_A REF_B | compare save only-a|only-b|both [LABEL]",
		"Compare two snapshots by record id")
	s.register("save", s.cmdSave, "save [LABEL]", "Save the live list as a snapshot")
	s.register("delete", s.cmdDelete, "delete REF", "Delete a snapshot")
	s.register("load", s.cmdLoad, "load REF", "Make a snapshot the live list")
	s.register("export", s.cmdExport, "export REF FILE", "Write a snapshot to a YAML file")
	s.register("import", s.cmdImport, "import FILE", "Read a snapshot from a YAML file")
	s.register("history", s.cmdHistory, "history", "List every snapshot of this session, deleted ones included")
	s.register("help", s.cmdHelp, "help, ?", "Show this help message", "?")
	s.register("exit", s.cmdExit, "exit, quit", "Leave the session", "quit")
}

// --- search and fetch ---

func (s *Shell) cmdSearch(args []string) error {
	fs := newFlagSet("search")
	author := fs.String("author", "", "author name")
	keywords := fs.StringSlice("keywords", nil, "comma-separated keywords")
	from := fs.String("from", "", "publication date start")
	to := fs.String("to", "", "publication date end")
	source := fs.String("source", "all", "sources to query")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q := search.Query{
		FreeText: strings.Join(fs.Args(), " "),
		Author:   strings.TrimSpace(*author),
		Keywords: *keywords,
	}
	var err error
	if q.DateFrom, q.DateTo, err = search.ParseDateRange(*from, *to); err != nil {
		return err
	}
	st, err := types.ParseSourceType(*source)
	if err != nil {
		return err
	}

	res, err := s.sess.Search(s.ctx, q, st)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Snapshot #%d: %d records loaded, %d matched\n", res.Version, res.Records, res.TotalMatched)
	s.printCursors(res.Cursors)
	if res.Reconcile.ColumnsDropped > 0 {
		fmt.Fprintf(s.out, "%d enrichment column(s) discarded with the previous dataset\n", res.Reconcile.ColumnsDropped)
	}
	return s.cmdShow(nil)
}

func (s *Shell) cmdMore(args []string) error {
	var src types.Source
	if len(args) > 0 {
		var err error
		if src, err = types.ParseSource(args[0]); err != nil {
			return err
		}
	}

	res, err := s.sess.LoadMore(s.ctx, src)
	for _, source := range types.Sources {
		r, ok := res.Sources[source]
		if !ok {
			continue
		}
		fmt.Fprintf(s.out, "%s: +%d records (%d of %d)\n", source, r.Fetched, r.Cursor.Returned, r.Cursor.TotalAvailable)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%d records in the live list\n", res.Live)
	if res.LimitApplied() {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Fprintf(s.out, "%s global cap of %d records reached\n", yellow("Note:"), s.sess.Config().GlobalCap)
	}
	return nil
}

func (s *Shell) printCursors(cursors map[types.Source]types.PaginationCursor) {
	for _, src := range types.Sources {
		c, ok := cursors[src]
		if !ok {
			continue
		}
		more := ""
		if c.HasMore {
			more = " (more available)"
		}
		fmt.Fprintf(s.out, "  %s: %d of %d%s\n", src, c.Returned, c.TotalAvailable, more)
	}
}

// --- display ---

func (s *Shell) cmdShow(args []string) error {
	limit := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("show takes a positive record count, got %q", args[0])
		}
		limit = n
	}

	v := s.sess.View(limit)
	cols := make([]types.EnrichmentColumn, len(v.Columns))
	for i, c := range v.Columns {
		cols[i] = c.EnrichmentColumn
	}
	search.FormatTable(s.out, v.Records, search.TableOptions{
		Duplicates: v.Annotations,
		Columns:    cols,
		Total:      v.Total,
	})
	if v.Pending != nil {
		fmt.Fprintf(s.out, "Pending filter %q: %d passed. Type 'accept' to apply it.\n",
			v.Pending.Condition, len(v.Pending.Passed))
	}
	return nil
}

func (s *Shell) cmdDups(_ []string) error {
	records := s.sess.Records()
	titles := make(map[string]string, len(records))
	for _, r := range records {
		titles[r.ID] = r.Title
	}

	anns := s.sess.Annotations()
	sum := dedup.Summarize(anns)
	if sum.Duplicates == 0 {
		fmt.Fprintf(s.out, "No duplicates flagged among %d compared secondary records.\n", sum.Compared)
		return nil
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	for _, a := range anns {
		if !a.IsDuplicate {
			continue
		}
		fmt.Fprintf(s.out, "%s %s %q\n", yellow("dup"), a.RecordID, truncate(titles[a.RecordID], 60))
		if a.MatchedRecord != nil {
			fmt.Fprintf(s.out, "    matches %s %q (score %.2f, %s)\n",
				a.MatchedRecord.ID, truncate(titles[a.MatchedRecord.ID], 60), a.SimilarityScore, a.Reason)
		}
	}
	fmt.Fprintf(s.out, "%d of %d compared secondary records flagged\n", sum.Duplicates, sum.Compared)
	return nil
}

// --- filter ---

func (s *Shell) cmdFilter(args []string) error {
	fs := newFlagSet("filter")
	strictness := fs.String("strictness", string(types.StrictnessBalanced), "lenient, balanced, or strict")
	if err := fs.Parse(args); err != nil {
		return err
	}

	outcome, err := s.sess.Filter(s.ctx, strings.Join(fs.Args(), " "), types.Strictness(*strictness), func(p types.Progress) {
		fmt.Fprintf(s.out, "\rscreening %d/%d", p.Completed, p.Total)
	})
	fmt.Fprintln(s.out)
	if err != nil {
		return err
	}

	fmt.Fprintf(s.out, "%d passed, %d failed", len(outcome.Passed), len(outcome.Failed))
	if len(outcome.Undecided) > 0 {
		fmt.Fprintf(s.out, ", %d undecided", len(outcome.Undecided))
	}
	fmt.Fprintln(s.out, ". Type 'accept' to keep the passed records.")
	return nil
}

func (s *Shell) cmdAccept(args []string) error {
	res, err := s.sess.AcceptFilter(strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Snapshot #%d: kept %d, removed %d\n", res.Version, res.Kept, res.Removed)
	return nil
}

func (s *Shell) cmdUndo(_ []string) error {
	n, err := s.sess.UndoFilter()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Restored %d records\n", n)
	return nil
}

// --- enrichment columns ---

func (s *Shell) cmdColumn(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: column add|fill|delete|list")
	}
	switch args[0] {
	case "add":
		return s.columnAdd(args[1:])
	case "fill":
		return s.columnFill(args[1:])
	case "delete", "rm":
		return s.columnDelete(args[1:])
	case "list", "ls":
		return s.columnList()
	}
	return fmt.Errorf("unknown column subcommand %q: want add, fill, delete, or list", args[0])
}

func (s *Shell) columnAdd(args []string) error {
	fs := newFlagSet("column add")
	outputType := fs.String("type", string(types.OutputText), "text, number, or boolean")
	fields := fs.StringSlice("fields", nil, "record fields shown to the model")
	wait := fs.Bool("wait", false, "block until the column is computed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: column add [--type text|number|boolean] [--fields f1,f2] [--wait] LABEL PROMPT")
	}

	spec := enrich.Spec{
		Label:          fs.Arg(0),
		OutputType:     types.OutputType(*outputType),
		PromptTemplate: strings.Join(fs.Args()[1:], " "),
		InputFields:    *fields,
	}
	var onProgress func(types.Progress)
	if *wait {
		onProgress = s.printProgress(spec.Label)
	}
	run, err := s.sess.AddColumn(s.ctx, spec, onProgress)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Computing column %q\n", spec.Label)
	if *wait {
		return s.waitRun(spec.Label, run)
	}
	fmt.Fprintln(s.out, "Use 'column list' to follow progress.")
	return nil
}

func (s *Shell) columnFill(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: column fill COLUMN")
	}
	col, err := s.findColumn(args[0])
	if err != nil {
		return err
	}
	run, err := s.sess.FillColumn(col.ID, s.printProgress(col.Label))
	if err != nil {
		return err
	}
	return s.waitRun(col.Label, run)
}

func (s *Shell) columnDelete(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: column delete COLUMN")
	}
	col, err := s.findColumn(args[0])
	if err != nil {
		return err
	}
	if err := s.sess.DeleteColumn(col.ID); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Deleted column %q\n", col.Label)
	return nil
}

func (s *Shell) columnList() error {
	cols := s.sess.Columns()
	if len(cols) == 0 {
		fmt.Fprintln(s.out, "No enrichment columns.")
		return nil
	}
	fmt.Fprintf(s.out, "%-20s  %-8s  %-8s  %-9s  %s\n", "Column", "Type", "Status", "Progress", "Values")
	fmt.Fprintln(s.out, strings.Repeat("-", 60))
	for _, c := range cols {
		fmt.Fprintf(s.out, "%-20s  %-8s  %-8s  %4d/%-4d  %d\n",
			truncate(c.Label, 20), c.OutputType, c.Status, c.Progress.Completed, c.Progress.Total, len(c.Values))
		if c.Error != "" {
			fmt.Fprintf(s.out, "    error: %s\n", c.Error)
		}
	}
	return nil
}

func (s *Shell) findColumn(ref string) (enrich.ColumnView, error) {
	for _, c := range s.sess.Columns() {
		if c.ID == ref || strings.EqualFold(c.Label, ref) {
			return c, nil
		}
	}
	return enrich.ColumnView{}, fmt.Errorf("no column named %q", ref)
}

func (s *Shell) printProgress(label string) func(types.Progress) {
	return func(p types.Progress) {
		fmt.Fprintf(s.out, "\r%s: %d/%d", label, p.Completed, p.Total)
	}
}

func (s *Shell) waitRun(label string, run *enrich.Run) error {
	err := run.Wait(s.ctx)
	fmt.Fprintln(s.out)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Column %q: %d values computed\n", label, run.Applied())
	return nil
}

// --- snapshots ---

func (s *Shell) cmdSnapshots(_ []string) error {
	list := s.sess.Snapshots()
	if len(list) == 0 {
		fmt.Fprintln(s.out, "No snapshots.")
		return nil
	}
	current := s.sess.CurrentSnapshot()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(s.out, "   %-4s  %-7s  %-7s  %-16s  %s\n", "#", "Kind", "Records", "Label", "Provenance")
	fmt.Fprintln(s.out, strings.Repeat("-", 80))
	for _, snap := range list {
		marker := " "
		if snap.ID == current {
			marker = green("*")
		}
		fmt.Fprintf(s.out, "%s  %-4d  %-7s  %-7d  %-16s  %s\n",
			marker, snap.Version, snap.Kind, snap.Records, truncate(snap.Label, 16), snap.Description)
	}
	return nil
}

func (s *Shell) cmdDescribe(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: describe REF")
	}
	desc, err := s.sess.Describe(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, desc)
	return nil
}

func (s *Shell) cmdCompare(args []string) error {
	if len(args) > 0 && args[0] == "save" {
		return s.compareSave(args[1:])
	}
	if len(args) != 2 {
		return fmt.Errorf("usage: compare REF_A REF_B")
	}
	c, err := s.sess.CompareSnapshots(args[0], args[1])
	if err != nil {
		return err
	}
	s.comparison = &c
	fmt.Fprintf(s.out, "only in #%d: %d\n", c.VersionA, len(c.OnlyInA))
	fmt.Fprintf(s.out, "only in #%d: %d\n", c.VersionB, len(c.OnlyInB))
	fmt.Fprintf(s.out, "in both:    %d\n", len(c.InBoth))
	fmt.Fprintln(s.out, "Use 'compare save only-a|only-b|both' to keep a partition as a snapshot.")
	return nil
}

func (s *Shell) compareSave(args []string) error {
	if s.comparison == nil {
		return fmt.Errorf("no comparison yet: run 'compare REF_A REF_B' first")
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: compare save only-a|only-b|both [LABEL]")
	}
	p, err := lineage.ParsePartition(args[0])
	if err != nil {
		return err
	}
	id, err := s.sess.SaveComparison(*s.comparison, p, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	return s.printSaved(id)
}

func (s *Shell) cmdSave(args []string) error {
	id, err := s.sess.SaveSnapshot(strings.Join(args, " "))
	if err != nil {
		return err
	}
	return s.printSaved(id)
}

func (s *Shell) printSaved(id string) error {
	snap, err := s.sess.Snapshot(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Saved snapshot #%d (%d records)\n", snap.Seq, len(snap.Records))
	return nil
}

func (s *Shell) cmdDelete(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: delete REF")
	}
	snap, err := s.sess.Snapshot(args[0])
	if err != nil {
		return err
	}
	if _, err := s.sess.DeleteSnapshot(snap.ID); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Deleted snapshot #%d\n", snap.Seq)
	return nil
}

func (s *Shell) cmdLoad(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: load REF")
	}
	snap, err := s.sess.LoadSnapshot(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Loaded snapshot #%d (%d records)\n", snap.Seq, len(snap.Records))
	return s.cmdShow(nil)
}

func (s *Shell) cmdExport(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: export REF FILE")
	}
	if err := s.sess.ExportSnapshot(args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Exported to %s\n", args[1])
	return nil
}

func (s *Shell) cmdImport(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: import FILE")
	}
	id, err := s.sess.ImportSnapshot(args[0])
	if err != nil {
		return err
	}
	return s.printSaved(id)
}

func (s *Shell) cmdHistory(_ []string) error {
	if s.history == nil {
		return fmt.Errorf("history is not available: no journal configured")
	}
	entries, err := s.history.History(s.ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(s.out, "No snapshots yet.")
		return nil
	}
	red := color.New(color.FgRed).SprintFunc()
	for _, e := range entries {
		desc := e.Description
		if desc == "" {
			desc = e.Query
		}
		line := fmt.Sprintf("#%-4d %-7s %5d records  %s", e.Version, e.Kind, e.Records, desc)
		if e.Label != "" {
			line += fmt.Sprintf(" [%s]", e.Label)
		}
		if e.Deleted() {
			line += " " + red("(deleted)")
		}
		fmt.Fprintln(s.out, line)
	}
	return nil
}

// --- misc ---

func (s *Shell) cmdHelp(_ []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(s.out, "\n%s\n\n", cyan("Available Commands:"))
	for _, h := range s.help {
		fmt.Fprintf(s.out, "  %s\n      %s\n", green(h.usage), h.desc)
	}
	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, "Snapshots are referenced by version (#3 or 3) or by id.")
	return nil
}

func (s *Shell) cmdExit(_ []string) error {
	fmt.Fprintln(s.out, "Goodbye!")
	return errExit
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
