package main

import (
	"context"
	"fmt"
	"io"

	"github.com/TNAHOM/project-x-ai-service/internal/journal"

	"github.com/spf13/cobra"
)

var historyLimit int

// historyCmd reads the SQLite run journal.
var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show recorded stage runs",
	Long: `Lists the most recent stage invocations from the journal database
(journal.database_path). With a run id, shows every step of that run with
its output.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if cfg.Journal.DatabasePath == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "No journal database configured (journal.database_path or PROJECTX_DB).")
		return nil
	}
	store, err := journal.OpenStore(cfg.Journal.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if len(args) == 1 {
		entries, err := store.Run(ctx, args[0])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No entries for run %s.\n", args[0])
			return nil
		}
		writeEntries(cmd.OutOrStdout(), entries, true)
		return nil
	}

	entries, err := store.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
		return nil
	}
	writeEntries(cmd.OutOrStdout(), entries, false)
	return nil
}

func writeEntries(w io.Writer, entries []journal.Entry, withOutput bool) {
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %s  %-18s %s  %dms\n",
			dimStyle.Render(e.CreatedAt.Local().Format("2006-01-02 15:04:05")),
			idStyle.Render(e.RunID),
			e.Agent,
			outcomeStyle(e.Outcome).Render(e.Outcome),
			e.DurationMs)
		if e.Error != "" {
			fmt.Fprintf(w, "    %s\n", e.Error)
		}
		if withOutput && len(e.Output) > 0 {
			fmt.Fprintf(w, "    %s\n", string(e.Output))
		}
	}
}
