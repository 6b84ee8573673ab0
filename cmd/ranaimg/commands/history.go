package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"rana-image-tool/internal/display"
	"rana-image-tool/internal/platform/database"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit  int
		offset int
		runID  string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded batch runs",
		Long: `List the batch runs recorded in the run history database, newest first.
Requires DATABASE_URL.

Examples:
  # Last 20 runs
  ranaimg history

  # Failures of one run
  ranaimg history --run 3f1c2b9e-4a6d-4f7e-9c1a-2b3c4d5e6f70`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := a.container.Runs()
			if err != nil {
				return err
			}
			if runID != "" {
				return printRunFailures(cmd, runs, runID)
			}

			recent, err := runs.RecentRuns(cmd.Context(), database.PaginationParams{Limit: limit, Offset: offset})
			if err != nil {
				return err
			}
			if len(recent) == 0 {
				cmd.Println(a.container.Theme().Warning("No runs recorded."))
				return nil
			}

			table := display.NewTableData("Started", "Label", "Root", "Files", "Failed", "Elapsed", "Run ID")
			table.AlignRight(3)
			table.AlignRight(4)
			table.AlignRight(5)
			for _, r := range recent {
				table.AddRow(
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					r.Label,
					r.Root,
					strconv.Itoa(r.Total),
					strconv.Itoa(r.Failed),
					display.FormatElapsed(r.Duration),
					r.RunID,
				)
			}
			display.PrintTable(cmd.OutOrStdout(), table)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", database.DefaultPagination().Limit, "number of runs to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")
	cmd.Flags().StringVar(&runID, "run", "", "show the failures of one run")
	return cmd
}

func printRunFailures(cmd *cobra.Command, runs database.RunRepository, runID string) error {
	rec, err := runs.GetRun(cmd.Context(), runID)
	if err != nil {
		return err
	}
	failures, err := runs.Failures(cmd.Context(), runID)
	if err != nil {
		return err
	}

	cmd.Printf("%s  %s  %d files, %d failed\n", rec.Label, rec.Root, rec.Total, rec.Failed)
	if len(failures) == 0 {
		return nil
	}

	table := display.NewTableData("File", "Stage", "Cause")
	for _, f := range failures {
		table.AddRow(f.Path, f.Stage.Kind(), f.Cause)
	}
	display.PrintTable(cmd.OutOrStdout(), table)
	return nil
}
