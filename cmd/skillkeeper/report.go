package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/makgunay/claude-swift-skills/pkg/presenter"
	"github.com/makgunay/claude-swift-skills/pkg/report"
)

var (
	reportJSON  bool
	reportLimit int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Inspect the change reports of past runs",
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.ListReports(ctx, reportLimit)
		if err != nil {
			return err
		}
		if reportJSON {
			return printJSON(runs)
		}
		if len(runs) == 0 {
			presenter.Info("No runs recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RUN\tSTARTED\tDOCUMENTS\tCHANGES")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", r.RunID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Documents, r.Changes)
		}
		return w.Flush()
	},
}

var reportShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the change report of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		r, err := st.GetReport(ctx, args[0])
		if err != nil {
			return err
		}
		if reportJSON {
			return printJSON(r)
		}
		fmt.Print(report.Render(r))
		return nil
	},
}

func init() {
	reportCmd.PersistentFlags().BoolVar(&reportJSON, "json", false, "Print output as JSON")
	reportListCmd.Flags().IntVar(&reportLimit, "limit", 20, "Maximum number of runs to list")
	reportCmd.AddCommand(reportListCmd, reportShowCmd)
}
