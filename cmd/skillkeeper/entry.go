package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/makgunay/claude-swift-skills/pkg/presenter"
	"github.com/makgunay/claude-swift-skills/pkg/render"
)

var entryJSON bool

var entryCmd = &cobra.Command{
	Use:   "entry",
	Short: "Inspect knowledge entries",
}

var entryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List knowledge entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.ListEntries(ctx)
		if err != nil {
			return err
		}
		if entryJSON {
			return printJSON(entries)
		}
		if len(entries) == 0 {
			presenter.Info("No entries yet")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tRECORDS\tOVERFLOW\tUPDATED\tDESCRIPTION")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
				e.Name, e.RecordCount, e.OverflowCount, e.UpdatedAt.Format("2006-01-02 15:04"), e.Description)
		}
		return w.Flush()
	},
}

var entryShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show an entry's records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		entry, err := st.GetEntry(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(entry)
	},
}

var entryRenderCmd = &cobra.Command{
	Use:   "render <name>",
	Short: "Print an entry as a SKILL.md document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		entry, err := st.GetEntry(ctx, args[0])
		if err != nil {
			return err
		}
		out, err := render.Entry(entry)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var entryOverflowCmd = &cobra.Command{
	Use:   "overflow <name>",
	Short: "List records demoted out of an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if _, err := st.GetEntry(ctx, args[0]); err != nil {
			return err
		}
		records, err := st.ListOverflow(ctx, args[0])
		if err != nil {
			return err
		}
		if entryJSON {
			return printJSON(records)
		}
		fmt.Print(render.Overflow(args[0], records))
		return nil
	},
}

func init() {
	entryCmd.PersistentFlags().BoolVar(&entryJSON, "json", false, "Print output as JSON")
	entryCmd.AddCommand(entryListCmd, entryShowCmd, entryRenderCmd, entryOverflowCmd)
}
