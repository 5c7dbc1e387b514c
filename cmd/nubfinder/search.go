package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func searchCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "search QUERY",
		Short: "Query the catalog from the local snapshot (fetching it if absent)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.sched.Seed(cmd.Context()); err != nil {
				return err
			}

			results, err := a.searcher.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "no matches")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SCORE\tSOURCE\tTAGS")
			for _, r := range results {
				fmt.Fprintf(tw, "%.3f\t%s\t%s\n", r.Score, r.Source, r.Tags)
			}
			return tw.Flush()
		},
	}
}
