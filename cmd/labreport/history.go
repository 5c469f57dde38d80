package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent extractions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Store.DSN == "" {
			return fmt.Errorf("history needs a persistent store: set STORE_DSN or --store")
		}
		repo, err := connectStore(cmd, cfg, logger)
		if err != nil {
			return err
		}
		defer repo.Close()

		rows, err := repo.List(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCREATED\tSTATUS\tFILE\tPAGES\tROWS\tERROR")
		for _, e := range rows {
			n := 0
			if e.Record != nil {
				n = len(e.Record.AnalysisResults)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
				e.ID, e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Status, e.FileName, e.Pages, n, e.ErrorKind)
		}
		return tw.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of extractions to show")
}
