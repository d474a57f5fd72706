package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/clinicalconnectome/phiup/internal/history"
)

var (
	historyLimit      int
	historyJSONOutput bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past upload runs",
	Long:  "List the run ledger: one row per entity kind per upload run, newest first.",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20,
		"Maximum number of rows to show (0 = all)")
	historyCmd.Flags().BoolVar(&historyJSONOutput, "json", false,
		"Output in JSON format")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	ledger, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer ledger.Close()

	records, err := ledger.ListRuns(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}

	if historyJSONOutput {
		return printJSON(cmd.OutOrStdout(), records)
	}

	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "RUN\tDATASET\tKIND\tOK\tFAILED\tTOTAL\tRETRY\tSTARTED")
	for _, rec := range records {
		retry := ""
		if rec.RetryMode {
			retry = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			rec.RunID, rec.Dataset, rec.Kind,
			rec.Succeeded, rec.Failed, rec.Total,
			retry, rec.StartedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}
