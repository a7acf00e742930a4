package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [-n count]",
	Short: "Lists recent runs recorded next to the snapshot.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "AT\tTOOK\tOLD\tNEW\tADDED\tSENT\tFAILED\tSAVED\tNOTE")
		for _, r := range runs {
			note := r.Error
			switch {
			case note != "":
			case r.FirstRun:
				note = "first run"
			case r.DryRun:
				note = "dry run"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%t\t%s\n",
				r.At.Local().Format(time.DateTime),
				(time.Duration(r.TookMS) * time.Millisecond).String(),
				r.OldSlots, r.NewSlots, r.Added, r.Notifiable, r.Failed, r.Saved, note)
		}
		return tw.Flush()
	},
}
