package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runDryRun bool

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "log the messages instead of sending them and keep the snapshot")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [--config path] [--dry-run]",
	Short: "Checks the page once and notifies about new open slots.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(runDryRun)
		if err != nil {
			return err
		}
		defer a.Close()

		rep, err := a.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch {
		case rep.FirstRun && rep.Saved:
			fmt.Fprintf(out, "first run: saved %d slots, nothing sent\n", rep.NewSlots)
		case rep.FirstRun:
			fmt.Fprintf(out, "first run: %d slots, nothing sent (dry run, not saved)\n", rep.NewSlots)
		case len(rep.Notifiable) == 0:
			fmt.Fprintf(out, "old %d / new %d / added %d: nothing to send\n", rep.OldSlots, rep.NewSlots, len(rep.Added))
		default:
			fmt.Fprintf(out, "old %d / new %d / added %d: %d slots in %d messages",
				rep.OldSlots, rep.NewSlots, len(rep.Added), len(rep.Notifiable), len(rep.Messages))
			if rep.DryRun {
				fmt.Fprintln(out, " (dry run)")
			} else {
				fmt.Fprintf(out, ", %d/%d chunks failed\n", rep.Failed(), len(rep.Outcomes))
			}
		}
		return nil
	},
}
