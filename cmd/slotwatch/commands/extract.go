package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var extractFile string

func init() {
	extractCmd.Flags().StringVarP(&extractFile, "file", "f", "", "read a saved page instead of fetching source.url")
	rootCmd.AddCommand(extractCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract [--file path]",
	Short: "Prints the slots read from the page, for checking the table selector.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Extract(cmd.Context(), extractFile)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if res.Warning != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", res.Warning)
		}
		marker := a.ClosedMarker()
		for _, k := range res.Set.Keys() {
			st := res.Set[k]
			state := "open"
			if st.Closed(marker) {
				state = "closed"
			}
			fmt.Fprintf(out, "%s\t%s\t%s\n", k, state, st)
		}
		fmt.Fprintf(out, "%d slots from %d rows\n", len(res.Set), res.Rows)
		return nil
	},
}
