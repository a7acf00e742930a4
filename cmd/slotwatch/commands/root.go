package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"slotwatch/internal/app"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "slotwatch",
	Short: "slotwatch notifies about newly opened slots on a schedule page.",
	Long: `slotwatch fetches a schedule table, compares it with the copy saved on the
previous run, and pushes the newly added open slots to LINE, Telegram or NATS.

Settings come from an optional JSON/YAML file (--config) and the environment:
SLOTWATCH_URL, LINE_TOKEN, SNAPSHOT_HTML, TELEGRAM_TOKEN, TELEGRAM_CHAT_ID,
NATS_URL, SLOTWATCH_TRANSPORT, SLOTWATCH_LOG_LEVEL.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a JSON or YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (trace, debug, info, warn, error)")
}

// ExecuteContext runs the CLI and returns the process exit code.
func ExecuteContext(ctx context.Context) int {
	return execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "fatal:", err)
		return 1
	}
	return 0
}

func openApp(dryRun bool) (*app.App, error) {
	return app.New(app.Options{
		ConfigPath: configPath,
		DryRun:     dryRun,
		LogLevel:   logLevel,
	})
}
