package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-art3mis/judex-mini/lib/telemetry"
)

var logLevel *string

var rootCmd = &cobra.Command{
	Use:   "judex",
	Short: "judex scrapes structured case records from the STF case-tracking portal.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var level slog.Level
		if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", *logLevel, err)
		}
		telemetry.InitSlog(level)
		return nil
	},
}

func init() {
	logLevel = rootCmd.PersistentFlags().StringP(
		"log-level", "l", "info", "Log verbosity: debug, info, warn or error.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
