package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/noah-art3mis/judex-mini/cmd/judex/commands"
	"github.com/noah-art3mis/judex-mini/lib/telemetry"
)

func main() {
	ctx := context.Background()

	tel, err := telemetry.SetupFromEnv(ctx, "judex")
	if err != nil {
		slog.Error("failed to set up telemetry", "err", err)
		os.Exit(1)
	}
	defer tel.Shutdown(ctx)

	commands.ExecuteContext(ctx)
}
