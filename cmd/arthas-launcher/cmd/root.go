package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/arthas-launcher/internal/service/embedder"
	"github.com/oshokin/arthas-launcher/internal/service/launcher"
)

// rootCmd installs the latest tool version when needed and runs it.
// Every argument, flags included, belongs to the tool.
//
//nolint:gochecknoglobals // Cobra commands are package level by convention.
var rootCmd = &cobra.Command{
	Use:                "arthas-launcher [args...]",
	Short:              "Keep the tool up to date and run it with the given arguments",
	Args:               cobra.ArbitraryArgs,
	DisableFlagParsing: true,
	SilenceErrors:      true,
	SilenceUsage:       true,
	RunE: func(_ *cobra.Command, args []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		return launcher.Run(ctx, &launcher.Options{Args: args})
	},
}

// Execute runs the launcher and exits with the tool's status, or 1 when the
// launcher itself failed.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	var exitErr *embedder.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}

	os.Exit(1)
}
