// Package cmd defines and implements the CLI commands for the autoplay executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/autoplay-crawler/internal/config"
	"github.com/JakeFAU/autoplay-crawler/internal/crawler"
	"github.com/JakeFAU/autoplay-crawler/internal/logging"
)

// Process exit statuses.
const (
	ExitOK    = 0
	ExitError = 1
	// ExitFatal signals an unrecoverable page condition such as a missing
	// player.
	ExitFatal = 2
)

type runtimeKey struct{}

// runtime carries the resolved configuration and logger to subcommands.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

// newRootCmd creates the root command. Running it without a subcommand
// performs a crawl.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "autoplay",
		Short: "Follows a video platform's autoplay chain and records each item.",
		Long: `autoplay opens a starting video in a real browser, waits for genuine playback
(skipping ads when possible), records the item's metadata and then follows the
player's "next" control for the requested number of iterations.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Config is loaded once here so every subcommand sees the same values.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)
			ctx := context.WithValue(cmd.Context(), runtimeKey{}, &runtime{cfg: cfg, logger: logger})
			cmd.SetContext(ctx)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(runtimeKey{}).(*runtime); ok {
				_ = logging.Sync(rt.logger)
			}
		},
		RunE: runCrawlCommand,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().String("output-dir", "output", "root directory for session output")
	addCrawlFlags(cmd)
	cmd.AddCommand(newExportCmd())
	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey{}).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("configuration not initialized")
	}
	return rt, nil
}

// exitCode maps a command error onto the process status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, crawler.ErrFatal):
		return ExitFatal
	default:
		return ExitError
	}
}

// Execute runs the CLI and returns the process exit status.
func Execute() int {
	return execute(context.Background(), os.Args[1:])
}

func execute(ctx context.Context, args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "autoplay: %v\n", err)
	}
	return exitCode(err)
}
