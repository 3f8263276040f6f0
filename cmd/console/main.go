package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/kmfl/server/internal/config"
)

func main() {
	var (
		verbose        bool
		silenceTimeout time.Duration
		thinkingDelay  time.Duration
		catalogPath    string
	)

	rootCmd := &cobra.Command{
		Use:   "kmfl-console",
		Short: "Talk to the K.M.F.L. assistant from a terminal",
		Long: `Runs the conversation controller against typed lines instead of a microphone.

Type the wake word (for example "kmfl"), then what you want to say. The reply
follows once the silence timeout passes. Commands: /status, /clear, /hide,
/show, /quit.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("silence-timeout") {
				cfg.Assistant.Settings.SilenceTimeout = silenceTimeout
			}
			if cmd.Flags().Changed("thinking-delay") {
				cfg.Assistant.ThinkingDelay = thinkingDelay
			}
			if catalogPath != "" {
				cfg.CatalogPath = catalogPath
			}
			if err := cfg.Assistant.Settings.Validate(); err != nil {
				return fmt.Errorf("invalid settings: %w", err)
			}

			logger, err := newLogger(verbose)
			if err != nil {
				return err
			}
			defer logger.Sync()

			reply, err := cfg.Responder()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			con := newConsole(cmd.OutOrStdout(), reply, cfg.Assistant, logger, clock.New())
			return con.run(ctx, cmd.InOrStdin())
		},
	}

	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log controller internals to stderr")
	rootCmd.Flags().DurationVar(&silenceTimeout, "silence-timeout", 0, "silence that ends an utterance (1s to 10s)")
	rootCmd.Flags().DurationVar(&thinkingDelay, "thinking-delay", 0, "pause before replying")
	rootCmd.Flags().StringVar(&catalogPath, "catalog", "", "YAML response catalog to use instead of the built-in one")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}
