package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arnoma/tutor-admin-api/internal/app"
	"github.com/arnoma/tutor-admin-api/pkg/config"
	"github.com/arnoma/tutor-admin-api/pkg/logger"
)

var version = "dev"

// cli carries what PersistentPreRunE loads for every subcommand.
type cli struct {
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger *zap.Logger
	app    *app.App
}

func newRootCmd() (*cobra.Command, *cli) {
	state := &cli{}
	root := &cobra.Command{
		Use:               "tutorctl",
		Short:             "Operate the tutoring admin backend",
		Long:              `tutorctl runs maintenance tasks against the tutoring admin database: payment auto-linking, balances and report exports.`,
		SilenceUsage:      true,
		PersistentPreRunE: state.init,
		PersistentPostRun: func(*cobra.Command, []string) { state.close() },
	}
	root.PersistentFlags().StringVar(&state.logLevel, "log-level", "", "log level (debug, info, warn, error); defaults to LOG_LEVEL")
	root.PersistentFlags().StringVar(&state.logFormat, "log-format", "console", "log format (console, json)")

	root.AddCommand(autolinkCmd(state))
	root.AddCommand(balanceCmd(state))
	root.AddCommand(reportCmd(state))
	root.AddCommand(cleanupCmd(state))
	root.AddCommand(versionCmd())
	return root, state
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root, _ := newRootCmd()
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (s *cli) init(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if s.logLevel != "" {
		cfg.Log.Level = s.logLevel
	}
	if s.logFormat != "" {
		cfg.Log.Format = s.logFormat
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	s.cfg = cfg
	s.logger = logr
	return nil
}

// connect builds the application on first use, so commands that fail flag
// validation never touch the database.
func (s *cli) connect() (*app.App, error) {
	if s.app != nil {
		return s.app, nil
	}
	a, err := app.New(s.cfg, s.logger)
	if err != nil {
		return nil, err
	}
	s.app = a
	return a, nil
}

func (s *cli) close() {
	if s.app != nil {
		s.app.Close()
		s.app = nil
	}
	if s.logger != nil {
		_ = s.logger.Sync()
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "tutorctl", version)
		},
	}
}
