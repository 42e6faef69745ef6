// Package cli wires the ferret-bam commands.
package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/digggggmori-pixel/ferret-bam/internal/config"
	"github.com/digggggmori-pixel/ferret-bam/internal/logger"
)

// Options holds CLI-level configuration.
type Options struct {
	Version string
}

// app is the state shared by every command after flag parsing
type app struct {
	version    string
	configPath string
	debug      bool
	cfg        *config.Config
}

// NewRootCmd wires the cobra root command.
func NewRootCmd(opts Options) *cobra.Command {
	a := &app{version: opts.Version}
	if a.version == "" {
		a.version = "dev"
	}

	root := &cobra.Command{
		Use:   "ferret-bam",
		Short: "BAM execution history triage",
		Long: "ferret-bam reads the Background Activity Moderator execution history, resolves device\n" +
			"paths, classifies each executable's signature and flags content rule matches.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
				return a.runTUI(cmd.Context())
			}
			return a.runScan(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), a.scanOptions(cmd, &scanFlags{}))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Configuration file (default ferret-bam.yaml next to the executable)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "Write a debug log")

	root.AddCommand(a.newScanCommand())
	root.AddCommand(a.newClassifyCommand())
	root.AddCommand(a.newResolveCommand())
	root.AddCommand(a.newRulesCommand())
	root.AddCommand(newVersionCommand(a.version))
	return root
}

// Execute runs the root command
func Execute(ctx context.Context, opts Options) error {
	return NewRootCmd(opts).ExecuteContext(ctx)
}

// setup loads the configuration and starts the debug log
func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.debug {
		cfg.Debug = true
	}
	a.cfg = cfg

	logDir := cfg.LogDir
	if logDir == "" {
		logDir = execDir()
	}
	if err := logger.Init(logDir, cfg.Debug, logger.ParseLevel(cfg.LogLevel)); err != nil {
		return err
	}
	logger.Info("ferret-bam %s starting", a.version)
	return nil
}

func execDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
