// Package cmd provides the CLI commands for lorerank.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/lorerank/internal/config"
	"github.com/Aman-CERP/lorerank/internal/logging"
	"github.com/Aman-CERP/lorerank/internal/profiling"
	"github.com/Aman-CERP/lorerank/pkg/version"
)

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	dir     string
	envFile string
	debug   bool
	profile profiling.Config

	profiler       *profiling.Session
	loggingCleanup func()
}

// NewRootCmd creates the root command for the lorerank CLI.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "lorerank",
		Short: "Hybrid passage retrieval over a prebuilt corpus",
		Long: `lorerank answers natural language queries against a fixed passage corpus.

Each query runs exact vector search and BM25 keyword search concurrently,
merges the two rankings with Reciprocal Rank Fusion, weights results by the
section they come from, and returns the top passages with [n] anchors.

Configuration is read from ~/.config/lorerank/config.yaml, then
.lorerank.yaml in the project directory, then LORERANK_* variables.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.start(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return g.stop()
		},
	}
	cmd.SetVersionTemplate("lorerank version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&g.dir, "dir", "C", ".", "Project directory holding .lorerank.yaml and the index files")
	cmd.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "Load environment variables (e.g. OPENAI_API_KEY) from this file if it exists")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging to ~/.lorerank/logs/")
	cmd.PersistentFlags().StringVar(&g.profile.CPUPath, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&g.profile.HeapPath, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&g.profile.TracePath, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newSearchCmd(g))
	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newInfoCmd(g))
	cmd.AddCommand(newExportCmd(g))
	cmd.AddCommand(newInitCmd(g))
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// start loads .env, then enables debug logging and profiling if requested.
func (g *globalOptions) start(cmd *cobra.Command) error {
	if g.envFile != "" {
		// Variables already set in the environment win over the file.
		if err := godotenv.Load(g.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", g.envFile, err)
		}
	}

	// serve installs its own file-only logger.
	if g.debug && cmd.Name() != "serve" {
		logCfg := logging.DefaultConfig()
		logCfg.Level = "debug"
		logCfg.WriteToStderr = false
		cleanup, err := logging.SetupDefault(logCfg)
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		g.loggingCleanup = cleanup
		slog.Debug("debug_logging_enabled",
			slog.String("log_file", logCfg.FilePath),
			slog.String("command", cmd.Name()))
	}

	if g.profile.Enabled() {
		s, err := profiling.Start(g.profile)
		if err != nil {
			return err
		}
		g.profiler = s
	}
	return nil
}

func (g *globalOptions) stop() error {
	var err error
	if g.profiler != nil {
		err = g.profiler.Stop()
		g.profiler = nil
	}
	if g.loggingCleanup != nil {
		g.loggingCleanup()
		g.loggingCleanup = nil
	}
	return err
}

// loadConfig loads the configuration for the project directory.
func (g *globalOptions) loadConfig() (*config.Config, error) {
	return config.Load(g.dir)
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
