package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mj1618/voxnav/internal/config"
	"github.com/mj1618/voxnav/internal/logging"
	"github.com/mj1618/voxnav/internal/output"
	"github.com/mj1618/voxnav/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "voxnav",
	Short: "Resolve spoken commands against remembered UI elements",
	Long: `voxnav keeps a persistent registry of UI elements observed across sessions,
matches recognized speech to known commands, and resolves each command to one
concrete action on one element.

Snapshots are YAML or JSON batches as produced by a tree provider. State lives
in a SQLite database (see --db and the config file).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// errReported is returned by commands that already printed a structured
// error result.
var errReported = errors.New("error reported")

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version.Version, version.Commit, version.BuildDate)
	pf := rootCmd.PersistentFlags()
	pf.String("format", "yaml", "Output format: yaml, json")
	pf.Bool("pretty", false, "Pretty-print JSON output")
	pf.String("config", "", "Config file (default $VOXNAV_CONFIG or the user config dir)")
	pf.String("db", "", "SQLite database path (overrides config)")
	pf.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	pf.Bool("dev-log", false, "Human-readable development logging")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		format, _ := rootCmd.PersistentFlags().GetString("format")
		f, err := output.ParseFormat(format)
		if err != nil {
			return err
		}
		output.OutputFormat = f
		output.PrettyOutput, _ = rootCmd.PersistentFlags().GetBool("pretty")

		path, _ := rootCmd.PersistentFlags().GetString("config")
		c, err := config.Load(path)
		if err != nil {
			return err
		}
		if err := applyFlags(cmd, c); err != nil {
			return err
		}
		cfg = c

		dev, _ := rootCmd.PersistentFlags().GetBool("dev-log")
		l, err := logging.New(cfg.LogLevel, dev)
		if err != nil {
			return err
		}
		logger = l
		return nil
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	}
}

// applyFlags copies explicitly set root flags over the loaded config.
func applyFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("db") {
		c.DB, _ = flags.GetString("db")
	}
	if flags.Changed("log-level") {
		c.LogLevel, _ = flags.GetString("log-level")
	}
	return c.Validate()
}
