package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/adamancini/buildswap/internal/config"
	"github.com/adamancini/buildswap/internal/output"
)

var (
	// Global flags
	outputFormat string
	configPath   string
	logFormat    string
	verbose      bool
	quiet        bool
)

// Build metadata, set by Execute.
var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

func Execute(version, commit, date string) error {
	buildVersion, buildCommit, buildDate = version, commit, date

	rootCmd := &cobra.Command{
		Use:   "buildswap",
		Short: "Self-update agent for a console application install",
		Long: `buildswap keeps an application install current with its release channel.

It checks the channel's release on the GitHub releases API, downloads the new
build over a pinned TLS connection, unpacks it next to the live install, merges
user data, and swaps it in, keeping the previous build as <root>_OLD.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addGlobalFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newExtractCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newRollbackCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	// Register completion functions for enum flags
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return output.Formats(), cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("log-format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json"}, cobra.ShellCompDirectiveNoFileComp
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json, yaml")
	fs.StringVar(&configPath, "config", "", "Path to buildswap config (default: search $"+config.EnvConfig+", $XDG_CONFIG_HOME/buildswap, /etc/buildswap)")
	fs.StringVar(&logFormat, "log-format", "text", "Log format: text, json")
	fs.BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	fs.BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (errors only)")
}

// newLogger builds the process logger. Logs go to w, normally stderr.
func newLogger(w io.Writer, format string, verbose, quiet bool) (*slog.Logger, error) {
	level := slog.LevelInfo
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}

	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}
}

// setup loads configuration and installs the logger every command uses.
func setup() (*config.Config, *slog.Logger, error) {
	logger, err := newLogger(os.Stderr, logFormat, verbose, quiet)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)

	cfg, path, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, nil, err
	}
	if path != "" {
		logger.Debug("loaded config", "path", path)
	} else {
		logger.Debug("no config file found, using defaults")
	}
	return cfg, logger, nil
}
