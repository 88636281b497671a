package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/neomorfeo/caseflow/internal/config"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli carries the settings resolved by the root command to its subcommands.
type cli struct {
	cfgFile string
	cfg     config.Config
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "caseflow",
		Short:         "Municipal case and protocol workflow engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), c.cfg, c.logger)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default: ./caseflow.yaml if present)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")
	flags.String("db", "", "SQLite database path")

	root.AddCommand(
		newServeCmd(c),
		newSeedCmd(c),
		newStatsCmd(c),
	)
	return root
}

// init loads the configuration, letting explicitly set flags override file
// and environment values, and installs the default logger.
func (c *cli) init(cmd *cobra.Command) error {
	v, err := config.NewViper(c.cfgFile)
	if err != nil {
		return err
	}

	bindings := map[string]string{
		"log.level":     "log-level",
		"log.format":    "log-format",
		"database.path": "db",
		"http.port":     "port",
		"seed.file":     "seed",
	}
	for key, name := range bindings {
		if err := bindChanged(v, cmd, key, name); err != nil {
			return err
		}
	}

	c.cfg, err = config.Load(v)
	if err != nil {
		return err
	}
	c.logger = newLogger(cmd.ErrOrStderr(), c.cfg.Log)
	slog.SetDefault(c.logger)
	return nil
}

// bindChanged binds a flag to key only when the user set it, so flag
// defaults never shadow the config file.
func bindChanged(v *viper.Viper, cmd *cobra.Command, key, name string) error {
	f := cmd.Flags().Lookup(name)
	if f == nil || !f.Changed {
		return nil
	}
	return v.BindPFlag(key, f)
}

func newLogger(w io.Writer, cfg config.Log) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
