// Package commands implements the hypley command line: the gateway server,
// a local voice session on the sound card, and gateway clients for text chat
// and history.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type globalOptions struct {
	envFile   string
	logLevel  string
	logFormat string

	logger *slog.Logger
}

// NewRootCmd builds the command tree. Output and logs go to the command's
// configured writers so tests can capture them.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "hypley",
		Short: "HypleyIA live voice assistant",
		Long: `hypley - voice and text assistant backed by the Gemini Live API.

Commands:
  serve    run the gateway (browser live relay, text chat, history)
  live     talk to an agent through the local microphone and speaker
  chat     text chat through a running gateway
  history  list conversations and messages stored by a gateway
  migrate  apply the Postgres history schema

Configuration is read from the environment (HYPLEY_*, GEMINI_API_KEY) and
from a .env file in the working directory when present.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(opts.envFile); err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), opts.logFormat, opts.logLevel)
			if err != nil {
				return err
			}
			opts.logger = logger
			slog.SetDefault(logger)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "auto", "log format: auto, text, json")

	root.AddCommand(
		newServeCmd(opts, defaultServeDeps()),
		newLiveCmd(opts, defaultLiveDeps()),
		newChatCmd(),
		newHistoryCmd(),
		newMigrateCmd(opts, defaultMigrateDeps()),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "hypley: %v\n", err)
		return 1
	}
	return 0
}

// loadEnvFile loads path without overriding variables already set. A missing
// file is not an error.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	hopts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	case "", "auto":
		if isTerminal(w) {
			return slog.New(slog.NewTextHandler(w, hopts)), nil
		}
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q", format)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (o *globalOptions) log() *slog.Logger {
	if o == nil || o.logger == nil {
		return slog.Default()
	}
	return o.logger
}
