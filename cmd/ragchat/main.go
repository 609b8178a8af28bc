package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/csheth/ragchat/internal/config"
)

type rootOptions struct {
	configPath  string
	envFile     string
	backendURL  string
	sessionFile string
	logLevel    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "ragchat",
		Short:         "ragchat relays chat turns to a RAG backend and renders the answers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "TOML config file (default <user config dir>/ragchat/config.toml)")
	flags.StringVar(&opts.envFile, "env-file", "", "dotenv file loaded before reading the environment (default .env)")
	flags.StringVar(&opts.backendURL, "backend-url", "", "RAG backend base URL (overrides BACKEND_URL)")
	flags.StringVar(&opts.sessionFile, "session-file", "", "file persisting the session identifier")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newSessionCmd(opts),
	)
	return rootCmd
}

// load resolves configuration and applies the flags the user actually set.
func (o *rootOptions) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(config.Options{Path: o.configPath, EnvFile: o.envFile})
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("backend-url") {
		cfg.SetBackendURL(o.backendURL)
	}
	if flags.Changed("session-file") {
		cfg.SessionFile = o.sessionFile
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ragchat:", err)
		os.Exit(1)
	}
}
