package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/csheth/ragchat/internal/backend"
	"github.com/csheth/ragchat/internal/logging"
	"github.com/csheth/ragchat/internal/relay"
	"github.com/csheth/ragchat/internal/session"
	"github.com/csheth/ragchat/internal/tui"
)

func newChatCmd(root *rootOptions) *cobra.Command {
	var (
		relayURL    string
		noAltScreen bool
		noMarkdown  bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the terminal chat client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("relay-url") {
				cfg.SetRelayURL(relayURL)
			}
			if noAltScreen {
				cfg.UI.AltScreen = false
			}
			if noMarkdown {
				cfg.UI.Markdown = false
			}
			if err := cfg.RequireBackend(); err != nil {
				return err
			}
			// Console output would corrupt the UI, so logs go to a file or nowhere.
			logger, err := logging.New(cfg.Log, nil)
			if err != nil {
				return err
			}

			relayClient := backend.New(backend.Config{
				BaseURL: cfg.RelayURL,
				Path:    relay.ChatRoute,
				Timeout: cfg.RequestTimeout,
				Logger:  logger,
			})
			probe := backend.New(backend.Config{
				BaseURL: cfg.BackendURL,
				Timeout: cfg.RequestTimeout,
				Logger:  logger,
			})
			logger.Info().
				Str("relay", relayClient.Endpoint()).
				Str("backend", probe.Endpoint()).
				Str("session_file", cfg.SessionFile).
				Msg("starting chat client")

			opts := []tea.ProgramOption{}
			if cfg.UI.AltScreen {
				opts = append(opts, tea.WithAltScreen())
			}
			program := tea.NewProgram(
				tui.New(tui.Config{
					Relay:         relayClient,
					Probe:         probe,
					Sessions:      session.NewFileStore(cfg.SessionFile),
					BackendURL:    cfg.BackendURL,
					WarmupMessage: cfg.WarmupMessage,
					Markdown:      cfg.UI.Markdown,
					Logger:        logger,
				}),
				opts...,
			)
			if _, err := program.Run(); err != nil {
				return errors.Wrap(err, "chat client")
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&relayURL, "relay-url", "", "relay base URL (default http://localhost:3000)")
	flags.BoolVar(&noAltScreen, "no-alt-screen", false, "disable the alternate screen buffer")
	flags.BoolVar(&noMarkdown, "no-markdown", false, "render answers as plain text")
	return cmd
}
