package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/csheth/ragchat/internal/session"
)

func newSessionCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or clear the persisted session identifier",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current session identifier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			store := session.NewFileStore(cfg.SessionFile)
			id, ok, err := store.Get(session.Key)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !ok || id == "" {
				fmt.Fprintf(out, "no session stored in %s\n", store.Path())
				return nil
			}
			fmt.Fprintln(out, id)
			return nil
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Forget the session identifier; the next chat starts a new session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			store := session.NewFileStore(cfg.SessionFile)
			if err := session.Reset(store); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session cleared in %s\n", store.Path())
			return nil
		},
	}

	cmd.AddCommand(show, reset)
	return cmd
}
