package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentrun/core"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect stored sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <app> <user> <session>",
		Short: "Print the ordered event history of a session",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx))

			key := core.SessionKey{AppName: args[0], UserID: args[1], SessionID: args[2]}

			sess, err := a.sessions.Get(ctx, key)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "session %s (%d events, updated %s)\n", key, len(sess.Events), sess.Updated.Format("2006-01-02 15:04:05"))

			for _, ev := range sess.Events {
				printEvent(out, ev)
			}

			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list <app> <user>",
		Short: "List the session ids of a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx))

			lister, ok := a.sessions.(sessionLister)
			if !ok {
				return fmt.Errorf("session backend %q cannot list sessions", a.cfg.Session.Backend)
			}

			keys, err := lister.List(ctx, args[0], args[1])
			if err != nil {
				return err
			}

			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k.SessionID)
			}

			return nil
		},
	})

	return cmd
}

type sessionLister interface {
	List(ctx context.Context, appName, userID string) ([]core.SessionKey, error)
}
