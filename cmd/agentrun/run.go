package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/runner"
)

func newRunCmd() *cobra.Command {
	var (
		userID    string
		sessionID string
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run the configured agent tree once and stream its events",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx))

			inv, err := a.runner.Run(ctx, runner.RunRequest{
				AppName:   a.cfg.AppName,
				UserID:    userID,
				SessionID: sessionID,
				Message:   strings.Join(args, " "),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(cmd.ErrOrStderr(), "invocation %s (session %s)\n", inv.ID, inv.SessionKey.SessionID)

			for ev := range inv.Events {
				if jsonOut {
					if err := json.NewEncoder(out).Encode(ev); err != nil {
						return err
					}

					continue
				}

				printEvent(out, ev)
			}

			if err, ok := <-inv.Errors; ok && err != nil {
				return err
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "local", "user id")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id (created when missing, generated when empty)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print events as JSON lines")

	return cmd
}

// printEvent writes a one-line human readable rendering of ev. Partial
// chunks are printed without a newline so streamed text reads naturally.
func printEvent(w io.Writer, ev core.Event) {
	p := ev.Payload

	switch p.Kind {
	case core.PayloadText:
		if ev.Partial {
			fmt.Fprint(w, p.Text)
			return
		}

		fmt.Fprintf(w, "[%d] %s: %s\n", ev.SequenceNo, ev.Author, p.Text)
	case core.PayloadToolCall:
		args, _ := json.Marshal(p.ToolCall.Args)
		fmt.Fprintf(w, "[%d] %s -> %s(%s)\n", ev.SequenceNo, ev.Author, p.ToolCall.Name, args)
	case core.PayloadToolResult:
		if p.ToolResult.Error != "" {
			fmt.Fprintf(w, "[%d] %s <- %s error: %s\n", ev.SequenceNo, ev.Author, p.ToolResult.Name, p.ToolResult.Error)
			return
		}

		fmt.Fprintf(w, "[%d] %s <- %s: %v\n", ev.SequenceNo, ev.Author, p.ToolResult.Name, p.ToolResult.Result)
	case core.PayloadControl:
		c := p.Control
		msg := string(c.Kind)

		if c.ErrorKind != "" {
			msg += " " + c.ErrorKind
		}

		if c.Message != "" {
			msg += ": " + c.Message
		}

		fmt.Fprintf(w, "[%d] %s !! %s\n", ev.SequenceNo, ev.Author, msg)
	}
}
