package server

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
	"github.com/hupe1980/agentrun/runner"
)

// SendFunc delivers one frame to the client. An error means the client is
// gone.
type SendFunc func(Frame) error

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// AppName is used for Run messages that carry none.
	AppName string
	Logger  logging.Logger
}

// Dispatcher implements the run/cancel protocol on top of a Runner,
// independent of the transport that carries the frames.
type Dispatcher struct {
	runner  *runner.Runner
	appName string
	logger  logging.Logger
}

// NewDispatcher creates a Dispatcher for r.
func NewDispatcher(r *runner.Runner, optFns ...func(o *DispatcherOptions)) *Dispatcher {
	opts := DispatcherOptions{
		AppName: "agentrun",
		Logger:  logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Dispatcher{runner: r, appName: opts.AppName, logger: opts.Logger}
}

// Dispatch handles one client message. Run streams Started, one Event frame
// per event and a final Done or Error frame; Cancel and StatusQuery answer
// with a single Ack. Dispatch returns an error only when send fails.
func (d *Dispatcher) Dispatch(ctx context.Context, msg ClientMessage, send SendFunc) error {
	switch msg.Type {
	case MessageRun:
		return d.run(ctx, msg, send)
	case MessageCancel:
		// An empty id names no invocation; like any unknown id it is acked.
		cancelled := msg.InvocationID != "" && d.runner.Cancel(msg.InvocationID)

		return send(Frame{Type: FrameAck, InvocationID: msg.InvocationID, Cancelled: &cancelled})
	case MessageStatus:
		if msg.InvocationID == "" {
			return send(Frame{Type: FrameError, Error: "invocationId is required"})
		}

		return send(Frame{Type: FrameAck, InvocationID: msg.InvocationID, Status: d.runner.Status(msg.InvocationID)})
	default:
		return send(Frame{Type: FrameError, Error: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

func (d *Dispatcher) run(ctx context.Context, msg ClientMessage, send SendFunc) error {
	if msg.NewMessage == "" {
		return send(Frame{Type: FrameError, Error: "newMessage is required"})
	}

	if msg.UserID == "" {
		return send(Frame{Type: FrameError, Error: "userId is required"})
	}

	appName := msg.AppName
	if appName == "" {
		appName = d.appName
	}

	inv, err := d.runner.Run(ctx, runner.RunRequest{
		AppName:   appName,
		UserID:    msg.UserID,
		SessionID: msg.SessionID,
		Message:   msg.NewMessage,
	})
	if err != nil {
		d.logger.Error("server.run.rejected", "session_id", msg.SessionID, "error", err)
		return send(Frame{Type: FrameError, SessionID: msg.SessionID, Error: err.Error()})
	}

	frame := Frame{InvocationID: inv.ID, SessionID: inv.SessionKey.SessionID}

	started := frame
	started.Type = FrameStarted

	sendErr := send(started)

	var last *core.Event

	for ev := range inv.Events {
		if sendErr != nil {
			continue
		}

		if !ev.Partial {
			last = &ev
		}

		f := frame
		f.Type = FrameEvent
		f.Event = &ev

		if sendErr = send(f); sendErr != nil {
			d.logger.Warn("server.client.gone", "invocation_id", inv.ID, "error", sendErr)
			d.runner.Cancel(inv.ID)
		}
	}

	if sendErr != nil {
		return sendErr
	}

	if err, ok := <-inv.Errors; ok && err != nil {
		f := frame
		f.Type = FrameError
		f.Error = err.Error()

		return send(f)
	}

	done := frame
	done.Type = FrameDone
	done.Outcome = outcomeOf(last)

	return send(done)
}
