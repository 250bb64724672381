package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/internal/util"
	"github.com/hupe1980/agentrun/logging"
	"github.com/hupe1980/agentrun/session"
	"github.com/hupe1980/agentrun/telemetry"
)

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// SessionService stores session history. Defaults to an in-memory service.
	SessionService core.SessionService
	// Registry maps invocation ids to cancellation tokens. Share one registry
	// between runners that should honor each other's cancel requests.
	Registry *core.CancellationRegistry
	// Artifacts is exposed to tools through the tool context (optional).
	Artifacts core.ArtifactService
	// Memory is exposed to tools and indexed after each invocation (optional).
	Memory core.MemoryService
	// Deadline bounds every invocation; expiry acts as a cancel request.
	// Zero disables the deadline.
	Deadline time.Duration
	// ToolCallBudget bounds model turns requesting tools per invocation,
	// shared across all leaves. Zero means unlimited.
	ToolCallBudget int
	// EventBufferSize sets channel buffering for events.
	EventBufferSize int
	// MaxConcurrentInvocations bounds invocations running at once; Run waits
	// for a free slot. Zero means unlimited.
	MaxConcurrentInvocations int
	// Logging services.
	Logger logging.Logger
}

// RunRequest describes one invocation.
type RunRequest struct {
	AppName string
	UserID  string
	// SessionID selects the session; an unknown id is created with that id
	// and an empty id creates a session with a generated id.
	SessionID string
	Message   string
	// Deadline overrides Options.Deadline when positive.
	Deadline time.Duration
}

// Invocation is the handle of a started run. Events is closed after the
// final event; Errors carries at most one infrastructure failure (a failed
// append) and is closed together with Events.
type Invocation struct {
	ID         string
	SessionKey core.SessionKey
	Events     <-chan core.Event
	Errors     <-chan error
}

// Runner coordinates agent execution: resolves the session, creates the
// invocation context, drives the root agent, persists every event before
// forwarding it, and enforces cancellation and deadlines. Public methods are
// safe for concurrent use.
type Runner struct {
	agent core.Agent

	sessions        core.SessionService
	registry        *core.CancellationRegistry
	artifacts       core.ArtifactService
	memory          core.MemoryService
	deadline        time.Duration
	toolCallBudget  int
	eventBufferSize int
	logger          logging.Logger

	slots   chan struct{}
	writers *writerSet
}

// New constructs a Runner for the agent tree rooted at agent. The tree is
// validated once here and treated as immutable afterwards.
func New(agent core.Agent, optFns ...func(o *Options)) (*Runner, error) {
	opts := Options{
		ToolCallBudget:  20,
		EventBufferSize: core.DefaultEventBufferSize,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.EventBufferSize <= 0 {
		opts.EventBufferSize = core.DefaultEventBufferSize
	}

	if err := core.ValidateTree(agent); err != nil {
		return nil, err
	}

	if opts.SessionService == nil {
		opts.SessionService = session.NewInMemoryService()
	}

	if opts.Registry == nil {
		opts.Registry = core.NewCancellationRegistry()
	}

	var slots chan struct{}
	if opts.MaxConcurrentInvocations > 0 {
		slots = make(chan struct{}, opts.MaxConcurrentInvocations)
	}

	return &Runner{
		agent:           agent,
		sessions:        opts.SessionService,
		registry:        opts.Registry,
		artifacts:       opts.Artifacts,
		memory:          opts.Memory,
		deadline:        opts.Deadline,
		toolCallBudget:  opts.ToolCallBudget,
		eventBufferSize: opts.EventBufferSize,
		logger:          opts.Logger,
		slots:           slots,
		writers:         newWriterSet(),
	}, nil
}

// Agent returns the root agent.
func (r *Runner) Agent() core.Agent { return r.agent }

// Sessions returns the session service the runner persists to.
func (r *Runner) Sessions() core.SessionService { return r.sessions }

// Cancel requests cancellation of a running invocation. It returns false
// for unknown (or already finished) invocation ids and never fails.
func (r *Runner) Cancel(invocationID string) bool {
	ok := r.registry.Cancel(invocationID)
	r.logger.Info("runner.invocation.cancel", "invocation_id", invocationID, "found", ok)

	return ok
}

// Status reports the lifecycle state of an invocation.
func (r *Runner) Status(invocationID string) core.InvocationStatus {
	return r.registry.Status(invocationID)
}

// Run starts an asynchronous invocation. It fails with *core.SessionError
// before any event is produced when the session cannot be resolved or the
// user turn cannot be persisted.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*Invocation, error) {
	if err := r.acquireSlot(ctx); err != nil {
		return nil, err
	}

	writer, sess, err := r.resolveSession(ctx, req)
	if err != nil {
		r.releaseSlot()
		return nil, err
	}

	key := sess.Key
	invID := util.NewInvocationID()
	persistCtx := context.WithoutCancel(ctx)

	userEvent := core.NewUserMessageEvent(invID, req.Message)
	if err := writer.append(persistCtx, &userEvent); err != nil {
		r.writers.release(writer)
		r.releaseSlot()

		return nil, &core.SessionError{Op: "append", Key: key, Err: err}
	}

	sess.AddEvent(userEvent)

	token := r.registry.Register(invID)

	deadline := r.deadline
	if req.Deadline > 0 {
		deadline = req.Deadline
	}

	var timer *time.Timer
	if deadline > 0 {
		timer = time.AfterFunc(deadline, func() {
			r.logger.Warn("runner.invocation.deadline", "invocation_id", invID, "deadline", deadline.String())
			r.registry.Cancel(invID)
		})
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	spanCtx, span := telemetry.StartInvocation(runCtx, invID, key.AppName, key.UserID, key.SessionID, r.agent.Name())

	ic := core.NewInvocationContext(spanCtx, invID, sess, func(o *core.InvocationOptions) {
		o.UserMessage = req.Message
		o.Token = token
		o.Budget = core.NewToolCallBudget(r.toolCallBudget)
		o.EventBufferSize = r.eventBufferSize
		o.Artifacts = r.artifacts
		o.Memory = r.memory
		o.Logger = r.logger
	})

	events := make(chan core.Event, r.eventBufferSize)
	errs := make(chan error, 1)

	r.logger.Info(
		"runner.invocation.start",
		"invocation_id", invID,
		"session", key.String(),
		"agent", r.agent.Name(),
	)

	// The user turn opens the stream; it is already persisted.
	events <- userEvent

	go func() {
		var runErr error

		defer func() {
			if timer != nil {
				timer.Stop()
			}

			r.indexMemory(persistCtx, key)
			r.registry.Deregister(invID)
			r.writers.release(writer)
			r.releaseSlot()
			telemetry.End(span, runErr)
			cancelRun()
			close(events)
			close(errs)
		}()

		runErr = r.pump(ctx, ic, writer, events, errs)

		r.logger.Info("runner.invocation.finished", "invocation_id", invID, "status", string(r.registry.Status(invID)))
	}()

	return &Invocation{ID: invID, SessionKey: key, Events: events, Errors: errs}, nil
}

// pump drives the root agent. Each non-partial event is appended to the
// session before it is forwarded; partial events are forwarded only. After a
// failed append or a departed consumer it cancels the invocation and drains
// the remaining events without forwarding them. A cancelled invocation whose
// stream did not end in a terminal event is closed with a runner-authored
// Cancelled.
func (r *Runner) pump(ctx context.Context, ic *core.InvocationContext, writer *sessionWriter, out chan<- core.Event, errs chan<- error) error {
	var (
		runErr   error
		failed   bool
		gone     bool
		terminal bool
	)

	deliver := func(ev core.Event) bool {
		if !ev.Partial {
			if err := writer.append(context.WithoutCancel(ctx), &ev); err != nil {
				failed = true
				runErr = &core.SessionError{Op: "append", Key: writer.key, Err: err}

				r.logger.Error("session.append.error", "invocation_id", ic.InvocationID, "event_id", ev.ID, "error", err)
				errs <- runErr
				r.registry.Cancel(ic.InvocationID)

				return false
			}

			terminal = ev.IsTerminal()

			if ev.IsFatal() {
				runErr = fmt.Errorf("%s: %s", ev.Payload.Control.ErrorKind, ev.Payload.Control.Message)
			}
		}

		select {
		case out <- ev:
			r.logger.Debug("runner.event.delivered", "invocation_id", ic.InvocationID, "event_id", ev.ID, "seq", ev.SequenceNo)
			return true
		case <-ctx.Done():
			gone = true
			r.registry.Cancel(ic.InvocationID)

			return false
		}
	}

	for ev := range r.agent.Run(ic) {
		if failed || gone {
			continue
		}

		deliver(ev)
	}

	if !failed && !gone && !terminal && ic.IsCancelled() {
		r.logger.Info("runner.invocation.cancelled", "invocation_id", ic.InvocationID)
		deliver(ic.NewEvent(core.RunnerAuthor, core.CancelledPayload("invocation cancelled")))
	}

	return runErr
}

// resolveSession returns the writer and a snapshot of the requested session,
// creating the session when needed. The writer is acquired before the
// snapshot is read so its sequence floor can never lag the store.
func (r *Runner) resolveSession(ctx context.Context, req RunRequest) (*sessionWriter, *core.Session, error) {
	key := core.SessionKey{AppName: req.AppName, UserID: req.UserID, SessionID: req.SessionID}

	if req.SessionID == "" {
		sess, err := r.sessions.Create(ctx, req.AppName, req.UserID, "")
		if err != nil {
			return nil, nil, &core.SessionError{Op: "create", Key: key, Err: err}
		}

		r.logger.Debug("runner.session.created", "session", sess.Key.String())

		return r.writers.acquire(sess.Key, r.sessions), sess, nil
	}

	writer := r.writers.acquire(key, r.sessions)

	sess, err := r.sessions.Get(ctx, key)
	if errors.Is(err, core.ErrSessionNotFound) {
		sess, err = r.sessions.Create(ctx, req.AppName, req.UserID, req.SessionID)
		if errors.Is(err, core.ErrSessionExists) {
			sess, err = r.sessions.Get(ctx, key)
		}
	}

	if err != nil {
		r.writers.release(writer)
		return nil, nil, &core.SessionError{Op: "get", Key: key, Err: err}
	}

	writer.observe(sess.LastSequenceNo())

	return writer, sess, nil
}

// acquireSlot waits for a free invocation slot when the runner is bounded.
func (r *Runner) acquireSlot(ctx context.Context) error {
	if r.slots == nil {
		return nil
	}

	select {
	case r.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for invocation slot: %w", ctx.Err())
	}
}

func (r *Runner) releaseSlot() {
	if r.slots != nil {
		<-r.slots
	}
}

func (r *Runner) indexMemory(ctx context.Context, key core.SessionKey) {
	if r.memory == nil {
		return
	}

	sess, err := r.sessions.Get(ctx, key)
	if err == nil {
		err = r.memory.AddSession(ctx, sess)
	}

	if err != nil {
		r.logger.Warn("runner.memory.index_failed", "session", key.String(), "error", err)
	}
}
