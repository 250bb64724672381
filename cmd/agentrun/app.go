package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentrun/agent"
	"github.com/hupe1980/agentrun/artifact"
	"github.com/hupe1980/agentrun/config"
	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
	"github.com/hupe1980/agentrun/memory"
	"github.com/hupe1980/agentrun/model"
	"github.com/hupe1980/agentrun/model/anthropic"
	"github.com/hupe1980/agentrun/model/openai"
	"github.com/hupe1980/agentrun/runner"
	"github.com/hupe1980/agentrun/session"
	"github.com/hupe1980/agentrun/session/sqlite"
	"github.com/hupe1980/agentrun/telemetry"
	"github.com/hupe1980/agentrun/tool"
	"github.com/hupe1980/agentrun/tool/builtin"
)

// app holds everything a command needs, built from the loaded config.
type app struct {
	cfg      *config.Config
	logger   logging.Logger
	sessions core.SessionService
	runner   *runner.Runner
	closers  []func(context.Context) error
}

func newLogger(cfg config.LogConfig) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	return logging.New(logging.Config{Level: level, Format: cfg.Format, Output: os.Stderr}), nil
}

// openSessions opens the configured session backend.
func openSessions(cfg *config.Config, logger logging.Logger) (core.SessionService, func(context.Context) error, error) {
	if cfg.Session.Backend != "sqlite" {
		return session.NewInMemoryService(), nil, nil
	}

	svc, err := sqlite.Open(cfg.Session.Path, func(o *sqlite.Options) {
		o.Logger = logger
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open session store: %w", err)
	}

	return svc, func(context.Context) error { return svc.Close() }, nil
}

// newApp loads the config at path and wires logging, telemetry, the session
// store, the agent tree and the runner.
func newApp(ctx context.Context, path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName: cfg.AppName,
			Endpoint:    cfg.Telemetry.Endpoint,
			URLPath:     cfg.Telemetry.URLPath,
			APIKey:      cfg.Telemetry.APIKey,
			Insecure:    cfg.Telemetry.Insecure,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}

		a.closers = append(a.closers, shutdown)
	}

	sessions, closeSessions, err := openSessions(cfg, logger)
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}

	if closeSessions != nil {
		a.closers = append(a.closers, closeSessions)
	}

	a.sessions = sessions

	llm, err := newModel(cfg.Model)
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}

	root, err := buildAgent(cfg.Agent, llm, cfg.Model.Streaming)
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}

	a.runner, err = runner.New(root, func(o *runner.Options) {
		o.SessionService = sessions
		o.Artifacts = artifact.NewInMemoryService()
		o.Memory = memory.NewInMemoryService()
		o.Deadline = cfg.Runner.Deadline.Duration
		o.ToolCallBudget = cfg.Runner.ToolCallBudget
		o.EventBufferSize = cfg.Runner.EventBufferSize
		o.MaxConcurrentInvocations = cfg.Runner.MaxConcurrentInvocations
		o.Logger = logger
	})
	if err != nil {
		_ = a.close(ctx)
		return nil, err
	}

	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) error {
	var errs []error

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	a.closers = nil

	return errors.Join(errs...)
}

func newModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}

			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = cfg.MaxTokens
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Model != "" {
				o.Model = sdk.Model(cfg.Model)
			}

			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
			o.Temperature = cfg.Temperature
			o.MaxTokens = cfg.MaxTokens
		}), nil
	case "mock":
		return model.NewMockModel("mock").WithFallback(model.TextTurn("This is a mock response.")), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// buildAgent turns the [agent] section into an agent tree. All leaves share
// llm.
func buildAgent(cfg config.AgentConfig, llm model.Model, streaming bool) (core.Agent, error) {
	if cfg.Kind == "" || cfg.Kind == config.KindLeaf {
		tools := make([]tool.Tool, 0, len(cfg.Tools))

		for _, name := range cfg.Tools {
			t, ok := builtin.ByName(name)
			if !ok {
				return nil, fmt.Errorf("agent %q: unknown tool %q (have %s)", cfg.Name, name, builtinNames())
			}

			tools = append(tools, t)
		}

		return agent.NewModelAgent(cfg.Name, llm, func(o *agent.ModelAgentOptions) {
			if cfg.Description != "" {
				o.Description = cfg.Description
			}

			if cfg.Instruction != "" {
				o.Instruction = agent.NewInstructionFromText(cfg.Instruction)
			}

			o.Tools = tools
			o.OutputKey = cfg.OutputKey
			o.EnableStreaming = streaming
		})
	}

	children := make([]core.Agent, 0, len(cfg.Children))

	for _, child := range cfg.Children {
		c, err := buildAgent(child, llm, streaming)
		if err != nil {
			return nil, err
		}

		children = append(children, c)
	}

	switch cfg.Kind {
	case config.KindSequential:
		return agent.NewSequentialAgent(cfg.Name, children, func(o *agent.SequentialAgentOptions) {
			o.Description = cfg.Description
		})
	case config.KindParallel:
		return agent.NewParallelAgent(cfg.Name, children, func(o *agent.ParallelAgentOptions) {
			o.Description = cfg.Description
		})
	case config.KindLoop:
		return agent.NewLoopAgent(cfg.Name, children, func(o *agent.LoopAgentOptions) {
			o.Description = cfg.Description
			o.MaxIterations = cfg.MaxIterations
		})
	default:
		return nil, fmt.Errorf("agent %q: unknown kind %q", cfg.Name, cfg.Kind)
	}
}

func builtinNames() string {
	all := builtin.All()
	names := make([]string, len(all))

	for i, t := range all {
		names[i] = t.Name()
	}

	return strings.Join(names, ", ")
}
