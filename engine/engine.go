// Package engine runs the autonomous loop: prompt the model, parse its
// structured reply, dispatch the chosen command, and record the outcome in
// conversation history and long-term memory.
package engine

import (
	"context"

	"github.com/becomeliminal/pilot-go-sdk/command"
	"github.com/becomeliminal/pilot-go-sdk/core"
	"github.com/becomeliminal/pilot-go-sdk/llm"
	"github.com/becomeliminal/pilot-go-sdk/memory"
	"github.com/becomeliminal/pilot-go-sdk/workspace"
)

// Config holds engine tuning.
type Config struct {
	// Model is the chat model identifier.
	Model string

	// Temperature controls sampling randomness.
	Temperature float64

	// MaxTokens bounds each model reply.
	MaxTokens int

	// MaxIterations caps steps per session. 0 means unlimited.
	MaxIterations int

	// MaxHistoryBytes bounds the retained conversation. When exceeded, the
	// oldest reply/result pair is evicted. Default: 32 KiB.
	MaxHistoryBytes int

	// MemoryTopK is how many recalled records enter the context window.
	MemoryTopK int

	// RecallTail is how many trailing history messages form the recall query.
	RecallTail int
}

// DefaultConfig returns the defaults used when no config is given.
func DefaultConfig() *Config {
	return &Config{
		Model:           "claude-sonnet-4-20250514",
		Temperature:     0,
		MaxTokens:       4000,
		MaxIterations:   25,
		MaxHistoryBytes: 32 << 10,
		MemoryTopK:      10,
		RecallTail:      9,
	}
}

// Engine wires the model backend, command registry, and optional memory and
// workspace into a session factory. One Engine serves many sessions.
type Engine struct {
	completer llm.Completer
	caller    *llm.Caller
	registry  *command.Registry
	memory    *memory.Store
	env       *command.Context
	cfg       *Config
}

// Option configures an Engine.
type Option func(*Engine)

// WithMemory attaches a long-term memory store. Sessions clear it on start
// and record every completed step.
func WithMemory(store *memory.Store) Option {
	return func(e *Engine) { e.memory = store }
}

// WithWorkspace attaches the file store commands operate on.
func WithWorkspace(store workspace.Store) Option {
	return func(e *Engine) { e.env.Workspace = store }
}

// WithDestructive authorizes destructive commands for this engine's sessions.
func WithDestructive(allow bool) Option {
	return func(e *Engine) { e.env.AllowDestructive = allow }
}

// WithCaller replaces the default retry policy around model calls.
func WithCaller(c *llm.Caller) Option {
	return func(e *Engine) { e.caller = c }
}

// New creates an Engine. A nil config uses DefaultConfig.
func New(completer llm.Completer, registry *command.Registry, cfg *Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.MaxHistoryBytes == 0 {
		cfg.MaxHistoryBytes = def.MaxHistoryBytes
	}
	if cfg.MemoryTopK == 0 {
		cfg.MemoryTopK = def.MemoryTopK
	}
	if cfg.RecallTail == 0 {
		cfg.RecallTail = def.RecallTail
	}

	e := &Engine{
		completer: completer,
		caller:    llm.NewCaller(llm.ClassifyAPIError),
		registry:  registry,
		env:       &command.Context{},
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartSession begins a fresh session for the given identity. Long-term
// memory, when attached, is cleared so recall never crosses sessions.
func (e *Engine) StartSession(ctx context.Context, identity *core.Identity) (*Session, error) {
	if e.memory != nil {
		if err := e.memory.Clear(ctx); err != nil {
			return nil, err
		}
	}
	env := *e.env
	env.Identity = identity
	return &Session{
		eng:      e,
		identity: identity,
		env:      &env,
		system:   systemPrompt(identity, e.registry),
		state:    StateAwaitingCommand,
	}, nil
}
