// Package assistant wires the core interfaces in the root oasis package
// into the product: intent routing, the sub-agent tool-use loop, reply
// routing for ask_user, streaming chat, and background fact extraction.
package assistant

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	oasis "github.com/sandlake/oasis"
	"github.com/sandlake/oasis/internal/config"
)

// Deps holds injected dependencies for the App.
type Deps struct {
	Frontend  oasis.Frontend
	ChatLLM   oasis.Provider
	IntentLLM oasis.Provider
	ActionLLM oasis.Provider
	Embedding oasis.EmbeddingProvider
	Store     oasis.VectorStore
	Memory    oasis.MemoryStore
}

// App is the Oasis assistant: message routing, intent classification, the
// sub-agent supervisor, and streaming chat, built on the root package's
// interfaces.
type App struct {
	frontend  oasis.Frontend
	chatLLM   oasis.Provider
	intentLLM oasis.Provider
	actionLLM oasis.Provider
	embedding oasis.EmbeddingProvider
	store     oasis.VectorStore
	memory    oasis.MemoryStore
	tools     *oasis.ToolRegistry
	agents    *AgentManager
	guards    *oasis.ProcessorChain
	config    *config.Config
	tracer    oasis.Tracer

	// ingestFile ingests uploaded file content into the knowledge base.
	// Provided by tools/remember via SetIngestFile.
	ingestFile func(ctx context.Context, content, filename string) (string, error)

	// ingestURL ingests raw HTML fetched from a URL into the knowledge base.
	// Provided by tools/remember via SetIngestURL.
	ingestURL func(ctx context.Context, html, sourceURL string) (string, error)

	// urlFetch downloads a URL's raw HTML. Defaults to fetchURL; overridable
	// in tests to avoid real network access.
	urlFetch func(ctx context.Context, url string) (string, error)
}

// New creates an Oasis App.
func New(cfg *config.Config, deps Deps) *App {
	return &App{
		frontend:  deps.Frontend,
		chatLLM:   deps.ChatLLM,
		intentLLM: deps.IntentLLM,
		actionLLM: deps.ActionLLM,
		embedding: deps.Embedding,
		store:     deps.Store,
		memory:    deps.Memory,
		tools:     oasis.NewToolRegistry(),
		agents:    NewAgentManager(cfg.Brain.MaxConcurrentAgents),
		guards:    defaultGuards(),
		config:    cfg,
		urlFetch:  fetchURL,
	}
}

// defaultGuards builds the processor chain run around every chat and action
// LLM call: injection detection, input/output length limits, and a cap on
// tool calls per turn.
func defaultGuards() *oasis.ProcessorChain {
	chain := oasis.NewProcessorChain()
	chain.Add(oasis.NewInjectionGuard())
	chain.Add(oasis.NewContentGuard(
		oasis.MaxInputLength(20000),
		oasis.MaxOutputLength(20000),
	))
	chain.Add(oasis.NewMaxToolCallsGuard(8))
	return chain
}

// AddTool registers a tool with the app.
func (a *App) AddTool(t oasis.Tool) {
	a.tools.Add(t)
}

// SetIngestFile sets the file ingestion function (provided by tools/remember).
func (a *App) SetIngestFile(fn func(ctx context.Context, content, filename string) (string, error)) {
	a.ingestFile = fn
}

// SetIngestURL sets the URL ingestion function (provided by tools/remember).
func (a *App) SetIngestURL(fn func(ctx context.Context, html, sourceURL string) (string, error)) {
	a.ingestURL = fn
}

// SetTracer attaches a Tracer used to span each routed message and action
// run. Optional; a nil tracer (the default) disables span creation.
func (a *App) SetTracer(t oasis.Tracer) {
	a.tracer = t
}

// Tools returns the tool registry (shared with the scheduler).
func (a *App) Tools() *oasis.ToolRegistry { return a.tools }

// Frontend returns the frontend (shared with the scheduler).
func (a *App) Frontend() oasis.Frontend { return a.frontend }

// Run starts the application: init stores, poll for messages, dispatch.
func (a *App) Run(ctx context.Context) error {
	if err := a.store.Init(ctx); err != nil {
		return fmt.Errorf("store init: %w", err)
	}
	if a.memory != nil {
		if err := a.memory.Init(ctx); err != nil {
			return fmt.Errorf("memory init: %w", err)
		}
	}

	msgs, err := a.frontend.Poll(ctx)
	if err != nil {
		return fmt.Errorf("frontend poll: %w", err)
	}

	log.Println("oasis: assistant running")

	for {
		select {
		case <-ctx.Done():
			log.Println("oasis: shutting down")
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			go a.route(ctx, msg)
		}
	}
}

// RunWithSignal wraps Run with OS signal handling for graceful shutdown.
func (a *App) RunWithSignal() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Run(ctx)
}
