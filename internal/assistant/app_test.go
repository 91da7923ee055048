package assistant

import (
	"context"
	"testing"
	"time"

	oasis "github.com/sandlake/oasis"
	"github.com/sandlake/oasis/internal/config"
)

func TestRunInitializesStoreAndStopsOnContextCancel(t *testing.T) {
	store := newFakeStore()
	cfg := &config.Config{Brain: config.BrainConfig{MaxConcurrentAgents: 3, ContextWindow: 20}}
	app := New(cfg, Deps{
		Frontend: newFakeFrontend(),
		Store:    store,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := app.Run(ctx)
	if err != context.DeadlineExceeded {
		t.Fatalf("got %v, want context.DeadlineExceeded once the context expires", err)
	}
	if store.initCalls != 1 {
		t.Fatalf("expected Init to be called exactly once, got %d", store.initCalls)
	}
}

func TestAddToolRegistersIntoSharedRegistry(t *testing.T) {
	cfg := &config.Config{Brain: config.BrainConfig{MaxConcurrentAgents: 3}}
	app := New(cfg, Deps{Frontend: newFakeFrontend(), Store: newFakeStore()})

	app.AddTool(&fakeTool{name: "weather"})

	defs := app.Tools().AllDefinitions()
	if len(defs) != 1 || defs[0].Name != "weather" {
		t.Fatalf("expected the tool to be registered, got %+v", defs)
	}
}

func TestFrontendAccessor(t *testing.T) {
	cfg := &config.Config{Brain: config.BrainConfig{MaxConcurrentAgents: 3}}
	fe := newFakeFrontend()
	app := New(cfg, Deps{Frontend: fe, Store: newFakeStore()})

	if app.Frontend() != oasis.Frontend(fe) {
		t.Fatal("expected Frontend() to return the injected frontend")
	}
}
