package assistant

import (
	"context"
	"errors"
	"testing"

	oasis "github.com/sandlake/oasis"
	"github.com/sandlake/oasis/internal/config"
)

func newChatTestApp(frontend *fakeFrontend, chatLLM oasis.Provider) *App {
	cfg := &config.Config{Brain: config.BrainConfig{ContextWindow: 20, MaxConcurrentAgents: 3}}
	return New(cfg, Deps{
		Frontend: frontend,
		ChatLLM:  chatLLM,
		Store:    newFakeStore(),
	})
}

// Scenario A (spec.md §8): a single successful stream produces one
// placeholder and a final formatted edit equal to the fully accumulated text.
func TestHandleChatStreamSingleSuccessfulStream(t *testing.T) {
	fe := newFakeFrontend()
	llm := &sequenceProvider{streamTok: []string{"Rust ", "is a ", "language."}}
	app := newChatTestApp(fe, llm)

	conv := oasis.Conversation{ID: "conv1", ChatID: "chat1"}
	got := app.handleChatStream(context.Background(), "chat1", "What is Rust?", conv)

	if got != "Rust is a language." {
		t.Fatalf("got %q, want the fully accumulated text", got)
	}
	if len(fe.sent) != 1 || fe.sent[0].Text != "Thinking..." {
		t.Fatalf("expected a single 'Thinking...' placeholder, got %+v", fe.sent)
	}
	last := fe.lastEdit()
	if !last.Formatted || last.Text != "Rust is a language." {
		t.Fatalf("expected a final formatted edit with the full text, got %+v", last)
	}
}

// retryThenSucceedProvider errors (transiently, with no accumulated output)
// on its first N-1 ChatStream calls, then succeeds.
type retryThenSucceedProvider struct {
	failures  int
	calls     int
	streamTok []string
}

func (p *retryThenSucceedProvider) Chat(ctx context.Context, req oasis.ChatRequest) (oasis.ChatResponse, error) {
	return oasis.ChatResponse{}, nil
}
func (p *retryThenSucceedProvider) ChatWithTools(ctx context.Context, req oasis.ChatRequest, tools []oasis.ToolDefinition) (oasis.ChatResponse, error) {
	return oasis.ChatResponse{}, nil
}
func (p *retryThenSucceedProvider) ChatStream(ctx context.Context, req oasis.ChatRequest, ch chan<- oasis.StreamEvent) (oasis.ChatResponse, error) {
	defer close(ch)
	p.calls++
	if p.calls <= p.failures {
		return oasis.ChatResponse{}, errors.New("503 service unavailable")
	}
	var full string
	for _, tok := range p.streamTok {
		ch <- oasis.StreamEvent{Type: oasis.EventTextDelta, Content: tok}
		full += tok
	}
	return oasis.ChatResponse{Content: full}, nil
}
func (p *retryThenSucceedProvider) Name() string { return "retry-then-succeed" }

// Property 7 (spec.md §8): a stream that errors before any token with a
// transient status retries, and the final result is the accumulated text
// from the first successful attempt — with the SAME placeholder message id
// preserved across attempts.
func TestHandleChatStreamRetriesOnTransientError(t *testing.T) {
	fe := newFakeFrontend()
	llm := &retryThenSucceedProvider{failures: 1, streamTok: []string{"ok"}}
	app := newChatTestApp(fe, llm)

	conv := oasis.Conversation{ID: "conv1", ChatID: "chat1"}
	got := app.handleChatStream(context.Background(), "chat1", "hi", conv)

	if got != "ok" {
		t.Fatalf("got %q, want the successful attempt's text", got)
	}
	if llm.calls != 2 {
		t.Fatalf("expected 1 failed attempt + 1 success, got %d calls", llm.calls)
	}
	if len(fe.sent) != 1 {
		t.Fatalf("expected exactly one placeholder message across all retries, got %d", len(fe.sent))
	}
	placeholderID := fe.sent[0].MsgID
	for _, e := range fe.edits {
		if e.MsgID != placeholderID {
			t.Fatalf("expected every edit to target the original placeholder %q, got %+v", placeholderID, e)
		}
	}
}

func TestHandleChatStreamAllRetriesExhausted(t *testing.T) {
	fe := newFakeFrontend()
	llm := &retryThenSucceedProvider{failures: 10} // never succeeds within maxStreamRetries
	app := newChatTestApp(fe, llm)

	conv := oasis.Conversation{ID: "conv1", ChatID: "chat1"}
	got := app.handleChatStream(context.Background(), "chat1", "hi", conv)

	if got != "" {
		t.Fatalf("got %q, want empty result after all retries are exhausted", got)
	}
	last := fe.lastEdit()
	if last.Text == "" {
		t.Fatal("expected a user-visible failure message on the placeholder")
	}
}
