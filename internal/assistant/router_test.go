package assistant

import (
	"context"
	"strings"
	"testing"
	"time"

	oasis "github.com/sandlake/oasis"
	"github.com/sandlake/oasis/internal/config"
)

func newRouterTestApp(frontend *fakeFrontend, intentLLM, chatLLM oasis.Provider, maxConcurrent int) *App {
	cfg := &config.Config{
		Brain: config.BrainConfig{
			MaxConcurrentAgents: maxConcurrent,
			ContextWindow:       20,
		},
	}
	return New(cfg, Deps{
		Frontend:  frontend,
		ChatLLM:   chatLLM,
		IntentLLM: intentLLM,
		ActionLLM: intentLLM,
		Store:     newFakeStore(),
	})
}

func TestIsOwnerAutoRegistersFirstUser(t *testing.T) {
	fe := newFakeFrontend()
	app := newRouterTestApp(fe, &sequenceProvider{}, &sequenceProvider{}, 3)

	if !app.isOwner(context.Background(), "user-1") {
		t.Fatal("expected the first user to be auto-registered as owner")
	}
	if !app.isOwner(context.Background(), "user-1") {
		t.Fatal("expected the same user to still be authorized afterward")
	}
	if app.isOwner(context.Background(), "user-2") {
		t.Fatal("expected a second, different user to be rejected once an owner is set")
	}
}

func TestRouteDropsMessagesFromNonOwner(t *testing.T) {
	fe := newFakeFrontend()
	app := newRouterTestApp(fe, &sequenceProvider{}, &sequenceProvider{}, 3)
	app.isOwner(context.Background(), "owner") // register owner

	app.route(context.Background(), oasis.IncomingMessage{ChatID: "chat1", UserID: "intruder", Text: "hello"})

	if len(fe.sent) != 0 {
		t.Fatalf("expected no messages sent for a non-owner sender, got %+v", fe.sent)
	}
}

func TestRouteReplyRoutingShortCircuitsBeforeIntentClassification(t *testing.T) {
	fe := newFakeFrontend()
	intentLLM := &sequenceProvider{responses: []oasis.ChatResponse{{Content: `{"intent":"chat"}`}}}
	app := newRouterTestApp(fe, intentLLM, intentLLM, 3)

	ch := make(chan string, 1)
	app.agents.Register(&ActionAgent{ID: "a1", ChatID: "chat1", InputCh: ch, StartedAt: time.Now()})
	app.agents.RegisterMessage("bot-msg-1", "a1")

	app.route(context.Background(), oasis.IncomingMessage{
		ChatID: "chat1", UserID: "owner", Text: "Bali", ReplyToMsgID: "bot-msg-1",
	})

	select {
	case got := <-ch:
		if got != "Bali" {
			t.Fatalf("got %q, want Bali", got)
		}
	default:
		t.Fatal("expected the reply to be routed to the waiting agent's input channel")
	}
	// Must not have gone through the intent classifier at all.
	if intentLLM.calls != 0 {
		t.Fatalf("expected reply routing to short-circuit before intent classification, got %d LLM calls", intentLLM.calls)
	}
}

func TestRouteNewCommandCreatesFreshConversation(t *testing.T) {
	fe := newFakeFrontend()
	app := newRouterTestApp(fe, &sequenceProvider{}, &sequenceProvider{}, 3)
	store := app.store.(*fakeStore)

	app.isOwner(context.Background(), "owner") // register owner without routing a real message
	first, err := app.getOrCreateConversation(context.Background(), "chat1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	app.route(context.Background(), oasis.IncomingMessage{ChatID: "chat1", UserID: "owner", Text: "/new"})

	convs, _ := store.ListConversations(context.Background(), "chat1", 10)
	if len(convs) < 2 {
		t.Fatalf("expected /new to create an additional conversation, got %d", len(convs))
	}
	if convs[0].ID == first.ID {
		t.Fatal("expected the newest conversation to differ from the original")
	}
}

func TestRouteStatusCommandRendersAgentTable(t *testing.T) {
	fe := newFakeFrontend()
	app := newRouterTestApp(fe, &sequenceProvider{}, &sequenceProvider{}, 3)
	app.agents.Register(&ActionAgent{ID: "a1", Description: "booking a flight", Status: AgentRunning, StartedAt: time.Now()})

	app.route(context.Background(), oasis.IncomingMessage{ChatID: "chat1", UserID: "owner", Text: "/status"})

	if len(fe.sent) != 1 || !strings.Contains(fe.sent[0].Text, "booking a flight") {
		t.Fatalf("expected /status to report the active agent, got %+v", fe.sent)
	}
}

func TestRouteChatIntentStreamsResponse(t *testing.T) {
	fe := newFakeFrontend()
	intentLLM := &sequenceProvider{responses: []oasis.ChatResponse{{Content: `{"intent":"chat"}`}}}
	chatLLM := &sequenceProvider{streamTok: []string{"Rust ", "is a ", "language."}}
	app := newRouterTestApp(fe, intentLLM, chatLLM, 3)

	app.route(context.Background(), oasis.IncomingMessage{ChatID: "chat1", UserID: "owner", Text: "What is Rust?"})

	if len(fe.sent) == 0 {
		t.Fatal("expected a placeholder message to be sent for the streaming chat path")
	}
	if edit := fe.lastEdit(); !edit.Formatted || edit.Text != "Rust is a language." {
		t.Fatalf("expected a final formatted edit with the accumulated text, got %+v", edit)
	}
}

func TestRouteActionIntentQueuesWhenSlotsFull(t *testing.T) {
	fe := newFakeFrontend()
	intentLLM := &sequenceProvider{responses: []oasis.ChatResponse{{Content: `{"intent":"action"}`}}}
	app := newRouterTestApp(fe, intentLLM, intentLLM, 1)
	app.agents.Register(&ActionAgent{ID: "busy", Status: AgentRunning, StartedAt: time.Now()})

	app.route(context.Background(), oasis.IncomingMessage{ID: "m1", ChatID: "chat1", UserID: "owner", Text: "Book a flight"})

	found := false
	for _, s := range fe.sent {
		if strings.Contains(s.Text, "Queued") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a queued notice when no slot is free, got %+v", fe.sent)
	}
}

func TestRoutePhotoDownloadsLargestRenditionAndAttachesToChatLLM(t *testing.T) {
	fe := newFakeFrontend()
	chatLLM := &sequenceProvider{streamTok: []string{"Nice photo."}}
	app := newRouterTestApp(fe, &sequenceProvider{}, chatLLM, 3)
	app.isOwner(context.Background(), "owner")

	app.route(context.Background(), oasis.IncomingMessage{
		ChatID: "chat1", UserID: "owner", Caption: "what is this?",
		Photos: []oasis.FileInfo{
			{FileID: "thumb", FileSize: 100},
			{FileID: "full", FileSize: 5000, MimeType: "image/png"},
		},
	})

	if len(chatLLM.lastReq.Messages) == 0 {
		t.Fatal("expected the chat LLM to receive a request")
	}
	last := chatLLM.lastReq.Messages[len(chatLLM.lastReq.Messages)-1]
	if len(last.Attachments) != 1 {
		t.Fatalf("expected exactly one attachment, got %d", len(last.Attachments))
	}
	if last.Attachments[0].MimeType != "image/png" {
		t.Fatalf("expected the largest photo's mime type to be used, got %q", last.Attachments[0].MimeType)
	}
	if last.Attachments[0].Base64 == "" {
		t.Fatal("expected the downloaded photo to be base64-encoded")
	}
}

func TestRouteURLMessageIngestsDirectlyWithoutActionLLM(t *testing.T) {
	fe := newFakeFrontend()
	intentLLM := &sequenceProvider{}
	app := newRouterTestApp(fe, intentLLM, &sequenceProvider{}, 1)
	app.isOwner(context.Background(), "owner")

	var fetchedURL string
	app.urlFetch = func(_ context.Context, url string) (string, error) {
		fetchedURL = url
		return "<html><body><p>hello</p></body></html>", nil
	}
	var ingestedHTML, ingestedSource string
	app.SetIngestURL(func(_ context.Context, html, sourceURL string) (string, error) {
		ingestedHTML, ingestedSource = html, sourceURL
		return "URL ingested: 1 chunk(s) indexed.", nil
	})

	app.route(context.Background(), oasis.IncomingMessage{ID: "m1", ChatID: "chat1", UserID: "owner", Text: "https://example.com/article"})

	if fetchedURL != "https://example.com/article" {
		t.Fatalf("expected the URL to be fetched directly, got %q", fetchedURL)
	}
	if ingestedSource != "https://example.com/article" || ingestedHTML == "" {
		t.Fatalf("expected the fetched HTML to be passed to the ingestor, got html=%q source=%q", ingestedHTML, ingestedSource)
	}
	if intentLLM.lastReq.Messages != nil {
		t.Fatal("expected the intent LLM to never be called for a structural URL message")
	}

	found := false
	for _, s := range fe.sent {
		if strings.Contains(s.Text, "ingested") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the ingestion confirmation to be sent, got %+v", fe.sent)
	}
}

func TestRouteURLMessageWithoutIngestorConfiguredIsANoop(t *testing.T) {
	fe := newFakeFrontend()
	app := newRouterTestApp(fe, &sequenceProvider{}, &sequenceProvider{}, 1)
	app.agents.Register(&ActionAgent{ID: "busy", Status: AgentRunning, StartedAt: time.Now()})

	app.route(context.Background(), oasis.IncomingMessage{ID: "m1", ChatID: "chat1", UserID: "owner", Text: "https://example.com/article"})

	if len(fe.sent) != 0 {
		t.Fatalf("expected no messages when ingestURL is unset, got %+v", fe.sent)
	}
}
