package assistant

import (
	"context"
	"strings"
	"testing"
	"time"

	oasis "github.com/sandlake/oasis"
	"github.com/sandlake/oasis/internal/config"
)

func newStoreTestApp() (*App, *fakeStore) {
	store := newFakeStore()
	cfg := &config.Config{Brain: config.BrainConfig{MaxConcurrentAgents: 3, ContextWindow: 20}}
	app := New(cfg, Deps{Frontend: newFakeFrontend(), Store: store})
	return app, store
}

func TestGetOrCreateConversationCreatesThenReuses(t *testing.T) {
	app, _ := newStoreTestApp()

	first, err := app.getOrCreateConversation(context.Background(), "chat1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected a generated conversation id")
	}

	second, err := app.getOrCreateConversation(context.Background(), "chat1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the existing conversation to be reused, got a new id %q vs %q", second.ID, first.ID)
	}
}

func TestGetOrCreateConversationIsolatesByChatID(t *testing.T) {
	app, _ := newStoreTestApp()

	a, _ := app.getOrCreateConversation(context.Background(), "chat-a")
	b, _ := app.getOrCreateConversation(context.Background(), "chat-b")
	if a.ID == b.ID {
		t.Fatal("expected different chats to get different conversations")
	}
}

func TestTaskSummaryListsTodoAndInProgressOnly(t *testing.T) {
	app, store := newStoreTestApp()
	store.tasks = []oasis.Task{
		{ID: "1", Title: "write report", Status: oasis.TaskTodo, Priority: oasis.TaskHigh},
		{ID: "2", Title: "ship feature", Status: oasis.TaskInProgress, Priority: oasis.TaskMedium},
		{ID: "3", Title: "archived thing", Status: oasis.TaskDone, Priority: oasis.TaskLow},
	}

	summary := app.taskSummary(context.Background())
	if !strings.Contains(summary, "write report") || !strings.Contains(summary, "ship feature") {
		t.Fatalf("expected todo/in-progress tasks listed, got %q", summary)
	}
	if strings.Contains(summary, "archived thing") {
		t.Fatalf("expected done tasks excluded, got %q", summary)
	}
}

func TestTaskSummaryEmptyWhenNoActiveTasks(t *testing.T) {
	app, _ := newStoreTestApp()
	if got := app.taskSummary(context.Background()); got != "" {
		t.Fatalf("got %q, want empty summary with no tasks", got)
	}
}

func TestStoreMessagePairPersistsBothRoles(t *testing.T) {
	app, store := newStoreTestApp()
	app.storeMessagePair(context.Background(), "conv1", "hello", "hi there")

	msgs, _ := store.GetMessages(context.Background(), "conv1", 10)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "hello" {
		t.Fatalf("expected the user message first, got %+v", msgs[0])
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "hi there" {
		t.Fatalf("expected the assistant message second, got %+v", msgs[1])
	}
}

func TestExtractAndStoreFactsNoopWithoutMemory(t *testing.T) {
	app, _ := newStoreTestApp()
	// No memory/embedding configured: must return without panicking.
	app.extractAndStoreFacts(context.Background(), "my name is Alex", "got it")
}

func TestExtractAndStoreFactsUpsertsExtractedFacts(t *testing.T) {
	store := newFakeStore()
	mem := &fakeMemory{}
	intentLLM := &sequenceProvider{
		responses: []oasis.ChatResponse{{Content: `[{"fact":"User's name is Alex","category":"personal"}]`}},
	}
	cfg := &config.Config{Brain: config.BrainConfig{MaxConcurrentAgents: 3}}
	app := New(cfg, Deps{
		Frontend:  newFakeFrontend(),
		Store:     store,
		Memory:    mem,
		IntentLLM: intentLLM,
		Embedding: &fakeEmbedding{dims: 4},
	})

	app.extractAndStoreFacts(context.Background(), "My name is Alex", "Nice to meet you, Alex!")

	// extractAndStoreFacts is synchronous, so the upsert has already happened.
	if len(mem.upserts) != 1 || mem.upserts[0] != "User's name is Alex" {
		t.Fatalf("expected the extracted fact to be upserted, got %+v", mem.upserts)
	}
}

func TestSpawnStorePersistsAsynchronously(t *testing.T) {
	app, store := newStoreTestApp()
	conv := oasis.Conversation{ID: "conv1", ChatID: "chat1"}

	app.spawnStore(context.Background(), conv, "question", "answer")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		msgs, _ := store.GetMessages(context.Background(), "conv1", 10)
		if len(msgs) == 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected spawnStore to persist the message pair within 1s")
}
