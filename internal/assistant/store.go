package assistant

import (
	"context"
	"log"

	oasis "github.com/sandlake/oasis"
	"github.com/sandlake/oasis/memory"
	"github.com/sandlake/oasis/tools/task"
)

// getOrCreateConversation returns the most recent conversation for a chatID,
// creating one if none exists. The VectorStore interface intentionally
// exposes only the CRUD primitives; get-or-create is a thin convenience
// built on top of them.
func (a *App) getOrCreateConversation(ctx context.Context, chatID string) (oasis.Conversation, error) {
	convs, err := a.store.ListConversations(ctx, chatID, 1)
	if err != nil {
		return oasis.Conversation{}, err
	}
	if len(convs) > 0 {
		return convs[0], nil
	}
	now := oasis.NowUnix()
	conv := oasis.Conversation{
		ID:        oasis.NewID(),
		ChatID:    chatID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreateConversation(ctx, conv); err != nil {
		return oasis.Conversation{}, err
	}
	return conv, nil
}

// taskSummary builds the "active tasks" block injected into the system
// prompt, delegating to the task tool's shared helper.
func (a *App) taskSummary(ctx context.Context) string {
	return task.Summary(ctx, a.store)
}

// spawnStore persists messages and extracts facts in a background goroutine.
func (a *App) spawnStore(ctx context.Context, conv oasis.Conversation, userText, assistantText string) {
	go func() {
		a.storeMessagePair(ctx, conv.ID, userText, assistantText)
		a.extractAndStoreFacts(ctx, userText, assistantText)
	}()
}

// storeMessagePair persists user + assistant messages with embedding.
func (a *App) storeMessagePair(ctx context.Context, conversationID, userText, assistantText string) {
	now := oasis.NowUnix()

	userMsg := oasis.Message{
		ID:             oasis.NewID(),
		ConversationID: conversationID,
		Role:           "user",
		Content:        userText,
		CreatedAt:      now,
	}

	if a.embedding != nil {
		embs, err := a.embedding.Embed(ctx, []string{userText})
		if err == nil && len(embs) > 0 {
			userMsg.Embedding = embs[0]
		}
	}

	if err := a.store.StoreMessage(ctx, userMsg); err != nil {
		log.Printf(" [store] user message error: %v", err)
	}

	assistantMsg := oasis.Message{
		ID:             oasis.NewID(),
		ConversationID: conversationID,
		Role:           "assistant",
		Content:        assistantText,
		CreatedAt:      now,
	}
	if err := a.store.StoreMessage(ctx, assistantMsg); err != nil {
		log.Printf(" [store] assistant message error: %v", err)
	}
}

// extractAndStoreFacts extracts user facts from the conversation turn.
func (a *App) extractAndStoreFacts(ctx context.Context, userText, assistantText string) {
	if a.memory == nil || a.intentLLM == nil || a.embedding == nil {
		return
	}

	if !memory.ShouldExtract(userText) {
		return
	}

	conversationTurn := "User: " + userText + "\nAssistant: " + assistantText

	req := oasis.ChatRequest{
		Messages: []oasis.ChatMessage{
			oasis.SystemMessage(memory.ExtractFactsPrompt),
			oasis.UserMessage(conversationTurn),
		},
		ResponseSchema: memory.ExtractFactsSchema,
	}

	resp, err := a.intentLLM.Chat(ctx, req)
	if err != nil {
		log.Printf(" [memory] fact extraction failed: %v", err)
		return
	}

	facts := memory.ParseExtractedFacts(resp.Content)
	if len(facts) == 0 {
		return
	}
	log.Printf(" [memory] extracted %d fact(s)", len(facts))

	factTexts := make([]string, len(facts))
	for i, f := range facts {
		factTexts[i] = f.Fact
	}
	embeddings, err := a.embedding.Embed(ctx, factTexts)
	if err != nil {
		log.Printf(" [memory] fact embedding failed: %v", err)
		return
	}

	for i, fact := range facts {
		if fact.Supersedes != nil {
			if err := a.memory.DeleteMatchingFacts(ctx, *fact.Supersedes); err != nil {
				log.Printf(" [memory] delete superseded failed: %v", err)
			}
		}

		var emb []float32
		if i < len(embeddings) {
			emb = embeddings[i]
		}
		if err := a.memory.UpsertFact(ctx, fact.Fact, fact.Category, emb); err != nil {
			log.Printf(" [memory] upsert fact failed: %v", err)
		}
	}
}
