package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	oasis "github.com/sandlake/oasis"
)

// KnowledgeTool searches the knowledge base and past conversations by
// embedding the query and running semantic similarity search directly against
// the VectorStore's chunk and message tables.
type KnowledgeTool struct {
	store     oasis.VectorStore
	embedding oasis.EmbeddingProvider
	topK      int
}

// Option configures a KnowledgeTool.
type Option func(*KnowledgeTool)

// WithTopK sets the number of results to retrieve per source. Default is 5.
func WithTopK(n int) Option {
	return func(k *KnowledgeTool) { k.topK = n }
}

// New creates a KnowledgeTool backed by store and emb.
func New(store oasis.VectorStore, emb oasis.EmbeddingProvider, opts ...Option) *KnowledgeTool {
	k := &KnowledgeTool{store: store, embedding: emb, topK: 5}
	for _, o := range opts {
		o(k)
	}
	return k
}

func (k *KnowledgeTool) Definitions() []oasis.ToolDefinition {
	return []oasis.ToolDefinition{{
		Name:        "knowledge_search",
		Description: "Search the user's personal knowledge base for previously saved information, documents, and past conversations.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Search query"}},"required":["query"]}`),
	}}
}

func (k *KnowledgeTool) Execute(ctx context.Context, _ string, args json.RawMessage) (oasis.ToolResult, error) {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return oasis.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	embs, err := k.embedding.Embed(ctx, []string{params.Query})
	if err != nil {
		return oasis.ToolResult{Error: "embedding error: " + err.Error()}, nil
	}
	if len(embs) == 0 || len(embs[0]) == 0 {
		return oasis.ToolResult{Error: "embedding returned empty result"}, nil
	}
	queryVec := embs[0]

	chunks, err := k.store.SearchChunks(ctx, queryVec, k.topK)
	if err != nil {
		return oasis.ToolResult{Error: "chunk search error: " + err.Error()}, nil
	}

	messages, err := k.store.SearchMessages(ctx, queryVec, k.topK)
	if err != nil {
		return oasis.ToolResult{Error: "message search error: " + err.Error()}, nil
	}

	var out strings.Builder
	if len(chunks) > 0 {
		out.WriteString("From knowledge base:\n")
		for i, r := range chunks {
			fmt.Fprintf(&out, "%d. (score %.2f) %s\n", i+1, r.Score, r.Content)
		}
		out.WriteString("\n")
	}
	if len(messages) > 0 {
		out.WriteString("From past conversations:\n")
		for _, sm := range messages {
			fmt.Fprintf(&out, "[%s] (score %.2f): %s\n", sm.Role, sm.Score, sm.Content)
		}
	}
	if out.Len() == 0 {
		fmt.Fprintf(&out, "No relevant information found for %q.", params.Query)
	}

	return oasis.ToolResult{Content: out.String()}, nil
}
