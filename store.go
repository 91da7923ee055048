package oasis

import "context"

// VectorStore abstracts persistence with vector search capabilities. It is
// the single source of truth for conversations, messages, documents/chunks,
// scheduled actions, skills, and tasks.
type VectorStore interface {
	// --- Conversations ---
	CreateConversation(ctx context.Context, conv Conversation) error
	GetConversation(ctx context.Context, id string) (Conversation, error)
	ListConversations(ctx context.Context, chatID string, limit int) ([]Conversation, error)
	UpdateConversation(ctx context.Context, conv Conversation) error
	DeleteConversation(ctx context.Context, id string) error

	// --- Messages ---
	StoreMessage(ctx context.Context, msg Message) error
	GetMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	// SearchMessages performs semantic similarity search across all messages.
	// Results are sorted by Score descending.
	SearchMessages(ctx context.Context, embedding []float32, topK int) ([]ScoredMessage, error)

	// --- Documents + Chunks ---
	StoreDocument(ctx context.Context, doc Document, chunks []Chunk) error
	// SearchChunks performs semantic similarity search over document chunks.
	SearchChunks(ctx context.Context, embedding []float32, topK int) ([]ScoredChunk, error)
	GetChunksByIDs(ctx context.Context, ids []string) ([]Chunk, error)

	// --- Key-value config ---
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error

	// --- Scheduled Actions ---
	CreateScheduledAction(ctx context.Context, action ScheduledAction) error
	ListScheduledActions(ctx context.Context) ([]ScheduledAction, error)
	GetDueScheduledActions(ctx context.Context, now int64) ([]ScheduledAction, error)
	UpdateScheduledAction(ctx context.Context, action ScheduledAction) error
	UpdateScheduledActionEnabled(ctx context.Context, id string, enabled bool) error
	DeleteScheduledAction(ctx context.Context, id string) error
	DeleteAllScheduledActions(ctx context.Context) (int, error)
	FindScheduledActionsByDescription(ctx context.Context, pattern string) ([]ScheduledAction, error)

	// --- Skills ---
	CreateSkill(ctx context.Context, skill Skill) error
	GetSkill(ctx context.Context, id string) (Skill, error)
	ListSkills(ctx context.Context) ([]Skill, error)
	UpdateSkill(ctx context.Context, skill Skill) error
	DeleteSkill(ctx context.Context, id string) error
	// SearchSkills performs semantic similarity search over stored skills.
	SearchSkills(ctx context.Context, embedding []float32, topK int) ([]ScoredSkill, error)

	// --- Tasks ---
	CreateTask(ctx context.Context, task Task) error
	ListTasks(ctx context.Context, status TaskStatus) ([]Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status TaskStatus) error
	DeleteTask(ctx context.Context, id string) error
	DeleteAllTasks(ctx context.Context) (int, error)

	// --- Lifecycle ---
	Init(ctx context.Context) error
	Close() error
}
