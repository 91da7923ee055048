package assistant

import (
	"context"
	"encoding/json"
	"sync"

	oasis "github.com/sandlake/oasis"
)

// fakeFrontend is an in-memory oasis.Frontend recording every send/edit so
// tests can assert on what the runner told the user.
type fakeFrontend struct {
	mu sync.Mutex

	nextID  int
	sent    []sentMessage
	replies []sentMessage
	edits   []editCall

	sendErr error
}

type sentMessage struct {
	ChatID, Text, ReplyTo string
	MsgID                 string
}

type editCall struct {
	ChatID, MsgID, Text string
	Formatted           bool
}

func newFakeFrontend() *fakeFrontend { return &fakeFrontend{} }

func (f *fakeFrontend) Poll(ctx context.Context) (<-chan oasis.IncomingMessage, error) {
	ch := make(chan oasis.IncomingMessage)
	return ch, nil
}

func (f *fakeFrontend) Send(ctx context.Context, chatID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.nextID++
	id := idFromInt(f.nextID)
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text, MsgID: id})
	return id, nil
}

func (f *fakeFrontend) SendReply(ctx context.Context, chatID, replyToMsgID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.nextID++
	id := idFromInt(f.nextID)
	f.replies = append(f.replies, sentMessage{ChatID: chatID, Text: text, ReplyTo: replyToMsgID, MsgID: id})
	return id, nil
}

func (f *fakeFrontend) Edit(ctx context.Context, chatID, msgID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, editCall{ChatID: chatID, MsgID: msgID, Text: text})
	return nil
}

func (f *fakeFrontend) EditFormatted(ctx context.Context, chatID, msgID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, editCall{ChatID: chatID, MsgID: msgID, Text: text, Formatted: true})
	return nil
}

func (f *fakeFrontend) SendTyping(ctx context.Context, chatID string) error { return nil }

func (f *fakeFrontend) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	return []byte("file contents"), "file.txt", nil
}

func (f *fakeFrontend) firstReplyMsgID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return ""
	}
	return f.replies[0].MsgID
}

func (f *fakeFrontend) lastEdit() editCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return editCall{}
	}
	return f.edits[len(f.edits)-1]
}

func idFromInt(n int) string {
	const digits = "0123456789abcdef"
	if n < 16 {
		return "msg-" + string(digits[n])
	}
	return "msg-many"
}

// sequenceProvider returns queued ChatResponses in order for every call site
// (chat/intent/action share the same fake in most tests). Extra calls beyond
// the configured sequence repeat the last response.
type sequenceProvider struct {
	mu        sync.Mutex
	responses []oasis.ChatResponse
	errs      []error
	calls     int
	streamErr error
	streamTok []string
	lastReq   oasis.ChatRequest
}

func (p *sequenceProvider) Chat(ctx context.Context, req oasis.ChatRequest) (oasis.ChatResponse, error) {
	return p.next()
}

func (p *sequenceProvider) ChatWithTools(ctx context.Context, req oasis.ChatRequest, tools []oasis.ToolDefinition) (oasis.ChatResponse, error) {
	return p.next()
}

func (p *sequenceProvider) next() (oasis.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	p.calls++
	var err error
	if idx < len(p.errs) {
		err = p.errs[idx]
	}
	if idx < 0 || idx >= len(p.responses) {
		return oasis.ChatResponse{}, err
	}
	return p.responses[idx], err
}

func (p *sequenceProvider) ChatStream(ctx context.Context, req oasis.ChatRequest, ch chan<- oasis.StreamEvent) (oasis.ChatResponse, error) {
	defer close(ch)
	p.mu.Lock()
	p.lastReq = req
	p.mu.Unlock()
	if p.streamErr != nil {
		return oasis.ChatResponse{}, p.streamErr
	}
	var full string
	for _, tok := range p.streamTok {
		ch <- oasis.StreamEvent{Type: oasis.EventTextDelta, Content: tok}
		full += tok
	}
	return oasis.ChatResponse{Content: full}, nil
}

func (p *sequenceProvider) Name() string { return "fake" }

// fakeEmbedding returns a fixed-size zero vector for every text.
type fakeEmbedding struct{ dims int }

func (e *fakeEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	dims := e.dims
	if dims == 0 {
		dims = 4
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, dims)
	}
	return out, nil
}
func (e *fakeEmbedding) Dimensions() int { return e.dims }
func (e *fakeEmbedding) Name() string    { return "fake-embed" }

// fakeMemory is a no-op oasis.MemoryStore.
type fakeMemory struct {
	mu      sync.Mutex
	upserts []string
	deleted []string
	context string
}

func (m *fakeMemory) UpsertFact(ctx context.Context, fact, category string, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, fact)
	return nil
}
func (m *fakeMemory) SearchFacts(ctx context.Context, embedding []float32, topK int) ([]oasis.ScoredFact, error) {
	return nil, nil
}
func (m *fakeMemory) BuildContext(ctx context.Context, queryEmbedding []float32) (string, error) {
	return m.context, nil
}
func (m *fakeMemory) DeleteFact(ctx context.Context, factID string) error { return nil }
func (m *fakeMemory) DeleteMatchingFacts(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, pattern)
	return nil
}
func (m *fakeMemory) DecayOldFacts(ctx context.Context) error { return nil }
func (m *fakeMemory) Init(ctx context.Context) error          { return nil }

// fakeStore is an in-memory oasis.VectorStore sufficient to drive the
// assistant package's router/action/chat paths.
type fakeStore struct {
	mu            sync.Mutex
	conversations map[string]oasis.Conversation
	byChatID      map[string][]string // chatID -> conversation IDs, newest last
	messages      map[string][]oasis.Message
	config        map[string]string
	skills        []oasis.ScoredSkill
	tasks         []oasis.Task
	initCalls     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[string]oasis.Conversation),
		byChatID:      make(map[string][]string),
		messages:      make(map[string][]oasis.Message),
		config:        make(map[string]string),
	}
}

func (s *fakeStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initCalls++
	return nil
}
func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) CreateConversation(ctx context.Context, conv oasis.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = conv
	s.byChatID[conv.ChatID] = append(s.byChatID[conv.ChatID], conv.ID)
	return nil
}
func (s *fakeStore) GetConversation(ctx context.Context, id string) (oasis.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations[id], nil
}
func (s *fakeStore) ListConversations(ctx context.Context, chatID string, limit int) ([]oasis.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byChatID[chatID]
	var out []oasis.Conversation
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.conversations[ids[i]])
	}
	return out, nil
}
func (s *fakeStore) UpdateConversation(ctx context.Context, conv oasis.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = conv
	return nil
}
func (s *fakeStore) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, id)
	return nil
}

func (s *fakeStore) StoreMessage(ctx context.Context, msg oasis.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	return nil
}
func (s *fakeStore) GetMessages(ctx context.Context, conversationID string, limit int) ([]oasis.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}
func (s *fakeStore) SearchMessages(ctx context.Context, embedding []float32, topK int) ([]oasis.ScoredMessage, error) {
	return nil, nil
}

func (s *fakeStore) StoreDocument(ctx context.Context, doc oasis.Document, chunks []oasis.Chunk) error {
	return nil
}
func (s *fakeStore) SearchChunks(ctx context.Context, embedding []float32, topK int) ([]oasis.ScoredChunk, error) {
	return nil, nil
}
func (s *fakeStore) GetChunksByIDs(ctx context.Context, ids []string) ([]oasis.Chunk, error) {
	return nil, nil
}

func (s *fakeStore) GetConfig(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config[key], nil
}
func (s *fakeStore) SetConfig(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config[key] = value
	return nil
}

func (s *fakeStore) CreateScheduledAction(ctx context.Context, action oasis.ScheduledAction) error {
	return nil
}
func (s *fakeStore) ListScheduledActions(ctx context.Context) ([]oasis.ScheduledAction, error) {
	return nil, nil
}
func (s *fakeStore) GetDueScheduledActions(ctx context.Context, now int64) ([]oasis.ScheduledAction, error) {
	return nil, nil
}
func (s *fakeStore) UpdateScheduledAction(ctx context.Context, action oasis.ScheduledAction) error {
	return nil
}
func (s *fakeStore) UpdateScheduledActionEnabled(ctx context.Context, id string, enabled bool) error {
	return nil
}
func (s *fakeStore) DeleteScheduledAction(ctx context.Context, id string) error { return nil }
func (s *fakeStore) DeleteAllScheduledActions(ctx context.Context) (int, error) { return 0, nil }
func (s *fakeStore) FindScheduledActionsByDescription(ctx context.Context, pattern string) ([]oasis.ScheduledAction, error) {
	return nil, nil
}

func (s *fakeStore) CreateSkill(ctx context.Context, skill oasis.Skill) error { return nil }
func (s *fakeStore) GetSkill(ctx context.Context, id string) (oasis.Skill, error) {
	return oasis.Skill{}, nil
}
func (s *fakeStore) ListSkills(ctx context.Context) ([]oasis.Skill, error) { return nil, nil }
func (s *fakeStore) UpdateSkill(ctx context.Context, skill oasis.Skill) error { return nil }
func (s *fakeStore) DeleteSkill(ctx context.Context, id string) error         { return nil }
func (s *fakeStore) SearchSkills(ctx context.Context, embedding []float32, topK int) ([]oasis.ScoredSkill, error) {
	return s.skills, nil
}

func (s *fakeStore) CreateTask(ctx context.Context, task oasis.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	return nil
}
func (s *fakeStore) ListTasks(ctx context.Context, status oasis.TaskStatus) ([]oasis.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []oasis.Task
	for _, task := range s.tasks {
		if task.Status == status {
			out = append(out, task)
		}
	}
	return out, nil
}
func (s *fakeStore) UpdateTaskStatus(ctx context.Context, id string, status oasis.TaskStatus) error {
	return nil
}
func (s *fakeStore) DeleteTask(ctx context.Context, id string) error { return nil }
func (s *fakeStore) DeleteAllTasks(ctx context.Context) (int, error) { return 0, nil }

// fakeTool is a minimal oasis.Tool for wiring into the registry in tests.
type fakeTool struct {
	name   string
	output string
	errMsg string
}

func (t *fakeTool) Definitions() []oasis.ToolDefinition {
	return []oasis.ToolDefinition{{Name: t.name, Description: "test tool"}}
}
func (t *fakeTool) Execute(ctx context.Context, name string, args json.RawMessage) (oasis.ToolResult, error) {
	if t.errMsg != "" {
		return oasis.ToolResult{Error: t.errMsg}, nil
	}
	return oasis.ToolResult{Content: t.output}, nil
}
