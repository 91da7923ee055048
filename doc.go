// Package oasis defines the core interfaces and shared primitives of a
// personal AI assistant: LLM providers, embedding providers, vector storage,
// long-term memory, a tool execution system, and a messaging frontend
// abstraction.
//
// The root package is deliberately small. The product — intent routing,
// sub-agent supervision, the tool-use loop, the scheduler — lives in
// internal/assistant and internal/scheduling, built on top of these
// contracts. cmd/oasis wires concrete implementations (provider/gemini,
// store/sqlite, frontend/telegram, tools/*) into a runnable binary.
//
// # Core Interfaces
//
//   - [Provider] — LLM backend (chat, tool calling, streaming)
//   - [EmbeddingProvider] — text-to-vector embedding
//   - [Frontend] — messaging platform (Telegram, Discord, CLI, etc.)
//   - [VectorStore] — persistence with vector search
//   - [MemoryStore] — long-term semantic memory
//   - [Tool] — pluggable capability for LLM function calling
//
// # Included Implementations
//
// Providers: provider/gemini (Google Gemini), provider/openaicompat
// (OpenAI-compatible APIs: OpenAI, Groq, DeepSeek, Together, Mistral, Ollama).
// Storage: store/sqlite (local, no cgo), store/postgres (pgvector).
// Frontends: frontend/telegram.
// Tools: tools/knowledge, tools/remember, tools/search, tools/schedule,
// tools/skill, tools/task, tools/shell, tools/file, tools/http.
//
// See cmd/oasis for the entrypoint that wires these together.
package oasis
