package oasis

import (
	"fmt"
	"time"
)

// ErrLLM wraps a provider-level failure that is not an HTTP transport error
// (e.g. a malformed response, an unsupported feature, a refused request).
type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrHTTP wraps a non-2xx HTTP response from a provider or store backend.
// RetryAfter, when non-zero, is the server-advertised minimum backoff
// (parsed from a Retry-After header) and is honored by WithRetry.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ErrTransport wraps a lower-level network failure (dial, TLS, timeout)
// encountered talking to a provider, store, or messenger transport.
type ErrTransport struct {
	Target string
	Err    error
}

func (e *ErrTransport) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Target, e.Err)
}

func (e *ErrTransport) Unwrap() error { return e.Err }

// ErrEmbedding wraps a failure from an EmbeddingProvider.
type ErrEmbedding struct {
	Provider string
	Message  string
}

func (e *ErrEmbedding) Error() string {
	return fmt.Sprintf("embedding %s: %s", e.Provider, e.Message)
}

// ErrDatabase wraps a failure from a VectorStore or MemoryStore backend.
type ErrDatabase struct {
	Op  string
	Err error
}

func (e *ErrDatabase) Error() string {
	return fmt.Sprintf("database %s: %v", e.Op, e.Err)
}

func (e *ErrDatabase) Unwrap() error { return e.Err }

// ErrIngest wraps a failure extracting or chunking a document or URL.
type ErrIngest struct {
	Source string
	Err    error
}

func (e *ErrIngest) Error() string {
	return fmt.Sprintf("ingest %s: %v", e.Source, e.Err)
}

func (e *ErrIngest) Unwrap() error { return e.Err }

// ErrConfig wraps a configuration load or validation failure.
type ErrConfig struct {
	Field   string
	Message string
}

func (e *ErrConfig) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

// ErrIntegration wraps a failure calling an external integration tool
// (HTTP fetch, shell command, search backend).
type ErrIntegration struct {
	Tool    string
	Message string
}

func (e *ErrIntegration) Error() string {
	return fmt.Sprintf("integration %s: %s", e.Tool, e.Message)
}
