package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sandlake/oasis"
	"github.com/sandlake/oasis/store/sqlite"
)

// fakeEmbedding returns a fixed-length zero vector per input text so tests
// don't depend on a real embedding backend.
type fakeEmbedding struct{ dims int }

func (f *fakeEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dims)
	}
	return out, nil
}
func (f *fakeEmbedding) Dimensions() int { return f.dims }
func (f *fakeEmbedding) Name() string    { return "fake" }

func testStore(t *testing.T) oasis.VectorStore {
	t.Helper()
	s := sqlite.New(filepath.Join(t.TempDir(), "ingest.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestIngestTextStoresDocumentAndChunks(t *testing.T) {
	store := testStore(t)
	in := NewIngestor(store, &fakeEmbedding{dims: 4})

	result, err := in.IngestText(context.Background(), "a short note about the weekend plan", "manual", "Weekend Plan")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DocumentID == "" {
		t.Fatal("expected a generated document id")
	}
	if result.ChunkCount != 1 {
		t.Fatalf("got %d chunks, want 1 for a short note", result.ChunkCount)
	}
}

func TestIngestTextTitleDefaultsToSource(t *testing.T) {
	store := testStore(t)
	in := NewIngestor(store, &fakeEmbedding{dims: 4})

	_, err := in.IngestText(context.Background(), "some content", "https://example.com/page", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIngestTextEmptyContentErrors(t *testing.T) {
	store := testStore(t)
	in := NewIngestor(store, &fakeEmbedding{dims: 4})

	if _, err := in.IngestText(context.Background(), "   ", "manual", "Empty"); err == nil {
		t.Fatal("expected an error for empty extractable content")
	}
}

func TestIngestFileUnknownExtensionTreatedAsPlainText(t *testing.T) {
	store := testStore(t)
	in := NewIngestor(store, &fakeEmbedding{dims: 4})

	result, err := in.IngestFile(context.Background(), []byte("plain text body"), "notes.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ChunkCount == 0 {
		t.Fatal("expected at least one chunk")
	}
}

func TestIngestFileHTMLExtensionStripsMarkup(t *testing.T) {
	store := testStore(t)
	in := NewIngestor(store, &fakeEmbedding{dims: 4})

	html := "<html><body><h1>Title</h1><p>Hello <b>world</b></p></body></html>"
	result, err := in.IngestFile(context.Background(), []byte(html), "page.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ChunkCount == 0 {
		t.Fatal("expected extracted text to produce at least one chunk")
	}
}

func TestIngestURLFallsBackToStripHTMLWhenReadabilityFindsNothing(t *testing.T) {
	store := testStore(t)
	in := NewIngestor(store, &fakeEmbedding{dims: 4})

	// A fragment too small/malformed for readability to extract an article
	// body still falls through to the StripHTML path.
	html := "<div>just a fragment</div>"
	result, err := in.IngestURL(context.Background(), html, "https://example.com/a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ChunkCount == 0 {
		t.Fatal("expected at least one chunk from the stripped fragment")
	}
}

func TestIngestEmbedErrorPropagates(t *testing.T) {
	store := testStore(t)
	in := NewIngestor(store, &errEmbedding{})

	_, err := in.IngestText(context.Background(), "some content to embed", "manual", "Doc")
	if err == nil || !strings.Contains(err.Error(), "embed chunks") {
		t.Fatalf("got %v, want an embed-chunks error", err)
	}
}

type errEmbedding struct{}

func (e *errEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errBoom
}
func (e *errEmbedding) Dimensions() int { return 4 }
func (e *errEmbedding) Name() string    { return "err" }

var errBoom = errors.New("embedding backend unavailable")
