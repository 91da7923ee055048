package ingest

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-shiori/go-readability"

	oasis "github.com/sandlake/oasis"
)

// ExtractResult is the plain text pulled from a document, with optional
// page-level byte offsets for extractors that understand pagination.
type ExtractResult struct {
	Text string
	Meta []PageMeta
}

// PageMeta records the byte range of one page's text within ExtractResult.Text.
type PageMeta struct {
	PageNumber int
	StartByte  int
	EndByte    int
}

// Extractor turns raw file bytes into plain text.
type Extractor interface {
	Extract(content []byte) (string, error)
}

// MetadataExtractor is an Extractor that can also report per-page offsets.
type MetadataExtractor interface {
	Extractor
	ExtractWithMeta(content []byte) (ExtractResult, error)
}

// Result reports the outcome of an ingestion.
type Result struct {
	DocumentID string
	ChunkCount int
}

// Ingestor chunks, embeds, and stores content into an oasis.VectorStore's
// document/chunk tables. It dispatches to a format-specific Extractor based on
// file extension, falling back to treating the content as plain text or HTML.
type Ingestor struct {
	store     oasis.VectorStore
	embedding oasis.EmbeddingProvider
	chunker   ChunkerConfig

	extractors map[string]Extractor
}

// NewIngestor creates an Ingestor backed by store for persistence and
// embedding for vectorizing chunks.
func NewIngestor(store oasis.VectorStore, embedding oasis.EmbeddingProvider) *Ingestor {
	return &Ingestor{
		store:     store,
		embedding: embedding,
		chunker:   DefaultChunkerConfig,
		extractors: map[string]Extractor{
			".pdf": NewPDFExtractor(),
		},
	}
}

// IngestText chunks, embeds, and stores raw text under a document titled title
// (falling back to source when title is empty) attributed to source.
func (in *Ingestor) IngestText(ctx context.Context, content, source, title string) (Result, error) {
	if title == "" {
		title = source
	}
	return in.store_(ctx, title, source, content)
}

// IngestFile extracts text from file content based on filename's extension,
// then chunks, embeds, and stores it.
func (in *Ingestor) IngestFile(ctx context.Context, content []byte, filename string) (Result, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	text, err := in.extractText(ext, content)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: extract %s: %w", filename, err)
	}

	return in.store_(ctx, filename, filename, text)
}

// IngestURL extracts the readable content of an already-fetched page's html
// and stores it under sourceURL. It does no network access itself.
func (in *Ingestor) IngestURL(ctx context.Context, html, sourceURL string) (Result, error) {
	title := sourceURL
	text := StripHTML(html)

	if parsed, err := url.Parse(sourceURL); err == nil {
		if article, err := readability.FromReader(strings.NewReader(html), parsed); err == nil && article.TextContent != "" {
			text = strings.TrimSpace(article.TextContent)
			if article.Title != "" {
				title = article.Title
			}
		}
	}

	return in.store_(ctx, title, sourceURL, text)
}

func (in *Ingestor) extractText(ext string, content []byte) (string, error) {
	if ext == ".html" || ext == ".htm" {
		return StripHTML(string(content)), nil
	}
	if extractor, ok := in.extractors[ext]; ok {
		return extractor.Extract(content)
	}
	return string(content), nil
}

func (in *Ingestor) store_(ctx context.Context, title, source, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, fmt.Errorf("ingest: no extractable content")
	}

	docID := oasis.NewID()
	doc := oasis.Document{
		ID:        docID,
		Title:     title,
		Source:    source,
		Content:   text,
		CreatedAt: oasis.NowUnix(),
	}

	pieces := ChunkText(text, in.chunker)
	vectors, err := in.embedding.Embed(ctx, pieces)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: embed chunks: %w", err)
	}
	chunks := make([]oasis.Chunk, 0, len(pieces))
	for i, p := range pieces {
		var embedding []float32
		if i < len(vectors) {
			embedding = vectors[i]
		}
		chunks = append(chunks, oasis.Chunk{
			ID:         oasis.NewID(),
			DocumentID: docID,
			Content:    p,
			ChunkIndex: i,
			Embedding:  embedding,
		})
	}

	if err := in.store.StoreDocument(ctx, doc, chunks); err != nil {
		return Result{}, fmt.Errorf("ingest: store document: %w", err)
	}

	return Result{DocumentID: docID, ChunkCount: len(chunks)}, nil
}

var (
	htmlTagRe    = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	htmlInlineRe = regexp.MustCompile(`(?i)</?(a|b|i|u|s|em|strong|span|code|small|mark|sub|sup)\b[^>]*>`)
	htmlStripRe  = regexp.MustCompile(`(?s)<[^>]+>`)
	whitespaceRe = regexp.MustCompile(`[ \t]+`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// StripHTML is a last-resort plain-text extractor used when readability
// parsing fails to find an article body.
func StripHTML(html string) string {
	text := htmlTagRe.ReplaceAllString(html, "")
	text = htmlInlineRe.ReplaceAllString(text, "")
	text = htmlStripRe.ReplaceAllString(text, "\n")
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
