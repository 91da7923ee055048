package ingest

import "strings"

// ChunkerConfig controls how ChunkText splits long text into retrieval units.
type ChunkerConfig struct {
	MaxChars     int // target maximum characters per chunk
	OverlapChars int // characters of trailing overlap carried into the next chunk
}

// DefaultChunkerConfig matches the paragraph-bounded ~800-char chunks used for
// document ingestion.
var DefaultChunkerConfig = ChunkerConfig{MaxChars: 800, OverlapChars: 100}

// ChunkText splits text into paragraph-bounded chunks of roughly cfg.MaxChars,
// carrying cfg.OverlapChars of trailing context into the next chunk so that
// facts spanning a chunk boundary aren't lost to retrieval.
func ChunkText(text string, cfg ChunkerConfig) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultChunkerConfig.MaxChars
	}

	paragraphs := strings.Split(text, "\n\n")

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, strings.TrimSpace(current.String()))
		current.Reset()
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		// A single paragraph larger than MaxChars is split on its own.
		if len(p) > cfg.MaxChars {
			flush()
			for _, piece := range splitLong(p, cfg) {
				if cfg.OverlapChars > 0 && len(chunks) > 0 {
					piece = tailOverlap(chunks[len(chunks)-1], cfg.OverlapChars) + "\n\n" + piece
				}
				chunks = append(chunks, piece)
			}
			continue
		}

		if current.Len() > 0 && current.Len()+2+len(p) > cfg.MaxChars {
			flush()
		}
		if current.Len() == 0 && cfg.OverlapChars > 0 && len(chunks) > 0 {
			current.WriteString(tailOverlap(chunks[len(chunks)-1], cfg.OverlapChars))
			current.WriteString("\n\n")
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()

	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}

// splitLong hard-splits an oversized paragraph on word boundaries.
func splitLong(p string, cfg ChunkerConfig) []string {
	words := strings.Fields(p)
	var chunks []string
	var current strings.Builder

	for _, w := range words {
		if current.Len() > 0 && current.Len()+1+len(w) > cfg.MaxChars {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(w)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// tailOverlap returns the last n characters of s, trimmed to a word boundary.
func tailOverlap(s string, n int) string {
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	tail := s[start:]
	if s[start-1] != ' ' {
		if idx := strings.IndexByte(tail, ' '); idx >= 0 {
			tail = tail[idx+1:]
		}
	}
	return tail
}
