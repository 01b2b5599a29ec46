// Package chunker splits source-document text into overlapping chunks
// sized for embedding and retrieval.
package chunker

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/haasonsaas/engram/pkg/models"
)

// Config contains chunking configuration.
type Config struct {
	// ChunkSize is the target size of each chunk in characters.
	// Default: 1000
	ChunkSize int `yaml:"chunk_size"`

	// ChunkOverlap is the number of characters repeated from the previous
	// chunk at the start of the next one. Default: 200
	ChunkOverlap int `yaml:"chunk_overlap"`

	// MinChunkSize drops chunks smaller than this. Default: 100
	MinChunkSize int `yaml:"min_chunk_size"`

	// PreserveWhitespace keeps leading/trailing whitespace in chunks.
	PreserveWhitespace bool `yaml:"preserve_whitespace"`

	// KeepSeparators includes separators at the end of chunks.
	// Default: true
	KeepSeparators bool `yaml:"keep_separators"`
}

// DefaultConfig returns the default chunker configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      1000,
		ChunkOverlap:   200,
		MinChunkSize:   100,
		KeepSeparators: true,
	}
}

// Chunk is a piece of text with position information in the original.
type Chunk struct {
	Content     string
	StartOffset int
	EndOffset   int
}

// TokenCounter estimates token counts for chunk metadata.
// tokens.Counter satisfies it.
type TokenCounter interface {
	CountText(text string) int
}

// DefaultSeparators is the separator hierarchy, tried in order from
// largest semantic unit to smallest.
var DefaultSeparators = []string{
	"\n\n", // Paragraph break
	"\n",   // Line break
	". ",   // Sentence end
	"? ",   // Question end
	"! ",   // Exclamation end
	"; ",   // Semicolon
	": ",   // Colon
	", ",   // Comma
	" ",    // Space
	"",     // Character (last resort)
}

// MarkdownSeparators are optimized for Markdown documents.
var MarkdownSeparators = []string{
	"\n## ",   // H2 heading
	"\n### ",  // H3 heading
	"\n#### ", // H4 heading
	"\n\n",    // Paragraph break
	"\n",      // Line break
	". ",      // Sentence end
	" ",       // Space
	"",        // Character
}

// RecursiveSplitter splits text by trying larger separators first and
// falling back to smaller ones when a piece still exceeds the chunk size.
type RecursiveSplitter struct {
	config     Config
	separators []string
}

// NewRecursiveSplitter creates a splitter. Zero-value config fields get
// defaults; an overlap at or above the chunk size is reduced to a fifth
// of it.
func NewRecursiveSplitter(cfg Config) *RecursiveSplitter {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = DefaultConfig().ChunkOverlap
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 5
	}
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = DefaultConfig().MinChunkSize
	}

	return &RecursiveSplitter{
		config:     cfg,
		separators: DefaultSeparators,
	}
}

// NewMarkdownSplitter creates a splitter tuned for Markdown documents.
func NewMarkdownSplitter(cfg Config) *RecursiveSplitter {
	splitter := NewRecursiveSplitter(cfg)
	splitter.separators = MarkdownSeparators
	return splitter
}

// WithSeparators sets a custom separator hierarchy.
func (s *RecursiveSplitter) WithSeparators(seps []string) *RecursiveSplitter {
	s.separators = seps
	return s
}

// Name returns the splitter name.
func (s *RecursiveSplitter) Name() string {
	return "recursive_character"
}

// Split chunks the text. Empty or whitespace-only input yields nil.
func (s *RecursiveSplitter) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	raw := s.splitText(text, s.separators)
	return s.applyOverlap(raw)
}

// Records converts chunks into embedding records for a document. Vectors
// are left empty; the caller fills them after embedding.
func Records(documentID, language string, chunks []Chunk, counter TokenCounter) []*models.EmbeddingRecord {
	now := time.Now()
	recs := make([]*models.EmbeddingRecord, 0, len(chunks))
	for i, chunk := range chunks {
		rec := &models.EmbeddingRecord{
			ID:         uuid.NewString(),
			DocumentID: documentID,
			ChunkIndex: i,
			ChunkText:  chunk.Content,
			Language:   language,
			CreatedAt:  now,
		}
		if counter != nil {
			rec.Metadata = map[string]any{
				"token_count":  counter.CountText(chunk.Content),
				"start_offset": chunk.StartOffset,
				"end_offset":   chunk.EndOffset,
			}
		}
		recs = append(recs, rec)
	}
	return recs
}

// splitText recursively splits text using the separator hierarchy.
func (s *RecursiveSplitter) splitText(text string, separators []string) []Chunk {
	if len(text) == 0 {
		return nil
	}

	// First separator actually present in the text wins.
	separator := ""
	for _, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			separator = sep
			break
		}
	}

	var splits []string
	if separator == "" {
		splits = make([]string, 0, len(text))
		for _, r := range text {
			splits = append(splits, string(r))
		}
	} else {
		splits = strings.Split(text, separator)
	}

	var result []Chunk
	var current strings.Builder
	startOffset := 0

	flush := func() {
		if current.Len() == 0 {
			return
		}
		content := current.String()
		if !s.config.PreserveWhitespace {
			content = strings.TrimSpace(content)
		}
		if len(content) >= s.config.MinChunkSize {
			result = append(result, Chunk{
				Content:     content,
				StartOffset: startOffset,
				EndOffset:   startOffset + len(content),
			})
		}
		startOffset += len(content)
		current.Reset()
	}

	for i, split := range splits {
		piece := split
		if s.config.KeepSeparators && separator != "" && i < len(splits)-1 {
			piece = split + separator
		}

		if current.Len() > 0 && current.Len()+len(piece) > s.config.ChunkSize {
			flush()
		}

		if len(piece) > s.config.ChunkSize && len(separators) > 1 {
			flush()
			for _, sub := range s.splitText(piece, separators[1:]) {
				sub.StartOffset += startOffset
				sub.EndOffset += startOffset
				result = append(result, sub)
			}
			startOffset += len(piece)
			continue
		}

		current.WriteString(piece)
	}
	flush()

	return result
}

// applyOverlap prefixes each chunk after the first with the tail of its
// predecessor.
func (s *RecursiveSplitter) applyOverlap(chunks []Chunk) []Chunk {
	if len(chunks) <= 1 || s.config.ChunkOverlap <= 0 {
		return chunks
	}

	result := make([]Chunk, len(chunks))
	result[0] = chunks[0]

	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		overlap := s.config.ChunkOverlap
		if overlap > len(prev.Content) {
			overlap = len(prev.Content)
		}

		// Back the cut up to a rune boundary so the prefix never starts
		// mid-rune on multi-byte text.
		cut := len(prev.Content) - overlap
		for cut > 0 && !utf8.RuneStart(prev.Content[cut]) {
			cut--
		}

		overlapText := prev.Content[cut:]
		result[i] = Chunk{
			Content:     overlapText + chunks[i].Content,
			StartOffset: chunks[i].StartOffset - len(overlapText),
			EndOffset:   chunks[i].EndOffset,
		}
	}
	return result
}
