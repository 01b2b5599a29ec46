package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

type fixedCounter struct{}

func (fixedCounter) CountText(text string) int { return (len(text) + 3) / 4 }

func TestSplitEmptyText(t *testing.T) {
	s := NewRecursiveSplitter(DefaultConfig())

	for _, text := range []string{"", "   ", "\n\n\t"} {
		if chunks := s.Split(text); chunks != nil {
			t.Errorf("Split(%q) = %d chunks, want nil", text, len(chunks))
		}
	}
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	s := NewRecursiveSplitter(Config{ChunkSize: 1000, MinChunkSize: 10})

	text := "a short paragraph that easily fits in one chunk"
	chunks := s.Split(text)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Content != text {
		t.Errorf("content altered: %q", chunks[0].Content)
	}
}

func TestSplitParagraphsWithOverlap(t *testing.T) {
	cfg := Config{ChunkSize: 200, ChunkOverlap: 20, MinChunkSize: 30, KeepSeparators: true}
	s := NewRecursiveSplitter(cfg)

	para := strings.TrimSpace(strings.Repeat("word ", 30))
	text := para + "\n\n" + para + "\n\n" + para

	chunks := s.Split(text)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}

	for i, chunk := range chunks {
		if len(chunk.Content) > cfg.ChunkSize+cfg.ChunkOverlap {
			t.Errorf("chunk %d has %d chars, limit %d", i, len(chunk.Content), cfg.ChunkSize+cfg.ChunkOverlap)
		}
	}

	// Each chunk after the first starts with the previous chunk's tail.
	for i := 1; i < len(chunks); i++ {
		tail := chunks[i-1].Content[len(chunks[i-1].Content)-cfg.ChunkOverlap:]
		if !strings.HasPrefix(chunks[i].Content, tail) {
			t.Errorf("chunk %d missing overlap prefix", i)
		}
	}
}

func TestSplitFallsBackToCharacters(t *testing.T) {
	s := NewRecursiveSplitter(Config{ChunkSize: 100, MinChunkSize: 10})

	// No separators at all; the splitter must cut by character.
	text := strings.Repeat("x", 250)
	chunks := s.Split(text)

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	total := 0
	for i, chunk := range chunks {
		if len(chunk.Content) > 100 {
			t.Errorf("chunk %d has %d chars", i, len(chunk.Content))
		}
		total += len(chunk.Content)
	}
	if total != 250 {
		t.Errorf("chunks cover %d chars, want 250", total)
	}
}

func TestSplitOverlapKeepsRuneBoundaries(t *testing.T) {
	s := NewRecursiveSplitter(Config{ChunkSize: 20, ChunkOverlap: 7, MinChunkSize: 1})

	// 40 two-byte runes with no separators force the character fallback,
	// and the odd overlap width would land mid-rune on a byte cut.
	chunks := s.Split(strings.Repeat("é", 40))
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(chunks))
	}

	for i, chunk := range chunks {
		if !utf8.ValidString(chunk.Content) {
			t.Errorf("chunk %d is not valid UTF-8: %q", i, chunk.Content)
		}
		if i > 0 && !strings.HasPrefix(chunk.Content, "é") {
			t.Errorf("chunk %d starts mid-rune: %q", i, chunk.Content[:2])
		}
	}
}

func TestSplitDropsTinyFragments(t *testing.T) {
	s := NewRecursiveSplitter(Config{ChunkSize: 50, MinChunkSize: 20})

	text := strings.TrimSpace(strings.Repeat("sentence here. ", 4)) + "\n\nok"
	chunks := s.Split(text)

	for i, chunk := range chunks {
		if len(chunk.Content) < 20 {
			t.Errorf("chunk %d below minimum: %q", i, chunk.Content)
		}
	}
}

func TestMarkdownSplitterBreaksOnHeadings(t *testing.T) {
	s := NewMarkdownSplitter(Config{ChunkSize: 120, MinChunkSize: 10})

	text := "intro paragraph with enough words to stand alone here" +
		"\n## Setup\n" + strings.TrimSpace(strings.Repeat("setup detail ", 6)) +
		"\n## Usage\n" + strings.TrimSpace(strings.Repeat("usage detail ", 6))

	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want >= 2", len(chunks))
	}

	var sawSetup, sawUsage bool
	for _, chunk := range chunks {
		if strings.Contains(chunk.Content, "setup detail") {
			sawSetup = true
		}
		if strings.Contains(chunk.Content, "usage detail") {
			sawUsage = true
		}
	}
	if !sawSetup || !sawUsage {
		t.Error("heading sections missing from chunks")
	}
}

func TestRecords(t *testing.T) {
	chunks := []Chunk{
		{Content: "first chunk", StartOffset: 0, EndOffset: 11},
		{Content: "second chunk", StartOffset: 11, EndOffset: 23},
	}

	recs := Records("doc-1", "en", chunks, fixedCounter{})
	if len(recs) != 2 {
		t.Fatalf("got %d records", len(recs))
	}

	seen := map[string]bool{}
	for i, rec := range recs {
		if rec.ID == "" || seen[rec.ID] {
			t.Errorf("record %d has duplicate or empty ID", i)
		}
		seen[rec.ID] = true
		if rec.DocumentID != "doc-1" || rec.Language != "en" {
			t.Errorf("record %d identity fields wrong: %+v", i, rec)
		}
		if rec.ChunkIndex != i {
			t.Errorf("record %d index = %d", i, rec.ChunkIndex)
		}
		if rec.Metadata["token_count"].(int) != (fixedCounter{}).CountText(chunks[i].Content) {
			t.Errorf("record %d token count mismatch", i)
		}
		if len(rec.Vector) != 0 {
			t.Errorf("record %d has a premature vector", i)
		}
	}
}

func TestRecordsWithoutCounter(t *testing.T) {
	recs := Records("doc-1", "", []Chunk{{Content: "text"}}, nil)
	if recs[0].Metadata != nil {
		t.Errorf("metadata set without a counter: %v", recs[0].Metadata)
	}
}
