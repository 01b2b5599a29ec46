// Package retrieval runs the query-to-context pipeline: embed the query,
// search the vector store with oversampling, score and deduplicate the
// hits, and assemble a bounded context string for the prompt builder.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/haasonsaas/engram/internal/cache"
	"github.com/haasonsaas/engram/internal/embeddings"
	"github.com/haasonsaas/engram/internal/observability"
	"github.com/haasonsaas/engram/internal/vectorstore"
	"github.com/haasonsaas/engram/pkg/models"
)

// Sentinel errors for pipeline stages. Dependency failures wrap the
// underlying cause; callers match with errors.Is.
var (
	// ErrInvalidQuery rejects an empty or whitespace-only query before
	// any embedding work happens.
	ErrInvalidQuery = errors.New("retrieval: invalid query")

	// ErrQueryEmbedding indicates the embedding provider failed.
	ErrQueryEmbedding = errors.New("retrieval: query embedding failed")

	// ErrSimilaritySearch indicates the vector store query failed.
	ErrSimilaritySearch = errors.New("retrieval: similarity search failed")

	// ErrNoResults indicates the search produced no candidates at all.
	ErrNoResults = errors.New("retrieval: no results")
)

// Scoring constants. Relevance is
// clamp(similarity − positionPenalty + lengthBonus + keywordOverlapBonus).
const (
	// positionPenaltyStep is subtracted per rank position, so later hits
	// need higher raw similarity to compete.
	positionPenaltyStep = 0.01

	// lengthBonusMax is the cap on the longer-chunk bonus, reached at
	// lengthBonusFullAt characters.
	lengthBonusMax    = 0.1
	lengthBonusFullAt = 500

	// keywordBonusMax is the cap on the query-term coverage bonus.
	keywordBonusMax = 0.1
)

// Options tune a single retrieval run. Zero values fall back to the
// pipeline defaults.
type Options struct {
	// TopK is the number of results to return after dedup. Default: 5
	TopK int

	// MinRelevanceScore drops candidates scoring below it. Default: 0.3
	MinRelevanceScore float64

	// SimilarityThreshold is the store-level similarity floor.
	SimilarityThreshold float64

	// DeduplicationThreshold is the word-Jaccard similarity above which a
	// candidate is considered a duplicate of an accepted one. Default: 0.95
	DeduplicationThreshold float64

	// MaxContextLength bounds the assembled context in characters; whole
	// chunks only, never partial. Default: 4000
	MaxContextLength int

	// Language restricts the search and skips detection when set.
	Language string

	// DocumentIDs restricts the search to specific documents.
	DocumentIDs []string
}

// DefaultOptions returns the default retrieval options.
func DefaultOptions() *Options {
	return &Options{
		TopK:                   5,
		MinRelevanceScore:      0.3,
		DeduplicationThreshold: 0.95,
		MaxContextLength:       4000,
	}
}

func (o *Options) normalize() *Options {
	if o == nil {
		return DefaultOptions()
	}
	out := *o
	if out.TopK <= 0 {
		out.TopK = 5
	}
	if out.MinRelevanceScore <= 0 {
		out.MinRelevanceScore = 0.3
	}
	if out.DeduplicationThreshold <= 0 {
		out.DeduplicationThreshold = 0.95
	}
	if out.MaxContextLength <= 0 {
		out.MaxContextLength = 4000
	}
	return &out
}

// Result is the outcome of one pipeline run.
type Result struct {
	// Query is the trimmed query text the pipeline ran.
	Query string

	// Language is the requested search language, or the detected one
	// when none was requested.
	Language string

	// Context is the assembled retrieval context.
	Context *models.RAGContext

	// Results are the accepted, ranked chunks backing the context.
	Results []*models.ScoredResult

	// TotalCandidates counts raw hits before scoring and dedup.
	TotalCandidates int

	// ProcessingTime is the end-to-end pipeline duration.
	ProcessingTime time.Duration
}

// Config configures the pipeline.
type Config struct {
	// EmbeddingCacheSize bounds the query-embedding LRU. Default: 256
	EmbeddingCacheSize int

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Pipeline orchestrates retrieval over a vector store and an embedding
// provider. Repeated queries reuse cached embeddings.
type Pipeline struct {
	store    vectorstore.Store
	embedder embeddings.Provider

	embedCache *cache.LRU[[]float32]
	logger     *slog.Logger
	metrics    *observability.Metrics
	tracer     *observability.Tracer
}

// NewPipeline creates a retrieval pipeline.
func NewPipeline(store vectorstore.Store, embedder embeddings.Provider, cfg Config) *Pipeline {
	size := cfg.EmbeddingCacheSize
	if size <= 0 {
		size = 256
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:      store,
		embedder:   embedder,
		embedCache: cache.NewLRU[[]float32](size),
		logger:     logger,
		metrics:    cfg.Metrics,
		tracer:     cfg.Tracer,
	}
}

// Retrieve runs the full pipeline for a query. An empty query fails with
// ErrInvalidQuery before any embedding call. A search that yields no
// candidates fails with ErrNoResults; candidates that all score below the
// relevance floor produce an empty context, not an error.
func (p *Pipeline) Retrieve(ctx context.Context, query string, opts *Options) (*Result, error) {
	start := time.Now()
	o := opts.normalize()

	query = strings.TrimSpace(query)
	if query == "" {
		p.recordRun("error", start)
		return nil, fmt.Errorf("%w: empty after trimming", ErrInvalidQuery)
	}

	ctx, span := p.startSpan(ctx, o.Language)
	defer span.End()

	language := o.Language
	if language == "" {
		// Best effort; an undetectable language searches all chunks.
		language, _ = p.embedder.DetectLanguage(ctx, query)
	}

	vector, err := p.embedQuery(ctx, query)
	if err != nil {
		p.recordRun("error", start)
		return nil, fmt.Errorf("%w: %v", ErrQueryEmbedding, err)
	}

	candidates, err := p.store.SimilaritySearch(ctx, vector, &vectorstore.SearchOptions{
		TopK:        o.TopK * 2,
		Threshold:   o.SimilarityThreshold,
		DocumentIDs: o.DocumentIDs,
		Language:    o.Language,
	})
	if err != nil {
		p.recordRun("error", start)
		return nil, fmt.Errorf("%w: %v", ErrSimilaritySearch, err)
	}
	if len(candidates) == 0 {
		p.recordRun("error", start)
		return nil, ErrNoResults
	}

	scored := p.score(query, candidates, o)
	accepted := deduplicate(scored, o)
	ragContext := assemble(accepted, language, o)

	elapsed := time.Since(start)
	p.recordRun("success", start)
	p.logger.Debug("retrieval finished",
		"candidates", len(candidates),
		"accepted", len(accepted),
		"context_length", ragContext.ContextLength,
		"language", language,
		"duration_ms", elapsed.Milliseconds())

	return &Result{
		Query:           query,
		Language:        language,
		Context:         ragContext,
		Results:         accepted,
		TotalCandidates: len(candidates),
		ProcessingTime:  elapsed,
	}, nil
}

// InvalidateCache drops all cached query embeddings.
func (p *Pipeline) InvalidateCache() {
	p.embedCache.Clear()
}

// embedQuery returns the query vector, consulting the LRU first.
func (p *Pipeline) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if vec, ok := p.embedCache.Get(query); ok {
		if p.metrics != nil {
			p.metrics.CacheHit("embedding")
		}
		return vec, nil
	}
	if p.metrics != nil {
		p.metrics.CacheMiss("embedding")
	}

	vec, err := p.embedder.Embed(ctx, query, "")
	if err != nil {
		return nil, err
	}
	p.embedCache.Set(query, vec)
	return vec, nil
}

// score converts raw hits into scored results. Candidates below the
// relevance floor are flagged as filtered.
func (p *Pipeline) score(query string, candidates []*models.SimilarityResult, o *Options) []*models.ScoredResult {
	queryWords := wordSet(query)

	scored := make([]*models.ScoredResult, 0, len(candidates))
	for rank, hit := range candidates {
		relevance := hit.Similarity
		relevance -= float64(rank) * positionPenaltyStep
		relevance += lengthBonus(hit.ChunkText)
		relevance += keywordOverlapBonus(queryWords, hit.ChunkText)
		relevance = clamp01(relevance)

		scored = append(scored, &models.ScoredResult{
			SimilarityResult: *hit,
			RelevanceScore:   relevance,
			Filtered:         relevance < o.MinRelevanceScore,
		})
	}
	return scored
}

// deduplicate sorts by relevance descending and greedily accepts results
// whose word overlap with every already-accepted result stays at or below
// the dedup threshold, stopping at TopK. Filtered results never enter.
func deduplicate(scored []*models.ScoredResult, o *Options) []*models.ScoredResult {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].RelevanceScore > scored[j].RelevanceScore
	})

	accepted := make([]*models.ScoredResult, 0, o.TopK)
	acceptedWords := make([]map[string]bool, 0, o.TopK)

	for _, result := range scored {
		if result.Filtered {
			continue
		}
		if len(accepted) >= o.TopK {
			break
		}

		words := wordSet(result.ChunkText)
		duplicate := false
		for _, prev := range acceptedWords {
			if jaccard(words, prev) > o.DeduplicationThreshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}

		result.Rank = len(accepted)
		accepted = append(accepted, result)
		acceptedWords = append(acceptedWords, words)
	}
	return accepted
}

// assemble concatenates accepted chunks under metadata headers, stopping
// before MaxContextLength would be exceeded. Chunks are never split.
func assemble(accepted []*models.ScoredResult, language string, o *Options) *models.RAGContext {
	var builder strings.Builder
	var included int
	var relevanceSum float64
	seenDocs := make(map[string]bool)
	sourceDocs := make([]string, 0, len(accepted))

	for _, result := range accepted {
		section := fmt.Sprintf("[Source: %s, Chunk %d, Relevance: %.2f]\n%s",
			result.DocumentID, result.ChunkIndex, result.RelevanceScore, result.ChunkText)

		addition := len(section)
		if builder.Len() > 0 {
			addition += 2 // separator
		}
		if builder.Len()+addition > o.MaxContextLength {
			break
		}

		if builder.Len() > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(section)
		included++
		relevanceSum += result.RelevanceScore
		if !seenDocs[result.DocumentID] {
			seenDocs[result.DocumentID] = true
			sourceDocs = append(sourceDocs, result.DocumentID)
		}
	}

	avg := 0.0
	if included > 0 {
		avg = relevanceSum / float64(included)
	}

	return &models.RAGContext{
		ContextText:      builder.String(),
		SourceDocuments:  sourceDocs,
		TotalChunks:      included,
		AverageRelevance: avg,
		Language:         language,
		ContextLength:    builder.Len(),
	}
}

// startSpan opens the per-query span, or a non-recording span when no
// tracer is configured. The detected language is advisory only; the store
// filter uses the caller's explicit language pin.
func (p *Pipeline) startSpan(ctx context.Context, language string) (context.Context, trace.Span) {
	if p.tracer == nil {
		return ctx, noop.Span{}
	}
	return p.tracer.TraceRetrieval(ctx, language)
}

func (p *Pipeline) recordRun(status string, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordRetrieval(status, time.Since(start).Seconds())
}

// lengthBonus rewards longer chunks, capped at lengthBonusMax once the
// chunk reaches lengthBonusFullAt characters.
func lengthBonus(chunk string) float64 {
	n := len(chunk)
	if n >= lengthBonusFullAt {
		return lengthBonusMax
	}
	return lengthBonusMax * float64(n) / float64(lengthBonusFullAt)
}

// keywordOverlapBonus rewards query-term coverage, capped at
// keywordBonusMax when every query word appears in the chunk.
func keywordOverlapBonus(queryWords map[string]bool, chunk string) float64 {
	if len(queryWords) == 0 {
		return 0
	}
	chunkWords := wordSet(chunk)
	matched := 0
	for w := range queryWords {
		if chunkWords[w] {
			matched++
		}
	}
	return keywordBonusMax * float64(matched) / float64(len(queryWords))
}

// wordSet lowercases and splits text into a set of words, trimming
// surrounding punctuation.
func wordSet(text string) map[string]bool {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:\"'()[]{}")
		if w != "" {
			set[w] = true
		}
	}
	return set
}

// jaccard computes word-set Jaccard similarity. Two empty sets are
// identical; one empty set shares nothing.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
