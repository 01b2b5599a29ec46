// Package relevance scores conversation messages along four independent
// signals and combines them into a single [0,1] relevance score used for
// ranking and filtering.
package relevance

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/engram/internal/cache"
	"github.com/haasonsaas/engram/pkg/models"
)

// Mode selects the role weighting applied by contextual relevance.
type Mode string

const (
	ModeGeneral          Mode = "general"
	ModeUserFocused      Mode = "user-focused"
	ModeAssistantFocused Mode = "assistant-focused"
	ModeBalanced         Mode = "balanced"
)

// NeutralScore is returned for lookups with no computed signal. Missing
// scores are never an error.
const NeutralScore = 0.5

// Weights blends the four signals. They need not sum to 1; the combined
// score is clamped.
type Weights struct {
	Query      float64 `yaml:"query"`
	Contextual float64 `yaml:"contextual"`
	Temporal   float64 `yaml:"temporal"`
	Semantic   float64 `yaml:"semantic"`
}

// DefaultWeights returns the standard signal blend.
func DefaultWeights() Weights {
	return Weights{Query: 0.3, Contextual: 0.25, Temporal: 0.25, Semantic: 0.2}
}

// Settings configures the scorer.
type Settings struct {
	Mode           Mode
	Weights        Weights
	VectorDim      int           // hashed vector dimensionality, default 100
	TemporalDecay  float64       // exponent for temporal falloff, default 2
	MaxAge         time.Duration // temporal window, default 24h
	ImportantWords []string      // boosted in hashing and contextual cues
}

// DefaultSettings returns settings matching the standard blend.
func DefaultSettings() Settings {
	return Settings{
		Mode:          ModeGeneral,
		Weights:       DefaultWeights(),
		VectorDim:     DefaultVectorDim,
		TemporalDecay: 2,
		MaxAge:        24 * time.Hour,
	}
}

// ScoreMap holds per-message scores keyed by message ID.
type ScoreMap struct {
	Scores       map[string]float64
	CalculatedAt time.Time
}

// Lookup returns the message's score, or NeutralScore when absent.
func (m *ScoreMap) Lookup(messageID string) float64 {
	if m == nil || m.Scores == nil {
		return NeutralScore
	}
	if s, ok := m.Scores[messageID]; ok {
		return s
	}
	return NeutralScore
}

// vectorTTL bounds how long an unused hashed vector stays cached before
// the background sweep evicts it.
const vectorTTL = 5 * time.Minute

// Scorer computes relevance signals. Hashed vectors are cached per text
// with an idle TTL; the cache is invalidated wholesale when settings
// change.
type Scorer struct {
	mu             sync.RWMutex
	settings       Settings
	importantWords map[string]bool
	vectors        *cache.TTL[[]float64]
}

// NewScorer creates a scorer and starts the vector cache sweeper. Call
// Close when the scorer is no longer needed. Zero-value settings fields
// get defaults.
func NewScorer(settings Settings) *Scorer {
	s := &Scorer{
		vectors: cache.NewTTL[[]float64](vectorTTL, cache.DefaultSweepInterval),
	}
	s.applySettings(settings)
	return s
}

// Close stops the vector cache sweeper.
func (s *Scorer) Close() {
	s.vectors.Stop()
}

func (s *Scorer) applySettings(settings Settings) {
	if settings.VectorDim <= 0 {
		settings.VectorDim = DefaultVectorDim
	}
	if settings.TemporalDecay <= 0 {
		settings.TemporalDecay = 2
	}
	if settings.MaxAge <= 0 {
		settings.MaxAge = 24 * time.Hour
	}
	if settings.Mode == "" {
		settings.Mode = ModeGeneral
	}
	zero := Weights{}
	if settings.Weights == zero {
		settings.Weights = DefaultWeights()
	}

	important := make(map[string]bool, len(settings.ImportantWords))
	for _, w := range settings.ImportantWords {
		important[strings.ToLower(w)] = true
	}

	s.settings = settings
	s.importantWords = important
	s.vectors.Clear()
}

// UpdateSettings replaces the scorer's settings and invalidates all cached
// vectors wholesale.
func (s *Scorer) UpdateSettings(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applySettings(settings)
}

// InvalidateCache drops all cached vectors immediately, ahead of the
// idle sweep.
func (s *Scorer) InvalidateCache() {
	s.vectors.Clear()
}

// vector returns the cached hashed vector for text, computing it on miss.
func (s *Scorer) vector(text string) []float64 {
	if vec, ok := s.vectors.Get(text); ok {
		return vec
	}

	s.mu.RLock()
	dim := s.settings.VectorDim
	important := s.importantWords
	s.mu.RUnlock()

	vec := hashedVector(text, dim, important)
	s.vectors.Set(text, vec)
	return vec
}

// QueryRelevance scores each message against the query: hashed-vector
// cosine similarity plus a keyword-overlap bonus.
func (s *Scorer) QueryRelevance(query string, msgs []*models.Message) *ScoreMap {
	queryVec := s.vector(query)
	queryWords := wordSet(query)

	scores := make(map[string]float64, len(msgs))
	for _, msg := range msgs {
		sim := cosine64(queryVec, s.vector(msg.Content))

		bonus := 0.0
		if len(queryWords) > 0 {
			msgWords := wordSet(msg.Content)
			hits := 0
			for w := range queryWords {
				if msgWords[w] {
					hits++
				}
			}
			bonus = 0.2 * float64(hits) / float64(len(queryWords))
		}

		scores[msg.ID] = clamp01(sim + bonus)
	}
	return &ScoreMap{Scores: scores, CalculatedAt: time.Now()}
}

// ContextualRelevance scores messages by role, position, and content cues.
func (s *Scorer) ContextualRelevance(msgs []*models.Message) *ScoreMap {
	s.mu.RLock()
	mode := s.settings.Mode
	important := s.importantWords
	s.mu.RUnlock()

	scores := make(map[string]float64, len(msgs))
	for i, msg := range msgs {
		score := roleWeight(mode, msg.Role)

		// Later messages carry more contextual weight.
		if len(msgs) > 1 {
			score += 0.2 * float64(i) / float64(len(msgs)-1)
		}

		score += contentCues(msg.Content, important)
		scores[msg.ID] = clamp01(score)
	}
	return &ScoreMap{Scores: scores, CalculatedAt: time.Now()}
}

// TemporalRelevance scores messages by recency: pow(1 - normalizedAge,
// decay) over the configured max-age window. Messages older than the
// window score 0.
func (s *Scorer) TemporalRelevance(msgs []*models.Message, now time.Time) *ScoreMap {
	s.mu.RLock()
	maxAge := s.settings.MaxAge
	decay := s.settings.TemporalDecay
	s.mu.RUnlock()

	scores := make(map[string]float64, len(msgs))
	for _, msg := range msgs {
		age := now.Sub(msg.CreatedAt)
		if age < 0 {
			age = 0
		}
		if age >= maxAge {
			scores[msg.ID] = 0
			continue
		}
		normalized := float64(age) / float64(maxAge)
		scores[msg.ID] = clamp01(math.Pow(1-normalized, decay))
	}
	return &ScoreMap{Scores: scores, CalculatedAt: time.Now()}
}

// SemanticRelevance scores each message's uniqueness: one minus its average
// pairwise cosine similarity to every other message, plus an information-
// density bonus from the unique-word ratio.
func (s *Scorer) SemanticRelevance(msgs []*models.Message) *ScoreMap {
	vecs := make([][]float64, len(msgs))
	for i, msg := range msgs {
		vecs[i] = s.vector(msg.Content)
	}

	scores := make(map[string]float64, len(msgs))
	for i, msg := range msgs {
		uniqueness := 1.0
		if len(msgs) > 1 {
			var total float64
			for j := range msgs {
				if j == i {
					continue
				}
				total += cosine64(vecs[i], vecs[j])
			}
			uniqueness = 1 - total/float64(len(msgs)-1)
		}

		scores[msg.ID] = clamp01(uniqueness + 0.1*uniqueWordRatio(msg.Content))
	}
	return &ScoreMap{Scores: scores, CalculatedAt: time.Now()}
}

// CombinedScores blends the four signals with the configured weights. Each
// signal is clamped before combination and the result clamped after.
func (s *Scorer) CombinedScores(query string, msgs []*models.Message, now time.Time) *ScoreMap {
	queryScores := s.QueryRelevance(query, msgs)
	contextScores := s.ContextualRelevance(msgs)
	temporalScores := s.TemporalRelevance(msgs, now)
	semanticScores := s.SemanticRelevance(msgs)

	s.mu.RLock()
	w := s.settings.Weights
	s.mu.RUnlock()

	totalWeight := w.Query + w.Contextual + w.Temporal + w.Semantic
	if totalWeight == 0 {
		totalWeight = 1
	}

	scores := make(map[string]float64, len(msgs))
	for _, msg := range msgs {
		combined := (w.Query*clamp01(queryScores.Lookup(msg.ID)) +
			w.Contextual*clamp01(contextScores.Lookup(msg.ID)) +
			w.Temporal*clamp01(temporalScores.Lookup(msg.ID)) +
			w.Semantic*clamp01(semanticScores.Lookup(msg.ID))) / totalWeight
		scores[msg.ID] = clamp01(combined)
	}
	return &ScoreMap{Scores: scores, CalculatedAt: time.Now()}
}

// FilterMessagesByRelevance keeps messages scoring at or above threshold,
// sorted by score descending, optionally capped at maxMessages (0 = no
// cap). Ties keep original order.
func (s *Scorer) FilterMessagesByRelevance(query string, msgs []*models.Message, threshold float64, maxMessages int) []*models.Message {
	combined := s.CombinedScores(query, msgs, time.Now())

	kept := make([]*models.Message, 0, len(msgs))
	for _, msg := range msgs {
		if combined.Lookup(msg.ID) >= threshold {
			kept = append(kept, msg)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return combined.Lookup(kept[i].ID) > combined.Lookup(kept[j].ID)
	})

	if maxMessages > 0 && len(kept) > maxMessages {
		kept = kept[:maxMessages]
	}
	return kept
}

func roleWeight(mode Mode, role models.Role) float64 {
	switch mode {
	case ModeUserFocused:
		if role == models.RoleUser {
			return 0.5
		}
		return 0.2
	case ModeAssistantFocused:
		if role == models.RoleAssistant {
			return 0.5
		}
		return 0.2
	case ModeBalanced:
		return 0.35
	default: // general
		switch role {
		case models.RoleUser:
			return 0.4
		case models.RoleAssistant:
			return 0.3
		default:
			return 0.2
		}
	}
}

// commandPhrases are cues that a message carries an actionable request.
var commandPhrases = []string{
	"please", "can you", "could you", "i need", "i want",
	"show me", "tell me", "help me", "make", "create", "explain",
}

func contentCues(content string, important map[string]bool) float64 {
	lower := strings.ToLower(content)
	cue := 0.0

	if strings.Contains(content, "?") {
		cue += 0.1
	}
	for _, phrase := range commandPhrases {
		if strings.Contains(lower, phrase) {
			cue += 0.1
			break
		}
	}
	for _, w := range tokenize(content) {
		if important[w] {
			cue += 0.1
			break
		}
	}
	// Longer messages tend to carry more context, capped.
	if bonus := float64(len(content)) / 2000; bonus > 0 {
		if bonus > 0.1 {
			bonus = 0.1
		}
		cue += bonus
	}
	return cue
}

func uniqueWordRatio(content string) float64 {
	words := tokenize(content)
	if len(words) == 0 {
		return 0
	}
	return float64(len(wordSet(content))) / float64(len(words))
}
