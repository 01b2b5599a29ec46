// Package compress shrinks conversation history under a token target. Two
// independent strategies live here: importance-based selection (Engine) and
// AI summarization (Summarizer). They are triggered separately and do not
// chain.
package compress

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/haasonsaas/engram/internal/tokens"
	"github.com/haasonsaas/engram/pkg/models"
)

// Weights blends the five importance signals. They need not sum to 1; the
// score is clamped.
type Weights struct {
	Recency            float64 `yaml:"recency"`
	ContentRelevance   float64 `yaml:"content_relevance"`
	ConversationFlow   float64 `yaml:"conversation_flow"`
	Interaction        float64 `yaml:"interaction"`
	InformationDensity float64 `yaml:"information_density"`
}

// DefaultWeights returns the standard signal blend.
func DefaultWeights() Weights {
	return Weights{
		Recency:            0.25,
		ContentRelevance:   0.25,
		ConversationFlow:   0.2,
		Interaction:        0.15,
		InformationDensity: 0.15,
	}
}

// EngineConfig configures the importance engine.
type EngineConfig struct {
	// PreserveRecentCount messages at the tail are always kept unchanged.
	PreserveRecentCount int

	// BaseThreshold is the minimum importance accepted when the budget is
	// plentiful. The effective threshold rises toward BaseThreshold+0.3
	// (capped at 0.95) as the remaining budget shrinks.
	BaseThreshold float64

	// DecayFactor shapes the recency curve.
	DecayFactor float64

	Weights Weights

	// ImportantWords boost content relevance when present.
	ImportantWords []string
}

// DefaultEngineConfig returns the standard engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		PreserveRecentCount: 4,
		BaseThreshold:       0.5,
		DecayFactor:         2,
		Weights:             DefaultWeights(),
	}
}

// thresholdCeiling caps the dynamic threshold.
const thresholdCeiling = 0.95

// Result reports what a compression pass did.
type Result struct {
	Messages            []*models.Message
	OriginalCount       int
	CompressedCount     int
	OriginalTokens      int
	CompressedTokens    int
	CompressionRatio    float64 // 1 - compressed/original tokens; 0 for a no-op
	ImportanceRetention float64 // retained importance mass over total; 1 for a no-op
}

// Engine performs importance-based selection over conversation history.
type Engine struct {
	cfg            EngineConfig
	counter        tokens.Counter
	importantWords map[string]bool
}

// NewEngine creates an importance engine. Zero-value config fields get
// defaults.
func NewEngine(cfg EngineConfig, counter tokens.Counter) *Engine {
	def := DefaultEngineConfig()
	if cfg.PreserveRecentCount <= 0 {
		cfg.PreserveRecentCount = def.PreserveRecentCount
	}
	if cfg.BaseThreshold <= 0 {
		cfg.BaseThreshold = def.BaseThreshold
	}
	if cfg.DecayFactor <= 0 {
		cfg.DecayFactor = def.DecayFactor
	}
	if (cfg.Weights == Weights{}) {
		cfg.Weights = def.Weights
	}

	important := make(map[string]bool, len(cfg.ImportantWords))
	for _, w := range cfg.ImportantWords {
		important[strings.ToLower(w)] = true
	}

	return &Engine{cfg: cfg, counter: counter, importantWords: important}
}

// Compress selects the most important older messages so the result fits
// targetTokens. The last PreserveRecentCount messages are always retained
// unchanged and in order. Input already within target is returned as-is
// with ratio 0 and retention 1. When even the preserved tail exceeds the
// target, the tail is still returned whole; the overflow shows up in the
// result's token counts rather than failing the call.
func (e *Engine) Compress(msgs []*models.Message, targetTokens int) *Result {
	originalTokens := e.counter.CountMessages(msgs)
	noop := &Result{
		Messages:            msgs,
		OriginalCount:       len(msgs),
		CompressedCount:     len(msgs),
		OriginalTokens:      originalTokens,
		CompressedTokens:    originalTokens,
		CompressionRatio:    0,
		ImportanceRetention: 1,
	}

	if targetTokens <= 0 || originalTokens <= targetTokens {
		return noop
	}
	if len(msgs) <= e.cfg.PreserveRecentCount {
		return noop
	}

	cut := len(msgs) - e.cfg.PreserveRecentCount
	older := msgs[:cut]
	preserved := msgs[cut:]

	scores := e.scoreMessages(older)
	preservedTokens := e.counter.CountMessages(preserved)

	initialBudget := targetTokens - preservedTokens
	remaining := initialBudget

	// Greedy accept by importance descending; the threshold tightens as
	// the budget is consumed.
	order := make([]int, len(older))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	accepted := make(map[int]bool, len(older))
	var retainedImportance float64
	if initialBudget > 0 {
		for _, idx := range order {
			used := 1 - float64(remaining)/float64(initialBudget)
			threshold := e.cfg.BaseThreshold + 0.3*used
			if threshold > thresholdCeiling {
				threshold = thresholdCeiling
			}

			cost := e.counter.CountMessage(older[idx])
			if scores[idx] >= threshold && cost <= remaining {
				accepted[idx] = true
				retainedImportance += scores[idx]
				remaining -= cost
			}
		}
	}

	// Rebuild in original timestamp order: accepted older, then preserved.
	final := make([]*models.Message, 0, len(accepted)+len(preserved))
	for i, msg := range older {
		if accepted[i] {
			final = append(final, msg)
		}
	}
	final = append(final, preserved...)

	var totalImportance float64
	for _, s := range scores {
		totalImportance += s
	}
	retention := 1.0
	if totalImportance > 0 {
		retention = retainedImportance / totalImportance
	}

	compressedTokens := e.counter.CountMessages(final)
	ratio := 0.0
	if originalTokens > 0 {
		ratio = 1 - float64(compressedTokens)/float64(originalTokens)
	}

	return &Result{
		Messages:            final,
		OriginalCount:       len(msgs),
		CompressedCount:     len(final),
		OriginalTokens:      originalTokens,
		CompressedTokens:    compressedTokens,
		CompressionRatio:    ratio,
		ImportanceRetention: retention,
	}
}

// scoreMessages computes the clamped weighted importance of each older
// message.
func (e *Engine) scoreMessages(older []*models.Message) []float64 {
	w := e.cfg.Weights
	wordSets := make([]map[string]bool, len(older))
	for i, msg := range older {
		wordSets[i] = messageWords(msg.Content)
	}

	scores := make([]float64, len(older))
	for i, msg := range older {
		recency := e.recency(i, len(older))
		content := e.contentRelevance(msg.Content)
		flow := e.conversationFlow(older, i, wordSets)
		interaction := interactionScore(msg.Content)
		density := informationDensity(wordSets, i)

		score := w.Recency*recency +
			w.ContentRelevance*content +
			w.ConversationFlow*flow +
			w.Interaction*interaction +
			w.InformationDensity*density
		scores[i] = clampUnit(score)
	}
	return scores
}

// recency is position^decay over the normalized index, so the newest of
// the older messages scores highest.
func (e *Engine) recency(i, n int) float64 {
	if n <= 1 {
		return 1
	}
	position := float64(i) / float64(n-1)
	return math.Pow(position, e.cfg.DecayFactor)
}

func (e *Engine) contentRelevance(content string) float64 {
	words := splitWords(content)
	if len(words) == 0 {
		return 0
	}

	score := 0.0
	for _, word := range words {
		if e.importantWords[strings.ToLower(word)] {
			score += 0.2
			break
		}
	}
	if strings.Contains(content, "?") {
		score += 0.25
	}

	capitalized := 0
	numerals := false
	for _, word := range words {
		r := []rune(word)
		if unicode.IsUpper(r[0]) {
			capitalized++
		}
		for _, c := range r {
			if unicode.IsDigit(c) {
				numerals = true
				break
			}
		}
	}
	score += 0.3 * float64(capitalized) / float64(len(words))
	if numerals {
		score += 0.25
	}
	return clampUnit(score)
}

// anaphoraTerms signal that a message is referenced by its successor.
var anaphoraTerms = []string{"that", "this", "it", "those", "these", "the above"}

func (e *Engine) conversationFlow(older []*models.Message, i int, wordSets []map[string]bool) float64 {
	score := 0.0

	// Topic shift: low overlap with the previous message.
	if i > 0 {
		if overlap := jaccardSets(wordSets[i], wordSets[i-1]); overlap < 0.2 {
			score += 0.4
		}
	}

	// Referenced by the next message via anaphora.
	if i+1 < len(older) {
		next := strings.ToLower(older[i+1].Content)
		for _, term := range anaphoraTerms {
			if strings.Contains(next, term) {
				score += 0.3
				break
			}
		}
	}

	if older[i].Role == models.RoleUser {
		score += 0.3
	}
	return clampUnit(score)
}

var (
	commandPhrases = []string{
		"please", "can you", "could you", "show me", "tell me",
		"create", "make", "write", "explain", "help me",
	}
	feedbackPhrases = []string{
		"thanks", "thank you", "great", "perfect", "that works",
		"no,", "not quite", "wrong", "yes,", "exactly",
	}
)

func interactionScore(content string) float64 {
	lower := strings.ToLower(content)
	score := 0.0
	for _, phrase := range commandPhrases {
		if strings.Contains(lower, phrase) {
			score += 0.5
			break
		}
	}
	for _, phrase := range feedbackPhrases {
		if strings.Contains(lower, phrase) {
			score += 0.5
			break
		}
	}
	return clampUnit(score)
}

// informationDensity is one minus the message's average pairwise word
// overlap with every other older message.
func informationDensity(wordSets []map[string]bool, i int) float64 {
	if len(wordSets) <= 1 {
		return 1
	}
	var total float64
	for j := range wordSets {
		if j == i {
			continue
		}
		total += jaccardSets(wordSets[i], wordSets[j])
	}
	return clampUnit(1 - total/float64(len(wordSets)-1))
}

func splitWords(content string) []string {
	return strings.Fields(content)
}

func messageWords(content string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(content)) {
		w := strings.Trim(f, ".,;:!?\"'()[]{}")
		if w != "" {
			set[w] = true
		}
	}
	return set
}

func jaccardSets(a, b map[string]bool) float64 {
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

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
