package relevance

import (
	"hash/fnv"
	"math"
	"strings"
)

// DefaultVectorDim is the dimensionality of hashed bag-of-words vectors.
// These are cheap intra-conversation vectors, distinct from the embedding
// provider's output.
const DefaultVectorDim = 100

// positionDecay controls how much later words in a text contribute less
// than earlier ones when hashed into the vector.
const positionDecay = 0.95

// importantWordBoost multiplies the weight of words from the configured
// important-word list.
const importantWordBoost = 2.0

// hashedVector builds a unit-normalized, position-decayed bag-of-words
// vector for text. Words from importantWords get boosted weight. Empty or
// whitespace text yields a zero vector.
func hashedVector(text string, dim int, importantWords map[string]bool) []float64 {
	if dim <= 0 {
		dim = DefaultVectorDim
	}
	vec := make([]float64, dim)

	words := tokenize(text)
	weight := 1.0
	for _, word := range words {
		w := weight
		if importantWords[word] {
			w *= importantWordBoost
		}
		vec[wordBucket(word, dim)] += w
		weight *= positionDecay
	}

	normalize(vec)
	return vec
}

func wordBucket(word string, dim int) int {
	h := fnv.New32a()
	h.Write([]byte(word))
	return int(h.Sum32() % uint32(dim))
}

func normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	mag := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= mag
	}
}

// cosine64 is cosine similarity for the hashed vectors. Both inputs are
// produced at the same dimension, so no mismatch handling is needed; zero
// vectors yield 0.
func cosine64(a, b []float64) float64 {
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// tokenize lowercases and splits text into bare words.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		w := strings.Trim(f, ".,;:!?\"'()[]{}")
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}

// wordSet returns the distinct words of a text.
func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range tokenize(text) {
		set[w] = true
	}
	return set
}

// jaccard computes word-set Jaccard similarity between two texts.
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
