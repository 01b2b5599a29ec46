package embeddings

import (
	"strings"
)

// stopwords per language, used by DetectText. A handful of very frequent
// function words is enough to separate the supported languages on chunk-
// sized inputs; anything ambiguous comes back as "".
var stopwords = map[string][]string{
	"en": {"the", "and", "of", "to", "is", "in", "that", "it", "was", "for", "with", "are", "this"},
	"de": {"der", "die", "das", "und", "ist", "nicht", "ein", "eine", "mit", "für", "auf", "sich"},
	"fr": {"le", "la", "les", "et", "est", "une", "dans", "que", "pour", "pas", "des", "sur"},
	"es": {"el", "la", "los", "las", "es", "una", "que", "en", "por", "para", "con", "del"},
	"it": {"il", "la", "di", "che", "è", "una", "per", "non", "con", "del", "sono", "gli"},
	"pt": {"o", "os", "de", "que", "é", "uma", "não", "para", "com", "em", "um", "dos"},
	"nl": {"de", "het", "een", "en", "van", "is", "niet", "met", "voor", "zijn", "dat", "op"},
}

// minStopwordHits is the minimum number of stopword matches before a
// language is reported at all.
const minStopwordHits = 2

// DetectText applies a stopword-frequency heuristic to guess the text's
// language. Returns an ISO 639-1 code, or "" when no language stands out.
//
// Embedding providers that have no native language detection delegate to
// this; it is deterministic and needs no network round trip.
func DetectText(text string) string {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return ""
	}

	seen := make(map[string]int, len(words))
	for _, w := range words {
		seen[strings.Trim(w, ".,;:!?\"'()[]")]++
	}

	best, bestHits, secondHits := "", 0, 0
	for lang, list := range stopwords {
		hits := 0
		for _, sw := range list {
			hits += seen[sw]
		}
		switch {
		case hits > bestHits:
			best, secondHits, bestHits = lang, bestHits, hits
		case hits > secondHits:
			secondHits = hits
		}
	}

	// Require a clear winner: ties between languages that share function
	// words (nl/de articles, es/pt) stay undetected.
	if bestHits < minStopwordHits || bestHits == secondHits {
		return ""
	}
	return best
}
