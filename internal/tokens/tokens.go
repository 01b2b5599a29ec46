// Package tokens estimates token counts per model family. GPT models get
// exact counts via tiktoken's cl100k_base encoding loaded offline; other
// families use character-ratio heuristics with a fixed per-message overhead.
package tokens

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/haasonsaas/engram/pkg/models"
)

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Family identifies a tokenizer family.
type Family string

const (
	FamilyGPT     Family = "gpt"
	FamilyClaude  Family = "claude"
	FamilyLlama   Family = "llama"
	FamilyDefault Family = "default"
)

// messageOverhead covers the role and framing tokens each chat message
// carries on top of its content.
const messageOverhead = 4

// Counter estimates token counts for a model family.
type Counter interface {
	// CountText returns the token count for raw text.
	CountText(text string) int

	// CountMessage returns the token count for one message including the
	// per-message overhead.
	CountMessage(msg *models.Message) int

	// CountMessages returns the total for a message list.
	CountMessages(msgs []*models.Message) int

	// Family returns the counter's family.
	Family() Family
}

// ForModel returns a counter for the given model name. Unknown models get
// the default heuristic counter.
func ForModel(model string) Counter {
	switch DetectFamily(model) {
	case FamilyGPT:
		if enc, err := gptEncoding(); err == nil {
			return &gptCounter{encoding: enc}
		}
		// Encoding unavailable, fall back to the GPT heuristic ratio.
		return &heuristicCounter{family: FamilyGPT, charsPerToken: 4.0}
	case FamilyClaude:
		return &heuristicCounter{family: FamilyClaude, charsPerToken: 3.5}
	case FamilyLlama:
		return &heuristicCounter{family: FamilyLlama, charsPerToken: 3.8}
	default:
		return &heuristicCounter{family: FamilyDefault, charsPerToken: 4.0}
	}
}

// DetectFamily maps a model name to its tokenizer family.
func DetectFamily(model string) Family {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt") || strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") || strings.Contains(m, "text-embedding"):
		return FamilyGPT
	case strings.HasPrefix(m, "claude"):
		return FamilyClaude
	case strings.HasPrefix(m, "llama") || strings.Contains(m, "mistral") || strings.Contains(m, "mixtral"):
		return FamilyLlama
	default:
		return FamilyDefault
	}
}

// ContextWindow returns the model's context size in tokens. Unknown models
// get a conservative 8K window.
func ContextWindow(model string) int {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "claude"):
		return 200000
	case strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "gpt-4-turbo"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"):
		return 128000
	case strings.HasPrefix(m, "gpt-3.5-turbo"):
		return 16385
	case strings.HasPrefix(m, "gpt-4"):
		return 8192
	case strings.HasPrefix(m, "llama"):
		return 8192
	default:
		return 8192
	}
}

var (
	gptEnc     *tiktoken.Tiktoken
	gptEncOnce sync.Once
	gptEncErr  error
)

// gptEncoding returns the process-wide cl100k_base encoding. The singleton
// avoids re-parsing the BPE ranks on every counter construction.
func gptEncoding() (*tiktoken.Tiktoken, error) {
	gptEncOnce.Do(func() {
		gptEnc, gptEncErr = tiktoken.GetEncoding("cl100k_base")
	})
	return gptEnc, gptEncErr
}

type gptCounter struct {
	encoding *tiktoken.Tiktoken
}

func (c *gptCounter) Family() Family { return FamilyGPT }

func (c *gptCounter) CountText(text string) int {
	if text == "" {
		return 0
	}
	return len(c.encoding.Encode(text, nil, nil))
}

func (c *gptCounter) CountMessage(msg *models.Message) int {
	return c.CountText(msg.Content) + messageOverhead
}

func (c *gptCounter) CountMessages(msgs []*models.Message) int {
	total := 0
	for _, msg := range msgs {
		total += c.CountMessage(msg)
	}
	return total
}

type heuristicCounter struct {
	family        Family
	charsPerToken float64
}

func (c *heuristicCounter) Family() Family { return c.family }

func (c *heuristicCounter) CountText(text string) int {
	if text == "" {
		return 0
	}
	n := int(float64(len(text)) / c.charsPerToken)
	if n < 1 {
		n = 1
	}
	return n
}

func (c *heuristicCounter) CountMessage(msg *models.Message) int {
	return c.CountText(msg.Content) + messageOverhead
}

func (c *heuristicCounter) CountMessages(msgs []*models.Message) int {
	total := 0
	for _, msg := range msgs {
		total += c.CountMessage(msg)
	}
	return total
}
