package httpreader

import (
	"context"
	"strings"
	"time"

	loremgen "github.com/bozaro/golorem"

	"chatrun/internal/domain/models/chatrun"
	domainchatrun "chatrun/internal/domain/services/chatrun"
)

// LoremReader is a mock in-process reader that streams generated lorem
// ipsum text instead of calling a real model. Used in development and in
// tests that exercise the Turn Runner without API keys. Selected by model
// names of the form "lorem-*": lorem-slow, lorem-fast, lorem-medium, and
// any "*cutoff*"/"*small*" variant, which streams one and a half times the
// word budget; no stop reason is reported for any variant.
type LoremReader struct {
	generator *loremgen.Lorem
}

func NewLoremReader() *LoremReader {
	return &LoremReader{generator: loremgen.New()}
}

func SupportsLoremModel(model string) bool {
	return strings.HasPrefix(model, "lorem-")
}

var _ domainchatrun.Reader = (*LoremReader)(nil)

func (p *LoremReader) Run(ctx context.Context, req domainchatrun.ReadRequest, onEvent func(chatrun.StreamEvent)) (domainchatrun.ReadResult, error) {
	maxWords := req.MaxTokens
	if maxWords <= 0 {
		maxWords = 300
	}
	delay := loremStreamDelay(req.Model)

	var text strings.Builder
	if loremCutoffModel(req.Model) {
		maxWords = maxWords + maxWords/2
	}

	sent := 0
	cumulative := ""
	for sent < maxWords {
		select {
		case <-ctx.Done():
			return domainchatrun.ReadResult{Aborted: true, AccumulatedText: cumulative}, nil
		default:
		}

		sentence := p.generator.Sentence(5, 15)
		for _, word := range strings.Fields(sentence) {
			if sent >= maxWords {
				break
			}
			delta := word + " "
			cumulative += delta
			onEvent(chatrun.TextDelta{Delta: delta, Cumulative: cumulative})
			time.Sleep(delay)
			sent++
		}
		text.WriteString(sentence)
		text.WriteString(" ")
	}

	return domainchatrun.ReadResult{AccumulatedText: strings.TrimSpace(cumulative)}, nil
}

// loremStreamDelay returns the per-word delay implied by the model suffix.
func loremStreamDelay(model string) time.Duration {
	switch {
	case strings.Contains(model, "slow"):
		return 500 * time.Millisecond
	case strings.Contains(model, "fast"):
		return 33 * time.Millisecond
	default:
		return 100 * time.Millisecond
	}
}

func loremCutoffModel(model string) bool {
	return strings.Contains(model, "cutoff") || strings.Contains(model, "small")
}
