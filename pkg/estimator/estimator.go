// Package estimator provides cost estimators for rate-limited calls.
//
// An estimator predicts how many cost units (typically LLM tokens) a call
// will consume, before the call is made. Estimates gate admission against
// the cost bucket, so they only need to be close, not exact: the built-in
// heuristics use per-provider characters-per-token ratios and stay within a
// few percent for natural-language text.
//
// Built-ins are resolved by name so they can be selected from
// configuration:
//
//	est, err := estimator.ByName("openai")
//	tokens, err := est.EstimateTexts("the prompt", "more text")
package estimator

import (
	"fmt"
	"strings"
)

// Estimator estimates cost units for the text content of a call.
type Estimator interface {
	// EstimateTexts returns the estimated total units for the given texts.
	// The result is at least 1 so that every call registers against the
	// cost budget.
	EstimateTexts(texts ...string) (int, error)
}

// CharRatio estimates tokens from character counts using a fixed
// characters-per-token ratio. Ratios differ by provider tokenizer:
// roughly 4 chars/token for OpenAI models, 3.5 for Anthropic.
type CharRatio struct {
	// CharsPerToken is the divisor applied to the total character count.
	CharsPerToken float64
}

// EstimateTexts implements Estimator.
func (e CharRatio) EstimateTexts(texts ...string) (int, error) {
	if e.CharsPerToken <= 0 {
		return 0, fmt.Errorf("chars-per-token ratio must be positive, got %v", e.CharsPerToken)
	}

	chars := 0
	for _, t := range texts {
		chars += len(t)
	}

	tokens := int(float64(chars)/e.CharsPerToken + 0.5)
	if tokens < 1 {
		tokens = 1
	}
	return tokens, nil
}

// WordCount estimates tokens from whitespace-separated word counts at
// roughly 0.75 tokens per word. It is the coarsest heuristic and serves as
// a tokenizer-independent fallback.
type WordCount struct{}

// EstimateTexts implements Estimator.
func (WordCount) EstimateTexts(texts ...string) (int, error) {
	words := 0
	for _, t := range texts {
		words += len(strings.Fields(t))
	}

	tokens := int(float64(words) * 0.75)
	if tokens < 1 {
		tokens = 1
	}
	return tokens, nil
}

// builtins maps configuration names to estimator constructors.
var builtins = map[string]func() Estimator{
	"default":   func() Estimator { return CharRatio{CharsPerToken: 4.0} },
	"openai":    func() Estimator { return CharRatio{CharsPerToken: 4.0} },
	"anthropic": func() Estimator { return CharRatio{CharsPerToken: 3.5} },
	"words":     func() Estimator { return WordCount{} },
}

// ByName resolves a built-in estimator by its configuration name.
// Unknown names are a configuration error and should be surfaced at
// binding time, never retried.
func ByName(name string) (Estimator, error) {
	if name == "" {
		name = "default"
	}
	ctor, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("unknown estimator %q (built-ins: default, openai, anthropic, words)", name)
	}
	return ctor(), nil
}
