// Package synthesis turns a query plus its surviving sources into an
// answer via a generation backend, with a bounded context buffer and an
// escalation ladder for refusals.
package synthesis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/anserhq/anser/internal/config"
	"github.com/anserhq/anser/internal/document"
	"github.com/anserhq/anser/internal/index"
	"github.com/anserhq/anser/internal/log"
)

// Generator is the injected generation backend. Implementations must
// return an error for transport or backend failures instead of silently
// returning empty text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Kind classifies a synthesis outcome.
type Kind int

const (
	// Answered means the backend produced a usable grounded answer.
	Answered Kind = iota
	// NotFound means no source survived filtering, or every generation
	// attempt refused; the formatter renders the deterministic non-answer.
	NotFound
	// BackendUnavailable means the generation backend failed; callers
	// degrade to the not-found rendering rather than propagate the fault.
	BackendUnavailable
)

// Outcome is the result of one synthesis run.
type Outcome struct {
	Kind   Kind
	Answer string
	// Err records the backend failure for BackendUnavailable outcomes.
	Err error
}

const contextEllipsis = "..."

// Synthesizer builds grounded prompts and drives the escalation ladder.
// Stateless across calls: concurrent requests share one instance safely.
type Synthesizer struct {
	cfg    config.SynthesisConfig
	gen    Generator
	logger log.Logger
}

// New builds a Synthesizer around the given backend.
func New(cfg config.SynthesisConfig, gen Generator, logger log.Logger) *Synthesizer {
	return &Synthesizer{cfg: cfg, gen: gen, logger: logger}
}

// Synthesize produces an answer grounded in sources. With no sources it
// returns NotFound without touching the backend. A refusal escalates
// through two looser prompts over the same context; a backend error at any
// rung yields BackendUnavailable.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, sources []index.ScoredCandidate) Outcome {
	if len(sources) == 0 {
		return Outcome{Kind: NotFound}
	}

	contextText := s.BuildContext(sources)
	prompts := []string{
		groundedPrompt(query, contextText),
		relatedConceptsPrompt(query, contextText),
		bestEffortPrompt(query, contextText),
	}

	for attempt, prompt := range prompts {
		answer, err := s.gen.Generate(ctx, prompt)
		if err != nil {
			s.logger.Warn("generation backend failed", "attempt", attempt+1, "error", err)
			return Outcome{Kind: BackendUnavailable, Err: err}
		}

		answer = strings.TrimSpace(answer)
		if answer == "" || s.isNoAnswer(answer) {
			s.logger.Debug("generation refused, escalating", "attempt", attempt+1)
			continue
		}
		return Outcome{Kind: Answered, Answer: answer}
	}

	return Outcome{Kind: NotFound}
}

// BuildContext concatenates source blocks best-first into a buffer of at
// most the configured character budget. A block that would overflow is
// truncated with an ellipsis and everything after it is dropped.
func (s *Synthesizer) BuildContext(sources []index.ScoredCandidate) string {
	ordered := make([]index.ScoredCandidate, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool {
		return normalizedScore(ordered[i]) > normalizedScore(ordered[j])
	})

	budget := s.cfg.ContextBudget
	var b strings.Builder
	for _, src := range ordered {
		block := fmt.Sprintf("Document from %s: %s\n\n",
			sourceLabel(src.Chunk), strings.TrimSpace(src.Chunk.Content))

		remaining := budget - b.Len()
		if remaining <= 0 {
			break
		}
		if len(block) > remaining {
			if remaining > len(contextEllipsis) {
				b.WriteString(block[:remaining-len(contextEllipsis)])
				b.WriteString(contextEllipsis)
			}
			break
		}
		b.WriteString(block)
	}

	return strings.TrimSpace(b.String())
}

func (s *Synthesizer) isNoAnswer(answer string) bool {
	lower := strings.ToLower(answer)
	for _, phrase := range s.cfg.NoAnswerPhrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

func groundedPrompt(query, contextText string) string {
	return fmt.Sprintf(`You are a knowledgeable assistant. Answer the question using ONLY the context below.

Context:
%s

Question: %s

Instructions:
- Answer strictly from the supplied context.
- If no single fragment answers the question exactly, synthesize an answer across multiple fragments.
- If the context only partially answers the question, state what you can and name the limitation instead of refusing.
- Only say you cannot answer if the context is wholly irrelevant to the question.

Answer:`, contextText, query)
}

func relatedConceptsPrompt(query, contextText string) string {
	return fmt.Sprintf(`The context below did not directly answer the question on a first pass. Look again and surface any concepts, facts, or terminology in the context that relate to the question, even tangentially.

Context:
%s

Question: %s

Describe the related information you can find:`, contextText, query)
}

func bestEffortPrompt(query, contextText string) string {
	return fmt.Sprintf(`Using the context below plus any concepts related to the question that appear in it, give the most helpful answer you can. Prefer a partial, clearly qualified answer over no answer.

Context:
%s

Question: %s

Answer:`, contextText, query)
}

// normalizedScore reads the similarity the relevance filter recorded,
// falling back to inverting the raw distance.
func normalizedScore(c index.ScoredCandidate) float64 {
	if v, ok := c.Chunk.Metadata[document.MetaScore].(float64); ok {
		return v
	}
	if c.Score <= 1 && c.Score >= 0 {
		return 1 - c.Score
	}
	return 0
}

func sourceLabel(chunk document.Document) string {
	if s, ok := chunk.Metadata[document.MetaSource].(string); ok && s != "" {
		return s
	}
	return "unknown"
}
