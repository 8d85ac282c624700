// Package rag wires the retrieval pipeline end to end: ingestion (load,
// clean, chunk, embed, upsert) and querying (search, filter, synthesize,
// format). It exposes the two operations the surrounding service needs and
// guarantees a well-formed Response for every query, degrading to a polite
// non-answer instead of surfacing faults.
package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/anserhq/anser/internal/document"
	"github.com/anserhq/anser/internal/index"
	"github.com/anserhq/anser/internal/log"
	"github.com/anserhq/anser/internal/respond"
	"github.com/anserhq/anser/internal/synthesis"
)

// ErrNoInput indicates AddDocuments was called with neither a file path nor
// URLs.
var ErrNoInput = errors.New("no file path or URLs to ingest")

// Loader turns sources into cleaned Documents.
type Loader interface {
	Load(ctx context.Context, filePath string, urls []string) ([]document.Document, error)
}

// Splitter chunks documents for embedding.
type Splitter interface {
	SplitDocuments(docs []document.Document) []document.Document
}

// Store is the persisted vector index.
type Store interface {
	Upsert(ctx context.Context, chunks []document.Document) (int, error)
	Search(ctx context.Context, query string, k int) ([]index.ScoredCandidate, error)
}

// Filter gates retrieved candidates on genuine relevance.
type Filter interface {
	Apply(query string, candidates []index.ScoredCandidate, thresholdOverride float64) []index.ScoredCandidate
}

// Synthesizer produces a grounded answer from surviving sources.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, sources []index.ScoredCandidate) synthesis.Outcome
}

// Formatter renders the final user-facing answer.
type Formatter interface {
	Format(answer, query string, sources []index.ScoredCandidate) string
	NotFound(query string) string
}

// Source is the provenance of one retrieved passage in a Response.
type Source struct {
	Name     string
	Content  string
	Score    float64
	Metadata map[string]any
}

// Response is the terminal artifact of one query. Grounded reports whether
// the answer was produced from retrieved content or by the ungrounded
// fallback.
type Response struct {
	Answer   string
	Sources  []Source
	Grounded bool
}

// System orchestrates the pipeline. All collaborators are injected; System
// holds no per-request state and is safe for concurrent use.
type System struct {
	loader      Loader
	splitter    Splitter
	store       Store
	filter      Filter
	synthesizer Synthesizer
	formatter   Formatter
	generator   synthesis.Generator
	topK        int
	logger      log.Logger
}

// NewSystem builds the pipeline from its parts. defaultTopK applies when a
// query does not specify one. generator serves the ungrounded fallback path
// and is typically the same backend the Synthesizer uses.
func NewSystem(
	loader Loader,
	splitter Splitter,
	store Store,
	filter Filter,
	synthesizer Synthesizer,
	formatter Formatter,
	generator synthesis.Generator,
	defaultTopK int,
	logger log.Logger,
) *System {
	return &System{
		loader:      loader,
		splitter:    splitter,
		store:       store,
		filter:      filter,
		synthesizer: synthesizer,
		formatter:   formatter,
		generator:   generator,
		topK:        defaultTopK,
		logger:      logger,
	}
}

// AddDocuments ingests a file and/or a batch of URLs and returns the number
// of chunks added to the index. Re-ingesting the same document adds a fresh
// copy of its chunks; deduplication happens at query time, not here.
func (s *System) AddDocuments(ctx context.Context, filePath string, urls []string) (int, error) {
	if filePath == "" && len(urls) == 0 {
		return 0, ErrNoInput
	}

	docs, err := s.loader.Load(ctx, filePath, urls)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		s.logger.Warn("ingestion produced no documents", "file", filePath, "urls", len(urls))
		return 0, nil
	}

	chunks := s.splitter.SplitDocuments(docs)
	added, err := s.store.Upsert(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("indexing chunks: %w", err)
	}

	s.logger.Info("documents ingested",
		"documents", len(docs), "chunks", added, "file", filePath, "urls", len(urls))
	return added, nil
}

// GenerateResponse answers a query. topK <= 0 uses the configured default;
// scoreThreshold > 0 overrides the relevance filter's combined-score
// threshold for this query.
//
// The result is always a well-formed Response: backend and index faults are
// logged and degrade to the not-found rendering rather than propagate.
func (s *System) GenerateResponse(ctx context.Context, query string, topK int, scoreThreshold float64) (Response, error) {
	if isBlank(query) {
		return Response{Answer: respond.EmptyQueryAnswer}, nil
	}
	if topK <= 0 {
		topK = s.topK
	}

	candidates, err := s.store.Search(ctx, query, topK)
	if err != nil {
		s.logger.Warn("index search failed", "error", err)
		return Response{Answer: s.formatter.NotFound(query)}, nil
	}

	relevant := s.filter.Apply(query, candidates, scoreThreshold)
	if len(relevant) == 0 {
		return s.ungrounded(ctx, query), nil
	}

	outcome := s.synthesizer.Synthesize(ctx, query, relevant)
	switch outcome.Kind {
	case synthesis.Answered:
		return Response{
			Answer:   s.formatter.Format(outcome.Answer, query, relevant),
			Sources:  toSources(relevant),
			Grounded: true,
		}, nil
	case synthesis.BackendUnavailable:
		s.logger.Warn("synthesis backend unavailable", "error", outcome.Err)
		return Response{Answer: s.formatter.NotFound(query)}, nil
	default:
		return Response{Answer: s.formatter.NotFound(query)}, nil
	}
}

// ungrounded answers from the model's general knowledge when no retrieved
// content survived filtering. A backend failure here degrades to the
// deterministic not-found answer.
func (s *System) ungrounded(ctx context.Context, query string) Response {
	prompt := fmt.Sprintf(
		"Answer the following question from your general knowledge. "+
			"Be helpful and concise; if you are not certain, say so.\n\nQuestion: %s\n\nAnswer:", query)

	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil || isBlank(answer) {
		if err != nil {
			s.logger.Warn("ungrounded generation failed", "error", err)
		}
		return Response{Answer: s.formatter.NotFound(query)}
	}

	return Response{Answer: s.formatter.Format(answer, query, nil)}
}

func toSources(candidates []index.ScoredCandidate) []Source {
	sources := make([]Source, len(candidates))
	for i, c := range candidates {
		score := 1 - c.Score
		if v, ok := c.Chunk.Metadata[document.MetaScore].(float64); ok {
			score = v
		}
		sources[i] = Source{
			Name:     c.Chunk.Source(),
			Content:  c.Chunk.Content,
			Score:    score,
			Metadata: c.Chunk.CloneMetadata(),
		}
	}
	return sources
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
