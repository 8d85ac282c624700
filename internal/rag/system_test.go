package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anserhq/anser/internal/chunk"
	"github.com/anserhq/anser/internal/config"
	"github.com/anserhq/anser/internal/document"
	"github.com/anserhq/anser/internal/index"
	"github.com/anserhq/anser/internal/log"
	"github.com/anserhq/anser/internal/relevance"
	"github.com/anserhq/anser/internal/respond"
	"github.com/anserhq/anser/internal/synthesis"
)

type fakeLoader struct {
	docs []document.Document
	err  error
}

func (f *fakeLoader) Load(ctx context.Context, filePath string, urls []string) ([]document.Document, error) {
	return f.docs, f.err
}

type fakeStore struct {
	candidates   []index.ScoredCandidate
	searchErr    error
	searchCalls  int
	upsertChunks []document.Document
}

func (f *fakeStore) Upsert(ctx context.Context, chunks []document.Document) (int, error) {
	f.upsertChunks = append(f.upsertChunks, chunks...)
	return len(chunks), nil
}

func (f *fakeStore) Search(ctx context.Context, query string, k int) ([]index.ScoredCandidate, error) {
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.candidates, nil
}

type scriptedGenerator struct {
	replies []string
	err     error
	prompts []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	i := len(g.prompts) - 1
	if i >= len(g.replies) {
		return "", nil
	}
	return g.replies[i], nil
}

func testRelevanceConfig() config.RelevanceConfig {
	return config.RelevanceConfig{
		SimilarityWeight:       0.6,
		TermWeight:             0.4,
		Threshold:              0.45,
		AuthoritativeBoost:     1.1,
		AuthoritativeThreshold: 0.35,
		TargetWords:            80,
		MinWords:               20,
		MinTermLength:          3,
		RareKeywords:           []string{"Zyxoria"},
	}
}

func testSynthesisConfig() config.SynthesisConfig {
	return config.SynthesisConfig{
		ContextBudget:   3000,
		NoAnswerPhrases: []string{"i don't know", "unable to find"},
	}
}

// newTestSystem wires a System from real pipeline components around the
// fake store and scripted generator.
func newTestSystem(store *fakeStore, gen *scriptedGenerator, loader *fakeLoader) *System {
	logger := log.NewNop()
	return NewSystem(
		loader,
		chunk.NewSplitter(config.ChunkConfig{Size: 1000, Overlap: 200}),
		store,
		relevance.NewFilter(testRelevanceConfig(), logger),
		synthesis.New(testSynthesisConfig(), gen, logger),
		respond.NewFormatter(),
		gen,
		4,
		logger,
	)
}

func zyxoriaCandidate(score float64) index.ScoredCandidate {
	return index.ScoredCandidate{
		Chunk: document.New("The capital of Zyxoria is Zyxtropolis", "geo.txt", "text"),
		Score: score,
	}
}

func TestGenerateResponseEmptyQuery(t *testing.T) {
	store := &fakeStore{}
	gen := &scriptedGenerator{}
	s := newTestSystem(store, gen, &fakeLoader{})

	resp, err := s.GenerateResponse(context.Background(), "   \n ", 0, 0)
	require.NoError(t, err)

	assert.Equal(t, respond.EmptyQueryAnswer, resp.Answer)
	assert.Empty(t, resp.Sources)
	assert.Zero(t, store.searchCalls, "no index call for an empty query")
	assert.Empty(t, gen.prompts, "no generation call for an empty query")
}

func TestGenerateResponseGroundedAnswer(t *testing.T) {
	store := &fakeStore{candidates: []index.ScoredCandidate{zyxoriaCandidate(0.2)}}
	gen := &scriptedGenerator{replies: []string{"The capital of Zyxoria is Zyxtropolis."}}
	s := newTestSystem(store, gen, &fakeLoader{})

	resp, err := s.GenerateResponse(context.Background(), "What is the capital of Zyxoria?", 0, 0)
	require.NoError(t, err)

	assert.Contains(t, resp.Answer, "Zyxtropolis")
	assert.True(t, resp.Grounded)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "geo.txt", resp.Sources[0].Name)
	assert.Contains(t, resp.Sources[0].Content, "Zyxtropolis")
	assert.Greater(t, resp.Sources[0].Score, 0.0)

	require.NotEmpty(t, gen.prompts)
	assert.Contains(t, gen.prompts[0], "Document from geo.txt:", "grounded prompt carries context")
}

func TestGenerateResponseIrrelevantQueryFallsBackUngrounded(t *testing.T) {
	// The only indexed chunk is about Zyxoria; a question about France must
	// not be answered from it.
	store := &fakeStore{candidates: []index.ScoredCandidate{zyxoriaCandidate(0.9)}}
	gen := &scriptedGenerator{replies: []string{"Paris is the capital of France."}}
	s := newTestSystem(store, gen, &fakeLoader{})

	resp, err := s.GenerateResponse(context.Background(), "What is the capital of France?", 0, 0)
	require.NoError(t, err)

	assert.False(t, resp.Grounded)
	assert.Empty(t, resp.Sources)
	assert.NotContains(t, resp.Answer, "Zyxoria")
	assert.NotContains(t, resp.Answer, "Zyxtropolis")
	assert.Contains(t, resp.Answer, "Paris")

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "general knowledge")
	assert.NotContains(t, gen.prompts[0], "Zyxtropolis", "rejected content never reaches the backend")
}

func TestGenerateResponseUngroundedBackendFailure(t *testing.T) {
	store := &fakeStore{candidates: nil}
	gen := &scriptedGenerator{err: errors.New("backend down")}
	s := newTestSystem(store, gen, &fakeLoader{})

	resp, err := s.GenerateResponse(context.Background(), "What is the capital of France?", 0, 0)
	require.NoError(t, err, "backend faults never propagate")

	assert.False(t, resp.Grounded)
	assert.Empty(t, resp.Sources)
	assert.Contains(t, strings.ToLower(resp.Answer), "couldn't find")
}

func TestGenerateResponseSynthesisBackendFailure(t *testing.T) {
	store := &fakeStore{candidates: []index.ScoredCandidate{zyxoriaCandidate(0.2)}}
	gen := &scriptedGenerator{err: errors.New("connection refused")}
	s := newTestSystem(store, gen, &fakeLoader{})

	resp, err := s.GenerateResponse(context.Background(), "What is the capital of Zyxoria?", 0, 0)
	require.NoError(t, err)

	assert.False(t, resp.Grounded)
	assert.Contains(t, strings.ToLower(resp.Answer), "couldn't find")
}

func TestGenerateResponseSearchFailureDegrades(t *testing.T) {
	store := &fakeStore{searchErr: errors.New("embedder unavailable")}
	gen := &scriptedGenerator{}
	s := newTestSystem(store, gen, &fakeLoader{})

	resp, err := s.GenerateResponse(context.Background(), "any question at all", 0, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Answer)
	assert.Empty(t, gen.prompts)
}

func TestAddDocumentsChunksAndIndexes(t *testing.T) {
	content := strings.Repeat("ingestion pipeline content with enough words to split ", 40)
	loader := &fakeLoader{docs: []document.Document{document.New(content, "big.txt", "text")}}
	store := &fakeStore{}
	s := newTestSystem(store, &scriptedGenerator{}, loader)

	added, err := s.AddDocuments(context.Background(), "big.txt", nil)
	require.NoError(t, err)

	assert.Greater(t, added, 1, "long document splits into multiple chunks")
	assert.Len(t, store.upsertChunks, added)
	for _, c := range store.upsertChunks {
		assert.Equal(t, "big.txt", c.Metadata[document.MetaSource])
	}
}

func TestAddDocumentsNoInput(t *testing.T) {
	s := newTestSystem(&fakeStore{}, &scriptedGenerator{}, &fakeLoader{})

	_, err := s.AddDocuments(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestAddDocumentsLoaderFailurePropagates(t *testing.T) {
	loader := &fakeLoader{err: errors.New("no such file")}
	s := newTestSystem(&fakeStore{}, &scriptedGenerator{}, loader)

	_, err := s.AddDocuments(context.Background(), "missing.txt", nil)
	require.Error(t, err)
}

func TestGenerateResponseThresholdOverrideReachesFilter(t *testing.T) {
	// The France query rejects the Zyxoria chunk under the default
	// threshold (see the fallback test above); a loose per-query override
	// pulls the marginal candidate back in.
	store := &fakeStore{candidates: []index.ScoredCandidate{zyxoriaCandidate(0.9)}}
	gen := &scriptedGenerator{replies: []string{"grounded reply"}}
	s := newTestSystem(store, gen, &fakeLoader{})

	resp, err := s.GenerateResponse(context.Background(), "What is the capital of France?", 0, 0.2)
	require.NoError(t, err)
	assert.True(t, resp.Grounded, "override threshold 0.2 accepts the marginal candidate")
	assert.NotEmpty(t, resp.Sources)
}
