// Package index implements the persisted vector index: embedded chunks on
// disk, cosine nearest-neighbor search in memory.
//
// Persistence uses the temp-file-then-atomic-replace pattern so a crash
// mid-save can never corrupt the previous artifact, plus an advisory file
// lock so concurrent writers from separate processes cannot interleave.
// Within one process, searches proceed concurrently under a read lock while
// upserts hold the write lock.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/anserhq/anser/internal/document"
	"github.com/anserhq/anser/internal/log"
)

// ErrEmptyEmbedding indicates the embedder returned no vector for an input.
var ErrEmptyEmbedding = errors.New("empty embedding returned")

// bootstrapContent seeds a brand-new index so incremental additions always
// extend a valid structure. The entry is never surfaced by Search.
const bootstrapContent = "Initial document"

// overFetchFactor widens the raw nearest-neighbor fetch before
// deduplication so the final k results stay unique by source when the
// underlying index has enough diversity.
const overFetchFactor = 3

// ScoredCandidate is one similarity hit. Score is a distance in [0,1]:
// lower means more similar.
type ScoredCandidate struct {
	Chunk document.Document
	Score float64
}

type entry struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	Embedding []float32      `json:"embedding"`
	Bootstrap bool           `json:"bootstrap,omitempty"`
}

type persisted struct {
	Name      string  `json:"name"`
	Dimension int     `json:"dimension"`
	Entries   []entry `json:"entries"`
}

// Store persists embedded chunks under <dir>/<name>.json and answers
// nearest-neighbor queries. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	entries  []entry
	dim      int
	name     string
	dir      string
	embedder ai.Embedder
	fileLock *flock.Flock
	logger   log.Logger
}

// New opens or bootstraps the index named name under dir.
//
// A missing artifact is created with a single placeholder entry; a corrupt
// one is logged and transparently rebuilt rather than failing the caller —
// the knowledge base can be re-ingested, a crashed process cannot be.
func New(ctx context.Context, dir, name string, embedder ai.Embedder, logger log.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	s := &Store{
		name:     name,
		dir:      dir,
		embedder: embedder,
		fileLock: flock.New(filepath.Join(dir, name+".lock")),
		logger:   logger,
	}

	raw, err := os.ReadFile(s.artifactPath())
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := s.bootstrap(ctx); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("reading index artifact: %w", err)
	default:
		var p persisted
		if err := json.Unmarshal(raw, &p); err != nil {
			logger.Warn("index artifact corrupt, rebuilding empty index",
				"path", s.artifactPath(), "error", err)
			if err := s.bootstrap(ctx); err != nil {
				return nil, err
			}
			break
		}
		s.entries = p.Entries
		s.dim = p.Dimension
		logger.Debug("index loaded", "name", name, "entries", len(p.Entries))
	}

	return s, nil
}

// Upsert embeds the chunks, appends them, and persists the index.
// Whitespace-only chunks are never indexed. Returns the number added.
func (s *Store) Upsert(ctx context.Context, chunks []document.Document) (int, error) {
	indexable := make([]document.Document, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		indexable = append(indexable, c)
	}
	if len(indexable) == 0 {
		return 0, nil
	}

	vectors, err := s.embedMany(ctx, indexable)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range indexable {
		if s.dim == 0 {
			s.dim = len(vectors[i])
		}
		s.entries = append(s.entries, entry{
			ID:        uuid.NewString(),
			Content:   c.Content,
			Metadata:  c.Metadata,
			Embedding: vectors[i],
		})
	}

	if err := s.persistLocked(); err != nil {
		return 0, err
	}

	s.logger.Debug("chunks indexed", "added", len(indexable), "total", len(s.entries))
	return len(indexable), nil
}

// Search returns up to k candidates ordered best-first (lowest distance).
// Results are deduplicated: never two candidates with identical trimmed
// content, and unique by source while enough distinct sources exist.
func (s *Store) Search(ctx context.Context, query string, k int) ([]ScoredCandidate, error) {
	if k <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	queryVec, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		e     entry
		score float64
	}
	hits := make([]hit, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Bootstrap {
			continue
		}
		hits = append(hits, hit{e: e, score: distance(queryVec, e.Embedding)})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score < hits[j].score })

	if limit := k * overFetchFactor; len(hits) > limit {
		hits = hits[:limit]
	}

	// First pass keeps candidates unique by both content and source; the
	// second pass relaxes source uniqueness if the first could not fill k.
	seenContent := make(map[string]bool, len(hits))
	seenSource := make(map[string]bool, len(hits))
	results := make([]ScoredCandidate, 0, k)

	for _, h := range hits {
		if len(results) == k {
			break
		}
		key := strings.TrimSpace(h.e.Content)
		src := sourceOf(h.e.Metadata)
		if seenContent[key] || seenSource[src] {
			continue
		}
		seenContent[key] = true
		seenSource[src] = true
		results = append(results, toCandidate(h.e, h.score))
	}

	for _, h := range hits {
		if len(results) == k {
			break
		}
		key := strings.TrimSpace(h.e.Content)
		if seenContent[key] {
			continue
		}
		seenContent[key] = true
		results = append(results, toCandidate(h.e, h.score))
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score < results[j].Score })
	return results, nil
}

// Count reports the number of indexed chunks, excluding the bootstrap
// placeholder.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.entries {
		if !e.Bootstrap {
			n++
		}
	}
	return n
}

func toCandidate(e entry, score float64) ScoredCandidate {
	md := make(map[string]any, len(e.Metadata))
	for k, v := range e.Metadata {
		md[k] = v
	}
	return ScoredCandidate{
		Chunk: document.Document{Content: e.Content, Metadata: md},
		Score: score,
	}
}

func sourceOf(md map[string]any) string {
	if s, ok := md[document.MetaSource].(string); ok && s != "" {
		return s
	}
	return "unknown"
}

// bootstrap creates a fresh index seeded with the placeholder entry and
// persists it.
func (s *Store) bootstrap(ctx context.Context) error {
	vec, err := s.embed(ctx, bootstrapContent)
	if err != nil {
		return fmt.Errorf("bootstrapping index: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = []entry{{
		ID:        uuid.NewString(),
		Content:   bootstrapContent,
		Metadata:  map[string]any{document.MetaSource: "bootstrap"},
		Embedding: vec,
		Bootstrap: true,
	}}
	s.dim = len(vec)

	if err := s.persistLocked(); err != nil {
		return err
	}
	s.logger.Debug("index bootstrapped", "name", s.name)
	return nil
}

// persistLocked writes the index atomically: marshal to <artifact>.tmp,
// then rename over the previous artifact. Callers hold s.mu. The advisory
// file lock serializes writers across processes; readers only ever see the
// old artifact or the new one, never a partial write.
func (s *Store) persistLocked() error {
	if err := s.fileLock.Lock(); err != nil {
		return fmt.Errorf("acquiring index file lock: %w", err)
	}
	defer func() {
		if err := s.fileLock.Unlock(); err != nil {
			s.logger.Warn("releasing index file lock", "error", err)
		}
	}()

	data, err := json.Marshal(persisted{
		Name:      s.name,
		Dimension: s.dim,
		Entries:   s.entries,
	})
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}

	tmp := s.artifactPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("writing index temp file: %w", err)
	}
	if err := os.Rename(tmp, s.artifactPath()); err != nil {
		return fmt.Errorf("replacing index artifact: %w", err)
	}
	return nil
}

func (s *Store) artifactPath() string {
	return filepath.Join(s.dir, s.name+".json")
}

func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return nil, fmt.Errorf("generating embedding: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return resp.Embeddings[0].Embedding, nil
}

// embedMany embeds a batch in a single request so ingestion does not pay a
// round trip per chunk.
func (s *Store) embedMany(ctx context.Context, docs []document.Document) ([][]float32, error) {
	input := make([]*ai.Document, len(docs))
	for i, d := range docs {
		input[i] = ai.DocumentFromText(d.Content, nil)
	}

	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{Input: input})
	if err != nil {
		return nil, fmt.Errorf("generating embeddings: %w", err)
	}
	if len(resp.Embeddings) != len(docs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs",
			len(resp.Embeddings), len(docs))
	}

	vectors := make([][]float32, len(docs))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) == 0 {
			return nil, ErrEmptyEmbedding
		}
		vectors[i] = emb.Embedding
	}
	return vectors, nil
}

// distance converts cosine similarity into a [0,1] distance where lower is
// more similar. Orthogonal-or-worse vectors saturate at 1.
func distance(a, b []float32) float64 {
	return clamp01(1 - cosineSimilarity(a, b))
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
