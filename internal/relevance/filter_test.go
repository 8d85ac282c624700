package relevance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anserhq/anser/internal/config"
	"github.com/anserhq/anser/internal/document"
	"github.com/anserhq/anser/internal/index"
	"github.com/anserhq/anser/internal/log"
)

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
	}
}

func newTestFilter(t *testing.T, cfg config.RelevanceConfig) *Filter {
	t.Helper()
	return NewFilter(cfg, log.NewNop())
}

func TestNormalizeScore(t *testing.T) {
	cases := []struct {
		score float64
		want  float64
	}{
		{0, 1},
		{1, 0},
		{0.3, 0.7},
		{-0.5, 1}, // clamped
		{2.0, 0},  // clamped
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, NormalizeScore(tc.score), 1e-9, "score %v", tc.score)
	}
}

func TestQueryTerms(t *testing.T) {
	terms := QueryTerms("What is the capital of Zyxoria?", 3)
	assert.Equal(t, []string{"capital", "zyxoria"}, terms)

	// Stopwords and short tokens never survive.
	assert.Empty(t, QueryTerms("what is the", 3))
	assert.Empty(t, QueryTerms("is it an ox", 3))

	// Punctuation splits, case folds.
	assert.Equal(t, []string{"kubernetes", "rollout"},
		QueryTerms("Kubernetes... ROLLOUT!", 3))
}

func TestTermRatio(t *testing.T) {
	content := "The capital of Zyxoria is Zyxtropolis"

	assert.InDelta(t, 1.0, TermRatio([]string{"capital", "zyxoria"}, content), 1e-9)
	assert.InDelta(t, 0.5, TermRatio([]string{"capital", "france"}, content), 1e-9)
	assert.Zero(t, TermRatio([]string{"france"}, content))
	assert.Zero(t, TermRatio(nil, content))
}

func TestLengthPenalty(t *testing.T) {
	// Short content maxes out, long content decays.
	assert.InDelta(t, 1.0, LengthPenalty(10, 80, 20), 1e-9)
	assert.InDelta(t, 1.0, LengthPenalty(80, 80, 20), 1e-9)
	assert.InDelta(t, 0.5, LengthPenalty(160, 80, 20), 1e-9)
	assert.InDelta(t, 1.0, LengthPenalty(0, 80, 20), 1e-9) // floored at minWords
}

func TestCombinedScoreMonotonicInTermRatio(t *testing.T) {
	// For fixed similarity and penalty, more term overlap never lowers the
	// combined score.
	prev := -1.0
	for ratio := 0.0; ratio <= 1.0; ratio += 0.05 {
		score := CombinedScore(0.5, ratio, 0.8, 0.6, 0.4)
		assert.GreaterOrEqual(t, score, prev)
		prev = score
	}
}

func TestIsBareQuestion(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    bool
	}{
		{"trailing question mark", "What is the default port for PostgreSQL?", true},
		{"numbered exam question", "12. Which of the following is true?\nPick one.", true},
		{"multiple choice", "Which layer handles routing?\n(a) transport\n(b) network\n(c) session", true},
		{"question with answer", "What is a goroutine? A goroutine is a lightweight thread because the runtime multiplexes them.", false},
		{"plain statement", "The scheduler multiplexes goroutines onto OS threads.", false},
		{"definition", "Latency refers to the time between request and response.", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsBareQuestion(tc.content))
		})
	}
}

func TestApplyAcceptsOnCombinedScore(t *testing.T) {
	f := newTestFilter(t, testRelevanceConfig())

	candidates := []index.ScoredCandidate{{
		Chunk: document.New("The capital of Zyxoria is Zyxtropolis", "geo.txt", "text"),
		Score: 0.2, // similarity 0.8
	}}

	kept := f.Apply("What is the capital of Zyxoria?", candidates, 0)
	require.Len(t, kept, 1)
	assert.InDelta(t, 0.8, kept[0].Chunk.Metadata[document.MetaScore], 1e-9)
}

func TestApplyRejectsUnrelatedContent(t *testing.T) {
	f := newTestFilter(t, testRelevanceConfig())

	candidates := []index.ScoredCandidate{{
		Chunk: document.New("The capital of Zyxoria is Zyxtropolis", "geo.txt", "text"),
		Score: 0.9, // similarity 0.1: vectors essentially unrelated
	}}

	kept := f.Apply("What is the capital of France?", candidates, 0)
	assert.Empty(t, kept)
}

func TestApplyTermOverlapSafetyNet(t *testing.T) {
	// Weak-but-not-absent similarity plus strong keyword overlap passes even
	// though the combined score misses the threshold.
	f := newTestFilter(t, testRelevanceConfig())

	content := "pgbouncer connection pooling cuts postgres connection overhead " +
		"by multiplexing many client connections onto a small server pool, " +
		"which matters for serverless workloads that open connections per request " +
		"and would otherwise exhaust the database connection limit quickly today"
	candidates := []index.ScoredCandidate{{
		Chunk: document.New(content, "db.md", "text"),
		Score: 0.7, // similarity 0.3
	}}

	// ratio 3/5 with similarity 0.3: combined 0.42 misses the 0.45
	// threshold, the term-overlap net accepts anyway.
	kept := f.Apply("postgres pgbouncer pooling latency benchmarks", candidates, 0)
	assert.Len(t, kept, 1)
}

func TestApplyShortQueryRelaxation(t *testing.T) {
	f := newTestFilter(t, testRelevanceConfig())

	longContent := "goroutine scheduling in the runtime " +
		"is cooperative at function call boundaries and preemptive since one " +
		"point fourteen, which changed how tight loops behave under load and " +
		"made long running computations yield to the scheduler without manual " +
		"calls, improving tail latency for mixed workloads in busy servers " +
		"across many deployed services and platforms everywhere out there now " +
		"with more words to dilute the combined score below its threshold"

	candidates := []index.ScoredCandidate{{
		Chunk: document.New(longContent, "sched.md", "text"),
		Score: 0.6, // similarity 0.4
	}}

	// Two meaningful terms, one matching: ratio 0.5 and combined 0.44 miss
	// the 0.45 threshold but the short-query relaxation accepts.
	kept := f.Apply("goroutine parking", candidates, 0)
	assert.Len(t, kept, 1)
}

func TestApplyRareKeywordOverride(t *testing.T) {
	cfg := testRelevanceConfig()
	cfg.RareKeywords = []string{"Zyxoria"}
	f := newTestFilter(t, cfg)

	withKeyword := index.ScoredCandidate{
		Chunk: document.New("The capital of Zyxoria is Zyxtropolis", "geo.txt", "text"),
		Score: 0.2,
	}
	withoutKeyword := index.ScoredCandidate{
		Chunk: document.New("Capitals of the world include Paris, the capital of France", "world.txt", "text"),
		Score: 0.1, // excellent vector similarity, still must be rejected
	}

	kept := f.Apply("What is the capital of Zyxoria?",
		[]index.ScoredCandidate{withKeyword, withoutKeyword}, 0)
	require.Len(t, kept, 1)
	assert.Contains(t, kept[0].Chunk.Content, "Zyxtropolis")
}

func TestApplyBareQuestionRejected(t *testing.T) {
	f := newTestFilter(t, testRelevanceConfig())

	candidates := []index.ScoredCandidate{{
		Chunk: document.New("5. What is the capital of Zyxoria?\n(a) Zyxtropolis\n(b) Zyxville", "exam.txt", "text"),
		Score: 0.05,
	}}

	kept := f.Apply("What is the capital of Zyxoria?", candidates, 0)
	assert.Empty(t, kept)
}

func TestApplyEmptyInputsRejected(t *testing.T) {
	f := newTestFilter(t, testRelevanceConfig())

	empty := []index.ScoredCandidate{{Chunk: document.Document{Content: "   "}, Score: 0}}
	assert.Empty(t, f.Apply("valid query terms", empty, 0))

	full := []index.ScoredCandidate{{
		Chunk: document.New("perfectly relevant content", "a.txt", "text"),
		Score: 0,
	}}
	assert.Empty(t, f.Apply("   ", full, 0))
}

func TestApplyThresholdOverride(t *testing.T) {
	f := newTestFilter(t, testRelevanceConfig())

	candidates := []index.ScoredCandidate{{
		Chunk: document.New("The deployment pipeline builds container images nightly", "ci.md", "text"),
		Score: 0.5, // similarity 0.5; ratio 2/6 keeps combined at ~0.43
	}}
	query := "deployment images rollback strategy documentation runbooks"

	assert.Empty(t, f.Apply(query, candidates, 0), "default threshold rejects")
	assert.Len(t, f.Apply(query, candidates, 0.30), 1, "looser override accepts")
}

func TestApplyAuthoritativeBoost(t *testing.T) {
	f := newTestFilter(t, testRelevanceConfig())

	content := "Deployment rollbacks are performed with the release tool " +
		"following the runbook steps documented for each environment and " +
		"validated in staging before any production rollout happens at all " +
		"according to policy and the change management process in place here " +
		"which adds review gates and sign offs for the riskier changes too " +
		"plus a standing checklist that operators follow during the rollout"

	plain := index.ScoredCandidate{
		Chunk: document.New(content, "wiki.md", "text"),
		Score: 0.6, // similarity 0.4; combined 0.34 vs plain threshold 0.45
	}
	authoritative := index.ScoredCandidate{
		Chunk: document.New(content, "runbook.md", "text"),
		Score: 0.6, // boosted to 0.374, clearing the 0.35 authoritative bar
	}
	authoritative.Chunk.Metadata[document.MetaDocType] = document.DocTypeAuthoritative

	query := "incident rollback mitigation guidance"
	kept := f.Apply(query, []index.ScoredCandidate{plain, authoritative}, 0)
	require.Len(t, kept, 1)
	assert.Equal(t, "runbook.md", kept[0].Chunk.Metadata[document.MetaSource])
}
