// Package relevance gates retrieved candidates: vector distance alone pulls
// in generic near-neighbors, so each candidate is re-scored against the
// query with term overlap and a length penalty before it may enter a
// response.
//
// Every heuristic is a named pure function over explicit inputs, with its
// constants in config.RelevanceConfig, so each rule is testable in
// isolation.
package relevance

import (
	"math"
	"regexp"
	"strings"

	"github.com/anserhq/anser/internal/config"
	"github.com/anserhq/anser/internal/document"
	"github.com/anserhq/anser/internal/index"
	"github.com/anserhq/anser/internal/log"
)

// Safety-net acceptance rules applied alongside the combined-score
// threshold. Keyword-exact matches with weak vector similarity, and short
// queries with few meaningful terms, would otherwise be rejected.
const (
	// termRatioOverride accepts on term overlap alone.
	termRatioOverride = 0.4

	// strongSimilarity and strongSimilarityMinRatio accept a high-similarity
	// candidate that still shares some query terms.
	strongSimilarity         = 0.75
	strongSimilarityMinRatio = 0.25

	// shortQueryTerms and shortQueryMinRatio relax the overlap requirement
	// for queries with at most two meaningful terms.
	shortQueryTerms    = 2
	shortQueryMinRatio = 0.5

	// weakSimilarityFloor bounds the ratio-only rules: a candidate whose
	// vector is essentially unrelated to the query cannot be accepted on a
	// single shared generic term.
	weakSimilarityFloor = 0.2
)

// stopwords never count as query terms: WH-question words, auxiliaries, and
// generic connectives carry no retrieval signal.
var stopwords = map[string]bool{
	"what": true, "when": true, "where": true, "which": true, "who": true,
	"whom": true, "whose": true, "why": true, "how": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"been": true, "being": true, "am": true,
	"do": true, "does": true, "did": true, "have": true, "has": true,
	"had": true, "can": true, "could": true, "will": true, "would": true,
	"shall": true, "should": true, "may": true, "might": true, "must": true,
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"if": true, "of": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "with": true, "about": true, "from": true, "into": true,
	"that": true, "this": true, "these": true, "those": true, "it": true,
	"its": true, "as": true, "by": true, "me": true, "my": true, "you": true,
	"your": true, "we": true, "our": true, "they": true, "their": true,
	"please": true, "tell": true,
}

var (
	termSplit = regexp.MustCompile(`[^\p{L}\p{N}]+`)

	// Bare-question structure: numbered prefixes and multiple-choice option
	// markers as they appear in exam dumps.
	numberedQuestion = regexp.MustCompile(`(?m)^\s*(?:q(?:uestion)?\s*)?\d+\s*[.):]`)
	choiceMarker     = regexp.MustCompile(`(?mi)^\s*(?:\(?[a-d]\)|[a-d][.)])\s+\S`)
)

// explanatoryConnectives signal that content explains something rather than
// merely asking it.
var explanatoryConnectives = []string{
	"because", "therefore", "means", "refers to", "is defined",
	"consists of", "due to", "so that", "in other words", "for example",
	"such as", "answer:", "result", "caused by",
}

// Filter implements the acceptance policy for retrieved candidates.
type Filter struct {
	cfg    config.RelevanceConfig
	logger log.Logger
}

// NewFilter builds a Filter from validated configuration.
func NewFilter(cfg config.RelevanceConfig, logger log.Logger) *Filter {
	return &Filter{cfg: cfg, logger: logger}
}

// Apply scores the candidates against the query and returns the survivors
// in their incoming order, each with its normalized similarity recorded in
// chunk metadata. A positive thresholdOverride replaces the configured
// combined-score threshold for this call only.
func (f *Filter) Apply(query string, candidates []index.ScoredCandidate, thresholdOverride float64) []index.ScoredCandidate {
	terms := QueryTerms(query, f.cfg.MinTermLength)
	threshold := f.cfg.Threshold
	if thresholdOverride > 0 {
		threshold = thresholdOverride
	}

	kept := make([]index.ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		sim := NormalizeScore(c.Score)
		if !f.isRelevantAt(c.Chunk, query, terms, sim, threshold) {
			continue
		}
		if c.Chunk.Metadata == nil {
			c.Chunk.Metadata = map[string]any{}
		}
		c.Chunk.Metadata[document.MetaScore] = sim
		kept = append(kept, c)
	}

	f.logger.Debug("relevance filter applied",
		"candidates", len(candidates), "kept", len(kept), "query_terms", len(terms))
	return kept
}

// IsRelevant decides a single candidate against the configured threshold.
// terms must come from QueryTerms(query); sim is the normalized similarity
// in [0,1].
func (f *Filter) IsRelevant(chunk document.Document, query string, terms []string, sim float64) bool {
	return f.isRelevantAt(chunk, query, terms, sim, f.cfg.Threshold)
}

func (f *Filter) isRelevantAt(chunk document.Document, query string, terms []string, sim float64, threshold float64) bool {
	content := strings.TrimSpace(chunk.Content)
	if content == "" || strings.TrimSpace(query) == "" {
		return false
	}

	// Unanswered exam questions look topical to every scoring rule yet
	// contain no knowledge worth echoing back.
	if IsBareQuestion(content) {
		return false
	}

	// A query naming a designated rare keyword accepts only candidates that
	// contain that exact keyword.
	if kw, ok := f.requiredKeyword(query); ok {
		if !containsFold(content, kw) {
			return false
		}
	}

	ratio := TermRatio(terms, content)
	penalty := LengthPenalty(wordCount(content), f.cfg.TargetWords, f.cfg.MinWords)
	combined := CombinedScore(sim, ratio, penalty, f.cfg.SimilarityWeight, f.cfg.TermWeight)

	if isAuthoritative(chunk.Metadata) {
		combined *= f.cfg.AuthoritativeBoost
		threshold = f.cfg.AuthoritativeThreshold
	}

	switch {
	case combined >= threshold:
		return true
	case sim >= weakSimilarityFloor && ratio >= termRatioOverride:
		return true
	case sim >= strongSimilarity && ratio >= strongSimilarityMinRatio:
		return true
	case sim >= weakSimilarityFloor && len(terms) <= shortQueryTerms && ratio >= shortQueryMinRatio:
		return true
	}
	return false
}

// requiredKeyword reports the first configured rare keyword present in the
// query, if any.
func (f *Filter) requiredKeyword(query string) (string, bool) {
	for _, kw := range f.cfg.RareKeywords {
		if kw != "" && containsFold(query, kw) {
			return kw, true
		}
	}
	return "", false
}

// NormalizeScore converts a distance (lower = more similar) into a [0,1]
// similarity where higher is better.
func NormalizeScore(score float64) float64 {
	return 1 - math.Min(1, math.Max(0, score))
}

// QueryTerms tokenizes a query into meaningful terms, dropping stopwords
// and terms shorter than minLength runes. Terms are lowercased.
func QueryTerms(query string, minLength int) []string {
	var terms []string
	for _, tok := range termSplit.Split(strings.ToLower(query), -1) {
		if tok == "" || stopwords[tok] {
			continue
		}
		if len([]rune(tok)) < minLength {
			continue
		}
		terms = append(terms, tok)
	}
	return terms
}

// TermRatio is the fraction of query terms occurring verbatim in the
// content, case-insensitive substring match.
func TermRatio(terms []string, content string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	matched := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

// LengthPenalty favors shorter, more focused candidates: content at or
// below targetWords scores 1, longer content decays proportionally.
func LengthPenalty(contentWords, targetWords, minWords int) float64 {
	denom := contentWords
	if denom < minWords {
		denom = minWords
	}
	return math.Min(1, float64(targetWords)/float64(denom))
}

// CombinedScore blends similarity with term overlap. For fixed similarity
// and penalty, the score is monotonically non-decreasing in termRatio.
func CombinedScore(similarity, termRatio, lengthPenalty, simWeight, termWeight float64) float64 {
	return similarity*simWeight + termRatio*lengthPenalty*termWeight
}

// IsBareQuestion detects content that is structurally an unanswered
// question: numbered-question prefixes or multiple-choice markers, or a
// trailing question mark, with no explanatory connective anywhere.
func IsBareQuestion(content string) bool {
	lower := strings.ToLower(content)
	for _, conn := range explanatoryConnectives {
		if strings.Contains(lower, conn) {
			return false
		}
	}

	trimmed := strings.TrimSpace(content)
	if strings.HasSuffix(trimmed, "?") {
		return true
	}
	if numberedQuestion.MatchString(content) && strings.Contains(content, "?") {
		return true
	}
	if choiceMarker.MatchString(content) && strings.Contains(content, "?") {
		return true
	}
	return false
}

func isAuthoritative(md map[string]any) bool {
	v, ok := md[document.MetaDocType].(string)
	return ok && v == document.DocTypeAuthoritative
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
