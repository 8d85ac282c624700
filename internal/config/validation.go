package config

import (
	"fmt"
	"math"
	"strings"
)

// weightEpsilon tolerates float drift when checking that the relevance
// weights sum to 1.
const weightEpsilon = 1e-6

// Validate checks the configuration for values that would make the pipeline
// misbehave silently. Called by Load after unmarshalling; tests building a
// Config by hand should call it too.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini, ProviderOllama:
	default:
		return fmt.Errorf("%w: %q (supported: gemini, ollama)", ErrInvalidProvider, c.Provider)
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %v (must be in [0,2])", ErrInvalidTemperature, c.Temperature)
	}

	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: %d (must be positive)", ErrInvalidMaxTokens, c.MaxTokens)
	}

	if c.IndexName == "" || strings.ContainsAny(c.IndexName, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidIndexName, c.IndexName)
	}

	if c.Chunk.Size <= 0 {
		return fmt.Errorf("%w: size %d must be positive", ErrInvalidChunking, c.Chunk.Size)
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.Size {
		return fmt.Errorf("%w: overlap %d must be in [0, size)", ErrInvalidChunking, c.Chunk.Overlap)
	}

	if err := c.Relevance.validate(); err != nil {
		return err
	}

	if c.Synthesis.ContextBudget <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidContextBudget, c.Synthesis.ContextBudget)
	}

	return nil
}

func (r *RelevanceConfig) validate() error {
	sum := r.SimilarityWeight + r.TermWeight
	if math.Abs(sum-1) > weightEpsilon {
		return fmt.Errorf("%w: similarity %v + term %v = %v, want 1",
			ErrInvalidWeights, r.SimilarityWeight, r.TermWeight, sum)
	}

	for name, v := range map[string]float64{
		"threshold":               r.Threshold,
		"authoritative_threshold": r.AuthoritativeThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s %v (must be in [0,1])", ErrInvalidThreshold, name, v)
		}
	}

	if r.AuthoritativeBoost < 1 {
		return fmt.Errorf("%w: authoritative_boost %v (must be >= 1)", ErrInvalidThreshold, r.AuthoritativeBoost)
	}

	if r.TargetWords <= 0 || r.MinWords <= 0 {
		return fmt.Errorf("%w: target_words %d / min_words %d must be positive",
			ErrInvalidThreshold, r.TargetWords, r.MinWords)
	}

	return nil
}
