// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.anser/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: provider, model, temperature, embedder model
//   - Index: persisted vector index location and name
//   - Chunk: splitter window size and overlap
//   - Loader: boilerplate cleaning and web fetch behavior
//   - Relevance: scoring weights, thresholds, keyword overrides
//   - Synthesis: context budget and no-answer phrase list
//
// Every heuristic constant of the retrieval pipeline lives here as a named
// field with a default, so thresholds are tuned in one place and tests can
// construct exact configurations.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidChunking indicates an unusable chunk size/overlap pair.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidWeights indicates relevance weights that do not sum to one.
	ErrInvalidWeights = errors.New("invalid relevance weights")

	// ErrInvalidThreshold indicates a relevance threshold outside [0,1].
	ErrInvalidThreshold = errors.New("invalid relevance threshold")

	// ErrInvalidContextBudget indicates a non-positive synthesis budget.
	ErrInvalidContextBudget = errors.New("invalid context budget")

	// ErrInvalidIndexName indicates an empty or path-like index name.
	ErrInvalidIndexName = errors.New("invalid index name")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderGoogleAI = "googleai"
)

// DefaultGeminiEmbedderModel is the default Gemini embedder model.
const DefaultGeminiEmbedderModel = "gemini-embedding-001"

// ChunkConfig controls the document splitter.
type ChunkConfig struct {
	// Size is the target chunk length in characters.
	Size int `mapstructure:"size" json:"size"`
	// Overlap is the exact number of trailing characters repeated at the
	// start of the next chunk from the same document. Must be < Size.
	Overlap int `mapstructure:"overlap" json:"overlap"`
}

// ScraperConfig controls batch URL fetching.
type ScraperConfig struct {
	Parallelism int    `mapstructure:"parallelism" json:"parallelism"`
	DelayMs     int    `mapstructure:"delay_ms" json:"delay_ms"`
	TimeoutMs   int    `mapstructure:"timeout_ms" json:"timeout_ms"`
	UserAgent   string `mapstructure:"user_agent" json:"user_agent"`
}

// LoaderConfig controls document loading and cleaning.
type LoaderConfig struct {
	// MinWords drops documents whose cleaned content has fewer words.
	// Near-empty pages (cover sheets, blank PDF pages) pollute the index.
	MinWords int `mapstructure:"min_words" json:"min_words"`
	// BoilerplatePatterns are case-insensitive regexes removed from content
	// before chunking: copyright notices, page numbers, running headers.
	BoilerplatePatterns []string      `mapstructure:"boilerplate_patterns" json:"boilerplate_patterns"`
	Scraper             ScraperConfig `mapstructure:"scraper" json:"scraper"`
}

// RelevanceConfig holds every tunable of the relevance decision policy.
type RelevanceConfig struct {
	// SimilarityWeight and TermWeight combine vector similarity with term
	// overlap; they must sum to 1.
	SimilarityWeight float64 `mapstructure:"similarity_weight" json:"similarity_weight"`
	TermWeight       float64 `mapstructure:"term_weight" json:"term_weight"`

	// Threshold is the combined-score acceptance bar.
	Threshold float64 `mapstructure:"threshold" json:"threshold"`

	// AuthoritativeBoost multiplies the combined score for content whose
	// metadata marks it as a canonical document; AuthoritativeThreshold is
	// the lower acceptance bar applied to such content.
	AuthoritativeBoost     float64 `mapstructure:"authoritative_boost" json:"authoritative_boost"`
	AuthoritativeThreshold float64 `mapstructure:"authoritative_threshold" json:"authoritative_threshold"`

	// TargetWords and MinWords parameterize the length penalty favoring
	// short, focused candidates.
	TargetWords int `mapstructure:"target_words" json:"target_words"`
	MinWords    int `mapstructure:"min_words" json:"min_words"`

	// MinTermLength discards query terms shorter than this during
	// tokenization.
	MinTermLength int `mapstructure:"min_term_length" json:"min_term_length"`

	// RareKeywords lists product-specific unique tokens: when one appears in
	// a query, only candidates containing that exact token are accepted.
	RareKeywords []string `mapstructure:"rare_keywords" json:"rare_keywords"`
}

// SynthesisConfig controls answer synthesis.
type SynthesisConfig struct {
	// ContextBudget caps the characters of concatenated source text sent to
	// the generation backend.
	ContextBudget int `mapstructure:"context_budget" json:"context_budget"`
	// NoAnswerPhrases mark a generation result as a refusal, triggering the
	// escalation ladder.
	NoAnswerPhrases []string `mapstructure:"no_answer_phrases" json:"no_answer_phrases"`
}

// Config stores application configuration.
type Config struct {
	// AI provider and model configuration
	Provider      string  `mapstructure:"provider" json:"provider"` // "gemini" (default) or "ollama"
	ModelName     string  `mapstructure:"model_name" json:"model_name"`
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens" json:"max_tokens"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Persisted index location
	IndexDir  string `mapstructure:"index_dir" json:"index_dir"`
	IndexName string `mapstructure:"index_name" json:"index_name"`

	// Retrieval defaults
	TopK int `mapstructure:"top_k" json:"top_k"`

	Chunk     ChunkConfig     `mapstructure:"chunk" json:"chunk"`
	Loader    LoaderConfig    `mapstructure:"loader" json:"loader"`
	Relevance RelevanceConfig `mapstructure:"relevance" json:"relevance"`
	Synthesis SynthesisConfig `mapstructure:"synthesis" json:"synthesis"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".anser")

	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults(configDir)
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Fail-fast: a bad threshold discovered at query time is much harder to
	// diagnose than one rejected at startup.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(configDir string) {
	// AI defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 2048)
	viper.SetDefault("embedder_model", DefaultGeminiEmbedderModel)

	// Ollama defaults
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// Index defaults
	viper.SetDefault("index_dir", filepath.Join(configDir, "vector_store"))
	viper.SetDefault("index_name", "default_index")
	viper.SetDefault("top_k", 4)

	// Chunking defaults
	viper.SetDefault("chunk.size", 1000)
	viper.SetDefault("chunk.overlap", 200)

	// Loader defaults
	viper.SetDefault("loader.min_words", 10)
	viper.SetDefault("loader.boilerplate_patterns", []string{
		`copyright\s*(©|\(c\))?\s*\d{4}[^\n]*`,
		`all rights reserved[^\n]*`,
		`page\s+\d+(\s+of\s+\d+)?`,
		`confidential - internal use only`,
	})
	viper.SetDefault("loader.scraper.parallelism", 2)
	viper.SetDefault("loader.scraper.delay_ms", 1000)
	viper.SetDefault("loader.scraper.timeout_ms", 30000)
	viper.SetDefault("loader.scraper.user_agent", "anser/1.0 (+https://github.com/anserhq/anser)")

	// Relevance defaults
	viper.SetDefault("relevance.similarity_weight", 0.6)
	viper.SetDefault("relevance.term_weight", 0.4)
	viper.SetDefault("relevance.threshold", 0.45)
	viper.SetDefault("relevance.authoritative_boost", 1.1)
	viper.SetDefault("relevance.authoritative_threshold", 0.35)
	viper.SetDefault("relevance.target_words", 80)
	viper.SetDefault("relevance.min_words", 20)
	viper.SetDefault("relevance.min_term_length", 3)
	viper.SetDefault("relevance.rare_keywords", []string{})

	// Synthesis defaults
	viper.SetDefault("synthesis.context_budget", 3000)
	viper.SetDefault("synthesis.no_answer_phrases", []string{
		"i don't know",
		"i do not know",
		"not in the context",
		"not mentioned in the context",
		"unable to find",
		"cannot find",
		"no information",
	})
}

// bindEnvVariables binds environment variable overrides explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via Viper; its presence is
// checked at startup for the gemini provider.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime condition.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "ANSER_PROVIDER")
	mustBind("model_name", "ANSER_MODEL_NAME")
	mustBind("embedder_model", "ANSER_EMBEDDER_MODEL")
	mustBind("ollama_host", "ANSER_OLLAMA_HOST")
	mustBind("index_dir", "ANSER_INDEX_DIR")
	mustBind("index_name", "ANSER_INDEX_NAME")
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}
