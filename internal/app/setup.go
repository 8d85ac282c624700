package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"

	"github.com/anserhq/anser/internal/chunk"
	"github.com/anserhq/anser/internal/config"
	"github.com/anserhq/anser/internal/document"
	"github.com/anserhq/anser/internal/index"
	"github.com/anserhq/anser/internal/log"
	"github.com/anserhq/anser/internal/rag"
	"github.com/anserhq/anser/internal/relevance"
	"github.com/anserhq/anser/internal/respond"
	"github.com/anserhq/anser/internal/synthesis"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	store, err := index.New(ctx, cfg.IndexDir, cfg.IndexName, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("opening vector index: %w", err)
	}
	a.Index = store

	system, err := provideSystem(cfg, g, store, logger)
	if err != nil {
		return nil, err
	}
	a.RAG = system

	_, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	return a, nil
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default) and ollama.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	default: // "gemini"
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the AI provider
// plugin. Ollama embedders are keyed by server address (registered in
// provideGenkit); gemini embedders by model name.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	default: // "gemini"
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideSystem assembles the RAG pipeline from its injected parts.
func provideSystem(cfg *config.Config, g *genkit.Genkit, store *index.Store, logger log.Logger) (*rag.System, error) {
	loader, err := document.NewLoader(cfg.Loader, logger)
	if err != nil {
		return nil, fmt.Errorf("creating loader: %w", err)
	}

	generator := &genkitGenerator{g: g, cfg: cfg}

	return rag.NewSystem(
		loader,
		chunk.NewSplitter(cfg.Chunk),
		store,
		relevance.NewFilter(cfg.Relevance, logger),
		synthesis.New(cfg.Synthesis, generator, logger),
		respond.NewFormatter(),
		generator,
		cfg.TopK,
		logger,
	), nil
}

// genkitGenerator adapts Genkit model calls to the synthesis.Generator
// contract: transport and backend failures surface as errors, never as
// silently empty text.
type genkitGenerator struct {
	g   *genkit.Genkit
	cfg *config.Config
}

func (gg *genkitGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := genkit.Generate(ctx, gg.g,
		ai.WithModelName(gg.cfg.FullModelName()),
		ai.WithPrompt(prompt),
		ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature:     float64(gg.cfg.Temperature),
			MaxOutputTokens: gg.cfg.MaxTokens,
		}),
	)
	if err != nil {
		return "", fmt.Errorf("generating response: %w", err)
	}
	return resp.Text(), nil
}
